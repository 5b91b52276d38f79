package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/insho/insho-api/internal/apperror"
	"github.com/insho/insho-api/internal/model"
	"github.com/insho/insho-api/internal/repository"
	"github.com/insho/insho-api/internal/service"
)

// Foods is the part of service.FoodService the handler uses.
type Foods interface {
	Lookup(ctx context.Context, barcode string) (*service.LookupResult, error)
	Consume(ctx context.Context, ownerID, barcode string, grams float64) (*model.FoodRecord, error)
	Totals(ctx context.Context, ownerID string, window model.TimeRange) (*model.AggregateTotals, error)
	History(ctx context.Context, ownerID string, opts repository.ListOptions) ([]model.FoodRecord, error)
}

// FoodHandler serves barcode lookup, consumption logging and totals.
type FoodHandler struct {
	foods  Foods
	logger *slog.Logger
}

func NewFoodHandler(foods Foods, logger *slog.Logger) *FoodHandler {
	return &FoodHandler{foods: foods, logger: logger}
}

type lookupRequest struct {
	Barcode string `json:"barcode" validate:"required"`
}

type consumeRequest struct {
	Barcode string   `json:"barcode" validate:"required"`
	Grams   *float64 `json:"grams" validate:"required,gt=0"`
}

// LookupResponse carries the nutrient quote, or null for source "not_found".
type LookupResponse struct {
	Food   *model.NutrientQuote `json:"food"`
	Source model.Source         `json:"source"`
}

// HistoryResponse wraps the list so fields can be added without breaking
// clients.
type HistoryResponse struct {
	Items []model.FoodRecord `json:"items"`
}

// HandleLookup resolves a barcode without logging anything. An unknown
// barcode is a 200 with source "not_found"; a catalog outage is a 502.
//
// HTTP: POST /api/v1/food/lookup  {"barcode": "..."}
func (h *FoodHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.foods.Lookup(r.Context(), req.Barcode)
	if err != nil {
		writeError(w, err)
		return
	}

	// Lookup is public; a valid token only tags the log line.
	userID, _ := userIDFrom(r)
	h.logger.DebugContext(r.Context(), "food lookup",
		slog.String("barcode", req.Barcode),
		slog.String("source", string(res.Source)),
		slog.String("user_id", userID),
	)
	writeJSON(w, http.StatusOK, LookupResponse{Food: res.Food(), Source: res.Source})
}

// HandleConsume logs a consumption for the authenticated user.
//
// HTTP: POST /api/v1/food/consume  {"barcode": "...", "grams": 150} → 201
func (h *FoodHandler) HandleConsume(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req consumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.foods.Consume(r.Context(), userID, req.Barcode, *req.Grams)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleTotals sums the user's records, optionally inside [from, to].
//
// HTTP: GET /api/v1/food/totals?from=2026-03-01&to=2026-03-07
//
// Bounds are RFC 3339 timestamps or YYYY-MM-DD dates (UTC). A date-only
// "to" covers that whole day.
func (h *FoodHandler) HandleTotals(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	from, err := parseBound("from", q.Get("from"), false)
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseBound("to", q.Get("to"), true)
	if err != nil {
		writeError(w, err)
		return
	}

	totals, err := h.foods.Totals(r.Context(), userID, model.TimeRange{From: from, To: to})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// HandleHistory lists the user's records, newest first.
//
// HTTP: GET /api/v1/food/history?limit=20&offset=0
func (h *FoodHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, err := intParam("limit", q.Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam("offset", q.Get("offset"))
	if err != nil {
		writeError(w, err)
		return
	}

	recs, err := h.foods.History(r.Context(), userID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []model.FoodRecord{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Items: recs})
}

// parseBound parses a totals bound. Empty means unbounded.
func parseBound(field, v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, v, time.UTC)
	if err != nil {
		return nil, apperror.ValidationFailed(field, field+" must be an RFC 3339 timestamp or a YYYY-MM-DD date")
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Microsecond)
	}
	return &d, nil
}

func intParam(field, v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperror.ValidationFailed(field, field+" must be an integer")
	}
	return n, nil
}
