package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/insho/insho-api/internal/apperror"
	"github.com/insho/insho-api/internal/model"
	"github.com/insho/insho-api/internal/nutrition"
	"github.com/insho/insho-api/internal/repository"
)

const (
	minBarcodeLen = 4
	maxBarcodeLen = 64
)

// Recorder receives food pipeline events. *metrics.Metrics implements it.
type Recorder interface {
	RecordLookup(source string)
	RecordConsumption()
}

type nopRecorder struct{}

func (nopRecorder) RecordLookup(string) {}
func (nopRecorder) RecordConsumption()  {}

// FoodService resolves barcodes to nutrient profiles and logs consumption.
//
// RESOLUTION ORDER:
//  1. the latest logged record for the barcode (any owner) → source "db"
//  2. the nutrition catalog                               → source "external"
//  3. neither knows it                                    → source "not_found"
//
// A logged record always wins over the catalog, however old it is, so a
// product keeps the nutrients it was first logged with. Catalog answers are
// never stored by a lookup; only Consume writes.
type FoodService struct {
	foods    repository.FoodRepository
	source   nutrition.Source
	recorder Recorder
	logger   *slog.Logger
}

// NewFoodService wires the store and the catalog. recorder may be nil.
func NewFoodService(
	foods repository.FoodRepository,
	source nutrition.Source,
	recorder Recorder,
	logger *slog.Logger,
) *FoodService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &FoodService{
		foods:    foods,
		source:   source,
		recorder: recorder,
		logger:   logger,
	}
}

// LookupResult is one of: a stored record (Source db), a catalog quote
// (Source external) or nothing (Source not_found).
type LookupResult struct {
	Source model.Source
	Record *model.FoodRecord
	Quote  *model.NutrientQuote
}

// Food is the public view of the result: barcode, name and nutrients.
// A stored record is reduced to its quote so a lookup never exposes who
// logged it, how much or when. Nil when nothing was found.
func (r *LookupResult) Food() *model.NutrientQuote {
	switch {
	case r.Record != nil:
		return r.Record.Quote()
	default:
		return r.Quote
	}
}

// Resolved reports whether a nutrient profile was found.
func (r *LookupResult) Resolved() bool {
	return r.Source != model.SourceNotFound
}

func (r *LookupResult) profile() (*string, model.NutrientProfile) {
	if r.Record != nil {
		return r.Record.Name, r.Record.NutrientProfile
	}
	return r.Quote.Name, r.Quote.NutrientProfile
}

// Lookup resolves barcode without writing anything.
//
// An unknown barcode is a result (Source not_found), not an error. A
// catalog outage is an error (apperror.ErrSourceUnavailable) and is never
// reported as not found.
func (s *FoodService) Lookup(ctx context.Context, barcode string) (*LookupResult, error) {
	barcode, err := normalizeBarcode(barcode)
	if err != nil {
		return nil, err
	}

	res, err := s.resolve(ctx, barcode)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordLookup(string(res.Source))
	return res, nil
}

// Consume logs that ownerID ate grams of the product behind barcode and
// returns the new record. Two identical calls write two records.
func (s *FoodService) Consume(ctx context.Context, ownerID, barcode string, grams float64) (*model.FoodRecord, error) {
	if math.IsNaN(grams) || math.IsInf(grams, 0) || grams <= 0 {
		return nil, apperror.ValidationFailed("grams", "grams must be greater than 0")
	}
	if ownerID == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	barcode, err := normalizeBarcode(barcode)
	if err != nil {
		return nil, err
	}

	res, err := s.resolve(ctx, barcode)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordLookup(string(res.Source))
	if !res.Resolved() {
		return nil, apperror.NotFoundf("food not found for barcode %s", barcode)
	}

	name, profile := res.profile()
	rec := &model.FoodRecord{
		Barcode:         barcode,
		Name:            name,
		UserID:          ownerID,
		Grams:           grams,
		NutrientProfile: profile,
	}
	if err := s.foods.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("service/food: appending record: %w", err)
	}
	s.recorder.RecordConsumption()

	s.logger.Info("food consumed",
		slog.String("userID", ownerID),
		slog.String("barcode", barcode),
		slog.Float64("grams", grams),
		slog.String("source", string(res.Source)),
	)
	return rec, nil
}

// Totals sums the owner's records inside window. Bounds are inclusive.
func (s *FoodService) Totals(ctx context.Context, ownerID string, window model.TimeRange) (*model.AggregateTotals, error) {
	if ownerID == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	if window.From != nil && window.To != nil && window.From.After(*window.To) {
		return nil, apperror.ValidationFailed("from", "from must not be after to")
	}

	totals, err := s.foods.Aggregate(ctx, ownerID, window)
	if err != nil {
		return nil, fmt.Errorf("service/food: aggregating for %s: %w", ownerID, err)
	}
	return totals, nil
}

// History lists the owner's records, newest first.
func (s *FoodService) History(ctx context.Context, ownerID string, opts repository.ListOptions) ([]model.FoodRecord, error) {
	if ownerID == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	if opts.Offset < 0 {
		return nil, apperror.ValidationFailed("offset", "offset must not be negative")
	}
	if opts.Limit < 0 {
		return nil, apperror.ValidationFailed("limit", "limit must not be negative")
	}

	recs, err := s.foods.ListByOwner(ctx, ownerID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/food: listing records of %s: %w", ownerID, err)
	}
	return recs, nil
}

func (s *FoodService) resolve(ctx context.Context, barcode string) (*LookupResult, error) {
	rec, err := s.foods.Latest(ctx, barcode)
	if err != nil {
		return nil, fmt.Errorf("service/food: latest record for %s: %w", barcode, err)
	}
	if rec != nil {
		return &LookupResult{Source: model.SourceDB, Record: rec}, nil
	}

	quote, err := s.source.Lookup(ctx, barcode)
	switch {
	case err == nil:
		return &LookupResult{Source: model.SourceExternal, Quote: quote}, nil
	case errors.Is(err, nutrition.ErrProductNotFound):
		return &LookupResult{Source: model.SourceNotFound}, nil
	default:
		s.logger.Warn("nutrition source failed",
			slog.String("barcode", barcode),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
}

func normalizeBarcode(barcode string) (string, error) {
	barcode = strings.TrimSpace(barcode)
	if len(barcode) < minBarcodeLen || len(barcode) > maxBarcodeLen {
		return "", apperror.ValidationFailed("barcode",
			fmt.Sprintf("barcode must be %d-%d characters", minBarcodeLen, maxBarcodeLen))
	}
	return barcode, nil
}
