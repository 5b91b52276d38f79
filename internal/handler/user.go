package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/insho/insho-api/internal/model"
	"github.com/insho/insho-api/internal/service"
)

// Profiles is the part of service.UserService the handler uses.
type Profiles interface {
	Me(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.User, error)
	Delete(ctx context.Context, userID string) error
	Dashboard(ctx context.Context, userID string) (*service.Dashboard, error)
}

// UserHandler serves the onboarding profile and the dashboard.
type UserHandler struct {
	users  Profiles
	logger *slog.Logger
}

func NewUserHandler(users Profiles, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// profileRequest mirrors model.ProfileUpdate. Ranges are checked by the
// service; only the JSON shape is checked here.
type profileRequest struct {
	Name          *string  `json:"name"`
	Gender        *string  `json:"gender"`
	ActivityLevel *string  `json:"activity_level"`
	Age           *int     `json:"age"`
	HeightCm      *float64 `json:"height_cm"`
	WeightKg      *float64 `json:"weight_kg"`
	KcalGoal      *int     `json:"kcal_goal"`
	IsOnboarded   *bool    `json:"is_onboarded"`
}

// HTTP: GET /api/v1/users/me
func (h *UserHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := h.users.Me(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe applies a partial profile update.
//
// HTTP: PATCH /api/v1/users/me
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, model.ProfileUpdate(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HTTP: DELETE /api/v1/users/me → 204
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.users.Delete(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: GET /api/v1/dashboard
func (h *UserHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	d, err := h.users.Dashboard(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
