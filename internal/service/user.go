package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/insho/insho-api/internal/apperror"
	"github.com/insho/insho-api/internal/model"
	"github.com/insho/insho-api/internal/repository"
)

const (
	maxNameLen   = 120
	maxGenderLen = 16
)

var activityLevels = map[string]bool{
	model.ActivitySedentary:  true,
	model.ActivityLight:      true,
	model.ActivityModerate:   true,
	model.ActivityActive:     true,
	model.ActivityVeryActive: true,
}

// UserService manages the onboarding profile and the dashboard.
type UserService struct {
	users  repository.UserRepository
	foods  repository.FoodRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewUserService(users repository.UserRepository, foods repository.FoodRepository, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		foods:  foods,
		logger: logger,
		now:    time.Now,
	}
}

// Dashboard is the landing screen payload.
type Dashboard struct {
	ShowOnboarding bool                   `json:"show_onboarding"`
	KcalGoal       *int                   `json:"kcal_goal"`
	Today          *model.AggregateTotals `json:"today"`
}

func (s *UserService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// UpdateProfile applies a partial profile update and returns the stored
// user. Absent fields keep their value.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.User, error) {
	if err := validateProfile(&upd); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching user %s: %w", userID, err)
	}

	upd.Apply(user)
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: updating profile of %s: %w", userID, err)
	}

	s.logger.Info("profile updated",
		slog.String("userID", userID),
		slog.Bool("onboarded", user.IsOnboarded),
	)
	return user, nil
}

// Delete removes the account together with its food records.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("service/user: deleting user %s: %w", userID, err)
	}
	s.logger.Info("user deleted", slog.String("userID", userID))
	return nil
}

// Dashboard reports whether onboarding is pending, the calorie goal and
// today's totals (UTC day).
func (s *UserService) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching user %s: %w", userID, err)
	}

	from, to := dayBounds(s.now())
	today, err := s.foods.Aggregate(ctx, userID, model.TimeRange{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("service/user: aggregating today for %s: %w", userID, err)
	}

	return &Dashboard{
		ShowOnboarding: !user.IsOnboarded,
		KcalGoal:       user.KcalGoal,
		Today:          today,
	}, nil
}

// dayBounds returns the first and last microsecond of t's UTC day.
func dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return start, start.Add(24*time.Hour - time.Microsecond)
}

func validateProfile(upd *model.ProfileUpdate) error {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" || len(name) > maxNameLen {
			return apperror.ValidationFailed("name", fmt.Sprintf("name must be 1-%d characters", maxNameLen))
		}
		upd.Name = &name
	}
	if upd.Gender != nil {
		g := strings.TrimSpace(*upd.Gender)
		if g == "" || len(g) > maxGenderLen {
			return apperror.ValidationFailed("gender", fmt.Sprintf("gender must be 1-%d characters", maxGenderLen))
		}
		upd.Gender = &g
	}
	if upd.ActivityLevel != nil && !activityLevels[*upd.ActivityLevel] {
		return apperror.ValidationFailed("activity_level",
			"activity_level must be one of sedentary, light, moderate, active, very_active")
	}
	if upd.Age != nil && (*upd.Age < 1 || *upd.Age > 119) {
		return apperror.ValidationFailed("age", "age must be between 1 and 119")
	}
	if upd.HeightCm != nil && !inRange(*upd.HeightCm, 1, 299) {
		return apperror.ValidationFailed("height_cm", "height_cm must be between 1 and 299")
	}
	if upd.WeightKg != nil && !inRange(*upd.WeightKg, 1, 499) {
		return apperror.ValidationFailed("weight_kg", "weight_kg must be between 1 and 499")
	}
	if upd.KcalGoal != nil && (*upd.KcalGoal < 1 || *upd.KcalGoal > 20000) {
		return apperror.ValidationFailed("kcal_goal", "kcal_goal must be between 1 and 20000")
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
