package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/insho/insho-api/internal/repository"
)

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"

	pingTimeout = 2 * time.Second
)

// Health is the /health payload.
type Health struct {
	Status    string    `json:"status"`
	Env       string    `json:"env"`
	Database  string    `json:"database"`
	CheckedAt time.Time `json:"checked_at"`
}

// HealthService pings the database on demand.
type HealthService struct {
	db     repository.Pinger
	env    string
	logger *slog.Logger
}

func NewHealthService(db repository.Pinger, env string, logger *slog.Logger) *HealthService {
	return &HealthService{db: db, env: env, logger: logger}
}

// Check never fails; an unreachable database only degrades the status.
func (s *HealthService) Check(ctx context.Context) *Health {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	h := &Health{
		Status:    HealthOK,
		Env:       s.env,
		Database:  HealthOK,
		CheckedAt: time.Now().UTC(),
	}
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("database ping failed", slog.String("error", err.Error()))
		h.Status = HealthDegraded
		h.Database = "unreachable"
	}
	return h
}
