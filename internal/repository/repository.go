// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in sub-packages (sqlstore); services
// only ever see these interfaces.
package repository

import (
	"context"

	"github.com/insho/insho-api/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository stores accounts and their onboarding profiles.
type UserRepository interface {
	// Create inserts a password account. A taken email is apperror.ErrConflict.
	Create(ctx context.Context, user *model.User) error
	// Upsert inserts or refreshes a GitHub account keyed by GitHubID.
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	// Delete removes the user and, by cascade, every food record they own.
	Delete(ctx context.Context, id string) error
}

// FoodRepository is the append-only store of consumption events.
type FoodRepository interface {
	// Latest returns the most recent record for barcode across all owners,
	// or (nil, nil) when the barcode was never logged.
	Latest(ctx context.Context, barcode string) (*model.FoodRecord, error)
	// Append writes a new record and fills in its ID and ScannedAt.
	Append(ctx context.Context, rec *model.FoodRecord) error
	// Aggregate sums the owner's records inside window.
	Aggregate(ctx context.Context, ownerID string, window model.TimeRange) (*model.AggregateTotals, error)
	// ListByOwner returns the owner's records, newest first.
	ListByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]model.FoodRecord, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
