package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/insho/insho-api/internal/apperror"
	"github.com/insho/insho-api/internal/model"
	"github.com/insho/insho-api/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, hashed_password, name, gender, activity_level, age,
	height_cm, weight_kg, kcal_goal, is_active, is_onboarded, github_id, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Gender, &u.ActivityLevel, &u.Age,
		&u.HeightCm, &u.WeightKg, &u.KcalGoal, &u.IsActive, &u.IsOnboarded, &u.GitHubID,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// now returns the timestamp stored for new and updated rows: UTC, cut to
// microseconds so SQLite and PostgreSQL round-trip the same value.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Create inserts a new account. The caller supplies Email, PasswordHash and
// the profile; Create fills in ID and timestamps.
// A duplicate email is reported as apperror.ErrConflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	ts := now()
	user.ID = xid.New().String()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	_, err := db.exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Name, user.Gender, user.ActivityLevel, user.Age,
		user.HeightCm, user.WeightKg, user.KcalGoal, user.IsActive, user.IsOnboarded, user.GitHubID,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlstore: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// Upsert inserts or refreshes a GitHub account.
//
// The row is matched on github_id. An existing row keeps its internal ID,
// password and onboarding profile; only the email is refreshed, and only
// when GitHub reports one. New rows are created active and not onboarded.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return apperror.ValidationFailed("github_id", "github id is required")
	}

	existing, err := scanUser(db.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, *user.GitHubID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlstore: looking up user by github_id %d: %w", *user.GitHubID, err)
	}

	if existing == nil {
		user.IsActive = true
		return db.Create(ctx, user)
	}

	if user.Email != "" && user.Email != existing.Email {
		existing.Email = user.Email
	}
	if existing.Name == nil {
		existing.Name = user.Name
	}
	existing.UpdatedAt = now()

	_, err = db.exec(ctx,
		`UPDATE users SET email = ?, name = ?, updated_at = ? WHERE id = ?`,
		existing.Email, existing.Name, existing.UpdatedAt, existing.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", existing.Email)
		}
		return fmt.Errorf("sqlstore: updating user %s: %w", existing.ID, err)
	}

	*user = *existing
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlstore: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetByEmail looks an account up by its (already normalised) email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundf("user not found with email %s", email)
		}
		return nil, fmt.Errorf("sqlstore: getting user by email: %w", err)
	}
	return u, nil
}

// UpdateProfile writes the onboarding profile fields of user.
// Email, password and GitHub link are not touched.
func (db *DB) UpdateProfile(ctx context.Context, user *model.User) error {
	user.UpdatedAt = now()

	result, err := db.exec(ctx,
		`UPDATE users
		 SET name = ?, gender = ?, activity_level = ?, age = ?, height_cm = ?,
		     weight_kg = ?, kcal_goal = ?, is_onboarded = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name, user.Gender, user.ActivityLevel, user.Age, user.HeightCm,
		user.WeightKg, user.KcalGoal, user.IsOnboarded, user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: updating profile of user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// Delete removes a user. Their food records go with them (ON DELETE CASCADE).
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
