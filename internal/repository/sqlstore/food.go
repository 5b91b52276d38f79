package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/rs/xid"

	"github.com/insho/insho-api/internal/apperror"
	"github.com/insho/insho-api/internal/model"
	"github.com/insho/insho-api/internal/repository"
)

var _ repository.FoodRepository = (*DB)(nil)

const (
	foodColumns = `id, barcode, name, calories_per_100g, proteins_per_100g, carbs_per_100g,
	fats_per_100g, user_id, grams, scanned_at`

	defaultListLimit = 20
	maxListLimit     = 100
)

func scanFood(row rowScanner) (*model.FoodRecord, error) {
	var r model.FoodRecord
	err := row.Scan(
		&r.ID, &r.Barcode, &r.Name, &r.CaloriesPer100g, &r.ProteinsPer100g, &r.CarbsPer100g,
		&r.FatsPer100g, &r.UserID, &r.Grams, &r.ScannedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Latest returns the most recently scanned record for barcode, whoever
// logged it, or (nil, nil) if the barcode has never been logged.
//
// TIE-BREAK:
// Two records can share a scanned_at. The one with the greater id wins.
// xids embed a per-process counter after the timestamp, so within one
// server process that is the one inserted last.
func (db *DB) Latest(ctx context.Context, barcode string) (*model.FoodRecord, error) {
	rec, err := scanFood(db.queryRow(ctx,
		`SELECT `+foodColumns+`
		 FROM foods
		 WHERE barcode = ?
		 ORDER BY scanned_at DESC, id DESC
		 LIMIT 1`,
		barcode,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlstore: latest food for barcode %s: %w", barcode, err)
	}
	return rec, nil
}

// Append persists a new consumption record and fills in ID and ScannedAt.
//
// The service validates grams before it gets here; the store checks again
// so that no caller can write a record that breaks the aggregate maths.
// The write is a single INSERT: it either lands completely or not at all.
func (db *DB) Append(ctx context.Context, rec *model.FoodRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	rec.ID = xid.New().String()
	rec.ScannedAt = now()

	_, err := db.exec(ctx,
		`INSERT INTO foods (`+foodColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Barcode, rec.Name, rec.CaloriesPer100g, rec.ProteinsPer100g, rec.CarbsPer100g,
		rec.FatsPer100g, rec.UserID, rec.Grams, rec.ScannedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", rec.UserID)
		}
		return fmt.Errorf("sqlstore: appending food %s for user %s: %w", rec.Barcode, rec.UserID, err)
	}
	return nil
}

func validateRecord(rec *model.FoodRecord) error {
	switch {
	case rec.UserID == "":
		return apperror.ValidationFailed("user_id", "owner is required")
	case rec.Barcode == "":
		return apperror.ValidationFailed("barcode", "barcode is required")
	case math.IsNaN(rec.Grams) || math.IsInf(rec.Grams, 0) || rec.Grams <= 0:
		return apperror.ValidationFailed("grams", "grams must be greater than 0")
	}
	nutrients := []struct {
		field string
		value *float64
	}{
		{"calories_per_100g", rec.CaloriesPer100g},
		{"proteins_per_100g", rec.ProteinsPer100g},
		{"carbs_per_100g", rec.CarbsPer100g},
		{"fats_per_100g", rec.FatsPer100g},
	}
	for _, n := range nutrients {
		if v := n.value; v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return apperror.ValidationFailed(n.field, n.field+" must be a non-negative number")
		}
	}
	return nil
}

// Aggregate sums an owner's grams and grams-weighted nutrients.
//
// Each record contributes grams/100 * value_per_100g; a NULL per-100 g value
// contributes 0. Bounds are inclusive. An owner without records gets zeros.
func (db *DB) Aggregate(ctx context.Context, ownerID string, window model.TimeRange) (*model.AggregateTotals, error) {
	q := `SELECT
		COALESCE(SUM(grams), 0),
		COALESCE(SUM(grams * COALESCE(calories_per_100g, 0) / 100.0), 0),
		COALESCE(SUM(grams * COALESCE(proteins_per_100g, 0) / 100.0), 0),
		COALESCE(SUM(grams * COALESCE(carbs_per_100g, 0) / 100.0), 0),
		COALESCE(SUM(grams * COALESCE(fats_per_100g, 0) / 100.0), 0)
	FROM foods
	WHERE user_id = ?`
	args := []any{ownerID}

	if window.From != nil {
		q += ` AND scanned_at >= ?`
		args = append(args, window.From.UTC())
	}
	if window.To != nil {
		q += ` AND scanned_at <= ?`
		args = append(args, window.To.UTC())
	}

	var t model.AggregateTotals
	if err := db.queryRow(ctx, q, args...).Scan(&t.Grams, &t.Calories, &t.Proteins, &t.Carbs, &t.Fats); err != nil {
		return nil, fmt.Errorf("sqlstore: aggregating foods for user %s: %w", ownerID, err)
	}
	return &t, nil
}

// ListByOwner returns one page of the owner's records, newest first.
func (db *DB) ListByOwner(ctx context.Context, ownerID string, opts repository.ListOptions) ([]model.FoodRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(opts.Offset, 0)

	rows, err := db.query(ctx,
		`SELECT `+foodColumns+`
		 FROM foods
		 WHERE user_id = ?
		 ORDER BY scanned_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing foods for user %s: %w", ownerID, err)
	}
	defer rows.Close()

	records := make([]model.FoodRecord, 0, limit)
	for rows.Next() {
		rec, err := scanFood(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning food row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating foods: %w", err)
	}
	return records, nil
}
