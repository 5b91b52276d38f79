package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/insho/insho-api/internal/apperror"
	"github.com/insho/insho-api/internal/model"
	"github.com/insho/insho-api/internal/nutrition"
	"github.com/insho/insho-api/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Hand-written in-memory implementations of the repository and catalog
// interfaces. Every fake counts its calls so tests can assert that a code
// path did NOT touch the store or the catalog.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ptr[T any](v T) *T { return &v }

// fakeUserRepo stores users by id; GitHub accounts are also indexed by
// GitHub id.
type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int

	createErr  error
	upsertErr  error
	getByIDErr error
	updateErr  error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperror.Conflict("user", user.Email)
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) Upsert(ctx context.Context, user *model.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, u := range f.users {
		if u.GitHubID != nil && *u.GitHubID == *user.GitHubID {
			if user.Email != "" {
				u.Email = user.Email
			}
			*user = *u
			return nil
		}
	}
	user.IsActive = true
	return f.Create(ctx, user)
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFoundf("user not found with email %s", email)
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, user *model.User) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	return nil
}

// fakeFoodRepo keeps records in insertion order.
type fakeFoodRepo struct {
	records []model.FoodRecord
	nextID  int
	clock   time.Time

	latestCalls    int
	appendCalls    int
	aggregateCalls int
	lastWindow     model.TimeRange

	latestErr error
	appendErr error
}

func newFakeFoodRepo() *fakeFoodRepo {
	return &fakeFoodRepo{clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// seed stores a record without counting it as an Append call.
func (f *fakeFoodRepo) seed(rec model.FoodRecord) {
	f.nextID++
	rec.ID = fmt.Sprintf("food-%d", f.nextID)
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = f.clock
	}
	f.records = append(f.records, rec)
}

func (f *fakeFoodRepo) Latest(_ context.Context, barcode string) (*model.FoodRecord, error) {
	f.latestCalls++
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].Barcode == barcode {
			rec := f.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (f *fakeFoodRepo) Append(_ context.Context, rec *model.FoodRecord) error {
	f.appendCalls++
	if f.appendErr != nil {
		return f.appendErr
	}
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	rec.ID = fmt.Sprintf("food-%d", f.nextID)
	rec.ScannedAt = f.clock
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeFoodRepo) Aggregate(_ context.Context, ownerID string, window model.TimeRange) (*model.AggregateTotals, error) {
	f.aggregateCalls++
	f.lastWindow = window

	var t model.AggregateTotals
	for _, r := range f.records {
		if r.UserID != ownerID {
			continue
		}
		if window.From != nil && r.ScannedAt.Before(*window.From) {
			continue
		}
		if window.To != nil && r.ScannedAt.After(*window.To) {
			continue
		}
		t.Grams += r.Grams
		t.Calories += r.Grams * deref(r.CaloriesPer100g) / 100
		t.Proteins += r.Grams * deref(r.ProteinsPer100g) / 100
		t.Carbs += r.Grams * deref(r.CarbsPer100g) / 100
		t.Fats += r.Grams * deref(r.FatsPer100g) / 100
	}
	return &t, nil
}

func (f *fakeFoodRepo) ListByOwner(_ context.Context, ownerID string, opts repository.ListOptions) ([]model.FoodRecord, error) {
	var out []model.FoodRecord
	for _, r := range f.records {
		if r.UserID == ownerID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScannedAt.After(out[j].ScannedAt) })
	if opts.Offset >= len(out) {
		return []model.FoodRecord{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// fakeSource answers from a fixed catalog; barcodes not in it are
// nutrition.ErrProductNotFound unless err is set.
type fakeSource struct {
	catalog map[string]*model.NutrientQuote
	err     error
	calls   int
}

func (f *fakeSource) Lookup(_ context.Context, barcode string) (*model.NutrientQuote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	q, ok := f.catalog[barcode]
	if !ok {
		return nil, nutrition.ErrProductNotFound
	}
	cp := *q
	return &cp, nil
}

type countingRecorder struct {
	lookups      map[string]int
	consumptions int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{lookups: make(map[string]int)}
}

func (r *countingRecorder) RecordLookup(source string) { r.lookups[source]++ }
func (r *countingRecorder) RecordConsumption()         { r.consumptions++ }

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }
