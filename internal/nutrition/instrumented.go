package nutrition

import (
	"context"
	"errors"
	"time"

	"github.com/insho/insho-api/internal/model"
)

// Lookup outcomes reported to an Observer.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Observer receives one call per catalog lookup. internal/metrics
// implements it with Prometheus.
type Observer interface {
	ObserveExternalLookup(outcome string, elapsed time.Duration)
}

type instrumented struct {
	next Source
	obs  Observer
}

// Instrument wraps next so every lookup is timed and classified.
func Instrument(next Source, obs Observer) Source {
	return &instrumented{next: next, obs: obs}
}

func (i *instrumented) Lookup(ctx context.Context, barcode string) (*model.NutrientQuote, error) {
	start := time.Now()
	quote, err := i.next.Lookup(ctx, barcode)

	outcome := OutcomeFound
	switch {
	case errors.Is(err, ErrProductNotFound):
		outcome = OutcomeNotFound
	case err != nil:
		outcome = OutcomeError
	}
	i.obs.ObserveExternalLookup(outcome, time.Since(start))

	return quote, err
}
