package nutrition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/insho/insho-api/internal/apperror"
	"github.com/insho/insho-api/internal/model"
)

type stubSource struct {
	quote *model.NutrientQuote
	err   error
}

func (s stubSource) Lookup(context.Context, string) (*model.NutrientQuote, error) {
	return s.quote, s.err
}

type recordingObserver struct {
	outcomes []string
}

func (r *recordingObserver) ObserveExternalLookup(outcome string, elapsed time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestInstrument_ClassifiesOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	sources := []Source{
		Instrument(stubSource{quote: &model.NutrientQuote{Barcode: "1"}}, obs),
		Instrument(stubSource{err: ErrProductNotFound}, obs),
		Instrument(stubSource{err: apperror.SourceUnavailable("down", nil)}, obs),
	}

	for _, s := range sources {
		_, _ = s.Lookup(context.Background(), "12345678")
	}

	assert.Equal(t, []string{OutcomeFound, OutcomeNotFound, OutcomeError}, obs.outcomes)
}

func TestInstrument_PassesResultsThrough(t *testing.T) {
	want := &model.NutrientQuote{Barcode: "12345678"}
	s := Instrument(stubSource{quote: want}, &recordingObserver{})

	got, err := s.Lookup(context.Background(), "12345678")
	assert.NoError(t, err)
	assert.Same(t, want, got)

	s = Instrument(stubSource{err: ErrProductNotFound}, &recordingObserver{})
	_, err = s.Lookup(context.Background(), "12345678")
	assert.True(t, errors.Is(err, ErrProductNotFound))
}
