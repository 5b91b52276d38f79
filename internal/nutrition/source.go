// Package nutrition answers "what is in the product with this barcode?"
// from an external catalog.
//
// Every implementation is read-only: it never writes to the food store.
// Callers get exactly one of three outcomes from Lookup:
//
//	quote, nil                 → the catalog knows the product
//	nil, ErrProductNotFound    → the catalog answered and does not know it
//	nil, apperror.SourceUnavailable → the catalog could not answer
//
// The last two are kept apart on purpose: "unknown product" is a normal
// result the UI can show, "catalog down" must surface as an upstream error.
package nutrition

import (
	"context"
	"errors"
	"log/slog"

	"github.com/insho/insho-api/internal/config"
	"github.com/insho/insho-api/internal/model"
)

// ErrProductNotFound is returned when the catalog positively reports that
// it has no product for the barcode.
var ErrProductNotFound = errors.New("nutrition: product not found")

// Source is a nutrition catalog.
type Source interface {
	Lookup(ctx context.Context, barcode string) (*model.NutrientQuote, error)
}

// New picks the Source configured by cfg.NutritionSource. It is called once
// at startup; the choice does not change while the server runs.
func New(cfg *config.Config, logger *slog.Logger) Source {
	switch cfg.NutritionSource {
	case config.NutritionSourceNone:
		logger.Warn("nutrition source disabled, barcode lookups only use logged foods")
		return Unavailable{}
	default:
		return NewOpenFoodFacts(cfg.OpenFoodFactsBaseURL, cfg.NutritionTimeout, logger)
	}
}
