package nutrition

import (
	"context"
	"strings"

	"github.com/insho/insho-api/internal/apperror"
	"github.com/insho/insho-api/internal/model"
)

// Unavailable is the Source used when no catalog is configured.
// Every lookup fails with a SourceUnavailable error.
type Unavailable struct{}

func (Unavailable) Lookup(_ context.Context, barcode string) (*model.NutrientQuote, error) {
	if strings.TrimSpace(barcode) == "" {
		return nil, apperror.ValidationFailed("barcode", "barcode is required")
	}
	return nil, apperror.SourceUnavailable("nutrition source is not configured", nil)
}
