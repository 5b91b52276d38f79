package nutrition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/insho/insho-api/internal/apperror"
	"github.com/insho/insho-api/internal/model"
)

const (
	// maxResponseBytes caps how much of a catalog response we read.
	// Product documents are a few tens of KB.
	maxResponseBytes = 2 << 20

	userAgent = "insho-api/1.0 (+https://github.com/insho/insho-api)"
)

// OpenFoodFacts looks products up in the OpenFoodFacts v0 product API:
//
//	GET {baseURL}/api/v0/product/{barcode}.json
type OpenFoodFacts struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenFoodFacts builds a client for baseURL (no trailing slash).
// Each lookup is bounded by timeout, end to end.
func NewOpenFoodFacts(baseURL string, timeout time.Duration, logger *slog.Logger) *OpenFoodFacts {
	return &OpenFoodFacts{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Lookup fetches and parses the product for barcode.
func (o *OpenFoodFacts) Lookup(ctx context.Context, barcode string) (*model.NutrientQuote, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, apperror.ValidationFailed("barcode", "barcode is required")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/api/v0/product/%s.json", o.baseURL, url.PathEscape(barcode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("nutrition: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Warn("openfoodfacts request failed",
			slog.String("barcode", barcode),
			slog.String("error", err.Error()),
		)
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, apperror.SourceUnavailable("nutrition catalog timed out", err)
		}
		return nil, apperror.SourceUnavailable("nutrition catalog unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrProductNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		o.logger.Warn("openfoodfacts returned an error status",
			slog.String("barcode", barcode),
			slog.Int("status", resp.StatusCode),
		)
		return nil, apperror.SourceUnavailable(
			fmt.Sprintf("nutrition catalog returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperror.SourceUnavailable("reading nutrition catalog response failed", err)
	}

	quote, err := parseProduct(barcode, body)
	if err != nil {
		if !errors.Is(err, ErrProductNotFound) {
			o.logger.Warn("openfoodfacts response rejected",
				slog.String("barcode", barcode),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}
	return quote, nil
}
