package nutrition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/insho/insho-api/internal/apperror"
	"github.com/insho/insho-api/internal/model"
)

// kJPerKcal converts kilojoules to kilocalories.
const kJPerKcal = 4.184

// offResponse is the part of an OpenFoodFacts v0 product document we read.
// Decoding into concrete types means a field of the wrong JSON type fails
// the whole parse instead of quietly turning into a missing value.
type offResponse struct {
	Status  *int        `json:"status"`
	Product *offProduct `json:"product"`
}

type offProduct struct {
	ProductName string        `json:"product_name"`
	Brands      string        `json:"brands"`
	GenericName string        `json:"generic_name"`
	Nutriments  offNutriments `json:"nutriments"`
}

type offNutriments struct {
	EnergyKcal nutriment `json:"energy-kcal_100g"`
	EnergyKJ   nutriment `json:"energy-kj_100g"`
	Energy     nutriment `json:"energy_100g"` // kJ by catalog convention
	Proteins   nutriment `json:"proteins_100g"`
	Carbs      nutriment `json:"carbohydrates_100g"`
	Fat        nutriment `json:"fat_100g"`
}

// nutriment is an optional per-100 g value. The catalog sends numbers, and
// occasionally numeric strings; null, "" and an absent key all mean
// "unknown". Anything else is a schema error.
type nutriment struct {
	value *float64
}

func (n *nutriment) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		n.value = &f
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("expected a number, got %s", b)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("expected a numeric string, got %q", s)
	}
	n.value = &f
	return nil
}

// parseProduct turns a catalog response body into a NutrientQuote.
//
// OUTCOMES:
//   - status != 1                          → ErrProductNotFound
//   - malformed JSON, wrong field types,
//     status 1 without a product, negative
//     or non-finite nutriments              → apperror.SourceUnavailable
//   - otherwise                            → the quote
func parseProduct(barcode string, body []byte) (*model.NutrientQuote, error) {
	var resp offResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperror.SourceUnavailable("nutrition catalog response did not match the expected schema", err)
	}
	if resp.Status == nil {
		return nil, apperror.SourceUnavailable("nutrition catalog response has no status",
			fmt.Errorf("missing status for barcode %s", barcode))
	}
	if *resp.Status != 1 {
		return nil, ErrProductNotFound
	}
	if resp.Product == nil {
		return nil, apperror.SourceUnavailable("nutrition catalog response has no product",
			fmt.Errorf("status 1 without product for barcode %s", barcode))
	}

	p := resp.Product
	n := p.Nutriments
	quote := &model.NutrientQuote{
		Barcode: barcode,
		Name:    firstNonEmpty(p.ProductName, p.Brands, p.GenericName),
		NutrientProfile: model.NutrientProfile{
			CaloriesPer100g: kcalPer100g(n),
			ProteinsPer100g: n.Proteins.value,
			CarbsPer100g:    n.Carbs.value,
			FatsPer100g:     n.Fat.value,
		},
	}

	if err := checkProfile(quote.NutrientProfile); err != nil {
		return nil, apperror.SourceUnavailable("nutrition catalog returned invalid nutrient values", err)
	}
	return quote, nil
}

// kcalPer100g prefers the kcal field and falls back to kJ.
func kcalPer100g(n offNutriments) *float64 {
	if n.EnergyKcal.value != nil {
		return n.EnergyKcal.value
	}
	for _, kj := range []*float64{n.EnergyKJ.value, n.Energy.value} {
		if kj != nil {
			kcal := *kj / kJPerKcal
			return &kcal
		}
	}
	return nil
}

func checkProfile(p model.NutrientProfile) error {
	fields := []struct {
		name  string
		value *float64
	}{
		{"energy", p.CaloriesPer100g},
		{"proteins_100g", p.ProteinsPer100g},
		{"carbohydrates_100g", p.CarbsPer100g},
		{"fat_100g", p.FatsPer100g},
	}
	for _, f := range fields {
		if v := f.value; v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s = %v", f.name, *v)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) *string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return &v
		}
	}
	return nil
}
