package model

import "time"

// Source says where a lookup answer came from.
type Source string

const (
	SourceDB       Source = "db"        // a previously logged FoodRecord
	SourceExternal Source = "external"  // the nutrition catalog, not persisted
	SourceNotFound Source = "not_found" // neither knows the barcode
)

// NutrientProfile is the per-100 g nutrition of a product.
// Every field is optional: catalogs often know calories but not macros.
type NutrientProfile struct {
	CaloriesPer100g *float64 `json:"calories_per_100g"`
	ProteinsPer100g *float64 `json:"proteins_per_100g"`
	CarbsPer100g    *float64 `json:"carbs_per_100g"`
	FatsPer100g     *float64 `json:"fats_per_100g"`
}

// NutrientQuote is a transient lookup answer. It has no id, owner or grams
// and is never written to the database by itself.
type NutrientQuote struct {
	Barcode string  `json:"barcode"`
	Name    *string `json:"name"`
	NutrientProfile
}

// FoodRecord is one persisted consumption event: an owner ate Grams of the
// product identified by Barcode at ScannedAt. Records are append-only.
//
// The nutrient profile is a snapshot taken when the record was written, so
// totals over old records do not change if the catalog data changes later.
type FoodRecord struct {
	ID        string    `json:"id"`
	Barcode   string    `json:"barcode"`
	Name      *string   `json:"name"`
	UserID    string    `json:"user_id"`
	Grams     float64   `json:"grams"`
	ScannedAt time.Time `json:"scanned_at"`
	NutrientProfile
}

// Quote returns the lookup view of a stored record.
func (r *FoodRecord) Quote() *NutrientQuote {
	return &NutrientQuote{
		Barcode:         r.Barcode,
		Name:            r.Name,
		NutrientProfile: r.NutrientProfile,
	}
}

// AggregateTotals is computed on read and never persisted.
// Calories and macros are grams/100 * value_per_100g summed over records,
// with a missing per-100 g value counting as zero.
type AggregateTotals struct {
	Grams    float64 `json:"grams"`
	Calories float64 `json:"calories"`
	Proteins float64 `json:"proteins"`
	Carbs    float64 `json:"carbs"`
	Fats     float64 `json:"fats"`
}

// TimeRange bounds an aggregation. Nil bounds are open; set bounds are
// inclusive on both ends.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}
