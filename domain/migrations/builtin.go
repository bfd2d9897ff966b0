package migrations

import (
	"reflect"

	"tattoo-datasync/domain/records"
)

// DefaultPricing is added to artists that have no pricing information.
func DefaultPricing() map[string]interface{} {
	return map[string]interface{}{
		"currency":      "GBP",
		"hourlyRate":    100,
		"minimumCharge": 50,
	}
}

// BuiltIn returns the migrations shipped with the tool, oldest first.
func BuiltIn() []Migration {
	return []Migration{
		{
			Name:        "add-default-pricing",
			Version:     "1.1.0",
			Description: "Add default pricing to artists without pricing information",
			AppliesTo:   []records.EntityType{records.TypeArtist},
			Transform:   addDefaultPricing,
			Inverse:     removeDefaultPricing,
		},
		{
			Name:        "normalize-style-tags",
			Version:     "1.2.0",
			Description: "Canonicalize style tags onto the style vocabulary and drop duplicates",
			AppliesTo:   []records.EntityType{records.TypeArtist, records.TypeStudio},
			Transform:   normalizeStyleTags,
		},
		{
			Name:        "backfill-geohash",
			Version:     "1.3.0",
			Description: "Compute missing or stale geohashes from coordinates",
			AppliesTo:   []records.EntityType{records.TypeArtist, records.TypeStudio},
			Transform:   backfillGeohash,
		},
	}
}

func addDefaultPricing(r *records.Record) error {
	if len(r.Pricing) == 0 {
		r.Pricing = DefaultPricing()
	}
	return nil
}

// removeDefaultPricing only removes pricing that still equals the default;
// values edited since the migration are kept.
func removeDefaultPricing(r *records.Record) error {
	if pricingEquals(r.Pricing, DefaultPricing()) {
		r.Pricing = nil
	}
	return nil
}

func pricingEquals(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, bv := range b {
		av, ok := a[k]
		if !ok {
			return false
		}
		if toFloat(av) != nil && toFloat(bv) != nil {
			if *toFloat(av) != *toFloat(bv) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}

// toFloat normalizes numbers so values read back from either store compare
// equal to literals.
func toFloat(v interface{}) *float64 {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case float64:
		f = n
	case float32:
		f = float64(n)
	default:
		return nil
	}
	return &f
}

func normalizeStyleTags(r *records.Record) error {
	if r.Styles == nil {
		return nil
	}
	normalized := records.NormalizeStyles(r.Styles)
	if !reflect.DeepEqual(normalized, r.Styles) {
		r.Styles = normalized
	}
	return nil
}

func backfillGeohash(r *records.Record) error {
	if gh := r.ComputeGeohash(); gh != "" && gh != r.Geohash {
		r.Geohash = gh
	}
	return nil
}
