package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tattoo-datasync/domain/records"
)

func noop(*records.Record) error { return nil }

func TestCatalog_Register(t *testing.T) {
	c := NewCatalog()

	require.NoError(t, c.Register(Migration{Name: "first", Version: "1.0.0", Transform: noop}))
	require.NoError(t, c.Register(Migration{Name: "second", Version: "1.0.1", Transform: noop}))

	err := c.Register(Migration{Name: "first", Version: "2.0.0", Transform: noop})
	assert.ErrorContains(t, err, "already registered")

	assert.Error(t, c.Register(Migration{Name: "", Version: "1.0.0", Transform: noop}))
	assert.Error(t, c.Register(Migration{Name: "bad-version", Version: "v1", Transform: noop}))
	assert.Error(t, c.Register(Migration{Name: "no-transform", Version: "1.0.0"}))

	names := []string{}
	for _, m := range c.List() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"first", "second"}, names)

	m, ok := c.Get("second")
	require.True(t, ok)
	assert.Equal(t, "1.0.1", m.Version)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	list := c.List()
	require.Len(t, list, 3)
	assert.Equal(t, "add-default-pricing", list[0].Name)
	assert.Equal(t, "normalize-style-tags", list[1].Name)
	assert.Equal(t, "backfill-geohash", list[2].Name)
	assert.True(t, list[0].HasInverse())
	assert.False(t, list[1].HasInverse())
}

func TestMigration_Applies(t *testing.T) {
	m := Migration{AppliesTo: []records.EntityType{records.TypeArtist}}
	assert.True(t, m.Applies(records.TypeArtist))
	assert.False(t, m.Applies(records.TypeStyle))
	assert.True(t, Migration{}.Applies(records.TypeStyle))
}

func TestBuiltInTransforms_Idempotent(t *testing.T) {
	for _, m := range BuiltIn() {
		t.Run(m.Name, func(t *testing.T) {
			r := &records.Record{
				EntityType: records.TypeArtist,
				ID:         "a1",
				Name:       "Artist",
				Styles:     []string{"Watercolor", "watercolour", "Fine Line"},
			}
			lat, lon := 51.5074, -0.1278
			r.Latitude, r.Longitude = &lat, &lon

			once := r.Clone()
			require.NoError(t, m.Transform(once))
			twice := once.Clone()
			require.NoError(t, m.Transform(twice))

			assert.Equal(t, once, twice)
		})
	}
}

func TestAddDefaultPricing(t *testing.T) {
	without := &records.Record{EntityType: records.TypeArtist, ID: "a1"}
	with := &records.Record{EntityType: records.TypeArtist, ID: "a2", Pricing: map[string]interface{}{"hourlyRate": 180}}

	require.NoError(t, addDefaultPricing(without))
	require.NoError(t, addDefaultPricing(with))

	assert.Equal(t, DefaultPricing(), without.Pricing)
	assert.Equal(t, map[string]interface{}{"hourlyRate": 180}, with.Pricing)
}

func TestRemoveDefaultPricing(t *testing.T) {
	// Values read back from a store come back as float64.
	stored := &records.Record{Pricing: map[string]interface{}{
		"currency": "GBP", "hourlyRate": float64(100), "minimumCharge": float64(50),
	}}
	edited := &records.Record{Pricing: map[string]interface{}{
		"currency": "GBP", "hourlyRate": float64(140), "minimumCharge": float64(50),
	}}

	require.NoError(t, removeDefaultPricing(stored))
	require.NoError(t, removeDefaultPricing(edited))

	assert.Nil(t, stored.Pricing)
	assert.NotNil(t, edited.Pricing)
}

func TestNormalizeStyleTags(t *testing.T) {
	r := &records.Record{Styles: []string{"Neo-Traditional", "neo_traditional", "Irezumi"}}

	require.NoError(t, normalizeStyleTags(r))

	assert.Equal(t, []string{"neo_traditional", "japanese"}, r.Styles)
}

func TestBackfillGeohash(t *testing.T) {
	r := &records.Record{Geohash: "stale"}
	lat, lon := 40.7128, -74.0060
	r.Latitude, r.Longitude = &lat, &lon

	require.NoError(t, backfillGeohash(r))

	assert.Len(t, r.Geohash, records.GeohashPrecision)
	assert.NotEqual(t, "stale", r.Geohash)

	noLocation := &records.Record{}
	require.NoError(t, backfillGeohash(noLocation))
	assert.Empty(t, noLocation.Geohash)
}
