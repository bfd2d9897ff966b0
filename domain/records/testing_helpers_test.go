package records

func newArtist(id string, styles ...string) *Record {
	r := &Record{
		EntityType:  TypeArtist,
		ID:          id,
		Name:        "Artist " + id,
		Styles:      styles,
		StudioID:    "s1",
		Description: "custom work",
		Pricing:     map[string]interface{}{"hourlyRate": 120, "currency": "GBP"},
		Experience:  map[string]interface{}{"years": 8, "apprenticeship": true},
		CreatedAt:   "2024-01-01T00:00:00Z",
		UpdatedAt:   "2024-01-02T00:00:00Z",
	}
	r.SetLocation(51.5074, -0.1278)
	r.DeriveKeys()
	return r
}
