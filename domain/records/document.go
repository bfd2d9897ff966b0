package records

// GeoPoint is the search index geo_point shape.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Document is a record reshaped for the search index. It carries every
// fingerprinted field so the record can be rebuilt from it.
type Document struct {
	ID          string     `json:"id"`
	EntityType  EntityType `json:"entityType,omitempty"`
	Name        string     `json:"name"`
	Styles      []string   `json:"styles,omitempty"`
	StudioID    string     `json:"studioId,omitempty"`
	Location    *GeoPoint  `json:"location,omitempty"`
	Geohash     string     `json:"geohash,omitempty"`
	Description string     `json:"description,omitempty"`

	Availability map[string]interface{} `json:"availability,omitempty"`
	Pricing      map[string]interface{} `json:"pricing,omitempty"`
	Experience   map[string]interface{} `json:"experience,omitempty"`

	MigrationVersion string `json:"migrationVersion,omitempty"`
	SyncFingerprint  string `json:"syncFingerprint,omitempty"`
	LastSynced       string `json:"lastSynced,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

// ToDocument reshapes a record for the search index.
func ToDocument(r *Record) *Document {
	c := r.Clone()
	d := &Document{
		ID:               c.ID,
		EntityType:       c.EntityType,
		Name:             c.Name,
		Styles:           c.Styles,
		StudioID:         c.StudioID,
		Geohash:          c.Geohash,
		Description:      c.Description,
		Availability:     c.Availability,
		Pricing:          c.Pricing,
		Experience:       c.Experience,
		MigrationVersion: c.MigrationVersion,
		SyncFingerprint:  c.SyncFingerprint,
		LastSynced:       c.LastSynced,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	if c.HasLocation() {
		d.Location = &GeoPoint{Lat: *c.Latitude, Lon: *c.Longitude}
	}
	return d
}

// FromDocument rebuilds a record, including its keys and GSI fields, from a
// search document. Documents without an entity type are artists.
func FromDocument(d *Document) *Record {
	t := d.EntityType
	if t == "" {
		t = TypeArtist
	}
	r := &Record{
		EntityType:       t,
		ID:               d.ID,
		Name:             d.Name,
		StudioID:         d.StudioID,
		Geohash:          d.Geohash,
		Description:      d.Description,
		MigrationVersion: d.MigrationVersion,
		SyncFingerprint:  d.SyncFingerprint,
		LastSynced:       d.LastSynced,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if d.Styles != nil {
		r.Styles = append([]string(nil), d.Styles...)
	}
	if d.Location != nil {
		lat, lon := d.Location.Lat, d.Location.Lon
		r.Latitude, r.Longitude = &lat, &lon
	}
	r.Availability = cloneMap(d.Availability)
	r.Pricing = cloneMap(d.Pricing)
	r.Experience = cloneMap(d.Experience)
	r.DeriveKeys()
	return r
}
