// Package records defines the directory entities shared by the record store
// and the search index, and the conversions between their two shapes.
package records

import (
	"fmt"
	"strings"

	"github.com/mmcloughlin/geohash"
)

// EntityType discriminates the kinds of record kept in the table.
type EntityType string

const (
	TypeArtist EntityType = "ARTIST"
	TypeStudio EntityType = "STUDIO"
	TypeStyle  EntityType = "STYLE"
)

// AllTypes lists every entity type in export order.
var AllTypes = []EntityType{TypeArtist, TypeStudio, TypeStyle}

const (
	SortKeyProfile  = "PROFILE"
	SortKeyMetadata = "METADATA"

	// GeohashPrecision is the precision of the geohash stored on records.
	GeohashPrecision = 7
	// studioCellPrecision groups studios into coarse cells on the GSI.
	studioCellPrecision = 4
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case TypeArtist, TypeStudio, TypeStyle:
		return true
	}
	return false
}

// Searchable reports whether records of this type are mirrored into the
// search index.
func (t EntityType) Searchable() bool {
	return t == TypeArtist
}

// Prefix is the partition key prefix for the type, e.g. "ARTIST#".
func (t EntityType) Prefix() string {
	return string(t) + "#"
}

// SortKey is the fixed sort key used by every record of the type.
func (t EntityType) SortKey() string {
	if t == TypeStyle {
		return SortKeyMetadata
	}
	return SortKeyProfile
}

// FileName is the export bundle file holding records of the type.
func (t EntityType) FileName() string {
	switch t {
	case TypeArtist:
		return "artists.json"
	case TypeStudio:
		return "studios.json"
	case TypeStyle:
		return "styles.json"
	}
	return strings.ToLower(string(t)) + ".json"
}

// Key is the primary key of a record.
type Key struct {
	PK string `dynamodbav:"PK" json:"PK"`
	SK string `dynamodbav:"SK" json:"SK"`
}

func (k Key) String() string {
	return k.PK + "/" + k.SK
}

// KeyFor builds the primary key of the record of type t with the given id.
func KeyFor(t EntityType, id string) Key {
	return Key{PK: t.Prefix() + id, SK: t.SortKey()}
}

// ParsePK splits a partition key into its entity type and id.
func ParsePK(pk string) (EntityType, string, error) {
	prefix, id, ok := strings.Cut(pk, "#")
	if !ok || id == "" {
		return "", "", fmt.Errorf("malformed partition key %q", pk)
	}
	t := EntityType(prefix)
	if !t.Valid() {
		return "", "", fmt.Errorf("unknown entity type in partition key %q", pk)
	}
	return t, id, nil
}

// Record is one directory entity as stored in the record store.
type Record struct {
	PK     string `dynamodbav:"PK" json:"PK"`
	SK     string `dynamodbav:"SK" json:"SK"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty" json:"gsi1pk,omitempty"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty" json:"gsi1sk,omitempty"`

	EntityType  EntityType `dynamodbav:"entityType" json:"entityType" validate:"required,entitytype"`
	ID          string     `dynamodbav:"id" json:"id" validate:"required,max=128"`
	Name        string     `dynamodbav:"name" json:"name" validate:"required,max=256"`
	Styles      []string   `dynamodbav:"styles,omitempty" json:"styles,omitempty" validate:"omitempty,max=22,dive,tattoostyle"`
	StudioID    string     `dynamodbav:"studioId,omitempty" json:"studioId,omitempty"`
	Latitude    *float64   `dynamodbav:"latitude,omitempty" json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64   `dynamodbav:"longitude,omitempty" json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Geohash     string     `dynamodbav:"geohash,omitempty" json:"geohash,omitempty"`
	Description string     `dynamodbav:"description,omitempty" json:"description,omitempty"`

	Availability map[string]interface{} `dynamodbav:"availability,omitempty" json:"availability,omitempty"`
	Pricing      map[string]interface{} `dynamodbav:"pricing,omitempty" json:"pricing,omitempty"`
	Experience   map[string]interface{} `dynamodbav:"experience,omitempty" json:"experience,omitempty"`

	MigrationVersion string `dynamodbav:"migrationVersion,omitempty" json:"migrationVersion,omitempty"`
	SyncFingerprint  string `dynamodbav:"syncFingerprint,omitempty" json:"syncFingerprint,omitempty"`
	LastSynced       string `dynamodbav:"lastSynced,omitempty" json:"lastSynced,omitempty"`
	CreatedAt        string `dynamodbav:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt        string `dynamodbav:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Key returns the primary key stored on the record.
func (r *Record) Key() Key {
	return Key{PK: r.PK, SK: r.SK}
}

// HasLocation reports whether both coordinates are set.
func (r *Record) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// SetLocation sets the coordinates and recomputes the geohash.
func (r *Record) SetLocation(lat, lon float64) {
	r.Latitude = &lat
	r.Longitude = &lon
	r.Geohash = geohash.EncodeWithPrecision(lat, lon, GeohashPrecision)
}

// ComputeGeohash returns the geohash for the record's coordinates, or "" when
// it has none.
func (r *Record) ComputeGeohash() string {
	if !r.HasLocation() {
		return ""
	}
	return geohash.EncodeWithPrecision(*r.Latitude, *r.Longitude, GeohashPrecision)
}

// DeriveKeys recomputes the primary key and the GSI1 fields from the
// record's type, id, styles and geohash.
func (r *Record) DeriveKeys() {
	k := KeyFor(r.EntityType, r.ID)
	r.PK, r.SK = k.PK, k.SK

	switch r.EntityType {
	case TypeArtist:
		r.GSI1PK, r.GSI1SK = "", ""
		if len(r.Styles) > 0 {
			r.GSI1PK = "STYLE#" + r.Styles[0]
			r.GSI1SK = fmt.Sprintf("GEOHASH#%s#ARTIST#%s", r.Geohash, r.ID)
		}
	case TypeStudio:
		r.GSI1PK, r.GSI1SK = "", ""
		if r.Geohash != "" {
			cell := r.Geohash
			if len(cell) > studioCellPrecision {
				cell = cell[:studioCellPrecision]
			}
			r.GSI1PK = "GEOHASH#" + cell
			r.GSI1SK = "STUDIO#" + r.ID
		}
	case TypeStyle:
		r.GSI1PK = "STYLE"
		r.GSI1SK = "STYLE#" + r.ID
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Styles != nil {
		c.Styles = append([]string(nil), r.Styles...)
	}
	if r.Latitude != nil {
		lat := *r.Latitude
		c.Latitude = &lat
	}
	if r.Longitude != nil {
		lon := *r.Longitude
		c.Longitude = &lon
	}
	c.Availability = cloneMap(r.Availability)
	c.Pricing = cloneMap(r.Pricing)
	c.Experience = cloneMap(r.Experience)
	return &c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// GroupByType partitions records by entity type, preserving order.
func GroupByType(recs []*Record) map[EntityType][]*Record {
	out := make(map[EntityType][]*Record, len(AllTypes))
	for _, r := range recs {
		out[r.EntityType] = append(out[r.EntityType], r)
	}
	return out
}
