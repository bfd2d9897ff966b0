// Package migrations holds the versioned record transforms applied by the
// migration runner.
package migrations

import (
	"fmt"
	"regexp"
	"sync"

	"tattoo-datasync/domain/records"
)

// TransformFunc rewrites a record in place. It receives a private copy, so
// it may mutate freely. A transform that leaves the record untouched marks
// it as already migrated.
type TransformFunc func(r *records.Record) error

// Migration is a named, versioned record transform.
type Migration struct {
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	Description string        `json:"description"`
	Transform   TransformFunc `json:"-"`
	// Inverse optionally undoes Transform on rollback. Without it rollback
	// only strips the version stamp.
	Inverse TransformFunc `json:"-"`
	// AppliesTo limits the migration to some entity types; empty means all.
	AppliesTo []records.EntityType `json:"appliesTo,omitempty"`
}

// HasInverse reports whether rollback can undo field changes.
func (m Migration) HasInverse() bool {
	return m.Inverse != nil
}

// Applies reports whether the migration should examine records of type t.
func (m Migration) Applies(t records.EntityType) bool {
	if len(m.AppliesTo) == 0 {
		return true
	}
	for _, at := range m.AppliesTo {
		if at == t {
			return true
		}
	}
	return false
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Catalog is an ordered, in-memory registry of migrations.
type Catalog struct {
	mu         sync.RWMutex
	migrations []Migration
	byName     map[string]int
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]int)}
}

// DefaultCatalog returns a catalog holding the built-in migrations.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, m := range BuiltIn() {
		if err := c.Register(m); err != nil {
			panic(err)
		}
	}
	return c
}

// Register appends m to the catalog. Names must be unique.
func (c *Catalog) Register(m Migration) error {
	if m.Name == "" {
		return fmt.Errorf("migration name is required")
	}
	if !versionPattern.MatchString(m.Version) {
		return fmt.Errorf("migration %s: version %q is not MAJOR.MINOR.PATCH", m.Name, m.Version)
	}
	if m.Transform == nil {
		return fmt.Errorf("migration %s: transform is required", m.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byName[m.Name]; exists {
		return fmt.Errorf("migration %s already registered", m.Name)
	}
	c.byName[m.Name] = len(c.migrations)
	c.migrations = append(c.migrations, m)
	return nil
}

// Get looks up a migration by name.
func (c *Catalog) Get(name string) (Migration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byName[name]
	if !ok {
		return Migration{}, false
	}
	return c.migrations[i], true
}

// List returns the migrations in registration order.
func (c *Catalog) List() []Migration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Migration(nil), c.migrations...)
}
