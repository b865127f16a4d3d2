package registry

import "sort"

// ColumnType enumerates the storable column types.
type ColumnType string

const (
	ColumnText      ColumnType = "text"
	ColumnInteger   ColumnType = "integer"
	ColumnReal      ColumnType = "real"
	ColumnBool      ColumnType = "bool"
	ColumnTimestamp ColumnType = "timestamp"
)

// validColumnTypes is the closed set accepted by the compiler.
var validColumnTypes = map[ColumnType]bool{
	ColumnText:      true,
	ColumnInteger:   true,
	ColumnReal:      true,
	ColumnBool:      true,
	ColumnTimestamp: true,
}

// Column is one typed field of an entity.
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool
}

// Entity describes one synchronized table.
//
// Rank orders entities for sync: entities are processed in ascending rank so
// a referenced entity is always processed before its referrers. New validates
// that rank is a topological order of the foreign-key graph.
type Entity struct {
	// Name is the table name, identical on both sides of the boundary.
	Name string

	// Columns are the declared business columns, in declaration order.
	// Bookkeeping columns (local id, remote id, sync status, last modified)
	// are not listed here; the store adds them.
	Columns []Column

	// ForeignKeys maps a local column name to the referenced entity name.
	// Foreign-key columns hold local row identifiers in the local store and
	// are rewritten to remote identifiers (and back) at the boundary.
	ForeignKeys map[string]string

	// NaturalKey is the business-unique column used as the remote upsert
	// conflict target (e.g. a product barcode). Empty means the entity has
	// no natural key and creates use plain insert semantics.
	NaturalKey string

	// Rank is the declared topological rank.
	Rank int
}

// Column returns the named column and whether it is declared.
func (e Entity) Column(name string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Registry is the immutable set of all synchronized entities.
type Registry struct {
	ordered []Entity
	byName  map[string]int
}

// New builds a Registry from entity declarations, validating the whole set.
// The returned registry holds entities sorted by ascending rank (ties broken
// by name for determinism). Returns a *ConfigurationError if the declarations
// are malformed.
func New(entities []Entity) (*Registry, error) {
	if err := validate(entities); err != nil {
		return nil, err
	}

	ordered := make([]Entity, len(entities))
	copy(ordered, entities)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Rank != ordered[j].Rank {
			return ordered[i].Rank < ordered[j].Rank
		}
		return ordered[i].Name < ordered[j].Name
	})

	byName := make(map[string]int, len(ordered))
	for i, e := range ordered {
		byName[e.Name] = i
	}

	return &Registry{ordered: ordered, byName: byName}, nil
}

// EntitiesInDependencyOrder returns all entities in ascending rank order,
// parents before referrers. The returned slice is a copy.
func (r *Registry) EntitiesInDependencyOrder() []Entity {
	out := make([]Entity, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Lookup returns the named entity and whether it exists.
func (r *Registry) Lookup(name string) (Entity, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Entity{}, false
	}
	return r.ordered[i], true
}

// Len returns the number of registered entities.
func (r *Registry) Len() int {
	return len(r.ordered)
}
