package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// domainRegistry versions the hash input format so a future layout change
// cannot collide with hashes computed today.
const domainRegistry = "tillsync/registry/v1"

// Hash returns a stable content hash of the registry description. Two
// processes holding structurally identical registries compute the same hash
// regardless of declaration order; it is logged at startup and lets an
// operator spot registry drift between installations.
func (r *Registry) Hash() (string, error) {
	entities := make([]any, 0, len(r.ordered))
	for _, e := range r.ordered {
		entities = append(entities, describeEntity(e))
	}

	canonical, err := marshalCanonical(map[string]any{"entities": entities})
	if err != nil {
		return "", fmt.Errorf("registry hash: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(domainRegistry))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// describeEntity flattens an entity into hashable primitives.
func describeEntity(e Entity) map[string]any {
	cols := make([]any, 0, len(e.Columns))
	for _, c := range e.Columns {
		cols = append(cols, map[string]any{
			"name":    c.Name,
			"type":    string(c.Type),
			"notNull": c.NotNull,
		})
	}

	fks := make([]any, 0, len(e.ForeignKeys))
	for _, col := range sortedKeys(e.ForeignKeys) {
		fks = append(fks, map[string]any{
			"column": col,
			"target": e.ForeignKeys[col],
		})
	}

	return map[string]any{
		"name":        e.Name,
		"rank":        e.Rank,
		"naturalKey":  e.NaturalKey,
		"columns":     cols,
		"foreignKeys": fks,
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
