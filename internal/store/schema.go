package store

import (
	"fmt"
	"strings"

	"github.com/tillsync/tillsync/internal/registry"
)

// columnSQLTypes maps registry column types to SQLite column types.
var columnSQLTypes = map[registry.ColumnType]string{
	registry.ColumnText:      "TEXT",
	registry.ColumnInteger:   "INTEGER",
	registry.ColumnReal:      "REAL",
	registry.ColumnBool:      "BOOLEAN",
	registry.ColumnTimestamp: "TIMESTAMP",
}

// buildSchema renders the full DDL for a registry: one table per entity with
// the bookkeeping columns appended, plus the id_map and sync_state tables.
// All statements are IF NOT EXISTS so applying the schema is idempotent.
func buildSchema(reg *registry.Registry) string {
	var b strings.Builder

	for _, e := range reg.EntitiesInDependencyOrder() {
		b.WriteString(entityTableSQL(e))
		b.WriteString("\n")
	}

	b.WriteString(`CREATE TABLE IF NOT EXISTS id_map (
	entity TEXT NOT NULL,
	local_id INTEGER NOT NULL,
	remote_id TEXT NOT NULL,
	PRIMARY KEY (entity, local_id),
	UNIQUE (entity, remote_id)
);

CREATE TABLE IF NOT EXISTS sync_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`)

	return b.String()
}

// entityTableSQL renders the CREATE TABLE statement for one entity.
func entityTableSQL(e registry.Entity) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", e.Name)
	b.WriteString("\tid INTEGER PRIMARY KEY AUTOINCREMENT,\n")

	for _, c := range e.Columns {
		fmt.Fprintf(&b, "\t%s %s", c.Name, columnSQLTypes[c.Type])
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}

	b.WriteString("\tremote_id TEXT UNIQUE,\n")
	b.WriteString("\tsync_status TEXT NOT NULL DEFAULT 'pending_create'")
	b.WriteString(" CHECK(sync_status IN ('pending_create', 'pending_update', 'synced')),\n")
	b.WriteString("\tlast_modified_at TIMESTAMP NOT NULL")

	for _, col := range sortedFKColumns(e) {
		fmt.Fprintf(&b, ",\n\tFOREIGN KEY (%s) REFERENCES %s (id)", col, e.ForeignKeys[col])
	}

	b.WriteString("\n);\n")
	fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS idx_%s_sync_status ON %s(sync_status);\n", e.Name, e.Name)

	return b.String()
}

// sortedFKColumns returns the foreign-key columns in declaration order of the
// entity's columns, so generated DDL is deterministic.
func sortedFKColumns(e registry.Entity) []string {
	var cols []string
	for _, c := range e.Columns {
		if _, ok := e.ForeignKeys[c.Name]; ok {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// columnNames returns the declared business column names in order.
func columnNames(e registry.Entity) []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}
