package registry

import "fmt"

// ConfigurationError reports a malformed registry declaration.
// It is fatal at startup: the sync engine must not run with a registry that
// fails validation.
type ConfigurationError struct {
	// Entity names the offending entity, if identifiable.
	Entity string

	// Field names the offending column or attribute, if identifiable.
	Field string

	// Message describes the violation.
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	switch {
	case e.Entity != "" && e.Field != "":
		return fmt.Sprintf("registry: entity %q field %q: %s", e.Entity, e.Field, e.Message)
	case e.Entity != "":
		return fmt.Sprintf("registry: entity %q: %s", e.Entity, e.Message)
	default:
		return fmt.Sprintf("registry: %s", e.Message)
	}
}

// reservedColumns are the bookkeeping columns the local store appends to
// every entity table; a declaration may not redefine them.
var reservedColumns = map[string]bool{
	"id":               true,
	"remote_id":        true,
	"sync_status":      true,
	"last_modified_at": true,
}

// validate checks the full entity set:
//   - entity names are unique and non-empty
//   - column names do not collide with the store's bookkeeping columns
//   - column types are from the closed set
//   - every foreign-key column is a declared integer column
//   - every foreign-key target exists in the set
//   - the natural key, when declared, is a declared column
//   - rank is a valid topological order of the foreign-key graph
//     (a referenced entity has strictly lower rank than its referrer),
//     which also rules out cycles and self-references
func validate(entities []Entity) error {
	if len(entities) == 0 {
		return &ConfigurationError{Message: "no entities declared"}
	}

	ranks := make(map[string]int, len(entities))
	for _, e := range entities {
		if e.Name == "" {
			return &ConfigurationError{Message: "entity with empty name"}
		}
		if _, dup := ranks[e.Name]; dup {
			return &ConfigurationError{Entity: e.Name, Message: "duplicate entity name"}
		}
		ranks[e.Name] = e.Rank
	}

	for _, e := range entities {
		if len(e.Columns) == 0 {
			return &ConfigurationError{Entity: e.Name, Message: "no columns declared"}
		}

		seen := make(map[string]bool, len(e.Columns))
		for _, c := range e.Columns {
			if c.Name == "" {
				return &ConfigurationError{Entity: e.Name, Message: "column with empty name"}
			}
			if reservedColumns[c.Name] {
				return &ConfigurationError{
					Entity:  e.Name,
					Field:   c.Name,
					Message: "column name is reserved for sync bookkeeping",
				}
			}
			if seen[c.Name] {
				return &ConfigurationError{Entity: e.Name, Field: c.Name, Message: "duplicate column"}
			}
			seen[c.Name] = true
			if !validColumnTypes[c.Type] {
				return &ConfigurationError{
					Entity:  e.Name,
					Field:   c.Name,
					Message: fmt.Sprintf("unknown column type %q", c.Type),
				}
			}
		}

		if e.NaturalKey != "" && !seen[e.NaturalKey] {
			return &ConfigurationError{
				Entity:  e.Name,
				Field:   e.NaturalKey,
				Message: "natural key is not a declared column",
			}
		}

		for col, target := range e.ForeignKeys {
			c, ok := e.Column(col)
			if !ok {
				return &ConfigurationError{
					Entity:  e.Name,
					Field:   col,
					Message: "foreign-key column is not declared",
				}
			}
			if c.Type != ColumnInteger {
				return &ConfigurationError{
					Entity:  e.Name,
					Field:   col,
					Message: "foreign-key column must be an integer column",
				}
			}

			targetRank, ok := ranks[target]
			if !ok {
				return &ConfigurationError{
					Entity:  e.Name,
					Field:   col,
					Message: fmt.Sprintf("foreign key references unknown entity %q", target),
				}
			}
			if targetRank >= e.Rank {
				return &ConfigurationError{
					Entity: e.Name,
					Field:  col,
					Message: fmt.Sprintf(
						"rank %d is not above referenced entity %q (rank %d); rank must be a topological order of the foreign-key graph",
						e.Rank, target, targetRank),
				}
			}
		}
	}

	return nil
}
