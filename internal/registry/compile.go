package registry

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// CompileFile reads a CUE entity declaration file and compiles it into a
// validated Registry. Any load, parse, or validation failure is returned as
// a *ConfigurationError so callers can treat it as fatal at startup.
//
// The expected shape is a top-level "entities" struct, one field per entity:
//
//	entities: {
//		products: {
//			rank:       2
//			naturalKey: "barcode"
//			columns: {
//				description: {type: "text", notNull: true}
//				price:       {type: "integer", notNull: true}
//				group_id:    {type: "integer"}
//			}
//			foreignKeys: {group_id: "product_groups"}
//		}
//	}
func CompileFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("read %s: %v", path, err)}
	}
	return Compile(data)
}

// Compile compiles CUE source bytes into a validated Registry.
func Compile(src []byte) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src)
	if err := v.Err(); err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("compile declaration: %v", err)}
	}

	entitiesVal := v.LookupPath(cue.ParsePath("entities"))
	if !entitiesVal.Exists() {
		return nil, &ConfigurationError{Message: `declaration has no top-level "entities" struct`}
	}

	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("entities is not a struct: %v", err)}
	}

	var entities []Entity
	for iter.Next() {
		name := iter.Selector().Unquoted()
		entity, err := compileEntity(name, iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	return New(entities)
}

// compileEntity parses one entity struct.
func compileEntity(name string, v cue.Value) (Entity, error) {
	e := Entity{Name: name}

	rankVal := v.LookupPath(cue.ParsePath("rank"))
	if !rankVal.Exists() {
		return Entity{}, &ConfigurationError{Entity: name, Field: "rank", Message: "rank is required"}
	}
	rank, err := rankVal.Int64()
	if err != nil {
		return Entity{}, &ConfigurationError{Entity: name, Field: "rank", Message: fmt.Sprintf("rank must be an integer: %v", err)}
	}
	e.Rank = int(rank)

	if nkVal := v.LookupPath(cue.ParsePath("naturalKey")); nkVal.Exists() {
		nk, err := nkVal.String()
		if err != nil {
			return Entity{}, &ConfigurationError{Entity: name, Field: "naturalKey", Message: fmt.Sprintf("naturalKey must be a string: %v", err)}
		}
		e.NaturalKey = nk
	}

	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return Entity{}, &ConfigurationError{Entity: name, Field: "columns", Message: "columns are required"}
	}
	colIter, err := colsVal.Fields()
	if err != nil {
		return Entity{}, &ConfigurationError{Entity: name, Field: "columns", Message: fmt.Sprintf("columns is not a struct: %v", err)}
	}
	for colIter.Next() {
		col, err := compileColumn(name, colIter.Selector().Unquoted(), colIter.Value())
		if err != nil {
			return Entity{}, err
		}
		e.Columns = append(e.Columns, col)
	}

	if fkVal := v.LookupPath(cue.ParsePath("foreignKeys")); fkVal.Exists() {
		fkIter, err := fkVal.Fields()
		if err != nil {
			return Entity{}, &ConfigurationError{Entity: name, Field: "foreignKeys", Message: fmt.Sprintf("foreignKeys is not a struct: %v", err)}
		}
		e.ForeignKeys = make(map[string]string)
		for fkIter.Next() {
			target, err := fkIter.Value().String()
			if err != nil {
				return Entity{}, &ConfigurationError{
					Entity:  name,
					Field:   fkIter.Selector().Unquoted(),
					Message: fmt.Sprintf("foreign-key target must be a string: %v", err),
				}
			}
			e.ForeignKeys[fkIter.Selector().Unquoted()] = target
		}
	}

	return e, nil
}

// compileColumn parses one column struct.
func compileColumn(entity, name string, v cue.Value) (Column, error) {
	col := Column{Name: name}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return Column{}, &ConfigurationError{Entity: entity, Field: name, Message: "column type is required"}
	}
	typ, err := typeVal.String()
	if err != nil {
		return Column{}, &ConfigurationError{Entity: entity, Field: name, Message: fmt.Sprintf("column type must be a string: %v", err)}
	}
	col.Type = ColumnType(typ)

	if nnVal := v.LookupPath(cue.ParsePath("notNull")); nnVal.Exists() {
		notNull, err := nnVal.Bool()
		if err != nil {
			return Column{}, &ConfigurationError{Entity: entity, Field: name, Message: fmt.Sprintf("notNull must be a bool: %v", err)}
		}
		col.NotNull = notNull
	}

	return col, nil
}
