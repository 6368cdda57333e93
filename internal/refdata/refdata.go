// Package refdata loads the read-only reference tables skills consult during
// evaluation. Every table declares an explicit per-column schema and loading
// fails loudly on a type mismatch rather than guessing types cell by cell.
package refdata

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// Column types a schema may declare.
const (
	TypeString = "string"
	TypeFloat  = "float"
	TypeInt    = "int"
	TypeBool   = "bool"
)

// Schema maps column name to expected type for one table.
type Schema map[string]string

// DefaultKey names the fallback row a table may carry. When present, Row
// returns it for keys with no entry of their own instead of failing.
const DefaultKey = "default"

// Row is one typed record of a reference table.
type Row map[string]interface{}

// Table is an immutable keyed reference table. The first schema column is
// the key column.
type Table struct {
	name    string
	keyCol  string
	rows    map[string]Row
	hasDflt bool
}

// Float reads a float column. The schema guarantees the type at load time.
func (r Row) Float(col string) float64 {
	v, _ := r[col].(float64)
	return v
}

// Int reads an int column.
func (r Row) Int(col string) int {
	v, _ := r[col].(int)
	return v
}

// Bool reads a bool column.
func (r Row) Bool(col string) bool {
	v, _ := r[col].(bool)
	return v
}

// String reads a string column.
func (r Row) String(col string) string {
	v, _ := r[col].(string)
	return v
}

// Row returns the typed row for key. A missing key is a hard error unless
// the table carries a "default" row.
func (t *Table) Row(key string) (Row, error) {
	if row, ok := t.rows[key]; ok {
		return row, nil
	}
	if t.hasDflt {
		return t.rows[DefaultKey], nil
	}
	return nil, fmt.Errorf("reference table %s: no entry for %q and no default row", t.name, key)
}

// Has reports whether key has its own entry (the default row does not count).
func (t *Table) Has(key string) bool {
	_, ok := t.rows[key]
	return ok && key != DefaultKey
}

// Len returns the number of rows, including any default row.
func (t *Table) Len() int {
	return len(t.rows)
}

// LoadCSV parses a CSV table whose header row must match the schema exactly.
// The key column is keyCol; every cell is coerced per the schema and a
// mismatch fails the whole load.
func LoadCSV(name string, data []byte, keyCol string, schema Schema) (*Table, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reference table %s: parse csv: %w", name, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("reference table %s: need a header and at least one row", name)
	}

	header := records[0]
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[h] = i
	}
	for col := range schema {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("reference table %s: schema column %q missing from header", name, col)
		}
	}
	if _, ok := colIdx[keyCol]; !ok {
		return nil, fmt.Errorf("reference table %s: key column %q missing from header", name, keyCol)
	}

	t := &Table{name: name, keyCol: keyCol, rows: make(map[string]Row, len(records)-1)}
	for line, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("reference table %s: line %d has %d cells, want %d", name, line+2, len(rec), len(header))
		}
		row := make(Row, len(schema))
		for col, typ := range schema {
			cell := rec[colIdx[col]]
			v, err := coerce(cell, typ)
			if err != nil {
				return nil, fmt.Errorf("reference table %s: line %d column %s: %w", name, line+2, col, err)
			}
			row[col] = v
		}
		key := rec[colIdx[keyCol]]
		if _, dup := t.rows[key]; dup {
			return nil, fmt.Errorf("reference table %s: duplicate key %q", name, key)
		}
		t.rows[key] = row
	}
	_, t.hasDflt = t.rows[DefaultKey]
	return t, nil
}

// LoadJSON parses a JSON object-of-objects table: {"key": {col: value, ...}}.
// Values are coerced per the schema with the same loud-failure policy as CSV.
func LoadJSON(name string, data []byte, schema Schema) (*Table, error) {
	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("reference table %s: parse json: %w", name, err)
	}
	t := &Table{name: name, rows: make(map[string]Row, len(raw))}
	for key, cells := range raw {
		row := make(Row, len(schema))
		for col, typ := range schema {
			cell, ok := cells[col]
			if !ok {
				return nil, fmt.Errorf("reference table %s: key %q missing column %s", name, key, col)
			}
			v, err := coerceJSON(cell, typ)
			if err != nil {
				return nil, fmt.Errorf("reference table %s: key %q column %s: %w", name, key, col, err)
			}
			row[col] = v
		}
		t.rows[key] = row
	}
	_, t.hasDflt = t.rows[DefaultKey]
	return t, nil
}

// MustLoadCSV is LoadCSV for embedded tables wired at package init.
func MustLoadCSV(name string, data []byte, keyCol string, schema Schema) *Table {
	t, err := LoadCSV(name, data, keyCol, schema)
	if err != nil {
		panic(err)
	}
	return t
}

func coerce(cell, typ string) (interface{}, error) {
	switch typ {
	case TypeString:
		return cell, nil
	case TypeFloat:
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a float", cell)
		}
		return v, nil
	case TypeInt:
		v, err := strconv.Atoi(cell)
		if err != nil {
			return nil, fmt.Errorf("%q is not an int", cell)
		}
		return v, nil
	case TypeBool:
		v, err := strconv.ParseBool(cell)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", cell)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown schema type %q", typ)
	}
}

func coerceJSON(cell interface{}, typ string) (interface{}, error) {
	switch typ {
	case TypeString:
		v, ok := cell.(string)
		if !ok {
			return nil, fmt.Errorf("%v is not a string", cell)
		}
		return v, nil
	case TypeFloat:
		v, ok := cell.(float64)
		if !ok {
			return nil, fmt.Errorf("%v is not a number", cell)
		}
		return v, nil
	case TypeInt:
		v, ok := cell.(float64)
		if !ok || v != float64(int(v)) {
			return nil, fmt.Errorf("%v is not an integer", cell)
		}
		return int(v), nil
	case TypeBool:
		v, ok := cell.(bool)
		if !ok {
			return nil, fmt.Errorf("%v is not a bool", cell)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown schema type %q", typ)
	}
}
