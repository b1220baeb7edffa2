package etl

import (
	"encoding/json"
	"fmt"
)

// Row is a projected document: one value per schema column, in schema order.
type Row struct {
	Columns []string
	Values  []interface{}
	// InsertID is the source document id, used by sinks that de-duplicate.
	InsertID string
}

func (r Row) Len() int {
	return len(r.Columns)
}

// Get returns the value of the named column.
func (r Row) Get(name string) (interface{}, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row keyed by column name.
func (r Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// flatValue turns nested documents and arrays into JSON text so they fit a
// scalar column. Scalars pass through.
func flatValue(v interface{}) interface{} {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return v
	}
}
