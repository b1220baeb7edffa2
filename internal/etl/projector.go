package etl

import (
	"github.com/BartekS5/requestsync/pkg/models"
	"github.com/BartekS5/requestsync/pkg/utils"
)

// Project copies the values of source onto schema, in schema order. Keys
// outside the schema are dropped; schema fields missing from source are nil.
func Project(schema []string, source map[string]interface{}) Row {
	values := make([]interface{}, len(schema))
	for i, name := range schema {
		values[i] = source[name]
	}
	return Row{Columns: schema, Values: values}
}

// Projector maps source documents onto a RowSchema. On top of Project it
// writes the normalized document id into the id column and applies the
// declared field types. A value that cannot be converted is kept as is so the
// sink can reject the row instead of the value being silently lost.
type Projector struct {
	schema  *models.RowSchema
	columns []string
	idField string
}

func NewProjector(schema *models.RowSchema, idField string) *Projector {
	return &Projector{
		schema:  schema,
		columns: schema.Names(),
		idField: idField,
	}
}

func (p *Projector) Columns() []string {
	return p.columns
}

func (p *Projector) Project(doc Document) Row {
	source := doc.Fields
	if _, ok := source[p.idField]; ok || doc.ID != "" {
		source = make(map[string]interface{}, len(doc.Fields)+1)
		for k, v := range doc.Fields {
			source[k] = v
		}
		source[p.idField] = doc.ID
	}

	row := Project(p.columns, source)
	for i, f := range p.schema.Fields {
		if f.Type == "" || row.Values[i] == nil {
			continue
		}
		if converted, err := utils.ConvertField(row.Values[i], f); err == nil {
			row.Values[i] = converted
		}
	}
	row.InsertID = doc.ID
	return row
}
