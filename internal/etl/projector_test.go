package etl

import (
	"testing"
	"time"

	"github.com/BartekS5/requestsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestProject_DropsUnknownFields(t *testing.T) {
	row := Project([]string{"_id", "status", "sentTime"}, map[string]interface{}{
		"_id":      "x1",
		"status":   1,
		"sentTime": "2024-01-01",
		"extra":    "ignored",
	})

	assert.Equal(t, []string{"_id", "status", "sentTime"}, row.Columns)
	assert.Equal(t, map[string]interface{}{"_id": "x1", "status": 1, "sentTime": "2024-01-01"}, row.Map())
	_, ok := row.Get("extra")
	assert.False(t, ok)
}

func TestProject_Totality(t *testing.T) {
	schemas := [][]string{
		{},
		{"a"},
		{"a", "b", "c"},
		{"missing", "also_missing"},
	}
	sources := []map[string]interface{}{
		nil,
		{},
		{"a": 1},
		{"a": 1, "b": nil, "z": "extra", "y": []interface{}{1}},
	}

	for _, schema := range schemas {
		for _, source := range sources {
			row := Project(schema, source)
			require.Equal(t, len(schema), row.Len())
			require.Len(t, row.Values, len(schema))
			for i, name := range schema {
				assert.Equal(t, name, row.Columns[i])
				assert.Equal(t, source[name], row.Values[i])
			}
		}
	}
}

func TestProjector_NormalizesIDAndTypes(t *testing.T) {
	schema := &models.RowSchema{Fields: []models.FieldSpec{
		{Name: "_id"},
		{Name: "status", Type: models.TypeInt},
		{Name: "requestDate", Type: models.TypeDateTime},
		{Name: "credit", Type: models.TypeFloat},
		{Name: "route"},
	}}
	p := NewProjector(schema, "_id")
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	row := p.Project(Document{
		ID:        "65a1b2c3d4e5f60718293a4b",
		Timestamp: ts,
		Fields: map[string]interface{}{
			"_id":         primitive.NewObjectID(),
			"status":      "3",
			"requestDate": ts,
			"credit":      "not-a-number",
			"node_id":     7,
		},
	})

	assert.Equal(t, "65a1b2c3d4e5f60718293a4b", row.InsertID)
	assert.Equal(t, []interface{}{"65a1b2c3d4e5f60718293a4b", int64(3), ts, "not-a-number", nil}, row.Values)
}

func TestProjector_DoesNotMutateDocument(t *testing.T) {
	p := NewProjector(models.NewRowSchema("t", "_id", "status"), "_id")
	fields := map[string]interface{}{"_id": primitive.NewObjectID(), "status": 1}
	original := fields["_id"]

	p.Project(Document{ID: "abc", Fields: fields})

	assert.Equal(t, original, fields["_id"])
}
