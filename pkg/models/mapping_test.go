package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRowSchema_MixedFieldForms(t *testing.T) {
	s, err := LoadRowSchema([]byte(`{
		"entity": "request",
		"fields": ["_id", {"name": "status", "type": "int"}, {"name": "sentTime", "type": "datetime"}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "request", s.Entity)
	assert.Equal(t, []string{"_id", "status", "sentTime"}, s.Names())
	assert.Equal(t, TypeInt, s.Fields[1].Type)
	assert.Equal(t, TypeDateTime, s.Fields[2].Type)
}

func TestLoadRowSchema_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":     `{"fields": []}`,
		"duplicate": `{"fields": ["a", "a"]}`,
		"unnamed":   `{"fields": [{"type": "int"}]}`,
		"bad type":  `{"fields": [{"name": "a", "type": "uuid"}]}`,
		"not json":  `fields: [a]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRowSchema([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestDefaultRequestSchema(t *testing.T) {
	s := DefaultRequestSchema()
	require.NoError(t, s.Validate())

	names := s.Names()
	assert.Len(t, names, 27)
	assert.Equal(t, "_id", names[0])
	assert.Contains(t, names, "requestDate")
}
