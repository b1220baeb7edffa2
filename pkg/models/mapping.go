package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Supported FieldSpec types. An empty type copies the source value unchanged.
const (
	TypeString   = "string"
	TypeInt      = "int"
	TypeFloat    = "float"
	TypeBool     = "bool"
	TypeDateTime = "datetime"
)

// RowSchema is the ordered list of columns a source document is projected onto.
type RowSchema struct {
	Entity string      `json:"entity"`
	Fields []FieldSpec `json:"fields"`
}

// FieldSpec names a single column. In JSON it may be written either as a bare
// string ("status") or as an object ({"name": "status", "type": "int"}).
type FieldSpec struct {
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Format string `json:"format,omitempty"`
}

func (f *FieldSpec) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*f = FieldSpec{Name: name}
		return nil
	}
	type plain FieldSpec
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = FieldSpec(p)
	return nil
}

// Names returns the column names in schema order.
func (s *RowSchema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks that the schema has at least one field, that names are
// unique and non-empty, and that every type is supported.
func (s *RowSchema) Validate() error {
	if len(s.Fields) == 0 {
		return errors.New("schema has no fields")
	}
	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case "", TypeString, TypeInt, TypeFloat, TypeBool, TypeDateTime:
		default:
			return fmt.Errorf("field %q: unsupported type %q", f.Name, f.Type)
		}
	}
	return nil
}

// LoadRowSchema parses and validates a JSON row schema.
func LoadRowSchema(data []byte) (*RowSchema, error) {
	var s RowSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// NewRowSchema builds an untyped schema from column names.
func NewRowSchema(entity string, names ...string) *RowSchema {
	fields := make([]FieldSpec, len(names))
	for i, n := range names {
		fields[i] = FieldSpec{Name: n}
	}
	return &RowSchema{Entity: entity, Fields: fields}
}

// DefaultRequestSchema is the column layout of the replicated SMS request table.
func DefaultRequestSchema() *RowSchema {
	return NewRowSchema("request",
		"_id", "requestID", "telNum", "reportStatus", "sentTimeReport", "providerSMSID",
		"user_pid", "senderID", "smsc", "requestRoute", "campaign_name", "campaign_pid",
		"curRoute", "expiry", "isCopied", "requestDate", "userCountryCode", "requestUserid",
		"status", "userCredit", "isSingleRequest", "deliveryTime", "route", "credit",
		"oppri", "crcy", "node_id",
	)
}
