package config

import (
	"fmt"
	"os"

	"github.com/BartekS5/requestsync/pkg/models"
)

// LoadSchema returns the row schema stored at filePath, or the built-in
// request schema when filePath is empty.
func LoadSchema(filePath string) (*models.RowSchema, error) {
	if filePath == "" {
		return models.DefaultRequestSchema(), nil
	}

	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file '%s': %w", filePath, err)
	}

	schema, err := models.LoadRowSchema(bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema file '%s': %w", filePath, err)
	}
	return schema, nil
}
