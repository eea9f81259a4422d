package core

import (
	"strings"

	"github.com/hamba/avro/v2"
)

// ParseSchema parses schema text with a private cache, so named types from
// one job never leak into another. key names the schema in errors.
func ParseSchema(key, text string) (avro.Schema, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &SchemaParseError{Key: key, Err: errEmptySchema}
	}
	schema, err := avro.ParseWithCache(text, "", &avro.SchemaCache{})
	if err != nil {
		return nil, &SchemaParseError{Key: key, Err: err}
	}
	return schema, nil
}
