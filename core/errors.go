package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAlignmentNotFound is returned when no sync marker exists between the
	// requested offset and the end of the file.
	ErrAlignmentNotFound = errors.New("sync marker not found before end of file")
	// ErrCorrupted is returned when container bytes do not match the format.
	ErrCorrupted = errors.New("container data is corrupted")
	// ErrClosed is returned by operations on a closed reader or writer.
	ErrClosed = errors.New("container is closed")

	errEmptySchema = errors.New("schema text is empty")
)

// ConfigurationError reports an unusable job configuration: an unknown I/O
// mode token or a schema missing for an activated mode.
type ConfigurationError struct {
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Key, e.Message)
}

// SchemaParseError reports malformed schema text.
type SchemaParseError struct {
	Key string
	Err error
}

func (e *SchemaParseError) Error() string {
	return fmt.Sprintf("failed to parse schema %s: %v", e.Key, e.Err)
}

func (e *SchemaParseError) Unwrap() error { return e.Err }

// DecodingError reports a payload that does not conform to its schema.
type DecodingError struct {
	Role string
	Err  error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Role, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// EncodingError reports a value that cannot be encoded with its schema.
type EncodingError struct {
	Role string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to encode %s: %v", e.Role, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

type UnsupportedTypeError struct {
	Message string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type value: %s", e.Message)
}

// IsConfigurationError checks if an error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var configurationError *ConfigurationError
	return errors.As(err, &configurationError)
}

func IsSchemaParseError(err error) bool {
	var schemaParseError *SchemaParseError
	return errors.As(err, &schemaParseError)
}

func IsDecodingError(err error) bool {
	var decodingError *DecodingError
	return errors.As(err, &decodingError)
}

func IsEncodingError(err error) bool {
	var encodingError *EncodingError
	return errors.As(err, &encodingError)
}

func IsUnsupportedError(err error) bool {
	var unsupportedError *UnsupportedTypeError
	return errors.As(err, &unsupportedError)
}
