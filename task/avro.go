package task

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/avromr/config"
	"github.com/INLOpen/avromr/core"
	"github.com/hamba/avro/v2"
)

var errTrailingBytes = errors.New("unread bytes after datum")

type decodeFunc func(raw []byte) (any, error)

type encodeFunc func(v any) (any, error)

func identityDecode(raw []byte) (any, error) { return raw, nil }

func identityEncode(v any) (any, error) { return v, nil }

// AvroContext wraps a host Context so that input keys and values are
// decoded from Avro and emitted pairs are encoded to Avro, each only for
// the roles the job's I/O modes switch on.
//
// Emitted pairs are encoded only when they leave the job: in a reducer, or
// in the mapper of a job without reducers. Mapper output headed for the
// shuffle is forwarded untouched.
type AvroContext struct {
	host Context

	decodeKey   decodeFunc
	decodeValue decodeFunc
	encodeKey   encodeFunc
	encodeValue encodeFunc

	inputMode    core.IOMode
	outputMode   core.IOMode
	role         core.TaskRole
	encodeOnEmit bool

	logger *slog.Logger
}

// NewAvroContext returns a context that passes everything through until
// Configure is called.
func NewAvroContext(host Context, logger *slog.Logger) *AvroContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvroContext{
		host:        host,
		decodeKey:   identityDecode,
		decodeValue: identityDecode,
		encodeKey:   identityEncode,
		encodeValue: identityEncode,
		logger:      logger.With("component", "AvroContext"),
	}
}

// Configure reads the I/O modes and schemas from conf. On error the context
// keeps its previous configuration.
func (c *AvroContext) Configure(conf *config.JobConf) error {
	inputMode, err := conf.IOMode(config.InputModeKey)
	if err != nil {
		return err
	}
	outputMode, err := conf.IOMode(config.OutputModeKey)
	if err != nil {
		return err
	}

	inSchemas, err := loadSchemas(conf, inputMode, config.InputKeySchemaKey, config.InputValueSchemaKey)
	if err != nil {
		return err
	}
	outSchemas, err := loadSchemas(conf, outputMode, config.OutputKeySchemaKey, config.OutputValueSchemaKey)
	if err != nil {
		return err
	}

	mapOnly, err := conf.IsMapOnly()
	if err != nil {
		return err
	}

	role := core.RoleMapper
	if c.host.IsReducer() {
		role = core.RoleReducer
	}

	c.decodeKey = decoderFor("key", inSchemas.Key)
	c.decodeValue = decoderFor("value", inSchemas.Value)
	c.encodeKey = encoderFor("key", outSchemas.Key)
	c.encodeValue = encoderFor("value", outSchemas.Value)
	c.inputMode = inputMode
	c.outputMode = outputMode
	c.role = role
	c.encodeOnEmit = outputMode != core.IONone && (role == core.RoleReducer || mapOnly)

	c.logger.Debug("Configured Avro I/O",
		"role", role.String(),
		"input_mode", inputMode.String(),
		"output_mode", outputMode.String(),
		"map_only", mapOnly,
		"encode_on_emit", c.encodeOnEmit)
	return nil
}

// loadSchemas parses the schema of every role mode activates.
func loadSchemas(conf *config.JobConf, mode core.IOMode, keyKey, valueKey string) (core.SchemaSet, error) {
	var set core.SchemaSet
	if mode.Key() {
		text, ok := conf.Lookup(keyKey)
		if !ok {
			return set, &core.ConfigurationError{Key: keyKey, Message: fmt.Sprintf("schema required for mode %s", mode)}
		}
		schema, err := core.ParseSchema(keyKey, text)
		if err != nil {
			return set, err
		}
		set.Key = schema
	}
	if mode.Value() {
		text, ok := conf.Lookup(valueKey)
		if !ok {
			return set, &core.ConfigurationError{Key: valueKey, Message: fmt.Sprintf("schema required for mode %s", mode)}
		}
		schema, err := core.ParseSchema(valueKey, text)
		if err != nil {
			return set, err
		}
		set.Value = schema
	}
	return set, set.Validate(mode)
}

func decoderFor(role string, schema avro.Schema) decodeFunc {
	if schema == nil {
		return identityDecode
	}
	return func(raw []byte) (any, error) {
		// avro.Unmarshal treats running out of input as success, so a
		// payload cut at a field boundary would decode to nil.
		r := avro.NewReader(nil, 0).Reset(raw)
		var v any
		r.ReadVal(schema, &v)
		if err := r.Error; err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, &core.DecodingError{Role: role, Err: err}
		}
		if r.Peek(); r.Error == nil {
			return nil, &core.DecodingError{Role: role, Err: errTrailingBytes}
		}
		return v, nil
	}
}

func encoderFor(role string, schema avro.Schema) encodeFunc {
	if schema == nil {
		return identityEncode
	}
	return func(v any) (any, error) {
		data, err := avro.Marshal(schema, v)
		if err != nil {
			return nil, &core.EncodingError{Role: role, Err: err}
		}
		return data, nil
	}
}

// InputKey returns the current input key, decoded when the input mode
// covers keys and as raw bytes otherwise.
func (c *AvroContext) InputKey() (any, error) {
	return c.decodeKey(c.host.InputKey())
}

// InputValue returns the current input value, decoded when the input mode
// covers values and as raw bytes otherwise.
func (c *AvroContext) InputValue() (any, error) {
	return c.decodeValue(c.host.InputValue())
}

// Emit encodes the roles the output mode covers, if this task's output
// leaves the job, and forwards the pair to the host.
func (c *AvroContext) Emit(key, value any) error {
	if c.encodeOnEmit {
		var err error
		if key, err = c.encodeKey(key); err != nil {
			return err
		}
		if value, err = c.encodeValue(value); err != nil {
			return err
		}
	}
	return c.host.Emit(key, value)
}

// EncodesOnEmit reports whether Emit encodes pairs.
func (c *AvroContext) EncodesOnEmit() bool { return c.encodeOnEmit }

func (c *AvroContext) InputMode() core.IOMode { return c.inputMode }

func (c *AvroContext) OutputMode() core.IOMode { return c.outputMode }

func (c *AvroContext) Role() core.TaskRole { return c.role }

// IsReducer and JobConf delegate to the host.
func (c *AvroContext) IsReducer() bool { return c.host.IsReducer() }

func (c *AvroContext) JobConf() *config.JobConf { return c.host.JobConf() }
