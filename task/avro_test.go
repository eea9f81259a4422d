package task

import (
	"testing"

	"github.com/INLOpen/avromr/config"
	"github.com/INLOpen/avromr/core"
	"github.com/hamba/avro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keySchemaText   = `"string"`
	valueSchemaText = `{"type":"record","name":"User","fields":[{"name":"name","type":"string"},{"name":"age","type":"int"}]}`
)

type emitted struct {
	key, value any
}

// fakeHost records emitted pairs and serves fixed input bytes.
type fakeHost struct {
	key, value []byte
	reducer    bool
	conf       *config.JobConf
	emitted    []emitted
}

func (h *fakeHost) InputKey() []byte   { return h.key }
func (h *fakeHost) InputValue() []byte { return h.value }
func (h *fakeHost) IsReducer() bool    { return h.reducer }
func (h *fakeHost) JobConf() *config.JobConf {
	return h.conf
}

func (h *fakeHost) Emit(key, value any) error {
	h.emitted = append(h.emitted, emitted{key: key, value: value})
	return nil
}

var _ Context = (*fakeHost)(nil)

func jobConf(props map[string]string) *config.JobConf {
	base := map[string]string{
		config.InputKeySchemaKey:    keySchemaText,
		config.InputValueSchemaKey:  valueSchemaText,
		config.OutputKeySchemaKey:   keySchemaText,
		config.OutputValueSchemaKey: valueSchemaText,
	}
	for k, v := range props {
		base[k] = v
	}
	return config.NewJobConf(base)
}

func mustMarshal(t *testing.T, schemaText string, v any) []byte {
	t.Helper()
	schema, err := core.ParseSchema("test", schemaText)
	require.NoError(t, err)
	data, err := avro.Marshal(schema, v)
	require.NoError(t, err)
	return data
}

func TestAvroContext_EncodeOnEmitDecision(t *testing.T) {
	testCases := []struct {
		name       string
		outputMode string
		reduces    string
		reducer    bool
		want       bool
	}{
		{name: "reducer encodes", outputMode: "KV", reduces: "2", reducer: true, want: true},
		{name: "map-only mapper encodes", outputMode: "V", reduces: "0", reducer: false, want: true},
		{name: "mapper with reducers passes through", outputMode: "KV", reduces: "3", reducer: false, want: false},
		{name: "no output mode never encodes", outputMode: "NONE", reduces: "0", reducer: true, want: false},
		{name: "absent output mode never encodes", outputMode: "", reduces: "0", reducer: true, want: false},
		{name: "lowercase token", outputMode: "k", reduces: "1", reducer: true, want: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			props := map[string]string{config.ReduceTasksKey: tc.reduces}
			if tc.outputMode != "" {
				props[config.OutputModeKey] = tc.outputMode
			}
			host := &fakeHost{reducer: tc.reducer}
			ctx := NewAvroContext(host, nil)
			require.NoError(t, ctx.Configure(jobConf(props)))
			assert.Equal(t, tc.want, ctx.EncodesOnEmit())
			if tc.reducer {
				assert.Equal(t, core.RoleReducer, ctx.Role())
			} else {
				assert.Equal(t, core.RoleMapper, ctx.Role())
			}
		})
	}
}

func TestAvroContext_EmitKV(t *testing.T) {
	host := &fakeHost{reducer: true}
	ctx := NewAvroContext(host, nil)
	require.NoError(t, ctx.Configure(jobConf(map[string]string{
		config.OutputModeKey:  "KV",
		config.ReduceTasksKey: "1",
	})))

	user := map[string]any{"name": "alice", "age": 30}
	require.NoError(t, ctx.Emit("alice", user))
	require.Len(t, host.emitted, 1)

	assert.Equal(t, mustMarshal(t, keySchemaText, "alice"), host.emitted[0].key)
	assert.Equal(t, mustMarshal(t, valueSchemaText, user), host.emitted[0].value)
}

func TestAvroContext_EmitKeyOnly(t *testing.T) {
	host := &fakeHost{}
	ctx := NewAvroContext(host, nil)
	require.NoError(t, ctx.Configure(jobConf(map[string]string{
		config.OutputModeKey: "K",
	})))
	require.True(t, ctx.EncodesOnEmit(), "no reducers configured")

	require.NoError(t, ctx.Emit("bob", 42))
	require.Len(t, host.emitted, 1)
	assert.Equal(t, mustMarshal(t, keySchemaText, "bob"), host.emitted[0].key)
	assert.Equal(t, 42, host.emitted[0].value, "value role is not encoded")
}

func TestAvroContext_ShuffleOutputIsNotEncoded(t *testing.T) {
	host := &fakeHost{}
	ctx := NewAvroContext(host, nil)
	require.NoError(t, ctx.Configure(jobConf(map[string]string{
		config.OutputModeKey:  "KV",
		config.ReduceTasksKey: "4",
	})))

	raw := []byte{0x01, 0x02}
	require.NoError(t, ctx.Emit(raw, "opaque"))
	require.Len(t, host.emitted, 1)
	assert.Equal(t, raw, host.emitted[0].key)
	assert.Equal(t, "opaque", host.emitted[0].value)
}

func TestAvroContext_EmitEncodingError(t *testing.T) {
	host := &fakeHost{reducer: true}
	ctx := NewAvroContext(host, nil)
	require.NoError(t, ctx.Configure(jobConf(map[string]string{config.OutputModeKey: "V"})))

	err := ctx.Emit("k", "not a user")
	require.Error(t, err)
	assert.True(t, core.IsEncodingError(err))
	assert.Empty(t, host.emitted, "nothing reaches the host on failure")
}

func TestAvroContext_Input(t *testing.T) {
	user := map[string]any{"name": "carol", "age": 7}
	host := &fakeHost{
		key:   mustMarshal(t, keySchemaText, "carol"),
		value: mustMarshal(t, valueSchemaText, user),
	}

	t.Run("KV decodes both", func(t *testing.T) {
		ctx := NewAvroContext(host, nil)
		require.NoError(t, ctx.Configure(jobConf(map[string]string{config.InputModeKey: "kv"})))

		key, err := ctx.InputKey()
		require.NoError(t, err)
		assert.Equal(t, "carol", key)

		value, err := ctx.InputValue()
		require.NoError(t, err)
		assert.Equal(t, user, value)
	})

	t.Run("V leaves key raw", func(t *testing.T) {
		ctx := NewAvroContext(host, nil)
		require.NoError(t, ctx.Configure(jobConf(map[string]string{config.InputModeKey: "V"})))

		key, err := ctx.InputKey()
		require.NoError(t, err)
		assert.Equal(t, host.key, key)

		value, err := ctx.InputValue()
		require.NoError(t, err)
		assert.Equal(t, user, value)
	})

	t.Run("unconfigured passes through", func(t *testing.T) {
		ctx := NewAvroContext(host, nil)
		value, err := ctx.InputValue()
		require.NoError(t, err)
		assert.Equal(t, host.value, value)
	})

}

func TestAvroContext_MalformedInput(t *testing.T) {
	full := mustMarshal(t, valueSchemaText, map[string]any{"name": "carol", "age": 7})

	testCases := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: []byte{}},
		{name: "cut inside a field", raw: full[:2]},
		{name: "cut at a field boundary", raw: full[:len(full)-1]},
		{name: "trailing bytes", raw: append(append([]byte{}, full...), 0x02)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			host := &fakeHost{key: mustMarshal(t, keySchemaText, "carol"), value: tc.raw}
			ctx := NewAvroContext(host, nil)
			require.NoError(t, ctx.Configure(jobConf(map[string]string{config.InputModeKey: "V"})))

			value, err := ctx.InputValue()
			require.Error(t, err)
			assert.Nil(t, value)
			assert.True(t, core.IsDecodingError(err))
			assert.Contains(t, err.Error(), "value")
		})
	}

	t.Run("empty payload of a null schema", func(t *testing.T) {
		host := &fakeHost{value: []byte{}}
		ctx := NewAvroContext(host, nil)
		require.NoError(t, ctx.Configure(jobConf(map[string]string{
			config.InputModeKey:        "V",
			config.InputValueSchemaKey: `"null"`,
		})))

		value, err := ctx.InputValue()
		require.NoError(t, err)
		assert.Nil(t, value)
	})
}

func TestAvroContext_ConfigureErrors(t *testing.T) {
	testCases := []struct {
		name        string
		props       map[string]string
		isConfig    bool
		isSchemaErr bool
	}{
		{name: "bad input token", props: map[string]string{config.InputModeKey: "KEY"}, isConfig: true},
		{name: "bad output token", props: map[string]string{config.OutputModeKey: "X"}, isConfig: true},
		{name: "bad reduce count", props: map[string]string{config.ReduceTasksKey: "two"}, isConfig: true},
		{name: "malformed schema", props: map[string]string{config.InputModeKey: "K", config.InputKeySchemaKey: "{nope"}, isSchemaErr: true},
		{name: "empty schema", props: map[string]string{config.OutputModeKey: "V", config.OutputValueSchemaKey: "  "}, isSchemaErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := NewAvroContext(&fakeHost{}, nil)
			err := ctx.Configure(jobConf(tc.props))
			require.Error(t, err)
			assert.Equal(t, tc.isConfig, core.IsConfigurationError(err))
			assert.Equal(t, tc.isSchemaErr, core.IsSchemaParseError(err))
		})
	}

	t.Run("missing schema", func(t *testing.T) {
		ctx := NewAvroContext(&fakeHost{}, nil)
		err := ctx.Configure(config.NewJobConf(map[string]string{config.OutputModeKey: "KV"}))
		require.Error(t, err)
		assert.True(t, core.IsConfigurationError(err))
		assert.Contains(t, err.Error(), config.OutputKeySchemaKey)
	})

	t.Run("failed configure keeps previous state", func(t *testing.T) {
		host := &fakeHost{reducer: true}
		ctx := NewAvroContext(host, nil)
		require.NoError(t, ctx.Configure(jobConf(map[string]string{config.OutputModeKey: "K"})))
		require.Error(t, ctx.Configure(jobConf(map[string]string{config.OutputModeKey: "K", config.InputModeKey: "bogus"})))

		assert.True(t, ctx.EncodesOnEmit())
		assert.Equal(t, core.IOKey, ctx.OutputMode())
		require.NoError(t, ctx.Emit("k", nil))
		assert.Equal(t, mustMarshal(t, keySchemaText, "k"), host.emitted[0].key)
	})
}

func TestAvroContext_Delegation(t *testing.T) {
	conf := config.NewJobConf(map[string]string{"a": "b"})
	host := &fakeHost{reducer: true, conf: conf}
	ctx := NewAvroContext(host, nil)
	assert.True(t, ctx.IsReducer())
	assert.Same(t, conf, ctx.JobConf())
	assert.Equal(t, core.IONone, ctx.InputMode())
}
