package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/INLOpen/avromr/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	yamlContent := `
logging:
  level: debug
tracing:
  enabled: true
  protocol: http
job:
  avromr.output.mode: kv
  mapreduce.task.partition: 3
  mapreduce.task.output.dir: /tmp/out
  avromr.output.value.schema: |
    {"type": "record", "name": "User", "fields": [{"name": "name", "type": "string"}]}
`
	cfg, err := Load(strings.NewReader(yamlContent))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "http", cfg.Tracing.Protocol)

	assert.Equal(t, "kv", cfg.Job.Get(OutputModeKey))
	assert.Equal(t, "/tmp/out", cfg.Job.Get(TaskOutputDirKey))
	partition, err := cfg.Job.GetInt(TaskPartitionKey, -1)
	require.NoError(t, err)
	assert.Equal(t, 3, partition)
	assert.Contains(t, cfg.Job.Get(OutputValueSchemaKey), `"name": "User"`)

	// Defaults not overridden by the file.
	assert.Equal(t, "NONE", cfg.Job.Get(InputModeKey))
	assert.Equal(t, "null", cfg.Job.Get(OutputCodecKey))
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, "localhost:4317", cfg.Tracing.Endpoint)
}

func TestLoad_EmptyReader(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Tracing.Enabled)

	cfg, err = Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "NONE", cfg.Job.Get(OutputModeKey))
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(strings.NewReader("logging: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config yaml")

	_, err = Load(strings.NewReader("job:\n  nested:\n    a: b\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a scalar")
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "job.yaml")
		require.NoError(t, os.WriteFile(path, []byte("job:\n  mapreduce.job.reduces: 4\n"), 0o644))
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		n, err := cfg.Job.ReduceTasks()
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
}

func TestJobConfIOMode(t *testing.T) {
	jc := NewJobConf(map[string]string{
		InputModeKey:  "v",
		OutputModeKey: "KEYS",
	})

	mode, err := jc.IOMode(InputModeKey)
	require.NoError(t, err)
	assert.Equal(t, core.IOValue, mode)

	_, err = jc.IOMode(OutputModeKey)
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))

	mode, err = NewJobConf(nil).IOMode(OutputModeKey)
	require.NoError(t, err)
	assert.Equal(t, core.IONone, mode, "absent mode key means NONE")
}

func TestJobConfMapOnly(t *testing.T) {
	testCases := []struct {
		name    string
		props   map[string]string
		mapOnly bool
		wantErr bool
	}{
		{name: "unset", props: nil, mapOnly: true},
		{name: "zero reducers", props: map[string]string{ReduceTasksKey: "0"}, mapOnly: true},
		{name: "reducers", props: map[string]string{ReduceTasksKey: "2"}, mapOnly: false},
		{name: "legacy key wins", props: map[string]string{ReduceTasksKey: "2", LegacyReduceTasksKey: "0"}, mapOnly: true},
		{name: "legacy key alone", props: map[string]string{LegacyReduceTasksKey: "1"}, mapOnly: false},
		{name: "malformed", props: map[string]string{ReduceTasksKey: "many"}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mapOnly, err := NewJobConf(tc.props).IsMapOnly()
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsConfigurationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.mapOnly, mapOnly)
		})
	}
}

func TestJobConfAccessors(t *testing.T) {
	jc := NewJobConf(map[string]string{"b": "2"})
	jc.Set("a", "1")

	assert.True(t, jc.Has("a"))
	assert.False(t, jc.Has("c"))
	v, ok := jc.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Equal(t, []string{"a", "b"}, jc.Keys())

	n, err := jc.GetInt("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	jc.Set("size", " 8589934592 ")
	big, err := jc.GetInt64("size", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(8589934592), big)

	jc.Set("size", "lots")
	_, err = jc.GetInt64("size", 0)
	assert.True(t, core.IsConfigurationError(err))
}
