package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/INLOpen/avromr/core"
	"gopkg.in/yaml.v3"
)

// Job configuration keys.
const (
	InputModeKey         = "avromr.input.mode"
	OutputModeKey        = "avromr.output.mode"
	InputKeySchemaKey    = "avromr.input.key.schema"
	InputValueSchemaKey  = "avromr.input.value.schema"
	OutputKeySchemaKey   = "avromr.output.key.schema"
	OutputValueSchemaKey = "avromr.output.value.schema"
	OutputCodecKey       = "avromr.output.codec"
	OutputBlockSizeKey   = "avromr.output.block.size"

	TaskPartitionKey = "mapreduce.task.partition"
	TaskOutputDirKey = "mapreduce.task.output.dir"
	ReduceTasksKey   = "mapreduce.job.reduces"
	// LegacyReduceTasksKey takes precedence over ReduceTasksKey when set.
	LegacyReduceTasksKey = "mapred.reduce.tasks"
)

// JobConf is the string property map a task receives from the job
// submitter. It is built once at task start and only read afterwards.
type JobConf struct {
	props map[string]string
}

// NewJobConf copies props into a new JobConf.
func NewJobConf(props map[string]string) *JobConf {
	jc := &JobConf{props: make(map[string]string, len(props))}
	for k, v := range props {
		jc.props[k] = v
	}
	return jc
}

func (jc *JobConf) Get(key string) string {
	return jc.props[key]
}

func (jc *JobConf) Lookup(key string) (string, bool) {
	v, ok := jc.props[key]
	return v, ok
}

func (jc *JobConf) Has(key string) bool {
	_, ok := jc.props[key]
	return ok
}

func (jc *JobConf) Set(key, value string) {
	if jc.props == nil {
		jc.props = make(map[string]string)
	}
	jc.props[key] = value
}

// Keys returns the property names in lexical order.
func (jc *JobConf) Keys() []string {
	keys := make([]string, 0, len(jc.props))
	for k := range jc.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetInt returns the integer value of key, or def when key is absent.
func (jc *JobConf) GetInt(key string, def int) (int, error) {
	v, ok := jc.props[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, &core.ConfigurationError{Key: key, Message: fmt.Sprintf("not an integer: %q", v)}
	}
	return n, nil
}

// GetInt64 is GetInt for 64-bit values such as byte sizes.
func (jc *JobConf) GetInt64(key string, def int64) (int64, error) {
	v, ok := jc.props[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, &core.ConfigurationError{Key: key, Message: fmt.Sprintf("not an integer: %q", v)}
	}
	return n, nil
}

// IOMode parses the mode stored under key. An absent key means NONE.
func (jc *JobConf) IOMode(key string) (core.IOMode, error) {
	v, ok := jc.props[key]
	if !ok {
		return core.IONone, nil
	}
	mode, err := core.ParseIOMode(v)
	if err != nil {
		return core.IONone, &core.ConfigurationError{Key: key, Message: err.Error()}
	}
	return mode, nil
}

// ReduceTasks returns the configured number of reduce tasks, 0 if unset.
func (jc *JobConf) ReduceTasks() (int, error) {
	def, err := jc.GetInt(ReduceTasksKey, 0)
	if err != nil {
		return 0, err
	}
	return jc.GetInt(LegacyReduceTasksKey, def)
}

// IsMapOnly reports whether the job has no reduce stage, which makes
// mapper output final output.
func (jc *JobConf) IsMapOnly() (bool, error) {
	n, err := jc.ReduceTasks()
	if err != nil {
		return false, err
	}
	return n < 1, nil
}

// UnmarshalYAML merges a YAML mapping of scalars into the existing
// properties, so defaults set before decoding survive.
func (jc *JobConf) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("job configuration must be a mapping, got line %d", node.Line)
	}
	if jc.props == nil {
		jc.props = make(map[string]string, len(node.Content)/2)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("job property %q must be a scalar (line %d)", k.Value, v.Line)
		}
		jc.props[k.Value] = v.Value
	}
	return nil
}
