// Package task adapts a host task's key/value stream to Avro datums.
package task

import (
	"github.com/INLOpen/avromr/config"
)

// Context is what the host task runtime offers a mapper or reducer.
type Context interface {
	// InputKey returns the raw bytes of the current input key.
	InputKey() []byte
	// InputValue returns the raw bytes of the current input value.
	InputValue() []byte
	// Emit forwards a key/value pair to the host.
	Emit(key, value any) error
	IsReducer() bool
	JobConf() *config.JobConf
}
