// Package testutil builds synthetic container files for tests.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/INLOpen/avromr/container"
	"github.com/INLOpen/avromr/core"
	"github.com/INLOpen/avromr/sys"
	"github.com/hamba/avro/v2"
)

// PairSchema is a two-field record used throughout the tests.
const PairSchema = `{"type":"record","name":"Pair","fields":[{"name":"key","type":"string"},{"name":"value","type":"long"}]}`

// Pair matches PairSchema.
type Pair struct {
	Key   string `avro:"key"`
	Value int64  `avro:"value"`
}

// LargeTestsEnabled returns true when AVROMR_LARGE_TESTS asks for the
// slower, bigger fixtures. Default is false.
func LargeTestsEnabled() bool {
	v := strings.TrimSpace(os.Getenv("AVROMR_LARGE_TESTS"))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// MustSchema parses text or fails the test.
func MustSchema(t testing.TB, text string) avro.Schema {
	t.Helper()
	schema, err := core.ParseSchema("test", text)
	if err != nil {
		t.Fatalf("failed to parse test schema: %v", err)
	}
	return schema
}

// Pairs returns n records keyed "key-00000", "key-00001", ...
func Pairs(n int) []Pair {
	out := make([]Pair, n)
	for i := range out {
		out[i] = Pair{Key: fmt.Sprintf("key-%05d", i), Value: int64(i)}
	}
	return out
}

// Container describes a file produced by WriteContainer.
type Container struct {
	Name   string
	Size   int64
	Header container.Header
	Blocks []container.BlockInfo
}

// WriteContainer writes records into a new container file called name on
// fs, with blockRecords records per block.
func WriteContainer[T any](t testing.TB, fs *sys.Mem, name string, codec core.CompressionType, blockRecords int, records []T) Container {
	t.Helper()
	var buf bytes.Buffer
	w, err := container.NewWriter(&buf, container.WriterOptions{
		Schema:       MustSchema(t, PairSchema),
		Codec:        codec,
		BlockRecords: blockRecords,
	})
	if err != nil {
		t.Fatalf("failed to create container writer: %v", err)
	}
	for i := range records {
		if err := w.Append(&records[i]); err != nil {
			t.Fatalf("failed to append record %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close container writer: %v", err)
	}
	fs.WriteFile(name, buf.Bytes())
	return Container{Name: name, Size: int64(buf.Len()), Header: w.Header(), Blocks: w.Blocks()}
}

// CutSplits cuts a file at the given offsets, which must be ascending.
func CutSplits(name string, size int64, cuts ...int64) []core.Split {
	var splits []core.Split
	var off int64
	for _, c := range cuts {
		splits = append(splits, core.Split{Filename: name, Offset: off, Length: c - off})
		off = c
	}
	return append(splits, core.Split{Filename: name, Offset: off, Length: size - off})
}
