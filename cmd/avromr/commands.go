package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/INLOpen/avromr/config"
	"github.com/INLOpen/avromr/container"
	"github.com/INLOpen/avromr/core"
	"github.com/INLOpen/avromr/iterator"
	"github.com/INLOpen/avromr/output"
	"github.com/INLOpen/avromr/sys"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// env carries what every command needs; tests swap in an in-memory
// filesystem and buffers.
type env struct {
	fs     sys.FileSystem
	conf   *config.JobConf
	stdin  io.Reader
	stdout io.Writer
	logger *slog.Logger
	tracer trace.Tracer
}

func (e *env) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "header":
		return e.header(args)
	case "cat":
		return e.cat(ctx, args)
	case "splits":
		return e.splits(ctx, args)
	case "write":
		return e.write(args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func oneFile(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one file argument, got %d", fs.NArg())
	}
	return fs.Arg(0), nil
}

type headerReport struct {
	Schema     json.RawMessage   `json:"schema"`
	Codec      string            `json:"codec"`
	Sync       string            `json:"sync"`
	HeaderSize int64             `json:"header_size"`
	Length     int64             `json:"length"`
	Meta       map[string]string `json:"meta,omitempty"`
	Blocks     []blockReport     `json:"blocks,omitempty"`
	Records    int64             `json:"records"`
}

type blockReport struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
	Count  int64 `json:"count"`
}

func (e *env) header(args []string) error {
	flags := newFlagSet("header")
	withBlocks := flags.Bool("blocks", false, "list every block")
	name, err := oneFile(flags, args)
	if err != nil {
		return err
	}

	f, err := e.fs.Open(name)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	r, err := container.NewReader(f, container.ReaderOptions{Logger: e.logger, Tracer: e.tracer})
	if err != nil {
		f.Close()
		return err
	}
	defer r.Close()

	h := r.Header()
	report := headerReport{
		Schema:     json.RawMessage(r.Schema().String()),
		Codec:      h.Codec(),
		Sync:       hex.EncodeToString(h.Sync[:]),
		HeaderSize: h.Size,
		Length:     r.Length(),
	}
	for k, v := range h.Meta {
		if k == core.MetaSchemaKey || k == core.MetaCodecKey {
			continue
		}
		if report.Meta == nil {
			report.Meta = make(map[string]string)
		}
		report.Meta[k] = string(v)
	}

	for {
		b, err := r.ReadBlock()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		report.Records += b.Count
		if *withBlocks {
			report.Blocks = append(report.Blocks, blockReport{Offset: b.Offset, Length: b.Length, Count: b.Count})
		}
	}

	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func (e *env) cat(ctx context.Context, args []string) error {
	flags := newFlagSet("cat")
	offset := flags.Int64("offset", 0, "split start offset")
	length := flags.Int64("length", -1, "split length in bytes (-1 for the rest of the file)")
	name, err := oneFile(flags, args)
	if err != nil {
		return err
	}

	split := core.Split{Filename: name, Offset: *offset, Length: *length}
	if split.Length < 0 {
		size, err := e.fs.Stat(name)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", name, err)
		}
		split.Length = max(size-split.Offset, 0)
	}

	it, err := iterator.Open[any](e.fs, split, iterator.Options{Logger: e.logger, Tracer: e.tracer})
	if err != nil {
		return err
	}
	defer it.Close()

	out := bufio.NewWriter(e.stdout)
	enc := json.NewEncoder(out)
	for _, rec := range it.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to print record: %w", err)
		}
	}
	if err := it.Error(); err != nil {
		return err
	}
	return out.Flush()
}

type splitReport struct {
	Split   string `json:"split"`
	Records int64  `json:"records"`
}

func (e *env) splits(ctx context.Context, args []string) error {
	flags := newFlagSet("splits")
	n := flags.Int("n", 4, "number of splits")
	window := flags.Int("window", core.DefaultWindowSize, "sync marker scan window in bytes")
	name, err := oneFile(flags, args)
	if err != nil {
		return err
	}
	if *n < 1 {
		return fmt.Errorf("split count must be positive, got %d", *n)
	}

	size, err := e.fs.Stat(name)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}
	splits := core.EvenSplits(name, size, *n)
	reports := make([]splitReport, len(splits))
	var total atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for i, split := range splits {
		g.Go(func() error {
			it, err := iterator.Open[any](e.fs, split, iterator.Options{
				Logger:     e.logger,
				Tracer:     e.tracer,
				WindowSize: *window,
			})
			if err != nil {
				return err
			}
			defer it.Close()

			var count int64
			for it.Next() {
				count++
				if count%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
			}
			if err := it.Error(); err != nil {
				return fmt.Errorf("split %s: %w", split, err)
			}
			reports[i] = splitReport{Split: split.String(), Records: count}
			total.Add(count)
			e.logger.Debug("Split done", "split", split.String(), "records", count)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(e.stdout)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(e.stdout, "total %d\n", total.Load())
	return err
}

func (e *env) write(args []string) (err error) {
	flags := newFlagSet("write")
	schemaPath := flags.String("schema", "", "path to the record schema (.avsc)")
	partition := flags.Int("partition", -1, "task partition (overrides "+config.TaskPartitionKey+")")
	outDir := flags.String("out", "", "output directory (overrides "+config.TaskOutputDirKey+")")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *schemaPath == "" {
		return errors.New("-schema is required")
	}

	schemaText, err := e.readFile(*schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	schema, err := core.ParseSchema(*schemaPath, string(schemaText))
	if err != nil {
		return err
	}

	conf := config.NewJobConf(nil)
	if e.conf != nil {
		for _, k := range e.conf.Keys() {
			conf.Set(k, e.conf.Get(k))
		}
	}
	if *partition >= 0 {
		conf.Set(config.TaskPartitionKey, strconv.Itoa(*partition))
	}
	if *outDir != "" {
		conf.Set(config.TaskOutputDirKey, *outDir)
	}

	w, err := output.NewPartitionWriter(conf, e.fs, schema, output.Options{Logger: e.logger, Tracer: e.tracer})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	dec := json.NewDecoder(e.stdin)
	dec.UseNumber()
	var n int
	for {
		var raw any
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("record %d: invalid JSON: %w", n, err)
		}
		rec, err := fromJSON(schema, raw)
		if err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		n++
	}
	e.logger.Info("Wrote output file", "path", w.Path(), "records", n)
	_, err = fmt.Fprintln(e.stdout, w.Path())
	return err
}

func (e *env) readFile(name string) ([]byte, error) {
	f, err := e.fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
