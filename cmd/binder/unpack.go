package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/binder"
)

func runUnpack(args []string, stdout io.Writer) error {
	var (
		common commonFlags
		output string
		jobs   int
	)
	flags := pflag.NewFlagSet("unpack", pflag.ContinueOnError)
	common.register(flags)
	flags.StringVarP(&output, "output", "o", "", "directory to unpack into (required)")
	flags.IntVarP(&jobs, "jobs", "j", runtime.GOMAXPROCS(0), "number of files written concurrently")
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("unpack: expected one input file, got %d", flags.NArg())
	}
	if output == "" {
		return fmt.Errorf("unpack: --output is required")
	}
	input := flags.Arg(0)
	logger := common.logger()

	m, files, err := readContainer(input, common.data, binder.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := m.addFiles(files); err != nil {
		return fmt.Errorf("unpack: %w", err)
	}
	if err := writePayloads(context.Background(), output, m, files, jobs); err != nil {
		return err
	}

	data, err := m.encode()
	if err != nil {
		return err
	}
	if err := writeOutput(filepath.Join(output, manifestName), data); err != nil {
		return err
	}

	logger.Info("unpacked binder", slog.String("kind", m.Kind), slog.Int("files", len(files)), slog.String("dir", output))
	fmt.Fprintf(stdout, "unpacked %d files to %s\n", len(files), output)
	return nil
}

// readContainer reads any supported binder eagerly and describes it.
func readContainer(input, dataPath string, opts ...binder.Option) (*manifest, []*binder.File, error) {
	raw, err := os.ReadFile(input)
	if err != nil {
		return nil, nil, err
	}
	plain, compression, err := binder.Unwrap(raw, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", input, err)
	}

	kind := binder.Detect(plain)
	m := newManifest(kind, compression)

	var bdf []byte
	if kind.IsSplitHeader() {
		if dataPath == "" {
			return nil, nil, fmt.Errorf("%s is a %s header; pass its data file with --data", input, kind)
		}
		if bdf, err = os.ReadFile(dataPath); err != nil {
			return nil, nil, err
		}
	}

	switch kind {
	case binder.KindBND3:
		b, err := binder.ReadBND3(plain, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", input, err)
		}
		m.setBND3(b)
		return m, b.Files, nil
	case binder.KindBND4:
		b, err := binder.ReadBND4(plain, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", input, err)
		}
		m.setBND4(b)
		return m, b.Files, nil
	case binder.KindBHF3:
		b, err := binder.ReadBXF3(plain, bdf, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", input, err)
		}
		m.setBXF3(b)
		return m, b.Files, nil
	case binder.KindBHF4:
		b, err := binder.ReadBXF4(plain, bdf, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", input, err)
		}
		m.setBXF4(b)
		return m, b.Files, nil
	default:
		return nil, nil, fmt.Errorf("%s: %s: %w", input, kind, binder.ErrFormatMismatch)
	}
}

// writePayloads writes each file's payload to its manifest path under dir.
func writePayloads(ctx context.Context, dir string, m *manifest, files []*binder.File, jobs int) error {
	targets := make([]string, len(files))
	for i := range files {
		target, err := localPath(dir, m.Files[i].Path)
		if err != nil {
			return err
		}
		targets[i] = target
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(jobs, 1))
	for i, f := range files {
		target := targets[i]
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := writeOutput(target, f.Bytes); err != nil {
				return fmt.Errorf("writing %s: %w", f, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// writeOutput replaces path with data atomically.
func writeOutput(path string, data []byte) error {
	c, err := binder.NewFileSink(path).Writer()
	if err != nil {
		return err
	}
	if _, err := c.Write(data); err != nil {
		_ = c.Discard()
		return err
	}
	return c.Commit()
}
