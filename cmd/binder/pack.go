package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/binder"
)

func runPack(args []string, stdout io.Writer) error {
	var (
		common commonFlags
		output string
		jobs   int
	)
	flags := pflag.NewFlagSet("pack", pflag.ContinueOnError)
	common.register(flags)
	flags.StringVarP(&output, "output", "o", "", "binder file to write (required)")
	flags.IntVarP(&jobs, "jobs", "j", runtime.GOMAXPROCS(0), "number of files read concurrently")
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("pack: expected one input directory, got %d", flags.NArg())
	}
	if output == "" {
		return fmt.Errorf("pack: --output is required")
	}
	dir := flags.Arg(0)
	logger := common.logger()

	m, err := loadManifest(dir)
	if err != nil {
		return err
	}
	files, err := readPayloads(context.Background(), dir, m, jobs)
	if err != nil {
		return err
	}
	if err := writeContainer(m, files, output, common.data, binder.WithLogger(logger)); err != nil {
		return err
	}

	logger.Info("packed binder", slog.String("kind", m.Kind), slog.Int("files", len(files)), slog.String("output", output))
	fmt.Fprintf(stdout, "packed %d files into %s\n", len(files), output)
	return nil
}

// readPayloads loads every manifest entry and its payload from dir.
func readPayloads(ctx context.Context, dir string, m *manifest, jobs int) ([]*binder.File, error) {
	files := make([]*binder.File, len(m.Files))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(jobs, 1))
	for i := range m.Files {
		mf := &m.Files[i]
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := mf.file()
			if err != nil {
				return err
			}
			source, err := localPath(dir, mf.Path)
			if err != nil {
				return err
			}
			if f.Bytes, err = os.ReadFile(source); err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// writeContainer builds the container m describes and writes it to output,
// and to dataPath for split binders.
func writeContainer(m *manifest, files []*binder.File, output, dataPath string, opts ...binder.Option) error {
	format, err := parseFormat(m.Format)
	if err != nil {
		return err
	}
	compression, err := binder.ParseCompressionType(m.Compression)
	if err != nil {
		return err
	}

	split := m.Kind == binder.KindBHF3.String() || m.Kind == binder.KindBHF4.String()
	if split && dataPath == "" {
		return fmt.Errorf("pack: %s needs a data file; pass --data", m.Kind)
	}

	var header, data []byte
	switch m.Kind {
	case binder.KindBND3.String():
		b := &binder.BND3{
			Files:        files,
			Version:      m.Version,
			Format:       format,
			BigEndian:    m.BigEndian,
			BitBigEndian: m.BitBigEndian,
			Unk18:        m.Unk18,
		}
		header, err = b.Write(opts...)
	case binder.KindBND4.String():
		b := &binder.BND4{
			Files:        files,
			Version:      m.Version,
			Format:       format,
			BigEndian:    m.BigEndian,
			BitBigEndian: m.BitBigEndian,
			Unicode:      m.Unicode,
			Extended:     m.Extended,
			Unk04:        m.Unk04,
			Unk05:        m.Unk05,
		}
		header, err = b.Write(opts...)
	case binder.KindBHF3.String():
		b := &binder.BXF3{
			Files:        files,
			Version:      m.Version,
			Format:       format,
			BigEndian:    m.BigEndian,
			BitBigEndian: m.BitBigEndian,
			DataVersion:  m.DataVersion,
		}
		header, data, err = b.Write(opts...)
	case binder.KindBHF4.String():
		b := &binder.BXF4{
			Files:        files,
			Version:      m.Version,
			Format:       format,
			BigEndian:    m.BigEndian,
			BitBigEndian: m.BitBigEndian,
			Unicode:      m.Unicode,
			Extended:     m.Extended,
			Unk04:        m.Unk04,
			Unk05:        m.Unk05,
		}
		if m.Data != nil {
			b.Data = binder.BDF4Header{
				Unk04:        m.Data.Unk04,
				Unk05:        m.Data.Unk05,
				BigEndian:    m.Data.BigEndian,
				BitBigEndian: m.Data.BitBigEndian,
				HeaderSize:   m.Data.HeaderSize,
				Version:      m.Data.Version,
			}
		}
		header, data, err = b.Write(opts...)
	default:
		return fmt.Errorf("pack: unsupported kind %q", m.Kind)
	}
	if err != nil {
		return fmt.Errorf("pack: %w", err)
	}

	if compression != binder.CompressionNone {
		if header, err = binder.Wrap(header, compression, opts...); err != nil {
			return fmt.Errorf("pack: %w", err)
		}
	}

	if split {
		return binder.CommitPair(binder.NewFileSink(output), binder.NewFileSink(dataPath), header, data)
	}
	return writeOutput(output, header)
}
