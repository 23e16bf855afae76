package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/meigma/binder"
)

func runList(args []string, stdout io.Writer) error {
	var common commonFlags
	flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
	common.register(flags)
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("list: expected one input file, got %d", flags.NArg())
	}
	input := flags.Arg(0)
	opts := []binder.Option{binder.WithLogger(common.logger())}

	var (
		r   *binder.Reader
		err error
	)
	if common.data != "" {
		r, err = binder.OpenSplit(input, common.data, opts...)
	} else {
		r, err = binder.Open(input, opts...)
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", input, err)
	}
	defer r.Close()

	fmt.Fprintf(stdout, "%s compression=%s format=%s files=%d\n", r.Kind(), r.Compression(), r.Format(), r.Len())

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tID\tFLAGS\tSTORED\tSIZE\tNAME")
	for e := range r.Entries() {
		id := "-"
		if e.ID != binder.NoID {
			id = fmt.Sprint(e.ID)
		}
		fmt.Fprintf(tw, "%d\t%s\t0x%02X\t%d\t%d\t%s\n", e.Index, id, uint8(e.Flags), e.StoredSize, e.UncompressedSize, e.Name)
	}
	return tw.Flush()
}
