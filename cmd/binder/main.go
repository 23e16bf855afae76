package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	subcommand := args[0]
	switch subcommand {
	case "list":
		return runList(args[1:], stdout)
	case "unpack":
		return runUnpack(args[1:], stdout)
	case "pack":
		return runPack(args[1:], stdout)
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: binder <subcommand> [flags]

Subcommands:
  list     Print the files stored in a binder
  unpack   Extract a binder and its manifest into a directory
  pack     Rebuild a binder from an unpacked directory

Run 'binder <subcommand> --help' for subcommand flags.
`)
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	data    string
	verbose bool
}

func (c *commonFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&c.data, "data", "", "BDF data file of a split (BHF/BDF) binder")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
}

func (c *commonFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// parseFlags parses args and reports whether the caller should continue.
// A --help request stops without error.
func parseFlags(flags *pflag.FlagSet, args []string) (bool, error) {
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
