// Command devhost-log views and analyzes devhost protocol captures.
//
// Captures are written by devhost when logging.protocol_file is set.
//
// Usage:
//
//	devhost-log <command> [flags] <file.dlog>
//
// Commands:
//
//	view     Print events in human-readable form
//	export   Print events as JSON lines
//	filter   Copy matching events into a new capture
//	stats    Summarize a capture
//
// Examples:
//
//	devhost-log view --channel coordinator host.dlog
//	devhost-log filter --device-id 7 -o dev7.dlog host.dlog
//	devhost-log stats host.dlog
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/devhost-project/devhost-go/cmd/devhost-log/commands"
)

const usage = `devhost-log - devhost protocol capture analyzer

Usage:
  devhost-log <command> [flags] <file.dlog>

Commands:
  view     Print events in human-readable form
  export   Print events as JSON lines
  filter   Copy matching events into a new capture
  stats    Summarize a capture

Use "devhost-log <command> -help" for more information about a command.
`

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "view", "export", "filter", "stats":
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts commands.FilterOptions
	var output string
	if cmd != "stats" {
		fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
		fs.StringVar(&opts.DeviceID, "device-id", "", "Filter by host-local device ID")
		fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
		fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
		fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, host)")
		fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
		fs.StringVar(&opts.Category, "category", "", "Filter by category (message, control, state, error)")
		fs.StringVar(&opts.Channel, "channel", "", "Filter by channel (rio, coordinator)")
	}
	if cmd == "filter" {
		fs.StringVar(&output, "o", "", "Output capture file (required)")
	}

	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: log file path required")
		fs.Usage()
		return errUsage
	}
	path := fs.Arg(0)

	if cmd == "stats" {
		return commands.RunStats(path, stdout)
	}

	filter, err := opts.Build()
	if err != nil {
		return err
	}

	switch cmd {
	case "view":
		return commands.RunView(path, filter, stdout)
	case "export":
		return commands.RunExport(path, filter, stdout)
	default:
		if output == "" {
			fmt.Fprintln(stderr, "Error: output file (-o) required")
			fs.Usage()
			return errUsage
		}
		n, err := commands.RunFilter(path, output, filter)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Filtered %d events to %s\n", n, output)
		return nil
	}
}
