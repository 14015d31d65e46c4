// Command dhd-log views and analyzes protocol capture files.
//
// Capture files are written by dhd-bridge with the -protocol-log flag.
//
// Usage:
//
//	dhd-log <command> [flags] <file.dlog>
//
// Commands:
//
//	view     View capture in human-readable format
//	export   Export capture to JSONL or CSV
//	filter   Filter capture and write to a new file
//	stats    Show statistics about the capture
//
// Examples:
//
//	# View all events
//	dhd-log view bridge.dlog
//
//	# View only traffic below one mixer
//	dhd-log view -path audio/mixers/0 bridge.dlog
//
//	# View only heartbeats
//	dhd-log view -category heartbeat bridge.dlog
//
//	# Keep one connection in a new file
//	dhd-log filter -conn-id abc12345-... -o one.dlog bridge.dlog
//
//	# Show statistics
//	dhd-log stats bridge.dlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dhd-bridge/dhd-go/cmd/dhd-log/commands"
)

const usage = `dhd-log - protocol capture viewer

Usage:
  dhd-log <command> [flags] <file.dlog>

Commands:
  view     View capture in human-readable format
  export   Export capture to JSONL or CSV
  filter   Filter capture and write to a new file
  stats    Show statistics about the capture

Use "dhd-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// selection registers the event selection flags shared by view and filter.
func selection(fs *flag.FlagSet) *commands.FilterOptions {
	o := &commands.FilterOptions{}
	fs.StringVar(&o.Layer, "layer", "", "Filter by layer (transport, wire, client)")
	fs.StringVar(&o.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&o.Category, "category", "", "Filter by category (message, heartbeat, state, error)")
	fs.StringVar(&o.Method, "method", "", "Filter by method (auth, get, set, subscribe, update)")
	fs.StringVar(&o.Path, "path", "", "Filter by path prefix")
	fs.StringVar(&o.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&o.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&o.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	return o
}

func parseOrExit(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func usageFor(fs *flag.FlagSet, text string) func() {
	return func() {
		fmt.Fprint(os.Stderr, text)
		fs.PrintDefaults()
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = usageFor(fs, `dhd-log view - View capture in human-readable format

Usage:
  dhd-log view [flags] <file.dlog>

Flags:
`)
	o := selection(fs)
	path := parseOrExit(fs, args)

	filter, err := o.Filter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = usageFor(fs, `dhd-log export - Export capture to JSONL or CSV

Usage:
  dhd-log export [flags] <file.dlog>

Flags:
`)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parseOrExit(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = usageFor(fs, `dhd-log filter - Filter capture and write to a new file

Usage:
  dhd-log filter [flags] <file.dlog>

Flags:
`)
	o := selection(fs)
	fs.StringVar(&o.Output, "o", "", "Output file (required)")
	path := parseOrExit(fs, args)

	if o.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, *o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Filtered %d events to %s\n", n, o.Output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = usageFor(fs, `dhd-log stats - Show statistics about the capture

Usage:
  dhd-log stats <file.dlog>

`)
	path := parseOrExit(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
