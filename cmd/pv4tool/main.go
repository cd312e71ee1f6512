// Command pv4tool inspects, converts and streams PV4 containers.
//
//	pv4tool info <file>
//	pv4tool index [-write] <file>
//	pv4tool extract -start N -count N -o out.dv <file>
//	pv4tool decode -frame N [-field top|bottom] -o out.png <file>
//	pv4tool push -addr host:port -key KEY [-loop] <file>
//	pv4tool synth -w W -h H -frames N [-progressive] -o out.dv
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
)

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(args []string, stdout io.Writer) error
}

var commands = []command{
	{"info", "print header and stream properties", runInfo},
	{"index", "print or rebuild the frame index", runIndex},
	{"extract", "copy a frame range into a new container", runExtract},
	{"decode", "decode one frame to PNG", runDecode},
	{"push", "stream a container to an SRT listener in real time", runPush},
	{"synth", "write a raw-coded test pattern container", runSynth},
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "pv4tool: %v\n", err)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			usage(os.Stderr)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(args[1:], stdout)
		}
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: pv4tool <command> [flags] [file]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
}

// parse parses args with fs and returns the single positional file, unless
// the command takes none.
func parse(fs *flag.FlagSet, args []string, wantFile bool) (string, error) {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("%s: %w", fs.Name(), err)
	}
	if !wantFile {
		if fs.NArg() != 0 {
			return "", fmt.Errorf("%s: %w: unexpected arguments", fs.Name(), errUsage)
		}
		return "", nil
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s: %w: expected one file", fs.Name(), errUsage)
	}
	return fs.Arg(0), nil
}
