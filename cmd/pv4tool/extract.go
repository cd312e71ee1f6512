package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zsiec/pv4/dv"
	"github.com/zsiec/pv4/format"
)

func runExtract(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	start := fs.Int("start", 0, "first frame to copy")
	count := fs.Int("count", 0, "number of frames to copy (0 copies to the end)")
	out := fs.String("o", "", "output stream file (.dv)")
	force := fs.Bool("f", false, "overwrite an existing output")
	path, err := parse(fs, args, true)
	if err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("extract: %w: -o is required", errUsage)
	}
	if filepath.Ext(*out) != format.StreamFileExtension {
		*out += format.StreamFileExtension
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("extract: %s: %w", *out, os.ErrExist)
		}
	}

	src, err := dv.Open(path, true)
	if err != nil {
		return err
	}
	defer src.Close()

	n := *count
	if n == 0 {
		n = src.FrameCount() - *start
	}
	if *start < 0 || n <= 0 || *start+n > src.FrameCount() {
		return fmt.Errorf("extract: %w: [%d, %d) of %d frames", dv.ErrFrameOutOfRange, *start, *start+n, src.FrameCount())
	}

	began := time.Now()
	if err := dv.ExtractToFile(src, *start, n, *out, nil); err != nil {
		return errors.Join(fmt.Errorf("extract: %w", err), removePartial(*out))
	}
	fmt.Fprintf(stdout, "extracted frames [%d, %d) to %s in %s\n", *start, *start+n, *out,
		time.Since(began).Round(time.Millisecond))
	return nil
}

func removePartial(path string) error {
	for _, p := range []string{path, path[:len(path)-len(format.StreamFileExtension)] + format.IndexFileExtension} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
