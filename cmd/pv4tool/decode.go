package main

import (
	"flag"
	"fmt"
	"image/png"
	"io"
	"os"

	"github.com/zsiec/pv4/codec"
	"github.com/zsiec/pv4/dv"
)

func runDecode(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	frame := fs.Int("frame", 0, "frame number")
	field := fs.String("field", "", "decode one field of an interlaced frame: top or bottom")
	out := fs.String("o", "", "output PNG file")
	threads := fs.Int("threads", 0, "decoder threads (0 picks one per CPU)")
	backend := fs.String("backend", "", "force a decoder backend")
	path, err := parse(fs, args, true)
	if err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("decode: %w: -o is required", errUsage)
	}
	if *field != "" && *field != "top" && *field != "bottom" {
		return fmt.Errorf("decode: %w: field %q", errUsage, *field)
	}

	d, err := dv.Open(path, true)
	if err != nil {
		return err
	}
	defer d.Close()

	dec, err := codec.NewDecoder(d, codec.Config{ThreadCount: *threads, Backend: *backend})
	if err != nil {
		return err
	}
	defer dec.Close()

	var bmp *codec.Bitmap
	if *field == "" {
		bmp, _, err = dec.DecodeFrame(*frame, nil)
	} else {
		var top, bottom *codec.Bitmap
		top, bottom, _, err = dec.DecodeFrameDeinterlaced(*frame, nil, nil)
		bmp = top
		if *field == "bottom" {
			bmp = bottom
		}
	}
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	img, err := bmp.Image()
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("decode: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "decoded frame %d (%dx%d, %s backend) to %s\n", *frame, bmp.Width, bmp.Height, dec.Backend(), *out)
	return nil
}
