package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/zsiec/pv4/codec"
	"github.com/zsiec/pv4/dvio"
	"github.com/zsiec/pv4/format"
)

// samplesPerFrame spreads 48 kHz audio over 30000/1001 frames per second.
var samplesPerFrame = [5]uint16{1602, 1601, 1602, 1601, 1602}

func runSynth(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	width := fs.Int("w", 1920, "width, a multiple of 16")
	height := fs.Int("h", 1080, "height, a multiple of 8")
	frames := fs.Int("frames", 30, "number of frames")
	progressive := fs.Bool("progressive", false, "write a progressive container")
	out := fs.String("o", "", "output stream file (.dv)")
	if _, err := parse(fs, args, false); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("synth: %w: -o is required", errUsage)
	}
	if *frames <= 0 {
		return fmt.Errorf("synth: %w: -frames must be positive", errUsage)
	}

	scanning := format.Interlaced
	if *progressive {
		scanning = format.Progressive
	}
	h, err := format.NewHeader(*width, *height, scanning)
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}

	w, err := dvio.CreateStreamAndIndexFile(h, *out, true)
	if err != nil {
		return err
	}
	enc := codec.NewRawEncoder(h)
	stride := *width * 2
	pic := make([]byte, stride*(*height))
	for i := 0; i < *frames; i++ {
		colorBars(pic, *width, *height, i)
		f, err := enc.EncodePackedYUV422Frame(pic, stride, format.Ratio{Num: 16, Den: 9})
		if err != nil {
			w.Close()
			return fmt.Errorf("synth: frame %d: %w", i, err)
		}
		f.Audio.SamplingFrequency = 48000
		f.Audio.SampleCount = samplesPerFrame[i%len(samplesPerFrame)]
		f.Audio.Data = make([]byte, f.Audio.RawLength())
		if err := w.Write(f); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d %dx%d %s frames to %s\n", *frames, *width, *height, scanning, *out)
	return nil
}

// bars holds BT.601 studio-range Y, Cb, Cr of 75% color bars.
var bars = [8][3]byte{
	{180, 128, 128}, // white
	{162, 44, 142},  // yellow
	{131, 156, 44},  // cyan
	{112, 72, 58},   // green
	{84, 184, 198},  // magenta
	{65, 100, 212},  // red
	{35, 212, 114},  // blue
	{16, 128, 128},  // black
}

// colorBars fills pic with vertical bars scrolled by frame pixels, plus a
// luma ramp in the bottom eighth.
func colorBars(pic []byte, width, height, frame int) {
	stride := width * 2
	ramp := height - height/8
	for y := 0; y < height; y++ {
		row := pic[y*stride : y*stride+stride]
		for x := 0; x < width; x += 2 {
			yy, cb, cr := byte(0), byte(128), byte(128)
			if y >= ramp {
				yy = byte(16 + (x*219)/width)
			} else {
				b := bars[((x+frame*2)%width)*len(bars)/width]
				yy, cb, cr = b[0], b[1], b[2]
			}
			row[x*2+0] = yy
			row[x*2+1] = cb
			row[x*2+2] = yy
			row[x*2+3] = cr
		}
	}
}
