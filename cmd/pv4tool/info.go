package main

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/zsiec/pv4/dv"
	"github.com/zsiec/pv4/dvio"
)

func runInfo(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	path, err := parse(fs, args, true)
	if err != nil {
		return err
	}

	d, err := dv.Open(path, true)
	if err != nil {
		return err
	}
	defer d.Close()

	h := d.Header()
	index := d.IndexPath()
	if index == "" {
		index = "(derived from stream)"
	}
	var samples int64
	if n := d.FrameCount(); n > 0 {
		last, _ := d.Index(n - 1)
		samples = int64(last.PrecedentAudioSampleCount) + int64(last.AudioSampleCount)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "stream\t%s\n", d.StreamPath())
	fmt.Fprintf(tw, "index\t%s\n", index)
	fmt.Fprintf(tw, "codec version\t%d\n", h.CodecVersion)
	fmt.Fprintf(tw, "size\t%dx%d\n", d.Width(), d.Height())
	fmt.Fprintf(tw, "scanning\t%s\n", d.Scanning())
	fmt.Fprintf(tw, "frame rate\t%s\n", d.FrameRate())
	fmt.Fprintf(tw, "frames\t%d\n", d.FrameCount())
	fmt.Fprintf(tw, "duration\t%s\n", d.VideoFrameToDuration(d.FrameCount()))
	fmt.Fprintf(tw, "aspect\t%s\n", d.DisplayAspectRatio())
	fmt.Fprintf(tw, "audio rate\t%s\n", d.AudioSamplingRate())
	fmt.Fprintf(tw, "audio samples\t%d\n", samples)
	return tw.Flush()
}

func runIndex(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	write := fs.Bool("write", false, "rebuild the index file from the stream")
	path, err := parse(fs, args, true)
	if err != nil {
		return err
	}

	if *write {
		entries, err := dvio.GetFrameListFromStreamFile(dvio.StreamFilePath(path))
		if err != nil {
			return err
		}
		out := dvio.IndexFilePath(path)
		if err := dvio.WriteIndexFile(out, entries); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %d entries to %s\n", len(entries), out)
		return nil
	}

	entries, err := dvio.GetFrameList(path, true)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "frame\toffset\tsize\tprecedent\tsamples\tquality\t")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t\n", i, e.FrameOffset(), e.FrameSize(),
			e.PrecedentAudioSampleCount, e.AudioSampleCount, e.EncodingQuality)
	}
	return tw.Flush()
}
