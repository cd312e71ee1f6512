package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	srtgo "github.com/zsiec/srtgo"
	"golang.org/x/time/rate"

	"github.com/zsiec/pv4/dv"
	"github.com/zsiec/pv4/dvio"
)

const (
	// chunkSize is the largest write handed to the SRT connection, one live
	// mode payload.
	chunkSize = 1316

	latencyNs = 120_000_000
)

func runPush(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:6000", "SRT listener address")
	key := fs.String("key", "", "stream key (default: file name without extension)")
	loop := fs.Bool("loop", false, "repeat the frames until interrupted")
	path, err := parse(fs, args, true)
	if err != nil {
		return err
	}
	if *key == "" {
		*key = streamKeyFromPath(path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs
	cfg.StreamID = "live/" + *key
	slog.Info("connecting", "addr", *addr, "streamID", cfg.StreamID)
	conn, err := srtgo.Dial(*addr, cfg)
	if err != nil {
		return fmt.Errorf("push: dial %s: %w", *addr, err)
	}
	defer conn.Close()
	context.AfterFunc(ctx, func() { conn.Close() })

	p := &pusher{dst: conn, loop: *loop, log: slog.Default().With("component", "push", "key", *key)}
	sent, err := p.pushFile(ctx, path)
	fmt.Fprintf(stdout, "sent %d frames to %s\n", sent, *addr)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// pusher writes a container to dst in real time: the header once, then each
// frame record at the container's frame rate.
type pusher struct {
	dst  io.Writer
	loop bool
	log  *slog.Logger

	// limit overrides the frame-rate limiter, for tests.
	limit rate.Limit
}

func (p *pusher) pushFile(ctx context.Context, path string) (int, error) {
	d, err := dv.Open(path, true)
	if err != nil {
		return 0, err
	}
	defer d.Close()

	header, err := readHeaderBytes(d.StreamPath())
	if err != nil {
		return 0, err
	}
	if err := p.write(header); err != nil {
		return 0, fmt.Errorf("push: header: %w", err)
	}

	limit := p.limit
	if limit == 0 {
		fr := d.FrameRate()
		limit = rate.Limit(fr.Float64())
	}
	limiter := rate.NewLimiter(limit, 1)

	sent := 0
	lastLog := time.Now()
	for {
		for n := 0; n < d.FrameCount(); n++ {
			if err := limiter.Wait(ctx); err != nil {
				return sent, err
			}
			b, err := d.ReadFrameBytes(n)
			if err != nil {
				return sent, err
			}
			if err := p.write(b); err != nil {
				return sent, fmt.Errorf("push: frame %d: %w", n, err)
			}
			sent++
			if time.Since(lastLog) >= 10*time.Second {
				p.log.Info("streaming", "frames", sent, "timecode", d.VideoFrameToDuration(sent).Truncate(time.Millisecond))
				lastLog = time.Now()
			}
		}
		if !p.loop || d.FrameCount() == 0 {
			return sent, nil
		}
		p.log.Debug("loop complete", "frames", sent)
	}
}

func (p *pusher) write(b []byte) error {
	for len(b) > 0 {
		n := min(len(b), chunkSize)
		if _, err := p.dst.Write(b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func readHeaderBytes(path string) ([]byte, error) {
	r, err := dvio.OpenStreamFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadHeaderBytes()
}

func streamKeyFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
