// Package recorder writes a live PV4 container stream to disk. The input is
// read as a sequence (header, then frame records) without seeking, and
// every frame is appended to a stream file with its companion index.
package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/pv4/dvio"
	"github.com/zsiec/pv4/format"
	"github.com/zsiec/pv4/internal/metrics"
)

// defaultProgressEvery is the number of frames between progress events.
const defaultProgressEvery = 30

// EventType names a recorder lifecycle event.
type EventType string

// Recorder events.
const (
	EventStarted  EventType = "started"
	EventProgress EventType = "progress"
	EventFinished EventType = "finished"
	EventFailed   EventType = "failed"
)

// Event is published on every lifecycle change and periodically while
// frames are written.
type Event struct {
	Type        EventType `json:"type"`
	RecordingID string    `json:"recordingId"`
	StreamKey   string    `json:"streamKey"`
	Path        string    `json:"path,omitempty"`
	Frames      int64     `json:"frames"`
	Samples     uint64    `json:"samples"`
	Bytes       int64     `json:"bytes"`
	Timestamp   int64     `json:"timestamp"`
	Error       string    `json:"error,omitempty"`
}

// Stats is a point-in-time view of a recording.
type Stats struct {
	RecordingID string `json:"recordingId"`
	StreamKey   string `json:"streamKey"`
	Path        string `json:"path,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Scanning    string `json:"scanning,omitempty"`
	Frames      int64  `json:"frames"`
	Samples     uint64 `json:"samples"`
	Bytes       int64  `json:"bytes"`
	StartedAt   int64  `json:"startedAt"`
	UptimeMs    int64  `json:"uptimeMs"`
}

// Config configures a Recorder.
type Config struct {
	// Dir receives the .dv and .dvi files.
	Dir         string
	StreamKey   string
	RecordingID string

	// ProgressEvery is the number of frames between progress events.
	// Zero selects 30.
	ProgressEvery int

	// OnEvent, if set, is called synchronously for every event.
	OnEvent func(Event)

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Now is used to name the output file. Defaults to time.Now.
	Now func() time.Time
}

// Recorder copies one live stream into a container on disk.
type Recorder struct {
	cfg   Config
	log   *slog.Logger
	input io.Reader

	startedAt time.Time

	mu     sync.RWMutex
	path   string
	header *format.Header

	frames  atomic.Int64
	samples atomic.Uint64
	bytes   atomic.Int64
}

// New creates a Recorder reading from input.
func New(input io.Reader, cfg Config) *Recorder {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Recorder{
		cfg:       cfg,
		log:       log.With("component", "recorder", "stream_key", cfg.StreamKey),
		input:     input,
		startedAt: cfg.Now(),
	}
}

// Path returns the stream file path, or "" before the header arrived.
func (r *Recorder) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

// Stats returns a snapshot of the recording counters.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	path, h := r.path, r.header
	r.mu.RUnlock()

	s := Stats{
		RecordingID: r.cfg.RecordingID,
		StreamKey:   r.cfg.StreamKey,
		Path:        path,
		Frames:      r.frames.Load(),
		Samples:     r.samples.Load(),
		Bytes:       r.bytes.Load(),
		StartedAt:   r.startedAt.UnixMilli(),
		UptimeMs:    time.Since(r.startedAt).Milliseconds(),
	}
	if h != nil {
		s.Width, s.Height, s.Scanning = h.Width(), h.Height(), h.Scanning.String()
	}
	return s
}

// Run records until the input ends, a read or write fails, or ctx is
// cancelled. The output files are closed in every case; a recording that
// failed before its first frame is removed. A clean end of sequence and a
// cancellation both return nil.
func (r *Recorder) Run(ctx context.Context) (err error) {
	r.cfg.Metrics.RecordingStarted()
	defer func() { r.cfg.Metrics.RecordingFinished(err) }()

	src := dvio.NewStreamReader(r.input)
	defer src.Close()

	// Unblock a pending read on cancel when the input can be closed.
	if c, ok := r.input.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	h, err := src.ReadHeader()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		r.fail(err)
		return fmt.Errorf("recorder: %w", err)
	}

	path := filepath.Join(r.cfg.Dir, r.fileName())
	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		r.fail(err)
		return fmt.Errorf("recorder: %w", err)
	}
	w, err := dvio.CreateStreamAndIndexFile(h, path, true)
	if err != nil {
		r.fail(err)
		return fmt.Errorf("recorder: %w", err)
	}

	r.mu.Lock()
	r.path, r.header = path, h
	r.mu.Unlock()

	r.log.Info("recording started", "path", path, "width", h.Width(), "height", h.Height(),
		"scanning", h.Scanning)
	r.emit(EventStarted, nil)

	err = r.copyFrames(ctx, src, w)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = cerr
	}
	canceled := ctx.Err() != nil
	if (err != nil || canceled) && r.frames.Load() == 0 {
		if rerr := dvio.RemoveFiles(path); rerr != nil {
			r.log.Warn("remove empty recording", "error", rerr)
		}
	}

	// Cancellation tears the input mid-frame; what was written is kept.
	if err != nil && !canceled {
		r.fail(err)
		return fmt.Errorf("recorder: %w", err)
	}

	r.log.Info("recording finished", "path", path, "frames", r.frames.Load(),
		"samples", r.samples.Load(), "bytes", r.bytes.Load(), "canceled", canceled)
	r.emit(EventFinished, nil)
	return nil
}

func (r *Recorder) copyFrames(ctx context.Context, src *dvio.StreamReader, w *dvio.StreamAndIndexWriter) error {
	var f format.FrameData
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := src.ReadFrameDataInto(&f, true, true)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		before := w.Position()
		if err := w.Write(&f); err != nil {
			return err
		}
		size := w.Position() - before

		n := r.frames.Add(1)
		r.samples.Store(w.SamplesWritten())
		r.bytes.Add(size)
		r.cfg.Metrics.FrameRecorded(r.cfg.StreamKey, size)

		if n%int64(r.cfg.ProgressEvery) == 0 {
			r.log.Debug("progress", "frames", n)
			r.emit(EventProgress, nil)
		}
	}
}

func (r *Recorder) fail(err error) {
	r.log.Warn("recording failed", "error", err)
	r.emit(EventFailed, err)
}

func (r *Recorder) emit(t EventType, err error) {
	if r.cfg.OnEvent == nil {
		return
	}
	ev := Event{
		Type:        t,
		RecordingID: r.cfg.RecordingID,
		StreamKey:   r.cfg.StreamKey,
		Path:        r.Path(),
		Frames:      r.frames.Load(),
		Samples:     r.samples.Load(),
		Bytes:       r.bytes.Load(),
		Timestamp:   r.cfg.Now().UnixMilli(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.cfg.OnEvent(ev)
}

// fileName builds "<key>-<yyyymmdd-hhmmss>.dv" with path separators in the
// key flattened.
func (r *Recorder) fileName() string {
	key := strings.Map(func(c rune) rune {
		if c == '/' || c == '\\' || c == os.PathSeparator {
			return '_'
		}
		return c
	}, r.cfg.StreamKey)
	if key == "" {
		key = "stream"
	}
	return key + "-" + r.startedAt.Format("20060102-150405") + format.StreamFileExtension
}
