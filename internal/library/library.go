// Package library serves the recordings stored in one directory. Containers
// are opened on first use and kept open together with a decoder; a file
// that changed on disk since it was opened is reopened.
package library

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zsiec/pv4/codec"
	"github.com/zsiec/pv4/dv"
	"github.com/zsiec/pv4/dvio"
	"github.com/zsiec/pv4/format"
	"github.com/zsiec/pv4/internal/metrics"
)

var (
	// ErrNotFound is returned for names that do not resolve to a stream
	// file in the library directory.
	ErrNotFound = fmt.Errorf("library: recording not found: %w", fs.ErrNotExist)

	// ErrBadField is returned for a field selector other than "", "top"
	// or "bottom".
	ErrBadField = errors.New("library: field must be top or bottom")
)

// Entry is one stream file in the directory.
type Entry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"modTime"`
	HasIndex bool      `json:"hasIndex"`
}

// Info describes an opened container.
type Info struct {
	Name         string `json:"name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Scanning     string `json:"scanning"`
	FrameRate    string `json:"frameRate"`
	FrameCount   int    `json:"frameCount"`
	DurationMs   int64  `json:"durationMs"`
	AspectRatio  string `json:"aspectRatio"`
	SamplingRate string `json:"samplingRate"`
	IndexFile    bool   `json:"indexFile"`
	Backend      string `json:"backend"`
}

// Config configures a Library.
type Config struct {
	// DecodeThreads is passed to codec.Config.ThreadCount.
	DecodeThreads int
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

type item struct {
	mu      sync.Mutex
	dv      *dv.DV
	dec     *codec.Decoder
	size    int64
	modTime time.Time
}

func (it *item) close() error {
	return errors.Join(it.dec.Close(), it.dv.Close())
}

// Library is safe for concurrent use. Calls on the same recording are
// serialized.
type Library struct {
	dir string
	cfg Config
	log *slog.Logger

	mu    sync.Mutex
	items map[string]*item
}

// New returns a library over dir.
func New(dir string, cfg Config) *Library {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Library{
		dir:   dir,
		cfg:   cfg,
		log:   log.With("component", "library"),
		items: make(map[string]*item),
	}
}

// Dir returns the library directory.
func (l *Library) Dir() string { return l.dir }

// List scans the directory for stream files, ordered by name.
func (l *Library) List() ([]Entry, error) {
	des, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, err
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		if de.IsDir() || filepath.Ext(de.Name()) != format.StreamFileExtension {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		// Recordings whose header is not flushed yet are not listed.
		if ok, err := dvio.IsStreamFile(filepath.Join(l.dir, de.Name())); err != nil || !ok {
			continue
		}
		name := strings.TrimSuffix(de.Name(), format.StreamFileExtension)
		_, ierr := os.Stat(filepath.Join(l.dir, name+format.IndexFileExtension))
		out = append(out, Entry{
			Name:     name,
			Size:     fi.Size(),
			ModTime:  fi.ModTime(),
			HasIndex: ierr == nil,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Path returns the stream file path for name.
func (l *Library) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrNotFound
	}
	return filepath.Join(l.dir, name+format.StreamFileExtension), nil
}

// Info opens name and describes it.
func (l *Library) Info(name string) (Info, error) {
	var info Info
	err := l.with(name, func(it *item) error {
		d := it.dv
		info = Info{
			Name:         name,
			Width:        d.Width(),
			Height:       d.Height(),
			Scanning:     d.Scanning().String(),
			FrameRate:    d.FrameRate().String(),
			FrameCount:   d.FrameCount(),
			DurationMs:   d.VideoFrameToDuration(d.FrameCount()).Milliseconds(),
			AspectRatio:  d.DisplayAspectRatio().String(),
			SamplingRate: d.AudioSamplingRate().String(),
			IndexFile:    d.IndexPath() != "",
			Backend:      it.dec.Backend(),
		}
		return nil
	})
	return info, err
}

// Index returns the frame index of name.
func (l *Library) Index(name string) ([]format.IndexEntry, error) {
	var entries []format.IndexEntry
	err := l.with(name, func(it *item) error {
		entries = it.dv.Entries()
		return nil
	})
	return entries, err
}

// FrameBytes returns the on-disk record of frame n.
func (l *Library) FrameBytes(name string, n int) ([]byte, error) {
	var b []byte
	err := l.with(name, func(it *item) (err error) {
		b, err = it.dv.ReadFrameBytes(n)
		return err
	})
	return b, err
}

// DecodeImage decodes frame n. field selects one deinterlaced field of an
// interlaced recording; "" decodes the full frame.
func (l *Library) DecodeImage(name string, n int, field string) (image.Image, error) {
	if field != "" && field != "top" && field != "bottom" {
		return nil, ErrBadField
	}
	var img image.Image
	err := l.with(name, func(it *item) error {
		start := time.Now()
		var (
			bm  *codec.Bitmap
			err error
		)
		if field == "" {
			bm, _, err = it.dec.DecodeFrame(n, nil)
		} else {
			var top, bottom *codec.Bitmap
			top, bottom, _, err = it.dec.DecodeFrameDeinterlaced(n, nil, nil)
			bm = top
			if field == "bottom" {
				bm = bottom
			}
		}
		if err != nil {
			return err
		}
		l.cfg.Metrics.FrameDecoded(it.dec.Backend(), time.Since(start).Seconds())
		nrgba, err := bm.Image()
		if err != nil {
			return err
		}
		img = nrgba
		return nil
	})
	return img, err
}

// Extract starts copying count frames of name from start into a new
// recording dst in the same directory. The source is opened separately so
// that the extraction does not hold the library lock.
func (l *Library) Extract(ctx context.Context, name string, start, count int, dst string) (*dv.Extraction, error) {
	src, err := l.Path(name)
	if err != nil {
		return nil, err
	}
	out, err := l.Path(dst)
	if err != nil {
		return nil, fmt.Errorf("library: destination %q: %w", dst, err)
	}
	if _, err := os.Stat(src); err != nil {
		return nil, ErrNotFound
	}
	if _, err := os.Stat(out); err == nil {
		return nil, fmt.Errorf("library: destination %q: %w", dst, fs.ErrExist)
	}

	x := dv.ExtractAsync(ctx, dv.FromPath(src), start, count, out, nil)
	go func() {
		err := x.Wait()
		l.cfg.Metrics.ExtractionDone(err)
		if err != nil {
			l.log.Warn("extraction failed", "source", name, "dest", dst, "error", err)
			return
		}
		l.log.Info("extraction finished", "source", name, "dest", dst, "start", start, "count", count)
	}()
	return x, nil
}

// Close closes every open container.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for name, it := range l.items {
		it.mu.Lock()
		errs = append(errs, it.close())
		it.mu.Unlock()
		delete(l.items, name)
	}
	return errors.Join(errs...)
}

// with runs fn on the open item for name, opening or reopening it first.
func (l *Library) with(name string, fn func(*item) error) error {
	path, err := l.Path(name)
	if err != nil {
		return err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}

	l.mu.Lock()
	it, ok := l.items[name]
	if !ok {
		it = &item{}
		l.items[name] = it
	}
	l.mu.Unlock()

	it.mu.Lock()
	defer it.mu.Unlock()

	if it.dv != nil && (it.size != fi.Size() || !it.modTime.Equal(fi.ModTime())) {
		l.log.Debug("recording changed, reopening", "name", name)
		if err := it.close(); err != nil {
			l.log.Warn("close stale recording", "name", name, "error", err)
		}
		it.dv, it.dec = nil, nil
	}
	if it.dv == nil {
		d, err := dv.Open(path, true)
		if err != nil {
			return err
		}
		dec, err := codec.NewDecoder(d, codec.Config{
			ThreadCount: l.cfg.DecodeThreads,
			Logger:      l.log,
		})
		if err != nil {
			d.Close()
			return err
		}
		it.dv, it.dec = d, dec
		it.size, it.modTime = fi.Size(), fi.ModTime()
	}
	return fn(it)
}
