// Command pv4d records PV4 containers pushed or pulled over SRT and serves
// the recordings over HTTPS and HTTP/3.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/pv4/internal/certs"
	"github.com/zsiec/pv4/internal/ingest"
	srtingest "github.com/zsiec/pv4/internal/ingest/srt"
	"github.com/zsiec/pv4/internal/library"
	"github.com/zsiec/pv4/internal/metrics"
	"github.com/zsiec/pv4/internal/recorder"
	"github.com/zsiec/pv4/internal/server"
	"github.com/zsiec/pv4/internal/stream"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cert, err := loadCert()
	if err != nil {
		slog.Error("failed to prepare certificate", "error", err)
		os.Exit(1)
	}
	slog.Info("certificate ready",
		"fingerprint", cert.FingerprintBase64(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	srtAddr := envOr("SRT_ADDR", ":6000")
	apiAddr := envOr("API_ADDR", ":4444")
	h3Addr := envOr("H3_ADDR", ":4443")
	recordDir := envOr("RECORD_DIR", "recordings")
	webDir := os.Getenv("WEB_DIR")
	threads, err := strconv.Atoi(envOr("DECODE_THREADS", "0"))
	if err != nil || threads < 0 {
		slog.Error("DECODE_THREADS must be a non-negative integer", "value", os.Getenv("DECODE_THREADS"))
		os.Exit(1)
	}

	if err := os.MkdirAll(recordDir, 0o755); err != nil {
		slog.Error("failed to create record dir", "dir", recordDir, "error", err)
		os.Exit(1)
	}

	slog.Info("pv4d starting",
		"version", version,
		"srt", srtAddr,
		"api", apiAddr,
		"h3", h3Addr,
		"record_dir", recordDir,
		"decode_threads", threads,
	)

	a := &app{
		mgr:       stream.NewManager(nil),
		metrics:   metrics.New(),
		recordDir: recordDir,
	}
	a.lib = library.New(recordDir, library.Config{DecodeThreads: threads, Metrics: a.metrics})
	defer a.lib.Close()

	g, ctx := errgroup.WithContext(ctx)

	// Create registry and SRT caller after errgroup so closures capture the
	// errgroup-derived context, ensuring recordings stop when any component fails.
	a.registry = ingest.NewRegistry(func(key string, input io.Reader) {
		a.handleNewStream(ctx, key, input)
	})
	a.srtCaller = srtingest.NewCaller(a.registry, nil)

	srv, err := server.NewServer(ctx, server.Config{
		H3Addr:     h3Addr,
		WebDir:     webDir,
		Cert:       cert,
		Library:    a.lib,
		Recordings: a.mgr,
		Metrics:    a.metrics,
		SRTPull: func(address, streamKey, streamID string) error {
			return a.srtCaller.Pull(ctx, srtingest.PullRequest{
				Address:   address,
				StreamKey: streamKey,
				StreamID:  streamID,
			})
		},
		SRTStop:      a.srtCaller.Stop,
		SRTList:      a.listSRTPulls,
		IngestLookup: a.lookupIngest,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	srtSrv := srtingest.NewServer(srtAddr, a.registry, nil)

	apiSrv := &http.Server{
		Addr:      apiAddr,
		Handler:   srv.HTTPSHandler(),
		TLSConfig: cert.TLSConfig(),
	}

	g.Go(func() error {
		return srtSrv.Start(ctx)
	})

	g.Go(func() error {
		slog.Info("HTTPS API server listening", "addr", apiAddr)
		if err := apiSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return apiSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return srv.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type app struct {
	mgr       *stream.Manager
	registry  *ingest.Registry
	srtCaller *srtingest.Caller
	lib       *library.Library
	metrics   *metrics.Metrics
	recordDir string
}

func (a *app) listSRTPulls() []server.SRTPullInfo {
	pulls := a.srtCaller.ActivePulls()
	out := make([]server.SRTPullInfo, len(pulls))
	for i, p := range pulls {
		out[i] = server.SRTPullInfo{
			Address:   p.Address,
			StreamKey: p.StreamKey,
			StreamID:  p.StreamID,
		}
	}
	return out
}

func (a *app) lookupIngest(key string) *ingest.Stats {
	s, ok := a.registry.Get(key)
	if !ok {
		return nil
	}
	stats := s.Stats()
	return &stats
}

// handleNewStream records one publisher until its input ends.
func (a *app) handleNewStream(ctx context.Context, key string, input io.Reader) {
	// Closing the pipe reader makes the transport stop writing once the
	// recorder gives up.
	if c, ok := input.(io.Closer); ok {
		defer c.Close()
	}

	rec, rctx, created := a.mgr.Create(ctx, key)
	if !created {
		slog.Warn("rejecting duplicate stream connection", "key", key)
		return
	}
	defer a.mgr.Remove(key)

	r := recorder.New(input, recorder.Config{
		Dir:         a.recordDir,
		StreamKey:   key,
		RecordingID: rec.ID,
		OnEvent:     a.mgr.Publish,
		Metrics:     a.metrics,
	})
	rec.SetRecorder(r)

	if err := r.Run(rctx); err != nil {
		slog.Error("recording error", "stream", key, "error", err)
	}
	slog.Info("stream ended", "key", key, "path", r.Path())
}

// loadCert uses TLS_CERT and TLS_KEY when both are set and generates a
// self-signed certificate otherwise.
func loadCert() (*certs.CertInfo, error) {
	certFile, keyFile := os.Getenv("TLS_CERT"), os.Getenv("TLS_KEY")
	if certFile != "" && keyFile != "" {
		slog.Info("loading certificate", "cert", certFile)
		return certs.Load(certFile, keyFile)
	}
	slog.Info("generating self-signed certificate")
	return certs.Generate(14 * 24 * time.Hour)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
