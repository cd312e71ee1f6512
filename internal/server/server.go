// Package server exposes recordings and live ingest over HTTPS and HTTP/3:
// a JSON API, frame bytes and decoded images, frame range extraction, a
// websocket feed of recorder events, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/zsiec/pv4/internal/certs"
	"github.com/zsiec/pv4/internal/ingest"
	"github.com/zsiec/pv4/internal/library"
	"github.com/zsiec/pv4/internal/metrics"
	"github.com/zsiec/pv4/internal/stream"
)

// SRTPullFunc initiates an SRT caller-mode pull from a remote address.
type SRTPullFunc func(address, streamKey, streamID string) error

// SRTStopFunc stops an active SRT pull by stream key.
type SRTStopFunc func(streamKey string) error

// SRTListFunc returns all active SRT pulls.
type SRTListFunc func() []SRTPullInfo

// IngestLookup resolves a stream key to its ingest counters, or nil if the
// key is not being ingested.
type IngestLookup func(key string) *ingest.Stats

// SRTPullInfo describes an active SRT caller-mode pull, returned by the
// /api/srt-pull GET endpoint.
type SRTPullInfo struct {
	Address   string `json:"address"`
	StreamKey string `json:"streamKey"`
	StreamID  string `json:"streamId,omitempty"`
}

// Config holds the listen address, certificate and the components the
// handlers serve.
type Config struct {
	// H3Addr is the UDP address of the HTTP/3 listener.
	H3Addr string
	WebDir string
	Cert   *certs.CertInfo

	Library      *library.Library
	Recordings   *stream.Manager
	IngestLookup IngestLookup
	SRTPull      SRTPullFunc
	SRTStop      SRTStopFunc
	SRTList      SRTListFunc
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Server serves the API. The same handler is mounted on the HTTPS listener
// run by the caller and on the HTTP/3 listener run by Start.
type Server struct {
	config Config
	log    *slog.Logger
	h3     *http3.Server

	// ctx bounds extractions started over the API.
	ctx context.Context

	mu          sync.Mutex
	extractions map[string]*extraction
}

// NewServer creates a Server with the given configuration. It returns an
// error if required fields are missing.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	if config.Cert == nil {
		return nil, errors.New("server: Cert is required")
	}
	if config.Library == nil {
		return nil, errors.New("server: Library is required")
	}
	if config.Recordings == nil {
		config.Recordings = stream.NewManager(config.Logger)
	}
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		config:      config,
		log:         log.With("component", "server"),
		ctx:         ctx,
		extractions: make(map[string]*extraction),
	}
	if config.H3Addr != "" {
		s.h3 = &http3.Server{
			Addr:      config.H3Addr,
			Handler:   s.APIHandler(),
			TLSConfig: http3.ConfigureTLSConfig(config.Cert.TLSConfig()),
			QUICConfig: &quic.Config{
				MaxIdleTimeout: 30 * time.Second,
				Allow0RTT:      true,
			},
		}
	}
	return s, nil
}

// registerAPIRoutes registers the REST API endpoints on the given mux.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/recordings", s.handleListRecordings)
	mux.HandleFunc("GET /api/recordings/{name}", s.handleRecordingInfo)
	mux.HandleFunc("GET /api/recordings/{name}/index", s.handleRecordingIndex)
	mux.HandleFunc("GET /api/recordings/{name}/frames/{n}", s.handleFrameBytes)
	mux.HandleFunc("GET /api/recordings/{name}/frames/{n}/image", s.handleFrameImage)
	mux.HandleFunc("POST /api/recordings/{name}/extract", s.handleExtract)
	mux.HandleFunc("GET /api/extractions", s.handleListExtractions)
	mux.HandleFunc("GET /api/live", s.handleListLive)
	mux.HandleFunc("GET /api/live/{key}/events", s.handleEvents)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/cert-hash", s.handleCertHash)
	mux.HandleFunc("GET /api/srt-pull", s.handleSRTPullList)
	mux.HandleFunc("POST /api/srt-pull", s.handleSRTPullCreate)
	mux.HandleFunc("DELETE /api/srt-pull", s.handleSRTPullStop)
	mux.HandleFunc("OPTIONS /api/srt-pull", s.handleSRTPullOptions)
	mux.Handle("GET /metrics", s.config.Metrics.Handler())
}

// APIHandler returns the http.Handler for the API and, when WebDir is
// set, the static web UI.
func (s *Server) APIHandler() http.Handler {
	mux := http.NewServeMux()
	s.registerAPIRoutes(mux)

	if s.config.WebDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.config.WebDir)))
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// altSvcMiddleware advertises the HTTP/3 listener to HTTPS clients.
func (s *Server) altSvcMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.h3 != nil {
			if err := s.h3.SetQUICHeaders(w.Header()); err != nil {
				s.log.Debug("set Alt-Svc", "error", err)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSHandler is APIHandler with the Alt-Svc header pointing at HTTP/3.
func (s *Server) HTTPSHandler() http.Handler {
	return s.altSvcMiddleware(s.APIHandler())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Start launches the HTTP/3 server and blocks until the context is
// cancelled or a fatal error occurs.
func (s *Server) Start(ctx context.Context) error {
	if s.h3 == nil {
		return errors.New("server: H3Addr is not configured")
	}
	s.log.Info("HTTP/3 server listening", "addr", s.config.H3Addr)

	stop := context.AfterFunc(ctx, func() { s.h3.Close() })
	defer stop()

	err := s.h3.ListenAndServe()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type certHashResponse struct {
	Hash   string `json:"hash"`
	H3Addr string `json:"h3Addr"`
}

func (s *Server) handleCertHash(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, certHashResponse{
		Hash:   s.config.Cert.FingerprintBase64(),
		H3Addr: s.config.H3Addr,
	})
}
