package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zsiec/pv4/format"
	"github.com/zsiec/pv4/internal/certs"
	"github.com/zsiec/pv4/internal/ingest"
	"github.com/zsiec/pv4/internal/library"
	"github.com/zsiec/pv4/internal/metrics"
	"github.com/zsiec/pv4/internal/pv4test"
	"github.com/zsiec/pv4/internal/recorder"
	"github.com/zsiec/pv4/internal/stream"
)

const testRecording = "cam1-20260301-120000"

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, http.Handler) {
	t.Helper()
	cert, err := certs.Generate(24 * time.Hour)
	if err != nil {
		t.Fatalf("certs.Generate: %v", err)
	}
	dir := t.TempDir()
	h := pv4test.Header(t, 64, 48, format.Interlaced)
	pv4test.WriteContainer(t, dir, testRecording, h, pv4test.RawFrames(t, h, 3), true)

	m := metrics.New()
	lib := library.New(dir, library.Config{DecodeThreads: 1, Metrics: m})
	t.Cleanup(func() { lib.Close() })

	cfg := Config{
		Cert:       cert,
		Library:    lib,
		Recordings: stream.NewManager(nil),
		Metrics:    m,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(t.Context(), cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, srv.APIHandler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresCert(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(context.Background(), Config{Library: library.New(t.TempDir(), library.Config{})}); err == nil {
		t.Fatal("expected error without Cert")
	}
}

func TestHandleListRecordings(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)
	rec := do(t, h, "GET", "/api/recordings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var list []library.Entry
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].Name != testRecording {
		t.Fatalf("got %+v", list)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS header = %q, want %q", got, "*")
	}
}

func TestHandleRecordingInfo(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)

	rec := do(t, h, "GET", "/api/recordings/"+testRecording, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var info library.Info
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.FrameCount != 3 || info.Width != 64 || info.Height != 48 {
		t.Fatalf("got %+v", info)
	}

	if rec := do(t, h, "GET", "/api/recordings/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleRecordingIndex(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)
	rec := do(t, h, "GET", "/api/recordings/"+testRecording+"/index", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var entries []indexEntryJSON
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Offset != format.HeaderSize {
		t.Errorf("first offset = %d, want %d", entries[0].Offset, format.HeaderSize)
	}
	if entries[1].PrecedentAudioSampleCount != 1601 {
		t.Errorf("precedent count = %d, want 1601", entries[1].PrecedentAudioSampleCount)
	}
}

func TestHandleFrameBytes(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)

	rec := do(t, h, "GET", "/api/recordings/"+testRecording+"/frames/0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var f format.FrameData
	if err := f.ParsePreamble(rec.Body.Bytes()); err != nil {
		t.Fatalf("ParsePreamble: %v", err)
	}
	if f.Audio.SampleCount != 1601 {
		t.Errorf("sample count = %d, want 1601", f.Audio.SampleCount)
	}

	tests := []struct {
		target string
		want   int
	}{
		{"/api/recordings/" + testRecording + "/frames/3", http.StatusNotFound},
		{"/api/recordings/" + testRecording + "/frames/-1", http.StatusBadRequest},
		{"/api/recordings/" + testRecording + "/frames/x", http.StatusBadRequest},
	}
	for _, tc := range tests {
		if rec := do(t, h, "GET", tc.target, ""); rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.target, rec.Code, tc.want)
		}
	}
}

func TestHandleFrameImage(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)

	for _, field := range []string{"", "top", "bottom"} {
		rec := do(t, h, "GET", "/api/recordings/"+testRecording+"/frames/1/image?field="+field, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("field %q: status = %d, want %d", field, rec.Code, http.StatusOK)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
			t.Fatalf("content type = %q, want image/png", ct)
		}
		img, err := png.Decode(rec.Body)
		if err != nil {
			t.Fatalf("png.Decode: %v", err)
		}
		if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
			t.Fatalf("bounds = %v, want 64x48", b)
		}
	}

	rec := do(t, h, "GET", "/api/recordings/"+testRecording+"/frames/1/image?field=odd", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad field: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleExtract(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)

	rec := do(t, h, "POST", "/api/recordings/"+testRecording+"/extract", `{"start":1,"count":2}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body)
	}
	want := testRecording + "-1-2"

	deadline := time.Now().Add(5 * time.Second)
	for {
		var list []extraction
		if err := json.NewDecoder(do(t, h, "GET", "/api/extractions", "").Body).Decode(&list); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(list) != 1 || list[0].Name != want {
			t.Fatalf("got %+v", list)
		}
		if list[0].Status == "done" {
			break
		}
		if list[0].Status == "failed" {
			t.Fatalf("extraction failed: %s", list[0].Error)
		}
		if time.Now().After(deadline) {
			t.Fatal("extraction did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var info library.Info
	if err := json.NewDecoder(do(t, h, "GET", "/api/recordings/"+want, "").Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.FrameCount != 2 {
		t.Fatalf("frame count = %d, want 2", info.FrameCount)
	}

	if rec := do(t, h, "POST", "/api/recordings/"+testRecording+"/extract", `{"start":1,"count":2}`); rec.Code != http.StatusConflict {
		t.Fatalf("repeat: status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if rec := do(t, h, "POST", "/api/recordings/"+testRecording+"/extract", `{"start":0,"count":0}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty range: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleExtractSameNameConcurrently(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t, nil)

	const n = 8
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := do(t, h, "POST", "/api/recordings/"+testRecording+"/extract", `{"start":0,"count":3,"name":"clip"}`)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	accepted := 0
	for code := range codes {
		switch code {
		case http.StatusAccepted:
			accepted++
		case http.StatusConflict:
		default:
			t.Errorf("status = %d, want %d or %d", code, http.StatusAccepted, http.StatusConflict)
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want 1", accepted)
	}
	waitExtraction(t, srv, "clip")
}

func waitExtraction(t *testing.T, srv *Server, name string) {
	t.Helper()
	srv.mu.Lock()
	e := srv.extractions[name]
	srv.mu.Unlock()
	if e == nil || e.x == nil {
		t.Fatalf("no extraction to %q", name)
	}
	if err := e.x.Wait(); err != nil {
		t.Fatalf("extraction to %q: %v", name, err)
	}
}

func TestHandleExtractReleasesNameOnError(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t, nil)

	if rec := do(t, h, "POST", "/api/recordings/missing/extract", `{"start":0,"count":1,"name":"clip"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusNotFound, rec.Body)
	}
	srv.mu.Lock()
	_, held := srv.extractions["clip"]
	srv.mu.Unlock()
	if held {
		t.Fatal("failed extraction still holds its name")
	}

	if rec := do(t, h, "POST", "/api/recordings/"+testRecording+"/extract", `{"start":0,"count":1,"name":"clip"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("retry: status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body)
	}
	waitExtraction(t, srv, "clip")
}

func TestHandleListLive(t *testing.T) {
	t.Parallel()

	var mgr *stream.Manager
	_, h := newTestServer(t, func(c *Config) {
		mgr = c.Recordings
		c.IngestLookup = func(key string) *ingest.Stats {
			return &ingest.Stats{Key: key, BytesReceived: 42}
		}
	})
	mgr.Create(context.Background(), "cam1")

	rec := do(t, h, "GET", "/api/live", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var live []LiveInfo
	if err := json.NewDecoder(rec.Body).Decode(&live); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(live) != 1 || live[0].StreamKey != "cam1" || live[0].Ingest == nil || live[0].Ingest.BytesReceived != 42 {
		t.Fatalf("got %+v", live)
	}
}

func TestHandleEvents(t *testing.T) {
	t.Parallel()

	var mgr *stream.Manager
	_, h := newTestServer(t, func(c *Config) { mgr = c.Recordings })
	ts := httptest.NewServer(h)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live/cam1/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ws.Close()

	// Publish until the subscription is in place.
	var got recorder.Event
	deadline := time.Now().Add(5 * time.Second)
	ws.SetReadDeadline(deadline)
	done := make(chan error, 1)
	go func() { done <- ws.ReadJSON(&got) }()
	for {
		mgr.Publish(recorder.Event{Type: recorder.EventStarted, StreamKey: "cam2"})
		mgr.Publish(recorder.Event{Type: recorder.EventStarted, StreamKey: "cam1", Frames: 7})
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("ReadJSON: %v", err)
			}
			if got.StreamKey != "cam1" || got.Frames != 7 || got.Type != recorder.EventStarted {
				t.Fatalf("got %+v", got)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("no event received")
		}
	}
}

func TestHandleCertHash(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t, nil)
	var resp certHashResponse
	if err := json.NewDecoder(do(t, h, "GET", "/api/cert-hash", "").Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Hash != srv.config.Cert.FingerprintBase64() {
		t.Fatalf("hash = %q, want %q", resp.Hash, srv.config.Cert.FingerprintBase64())
	}
}

func TestHandleSRTPull(t *testing.T) {
	t.Parallel()

	var pulled []string
	_, h := newTestServer(t, func(c *Config) {
		c.SRTPull = func(address, key, _ string) error {
			pulled = append(pulled, address+"|"+key)
			return nil
		}
		c.SRTStop = func(key string) error {
			if key != "cam1" {
				return errors.New("no active pull")
			}
			return nil
		}
		c.SRTList = func() []SRTPullInfo { return []SRTPullInfo{{Address: "a:1", StreamKey: "cam1"}} }
	})

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"create", "POST", "/api/srt-pull", `{"address":"10.0.0.2:9000","streamKey":"cam1"}`, http.StatusCreated},
		{"create missing fields", "POST", "/api/srt-pull", `{"address":""}`, http.StatusBadRequest},
		{"create bad json", "POST", "/api/srt-pull", `{`, http.StatusBadRequest},
		{"list", "GET", "/api/srt-pull", "", http.StatusOK},
		{"stop", "DELETE", "/api/srt-pull?streamKey=cam1", "", http.StatusOK},
		{"stop unknown", "DELETE", "/api/srt-pull?streamKey=cam9", "", http.StatusNotFound},
		{"stop missing key", "DELETE", "/api/srt-pull", "", http.StatusBadRequest},
		{"options", "OPTIONS", "/api/srt-pull", "", http.StatusNoContent},
	}
	for _, tc := range tests {
		if rec := do(t, h, tc.method, tc.target, tc.body); rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
	if len(pulled) != 1 || pulled[0] != "10.0.0.2:9000|cam1" {
		t.Fatalf("pulls = %v", pulled)
	}
}

func TestHandleSRTPullNotConfigured(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)
	if rec := do(t, h, "POST", "/api/srt-pull", `{"address":"a:1","streamKey":"k"}`); rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotImplemented)
	}
	rec := do(t, h, "GET", "/api/srt-pull", "")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("body = %q, want %q", body, "[]")
	}
}

func TestHandleMetrics(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)
	do(t, h, "GET", "/api/recordings/"+testRecording+"/frames/0/image", "")

	rec := do(t, h, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("pv4_frames_decoded_total")) {
		t.Fatal("metrics output lacks pv4_frames_decoded_total")
	}
}
