package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/zsiec/pv4/codec"
	"github.com/zsiec/pv4/dv"
	"github.com/zsiec/pv4/format"
	"github.com/zsiec/pv4/internal/library"
)

// indexEntryJSON is the API form of one index record.
type indexEntryJSON struct {
	Frame                     int    `json:"frame"`
	Offset                    int64  `json:"offset"`
	Size                      int64  `json:"size"`
	PrecedentAudioSampleCount uint64 `json:"precedentAudioSampleCount"`
	AudioSampleCount          uint16 `json:"audioSampleCount"`
	EncodingQuality           uint8  `json:"encodingQuality"`
}

type extractRequest struct {
	Start int    `json:"start"`
	Count int    `json:"count"`
	Name  string `json:"name"`
}

// extraction is an API-started extraction and its outcome.
type extraction struct {
	Source    string `json:"source"`
	Name      string `json:"name"`
	Start     int    `json:"start"`
	Count     int    `json:"count"`
	StartedAt int64  `json:"startedAt"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`

	x *dv.Extraction
}

func (s *Server) handleListRecordings(w http.ResponseWriter, _ *http.Request) {
	list, err := s.config.Library.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRecordingInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.config.Library.Info(r.PathValue("name"))
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRecordingIndex(w http.ResponseWriter, r *http.Request) {
	entries, err := s.config.Library.Index(r.PathValue("name"))
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}
	out := make([]indexEntryJSON, len(entries))
	for i, e := range entries {
		out[i] = indexEntryJSON{
			Frame:                     i,
			Offset:                    e.FrameOffset(),
			Size:                      e.FrameSize(),
			PrecedentAudioSampleCount: e.PrecedentAudioSampleCount,
			AudioSampleCount:          e.AudioSampleCount,
			EncodingQuality:           e.EncodingQuality,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFrameBytes(w http.ResponseWriter, r *http.Request) {
	n, ok := frameNumber(w, r)
	if !ok {
		return
	}
	b, err := s.config.Library.FrameBytes(r.PathValue("name"), n)
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func (s *Server) handleFrameImage(w http.ResponseWriter, r *http.Request) {
	n, ok := frameNumber(w, r)
	if !ok {
		return
	}
	img, err := s.config.Library.DecodeImage(r.PathValue("name"), n, r.URL.Query().Get("field"))
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, img); err != nil {
		s.log.Debug("write png", "error", err)
	}
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Count <= 0 || req.Start < 0 {
		writeError(w, http.StatusBadRequest, "start must be >= 0 and count > 0")
		return
	}
	if req.Name == "" {
		req.Name = fmt.Sprintf("%s-%d-%d", name, req.Start, req.Count)
	}

	e := &extraction{
		Source:    name,
		Name:      req.Name,
		Start:     req.Start,
		Count:     req.Count,
		StartedAt: time.Now().UnixMilli(),
	}

	// The name is reserved until Extract has either started or failed.
	s.mu.Lock()
	if _, busy := s.extractions[req.Name]; busy {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "extraction to "+req.Name+" already started")
		return
	}
	s.extractions[req.Name] = e
	s.mu.Unlock()

	x, err := s.config.Library.Extract(s.ctx, name, req.Start, req.Count, req.Name)
	s.mu.Lock()
	if err != nil {
		delete(s.extractions, req.Name)
	} else {
		e.x = x
	}
	s.mu.Unlock()
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "extracting", "name": req.Name})
}

func (s *Server) handleListExtractions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]extraction, 0, len(s.extractions))
	for _, e := range s.extractions {
		if e.x == nil {
			continue
		}
		v := *e
		select {
		case <-e.x.Done():
			v.Status = "done"
			if err := e.x.Err(); err != nil {
				v.Status, v.Error = "failed", err.Error()
			}
		default:
			v.Status = "running"
		}
		out = append(out, v)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func frameNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "frame number must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// writeLibraryError maps library, container and codec errors to statuses.
func (s *Server) writeLibraryError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, library.ErrNotFound), errors.Is(err, dv.ErrFrameOutOfRange):
		code = http.StatusNotFound
	case errors.Is(err, library.ErrBadField), errors.Is(err, codec.ErrNotInterlaced):
		code = http.StatusBadRequest
	case errors.Is(err, codec.ErrUnsupportedPayload):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, format.ErrCorrupt), errors.Is(err, format.ErrInvalidPreamble):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, fs.ErrExist):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		s.log.Warn("request failed", "error", err)
	}
	writeError(w, code, err.Error())
}
