package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zsiec/pv4/internal/ingest"
	"github.com/zsiec/pv4/internal/recorder"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	// SECURITY: any origin may follow the event feed. It carries counters
	// only; deployments that need more should filter at a proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// LiveInfo is the JSON summary of a recording in progress.
type LiveInfo struct {
	recorder.Stats
	Ingest *ingest.Stats `json:"ingest,omitempty"`
}

func (s *Server) handleListLive(w http.ResponseWriter, _ *http.Request) {
	recs := s.config.Recordings.List()
	out := make([]LiveInfo, len(recs))
	for i, rec := range recs {
		out[i] = LiveInfo{Stats: rec.Stats()}
		if s.config.IngestLookup != nil {
			out[i].Ingest = s.config.IngestLookup(rec.Key)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEvents streams recorder events as JSON text messages until the
// client goes away. Without a key every recording is followed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	events, unsubscribe := s.config.Recordings.Subscribe(key)
	defer unsubscribe()

	s.log.Debug("event feed connected", "key", key, "remote", r.RemoteAddr)

	// The client sends nothing; reading detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Current state first, so late joiners see what is running.
	for _, rec := range s.config.Recordings.List() {
		if key != "" && rec.Key != key {
			continue
		}
		st := rec.Stats()
		ev := recorder.Event{
			Type:        recorder.EventProgress,
			RecordingID: st.RecordingID,
			StreamKey:   st.StreamKey,
			Path:        st.Path,
			Frames:      st.Frames,
			Samples:     st.Samples,
			Bytes:       st.Bytes,
			Timestamp:   time.Now().UnixMilli(),
		}
		if err := s.writeEvent(ws, ev); err != nil {
			return
		}
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-s.ctx.Done():
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeEvent(ws, ev); err != nil {
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeEvent(ws *websocket.Conn, ev recorder.Event) error {
	ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := ws.WriteJSON(ev); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			s.log.Debug("event feed write", "error", err)
		}
		return err
	}
	return nil
}
