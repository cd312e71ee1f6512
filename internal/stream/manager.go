// Package stream tracks the recordings in progress and fans their events
// out to subscribers such as the websocket feed.
package stream

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/pv4/internal/recorder"
)

// subscriberBuffer is the per-subscriber event backlog. Events to a full
// subscriber are dropped.
const subscriberBuffer = 64

// Recording is one live stream being written to disk.
type Recording struct {
	ID        string
	Key       string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.RWMutex
	rec *recorder.Recorder
}

// Done is closed when the recording is removed.
func (r *Recording) Done() <-chan struct{} { return r.done }

// SetRecorder attaches the recorder whose counters Stats reports.
func (r *Recording) SetRecorder(rec *recorder.Recorder) {
	r.mu.Lock()
	r.rec = rec
	r.mu.Unlock()
}

// Stats returns the recorder counters, or the identity alone when no
// recorder is attached yet.
func (r *Recording) Stats() recorder.Stats {
	r.mu.RLock()
	rec := r.rec
	r.mu.RUnlock()
	if rec == nil {
		return recorder.Stats{
			RecordingID: r.ID,
			StreamKey:   r.Key,
			StartedAt:   r.StartedAt.UnixMilli(),
			UptimeMs:    time.Since(r.StartedAt).Milliseconds(),
		}
	}
	return rec.Stats()
}

// Stop cancels the recording's context.
func (r *Recording) Stop() { r.cancel() }

type subscriber struct {
	key string
	ch  chan recorder.Event
}

// Manager manages the lifecycle of recordings.
type Manager struct {
	log *slog.Logger

	mu         sync.RWMutex
	recordings map[string]*Recording

	subMu sync.Mutex
	subs  map[*subscriber]struct{}
}

// NewManager creates a new manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:        log.With("component", "stream-manager"),
		recordings: make(map[string]*Recording),
		subs:       make(map[*subscriber]struct{}),
	}
}

// Create registers a recording for key and returns it with a context that
// Stop or Remove cancels. It returns false if key is already recording.
func (m *Manager) Create(ctx context.Context, key string) (*Recording, context.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.recordings[key]; ok {
		m.log.Warn("recording already exists, rejecting duplicate", "key", key)
		return nil, nil, false
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &Recording{
		ID:        uuid.NewString(),
		Key:       key,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	m.recordings[key] = r
	m.log.Info("recording created", "key", key, "id", r.ID)
	return r, rctx, true
}

// Remove removes the recording for key and cancels its context.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	r, ok := m.recordings[key]
	if ok {
		delete(m.recordings, key)
	}
	m.mu.Unlock()

	if ok {
		r.cancel()
		close(r.done)
		m.log.Info("recording removed", "key", key, "id", r.ID)
	}
}

// Get returns the recording for key.
func (m *Manager) Get(key string) (*Recording, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recordings[key]
	return r, ok
}

// List returns all recordings ordered by key.
func (m *Manager) List() []*Recording {
	m.mu.RLock()
	out := make([]*Recording, 0, len(m.recordings))
	for _, r := range m.recordings {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Subscribe returns a channel of events for key, or for every recording
// when key is empty. The returned function unsubscribes and closes the
// channel.
func (m *Manager) Subscribe(key string) (<-chan recorder.Event, func()) {
	s := &subscriber{key: key, ch: make(chan recorder.Event, subscriberBuffer)}
	m.subMu.Lock()
	m.subs[s] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, s)
			m.subMu.Unlock()
			close(s.ch)
		})
	}
}

// Publish delivers ev to matching subscribers without blocking.
func (m *Manager) Publish(ev recorder.Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for s := range m.subs {
		if s.key != "" && s.key != ev.StreamKey {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			m.log.Debug("subscriber slow, event dropped", "key", ev.StreamKey, "type", ev.Type)
		}
	}
}
