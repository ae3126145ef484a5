package source

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/models"
)

const dedupRingSize = 100

// Snapshot persists per-source tracking state to a JSON file so a restart
// replays as few provider items as possible.
type Snapshot struct {
	mu     sync.Mutex
	path   string
	states map[string]models.SourceState
	logger *zap.Logger
}

func LoadSnapshot(path string, logger *zap.Logger) *Snapshot {
	s := &Snapshot{
		path:   path,
		states: map[string]models.SourceState{},
		logger: logger,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && logger != nil {
			logger.Warn("source snapshot read failed", zap.Error(err))
		}
		return s
	}
	if err := json.Unmarshal(data, &s.states); err != nil && logger != nil {
		logger.Warn("source snapshot parse failed", zap.Error(err))
	}
	return s
}

func (s *Snapshot) Get(name string) models.SourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[name]
}

func (s *Snapshot) Put(name string, state models.SourceState) {
	s.mu.Lock()
	s.states[name] = state
	s.mu.Unlock()
}

// Flush writes the snapshot atomically (tmp file + rename).
func (s *Snapshot) Flush() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.states, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Tracker owns the cursor and dedup ring for one source. Only its poller
// writes to it.
type Tracker struct {
	mu    sync.Mutex
	name  string
	state models.SourceState
	snap  *Snapshot
}

func NewTracker(name string, snap *Snapshot) *Tracker {
	t := &Tracker{name: name, snap: snap}
	if snap != nil {
		t.state = snap.Get(name)
	}
	if len(t.state.SeenIDs) > dedupRingSize {
		t.state.SeenIDs = t.state.SeenIDs[len(t.state.SeenIDs)-dedupRingSize:]
	}
	return t
}

// Seen reports whether id is in the dedup ring or equals the cursor.
func (t *Tracker) Seen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == "" {
		return false
	}
	if id == t.state.LastSeenID {
		return true
	}
	for _, v := range t.state.SeenIDs {
		if v == id {
			return true
		}
	}
	return false
}

// Mark records id as delivered and advances the cursor.
func (t *Tracker) Mark(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.LastSeenID = id
	t.state.SeenIDs = append(t.state.SeenIDs, id)
	if len(t.state.SeenIDs) > dedupRingSize {
		t.state.SeenIDs = t.state.SeenIDs[len(t.state.SeenIDs)-dedupRingSize:]
	}
	t.persistLocked()
}

func (t *Tracker) Cursor() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.LastSeenID
}

// Polled records a completed poll. An empty provider response still updates
// the poll timestamp, never the cursor.
func (t *Tracker) Polled(now time.Time, pollErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.LastPollAt = &now
	if pollErr != nil {
		t.state.LastError = pollErr.Error()
	} else {
		t.state.LastError = ""
	}
	t.persistLocked()
}

func (t *Tracker) LastPoll() (*time.Time, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.LastPollAt, t.state.LastError
}

// SetProviderState stores opaque provider data (e.g. resolved user IDs).
func (t *Tracker) SetProviderState(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.ProviderState == nil {
		t.state.ProviderState = map[string]string{}
	}
	t.state.ProviderState[key] = value
	t.persistLocked()
}

func (t *Tracker) ProviderState(key string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.ProviderState[key]
}

func (t *Tracker) persistLocked() {
	if t.snap != nil {
		t.snap.Put(t.name, t.state)
	}
}

func (t *Tracker) health() HealthStatus {
	at, lastErr := t.LastPoll()
	status := "healthy"
	var errPtr *string
	if lastErr != "" {
		status = "degraded"
		errPtr = &lastErr
	}
	if at == nil {
		status = "unknown"
	}
	return HealthStatus{Status: status, LastPollAt: at, LastError: errPtr}
}
