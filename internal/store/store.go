package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"marketpulse/internal/models"
)

var (
	ErrNotFound = errors.New("notification not found")
	ErrInvalid  = errors.New("invalid notification")
)

// EventKind labels store mutation events fanned out to clients.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

type Event struct {
	Kind         EventKind           `json:"kind"`
	Notification models.Notification `json:"notification"`
}

// Sink receives mutation events. Implementations must not block.
type Sink func(Event)

// Archiver receives evicted notifications; nil disables archiving.
type Archiver interface {
	Archive(ctx context.Context, n models.Notification)
}

// Stats is the aggregate view served at /notifications/stats/summary.
type Stats struct {
	Total      int            `json:"total"`
	Unread     int            `json:"unread_count"`
	Responded  int            `json:"responded_count"`
	ByPriority map[string]int `json:"total_by_priority"`
	BySource   map[string]int `json:"total_by_source"`
	ByType     map[string]int `json:"total_by_type"`
}

// Store is the authoritative in-memory notification log. All access is
// serialized through a single command loop, so appends are linearizable and
// every reader sees a consistent snapshot. The index maps below are touched
// only by the loop goroutine.
type Store struct {
	cmds     chan func()
	cap      int
	logger   *zap.Logger
	sink     Sink
	archiver Archiver

	byID     map[string]*models.Notification
	byDedup  map[string]string
	bySymbol map[string][]string
	bySource map[string][]string
	order    []string
}

func New(retentionCap int, logger *zap.Logger) *Store {
	if retentionCap <= 0 {
		retentionCap = 10000
	}
	return &Store{
		cmds:     make(chan func(), 256),
		cap:      retentionCap,
		logger:   logger,
		byID:     map[string]*models.Notification{},
		byDedup:  map[string]string{},
		bySymbol: map[string][]string{},
		bySource: map[string][]string{},
		order:    make([]string, 0, 1024),
	}
}

// SetSink installs the mutation-event receiver. Call before Run.
func (s *Store) SetSink(sink Sink) { s.sink = sink }

// SetArchiver installs the eviction receiver. Call before Run.
func (s *Store) SetArchiver(a Archiver) { s.archiver = a }

// Run drains the command queue until ctx is cancelled.
func (s *Store) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.cmds:
			fn()
		}
	}
}

// do runs fn on the store loop and waits for completion.
func (s *Store) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) emit(kind EventKind, n models.Notification) {
	if s.sink != nil {
		s.sink(Event{Kind: kind, Notification: n})
	}
}
