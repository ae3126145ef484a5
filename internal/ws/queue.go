package ws

import (
	"time"

	"marketpulse/internal/models"
)

// QueueConfig tunes the presentation pacing.
type QueueConfig struct {
	// Cooldowns hold back an incoming item whose priority does not exceed the
	// last presented one, measured from the last completion.
	Cooldowns map[models.Priority]time.Duration
	// VisualDuration is the minimum toast lifetime.
	VisualDuration time.Duration
	// MaxVoiceHold caps how long we wait for the client's voice_done before
	// treating the utterance as finished.
	MaxVoiceHold time.Duration
}

func DefaultCooldowns() map[models.Priority]time.Duration {
	return map[models.Priority]time.Duration{
		models.PriorityCritical: 0,
		models.PriorityHigh:     3 * time.Second,
		models.PriorityMedium:   5 * time.Second,
		models.PriorityLow:      8 * time.Second,
		models.PriorityInfo:     10 * time.Second,
	}
}

// PresentEventKind is what Advance reports back to the session.
type PresentEventKind string

const (
	EventPresent  PresentEventKind = "present"
	EventComplete PresentEventKind = "complete"
)

type PresentEvent struct {
	Kind         PresentEventKind
	Notification models.Notification
}

// Queue is the per-session presentation pacer. One item is presented at a
// time: voice first, toast visible until both the voice finished and the
// visual window elapsed. Ordering is priority then FIFO. The queue holds no
// timers; callers pass the clock in and schedule wake-ups via NextWake.
type Queue struct {
	cfg QueueConfig

	pending []models.Notification
	seen    map[string]struct{}

	current     *models.Notification
	presentedAt time.Time
	voiceDone   bool
	voiceDoneAt time.Time
	dismissed   bool

	hasLast         bool
	lastPriority    models.Priority
	lastCompletedAt time.Time
}

func NewQueue(cfg QueueConfig) *Queue {
	if cfg.Cooldowns == nil {
		cfg.Cooldowns = DefaultCooldowns()
	}
	if cfg.VisualDuration <= 0 {
		cfg.VisualDuration = 5 * time.Second
	}
	if cfg.MaxVoiceHold <= 0 {
		cfg.MaxVoiceHold = 30 * time.Second
	}
	return &Queue{cfg: cfg, seen: map[string]struct{}{}}
}

// Enqueue adds a notification unless this session already surfaced it.
// Insertion keeps the pending list ordered by priority, FIFO within equal
// priority.
func (q *Queue) Enqueue(n models.Notification) bool {
	if _, ok := q.seen[n.ID]; ok {
		return false
	}
	q.seen[n.ID] = struct{}{}

	idx := len(q.pending)
	for i, p := range q.pending {
		if n.Priority.Rank() > p.Priority.Rank() {
			idx = i
			break
		}
	}
	q.pending = append(q.pending, models.Notification{})
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = n
	return true
}

// VoiceDone records that the client finished speaking the current item.
func (q *Queue) VoiceDone(id string, now time.Time) {
	if q.current == nil || q.current.ID != id || q.voiceDone {
		return
	}
	q.voiceDone = true
	q.voiceDoneAt = now
}

// Dismiss drops a pending item or ends the current toast early. Dismissed IDs
// stay in the seen set so they cannot resurface.
func (q *Queue) Dismiss(id string, now time.Time) {
	if q.current != nil && q.current.ID == id {
		q.dismissed = true
		if !q.voiceDone {
			q.voiceDone = true
			q.voiceDoneAt = now
		}
		return
	}
	for i, p := range q.pending {
		if p.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Current returns the item being presented, if any.
func (q *Queue) Current() (models.Notification, bool) {
	if q.current == nil {
		return models.Notification{}, false
	}
	return *q.current, true
}

// Depth returns the number of items waiting.
func (q *Queue) Depth() int { return len(q.pending) }

// Advance runs every transition due at now and returns the resulting events
// in order. Callers re-arm their timer from NextWake afterwards.
func (q *Queue) Advance(now time.Time) []PresentEvent {
	var events []PresentEvent
	for {
		if q.current != nil {
			if !q.completeDue(now) {
				return events
			}
			done := *q.current
			q.current = nil
			q.hasLast = true
			q.lastPriority = done.Priority
			q.lastCompletedAt = now
			events = append(events, PresentEvent{Kind: EventComplete, Notification: done})
			continue
		}
		if len(q.pending) == 0 {
			return events
		}
		head := q.pending[0]
		if now.Before(q.eligibleAt(head)) {
			return events
		}
		q.pending = q.pending[1:]
		q.current = &head
		q.presentedAt = now
		q.voiceDone = false
		q.dismissed = false
		events = append(events, PresentEvent{Kind: EventPresent, Notification: head})
	}
}

// completeDue decides whether the current item may leave the screen. The
// voice must have finished (or exceeded the hold cap); then the toast stays
// until the visual window elapses, unless dismissed or preempted by a
// pending critical.
func (q *Queue) completeDue(now time.Time) bool {
	voiceEnd := q.voiceDoneAt
	if !q.voiceDone {
		hold := q.presentedAt.Add(q.cfg.MaxVoiceHold)
		if now.Before(hold) {
			return false
		}
		voiceEnd = hold
	}
	if q.dismissed {
		return true
	}
	if q.criticalWaiting() && q.current.Priority != models.PriorityCritical {
		return true
	}
	visualEnd := q.presentedAt.Add(q.cfg.VisualDuration)
	if voiceEnd.After(visualEnd) {
		visualEnd = voiceEnd
	}
	return !now.Before(visualEnd)
}

func (q *Queue) criticalWaiting() bool {
	return len(q.pending) > 0 && q.pending[0].Priority == models.PriorityCritical
}

// eligibleAt returns when the head item may be presented. An item that
// outranks the last presented one starts immediately; otherwise its own
// priority's cooldown runs from the last completion.
func (q *Queue) eligibleAt(n models.Notification) time.Time {
	if !q.hasLast {
		return q.lastCompletedAt
	}
	if n.Priority.Rank() > q.lastPriority.Rank() {
		return q.lastCompletedAt
	}
	return q.lastCompletedAt.Add(q.cfg.Cooldowns[n.Priority])
}

// NextWake returns the earliest future instant at which Advance could make
// progress. ok is false when the queue is fully idle.
func (q *Queue) NextWake(now time.Time) (time.Time, bool) {
	if q.current != nil {
		if !q.voiceDone {
			return q.presentedAt.Add(q.cfg.MaxVoiceHold), true
		}
		visualEnd := q.presentedAt.Add(q.cfg.VisualDuration)
		if q.voiceDoneAt.After(visualEnd) {
			visualEnd = q.voiceDoneAt
		}
		return visualEnd, true
	}
	if len(q.pending) == 0 {
		return time.Time{}, false
	}
	at := q.eligibleAt(q.pending[0])
	if at.Before(now) {
		at = now
	}
	return at, true
}
