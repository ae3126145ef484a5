package ws

import (
	"testing"
	"time"

	"marketpulse/internal/models"
)

func notif(id string, p models.Priority) models.Notification {
	return models.Notification{ID: id, Priority: p, Title: id}
}

func zeroCooldowns() map[models.Priority]time.Duration {
	return map[models.Priority]time.Duration{
		models.PriorityCritical: 0,
		models.PriorityHigh:     0,
		models.PriorityMedium:   0,
		models.PriorityLow:      0,
		models.PriorityInfo:     0,
	}
}

func fastQueue() *Queue {
	return NewQueue(QueueConfig{
		Cooldowns:      zeroCooldowns(),
		VisualDuration: time.Second,
		MaxVoiceHold:   30 * time.Second,
	})
}

// drain presents and completes every queued item, returning the presented IDs
// in order. Voice is acknowledged immediately after each present.
func drain(q *Queue, start time.Time) []string {
	var order []string
	now := start
	for i := 0; i < 100; i++ {
		events := q.Advance(now)
		progressed := false
		for _, ev := range events {
			if ev.Kind == EventPresent {
				order = append(order, ev.Notification.ID)
				q.VoiceDone(ev.Notification.ID, now)
				progressed = true
			}
		}
		if _, busy := q.Current(); !busy && q.Depth() == 0 {
			break
		}
		if !progressed && len(events) == 0 {
			now = now.Add(time.Second)
			continue
		}
		now = now.Add(time.Second)
	}
	return order
}

func TestQueuePriorityThenFIFO(t *testing.T) {
	q := fastQueue()
	base := time.Unix(1700000000, 0)

	q.Enqueue(notif("m1", models.PriorityMedium))
	q.Enqueue(notif("i1", models.PriorityInfo))
	q.Enqueue(notif("h1", models.PriorityHigh))
	q.Enqueue(notif("m2", models.PriorityMedium))

	got := drain(q, base)
	want := []string{"h1", "m1", "m2", "i1"}
	if len(got) != len(want) {
		t.Fatalf("presented %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("presented %v, want %v", got, want)
		}
	}
}

func TestQueueDedup(t *testing.T) {
	q := fastQueue()
	base := time.Unix(1700000000, 0)

	if !q.Enqueue(notif("n1", models.PriorityMedium)) {
		t.Fatalf("first enqueue refused")
	}
	if q.Enqueue(notif("n1", models.PriorityMedium)) {
		t.Fatalf("duplicate enqueue accepted while pending")
	}

	drain(q, base)
	if q.Enqueue(notif("n1", models.PriorityMedium)) {
		t.Fatalf("duplicate enqueue accepted after completion")
	}
}

func TestQueueCooldown(t *testing.T) {
	q := NewQueue(QueueConfig{
		Cooldowns:      DefaultCooldowns(),
		VisualDuration: time.Second,
		MaxVoiceHold:   30 * time.Second,
	})
	base := time.Unix(1700000000, 0)

	q.Enqueue(notif("h1", models.PriorityHigh))
	events := q.Advance(base)
	if len(events) != 1 || events[0].Kind != EventPresent {
		t.Fatalf("events = %+v, want present h1", events)
	}
	q.VoiceDone("h1", base)
	done := base.Add(time.Second)
	events = q.Advance(done)
	if len(events) != 1 || events[0].Kind != EventComplete {
		t.Fatalf("events = %+v, want complete h1", events)
	}

	// Same-or-lower rank waits out its own cooldown from the completion.
	q.Enqueue(notif("m1", models.PriorityMedium))
	if events := q.Advance(done.Add(4 * time.Second)); len(events) != 0 {
		t.Fatalf("medium presented inside cooldown: %+v", events)
	}
	wake, ok := q.NextWake(done)
	if !ok || !wake.Equal(done.Add(5*time.Second)) {
		t.Fatalf("NextWake = %v ok=%v, want %v", wake, ok, done.Add(5*time.Second))
	}
	events = q.Advance(done.Add(5 * time.Second))
	if len(events) != 1 || events[0].Notification.ID != "m1" {
		t.Fatalf("events = %+v, want present m1", events)
	}
}

func TestQueueHigherRankSkipsCooldown(t *testing.T) {
	q := NewQueue(QueueConfig{
		Cooldowns:      DefaultCooldowns(),
		VisualDuration: time.Second,
		MaxVoiceHold:   30 * time.Second,
	})
	base := time.Unix(1700000000, 0)

	q.Enqueue(notif("h1", models.PriorityHigh))
	q.Advance(base)
	q.VoiceDone("h1", base)
	done := base.Add(time.Second)
	q.Advance(done)

	q.Enqueue(notif("c1", models.PriorityCritical))
	events := q.Advance(done)
	if len(events) != 1 || events[0].Notification.ID != "c1" {
		t.Fatalf("events = %+v, want immediate present c1", events)
	}
}

func TestQueueCriticalPreemptsAfterVoice(t *testing.T) {
	q := fastQueue()
	base := time.Unix(1700000000, 0)

	q.Enqueue(notif("m1", models.PriorityMedium))
	q.Advance(base)

	q.Enqueue(notif("c1", models.PriorityCritical))
	// The voice is still playing; nothing is cut off mid-utterance.
	if events := q.Advance(base.Add(100 * time.Millisecond)); len(events) != 0 {
		t.Fatalf("preempted mid-utterance: %+v", events)
	}

	voiceAt := base.Add(200 * time.Millisecond)
	q.VoiceDone("m1", voiceAt)
	events := q.Advance(voiceAt)
	if len(events) != 2 {
		t.Fatalf("events = %+v, want complete m1 + present c1", events)
	}
	if events[0].Kind != EventComplete || events[0].Notification.ID != "m1" {
		t.Fatalf("events[0] = %+v, want complete m1", events[0])
	}
	if events[1].Kind != EventPresent || events[1].Notification.ID != "c1" {
		t.Fatalf("events[1] = %+v, want present c1", events[1])
	}
}

func TestQueueVoiceHoldCap(t *testing.T) {
	q := NewQueue(QueueConfig{
		Cooldowns:      zeroCooldowns(),
		VisualDuration: 5 * time.Second,
		MaxVoiceHold:   30 * time.Second,
	})
	base := time.Unix(1700000000, 0)

	q.Enqueue(notif("n1", models.PriorityHigh))
	q.Advance(base)

	// Client never acks voice_done.
	if events := q.Advance(base.Add(29 * time.Second)); len(events) != 0 {
		t.Fatalf("completed before hold cap: %+v", events)
	}
	events := q.Advance(base.Add(30 * time.Second))
	if len(events) != 1 || events[0].Kind != EventComplete {
		t.Fatalf("events = %+v, want complete at hold cap", events)
	}
}

func TestQueueVisualOutlastsVoice(t *testing.T) {
	q := fastQueue() // 1s visual window
	base := time.Unix(1700000000, 0)

	q.Enqueue(notif("n1", models.PriorityHigh))
	q.Advance(base)

	// Voice runs past the visual window; the toast stays until the voice ends.
	voiceAt := base.Add(3 * time.Second)
	q.VoiceDone("n1", voiceAt)
	if events := q.Advance(voiceAt.Add(-time.Millisecond)); len(events) != 0 {
		t.Fatalf("completed before voice end: %+v", events)
	}
	if events := q.Advance(voiceAt); len(events) != 1 {
		t.Fatalf("want completion at voice end, got %+v", events)
	}
}

func TestQueueDismiss(t *testing.T) {
	q := fastQueue()
	base := time.Unix(1700000000, 0)

	q.Enqueue(notif("cur", models.PriorityHigh))
	q.Enqueue(notif("pend", models.PriorityMedium))
	q.Advance(base)

	// Dismissing the current item ends it without waiting for voice or visual.
	q.Dismiss("cur", base.Add(time.Second))
	events := q.Advance(base.Add(time.Second))
	if len(events) != 2 || events[0].Kind != EventComplete || events[1].Notification.ID != "pend" {
		t.Fatalf("events = %+v, want complete cur + present pend", events)
	}

	// Dismissing a pending item removes it and keeps it deduplicated.
	q.Enqueue(notif("later", models.PriorityLow))
	q.Dismiss("later", base.Add(2*time.Second))
	if q.Depth() != 0 {
		t.Fatalf("depth = %d, want 0", q.Depth())
	}
	if q.Enqueue(notif("later", models.PriorityLow)) {
		t.Fatalf("dismissed item resurfaced")
	}
}

func TestQueueNextWakeIdle(t *testing.T) {
	q := fastQueue()
	if _, ok := q.NextWake(time.Unix(1700000000, 0)); ok {
		t.Fatalf("idle queue reported a wake time")
	}
}
