package tts

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"marketpulse/internal/config"
	"marketpulse/internal/models"
)

type fakeProvider struct {
	name  string
	fail  bool
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Synthesize(ctx context.Context, text, preset string) ([]byte, string, error) {
	p.calls++
	if p.fail {
		return nil, "", errors.New("boom")
	}
	return []byte(p.name + ":" + preset + ":" + text), "audio/mpeg", nil
}

func testEngine(providers ...Provider) *Engine {
	return NewEngine(config.TTSConfig{
		Timeout:       time.Second,
		RatePerMinute: 6000,
		FailBackoff:   60 * time.Second,
	}, nil, providers...)
}

func TestSynthesizeFallbackChain(t *testing.T) {
	first := &fakeProvider{name: "first", fail: true}
	second := &fakeProvider{name: "second"}
	e := testEngine(first, second)

	res, err := e.Synthesize(context.Background(), Request{Text: "BTC broke out", Priority: models.PriorityHigh})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Provider != "second" {
		t.Fatalf("provider = %q, want second", res.Provider)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}
}

func TestSynthesizeFailureBackoff(t *testing.T) {
	first := &fakeProvider{name: "first", fail: true}
	second := &fakeProvider{name: "second"}
	e := testEngine(first, second)

	base := time.Unix(1700000000, 0)
	now := base
	e.now = func() time.Time { return now }

	if _, err := e.Synthesize(context.Background(), Request{Text: "one"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	// Still inside backoff: the failed provider is skipped entirely.
	now = base.Add(30 * time.Second)
	if _, err := e.Synthesize(context.Background(), Request{Text: "two"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if first.calls != 1 {
		t.Fatalf("sidelined provider called %d times, want 1", first.calls)
	}

	statuses := e.Providers()
	if statuses[0].Available || !statuses[1].Available {
		t.Fatalf("statuses = %+v, want first unavailable", statuses)
	}

	// Backoff expired: the provider gets another chance.
	now = base.Add(61 * time.Second)
	if _, err := e.Synthesize(context.Background(), Request{Text: "three"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if first.calls != 2 {
		t.Fatalf("recovered provider called %d times, want 2", first.calls)
	}
}

func TestSynthesizeCache(t *testing.T) {
	p := &fakeProvider{name: "only"}
	e := testEngine(p)

	req := Request{Text: "ETH reclaimed 3000", Priority: models.PriorityCritical}
	first, err := e.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if first.Cached {
		t.Fatalf("first call should not be cached")
	}

	second, err := e.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synthesize cached: %v", err)
	}
	if !second.Cached {
		t.Fatalf("second call should be cached")
	}
	if !bytes.Equal(first.Audio, second.Audio) {
		t.Fatalf("cached audio differs")
	}
	if p.calls != 1 {
		t.Fatalf("provider called %d times, want 1", p.calls)
	}

	// A different preset is a different cache entry.
	if _, err := e.Synthesize(context.Background(), Request{Text: "ETH reclaimed 3000", Priority: models.PriorityInfo}); err != nil {
		t.Fatalf("Synthesize other preset: %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("provider called %d times, want 2", p.calls)
	}
}

func TestSynthesizePreferredProvider(t *testing.T) {
	first := &fakeProvider{name: "first"}
	second := &fakeProvider{name: "second"}
	e := testEngine(first, second)

	res, err := e.Synthesize(context.Background(), Request{Text: "SOL reclaimed 150", Provider: "second"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Provider != "second" {
		t.Fatalf("provider = %q, want second", res.Provider)
	}
	if first.calls != 0 || second.calls != 1 {
		t.Fatalf("calls = %d/%d, want 0/1", first.calls, second.calls)
	}

	// The rest of the chain still backs a failing preferred provider.
	second.fail = true
	res, err = e.Synthesize(context.Background(), Request{Text: "SOL lost 140", Provider: "second"})
	if err != nil {
		t.Fatalf("Synthesize with fallback: %v", err)
	}
	if res.Provider != "first" {
		t.Fatalf("provider = %q, want first as fallback", res.Provider)
	}

	if _, err := e.Synthesize(context.Background(), Request{Text: "hello", Provider: "ghost"}); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("want ErrUnknownProvider, got %v", err)
	}
}

func TestSynthesizeAllFailed(t *testing.T) {
	e := testEngine(&fakeProvider{name: "a", fail: true}, &fakeProvider{name: "b", fail: true})
	_, err := e.Synthesize(context.Background(), Request{Text: "anything"})
	if !errors.Is(err, ErrSynthesisUnavailable) {
		t.Fatalf("want ErrSynthesisUnavailable, got %v", err)
	}
}

func TestSynthesizeRejectsEmpty(t *testing.T) {
	e := testEngine(&fakeProvider{name: "a"})
	_, err := e.Synthesize(context.Background(), Request{Text: "🚀🔥"})
	if !errors.Is(err, ErrEmptyAfterSanitize) {
		t.Fatalf("want ErrEmptyAfterSanitize, got %v", err)
	}
}

func TestPresetFor(t *testing.T) {
	tests := []struct {
		in   models.Priority
		want string
	}{
		{models.PriorityCritical, "urgent"},
		{models.PriorityHigh, "brisk"},
		{models.PriorityMedium, "neutral"},
		{models.PriorityLow, "neutral"},
		{models.PriorityInfo, "calm"},
	}
	for _, tt := range tests {
		if got := PresetFor(tt.in); got != tt.want {
			t.Fatalf("PresetFor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
