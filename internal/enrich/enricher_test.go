package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"marketpulse/internal/config"
	"marketpulse/internal/models"
	"marketpulse/internal/store"
)

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) SummarizeMessage(ctx context.Context, n models.Notification, maxWords int) (string, error) {
	f.calls++
	return f.summary, f.err
}

func testEnricher(t *testing.T, sum Summarizer) (*Enricher, context.Context) {
	t.Helper()
	st := store.New(100, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go st.Run(ctx)
	return New(st, sum, config.EnrichConfig{SummaryCache: 16}, nil), ctx
}

func rawNotification(title, message string) models.Notification {
	return models.Notification{
		Type:     models.TypeNewsEvent,
		Source:   models.SourceNews,
		Priority: models.PriorityMedium,
		Title:    title,
		Message:  message,
	}
}

func TestEnrichUsesAISummary(t *testing.T) {
	sum := &fakeSummarizer{summary: "ETF approved, inflows expected"}
	e, ctx := testEnricher(t, sum)

	n, created, err := e.Enrich(ctx, rawNotification("Bitcoin ETF approved", "Long body..."))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if !created {
		t.Fatalf("first enrich reported duplicate")
	}
	if n.SummarizedMessage != "ETF approved, inflows expected" {
		t.Fatalf("summary = %q", n.SummarizedMessage)
	}
	if sum.calls != 1 {
		t.Fatalf("summarizer calls = %d, want 1", sum.calls)
	}
}

func TestEnrichFallbackOnAIFailure(t *testing.T) {
	sum := &fakeSummarizer{err: errors.New("model offline")}
	e, ctx := testEnricher(t, sum)

	n, _, err := e.Enrich(ctx, rawNotification("Exchange halts withdrawals", "details"))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if n.SummarizedMessage != "Exchange halts withdrawals" {
		t.Fatalf("fallback summary = %q, want the title", n.SummarizedMessage)
	}
}

func TestEnrichFallbackTruncatesToBudget(t *testing.T) {
	words := make([]string, 40)
	for i := range words {
		words[i] = "word"
	}
	longTitle := strings.Join(words, " ")

	sum := &fakeSummarizer{err: errors.New("down")}
	e, ctx := testEnricher(t, sum)

	raw := rawNotification(longTitle, "")
	raw.Priority = models.PriorityCritical
	n, _, err := e.Enrich(ctx, raw)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got := len(strings.Fields(n.SummarizedMessage)); got != 15 {
		t.Fatalf("fallback word count = %d, want the critical budget of 15", got)
	}
}

func TestEnrichTruncatesOverlongAISummary(t *testing.T) {
	sum := &fakeSummarizer{summary: strings.Repeat("verbose ", 50)}
	e, ctx := testEnricher(t, sum)

	n, _, err := e.Enrich(ctx, rawNotification("chatty model", "m"))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got := len(strings.Fields(n.SummarizedMessage)); got != 25 {
		t.Fatalf("summary word count = %d, want the medium budget of 25", got)
	}
}

func TestEnrichDuplicateShortCircuits(t *testing.T) {
	sum := &fakeSummarizer{summary: "summary"}
	e, ctx := testEnricher(t, sum)

	raw := rawNotification("same story", "same body")
	first, created, err := e.Enrich(ctx, raw)
	if err != nil || !created {
		t.Fatalf("first enrich: %v created=%v", err, created)
	}

	second, created, err := e.Enrich(ctx, raw)
	if err != nil {
		t.Fatalf("second enrich: %v", err)
	}
	if created {
		t.Fatalf("duplicate reported created")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate id = %q, want %q", second.ID, first.ID)
	}
	if sum.calls != 1 {
		t.Fatalf("summarizer calls = %d, want 1", sum.calls)
	}
}

func TestEnrichExtractsSymbol(t *testing.T) {
	e, ctx := testEnricher(t, nil)

	n, _, err := e.Enrich(ctx, rawNotification("$BTC breaks resistance", "momentum building"))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if n.Symbol != "BTC/USDT" {
		t.Fatalf("symbol = %q, want BTC/USDT", n.Symbol)
	}

	// An explicit symbol is never overwritten.
	raw := rawNotification("$BTC mentioned", "but the position is ETH")
	raw.Symbol = "ETH/USDT"
	n, _, err = e.Enrich(ctx, raw)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if n.Symbol != "ETH/USDT" {
		t.Fatalf("symbol = %q, want ETH/USDT", n.Symbol)
	}
}

func TestEnrichNormalizesBareSymbol(t *testing.T) {
	e, ctx := testEnricher(t, nil)

	// A known base asset without a quote gets the default pair appended.
	raw := rawNotification("whale moved funds", "details")
	raw.Symbol = "btc"
	n, _, err := e.Enrich(ctx, raw)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if n.Symbol != "BTC/USDT" {
		t.Fatalf("symbol = %q, want BTC/USDT", n.Symbol)
	}

	// Unknown bases pass through untouched.
	raw = rawNotification("obscure token pumping", "details")
	raw.Symbol = "XYZ123"
	n, _, err = e.Enrich(ctx, raw)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if n.Symbol != "XYZ123" {
		t.Fatalf("symbol = %q, want XYZ123 unchanged", n.Symbol)
	}
}

func TestEnrichDefaultPriority(t *testing.T) {
	e, ctx := testEnricher(t, nil)

	tests := []struct {
		typ  string
		want models.Priority
	}{
		{models.TypeRiskAlert, models.PriorityCritical},
		{models.TypeTechnicalBreakout, models.PriorityHigh},
		{models.TypeSocialSurge, models.PriorityMedium},
		{models.TypeNewsEvent, models.PriorityLow},
		{models.TypeSystemStatus, models.PriorityInfo},
	}
	for _, tt := range tests {
		raw := models.Notification{
			Type:    tt.typ,
			Source:  models.SourceSystem,
			Title:   "priority for " + tt.typ,
			Message: "m",
		}
		n, _, err := e.Enrich(ctx, raw)
		if err != nil {
			t.Fatalf("Enrich(%s): %v", tt.typ, err)
		}
		if n.Priority != tt.want {
			t.Fatalf("priority for %s = %q, want %q", tt.typ, n.Priority, tt.want)
		}
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"one two three", 5, "one two three"},
		{"one two three", 2, "one two"},
		{"  spaced   out  ", 5, "spaced out"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := TruncateWords(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncateWords(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
