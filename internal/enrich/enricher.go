package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"marketpulse/internal/config"
	"marketpulse/internal/metrics"
	"marketpulse/internal/models"
	"marketpulse/internal/store"
	"marketpulse/internal/symbols"
)

// Summarizer is the AI collaborator contract.
type Summarizer interface {
	SummarizeMessage(ctx context.Context, n models.Notification, maxWords int) (string, error)
}

// Enricher turns raw source events into fully-formed notifications: dedup key,
// symbol, priority, AI summary, then store append. AI failures never block the
// append; the fallback summary is used and a warning counter incremented.
type Enricher struct {
	Store      *store.Store
	Summarizer Summarizer
	Logger     *zap.Logger
	Config     config.EnrichConfig

	cache *lru.Cache[string, string]
}

func New(st *store.Store, sum Summarizer, cfg config.EnrichConfig, logger *zap.Logger) *Enricher {
	size := cfg.SummaryCache
	if size <= 0 {
		size = 512
	}
	cache, _ := lru.New[string, string](size)
	return &Enricher{
		Store:      st,
		Summarizer: sum,
		Logger:     logger,
		Config:     cfg,
		cache:      cache,
	}
}

// Enrich processes a raw notification and appends it to the store. When the
// dedup key already exists the stored notification is returned unchanged.
func (e *Enricher) Enrich(ctx context.Context, raw models.Notification) (models.Notification, bool, error) {
	if raw.DedupKey == "" {
		raw.DedupKey = raw.ComputeDedupKey()
	}
	if existing, ok, err := e.Store.HasDedup(ctx, raw.DedupKey); err != nil {
		return models.Notification{}, false, err
	} else if ok {
		return existing, false, nil
	}

	switch {
	case raw.Symbol == "":
		if base := symbols.ExtractFirst(raw.Title + " " + raw.Message); base != "" {
			raw.Symbol = base + "/USDT"
		}
	case !strings.Contains(raw.Symbol, "/") && symbols.Known(raw.Symbol):
		raw.Symbol = strings.ToUpper(raw.Symbol) + "/USDT"
	}
	if !raw.Priority.Valid() {
		raw.Priority = defaultPriority(raw.Type)
	}
	raw.SummarizedMessage = e.summarize(ctx, raw)

	return e.Store.Append(ctx, raw)
}

func defaultPriority(typ string) models.Priority {
	switch typ {
	case models.TypeRiskAlert:
		return models.PriorityCritical
	case models.TypeCombinedSignal, models.TypeTechnicalBreakout, models.TypeUserActionRequired:
		return models.PriorityHigh
	case models.TypeSocialSurge, models.TypeTradeExecuted:
		return models.PriorityMedium
	case models.TypeNewsEvent:
		return models.PriorityLow
	default:
		return models.PriorityInfo
	}
}

func (e *Enricher) summarize(ctx context.Context, n models.Notification) string {
	budget := n.Priority.SummaryWordBudget()
	key := summaryKey(n)
	if cached, ok := e.cache.Get(key); ok {
		return cached
	}

	if e.Summarizer != nil {
		timeout := e.Config.AITimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		aiCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		summary, err := e.Summarizer.SummarizeMessage(aiCtx, n, budget)
		if err == nil {
			summary = TruncateWords(summary, budget)
			if summary != "" {
				e.cache.Add(key, summary)
				return summary
			}
		} else if e.Logger != nil {
			e.Logger.Warn("ai summary failed, using fallback",
				zap.String("type", n.Type),
				zap.Error(err),
			)
		}
	}

	metrics.SummaryFallbacks.Inc()
	fallback := n.Title
	if fallback == "" {
		fallback = n.Message
	}
	fallback = TruncateWords(fallback, budget)
	if fallback != "" {
		e.cache.Add(key, fallback)
	}
	return fallback
}

// summaryKey is stable across identical content so repeat submissions skip the
// AI call.
func summaryKey(n models.Notification) string {
	h := sha256.Sum256([]byte(n.Type + "|" + string(n.Priority) + "|" + n.Title + "|" + n.Message))
	return hex.EncodeToString(h[:16])
}

// TruncateWords caps text at n words.
func TruncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
