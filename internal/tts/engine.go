package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"marketpulse/internal/config"
	"marketpulse/internal/metrics"
	"marketpulse/internal/models"
)

// ErrSynthesisUnavailable means every configured provider failed or is in
// failure backoff.
var ErrSynthesisUnavailable = errors.New("tts: no provider available")

// ErrUnknownProvider means the requested provider override names nothing in
// the configured chain.
var ErrUnknownProvider = errors.New("tts: unknown provider")

// Provider synthesizes sanitized text into audio.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text, preset string) ([]byte, string, error)
}

// Request is one synthesis call. Text is raw; the engine sanitizes it.
// Provider optionally moves the named provider to the front of the chain.
type Request struct {
	Text     string
	Priority models.Priority
	Provider string
}

// Result carries the synthesized audio and which provider produced it.
type Result struct {
	Audio    []byte
	MimeType string
	Provider string
	Cached   bool
}

type cachedAudio struct {
	audio []byte
	mime  string
}

// Engine walks the provider chain in configured order, caches successful
// synths, and sidelines a failing provider for the backoff window before
// retrying it.
type Engine struct {
	Logger *zap.Logger
	Config config.TTSConfig

	providers []Provider
	limiter   *rate.Limiter
	cache     *lru.Cache[string, cachedAudio]

	mu       sync.Mutex
	failedAt map[string]time.Time

	now func() time.Time
}

func NewEngine(cfg config.TTSConfig, logger *zap.Logger, providers ...Provider) *Engine {
	size := cfg.CacheSize
	if size <= 0 {
		size = 256
	}
	cache, _ := lru.New[string, cachedAudio](size)
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Engine{
		Logger:    logger,
		Config:    cfg,
		providers: providers,
		limiter:   rate.NewLimiter(rate.Limit(perMinute/60), 3),
		cache:     cache,
		failedAt:  map[string]time.Time{},
		now:       time.Now,
	}
}

// PresetFor maps notification priority to a delivery style. Providers decide
// how to express the style in their own parameters.
func PresetFor(p models.Priority) string {
	switch p {
	case models.PriorityCritical:
		return "urgent"
	case models.PriorityHigh:
		return "brisk"
	case models.PriorityInfo:
		return "calm"
	default:
		return "neutral"
	}
}

// ProviderStatus is the availability view exposed over the API.
type ProviderStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

func (e *Engine) Providers() []ProviderStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	out := make([]ProviderStatus, 0, len(e.providers))
	for _, p := range e.providers {
		out = append(out, ProviderStatus{
			Name:      p.Name(),
			Available: !e.sidelinedLocked(p.Name(), now),
		})
	}
	return out
}

// Synthesize sanitizes the text and tries each provider in order. Identical
// requests hit the audio cache and return byte-identical output without a
// provider call.
func (e *Engine) Synthesize(ctx context.Context, req Request) (Result, error) {
	text, err := Sanitize(req.Text)
	if err != nil {
		return Result{}, err
	}
	preset := PresetFor(req.Priority)
	providers, err := e.chain(req.Provider)
	if err != nil {
		return Result{}, err
	}

	// Cache lookups never consume rate budget.
	for _, p := range providers {
		if hit, ok := e.cache.Get(cacheKey(p.Name(), preset, text)); ok {
			metrics.TTSCacheHits.Inc()
			return Result{Audio: hit.audio, MimeType: hit.mime, Provider: p.Name(), Cached: true}, nil
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	timeout := e.Config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	for _, p := range providers {
		name := p.Name()
		e.mu.Lock()
		sidelined := e.sidelinedLocked(name, e.now())
		e.mu.Unlock()
		if sidelined {
			continue
		}

		synthCtx, cancel := context.WithTimeout(ctx, timeout)
		audio, mime, err := p.Synthesize(synthCtx, text, preset)
		cancel()
		if err != nil {
			metrics.TTSFailures.WithLabelValues(name).Inc()
			e.mu.Lock()
			e.failedAt[name] = e.now()
			e.mu.Unlock()
			if e.Logger != nil {
				e.Logger.Warn("tts provider failed", zap.String("provider", name), zap.Error(err))
			}
			continue
		}

		e.cache.Add(cacheKey(name, preset, text), cachedAudio{audio: audio, mime: mime})
		return Result{Audio: audio, MimeType: mime, Provider: name}, nil
	}
	return Result{}, ErrSynthesisUnavailable
}

// chain returns the provider order for one request. A preferred provider is
// tried first; the rest stay available as fallback.
func (e *Engine) chain(preferred string) ([]Provider, error) {
	if preferred == "" {
		return e.providers, nil
	}
	for i, p := range e.providers {
		if p.Name() != preferred {
			continue
		}
		out := make([]Provider, 0, len(e.providers))
		out = append(out, p)
		out = append(out, e.providers[:i]...)
		out = append(out, e.providers[i+1:]...)
		return out, nil
	}
	return nil, ErrUnknownProvider
}

func (e *Engine) sidelinedLocked(name string, now time.Time) bool {
	at, ok := e.failedAt[name]
	if !ok {
		return false
	}
	backoff := e.Config.FailBackoff
	if backoff <= 0 {
		backoff = 60 * time.Second
	}
	if now.Sub(at) >= backoff {
		delete(e.failedAt, name)
		return false
	}
	return true
}

func cacheKey(provider, preset, text string) string {
	h := sha256.Sum256([]byte(provider + "|" + preset + "|" + text))
	return provider + ":" + hex.EncodeToString(h[:16])
}
