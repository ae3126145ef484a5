package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"marketpulse/internal/config"
	"marketpulse/internal/enrich"
	"marketpulse/internal/market"
	"marketpulse/internal/source"
	"marketpulse/internal/store"
	"marketpulse/internal/ws"
)

type stubCollector struct {
	name   string
	kicked chan struct{}
}

func (s *stubCollector) Name() string { return s.name }

func (s *stubCollector) Start(ctx context.Context, out source.Emitter) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubCollector) Stop() error { return nil }

func (s *stubCollector) Health() source.HealthStatus {
	return source.HealthStatus{Status: "healthy"}
}

func (s *stubCollector) Kick() {
	select {
	case s.kicked <- struct{}{}:
	default:
	}
}

func newSystemAPI(t *testing.T) (*gin.Engine, *stubCollector) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.New(100, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go st.Run(ctx)

	enricher := enrich.New(st, nil, config.EnrichConfig{}, nil)
	sources := source.NewHub(enricher, nil, nil)
	collector := &stubCollector{name: "news", kicked: make(chan struct{}, 1)}
	sources.Register(collector)

	adapter := market.NewAdapter(config.ExchangeConfig{QuoteAsset: "USDT", Timeout: time.Second}, nil)
	delivery := ws.NewHub(config.DeliveryConfig{}, adapter, nil)

	engine := gin.New()
	(&SystemHandler{
		Sources:   sources,
		Delivery:  delivery,
		Store:     st,
		StartedAt: time.Now(),
		BaseCtx:   ctx,
	}).Register(engine)
	return engine, collector
}

func TestSystemStatus(t *testing.T) {
	engine, _ := newSystemAPI(t)

	w, parsed := doJSON(t, engine, http.MethodGet, "/system/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	if parsed["sessions"] != float64(0) {
		t.Fatalf("sessions = %v", parsed["sessions"])
	}
	sources := parsed["sources"].([]any)
	if len(sources) != 1 {
		t.Fatalf("sources = %v", sources)
	}
	first := sources[0].(map[string]any)
	if first["name"] != "news" || first["running"] != false {
		t.Fatalf("source entry = %v", first)
	}
}

func TestSourceStartStopKick(t *testing.T) {
	engine, collector := newSystemAPI(t)

	w, parsed := doJSON(t, engine, http.MethodPost, "/system/sources/news/start", "")
	if w.Code != http.StatusOK || parsed["running"] != true {
		t.Fatalf("start = %d %v", w.Code, parsed)
	}

	w, parsed = doJSON(t, engine, http.MethodPost, "/system/sources/news/kick", "")
	if w.Code != http.StatusOK || parsed["kicked"] != true {
		t.Fatalf("kick = %d %v", w.Code, parsed)
	}
	select {
	case <-collector.kicked:
	case <-time.After(time.Second):
		t.Fatalf("kick never reached the collector")
	}

	w, parsed = doJSON(t, engine, http.MethodPost, "/system/sources/news/stop", "")
	if w.Code != http.StatusOK || parsed["running"] != false {
		t.Fatalf("stop = %d %v", w.Code, parsed)
	}

	w, _ = doJSON(t, engine, http.MethodPost, "/system/sources/ghost/start", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown source start = %d, want 404", w.Code)
	}
}
