package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level collectors registered on the default registry; the gin route
// exposes them via promhttp.
var (
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_notifications_created_total",
		Help: "Notifications appended to the store, by source and priority.",
	}, []string{"source", "priority"})

	NotificationsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketpulse_notifications_deduped_total",
		Help: "Submissions rejected because the dedup key already existed.",
	})

	NotificationsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketpulse_notifications_evicted_total",
		Help: "Notifications evicted past the retention cap.",
	})

	PollerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_poller_errors_total",
		Help: "Provider poll failures, by source.",
	}, []string{"source"})

	SummaryFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketpulse_summary_fallbacks_total",
		Help: "AI summaries replaced by deterministic truncation.",
	})

	TTSFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_tts_failures_total",
		Help: "TTS provider failures, by provider.",
	}, []string{"provider"})

	TTSCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketpulse_tts_cache_hits_total",
		Help: "Synthesis requests served from the audio cache.",
	})

	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "marketpulse_ws_sessions",
		Help: "Connected WebSocket sessions, by topic.",
	}, []string{"topic"})

	DroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_ws_dropped_frames_total",
		Help: "Frames dropped on slow sessions, by topic.",
	}, []string{"topic"})

	AlertsTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketpulse_alerts_triggered_total",
		Help: "User alerts that fired.",
	})

	ThreatsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_threats_emitted_total",
		Help: "Position threat notifications emitted, by grade.",
	}, []string{"grade"})
)
