package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"marketpulse/internal/config"
	"marketpulse/internal/market"
	"marketpulse/internal/metrics"
	"marketpulse/internal/models"
)

// Keyword classes for headline priority. Order matters: the high class is
// checked first so "exchange hack before listing" grades high.
var (
	highKeywords   = []string{"hack", "exploit", "ban", "halted", "banned", "hacked", "halt"}
	mediumKeywords = []string{"listing", "partnership", "upgrade", "listed", "partners"}
)

// NewsCollector polls a crypto news aggregator by category and language and
// classifies headline priority by keyword rules.
type NewsCollector struct {
	HTTP    *http.Client
	Logger  *zap.Logger
	Config  config.NewsConfig
	Tracker *Tracker

	BackoffCap float64

	limiter *rate.Limiter
	kick    chan struct{}
}

func (c *NewsCollector) Name() string { return "news" }

func (c *NewsCollector) SourceInfo() SourceInfo {
	return SourceInfo{
		SourceType:   "rest_poll",
		Endpoint:     c.Config.BaseURL,
		PollInterval: c.interval(),
	}
}

func (c *NewsCollector) interval() time.Duration {
	if c.Config.PollInterval > 0 {
		return c.Config.PollInterval
	}
	return 300 * time.Second
}

func (c *NewsCollector) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *NewsCollector) Stop() error { return nil }

func (c *NewsCollector) Health() HealthStatus { return c.Tracker.health() }

func (c *NewsCollector) Start(ctx context.Context, out Emitter) error {
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	if c.kick == nil {
		c.kick = make(chan struct{}, 1)
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Every(2*time.Second), 2)
	}
	return pollLoop(ctx, c.interval(), c.BackoffCap, c.kick, func(ctx context.Context) pollResult {
		return c.pollOnce(ctx, out)
	})
}

type newsItem struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	PublishedAt string `json:"published_at"`
	URL         string `json:"url"`
	Source      struct {
		Title string `json:"title"`
	} `json:"source"`
	Currencies []struct {
		Code string `json:"code"`
	} `json:"currencies"`
}

func (c *NewsCollector) pollOnce(ctx context.Context, out Emitter) pollResult {
	now := time.Now().UTC()
	apiKey := strings.TrimSpace(os.Getenv(c.Config.APIKeyEnv))
	if apiKey == "" {
		c.Tracker.Polled(now, errors.New("missing api key"))
		return pollFailed
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return pollFailed
	}

	q := url.Values{}
	q.Set("auth_token", apiKey)
	if len(c.Config.Categories) > 0 {
		q.Set("filter", strings.Join(c.Config.Categories, ","))
	}
	if c.Config.Language != "" {
		q.Set("currencies", "")
		q.Set("regions", c.Config.Language)
	}
	endpoint := strings.TrimRight(c.Config.BaseURL, "/") + "/posts/?" + q.Encode()

	var parsed struct {
		Results []newsItem `json:"results"`
	}
	if err := c.getJSON(ctx, endpoint, &parsed); err != nil {
		if errors.Is(err, market.ErrRateLimited) {
			c.Tracker.Polled(now, err)
			return pollRateLimited
		}
		metrics.PollerErrors.WithLabelValues(c.Name()).Inc()
		c.Tracker.Polled(now, err)
		return pollFailed
	}

	for i := len(parsed.Results) - 1; i >= 0; i-- {
		item := parsed.Results[i]
		id := strconv.FormatInt(item.ID, 10)
		if c.Tracker.Seen(id) {
			continue
		}
		c.emit(item, id, out)
		c.Tracker.Mark(id)
	}
	c.Tracker.Polled(now, nil)
	return pollOK
}

func (c *NewsCollector) emit(item newsItem, id string, out Emitter) {
	n := models.Notification{
		Type:       models.TypeNewsEvent,
		Priority:   classifyHeadline(item.Title),
		Source:     models.SourceNews,
		Title:      item.Source.Title,
		Message:    item.Title,
		ExternalID: id,
		Metadata: map[string]any{
			"url":       item.URL,
			"publisher": item.Source.Title,
		},
		Actions: []string{models.ActionDismiss},
	}
	if len(item.Currencies) > 0 {
		n.Symbol = strings.ToUpper(item.Currencies[0].Code) + "/USDT"
	}
	out.EmitNotification(n)
}

// classifyHeadline grades a headline: hack/ban class words go high,
// listing/partnership class words go medium, the rest low.
func classifyHeadline(title string) models.Priority {
	lower := strings.ToLower(title)
	for _, kw := range highKeywords {
		if strings.Contains(lower, kw) {
			return models.PriorityHigh
		}
	}
	for _, kw := range mediumKeywords {
		if strings.Contains(lower, kw) {
			return models.PriorityMedium
		}
	}
	return models.PriorityLow
}

func (c *NewsCollector) getJSON(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return market.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
