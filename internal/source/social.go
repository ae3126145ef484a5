package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"marketpulse/internal/config"
	"marketpulse/internal/market"
	"marketpulse/internal/metrics"
	"marketpulse/internal/models"
	"marketpulse/internal/symbols"
)

// SocialCollector polls recent posts for a configured list of account handles.
// Handles are resolved to canonical user IDs once and cached in the tracker's
// provider state. Posts default to medium priority; accounts on the high-value
// list or posts above the engagement threshold are promoted to high.
type SocialCollector struct {
	HTTP    *http.Client
	Logger  *zap.Logger
	Config  config.SocialConfig
	Tracker *Tracker

	HighValue  []string
	BackoffCap float64

	limiter *rate.Limiter
	kick    chan struct{}
}

func (c *SocialCollector) Name() string { return "social" }

func (c *SocialCollector) SourceInfo() SourceInfo {
	return SourceInfo{
		SourceType:   "rest_poll",
		Endpoint:     c.Config.BaseURL,
		PollInterval: c.interval(),
	}
}

func (c *SocialCollector) interval() time.Duration {
	if c.Config.PollInterval > 0 {
		return c.Config.PollInterval
	}
	return 300 * time.Second
}

func (c *SocialCollector) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *SocialCollector) Stop() error { return nil }

func (c *SocialCollector) Health() HealthStatus { return c.Tracker.health() }

func (c *SocialCollector) Start(ctx context.Context, out Emitter) error {
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	if c.kick == nil {
		c.kick = make(chan struct{}, 1)
	}
	if c.limiter == nil {
		// Provider caps user-timeline reads tightly; one request per second
		// keeps a full handle sweep under the per-window quota.
		c.limiter = rate.NewLimiter(rate.Limit(1), 3)
	}
	return pollLoop(ctx, c.interval(), c.BackoffCap, c.kick, func(ctx context.Context) pollResult {
		return c.pollOnce(ctx, out)
	})
}

func (c *SocialCollector) pollOnce(ctx context.Context, out Emitter) pollResult {
	now := time.Now().UTC()
	token := strings.TrimSpace(os.Getenv(c.Config.BearerTokenEnv))
	if token == "" {
		c.Tracker.Polled(now, errors.New("missing bearer token"))
		return pollFailed
	}

	result := pollOK
	for _, handle := range c.Config.Handles {
		userID, err := c.resolveUser(ctx, token, handle)
		if err != nil {
			if errors.Is(err, market.ErrRateLimited) {
				result = pollRateLimited
				break
			}
			metrics.PollerErrors.WithLabelValues(c.Name()).Inc()
			c.Tracker.Polled(now, err)
			continue
		}
		if err := c.fetchPosts(ctx, token, handle, userID, out); err != nil {
			if errors.Is(err, context.Canceled) {
				return pollFailed
			}
			if errors.Is(err, market.ErrRateLimited) {
				result = pollRateLimited
				break
			}
			metrics.PollerErrors.WithLabelValues(c.Name()).Inc()
			c.Tracker.Polled(now, err)
			result = pollFailed
		}
	}
	if result == pollOK {
		c.Tracker.Polled(now, nil)
	}
	return result
}

func (c *SocialCollector) resolveUser(ctx context.Context, token, handle string) (string, error) {
	if cached := c.Tracker.ProviderState("user:" + handle); cached != "" {
		return cached, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	endpoint := strings.TrimRight(c.Config.BaseURL, "/") + "/2/users/by/username/" + url.PathEscape(handle)
	var parsed struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, token, endpoint, &parsed); err != nil {
		return "", err
	}
	if parsed.Data.ID == "" {
		return "", fmt.Errorf("handle %s not found", handle)
	}
	c.Tracker.SetProviderState("user:"+handle, parsed.Data.ID)
	return parsed.Data.ID, nil
}

type socialPost struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Metrics   struct {
		Likes    int `json:"like_count"`
		Retweets int `json:"retweet_count"`
		Replies  int `json:"reply_count"`
	} `json:"public_metrics"`
}

func (c *SocialCollector) fetchPosts(ctx context.Context, token, handle, userID string, out Emitter) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("max_results", "20")
	q.Set("tweet.fields", "created_at,public_metrics")
	if since := c.Tracker.ProviderState("since:" + userID); since != "" {
		q.Set("since_id", since)
	}
	endpoint := strings.TrimRight(c.Config.BaseURL, "/") + "/2/users/" + userID + "/tweets?" + q.Encode()

	var parsed struct {
		Data []socialPost `json:"data"`
	}
	if err := c.getJSON(ctx, token, endpoint, &parsed); err != nil {
		return err
	}
	if len(parsed.Data) == 0 {
		return nil
	}

	// Provider returns newest first; walk oldest-first so created_at ordering
	// matches delivery ordering.
	newest := parsed.Data[0].ID
	for i := len(parsed.Data) - 1; i >= 0; i-- {
		post := parsed.Data[i]
		if c.Tracker.Seen(post.ID) {
			continue
		}
		c.emit(handle, post, out)
		c.Tracker.Mark(post.ID)
	}
	c.Tracker.SetProviderState("since:"+userID, newest)
	return nil
}

func (c *SocialCollector) emit(handle string, post socialPost, out Emitter) {
	engagement := post.Metrics.Likes + post.Metrics.Retweets + post.Metrics.Replies
	priority := models.PriorityMedium
	if c.isHighValue(handle) || engagement >= c.engagementThreshold() {
		priority = models.PriorityHigh
	}

	n := models.Notification{
		Type:       models.TypeSocialSurge,
		Priority:   priority,
		Source:     models.SourceTwitter,
		Title:      "@" + handle,
		Message:    post.Text,
		ExternalID: post.ID,
		Metadata: map[string]any{
			"author":     handle,
			"engagement": engagement,
			"post_id":    post.ID,
		},
		Actions: []string{models.ActionDismiss},
	}
	if base := symbols.ExtractFirst(post.Text); base != "" {
		n.Symbol = base + "/USDT"
	}
	if ts, err := time.Parse(time.RFC3339, post.CreatedAt); err == nil {
		n.Metadata["posted_at"] = ts.UTC().Format(time.RFC3339)
	}
	out.EmitNotification(n)
}

func (c *SocialCollector) isHighValue(handle string) bool {
	for _, h := range c.HighValue {
		if strings.EqualFold(h, handle) {
			return true
		}
	}
	return false
}

func (c *SocialCollector) engagementThreshold() int {
	if c.Config.EngagementThreshold > 0 {
		return c.Config.EngagementThreshold
	}
	return 500
}

func (c *SocialCollector) getJSON(ctx context.Context, token, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
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
