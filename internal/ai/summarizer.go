package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"marketpulse/internal/config"
	"marketpulse/internal/models"
)

var ErrNotConfigured = errors.New("ai client not configured")

// Client wraps the AI collaborator. The hub only depends on the two-method
// contract (SummarizeMessage, Chat); chat analysis itself lives elsewhere.
type Client struct {
	api    openai.Client
	model  string
	logger *zap.Logger
	ready  bool
}

func New(cfg config.EnrichConfig, logger *zap.Logger) *Client {
	key := strings.TrimSpace(os.Getenv(cfg.AIKeyEnv))
	c := &Client{model: cfg.AIModel, logger: logger}
	if key == "" {
		if logger != nil {
			logger.Warn("ai summarizer disabled: no api key", zap.String("env", cfg.AIKeyEnv))
		}
		return c
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.AIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.AIBaseURL))
	}
	c.api = openai.NewClient(opts...)
	c.ready = true
	return c
}

// SummarizeMessage produces a voice-friendly summary within maxWords words.
func (c *Client) SummarizeMessage(ctx context.Context, n models.Notification, maxWords int) (string, error) {
	if c == nil || !c.ready {
		return "", ErrNotConfigured
	}
	prompt := fmt.Sprintf(
		"Summarize this %s trading notification in at most %d words. Plain speech, no emoji, no hashtags, no markdown.\nTitle: %s\nMessage: %s",
		n.Priority, maxWords, n.Title, n.Message,
	)
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You compress market notifications for text-to-speech delivery."),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Chat forwards a free-form analysis prompt with optional history and context.
func (c *Client) Chat(ctx context.Context, history []string, contextText, prompt string) (string, error) {
	if c == nil || !c.ready {
		return "", ErrNotConfigured
	}
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("You are a market analysis assistant for a crypto trading operator."),
	}
	if contextText != "" {
		msgs = append(msgs, openai.SystemMessage("Context:\n"+contextText))
	}
	for _, h := range history {
		msgs = append(msgs, openai.UserMessage(h))
	}
	msgs = append(msgs, openai.UserMessage(prompt))
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
