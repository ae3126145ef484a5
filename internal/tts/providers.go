package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"marketpulse/internal/config"
)

// BuildProviders assembles the provider chain in configured order. A provider
// with no credential in its key env var is left out entirely; only providers
// that can actually serve appear in the chain and the availability listing.
// A custom BaseURL counts as configured, for self-hosted gateways without
// vendor keys.
func BuildProviders(cfg config.TTSConfig, httpClient *http.Client) []Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	order := cfg.ProviderOrder
	if len(order) == 0 {
		order = []string{"elevenlabs", "google", "azure"}
	}
	out := make([]Provider, 0, len(order))
	for _, name := range order {
		pc := cfg.Providers[name]
		key := ""
		if pc.APIKeyEnv != "" {
			key = os.Getenv(pc.APIKeyEnv)
		}
		if key == "" && pc.BaseURL == "" {
			continue
		}
		switch name {
		case "elevenlabs":
			out = append(out, &ElevenLabsProvider{HTTP: httpClient, BaseURL: pc.BaseURL, APIKey: key, VoiceID: pc.VoiceID})
		case "google":
			out = append(out, &GoogleProvider{HTTP: httpClient, BaseURL: pc.BaseURL, APIKey: key, Voice: pc.VoiceID})
		case "azure":
			out = append(out, &AzureProvider{HTTP: httpClient, BaseURL: pc.BaseURL, APIKey: key, Voice: pc.VoiceID})
		}
	}
	return out
}

// ElevenLabsProvider calls the ElevenLabs streaming synthesis endpoint.
type ElevenLabsProvider struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
	VoiceID string
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text, preset string) ([]byte, string, error) {
	base := p.BaseURL
	if base == "" {
		base = "https://api.elevenlabs.io"
	}
	voice := p.VoiceID
	if voice == "" {
		voice = "21m00Tcm4TlvDq8ikWAM"
	}
	stability := 0.6
	if preset == "urgent" {
		stability = 0.3
	}
	body, _ := json.Marshal(map[string]any{
		"text":     text,
		"model_id": "eleven_turbo_v2",
		"voice_settings": map[string]any{
			"stability":        stability,
			"similarity_boost": 0.8,
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/text-to-speech/%s", base, url.PathEscape(voice)), bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.APIKey)

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("elevenlabs: status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, "", err
	}
	return audio, "audio/mpeg", nil
}

// GoogleProvider calls the Cloud Text-to-Speech REST endpoint.
type GoogleProvider struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
	Voice   string
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Synthesize(ctx context.Context, text, preset string) ([]byte, string, error) {
	base := p.BaseURL
	if base == "" {
		base = "https://texttospeech.googleapis.com"
	}
	voice := p.Voice
	if voice == "" {
		voice = "en-US-Neural2-C"
	}
	speakingRate := 1.0
	switch preset {
	case "urgent":
		speakingRate = 1.2
	case "brisk":
		speakingRate = 1.1
	case "calm":
		speakingRate = 0.95
	}
	body, _ := json.Marshal(map[string]any{
		"input": map[string]string{"text": text},
		"voice": map[string]string{
			"languageCode": "en-US",
			"name":         voice,
		},
		"audioConfig": map[string]any{
			"audioEncoding": "MP3",
			"speakingRate":  speakingRate,
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/text:synthesize?key=%s", base, url.QueryEscape(p.APIKey)), bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("google tts: status %d", resp.StatusCode)
	}
	var payload struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", err
	}
	audio, err := base64.StdEncoding.DecodeString(payload.AudioContent)
	if err != nil {
		return nil, "", err
	}
	return audio, "audio/mpeg", nil
}

// AzureProvider calls the Cognitive Services speech endpoint with SSML.
type AzureProvider struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
	Voice   string
}

func (p *AzureProvider) Name() string { return "azure" }

func (p *AzureProvider) Synthesize(ctx context.Context, text, preset string) ([]byte, string, error) {
	base := p.BaseURL
	if base == "" {
		base = "https://eastus.tts.speech.microsoft.com"
	}
	voice := p.Voice
	if voice == "" {
		voice = "en-US-JennyNeural"
	}
	ratePct := "0%"
	switch preset {
	case "urgent":
		ratePct = "20%"
	case "brisk":
		ratePct = "10%"
	case "calm":
		ratePct = "-5%"
	}
	ssml := fmt.Sprintf(
		`<speak version="1.0" xml:lang="en-US"><voice name="%s"><prosody rate="%s">%s</prosody></voice></speak>`,
		voice, ratePct, xmlEscape(text))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/cognitiveservices/v1", strings.NewReader(ssml))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", "audio-24khz-48kbitrate-mono-mp3")
	req.Header.Set("Ocp-Apim-Subscription-Key", p.APIKey)

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("azure tts: status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, "", err
	}
	return audio, "audio/mpeg", nil
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
