package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"tripfare/internal/types"
)

const (
	elevenLabsAPIBase = "https://api.elevenlabs.io"

	// DefaultVoiceID is the voice the price announcements were recorded with.
	DefaultVoiceID = "fmK7TlnXbQkMPhz8hWek"

	// maxAudioBytes bounds the response read into memory.
	maxAudioBytes = 16 << 20
)

// VoiceSettings tunes the synthesized voice.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// DefaultVoiceSettings returns the settings used for price announcements.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.75, SimilarityBoost: 0.75}
}

// SpeechClientConfig configures a SpeechClient.
type SpeechClientConfig struct {
	APIKey   types.SecretString
	VoiceID  string
	BaseURL  string // defaults to the public ElevenLabs API
	Settings VoiceSettings
	Logger   *slog.Logger
}

// SpeechClient calls the ElevenLabs text-to-speech API.
type SpeechClient struct {
	base     *BaseClient
	apiKey   types.SecretString
	voiceID  string
	baseURL  string
	settings VoiceSettings
	logger   *slog.Logger
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// NewSpeechClient creates a SpeechClient on top of base.
func NewSpeechClient(base *BaseClient, cfg SpeechClientConfig) *SpeechClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsAPIBase
	}
	voice := cfg.VoiceID
	if voice == "" {
		voice = DefaultVoiceID
	}
	settings := cfg.Settings
	if settings == (VoiceSettings{}) {
		settings = DefaultVoiceSettings()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeechClient{
		base:     base,
		apiKey:   cfg.APIKey,
		voiceID:  voice,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		settings: settings,
		logger:   logger,
	}
}

// Synthesize converts text to MPEG audio.
//
// Error mapping:
//   - 401/403 -> types.ErrCodeUpstreamSpeech (bad or missing API key)
//   - 429, 5xx -> handled by BaseClient
//   - other non-2xx -> types.ErrCodeUpstreamSpeech
func (c *SpeechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamSpeech, "nothing to synthesize", nil)
	}

	payload, err := json.Marshal(synthesizeRequest{Text: text, VoiceSettings: c.settings})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal speech request", err)
	}

	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build speech request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.WarnContext(ctx, "speech synthesis rejected",
			"status", resp.StatusCode,
			"voice_id", c.voiceID,
			"body", string(detail),
		)
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamSpeech,
			fmt.Sprintf("speech API returned %d", resp.StatusCode),
			nil,
			map[string]any{"status": resp.StatusCode},
		)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamSpeech, "failed to read speech audio", err)
	}
	return audio, nil
}
