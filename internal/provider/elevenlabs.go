// Package provider wraps the paid ElevenLabs speech-synthesis API behind the
// engine's opaque synthesis boundary.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/easyaudio/easyaudio/internal/errs"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	// maxErrDetail caps how much upstream error body is carried back to
	// callers.
	maxErrDetail = 500
)

type Request struct {
	Text         string
	VoiceID      string
	ModelID      string
	Stability    float64
	Similarity   float64
	Style        float64
	SpeakerBoost bool
	OptLatency   int
}

type ElevenLabs struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewElevenLabs builds a provider client. baseURL is overridable for tests;
// pass "" for the production endpoint.
func NewElevenLabs(apiKey, baseURL string, logger *slog.Logger) *ElevenLabs {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevenLabs{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     logger.With("component", "provider"),
	}
}

// Synthesize renders text to MP3 bytes. The streaming endpoint is tried
// first; a failed attempt gets exactly one non-streaming retry before the
// upstream status is surfaced as a ProviderError.
func (p *ElevenLabs) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"text":     req.Text,
		"model_id": req.ModelID,
		"voice_settings": map[string]any{
			"stability":         req.Stability,
			"similarity_boost":  req.Similarity,
			"style":             req.Style,
			"use_speaker_boost": req.SpeakerBoost,
		},
		"optimize_streaming_latency": req.OptLatency,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: marshal payload: %w", err)
	}

	voice := url.PathEscape(req.VoiceID)
	streamURL := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", p.baseURL, voice)
	nonStreamURL := fmt.Sprintf("%s/v1/text-to-speech/%s", p.baseURL, voice)

	data, status, err := p.post(ctx, streamURL, payload)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindProviderError, "synthesis upstream connection failed")
	}
	if status == http.StatusOK && len(data) > 0 {
		return data, nil
	}
	p.log.Warn("stream synthesis failed, retrying non-streaming",
		"status", status, "detail", truncate(data))

	data2, status2, err2 := p.post(ctx, nonStreamURL, payload)
	if err2 != nil {
		return nil, errs.Wrap(err2, errs.KindProviderError, "synthesis fallback connection failed")
	}
	if status2 == http.StatusOK && len(data2) > 0 {
		p.log.Info("non-streaming fallback succeeded", "bytes", len(data2))
		return data2, nil
	}

	return nil, &errs.ProviderError{
		Status: status2,
		Detail: fmt.Sprintf("stream %d: %s; nonstream %d: %s", status, truncate(data), status2, truncate(data2)),
	}
}

func (p *ElevenLabs) post(ctx context.Context, endpoint string, payload []byte) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrDetail {
		body = body[:maxErrDetail]
	}
	return string(body)
}
