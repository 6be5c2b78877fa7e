package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/easyaudio/easyaudio/internal/errs"
)

func testRequest() Request {
	return Request{
		Text:       "hello world",
		VoiceID:    "voice-a",
		ModelID:    "model-a",
		Stability:  0.35,
		Similarity: 0.9,
	}
}

func TestSynthesizeStreamSuccess(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if !strings.HasSuffix(r.URL.Path, "/stream") {
			t.Errorf("first attempt should hit the stream endpoint, got %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key-123" {
			t.Errorf("missing api key header")
		}
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	p := NewElevenLabs("key-123", srv.URL, nil)
	data, err := p.Synthesize(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(data) != "mp3-bytes" || calls != 1 {
		t.Fatalf("expected one successful stream call, got calls=%d data=%q", calls, data)
	}
}

func TestSynthesizeFallbackOnce(t *testing.T) {
	var streamCalls, plainCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/stream") {
			streamCalls++
			http.Error(w, `{"detail":"busy"}`, http.StatusServiceUnavailable)
			return
		}
		plainCalls++
		w.Write([]byte("fallback-audio"))
	}))
	defer srv.Close()

	p := NewElevenLabs("k", srv.URL, nil)
	data, err := p.Synthesize(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(data) != "fallback-audio" || streamCalls != 1 || plainCalls != 1 {
		t.Fatalf("expected exactly one fallback attempt: stream=%d plain=%d", streamCalls, plainCalls)
	}
}

func TestSynthesizeBothAttemptsFail(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "quota exhausted upstream", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	p := NewElevenLabs("k", srv.URL, nil)
	_, err := p.Synthesize(context.Background(), testRequest())
	var pe *errs.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Status != http.StatusPaymentRequired {
		t.Fatalf("expected upstream status %d, got %d", http.StatusPaymentRequired, pe.Status)
	}
	if calls != 2 {
		t.Fatalf("expected stream + one fallback, got %d calls", calls)
	}
}

func TestSynthesizeEmptyBodyTriggersFallback(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusOK) // 200 with no audio
			return
		}
		w.Write([]byte("real-audio"))
	}))
	defer srv.Close()

	p := NewElevenLabs("k", srv.URL, nil)
	data, err := p.Synthesize(context.Background(), testRequest())
	if err != nil || string(data) != "real-audio" {
		t.Fatalf("empty 200 should fall back: data=%q err=%v", data, err)
	}
}

func TestSynthesizeConnectionFailure(t *testing.T) {
	p := NewElevenLabs("k", "http://127.0.0.1:1", nil)
	_, err := p.Synthesize(context.Background(), testRequest())
	if errs.KindOf(err) != errs.KindProviderError {
		t.Fatalf("expected provider_error kind, got %v", err)
	}
}
