package stt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxflow-go/voxflow/pkg/engine/callerr"
)

func TestHTTPTranscriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req transcribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Audio != "capture.wav" {
			t.Errorf("audio ref = %q", req.Audio)
		}
		_ = json.NewEncoder(w).Encode(transcribeResponse{Text: "  oui bien sûr ", Confidence: 0.91, DurationS: 1.5})
	}))
	defer srv.Close()

	tr := NewHTTPTranscriber(srv.URL, time.Second)
	got, err := tr.Transcribe(context.Background(), "capture.wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got.Text != "oui bien sûr" {
		t.Fatalf("text = %q, want trimmed transcript", got.Text)
	}
	if got.Confidence != 0.91 || got.Duration != 1500*time.Millisecond {
		t.Fatalf("got %+v", got)
	}
}

func TestHTTPTranscriberServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := NewHTTPTranscriber(srv.URL, time.Second)
	_, err := tr.Transcribe(context.Background(), "capture.wav")
	var ce *callerr.Error
	if !errors.As(err, &ce) || ce.Type != callerr.ErrTranscription {
		t.Fatalf("err = %v, want transcription error", err)
	}
}

func TestHTTPSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sentiment": "positive", "confidence": 0.7})
	}))
	defer srv.Close()

	s := NewHTTPSentiment(srv.URL, time.Second)
	got, err := s.Analyze(context.Background(), "oui super")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Sentiment != "positive" || got.Confidence != 0.7 {
		t.Fatalf("got %+v", got)
	}
}
