package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxflow-go/voxflow/pkg/engine/callerr"
)

// HTTPTranscriber talks to a transcription service over plain JSON.
// The service receives the audio reference and resolves it itself; the
// engine never ships raw audio through this path.
type HTTPTranscriber struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPTranscriber(baseURL string, timeout time.Duration) *HTTPTranscriber {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTranscriber{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type transcribeRequest struct {
	Audio string `json:"audio"`
}

type transcribeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	DurationS  float64 `json:"duration_s"`
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, audioRef string) (Transcription, error) {
	body, err := json.Marshal(transcribeRequest{Audio: audioRef})
	if err != nil {
		return Transcription{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return Transcription{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Transcription{}, callerr.NewTranscriptionError("", "transcribe request: "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Transcription{}, callerr.NewTranscriptionError("", fmt.Sprintf("transcribe status %d: %s", resp.StatusCode, string(b)))
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Transcription{}, callerr.NewTranscriptionError("", "parse transcription: "+err.Error())
	}
	return Transcription{
		Text:       strings.TrimSpace(out.Text),
		Confidence: out.Confidence,
		Duration:   time.Duration(out.DurationS * float64(time.Second)),
	}, nil
}

// HTTPSentiment is the optional sentiment collaborator. Callers treat
// every failure as absence of a result.
type HTTPSentiment struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSentiment(baseURL string, timeout time.Duration) *HTTPSentiment {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSentiment{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sentimentRequest struct {
	Text string `json:"text"`
}

func (s *HTTPSentiment) Analyze(ctx context.Context, text string) (SentimentResult, error) {
	body, err := json.Marshal(sentimentRequest{Text: text})
	if err != nil {
		return SentimentResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return SentimentResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return SentimentResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SentimentResult{}, fmt.Errorf("sentiment status %d", resp.StatusCode)
	}

	var out SentimentResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SentimentResult{}, err
	}
	return out, nil
}
