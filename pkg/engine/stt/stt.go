// Package stt declares the speech collaborators the engine consumes.
// Implementations wrap opaque, possibly blocking external services;
// the engine only sees these interfaces.
package stt

import (
	"context"
	"time"
)

// Transcription is the outcome of one transcription request.
type Transcription struct {
	Text       string
	Confidence float64
	Duration   time.Duration
}

// Transcriber converts a recorded audio reference into text. A slow
// backend is expected; callers run it under their phase timeout. An
// empty result is valid and means silence.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef string) (Transcription, error)
}

// SentimentResult is the optional sentiment annotation of a reply.
type SentimentResult struct {
	Sentiment  string
	Confidence float64
}

// Sentiment analyzes the emotional tone of a transcript. Failures are
// logged and ignored; sentiment never blocks call flow.
type Sentiment interface {
	Analyze(ctx context.Context, text string) (SentimentResult, error)
}
