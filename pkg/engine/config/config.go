// Package config loads the agent configuration from the environment
// and validates it before anything starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// PBX control channel.
	PBXURL      string
	PBXCallerID string

	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	WSHandshakeTimeout time.Duration
	WSMaxMessageBytes  int64

	// Content directories.
	ScenarioDir  string
	ObjectionDir string

	// Transcription and optional sentiment services.
	STTURL       string
	STTTimeout   time.Duration
	SentimentURL string

	// Call behavior.
	AnswerTimeout          time.Duration
	MaxConsecutiveSilences int
	MaxConsecutiveNoMatch  int
	ObjectionMinScore      float64
	LeadFraction           float64

	// Phase budgets.
	AMDSampleDuration  time.Duration
	AMDMinConfidence   float64
	SpeechStart        time.Duration
	BargeInThreshold   time.Duration
	SmoothDelay        time.Duration
	SilenceThreshold   time.Duration
	WaitTimeout        time.Duration
	MinCaptureDuration time.Duration

	// Dial pacing.
	DialCallsPerSecond float64
	DialBurst          int
	MaxConcurrentCalls int

	// Persistence and observability.
	StorePath   string
	MetricsAddr string // empty disables the metrics listener

	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		PBXURL:                 envOr("VOXFLOW_PBX_URL", ""),
		PBXCallerID:            envOr("VOXFLOW_CALLER_ID", ""),
		WSPingInterval:         envDurationOr("VOXFLOW_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:         envDurationOr("VOXFLOW_WS_WRITE_TIMEOUT", 5*time.Second),
		WSHandshakeTimeout:     envDurationOr("VOXFLOW_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		WSMaxMessageBytes:      envInt64Or("VOXFLOW_WS_MAX_MESSAGE_BYTES", 1<<20), // 1 MiB
		ScenarioDir:            envOr("VOXFLOW_SCENARIO_DIR", "scenarios"),
		ObjectionDir:           envOr("VOXFLOW_OBJECTION_DIR", "objections"),
		STTURL:                 envOr("VOXFLOW_STT_URL", ""),
		STTTimeout:             envDurationOr("VOXFLOW_STT_TIMEOUT", 30*time.Second),
		SentimentURL:           envOr("VOXFLOW_SENTIMENT_URL", ""),
		AnswerTimeout:          envDurationOr("VOXFLOW_ANSWER_TIMEOUT", 30*time.Second),
		MaxConsecutiveSilences: envIntOr("VOXFLOW_MAX_CONSECUTIVE_SILENCES", 2),
		MaxConsecutiveNoMatch:  envIntOr("VOXFLOW_MAX_CONSECUTIVE_NO_MATCH", 3),
		ObjectionMinScore:      envFloat64Or("VOXFLOW_OBJECTION_MIN_SCORE", 0.3),
		LeadFraction:           envFloat64Or("VOXFLOW_LEAD_FRACTION", 0.65),
		AMDSampleDuration:      envDurationOr("VOXFLOW_AMD_SAMPLE_DURATION", 3*time.Second),
		AMDMinConfidence:       envFloat64Or("VOXFLOW_AMD_MIN_CONFIDENCE", 0.6),
		SpeechStart:            envDurationOr("VOXFLOW_SPEECH_START", 400*time.Millisecond),
		BargeInThreshold:       envDurationOr("VOXFLOW_BARGE_IN_THRESHOLD", 1500*time.Millisecond),
		SmoothDelay:            envDurationOr("VOXFLOW_SMOOTH_DELAY", 500*time.Millisecond),
		SilenceThreshold:       envDurationOr("VOXFLOW_SILENCE_THRESHOLD", 1500*time.Millisecond),
		WaitTimeout:            envDurationOr("VOXFLOW_WAIT_TIMEOUT", 10*time.Second),
		MinCaptureDuration:     envDurationOr("VOXFLOW_MIN_CAPTURE_DURATION", 300*time.Millisecond),
		DialCallsPerSecond:     envFloat64Or("VOXFLOW_DIAL_CPS", 0.5),
		DialBurst:              envIntOr("VOXFLOW_DIAL_BURST", 2),
		MaxConcurrentCalls:     envIntOr("VOXFLOW_MAX_CONCURRENT_CALLS", 10),
		StorePath:              envOr("VOXFLOW_STORE_PATH", "voxflow.db"),
		MetricsAddr:            envOr("VOXFLOW_METRICS_ADDR", ""),
		ShutdownGracePeriod:    envDurationOr("VOXFLOW_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if cfg.PBXURL == "" {
		return Config{}, fmt.Errorf("VOXFLOW_PBX_URL must be set")
	}
	if !strings.HasPrefix(cfg.PBXURL, "ws://") && !strings.HasPrefix(cfg.PBXURL, "wss://") {
		return Config{}, fmt.Errorf("VOXFLOW_PBX_URL must be a ws:// or wss:// URL")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.ScenarioDir == "" {
		return Config{}, fmt.Errorf("VOXFLOW_SCENARIO_DIR must not be empty")
	}
	if cfg.ObjectionDir == "" {
		return Config{}, fmt.Errorf("VOXFLOW_OBJECTION_DIR must not be empty")
	}
	if cfg.STTURL == "" {
		return Config{}, fmt.Errorf("VOXFLOW_STT_URL must be set")
	}
	if cfg.STTTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_STT_TIMEOUT must be > 0")
	}
	if cfg.AnswerTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_ANSWER_TIMEOUT must be > 0")
	}
	if cfg.MaxConsecutiveSilences <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_MAX_CONSECUTIVE_SILENCES must be > 0")
	}
	if cfg.MaxConsecutiveNoMatch <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_MAX_CONSECUTIVE_NO_MATCH must be > 0")
	}
	if cfg.ObjectionMinScore <= 0 || cfg.ObjectionMinScore > 1 {
		return Config{}, fmt.Errorf("VOXFLOW_OBJECTION_MIN_SCORE must be in (0,1]")
	}
	if cfg.LeadFraction <= 0 || cfg.LeadFraction > 1 {
		return Config{}, fmt.Errorf("VOXFLOW_LEAD_FRACTION must be in (0,1]")
	}
	if cfg.AMDSampleDuration <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_AMD_SAMPLE_DURATION must be > 0")
	}
	if cfg.AMDMinConfidence <= 0 || cfg.AMDMinConfidence > 1 {
		return Config{}, fmt.Errorf("VOXFLOW_AMD_MIN_CONFIDENCE must be in (0,1]")
	}
	if cfg.SpeechStart <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_SPEECH_START must be > 0")
	}
	if cfg.BargeInThreshold <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_BARGE_IN_THRESHOLD must be > 0")
	}
	if cfg.BargeInThreshold < cfg.SpeechStart {
		return Config{}, fmt.Errorf("VOXFLOW_BARGE_IN_THRESHOLD must be >= VOXFLOW_SPEECH_START")
	}
	if cfg.SmoothDelay < 0 {
		return Config{}, fmt.Errorf("VOXFLOW_SMOOTH_DELAY must be >= 0")
	}
	if cfg.SilenceThreshold <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_SILENCE_THRESHOLD must be > 0")
	}
	if cfg.WaitTimeout <= cfg.SilenceThreshold {
		return Config{}, fmt.Errorf("VOXFLOW_WAIT_TIMEOUT must be > VOXFLOW_SILENCE_THRESHOLD")
	}
	if cfg.MinCaptureDuration < 0 {
		return Config{}, fmt.Errorf("VOXFLOW_MIN_CAPTURE_DURATION must be >= 0")
	}
	if cfg.DialCallsPerSecond < 0 {
		return Config{}, fmt.Errorf("VOXFLOW_DIAL_CPS must be >= 0")
	}
	if cfg.DialBurst < 0 {
		return Config{}, fmt.Errorf("VOXFLOW_DIAL_BURST must be >= 0")
	}
	if cfg.DialCallsPerSecond > 0 && cfg.DialBurst < 1 {
		return Config{}, fmt.Errorf("VOXFLOW_DIAL_BURST must be >= 1 when VOXFLOW_DIAL_CPS is set")
	}
	if cfg.MaxConcurrentCalls < 0 {
		return Config{}, fmt.Errorf("VOXFLOW_MAX_CONCURRENT_CALLS must be >= 0")
	}
	if cfg.StorePath == "" {
		return Config{}, fmt.Errorf("VOXFLOW_STORE_PATH must not be empty")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOXFLOW_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
