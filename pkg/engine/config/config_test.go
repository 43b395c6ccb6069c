package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("VOXFLOW_PBX_URL", "ws://pbx.local:8088/control")
	t.Setenv("VOXFLOW_STT_URL", "http://stt.local:9000")
}

func TestLoadFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.BargeInThreshold != 1500*time.Millisecond {
		t.Fatalf("BargeInThreshold = %v", cfg.BargeInThreshold)
	}
	if cfg.MaxConsecutiveSilences != 2 || cfg.MaxConsecutiveNoMatch != 3 {
		t.Fatalf("failure bounds = %d/%d, want 2/3", cfg.MaxConsecutiveSilences, cfg.MaxConsecutiveNoMatch)
	}
	if cfg.LeadFraction != 0.65 {
		t.Fatalf("LeadFraction = %v", cfg.LeadFraction)
	}
	if cfg.ScenarioDir != "scenarios" || cfg.ObjectionDir != "objections" {
		t.Fatalf("content dirs = %q/%q", cfg.ScenarioDir, cfg.ObjectionDir)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("VOXFLOW_WAIT_TIMEOUT", "15s")
	t.Setenv("VOXFLOW_MAX_CONCURRENT_CALLS", "3")
	t.Setenv("VOXFLOW_LEAD_FRACTION", "0.8")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.WaitTimeout != 15*time.Second {
		t.Fatalf("WaitTimeout = %v", cfg.WaitTimeout)
	}
	if cfg.MaxConcurrentCalls != 3 {
		t.Fatalf("MaxConcurrentCalls = %d", cfg.MaxConcurrentCalls)
	}
	if cfg.LeadFraction != 0.8 {
		t.Fatalf("LeadFraction = %v", cfg.LeadFraction)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing pbx url", map[string]string{"VOXFLOW_PBX_URL": ""}, "VOXFLOW_PBX_URL"},
		{"non-ws pbx url", map[string]string{"VOXFLOW_PBX_URL": "http://pbx.local"}, "ws://"},
		{"missing stt url", map[string]string{"VOXFLOW_STT_URL": ""}, "VOXFLOW_STT_URL"},
		{"lead fraction above one", map[string]string{"VOXFLOW_LEAD_FRACTION": "1.5"}, "VOXFLOW_LEAD_FRACTION"},
		{"wait below silence", map[string]string{"VOXFLOW_WAIT_TIMEOUT": "1s"}, "VOXFLOW_WAIT_TIMEOUT"},
		{"threshold below speech start", map[string]string{"VOXFLOW_BARGE_IN_THRESHOLD": "100ms"}, "VOXFLOW_BARGE_IN_THRESHOLD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
