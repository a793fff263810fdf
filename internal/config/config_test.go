package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDRESS", "TRANSCRIPT_DIR", "OUTCOME_DB_PATH", "AGENT_NAME",
		"MAX_COUNTER_OFFERS", "SILENCE_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Errorf("HTTPAddress = %s, want :8080", cfg.HTTPAddress)
	}
	if cfg.TranscriptDir != "transcripts" {
		t.Errorf("TranscriptDir = %s", cfg.TranscriptDir)
	}
	if cfg.AgentName != "Alex" {
		t.Errorf("AgentName = %s", cfg.AgentName)
	}
	if cfg.DefaultMaxCounterOffers != 3 || cfg.DefaultSilenceTimeoutSeconds != 10 {
		t.Errorf("conversation defaults = %d/%d", cfg.DefaultMaxCounterOffers, cfg.DefaultSilenceTimeoutSeconds)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9999")
	t.Setenv("AGENT_NAME", "Morgan")
	t.Setenv("MAX_COUNTER_OFFERS", "5")
	cfg := Load()
	if cfg.HTTPAddress != ":9999" {
		t.Errorf("HTTPAddress = %s, want :9999", cfg.HTTPAddress)
	}
	if cfg.AgentName != "Morgan" {
		t.Errorf("AgentName = %s, want Morgan", cfg.AgentName)
	}
	if cfg.DefaultMaxCounterOffers != 5 {
		t.Errorf("DefaultMaxCounterOffers = %d, want 5", cfg.DefaultMaxCounterOffers)
	}
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("MAX_CLARIFICATIONS", "not-a-number")
	cfg := Load()
	if cfg.DefaultMaxClarifications != 2 {
		t.Errorf("DefaultMaxClarifications = %d, want default 2", cfg.DefaultMaxClarifications)
	}
}
