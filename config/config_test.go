package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "SESSION_TTL", "CONNECT_TIMEOUT", "MIN_UTTERANCE_CHARS", "NUM_QUESTIONS", "API_BASE_URL"} {
		t.Setenv(k, "")
	}
	s := Load()
	if s.Port != "8080" {
		t.Fatalf("port default: %q", s.Port)
	}
	if s.SessionTTL != 2*time.Hour {
		t.Fatalf("session ttl default: %v", s.SessionTTL)
	}
	if s.ConnectTimeout != 30*time.Second || s.MinUtteranceChars != 5 || s.NumQuestions != 8 {
		t.Fatalf("unexpected client defaults: %+v", s)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SESSION_TTL", "45m")
	t.Setenv("CONNECT_TIMEOUT", "10")
	t.Setenv("MIN_UTTERANCE_CHARS", "nope")
	t.Setenv("API_BASE_URL", "https://api.example.com/")
	s := Load()
	if s.SessionTTL != 45*time.Minute {
		t.Fatalf("ttl: %v", s.SessionTTL)
	}
	if s.ConnectTimeout != 10*time.Second {
		t.Fatalf("plain seconds should parse: %v", s.ConnectTimeout)
	}
	if s.MinUtteranceChars != 5 {
		t.Fatalf("invalid int falls back to default, got %d", s.MinUtteranceChars)
	}
	if s.APIBaseURL != "https://api.example.com" {
		t.Fatalf("trailing slash not trimmed: %q", s.APIBaseURL)
	}
}
