package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("CHAT_BASE_URL", "")

	cfg := Load()

	if cfg.APIBaseURL != "http://localhost:8000" {
		t.Errorf("unexpected API base: %s", cfg.APIBaseURL)
	}
	if cfg.ChatBaseURL != "ws://localhost:8000" {
		t.Errorf("unexpected chat base: %s", cfg.ChatBaseURL)
	}
	if cfg.ReconnectBaseDelay != 3*time.Second {
		t.Errorf("unexpected reconnect base delay: %v", cfg.ReconnectBaseDelay)
	}
	if cfg.MaxMessageChars != 1000 {
		t.Errorf("unexpected message limit: %d", cfg.MaxMessageChars)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://chat.example.com")
	t.Setenv("RECONNECT_BASE_DELAY_MS", "500")
	t.Setenv("MAX_MESSAGE_CHARS", "280")

	cfg := Load()
	if cfg.ChatBaseURL != "wss://chat.example.com" {
		t.Errorf("chat base not derived: %s", cfg.ChatBaseURL)
	}
	if cfg.ReconnectBaseDelay != 500*time.Millisecond {
		t.Errorf("unexpected reconnect base delay: %v", cfg.ReconnectBaseDelay)
	}
	if cfg.MaxMessageChars != 280 {
		t.Errorf("unexpected message limit: %d", cfg.MaxMessageChars)
	}
}

func TestLoadIgnoresBadInt(t *testing.T) {
	t.Setenv("STREAM_TIMEOUT_MS", "soon")
	cfg := Load()
	if cfg.StreamTimeout != 2*time.Minute {
		t.Errorf("bad value should fall back to default, got %v", cfg.StreamTimeout)
	}
}

func TestDeriveChatURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8000":    "ws://localhost:8000",
		"https://chat.example.com": "wss://chat.example.com",
		"ws://already-ws":          "ws://already-ws",
	}
	for in, want := range cases {
		if got := DeriveChatURL(in); got != want {
			t.Errorf("DeriveChatURL(%q) = %q, want %q", in, got, want)
		}
	}
}
