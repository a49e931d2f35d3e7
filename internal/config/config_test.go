package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("CHAT_PROVIDER", "")
	os.Setenv("OPENAI_MODEL_ID", "")
	os.Setenv("VOICE_SILENCE_MS", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.ChatProvider != "openai" {
		t.Fatalf("expected default chat provider, got %q", cfg.ChatProvider)
	}
	if cfg.OpenAIModel == "" {
		t.Fatalf("expected default openai model id")
	}
	if cfg.SilenceTimeout != 2*time.Second {
		t.Fatalf("expected default silence timeout, got %v", cfg.SilenceTimeout)
	}
}

func TestLoad_SilenceOverride(t *testing.T) {
	os.Setenv("VOICE_SILENCE_MS", "2500")
	defer os.Setenv("VOICE_SILENCE_MS", "")
	cfg := Load()
	if cfg.SilenceTimeout != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s silence timeout, got %v", cfg.SilenceTimeout)
	}
}

func TestLoad_TTSProviderFollowsChat(t *testing.T) {
	os.Setenv("CHAT_PROVIDER", "gemini")
	os.Setenv("TTS_PROVIDER", "")
	defer os.Setenv("CHAT_PROVIDER", "")
	cfg := Load()
	if cfg.TTSProvider != "gemini" {
		t.Fatalf("expected tts provider to follow chat, got %q", cfg.TTSProvider)
	}
}
