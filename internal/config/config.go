package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	// Provider selection: "openai" or "gemini".
	ChatProvider string
	TTSProvider  string

	OpenAIKey   string
	OpenAIModel string
	GeminiKey   string
	GeminiModel string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	ProfileDBPath string

	// SilenceTimeout for voice bridge sessions.
	SilenceTimeout time.Duration
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	chatProvider := os.Getenv("CHAT_PROVIDER")
	if chatProvider == "" {
		chatProvider = "openai"
	}
	ttsProvider := os.Getenv("TTS_PROVIDER")
	if ttsProvider == "" {
		ttsProvider = chatProvider
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" && (chatProvider == "openai" || ttsProvider == "openai") {
		log.Println("Warning: OPENAI_API_KEY not set - clients must supply their own key")
	}
	openAIModel := os.Getenv("OPENAI_MODEL_ID")
	if openAIModel == "" {
		openAIModel = "gpt-4o-mini"
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" && (chatProvider == "gemini" || ttsProvider == "gemini") {
		log.Println("Warning: GEMINI_API_KEY not set - gemini provider will not work")
	}
	geminiModel := os.Getenv("GEMINI_MODEL_ID")
	if geminiModel == "" {
		geminiModel = "gemini-1.5-pro"
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseKey == "" {
		supabaseKey = os.Getenv("SUPABASE_KEY")
	}
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set - license checks, uploads and profile mirroring disabled")
	}
	bucket := os.Getenv("SUPABASE_BUCKET")
	if bucket == "" {
		bucket = "documents"
	}

	dbPath := os.Getenv("PROFILE_DB_PATH")
	if dbPath == "" {
		dbPath = "profiles.db"
	}

	silence := 2000
	if v := os.Getenv("VOICE_SILENCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			silence = n
		}
	}

	log.Printf("config: HTTP_ADDRESS=%s chat=%s tts=%s", addr, chatProvider, ttsProvider)
	return Config{
		HTTPAddress:        addr,
		ChatProvider:       chatProvider,
		TTSProvider:        ttsProvider,
		OpenAIKey:          openAIKey,
		OpenAIModel:        openAIModel,
		GeminiKey:          geminiKey,
		GeminiModel:        geminiModel,
		SupabaseURL:        supabaseURL,
		SupabaseServiceKey: supabaseKey,
		SupabaseBucket:     bucket,
		ProfileDBPath:      dbPath,
		SilenceTimeout:     time.Duration(silence) * time.Millisecond,
	}
}
