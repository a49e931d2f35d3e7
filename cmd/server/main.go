package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SidineiMarcelo/ia-transformers/internal/bridge"
	"github.com/SidineiMarcelo/ia-transformers/internal/config"
	"github.com/SidineiMarcelo/ia-transformers/internal/httpserver"
	"github.com/SidineiMarcelo/ia-transformers/internal/ingest"
	"github.com/SidineiMarcelo/ia-transformers/internal/license"
	"github.com/SidineiMarcelo/ia-transformers/internal/llm"
	"github.com/SidineiMarcelo/ia-transformers/internal/profile"
	"github.com/SidineiMarcelo/ia-transformers/internal/retrieval"
	"github.com/SidineiMarcelo/ia-transformers/internal/storage"
	"github.com/SidineiMarcelo/ia-transformers/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	var chat llm.Client
	var chatForKey func(string) llm.Client
	switch cfg.ChatProvider {
	case "gemini":
		chat = llm.NewGeminiClient(cfg.GeminiKey, cfg.GeminiModel)
	default:
		oc := llm.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel)
		chat = oc
		chatForKey = func(key string) llm.Client { return oc.WithKey(key) }
	}

	var synth tts.Synthesizer
	var ttsForKey func(string) tts.Synthesizer
	switch cfg.TTSProvider {
	case "gemini":
		synth = tts.NewGeminiClient(cfg.GeminiKey)
	default:
		tc := tts.NewOpenAIClient(cfg.OpenAIKey)
		synth = tc
		ttsForKey = func(key string) tts.Synthesizer { return tc.WithKey(key) }
	}

	var gate license.Gate = license.AllowAll{}
	var search retrieval.Searcher
	var ingestor *ingest.Ingestor
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		g, err := license.NewSupabaseGate(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			log.Fatalf("license gate: %v", err)
		}
		gate = g

		embedder := retrieval.NewOpenAIEmbedder(cfg.OpenAIKey)
		search = retrieval.NewService(embedder, cfg.SupabaseURL, cfg.SupabaseServiceKey)

		var uploader storage.Uploader
		if s, err := storage.New(storage.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceKey,
			Bucket:         cfg.SupabaseBucket,
		}); err != nil {
			log.Printf("storage disabled: %v", err)
		} else {
			uploader = s
		}
		ingestor, err = ingest.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, embedder, uploader)
		if err != nil {
			log.Fatalf("ingestor: %v", err)
		}
	}

	store, err := profile.Open(cfg.ProfileDBPath)
	if err != nil {
		log.Fatalf("profile store: %v", err)
	}
	defer store.Close()
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		if mirror, err := profile.NewSupabaseMirror(cfg.SupabaseURL, cfg.SupabaseServiceKey); err != nil {
			log.Printf("profile mirror disabled: %v", err)
		} else {
			store.SetMirror(mirror)
		}
	}

	e := httpserver.New(httpserver.Deps{
		Gate:       gate,
		Chat:       chat,
		ChatForKey: chatForKey,
		TTS:        synth,
		TTSForKey:  ttsForKey,
		Retrieval:  search,
		Ingestor:   ingestor,
		Profiles:   store,
		VoiceWS: bridge.Handler(bridge.Deps{
			Gate:           gate,
			Chat:           chat,
			TTS:            synth,
			Search:         search,
			SilenceTimeout: cfg.SilenceTimeout,
		}),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
