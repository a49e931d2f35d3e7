// Package httpserver exposes the assistant backend over HTTP: chat and
// speech synthesis endpoints, document upload, profile management and
// the websocket voice bridge.
package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/SidineiMarcelo/ia-transformers/internal/ingest"
	"github.com/SidineiMarcelo/ia-transformers/internal/license"
	"github.com/SidineiMarcelo/ia-transformers/internal/llm"
	"github.com/SidineiMarcelo/ia-transformers/internal/profile"
	"github.com/SidineiMarcelo/ia-transformers/internal/retrieval"
	"github.com/SidineiMarcelo/ia-transformers/internal/tts"
)

// Deps collects everything the HTTP layer serves. Nil optional fields
// disable the corresponding routes or behavior.
type Deps struct {
	Gate       license.Gate
	Chat       llm.Client
	ChatForKey func(key string) llm.Client // caller-supplied key override, optional
	TTS        tts.Synthesizer
	TTSForKey  func(key string) tts.Synthesizer // optional
	Retrieval  retrieval.Searcher               // nil disables retrieval context
	Ingestor   *ingest.Ingestor                 // nil disables uploads
	Profiles   *profile.Store
	VoiceWS    echo.HandlerFunc // nil disables the websocket bridge
}

// New constructs the HTTP server with routes.
func New(deps Deps) *echo.Echo {
	e := newEcho()
	h := &handler{deps: deps}

	e.GET("/healthz", h.healthz)
	if deps.VoiceWS != nil {
		// The bridge validates the license inside the session start
		// message, so the route skips the header middleware.
		e.GET("/ws/voice", deps.VoiceWS)
	}

	api := e.Group("/api", LicenseAuth(deps.Gate))
	api.POST("/chat", h.chat)
	api.POST("/tts", h.tts)
	api.POST("/upload", h.upload)
	api.GET("/profiles", h.listProfiles)
	api.POST("/profiles", h.createProfile)
	api.GET("/profiles/:id", h.getProfile)
	api.DELETE("/profiles/:id", h.deleteProfile)

	return e
}
