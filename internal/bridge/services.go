package bridge

import (
	"context"
	"log"
	"strings"

	"github.com/SidineiMarcelo/ia-transformers/internal/llm"
	"github.com/SidineiMarcelo/ia-transformers/internal/retrieval"
	"github.com/SidineiMarcelo/ia-transformers/internal/tts"
	"github.com/SidineiMarcelo/ia-transformers/internal/voice"
)

const defaultPersona = "Você é um assistente de voz. Responda de forma curta, natural e em português."

// chatService assembles the prompt for a conversation turn: persona,
// optional retrieval context and the trailing history window.
type chatService struct {
	client llm.Client
	search retrieval.Searcher
}

func (s *chatService) Complete(ctx context.Context, req voice.ChatRequest) (string, error) {
	system := strings.TrimSpace(req.Profile.Persona)
	if system == "" {
		system = defaultPersona
	}
	if req.UseRetrieval && s.search != nil {
		if block := s.contextFor(ctx, req.History); block != "" {
			system += "\n\nUse o contexto a seguir quando for relevante:\n" + block
		}
	}

	messages := make([]llm.Message, 0, len(req.History))
	for _, t := range req.History {
		messages = append(messages, llm.Message{Role: string(t.Speaker), Content: t.Text})
	}
	var media *llm.Media
	if req.Media != nil {
		media = &llm.Media{Bytes: req.Media.Bytes, MIMEType: req.Media.MIMEType}
	}
	return s.client.Complete(ctx, llm.Request{
		SystemPrompt: system,
		Messages:     messages,
		Media:        media,
	})
}

func (s *chatService) contextFor(ctx context.Context, history []voice.Turn) string {
	query := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Speaker == voice.SpeakerHuman {
			query = history[i].Text
			break
		}
	}
	if strings.TrimSpace(query) == "" {
		return ""
	}
	snippets, err := s.search.Search(ctx, query)
	if err != nil {
		log.Printf("bridge: retrieval failed: %v", err)
		return ""
	}
	return retrieval.ContextBlock(snippets)
}

// speechService bridges the synthesizer to the controller's audio type.
type speechService struct {
	synth tts.Synthesizer
}

func (s speechService) Synthesize(ctx context.Context, text, voiceID string) (voice.AudioClip, error) {
	clip, err := s.synth.Synthesize(ctx, text, voiceID)
	if err != nil {
		return voice.AudioClip{}, err
	}
	return voice.AudioClip{Bytes: clip.Bytes, MIMEType: clip.MIMEType}, nil
}
