package tts

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient synthesizes speech through the Gemini TTS preview model.
type GeminiClient struct {
	APIKey string
	Model  string
}

func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{APIKey: apiKey, Model: "gemini-2.5-flash-preview-tts"}
}

func (g *GeminiClient) Synthesize(ctx context.Context, text, voice string) (Clip, error) {
	if g.APIKey == "" {
		return Clip{}, fmt.Errorf("gemini api key missing")
	}
	if voice == "" {
		voice = "Kore"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return Clip{}, fmt.Errorf("gemini client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	resp, err := client.Models.GenerateContent(ctx, g.Model, genai.Text(text), cfg)
	if err != nil {
		return Clip{}, fmt.Errorf("gemini tts: %w", err)
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "audio/mpeg"
				}
				return Clip{Bytes: part.InlineData.Data, MIMEType: mime}, nil
			}
		}
	}
	return Clip{}, fmt.Errorf("gemini tts: response contains no audio")
}
