package tts

import "context"

// Clip is synthesized audio with its declared MIME type.
type Clip struct {
	Bytes    []byte
	MIMEType string
}

// Synthesizer converts text to a playable clip using the given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (Clip, error)
}
