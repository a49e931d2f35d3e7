package voice

import (
	"context"
	"time"
)

// State is the conversation state tag. Exactly one state is current at a
// time; every transition goes through the controller dispatch under one lock.
type State int

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	}
	return "unknown"
}

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerHuman  Speaker = "user"
	SpeakerSystem Speaker = "assistant"
)

// MaxMediaBytes caps attached media payloads, enforced before submission.
const MaxMediaBytes = 4 << 20

// Media is an attached binary payload (image or short video).
type Media struct {
	Bytes    []byte
	MIMEType string
}

// Turn is one recorded utterance. Immutable once appended to history.
type Turn struct {
	Speaker   Speaker
	Text      string
	Media     *Media
	Timestamp time.Time
}

// Profile is the persona applied to a session. The controller reads it,
// never mutates it.
type Profile struct {
	Name    string
	Persona string
	VoiceID string
}

// Fragment is one recognition result. Interim fragments only update the
// pending-utterance display; final fragments accumulate toward submission.
type Fragment struct {
	Text  string
	Final bool
}

// RecognitionError reports a recognizer failure. Non-fatal errors
// (no-speech) are retried automatically while the conversation is active.
type RecognitionError struct {
	Code  string
	Fatal bool
}

func (e RecognitionError) Error() string { return "recognition error: " + e.Code }

// Recognizer is the minimal interface for continuous speech recognition.
// Start and Stop control the microphone; results and errors arrive on the
// channels for the lifetime of the adapter. Implementations must not call
// back into the controller synchronously from Start or Stop.
type Recognizer interface {
	Start() error
	Stop() error
	Results() <-chan Fragment
	Errors() <-chan RecognitionError
}

// AudioClip is playable audio returned by a speech service.
type AudioClip struct {
	Bytes    []byte
	MIMEType string
}

// Playback is a live audio handle. Done delivers exactly one value when
// playback ends (nil on natural completion). Stop halts playback
// immediately and discards remaining audio; it must be safe to call more
// than once and concurrently with completion.
type Playback interface {
	Done() <-chan error
	Stop()
}

// Player owns the single audio output slot.
type Player interface {
	Play(clip AudioClip) (Playback, error)
}

// ChatRequest carries everything the chat completion service needs for one
// turn: the trailing history window (last entry is the human turn being
// submitted), the active profile, the retrieval flag and optional media.
type ChatRequest struct {
	History      []Turn
	Profile      Profile
	UseRetrieval bool
	Media        *Media
}

// ChatService produces a reply for an assembled request.
type ChatService interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// SpeechService synthesizes audio for a reply.
type SpeechService interface {
	Synthesize(ctx context.Context, text, voiceID string) (AudioClip, error)
}

// Hooks are optional observer callbacks. They are invoked while the
// controller lock is held and must return quickly without calling back in.
type Hooks struct {
	// OnTurn fires when a turn is appended to the visible transcript,
	// including inline error turns.
	OnTurn func(Turn)
	// OnState fires on every state change.
	OnState func(State)
	// OnPending fires with the current pending-utterance display text.
	OnPending func(text string, final bool)
}
