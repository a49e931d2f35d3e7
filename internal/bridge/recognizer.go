package bridge

import (
	"log"
	"sync/atomic"

	"github.com/SidineiMarcelo/ia-transformers/internal/voice"
)

// wsRecognizer adapts browser-side speech recognition to the controller's
// recognizer interface. The browser owns the microphone and keeps
// recognition running continuously so speech during playback still
// arrives (that is what makes barge-in possible); Start and Stop only
// track whether the server-side session wants results.
type wsRecognizer struct {
	results chan voice.Fragment
	errs    chan voice.RecognitionError
	wanted  atomic.Bool
}

func newWSRecognizer() *wsRecognizer {
	return &wsRecognizer{
		results: make(chan voice.Fragment, 16),
		errs:    make(chan voice.RecognitionError, 4),
	}
}

func (r *wsRecognizer) Start() error {
	r.wanted.Store(true)
	return nil
}

func (r *wsRecognizer) Stop() error {
	r.wanted.Store(false)
	return nil
}

func (r *wsRecognizer) Results() <-chan voice.Fragment        { return r.results }
func (r *wsRecognizer) Errors() <-chan voice.RecognitionError { return r.errs }

// pushFragment forwards a recognition result from the socket read loop.
// Fragments are always forwarded; the controller's state checks decide
// what they mean.
func (r *wsRecognizer) pushFragment(f voice.Fragment) {
	select {
	case r.results <- f:
	default:
		log.Printf("bridge: dropping recognition fragment, channel full")
	}
}

func (r *wsRecognizer) pushError(e voice.RecognitionError) {
	select {
	case r.errs <- e:
	default:
		log.Printf("bridge: dropping recognition error, channel full")
	}
}
