package bridge

import (
	"encoding/base64"
	"errors"
	"sync"

	"github.com/SidineiMarcelo/ia-transformers/internal/voice"
)

// wsPlayback is one audio clip being played in the browser. The client
// reports completion with a "played" message; Stop tells it to cut the
// audio immediately.
type wsPlayback struct {
	session *session
	done    chan error
	once    sync.Once
}

func (p *wsPlayback) Done() <-chan error { return p.done }

func (p *wsPlayback) Stop() {
	p.session.send(serverMessage{Type: msgAudioStop})
	p.finish(nil)
}

func (p *wsPlayback) finish(err error) {
	p.once.Do(func() {
		p.done <- err
		close(p.done)
	})
}

// wsPlayer owns the browser's single audio output slot: playing a new
// clip replaces the previous handle.
type wsPlayer struct {
	session *session

	mu      sync.Mutex
	current *wsPlayback
}

func newWSPlayer(s *session) *wsPlayer { return &wsPlayer{session: s} }

func (p *wsPlayer) Play(clip voice.AudioClip) (voice.Playback, error) {
	pb := &wsPlayback{session: p.session, done: make(chan error, 1)}
	p.mu.Lock()
	prev := p.current
	p.current = pb
	p.mu.Unlock()
	// A displaced handle must still resolve, or a "played" message for
	// the old clip would complete the new one.
	if prev != nil {
		prev.finish(nil)
	}
	p.session.send(serverMessage{
		Type:     msgAudio,
		Audio:    base64.StdEncoding.EncodeToString(clip.Bytes),
		MIMEType: clip.MIMEType,
	})
	return pb, nil
}

// playbackEnded resolves the current handle when the client reports the
// audio finished (or failed).
func (p *wsPlayer) playbackEnded(clientErr string) {
	p.mu.Lock()
	pb := p.current
	p.current = nil
	p.mu.Unlock()
	if pb == nil {
		return
	}
	if clientErr != "" {
		pb.finish(errors.New(clientErr))
		return
	}
	pb.finish(nil)
}
