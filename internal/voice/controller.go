// Package voice implements the conversation controller: the turn-taking
// state machine that owns one microphone stream and one audio-playback
// slot and arbitrates between the human talking, the system thinking and
// the system talking. All callback-style events (recognition results,
// silence timeouts, network responses, playback completion) funnel into
// transition handlers guarded by one lock; every handler re-checks the
// current state before acting so a late callback can never resurrect a
// stopped conversation.
package voice

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultSilenceTimeout is the delay after the last recognized speech
	// fragment before the utterance is considered complete. Tunable, not a
	// contract.
	DefaultSilenceTimeout = 2 * time.Second
	// DefaultRestartBackoff is the pause before recognition is restarted
	// after a transient (no-speech) recognizer error.
	DefaultRestartBackoff = time.Second
	// DefaultHistoryWindow bounds how many trailing turns are sent with a
	// chat request.
	DefaultHistoryWindow = 10

	completionTimeout = 30 * time.Second
	synthesisTimeout  = 30 * time.Second
)

// Config tunes the controller. Zero values fall back to the defaults.
type Config struct {
	// LicenseKey must be non-empty before the controller will listen,
	// submit or request audio. The services attach it to outbound calls.
	LicenseKey     string
	SilenceTimeout time.Duration
	RestartBackoff time.Duration
	HistoryWindow  int
}

// Controller drives one conversation session. It exclusively owns the
// recognizer (microphone) and the playback slot while active.
type Controller struct {
	cfg    Config
	rec    Recognizer
	player Player
	chat   ChatService
	speech SpeechService
	hooks  Hooks

	mu           sync.Mutex
	state        State
	active       bool
	useRetrieval bool
	profile      Profile
	history      []Turn
	pending      pendingUtterance
	attached     *Media

	// epoch invalidates timers and restarts scheduled before a Start/Stop.
	epoch      int
	silenceGen int
	silence    *time.Timer
	// speakGen invalidates a synthesis still in flight when the speaking
	// phase it belongs to has been interrupted or stopped.
	speakGen int
	// playback is the single source of truth for "is there live audio".
	playback Playback
	inFlight bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController wires the controller to its collaborators.
func NewController(cfg Config, rec Recognizer, player Player, chat ChatService, speech SpeechService, hooks Hooks) *Controller {
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = DefaultSilenceTimeout
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = DefaultRestartBackoff
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	return &Controller{
		cfg:    cfg,
		rec:    rec,
		player: player,
		chat:   chat,
		speech: speech,
		hooks:  hooks,
		state:  StateIdle,
	}
}

// SetProfile sets the persona for subsequent turns. The controller never
// mutates the profile.
func (c *Controller) SetProfile(p Profile) {
	c.mu.Lock()
	c.profile = p
	c.mu.Unlock()
}

// SetRetrieval toggles the retrieval flag attached to chat requests.
func (c *Controller) SetRetrieval(on bool) {
	c.mu.Lock()
	c.useRetrieval = on
	c.mu.Unlock()
}

// State reports the current conversation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether a conversation is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// History returns a copy of the recorded turns.
func (c *Controller) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.history))
	copy(out, c.history)
	return out
}

// Start acquires the microphone and begins continuous recognition.
func (c *Controller) Start() error {
	c.mu.Lock()
	if strings.TrimSpace(c.cfg.LicenseKey) == "" {
		c.mu.Unlock()
		return NewError(ErrAuth, "license key required")
	}
	if c.active {
		c.mu.Unlock()
		return nil
	}
	// Ensure silence before starting.
	pb := c.playback
	c.playback = nil
	c.speakGen++
	c.active = true
	c.epoch++
	c.pending.reset()
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel = ctx, cancel
	go c.pump(ctx)
	if err := c.rec.Start(); err != nil {
		c.active = false
		c.cancel = nil
		c.setStateLocked(StateIdle)
		c.mu.Unlock()
		cancel()
		if pb != nil {
			pb.Stop()
		}
		return NewError(ErrRecognitionFatal, err.Error())
	}
	c.setStateLocked(StateListening)
	c.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}
	return nil
}

// Stop deactivates the conversation: cancels the silence timer, halts any
// playback, stops the microphone and forces Idle. Effective immediately;
// events queued before the stop cannot transition the machine afterwards.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.active = false
	c.epoch++
	c.speakGen++
	c.cancelSilenceLocked()
	pb := c.playback
	c.playback = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.pending.reset()
	c.setStateLocked(StateIdle)
	c.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}
	_ = c.rec.Stop()
}

// RequestInterrupt halts and discards any audio currently being spoken.
// Safe to call from any state and any callback path; the handle-release
// step decides whether there is live audio, so a second call or a call
// racing a playback-completion event is a no-op.
func (c *Controller) RequestInterrupt() {
	c.mu.Lock()
	pb := c.playback
	c.playback = nil
	if pb == nil && c.state != StateSpeaking {
		c.mu.Unlock()
		return
	}
	c.speakGen++
	if c.active {
		c.setStateLocked(StateListening)
		c.resumeRecognitionLocked()
	} else {
		c.setStateLocked(StateIdle)
	}
	c.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}
}

// AttachMedia stages one media blob for the next submission. Enforces the
// client-side size cap before any upload happens.
func (c *Controller) AttachMedia(m Media) error {
	if len(m.Bytes) == 0 {
		return NewError(ErrSubmissionRejected, "empty media payload")
	}
	if len(m.Bytes) > MaxMediaBytes {
		return NewError(ErrSubmissionRejected, "media exceeds size cap")
	}
	c.mu.Lock()
	c.attached = &m
	c.mu.Unlock()
	return nil
}

// Submit sends text (plus any staged media) to the chat service. Rejected
// when empty with no media, or when a submission is already outstanding.
// A submit while the system is talking cuts the audio first; the playback
// handle is never live outside the Speaking state.
func (c *Controller) Submit(text string) error {
	c.mu.Lock()
	if strings.TrimSpace(c.cfg.LicenseKey) == "" {
		c.mu.Unlock()
		return NewError(ErrAuth, "license key required")
	}
	text = strings.TrimSpace(text)
	if text == "" && c.attached == nil {
		c.mu.Unlock()
		return NewError(ErrSubmissionRejected, "empty utterance")
	}
	if c.inFlight || c.state == StateThinking {
		c.mu.Unlock()
		return NewError(ErrSubmissionRejected, "submission already in flight")
	}
	pb := c.playback
	c.playback = nil
	if pb != nil || c.state == StateSpeaking {
		c.speakGen++
	}
	c.submitLocked(text)
	c.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}
	return nil
}

// Speak reads text aloud outside the conversation loop (explicit
// "read aloud" action).
func (c *Controller) Speak(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if strings.TrimSpace(c.cfg.LicenseKey) == "" {
		return NewError(ErrAuth, "license key required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return NewError(ErrSubmissionRejected, "empty text")
	}
	if c.state != StateIdle && c.state != StateListening {
		return NewError(ErrSubmissionRejected, "audio slot busy")
	}
	if c.state == StateListening {
		c.suspendRecognitionLocked()
	}
	c.speakLocked(text)
	return nil
}

// pump feeds recognizer channels into the transition handlers until the
// session context ends.
func (c *Controller) pump(ctx context.Context) {
	results := c.rec.Results()
	errs := c.rec.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-results:
			if !ok {
				return
			}
			c.onFragment(f)
		case e, ok := <-errs:
			if !ok {
				return
			}
			c.onRecognitionError(e)
		}
	}
}

func (c *Controller) onFragment(f Fragment) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	trimmed := strings.TrimSpace(f.Text)
	if c.state == StateSpeaking && ((f.Final && trimmed != "") || (!f.Final && len(trimmed) > 2)) {
		// Barge-in: the user started talking over the system.
		log.Printf("voice: barge-in detected, cutting playback")
		c.mu.Unlock()
		c.RequestInterrupt()
		c.mu.Lock()
		if !c.active {
			c.mu.Unlock()
			return
		}
	}
	c.pending.push(f)
	if c.hooks.OnPending != nil && !c.pending.empty() {
		c.hooks.OnPending(c.pending.display(), f.Final)
	}
	if c.state == StateListening {
		c.armSilenceLocked()
	}
	c.mu.Unlock()
}

func (c *Controller) onRecognitionError(e RecognitionError) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	if !e.Fatal {
		// no-speech class: retry while the conversation is active.
		ep := c.epoch
		time.AfterFunc(c.cfg.RestartBackoff, func() { c.onRecognitionRestart(ep) })
		c.mu.Unlock()
		return
	}
	log.Printf("voice: fatal recognizer error: %s", e.Code)
	c.appendTurnLocked(Turn{Speaker: SpeakerSystem, Text: "microphone error: " + e.Code, Timestamp: time.Now()})
	c.deactivateLocked()
	c.mu.Unlock()
}

func (c *Controller) onRecognitionRestart(epoch int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || !c.active || c.state != StateListening {
		return
	}
	c.resumeRecognitionLocked()
}

func (c *Controller) armSilenceLocked() {
	c.silenceGen++
	if c.silence != nil {
		c.silence.Stop()
	}
	ep, gen := c.epoch, c.silenceGen
	c.silence = time.AfterFunc(c.cfg.SilenceTimeout, func() { c.onSilence(ep, gen) })
}

func (c *Controller) cancelSilenceLocked() {
	c.silenceGen++
	if c.silence != nil {
		c.silence.Stop()
		c.silence = nil
	}
}

func (c *Controller) onSilence(epoch, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || gen != c.silenceGen {
		return
	}
	if !c.active || c.state != StateListening || c.inFlight {
		return
	}
	text := c.pending.text()
	if text == "" {
		// Nothing committed; keep listening.
		return
	}
	c.submitLocked(text)
}

// submitLocked records the human turn and starts the single outstanding
// chat request. Callers have already validated the guards.
func (c *Controller) submitLocked(text string) {
	c.cancelSilenceLocked()
	media := c.attached
	c.attached = nil
	c.pending.reset()
	c.appendTurnLocked(Turn{Speaker: SpeakerHuman, Text: text, Media: media, Timestamp: time.Now()})
	c.inFlight = true
	if c.active {
		// Suspend the microphone so the old utterance is not reprocessed.
		c.suspendRecognitionLocked()
	}
	c.setStateLocked(StateThinking)
	req := ChatRequest{
		History:      c.windowLocked(),
		Profile:      c.profile,
		UseRetrieval: c.useRetrieval,
		Media:        media,
	}
	base := c.ctx
	if base == nil {
		base = context.Background()
	}
	go func() {
		ctx, cancel := context.WithTimeout(base, completionTimeout)
		defer cancel()
		reply, err := c.chat.Complete(ctx, req)
		c.onChatResult(reply, err)
	}()
}

func (c *Controller) onChatResult(reply string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	thinking := c.state == StateThinking
	if err == nil && strings.TrimSpace(reply) == "" {
		err = NewError(ErrService, "empty reply from chat service")
	}
	if err != nil {
		log.Printf("voice: chat error: %v", err)
		c.appendTurnLocked(Turn{Speaker: SpeakerSystem, Text: errorText(err), Timestamp: time.Now()})
		if KindOf(err) == ErrAuth {
			c.deactivateLocked()
			return
		}
		if thinking {
			if c.active {
				c.setStateLocked(StateListening)
				c.resumeRecognitionLocked()
			} else {
				c.setStateLocked(StateIdle)
			}
		}
		return
	}
	reply = strings.TrimSpace(reply)
	c.appendTurnLocked(Turn{Speaker: SpeakerSystem, Text: reply, Timestamp: time.Now()})
	if !thinking {
		return
	}
	if c.active {
		c.speakLocked(reply)
	} else {
		// Reply recorded; audio only on explicit request.
		c.setStateLocked(StateIdle)
	}
}

// speakLocked enters Speaking and starts synthesis. The microphone is
// already suspended by the Thinking phase or by the caller.
func (c *Controller) speakLocked(text string) {
	c.setStateLocked(StateSpeaking)
	c.speakGen++
	gen := c.speakGen
	base := c.ctx
	if base == nil {
		base = context.Background()
	}
	voiceID := c.profile.VoiceID
	go c.synthesizeAndPlay(base, gen, text, voiceID)
}

func (c *Controller) synthesizeAndPlay(base context.Context, gen int, text, voiceID string) {
	ctx, cancel := context.WithTimeout(base, synthesisTimeout)
	defer cancel()
	clip, err := c.speech.Synthesize(ctx, text, voiceID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.speakGen || c.state != StateSpeaking {
		// Interrupted or stopped while synthesizing; discard the audio.
		return
	}
	if err == nil && len(clip.Bytes) == 0 {
		err = NewError(ErrService, "speech service returned no audio")
	}
	if err != nil {
		c.playbackFailedLocked(err)
		return
	}
	pb, perr := c.player.Play(clip)
	if perr != nil {
		c.playbackFailedLocked(NewError(ErrPlayback, perr.Error()))
		return
	}
	c.playback = pb
	go func() {
		e := <-pb.Done()
		c.onPlaybackDone(pb, e)
	}()
}

func (c *Controller) onPlaybackDone(pb Playback, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playback != pb {
		// Interrupt or stop already released the handle; nothing to do.
		return
	}
	c.playback = nil
	if err != nil {
		c.playbackFailedLocked(NewError(ErrPlayback, err.Error()))
		return
	}
	if c.state != StateSpeaking {
		return
	}
	if c.active {
		c.setStateLocked(StateListening)
		c.resumeRecognitionLocked()
	} else {
		c.setStateLocked(StateIdle)
	}
}

func (c *Controller) playbackFailedLocked(err error) {
	log.Printf("voice: playback failed: %v", err)
	c.appendTurnLocked(Turn{Speaker: SpeakerSystem, Text: errorText(err), Timestamp: time.Now()})
	if c.active {
		c.setStateLocked(StateListening)
		c.resumeRecognitionLocked()
	} else {
		c.setStateLocked(StateIdle)
	}
}

// deactivateLocked ends the conversation from inside a handler: releases
// both handles and forces Idle.
func (c *Controller) deactivateLocked() {
	c.active = false
	c.epoch++
	c.speakGen++
	c.cancelSilenceLocked()
	pb := c.playback
	c.playback = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.setStateLocked(StateIdle)
	if pb != nil {
		go pb.Stop()
	}
	go func() { _ = c.rec.Stop() }()
}

func (c *Controller) suspendRecognitionLocked() {
	if err := c.rec.Stop(); err != nil {
		log.Printf("voice: recognizer stop: %v", err)
	}
}

func (c *Controller) resumeRecognitionLocked() {
	if err := c.rec.Start(); err != nil {
		log.Printf("voice: recognizer start: %v", err)
	}
}

func (c *Controller) appendTurnLocked(t Turn) {
	c.history = append(c.history, t)
	if c.hooks.OnTurn != nil {
		c.hooks.OnTurn(t)
	}
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.hooks.OnState != nil {
		c.hooks.OnState(s)
	}
}

// windowLocked returns the trailing history window sent with a request.
func (c *Controller) windowLocked() []Turn {
	n := len(c.history)
	w := c.cfg.HistoryWindow
	if n > w {
		n = w
	}
	out := make([]Turn, n)
	copy(out, c.history[len(c.history)-n:])
	return out
}

func errorText(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return "⛔ " + e.Message
	}
	return "⛔ " + err.Error()
}
