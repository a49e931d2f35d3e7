package voice

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRecognizer struct {
	mu      sync.Mutex
	starts  int
	stops   int
	running bool
	results chan Fragment
	errs    chan RecognitionError
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{
		results: make(chan Fragment, 16),
		errs:    make(chan RecognitionError, 4),
	}
}

func (f *fakeRecognizer) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.running = true
	return nil
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeRecognizer) Results() <-chan Fragment        { return f.results }
func (f *fakeRecognizer) Errors() <-chan RecognitionError { return f.errs }

func (f *fakeRecognizer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeRecognizer) isRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type fakePlayback struct {
	done  chan error
	stops int32
}

func (p *fakePlayback) Done() <-chan error { return p.done }
func (p *fakePlayback) Stop()              { atomic.AddInt32(&p.stops, 1) }
func (p *fakePlayback) finish(err error)   { p.done <- err }

type fakePlayer struct {
	mu    sync.Mutex
	plays int
	last  *fakePlayback
	clips []AudioClip
}

func (f *fakePlayer) Play(clip AudioClip) (Playback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	f.clips = append(f.clips, clip)
	f.last = &fakePlayback{done: make(chan error, 1)}
	return f.last, nil
}

func (f *fakePlayer) lastPlayback() *fakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakePlayer) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

type fakeChat struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    chan struct{}
	requests []ChatRequest
}

func (f *fakeChat) Complete(ctx context.Context, req ChatRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := f.block
	reply, err := f.reply, f.err
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (f *fakeChat) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeChat) lastRequest() ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeSpeech struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text, voiceID string) (AudioClip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return AudioClip{}, f.err
	}
	return AudioClip{Bytes: []byte{1, 2, 3}, MIMEType: "audio/mpeg"}, nil
}

func (f *fakeSpeech) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func testController(chat *fakeChat, speech *fakeSpeech) (*Controller, *fakeRecognizer, *fakePlayer) {
	rec := newFakeRecognizer()
	player := &fakePlayer{}
	c := NewController(Config{
		LicenseKey:     "lic-123",
		SilenceTimeout: 25 * time.Millisecond,
		RestartBackoff: 10 * time.Millisecond,
	}, rec, player, chat, speech, Hooks{})
	return c, rec, player
}

func TestController_StartRequiresLicense(t *testing.T) {
	rec := newFakeRecognizer()
	c := NewController(Config{}, rec, &fakePlayer{}, &fakeChat{}, &fakeSpeech{}, Hooks{})
	if err := c.Start(); KindOf(err) != ErrAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if rec.startCount() != 0 {
		t.Fatalf("recognizer must not start without a license")
	}
}

func TestController_FullTurn(t *testing.T) {
	chat := &fakeChat{reply: "Oi! Como posso ajudar?"}
	speech := &fakeSpeech{}
	c, rec, player := testController(chat, speech)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.State() != StateListening {
		t.Fatalf("expected listening, got %v", c.State())
	}

	rec.results <- Fragment{Text: "Olá", Final: true}

	waitFor(t, func() bool { return chat.calls() == 1 }, "chat request")
	req := chat.lastRequest()
	last := req.History[len(req.History)-1]
	if last.Speaker != SpeakerHuman || last.Text != "Olá" {
		t.Fatalf("expected trailing human turn Olá, got %+v", last)
	}

	waitFor(t, func() bool { return c.State() == StateSpeaking }, "speaking state")
	waitFor(t, func() bool { return speech.calls() == 1 }, "tts request")
	waitFor(t, func() bool { return player.playCount() == 1 }, "playback started")

	hist := c.History()
	found := false
	for _, turn := range hist {
		if turn.Speaker == SpeakerSystem && turn.Text == "Oi! Como posso ajudar?" {
			found = true
		}
	}
	if !found {
		t.Fatalf("reply turn missing from history: %+v", hist)
	}

	player.lastPlayback().finish(nil)
	waitFor(t, func() bool { return c.State() == StateListening }, "back to listening")
	if !rec.isRunning() {
		t.Fatalf("expected recognizer resumed after playback")
	}
}

func TestController_BargeIn(t *testing.T) {
	chat := &fakeChat{reply: "a long winded answer."}
	speech := &fakeSpeech{}
	c, rec, player := testController(chat, speech)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.results <- Fragment{Text: "question", Final: true}
	waitFor(t, func() bool { return player.playCount() == 1 }, "playback started")

	rec.results <- Fragment{Text: "wait", Final: false}
	waitFor(t, func() bool { return c.State() == StateListening }, "listening after barge-in")
	waitFor(t, func() bool { return atomic.LoadInt32(&player.lastPlayback().stops) == 1 }, "playback stopped")
	if !rec.isRunning() {
		t.Fatalf("expected recognition active after barge-in")
	}

	// A late completion from the stopped playback must not transition.
	player.lastPlayback().finish(nil)
	time.Sleep(20 * time.Millisecond)
	if c.State() != StateListening {
		t.Fatalf("late playback-done resurrected state: %v", c.State())
	}
}

func TestController_InterruptIdempotent(t *testing.T) {
	chat := &fakeChat{reply: "reply."}
	speech := &fakeSpeech{}
	c, rec, player := testController(chat, speech)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.results <- Fragment{Text: "hi", Final: true}
	waitFor(t, func() bool { return player.playCount() == 1 }, "playback started")

	pb := player.lastPlayback()
	c.RequestInterrupt()
	c.RequestInterrupt()
	if got := atomic.LoadInt32(&pb.stops); got != 1 {
		t.Fatalf("expected exactly one stop, got %d", got)
	}

	// Interrupt after natural completion is a no-op too.
	rec.results <- Fragment{Text: "again", Final: true}
	waitFor(t, func() bool { return player.playCount() == 2 }, "second playback")
	pb2 := player.lastPlayback()
	pb2.finish(nil)
	waitFor(t, func() bool { return c.State() == StateListening }, "listening after completion")
	c.RequestInterrupt()
	if got := atomic.LoadInt32(&pb2.stops); got != 0 {
		t.Fatalf("interrupt after completion must not stop, got %d stops", got)
	}
}

func TestController_AuthFailureEndsConversation(t *testing.T) {
	chat := &fakeChat{err: NewError(ErrAuth, "license blocked")}
	speech := &fakeSpeech{}
	c, rec, player := testController(chat, speech)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.results <- Fragment{Text: "hello", Final: true}

	waitFor(t, func() bool { return c.State() == StateIdle }, "idle after auth failure")
	if c.Active() {
		t.Fatalf("conversation must be deactivated")
	}
	hist := c.History()
	lastTurn := hist[len(hist)-1]
	if lastTurn.Speaker != SpeakerSystem || !strings.Contains(lastTurn.Text, "license blocked") {
		t.Fatalf("expected visible error turn, got %+v", lastTurn)
	}
	waitFor(t, func() bool { return !rec.isRunning() }, "microphone released")
	if player.playCount() != 0 {
		t.Fatalf("no audio must be requested after auth failure")
	}
}

func TestController_EmptySubmitGuard(t *testing.T) {
	chat := &fakeChat{reply: "x"}
	c, rec, _ := testController(chat, &fakeSpeech{})
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Interim-only speech: the timeout fires with nothing committed.
	rec.results <- Fragment{Text: "hm", Final: false}
	time.Sleep(80 * time.Millisecond)
	if chat.calls() != 0 {
		t.Fatalf("expected no submission for empty utterance")
	}
	if c.State() != StateListening {
		t.Fatalf("expected to remain listening, got %v", c.State())
	}
}

func TestController_SubmitWhileThinkingRejected(t *testing.T) {
	block := make(chan struct{})
	chat := &fakeChat{reply: "late", block: block}
	c, _, _ := testController(chat, &fakeSpeech{})
	if err := c.Submit("first"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	waitFor(t, func() bool { return c.State() == StateThinking }, "thinking")
	before := len(c.History())
	if err := c.Submit("second"); KindOf(err) != ErrSubmissionRejected {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(c.History()) != before {
		t.Fatalf("rejected submit must not alter history")
	}
	close(block)
}

func TestController_SilenceTimerSingleInstance(t *testing.T) {
	chat := &fakeChat{reply: "ok"}
	c, rec, player := testController(chat, &fakeSpeech{})
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.results <- Fragment{Text: "primeira ", Final: true}
	time.Sleep(10 * time.Millisecond)
	rec.results <- Fragment{Text: "parte", Final: true}

	waitFor(t, func() bool { return chat.calls() >= 1 }, "submission")
	time.Sleep(80 * time.Millisecond)
	if chat.calls() != 1 {
		t.Fatalf("expected a single submission, got %d", chat.calls())
	}
	req := chat.lastRequest()
	last := req.History[len(req.History)-1]
	if last.Text != "primeira parte" {
		t.Fatalf("expected concatenated finals, got %q", last.Text)
	}
	_ = player
}

func TestController_StopWinsOverQueuedEvents(t *testing.T) {
	chat := &fakeChat{reply: "resposta."}
	speech := &fakeSpeech{}
	c, rec, player := testController(chat, speech)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.results <- Fragment{Text: "oi", Final: true}
	waitFor(t, func() bool { return player.playCount() == 1 }, "playback started")

	pb := player.lastPlayback()
	c.Stop()
	if c.State() != StateIdle {
		t.Fatalf("expected idle after stop")
	}
	if atomic.LoadInt32(&pb.stops) != 1 {
		t.Fatalf("stop must halt playback")
	}
	pb.finish(nil)
	time.Sleep(20 * time.Millisecond)
	if c.State() != StateIdle {
		t.Fatalf("queued playback-done transitioned after stop: %v", c.State())
	}
	if rec.isRunning() {
		t.Fatalf("microphone must be released after stop")
	}
}

func TestController_ServiceFailureResumesListening(t *testing.T) {
	chat := &fakeChat{err: NewError(ErrService, "provider down")}
	c, rec, _ := testController(chat, &fakeSpeech{})
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.results <- Fragment{Text: "oi", Final: true}
	waitFor(t, func() bool { return chat.calls() == 1 }, "chat called")
	waitFor(t, func() bool { return c.State() == StateListening }, "listening after failure")
	hist := c.History()
	lastTurn := hist[len(hist)-1]
	if lastTurn.Speaker != SpeakerSystem || !strings.Contains(lastTurn.Text, "provider down") {
		t.Fatalf("expected inline error turn, got %+v", lastTurn)
	}
}

func TestController_TransientRecognizerErrorRetries(t *testing.T) {
	c, rec, _ := testController(&fakeChat{reply: "x"}, &fakeSpeech{})
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.errs <- RecognitionError{Code: "no-speech"}
	waitFor(t, func() bool { return rec.startCount() >= 2 }, "recognition restarted")
	if c.State() != StateListening {
		t.Fatalf("transient error must keep listening, got %v", c.State())
	}
}

func TestController_FatalRecognizerErrorDeactivates(t *testing.T) {
	c, rec, _ := testController(&fakeChat{reply: "x"}, &fakeSpeech{})
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.errs <- RecognitionError{Code: "not-allowed", Fatal: true}

	// The controller must stay responsive afterwards: a stuck lock on
	// this path would block every later call.
	settled := make(chan struct{})
	go func() {
		for c.State() != StateIdle || c.Active() {
			time.Sleep(2 * time.Millisecond)
		}
		close(settled)
	}()
	select {
	case <-settled:
	case <-time.After(time.Second):
		t.Fatalf("controller blocked or never deactivated after fatal recognizer error")
	}
	c.Stop()
}

func TestController_SubmitWhileSpeakingCutsAudio(t *testing.T) {
	chat := &fakeChat{reply: "resposta"}
	speech := &fakeSpeech{}
	c, rec, player := testController(chat, speech)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.results <- Fragment{Text: "oi", Final: true}
	waitFor(t, func() bool { return player.playCount() == 1 }, "first playback")
	first := player.lastPlayback()

	// A typed submit over playing audio behaves like barge-in: the old
	// clip stops before the new turn starts, never two live clips.
	if err := c.Submit("segunda pergunta"); err != nil {
		t.Fatalf("submit while speaking: %v", err)
	}
	if got := atomic.LoadInt32(&first.stops); got != 1 {
		t.Fatalf("previous audio must be stopped on submit, got %d stops", got)
	}

	waitFor(t, func() bool { return player.playCount() == 2 }, "second playback")
	first.finish(nil)
	time.Sleep(20 * time.Millisecond)
	if c.State() != StateSpeaking {
		t.Fatalf("late done from the cut clip changed state: %v", c.State())
	}
	player.lastPlayback().finish(nil)
	waitFor(t, func() bool { return c.State() == StateListening }, "listening after second clip")
}

func TestController_MediaCap(t *testing.T) {
	c, _, _ := testController(&fakeChat{reply: "x"}, &fakeSpeech{})
	big := Media{Bytes: make([]byte, MaxMediaBytes+1), MIMEType: "image/png"}
	if err := c.AttachMedia(big); KindOf(err) != ErrSubmissionRejected {
		t.Fatalf("expected oversized media rejected, got %v", err)
	}
	ok := Media{Bytes: []byte{1}, MIMEType: "image/png"}
	if err := c.AttachMedia(ok); err != nil {
		t.Fatalf("attach: %v", err)
	}
}

func TestController_ReplyRecordedWithoutAudioWhenInactive(t *testing.T) {
	chat := &fakeChat{reply: "texto"}
	speech := &fakeSpeech{}
	c, _, player := testController(chat, speech)
	if err := c.Submit("pergunta"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool { return len(c.History()) == 2 }, "reply recorded")
	waitFor(t, func() bool { return c.State() == StateIdle }, "idle after reply")
	time.Sleep(20 * time.Millisecond)
	if speech.calls() != 0 || player.playCount() != 0 {
		t.Fatalf("no audio may be generated while conversation inactive")
	}
}

func TestController_HistoryWindow(t *testing.T) {
	chat := &fakeChat{reply: "r"}
	c, _, _ := testController(chat, &fakeSpeech{})
	for i := 0; i < 8; i++ {
		if err := c.Submit("msg"); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		waitFor(t, func() bool { return c.State() == StateIdle && chat.calls() == i+1 }, "turn done")
		waitFor(t, func() bool { return len(c.History()) == (i+1)*2 }, "history grown")
	}
	req := chat.lastRequest()
	if len(req.History) != DefaultHistoryWindow {
		t.Fatalf("expected window of %d, got %d", DefaultHistoryWindow, len(req.History))
	}
}

func TestController_SpeakReadAloud(t *testing.T) {
	speech := &fakeSpeech{}
	c, _, player := testController(&fakeChat{reply: "x"}, speech)
	if err := c.Speak("ler em voz alta"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	waitFor(t, func() bool { return player.playCount() == 1 }, "playback")
	player.lastPlayback().finish(nil)
	waitFor(t, func() bool { return c.State() == StateIdle }, "idle after read aloud")
}
