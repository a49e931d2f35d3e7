// Package bridge runs voice sessions over a websocket. The browser does
// speech capture and audio playback; everything between (turn taking,
// silence detection, barge-in, chat and synthesis) runs server-side in a
// per-connection conversation controller.
package bridge

import (
	"encoding/base64"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/SidineiMarcelo/ia-transformers/internal/license"
	"github.com/SidineiMarcelo/ia-transformers/internal/llm"
	"github.com/SidineiMarcelo/ia-transformers/internal/retrieval"
	"github.com/SidineiMarcelo/ia-transformers/internal/tts"
	"github.com/SidineiMarcelo/ia-transformers/internal/voice"
)

// Client message types.
const (
	msgStart     = "start"
	msgStop      = "stop"
	msgFragment  = "fragment"
	msgRecError  = "recognition-error"
	msgInterrupt = "interrupt"
	msgSubmit    = "submit"
	msgSpeak     = "speak"
	msgMedia     = "media"
	msgPlayed    = "played"
)

// Server message types.
const (
	msgState     = "state"
	msgTurn      = "turn"
	msgPending   = "pending"
	msgAudio     = "audio"
	msgAudioStop = "audio-stop"
	msgError     = "error"
)

type clientMessage struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	Final    bool         `json:"final,omitempty"`
	License  string       `json:"license,omitempty"`
	UseRAG   bool         `json:"useRag,omitempty"`
	Profile  *profileInfo `json:"profile,omitempty"`
	Code     string       `json:"code,omitempty"`
	Fatal    bool         `json:"fatal,omitempty"`
	MIMEType string       `json:"mimeType,omitempty"`
	Data     string       `json:"data,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type profileInfo struct {
	Name    string `json:"name"`
	Persona string `json:"persona"`
	Voice   string `json:"voice"`
}

type serverMessage struct {
	Type     string `json:"type"`
	State    string `json:"state,omitempty"`
	Speaker  string `json:"speaker,omitempty"`
	Text     string `json:"text,omitempty"`
	Final    bool   `json:"final,omitempty"`
	Audio    string `json:"audio,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Deps are the server-side collaborators a voice session needs.
type Deps struct {
	Gate           license.Gate
	Chat           llm.Client
	TTS            tts.Synthesizer
	Search         retrieval.Searcher // nil disables retrieval context
	SilenceTimeout time.Duration
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades the request and runs one voice session until the
// socket closes.
func Handler(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		newSession(conn, deps).run()
		return nil
	}
}

type session struct {
	conn   *websocket.Conn
	deps   Deps
	out    chan serverMessage
	done   chan struct{}
	rec    *wsRecognizer
	player *wsPlayer
	ctrl   *voice.Controller
}

func newSession(conn *websocket.Conn, deps Deps) *session {
	s := &session{
		conn: conn,
		deps: deps,
		out:  make(chan serverMessage, 64),
		done: make(chan struct{}),
	}
	s.rec = newWSRecognizer()
	s.player = newWSPlayer(s)
	return s
}

func (s *session) run() {
	go s.writeLoop()
	s.readLoop()
	if s.ctrl != nil {
		s.ctrl.Stop()
	}
	close(s.done)
	_ = s.conn.Close()
}

// send queues a message for the client. A slow client loses messages
// rather than blocking a controller callback.
func (s *session) send(m serverMessage) {
	select {
	case s.out <- m:
	default:
		log.Printf("bridge: dropping %s message, slow client", m.Type)
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case m := <-s.out:
			if err := s.conn.WriteJSON(m); err != nil {
				return
			}
		}
	}
}

func (s *session) readLoop() {
	for {
		var msg clientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case msgStart:
			s.handleStart(msg)
		case msgStop:
			if s.ctrl != nil {
				s.ctrl.Stop()
			}
		case msgFragment:
			s.rec.pushFragment(voice.Fragment{Text: msg.Text, Final: msg.Final})
		case msgRecError:
			s.rec.pushError(voice.RecognitionError{Code: msg.Code, Fatal: msg.Fatal})
		case msgInterrupt:
			if s.ctrl != nil {
				s.ctrl.RequestInterrupt()
			}
		case msgSubmit:
			s.controllerCall(func(c *voice.Controller) error { return c.Submit(msg.Text) })
		case msgSpeak:
			s.controllerCall(func(c *voice.Controller) error { return c.Speak(msg.Text) })
		case msgMedia:
			s.handleMedia(msg)
		case msgPlayed:
			s.player.playbackEnded(msg.Error)
		default:
			log.Printf("bridge: unknown message type %q", msg.Type)
		}
	}
}

func (s *session) handleStart(msg clientMessage) {
	if s.ctrl == nil {
		status, err := s.deps.Gate.Check(msg.License)
		if err != nil {
			log.Printf("bridge: license check failed: %v", err)
			s.send(serverMessage{Type: msgError, Message: "não foi possível validar a licença"})
			return
		}
		if status != license.StatusAuthorized {
			s.send(serverMessage{Type: msgError, Message: "licença inválida ou suspensa"})
			return
		}
		s.ctrl = voice.NewController(
			voice.Config{LicenseKey: msg.License, SilenceTimeout: s.deps.SilenceTimeout},
			s.rec,
			s.player,
			&chatService{client: s.deps.Chat, search: s.deps.Search},
			speechService{synth: s.deps.TTS},
			voice.Hooks{
				OnState: func(st voice.State) {
					s.send(serverMessage{Type: msgState, State: st.String()})
				},
				OnTurn: func(t voice.Turn) {
					s.send(serverMessage{Type: msgTurn, Speaker: string(t.Speaker), Text: t.Text})
				},
				OnPending: func(text string, final bool) {
					s.send(serverMessage{Type: msgPending, Text: text, Final: final})
				},
			},
		)
	}
	if msg.Profile != nil {
		s.ctrl.SetProfile(voice.Profile{
			Name:    msg.Profile.Name,
			Persona: msg.Profile.Persona,
			VoiceID: msg.Profile.Voice,
		})
	}
	s.ctrl.SetRetrieval(msg.UseRAG)
	if err := s.ctrl.Start(); err != nil {
		s.send(serverMessage{Type: msgError, Message: err.Error()})
	}
}

func (s *session) handleMedia(msg clientMessage) {
	if s.ctrl == nil {
		s.send(serverMessage{Type: msgError, Message: "sessão não iniciada"})
		return
	}
	raw, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		s.send(serverMessage{Type: msgError, Message: "mídia em base64 inválida"})
		return
	}
	if err := s.ctrl.AttachMedia(voice.Media{Bytes: raw, MIMEType: msg.MIMEType}); err != nil {
		s.send(serverMessage{Type: msgError, Message: err.Error()})
	}
}

func (s *session) controllerCall(fn func(*voice.Controller) error) {
	if s.ctrl == nil {
		s.send(serverMessage{Type: msgError, Message: "sessão não iniciada"})
		return
	}
	if err := fn(s.ctrl); err != nil {
		s.send(serverMessage{Type: msgError, Message: err.Error()})
	}
}
