// Command assistant runs a terminal voice-loop client against the
// backend: typed lines play the role of recognized speech, replies are
// spoken by saving the synthesized audio next to the transcript.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/SidineiMarcelo/ia-transformers/internal/apiclient"
	"github.com/SidineiMarcelo/ia-transformers/internal/voice"
)

type lineRecognizer struct {
	results chan voice.Fragment
	errs    chan voice.RecognitionError
}

func newLineRecognizer() *lineRecognizer {
	return &lineRecognizer{
		results: make(chan voice.Fragment, 16),
		errs:    make(chan voice.RecognitionError, 1),
	}
}

func (r *lineRecognizer) Start() error                          { return nil }
func (r *lineRecognizer) Stop() error                           { return nil }
func (r *lineRecognizer) Results() <-chan voice.Fragment        { return r.results }
func (r *lineRecognizer) Errors() <-chan voice.RecognitionError { return r.errs }

func (r *lineRecognizer) push(text string) {
	r.results <- voice.Fragment{Text: text, Final: true}
}

type filePlayback struct {
	done chan error
}

func (p *filePlayback) Done() <-chan error { return p.done }
func (p *filePlayback) Stop()              {}

// filePlayer saves each clip to the output directory instead of playing
// it, then reports immediate completion.
type filePlayer struct {
	dir string
	n   int
}

func (p *filePlayer) Play(clip voice.AudioClip) (voice.Playback, error) {
	p.n++
	ext := ".mp3"
	if strings.Contains(clip.MIMEType, "wav") {
		ext = ".wav"
	}
	path := filepath.Join(p.dir, fmt.Sprintf("reply-%03d%s", p.n, ext))
	if err := os.WriteFile(path, clip.Bytes, 0o644); err != nil {
		return nil, err
	}
	fmt.Printf("  [áudio salvo em %s]\n", path)
	pb := &filePlayback{done: make(chan error, 1)}
	pb.done <- nil
	return pb, nil
}

func main() {
	log.SetFlags(log.Ltime)
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	backend := flag.String("backend", envOr("BACKEND_URL", "http://localhost:8080"), "backend base URL")
	licenseKey := flag.String("license", os.Getenv("LICENSE_KEY"), "license key")
	persona := flag.String("persona", "", "agent persona prompt")
	voiceID := flag.String("voice", "", "voice id for synthesis")
	useRag := flag.Bool("rag", false, "augment replies with indexed documents")
	outDir := flag.String("out", ".", "directory for synthesized audio")
	flag.Parse()

	client := apiclient.New(*backend, *licenseKey)
	client.OpenAIKey = os.Getenv("OPENAI_API_KEY")

	rec := newLineRecognizer()
	player := &filePlayer{dir: *outDir}
	ctrl := voice.NewController(
		voice.Config{LicenseKey: *licenseKey, SilenceTimeout: 500 * time.Millisecond},
		rec,
		player,
		client,
		client,
		voice.Hooks{
			OnTurn: func(t voice.Turn) {
				fmt.Printf("%s: %s\n", t.Speaker, t.Text)
			},
			OnState: func(s voice.State) {
				fmt.Printf("  [%s]\n", s)
			},
		},
	)
	ctrl.SetProfile(voice.Profile{Persona: *persona, VoiceID: *voiceID})
	ctrl.SetRetrieval(*useRag)

	if err := ctrl.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}
	defer ctrl.Stop()

	fmt.Println("fale digitando; comandos: /upload <arquivo>, /interrupt, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/interrupt":
			ctrl.RequestInterrupt()
		case strings.HasPrefix(line, "/upload "):
			upload(client, strings.TrimSpace(strings.TrimPrefix(line, "/upload ")))
		case strings.HasPrefix(line, "/"):
			fmt.Printf("comando desconhecido: %s\n", line)
		default:
			rec.push(line)
		}
	}
}

func upload(client *apiclient.Client, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("upload: %v\n", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	n, err := client.Upload(ctx, filepath.Base(path), data)
	if err != nil {
		fmt.Printf("upload: %v\n", err)
		return
	}
	fmt.Printf("indexado em %d trechos\n", n)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
