// Package apiclient talks to the assistant backend over HTTP. It
// implements the chat and speech service interfaces the conversation
// controller expects, so a local client can run the full voice loop
// against a remote backend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/SidineiMarcelo/ia-transformers/internal/voice"
)

// Client is an authenticated backend client.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	LicenseKey string
	// OpenAIKey, when set, is forwarded so the backend bills the
	// caller's own account.
	OpenAIKey string
}

func New(baseURL, licenseKey string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		LicenseKey: licenseKey,
	}
}

type mediaPayload struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
	Persona  string        `json:"persona,omitempty"`
	UseRAG   bool          `json:"useRag,omitempty"`
	Media    *mediaPayload `json:"media,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Complete sends one conversation turn to the backend.
func (c *Client) Complete(ctx context.Context, req voice.ChatRequest) (string, error) {
	messages := make([]chatMessage, 0, len(req.History))
	for _, t := range req.History {
		messages = append(messages, chatMessage{Role: string(t.Speaker), Content: t.Text})
	}
	body := chatRequest{
		Messages: messages,
		Persona:  req.Profile.Persona,
		UseRAG:   req.UseRetrieval,
	}
	if req.Media != nil {
		body.Media = &mediaPayload{
			MIMEType: req.Media.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.Media.Bytes),
		}
	}

	var resp chatResponse
	if err := c.postJSON(ctx, "/api/chat", body, &resp); err != nil {
		return "", err
	}
	return resp.Reply, nil
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

type ttsResponse struct {
	Audio    string `json:"audio"`
	MIMEType string `json:"mimeType"`
}

// Synthesize asks the backend for spoken audio.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (voice.AudioClip, error) {
	var resp ttsResponse
	if err := c.postJSON(ctx, "/api/tts", ttsRequest{Text: text, Voice: voiceID}, &resp); err != nil {
		return voice.AudioClip{}, err
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return voice.AudioClip{}, voice.NewError(voice.ErrService, "invalid audio payload")
	}
	return voice.AudioClip{Bytes: raw, MIMEType: resp.MIMEType}, nil
}

type uploadResponse struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// Upload sends a document for indexing and returns the chunk count.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (int, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return 0, err
	}
	if _, err := fw.Write(data); err != nil {
		return 0, err
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/upload", &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuth(req)

	var resp uploadResponse
	if err := c.do(req, &resp); err != nil {
		return 0, err
	}
	return resp.Chunks, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	return c.do(req, out)
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("x-license-key", c.LicenseKey)
	if c.OpenAIKey != "" {
		req.Header.Set("x-openai-key", c.OpenAIKey)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return voice.NewError(voice.ErrService, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return voice.NewError(voice.ErrAuth, "licença inválida ou suspensa")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return voice.NewError(voice.ErrService, fmt.Sprintf("backend error: status=%d body=%s", resp.StatusCode, string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return voice.NewError(voice.ErrService, "invalid backend response")
	}
	return nil
}
