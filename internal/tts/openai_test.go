package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenAI_NoKey(t *testing.T) {
	c := NewOpenAIClient("")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Synthesize(ctx, "olá", "alloy"); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestOpenAI_SynthesizeReturnsAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0xff, 0xfb, 0x90})
	}))
	defer srv.Close()

	c := NewOpenAIClient("key")
	c.HTTPClient = &http.Client{Timeout: time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(req)
	})}
	clip, err := c.Synthesize(context.Background(), "olá", "")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(clip.Bytes) == 0 || clip.MIMEType != "audio/mpeg" {
		t.Fatalf("unexpected clip: %d bytes, %q", len(clip.Bytes), clip.MIMEType)
	}
}

func TestOpenAI_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		_, _ = w.Write([]byte("oops"))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key")
	c.HTTPClient = &http.Client{Timeout: time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(req)
	})}
	if _, err := c.Synthesize(context.Background(), "olá", "alloy"); err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
