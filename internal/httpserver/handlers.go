package httpserver

import (
	"encoding/base64"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/SidineiMarcelo/ia-transformers/internal/llm"
	"github.com/SidineiMarcelo/ia-transformers/internal/profile"
	"github.com/SidineiMarcelo/ia-transformers/internal/retrieval"
)

const (
	defaultPersona = "Você é um assistente de voz. Responda de forma curta, natural e em português."

	maxUploadBytes = 10 << 20
)

type handler struct {
	deps Deps
}

func (h *handler) healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type mediaPayload struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
	Persona  string        `json:"persona"`
	UseRAG   bool          `json:"useRag"`
	Media    *mediaPayload `json:"media,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (h *handler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "corpo da requisição inválido"})
	}
	if len(req.Messages) == 0 {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "mensagens vazias"})
	}

	system := strings.TrimSpace(req.Persona)
	if system == "" {
		system = defaultPersona
	}
	if req.UseRAG && h.deps.Retrieval != nil {
		if block := h.retrievalContext(c, req.Messages); block != "" {
			system += "\n\nUse o contexto a seguir quando for relevante:\n" + block
		}
	}

	var media *llm.Media
	if req.Media != nil && req.Media.Data != "" {
		raw, err := base64.StdEncoding.DecodeString(req.Media.Data)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorBody{Error: "mídia em base64 inválida"})
		}
		media = &llm.Media{Bytes: raw, MIMEType: req.Media.MIMEType}
	}

	client := h.deps.Chat
	if key := c.Request().Header.Get(headerOpenAIKey); key != "" && h.deps.ChatForKey != nil {
		client = h.deps.ChatForKey(key)
	}

	reply, err := client.Complete(c.Request().Context(), llm.Request{
		SystemPrompt: system,
		Messages:     req.Messages,
		Media:        media,
	})
	if err != nil {
		log.Printf("chat completion failed: %v", err)
		return c.JSON(http.StatusBadGateway, errorBody{Error: "falha ao gerar resposta"})
	}
	return c.JSON(http.StatusOK, chatResponse{Reply: reply})
}

// retrievalContext looks up document snippets for the latest user
// message. Retrieval failures degrade to a plain chat, never an error.
func (h *handler) retrievalContext(c echo.Context, messages []llm.Message) string {
	query := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			query = messages[i].Content
			break
		}
	}
	if strings.TrimSpace(query) == "" {
		return ""
	}
	snippets, err := h.deps.Retrieval.Search(c.Request().Context(), query)
	if err != nil {
		log.Printf("retrieval failed: %v", err)
		return ""
	}
	return retrieval.ContextBlock(snippets)
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type ttsResponse struct {
	Audio    string `json:"audio"` // base64
	MIMEType string `json:"mimeType"`
}

func (h *handler) tts(c echo.Context) error {
	var req ttsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "corpo da requisição inválido"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "texto vazio"})
	}

	synth := h.deps.TTS
	if key := c.Request().Header.Get(headerOpenAIKey); key != "" && h.deps.TTSForKey != nil {
		synth = h.deps.TTSForKey(key)
	}

	clip, err := synth.Synthesize(c.Request().Context(), req.Text, req.Voice)
	if err != nil {
		log.Printf("speech synthesis failed: %v", err)
		return c.JSON(http.StatusBadGateway, errorBody{Error: "falha ao sintetizar áudio"})
	}
	return c.JSON(http.StatusOK, ttsResponse{
		Audio:    base64.StdEncoding.EncodeToString(clip.Bytes),
		MIMEType: clip.MIMEType,
	})
}

type uploadResponse struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

func (h *handler) upload(c echo.Context) error {
	if h.deps.Ingestor == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "ingestão de documentos não configurada"})
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "arquivo ausente"})
	}
	if fh.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: "arquivo grande demais"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "não foi possível ler o arquivo"})
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "não foi possível ler o arquivo"})
	}
	if len(data) > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: "arquivo grande demais"})
	}

	contentType := fh.Header.Get("Content-Type")
	chunks, err := h.deps.Ingestor.Ingest(c.Request().Context(), fh.Filename, contentType, data)
	if err != nil {
		log.Printf("ingest failed: %v", err)
		return c.JSON(http.StatusBadGateway, errorBody{Error: "falha ao indexar documento"})
	}
	return c.JSON(http.StatusOK, uploadResponse{Source: fh.Filename, Chunks: chunks})
}

type profileRequest struct {
	Name    string `json:"name"`
	Persona string `json:"persona"`
	Voice   string `json:"voice"`
}

func (h *handler) listProfiles(c echo.Context) error {
	list, err := h.deps.Profiles.List()
	if err != nil {
		log.Printf("list profiles failed: %v", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "falha ao listar perfis"})
	}
	if list == nil {
		list = []profile.Profile{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *handler) createProfile(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "corpo da requisição inválido"})
	}
	p, err := h.deps.Profiles.Create(req.Name, req.Persona, req.Voice)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *handler) getProfile(c echo.Context) error {
	p, err := h.deps.Profiles.Get(c.Param("id"))
	if errors.Is(err, profile.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody{Error: "perfil não encontrado"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "falha ao buscar perfil"})
	}
	return c.JSON(http.StatusOK, p)
}

func (h *handler) deleteProfile(c echo.Context) error {
	err := h.deps.Profiles.Delete(c.Param("id"))
	if errors.Is(err, profile.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody{Error: "perfil não encontrado"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "falha ao remover perfil"})
	}
	return c.NoContent(http.StatusNoContent)
}
