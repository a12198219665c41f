package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/yangwenmai/vidlens/internal/logger"
)

// OllamaClient implements captioning, completion and embeddings against a
// local Ollama server.
type OllamaClient struct {
	baseURL string
	models  Models
	http    httpCaller
	log     *logger.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, opts ...Option) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	o := buildOptions(options{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 120 * time.Second,
		models: Models{
			Vision: "llava",
			Chat:   "llama3",
			Embed:  "nomic-embed-text",
		},
	}, opts)
	return &OllamaClient{
		baseURL: o.baseURL,
		models:  o.models,
		http:    newHTTPCaller("ollama", o),
		log:     o.log,
	}
}

type ollamaRequest struct {
	Model  string   `json:"model"`
	System string   `json:"system,omitempty"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Complete sends a system + user prompt and returns the trimmed reply.
func (c *OllamaClient) Complete(ctx context.Context, system, user string) (string, error) {
	return c.generate(ctx, "complete", ollamaRequest{Model: c.models.Chat, System: system, Prompt: user})
}

// CaptionFrames captions each frame with its own request.
func (c *OllamaClient) CaptionFrames(ctx context.Context, framePaths []string, timestamps []float64, prompt string) ([]Caption, error) {
	if prompt == "" {
		prompt = DefaultFramePrompt
	}
	return captionEach(framePaths, timestamps, func(fp string) (string, error) {
		img, err := loadImage(fp)
		if err != nil {
			return "", err
		}
		text, err := c.generate(ctx, "caption frame", ollamaRequest{Model: c.models.Vision, Prompt: prompt, Images: []string{img.data}})
		if err != nil {
			c.log.Warn("frame caption failed", "frame", filepath.Base(fp), "error", err)
		}
		return text, err
	})
}

// CaptionChunk sends every frame of a chunk in one request.
func (c *OllamaClient) CaptionChunk(ctx context.Context, framePaths []string, _ []float64, prompt string) (string, error) {
	imgs, err := loadImages(framePaths)
	if err != nil {
		return "", c.http.fail("caption chunk", err)
	}
	data := make([]string, len(imgs))
	for i, img := range imgs {
		data[i] = img.data
	}
	return c.generate(ctx, "caption chunk", ollamaRequest{Model: c.models.Vision, Prompt: prompt, Images: data})
}

func (c *OllamaClient) generate(ctx context.Context, op string, reqBody ollamaRequest) (string, error) {
	respBody, err := c.post(ctx, op, "/api/generate", reqBody)
	if err != nil {
		return "", err
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return "", c.http.fail(op, fmt.Errorf("unmarshal response: %w", err))
	}
	if ollamaResp.Error != "" {
		return "", c.http.fail(op, fmt.Errorf("ollama error: %s", ollamaResp.Error))
	}
	if ollamaResp.Response == "" {
		return "", c.http.fail(op, fmt.Errorf("empty response from ollama"))
	}
	return strings.TrimSpace(ollamaResp.Response), nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per text, in input order.
func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}
	respBody, err := c.post(ctx, "embed", "/api/embed", ollamaEmbedRequest{Model: c.models.Embed, Input: texts})
	if err != nil {
		return nil, 0, err
	}
	var er ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &er); err != nil {
		return nil, 0, c.http.fail("embed", fmt.Errorf("unmarshal response: %w", err))
	}
	if len(er.Embeddings) != len(texts) {
		return nil, 0, c.http.fail("embed", fmt.Errorf("got %d embeddings for %d texts", len(er.Embeddings), len(texts)))
	}
	return er.Embeddings, len(er.Embeddings[0]), nil
}

// EmbedModel returns the embedding model name.
func (c *OllamaClient) EmbedModel() string { return c.models.Embed }

func (c *OllamaClient) post(ctx context.Context, op, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.do(req, op)
}
