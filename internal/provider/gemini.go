package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/yangwenmai/vidlens/internal/logger"
)

// GeminiClient implements captioning, completion and embeddings with the
// Google Generative Language REST API.
type GeminiClient struct {
	apiKey  string
	baseURL string
	models  Models
	http    httpCaller
	log     *logger.Logger
}

// NewGeminiClient creates a new Google Gemini client.
func NewGeminiClient(apiKey string, opts ...Option) *GeminiClient {
	o := buildOptions(options{
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		models: Models{
			Vision: "gemini-2.5-flash",
			Chat:   "gemini-2.5-flash",
			Embed:  "text-embedding-004",
		},
	}, opts)
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: o.baseURL,
		models:  o.models,
		http:    newHTTPCaller("gemini", o),
		log:     o.log,
	}
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func inlinePart(img encodedImage) geminiPart {
	return geminiPart{InlineData: &geminiInlineData{MimeType: img.mediaType, Data: img.data}}
}

// Complete sends a system + user prompt and returns the trimmed reply.
func (c *GeminiClient) Complete(ctx context.Context, system, user string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: user}}}},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	return c.generate(ctx, "complete", c.models.Chat, req)
}

// CaptionFrames captions each frame with its own request.
func (c *GeminiClient) CaptionFrames(ctx context.Context, framePaths []string, timestamps []float64, prompt string) ([]Caption, error) {
	if prompt == "" {
		prompt = DefaultFramePrompt
	}
	return captionEach(framePaths, timestamps, func(fp string) (string, error) {
		img, err := loadImage(fp)
		if err != nil {
			return "", err
		}
		text, err := c.generate(ctx, "caption frame", c.models.Vision, geminiRequest{
			Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}, inlinePart(img)}}},
			GenerationConfig: geminiGenConfig{MaxOutputTokens: 200},
		})
		if err != nil {
			c.log.Warn("frame caption failed", "frame", filepath.Base(fp), "error", err)
		}
		return text, err
	})
}

// CaptionChunk sends every frame of a chunk in one request.
func (c *GeminiClient) CaptionChunk(ctx context.Context, framePaths []string, _ []float64, prompt string) (string, error) {
	imgs, err := loadImages(framePaths)
	if err != nil {
		return "", c.http.fail("caption chunk", err)
	}
	parts := []geminiPart{{Text: prompt}}
	for _, img := range imgs {
		parts = append(parts, inlinePart(img))
	}
	return c.generate(ctx, "caption chunk", c.models.Vision, geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenConfig{MaxOutputTokens: 500},
	})
}

func (c *GeminiClient) generate(ctx context.Context, op, modelName string, reqBody geminiRequest) (string, error) {
	respBody, err := c.post(ctx, op, fmt.Sprintf("/models/%s:generateContent", modelName), reqBody)
	if err != nil {
		return "", err
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return "", c.http.fail(op, fmt.Errorf("unmarshal response: %w", err))
	}
	if geminiResp.Error != nil {
		return "", c.http.fail(op, fmt.Errorf("api error: %s", geminiResp.Error.Message))
	}
	if len(geminiResp.Candidates) > 0 && len(geminiResp.Candidates[0].Content.Parts) > 0 {
		return strings.TrimSpace(geminiResp.Candidates[0].Content.Parts[0].Text), nil
	}
	return "", c.http.fail(op, fmt.Errorf("no content in response"))
}

type geminiEmbedRequest struct {
	Requests []geminiEmbedItem `json:"requests"`
}

type geminiEmbedItem struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// Embed returns one vector per text, in input order.
func (c *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}
	modelPath := "models/" + c.models.Embed
	req := geminiEmbedRequest{Requests: make([]geminiEmbedItem, len(texts))}
	for i, t := range texts {
		req.Requests[i] = geminiEmbedItem{Model: modelPath, Content: geminiContent{Parts: []geminiPart{{Text: t}}}}
	}
	respBody, err := c.post(ctx, "embed", "/"+modelPath+":batchEmbedContents", req)
	if err != nil {
		return nil, 0, err
	}

	var er geminiEmbedResponse
	if err := json.Unmarshal(respBody, &er); err != nil {
		return nil, 0, c.http.fail("embed", fmt.Errorf("unmarshal response: %w", err))
	}
	if len(er.Embeddings) != len(texts) {
		return nil, 0, c.http.fail("embed", fmt.Errorf("got %d embeddings for %d texts", len(er.Embeddings), len(texts)))
	}
	vecs := make([][]float32, len(er.Embeddings))
	for i, e := range er.Embeddings {
		vecs[i] = e.Values
	}
	return vecs, len(vecs[0]), nil
}

// EmbedModel returns the embedding model name.
func (c *GeminiClient) EmbedModel() string { return c.models.Embed }

func (c *GeminiClient) post(ctx context.Context, op, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	return c.http.do(req, op)
}
