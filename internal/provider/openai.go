package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yangwenmai/vidlens/internal/logger"
)

// OpenAIClient implements every capability against the OpenAI REST API.
// It also works with any OpenAI-compatible service by setting a custom base URL.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	models  Models
	http    httpCaller
	log     *logger.Logger
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string, opts ...Option) *OpenAIClient {
	o := buildOptions(options{
		baseURL: "https://api.openai.com/v1",
		models: Models{
			Transcribe: "whisper-1",
			Vision:     "gpt-4-1",
			Embed:      "text-embedding-3-small",
			Chat:       "gpt-4-1",
		},
	}, opts)
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: o.baseURL,
		models:  o.models,
		http:    newHTTPCaller("openai", o),
		log:     o.log,
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

// chatMessage content is either a string or a list of contentParts.
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a system + user prompt and returns the trimmed reply.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	var msgs []chatMessage
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})
	return c.chat(ctx, "complete", chatRequest{Model: c.models.Chat, Messages: msgs})
}

// CaptionFrames captions each frame with its own request.
func (c *OpenAIClient) CaptionFrames(ctx context.Context, framePaths []string, timestamps []float64, prompt string) ([]Caption, error) {
	if prompt == "" {
		prompt = DefaultFramePrompt
	}
	return captionEach(framePaths, timestamps, func(fp string) (string, error) {
		img, err := loadImage(fp)
		if err != nil {
			return "", err
		}
		text, err := c.chat(ctx, "caption frame", chatRequest{
			Model: c.models.Vision,
			Messages: []chatMessage{{Role: "user", Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: img.dataURL()}},
			}}},
			MaxTokens: 200,
		})
		if err != nil {
			c.log.Warn("frame caption failed", "frame", filepath.Base(fp), "error", err)
		}
		return text, err
	})
}

// CaptionChunk sends every frame of a chunk in one request.
func (c *OpenAIClient) CaptionChunk(ctx context.Context, framePaths []string, _ []float64, prompt string) (string, error) {
	imgs, err := loadImages(framePaths)
	if err != nil {
		return "", c.http.fail("caption chunk", err)
	}
	parts := []contentPart{{Type: "text", Text: prompt}}
	for _, img := range imgs {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img.dataURL()}})
	}
	return c.chat(ctx, "caption chunk", chatRequest{
		Model:     c.models.Vision,
		Messages:  []chatMessage{{Role: "user", Content: parts}},
		MaxTokens: 500,
	})
}

func (c *OpenAIClient) chat(ctx context.Context, op string, reqBody chatRequest) (string, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, "/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	respBody, err := c.http.do(req, op)
	if err != nil {
		return "", err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", c.http.fail(op, fmt.Errorf("unmarshal response: %w", err))
	}
	if chatResp.Error != nil {
		return "", c.http.fail(op, fmt.Errorf("api error: %s", chatResp.Error.Message))
	}
	if len(chatResp.Choices) == 0 {
		return "", c.http.fail(op, fmt.Errorf("no choices in response"))
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

type transcriptionResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads an audio file and returns segment-level timings. A
// response without segments becomes one segment holding the full text.
func (c *OpenAIClient) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, c.http.fail("transcribe", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"model", c.models.Transcribe},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, c.http.fail("transcribe", fmt.Errorf("read audio: %w", err))
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, "/audio/transcriptions", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	respBody, err := c.http.do(req, "transcribe")
	if err != nil {
		return nil, err
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return nil, c.http.fail("transcribe", fmt.Errorf("unmarshal response: %w", err))
	}

	var segments []Segment
	for _, s := range tr.Segments {
		segments = append(segments, Segment{StartSec: s.Start, EndSec: s.End, Text: strings.TrimSpace(s.Text)})
	}
	if len(segments) == 0 && strings.TrimSpace(tr.Text) != "" {
		segments = append(segments, Segment{Text: strings.TrimSpace(tr.Text)})
	}
	return segments, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per text, in input order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}
	body, err := json.Marshal(embeddingRequest{Model: c.models.Embed, Input: texts})
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, "/embeddings", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	respBody, err := c.http.do(req, "embed")
	if err != nil {
		return nil, 0, err
	}

	var er embeddingResponse
	if err := json.Unmarshal(respBody, &er); err != nil {
		return nil, 0, c.http.fail("embed", fmt.Errorf("unmarshal response: %w", err))
	}
	if len(er.Data) != len(texts) {
		return nil, 0, c.http.fail("embed", fmt.Errorf("got %d embeddings for %d texts", len(er.Data), len(texts)))
	}
	sort.Slice(er.Data, func(i, j int) bool { return er.Data[i].Index < er.Data[j].Index })

	vecs := make([][]float32, len(er.Data))
	for i, d := range er.Data {
		vecs[i] = d.Embedding
	}
	return vecs, len(vecs[0]), nil
}

// EmbedModel returns the embedding model name.
func (c *OpenAIClient) EmbedModel() string { return c.models.Embed }

func (c *OpenAIClient) newRequest(ctx context.Context, path, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}
