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

// ClaudeClient implements captioning and completion with the Anthropic Messages API.
type ClaudeClient struct {
	apiKey  string
	baseURL string
	models  Models
	http    httpCaller
	log     *logger.Logger
}

// NewClaudeClient creates a new Anthropic Claude client.
func NewClaudeClient(apiKey string, opts ...Option) *ClaudeClient {
	o := buildOptions(options{
		baseURL: "https://api.anthropic.com/v1",
		models: Models{
			Vision: "claude-sonnet-4-5-20250929",
			Chat:   "claude-sonnet-4-5-20250929",
		},
	}, opts)
	return &ClaudeClient{
		apiKey:  apiKey,
		baseURL: o.baseURL,
		models:  o.models,
		http:    newHTTPCaller("anthropic", o),
		log:     o.log,
	}
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Type   string             `json:"type"`
	Text   string             `json:"text,omitempty"`
	Source *claudeImageSource `json:"source,omitempty"`
}

type claudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func imageBlock(img encodedImage) claudeBlock {
	return claudeBlock{
		Type:   "image",
		Source: &claudeImageSource{Type: "base64", MediaType: img.mediaType, Data: img.data},
	}
}

// Complete sends a system + user prompt and returns the trimmed reply.
func (c *ClaudeClient) Complete(ctx context.Context, system, user string) (string, error) {
	return c.messages(ctx, "complete", claudeRequest{
		Model:     c.models.Chat,
		MaxTokens: 4096,
		System:    system,
		Messages:  []claudeMessage{{Role: "user", Content: []claudeBlock{{Type: "text", Text: user}}}},
	})
}

// CaptionFrames captions each frame with its own request.
func (c *ClaudeClient) CaptionFrames(ctx context.Context, framePaths []string, timestamps []float64, prompt string) ([]Caption, error) {
	if prompt == "" {
		prompt = DefaultFramePrompt
	}
	return captionEach(framePaths, timestamps, func(fp string) (string, error) {
		img, err := loadImage(fp)
		if err != nil {
			return "", err
		}
		text, err := c.messages(ctx, "caption frame", claudeRequest{
			Model:     c.models.Vision,
			MaxTokens: 200,
			Messages: []claudeMessage{{Role: "user", Content: []claudeBlock{
				imageBlock(img),
				{Type: "text", Text: prompt},
			}}},
		})
		if err != nil {
			c.log.Warn("frame caption failed", "frame", filepath.Base(fp), "error", err)
		}
		return text, err
	})
}

// CaptionChunk sends every frame of a chunk in one request.
func (c *ClaudeClient) CaptionChunk(ctx context.Context, framePaths []string, _ []float64, prompt string) (string, error) {
	imgs, err := loadImages(framePaths)
	if err != nil {
		return "", c.http.fail("caption chunk", err)
	}
	blocks := make([]claudeBlock, 0, len(imgs)+1)
	for _, img := range imgs {
		blocks = append(blocks, imageBlock(img))
	}
	blocks = append(blocks, claudeBlock{Type: "text", Text: prompt})
	return c.messages(ctx, "caption chunk", claudeRequest{
		Model:     c.models.Vision,
		MaxTokens: 500,
		Messages:  []claudeMessage{{Role: "user", Content: blocks}},
	})
}

func (c *ClaudeClient) messages(ctx context.Context, op string, reqBody claudeRequest) (string, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	respBody, err := c.http.do(req, op)
	if err != nil {
		return "", err
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(respBody, &claudeResp); err != nil {
		return "", c.http.fail(op, fmt.Errorf("unmarshal response: %w", err))
	}
	if claudeResp.Error != nil {
		return "", c.http.fail(op, fmt.Errorf("api error: %s", claudeResp.Error.Message))
	}
	for _, block := range claudeResp.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", c.http.fail(op, fmt.Errorf("no text content in response"))
}
