// Package provider defines the annotation capabilities the pipeline calls
// (transcribe, caption, embed, complete) and HTTP clients implementing them.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/model"
)

// Segment is one timed piece of a transcript.
type Segment struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
}

// Caption is the description of a single frame.
type Caption struct {
	TimestampSec float64 `json:"timestamp_sec"`
	Text         string  `json:"text"`
	FramePath    string  `json:"frame_path,omitempty"`
}

// Transcriber turns an audio file into timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]Segment, error)
}

// FrameCaptioner describes frames one request per frame. An empty prompt
// uses DefaultFramePrompt.
type FrameCaptioner interface {
	CaptionFrames(ctx context.Context, framePaths []string, timestamps []float64, prompt string) ([]Caption, error)
}

// ChunkCaptioner describes several frames in one multi-image request.
type ChunkCaptioner interface {
	CaptionChunk(ctx context.Context, framePaths []string, timestamps []float64, prompt string) (string, error)
}

// Embedder turns texts into vectors, returned in input order with their dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, int, error)
	EmbedModel() string
}

// Completer runs a system + user chat completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// DefaultFramePrompt is used for per-frame captions when no prompt is given.
const DefaultFramePrompt = "Describe this video frame in one detailed sentence. Focus on actions, objects, and scene context."

// Models names the model used for each capability. An empty name disables it.
type Models struct {
	Transcribe string
	Vision     string
	Embed      string
	Chat       string
}

// Settings selects and configures a provider.
type Settings struct {
	Provider          string
	BaseURL           string
	APIKey            string
	Models            Models
	RequestsPerMinute int
	Timeout           time.Duration
}

// Set holds the capabilities of one configured provider. Nil fields are unavailable.
type Set struct {
	Name           string
	Transcriber    Transcriber
	FrameCaptioner FrameCaptioner
	ChunkCaptioner ChunkCaptioner
	Embedder       Embedder
	Completer      Completer
}

// New builds the capability set for s.Provider.
func New(s Settings, log *logger.Logger) (*Set, error) {
	if log == nil {
		log = logger.Nop()
	}
	opts := []Option{
		WithModels(s.Models),
		WithLimiter(NewLimiter(s.RequestsPerMinute)),
		WithLogger(log.With("provider", s.Provider)),
	}
	if s.BaseURL != "" {
		opts = append(opts, WithBaseURL(s.BaseURL))
	}
	if s.Timeout > 0 {
		opts = append(opts, WithTimeout(s.Timeout))
	}

	set := &Set{Name: s.Provider}
	switch s.Provider {
	case "openai", "":
		c := NewOpenAIClient(s.APIKey, opts...)
		set.FrameCaptioner, set.ChunkCaptioner, set.Completer = c, c, c
		if s.Models.Transcribe != "" {
			set.Transcriber = c
		}
		if s.Models.Embed != "" {
			set.Embedder = c
		}
	case "anthropic":
		c := NewClaudeClient(s.APIKey, opts...)
		set.FrameCaptioner, set.ChunkCaptioner, set.Completer = c, c, c
	case "gemini":
		c := NewGeminiClient(s.APIKey, opts...)
		set.FrameCaptioner, set.ChunkCaptioner, set.Completer = c, c, c
		if s.Models.Embed != "" {
			set.Embedder = c
		}
	case "ollama":
		c := NewOllamaClient(s.BaseURL, opts...)
		set.FrameCaptioner, set.ChunkCaptioner, set.Completer = c, c, c
		if s.Models.Embed != "" {
			set.Embedder = c
		}
	case "stub":
		c := &StubProvider{}
		set.Transcriber, set.FrameCaptioner, set.ChunkCaptioner, set.Embedder, set.Completer = c, c, c, c, c
	default:
		return nil, fmt.Errorf("unknown provider %q", s.Provider)
	}
	return set, nil
}

// NewLimiter returns a token bucket allowing rpm requests per minute, or nil
// for no limit.
func NewLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60), 1)
}

// Option configures any of the HTTP clients.
type Option func(*options)

type options struct {
	baseURL string
	models  Models
	limiter *rate.Limiter
	timeout time.Duration
	log     *logger.Logger
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(url, "/") }
}

// WithModels sets model names; empty names keep the client default.
func WithModels(m Models) Option {
	return func(o *options) {
		if m.Transcribe != "" {
			o.models.Transcribe = m.Transcribe
		}
		if m.Vision != "" {
			o.models.Vision = m.Vision
		}
		if m.Embed != "" {
			o.models.Embed = m.Embed
		}
		if m.Chat != "" {
			o.models.Chat = m.Chat
		}
	}
}

// WithLimiter gates every request on l.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(defaults options, opts []Option) options {
	o := defaults
	if o.timeout == 0 {
		o.timeout = 60 * time.Second
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// httpCaller performs one request per call. Nothing is retried; a failure
// comes back as *model.ProviderError for the caller to degrade on.
type httpCaller struct {
	provider   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newHTTPCaller(provider string, o options) httpCaller {
	return httpCaller{
		provider:   provider,
		httpClient: &http.Client{Timeout: o.timeout},
		limiter:    o.limiter,
	}
}

func (h httpCaller) do(req *http.Request, op string) ([]byte, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(req.Context()); err != nil {
			return nil, &model.ProviderError{Provider: h.provider, Op: op, Err: err}
		}
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, &model.ProviderError{Provider: h.provider, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.ProviderError{Provider: h.provider, Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &model.ProviderError{Provider: h.provider, Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), 500)}
	}
	return body, nil
}

func (h httpCaller) fail(op string, err error) error {
	return &model.ProviderError{Provider: h.provider, Op: op, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
