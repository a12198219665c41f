// Package config provides centralized configuration for vidlens.
// Values are layered: defaults, provider preset, YAML file, then VIDLENS_*
// environment variables.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/provider"
)

const envPrefix = "VIDLENS_"

// LogConfig controls the process logger.
type LogConfig struct {
	Mode       string `yaml:"mode"`
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// S3Config selects the bucket dense timelines are exported to. An empty
// Bucket exports to DenseOutputDir instead.
type S3Config struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// Config holds all configuration values.
type Config struct {
	// Provider selects the annotation backend: openai, anthropic, gemini, ollama or stub.
	Provider   string `yaml:"provider"`
	APIBaseURL string `yaml:"api_base_url"`
	APIKey     string `yaml:"api_key"`

	// Model names. An empty transcribe or embed model disables that capability.
	TranscribeModel string `yaml:"transcribe_model"`
	VisionModel     string `yaml:"vision_model"`
	EmbedModel      string `yaml:"embed_model"`
	ChatModel       string `yaml:"chat_model"`

	// DBPath is the path to the SQLite database file.
	DBPath string `yaml:"db_path"`

	FPSSample        float64 `yaml:"fps_sample"`
	MaxFrames        int     `yaml:"max_frames"`
	ChunkDurationSec int     `yaml:"chunk_duration_sec"`
	FramesPerChunk   int     `yaml:"frames_per_chunk"`
	Topic            string  `yaml:"topic"`

	DenseOutputDir string `yaml:"dense_output_dir"`
	PrinciplesPath string `yaml:"principles_path,omitempty"`
	DenseTemplate  string `yaml:"dense_template,omitempty"`

	// RequestsPerMinute caps outbound provider requests. 0 means unlimited.
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`

	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	// APIRateLimit is the inbound request rate allowed by the API server, per second.
	APIRateLimit int `yaml:"api_rate_limit"`

	// WatchDir is polled for new videos by the server's worker. Empty disables it.
	WatchDir      string        `yaml:"watch_dir,omitempty"`
	WatchInterval time.Duration `yaml:"watch_interval"`

	Log LogConfig `yaml:"log"`
	S3  S3Config  `yaml:"s3,omitempty"`
}

// preset is the provider-specific part of a configuration.
type preset struct {
	baseURL    string
	transcribe string
	vision     string
	embed      string
	chat       string
}

var presets = map[string]preset{
	"openai": {
		baseURL:    "https://api.openai.com/v1",
		transcribe: "whisper-1",
		vision:     "gpt-4-1",
		embed:      "text-embedding-3-small",
		chat:       "gpt-4-1",
	},
	"anthropic": {
		baseURL: "https://api.anthropic.com/v1",
		vision:  "claude-sonnet-4-5-20250929",
		chat:    "claude-sonnet-4-5-20250929",
	},
	"gemini": {
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		vision:  "gemini-2.5-flash",
		embed:   "text-embedding-004",
		chat:    "gemini-2.5-flash",
	},
	"ollama": {
		baseURL: "http://localhost:11434",
		vision:  "llava",
		embed:   "nomic-embed-text",
		chat:    "llama3",
	},
	"stub": {
		transcribe: "stub",
		vision:     "stub",
		embed:      "stub-embed",
		chat:       "stub",
	},
}

// Providers returns the names of the known providers.
func Providers() []string {
	return []string{"openai", "anthropic", "gemini", "ollama", "stub"}
}

// Dir returns the per-user configuration directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vidlens"
	}
	return filepath.Join(home, ".config", "vidlens")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	c := Config{
		Provider:         "openai",
		DBPath:           filepath.Join(Dir(), "vidlens.db"),
		FPSSample:        0.5,
		MaxFrames:        200,
		ChunkDurationSec: 30,
		FramesPerChunk:   3,
		Topic:            "general",
		DenseOutputDir:   filepath.Join(os.TempDir(), "vidlens-dense"),
		HTTPTimeout:      60 * time.Second,
		Port:             "8080",
		CORSOrigin:       "*",
		APIRateLimit:     20,
		WatchInterval:    30 * time.Second,
		Log:              LogConfig{Mode: "dev", Level: "info"},
	}
	c.applyPreset()
	return c
}

func (c *Config) applyPreset() {
	p, ok := presets[c.Provider]
	if !ok {
		return
	}
	c.APIBaseURL = p.baseURL
	c.TranscribeModel = p.transcribe
	c.VisionModel = p.vision
	c.EmbedModel = p.embed
	c.ChatModel = p.chat
}

// Load builds the configuration. path may be empty, in which case
// VIDLENS_CONFIG or DefaultPath is used; a missing file is not an error.
// A .env.local file in the working directory is loaded first and never
// overrides variables already set.
func Load(path string) (Config, error) {
	loadEnvFile(".env.local")
	return load(ResolvePath(path), true)
}

// LoadFile builds the configuration from defaults, preset and the file at
// path only. The CLI uses it to edit the file without persisting the
// environment.
func LoadFile(path string) (Config, error) {
	return load(ResolvePath(path), false)
}

// ResolvePath returns path, or VIDLENS_CONFIG, or DefaultPath.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	return envOr(envPrefix+"CONFIG", DefaultPath())
}

func load(path string, withEnv bool) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	// The provider decides the preset, so resolve it before layering the rest.
	var head struct {
		Provider string `yaml:"provider"`
	}
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &head); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg := Defaults()
	p := head.Provider
	if withEnv {
		p = envOr(envPrefix+"PROVIDER", p)
	}
	if p != "" {
		cfg.Provider = p
		cfg.applyPreset()
	}
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if withEnv {
		cfg.applyEnv()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Provider = envOr(envPrefix+"PROVIDER", c.Provider)
	c.APIBaseURL = envOr(envPrefix+"API_BASE_URL", c.APIBaseURL)
	c.APIKey = envOr(envPrefix+"API_KEY", c.APIKey)
	c.TranscribeModel = envSet(envPrefix+"TRANSCRIBE_MODEL", c.TranscribeModel)
	c.VisionModel = envOr(envPrefix+"VISION_MODEL", c.VisionModel)
	c.EmbedModel = envSet(envPrefix+"EMBED_MODEL", c.EmbedModel)
	c.ChatModel = envOr(envPrefix+"CHAT_MODEL", c.ChatModel)
	c.DBPath = envOr(envPrefix+"DB_PATH", c.DBPath)
	c.FPSSample = envFloat(envPrefix+"FPS_SAMPLE", c.FPSSample)
	c.MaxFrames = envInt(envPrefix+"MAX_FRAMES", c.MaxFrames)
	c.ChunkDurationSec = envInt(envPrefix+"CHUNK_DURATION", c.ChunkDurationSec)
	c.FramesPerChunk = envInt(envPrefix+"FRAMES_PER_CHUNK", c.FramesPerChunk)
	c.Topic = envOr(envPrefix+"TOPIC", c.Topic)
	c.DenseOutputDir = envOr(envPrefix+"DENSE_OUTPUT_DIR", c.DenseOutputDir)
	c.PrinciplesPath = envOr(envPrefix+"PRINCIPLES_PATH", c.PrinciplesPath)
	c.DenseTemplate = envOr(envPrefix+"DENSE_TEMPLATE", c.DenseTemplate)
	c.RequestsPerMinute = envInt(envPrefix+"REQUESTS_PER_MINUTE", c.RequestsPerMinute)
	c.HTTPTimeout = envDuration(envPrefix+"HTTP_TIMEOUT", c.HTTPTimeout)
	c.Port = envOr(envPrefix+"PORT", c.Port)
	c.CORSOrigin = envOr(envPrefix+"CORS_ORIGIN", c.CORSOrigin)
	c.APIRateLimit = envInt(envPrefix+"API_RATE_LIMIT", c.APIRateLimit)
	c.WatchDir = envOr(envPrefix+"WATCH_DIR", c.WatchDir)
	c.WatchInterval = envDuration(envPrefix+"WATCH_INTERVAL", c.WatchInterval)
	c.Log.Mode = envOr(envPrefix+"LOG_MODE", c.Log.Mode)
	c.Log.Level = envOr(envPrefix+"LOG_LEVEL", c.Log.Level)
	c.Log.File = envOr(envPrefix+"LOG_FILE", c.Log.File)
	c.S3.Endpoint = envOr(envPrefix+"S3_ENDPOINT", c.S3.Endpoint)
	c.S3.Region = envOr(envPrefix+"S3_REGION", c.S3.Region)
	c.S3.Bucket = envOr(envPrefix+"S3_BUCKET", c.S3.Bucket)
	c.S3.Prefix = envOr(envPrefix+"S3_PREFIX", c.S3.Prefix)
	c.S3.AccessKey = envOr(envPrefix+"S3_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = envOr(envPrefix+"S3_SECRET_KEY", c.S3.SecretKey)
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	if _, ok := presets[c.Provider]; !ok {
		return fmt.Errorf("unknown provider %q (want one of %s)", c.Provider, strings.Join(Providers(), ", "))
	}
	if c.FPSSample <= 0 {
		return fmt.Errorf("fps_sample must be positive, got %v", c.FPSSample)
	}
	if c.MaxFrames <= 0 {
		return fmt.Errorf("max_frames must be positive, got %d", c.MaxFrames)
	}
	if c.ChunkDurationSec <= 0 {
		return fmt.Errorf("chunk_duration_sec must be positive, got %d", c.ChunkDurationSec)
	}
	if c.FramesPerChunk <= 0 {
		return fmt.Errorf("frames_per_chunk must be positive, got %d", c.FramesPerChunk)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	return nil
}

// Save writes c as YAML to path, creating parent directories. The file holds
// the API key, so it is only readable by the owner.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Set assigns one field by its YAML key, for the CLI. Setting provider
// re-applies its preset.
func (c *Config) Set(key, value string) error {
	switch key {
	case "provider":
		if _, ok := presets[value]; !ok {
			return fmt.Errorf("unknown provider %q", value)
		}
		c.Provider = value
		c.applyPreset()
	case "api_base_url":
		c.APIBaseURL = value
	case "api_key":
		c.APIKey = value
	case "transcribe_model":
		c.TranscribeModel = value
	case "vision_model":
		c.VisionModel = value
	case "embed_model":
		c.EmbedModel = value
	case "chat_model":
		c.ChatModel = value
	case "db_path":
		c.DBPath = value
	case "topic":
		c.Topic = value
	case "dense_output_dir":
		c.DenseOutputDir = value
	case "principles_path":
		c.PrinciplesPath = value
	case "watch_dir":
		c.WatchDir = value
	case "fps_sample":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("fps_sample: %w", err)
		}
		c.FPSSample = f
	case "max_frames", "chunk_duration_sec", "frames_per_chunk", "requests_per_minute":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case "max_frames":
			c.MaxFrames = n
		case "chunk_duration_sec":
			c.ChunkDurationSec = n
		case "frames_per_chunk":
			c.FramesPerChunk = n
		default:
			c.RequestsPerMinute = n
		}
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return c.Validate()
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "***"
	}
	if c.S3.SecretKey != "" {
		c.S3.SecretKey = "***"
	}
	return c
}

// ProviderSettings returns the settings for provider.New.
func (c Config) ProviderSettings() provider.Settings {
	return provider.Settings{
		Provider: c.Provider,
		BaseURL:  c.APIBaseURL,
		APIKey:   c.APIKey,
		Models: provider.Models{
			Transcribe: c.TranscribeModel,
			Vision:     c.VisionModel,
			Embed:      c.EmbedModel,
			Chat:       c.ChatModel,
		},
		RequestsPerMinute: c.RequestsPerMinute,
		Timeout:           c.HTTPTimeout,
	}
}

// LoggerOptions returns the options for logger.New.
func (c Config) LoggerOptions() logger.Options {
	return logger.Options{
		Mode:       c.Log.Mode,
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// loadEnvFile reads KEY=VALUE lines into the environment. Variables that are
// already set win. A missing file is ignored.
func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.TrimSpace(value)
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envSet is envOr, but a variable set to "" also wins. Used where an empty
// value is meaningful.
func envSet(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
