package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a video or artifact lookup has no match.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a video with the same fingerprint already exists.
	ErrDuplicate = errors.New("duplicate video fingerprint")
	// ErrInvalid is returned for records that fail validation at the store boundary.
	ErrInvalid = errors.New("invalid record")
)

// MediaError is a failed ffprobe/ffmpeg invocation.
type MediaError struct {
	Op     string
	Cmd    string
	Output string
	Err    error
}

func (e *MediaError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s failed: %v; out=%s", e.Op, e.Err, e.Output)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// ProviderError is a failed annotation-provider request.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Provider, e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s %s failed", e.Provider, e.Op)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports transient failures (rate limit, server errors).
// Callers record it; nothing retries automatically.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// IngestError is a fatal ingest failure.
type IngestError struct {
	Path  string
	Stage string
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// StepName returns the stage that failed.
func (e *IngestError) StepName() string { return e.Stage }
