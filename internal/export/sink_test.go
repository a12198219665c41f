package export

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestDirSink_Put(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	s := NewDirSink(dir)

	loc, err := s.Put(context.Background(), "vid.dense.md", []byte("# hi\n"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if loc != filepath.Join(dir, "vid.dense.md") {
		t.Errorf("location = %q", loc)
	}
	got, _ := os.ReadFile(loc)
	if string(got) != "# hi\n" {
		t.Errorf("content = %q", got)
	}
}

func TestDirSink_StripsDirectories(t *testing.T) {
	dir := t.TempDir()
	loc, err := NewDirSink(dir).Put(context.Background(), "../../escape.jsonl", []byte("{}"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if filepath.Dir(loc) != dir {
		t.Errorf("location %q escaped %q", loc, dir)
	}
}

func TestS3Sink_Put(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		ctype  string
		body   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path, ctype = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewS3Sink(context.Background(), S3Config{
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		Bucket:    "timelines",
		Prefix:    "/dense/",
		AccessKey: "AKIDTEST",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewS3Sink: %v", err)
	}

	loc, err := s.Put(context.Background(), "vid-1.dense.jsonl", []byte(`{"a":1}`+"\n"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if loc != "s3://timelines/dense/vid-1.dense.jsonl" {
		t.Errorf("location = %q", loc)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/timelines/dense/vid-1.dense.jsonl" {
		t.Errorf("path = %s, want path-style key", path)
	}
	if ctype != "application/x-ndjson" {
		t.Errorf("content type = %q", ctype)
	}
	if string(body) != `{"a":1}`+"\n" {
		t.Errorf("body = %q", body)
	}
}

func TestS3Sink_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
	}))
	defer srv.Close()

	s, err := NewS3Sink(context.Background(), S3Config{Endpoint: srv.URL, Bucket: "b", AccessKey: "k", SecretKey: "s"})
	if err != nil {
		t.Fatalf("NewS3Sink: %v", err)
	}
	if _, err := s.Put(context.Background(), "x.md", []byte("x")); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	if _, err := NewS3Sink(context.Background(), S3Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.jsonl": "application/x-ndjson",
		"a.JSON":  "application/json",
		"a.md":    "text/markdown; charset=utf-8",
		"a.bin":   "application/octet-stream",
	}
	for name, want := range tests {
		if got := contentType(name); got != want {
			t.Errorf("contentType(%q) = %q, want %q", name, got, want)
		}
	}
}
