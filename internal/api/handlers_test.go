package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yangwenmai/vidlens/internal/ingest"
	"github.com/yangwenmai/vidlens/internal/model"
	"github.com/yangwenmai/vidlens/internal/provider"
	"github.com/yangwenmai/vidlens/internal/search"
	"github.com/yangwenmai/vidlens/internal/store"
)

type fakeIngester struct {
	path string
	opts ingest.Options
	err  error
}

func (f *fakeIngester) IngestPath(_ context.Context, path string, opts ingest.Options) ([]*ingest.Result, error) {
	f.path, f.opts = path, opts
	if f.err != nil {
		return nil, f.err
	}
	return []*ingest.Result{{Status: model.StatusComplete, VideoID: "v1", Filename: "a.mp4", ArtifactsCount: 3}}, nil
}

type failingAsker struct{}

func (failingAsker) Ask(context.Context, string, int, string) (*model.AskResponse, error) {
	return nil, errors.New("model down")
}

func newTestServer(t *testing.T, opts Options) (*Server, *store.Store, *fakeIngester) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := store.New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	stub := &provider.StubProvider{}
	retriever := search.NewRetriever(s, stub, nil)
	composer := search.NewComposer(retriever, stub, nil)
	ing := &fakeIngester{}
	opts.IngestDefaults = ingest.DefaultOptions()
	return New(s, ing, retriever, composer, opts, nil), s, ing
}

func seedVideo(t *testing.T, s *store.Store, id, hash string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	v := model.NewVideo(id, "/videos/"+id+".mp4", id+".mp4", hash, model.MediaInfo{DurationSec: 120}, "{}")
	if err := s.InsertVideo(ctx, v); err != nil {
		t.Fatalf("insert video: %v", err)
	}
	arts := make([]model.Artifact, len(texts))
	for i, text := range texts {
		start := float64(i * 10)
		arts[i] = model.NewArtifact(id+"-a"+string(rune('0'+i)), id, model.ArtifactTranscript,
			start, model.Sec(start+5), text, model.ArtifactMeta{})
	}
	if err := s.InsertArtifacts(ctx, arts); err != nil {
		t.Fatalf("insert artifacts: %v", err)
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode JSON: %v\nbody: %s", err, rr.Body.String())
	}
	return result
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var result []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode JSON: %v\nbody: %s", err, rr.Body.String())
	}
	return result
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})
	rr := doRequest(t, srv.Handler(), "GET", "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("cors origin = %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{CORSOrigin: "http://localhost:3000"})
	rr := doRequest(t, srv.Handler(), "OPTIONS", "/api/ask", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("cors origin = %q", got)
	}
}

func TestIngest(t *testing.T) {
	srv, _, ing := newTestServer(t, Options{})
	rr := doRequest(t, srv.Handler(), "POST", "/api/ingest",
		`{"path":" /videos ","captions":false,"dense_vision":true,"topic":"sports","max_frames":20}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	if ing.path != "/videos" {
		t.Errorf("path = %q", ing.path)
	}
	if ing.opts.Captions || !ing.opts.DenseVision || ing.opts.Topic != "sports" || ing.opts.MaxFrames != 20 {
		t.Errorf("opts = %+v", ing.opts)
	}
	if ing.opts.FPSSample != ingest.DefaultFPSSample {
		t.Errorf("fps = %v, want default", ing.opts.FPSSample)
	}

	results := decodeJSON(t, rr)["results"].([]any)
	first := results[0].(map[string]any)
	if first["status"] != model.StatusComplete || first["artifacts_count"].(float64) != 3 {
		t.Errorf("result = %v", first)
	}
}

func TestIngest_CaptionsOptIn(t *testing.T) {
	srv, _, ing := newTestServer(t, Options{})
	doRequest(t, srv.Handler(), "POST", "/api/ingest", `{"path":"/v.mp4"}`)
	if ing.opts.Captions {
		t.Error("captions should default to false")
	}
	doRequest(t, srv.Handler(), "POST", "/api/ingest", `{"path":"/v.mp4","captions":true}`)
	if !ing.opts.Captions {
		t.Error("captions:true was not honoured")
	}
}

func TestIngest_CaptionModesExclusive(t *testing.T) {
	srv, _, ing := newTestServer(t, Options{})
	rr := doRequest(t, srv.Handler(), "POST", "/api/ingest", `{"path":"/v.mp4","captions":true,"frame_captions":true}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if msg, _ := decodeJSON(t, rr)["error"].(string); !strings.Contains(msg, "mutually exclusive") {
		t.Errorf("error = %q", msg)
	}
	if ing.path != "" {
		t.Errorf("ingester called with %q", ing.path)
	}
}

func TestIngest_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "invalid JSON body"},
		{"missing path", `{}`, "path is required"},
		{"blank path", `{"path":"  "}`, "path is required"},
		{"fps too high", `{"path":"/v","fps_sample":60}`, "fps_sample must be at most 30"},
		{"max frames too high", `{"path":"/v","max_frames":20000}`, "max_frames must be at most 10000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, srv.Handler(), "POST", "/api/ingest", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if got := decodeJSON(t, rr)["error"]; got != tt.want {
				t.Errorf("error = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestIngest_NoVideos(t *testing.T) {
	srv, _, ing := newTestServer(t, Options{})
	ing.err = errors.New("no video files found at: /empty")
	rr := doRequest(t, srv.Handler(), "POST", "/api/ingest", `{"path":"/empty"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSearch(t *testing.T) {
	srv, s, _ := newTestServer(t, Options{})
	seedVideo(t, s, "vid1", "h1", "the cat sat on the mat", "a dog barked loudly")
	seedVideo(t, s, "vid2", "h2", "another cat appears")

	rr := doRequest(t, srv.Handler(), "GET", "/api/search?q=cat&limit=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	if body["query"] != "cat" || body["total_results"].(float64) != 2 {
		t.Errorf("body = %v", body)
	}

	rr = doRequest(t, srv.Handler(), "GET", "/api/search?q=cat&video_id=vid2", "")
	body = decodeJSON(t, rr)
	results := body["results"].([]any)
	if len(results) != 1 || results[0].(map[string]any)["video_id"] != "vid2" {
		t.Errorf("filtered results = %v", results)
	}
}

func TestSearch_EmptyResultsIsArray(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})
	rr := doRequest(t, srv.Handler(), "GET", "/api/search?q=nothing", "")
	if !strings.Contains(rr.Body.String(), `"results":[]`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestSearch_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})
	tests := []struct {
		query string
		want  string
	}{
		{"/api/search", "q is required"},
		{"/api/search?q=x&limit=abc", "limit must be an integer"},
		{"/api/search?q=x&limit=-1", "limit must be at least 1"},
		{"/api/search?q=x&limit=500", "limit must be at most 100"},
	}
	for _, tt := range tests {
		rr := doRequest(t, srv.Handler(), "GET", tt.query, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.query, rr.Code)
			continue
		}
		if got := decodeJSON(t, rr)["error"]; got != tt.want {
			t.Errorf("%s: error = %v, want %q", tt.query, got, tt.want)
		}
	}
}

func TestAsk(t *testing.T) {
	srv, s, _ := newTestServer(t, Options{})
	seedVideo(t, s, "vid1", "h1", "the cat sat on the mat")

	rr := doRequest(t, srv.Handler(), "POST", "/api/ask", `{"question":"where did the cat sit?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	if !strings.HasPrefix(body["answer"].(string), "Stub answer") {
		t.Errorf("answer = %v", body["answer"])
	}
	if cits := body["citations"].([]any); len(cits) != 1 {
		t.Errorf("citations = %v", cits)
	}
}

func TestAsk_NoHits(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})
	rr := doRequest(t, srv.Handler(), "POST", "/api/ask", `{"question":"anything?"}`)
	body := decodeJSON(t, rr)
	if body["answer"] != search.NoContentAnswer || body["confidence"].(float64) != 0 {
		t.Errorf("body = %v", body)
	}
}

func TestAsk_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})
	tests := []struct{ body, want string }{
		{`{}`, "question is required"},
		{`{"question":"   "}`, "question is required"},
		{`{"question":"q","top_k":99}`, "top_k must be at most 50"},
	}
	for _, tt := range tests {
		rr := doRequest(t, srv.Handler(), "POST", "/api/ask", tt.body)
		if got := decodeJSON(t, rr)["error"]; rr.Code != http.StatusBadRequest || got != tt.want {
			t.Errorf("%s: status %d error %v, want 400 %q", tt.body, rr.Code, got, tt.want)
		}
	}
}

func TestAsk_ModelFailure(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})
	srv.asker = failingAsker{}
	rr := doRequest(t, srv.Handler(), "POST", "/api/ask", `{"question":"q"}`)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestListVideos(t *testing.T) {
	srv, s, _ := newTestServer(t, Options{})
	rr := doRequest(t, srv.Handler(), "GET", "/api/videos", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("empty list body = %s", rr.Body.String())
	}

	seedVideo(t, s, "vid1", "h1", "one", "two")
	rr = doRequest(t, srv.Handler(), "GET", "/api/videos", "")
	list := decodeList(t, rr)
	if len(list) != 1 || list[0]["artifacts_count"].(float64) != 2 || list[0]["duration_formatted"] != "00:02:00" {
		t.Errorf("list = %v", list)
	}
}

func TestGetVideo(t *testing.T) {
	srv, s, _ := newTestServer(t, Options{})
	seedVideo(t, s, "vid1", "h1", "one")

	rr := doRequest(t, srv.Handler(), "GET", "/api/videos/vid1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	arts := decodeJSON(t, rr)["artifacts"].(map[string]any)
	if arts["transcript"].(float64) != 1 {
		t.Errorf("artifacts = %v", arts)
	}

	rr = doRequest(t, srv.Handler(), "GET", "/api/videos/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rr.Code)
	}
}

func TestListArtifacts(t *testing.T) {
	srv, s, _ := newTestServer(t, Options{})
	seedVideo(t, s, "vid1", "h1", "first", "second")

	rr := doRequest(t, srv.Handler(), "GET", "/api/videos/vid1/artifacts?type=transcript", "")
	list := decodeList(t, rr)
	if len(list) != 2 || list[0]["text"] != "first" {
		t.Errorf("artifacts = %v", list)
	}

	rr = doRequest(t, srv.Handler(), "GET", "/api/videos/vid1/artifacts?type=caption", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("caption body = %s", rr.Body.String())
	}

	rr = doRequest(t, srv.Handler(), "GET", "/api/videos/vid1/artifacts?type=bogus", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bogus type status = %d", rr.Code)
	}

	rr = doRequest(t, srv.Handler(), "GET", "/api/videos/missing/artifacts", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing status = %d", rr.Code)
	}
}

func TestDeleteVideo(t *testing.T) {
	srv, s, _ := newTestServer(t, Options{})
	seedVideo(t, s, "vid1", "h1", "the cat sat")

	rr := doRequest(t, srv.Handler(), "DELETE", "/api/videos/vid1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	rr = doRequest(t, srv.Handler(), "GET", "/api/search?q=cat", "")
	if decodeJSON(t, rr)["total_results"].(float64) != 0 {
		t.Error("deleted video still searchable")
	}

	rr = doRequest(t, srv.Handler(), "DELETE", "/api/videos/vid1", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{RateLimit: 1})
	h := srv.Handler()
	var limited bool
	for i := 0; i < 5; i++ {
		if rr := doRequest(t, h, "GET", "/healthz", ""); rr.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("expected a 429 after exhausting the burst")
	}
}
