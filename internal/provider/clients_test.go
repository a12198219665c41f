package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClaudeComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ak" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic headers")
		}
		var req claudeRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.System != "sys" {
			t.Errorf("system = %q, want sys", req.System)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":" answer "}]}`))
	}))
	defer srv.Close()

	c := NewClaudeClient("ak", WithBaseURL(srv.URL))
	got, err := c.Complete(context.Background(), "sys", "question")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "answer" {
		t.Errorf("Complete = %q, want answer", got)
	}
}

func TestClaudeCaptionChunk_ImageBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req claudeRequest
		json.NewDecoder(r.Body).Decode(&req)
		blocks := req.Messages[0].Content
		if len(blocks) != 3 {
			t.Fatalf("blocks = %d, want 2 images + text", len(blocks))
		}
		if blocks[0].Type != "image" || blocks[0].Source.MediaType != "image/jpeg" || blocks[0].Source.Type != "base64" {
			t.Errorf("image block = %+v", blocks[0])
		}
		if blocks[2].Type != "text" {
			t.Errorf("last block = %+v, want text prompt", blocks[2])
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"STATIC"}]}`))
	}))
	defer srv.Close()

	got, err := NewClaudeClient("ak", WithBaseURL(srv.URL)).CaptionChunk(context.Background(), writeFrames(t, 2), []float64{0, 1}, "p")
	if err != nil {
		t.Fatalf("CaptionChunk: %v", err)
	}
	if got != "STATIC" {
		t.Errorf("CaptionChunk = %q", got)
	}
}

func TestGeminiComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "gk" {
			t.Errorf("missing api key header")
		}
		var req geminiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "sys" {
			t.Errorf("systemInstruction = %+v", req.SystemInstruction)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi there"}]}}]}`))
	}))
	defer srv.Close()

	got, err := NewGeminiClient("gk", WithBaseURL(srv.URL)).Complete(context.Background(), "sys", "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hi there" {
		t.Errorf("Complete = %q", got)
	}
}

func TestGeminiEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/text-embedding-004:batchEmbedContents" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req geminiEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Requests) != 2 || req.Requests[0].Model != "models/text-embedding-004" {
			t.Errorf("requests = %+v", req.Requests)
		}
		w.Write([]byte(`{"embeddings":[{"values":[1,2]},{"values":[3,4]}]}`))
	}))
	defer srv.Close()

	vecs, dim, err := NewGeminiClient("gk", WithBaseURL(srv.URL)).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if dim != 2 || vecs[1][0] != 3 {
		t.Errorf("Embed = %v dim %d", vecs, dim)
	}
}

func TestOllamaCaptionAndEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			var req ollamaRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Stream {
				t.Error("stream should be false")
			}
			if len(req.Images) != 2 {
				t.Errorf("images = %d, want 2", len(req.Images))
			}
			w.Write([]byte(`{"response":"two frames"}`))
		case "/api/embed":
			w.Write([]byte(`{"embeddings":[[0.5,0.5,0]]}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL + "/")
	got, err := c.CaptionChunk(context.Background(), writeFrames(t, 2), []float64{0, 1}, "p")
	if err != nil || got != "two frames" {
		t.Errorf("CaptionChunk = %q, %v", got, err)
	}
	vecs, dim, err := c.Embed(context.Background(), []string{"x"})
	if err != nil || dim != 3 || len(vecs) != 1 {
		t.Errorf("Embed = %v, %d, %v", vecs, dim, err)
	}
}

func TestOllamaEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"response":""}`))
	}))
	defer srv.Close()

	if _, err := NewOllamaClient(srv.URL).Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error for empty response")
	}
}
