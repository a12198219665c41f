package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/yangwenmai/vidlens/internal/model"
)

// ---------------------------------------------------------------------------
// GET /healthz
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// POST /api/ingest
// ---------------------------------------------------------------------------

type ingestRequest struct {
	Path           string  `json:"path" validate:"required"`
	Captions       *bool   `json:"captions"`
	FrameCaptions  bool    `json:"frame_captions"`
	NoEmbed        bool    `json:"no_embed"`
	Force          bool    `json:"force"`
	DenseVision    bool    `json:"dense_vision"`
	DryRun         bool    `json:"dry_run"`
	Topic          string  `json:"topic"`
	FPSSample      float64 `json:"fps_sample" validate:"omitempty,gt=0,lte=30"`
	MaxFrames      int     `json:"max_frames" validate:"omitempty,min=1,max=10000"`
	PrinciplesPath string  `json:"principles_path"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Path = strings.TrimSpace(req.Path)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	opts := s.opts.IngestDefaults
	if req.Captions != nil {
		opts.Captions = *req.Captions
	}
	opts.FrameCaptions = req.FrameCaptions
	opts.NoEmbed = req.NoEmbed
	opts.Force = req.Force
	opts.DenseVision = req.DenseVision
	opts.DryRun = req.DryRun
	if req.Topic != "" {
		opts.Topic = req.Topic
	}
	if req.FPSSample > 0 {
		opts.FPSSample = req.FPSSample
	}
	if req.MaxFrames > 0 {
		opts.MaxFrames = req.MaxFrames
	}
	if req.PrinciplesPath != "" {
		opts.PrinciplesPath = req.PrinciplesPath
	}
	if err := opts.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.ingester.IngestPath(r.Context(), req.Path, opts)
	if err != nil {
		s.log.Warn("ingest request rejected", "path", req.Path, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// ---------------------------------------------------------------------------
// GET /api/search
// ---------------------------------------------------------------------------

type searchQuery struct {
	Q       string `json:"q" validate:"required"`
	Limit   int    `json:"limit" validate:"omitempty,min=1,max=100"`
	VideoID string `json:"video_id"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := searchQuery{Q: strings.TrimSpace(q.Get("q")), VideoID: q.Get("video_id")}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	resp, err := s.searcher.Search(r.Context(), req.Q, req.Limit, req.VideoID)
	if err != nil {
		s.log.Error("search failed", "query", req.Q, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// POST /api/ask
// ---------------------------------------------------------------------------

type askRequest struct {
	Question string `json:"question" validate:"required"`
	TopK     int    `json:"top_k" validate:"omitempty,min=1,max=50"`
	VideoID  string `json:"video_id"`
}

const defaultTopK = 5

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.TopK == 0 {
		req.TopK = defaultTopK
	}

	resp, err := s.asker.Ask(r.Context(), req.Question, req.TopK, req.VideoID)
	if err != nil {
		s.log.Error("ask failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to answer question")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// /api/videos
// ---------------------------------------------------------------------------

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.store.ListVideos(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	if videos == nil {
		videos = []model.VideoSummary{}
	}
	writeJSON(w, http.StatusOK, videos)
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.GetVideoInfo(r.Context(), r.PathValue("id"))
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get video")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type artifactsQuery struct {
	Type string `json:"type" validate:"omitempty,oneof=transcript caption summary report dense_caption scene"`
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req := artifactsQuery{Type: r.URL.Query().Get("type")}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if _, err := s.store.GetVideoInfo(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "video not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get video")
		return
	}

	arts, err := s.store.GetArtifacts(r.Context(), id, req.Type)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list artifacts")
		return
	}
	if arts == nil {
		arts = []model.Artifact{}
	}
	writeJSON(w, http.StatusOK, arts)
}

func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.DeleteVideo(r.Context(), id)
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "video_id": id})
}
