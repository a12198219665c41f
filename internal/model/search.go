package model

// SearchResult is one ranked hit, denormalized from its artifact and video.
type SearchResult struct {
	Rank               int     `json:"rank"`
	Score              float64 `json:"score"`
	VideoID            string  `json:"video_id"`
	Filename           string  `json:"filename"`
	TimestampSec       float64 `json:"timestamp_sec"`
	TimestampFormatted string  `json:"timestamp_formatted"`
	SourceType         string  `json:"source_type"`
	Text               string  `json:"text"`
	ArtifactID         string  `json:"artifact_id"`
}

// SearchResponse is the payload returned by a search.
type SearchResponse struct {
	Query     string         `json:"query"`
	Results   []SearchResult `json:"results"`
	Total     int            `json:"total_results"`
	ElapsedMS int64          `json:"search_time_ms"`
}

// Citation points an answer back at the artifact it was drawn from.
type Citation struct {
	VideoID    string   `json:"video_id"`
	StartSec   float64  `json:"start_sec"`
	EndSec     *float64 `json:"end_sec"`
	SourceType string   `json:"source_type"`
	Text       string   `json:"text"`
	Score      float64  `json:"score"`
}

// AskResponse is the payload returned by a question.
type AskResponse struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
}
