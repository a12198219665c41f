package dense

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yangwenmai/vidlens/internal/export"
)

// Row is one captioned frame.
type Row struct {
	TimestampSec float64
	Text         string
	FramePath    string
}

// Event is one line of the JSONL export.
type Event struct {
	VideoID             string   `json:"video_id"`
	TimestampSec        float64  `json:"timestamp_sec"`
	Text                string   `json:"text"`
	FramePath           *string  `json:"frame_path"`
	PrimaryAction       string   `json:"primary_action"`
	Actors              []string `json:"actors"`
	Objects             []string `json:"objects"`
	SceneContext        string   `json:"scene_context"`
	RiskSignal          string   `json:"risk_signal"`
	SuggestedNextAction string   `json:"suggested_next_action"`
}

var riskKeywords = []string{"slip", "fall", "crash", "knock", "trip", "hazard", "wet"}

// NewEvent derives the structured fields of an event from the caption text.
func NewEvent(videoID string, r Row) Event {
	text := strings.TrimSpace(r.Text)
	risk := "none"
	low := strings.ToLower(text)
	for _, k := range riskKeywords {
		if strings.Contains(low, k) {
			risk = "safety_incident"
			break
		}
	}
	next := "observe"
	if risk != "none" {
		next = "flag_for_review"
	}
	var frame *string
	if r.FramePath != "" {
		fp := r.FramePath
		frame = &fp
	}
	return Event{
		VideoID:             videoID,
		TimestampSec:        r.TimestampSec,
		Text:                text,
		FramePath:           frame,
		PrimaryAction:       text,
		Actors:              []string{},
		Objects:             []string{},
		SceneContext:        "security_camera",
		RiskSignal:          risk,
		SuggestedNextAction: next,
	}
}

// JSONL renders rows as one event per line.
func JSONL(videoID string, rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range rows {
		if err := enc.Encode(NewEvent(videoID, r)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Markdown renders rows as a "- [MM:SS] text" timeline.
func Markdown(rows []Row) []byte {
	var b strings.Builder
	b.WriteString("# Dense visual caption timeline\n\n")
	for _, r := range rows {
		ts := int(r.TimestampSec)
		fmt.Fprintf(&b, "- [%02d:%02d] %s\n", ts/60, ts%60, strings.TrimSpace(r.Text))
	}
	return []byte(b.String())
}

// Export writes <videoID>.dense.jsonl and <videoID>.dense.md to sink and
// returns their locations.
func Export(ctx context.Context, sink export.Sink, videoID string, rows []Row) (string, string, error) {
	data, err := JSONL(videoID, rows)
	if err != nil {
		return "", "", fmt.Errorf("encode dense events: %w", err)
	}
	jsonlLoc, err := sink.Put(ctx, videoID+".dense.jsonl", data)
	if err != nil {
		return "", "", err
	}
	mdLoc, err := sink.Put(ctx, videoID+".dense.md", Markdown(rows))
	if err != nil {
		return jsonlLoc, "", err
	}
	return jsonlLoc, mdLoc, nil
}
