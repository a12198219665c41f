package search

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/model"
	"github.com/yangwenmai/vidlens/internal/provider"
)

// NoContentAnswer is returned when retrieval finds nothing.
const NoContentAnswer = "No relevant content found in the indexed videos."

// neutralConfidence is reported when the top hit carries no score.
const neutralConfidence = 0.5

// VideoQASystemPrompt instructs the chat model how to answer from context.
const VideoQASystemPrompt = `You are a helpful assistant that helps users search, explore and understand video content. You are given transcripts, dense captions and scene descriptions extracted from indexed videos.

When answering:
- Base your answer on the provided context.
- Cite specific timestamps (e.g., "at 02:15") for the moments you refer to.
- Summarize clearly and concisely.
- Use dense captions for visual detail.
- Distinguish what was said (transcript) from what was seen (captions).
- If the context is not enough to answer, say so rather than speculating.
- If the question is ambiguous, ask a clarifying question.`

// Composer answers questions with citations from retrieved artifacts.
type Composer struct {
	retriever *Retriever
	completer provider.Completer
	log       *logger.Logger
}

// NewComposer creates a Composer.
func NewComposer(r *Retriever, c provider.Completer, log *logger.Logger) *Composer {
	if log == nil {
		log = logger.Nop()
	}
	return &Composer{retriever: r, completer: c, log: log}
}

// Ask retrieves topK hits for question and has the chat model answer from
// them. With no hits the model is not called.
func (c *Composer) Ask(ctx context.Context, question string, topK int, videoID string) (*model.AskResponse, error) {
	res, err := c.retriever.Search(ctx, question, topK, videoID)
	if err != nil {
		return nil, err
	}
	if len(res.Results) == 0 {
		return &model.AskResponse{Answer: NoContentAnswer, Citations: []model.Citation{}, Confidence: 0}, nil
	}
	if c.completer == nil {
		return nil, fmt.Errorf("no chat model configured")
	}

	answer, err := c.completer.Complete(ctx, VideoQASystemPrompt, UserPrompt(question, res.Results))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	citations := make([]model.Citation, len(res.Results))
	for i, r := range res.Results {
		citations[i] = model.Citation{
			VideoID:    r.VideoID,
			StartSec:   r.TimestampSec,
			SourceType: r.SourceType,
			Text:       r.Text,
			Score:      r.Score,
		}
	}
	c.log.Info("answered question", "hits", len(res.Results), "video_id", videoID)
	return &model.AskResponse{Answer: answer, Citations: citations, Confidence: confidence(res.Results[0].Score)}, nil
}

// ContextBlock renders hits as "[filename @ HH:MM:SS (type)] text" lines.
func ContextBlock(results []model.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[%s @ %s (%s)] %s", r.Filename, r.TimestampFormatted, r.SourceType, r.Text)
	}
	return strings.Join(parts, "\n\n")
}

// UserPrompt combines the retrieved context and the question.
func UserPrompt(question string, results []model.SearchResult) string {
	return "Context from video analysis:\n\n" + ContextBlock(results) + "\n\nQuestion: " + question
}

func confidence(top float64) float64 {
	if top == 0 {
		return neutralConfidence
	}
	return math.Min(math.Round(top*100)/100, 1.0)
}
