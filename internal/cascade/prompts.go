package cascade

import (
	"sort"
	"strconv"
	"strings"
)

// Sentinels the models are told to reply with when there is nothing to report.
const (
	StaticSentinel   = "STATIC"
	NoEventsSentinel = "NO_EVENTS"
)

const baseTemplate = `You are analyzing a {chunk_duration}-second segment of a video, from {start_sec}s to {end_sec}s.
You are given {frames_per_chunk} frames sampled evenly across this segment, in chronological order.

{custom_focus}Describe what CHANGES across the frames: actions, movements, arrivals, departures and interactions.
Do not describe the static scene or background unless it changes.
Be concrete and concise (1-3 sentences), naming who or what did what.

If nothing meaningful happens in this segment, respond with exactly: STATIC`

// topicFocus holds the focus clause appended to the base template per preset.
var topicFocus = map[string]string{
	"general":  "",
	"security": "Focus on: people entering or leaving, suspicious behavior, unattended objects and access to restricted areas. ",
	"traffic":  "Focus on: vehicle movements, pedestrian crossings, signal changes and any traffic violation or near miss. ",
	"wildlife": "Focus on: animal arrivals and departures, feeding, movement between areas and interactions between animals. ",
	"sports":   "Focus on: plays, scoring attempts, fouls, substitutions and shifts in possession. ",
	"retail":   "Focus on: customers picking up or returning items, queue changes, staff interactions and restocking. ",
}

// Topics returns the preset topic names, sorted.
func Topics() []string {
	out := make([]string, 0, len(topicFocus))
	for k := range topicFocus {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ChunkPrompt renders the layer-0 prompt for one chunk. A topic that is not
// a preset is used verbatim as the focus clause.
func ChunkPrompt(topic string, startSec, endSec float64, chunkDurationSec, framesPerChunk int) string {
	focus, ok := topicFocus[topic]
	if !ok && strings.TrimSpace(topic) != "" {
		focus = "Focus on: " + strings.TrimSpace(topic) + ". "
	}
	r := strings.NewReplacer(
		"{custom_focus}", focus,
		"{start_sec}", strconv.FormatFloat(startSec, 'f', 1, 64),
		"{end_sec}", strconv.FormatFloat(endSec, 'f', 1, 64),
		"{chunk_duration}", strconv.Itoa(chunkDurationSec),
		"{frames_per_chunk}", strconv.Itoa(framesPerChunk),
	)
	return r.Replace(baseTemplate)
}

// Layer1SystemPrompt turns chunk captions into a structured event log.
const Layer1SystemPrompt = `You are a video analysis system producing a structured event log from chunk-level observations.

Format each event as:
START_SEC:END_SEC:EVENT

Rules:
- Merge consecutive chunks describing the same ongoing event into one entry.
- Drop trivial or purely static observations (e.g., "nothing happens", "camera is still").
- Use concrete language: who/what did what, when.
- Preserve timestamps accurately.
- If the input is empty or all chunks were STATIC, respond with: NO_EVENTS`

// Layer2SystemPrompt turns the event log into the final report.
const Layer2SystemPrompt = `You are producing the final consolidated video analysis report from a structured event log.

Format:
## Events
List each event with MM:SS timestamps and a clear description.

## Summary
2-3 sentence overview of the video content.

## Categories
Tag each event with relevant categories (e.g., "person_entry", "vehicle_movement", "equipment_use").

If the input indicates NO_EVENTS, produce a report stating no significant events were detected.`
