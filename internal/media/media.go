// Package media wraps ffprobe and ffmpeg for probing and extracting
// audio and frames from video files.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/model"
)

// Frame is one extracted still image.
type Frame struct {
	Path         string
	TimestampSec float64
}

// FrameSet is a batch of frames extracted into Dir. Callers remove Dir.
type FrameSet struct {
	Dir    string
	Frames []Frame
}

// Paths returns the frame file paths in order.
func (fs FrameSet) Paths() []string {
	out := make([]string, len(fs.Frames))
	for i, f := range fs.Frames {
		out[i] = f.Path
	}
	return out
}

// Timestamps returns the frame timestamps in order.
func (fs FrameSet) Timestamps() []float64 {
	out := make([]float64, len(fs.Frames))
	for i, f := range fs.Frames {
		out[i] = f.TimestampSec
	}
	return out
}

// Tools runs ffprobe/ffmpeg through a Runner.
type Tools struct {
	runner  Runner
	ffmpeg  string
	ffprobe string
	tempDir string
	log     *logger.Logger
}

// Option configures Tools.
type Option func(*Tools)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(t *Tools) { t.runner = r }
}

// WithBinaries overrides the ffmpeg and ffprobe executables.
func WithBinaries(ffmpeg, ffprobe string) Option {
	return func(t *Tools) {
		if ffmpeg != "" {
			t.ffmpeg = ffmpeg
		}
		if ffprobe != "" {
			t.ffprobe = ffprobe
		}
	}
}

// WithTempDir sets the parent directory for temporary audio and frames.
func WithTempDir(dir string) Option {
	return func(t *Tools) { t.tempDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(t *Tools) { t.log = l }
}

func New(opts ...Option) *Tools {
	t := &Tools{
		runner:  NewCommandRunner(),
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		log:     logger.Nop(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// AssertReady checks that ffmpeg and ffprobe are on PATH.
func (t *Tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{t.ffmpeg, t.ffprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	return nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width,omitempty"`
		Height     int    `json:"height,omitempty"`
		RFrameRate string `json:"r_frame_rate,omitempty"`
		Duration   string `json:"duration,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe reads technical metadata with ffprobe.
func (t *Tools) Probe(ctx context.Context, path string) (model.MediaInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return model.MediaInfo{}, err
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	out, err := t.run(ctx, "ffprobe", t.ffprobe, args...)
	if err != nil {
		return model.MediaInfo{}, err
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return model.MediaInfo{}, &model.MediaError{Op: "ffprobe", Cmd: t.ffprobe, Err: fmt.Errorf("parse output: %w", err)}
	}

	info := model.MediaInfo{SizeBytes: st.Size()}
	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.DurationSec = d
	}
	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil && br > 0 {
		info.Bitrate = &br
	}

	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width > 0 && s.Height > 0 {
			w, h := s.Width, s.Height
			info.Width, info.Height = &w, &h
		}
		if s.CodecName != "" {
			codec := s.CodecName
			info.Codec = &codec
		}
		info.FPS = parseFrameRate(s.RFrameRate)
		if info.DurationSec == 0 {
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				info.DurationSec = d
			}
		}
		break
	}
	return info, nil
}

// parseFrameRate parses ffprobe's "num/den" rate. A zero denominator is unknown.
func parseFrameRate(rate string) *float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		return nil
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return nil
	}
	fps := n / d
	return &fps
}

// ExtractAudio writes a 16 kHz mono WAV next to a fresh temp name and
// returns its path. The caller removes the file.
func (t *Tools) ExtractAudio(ctx context.Context, path string) (string, error) {
	f, err := os.CreateTemp(t.tempDir, "vidlens-audio-*.wav")
	if err != nil {
		return "", fmt.Errorf("create audio temp file: %w", err)
	}
	out := f.Name()
	f.Close()

	args := []string{"-i", path, "-ar", "16000", "-ac", "1", "-f", "wav", "-y", out}
	if _, err := t.run(ctx, "extract audio", t.ffmpeg, args...); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

// ExtractFrames samples frames at fps, capped at maxFrames, into a new temp
// directory. A video too short to yield a frame returns an empty set.
func (t *Tools) ExtractFrames(ctx context.Context, path string, fps float64, maxFrames int) (FrameSet, error) {
	if fps <= 0 {
		return FrameSet{}, fmt.Errorf("fps must be positive, got %v", fps)
	}
	info, err := t.Probe(ctx, path)
	if err != nil {
		return FrameSet{}, err
	}
	total := int(info.DurationSec * fps)
	if total > maxFrames {
		total = maxFrames
	}
	if total <= 0 {
		return FrameSet{}, nil
	}

	dir, err := os.MkdirTemp(t.tempDir, "vidlens-frames-")
	if err != nil {
		return FrameSet{}, fmt.Errorf("create frame dir: %w", err)
	}
	args := []string{
		"-i", path,
		"-vf", fmt.Sprintf("fps=%g", fps),
		"-frames:v", strconv.Itoa(total),
		"-q:v", "2",
		"-y", filepath.Join(dir, "frame_%06d.jpg"),
	}
	if _, err := t.run(ctx, "extract frames", t.ffmpeg, args...); err != nil {
		os.RemoveAll(dir)
		return FrameSet{}, err
	}

	paths, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		os.RemoveAll(dir)
		return FrameSet{}, err
	}
	sort.Strings(paths)

	set := FrameSet{Dir: dir, Frames: make([]Frame, 0, len(paths))}
	for i, p := range paths {
		set.Frames = append(set.Frames, Frame{Path: p, TimestampSec: float64(i) / fps})
	}
	t.log.Debug("frames extracted", "path", path, "count", len(set.Frames), "fps", fps)
	return set, nil
}

// ExtractFrameAt grabs the single frame at ts seconds into out.
func (t *Tools) ExtractFrameAt(ctx context.Context, path string, ts float64, out string) error {
	args := []string{
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", out,
	}
	_, err := t.run(ctx, "extract frame", t.ffmpeg, args...)
	return err
}

// SplitAudio cuts audio into segSec-second segments inside dir and returns
// the segment paths in playback order.
func (t *Tools) SplitAudio(ctx context.Context, path string, segSec int, dir string) ([]string, error) {
	args := []string{
		"-i", path,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segSec),
		"-c", "copy",
		"-y", filepath.Join(dir, "chunk_%03d.wav"),
	}
	if _, err := t.run(ctx, "split audio", t.ffmpeg, args...); err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(dir, "chunk_*.wav"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// TempDir creates a scratch directory under the configured temp root.
func (t *Tools) TempDir(pattern string) (string, error) {
	return os.MkdirTemp(t.tempDir, pattern)
}

func (t *Tools) run(ctx context.Context, op, bin string, args ...string) ([]byte, error) {
	out, err := t.runner.Run(ctx, bin, args...)
	if err != nil {
		return nil, &model.MediaError{
			Op:     op,
			Cmd:    bin + " " + strings.Join(args, " "),
			Output: tail(string(out), 2000),
			Err:    err,
		}
	}
	return out, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
