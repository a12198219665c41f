package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yangwenmai/vidlens/internal/model"
)

type call struct {
	name string
	args []string
}

// fakeRunner answers ffprobe with canned JSON and makes ffmpeg create the
// files its output pattern names.
type fakeRunner struct {
	probeJSON  string
	frameCount int
	chunkCount int
	fail       map[string]error
	calls      []call
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if err := f.fail[name]; err != nil {
		return []byte("boom output"), err
	}
	if name == "ffprobe" {
		return []byte(f.probeJSON), nil
	}
	out := args[len(args)-1]
	switch {
	case strings.Contains(out, "frame_%06d"):
		for i := 1; i <= f.frameCount; i++ {
			os.WriteFile(strings.Replace(out, "%06d", fmt.Sprintf("%06d", i), 1), []byte("jpg"), 0o644)
		}
	case strings.Contains(out, "chunk_%03d"):
		for i := f.chunkCount - 1; i >= 0; i-- {
			os.WriteFile(strings.Replace(out, "%03d", fmt.Sprintf("%03d", i), 1), []byte("wav"), 0o644)
		}
	default:
		os.WriteFile(out, []byte("data"), 0o644)
	}
	return nil, nil
}

func (f *fakeRunner) last() call { return f.calls[len(f.calls)-1] }

const sampleProbe = `{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"}
  ],
  "format": {"duration": "125.5", "bit_rate": "4000000"}
}`

func newVideoFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(p, make([]byte, 1234), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestProbe(t *testing.T) {
	r := &fakeRunner{probeJSON: sampleProbe}
	tools := New(WithRunner(r))
	info, err := tools.Probe(context.Background(), newVideoFile(t))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if info.DurationSec != 125.5 {
		t.Errorf("DurationSec = %v, want 125.5", info.DurationSec)
	}
	if info.SizeBytes != 1234 {
		t.Errorf("SizeBytes = %d, want 1234", info.SizeBytes)
	}
	if info.Width == nil || *info.Width != 1920 || *info.Height != 1080 {
		t.Errorf("dimensions = %v x %v, want 1920x1080", info.Width, info.Height)
	}
	if info.Codec == nil || *info.Codec != "h264" {
		t.Errorf("Codec = %v, want h264", info.Codec)
	}
	if info.Bitrate == nil || *info.Bitrate != 4000000 {
		t.Errorf("Bitrate = %v, want 4000000", info.Bitrate)
	}
	if info.FPS == nil || *info.FPS < 29.96 || *info.FPS > 29.98 {
		t.Errorf("FPS = %v, want ~29.97", info.FPS)
	}

	got := strings.Join(r.last().args[:6], " ")
	if got != "-v quiet -print_format json -show_format -show_streams" {
		t.Errorf("ffprobe args = %q", got)
	}
}

func TestProbe_StreamDurationFallback(t *testing.T) {
	r := &fakeRunner{probeJSON: `{"streams":[{"codec_type":"video","duration":"12.0","r_frame_rate":"0/0"}],"format":{}}`}
	info, err := New(WithRunner(r)).Probe(context.Background(), newVideoFile(t))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.DurationSec != 12 {
		t.Errorf("DurationSec = %v, want 12", info.DurationSec)
	}
	if info.FPS != nil {
		t.Errorf("FPS = %v, want nil for 0/0", *info.FPS)
	}
	if info.Width != nil || info.Bitrate != nil {
		t.Errorf("expected unknown width and bitrate, got %v %v", info.Width, info.Bitrate)
	}
}

func TestProbe_Failure(t *testing.T) {
	r := &fakeRunner{fail: map[string]error{"ffprobe": errors.New("exit status 1")}}
	_, err := New(WithRunner(r)).Probe(context.Background(), newVideoFile(t))
	var me *model.MediaError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *model.MediaError", err)
	}
	if me.Output != "boom output" {
		t.Errorf("Output = %q, want runner output", me.Output)
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"25/1", 25, true},
		{"30000/1001", 30000.0 / 1001.0, true},
		{"0/0", 0, false},
		{"", 0, false},
		{"abc/1", 0, false},
	}
	for _, tt := range tests {
		got := parseFrameRate(tt.in)
		if (got != nil) != tt.ok {
			t.Errorf("parseFrameRate(%q) = %v, want ok=%v", tt.in, got, tt.ok)
			continue
		}
		if got != nil && *got != tt.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.in, *got, tt.want)
		}
	}
}

func TestExtractFrames(t *testing.T) {
	// 125.5s at 0.5 fps = 62 frames, capped at 5.
	r := &fakeRunner{probeJSON: sampleProbe, frameCount: 5}
	tools := New(WithRunner(r), WithTempDir(t.TempDir()))

	set, err := tools.ExtractFrames(context.Background(), newVideoFile(t), 0.5, 5)
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	defer os.RemoveAll(set.Dir)

	if len(set.Frames) != 5 {
		t.Fatalf("frames = %d, want 5", len(set.Frames))
	}
	for i, f := range set.Frames {
		if want := float64(i) * 2; f.TimestampSec != want {
			t.Errorf("frame %d ts = %v, want %v", i, f.TimestampSec, want)
		}
	}
	if !strings.HasSuffix(set.Frames[0].Path, "frame_000001.jpg") {
		t.Errorf("first frame = %q", set.Frames[0].Path)
	}

	args := strings.Join(r.last().args, " ")
	if !strings.Contains(args, "-vf fps=0.5 -frames:v 5 -q:v 2") {
		t.Errorf("ffmpeg args = %q", args)
	}
}

func TestExtractFrames_TooShort(t *testing.T) {
	r := &fakeRunner{probeJSON: `{"streams":[],"format":{"duration":"1.0"}}`}
	set, err := New(WithRunner(r)).ExtractFrames(context.Background(), newVideoFile(t), 0.5, 10)
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	if set.Dir != "" || len(set.Frames) != 0 {
		t.Errorf("set = %+v, want empty", set)
	}
	if len(r.calls) != 1 {
		t.Errorf("calls = %d, want only the probe", len(r.calls))
	}
}

func TestExtractFrames_FailureRemovesDir(t *testing.T) {
	root := t.TempDir()
	r := &fakeRunner{probeJSON: sampleProbe, fail: map[string]error{"ffmpeg": errors.New("exit status 1")}}
	_, err := New(WithRunner(r), WithTempDir(root)).ExtractFrames(context.Background(), newVideoFile(t), 1, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("temp root not cleaned: %d entries", len(entries))
	}
}

func TestExtractAudio(t *testing.T) {
	r := &fakeRunner{}
	tools := New(WithRunner(r), WithTempDir(t.TempDir()))
	out, err := tools.ExtractAudio(context.Background(), "/v/clip.mp4")
	if err != nil {
		t.Fatalf("ExtractAudio: %v", err)
	}
	defer os.Remove(out)

	want := "-i /v/clip.mp4 -ar 16000 -ac 1 -f wav -y " + out
	if got := strings.Join(r.last().args, " "); got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestExtractAudio_FailureRemovesFile(t *testing.T) {
	root := t.TempDir()
	r := &fakeRunner{fail: map[string]error{"ffmpeg": errors.New("exit status 1")}}
	if _, err := New(WithRunner(r), WithTempDir(root)).ExtractAudio(context.Background(), "/v/clip.mp4"); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

func TestExtractFrameAt(t *testing.T) {
	r := &fakeRunner{}
	out := filepath.Join(t.TempDir(), "f.jpg")
	if err := New(WithRunner(r)).ExtractFrameAt(context.Background(), "/v/clip.mp4", 15, out); err != nil {
		t.Fatalf("ExtractFrameAt: %v", err)
	}
	want := "-ss 15.000 -i /v/clip.mp4 -frames:v 1 -q:v 2 -y " + out
	if got := strings.Join(r.last().args, " "); got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestSplitAudio_Sorted(t *testing.T) {
	r := &fakeRunner{chunkCount: 3}
	dir := t.TempDir()
	paths, err := New(WithRunner(r)).SplitAudio(context.Background(), "/a.wav", 600, dir)
	if err != nil {
		t.Fatalf("SplitAudio: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("paths = %d, want 3", len(paths))
	}
	for i, p := range paths {
		if want := fmt.Sprintf("chunk_%03d.wav", i); filepath.Base(p) != want {
			t.Errorf("paths[%d] = %q, want %q", i, filepath.Base(p), want)
		}
	}
	if !strings.Contains(strings.Join(r.last().args, " "), "-f segment -segment_time 600 -c copy") {
		t.Errorf("args = %v", r.last().args)
	}
}

func TestFrameSetAccessors(t *testing.T) {
	fs := FrameSet{Frames: []Frame{{Path: "a", TimestampSec: 1}, {Path: "b", TimestampSec: 2}}}
	if p := fs.Paths(); len(p) != 2 || p[1] != "b" {
		t.Errorf("Paths = %v", p)
	}
	if ts := fs.Timestamps(); len(ts) != 2 || ts[1] != 2 {
		t.Errorf("Timestamps = %v", ts)
	}
}
