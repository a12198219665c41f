package export

import (
	"testing"

	"github.com/yangwenmai/vidlens/internal/model"
)

func testArtifacts() []model.Artifact {
	return []model.Artifact{
		{StartSec: 0, EndSec: model.Sec(2.5), Text: " Hello there "},
		{StartSec: 3661.2, Text: "No end"},
	}
}

func TestSRT(t *testing.T) {
	want := "1\n00:00:00,000 --> 00:00:02,500\nHello there\n\n" +
		"2\n01:01:01,200 --> 01:01:04,200\nNo end\n\n"
	if got := SRT(testArtifacts()); got != want {
		t.Errorf("SRT =\n%q\nwant\n%q", got, want)
	}
}

func TestVTT(t *testing.T) {
	want := "WEBVTT\n\n" +
		"00:00:00.000 --> 00:00:02.500\nHello there\n\n" +
		"01:01:01.200 --> 01:01:04.200\nNo end\n\n"
	if got := VTT(testArtifacts()); got != want {
		t.Errorf("VTT =\n%q\nwant\n%q", got, want)
	}
}

func TestPlainText(t *testing.T) {
	want := "[00:00:00] Hello there\n[01:01:01] No end\n"
	if got := PlainText(testArtifacts()); got != want {
		t.Errorf("PlainText = %q, want %q", got, want)
	}
}

func TestCueTime(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "00:00:00,000"},
		{-4, "00:00:00,000"},
		{59.9996, "00:01:00,000"},
		{90.125, "00:01:30,125"},
	}
	for _, tt := range tests {
		if got := cueTime(tt.sec, ","); got != tt.want {
			t.Errorf("cueTime(%v) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}
