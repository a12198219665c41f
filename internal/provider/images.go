package provider

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type encodedImage struct {
	mediaType string
	data      string
}

func (img encodedImage) dataURL() string {
	return "data:" + img.mediaType + ";base64," + img.data
}

// loadImage reads a frame from disk as base64.
func loadImage(path string) (encodedImage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return encodedImage{}, fmt.Errorf("read frame: %w", err)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "jpg" || ext == "" {
		ext = "jpeg"
	}
	return encodedImage{
		mediaType: "image/" + ext,
		data:      base64.StdEncoding.EncodeToString(raw),
	}, nil
}

func loadImages(paths []string) ([]encodedImage, error) {
	out := make([]encodedImage, 0, len(paths))
	for _, p := range paths {
		img, err := loadImage(p)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

// captionEach calls one per frame, skipping frames that fail. It only
// returns an error when every frame failed.
func captionEach(framePaths []string, timestamps []float64, one func(path string) (string, error)) ([]Caption, error) {
	if len(framePaths) != len(timestamps) {
		return nil, fmt.Errorf("%d frames but %d timestamps", len(framePaths), len(timestamps))
	}
	var captions []Caption
	var lastErr error
	for i, fp := range framePaths {
		text, err := one(fp)
		if err != nil {
			lastErr = err
			continue
		}
		captions = append(captions, Caption{TimestampSec: timestamps[i], Text: strings.TrimSpace(text), FramePath: fp})
	}
	if len(captions) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all %d frames failed: %w", len(framePaths), lastErr)
	}
	return captions, nil
}
