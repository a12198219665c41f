// Package dense produces principle-guided per-frame captions and exports
// them as a JSONL event stream plus a Markdown timeline.
package dense

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPrinciples apply when no principles file is configured.
var DefaultPrinciples = []string{
	"Prioritize observable actions over speculation.",
	"Highlight safety-relevant signals.",
	"Include objects/actors that matter for agent decisions.",
}

// LoadPrinciples reads a principles file. Accepted forms are a JSON array,
// a JSON object with a "principles" array, a YAML list or "principles:" block,
// or one principle per line. An empty path or a missing file yields the
// defaults; an empty file yields none.
func LoadPrinciples(path string) ([]string, error) {
	if path == "" {
		return clone(DefaultPrinciples), nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return clone(DefaultPrinciples), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read principles: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return []string{}, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl":
		var v interface{}
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("parse principles %s: %w", path, err)
		}
		return fromValue(v), nil
	case ".yaml", ".yml":
		var v interface{}
		if err := yaml.Unmarshal([]byte(text), &v); err == nil {
			if out, ok := fromStructured(v); ok {
				return out, nil
			}
		}
	}
	return parseLines(text), nil
}

func fromValue(v interface{}) []string {
	out, _ := fromStructured(v)
	if out == nil {
		return []string{}
	}
	return out
}

// fromStructured accepts a list or a map holding a "principles" list.
func fromStructured(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case []interface{}:
		return cleanItems(t), true
	case map[string]interface{}:
		items, _ := t["principles"].([]interface{})
		return cleanItems(items), true
	}
	return nil, false
}

func cleanItems(items []interface{}) []string {
	out := []string{}
	for _, it := range items {
		s := strings.TrimSpace(fmt.Sprint(it))
		if s != "" && it != nil {
			out = append(out, s)
		}
	}
	return out
}

// parseLines handles a "principles:" block of "- item" lines, or bare lines
// when no block header is present. Comments and blanks are ignored.
func parseLines(text string) []string {
	out := []string{}
	inBlock := false
	for _, ln := range strings.Split(text, "\n") {
		s := strings.TrimSpace(ln)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(s), "principles:") {
			inBlock = true
			continue
		}
		switch {
		case inBlock && strings.HasPrefix(s, "-"):
			if item := strings.TrimSpace(s[1:]); item != "" {
				out = append(out, item)
			}
		case !inBlock:
			out = append(out, s)
		}
	}
	return out
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
