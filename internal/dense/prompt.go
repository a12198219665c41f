package dense

import (
	"fmt"
	"os"
	"strings"
)

// DefaultTemplate is the dense captioning prompt. {principles} is replaced
// by the rendered principle list.
const DefaultTemplate = `You are producing a dense visual caption for one frame of a video that an automated agent will act on.

Follow these principles:
{principles}

Describe, in one or two sentences:
- the primary action taking place
- the actors and objects involved
- anything that signals risk or requires attention

Report only what is visible in the frame.`

// RenderPrompt fills the {principles} placeholder with "- p" lines, or
// "- None" when there are no principles.
func RenderPrompt(template string, principles []string) string {
	block := "- None"
	if len(principles) > 0 {
		lines := make([]string, len(principles))
		for i, p := range principles {
			lines[i] = "- " + p
		}
		block = strings.Join(lines, "\n")
	}
	return strings.ReplaceAll(template, "{principles}", block)
}

// LoadTemplate reads a template file, or returns DefaultTemplate for an empty path.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return DefaultTemplate, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read dense template: %w", err)
	}
	return string(b), nil
}
