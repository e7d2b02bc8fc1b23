package generation

import (
	"fmt"
	"strings"

	"github.com/sharo-jef/webllm-svg/pkg/inference"
)

// Messages builds the chat sent to the model for req.
func Messages(req Request) []inference.Message {
	return []inference.Message{
		{Role: inference.RoleSystem, Content: SystemPrompt(req)},
		{Role: inference.RoleUser, Content: req.Prompt},
	}
}

// SystemPrompt instructs the model to answer with inline SVG sized for req.
func SystemPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("You are an icon designer that answers only with SVG code.\n")
	fmt.Fprintf(&sb, "Draw the requested subject as a single <svg> element with viewBox=\"0 0 %d %d\".\n", req.Size, req.Size)
	sb.WriteString("Use simple shapes and paths, keep everything inside the viewBox, and do not use external resources, scripts or raster images.\n")
	if req.CurrentColor {
		sb.WriteString("Use the keyword currentColor for every fill and stroke instead of literal colors.\n")
	} else {
		sb.WriteString("Use literal hex colors for fills and strokes.\n")
	}
	sb.WriteString("Reply with the SVG code only. If you produce several variants, put each in its own <svg> element and make the last one your best.")
	return sb.String()
}
