package result

import (
	"fmt"
	"strings"

	"github.com/localrivet/mcpcontent/content"
)

const structuredHeader = "\n\n[Structured Data]\n"

// RenderOption adjusts how a result is rendered.
type RenderOption func(*renderOptions)

type renderOptions struct {
	structured bool
}

// WithoutStructured leaves the structured payload out of the assistant
// rendering, for callers that forward it on a separate channel.
func WithoutStructured() RenderOption {
	return func(o *renderOptions) { o.structured = false }
}

// RenderFor renders the blocks visible to audience, newline separated and in
// arrival order. Media are replaced by placeholders. The assistant rendering
// ends with the structured payload when there is one, unless
// WithoutStructured is given; the user rendering never includes it.
func (r *ToolResult) RenderFor(audience content.Audience, opts ...RenderOption) string {
	o := renderOptions{structured: true}
	for _, opt := range opts {
		opt(&o)
	}

	parts := make([]string, 0, len(r.blocks))
	for _, b := range r.blocks {
		if !content.VisibleTo(b, audience) {
			continue
		}
		parts = append(parts, RenderBlock(b))
	}
	text := strings.Join(parts, "\n")

	if o.structured && audience == content.AudienceAssistant && len(r.structured) > 0 {
		if data, err := StructuredJSON(r.structured); err == nil {
			text += structuredHeader + data
		}
	}
	return text
}

// ForAssistant is RenderFor(content.AudienceAssistant, opts...).
func (r *ToolResult) ForAssistant(opts ...RenderOption) string {
	return r.RenderFor(content.AudienceAssistant, opts...)
}

// ForUser is RenderFor(content.AudienceUser, opts...).
func (r *ToolResult) ForUser(opts ...RenderOption) string {
	return r.RenderFor(content.AudienceUser, opts...)
}

// RenderBlock renders a single block as text.
func RenderBlock(b content.Block) string {
	switch v := b.(type) {
	case content.TextBlock:
		return v.Text
	case content.ImageBlock:
		return fmt.Sprintf("[Image: %s]", v.MimeType)
	case content.AudioBlock:
		return fmt.Sprintf("[Audio: %s]", v.MimeType)
	case content.ResourceBlock:
		return RenderResource(v)
	default:
		return content.Render(b)
	}
}

// RenderResource renders an embedded resource: text resources are shown in
// full under a header, blob resources by uri and mime type only.
func RenderResource(b content.ResourceBlock) string {
	if text, ok := b.Text(); ok {
		return fmt.Sprintf("[Resource: %s]\n%s", b.URI, text)
	}
	return fmt.Sprintf("[Resource: %s (%s)]", b.URI, b.MimeType())
}
