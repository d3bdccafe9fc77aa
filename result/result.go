// Package result reconstructs a tool result from a loosely-typed CallTool
// response and renders it for the assistant or the user.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/localrivet/mcpcontent/content"
	"github.com/localrivet/mcpcontent/protocol"
)

// ToolResult is the parsed form of a CallTool result. It is built once by
// Parse and never modified afterwards.
type ToolResult struct {
	blocks     []content.Block
	structured map[string]interface{}
	isError    bool
	meta       map[string]interface{}
}

// New assembles a ToolResult from already-parsed parts.
func New(blocks []content.Block, structured map[string]interface{}, isError bool, meta map[string]interface{}) *ToolResult {
	return &ToolResult{
		blocks:     append([]content.Block(nil), blocks...),
		structured: cloneMap(structured),
		isError:    isError,
		meta:       cloneMap(meta),
	}
}

// Blocks returns the content blocks in arrival order.
func (r *ToolResult) Blocks() []content.Block {
	return append([]content.Block(nil), r.blocks...)
}

// Len returns the number of content blocks.
func (r *ToolResult) Len() int { return len(r.blocks) }

// Structured returns a copy of the structuredContent payload, or nil.
func (r *ToolResult) Structured() map[string]interface{} { return cloneMap(r.structured) }

// IsError reports whether the tool flagged the result as an error.
func (r *ToolResult) IsError() bool { return r.isError }

// Meta returns a copy of the result's _meta map, or nil.
func (r *ToolResult) Meta() map[string]interface{} { return cloneMap(r.meta) }

// TextContent joins the text of all text blocks and text resources with newlines.
func (r *ToolResult) TextContent() string {
	var texts []string
	for _, b := range r.blocks {
		switch v := b.(type) {
		case content.TextBlock:
			texts = append(texts, v.Text)
		case content.ResourceBlock:
			if text, ok := v.Text(); ok {
				texts = append(texts, text)
			}
		}
	}
	return strings.Join(texts, "\n")
}

// ImageBlocks returns the image blocks in arrival order.
func (r *ToolResult) ImageBlocks() []content.ImageBlock {
	var out []content.ImageBlock
	for _, b := range r.blocks {
		if v, ok := b.(content.ImageBlock); ok {
			out = append(out, v)
		}
	}
	return out
}

// AudioBlocks returns the audio blocks in arrival order.
func (r *ToolResult) AudioBlocks() []content.AudioBlock {
	var out []content.AudioBlock
	for _, b := range r.blocks {
		if v, ok := b.(content.AudioBlock); ok {
			out = append(out, v)
		}
	}
	return out
}

// ResourceBlocks returns the embedded resource blocks in arrival order.
func (r *ToolResult) ResourceBlocks() []content.ResourceBlock {
	var out []content.ResourceBlock
	for _, b := range r.blocks {
		if v, ok := b.(content.ResourceBlock); ok {
			out = append(out, v)
		}
	}
	return out
}

// HasMedia reports whether the result contains at least one image or audio block.
func (r *ToolResult) HasMedia() bool {
	for _, b := range r.blocks {
		switch b.(type) {
		case content.ImageBlock, content.AudioBlock:
			return true
		}
	}
	return false
}

// Degraded returns the blocks produced by fallback parsing.
func (r *ToolResult) Degraded() []content.TextBlock {
	var out []content.TextBlock
	for _, b := range r.blocks {
		if v, ok := b.(content.TextBlock); ok && v.Degraded() {
			out = append(out, v)
		}
	}
	return out
}

// Summary returns a JSON-serialisable view of the result.
func (r *ToolResult) Summary() map[string]interface{} {
	blocks := make([]map[string]interface{}, 0, len(r.blocks))
	for _, b := range r.blocks {
		blocks = append(blocks, content.ToWire(b))
	}
	return map[string]interface{}{
		"blocks":     blocks,
		"structured": r.Structured(),
		"isError":    r.isError,
		"meta":       r.Meta(),
		"text":       r.TextContent(),
		"hasMedia":   r.HasMedia(),
	}
}

// ToWire converts the result back into a CallTool result map.
func (r *ToolResult) ToWire() map[string]interface{} {
	blocks := make([]interface{}, 0, len(r.blocks))
	for _, b := range r.blocks {
		blocks = append(blocks, content.ToWire(b))
	}
	out := map[string]interface{}{
		protocol.KeyContent: blocks,
		protocol.KeyIsError: r.isError,
	}
	if r.structured != nil {
		out[protocol.KeyStructuredContent] = r.Structured()
	}
	if r.meta != nil {
		out[protocol.KeyMeta] = r.Meta()
	}
	return out
}

// StructuredJSON renders the structured payload as two-space indented JSON.
// HTML characters are not escaped.
func StructuredJSON(structured map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(structured); err != nil {
		return "", fmt.Errorf("failed to encode structured content: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
