// Package pipeline turns a parsed tool result into the text, files and
// embeds handed back to the conversation.
//
// Media blocks are decoded and uploaded through a MediaSink, the uploaded
// files are announced with a single "files" event, and everything else is
// rendered to text. Failures of the sinks never fail the call: they are
// logged and replaced by a marker in the text.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/localrivet/mcpcontent/auth"
	"github.com/localrivet/mcpcontent/content"
	"github.com/localrivet/mcpcontent/logx"
	"github.com/localrivet/mcpcontent/result"
)

// DefaultFilePrefix starts every generated file name.
const DefaultFilePrefix = "mcp"

// FileRef describes an uploaded media file.
type FileRef struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	URL         string                 `json:"url"`
	MimeType    string                 `json:"mimeType"`
	Annotations map[string]interface{} `json:"annotations,omitempty"`
}

// Output is what Process returns for one tool result.
type Output struct {
	Text  string    `json:"text"`
	Files []FileRef `json:"files"`
	// Embeds is reserved for block types rendered as embeds. It is always
	// empty and never nil.
	Embeds []string `json:"embeds"`
}

// Option configures a Processor.
type Option func(*Processor)

// WithMediaSink sets where decoded images and audio are stored. Without a
// sink media blocks are rendered as processing-error markers.
func WithMediaSink(sink MediaSink) Option {
	return func(p *Processor) { p.media = sink }
}

// WithEventSink sets where the files event is emitted.
func WithEventSink(sink EventSink) Option {
	return func(p *Processor) { p.events = sink }
}

// WithLogger sets the processor logger.
func WithLogger(logger logx.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFilePrefix overrides DefaultFilePrefix.
func WithFilePrefix(prefix string) Option {
	return func(p *Processor) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithMetadata sets request metadata passed to the media sink with every upload.
func WithMetadata(metadata map[string]interface{}) Option {
	return func(p *Processor) { p.metadata = metadata }
}

// Processor renders tool results. It holds no per-call state and may be
// shared between goroutines.
type Processor struct {
	media    MediaSink
	events   EventSink
	logger   logx.Logger
	prefix   string
	metadata map[string]interface{}
	suffix   func() string
}

// NewProcessor creates a Processor.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		logger: logx.NewNopLogger(),
		prefix: DefaultFilePrefix,
		suffix: randomSuffix,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process renders r for the tool named toolName. Once started it runs to
// completion: sink calls do not observe cancellation of ctx, though they
// still see its values (such as the principal).
func (p *Processor) Process(ctx context.Context, r *result.ToolResult, toolName string) *Output {
	ctx = context.WithoutCancel(ctx)
	principal, _ := auth.PrincipalFromContext(ctx)

	out := &Output{Files: []FileRef{}, Embeds: []string{}}
	if r == nil {
		return out
	}

	var parts []string
	for _, b := range r.Blocks() {
		switch v := b.(type) {
		case content.TextBlock:
			parts = append(parts, v.Text)
		case content.ImageBlock:
			parts = append(parts, p.processMedia(ctx, out, mediaBlock{
				kind: "image", label: "Image", data: v.Data, mime: v.MimeType, annotations: v.Annotations(),
			}, toolName, principal))
		case content.AudioBlock:
			parts = append(parts, p.processMedia(ctx, out, mediaBlock{
				kind: "audio", label: "Audio", data: v.Data, mime: v.MimeType, annotations: v.Annotations(),
			}, toolName, principal))
		case content.ResourceBlock:
			parts = append(parts, result.RenderResource(v))
		}
	}

	if len(out.Files) > 0 && p.events != nil {
		files := make([]FileRef, len(out.Files))
		copy(files, out.Files)
		event := Event{Type: EventFiles, Data: map[string]interface{}{"files": files, "tool": toolName}}
		if err := p.events.Emit(ctx, event); err != nil {
			p.logger.Error("Failed to emit files event for tool %s: %v", toolName, err)
		}
	}

	out.Text = strings.Join(parts, "\n")
	if structured := r.Structured(); len(structured) > 0 {
		data, err := result.StructuredJSON(structured)
		if err != nil {
			p.logger.Error("Failed to serialize structured content of tool %s: %v", toolName, err)
		} else {
			out.Text += "\n\n[Structured Data]\n" + data
		}
	}
	return out
}

type mediaBlock struct {
	kind        string
	label       string
	data        string
	mime        string
	annotations map[string]interface{}
}

// processMedia decodes and stores one media block and returns its text marker.
func (p *Processor) processMedia(ctx context.Context, out *Output, m mediaBlock, toolName string, principal auth.Principal) (marker string) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("Panic while processing %s from tool %s: %v", m.kind, toolName, rec)
			marker = fmt.Sprintf("[%s processing error: %v]", m.label, rec)
		}
	}()

	data, err := content.DecodeBase64(m.data)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("empty payload")
	}
	if err != nil {
		p.logger.Error("Failed to decode %s from tool %s: %v", m.kind, toolName, err)
		return fmt.Sprintf("[%s decode error: %v]", m.label, err)
	}

	name := p.FileName(toolName, m.mime)
	if p.media == nil {
		p.logger.Warn("No media sink configured; dropping %s %s", m.kind, name)
		return fmt.Sprintf("[%s processing error: no media sink configured]", m.label)
	}

	metadata := make(map[string]interface{}, len(p.metadata)+3)
	for k, v := range p.metadata {
		metadata[k] = v
	}
	metadata["tool"] = toolName
	metadata["name"] = name
	metadata["type"] = m.kind

	url, err := p.media.Store(ctx, data, m.mime, metadata, principal)
	if err == nil && url == "" {
		err = fmt.Errorf("media sink returned no URL")
	}
	if err != nil {
		p.logger.Error("Failed to store %s %s from tool %s: %v", m.kind, name, toolName, err)
		return fmt.Sprintf("[%s processing error: %v]", m.label, err)
	}

	out.Files = append(out.Files, FileRef{
		Type:        m.kind,
		Name:        name,
		URL:         url,
		MimeType:    m.mime,
		Annotations: m.annotations,
	})
	return fmt.Sprintf("[Generated %s: %s]", m.label, name)
}

// FileName builds {prefix}_{tool}_{8 hex}.{ext} for a file of the given mime type.
func (p *Processor) FileName(toolName, mimeType string) string {
	return fmt.Sprintf("%s_%s_%s.%s", p.prefix, toolName, p.suffix(), content.ExtensionFor(mimeType))
}

func randomSuffix() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}
