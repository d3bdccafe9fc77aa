// Package content models the content blocks carried by MCP tool results
// and parses them from loosely-typed wire fragments.
//
// Blocks are immutable values. Annotation and metadata maps are copied on
// construction and on every read, so a Block can be shared freely between
// goroutines and renderers.
package content

import "github.com/localrivet/mcpcontent/protocol"

// Kind identifies the variant of a Block.
type Kind string

const (
	KindText     Kind = protocol.ContentTypeText
	KindImage    Kind = protocol.ContentTypeImage
	KindAudio    Kind = protocol.ContentTypeAudio
	KindResource Kind = protocol.ContentTypeResource
)

// Block is one content block of a tool result. The set of implementations is
// closed: TextBlock, ImageBlock, AudioBlock and ResourceBlock. Consumers
// switch on the concrete type; unrecognised wire types are represented as a
// degraded TextBlock rather than a fifth variant.
type Block interface {
	Kind() Kind
	// Annotations returns a copy of the block's annotations, or nil.
	Annotations() map[string]interface{}
	// Meta returns a copy of the block's _meta map, or nil.
	Meta() map[string]interface{}

	sealed()
}

// Option configures the shared fields of a block at construction time.
type Option func(*common)

// WithAnnotations attaches annotations (audience, priority, ...) to a block.
func WithAnnotations(annotations map[string]interface{}) Option {
	return func(c *common) { c.annotations = cloneMap(annotations) }
}

// WithMeta attaches a _meta map to a block.
func WithMeta(meta map[string]interface{}) Option {
	return func(c *common) { c.meta = cloneMap(meta) }
}

// common holds the fields every block variant shares.
type common struct {
	annotations map[string]interface{}
	meta        map[string]interface{}
}

func newCommon(opts []Option) common {
	var c common
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c common) Annotations() map[string]interface{} { return cloneMap(c.annotations) }
func (c common) Meta() map[string]interface{}        { return cloneMap(c.meta) }
func (common) sealed()                               {}

// Fallback records why a TextBlock was synthesised instead of parsed.
type Fallback string

const (
	// FallbackNone marks a genuine text block.
	FallbackNone Fallback = ""
	// FallbackUnknownType marks a fragment whose type is absent or not recognised.
	FallbackUnknownType Fallback = "unknown_type"
	// FallbackParseError marks a fragment of a known type that could not be decoded.
	FallbackParseError Fallback = "parse_error"
)

// TextBlock is plain text content.
type TextBlock struct {
	common
	Text string
	// Fallback is set when the block stands in for a fragment that could not
	// be parsed as its declared type.
	Fallback Fallback
}

// NewText creates a text block.
func NewText(text string, opts ...Option) TextBlock {
	return TextBlock{common: newCommon(opts), Text: text}
}

func (TextBlock) Kind() Kind { return KindText }

// Degraded reports whether the block was produced by fallback parsing.
func (b TextBlock) Degraded() bool { return b.Fallback != FallbackNone }

// ImageBlock is base64 encoded image data.
type ImageBlock struct {
	common
	Data     string
	MimeType string
}

// NewImage creates an image block. An empty mime type defaults to image/png.
func NewImage(data, mimeType string, opts ...Option) ImageBlock {
	if mimeType == "" {
		mimeType = DefaultImageMimeType
	}
	return ImageBlock{common: newCommon(opts), Data: data, MimeType: mimeType}
}

func (ImageBlock) Kind() Kind { return KindImage }

// Decode returns the decoded image bytes.
func (b ImageBlock) Decode() ([]byte, error) { return DecodeBase64(b.Data) }

// Bytes returns the decoded image bytes, or an empty slice if Data is not valid base64.
func (b ImageBlock) Bytes() []byte { return bytesOrEmpty(b.Data) }

// Extension returns the file extension matching the block's mime type.
func (b ImageBlock) Extension() string { return ExtensionFor(b.MimeType) }

// AudioBlock is base64 encoded audio data.
type AudioBlock struct {
	common
	Data     string
	MimeType string
}

// NewAudio creates an audio block. An empty mime type defaults to audio/wav.
func NewAudio(data, mimeType string, opts ...Option) AudioBlock {
	if mimeType == "" {
		mimeType = DefaultAudioMimeType
	}
	return AudioBlock{common: newCommon(opts), Data: data, MimeType: mimeType}
}

func (AudioBlock) Kind() Kind { return KindAudio }

// Decode returns the decoded audio bytes.
func (b AudioBlock) Decode() ([]byte, error) { return DecodeBase64(b.Data) }

// Bytes returns the decoded audio bytes, or an empty slice if Data is not valid base64.
func (b AudioBlock) Bytes() []byte { return bytesOrEmpty(b.Data) }

// Extension returns the file extension matching the block's mime type.
func (b AudioBlock) Extension() string { return ExtensionFor(b.MimeType) }

// ResourceBlock is a resource embedded in a tool result.
type ResourceBlock struct {
	common
	URI      string
	Resource ResourceContents
}

// NewTextResource creates an embedded text resource. The mime type is optional.
func NewTextResource(uri, text, mimeType string, opts ...Option) ResourceBlock {
	return ResourceBlock{
		common:   newCommon(opts),
		URI:      uri,
		Resource: TextResource{Text: text, Mime: mimeType},
	}
}

// NewBlobResource creates an embedded binary resource. An empty mime type
// defaults to application/octet-stream.
func NewBlobResource(uri, data, mimeType string, opts ...Option) ResourceBlock {
	if mimeType == "" {
		mimeType = DefaultBlobMimeType
	}
	return ResourceBlock{
		common:   newCommon(opts),
		URI:      uri,
		Resource: BlobResource{Data: data, Mime: mimeType},
	}
}

func (ResourceBlock) Kind() Kind { return KindResource }

// MimeType returns the mime type of the embedded resource, possibly empty for text.
func (b ResourceBlock) MimeType() string {
	if b.Resource == nil {
		return ""
	}
	return b.Resource.MimeType()
}

// Text returns the resource text and true when the resource is a text resource.
func (b ResourceBlock) Text() (string, bool) {
	tr, ok := b.Resource.(TextResource)
	return tr.Text, ok
}

// IsBlob reports whether the embedded resource carries binary data.
func (b ResourceBlock) IsBlob() bool {
	_, ok := b.Resource.(BlobResource)
	return ok
}

// ResourceContents is the payload of a ResourceBlock: TextResource or BlobResource.
type ResourceContents interface {
	MimeType() string
	resourceContents()
}

// TextResource is textual resource content.
type TextResource struct {
	Text string
	Mime string
}

func (r TextResource) MimeType() string { return r.Mime }
func (TextResource) resourceContents()  {}

// BlobResource is base64 encoded binary resource content.
type BlobResource struct {
	Data string
	Mime string
}

func (r BlobResource) MimeType() string { return r.Mime }
func (BlobResource) resourceContents()  {}

// Decode returns the decoded blob bytes.
func (r BlobResource) Decode() ([]byte, error) { return DecodeBase64(r.Data) }

// cloneMap makes a shallow copy; nested values are shared but never written by this package.
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

var (
	_ Block = TextBlock{}
	_ Block = ImageBlock{}
	_ Block = AudioBlock{}
	_ Block = ResourceBlock{}
)
