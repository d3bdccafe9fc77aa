package result

import (
	"encoding/json"
	"fmt"

	"github.com/localrivet/mcpcontent/content"
	"github.com/localrivet/mcpcontent/logx"
	"github.com/localrivet/mcpcontent/protocol"
)

// Option configures Parse.
type Option func(*parseOptions)

type parseOptions struct {
	logger logx.Logger
}

// WithLogger sets the logger used to report degraded blocks.
func WithLogger(logger logx.Logger) Option {
	return func(o *parseOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Parse builds a ToolResult from a raw CallTool result. It never fails:
// every element of the content array yields exactly one block, with
// fragments that cannot be parsed replaced by parse-error text blocks.
func Parse(raw map[string]interface{}, opts ...Option) *ToolResult {
	o := parseOptions{logger: logx.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	r := &ToolResult{}
	if raw == nil {
		return r
	}

	switch items := raw[protocol.KeyContent].(type) {
	case nil:
	case []interface{}:
		r.blocks = make([]content.Block, 0, len(items))
		for i, item := range items {
			r.blocks = append(r.blocks, parseElement(i, item, o.logger))
		}
	case []map[string]interface{}:
		r.blocks = make([]content.Block, 0, len(items))
		for i, item := range items {
			r.blocks = append(r.blocks, parseElement(i, item, o.logger))
		}
	default:
		o.logger.Warn("Tool result content is %T, not an array; ignoring it", items)
	}

	switch structured := raw[protocol.KeyStructuredContent].(type) {
	case nil:
	case map[string]interface{}:
		r.structured = cloneMap(structured)
	default:
		o.logger.Warn("Tool result structuredContent is %T, not an object; ignoring it", structured)
	}

	r.isError, _ = raw[protocol.KeyIsError].(bool)
	if meta, ok := raw[protocol.KeyMeta].(map[string]interface{}); ok {
		r.meta = cloneMap(meta)
	}
	return r
}

// parseElement parses one content element, degrading any failure or panic
// into a parse-error block.
func parseElement(index int, item interface{}, logger logx.Logger) (b content.Block) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Panic while parsing content block %d: %v", index, rec)
			b = content.ParseErrorBlock(item)
		}
	}()

	fragment, ok := item.(map[string]interface{})
	if !ok {
		logger.Error("Content block %d is %T, not an object", index, item)
		return content.ParseErrorBlock(item)
	}
	parsed, err := content.ParseStrict(fragment)
	if err != nil {
		logger.Error("Failed to parse content block %d: %v", index, err)
		return content.ParseErrorBlock(item)
	}
	if tb, isText := parsed.(content.TextBlock); isText && tb.Fallback == content.FallbackUnknownType {
		logger.Warn("Unknown content block type %v at index %d", fragment["type"], index)
	}
	return parsed
}

// ParseJSON decodes a CallTool result from JSON and parses it. It returns an
// error only when data is not a JSON object.
func ParseJSON(data []byte, opts ...Option) (*ToolResult, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("tool result is not a JSON object: %w", err)
	}
	return Parse(raw, opts...), nil
}
