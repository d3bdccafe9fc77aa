package content

import (
	"encoding/json"
	"fmt"

	"github.com/localrivet/mcpcontent/protocol"
	"github.com/mitchellh/mapstructure"
)

// Wire fragments decoded from the loosely-typed payload. Missing fields are
// left at their zero value and defaulted by the constructors.
type textFragment struct {
	Text        string                 `json:"text"`
	Annotations map[string]interface{} `json:"annotations"`
	Meta        map[string]interface{} `json:"_meta"`
}

type mediaFragment struct {
	Data        string                 `json:"data"`
	MimeType    string                 `json:"mimeType"`
	Annotations map[string]interface{} `json:"annotations"`
	Meta        map[string]interface{} `json:"_meta"`
}

type resourceFragment struct {
	Resource    map[string]interface{} `json:"resource"`
	Annotations map[string]interface{} `json:"annotations"`
	Meta        map[string]interface{} `json:"_meta"`
}

type resourceContentsFragment struct {
	Type     string  `json:"type"`
	URI      string  `json:"uri"`
	MimeType string  `json:"mimeType"`
	Text     *string `json:"text"`
	Blob     *string `json:"blob"`
}

// decodeFragment decodes raw into target using the json tags of target.
func decodeFragment(raw map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "json",
	})
	if err != nil {
		return fmt.Errorf("failed to create fragment decoder: %w", err)
	}
	return decoder.Decode(raw)
}

// ParseStrict converts one raw content fragment into a Block. Fragments with
// an absent or unrecognised type become a degraded TextBlock; fragments of a
// known type whose fields have the wrong shape return an error.
func ParseStrict(raw map[string]interface{}) (Block, error) {
	blockType, _ := raw["type"].(string)

	switch Kind(blockType) {
	case KindText:
		var f textFragment
		if err := decodeFragment(raw, &f); err != nil {
			return nil, fmt.Errorf("malformed text block: %w", err)
		}
		return NewText(f.Text, WithAnnotations(f.Annotations), WithMeta(f.Meta)), nil

	case KindImage:
		var f mediaFragment
		if err := decodeFragment(raw, &f); err != nil {
			return nil, fmt.Errorf("malformed image block: %w", err)
		}
		return NewImage(f.Data, f.MimeType, WithAnnotations(f.Annotations), WithMeta(f.Meta)), nil

	case KindAudio:
		var f mediaFragment
		if err := decodeFragment(raw, &f); err != nil {
			return nil, fmt.Errorf("malformed audio block: %w", err)
		}
		return NewAudio(f.Data, f.MimeType, WithAnnotations(f.Annotations), WithMeta(f.Meta)), nil

	case KindResource:
		return parseResource(raw)

	default:
		return TextBlock{Text: Render(raw), Fallback: FallbackUnknownType}, nil
	}
}

func parseResource(raw map[string]interface{}) (Block, error) {
	var f resourceFragment
	if err := decodeFragment(raw, &f); err != nil {
		return nil, fmt.Errorf("malformed resource block: %w", err)
	}
	var rc resourceContentsFragment
	if f.Resource != nil {
		if err := decodeFragment(f.Resource, &rc); err != nil {
			return nil, fmt.Errorf("malformed embedded resource: %w", err)
		}
	}
	opts := []Option{WithAnnotations(f.Annotations), WithMeta(f.Meta)}

	// An explicit resource type wins; otherwise the presence of blob decides.
	isBlob := rc.Blob != nil
	switch rc.Type {
	case "blob":
		isBlob = true
	case "text":
		isBlob = false
	}

	if isBlob {
		var data string
		if rc.Blob != nil {
			data = *rc.Blob
		}
		return NewBlobResource(rc.URI, data, rc.MimeType, opts...), nil
	}
	var text string
	if rc.Text != nil {
		text = *rc.Text
	}
	return NewTextResource(rc.URI, text, rc.MimeType, opts...), nil
}

// Parse converts one raw content fragment into a Block. It never fails: a
// fragment that cannot be decoded becomes a TextBlock carrying a parse-error
// marker and the fragment's rendering.
func Parse(raw map[string]interface{}) Block {
	b, err := ParseStrict(raw)
	if err != nil {
		return ParseErrorBlock(raw)
	}
	return b
}

// ParseErrorBlock builds the stand-in block for a fragment that failed to parse.
func ParseErrorBlock(raw interface{}) TextBlock {
	return TextBlock{
		Text:     fmt.Sprintf("[Parse Error: %s]", Render(raw)),
		Fallback: FallbackParseError,
	}
}

// Render produces a deterministic string form of a raw fragment. Map keys are
// sorted by encoding/json; values JSON cannot encode fall back to fmt.
func Render(raw interface{}) string {
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprintf("%v", raw)
	}
	return string(b)
}

// ToWire converts a block back into its wire fragment form.
func ToWire(b Block) map[string]interface{} {
	out := map[string]interface{}{"type": string(b.Kind())}
	switch v := b.(type) {
	case TextBlock:
		out["text"] = v.Text
	case ImageBlock:
		out["data"] = v.Data
		out["mimeType"] = v.MimeType
	case AudioBlock:
		out["data"] = v.Data
		out["mimeType"] = v.MimeType
	case ResourceBlock:
		res := map[string]interface{}{"uri": v.URI}
		switch rc := v.Resource.(type) {
		case TextResource:
			res["text"] = rc.Text
			if rc.Mime != "" {
				res["mimeType"] = rc.Mime
			}
		case BlobResource:
			res["blob"] = rc.Data
			res["mimeType"] = rc.Mime
		}
		out["resource"] = res
	}
	if a := b.Annotations(); a != nil {
		out["annotations"] = a
	}
	if m := b.Meta(); m != nil {
		out[protocol.KeyMeta] = m
	}
	return out
}
