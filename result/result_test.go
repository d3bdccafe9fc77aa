package result

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/mcpcontent/content"
	"github.com/localrivet/mcpcontent/logx"
)

func TestParseMixedContent(t *testing.T) {
	raw := map[string]interface{}{
		"content": []interface{}{
			map[string]interface{}{"type": "text", "text": "a"},
			map[string]interface{}{"type": "image", "data": "aGk=", "mimeType": "image/jpeg"},
			map[string]interface{}{"type": "text", "text": "b"},
			map[string]interface{}{"type": "audio", "data": "aGk="},
			map[string]interface{}{"type": "resource", "resource": map[string]interface{}{"uri": "file:///r.txt", "text": "c"}},
		},
		"isError": false,
		"_meta":   map[string]interface{}{"requestId": "r1"},
	}

	r := Parse(raw)
	require.Equal(t, 5, r.Len())
	assert.Equal(t, "a\nb\nc", r.TextContent())
	assert.Len(t, r.ImageBlocks(), 1)
	assert.Equal(t, "image/jpeg", r.ImageBlocks()[0].MimeType)
	assert.Len(t, r.AudioBlocks(), 1)
	assert.Len(t, r.ResourceBlocks(), 1)
	assert.True(t, r.HasMedia())
	assert.False(t, r.IsError())
	assert.Nil(t, r.Structured())
	assert.Equal(t, "r1", r.Meta()["requestId"])
}

func TestTextContentSkipsMedia(t *testing.T) {
	r := New([]content.Block{
		content.NewText("a"),
		content.NewImage("aGk=", ""),
		content.NewText("b"),
	}, nil, false, nil)
	assert.Equal(t, "a\nb", r.TextContent())
}

func TestParseMalformedBlocksKeepCount(t *testing.T) {
	var buf bytes.Buffer
	logger := logx.NewLogger(&buf, "")

	raw := map[string]interface{}{
		"content": []interface{}{
			map[string]interface{}{"type": "text", "text": "ok"},
			map[string]interface{}{"type": "text", "text": 42},
			"not an object",
			nil,
			map[string]interface{}{"type": "hologram"},
			map[string]interface{}{"type": "image", "data": []interface{}{1, 2}},
		},
	}

	r := Parse(raw, WithLogger(logger))
	require.Equal(t, 6, r.Len())

	blocks := r.Blocks()
	assert.Equal(t, "ok", blocks[0].(content.TextBlock).Text)
	for _, i := range []int{1, 2, 3, 5} {
		tb, ok := blocks[i].(content.TextBlock)
		require.True(t, ok, "block %d", i)
		assert.Equal(t, content.FallbackParseError, tb.Fallback, "block %d", i)
		assert.Contains(t, tb.Text, "[Parse Error: ")
	}
	assert.Equal(t, `[Parse Error: "not an object"]`, blocks[2].(content.TextBlock).Text)
	assert.Equal(t, content.FallbackUnknownType, blocks[4].(content.TextBlock).Fallback)
	assert.Len(t, r.Degraded(), 5)
	assert.Contains(t, buf.String(), "Failed to parse content block 1")
	assert.Contains(t, buf.String(), "Unknown content block type hologram")
}

func TestParseDefaults(t *testing.T) {
	var buf bytes.Buffer
	r := Parse(map[string]interface{}{"content": "oops"}, WithLogger(logx.NewLogger(&buf, "")))
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.IsError())
	assert.Nil(t, r.Meta())
	assert.Contains(t, buf.String(), "not an array")

	empty := Parse(nil)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, "", empty.TextContent())
	assert.False(t, empty.HasMedia())
}

func TestParseIsErrorIsNotAFailure(t *testing.T) {
	r := Parse(map[string]interface{}{
		"content": []interface{}{map[string]interface{}{"type": "text", "text": "boom"}},
		"isError": true,
	})
	assert.True(t, r.IsError())
	assert.Equal(t, "boom", r.TextContent())
}

func TestParseJSON(t *testing.T) {
	r, err := ParseJSON([]byte(`{"content":[{"type":"text","text":"done"}],"structuredContent":{"n":42}}`))
	require.NoError(t, err)
	assert.Equal(t, "done", r.TextContent())
	assert.Equal(t, float64(42), r.Structured()["n"])

	_, err = ParseJSON([]byte(`[1,2,3]`))
	assert.Error(t, err)
	_, err = ParseJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestResultIsImmutable(t *testing.T) {
	structured := map[string]interface{}{"n": 1}
	r := Parse(map[string]interface{}{
		"content":           []interface{}{map[string]interface{}{"type": "text", "text": "x"}},
		"structuredContent": structured,
	})

	structured["n"] = 2
	r.Structured()["n"] = 3
	blocks := r.Blocks()
	blocks[0] = content.NewText("changed")

	assert.Equal(t, 1, r.Structured()["n"])
	assert.Equal(t, "x", r.TextContent())
}

func TestSummaryAndToWire(t *testing.T) {
	r := New([]content.Block{content.NewText("hi")}, map[string]interface{}{"k": "v"}, true, nil)

	s := r.Summary()
	assert.Equal(t, "hi", s["text"])
	assert.Equal(t, true, s["isError"])
	assert.Equal(t, false, s["hasMedia"])
	assert.Len(t, s["blocks"], 1)

	again := Parse(r.ToWire())
	assert.Equal(t, r, again)
}
