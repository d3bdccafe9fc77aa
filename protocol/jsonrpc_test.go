package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRPCRequestSerialization(t *testing.T) {
	req := NewRequest(int64(42), MethodCallTool, CallToolRequestParams{
		Name:      "echo",
		Arguments: map[string]interface{}{"msg": "hi"},
		Meta:      &RequestMeta{ProgressToken: "tok-1"},
	})

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, "2.0", parsed["jsonrpc"])
	assert.Equal(t, float64(42), parsed["id"])
	assert.Equal(t, "tools/call", parsed["method"])

	params := parsed["params"].(map[string]interface{})
	assert.Equal(t, "echo", params["name"])
	meta := params["_meta"].(map[string]interface{})
	assert.Equal(t, "tok-1", meta["progressToken"])
}

func TestCallToolParamsOmitMetaWithoutToken(t *testing.T) {
	data, err := json.Marshal(CallToolRequestParams{Name: "echo"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"echo"}`, string(data))
}

func TestEnvelopeClassification(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		response     bool
		notification bool
	}{
		{"response", `{"jsonrpc":"2.0","id":1,"result":{}}`, true, false},
		{"error response", `{"jsonrpc":"2.0","id":"a","error":{"code":-32601,"message":"nope"}}`, true, false},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/progress","params":{}}`, false, true},
		{"server request", `{"jsonrpc":"2.0","id":7,"method":"ping"}`, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var env Envelope
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &env))
			assert.Equal(t, tc.response, env.IsResponse())
			assert.Equal(t, tc.notification, env.IsNotification())
		})
	}
}

func TestIDKey(t *testing.T) {
	assert.Equal(t, "7", IDKey(int64(7)))
	assert.Equal(t, "7", IDKey(float64(7)))
	assert.Equal(t, "abc", IDKey("abc"))
	assert.Equal(t, "", IDKey(nil))
}

func TestUnmarshalPayload(t *testing.T) {
	var p ProgressNotificationParams
	err := UnmarshalPayload(json.RawMessage(`{"progressToken":"t","progress":2,"total":5,"message":"m"}`), &p)
	require.NoError(t, err)
	assert.Equal(t, "t", p.ProgressToken)
	assert.Equal(t, 2.0, p.Progress)
	require.NotNil(t, p.Total)
	assert.Equal(t, 5.0, *p.Total)

	assert.Error(t, UnmarshalPayload(nil, &p))
	assert.Error(t, UnmarshalPayload(json.RawMessage(`null`), &p))
}
