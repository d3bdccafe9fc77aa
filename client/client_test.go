package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/mcpcontent/logx"
	"github.com/localrivet/mcpcontent/pipeline"
	"github.com/localrivet/mcpcontent/progress"
	"github.com/localrivet/mcpcontent/protocol"
	"github.com/localrivet/mcpcontent/transport/stdio"
)

type handlerFunc func(s *fakeServer, env protocol.Envelope) []interface{}

// fakeServer answers JSON-RPC over one end of a pipe. Messages a handler
// returns are written in order, so notifications precede the response.
type fakeServer struct {
	conn     *stdio.Conn
	version  string
	handlers map[string]handlerFunc

	mu   sync.Mutex
	seen []protocol.Envelope
}

const responseKey = "<response>"

func newFakeServer() *fakeServer {
	return &fakeServer{version: protocol.CurrentProtocolVersion, handlers: map[string]handlerFunc{}}
}

func (s *fakeServer) handle(method string, h handlerFunc) *fakeServer {
	s.handlers[method] = h
	return s
}

func (s *fakeServer) serve(conn *stdio.Conn) {
	s.conn = conn
	ctx := context.Background()
	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		s.mu.Lock()
		s.seen = append(s.seen, env)
		s.mu.Unlock()

		var out []interface{}
		switch {
		case env.Method == protocol.MethodInitialize:
			out = []interface{}{reply(env.ID, map[string]interface{}{
				"protocolVersion": s.version,
				"capabilities":    map[string]interface{}{},
				"serverInfo":      map[string]interface{}{"name": "fake", "version": "1.0"},
			})}
		case env.IsResponse():
			if h, ok := s.handlers[responseKey]; ok {
				out = h(s, env)
			}
		case env.ID != nil:
			if h, ok := s.handlers[env.Method]; ok {
				out = h(s, env)
			} else {
				out = []interface{}{map[string]interface{}{
					"jsonrpc": "2.0", "id": env.ID,
					"error": map[string]interface{}{"code": -32601, "message": "not found"},
				}}
			}
		}
		for _, msg := range out {
			b, _ := json.Marshal(msg)
			if err := conn.Send(ctx, b); err != nil {
				return
			}
		}
	}
}

func (s *fakeServer) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var methods []string
	for _, env := range s.seen {
		if env.Method != "" {
			methods = append(methods, env.Method)
		}
	}
	return methods
}

func (s *fakeServer) lastRequest(method string) protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.seen) - 1; i >= 0; i-- {
		if s.seen[i].Method == method {
			return s.seen[i]
		}
	}
	return protocol.Envelope{}
}

func reply(id, result interface{}) map[string]interface{} {
	return map[string]interface{}{"jsonrpc": "2.0", "id": id, "result": result}
}

func progressNote(token string, p, total float64, message string) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  protocol.MethodProgress,
		"params": map[string]interface{}{
			"progressToken": token, "progress": p, "total": total, "message": message,
		},
	}
}

func textResult(text string, isError bool) map[string]interface{} {
	return map[string]interface{}{
		"content": []interface{}{map[string]interface{}{"type": "text", "text": text}},
		"isError": isError,
	}
}

func callParams(t *testing.T, env protocol.Envelope) protocol.CallToolRequestParams {
	var params protocol.CallToolRequestParams
	require.NoError(t, json.Unmarshal(env.Params, &params))
	return params
}

// progressToken extracts the token from a tools/call request on the server
// goroutine, where failing the test is not allowed.
func progressToken(env protocol.Envelope) string {
	var params protocol.CallToolRequestParams
	if err := json.Unmarshal(env.Params, &params); err != nil || params.Meta == nil {
		return ""
	}
	return params.Meta.ProgressToken
}

func connect(t *testing.T, server *fakeServer, opts ...Option) *Client {
	t.Helper()
	clientConn, serverConn := stdio.Pipe()
	go server.serve(serverConn)
	t.Cleanup(func() { _ = serverConn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := ConnectConn(ctx, clientConn, "pipe", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConnectHandshake(t *testing.T) {
	server := newFakeServer()
	c := connect(t, server, WithClientInfo("tester", "9.9"))

	info := c.ServerInfo()
	require.NotNil(t, info)
	assert.Equal(t, "fake", info.ServerInfo.Name)

	initReq := server.lastRequest(protocol.MethodInitialize)
	var params protocol.InitializeRequestParams
	require.NoError(t, json.Unmarshal(initReq.Params, &params))
	assert.Equal(t, "tester", params.ClientInfo.Name)
	assert.Equal(t, protocol.CurrentProtocolVersion, params.ProtocolVersion)

	require.Eventually(t, func() bool {
		return len(server.methods()) >= 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{protocol.MethodInitialize, protocol.MethodInitialized}, server.methods()[:2])
}

func TestConnectRejectsUnsupportedVersion(t *testing.T) {
	server := newFakeServer()
	server.version = "1999-01-01"

	clientConn, serverConn := stdio.Pipe()
	go server.serve(serverConn)
	defer serverConn.Close()

	_, err := ConnectConn(testContext(t), clientConn, "pipe")
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.True(t, errors.Is(err, ErrVersionMismatch))
}

func TestCallToolDeliversProgressBeforeResult(t *testing.T) {
	server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		token := progressToken(env)
		return []interface{}{
			progressNote(token, 1, 2, "half"),
			progressNote(token, 2, 2, "done"),
			reply(env.ID, textResult("finished", false)),
		}
	})
	c := connect(t, server)

	var mu sync.Mutex
	var updates []progress.Update
	cb := func(_ context.Context, u progress.Update) error {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
		return nil
	}

	r, err := c.CallTool(testContext(t), "slow", map[string]interface{}{"n": 1}, cb)
	require.NoError(t, err)
	assert.Equal(t, "finished", r.TextContent())

	mu.Lock()
	require.Len(t, updates, 2)
	assert.Equal(t, 50.0, updates[0].Percentage)
	assert.Equal(t, "done", updates[1].Message)
	assert.Equal(t, 100.0, updates[1].Percentage)
	mu.Unlock()

	assert.Equal(t, 0, c.Registry().Len())

	// The token travels in params._meta, not inside the arguments.
	params := callParams(t, server.lastRequest(protocol.MethodCallTool))
	assert.Equal(t, map[string]interface{}{"n": float64(1)}, params.Arguments)
}

func TestCallToolKeepsOtherMeta(t *testing.T) {
	server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		return []interface{}{reply(env.ID, textResult("ok", false))}
	})
	c := connect(t, server)

	args := map[string]interface{}{"_meta": map[string]interface{}{"trace": "abc"}}
	_, err := c.CallTool(testContext(t), "echo", args, func(context.Context, progress.Update) error { return nil })
	require.NoError(t, err)

	params := callParams(t, server.lastRequest(protocol.MethodCallTool))
	assert.Equal(t, map[string]interface{}{"trace": "abc"}, params.Arguments["_meta"])
	assert.NotEmpty(t, params.Meta.ProgressToken)
	// The caller's map is left alone.
	assert.Equal(t, map[string]interface{}{"trace": "abc"}, args["_meta"])
}

func TestCallToolWithoutCallbackSendsNoToken(t *testing.T) {
	server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		return []interface{}{reply(env.ID, textResult("ok", false))}
	})
	c := connect(t, server)

	_, err := c.CallTool(testContext(t), "echo", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, callParams(t, server.lastRequest(protocol.MethodCallTool)).Meta)
}

func TestCallToolErrorResult(t *testing.T) {
	server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		return []interface{}{reply(env.ID, textResult("bad input", true))}
	})
	c := connect(t, server)

	r, err := c.CallTool(testContext(t), "validate", nil, func(context.Context, progress.Update) error { return nil })
	require.Error(t, err)
	assert.True(t, IsToolError(err))
	assert.Equal(t, "tool error: bad input", err.Error())
	require.NotNil(t, r)
	assert.True(t, r.IsError())
	assert.Equal(t, 0, c.Registry().Len())
}

func TestCallToolServerError(t *testing.T) {
	server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		return []interface{}{map[string]interface{}{
			"jsonrpc": "2.0", "id": env.ID,
			"error": map[string]interface{}{"code": -32602, "message": "unknown tool"},
		}}
	})
	c := connect(t, server)

	_, err := c.CallTool(testContext(t), "missing", nil, func(context.Context, progress.Update) error { return nil })
	require.Error(t, err)
	assert.True(t, IsServerError(err))

	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, -32602, serverErr.Code)
	assert.Equal(t, protocol.MethodCallTool, serverErr.Method)
	assert.Equal(t, 0, c.Registry().Len())
}

func TestCallToolConnectionLost(t *testing.T) {
	server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		_ = s.conn.Close()
		return nil
	})
	c := connect(t, server)

	_, err := c.CallTool(testContext(t), "crash", nil, func(context.Context, progress.Update) error { return nil })
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.Equal(t, 0, c.Registry().Len())

	_, err = c.CallTool(testContext(t), "again", nil, nil)
	assert.True(t, IsConnectionError(err))
}

func TestCallToolResultSurvivesImmediateClose(t *testing.T) {
	for i := 0; i < 200; i++ {
		server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
			b, _ := json.Marshal(reply(env.ID, textResult("done", false)))
			_ = s.conn.Send(context.Background(), b)
			_ = s.conn.Close()
			return nil
		})
		c := connect(t, server)

		r, err := c.CallTool(testContext(t), "last", nil, nil)
		require.NoError(t, err, "iteration %d", i)
		assert.Equal(t, "done", r.TextContent())
	}
}

func TestCallToolTimeoutSendsCancellation(t *testing.T) {
	server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		return nil
	})
	c := connect(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.CallTool(ctx, "hang", nil, func(context.Context, progress.Update) error { return nil })
	require.Error(t, err)
	assert.True(t, IsTimeoutError(err))
	assert.Equal(t, 0, c.Registry().Len())

	require.Eventually(t, func() bool {
		return server.lastRequest(protocol.MethodCancelled).Method != ""
	}, time.Second, 10*time.Millisecond)
}

func TestCallToolCancelled(t *testing.T) {
	started := make(chan struct{})
	server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		close(started)
		return nil
	})
	c := connect(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := c.CallTool(ctx, "hang", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.False(t, IsTimeoutError(err))
}

func TestServerPingIsAnswered(t *testing.T) {
	var callID interface{}
	server := newFakeServer()
	server.handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		callID = env.ID
		return []interface{}{map[string]interface{}{"jsonrpc": "2.0", "id": "srv-1", "method": protocol.MethodPing}}
	})
	server.handle(responseKey, func(s *fakeServer, env protocol.Envelope) []interface{} {
		if env.ID != "srv-1" || env.Error != nil {
			return nil
		}
		return []interface{}{reply(callID, textResult("pong received", false))}
	})
	c := connect(t, server)

	r, err := c.CallTool(testContext(t), "ping-me", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "pong received", r.TextContent())
}

func TestListToolsFollowsPages(t *testing.T) {
	server := newFakeServer().handle(protocol.MethodListTools, func(s *fakeServer, env protocol.Envelope) []interface{} {
		var params protocol.ListToolsRequestParams
		_ = json.Unmarshal(env.Params, &params)
		if params.Cursor == "" {
			return []interface{}{reply(env.ID, map[string]interface{}{
				"tools":      []interface{}{map[string]interface{}{"name": "a", "inputSchema": map[string]interface{}{"type": "object"}}},
				"nextCursor": "page-2",
			})}
		}
		return []interface{}{reply(env.ID, map[string]interface{}{
			"tools": []interface{}{map[string]interface{}{"name": "b", "inputSchema": map[string]interface{}{"type": "object"}}},
		})}
	})
	c := connect(t, server)

	tools, err := c.ListTools(testContext(t))
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "a", tools[0].Name)
	assert.Equal(t, "b", tools[1].Name)
}

func TestResources(t *testing.T) {
	server := newFakeServer()
	server.handle(protocol.MethodListResources, func(s *fakeServer, env protocol.Envelope) []interface{} {
		return []interface{}{reply(env.ID, map[string]interface{}{
			"resources":  []interface{}{map[string]interface{}{"uri": "file:///a.txt", "name": "a"}},
			"nextCursor": "next",
		})}
	})
	server.handle(protocol.MethodReadResource, func(s *fakeServer, env protocol.Envelope) []interface{} {
		return []interface{}{reply(env.ID, map[string]interface{}{
			"contents": []interface{}{
				map[string]interface{}{"uri": "file:///a.txt", "mimeType": "text/plain", "text": "hello"},
				map[string]interface{}{"uri": "file:///b.bin", "blob": "AAE="},
			},
		})}
	})
	c := connect(t, server)

	page, err := c.ListResources(testContext(t), "")
	require.NoError(t, err)
	assert.Equal(t, "next", page.NextCursor)
	require.Len(t, page.Resources, 1)

	blocks, err := c.ReadResource(testContext(t), "file:///a.txt")
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	text, ok := blocks[0].Text()
	assert.True(t, ok)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "text/plain", blocks[0].MimeType())
	assert.True(t, blocks[1].IsBlob())
}

func TestInvokeRunsPipeline(t *testing.T) {
	server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		token := progressToken(env)
		return []interface{}{
			progressNote(token, 1, 1, "working"),
			reply(env.ID, textResult("report ready", false)),
		}
	})
	c := connect(t, server)

	var mu sync.Mutex
	var events []pipeline.Event
	sink := pipeline.EventSinkFunc(func(_ context.Context, ev pipeline.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		return nil
	})

	out, err := c.Invoke(testContext(t), "report", nil, nil, sink)
	require.NoError(t, err)
	assert.Equal(t, "report ready", out.Text)
	assert.Empty(t, out.Files)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, pipeline.EventToolProgress, events[0].Type)
	assert.Equal(t, "report", events[0].Data["tool"])
}

func TestLogNotificationsDoNotDisturbCalls(t *testing.T) {
	server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		return []interface{}{
			map[string]interface{}{"jsonrpc": "2.0", "method": protocol.MethodNotificationMessage,
				"params": map[string]interface{}{"level": "warning", "data": "disk almost full"}},
			map[string]interface{}{"jsonrpc": "2.0", "method": "notifications/tools/list_changed"},
			reply(env.ID, textResult("ok", false)),
		}
	})
	c := connect(t, server)

	r, err := c.CallTool(testContext(t), "echo", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", r.TextContent())
}

func TestMalformedCancellationIsIgnored(t *testing.T) {
	server := newFakeServer().handle(protocol.MethodCallTool, func(s *fakeServer, env protocol.Envelope) []interface{} {
		return []interface{}{
			map[string]interface{}{"jsonrpc": "2.0", "method": protocol.MethodCancelled, "params": "not an object"},
			map[string]interface{}{"jsonrpc": "2.0", "method": protocol.MethodCancelled,
				"params": map[string]interface{}{"requestId": []int{1}, "reason": 7}},
			reply(env.ID, textResult("still here", false)),
		}
	})
	var buf lockedBuffer
	c := connect(t, server, WithLogger(logx.NewLogger(&buf, "")))

	r, err := c.CallTool(testContext(t), "echo", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "still here", r.TextContent())
	assert.Equal(t, 2, strings.Count(buf.String(), "Malformed cancellation notification"))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// stubSession stands in for a session owned by another library.
type stubSession struct {
	client *Client
	raw    map[string]interface{}
	err    error
	args   map[string]interface{}
}

func (s *stubSession) CallTool(ctx context.Context, _ string, args map[string]interface{}) (map[string]interface{}, error) {
	s.args = args
	if meta, ok := args["_meta"].(map[string]interface{}); ok && s.client != nil {
		total := 4.0
		s.client.HandleProgress(ctx, protocol.ProgressNotificationParams{
			ProgressToken: meta["progressToken"], Progress: 1, Total: &total,
		})
	}
	return s.raw, s.err
}

func (s *stubSession) ListTools(context.Context) ([]protocol.Tool, error) { return nil, s.err }
func (s *stubSession) ListResources(context.Context, string) (*protocol.ListResourcesResult, error) {
	return nil, s.err
}
func (s *stubSession) ReadResource(context.Context, string) (*protocol.ReadResourceResult, error) {
	return nil, s.err
}
func (s *stubSession) Close() error { return nil }

func TestForeignSessionProgress(t *testing.T) {
	stub := &stubSession{raw: textResult("ok", false)}
	c := New(stub)
	stub.client = c

	var got []progress.Update
	r, err := c.CallTool(context.Background(), "x", map[string]interface{}{"a": 1}, func(_ context.Context, u progress.Update) error {
		got = append(got, u)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", r.TextContent())
	require.Len(t, got, 1)
	assert.Equal(t, 25.0, got[0].Percentage)
	assert.Equal(t, 0, c.Registry().Len())

	// Tokens that are no longer registered are dropped.
	assert.False(t, c.HandleProgress(context.Background(), protocol.ProgressNotificationParams{ProgressToken: got[0].Token, Progress: 2}))
}

func TestForeignSessionErrors(t *testing.T) {
	c := New(&stubSession{})
	_, err := c.CallTool(context.Background(), "x", nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidResponse))

	c = New(&stubSession{err: errors.New("pipe burst")})
	_, err = c.CallTool(context.Background(), "x", nil, nil)
	assert.True(t, IsTransportError(err))
	_, err = c.ListTools(context.Background())
	assert.True(t, IsTransportError(err))

	_, err = New(nil).CallTool(context.Background(), "x", nil, nil)
	assert.True(t, IsConnectionError(err))
}
