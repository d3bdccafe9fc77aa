// Package client calls MCP tools and turns their results into parsed
// ToolResults, correlating progress notifications with the call that asked
// for them.
//
// A Client drives a Session. Connect and ConnectCommand build the JSON-RPC
// session over a WebSocket or a subprocess; New accepts any Session.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localrivet/mcpcontent/auth"
	"github.com/localrivet/mcpcontent/content"
	"github.com/localrivet/mcpcontent/logx"
	"github.com/localrivet/mcpcontent/pipeline"
	"github.com/localrivet/mcpcontent/progress"
	"github.com/localrivet/mcpcontent/protocol"
	"github.com/localrivet/mcpcontent/result"
	"github.com/localrivet/mcpcontent/transport"
	"github.com/localrivet/mcpcontent/transport/stdio"
	"github.com/localrivet/mcpcontent/transport/ws"
)

// Default client settings.
const (
	DefaultRequestTimeout = 5 * time.Minute
	DefaultDialTimeout    = 30 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(logger logx.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegistry shares a progress registry between clients. By default each
// client owns its own.
func WithRegistry(registry *progress.Registry) Option {
	return func(c *Client) {
		if registry != nil {
			c.registry = registry
		}
	}
}

// WithClientInfo sets the implementation name and version sent on initialize.
func WithClientInfo(name, version string) Option {
	return func(c *Client) {
		c.info = protocol.Implementation{Name: name, Version: version}
	}
}

// WithRequestTimeout bounds requests whose context has no deadline. Zero
// disables the bound.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// WithDialTimeout bounds the WebSocket connect.
func WithDialTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.dialTimeout = timeout
	}
}

// WithAuth sets the provider whose headers are sent when connecting.
func WithAuth(provider auth.AuthProvider) Option {
	return func(c *Client) {
		c.auth = provider
	}
}

// Client calls tools on one MCP server.
type Client struct {
	session        Session
	registry       *progress.Registry
	logger         logx.Logger
	info           protocol.Implementation
	requestTimeout time.Duration
	dialTimeout    time.Duration
	auth           auth.AuthProvider
	serverInfo     *protocol.InitializeResult
}

func newClient(opts []Option) *Client {
	c := &Client{
		logger:         logx.NewNopLogger(),
		info:           protocol.Implementation{Name: "mcpcontent", Version: "0.1.0"},
		requestTimeout: DefaultRequestTimeout,
		dialTimeout:    DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = progress.NewRegistry(progress.WithLogger(c.logger))
	}
	return c
}

// New creates a Client over an existing session. Progress notifications
// received by that session must be passed to HandleProgress.
func New(session Session, opts ...Option) *Client {
	c := newClient(opts)
	c.session = session
	return c
}

// Connect dials a WebSocket MCP endpoint, sending headers (plus those of
// the configured auth provider) with the upgrade, and performs the
// initialize handshake.
func Connect(ctx context.Context, endpoint string, headers map[string]string, opts ...Option) (*Client, error) {
	c := newClient(opts)
	c.logger.Info("Connecting to %s", endpoint)
	conn, err := ws.Dial(ctx, endpoint, auth.Headers(c.auth, headers), ws.WithDialTimeout(c.dialTimeout))
	if err != nil {
		return nil, NewConnectionError(endpoint, "failed to connect", err)
	}
	if err := c.attach(ctx, conn, endpoint); err != nil {
		return nil, err
	}
	return c, nil
}

// ConnectCommand starts an MCP server subprocess and talks to it over stdio.
func ConnectCommand(ctx context.Context, command string, args, env []string, opts ...Option) (*Client, error) {
	c := newClient(opts)
	conn, err := stdio.Command(command, args, env, stdio.WithLogger(c.logger))
	if err != nil {
		return nil, NewConnectionError(command, "failed to start server", err)
	}
	if err := c.attach(ctx, conn, command); err != nil {
		return nil, err
	}
	return c, nil
}

// ConnectConn runs the protocol over an already established connection.
func ConnectConn(ctx context.Context, conn transport.Conn, name string, opts ...Option) (*Client, error) {
	c := newClient(opts)
	if err := c.attach(ctx, conn, name); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) attach(ctx context.Context, conn transport.Conn, endpoint string) error {
	s := newRPCSession(conn, endpoint, c.handleNotification, c.logger, c.requestTimeout)
	if err := s.initialize(ctx, c.info); err != nil {
		_ = s.Close()
		if IsConnectionError(err) {
			return err
		}
		return NewConnectionError(endpoint, "initialize failed", err)
	}
	c.session = s
	res := s.initResult
	c.serverInfo = &res
	return nil
}

// ServerInfo returns the server's initialize result, or nil for sessions
// not established by this package.
func (c *Client) ServerInfo() *protocol.InitializeResult {
	return c.serverInfo
}

// Registry returns the client's progress registry.
func (c *Client) Registry() *progress.Registry {
	return c.registry
}

// CallTool calls a tool and parses its result. When cb is non-nil a progress
// token is registered for the duration of the call, sent as
// _meta.progressToken, and every progress notification for it is passed to
// cb before CallTool returns.
//
// A result flagged isError is returned together with a *ToolError whose
// detail is the result's text content.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}, cb progress.Callback) (*result.ToolResult, error) {
	if c.session == nil {
		return nil, NewConnectionError("client", "not connected", ErrNotConnected)
	}

	callArgs := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		callArgs[k] = v
	}

	if cb != nil {
		token := progress.NewToken()
		handle, err := c.registry.Register(token, cb)
		if err != nil {
			return nil, NewClientError("failed to register progress token", 0, err)
		}
		defer handle.Release()

		meta := map[string]interface{}{}
		if existing, ok := callArgs[protocol.KeyMeta].(map[string]interface{}); ok {
			for k, v := range existing {
				meta[k] = v
			}
		}
		meta[protocol.KeyProgressToken] = token
		callArgs[protocol.KeyMeta] = meta
	}

	raw, err := c.session.CallTool(ctx, name, callArgs)
	if err != nil {
		return nil, classify(err, name)
	}
	if raw == nil {
		return nil, NewClientError(fmt.Sprintf("no result returned from tool %s", name), 0, ErrInvalidResponse)
	}

	r := result.Parse(raw, result.WithLogger(c.logger))
	if r.IsError() {
		return r, NewToolError(name, r.TextContent())
	}
	return r, nil
}

// CallToolRaw calls a tool and returns its result object uninterpreted.
func (c *Client) CallToolRaw(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	if c.session == nil {
		return nil, NewConnectionError("client", "not connected", ErrNotConnected)
	}
	raw, err := c.session.CallTool(ctx, name, args)
	if err != nil {
		return nil, classify(err, name)
	}
	if raw == nil {
		return nil, NewClientError(fmt.Sprintf("no result returned from tool %s", name), 0, ErrInvalidResponse)
	}
	return raw, nil
}

// Invoke calls a tool, reporting progress to events, and runs the result
// through processor. A nil processor uses one emitting to events with no
// media sink.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]interface{}, processor *pipeline.Processor, events pipeline.EventSink) (*pipeline.Output, error) {
	var cb progress.Callback
	if events != nil {
		cb = pipeline.NewProgressCallback(events, name, pipeline.EventToolProgress)
	}
	r, err := c.CallTool(ctx, name, args, cb)
	if err != nil {
		return nil, err
	}
	if processor == nil {
		processor = pipeline.NewProcessor(pipeline.WithEventSink(events), pipeline.WithLogger(c.logger))
	}
	return processor.Process(ctx, r, name), nil
}

// ListTools returns every tool the server offers.
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	if c.session == nil {
		return nil, NewConnectionError("client", "not connected", ErrNotConnected)
	}
	tools, err := c.session.ListTools(ctx)
	if err != nil {
		return nil, classify(err, protocol.MethodListTools)
	}
	return tools, nil
}

// ListResources returns one page of resources starting at cursor.
func (c *Client) ListResources(ctx context.Context, cursor string) (*protocol.ListResourcesResult, error) {
	if c.session == nil {
		return nil, NewConnectionError("client", "not connected", ErrNotConnected)
	}
	res, err := c.session.ListResources(ctx, cursor)
	if err != nil {
		return nil, classify(err, protocol.MethodListResources)
	}
	if res == nil {
		return nil, NewClientError("no result returned from resources/list", 0, ErrInvalidResponse)
	}
	return res, nil
}

// ReadResource reads a resource and returns its contents as resource blocks.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]content.ResourceBlock, error) {
	if c.session == nil {
		return nil, NewConnectionError("client", "not connected", ErrNotConnected)
	}
	res, err := c.session.ReadResource(ctx, uri)
	if err != nil {
		return nil, classify(err, protocol.MethodReadResource)
	}
	if res == nil {
		return nil, NewClientError("no result returned from resources/read", 0, ErrInvalidResponse)
	}
	return ResourceBlocks(res.Contents), nil
}

// ResourceBlocks converts resources/read contents into resource blocks.
func ResourceBlocks(contents []protocol.ResourceContents) []content.ResourceBlock {
	blocks := make([]content.ResourceBlock, 0, len(contents))
	for _, rc := range contents {
		var opts []content.Option
		if rc.Meta != nil {
			opts = append(opts, content.WithMeta(rc.Meta))
		}
		if rc.IsBlob() {
			blocks = append(blocks, content.NewBlobResource(rc.URI, *rc.Blob, rc.MimeType, opts...))
			continue
		}
		var text string
		if rc.Text != nil {
			text = *rc.Text
		}
		blocks = append(blocks, content.NewTextResource(rc.URI, text, rc.MimeType, opts...))
	}
	return blocks
}

// Close closes the session.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

// classify maps errors from foreign sessions onto the client taxonomy.
// Errors already classified, and context errors, pass through unchanged.
func classify(err error, operation string) error {
	var clientErr *ClientError
	switch {
	case IsConnectionError(err), IsTransportError(err), IsTimeoutError(err), IsServerError(err), IsToolError(err):
		return err
	case errors.As(err, &clientErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return NewTransportError("session", fmt.Sprintf("%s failed", operation), err)
	}
}
