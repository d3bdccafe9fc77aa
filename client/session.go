package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/localrivet/mcpcontent/logx"
	"github.com/localrivet/mcpcontent/progress"
	"github.com/localrivet/mcpcontent/protocol"
	"github.com/localrivet/mcpcontent/transport"
)

// Session is the protocol collaborator a Client drives. CallTool returns the
// raw result object; arguments may carry a "_meta" map with a progress token.
type Session interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error)
	ListTools(ctx context.Context) ([]protocol.Tool, error)
	ListResources(ctx context.Context, cursor string) (*protocol.ListResourcesResult, error)
	ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error)
	Close() error
}

// NotificationHandler receives notifications from the server. It runs on the
// session's receive loop, so notifications are handled one at a time in the
// order they arrive, and before any response that follows them.
type NotificationHandler func(ctx context.Context, notification *protocol.JSONRPCNotification)

// rpcSession implements Session as JSON-RPC over a transport.Conn.
type rpcSession struct {
	conn     transport.Conn
	endpoint string
	logger   logx.Logger
	notify   NotificationHandler
	timeout  time.Duration

	nextID    atomic.Int64
	pendingMu sync.Mutex
	pending   map[string]chan *protocol.JSONRPCResponse

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	initResult protocol.InitializeResult
}

func newRPCSession(conn transport.Conn, endpoint string, notify NotificationHandler, logger logx.Logger, timeout time.Duration) *rpcSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &rpcSession{
		conn:     conn,
		endpoint: endpoint,
		logger:   logger,
		notify:   notify,
		timeout:  timeout,
		pending:  make(map[string]chan *protocol.JSONRPCResponse),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.receiveLoop()
	return s
}

// initialize performs the MCP handshake.
func (s *rpcSession) initialize(ctx context.Context, info protocol.Implementation) error {
	params := protocol.InitializeRequestParams{
		ProtocolVersion: protocol.CurrentProtocolVersion,
		Capabilities:    protocol.ClientCapabilities{},
		ClientInfo:      info,
	}
	var res protocol.InitializeResult
	if err := s.request(ctx, protocol.MethodInitialize, params, &res); err != nil {
		return err
	}
	if !protocol.IsSupportedProtocolVersion(res.ProtocolVersion) {
		return NewConnectionError(s.endpoint,
			fmt.Sprintf("server selected unsupported protocol version %q", res.ProtocolVersion), ErrVersionMismatch)
	}
	s.initResult = res
	s.logger.Info("Connected to %s %s (protocol %s)", res.ServerInfo.Name, res.ServerInfo.Version, res.ProtocolVersion)

	return s.sendNotification(ctx, protocol.MethodInitialized, nil)
}

func (s *rpcSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	params := protocol.CallToolRequestParams{Name: name, Arguments: args}

	// The progress token travels in params._meta on the wire.
	if meta, ok := args[protocol.KeyMeta].(map[string]interface{}); ok {
		if token, ok := progress.TokenKey(meta[protocol.KeyProgressToken]); ok {
			params.Meta = &protocol.RequestMeta{ProgressToken: token}
			params.Arguments = liftProgressToken(args, meta)
		}
	}

	var raw map[string]interface{}
	if err := s.request(ctx, protocol.MethodCallTool, params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// liftProgressToken returns args without _meta.progressToken, dropping
// _meta entirely when nothing else is left in it.
func liftProgressToken(args, meta map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	rest := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		if k != protocol.KeyProgressToken {
			rest[k] = v
		}
	}
	if len(rest) == 0 {
		delete(out, protocol.KeyMeta)
	} else {
		out[protocol.KeyMeta] = rest
	}
	return out
}

// ListTools follows nextCursor until every page has been read.
func (s *rpcSession) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	var tools []protocol.Tool
	cursor := ""
	for {
		var page protocol.ListToolsResult
		if err := s.request(ctx, protocol.MethodListTools, protocol.ListToolsRequestParams{Cursor: cursor}, &page); err != nil {
			return nil, err
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			return tools, nil
		}
		cursor = page.NextCursor
	}
}

func (s *rpcSession) ListResources(ctx context.Context, cursor string) (*protocol.ListResourcesResult, error) {
	var res protocol.ListResourcesResult
	if err := s.request(ctx, protocol.MethodListResources, protocol.ListResourcesRequestParams{Cursor: cursor}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *rpcSession) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	var res protocol.ReadResourceResult
	if err := s.request(ctx, protocol.MethodReadResource, protocol.ReadResourceRequestParams{URI: uri}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Close stops the receive loop and closes the connection. Pending requests
// fail with ErrNotConnected.
func (s *rpcSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.fail(ErrNotConnected)
		s.cancel()
		err = s.conn.Close()
	})
	return err
}

func (s *rpcSession) fail(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err != nil {
		return
	}
	s.err = err
	close(s.done)
}

func (s *rpcSession) failure() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// request sends a request and waits for its response, decoding the result
// into result when it is non-nil.
func (s *rpcSession) request(ctx context.Context, method string, params interface{}, result interface{}) error {
	select {
	case <-s.done:
		return NewConnectionError(s.endpoint, "session closed", s.closedCause())
	default:
	}

	if s.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
	}

	id := s.nextID.Add(1)
	key := protocol.IDKey(id)
	ch := make(chan *protocol.JSONRPCResponse, 1)

	s.pendingMu.Lock()
	s.pending[key] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, key)
		s.pendingMu.Unlock()
	}()

	data, err := json.Marshal(protocol.NewRequest(id, method, params))
	if err != nil {
		return NewClientError(fmt.Sprintf("failed to marshal %s request", method), 0, err)
	}
	s.logger.Debug("Sending %s request id=%d", method, id)
	if err := s.conn.Send(ctx, data); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return NewConnectionError(s.endpoint, "failed to send request", fmt.Errorf("%w: %v", ErrNotConnected, err))
		}
		return NewTransportError(s.endpoint, fmt.Sprintf("failed to send %s request", method), err)
	}

	select {
	case resp := <-ch:
		return decodeResponse(method, resp, result)
	case <-s.done:
		// A response delivered just before the connection dropped still wins.
		select {
		case resp := <-ch:
			return decodeResponse(method, resp, result)
		default:
		}
		return NewConnectionError(s.endpoint, fmt.Sprintf("session closed while waiting for %s", method), s.closedCause())
	case <-ctx.Done():
		select {
		case resp := <-ch:
			return decodeResponse(method, resp, result)
		default:
		}
		s.cancelRequest(id, ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return NewTimeoutError(method, s.timeout, fmt.Errorf("%w: %v", ErrRequestTimeout, ctx.Err()))
		}
		return NewClientError(fmt.Sprintf("%s cancelled", method), 0, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))
	}
}

// decodeResponse maps a response onto a server error or decodes its result
// into result when result is non-nil.
func decodeResponse(method string, resp *protocol.JSONRPCResponse, result interface{}) error {
	if resp.Error != nil {
		return NewServerError(method, int(resp.Error.Code), resp.Error.Message, resp.Error.Data)
	}
	if result == nil {
		return nil
	}
	if err := protocol.UnmarshalPayload(resp.Result, result); err != nil {
		return NewClientError(fmt.Sprintf("malformed %s result", method), 0, fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}
	return nil
}

func (s *rpcSession) closedCause() error {
	if err := s.failure(); err != nil && !errors.Is(err, ErrNotConnected) {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return ErrNotConnected
}

// cancelRequest tells the server we stopped waiting for id.
func (s *rpcSession) cancelRequest(id int64, reason error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	params := protocol.CancelledParams{RequestID: id, Reason: reason.Error()}
	if err := s.sendNotification(ctx, protocol.MethodCancelled, params); err != nil {
		s.logger.Debug("Failed to send cancellation for request %d: %v", id, err)
	}
}

func (s *rpcSession) sendNotification(ctx context.Context, method string, params interface{}) error {
	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return NewClientError(fmt.Sprintf("failed to marshal %s notification", method), 0, err)
	}
	if err := s.conn.Send(ctx, data); err != nil {
		return NewTransportError(s.endpoint, fmt.Sprintf("failed to send %s notification", method), err)
	}
	return nil
}

// receiveLoop reads messages until the connection fails. Responses are
// routed to their waiting request; notifications are handled inline.
func (s *rpcSession) receiveLoop() {
	for {
		data, err := s.conn.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("Connection to %s lost: %v", s.endpoint, err)
			}
			s.fail(err)
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("Ignoring malformed message from %s: %v", s.endpoint, err)
			continue
		}

		switch {
		case env.IsResponse():
			s.deliver(&protocol.JSONRPCResponse{JSONRPC: env.JSONRPC, ID: env.ID, Result: env.Result, Error: env.Error})
		case env.IsNotification():
			if s.notify != nil {
				s.notify(s.ctx, &protocol.JSONRPCNotification{JSONRPC: env.JSONRPC, Method: env.Method, Params: env.Params})
			}
		case env.ID != nil && env.Method != "":
			s.answerServerRequest(&env)
		default:
			if env.Error != nil {
				s.logger.Error("Server reported error without request id: %s", env.Error.Message)
			}
		}
	}
}

func (s *rpcSession) deliver(resp *protocol.JSONRPCResponse) {
	key := protocol.IDKey(resp.ID)
	s.pendingMu.Lock()
	ch, ok := s.pending[key]
	s.pendingMu.Unlock()
	if !ok {
		s.logger.Debug("Dropping response for unknown request id %s", key)
		return
	}
	select {
	case ch <- resp:
	default:
		s.logger.Warn("Dropping duplicate response for request id %s", key)
	}
}

// answerServerRequest replies to requests the server sends us. Only ping is
// supported.
func (s *rpcSession) answerServerRequest(env *protocol.Envelope) {
	resp := map[string]interface{}{"jsonrpc": "2.0", "id": env.ID}
	if env.Method == protocol.MethodPing {
		resp["result"] = map[string]interface{}{}
	} else {
		resp["error"] = protocol.ErrorPayload{
			Code:    protocol.CodeMethodNotFound,
			Message: fmt.Sprintf("method %s is not supported by this client", env.Method),
		}
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.conn.Send(s.ctx, data); err != nil {
		s.logger.Warn("Failed to answer %s request: %v", env.Method, err)
	}
}

var _ Session = (*rpcSession)(nil)
