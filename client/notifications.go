package client

import (
	"context"

	"github.com/localrivet/mcpcontent/progress"
	"github.com/localrivet/mcpcontent/protocol"
)

// handleNotification routes server notifications. Handler failures are
// logged and never reach the session.
func (c *Client) handleNotification(ctx context.Context, n *protocol.JSONRPCNotification) {
	switch n.Method {
	case protocol.MethodProgress:
		var params protocol.ProgressNotificationParams
		if err := protocol.UnmarshalPayload(n.Params, &params); err != nil {
			c.logger.Warn("Malformed progress notification: %v", err)
			return
		}
		c.HandleProgress(ctx, params)
	case protocol.MethodNotificationMessage:
		var params protocol.LoggingMessageParams
		if err := protocol.UnmarshalPayload(n.Params, &params); err != nil {
			c.logger.Warn("Malformed log notification: %v", err)
			return
		}
		c.handleLog(params)
	case protocol.MethodCancelled:
		var params protocol.CancelledParams
		if err := protocol.UnmarshalPayload(n.Params, &params); err != nil {
			c.logger.Warn("Malformed cancellation notification: %v", err)
			return
		}
		c.logger.Debug("Server cancelled request %v: %s", params.RequestID, params.Reason)
	default:
		c.logger.Debug("Unhandled notification %s", n.Method)
	}
}

// HandleProgress passes a progress notification to the callback registered
// for its token. It reports whether a callback was found. Sessions created
// outside this package feed their progress notifications through here.
func (c *Client) HandleProgress(ctx context.Context, params protocol.ProgressNotificationParams) bool {
	token, ok := progress.TokenKey(params.ProgressToken)
	if !ok {
		c.logger.Warn("Progress notification with unusable token %v", params.ProgressToken)
		return false
	}
	return c.registry.Dispatch(ctx, token, params.Progress, params.Total, params.Message)
}

// handleLog forwards server log messages to the client logger at the
// matching severity.
func (c *Client) handleLog(params protocol.LoggingMessageParams) {
	source := params.Logger
	if source == "" {
		source = "server"
	}
	switch params.Level {
	case protocol.LogLevelEmergency, protocol.LogLevelAlert, protocol.LogLevelCritical, protocol.LogLevelError:
		c.logger.Error("[%s] %v", source, params.Data)
	case protocol.LogLevelWarn:
		c.logger.Warn("[%s] %v", source, params.Data)
	case protocol.LogLevelDebug:
		c.logger.Debug("[%s] %v", source, params.Data)
	default:
		c.logger.Info("[%s] %v", source, params.Data)
	}
}
