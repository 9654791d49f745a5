package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/protocol"
)

func (ctl *SignalWSController) handleCreateSession(ctx context.Context, connID core.ConnectionID, c *WsSignalConn, cmd protocol.CreateSession) {
	res, err := ctl.Orch.CreateSession(ctx, connID, cmd)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("create session failed")
		ctl.sendError(c, err)
		return
	}
	ctl.sendJSON(c, res)
}

func (ctl *SignalWSController) handleJoinSession(ctx context.Context, connID core.ConnectionID, c *WsSignalConn, cmd protocol.JoinSession) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(connID) {
		log.Warn().Str("module", "signal").Str("conn", string(connID)).Msg("join rate limited")
		ctl.sendJSON(c, protocol.ErrorEvent{
			Type:  protocol.TypeError,
			Code:  "rate_limited",
			Error: "too many join attempts",
		})
		return
	}

	joined, pending, err := ctl.Orch.JoinSession(ctx, connID, cmd)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(connID)).Str("session", cmd.SessionID).Msg("join session failed")
		ctl.sendError(c, err)
		return
	}
	if pending != nil {
		ctl.sendJSON(c, *pending)
		return
	}
	ctl.sendJSON(c, *joined)
}

func (ctl *SignalWSController) handleUpdateSession(ctx context.Context, connID core.ConnectionID, c *WsSignalConn, cmd protocol.UpdateSession) {
	if err := ctl.Orch.UpdateSession(ctx, connID, cmd); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *SignalWSController) handleDeleteSession(ctx context.Context, connID core.ConnectionID, c *WsSignalConn, cmd protocol.DeleteSession) {
	if err := ctl.Orch.DeleteSession(ctx, connID, cmd); err != nil {
		ctl.sendError(c, err)
	}
}
