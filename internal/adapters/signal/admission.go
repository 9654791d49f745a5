package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/protocol"
)

func (ctl *SignalWSController) handleJoinRequest(ctx context.Context, connID core.ConnectionID, c *WsSignalConn, cmd protocol.JoinRequest) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(connID) {
		log.Warn().Str("module", "signal").Str("conn", string(connID)).Msg("join request rate limited")
		ctl.sendJSON(c, protocol.ErrorEvent{
			Type:  protocol.TypeError,
			Code:  "rate_limited",
			Error: "too many join attempts",
		})
		return
	}
	if err := ctl.Orch.RequestJoin(ctx, connID, cmd); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *SignalWSController) handleAdmission(ctx context.Context, connID core.ConnectionID, c *WsSignalConn, cmd protocol.AdmissionDecision) {
	var err error
	if cmd.Type == protocol.TypeApproveJoin {
		err = ctl.Orch.Approve(ctx, connID, cmd)
	} else {
		err = ctl.Orch.Reject(connID, cmd)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(connID)).Str("viewer", cmd.ViewerID).Msg("admission decision failed")
		ctl.sendError(c, err)
	}
}
