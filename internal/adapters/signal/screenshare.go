package signal

import (
	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/protocol"
)

func (ctl *SignalWSController) handleScreenShare(connID core.ConnectionID, c *WsSignalConn, cmd protocol.ScreenShare) {
	var err error
	if cmd.Type == protocol.TypeStartScreenShare {
		err = ctl.Orch.StartScreenShare(connID, cmd)
	} else {
		err = ctl.Orch.StopScreenShare(connID, cmd)
	}
	if err != nil {
		ctl.sendError(c, err)
	}
}
