package signal

import (
	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/protocol"
)

func (ctl *SignalWSController) handleJoinChat(connID core.ConnectionID, c *WsSignalConn, cmd protocol.JoinChat) {
	if err := ctl.Orch.JoinChat(connID, cmd); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *SignalWSController) handleChatMessage(connID core.ConnectionID, c *WsSignalConn, cmd protocol.ChatMessage) {
	if err := ctl.Orch.PostChat(connID, cmd); err != nil {
		ctl.sendError(c, err)
	}
}
