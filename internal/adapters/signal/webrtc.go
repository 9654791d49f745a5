package signal

import (
	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/protocol"
)

// Signaling relays. The server never opens a PeerConnection; offers,
// answers and candidates pass through to the addressed peers untouched.

func (ctl *SignalWSController) handleOffer(connID core.ConnectionID, cmd protocol.Offer) {
	ctl.Orch.RelayOffer(connID, cmd)
}

func (ctl *SignalWSController) handleAnswer(connID core.ConnectionID, cmd protocol.Answer) {
	ctl.Orch.RelayAnswer(connID, cmd)
}

func (ctl *SignalWSController) handleCandidate(connID core.ConnectionID, cmd protocol.ICECandidate) {
	ctl.Orch.RelayICE(connID, cmd)
}

func (ctl *SignalWSController) handleSignal(connID core.ConnectionID, cmd protocol.Signal) {
	ctl.Orch.RelaySignal(connID, cmd)
}

func (ctl *SignalWSController) handleSessionOffer(connID core.ConnectionID, cmd protocol.WebRTCOffer) {
	ctl.Orch.BroadcastOffer(connID, cmd)
}

func (ctl *SignalWSController) handleSessionAnswer(connID core.ConnectionID, cmd protocol.WebRTCAnswer) {
	ctl.Orch.SessionAnswer(connID, cmd)
}

func (ctl *SignalWSController) handleViewerReady(connID core.ConnectionID, cmd protocol.ViewerReady) {
	ctl.Orch.ViewerReady(connID, cmd)
}
