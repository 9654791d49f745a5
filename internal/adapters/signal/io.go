package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, connID core.ConnectionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("readPump read error")
				return
			}
			ctl.dispatch(ctx, connID, c, data)
		}
	}
}

// dispatch normalizes the frame into a typed command and routes it. A
// bad or malicious frame only ever costs the sender an error reply.
func (ctl *SignalWSController) dispatch(ctx context.Context, connID core.ConnectionID, c *WsSignalConn, data []byte) {
	cmd, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("bad frame")
		ctl.sendJSON(c, protocol.ErrorEvent{
			Type:  protocol.TypeError,
			Code:  "bad_payload",
			Error: err.Error(),
		})
		return
	}
	var env protocol.Envelope
	_ = json.Unmarshal(data, &env)
	ctl.countInbound(env.Type)

	switch m := cmd.(type) {
	case protocol.CreateSession:
		ctl.handleCreateSession(ctx, connID, c, m)
	case protocol.JoinSession:
		ctl.handleJoinSession(ctx, connID, c, m)
	case protocol.JoinRequest:
		ctl.handleJoinRequest(ctx, connID, c, m)
	case protocol.AdmissionDecision:
		ctl.handleAdmission(ctx, connID, c, m)
	case protocol.Offer:
		ctl.handleOffer(connID, m)
	case protocol.Answer:
		ctl.handleAnswer(connID, m)
	case protocol.ICECandidate:
		ctl.handleCandidate(connID, m)
	case protocol.Signal:
		ctl.handleSignal(connID, m)
	case protocol.WebRTCOffer:
		ctl.handleSessionOffer(connID, m)
	case protocol.WebRTCAnswer:
		ctl.handleSessionAnswer(connID, m)
	case protocol.ViewerReady:
		ctl.handleViewerReady(connID, m)
	case protocol.ScreenShare:
		ctl.handleScreenShare(connID, c, m)
	case protocol.Stream:
		ctl.Orch.RelayStream(connID, m)
	case protocol.AnalyticsData:
		ctl.Orch.RelayAnalytics(connID, m)
	case protocol.JoinChat:
		ctl.handleJoinChat(connID, c, m)
	case protocol.ChatMessage:
		ctl.handleChatMessage(connID, c, m)
	case protocol.Typing:
		ctl.Orch.Typing(connID, m, m.Type == protocol.TypeTypingStart)
	case protocol.UpdateSession:
		ctl.handleUpdateSession(ctx, connID, c, m)
	case protocol.DeleteSession:
		ctl.handleDeleteSession(ctx, connID, c, m)
	case protocol.LeaveSession:
		ctl.Orch.LeaveSession(ctx, connID, m)
	case protocol.CheckSession:
		ctl.sendJSON(c, ctl.Orch.CheckSession(m))
	case protocol.GetUserStreams:
		ctl.sendJSON(c, ctl.Orch.UserStreams(m))
	case protocol.RegisterUser:
		ctl.Orch.RegisterUser(connID, m)
	case protocol.GetUsers:
		ctl.sendJSON(c, ctl.Orch.OnlineUsers(m.Type == protocol.TypeGetUsers))
	case protocol.Ping:
		ctl.sendJSON(c, protocol.Pong{Type: protocol.TypePong})
	default:
		log.Warn().Str("module", "signal").Str("conn", string(connID)).Msg("unhandled command")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) countInbound(t protocol.MessageType) {
	if ctl.Orch.Metrics == nil {
		return
	}
	ctl.Orch.Metrics.WSMessages.WithLabelValues("in", string(t)).Inc()
}
