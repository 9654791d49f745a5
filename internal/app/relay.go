package app

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/domain"
	"github.com/deathboy20/stream-server/internal/protocol"
)

// Signaling relay. All of it is best-effort: a vanished session or
// target is a logged no-op, peers recover through renegotiation.

// RelayOffer delivers a directed offer to the named target, sender
// attached. Direct relay needs no membership check beyond the target
// existing.
func (o *Orchestrator) RelayOffer(conn core.ConnectionID, cmd protocol.Offer) {
	o.sendTo(core.ConnectionID(cmd.Target), protocol.OfferRelay{
		Type:  protocol.TypeOffer,
		From:  string(conn),
		Offer: cmd.Offer,
	})
}

func (o *Orchestrator) RelayAnswer(conn core.ConnectionID, cmd protocol.Answer) {
	o.sendTo(core.ConnectionID(cmd.Target), protocol.AnswerRelay{
		Type:   protocol.TypeAnswer,
		From:   string(conn),
		Answer: cmd.Answer,
	})
}

// RelayICE routes a candidate by its addressing: direct to a named
// target, to the host for viewer-role candidates, session-wide when the
// host fans out.
func (o *Orchestrator) RelayICE(conn core.ConnectionID, cmd protocol.ICECandidate) {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		log.Warn().Str("module", "app.relay").Str("session", cmd.SessionID).Msg("ice candidate for unknown session")
		return
	}

	relay := protocol.ICERelay{
		Type:      protocol.TypeICECandidate,
		From:      string(conn),
		Candidate: cmd.Candidate,
	}

	switch {
	case cmd.Target != "" && cmd.Target != "host":
		o.sendTo(core.ConnectionID(cmd.Target), relay)
	case cmd.Target == "host" || cmd.Role == "viewer":
		if creator := sess.Creator(); creator != "" && creator != conn {
			o.sendTo(creator, relay)
		}
	default:
		o.broadcast(sess.ID(), conn, relay)
	}
}

// RelaySignal is the generic targeted passthrough; payload and metadata
// are opaque to the relay.
func (o *Orchestrator) RelaySignal(conn core.ConnectionID, cmd protocol.Signal) {
	o.sendTo(core.ConnectionID(cmd.Target), protocol.SignalRelay{
		Type:     protocol.TypeSignal,
		Sender:   string(conn),
		Signal:   cmd.Signal,
		Metadata: cmd.Metadata,
	})
}

// BroadcastOffer fans the session-level offer out to everyone else in
// the room. An offer from the creator also overwrites the cached
// latestOffer for late joiners.
func (o *Orchestrator) BroadcastOffer(conn core.ConnectionID, cmd protocol.WebRTCOffer) {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		log.Warn().Str("module", "app.relay").Str("session", cmd.SessionID).Msg("webrtc offer for unknown session")
		return
	}
	if sess.IsCreator(conn) {
		sess.SetLatestOffer(cmd.Offer)
	}
	o.broadcast(sess.ID(), conn, protocol.WebRTCOfferEvent{
		Type:      protocol.TypeWebRTCOffer,
		SessionID: sess.ID(),
		Offer:     cmd.Offer,
	})
}

// SessionAnswer is delivered to the session's creator; with no creator
// connection known it degrades to a session-wide broadcast.
func (o *Orchestrator) SessionAnswer(conn core.ConnectionID, cmd protocol.WebRTCAnswer) {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		log.Warn().Str("module", "app.relay").Str("session", cmd.SessionID).Msg("webrtc answer for unknown session")
		return
	}
	event := protocol.WebRTCAnswerEvent{
		Type:      protocol.TypeWebRTCAnswer,
		SessionID: sess.ID(),
		Answer:    cmd.Answer,
	}
	if creator := sess.Creator(); creator != "" && creator != conn {
		o.sendTo(creator, event)
		return
	}
	o.broadcast(sess.ID(), conn, event)
}

// ViewerReady is the viewer's explicit signal that its listeners are
// attached; it gates replay of the cached offer instead of a timer.
func (o *Orchestrator) ViewerReady(conn core.ConnectionID, cmd protocol.ViewerReady) {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		return
	}
	o.broadcast(sess.ID(), conn, protocol.ViewerConnected{
		Type:      protocol.TypeViewerConnected,
		SessionID: sess.ID(),
		ViewerID:  cmd.ViewerID,
	})
	if offer, ok := sess.TakeOfferFor(conn); ok {
		o.sendTo(conn, protocol.WebRTCOfferEvent{
			Type:      protocol.TypeWebRTCOffer,
			SessionID: sess.ID(),
			Offer:     offer,
		})
		log.Info().Str("module", "app.relay").Str("session", sess.ID()).Str("conn", string(conn)).Msg("cached offer replayed")
	}
}

// RelayStream announces a media stream starting or stopping to the rest
// of the room. The relay carries the announcement only, the media itself
// flows peer to peer.
func (o *Orchestrator) RelayStream(conn core.ConnectionID, cmd protocol.Stream) {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		log.Warn().Str("module", "app.relay").Str("session", cmd.SessionID).Msg("stream event for unknown session")
		return
	}
	event := protocol.StreamEvent{
		Type:         cmd.Type,
		ConnectionID: string(conn),
	}
	if cmd.Type == protocol.TypeStreamStarted {
		event.StreamType = cmd.StreamType
		if event.StreamType == "" {
			event.StreamType = "camera"
		}
	}
	o.broadcast(sess.ID(), conn, event)
}

// RelayAnalytics forwards opaque playback stats to the other session
// members, sender attached.
func (o *Orchestrator) RelayAnalytics(conn core.ConnectionID, cmd protocol.AnalyticsData) {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		log.Warn().Str("module", "app.relay").Str("session", cmd.SessionID).Msg("analytics for unknown session")
		return
	}
	o.broadcast(sess.ID(), conn, protocol.AnalyticsUpdate{
		Type:         protocol.TypeAnalyticsUpdate,
		ConnectionID: string(conn),
		Data:         cmd.Data,
	})
}

// StartScreenShare takes the session's exclusive screen-share lock for
// the caller and announces it.
func (o *Orchestrator) StartScreenShare(conn core.ConnectionID, cmd protocol.ScreenShare) error {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		return err
	}
	if err := sess.StartScreenShare(conn); err != nil {
		return err
	}
	o.countEvent("screen_share_started")
	o.broadcast(sess.ID(), conn, protocol.ScreenShareEvent{
		Type:         protocol.TypeScreenShareStarted,
		ConnectionID: string(conn),
	})
	return nil
}

func (o *Orchestrator) StopScreenShare(conn core.ConnectionID, cmd protocol.ScreenShare) error {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		return err
	}
	_, holder := sess.ScreenShare()
	if err := sess.StopScreenShare(conn); err != nil {
		return err
	}
	if holder == "" {
		return nil
	}
	o.countEvent("screen_share_stopped")
	o.broadcast(sess.ID(), conn, protocol.ScreenShareEvent{
		Type:         protocol.TypeScreenShareStopped,
		ConnectionID: string(holder),
	})
	return nil
}

// JoinChat records the chatter's identity, replays the retained history
// to the requester once, and tells the room who arrived.
func (o *Orchestrator) JoinChat(conn core.ConnectionID, cmd protocol.JoinChat) error {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		return err
	}
	if o.Presence != nil && cmd.UserID != "" {
		o.Presence.Put(conn, domain.UserProfile{
			UserID:      cmd.UserID,
			UserName:    cmd.UserName,
			Avatar:      cmd.Avatar,
			ConnectedAt: time.Now(),
		})
	}
	history := sess.ChatHistory()
	if history == nil {
		history = []domain.ChatMessage{}
	}
	o.sendTo(conn, protocol.ChatHistory{
		Type:     protocol.TypeChatHistory,
		Messages: history,
	})
	o.broadcast(sess.ID(), conn, protocol.UserJoinedChat{
		Type:     protocol.TypeUserJoinedChat,
		UserID:   cmd.UserID,
		UserName: cmd.UserName,
		Avatar:   cmd.Avatar,
	})
	return nil
}

// PostChat appends under the FIFO bound and echoes to the whole room,
// sender included: the broadcast is the authoritative copy.
func (o *Orchestrator) PostChat(conn core.ConnectionID, cmd protocol.ChatMessage) error {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		return err
	}
	kind := cmd.Kind
	if kind == "" {
		kind = domain.ChatText
	}
	msg := domain.ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   cmd.UserID,
		SenderName: cmd.UserName,
		Avatar:     cmd.Avatar,
		Content:    cmd.Content,
		Kind:       kind,
		Timestamp:  time.Now(),
	}
	sess.AppendChat(msg)
	o.broadcast(sess.ID(), "", protocol.NewChatMessage{
		Type:    protocol.TypeNewChatMessage,
		Message: msg,
	})
	return nil
}

// Typing indicators are ephemeral: broadcast to all but sender, never
// persisted.
func (o *Orchestrator) Typing(conn core.ConnectionID, cmd protocol.Typing, start bool) {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		return
	}
	t := protocol.TypeUserStoppedTyping
	if start {
		t = protocol.TypeUserTyping
	}
	o.broadcast(sess.ID(), conn, protocol.TypingEvent{
		Type:     t,
		UserID:   cmd.UserID,
		UserName: cmd.UserName,
	})
}
