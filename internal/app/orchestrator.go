package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/deathboy20/stream-server/internal/auth"
	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/domain"
	"github.com/deathboy20/stream-server/internal/observability"
	"github.com/deathboy20/stream-server/internal/protocol"
	"github.com/deathboy20/stream-server/internal/store"
)

// Orchestrator handles every inbound command against session state owned
// by the Registry. The registry is the authority; the store is written
// best-effort so documents outlive the process.
type Orchestrator struct {
	Registry *Registry
	Store    store.Store
	Tokens   *auth.Minter
	Metrics  *observability.Metrics
	Presence *Presence

	ClientURL       string
	SessionTTL      time.Duration
	ChatHistory     int
	MaxParticipants int
}

func (o *Orchestrator) Connect(conn core.ConnectionID, sc core.SignalConnection) {
	o.Registry.BindConnection(conn, sc)
	o.gaugeConnections()
}

// Disconnect removes the participant from its session with full cascade:
// screen-share release, pending request cleanup, empty-session deletion.
func (o *Orchestrator) Disconnect(ctx context.Context, conn core.ConnectionID) {
	if sid, ok := o.Registry.SessionOf(conn); ok {
		if sess, ok := o.Registry.Get(sid); ok {
			o.leaveSession(ctx, conn, sess)
		}
	}
	for _, sess := range o.Registry.Sessions() {
		sess.DropPendingByConn(conn)
	}
	if o.Presence != nil {
		if profile, ok := o.Presence.Remove(conn); ok {
			o.broadcastAll(conn, protocol.PresenceEvent{
				Type:   protocol.TypeUserOffline,
				UserID: profile.UserID,
			})
		}
	}
	o.Registry.Unbind(conn)
	o.gaugeConnections()
}

// RegisterUser records a client profile and announces it server-wide,
// not just to one session room.
func (o *Orchestrator) RegisterUser(conn core.ConnectionID, cmd protocol.RegisterUser) {
	if o.Presence == nil {
		return
	}
	o.Presence.Put(conn, domain.UserProfile{
		UserID:      cmd.UserID,
		UserName:    cmd.UserName,
		Avatar:      cmd.Avatar,
		Email:       cmd.Email,
		ConnectedAt: time.Now(),
	})
	o.countEvent("user_registered")
	o.broadcastAll("", protocol.PresenceEvent{
		Type:     protocol.TypeUserOnline,
		UserID:   cmd.UserID,
		UserName: cmd.UserName,
		Avatar:   cmd.Avatar,
	})
}

// OnlineUsers lists registered profiles. Email is a private field and
// only included when the caller asked for the full directory.
func (o *Orchestrator) OnlineUsers(includeEmail bool) protocol.UserList {
	users := []domain.UserProfile{}
	if o.Presence != nil {
		users = o.Presence.Online()
	}
	if !includeEmail {
		for i := range users {
			users[i].Email = ""
		}
	}
	return protocol.UserList{Type: protocol.TypeUserList, Users: users}
}

func (o *Orchestrator) CreateSession(ctx context.Context, conn core.ConnectionID, cmd protocol.CreateSession) (protocol.SessionCreated, error) {
	if len(cmd.Title) > domain.MaxTitleLen {
		return protocol.SessionCreated{}, domain.ErrTitleTooLong
	}
	if sid, ok := o.Registry.SessionOf(conn); ok && sid != cmd.SessionID {
		if prev, ok := o.Registry.Get(sid); ok {
			o.leaveSession(ctx, conn, prev)
		}
	}

	now := time.Now()
	sess, created := o.Registry.Create(cmd.SessionID, conn, now, core.SessionOptions{
		Admission:       cmd.AdmissionMode,
		TTL:             o.SessionTTL,
		MaxParticipants: o.MaxParticipants,
		ChatLimit:       o.ChatHistory,
		Meta: domain.SessionMeta{
			Title:         cmd.Title,
			UserID:        cmd.UserID,
			Layout:        cmd.Layout,
			SourceCount:   cmd.SourceCount,
			SourceIDs:     cmd.SourceIDs,
			IsMultiSource: cmd.IsMultiSource,
		},
	})

	if _, err := sess.AddParticipant(conn, domain.RoleCreator, domain.DeviceWebcam, now); err != nil {
		return protocol.SessionCreated{}, err
	}
	o.Registry.SetSessionOf(conn, sess.ID())

	token, err := o.Tokens.Mint(sess.ID(), true)
	if err != nil {
		return protocol.SessionCreated{}, err
	}

	if created {
		o.persistSession(ctx, sess)
		o.countEvent("created")
		o.gaugeSessions()
	} else {
		log.Info().Str("module", "app.orchestrator").Str("session", sess.ID()).Msg("session already exists, reusing")
		o.persistParticipants(ctx, sess)
	}

	snap := sess.Snapshot()
	o.broadcast(sess.ID(), "", protocol.SessionUpdate{Type: protocol.TypeSessionUpdate, Session: &snap})

	return protocol.SessionCreated{
		Type:      protocol.TypeSessionCreated,
		SessionID: sess.ID(),
		Token:     token,
		ShareURL:  o.ClientURL + "/watch/" + sess.ID(),
	}, nil
}

// ProvisionSession creates a session without a signaling connection.
// The REST surface uses it: the host gets an id, token and share URL up
// front and attaches over the socket later.
func (o *Orchestrator) ProvisionSession(ctx context.Context, cmd protocol.CreateSession) (protocol.SessionCreated, error) {
	if len(cmd.Title) > domain.MaxTitleLen {
		return protocol.SessionCreated{}, domain.ErrTitleTooLong
	}
	now := time.Now()
	sess, created := o.Registry.Create(cmd.SessionID, "", now, core.SessionOptions{
		Admission:       cmd.AdmissionMode,
		TTL:             o.SessionTTL,
		MaxParticipants: o.MaxParticipants,
		ChatLimit:       o.ChatHistory,
		Meta: domain.SessionMeta{
			Title:         cmd.Title,
			UserID:        cmd.UserID,
			Layout:        cmd.Layout,
			SourceCount:   cmd.SourceCount,
			SourceIDs:     cmd.SourceIDs,
			IsMultiSource: cmd.IsMultiSource,
		},
	})

	token, err := o.Tokens.Mint(sess.ID(), true)
	if err != nil {
		return protocol.SessionCreated{}, err
	}

	if created {
		o.persistSession(ctx, sess)
		o.countEvent("created")
		o.gaugeSessions()
	}

	return protocol.SessionCreated{
		Type:      protocol.TypeSessionCreated,
		SessionID: sess.ID(),
		Token:     token,
		ShareURL:  o.ClientURL + "/watch/" + sess.ID(),
	}, nil
}

// JoinSession admits the connection into a session. On a moderated
// session a viewer gets a pending join request instead of a ledger
// entry; the participant appears only after the host approves.
func (o *Orchestrator) JoinSession(ctx context.Context, conn core.ConnectionID, cmd protocol.JoinSession) (*protocol.SessionJoined, *protocol.JoinPending, error) {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		return nil, nil, err
	}

	role := domain.RoleViewer
	if !cmd.Viewer() {
		// Creator authority requires a creator token.
		if cmd.Token == "" {
			return nil, nil, core.ErrUnauthorized
		}
		claims, err := o.Tokens.Verify(cmd.Token)
		if err != nil {
			return nil, nil, err
		}
		if claims.SessionID != sess.ID() {
			return nil, nil, core.ErrInvalidToken
		}
		if !claims.IsCreator {
			return nil, nil, core.ErrUnauthorized
		}
		role = domain.RoleCreator
	} else if cmd.Token != "" {
		claims, err := o.Tokens.Verify(cmd.Token)
		if err != nil {
			return nil, nil, err
		}
		if claims.SessionID != sess.ID() {
			return nil, nil, core.ErrInvalidToken
		}
	}

	if role == domain.RoleViewer && sess.Admission() == domain.AdmissionManual && !sess.HasParticipant(conn) {
		viewerID := cmd.ViewerID
		if viewerID == "" {
			viewerID = string(conn)
		}
		pending, err := o.requestJoin(conn, sess, viewerID, cmd.Name)
		if err != nil {
			return nil, nil, err
		}
		return nil, pending, nil
	}

	joined, err := o.admit(ctx, conn, sess, role, cmd.DeviceType)
	if err != nil {
		return nil, nil, err
	}
	return joined, nil, nil
}

// RequestJoin is the explicit admission request. On an open session it
// auto-admits; a pending request is only ever created for moderated
// sessions.
func (o *Orchestrator) RequestJoin(ctx context.Context, conn core.ConnectionID, cmd protocol.JoinRequest) error {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		return err
	}
	if sess.Admission() == domain.AdmissionAuto {
		joined, err := o.admit(ctx, conn, sess, domain.RoleViewer, domain.DeviceWebcam)
		if err != nil {
			return err
		}
		o.sendTo(conn, joined)
		return nil
	}
	pending, err := o.requestJoin(conn, sess, cmd.ViewerID, cmd.Name)
	if err != nil {
		return err
	}
	o.sendTo(conn, pending)
	return nil
}

func (o *Orchestrator) requestJoin(conn core.ConnectionID, sess *core.Session, viewerID, name string) (*protocol.JoinPending, error) {
	if name == "" {
		name = viewerID
	}
	if err := domain.ValidateDisplayName(name); err != nil {
		return nil, err
	}
	if err := sess.AddPending(domain.PendingJoinRequest{
		ViewerID:     viewerID,
		DisplayName:  name,
		ConnectionID: string(conn),
		RequestedAt:  time.Now(),
	}); err != nil {
		return nil, err
	}
	o.countEvent("join_requested")

	if creator := sess.Creator(); creator != "" {
		o.sendTo(creator, protocol.PendingJoin{
			Type:      protocol.TypePendingJoin,
			SessionID: sess.ID(),
			ViewerID:  viewerID,
			Name:      name,
		})
	}
	return &protocol.JoinPending{
		Type:      protocol.TypeJoinPending,
		SessionID: sess.ID(),
		ViewerID:  viewerID,
	}, nil
}

// Approve admits a pending viewer. Only the session creator may decide;
// anyone else gets an explicit ErrUnauthorized back.
func (o *Orchestrator) Approve(ctx context.Context, conn core.ConnectionID, cmd protocol.AdmissionDecision) error {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		return err
	}
	if !sess.IsCreator(conn) {
		return core.ErrUnauthorized
	}
	req, ok := sess.TakePending(cmd.ViewerID)
	if !ok {
		return core.ErrNotFound
	}

	viewerConn := core.ConnectionID(req.ConnectionID)
	joined, err := o.admit(ctx, viewerConn, sess, domain.RoleViewer, domain.DeviceWebcam)
	if err != nil {
		return err
	}
	o.countEvent("join_approved")

	o.sendTo(viewerConn, protocol.JoinApproved{
		Type:      protocol.TypeJoinApproved,
		SessionID: sess.ID(),
		ViewerID:  cmd.ViewerID,
		Session:   joined.Session,
	})
	o.broadcast(sess.ID(), viewerConn, protocol.ViewerConnected{
		Type:      protocol.TypeViewerConnected,
		SessionID: sess.ID(),
		ViewerID:  cmd.ViewerID,
	})
	return nil
}

// Reject drops the pending request and notifies only the viewer. The
// decision is terminal for this request; a fresh join-request starts
// over.
func (o *Orchestrator) Reject(conn core.ConnectionID, cmd protocol.AdmissionDecision) error {
	sess, err := o.Registry.Resolve(cmd.SessionID)
	if err != nil {
		return err
	}
	if !sess.IsCreator(conn) {
		return core.ErrUnauthorized
	}
	req, ok := sess.TakePending(cmd.ViewerID)
	if !ok {
		return core.ErrNotFound
	}
	o.countEvent("join_rejected")

	o.sendTo(core.ConnectionID(req.ConnectionID), protocol.JoinRejected{
		Type:      protocol.TypeJoinRejected,
		SessionID: sess.ID(),
		ViewerID:  cmd.ViewerID,
	})
	return nil
}

func (o *Orchestrator) admit(ctx context.Context, conn core.ConnectionID, sess *core.Session, role domain.Role, device domain.DeviceType) (*protocol.SessionJoined, error) {
	if sid, ok := o.Registry.SessionOf(conn); ok && sid != sess.ID() {
		if prev, ok := o.Registry.Get(sid); ok {
			o.leaveSession(ctx, conn, prev)
		}
	}

	participants, err := sess.AddParticipant(conn, role, device, time.Now())
	if err != nil {
		return nil, err
	}
	o.Registry.SetSessionOf(conn, sess.ID())
	o.persistParticipants(ctx, sess)
	o.countEvent("joined")

	o.broadcast(sess.ID(), conn, protocol.ParticipantJoined{
		Type:             protocol.TypeParticipantJoined,
		ConnectionID:     string(conn),
		IsViewer:         role == domain.RoleViewer,
		DeviceType:       device,
		ParticipantCount: sess.ParticipantCount(),
	})

	// A returning host missed any requests raised while it was away,
	// so the pending queue is replayed on admission.
	if role == domain.RoleCreator {
		for _, req := range sess.PendingRequests() {
			o.sendTo(conn, protocol.PendingJoin{
				Type:      protocol.TypePendingJoin,
				SessionID: sess.ID(),
				ViewerID:  req.ViewerID,
				Name:      req.DisplayName,
			})
		}
	}

	active, holder := sess.ScreenShare()
	return &protocol.SessionJoined{
		Type:              protocol.TypeSessionJoined,
		SessionID:         sess.ID(),
		Participants:      participants,
		ScreenShareActive: active,
		ScreenShareHolder: string(holder),
		Session:           sess.Snapshot(),
	}, nil
}

func (o *Orchestrator) LeaveSession(ctx context.Context, conn core.ConnectionID, cmd protocol.LeaveSession) {
	sid := cmd.SessionID
	if sid == "" {
		sid, _ = o.Registry.SessionOf(conn)
	}
	if sess, ok := o.Registry.Get(sid); ok {
		o.leaveSession(ctx, conn, sess)
	}
}

func (o *Orchestrator) leaveSession(ctx context.Context, conn core.ConnectionID, sess *core.Session) {
	if !sess.HasParticipant(conn) {
		o.Registry.SetSessionOf(conn, "")
		return
	}
	remaining, releasedShare := sess.RemoveParticipant(conn)
	o.Registry.SetSessionOf(conn, "")
	o.countEvent("left")

	if releasedShare {
		o.broadcast(sess.ID(), conn, protocol.ScreenShareEvent{
			Type:         protocol.TypeScreenShareStopped,
			ConnectionID: string(conn),
		})
	}
	o.broadcast(sess.ID(), conn, protocol.ParticipantLeft{
		Type:             protocol.TypeParticipantLeft,
		ConnectionID:     string(conn),
		ParticipantCount: remaining,
	})

	// Empty sessions are not retained: the participant count is the
	// single trigger, checked right after the removal.
	if remaining == 0 {
		o.Registry.Delete(sess.ID())
		o.deleteDoc(ctx, sess.ID())
		o.countEvent("emptied")
		o.gaugeSessions()
		return
	}
	o.persistParticipants(ctx, sess)
}

func (o *Orchestrator) UpdateSession(ctx context.Context, conn core.ConnectionID, cmd protocol.UpdateSession) error {
	sess, err := o.sessionFor(conn, cmd.SessionID)
	if err != nil {
		return err
	}
	if !sess.IsCreator(conn) {
		return core.ErrUnauthorized
	}
	if err := sess.UpdateMeta(cmd.Updates, time.Now()); err != nil {
		return err
	}
	o.persistSession(ctx, sess)

	snap := sess.Snapshot()
	o.broadcast(sess.ID(), "", protocol.SessionUpdate{Type: protocol.TypeSessionUpdate, Session: &snap})
	return nil
}

func (o *Orchestrator) DeleteSession(ctx context.Context, conn core.ConnectionID, cmd protocol.DeleteSession) error {
	sess, err := o.sessionFor(conn, cmd.SessionID)
	if err != nil {
		return err
	}
	if !sess.IsCreator(conn) {
		return core.ErrUnauthorized
	}

	o.broadcast(sess.ID(), "", protocol.SessionUpdate{Type: protocol.TypeSessionUpdate, Session: nil})
	o.broadcast(sess.ID(), "", protocol.SessionDeleted{Type: protocol.TypeSessionDeleted, SessionID: sess.ID()})

	o.Registry.Delete(sess.ID())
	o.deleteDoc(ctx, sess.ID())
	o.countEvent("deleted")
	o.gaugeSessions()
	return nil
}

func (o *Orchestrator) CheckSession(cmd protocol.CheckSession) protocol.SessionExists {
	_, err := o.Registry.Resolve(cmd.SessionID)
	return protocol.SessionExists{
		Type:      protocol.TypeSessionExists,
		SessionID: cmd.SessionID,
		Exists:    err == nil,
	}
}

func (o *Orchestrator) UserStreams(cmd protocol.GetUserStreams) protocol.UserStreams {
	sessions := o.Registry.SessionsOwnedBy(cmd.UserID)
	if sessions == nil {
		sessions = []string{}
	}
	return protocol.UserStreams{
		Type:     protocol.TypeUserStreams,
		UserID:   cmd.UserID,
		Sessions: sessions,
	}
}

// ExpireSessions notifies and removes every session past its TTL.
func (o *Orchestrator) ExpireSessions(ctx context.Context, now time.Time) int {
	expired := o.Registry.Expired(now)
	for _, sess := range expired {
		o.broadcast(sess.ID(), "", protocol.SessionExpired{
			Type:      protocol.TypeSessionExpired,
			SessionID: sess.ID(),
		})
		o.Registry.Delete(sess.ID())
		o.deleteDoc(ctx, sess.ID())
		o.countEvent("expired")
		log.Info().Str("module", "app.orchestrator").Str("session", sess.ID()).Msg("expired session cleaned up")
	}
	if len(expired) > 0 {
		o.gaugeSessions()
	}
	return len(expired)
}

func (o *Orchestrator) sessionFor(conn core.ConnectionID, explicit string) (*core.Session, error) {
	if explicit != "" {
		return o.Registry.Resolve(explicit)
	}
	sid, ok := o.Registry.SessionOf(conn)
	if !ok {
		return nil, core.ErrNotFound
	}
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return nil, core.ErrNotFound
	}
	return sess, nil
}

// sendTo is the single delivery primitive: a missing or slow peer is a
// logged no-op, never a fatal error.
func (o *Orchestrator) sendTo(conn core.ConnectionID, v any) bool {
	sc, ok := o.Registry.Connection(conn)
	if !ok {
		log.Warn().Str("module", "app.orchestrator").Str("conn", string(conn)).Msg("send to unknown connection")
		o.countDrop("no_connection")
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orchestrator").Msg("marshal outbound")
		return false
	}
	if err := sc.TrySend(core.Frame(b)); err != nil {
		log.Warn().Err(err).Str("module", "app.orchestrator").Str("conn", string(conn)).Msg("send failed")
		o.countDrop("backpressure")
		return false
	}
	return true
}

func (o *Orchestrator) broadcast(sessionID string, exclude core.ConnectionID, v any) {
	for _, conn := range o.Registry.ConnectionsInSession(sessionID) {
		if conn == exclude {
			continue
		}
		o.sendTo(conn, v)
	}
}

// broadcastAll fans out to every bound connection on the server.
func (o *Orchestrator) broadcastAll(exclude core.ConnectionID, v any) {
	for _, conn := range o.Registry.ConnectionIDs() {
		if conn == exclude {
			continue
		}
		o.sendTo(conn, v)
	}
}

func (o *Orchestrator) persistSession(ctx context.Context, sess *core.Session) {
	if o.Store == nil {
		return
	}
	snap := sess.Snapshot()
	doc := store.SessionDoc{
		ID:            snap.SessionID,
		HostID:        string(sess.Creator()),
		Title:         snap.Title,
		AdmissionMode: string(snap.AdmissionMode),
		IsActive:      snap.IsActive,
		CreatedAt:     snap.CreatedAt,
		ExpiresAt:     sess.ExpiresAt(),
		Participants:  participantDocs(sess),
	}
	if err := o.Store.SaveSession(ctx, doc); err != nil {
		log.Warn().Err(err).Str("module", "app.orchestrator").Str("session", sess.ID()).Msg("store save failed")
	}
}

func (o *Orchestrator) persistParticipants(ctx context.Context, sess *core.Session) {
	if o.Store == nil {
		return
	}
	if err := o.Store.UpdateParticipants(ctx, sess.ID(), participantDocs(sess)); err != nil {
		log.Warn().Err(err).Str("module", "app.orchestrator").Str("session", sess.ID()).Msg("store participant update failed")
	}
}

func (o *Orchestrator) deleteDoc(ctx context.Context, id string) {
	if o.Store == nil {
		return
	}
	if err := o.Store.DeleteSession(ctx, id); err != nil {
		log.Warn().Err(err).Str("module", "app.orchestrator").Str("session", id).Msg("store delete failed")
	}
}

func participantDocs(sess *core.Session) []store.ParticipantDoc {
	parts := sess.Participants()
	docs := make([]store.ParticipantDoc, 0, len(parts))
	for _, p := range parts {
		docs = append(docs, store.ParticipantDoc{
			ConnectionID: p.ConnectionID,
			Role:         string(p.Role),
			DeviceType:   string(p.DeviceType),
			JoinedAt:     p.JoinedAt,
		})
	}
	return docs
}

func (o *Orchestrator) countEvent(event string) {
	if o.Metrics != nil {
		o.Metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (o *Orchestrator) countDrop(reason string) {
	if o.Metrics != nil {
		o.Metrics.RelayDrops.WithLabelValues(reason).Inc()
	}
}

func (o *Orchestrator) gaugeSessions() {
	if o.Metrics != nil {
		o.Metrics.ActiveSessions.Set(float64(o.Registry.SessionCount()))
	}
}

func (o *Orchestrator) gaugeConnections() {
	if o.Metrics != nil {
		o.Metrics.Connections.Set(float64(o.Registry.ConnectionCount()))
	}
}
