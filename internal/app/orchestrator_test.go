package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/deathboy20/stream-server/internal/auth"
	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/domain"
	"github.com/deathboy20/stream-server/internal/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) count(typ protocol.MessageType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.frames {
		var env protocol.Envelope
		if json.Unmarshal(fr, &env) == nil && env.Type == typ {
			n++
		}
	}
	return n
}

func (f *fakeConn) last(t *testing.T, typ protocol.MessageType) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		var env protocol.Envelope
		if json.Unmarshal(f.frames[i], &env) == nil && env.Type == typ {
			var m map[string]any
			if err := json.Unmarshal(f.frames[i], &m); err != nil {
				t.Fatalf("decode %s frame: %v", typ, err)
			}
			return m
		}
	}
	t.Fatalf("no %s frame received", typ)
	return nil
}

func metaFor(userID string) domain.SessionMeta {
	return domain.SessionMeta{UserID: userID}
}

func boolPtr(b bool) *bool { return &b }

func newTestOrchestrator() *Orchestrator {
	return &Orchestrator{
		Registry:    NewRegistry(),
		Tokens:      auth.NewMinter("test-secret"),
		Presence:    NewPresence(),
		ClientURL:   "http://client",
		SessionTTL:  24 * time.Hour,
		ChatHistory: 100,
	}
}

func connect(o *Orchestrator, id string) *fakeConn {
	fc := &fakeConn{}
	o.Connect(core.ConnectionID(id), fc)
	return fc
}

func createSession(t *testing.T, o *Orchestrator, conn string, mode domain.AdmissionMode) protocol.SessionCreated {
	t.Helper()
	created, err := o.CreateSession(context.Background(), core.ConnectionID(conn), protocol.CreateSession{
		Type:          protocol.TypeCreateSession,
		AdmissionMode: mode,
		Title:         "Test",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return created
}

func TestCreateSessionIssuesTokenAndShareURL(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")

	created := createSession(t, o, "host", domain.AdmissionAuto)
	if created.SessionID == "" {
		t.Fatal("empty session id")
	}
	if created.Token == "" {
		t.Fatal("empty token")
	}
	if !strings.HasPrefix(created.ShareURL, "http://client/watch/") {
		t.Fatalf("share url = %q", created.ShareURL)
	}

	claims, err := o.Tokens.Verify(created.Token)
	if err != nil {
		t.Fatalf("verify minted token: %v", err)
	}
	if claims.SessionID != created.SessionID || !claims.IsCreator {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestJoinAutoAdmitsImmediately(t *testing.T) {
	o := newTestOrchestrator()
	host := connect(o, "host")
	connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)

	joined, pending, err := o.JoinSession(context.Background(), "viewer", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if pending != nil {
		t.Fatal("open session produced a pending request")
	}
	if len(joined.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(joined.Participants))
	}
	if host.count(protocol.TypeParticipantJoined) != 1 {
		t.Fatal("host missed participant-joined")
	}
}

func TestJoinShortID(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)

	short := strings.ReplaceAll(created.SessionID, "-", "")[:8]
	joined, _, err := o.JoinSession(context.Background(), "viewer", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: short,
	})
	if err != nil {
		t.Fatalf("join by short id: %v", err)
	}
	if joined.SessionID != created.SessionID {
		t.Fatalf("joined %q, want %q", joined.SessionID, created.SessionID)
	}
}

func TestJoinManualGoesPending(t *testing.T) {
	o := newTestOrchestrator()
	host := connect(o, "host")
	connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionManual)

	joined, pending, err := o.JoinSession(context.Background(), "viewer", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		ViewerID:  "u1",
		Name:      "Ann",
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined != nil {
		t.Fatal("moderated session admitted without approval")
	}
	if pending == nil || pending.ViewerID != "u1" {
		t.Fatalf("pending = %+v", pending)
	}

	got := host.last(t, protocol.TypePendingJoin)
	if got["viewerId"] != "u1" || got["name"] != "Ann" {
		t.Fatalf("pending-join event = %v", got)
	}
}

func TestApproveAdmitsViewer(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	viewer := connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionManual)

	_, _, err := o.JoinSession(context.Background(), "viewer", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		ViewerID:  "u1",
		Name:      "Ann",
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := o.Approve(context.Background(), "host", protocol.AdmissionDecision{
		Type:      protocol.TypeApproveJoin,
		SessionID: created.SessionID,
		ViewerID:  "u1",
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if viewer.count(protocol.TypeJoinApproved) != 1 {
		t.Fatal("viewer missed join-approved")
	}
	sess, _ := o.Registry.Get(created.SessionID)
	if !sess.HasParticipant("viewer") {
		t.Fatal("viewer not admitted")
	}
}

func TestApproveRequiresHost(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	connect(o, "viewer")
	connect(o, "impostor")
	created := createSession(t, o, "host", domain.AdmissionManual)

	o.JoinSession(context.Background(), "viewer", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		ViewerID:  "u1",
	})

	err := o.Approve(context.Background(), "impostor", protocol.AdmissionDecision{
		Type:      protocol.TypeApproveJoin,
		SessionID: created.SessionID,
		ViewerID:  "u1",
	})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("impostor approve: err = %v, want ErrUnauthorized", err)
	}
	err = o.Reject("impostor", protocol.AdmissionDecision{
		Type:      protocol.TypeRejectJoin,
		SessionID: created.SessionID,
		ViewerID:  "u1",
	})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("impostor reject: err = %v, want ErrUnauthorized", err)
	}
}

func TestRejectNotifiesOnlyViewer(t *testing.T) {
	o := newTestOrchestrator()
	host := connect(o, "host")
	viewer := connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionManual)

	o.JoinSession(context.Background(), "viewer", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		ViewerID:  "u1",
	})

	if err := o.Reject("host", protocol.AdmissionDecision{
		Type:      protocol.TypeRejectJoin,
		SessionID: created.SessionID,
		ViewerID:  "u1",
	}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if viewer.count(protocol.TypeJoinRejected) != 1 {
		t.Fatal("viewer missed join-rejected")
	}
	if host.count(protocol.TypeJoinRejected) != 0 {
		t.Fatal("reject leaked to host")
	}
	sess, _ := o.Registry.Get(created.SessionID)
	if sess.HasParticipant("viewer") {
		t.Fatal("rejected viewer in ledger")
	}

	// The decision is terminal per request; a fresh request starts over.
	err := o.Approve(context.Background(), "host", protocol.AdmissionDecision{
		Type:      protocol.TypeApproveJoin,
		SessionID: created.SessionID,
		ViewerID:  "u1",
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("approve after reject: err = %v, want ErrNotFound", err)
	}
	if _, pending, err := o.JoinSession(context.Background(), "viewer", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		ViewerID:  "u1",
	}); err != nil || pending == nil {
		t.Fatalf("re-request after reject = (%v, %v)", pending, err)
	}
}

func TestCreatorRejoinRequiresToken(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	connect(o, "host2")
	created := createSession(t, o, "host", domain.AdmissionAuto)

	_, _, err := o.JoinSession(context.Background(), "host2", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		IsViewer:  boolPtr(false),
	})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("tokenless creator join: err = %v, want ErrUnauthorized", err)
	}

	other, _ := o.Tokens.Mint("ffff0000-1111-2222-3333-444455556666", true)
	_, _, err = o.JoinSession(context.Background(), "host2", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		IsViewer:  boolPtr(false),
		Token:     other,
	})
	if !errors.Is(err, core.ErrInvalidToken) {
		t.Fatalf("cross-session token: err = %v, want ErrInvalidToken", err)
	}

	joined, _, err := o.JoinSession(context.Background(), "host2", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		IsViewer:  boolPtr(false),
		Token:     created.Token,
	})
	if err != nil {
		t.Fatalf("creator rejoin: %v", err)
	}
	if joined == nil {
		t.Fatal("creator rejoin went pending")
	}
	sess, _ := o.Registry.Get(created.SessionID)
	if !sess.IsCreator("host2") {
		t.Fatal("host authority not transferred to rejoining connection")
	}
}

func TestLastLeaveDeletesSession(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	o.JoinSession(context.Background(), "viewer", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
	})

	o.LeaveSession(context.Background(), "viewer", protocol.LeaveSession{Type: protocol.TypeLeaveSession, SessionID: created.SessionID})
	if _, ok := o.Registry.Get(created.SessionID); !ok {
		t.Fatal("session deleted while host still present")
	}

	o.LeaveSession(context.Background(), "host", protocol.LeaveSession{Type: protocol.TypeLeaveSession, SessionID: created.SessionID})
	if _, ok := o.Registry.Get(created.SessionID); ok {
		t.Fatal("empty session retained")
	}
}

func TestDisconnectCascades(t *testing.T) {
	o := newTestOrchestrator()
	host := connect(o, "host")
	connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	o.JoinSession(context.Background(), "viewer", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
	})
	if err := o.StartScreenShare("viewer", protocol.ScreenShare{Type: protocol.TypeStartScreenShare, SessionID: created.SessionID}); err != nil {
		t.Fatalf("start share: %v", err)
	}

	o.Disconnect(context.Background(), "viewer")

	if host.count(protocol.TypeScreenShareStopped) != 1 {
		t.Fatal("host missed screen-share release")
	}
	if host.count(protocol.TypeParticipantLeft) != 1 {
		t.Fatal("host missed participant-left")
	}
	sess, _ := o.Registry.Get(created.SessionID)
	if active, _ := sess.ScreenShare(); active {
		t.Fatal("share lock survived disconnect")
	}
}

func TestScreenShareMutualExclusion(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	connect(o, "v1")
	v2 := connect(o, "v2")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	ctx := context.Background()
	o.JoinSession(ctx, "v1", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})
	o.JoinSession(ctx, "v2", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})

	start := protocol.ScreenShare{Type: protocol.TypeStartScreenShare, SessionID: created.SessionID}
	if err := o.StartScreenShare("v1", start); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := o.StartScreenShare("v2", start); !errors.Is(err, core.ErrResourceBusy) {
		t.Fatalf("second start: err = %v, want ErrResourceBusy", err)
	}
	if v2.count(protocol.TypeScreenShareStarted) != 1 {
		t.Fatal("v2 missed screen-share-started")
	}

	stop := protocol.ScreenShare{Type: protocol.TypeStopScreenShare, SessionID: created.SessionID}
	if err := o.StopScreenShare("v2", stop); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("bystander stop: err = %v, want ErrUnauthorized", err)
	}
	if err := o.StopScreenShare("host", stop); err != nil {
		t.Fatalf("host force-stop: %v", err)
	}
	got := v2.last(t, protocol.TypeScreenShareStopped)
	if got["connectionId"] != "v1" {
		t.Fatalf("stopped holder = %v, want v1", got["connectionId"])
	}
}

func TestViewerReadyReplaysCachedOffer(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	viewer := connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	ctx := context.Background()

	o.BroadcastOffer("host", protocol.WebRTCOffer{
		Type:      protocol.TypeWebRTCOffer,
		SessionID: created.SessionID,
		Offer:     webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})

	// The viewer joins after the offer was cached; nothing is pushed
	// until it declares readiness.
	o.JoinSession(ctx, "viewer", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})
	if viewer.count(protocol.TypeWebRTCOffer) != 0 {
		t.Fatal("offer pushed before viewer-ready")
	}

	ready := protocol.ViewerReady{Type: protocol.TypeViewerReady, SessionID: created.SessionID, ViewerID: "u1"}
	o.ViewerReady("viewer", ready)
	if viewer.count(protocol.TypeWebRTCOffer) != 1 {
		t.Fatal("cached offer not replayed")
	}

	// Readiness is idempotent within one join.
	o.ViewerReady("viewer", ready)
	if viewer.count(protocol.TypeWebRTCOffer) != 1 {
		t.Fatal("offer replayed twice for one join")
	}
}

func TestSessionAnswerFallsBackToBroadcast(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	connect(o, "v1")
	v2 := connect(o, "v2")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	ctx := context.Background()
	o.JoinSession(ctx, "v1", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})
	o.JoinSession(ctx, "v2", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})

	answer := protocol.WebRTCAnswer{
		Type:      protocol.TypeWebRTCAnswer,
		SessionID: created.SessionID,
		Answer:    webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"},
	}

	// With a live creator the answer goes there alone.
	o.SessionAnswer("v1", answer)
	if v2.count(protocol.TypeWebRTCAnswer) != 0 {
		t.Fatal("directed answer leaked to other viewers")
	}

	// Creator gone: degrade to session-wide broadcast.
	sess, _ := o.Registry.Get(created.SessionID)
	sess.RemoveParticipant("host")
	o.SessionAnswer("v1", answer)
	if v2.count(protocol.TypeWebRTCAnswer) != 1 {
		t.Fatal("fallback broadcast missed v2")
	}
}

func TestChatAppendAndReplay(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	viewer := connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	ctx := context.Background()
	o.JoinSession(ctx, "viewer", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})

	if err := o.PostChat("host", protocol.ChatMessage{
		Type:      protocol.TypeChatMessage,
		SessionID: created.SessionID,
		UserID:    "u-host",
		UserName:  "Host",
		Content:   "hello",
	}); err != nil {
		t.Fatalf("post chat: %v", err)
	}

	// Broadcast includes the sender; the echo is the authoritative copy.
	if viewer.count(protocol.TypeNewChatMessage) != 1 {
		t.Fatal("viewer missed chat broadcast")
	}

	if err := o.JoinChat("viewer", protocol.JoinChat{
		Type:      protocol.TypeJoinChat,
		SessionID: created.SessionID,
		UserID:    "u-view",
	}); err != nil {
		t.Fatalf("join chat: %v", err)
	}
	history := viewer.last(t, protocol.TypeChatHistory)
	msgs, ok := history["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("replayed history = %v", history["messages"])
	}
}

func TestUpdateSessionRequiresHost(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	viewer := connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	ctx := context.Background()
	o.JoinSession(ctx, "viewer", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})

	title := "Renamed"
	update := protocol.UpdateSession{
		Type:      protocol.TypeUpdateSession,
		SessionID: created.SessionID,
		Updates:   domain.MetaUpdate{Title: &title},
	}
	if err := o.UpdateSession(ctx, "viewer", update); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("viewer update: err = %v, want ErrUnauthorized", err)
	}
	if err := o.UpdateSession(ctx, "host", update); err != nil {
		t.Fatalf("host update: %v", err)
	}

	got := viewer.last(t, protocol.TypeSessionUpdate)
	sessMap, ok := got["session"].(map[string]any)
	if !ok || sessMap["title"] != "Renamed" {
		t.Fatalf("session-update = %v", got)
	}
}

func TestDeleteSessionRequiresHost(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	viewer := connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	ctx := context.Background()
	o.JoinSession(ctx, "viewer", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})

	del := protocol.DeleteSession{Type: protocol.TypeDeleteSession, SessionID: created.SessionID}
	if err := o.DeleteSession(ctx, "viewer", del); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("viewer delete: err = %v, want ErrUnauthorized", err)
	}
	if err := o.DeleteSession(ctx, "host", del); err != nil {
		t.Fatalf("host delete: %v", err)
	}

	if viewer.count(protocol.TypeSessionDeleted) != 1 {
		t.Fatal("viewer missed session-deleted")
	}
	got := viewer.last(t, protocol.TypeSessionUpdate)
	if got["session"] != nil {
		t.Fatalf("final session-update carries %v, want null", got["session"])
	}
	if _, ok := o.Registry.Get(created.SessionID); ok {
		t.Fatal("session survived delete")
	}
}

func TestExpireSessionsNotifies(t *testing.T) {
	o := newTestOrchestrator()
	o.SessionTTL = time.Hour
	host := connect(o, "host")
	created := createSession(t, o, "host", domain.AdmissionAuto)

	if n := o.ExpireSessions(context.Background(), time.Now()); n != 0 {
		t.Fatalf("premature expiry count = %d", n)
	}
	if n := o.ExpireSessions(context.Background(), time.Now().Add(2*time.Hour)); n != 1 {
		t.Fatalf("expiry count = %d, want 1", n)
	}
	if host.count(protocol.TypeSessionExpired) != 1 {
		t.Fatal("host missed session-expired")
	}
	if _, ok := o.Registry.Get(created.SessionID); ok {
		t.Fatal("expired session retained")
	}
}

func TestCheckSessionAndUserStreams(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	created, err := o.CreateSession(context.Background(), "host", protocol.CreateSession{
		Type:   protocol.TypeCreateSession,
		UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	exists := o.CheckSession(protocol.CheckSession{Type: protocol.TypeCheckSession, SessionID: created.SessionID})
	if !exists.Exists {
		t.Fatal("live session reported missing")
	}
	missing := o.CheckSession(protocol.CheckSession{Type: protocol.TypeCheckSession, SessionID: "ffffffff-ffff-ffff-ffff-ffffffffffff"})
	if missing.Exists {
		t.Fatal("unknown session reported live")
	}

	streams := o.UserStreams(protocol.GetUserStreams{Type: protocol.TypeGetUserStreams, UserID: "user-1"})
	if len(streams.Sessions) != 1 || streams.Sessions[0] != created.SessionID {
		t.Fatalf("user streams = %v", streams.Sessions)
	}
	empty := o.UserStreams(protocol.GetUserStreams{Type: protocol.TypeGetUserStreams, UserID: "user-2"})
	if len(empty.Sessions) != 0 {
		t.Fatalf("stranger streams = %v", empty.Sessions)
	}
}

func TestProvisionSession(t *testing.T) {
	o := newTestOrchestrator()
	created, err := o.ProvisionSession(context.Background(), protocol.CreateSession{
		Type:  protocol.TypeCreateSession,
		Title: "REST",
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	sess, ok := o.Registry.Get(created.SessionID)
	if !ok {
		t.Fatal("provisioned session not registered")
	}
	if sess.ParticipantCount() != 0 {
		t.Fatal("provisioned session has phantom participants")
	}
	claims, err := o.Tokens.Verify(created.Token)
	if err != nil || !claims.IsCreator {
		t.Fatalf("claims = %+v, err = %v", claims, err)
	}
}

func TestJoinManualDefaultsDisplayName(t *testing.T) {
	o := newTestOrchestrator()
	host := connect(o, "host")
	connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionManual)

	// No name on the request: the viewer id stands in so the host
	// still sees an identity in the pending list.
	_, pending, err := o.JoinSession(context.Background(), "viewer", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		ViewerID:  "u1",
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if pending == nil {
		t.Fatal("expected pending")
	}
	got := host.last(t, protocol.TypePendingJoin)
	if got["name"] != "u1" {
		t.Fatalf("pending name = %v, want u1", got["name"])
	}

	// An oversize name is rejected before a request is queued.
	_, _, err = o.JoinSession(context.Background(), "viewer", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		ViewerID:  "u2",
		Name:      strings.Repeat("x", domain.MaxNameLen+1),
	})
	if !errors.Is(err, domain.ErrNameTooLong) {
		t.Fatalf("oversize name: err = %v, want ErrNameTooLong", err)
	}
	sess, _ := o.Registry.Get(created.SessionID)
	if len(sess.PendingRequests()) != 1 {
		t.Fatalf("pending count = %d, want 1", len(sess.PendingRequests()))
	}
}

func TestBroadcastOfferNotReplayedToRecipients(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	viewer := connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	ctx := context.Background()
	o.JoinSession(ctx, "viewer", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})

	// The viewer is in the room when the host broadcasts, so that
	// delivery is its one copy.
	o.BroadcastOffer("host", protocol.WebRTCOffer{
		Type:      protocol.TypeWebRTCOffer,
		SessionID: created.SessionID,
		Offer:     webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})
	if viewer.count(protocol.TypeWebRTCOffer) != 1 {
		t.Fatal("viewer missed the live offer broadcast")
	}

	o.ViewerReady("viewer", protocol.ViewerReady{Type: protocol.TypeViewerReady, SessionID: created.SessionID, ViewerID: "u1"})
	if viewer.count(protocol.TypeWebRTCOffer) != 1 {
		t.Fatal("viewer-ready duplicated the already-delivered offer")
	}
}

func TestCreatorRejoinReplaysPendingRequests(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "host")
	connect(o, "v1")
	connect(o, "v2")
	created := createSession(t, o, "host", domain.AdmissionManual)
	ctx := context.Background()

	// v1 admitted keeps the session alive through the host's absence.
	if err := o.Approve(ctx, "host", mustPend(t, o, ctx, created.SessionID, "v1", "u1")); err != nil {
		t.Fatalf("approve v1: %v", err)
	}
	o.Disconnect(ctx, "host")

	// v2 asks while no host is connected.
	if _, pending, err := o.JoinSession(ctx, "v2", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		ViewerID:  "u2",
		Name:      "Bea",
	}); err != nil || pending == nil {
		t.Fatalf("v2 request = (%v, %v)", pending, err)
	}

	host2 := connect(o, "host2")
	if _, _, err := o.JoinSession(ctx, "host2", protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: created.SessionID,
		IsViewer:  boolPtr(false),
		Token:     created.Token,
	}); err != nil {
		t.Fatalf("host rejoin: %v", err)
	}

	got := host2.last(t, protocol.TypePendingJoin)
	if got["viewerId"] != "u2" || got["name"] != "Bea" {
		t.Fatalf("replayed pending = %v", got)
	}
	if err := o.Approve(ctx, "host2", protocol.AdmissionDecision{
		Type:      protocol.TypeApproveJoin,
		SessionID: created.SessionID,
		ViewerID:  "u2",
	}); err != nil {
		t.Fatalf("approve replayed request: %v", err)
	}
}

// mustPend raises a pending join for viewerID and returns the matching
// admission decision.
func mustPend(t *testing.T, o *Orchestrator, ctx context.Context, sessionID, conn, viewerID string) protocol.AdmissionDecision {
	t.Helper()
	if _, pending, err := o.JoinSession(ctx, core.ConnectionID(conn), protocol.JoinSession{
		Type:      protocol.TypeJoinSession,
		SessionID: sessionID,
		ViewerID:  viewerID,
	}); err != nil || pending == nil {
		t.Fatalf("pend %s = (%v, %v)", viewerID, pending, err)
	}
	return protocol.AdmissionDecision{
		Type:      protocol.TypeApproveJoin,
		SessionID: sessionID,
		ViewerID:  viewerID,
	}
}

func TestStreamEventsBroadcastToRoom(t *testing.T) {
	o := newTestOrchestrator()
	host := connect(o, "host")
	viewer := connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	ctx := context.Background()
	o.JoinSession(ctx, "viewer", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})

	o.RelayStream("host", protocol.Stream{Type: protocol.TypeStreamStarted, SessionID: created.SessionID, StreamType: "screen"})
	got := viewer.last(t, protocol.TypeStreamStarted)
	if got["connectionId"] != "host" || got["streamType"] != "screen" {
		t.Fatalf("stream-started = %v", got)
	}
	if host.count(protocol.TypeStreamStarted) != 0 {
		t.Fatal("stream-started echoed to sender")
	}

	// Missing streamType falls back to camera.
	o.RelayStream("host", protocol.Stream{Type: protocol.TypeStreamStarted, SessionID: created.SessionID})
	if got := viewer.last(t, protocol.TypeStreamStarted); got["streamType"] != "camera" {
		t.Fatalf("default streamType = %v", got["streamType"])
	}

	o.RelayStream("host", protocol.Stream{Type: protocol.TypeStreamStopped, SessionID: created.SessionID})
	got = viewer.last(t, protocol.TypeStreamStopped)
	if got["connectionId"] != "host" {
		t.Fatalf("stream-stopped = %v", got)
	}
	if _, ok := got["streamType"]; ok {
		t.Fatal("stream-stopped carries a streamType")
	}
}

func TestAnalyticsRelayedToOthers(t *testing.T) {
	o := newTestOrchestrator()
	host := connect(o, "host")
	viewer := connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	ctx := context.Background()
	o.JoinSession(ctx, "viewer", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})

	o.RelayAnalytics("viewer", protocol.AnalyticsData{
		Type:      protocol.TypeAnalyticsData,
		SessionID: created.SessionID,
		Data:      json.RawMessage(`{"bitrate":1200}`),
	})
	got := host.last(t, protocol.TypeAnalyticsUpdate)
	if got["connectionId"] != "viewer" {
		t.Fatalf("analytics sender = %v", got["connectionId"])
	}
	data, ok := got["data"].(map[string]any)
	if !ok || data["bitrate"] != float64(1200) {
		t.Fatalf("analytics data = %v", got["data"])
	}
	if viewer.count(protocol.TypeAnalyticsUpdate) != 0 {
		t.Fatal("analytics echoed to sender")
	}
}

func TestJoinChatAnnouncesToRoom(t *testing.T) {
	o := newTestOrchestrator()
	host := connect(o, "host")
	viewer := connect(o, "viewer")
	created := createSession(t, o, "host", domain.AdmissionAuto)
	ctx := context.Background()
	o.JoinSession(ctx, "viewer", protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: created.SessionID})

	if err := o.JoinChat("viewer", protocol.JoinChat{
		Type:      protocol.TypeJoinChat,
		SessionID: created.SessionID,
		UserID:    "u1",
		UserName:  "Ann",
	}); err != nil {
		t.Fatalf("join chat: %v", err)
	}

	got := host.last(t, protocol.TypeUserJoinedChat)
	if got["userId"] != "u1" || got["userName"] != "Ann" {
		t.Fatalf("user-joined-chat = %v", got)
	}
	if viewer.count(protocol.TypeUserJoinedChat) != 0 {
		t.Fatal("join announcement echoed to the joiner")
	}
	if viewer.count(protocol.TypeChatHistory) != 1 {
		t.Fatal("joiner missed chat history")
	}
}

func TestPresenceLifecycle(t *testing.T) {
	o := newTestOrchestrator()
	a := connect(o, "a")
	b := connect(o, "b")

	o.RegisterUser("a", protocol.RegisterUser{
		Type:     protocol.TypeRegisterUser,
		UserID:   "u-a",
		UserName: "Ann",
		Email:    "ann@example.com",
	})

	// Registration is announced server-wide, registrant included.
	for _, fc := range []*fakeConn{a, b} {
		got := fc.last(t, protocol.TypeUserOnline)
		if got["userId"] != "u-a" || got["userName"] != "Ann" {
			t.Fatalf("user-online = %v", got)
		}
		if _, ok := got["email"]; ok {
			t.Fatal("email leaked in presence announcement")
		}
	}

	// The full directory includes email, the public one does not.
	full := o.OnlineUsers(true)
	if len(full.Users) != 1 || full.Users[0].Email != "ann@example.com" {
		t.Fatalf("full directory = %+v", full.Users)
	}
	public := o.OnlineUsers(false)
	if len(public.Users) != 1 || public.Users[0].Email != "" {
		t.Fatalf("public directory = %+v", public.Users)
	}

	o.Disconnect(context.Background(), "a")
	got := b.last(t, protocol.TypeUserOffline)
	if got["userId"] != "u-a" {
		t.Fatalf("user-offline = %v", got)
	}
	if remaining := o.OnlineUsers(true); len(remaining.Users) != 0 {
		t.Fatalf("directory after disconnect = %+v", remaining.Users)
	}
}
