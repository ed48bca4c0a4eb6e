package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"messenger/internal/domain"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"

	"github.com/livekit/protocol/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	offerPayload  = `{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"}`
	answerPayload = `{"type":"answer","sdp":"v=0\r\no=- 3 4 IN IP4 127.0.0.1\r\n"}`
	icePayload    = `{"candidate":"candidate:1 1 udp 2122260223 192.0.2.1 54400 typ host","sdpMid":"0","sdpMLineIndex":0}`
)

func TestStartCall_FirstWriterWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	call, err := env.calls.StartCall(ctx, chat42, userA)
	require.NoError(t, err)
	assert.Equal(t, userA, call.HostUserID)
	assert.True(t, call.IsActive)

	_, err = env.calls.StartCall(ctx, chat42, userB)
	assert.ErrorIs(t, err, apperrors.ErrCallAlreadyActive)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	events := env.publisher.on("call/42")
	require.Len(t, events, 1)
	var started domain.CallEvent
	require.NoError(t, json.Unmarshal(events[0].payload, &started))
	assert.Equal(t, domain.EventCallStarted, started.Event)
	assert.Equal(t, call.ID, started.Call.ID)

	assert.Contains(t, env.db.auditEvents(), domain.EventTypeCallStarted)
}

func TestStartCall_ConcurrentStartsCreateOneCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			if _, err := env.calls.StartCall(ctx, chat42, user); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(int64(i%2 + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestStartCall_NonMemberRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.calls.StartCall(ctx, chat42, userC)
	assert.ErrorIs(t, err, apperrors.ErrNotChatMember)

	_, err = env.calls.StartCall(ctx, 999, userC)
	assert.ErrorIs(t, err, apperrors.ErrNotChatMember)
	assert.Empty(t, env.publisher.topics())
}

func TestEndCall_OnlyHost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	call, err := env.calls.StartCall(ctx, chat42, userA)
	require.NoError(t, err)

	_, err = env.calls.EndCall(ctx, call.ID, userB)
	assert.ErrorIs(t, err, apperrors.ErrNotCallHost)

	active, err := env.calls.ActiveCall(ctx, chat42, userB)
	require.NoError(t, err)
	assert.Equal(t, call.ID, active.ID)

	ended, err := env.calls.EndCall(ctx, call.ID, userA)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	require.NotNil(t, ended.EndReason)
	assert.Equal(t, domain.CallEndReasonHangup, *ended.EndReason)

	_, err = env.calls.ActiveCall(ctx, chat42, userB)
	assert.ErrorIs(t, err, apperrors.ErrCallNotFound)

	_, err = env.calls.EndCall(ctx, call.ID, userA)
	assert.ErrorIs(t, err, apperrors.ErrCallNotActive)

	// после завершения можно начать новый звонок
	_, err = env.calls.StartCall(ctx, chat42, userB)
	assert.NoError(t, err)
}

func TestEndCall_HostWhoLeftChat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	call, err := env.calls.StartCall(ctx, chat42, userA)
	require.NoError(t, err)

	env.db.setMember(chat42, userA, false)

	_, err = env.calls.EndCall(ctx, call.ID, userA)
	assert.ErrorIs(t, err, apperrors.ErrNotChatMember)
	assert.ErrorIs(t, env.calls.Heartbeat(ctx, call.ID, userA), apperrors.ErrNotChatMember)

	active, err := env.calls.ActiveCall(ctx, chat42, userB)
	require.NoError(t, err)
	assert.Equal(t, call.ID, active.ID)
}

func TestCallAudit_Entries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	call, err := env.calls.StartCall(ctx, chat42, userA)
	require.NoError(t, err)
	_, err = env.calls.EndCall(ctx, call.ID, userA)
	require.NoError(t, err)

	started := env.db.auditEntry(domain.EventTypeCallStarted)
	require.NotNil(t, started)
	assert.Equal(t, domain.ActorRoleHost, started.ActorRole)
	assert.Equal(t, chat42, started.ChatID)
	require.NotNil(t, started.Details.CallID)
	assert.Equal(t, call.ID, *started.Details.CallID)
	assert.Nil(t, started.Details.EndReason)

	ended := env.db.auditEntry(domain.EventTypeCallEnded)
	require.NotNil(t, ended)
	require.NotNil(t, ended.ActorUserID)
	assert.Equal(t, userA, *ended.ActorUserID)
	require.NotNil(t, ended.Details.EndReason)
	assert.Equal(t, domain.CallEndReasonHangup, *ended.Details.EndReason)
}

func TestEndCall_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.calls.EndCall(context.Background(), 777, userA)
	assert.ErrorIs(t, err, apperrors.ErrCallNotFound)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRelay_ForwardsPayloadVerbatim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		kind    domain.SignalKind
		payload string
	}{
		{domain.SignalOffer, offerPayload},
		{domain.SignalAnswer, answerPayload},
		{domain.SignalICECandidate, icePayload},
	}

	for _, tt := range tests {
		err := env.calls.Relay(ctx, SignalInput{
			ChatID: chat42, SenderID: userA, Kind: tt.kind, Payload: json.RawMessage(tt.payload),
		})
		require.NoError(t, err, tt.kind)
	}

	events := env.publisher.on("call/42")
	require.Len(t, events, len(tests))
	for i, tt := range tests {
		var signal domain.Signal
		require.NoError(t, json.Unmarshal(events[i].payload, &signal))
		assert.Equal(t, tt.kind, signal.Kind)
		assert.Equal(t, userA, signal.SenderID)
		assert.Equal(t, chat42, signal.ChatID)
		assert.JSONEq(t, tt.payload, string(signal.Payload))
	}
}

func TestRelay_NonMemberOfferNotPublished(t *testing.T) {
	env := newTestEnv(t)

	err := env.calls.Relay(context.Background(), SignalInput{
		ChatID: chat42, SenderID: userC, Kind: domain.SignalOffer, Payload: json.RawMessage(offerPayload),
	})
	assert.ErrorIs(t, err, apperrors.ErrNotChatMember)
	assert.Empty(t, env.publisher.on("call/42"))
}

func TestRelay_MalformedPayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		kind    domain.SignalKind
		payload string
	}{
		{"empty", domain.SignalOffer, ``},
		{"not json", domain.SignalOffer, `sdp please`},
		{"unknown sdp type", domain.SignalOffer, `{"type":"bogus","sdp":"v=0"}`},
		{"offer with answer type", domain.SignalOffer, answerPayload},
		{"missing sdp", domain.SignalAnswer, `{"type":"answer"}`},
		{"ice as array", domain.SignalICECandidate, `[1,2,3]`},
		{"unknown kind", domain.SignalKind("bye"), `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.calls.Relay(ctx, SignalInput{
				ChatID: chat42, SenderID: userA, Kind: tt.kind, Payload: json.RawMessage(tt.payload),
			})
			assert.ErrorIs(t, err, apperrors.ErrBadRequest)
		})
	}
	assert.Empty(t, env.publisher.topics())
}

func TestHeartbeat_HostOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	call, err := env.calls.StartCall(ctx, chat42, userA)
	require.NoError(t, err)

	assert.ErrorIs(t, env.calls.Heartbeat(ctx, call.ID, userB), apperrors.ErrNotCallHost)
	assert.NoError(t, env.calls.Heartbeat(ctx, call.ID, userA))
	assert.ErrorIs(t, env.calls.Heartbeat(ctx, 999, userA), apperrors.ErrCallNotFound)
}

func TestCallReaper_ExpiresOnlyStaleCalls(t *testing.T) {
	env := newTestEnv(t)
	env.db.addChat(43, userA, userB)
	ctx := context.Background()

	stale, err := env.calls.StartCall(ctx, chat42, userA)
	require.NoError(t, err)

	env.db.mu.Lock()
	env.db.now = env.db.now.Add(time.Minute)
	env.db.mu.Unlock()

	fresh, err := env.calls.StartCall(ctx, 43, userB)
	require.NoError(t, err)

	reaper := NewCallReaper(env.calls, time.Second, logger.Nop())
	// stale старше таймаута на 30 секунд, fresh - моложе
	reaper.now = func() time.Time { return stale.StartedAt.Add(2 * time.Minute) }

	assert.Equal(t, 1, reaper.Sweep(ctx))

	_, err = env.calls.ActiveCall(ctx, chat42, userA)
	assert.ErrorIs(t, err, apperrors.ErrCallNotFound)

	active, err := env.calls.ActiveCall(ctx, 43, userB)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, active.ID)

	ended, err := memCalls{env.db}.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, ended.EndReason)
	assert.Equal(t, domain.CallEndReasonExpired, *ended.EndReason)

	expired := env.db.auditEntry(domain.EventTypeCallExpired)
	require.NotNil(t, expired)
	assert.Nil(t, expired.ActorUserID)
	assert.Equal(t, domain.ActorRoleSystem, expired.ActorRole)
	require.NotNil(t, expired.Details.LastHeartbeatAt)
	assert.Equal(t, stale.LastHeartbeatAt, *expired.Details.LastHeartbeatAt)

	assert.Equal(t, 0, reaper.Sweep(ctx))
}

func TestCallReaper_RunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	reaper := NewCallReaper(env.calls, 10*time.Millisecond, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestICEServers(t *testing.T) {
	env := newTestEnv(t)

	servers := env.calls.ICEServers()
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, servers[0].URLs)
}

func TestIssueMediaToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	call, err := env.calls.StartCall(ctx, chat42, userA)
	require.NoError(t, err)

	token, err := env.media.IssueToken(ctx, call.ID, userB, "Bob")
	require.NoError(t, err)
	assert.Equal(t, CallRoomName(call.ID), token.Room)
	assert.Equal(t, "ws://sfu.local:7880", token.URL)

	verifier, err := auth.ParseAPIToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "2", verifier.Identity())

	_, err = env.media.IssueToken(ctx, call.ID, userC, "Carol")
	assert.ErrorIs(t, err, apperrors.ErrNotChatMember)

	_, err = env.calls.EndCall(ctx, call.ID, userA)
	require.NoError(t, err)

	_, err = env.media.IssueToken(ctx, call.ID, userB, "Bob")
	assert.ErrorIs(t, err, apperrors.ErrCallNotActive)
}
