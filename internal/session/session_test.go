// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aeonia-ai/gaia-sub003/internal/bus"
	"github.com/Aeonia-ai/gaia-sub003/internal/config"
	"github.com/Aeonia-ai/gaia-sub003/internal/events"
	"github.com/Aeonia-ai/gaia-sub003/internal/handler"
	"github.com/Aeonia-ai/gaia-sub003/internal/router"
	"github.com/Aeonia-ai/gaia-sub003/internal/store"
	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

func testTemplate() *world.Template {
	return &world.Template{
		ExperienceID: "exp-1",
		Zones: []*world.Zone{{
			ID: "z1",
			Areas: []*world.Area{
				{
					ID:     "gate",
					Name:   "Old Gate",
					Linked: []string{"meadow"},
					Spots: []*world.Spot{{
						ID:    "arch",
						Items: []*world.Item{{ID: "lantern", Name: "Lantern", Unique: true}},
					}},
				},
				{ID: "meadow", Name: "Meadow", Linked: []string{"gate"}, Spots: []*world.Spot{{ID: "well"}}},
			},
		}},
	}
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		SendQueue:      16,
		MaxMessageSize: 64 * 1024,
		WriteTimeout:   2 * time.Second,
		PongTimeout:    30 * time.Second,
	}
}

// newTestHub wires a full hub over an in-process bus and starts its
// lifecycle loop.
func newTestHub(t *testing.T, cfg config.SessionConfig) (*Hub, *store.Store) {
	t.Helper()

	st := store.New(store.ModelShared, store.NewMemoryPersistence())
	st.RegisterTemplate(testTemplate())

	eventBus := bus.NewInProcess(32)
	replay := events.NewReplayBuffer(32)
	publisher := events.NewPublisher(eventBus, replay, false)
	rule := view.AdjacencyRule{}

	rt := router.New(
		st, handler.NewRegistry(), router.NewAdminRegistry(),
		nil, nil, publisher, rule, router.DefaultConfig(),
	)
	hub := NewHub(st, eventBus, replay, publisher, rt, rule, cfg, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("hub did not stop")
		}
		_ = eventBus.Close()
	})
	return hub, st
}

func dialWS(t *testing.T, hub *Hub, experienceID, userID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws?experience_id=" + experienceID + "&user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out Outbound
	require.NoError(t, conn.ReadJSON(&out))
	return &out
}

// readUntil reads frames until one matches the wanted type, failing if
// it doesn't show up. Result and update frames originate from different
// goroutines, so relative order between types is not guaranteed.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) *Outbound {
	t.Helper()
	for i := 0; i < 10; i++ {
		out := readFrame(t, conn)
		if out.Type == msgType {
			return out
		}
	}
	t.Fatalf("no %s frame within 10 reads", msgType)
	return nil
}

func TestSession_SnapshotOnConnect(t *testing.T) {
	hub, _ := newTestHub(t, testSessionConfig())
	conn := dialWS(t, hub, "exp-1", "alice")

	out := readFrame(t, conn)
	assert.Equal(t, MsgTypeSnapshot, out.Type)
	assert.Equal(t, uint64(1), out.Version, "the join commit is version 1")
	require.NotNil(t, out.View)
	assert.Equal(t, "alice", out.View.UserID)
	assert.Equal(t, "gate", out.View.AreaID)
	assert.Equal(t, 1, hub.SessionCount())
}

func TestSession_CommandResultAndUpdateDelivery(t *testing.T) {
	hub, st := newTestHub(t, testSessionConfig())
	conn := dialWS(t, hub, "exp-1", "alice")
	readFrame(t, conn) // snapshot

	require.NoError(t, conn.WriteJSON(&Inbound{
		Type: MsgTypeCommand,
		Verb: "collect",
		Args: handler.Args{"item": "lantern"},
	}))

	res := readUntil(t, conn, MsgTypeResult)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "Lantern")

	// The commit fans back as an ordered delta on the area topic.
	upd := readUntil(t, conn, MsgTypeWorldUpdate)
	assert.Equal(t, uint64(2), upd.Version)
	require.NotEmpty(t, upd.Changes)

	doc, _, err := st.Get(context.Background(), "exp-1", "alice")
	require.NoError(t, err)
	require.Len(t, doc.Player("alice").Inventory, 1)
}

func TestSession_InvalidCommandGetsErrorFrame(t *testing.T) {
	hub, _ := newTestHub(t, testSessionConfig())
	conn := dialWS(t, hub, "exp-1", "alice")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(&Inbound{
		Type: MsgTypeCommand,
		Verb: "collect",
		Args: handler.Args{"item": "sword"},
	}))

	out := readUntil(t, conn, MsgTypeError)
	assert.Equal(t, string(world.KindValidation), out.ErrorKind)
}

func TestSession_PingPong(t *testing.T) {
	hub, _ := newTestHub(t, testSessionConfig())
	conn := dialWS(t, hub, "exp-1", "alice")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(&Inbound{Type: MsgTypePing}))
	out := readUntil(t, conn, MsgTypePong)
	assert.Equal(t, MsgTypePong, out.Type)
}

func TestSession_ResumeReplaysOrSnapshots(t *testing.T) {
	hub, _ := newTestHub(t, testSessionConfig())
	conn := dialWS(t, hub, "exp-1", "alice")
	readFrame(t, conn)

	// Land a published commit so the replay buffer holds version 2.
	require.NoError(t, conn.WriteJSON(&Inbound{
		Type: MsgTypeCommand,
		Verb: "collect",
		Args: handler.Args{"item": "lantern"},
	}))
	readUntil(t, conn, MsgTypeResult)
	readUntil(t, conn, MsgTypeWorldUpdate)

	// A client that saw version 1 is caught up from the buffer.
	require.NoError(t, conn.WriteJSON(&Inbound{Type: MsgTypeResume, LastVersion: 1}))
	out := readUntil(t, conn, MsgTypeWorldUpdate)
	assert.Equal(t, uint64(2), out.Version)

	// Rewinding to version 0 replays the whole run, the published join
	// commit included.
	require.NoError(t, conn.WriteJSON(&Inbound{Type: MsgTypeResume, LastVersion: 0}))
	first := readUntil(t, conn, MsgTypeWorldUpdate)
	assert.Equal(t, uint64(1), first.Version)
	second := readFrame(t, conn)
	assert.Equal(t, MsgTypeWorldUpdate, second.Type)
	assert.Equal(t, uint64(2), second.Version)
}

func TestSession_PeerJoinDelivered(t *testing.T) {
	hub, _ := newTestHub(t, testSessionConfig())
	alice := dialWS(t, hub, "exp-1", "alice")
	snap := readFrame(t, alice)
	require.Equal(t, MsgTypeSnapshot, snap.Type)
	require.Equal(t, uint64(1), snap.Version)

	// A second player joining is a committed mutation, so connected
	// peers receive it as an ordered delta rather than discovering it on
	// some later gap.
	bob := dialWS(t, hub, "exp-1", "bob")
	readFrame(t, bob)

	upd := readUntil(t, alice, MsgTypeWorldUpdate)
	assert.Equal(t, uint64(2), upd.Version)
	require.Len(t, upd.Changes, 1)
	assert.Equal(t, "/players/bob", upd.Changes[0].Path)
	assert.Equal(t, world.OpAdd, upd.Changes[0].Op)

	assert.Equal(t, uint64(2), hub.replay.Latest("exp-1"), "the join commit is buffered for catch-up")
}

func TestSession_ResumeSnapshotsWhenReplayRingIsEmpty(t *testing.T) {
	hub, st := newTestHub(t, testSessionConfig())
	conn := dialWS(t, hub, "exp-1", "alice")
	readFrame(t, conn) // snapshot at version 1

	// An empty ring cannot prove the client is caught up; the store's
	// version is the arbiter. Dropping the run models a restarted
	// process whose buffer starts cold.
	hub.replay.Drop("exp-1")

	require.NoError(t, conn.WriteJSON(&Inbound{Type: MsgTypeResume, LastVersion: 0}))
	snap := readUntil(t, conn, MsgTypeSnapshot)
	assert.Equal(t, uint64(1), snap.Version)
	require.NotNil(t, snap.View)

	_, version, err := st.Get(context.Background(), "exp-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, version, snap.Version, "the snapshot lands the client on the current version")
}

func TestSession_RateLimit(t *testing.T) {
	cfg := testSessionConfig()
	cfg.CommandsPerSecond = 1
	cfg.Burst = 1
	hub, _ := newTestHub(t, cfg)
	conn := dialWS(t, hub, "exp-1", "alice")
	readFrame(t, conn)

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteJSON(&Inbound{
			Type: MsgTypeCommand,
			Verb: "inspect",
		}))
	}

	first := readUntil(t, conn, MsgTypeResult)
	assert.True(t, first.Success)
	second := readUntil(t, conn, MsgTypeError)
	assert.Contains(t, second.Message, "too many commands")
}

func TestSession_MissingQueryParamsRejected(t *testing.T) {
	hub, _ := newTestHub(t, testSessionConfig())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws?user_id=alice")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSession_HubShutdownClosesConnections(t *testing.T) {
	st := store.New(store.ModelShared, store.NewMemoryPersistence())
	st.RegisterTemplate(testTemplate())
	eventBus := bus.NewInProcess(32)
	defer eventBus.Close()
	replay := events.NewReplayBuffer(32)
	publisher := events.NewPublisher(eventBus, replay, false)
	rt := router.New(st, handler.NewRegistry(), router.NewAdminRegistry(),
		nil, nil, publisher, view.AdjacencyRule{}, router.DefaultConfig())
	hub := NewHub(st, eventBus, replay, publisher, rt, view.AdjacencyRule{}, testSessionConfig(), false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()

	conn := dialWS(t, hub, "exp-1", "alice")
	readFrame(t, conn)
	require.Equal(t, 1, hub.SessionCount())

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 0, hub.SessionCount())

	// The connection is torn down server-side.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var out Outbound
		if err := conn.ReadJSON(&out); err != nil {
			return
		}
	}
}

func TestHandleEvent_Ordering(t *testing.T) {
	s := &Session{
		userID:       "alice",
		ctx:          context.Background(),
		send:         make(chan *Outbound, 8),
		resyncSignal: make(chan struct{}, 1),
		lastVersion:  3,
	}

	// In-order delivery advances the cursor.
	s.handleEvent(&events.WorldUpdateEvent{Version: 4})
	assert.Equal(t, uint64(4), s.lastVersion)
	assert.Len(t, s.send, 1)
	assert.False(t, s.needResync.Load())

	// Duplicates are skipped without delivery.
	s.handleEvent(&events.WorldUpdateEvent{Version: 4})
	s.handleEvent(&events.WorldUpdateEvent{Version: 2})
	assert.Equal(t, uint64(4), s.lastVersion)
	assert.Len(t, s.send, 1)

	// A gap flags resync instead of delivering out of order.
	s.handleEvent(&events.WorldUpdateEvent{Version: 7})
	assert.Equal(t, uint64(4), s.lastVersion)
	assert.Len(t, s.send, 1)
	assert.True(t, s.needResync.Load())

	// Version 0 is the reset signal.
	s.needResync.Store(false)
	s.handleEvent(&events.WorldUpdateEvent{Version: 0})
	assert.True(t, s.needResync.Load())
}

func TestMovedSelf(t *testing.T) {
	s := &Session{userID: "alice"}

	assert.True(t, s.movedSelf([]world.Change{{Path: "/players/alice/location"}}))
	assert.True(t, s.movedSelf([]world.Change{{Path: "/players/alice"}}))
	assert.False(t, s.movedSelf([]world.Change{{Path: "/players/bob/location"}}))
	assert.False(t, s.movedSelf([]world.Change{{Path: "/players/alice/inventory/rope"}}))
	assert.False(t, s.movedSelf(nil))
}

func TestEnqueue_DropsOldestWhenFull(t *testing.T) {
	s := &Session{
		ctx:          context.Background(),
		send:         make(chan *Outbound, 2),
		resyncSignal: make(chan struct{}, 1),
	}

	s.enqueue(&Outbound{Type: MsgTypeWorldUpdate, Version: 1})
	s.enqueue(&Outbound{Type: MsgTypeWorldUpdate, Version: 2})
	s.enqueue(&Outbound{Type: MsgTypeWorldUpdate, Version: 3})

	first := <-s.send
	assert.Equal(t, uint64(2), first.Version, "the oldest frame was dropped")
	second := <-s.send
	assert.Equal(t, uint64(3), second.Version)
	assert.True(t, s.needResync.Load(), "overflow flags the session for resync")
}

func TestFrames(t *testing.T) {
	ok := resultFrame(&world.Result{Success: true, Message: "done"})
	assert.Equal(t, MsgTypeResult, ok.Type)
	assert.True(t, ok.Success)

	bad := resultFrame(world.Failure(world.NewValidation("nope")))
	assert.Equal(t, MsgTypeError, bad.Type)
	assert.Equal(t, string(world.KindValidation), bad.ErrorKind)

	ef := errorFrame(world.NewNotFound("missing"))
	assert.Equal(t, MsgTypeError, ef.Type)
	assert.Equal(t, string(world.KindNotFound), ef.ErrorKind)
}
