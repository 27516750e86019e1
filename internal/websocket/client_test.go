package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"purple-player/internal/models"

	"github.com/gorilla/websocket"
)

type staticVerifier struct {
	members map[string]string
}

func (v staticVerifier) IsMember(_ context.Context, userID, groupID string) (bool, error) {
	return v.members[userID] == groupID, nil
}

func newTestServer(t *testing.T, router *Router, verifier MembershipVerifier) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(router, conn, 0, verifier)
		router.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event models.EventName, data interface{}) {
	t.Helper()
	frame, err := models.NewFrame(event, data)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) models.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame models.Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPlaylistUpdateOverSocket(t *testing.T) {
	router := startRouter(t, nil)
	url := newTestServer(t, router, nil)

	alice := dial(t, url)
	bob := dial(t, url)
	sendFrame(t, alice, models.EventJoinGroup, models.JoinGroupPayload{UserID: "alice", GroupID: "G1"})
	sendFrame(t, bob, models.EventJoinGroup, models.JoinGroupPayload{UserID: "bob", GroupID: "G1"})
	waitFor(t, "both connections in G1", func() bool { return router.GroupSize("G1") == 2 })

	sendFrame(t, alice, models.EventTrackAdded, models.TrackAddedPayload{
		GroupID: "G1",
		Track:   json.RawMessage(`{"title":"X"}`),
		UserID:  "alice",
	})

	frame := readFrame(t, bob)
	if frame.Event != models.EventPlaylistUpdate {
		t.Fatalf("expected playlist:update, got %s", frame.Event)
	}
	var update struct {
		Event     string          `json:"event"`
		Track     json.RawMessage `json:"track"`
		AddedBy   string          `json:"addedBy"`
		Timestamp time.Time       `json:"timestamp"`
	}
	if err := json.Unmarshal(frame.Data, &update); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	var track struct {
		Title string `json:"title"`
	}
	_ = json.Unmarshal(update.Track, &track)
	if update.Event != models.PlaylistTrackAdded || track.Title != "X" || update.AddedBy != "alice" {
		t.Fatalf("unexpected update: %+v", update)
	}
	if update.Timestamp.IsZero() {
		t.Fatalf("expected a generation timestamp")
	}

	sendFrame(t, bob, models.EventTrackRemoved, models.TrackRemovedPayload{GroupID: "G1", TrackID: "t1", UserID: "bob"})
	frame = readFrame(t, alice)
	var removed models.PlaylistUpdate
	if err := json.Unmarshal(frame.Data, &removed); err != nil {
		t.Fatalf("decode removal: %v", err)
	}
	if removed.Event != models.PlaylistTrackRemoved || removed.TrackID != "t1" || removed.RemovedBy != "bob" {
		t.Fatalf("unexpected removal: %+v", removed)
	}

	alice.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, msg, err := alice.ReadMessage(); err == nil {
		t.Fatalf("sender received its own update: %s", msg)
	}
}

func TestClosedSocketLeavesGroup(t *testing.T) {
	offline := newOfflineRecorder()
	router := startRouter(t, offline)
	url := newTestServer(t, router, nil)

	conn := dial(t, url)
	sendFrame(t, conn, models.EventJoinGroup, models.JoinGroupPayload{UserID: "alice", GroupID: "G1"})
	waitFor(t, "announcement", func() bool { return router.GroupSize("G1") == 1 })

	conn.Close()
	waitFor(t, "removal", func() bool { return router.GroupSize("G1") == 0 })

	select {
	case userID := <-offline.ch:
		if userID != "alice" {
			t.Fatalf("expected alice, got %s", userID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected alice marked offline")
	}
}

func TestMalformedFrameGetsError(t *testing.T) {
	router := startRouter(t, nil)
	url := newTestServer(t, router, nil)
	conn := dial(t, url)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame.Event != models.EventError {
		t.Fatalf("expected error frame, got %s", frame.Event)
	}

	sendFrame(t, conn, models.EventName("chat"), map[string]string{"text": "hi"})
	if frame := readFrame(t, conn); frame.Event != models.EventError {
		t.Fatalf("expected error frame for unknown event, got %s", frame.Event)
	}
}

func TestVerifiedJoinRejectsNonMember(t *testing.T) {
	router := startRouter(t, nil)
	verifier := staticVerifier{members: map[string]string{"alice": "G1"}}
	url := newTestServer(t, router, verifier)

	mallory := dial(t, url)
	sendFrame(t, mallory, models.EventJoinGroup, models.JoinGroupPayload{UserID: "mallory", GroupID: "G1"})
	frame := readFrame(t, mallory)
	if frame.Event != models.EventError {
		t.Fatalf("expected rejection, got %s", frame.Event)
	}
	if n := router.GroupSize("G1"); n != 0 {
		t.Fatalf("rejected join must not create an entry, got %d", n)
	}

	alice := dial(t, url)
	sendFrame(t, alice, models.EventJoinGroup, models.JoinGroupPayload{UserID: "alice", GroupID: "G1"})
	waitFor(t, "verified join", func() bool { return router.GroupSize("G1") == 1 })
}
