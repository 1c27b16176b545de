// Package integration contains integration tests exercising the relay
// protocol over real WebSocket connections.
//
// These tests start an HTTP server backed by a live registry, connect
// clients with the gorilla dialer, and verify the join/chat/leave event flow
// end to end.
package integration

import (
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wavechat/relay/internal/server"
	"github.com/wavechat/relay/test/testhelpers"
)

const (
	testOrigin   = "http://localhost:8080"
	eventTimeout = 2 * time.Second
)

var timestampPattern = regexp.MustCompile(`^\d{1,2}:\d{2}:\d{2} (AM|PM)$`)

// newRelayServer starts a test server with an open origin policy and
// returns it together with its registry and WebSocket URL.
func newRelayServer(t *testing.T) (*httptest.Server, *server.Registry, string) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}

	registry, err := server.NewRegistry(*cfg)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	mux := server.SetupRoutes(registry, *cfg)
	testServer := testhelpers.CreateTestServer(mux)
	t.Cleanup(testServer.Close)

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"
	return testServer, registry, wsURL
}

// TestJoinChatLeaveScenario walks the full relay scenario: a generated room
// id, a second joiner, sender-inclusive chat, and departure notifications
// down to room deletion.
func TestJoinChatLeaveScenario(t *testing.T) {
	_, registry, wsURL := newRelayServer(t)

	// Client A joins with an empty room id and gets a generated one back.
	alice, err := testhelpers.ConnectWebSocket(wsURL, testOrigin)
	if err != nil {
		t.Fatalf("Failed to connect client A: %v", err)
	}
	defer func() { _ = alice.Close() }()

	if err := testhelpers.SendJoin(alice, "", "alice"); err != nil {
		t.Fatalf("Failed to send join for A: %v", err)
	}

	info := testhelpers.ReceiveEvent(t, alice, eventTimeout)
	testhelpers.AssertEventType(t, info, "room-info")
	roomID, _ := info["roomId"].(string)
	if len(roomID) != 6 {
		t.Fatalf("Expected a 6-character generated room id, got %q", roomID)
	}
	if count, _ := info["memberCount"].(float64); count != 1 {
		t.Errorf("Expected member count 1, got %v", info["memberCount"])
	}

	// Client B joins the generated room: A is notified, B sees count 2.
	bob, err := testhelpers.ConnectWebSocket(wsURL, testOrigin)
	if err != nil {
		t.Fatalf("Failed to connect client B: %v", err)
	}
	defer func() { _ = bob.Close() }()

	if err := testhelpers.SendJoin(bob, roomID, "bob"); err != nil {
		t.Fatalf("Failed to send join for B: %v", err)
	}

	joined := testhelpers.ReceiveEvent(t, alice, eventTimeout)
	testhelpers.AssertEventType(t, joined, "user-joined")
	testhelpers.AssertEventField(t, joined, "username", "bob")
	testhelpers.AssertEventField(t, joined, "message", "bob joined the room")

	bobInfo := testhelpers.ReceiveEvent(t, bob, eventTimeout)
	testhelpers.AssertEventType(t, bobInfo, "room-info")
	testhelpers.AssertEventField(t, bobInfo, "roomId", roomID)
	if count, _ := bobInfo["memberCount"].(float64); count != 2 {
		t.Errorf("Expected member count 2, got %v", bobInfo["memberCount"])
	}

	// B chats: both A and B receive it, timestamp included.
	if err := testhelpers.SendChat(bob, "hi"); err != nil {
		t.Fatalf("Failed to send chat: %v", err)
	}

	aliceChat := testhelpers.ReceiveEvent(t, alice, eventTimeout)
	testhelpers.AssertEventType(t, aliceChat, "chat")
	testhelpers.AssertEventField(t, aliceChat, "username", "bob")
	testhelpers.AssertEventField(t, aliceChat, "text", "hi")

	bobChat := testhelpers.ReceiveEvent(t, bob, eventTimeout)
	testhelpers.AssertEventType(t, bobChat, "chat")
	testhelpers.AssertEventField(t, bobChat, "text", "hi")

	timestamp, _ := bobChat["timestamp"].(string)
	if !timestampPattern.MatchString(timestamp) {
		t.Errorf("Unexpected timestamp format: %q", timestamp)
	}

	// A disconnects: B is notified and the count drops.
	if err := testhelpers.CloseWebSocket(alice); err != nil {
		t.Fatalf("Failed to close client A: %v", err)
	}

	left := testhelpers.ReceiveEvent(t, bob, eventTimeout)
	testhelpers.AssertEventType(t, left, "user-left")
	testhelpers.AssertEventField(t, left, "username", "alice")

	testhelpers.WaitFor(t, eventTimeout, func() bool {
		return registry.MemberCount(roomID) == 1
	}, "member count to drop to 1")

	// B disconnects: the room is deleted.
	if err := testhelpers.CloseWebSocket(bob); err != nil {
		t.Fatalf("Failed to close client B: %v", err)
	}

	testhelpers.WaitFor(t, eventTimeout, func() bool {
		return registry.RoomCount() == 0
	}, "room to be deleted after last member left")
}

// TestChatBeforeJoinIsIgnored verifies that chat from a connection that
// never joined produces no delivery and no error.
func TestChatBeforeJoinIsIgnored(t *testing.T) {
	_, registry, wsURL := newRelayServer(t)

	conn, err := testhelpers.ConnectWebSocket(wsURL, testOrigin)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := testhelpers.SendChat(conn, "anyone there?"); err != nil {
		t.Fatalf("Failed to send chat: %v", err)
	}

	testhelpers.ExpectNoEvent(t, conn, 300*time.Millisecond)
	if registry.RoomCount() != 0 {
		t.Errorf("Expected no rooms, got %d", registry.RoomCount())
	}
}

// TestMalformedEventKeepsConnectionOpen verifies that unparseable payloads
// and unknown event types are dropped without closing the connection.
func TestMalformedEventKeepsConnectionOpen(t *testing.T) {
	_, _, wsURL := newRelayServer(t)

	conn, err := testhelpers.ConnectWebSocket(wsURL, testOrigin)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join",`)); err != nil {
		t.Fatalf("Failed to send malformed payload: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)); err != nil {
		t.Fatalf("Failed to send unknown event: %v", err)
	}

	// The connection must still accept a valid join afterwards.
	if err := testhelpers.SendJoin(conn, "R1", "alice"); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}

	info := testhelpers.ReceiveEvent(t, conn, eventTimeout)
	testhelpers.AssertEventType(t, info, "room-info")
	testhelpers.AssertEventField(t, info, "roomId", "R1")
}

// TestRejoinSwitchesRooms verifies that a second join moves the connection:
// the old room sees user-left and the new room sees user-joined.
func TestRejoinSwitchesRooms(t *testing.T) {
	_, registry, wsURL := newRelayServer(t)

	alice, err := testhelpers.ConnectWebSocket(wsURL, testOrigin)
	if err != nil {
		t.Fatalf("Failed to connect client A: %v", err)
	}
	defer func() { _ = alice.Close() }()

	bob, err := testhelpers.ConnectWebSocket(wsURL, testOrigin)
	if err != nil {
		t.Fatalf("Failed to connect client B: %v", err)
	}
	defer func() { _ = bob.Close() }()

	if err := testhelpers.SendJoin(alice, "R1", "alice"); err != nil {
		t.Fatalf("Failed to join A: %v", err)
	}
	testhelpers.ReceiveEvent(t, alice, eventTimeout) // room-info

	if err := testhelpers.SendJoin(bob, "R1", "bob"); err != nil {
		t.Fatalf("Failed to join B: %v", err)
	}
	testhelpers.ReceiveEvent(t, bob, eventTimeout)   // room-info
	testhelpers.ReceiveEvent(t, alice, eventTimeout) // user-joined

	// B switches to R2.
	if err := testhelpers.SendJoin(bob, "R2", "bob"); err != nil {
		t.Fatalf("Failed to rejoin B: %v", err)
	}

	left := testhelpers.ReceiveEvent(t, alice, eventTimeout)
	testhelpers.AssertEventType(t, left, "user-left")
	testhelpers.AssertEventField(t, left, "username", "bob")

	info := testhelpers.ReceiveEvent(t, bob, eventTimeout)
	testhelpers.AssertEventType(t, info, "room-info")
	testhelpers.AssertEventField(t, info, "roomId", "R2")

	testhelpers.WaitFor(t, eventTimeout, func() bool {
		return registry.MemberCount("R1") == 1 && registry.MemberCount("R2") == 1
	}, "membership to settle after room switch")
}
