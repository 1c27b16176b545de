// Package testhelpers provides common utilities and helper functions for
// testing the relay server.
//
// This package contains reusable test utilities that are shared across unit
// and integration tests: creating test servers, dialing WebSocket
// connections, exchanging relay events, and asserting response properties.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected
// Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// the given Origin header. It returns the connection or an error if the
// handshake fails.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", origin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendJoin sends a join event for the given room and username.
func SendJoin(conn *websocket.Conn, roomID, username string) error {
	return conn.WriteJSON(map[string]string{
		"type":     "join",
		"roomId":   roomID,
		"username": username,
	})
}

// SendChat sends a chat event with the given text.
func SendChat(conn *websocket.Conn, text string) error {
	return conn.WriteJSON(map[string]string{
		"type": "chat",
		"text": text,
	})
}

// ReceiveEvent reads the next event from the connection, failing the test if
// nothing arrives within the timeout.
func ReceiveEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]interface{} {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var event map[string]interface{}
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return event
}

// ExpectNoEvent asserts that nothing arrives on the connection within the
// given window.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var event map[string]interface{}
	if err := conn.ReadJSON(&event); err == nil {
		t.Errorf("Expected no event but received %v", event)
	}
}

// AssertEventType checks the "type" field of a received event.
func AssertEventType(t *testing.T, event map[string]interface{}, expected string) {
	t.Helper()

	eventType, _ := event["type"].(string)
	if eventType != expected {
		t.Errorf("Expected event type %q, got %q (event: %v)", expected, eventType, event)
	}
}

// AssertEventField checks a string field of a received event.
func AssertEventField(t *testing.T, event map[string]interface{}, field, expected string) {
	t.Helper()

	value, ok := event[field].(string)
	if !ok {
		t.Errorf("Event does not contain string field %q (event: %v)", field, event)
		return
	}
	if value != expected {
		t.Errorf("Expected %s %q, got %q", field, expected, value)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// WaitFor polls the condition until it holds or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for: %s", message)
}
