// Package server defines the wire events exchanged between clients and the
// relay, with decoding performed once at the connection boundary.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Wire event type tags. The inbound and outbound sets are closed; anything
// outside them is rejected at decode time.
const (
	eventJoin       = "join"
	eventChat       = "chat"
	eventRoomInfo   = "room-info"
	eventUserJoined = "user-joined"
	eventUserLeft   = "user-left"
)

// Inbound is the closed set of events a client may send to the relay.
// It is implemented only by JoinEvent and ChatEvent.
type Inbound interface {
	isInbound()
}

// JoinEvent asks the relay to attach the connection to a room. An empty
// RoomID requests a server-generated room.
type JoinEvent struct {
	RoomID   string
	Username string
}

func (JoinEvent) isInbound() {}

// ChatEvent carries a chat line to broadcast to the sender's current room.
type ChatEvent struct {
	Text string
}

func (ChatEvent) isInbound() {}

// DecodeInbound parses a raw client frame into its typed event. Unparseable
// payloads and unknown event types are errors; the caller is expected to log
// and drop them without closing the connection.
func DecodeInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type     string `json:"type"`
		RoomID   string `json:"roomId"`
		Username string `json:"username"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unparseable event payload: %w", err)
	}

	switch envelope.Type {
	case eventJoin:
		return JoinEvent{RoomID: envelope.RoomID, Username: envelope.Username}, nil
	case eventChat:
		return ChatEvent{Text: envelope.Text}, nil
	case "":
		return nil, errors.New("event payload has no type")
	default:
		return nil, fmt.Errorf("unknown event type %q", envelope.Type)
	}
}

// Outbound is the closed set of events the relay sends to clients.
// It is implemented only by RoomInfo, UserJoined, UserLeft, and ChatMessage.
type Outbound interface {
	isOutbound()
}

// RoomInfo is sent to a joining connection and carries the room it landed in
// and the member count including itself.
type RoomInfo struct {
	RoomID      string `json:"roomId"`
	MemberCount int    `json:"memberCount"`
}

func (RoomInfo) isOutbound() {}

// UserJoined notifies existing room members that a new user joined.
type UserJoined struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

func (UserJoined) isOutbound() {}

// UserLeft notifies remaining room members that a user departed.
type UserLeft struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

func (UserLeft) isOutbound() {}

// ChatMessage carries a relayed chat line, delivered to every room member
// including the sender.
type ChatMessage struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func (ChatMessage) isOutbound() {}

// EncodeOutbound serializes an outbound event with its type tag.
func EncodeOutbound(event Outbound) ([]byte, error) {
	switch e := event.(type) {
	case RoomInfo:
		return json.Marshal(struct {
			Type string `json:"type"`
			RoomInfo
		}{eventRoomInfo, e})
	case UserJoined:
		return json.Marshal(struct {
			Type string `json:"type"`
			UserJoined
		}{eventUserJoined, e})
	case UserLeft:
		return json.Marshal(struct {
			Type string `json:"type"`
			UserLeft
		}{eventUserLeft, e})
	case ChatMessage:
		return json.Marshal(struct {
			Type string `json:"type"`
			ChatMessage
		}{eventChat, e})
	default:
		return nil, fmt.Errorf("unhandled outbound event %T", event)
	}
}

// localTimestamp renders a wall-clock time-of-day string for chat events.
func localTimestamp(t time.Time) string {
	return t.Format("3:04:05 PM")
}
