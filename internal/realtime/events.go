// Package realtime pushes events to connected clients. Events are addressed
// to rooms: every user has a personal room and every persisted chat has one.
// Delivery is at-most-once; a client that is offline or too slow misses the
// event and reconciles on its next fetch.
package realtime

import (
	"context"
	"strconv"
)

// Server -> client events.
const (
	EventNewChatCreated  = "new_chat_created"
	EventChatActivated   = "chat_activated"
	EventMatchPromoted   = "match_promoted"
	EventNewNotification = "new_notification"
	EventMessagesRead    = "messages_read"
	EventNewMessage      = "new_message"
	EventUnmatched       = "unmatched"
	EventChatDeleted     = "chat_deleted"
	EventRoomJoined      = "room_joined"
	EventRoomLeft        = "room_left"
	EventMessageSent     = "message_sent"
	EventError           = "error"
)

// Client -> server events.
const (
	EventJoinUserRoom = "join_user_room"
	EventJoinChat     = "join_chat"
	EventLeaveChat    = "leave_chat"
	EventSendMessage  = "send_message"
)

// Event is the frame written to sockets: {"event": "...", "data": {...}}.
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// Emitter delivers an event to everyone in room. It never blocks on slow
// receivers and never reports delivery failures.
type Emitter interface {
	Emit(ctx context.Context, room string, ev Event)
}

// EmitToUsers emits ev to the personal room of each user.
func EmitToUsers(ctx context.Context, e Emitter, ev Event, userIDs ...uint64) {
	for _, id := range userIDs {
		e.Emit(ctx, UserRoom(id), ev)
	}
}

func UserRoom(userID uint64) string {
	return "user:" + strconv.FormatUint(userID, 10)
}

func ChatRoom(chatID string) string {
	return "chat:" + chatID
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, string, Event) {}
