package ws

import (
	"encoding/json"

	"syncServer/backend/internal/errs"
	"syncServer/backend/internal/ot/delta"
	"syncServer/backend/internal/presence"
)

// ClientMessage is the inbound envelope. Type selects the handler; each
// handler validates the fields it needs and answers bad input with an error
// event instead of dropping the connection.
type ClientMessage struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	FileID    string          `json:"fileId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	Version   uint64          `json:"version,omitempty"`
	Payload   string          `json:"payload,omitempty"`
	Ops       delta.Delta     `json:"ops,omitempty"`
	Cursor    json.RawMessage `json:"cursor,omitempty"`
	Status    string          `json:"status,omitempty"`
	IsTyping  bool            `json:"isTyping,omitempty"`
}

// OutboundMessage is anything the write loop can serialize to the client.
type OutboundMessage interface {
	MessageType() string
}

// JoinedMessage carries the snapshot to the joining connection only.
type JoinedMessage struct {
	Type      string `json:"type"` // "joined"
	ProjectID string `json:"projectId"`
	FileID    string `json:"fileId"`
	Content   string `json:"content"`
	Version   uint64 `json:"version"`
}

// UserJoinedMessage tells existing file-room members about a new participant.
// No content: the joiner alone gets the snapshot.
type UserJoinedMessage struct {
	Type        string `json:"type"` // "user-joined"
	ProjectID   string `json:"projectId"`
	FileID      string `json:"fileId"`
	UserID      uint64 `json:"userId"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
}

// RemoteEditMessage fans a committed operation out to the whole file room,
// origin included, so every member converges through the server-assigned
// version sequence.
type RemoteEditMessage struct {
	Type      string `json:"type"` // "remote-edit"
	ProjectID string `json:"projectId"`
	FileID    string `json:"fileId"`
	Version   uint64 `json:"version"`
	Content   string `json:"content"`
	AuthorID  uint64 `json:"authorId"`
}

// AckMessage confirms the sender's own edit with the committed version.
type AckMessage struct {
	Type      string `json:"type"` // "ack"
	ProjectID string `json:"projectId"`
	FileID    string `json:"fileId"`
	Version   uint64 `json:"version"`
}

type UserLeftMessage struct {
	Type      string `json:"type"` // "user-left"
	ProjectID string `json:"projectId"`
	FileID    string `json:"fileId"`
	UserID    uint64 `json:"userId"`
}

// RoomUsersMessage is the full roster of a project room.
type RoomUsersMessage struct {
	Type   string            `json:"type"` // "room-users"
	RoomID string            `json:"roomId"`
	Users  []presence.Member `json:"users"`
}

// PresenceUpdateMessage carries a cursor move to the file room, excluding
// the origin.
type PresenceUpdateMessage struct {
	Type      string          `json:"type"` // "presence-update"
	ProjectID string          `json:"projectId"`
	FileID    string          `json:"fileId"`
	UserID    uint64          `json:"userId"`
	Cursor    json.RawMessage `json:"cursor"`
}

type TypingMessage struct {
	Type     string `json:"type"` // "typing"
	RoomID   string `json:"roomId"`
	UserID   uint64 `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorMessage is the soft-failure channel: the connection stays open.
type ErrorMessage struct {
	Type    string    `json:"type"` // "error"
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
}

// FeedbackMessage answers housekeeping messages (welcome, heartbeat).
type FeedbackMessage struct {
	Type    string `json:"type"` // "feedback"
	Message string `json:"message"`
}

// ShutdownMessage is broadcast to every connection before the server closes.
type ShutdownMessage struct {
	Type    string `json:"type"` // "shutdown"
	Message string `json:"message"`
}

func (m JoinedMessage) MessageType() string         { return m.Type }
func (m UserJoinedMessage) MessageType() string     { return m.Type }
func (m RemoteEditMessage) MessageType() string     { return m.Type }
func (m AckMessage) MessageType() string            { return m.Type }
func (m UserLeftMessage) MessageType() string       { return m.Type }
func (m RoomUsersMessage) MessageType() string      { return m.Type }
func (m PresenceUpdateMessage) MessageType() string { return m.Type }
func (m TypingMessage) MessageType() string         { return m.Type }
func (m ErrorMessage) MessageType() string          { return m.Type }
func (m FeedbackMessage) MessageType() string       { return m.Type }
func (m ShutdownMessage) MessageType() string       { return m.Type }

func errorEvent(err error) ErrorMessage {
	return ErrorMessage{Type: "error", Code: errs.CodeOf(err), Message: errs.MessageOf(err)}
}

func validationError(message string) ErrorMessage {
	return ErrorMessage{Type: "error", Code: errs.CodeValidation, Message: message}
}
