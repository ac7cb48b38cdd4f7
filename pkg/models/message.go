package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a message by its content.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
	MessageTypeLink     MessageType = "link"
	MessageTypeSystem   MessageType = "system"
)

// MessageMetadata travels with a message into the record store as JSON.
type MessageMetadata struct {
	SourceLineNumber int     `json:"source_line_number"`
	LinkedMediaName  *string `json:"linked_media_name"`
	// TimestampUnparsed marks a header whose date/time matched no known layout;
	// Timestamp then holds the time the parse ran.
	TimestampUnparsed bool `json:"timestamp_unparsed,omitempty"`
}

// ParsedMessage is one message produced by the conversation parser, in file order.
type ParsedMessage struct {
	SenderName  string          `json:"sender_name"`
	IsSelf      bool            `json:"is_self"`
	Timestamp   time.Time       `json:"timestamp"`
	Body        *string         `json:"body"`
	MessageType MessageType     `json:"message_type"`
	OrderIndex  int             `json:"order_index"`
	Metadata    MessageMetadata `json:"metadata"`
}

// BodyText returns the body or "" when the message has none.
func (m ParsedMessage) BodyText() string {
	if m.Body == nil {
		return ""
	}
	return *m.Body
}

// Message is a persisted message keyed to its chat.
type Message struct {
	ID          uuid.UUID       `db:"id"           json:"id"`
	ChatID      uuid.UUID       `db:"chat_id"      json:"chat_id"`
	SenderName  string          `db:"sender_name"  json:"sender_name"`
	SenderIsMe  bool            `db:"sender_is_me" json:"sender_is_me"`
	Timestamp   time.Time       `db:"timestamp"    json:"timestamp"`
	Body        *string         `db:"body"         json:"body,omitempty"`
	MessageType MessageType     `db:"message_type" json:"message_type"`
	OrderIndex  int             `db:"order_index"  json:"order_index"`
	Metadata    MessageMetadata `db:"metadata"     json:"metadata"`
	CreatedAt   time.Time       `db:"created_at"   json:"created_at"`
}
