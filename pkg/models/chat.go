// Package models contains shared data models used across the chatvault codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat aggregate lifecycle: uploading -> processing -> ready | error.
const (
	ChatStatusUploading  = "uploading"
	ChatStatusProcessing = "processing"
	ChatStatusReady      = "ready"
	ChatStatusError      = "error"
)

// MaxPreviewChars bounds Chat.LastMessagePreview, counted in characters.
const MaxPreviewChars = 200

// Chat is one uploaded conversation archive and its aggregate summary.
type Chat struct {
	ID                 uuid.UUID  `db:"id"                   json:"id"`
	OwnerID            uuid.UUID  `db:"owner_id"             json:"owner_id"`
	ChatName           string     `db:"chat_name"            json:"chat_name"`
	OriginalFilename   string     `db:"original_filename"    json:"original_filename"`
	UploadToken        uuid.UUID  `db:"upload_token"         json:"upload_token"`
	MessageCount       int        `db:"message_count"        json:"message_count"`
	SizeBytes          int64      `db:"size_bytes"           json:"size_bytes"`
	Status             string     `db:"status"               json:"status"`
	ErrorMessage       *string    `db:"error_message"        json:"error_message,omitempty"`
	LastMessageAt      *time.Time `db:"last_message_at"      json:"last_message_at,omitempty"`
	LastMessagePreview *string    `db:"last_message_preview" json:"last_message_preview,omitempty"`
	CreatedAt          time.Time  `db:"created_at"           json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"           json:"updated_at"`
}

// Preview truncates body to at most MaxPreviewChars characters without
// splitting a UTF-8 sequence.
func Preview(body string) string {
	n := 0
	for i := range body {
		if n == MaxPreviewChars {
			return body[:i]
		}
		n++
	}
	return body
}
