package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaFile is a stored media asset. It always belongs to exactly one message
// and carries the owning chat and user for access checks.
type MediaFile struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	MessageID    uuid.UUID `db:"message_id"    json:"message_id"`
	ChatID       uuid.UUID `db:"chat_id"       json:"chat_id"`
	OwnerID      uuid.UUID `db:"owner_id"      json:"owner_id"`
	OriginalName string    `db:"original_name" json:"original_name"`
	StoragePath  string    `db:"storage_path"  json:"storage_path"`
	ThumbPath    *string   `db:"thumb_path"    json:"thumb_path,omitempty"`
	MimeType     string    `db:"mime_type"     json:"mime_type"`
	SizeBytes    int64     `db:"size_bytes"    json:"size_bytes"`
	Width        *int      `db:"width"         json:"width,omitempty"`
	Height       *int      `db:"height"        json:"height,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}
