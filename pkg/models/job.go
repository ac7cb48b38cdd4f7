package models

import (
	"github.com/google/uuid"
)

// IngestionJob is the payload submitted once per accepted upload. The worker
// treats it as immutable; the queue may redeliver it after a failed attempt.
type IngestionJob struct {
	ChatID           uuid.UUID `json:"chat_id"`
	OwnerID          uuid.UUID `json:"owner_id"`
	UploadToken      uuid.UUID `json:"upload_token"`
	ArchivePath      string    `json:"archive_path"`
	OriginalFilename string    `json:"original_filename"`
}
