package cache

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	fieldPercent   = "percent"
	fieldStage     = "stage"
	fieldUpdatedAt = "updated_at"
)

func ProgressKey(chatID uuid.UUID) string {
	return fmt.Sprintf("chat:progress:%s", chatID)
}
