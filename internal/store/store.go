package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chatvault/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid chat status transition")

// Store is the record store. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	UpdateChatName(ctx context.Context, id uuid.UUID, name string) error
	UpdateChatStatus(ctx context.Context, id uuid.UUID, status string, opts ...ChatUpdateOption) error
	FinalizeChatSummary(ctx context.Context, id uuid.UUID, summary ChatSummary) error

	CreateMessage(ctx context.Context, msg *models.Message) (uuid.UUID, error)
	ListMessages(ctx context.Context, chatID uuid.UUID, page Page) ([]*models.Message, error)
	DeleteChatMessages(ctx context.Context, chatID uuid.UUID) (int64, error)

	CreateMediaFile(ctx context.Context, file *models.MediaFile) error
	ListMediaFiles(ctx context.Context, chatID uuid.UUID) ([]*models.MediaFile, error)
}

// ChatSummary is the aggregate written when a chat becomes ready.
type ChatSummary struct {
	MessageCount       int
	LastMessageAt      *time.Time
	LastMessagePreview *string
}

// Page selects a window of messages by order index.
type Page struct {
	Offset int
	Limit  int
}

// ChatUpdate holds the optional fields of a chat status update.
type ChatUpdate struct {
	ErrorMessage *string
	SizeBytes    *int64
}

type ChatUpdateOption func(*ChatUpdate)

func WithErrorMessage(msg string) ChatUpdateOption {
	return func(p *ChatUpdate) {
		p.ErrorMessage = &msg
	}
}

func WithSizeBytes(n int64) ChatUpdateOption {
	return func(p *ChatUpdate) {
		p.SizeBytes = &n
	}
}

// ApplyChatUpdateOptions folds opts into a ChatUpdate.
func ApplyChatUpdateOptions(opts ...ChatUpdateOption) ChatUpdate {
	var u ChatUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}
