package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/chatvault/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Chats ---

const chatColumns = `id, owner_id, chat_name, original_filename, upload_token, message_count, size_bytes,
	status, error_message, last_message_at, last_message_preview, created_at, updated_at`

func (s *PostgresStore) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	if chat.Status == "" {
		chat.Status = models.ChatStatusUploading
	}
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = now
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chats (id, owner_id, chat_name, original_filename, upload_token, size_bytes, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		chat.ID, chat.OwnerID, chat.ChatName, chat.OriginalFilename, chat.UploadToken,
		chat.SizeBytes, chat.Status, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	var c models.Chat
	err := s.pool.QueryRow(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = $1`, id,
	).Scan(&c.ID, &c.OwnerID, &c.ChatName, &c.OriginalFilename, &c.UploadToken, &c.MessageCount, &c.SizeBytes,
		&c.Status, &c.ErrorMessage, &c.LastMessageAt, &c.LastMessagePreview, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) UpdateChatName(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET chat_name = $2, updated_at = NOW() WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("update chat name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// validTransitions lists the chat statuses reachable from each status.
// error -> processing and processing -> processing admit redelivered attempts.
var validTransitions = map[string][]string{
	models.ChatStatusUploading:  {models.ChatStatusProcessing, models.ChatStatusError},
	models.ChatStatusProcessing: {models.ChatStatusProcessing, models.ChatStatusReady, models.ChatStatusError},
	models.ChatStatusError:      {models.ChatStatusProcessing},
}

// CanTransition reports whether a chat may move from one status to another.
func CanTransition(from, to string) bool {
	return slices.Contains(validTransitions[from], to)
}

func (s *PostgresStore) UpdateChatStatus(ctx context.Context, id uuid.UUID, status string, opts ...ChatUpdateOption) error {
	params := ApplyChatUpdateOptions(opts...)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM chats WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get chat status: %w", err)
		}

		if !CanTransition(current, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
		}

		query := `UPDATE chats SET status = $2, updated_at = $3`
		args := []any{id, status, time.Now().UTC()}
		argIdx := 4

		switch {
		case params.ErrorMessage != nil:
			query += fmt.Sprintf(", error_message = $%d", argIdx)
			args = append(args, *params.ErrorMessage)
			argIdx++
		case status == models.ChatStatusProcessing:
			query += ", error_message = NULL"
		}
		if params.SizeBytes != nil {
			query += fmt.Sprintf(", size_bytes = $%d", argIdx)
			args = append(args, *params.SizeBytes)
			argIdx++
		}

		query += " WHERE id = $1"

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("update chat status: %w", err)
		}
		return nil
	})
}

// FinalizeChatSummary writes the aggregate and marks the chat ready in one
// statement. Only a chat that is still processing can be finalized.
func (s *PostgresStore) FinalizeChatSummary(ctx context.Context, id uuid.UUID, summary ChatSummary) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET message_count = $2, last_message_at = $3, last_message_preview = $4,
		   status = $5, error_message = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = $6`,
		id, summary.MessageCount, summary.LastMessageAt, summary.LastMessagePreview,
		models.ChatStatusReady, models.ChatStatusProcessing)
	if err != nil {
		return fmt.Errorf("finalize chat summary: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	chat, err := s.GetChat(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, chat.Status, models.ChatStatusReady)
}

// --- Messages ---

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) (uuid.UUID, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, chat_id, sender_name, sender_is_me, timestamp, body, message_type, order_index, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		msg.ID, msg.ChatID, msg.SenderName, msg.SenderIsMe, msg.Timestamp, msg.Body,
		string(msg.MessageType), msg.OrderIndex, msg.Metadata,
	).Scan(&msg.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return uuid.Nil, ErrDuplicateKey
		}
		return uuid.Nil, fmt.Errorf("create message: %w", err)
	}
	return msg.ID, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, chatID uuid.UUID, page Page) ([]*models.Message, error) {
	if page.Limit <= 0 {
		page.Limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, sender_name, sender_is_me, timestamp, body, message_type, order_index, metadata, created_at
		 FROM messages WHERE chat_id = $1 ORDER BY order_index LIMIT $2 OFFSET $3`,
		chatID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var m models.Message
		var msgType string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderName, &m.SenderIsMe, &m.Timestamp, &m.Body,
			&msgType, &m.OrderIndex, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.MessageType = models.MessageType(msgType)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// DeleteChatMessages removes every message of a chat; their media records go
// with them.
func (s *PostgresStore) DeleteChatMessages(ctx context.Context, chatID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE chat_id = $1`, chatID)
	if err != nil {
		return 0, fmt.Errorf("delete chat messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Media Files ---

func (s *PostgresStore) CreateMediaFile(ctx context.Context, file *models.MediaFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO media_files (id, message_id, chat_id, owner_id, original_name, storage_path, thumb_path,
		   mime_type, size_bytes, width, height)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		file.ID, file.MessageID, file.ChatID, file.OwnerID, file.OriginalName, file.StoragePath, file.ThumbPath,
		file.MimeType, file.SizeBytes, file.Width, file.Height,
	).Scan(&file.CreatedAt)
	if err != nil {
		return fmt.Errorf("create media file: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMediaFiles(ctx context.Context, chatID uuid.UUID) ([]*models.MediaFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.message_id, f.chat_id, f.owner_id, f.original_name, f.storage_path, f.thumb_path,
		   f.mime_type, f.size_bytes, f.width, f.height, f.created_at
		 FROM media_files f JOIN messages m ON m.id = f.message_id
		 WHERE f.chat_id = $1 ORDER BY m.order_index`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list media files: %w", err)
	}
	defer rows.Close()

	var files []*models.MediaFile
	for rows.Next() {
		var f models.MediaFile
		if err := rows.Scan(&f.ID, &f.MessageID, &f.ChatID, &f.OwnerID, &f.OriginalName, &f.StoragePath, &f.ThumbPath,
			&f.MimeType, &f.SizeBytes, &f.Width, &f.Height, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media file: %w", err)
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
