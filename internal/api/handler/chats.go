package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/chatvault/internal/api/response"
	"github.com/kiranshivaraju/chatvault/internal/cache"
	"github.com/kiranshivaraju/chatvault/internal/store"
	"github.com/kiranshivaraju/chatvault/pkg/models"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// ChatReader is the slice of the record store the chat handlers read from.
type ChatReader interface {
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	ListMessages(ctx context.Context, chatID uuid.UUID, page store.Page) ([]*models.Message, error)
}

// ProgressReader reads the progress channel.
type ProgressReader interface {
	GetProgress(ctx context.Context, chatID uuid.UUID) (cache.Progress, bool, error)
}

// ProgressView is the body of GET /api/v1/chats/{chatID}/progress.
type ProgressView struct {
	ChatID       uuid.UUID `json:"chat_id"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	Progress     int       `json:"progress"`
	Stage        string    `json:"stage,omitempty"`
}

// ChatHandler serves chat status, progress and messages.
type ChatHandler struct {
	chats    ChatReader
	progress ProgressReader
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chats ChatReader, progress ProgressReader) *ChatHandler {
	return &ChatHandler{chats: chats, progress: progress}
}

// Get handles GET /api/v1/chats/{chatID}.
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.loadChat(w, r)
	if !ok {
		return
	}
	response.JSON(w, chat)
}

// Progress handles GET /api/v1/chats/{chatID}/progress. A ready chat always
// reports 100, even after its progress entry has expired.
func (h *ChatHandler) Progress(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.loadChat(w, r)
	if !ok {
		return
	}

	view := ProgressView{
		ChatID:       chat.ID,
		Status:       chat.Status,
		ErrorMessage: chat.ErrorMessage,
	}

	p, found, err := h.progress.GetProgress(r.Context(), chat.ID)
	if err != nil {
		slog.Warn("read progress failed", "chat_id", chat.ID, "error", err)
	}
	if found {
		view.Progress = p.Percent
		view.Stage = p.Stage
	}
	if chat.Status == models.ChatStatusReady {
		view.Progress = 100
	}

	response.JSON(w, view)
}

// Messages handles GET /api/v1/chats/{chatID}/messages?page=&limit=.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.loadChat(w, r)
	if !ok {
		return
	}

	page, err := intParam(r, "page", 1)
	if err != nil || page < 1 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
		return
	}
	limit, err := intParam(r, "limit", defaultPageLimit)
	if err != nil || limit < 1 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
		return
	}
	limit = min(limit, maxPageLimit)

	msgs, err := h.chats.ListMessages(r.Context(), chat.ID, store.Page{Offset: (page - 1) * limit, Limit: limit})
	if err != nil {
		response.InternalError(w, "list messages failed", err, "chat_id", chat.ID)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}

	response.Collection(w, msgs, response.PaginationMeta{
		Page:    page,
		Limit:   limit,
		Total:   chat.MessageCount,
		HasNext: page*limit < chat.MessageCount,
	})
}

func (h *ChatHandler) loadChat(w http.ResponseWriter, r *http.Request) (*models.Chat, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "chatID must be a UUID", nil)
		return nil, false
	}

	chat, err := h.chats.GetChat(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Chat not found", nil)
		return nil, false
	}
	if err != nil {
		response.InternalError(w, "get chat failed", err, "chat_id", id)
		return nil, false
	}
	return chat, true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
