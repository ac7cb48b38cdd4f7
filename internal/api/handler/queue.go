package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/chatvault/internal/api/response"
	"github.com/kiranshivaraju/chatvault/internal/queue"
)

const deadLetterPreview = 20

// QueueInspector exposes queue depths and dead letters.
type QueueInspector interface {
	Stats(ctx context.Context) (queue.Stats, error)
	DeadLetters(ctx context.Context, limit int64) ([]queue.Envelope, error)
}

// NewQueueHandler returns an http.HandlerFunc for GET /api/v1/queue.
func NewQueueHandler(q QueueInspector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := q.Stats(r.Context())
		if err != nil {
			slog.Error("queue stats failed", "error", err)
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "Queue is unavailable", nil)
			return
		}
		dead, err := q.DeadLetters(r.Context(), deadLetterPreview)
		if err != nil {
			slog.Error("read dead letters failed", "error", err)
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "Queue is unavailable", nil)
			return
		}
		if dead == nil {
			dead = []queue.Envelope{}
		}
		response.JSON(w, map[string]any{
			"stats":        stats,
			"dead_letters": dead,
		})
	}
}
