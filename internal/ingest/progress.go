package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chatvault/internal/cache"
)

// Stage is a step of one ingestion attempt.
type Stage string

const (
	StageReceived   Stage = "received"
	StageExtracting Stage = "extracting"
	StageParsing    Stage = "parsing"
	StagePersisting Stage = "persisting"
	StageFinalizing Stage = "finalizing"
	StageReady      Stage = "ready"
	StageFailed     Stage = "failed"
)

// Progress checkpoints. The persistence loop fills the span between
// percentPersisting and percentPersisting+persistSpan.
const (
	percentReceived   = 10
	percentExtracting = 20
	percentParsing    = 40
	percentInventory  = 50
	percentPersisting = 60
	persistSpan       = 35
	percentDone       = 100
)

// ProgressSink receives progress checkpoints.
type ProgressSink interface {
	SetProgress(ctx context.Context, chatID uuid.UUID, p cache.Progress, ttl time.Duration) error
}

// progressReporter publishes a non-decreasing percentage for one attempt.
// Each attempt starts its own sequence at StageReceived, so after a failed
// attempt the published percentage drops back; the "failed" then "received"
// stages mark the restart. Publish failures are logged and otherwise ignored.
type progressReporter struct {
	sink    ProgressSink
	chatID  uuid.UUID
	ttl     time.Duration
	logger  *slog.Logger
	percent int
	stage   Stage
}

func newProgressReporter(sink ProgressSink, chatID uuid.UUID, ttl time.Duration, logger *slog.Logger) *progressReporter {
	return &progressReporter{sink: sink, chatID: chatID, ttl: ttl, logger: logger}
}

func (r *progressReporter) report(ctx context.Context, stage Stage, percent int) {
	percent = max(r.percent, min(max(percent, 0), percentDone))
	if percent == r.percent && stage == r.stage {
		return
	}
	r.percent, r.stage = percent, stage

	if r.sink == nil {
		return
	}
	err := r.sink.SetProgress(ctx, r.chatID, cache.Progress{Percent: percent, Stage: string(stage)}, r.ttl)
	if err != nil {
		r.logger.Warn("publish progress failed", "stage", stage, "percent", percent, "error", err)
	}
}

// persistPercent interpolates progress after done of total messages.
func persistPercent(done, total int) int {
	if total <= 0 {
		return percentPersisting + persistSpan
	}
	return percentPersisting + persistSpan*done/total
}
