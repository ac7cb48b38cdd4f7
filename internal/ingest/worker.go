// Package ingest runs the ingestion pipeline: it turns an uploaded chat
// archive into persisted messages and media for one chat.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/chatvault/internal/archive"
	"github.com/kiranshivaraju/chatvault/internal/cache"
	"github.com/kiranshivaraju/chatvault/internal/media"
	"github.com/kiranshivaraju/chatvault/internal/parser"
	"github.com/kiranshivaraju/chatvault/internal/queue"
	"github.com/kiranshivaraju/chatvault/internal/store"
	"github.com/kiranshivaraju/chatvault/pkg/models"
)

const receiveErrorDelay = time.Second

// JobSource delivers ingestion jobs at least once.
type JobSource interface {
	Receive(ctx context.Context, timeout time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
	Fail(ctx context.Context, d *queue.Delivery, cause error) (queue.FailResult, error)
}

// Options configures a Worker.
type Options struct {
	UploadDir   string
	Concurrency int
	PollTimeout time.Duration
	ProgressTTL time.Duration
}

// Attempt identifies one delivery of a job.
type Attempt struct {
	Number int
	Max    int
}

// Final reports whether no further delivery will follow a failure.
func (a Attempt) Final() bool {
	return a.Number >= a.Max
}

// Worker consumes ingestion jobs. Each job is processed start to finish by a
// single goroutine; Concurrency controls how many jobs run side by side.
type Worker struct {
	source   JobSource
	store    store.Store
	progress ProgressSink
	library  *media.Library
	parser   *parser.Parser
	opts     Options
	logger   *slog.Logger
}

// New creates a Worker.
func New(source JobSource, st store.Store, progress ProgressSink, library *media.Library, p *parser.Parser, opts Options, logger *slog.Logger) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if opts.ProgressTTL <= 0 {
		opts.ProgressTTL = cache.DefaultProgressTTL
	}
	return &Worker{
		source:   source,
		store:    st,
		progress: progress,
		library:  library,
		parser:   p,
		opts:     opts,
		logger:   logger,
	}
}

// Run consumes jobs until ctx is cancelled. A job in flight when ctx is
// cancelled runs to completion before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range w.opts.Concurrency {
		g.Go(func() error {
			return w.consume(ctx, w.logger.With(slog.Int("consumer", i)))
		})
	}
	return g.Wait()
}

func (w *Worker) consume(ctx context.Context, l *slog.Logger) error {
	l.Info("consumer started")
	for {
		if ctx.Err() != nil {
			l.Info("consumer stopped")
			return nil
		}

		d, err := w.source.Receive(ctx, w.opts.PollTimeout)
		if errors.Is(err, queue.ErrNoJob) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			l.Error("receive job failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(receiveErrorDelay):
			}
			continue
		}

		w.handle(context.WithoutCancel(ctx), d, l)
	}
}

func (w *Worker) handle(ctx context.Context, d *queue.Delivery, l *slog.Logger) {
	attempt := Attempt{Number: d.Attempt, Max: d.MaxAttempts}
	err := w.Process(ctx, d.Job, attempt)
	if err == nil {
		if err := w.source.Ack(ctx, d); err != nil {
			l.Error("ack job failed", "job_id", d.ID, "error", err)
		}
		return
	}

	// The archive outlives a failed attempt until the queue has recorded that
	// no redelivery will follow.
	res, ferr := w.source.Fail(ctx, d, err)
	switch {
	case ferr != nil:
		l.Error("record job failure failed", "job_id", d.ID, "error", ferr)
	case res.Dead:
		l.Error("job exhausted its attempts", "job_id", d.ID, "chat_id", d.Job.ChatID, "attempts", d.Attempt)
		removeArchive(d.Job.ArchivePath, l)
	default:
		l.Warn("job scheduled for retry", "job_id", d.ID, "chat_id", d.Job.ChatID, "retry_in", res.RetryIn)
	}
}

// Process runs one attempt of job. On failure the chat is marked as errored
// and the error is returned for the queue to decide on redelivery. The working
// directory is always removed; the source archive only after success. A failed
// archive is removed by the consume loop once the queue dead-letters the job.
func (w *Worker) Process(ctx context.Context, job models.IngestionJob, attempt Attempt) (err error) {
	l := w.logger.With(
		slog.String("chat_id", job.ChatID.String()),
		slog.String("owner_id", job.OwnerID.String()),
		slog.String("upload_token", job.UploadToken.String()),
		slog.Int("attempt", attempt.Number),
	)
	start := time.Now()
	workDir := w.workDir(job)
	progress := newProgressReporter(w.progress, job.ChatID, w.opts.ProgressTTL, l)

	defer func() {
		if r := recover(); r != nil {
			l.Error("panic in ingestion", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}

		w.cleanup(workDir, job.ArchivePath, err == nil, l)

		if err != nil {
			w.markFailed(ctx, job.ChatID, err, l)
			progress.report(ctx, StageFailed, progress.percent)
			l.Error("ingestion failed", "error", err, "final_attempt", attempt.Final())
			return
		}
		l.Info("ingestion complete", slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	}()

	return w.run(ctx, job, workDir, progress, l)
}

func (w *Worker) run(ctx context.Context, job models.IngestionJob, workDir string, progress *progressReporter, l *slog.Logger) error {
	// received
	progress.report(ctx, StageReceived, percentReceived)
	chat, err := w.store.GetChat(ctx, job.ChatID)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}
	if chat.Status == models.ChatStatusReady {
		l.Info("chat already ingested, skipping redelivered job")
		progress.report(ctx, StageReady, percentDone)
		return nil
	}

	var sizeOpts []store.ChatUpdateOption
	if info, err := os.Stat(job.ArchivePath); err == nil {
		sizeOpts = append(sizeOpts, store.WithSizeBytes(info.Size()))
	}
	if err := w.store.UpdateChatStatus(ctx, job.ChatID, models.ChatStatusProcessing, sizeOpts...); err != nil {
		return fmt.Errorf("mark chat processing: %w", err)
	}

	// extracting
	progress.report(ctx, StageExtracting, percentExtracting)
	report, err := archive.Extract(ctx, job.ArchivePath, workDir, l)
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		l.Warn("archive extracted with skipped entries", "skipped", len(report.Failed))
	}

	// parsing
	progress.report(ctx, StageParsing, percentParsing)
	transcript, err := archive.FindTranscript(workDir)
	if err != nil {
		return err
	}
	if err := w.store.UpdateChatName(ctx, job.ChatID, archive.ChatName(transcript)); err != nil {
		return fmt.Errorf("update chat name: %w", err)
	}

	messages, err := w.parser.ParseFile(transcript)
	if err != nil {
		return fmt.Errorf("parse transcript: %w", err)
	}
	if n := countUnparsed(messages); n > 0 {
		l.Warn("transcript has unparseable timestamps", "messages", n)
	}

	candidates, err := archive.ScanMedia(workDir)
	if err != nil {
		return err
	}
	l.Info("transcript parsed",
		slog.String("transcript", filepath.Base(transcript)),
		slog.Int("messages", len(messages)),
		slog.Int("media_candidates", len(candidates)))
	progress.report(ctx, StageParsing, percentInventory)

	// persisting
	if err := w.reset(ctx, job, l); err != nil {
		return err
	}
	progress.report(ctx, StagePersisting, percentPersisting)

	assoc := media.NewAssociator(candidates)
	linked := 0
	for i, pm := range messages {
		pm, candidate := assoc.Resolve(pm)
		if err := w.persist(ctx, job, pm, candidate); err != nil {
			return err
		}
		if candidate != nil {
			linked++
		}
		progress.report(ctx, StagePersisting, persistPercent(i+1, len(messages)))
	}

	// finalizing
	progress.report(ctx, StageFinalizing, percentPersisting+persistSpan)
	if err := w.store.FinalizeChatSummary(ctx, job.ChatID, summarize(messages)); err != nil {
		return fmt.Errorf("finalize chat: %w", err)
	}
	progress.report(ctx, StageReady, percentDone)

	l.Info("chat persisted", slog.Int("messages", len(messages)), slog.Int("media_linked", linked))
	return nil
}

// persist writes one message and, when linked, its media file.
func (w *Worker) persist(ctx context.Context, job models.IngestionJob, pm models.ParsedMessage, candidate *models.MediaCandidate) error {
	msgID, err := w.store.CreateMessage(ctx, &models.Message{
		ChatID:      job.ChatID,
		SenderName:  pm.SenderName,
		SenderIsMe:  pm.IsSelf,
		Timestamp:   pm.Timestamp,
		Body:        pm.Body,
		MessageType: pm.MessageType,
		OrderIndex:  pm.OrderIndex,
		Metadata:    pm.Metadata,
	})
	if err != nil {
		return fmt.Errorf("persist message %d: %w", pm.OrderIndex, err)
	}
	if candidate == nil {
		return nil
	}

	stored, err := w.library.Store(job.OwnerID, job.ChatID, msgID, *candidate, pm.MessageType)
	if err != nil {
		return fmt.Errorf("persist media for message %d: %w", pm.OrderIndex, err)
	}
	err = w.store.CreateMediaFile(ctx, &models.MediaFile{
		MessageID:    msgID,
		ChatID:       job.ChatID,
		OwnerID:      job.OwnerID,
		OriginalName: candidate.Name,
		StoragePath:  stored.StoragePath,
		ThumbPath:    stored.ThumbPath,
		MimeType:     stored.MimeType,
		SizeBytes:    stored.SizeBytes,
		Width:        stored.Width,
		Height:       stored.Height,
	})
	if err != nil {
		return fmt.Errorf("persist media record for message %d: %w", pm.OrderIndex, err)
	}
	return nil
}

// reset discards what an earlier attempt persisted for the chat.
func (w *Worker) reset(ctx context.Context, job models.IngestionJob, l *slog.Logger) error {
	n, err := w.store.DeleteChatMessages(ctx, job.ChatID)
	if err != nil {
		return fmt.Errorf("reset chat messages: %w", err)
	}
	if err := w.library.Reset(job.OwnerID, job.ChatID); err != nil {
		return err
	}
	if n > 0 {
		l.Info("discarded messages from earlier attempt", "messages", n)
	}
	return nil
}

func (w *Worker) markFailed(ctx context.Context, chatID uuid.UUID, cause error, l *slog.Logger) {
	err := w.store.UpdateChatStatus(ctx, chatID, models.ChatStatusError, store.WithErrorMessage(cause.Error()))
	if err != nil {
		l.Error("mark chat errored failed", "error", err)
	}
}

func (w *Worker) cleanup(workDir, archivePath string, succeeded bool, l *slog.Logger) {
	if err := os.RemoveAll(workDir); err != nil {
		l.Warn("remove working directory failed", "dir", workDir, "error", err)
	}
	if succeeded {
		removeArchive(archivePath, l)
	}
}

func removeArchive(path string, l *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.Warn("remove source archive failed", "archive", path, "error", err)
	}
}

// workDir is the extraction root of a job: <upload dir>/<owner>/<upload token>.
func (w *Worker) workDir(job models.IngestionJob) string {
	return filepath.Join(w.opts.UploadDir, job.OwnerID.String(), job.UploadToken.String())
}

// summarize computes the chat aggregate from the parsed messages.
func summarize(messages []models.ParsedMessage) store.ChatSummary {
	s := store.ChatSummary{MessageCount: len(messages)}
	if len(messages) == 0 {
		return s
	}
	last := messages[len(messages)-1]
	at := last.Timestamp
	s.LastMessageAt = &at
	if last.Body != nil {
		preview := models.Preview(*last.Body)
		s.LastMessagePreview = &preview
	}
	return s
}

func countUnparsed(messages []models.ParsedMessage) int {
	n := 0
	for _, m := range messages {
		if m.Metadata.TimestampUnparsed {
			n++
		}
	}
	return n
}
