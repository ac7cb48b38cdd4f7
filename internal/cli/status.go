package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/chatvault/internal/cache"
	"github.com/kiranshivaraju/chatvault/internal/queue"
	"github.com/kiranshivaraju/chatvault/pkg/models"
)

var deadLimit int64

var statusCmd = &cobra.Command{
	Use:   "status <chat-id>",
	Short: "Show a chat's status and ingestion progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show job queue depths and dead letters",
	Args:  cobra.NoArgs,
	RunE:  runQueue,
}

func init() {
	queueCmd.Flags().Int64VarP(&deadLimit, "limit", "n", 10, "max dead letters to list")
}

type chatGetter interface {
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
}

type progressGetter interface {
	GetProgress(ctx context.Context, chatID uuid.UUID) (cache.Progress, bool, error)
}

type queueInspector interface {
	Stats(ctx context.Context) (queue.Stats, error)
	DeadLetters(ctx context.Context, limit int64) ([]queue.Envelope, error)
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("chat ID must be a UUID: %w", err)
	}

	ctx := cmd.Context()
	if err := openBackends(ctx); err != nil {
		return err
	}
	return printStatus(ctx, cmd.OutOrStdout(), chatStore, redisCache, id)
}

func printStatus(ctx context.Context, out io.Writer, chats chatGetter, progress progressGetter, id uuid.UUID) error {
	chat, err := chats.GetChat(ctx, id)
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}

	fmt.Fprintf(out, "%s (%s)\n", chat.ChatName, chat.ID)
	fmt.Fprintf(out, "  file:     %s\n", chat.OriginalFilename)
	fmt.Fprintf(out, "  status:   %s\n", chat.Status)
	if chat.ErrorMessage != nil {
		fmt.Fprintf(out, "  error:    %s\n", *chat.ErrorMessage)
	}

	p, found, err := progress.GetProgress(ctx, id)
	switch {
	case err != nil:
		fmt.Fprintf(out, "  progress: unavailable (%v)\n", err)
	case chat.Status == models.ChatStatusReady:
		fmt.Fprintf(out, "  progress: 100%%\n")
	case found:
		fmt.Fprintf(out, "  progress: %d%% (%s, %s ago)\n", p.Percent, p.Stage, time.Since(p.UpdatedAt).Round(time.Second))
	default:
		fmt.Fprintf(out, "  progress: none reported\n")
	}

	if chat.Status == models.ChatStatusReady {
		fmt.Fprintf(out, "  messages: %d\n", chat.MessageCount)
		if chat.LastMessageAt != nil {
			fmt.Fprintf(out, "  last:     %s\n", chat.LastMessageAt.Format(time.RFC3339))
		}
		if chat.LastMessagePreview != nil {
			fmt.Fprintf(out, "  preview:  %s\n", *chat.LastMessagePreview)
		}
	}
	return nil
}

func runQueue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := openBackends(ctx); err != nil {
		return err
	}
	return printQueue(ctx, cmd.OutOrStdout(), jobQueue, deadLimit)
}

func printQueue(ctx context.Context, out io.Writer, q queueInspector, limit int64) error {
	stats, err := q.Stats(ctx)
	if err != nil {
		return fmt.Errorf("queue stats: %w", err)
	}
	fmt.Fprintf(out, "waiting: %d  delayed: %d  processing: %d  dead: %d\n",
		stats.Waiting, stats.Delayed, stats.Processing, stats.Dead)

	if stats.Dead == 0 {
		return nil
	}
	dead, err := q.DeadLetters(ctx, limit)
	if err != nil {
		return fmt.Errorf("dead letters: %w", err)
	}
	fmt.Fprintf(out, "\nDead letters (%d):\n", len(dead))
	for _, e := range dead {
		fmt.Fprintf(out, "  %s  chat=%s  attempts=%d/%d  %s\n",
			e.ID, e.Job.ChatID, e.Attempt, e.MaxAttempts, e.LastError)
	}
	return nil
}
