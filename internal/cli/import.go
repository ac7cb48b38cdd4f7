package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/chatvault/internal/archive"
	"github.com/kiranshivaraju/chatvault/internal/store"
	"github.com/kiranshivaraju/chatvault/pkg/models"
)

var importOwner string

var importCmd = &cobra.Command{
	Use:   "import <archive.zip>",
	Short: "Submit a chat export archive for ingestion",
	Long: `Stage a chat export archive in the upload directory, create its chat
record and queue it for the worker.

Examples:
  chatctl import "WhatsApp Chat with Alice.zip" --owner 5b0c...`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importOwner, "owner", "", "owning user ID (UUID)")
	_ = importCmd.MarkFlagRequired("owner")
}

// chatRegistrar is the slice of the record store import writes to.
type chatRegistrar interface {
	CreateChat(ctx context.Context, chat *models.Chat) error
	UpdateChatStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.ChatUpdateOption) error
}

// jobSubmitter accepts ingestion jobs.
type jobSubmitter interface {
	Enqueue(ctx context.Context, job models.IngestionJob) (uuid.UUID, error)
}

func runImport(cmd *cobra.Command, args []string) error {
	owner, err := uuid.Parse(importOwner)
	if err != nil {
		return fmt.Errorf("--owner must be a UUID: %w", err)
	}

	ctx := cmd.Context()
	if err := openBackends(ctx); err != nil {
		return err
	}

	chat, jobID, err := submitArchive(ctx, chatStore, jobQueue, cfg.Storage.UploadDir, args[0], owner)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Queued %s\n", chat.OriginalFilename)
	fmt.Fprintf(out, "  chat:   %s\n", chat.ID)
	fmt.Fprintf(out, "  job:    %s\n", jobID)
	fmt.Fprintf(out, "  status: %s\n", chat.Status)
	return nil
}

// submitArchive stages src at <uploadDir>/<owner>/<token>.zip, records the
// chat as uploading and queues its ingestion job. The archive is checked to
// be a readable zip before anything is written.
func submitArchive(ctx context.Context, chats chatRegistrar, jobs jobSubmitter, uploadDir, src string, owner uuid.UUID) (*models.Chat, uuid.UUID, error) {
	a, err := archive.Open(src)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if err := a.Close(); err != nil {
		return nil, uuid.Nil, fmt.Errorf("close archive: %w", err)
	}

	token := uuid.New()
	staged, err := filepath.Abs(filepath.Join(uploadDir, owner.String(), token.String()+".zip"))
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("resolve upload path: %w", err)
	}
	size, err := stageFile(src, staged)
	if err != nil {
		return nil, uuid.Nil, err
	}

	chat := &models.Chat{
		OwnerID:          owner,
		ChatName:         archive.ChatName(src),
		OriginalFilename: filepath.Base(src),
		UploadToken:      token,
		SizeBytes:        size,
		Status:           models.ChatStatusUploading,
	}
	if err := chats.CreateChat(ctx, chat); err != nil {
		os.Remove(staged)
		return nil, uuid.Nil, fmt.Errorf("create chat: %w", err)
	}

	jobID, err := jobs.Enqueue(ctx, models.IngestionJob{
		ChatID:           chat.ID,
		OwnerID:          owner,
		UploadToken:      token,
		ArchivePath:      staged,
		OriginalFilename: chat.OriginalFilename,
	})
	if err != nil {
		cause := fmt.Errorf("enqueue job: %w", err)
		if uerr := chats.UpdateChatStatus(ctx, chat.ID, models.ChatStatusError, store.WithErrorMessage(cause.Error())); uerr != nil {
			cause = errors.Join(cause, fmt.Errorf("mark chat failed: %w", uerr))
		}
		os.Remove(staged)
		return nil, uuid.Nil, cause
	}

	return chat, jobID, nil
}

func stageFile(src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("create upload directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create staged archive: %w", err)
	}
	n, copyErr := io.Copy(out, in)
	if err := errors.Join(copyErr, out.Close()); err != nil {
		os.Remove(dst)
		return 0, fmt.Errorf("stage archive: %w", err)
	}
	return n, nil
}
