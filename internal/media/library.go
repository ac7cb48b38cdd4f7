package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chatvault/pkg/models"
)

const (
	originalDir = "original"
	thumbsDir   = "thumbs"
)

// StoredMedia describes a media file after it has been placed in the library.
// Paths are relative to the library root, slash-separated.
type StoredMedia struct {
	StoragePath string
	ThumbPath   *string
	MimeType    string
	SizeBytes   int64
	Width       *int
	Height      *int
}

// Library is the chat-scoped media store on disk:
//
//	<root>/<owner>/<chat>/original/<messageID><ext>
//	<root>/<owner>/<chat>/thumbs/<messageID>.jpg
type Library struct {
	root   string
	thumbs *Thumbnailer
	logger *slog.Logger
}

// NewLibrary creates a Library rooted at root.
func NewLibrary(root string, opts ThumbnailOptions, logger *slog.Logger) *Library {
	return &Library{
		root:   root,
		thumbs: NewThumbnailer(opts, logger),
		logger: logger,
	}
}

// Root returns the library root directory.
func (l *Library) Root() string {
	return l.root
}

// ChatDir returns the directory holding all media of one chat.
func (l *Library) ChatDir(ownerID, chatID uuid.UUID) string {
	return filepath.Join(l.root, ownerID.String(), chatID.String())
}

// Abs resolves a stored relative path to a filesystem path.
func (l *Library) Abs(rel string) string {
	return filepath.Join(l.root, filepath.FromSlash(rel))
}

// Reset removes every stored file of a chat.
func (l *Library) Reset(ownerID, chatID uuid.UUID) error {
	if err := os.RemoveAll(l.ChatDir(ownerID, chatID)); err != nil {
		return fmt.Errorf("reset media for chat %s: %w", chatID, err)
	}
	return nil
}

// Store copies the candidate into the chat's original/ tree under a name
// derived from messageID. Images also get dimensions and a thumbnail; a
// thumbnail failure leaves ThumbPath and the dimensions nil.
func (l *Library) Store(ownerID, chatID, messageID uuid.UUID, c models.MediaCandidate, mt models.MessageType) (*StoredMedia, error) {
	ext := strings.ToLower(filepath.Ext(c.Name))
	chatDir := l.ChatDir(ownerID, chatID)
	dst := filepath.Join(chatDir, originalDir, messageID.String()+ext)

	n, err := copyFile(c.AbsolutePath, dst)
	if err != nil {
		return nil, fmt.Errorf("store media %s: %w", c.Name, err)
	}

	stored := &StoredMedia{
		StoragePath: l.rel(dst),
		MimeType:    DetectMimeType(dst),
		SizeBytes:   n,
	}

	if mt != models.MessageTypeImage {
		return stored, nil
	}

	thumbDst := filepath.Join(chatDir, thumbsDir, messageID.String()+".jpg")
	dims, thumb := l.thumbs.Derive(dst, thumbDst)
	stored.Width, stored.Height = dims.Width, dims.Height
	if thumb != nil {
		rel := l.rel(*thumb)
		stored.ThumbPath = &rel
	}
	return stored, nil
}

func (l *Library) rel(path string) string {
	r, err := filepath.Rel(l.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(r)
}

func copyFile(src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("create media dir: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(out, in)
	if err := errors.Join(copyErr, out.Close()); err != nil {
		os.Remove(dst)
		return 0, err
	}
	return n, nil
}
