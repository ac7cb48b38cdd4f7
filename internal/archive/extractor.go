// Package archive unpacks uploaded chat exports and inventories their contents.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiranshivaraju/chatvault/pkg/models"
)

// ErrArchiveUnreadable is returned when the archive cannot be opened at all.
// It is fatal for the job attempt.
var ErrArchiveUnreadable = errors.New("archive unreadable")

// EntryResult is the outcome of extracting one archive member. A non-nil Err
// means only that member failed; siblings are still extracted.
type EntryResult struct {
	Entry models.ExtractedEntry
	Err   error
}

// Archive is an opened zip export.
type Archive struct {
	path   string
	reader *zip.ReadCloser
}

// Open opens the archive at path. Any failure wraps ErrArchiveUnreadable.
func Open(path string) (*Archive, error) {
	// Insecure member names are rejected per entry by safeJoin.
	rc, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %s: %v", ErrArchiveUnreadable, filepath.Base(path), err)
	}
	return &Archive{path: path, reader: rc}, nil
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.reader.Close()
}

// Len returns the number of members, directories included.
func (a *Archive) Len() int {
	return len(a.reader.File)
}

// Entries extracts members into dest one at a time, in archive order, and
// yields a result per member. Directory members are created and yielded with
// IsDirectory set. Iteration stops early if ctx is cancelled between members.
func (a *Archive) Entries(ctx context.Context, dest string) iter.Seq[EntryResult] {
	return func(yield func(EntryResult) bool) {
		for _, f := range a.reader.File {
			if err := ctx.Err(); err != nil {
				yield(EntryResult{Entry: models.ExtractedEntry{Name: f.Name}, Err: err})
				return
			}
			if !yield(extractEntry(f, dest)) {
				return
			}
		}
	}
}

func extractEntry(f *zip.File, dest string) EntryResult {
	name := strings.ReplaceAll(f.Name, `\`, "/")
	entry := models.ExtractedEntry{Name: filepath.Base(name)}

	target, err := safeJoin(dest, name)
	if err != nil {
		return EntryResult{Entry: entry, Err: err}
	}
	entry.AbsolutePath = target

	if strings.HasSuffix(name, "/") {
		entry.IsDirectory = true
		if err := os.MkdirAll(target, 0755); err != nil {
			return EntryResult{Entry: entry, Err: fmt.Errorf("create directory %s: %w", name, err)}
		}
		return EntryResult{Entry: entry}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return EntryResult{Entry: entry, Err: fmt.Errorf("create parent of %s: %w", name, err)}
	}

	rc, err := f.Open()
	if err != nil {
		return EntryResult{Entry: entry, Err: fmt.Errorf("open entry %s: %w", name, err)}
	}

	out, err := os.Create(target)
	if err != nil {
		rc.Close()
		return EntryResult{Entry: entry, Err: fmt.Errorf("create file %s: %w", target, err)}
	}

	n, copyErr := io.Copy(out, rc)
	closeOutErr := out.Close()
	closeRcErr := rc.Close()

	if err := errors.Join(copyErr, closeOutErr, closeRcErr); err != nil {
		os.Remove(target)
		return EntryResult{Entry: entry, Err: fmt.Errorf("extract %s: %w", name, err)}
	}

	entry.SizeBytes = n
	return EntryResult{Entry: entry}
}

// safeJoin joins name under dest and rejects members that would escape it.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf("entry %q escapes extraction root", name)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("abs path %s: %w", name, err)
	}
	return abs, nil
}

// Report summarizes a full extraction.
type Report struct {
	Entries []models.ExtractedEntry // non-directory members, in archive order
	Failed  []EntryResult
}

// Err joins the per-entry failures, or returns nil if every member extracted.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// Extract unpacks every member of the archive at archivePath into dest.
// Only a failure to open the archive (or create dest) is returned as an error;
// member failures are logged and collected in the report.
func Extract(ctx context.Context, archivePath, dest string, logger *slog.Logger) (*Report, error) {
	l := logger.With(slog.String("archive", filepath.Base(archivePath)))
	start := time.Now()

	a, err := Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, fmt.Errorf("create extraction root %s: %w", dest, err)
	}

	l.Info("extracting archive", slog.Int("members", a.Len()))

	report := &Report{}
	for res := range a.Entries(ctx, dest) {
		if res.Err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			l.Warn("skipping archive entry", "entry", res.Entry.Name, "error", res.Err)
			report.Failed = append(report.Failed, res)
			continue
		}
		if res.Entry.IsDirectory {
			continue
		}
		report.Entries = append(report.Entries, res.Entry)
	}

	l.Info("archive extracted",
		slog.Int("files", len(report.Entries)),
		slog.Int("failed", len(report.Failed)),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))

	return report, nil
}
