package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrNoTranscriptFound means the archive held no .txt file. It is fatal for the job.
var ErrNoTranscriptFound = errors.New("no transcript found in archive")

var reExportPrefix = regexp.MustCompile(`(?i)^whatsapp chat with\s*`)

// FindTranscript selects the conversation transcript under root: the only .txt
// file if there is one, otherwise the largest, with the first one walked
// winning ties.
func FindTranscript(root string) (string, error) {
	var (
		best     string
		bestSize int64 = -1
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !strings.EqualFold(filepath.Ext(d.Name()), ".txt") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() > bestSize {
			best, bestSize = path, info.Size()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("find transcript under %s: %w", root, err)
	}
	if best == "" {
		return "", ErrNoTranscriptFound
	}
	return best, nil
}

// ChatName derives a display name from the transcript file name,
// e.g. "WhatsApp Chat with Alice.txt" -> "Alice".
func ChatName(transcriptPath string) string {
	base := filepath.Base(transcriptPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	name := strings.TrimSpace(reExportPrefix.ReplaceAllString(base, ""))
	if name == "" {
		return "Unnamed Chat"
	}
	return name
}
