package archive

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/kiranshivaraju/chatvault/pkg/models"
)

// ScanMedia walks root depth-first and returns every regular file whose
// extension is on the media allow-list. Other files are skipped silently.
func ScanMedia(root string) ([]models.MediaCandidate, error) {
	var out []models.MediaCandidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !models.IsMediaExt(ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("abs path %s: %w", path, err)
		}
		out = append(out, models.MediaCandidate{
			Name:         d.Name(),
			AbsolutePath: abs,
			SizeBytes:    info.Size(),
			Extension:    ext,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan media under %s: %w", root, err)
	}
	return out, nil
}
