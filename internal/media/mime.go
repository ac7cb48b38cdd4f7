package media

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultMimeType = "application/octet-stream"

// DetectMimeType sniffs the file content, falling back to the extension and
// finally to application/octet-stream.
func DetectMimeType(path string) string {
	if mt, err := mimetype.DetectFile(path); err == nil && !mt.Is(defaultMimeType) && !mt.Is("text/plain") {
		return stripParams(mt.String())
	}
	ext := strings.ToLower(filepath.Ext(path))
	if byExt := extensionMime(ext); byExt != "" {
		return byExt
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return stripParams(byExt)
	}
	return defaultMimeType
}

func stripParams(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// extensionMime pins the types of media extensions whose platform mapping
// varies between systems.
func extensionMime(ext string) string {
	switch ext {
	case ".opus", ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/x-m4a"
	case ".aac":
		return "audio/aac"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	default:
		return ""
	}
}
