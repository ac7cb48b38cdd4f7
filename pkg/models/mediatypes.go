package models

import (
	"path/filepath"
	"strings"
)

var (
	imageExts    = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
	videoExts    = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}
	audioExts    = []string{".opus", ".ogg", ".mp3", ".m4a", ".aac", ".wav"}
	documentExts = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".zip", ".rar"}
)

// mediaExts is the allow-list for media candidates. Transcripts (.txt) are
// deliberately absent.
var mediaExts = func() map[string]MessageType {
	m := make(map[string]MessageType)
	for _, e := range imageExts {
		m[e] = MessageTypeImage
	}
	for _, e := range videoExts {
		m[e] = MessageTypeVideo
	}
	for _, e := range audioExts {
		m[e] = MessageTypeAudio
	}
	for _, e := range documentExts {
		m[e] = MessageTypeDocument
	}
	return m
}()

// IsMediaExt reports whether ext (with leading dot, any case) is on the media allow-list.
func IsMediaExt(ext string) bool {
	_, ok := mediaExts[strings.ToLower(ext)]
	return ok
}

// MediaTypeForName derives the message type of a media file from its name:
// image, video or audio by extension, document for anything else.
func MediaTypeForName(name string) MessageType {
	if t, ok := mediaExts[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return MessageTypeDocument
}
