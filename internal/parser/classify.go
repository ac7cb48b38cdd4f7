package parser

import (
	"regexp"
	"strings"

	"github.com/kiranshivaraju/chatvault/pkg/models"
)

// omittedMarkers appear when the export was made without media; the
// attachment cannot be recovered so the message stays text.
var omittedMarkers = []string{
	"<media omitted>",
	"image omitted",
	"video omitted",
	"audio omitted",
	"document omitted",
	"sticker omitted",
	"gif omitted",
}

var bodyPatterns = []struct {
	typ models.MessageType
	re  *regexp.Regexp
}{
	{models.MessageTypeImage, regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)},
	{models.MessageTypeVideo, regexp.MustCompile(`(?i)\.(mp4|mov|avi|mkv|webm)$`)},
	{models.MessageTypeAudio, regexp.MustCompile(`(?i)\.(opus|ogg|mp3|m4a|aac|wav)$`)},
	{models.MessageTypeDocument, regexp.MustCompile(`(?i)\.(pdf|doc|docx|xls|xlsx|ppt|pptx|txt|zip|rar)$`)},
}

var reURL = regexp.MustCompile(`https?://`)

// Classify guesses a message type from body text alone. A linked media file
// later overrides the result.
func Classify(body string) models.MessageType {
	if body == "" {
		return models.MessageTypeText
	}

	lower := strings.ToLower(body)
	for _, marker := range omittedMarkers {
		if strings.Contains(lower, marker) {
			return models.MessageTypeText
		}
	}

	for _, p := range bodyPatterns {
		if p.re.MatchString(body) {
			return p.typ
		}
	}

	if reURL.MatchString(body) {
		return models.MessageTypeLink
	}

	return models.MessageTypeText
}
