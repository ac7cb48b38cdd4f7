// Package parser turns an exported chat transcript into ordered messages.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kiranshivaraju/chatvault/pkg/models"
)

const (
	datePart = `(\d{1,2}/\d{1,2}/\d{2,4})`
	timePart = `(\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AaPp]\.?\s*[Mm]\.?)?)`
	// "12/31/23, 11:59 PM - " or "[12/31/23, 11:59:01 PM] "
	headerPrefix = `^\[?` + datePart + `,?\s+` + timePart + `(?:\]\s*-?|\s*-)\s*`

	maxLineBytes = 4 * 1024 * 1024
)

var (
	reMessageHeader = regexp.MustCompile(headerPrefix + `([^:]+?):\s*(.*)$`)
	reSystemHeader  = regexp.MustCompile(headerPrefix + `(.+)$`)

	// Exports put a narrow no-break space before AM/PM and a left-to-right
	// mark in front of attachment lines.
	lineCleaner = strings.NewReplacer(
		"\u202f", " ",
		"\u00a0", " ",
		"\u200e", "",
		"\ufeff", "",
	)
)

// Options configures a Parser.
type Options struct {
	// SelfNames are sender names (case-insensitive) that denote the exporting user.
	SelfNames []string
	// Location is the zone header timestamps are read in. Defaults to UTC.
	Location *time.Location
	// Now supplies the fallback timestamp for unparseable headers. Defaults to time.Now.
	Now func() time.Time
}

// Parser reads transcripts. It holds no per-parse state and is safe for concurrent use.
type Parser struct {
	selfNames map[string]bool
	loc       *time.Location
	now       func() time.Time
}

// New creates a Parser.
func New(opts Options) *Parser {
	p := &Parser{
		selfNames: make(map[string]bool, len(opts.SelfNames)),
		loc:       opts.Location,
		now:       opts.Now,
	}
	for _, n := range opts.SelfNames {
		p.selfNames[strings.ToLower(strings.TrimSpace(n))] = true
	}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// ParseFile parses the transcript at path.
func (p *Parser) ParseFile(path string) ([]models.ParsedMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse reads r line by line. A header line opens a new message; any other
// non-blank line is appended to the open message's body. Lines before the
// first header are dropped. OrderIndex runs 0..N-1 in file order. Invalid
// UTF-8 sequences are replaced with U+FFFD.
func (p *Parser) Parse(r io.Reader) ([]models.ParsedMessage, error) {
	parsedAt := p.now().In(p.loc)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		messages []models.ParsedMessage
		current  *models.ParsedMessage
		body     strings.Builder
		lineNo   int
	)

	finalize := func() {
		if current == nil {
			return
		}
		text := body.String()
		if text != "" {
			current.Body = &text
		}
		if current.MessageType == "" {
			current.MessageType = Classify(text)
		}
		current.OrderIndex = len(messages)
		messages = append(messages, *current)
		current = nil
		body.Reset()
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.ToValidUTF8(lineCleaner.Replace(scanner.Text()), "\uFFFD"))
		if line == "" {
			continue
		}

		if msg, text, ok := p.matchHeader(line, parsedAt); ok {
			finalize()
			msg.Metadata.SourceLineNumber = lineNo
			current = &msg
			body.WriteString(text)
			continue
		}

		if current == nil {
			continue
		}
		if body.Len() > 0 {
			body.WriteByte('\n')
		}
		body.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript line %d: %w", lineNo+1, err)
	}
	finalize()

	return messages, nil
}

// matchHeader recognizes a header line and returns the opened message with the
// first line of its body.
func (p *Parser) matchHeader(line string, parsedAt time.Time) (models.ParsedMessage, string, bool) {
	var (
		msg               models.ParsedMessage
		date, clock, text string
	)

	if m := reMessageHeader.FindStringSubmatch(line); m != nil {
		date, clock, text = m[1], m[2], strings.TrimSpace(m[4])
		msg.SenderName = strings.TrimSpace(m[3])
		msg.IsSelf = p.selfNames[strings.ToLower(msg.SenderName)]
	} else if m := reSystemHeader.FindStringSubmatch(line); m != nil {
		date, clock, text = m[1], m[2], strings.TrimSpace(m[3])
		msg.MessageType = models.MessageTypeSystem
	} else {
		return msg, "", false
	}

	ts, ok := parseTimestamp(date, clock, p.loc)
	if !ok {
		ts = parsedAt
		msg.Metadata.TimestampUnparsed = true
	}
	msg.Timestamp = ts

	return msg, text, true
}
