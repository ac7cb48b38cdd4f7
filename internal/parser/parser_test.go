package parser_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/chatvault/internal/parser"
	"github.com/kiranshivaraju/chatvault/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newParser() *parser.Parser {
	return parser.New(parser.Options{
		SelfNames: []string{"you"},
		Now:       func() time.Time { return fixedNow },
	})
}

func parse(t *testing.T, transcript string) []models.ParsedMessage {
	t.Helper()
	msgs, err := newParser().Parse(strings.NewReader(transcript))
	require.NoError(t, err)
	return msgs
}

func TestParse_SingleHeaderLine(t *testing.T) {
	msgs := parse(t, "12/31/23, 11:59 PM - Alice: Happy New Year!\n")

	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, "Alice", m.SenderName)
	require.NotNil(t, m.Body)
	assert.Equal(t, "Happy New Year!", *m.Body)
	assert.Equal(t, models.MessageTypeText, m.MessageType)
	assert.Equal(t, 0, m.OrderIndex)
	assert.Equal(t, 1, m.Metadata.SourceLineNumber)
	assert.Nil(t, m.Metadata.LinkedMediaName)
	assert.False(t, m.Metadata.TimestampUnparsed)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC), m.Timestamp)
	assert.False(t, m.IsSelf)
}

func TestParse_ContinuationLineAppendsToOpenMessage(t *testing.T) {
	msgs := parse(t, "12/31/23, 11:59 PM - Alice: Happy New Year!\nand see you soon\n")

	require.Len(t, msgs, 1)
	assert.Equal(t, "Happy New Year!\nand see you soon", *msgs[0].Body)
	assert.Equal(t, 0, msgs[0].OrderIndex)
}

func TestParse_ContentBeforeFirstHeaderIsDropped(t *testing.T) {
	msgs := parse(t, "stray preamble\nanother stray line\n1/1/24, 9:00 AM - Bob: first\n")

	require.Len(t, msgs, 1)
	assert.Equal(t, "first", *msgs[0].Body)
	assert.Equal(t, 3, msgs[0].Metadata.SourceLineNumber)
}

func TestParse_OrderIndexIsGapFreeInFileOrder(t *testing.T) {
	transcript := strings.Join([]string{
		"1/1/24, 9:00 AM - Alice: one",
		"continued",
		"",
		"1/1/24, 9:01 AM - Bob: two",
		"1/1/24, 9:02 AM - You: three",
		"more of three",
		"1/1/24, 9:03 AM - Alice: four",
	}, "\n")

	msgs := parse(t, transcript)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, i, m.OrderIndex)
	}
	assert.Equal(t, []int{1, 4, 5, 7}, []int{
		msgs[0].Metadata.SourceLineNumber,
		msgs[1].Metadata.SourceLineNumber,
		msgs[2].Metadata.SourceLineNumber,
		msgs[3].Metadata.SourceLineNumber,
	})
	assert.Equal(t, "one\ncontinued", *msgs[0].Body)
	assert.Equal(t, "three\nmore of three", *msgs[2].Body)
	assert.True(t, msgs[2].IsSelf)
}

func TestParse_IsIdempotent(t *testing.T) {
	transcript := "12/31/23, 11:59 PM - Alice: Happy New Year!\nand see you soon\n1/1/24, 12:01 AM - Bob: https://example.com\n"

	first, err := newParser().Parse(strings.NewReader(transcript))
	require.NoError(t, err)
	second, err := newParser().Parse(strings.NewReader(transcript))
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestParse_HeaderVariants(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		sender string
		body   string
		want   time.Time
	}{
		{
			name:   "two-digit year 12h",
			line:   "12/31/23, 11:59 PM - Alice: hi",
			sender: "Alice",
			body:   "hi",
			want:   time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC),
		},
		{
			name:   "four-digit year 12h with seconds",
			line:   "3/4/2023, 7:05:09 AM - Bob: hey",
			sender: "Bob",
			body:   "hey",
			want:   time.Date(2023, 3, 4, 7, 5, 9, 0, time.UTC),
		},
		{
			name:   "24h clock",
			line:   "12/31/23, 21:15 - Carol: late",
			sender: "Carol",
			body:   "late",
			want:   time.Date(2023, 12, 31, 21, 15, 0, 0, time.UTC),
		},
		{
			name:   "day first falls through when month is invalid",
			line:   "31/12/2023, 18:30 - Dan: ciao",
			sender: "Dan",
			body:   "ciao",
			want:   time.Date(2023, 12, 31, 18, 30, 0, 0, time.UTC),
		},
		{
			name:   "ambiguous date reads month first",
			line:   "03/04/23, 10:00 - Eve: spring",
			sender: "Eve",
			body:   "spring",
			want:   time.Date(2023, 3, 4, 10, 0, 0, 0, time.UTC),
		},
		{
			name:   "bracketed export",
			line:   "[12/31/23, 11:59:01 PM] Frank: bracketed",
			sender: "Frank",
			body:   "bracketed",
			want:   time.Date(2023, 12, 31, 23, 59, 1, 0, time.UTC),
		},
		{
			name:   "narrow no-break space and lowercase meridiem",
			line:   "1/2/24, 4:05\u202fpm - Grace: tiny space",
			sender: "Grace",
			body:   "tiny space",
			want:   time.Date(2024, 1, 2, 16, 5, 0, 0, time.UTC),
		},
		{
			name:   "no comma after date",
			line:   "1/2/24 4:05 PM - Heidi: no comma",
			sender: "Heidi",
			body:   "no comma",
			want:   time.Date(2024, 1, 2, 16, 5, 0, 0, time.UTC),
		},
		{
			name:   "body keeps later colons",
			line:   "1/2/24, 4:05 PM - Ivan: meet at 10:30: ok?",
			sender: "Ivan",
			body:   "meet at 10:30: ok?",
			want:   time.Date(2024, 1, 2, 16, 5, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := parse(t, tt.line)
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.sender, msgs[0].SenderName)
			require.NotNil(t, msgs[0].Body)
			assert.Equal(t, tt.body, *msgs[0].Body)
			assert.Equal(t, tt.want, msgs[0].Timestamp)
			assert.False(t, msgs[0].Metadata.TimestampUnparsed)
		})
	}
}

func TestParse_UnparseableTimestampFallsBackToParseTime(t *testing.T) {
	msgs := parse(t, "13/13/23, 11:59 PM - Alice: impossible date\n1/1/24, 9:00 AM - Bob: fine\n")

	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].Metadata.TimestampUnparsed)
	assert.Equal(t, fixedNow, msgs[0].Timestamp)
	assert.Equal(t, 0, msgs[0].OrderIndex)
	assert.False(t, msgs[1].Metadata.TimestampUnparsed)
	assert.Equal(t, 1, msgs[1].OrderIndex)
}

func TestParse_SystemMessage(t *testing.T) {
	msgs := parse(t, "12/31/23, 11:58 PM - Messages and calls are end-to-end encrypted.\n12/31/23, 11:59 PM - Alice: hi\n")

	require.Len(t, msgs, 2)
	assert.Equal(t, models.MessageTypeSystem, msgs[0].MessageType)
	assert.Equal(t, "", msgs[0].SenderName)
	assert.Equal(t, "Messages and calls are end-to-end encrypted.", *msgs[0].Body)
	assert.Equal(t, models.MessageTypeText, msgs[1].MessageType)
}

func TestParse_EmptyBodyIsNil(t *testing.T) {
	msgs := parse(t, "1/1/24, 9:00 AM - Alice:\n")
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].Body)
	assert.Equal(t, models.MessageTypeText, msgs[0].MessageType)
}

func TestParse_EmptyBodyTakesContinuationWithoutLeadingNewline(t *testing.T) {
	msgs := parse(t, "1/1/24, 9:00 AM - Alice:\nsecond line\n")
	require.Len(t, msgs, 1)
	assert.Equal(t, "second line", *msgs[0].Body)
}

func TestParse_InvalidUTF8IsReplaced(t *testing.T) {
	msgs := parse(t, "12/31/23, 11:59 PM - Jos\xe9: caf\xe9 ol\xe9\nmerci \xff\n")
	require.Len(t, msgs, 1)

	assert.True(t, utf8.ValidString(msgs[0].SenderName))
	require.NotNil(t, msgs[0].Body)
	assert.True(t, utf8.ValidString(*msgs[0].Body))
	assert.Equal(t, "Jos\uFFFD", msgs[0].SenderName)
	assert.Equal(t, "caf\uFFFD ol\uFFFD\nmerci \uFFFD", *msgs[0].Body)
}

func TestParse_ClassifiesFromFullBody(t *testing.T) {
	msgs := parse(t, strings.Join([]string{
		"1/1/24, 9:00 AM - Alice: IMG-20240101-WA0001.jpg (file attached)",
		"1/1/24, 9:01 AM - Alice: holiday.mp4",
		"1/1/24, 9:02 AM - Alice: <Media omitted>",
		"1/1/24, 9:03 AM - Alice: look https://example.com",
		"1/1/24, 9:04 AM - Alice: notes.PDF",
	}, "\n"))

	require.Len(t, msgs, 5)
	assert.Equal(t, models.MessageTypeText, msgs[0].MessageType)
	assert.Equal(t, models.MessageTypeVideo, msgs[1].MessageType)
	assert.Equal(t, models.MessageTypeText, msgs[2].MessageType)
	assert.Equal(t, models.MessageTypeLink, msgs[3].MessageType)
	assert.Equal(t, models.MessageTypeDocument, msgs[4].MessageType)
}

func TestParse_WindowsLineEndingsAndBOM(t *testing.T) {
	msgs := parse(t, "\ufeff12/31/23, 11:59 PM - Alice: hi\r\nthere\r\n")
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi\nthere", *msgs[0].Body)
}

func TestParse_EmptyInput(t *testing.T) {
	msgs := parse(t, "")
	assert.Empty(t, msgs)
}

func TestParse_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	p := parser.New(parser.Options{Location: loc})

	msgs, err := p.Parse(strings.NewReader("12/31/23, 11:59 PM - Alice: hi"))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, time.Date(2023, 12, 31, 21, 59, 0, 0, time.UTC), msgs[0].Timestamp.UTC())
}
