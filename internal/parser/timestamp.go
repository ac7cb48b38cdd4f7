package parser

import (
	"regexp"
	"strings"
	"time"
)

// layouts is tried in order; the first that yields a valid calendar date wins.
// Month-first layouts come before day-first ones, so an ambiguous date such as
// 03/04/23 always reads as March 4th.
var layouts = []string{
	"1/2/06, 3:04 PM",
	"1/2/06, 3:04:05 PM",
	"1/2/2006, 3:04 PM",
	"1/2/2006, 3:04:05 PM",
	"1/2/06, 15:04",
	"1/2/06, 15:04:05",
	"1/2/2006, 15:04",
	"1/2/2006, 15:04:05",
	"2/1/06, 3:04 PM",
	"2/1/06, 3:04:05 PM",
	"2/1/2006, 3:04 PM",
	"2/1/2006, 3:04:05 PM",
	"2/1/06, 15:04",
	"2/1/06, 15:04:05",
	"2/1/2006, 15:04",
	"2/1/2006, 15:04:05",
}

var reMeridiem = regexp.MustCompile(`\s*([AP])\.?\s*M\.?$`)

// normalizeTime upper-cases the meridiem and puts exactly one space before it,
// so "11:59pm", "11:59 p.m." and "11:59 PM" all read the same.
func normalizeTime(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return reMeridiem.ReplaceAllString(s, " ${1}M")
}

// parseTimestamp reads a header's date and time parts in loc.
func parseTimestamp(date, clock string, loc *time.Location) (time.Time, bool) {
	value := date + ", " + normalizeTime(clock)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
