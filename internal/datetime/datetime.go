// Package datetime parses the loosely formatted timestamps found in feeds
// and state files.
package datetime

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// zoneOffsets maps the North American abbreviations feeds still emit to
// numeric offsets. Generic parsers accept these names but assign them a
// zero offset.
var zoneOffsets = map[string]string{
	"EST": "-0500",
	"EDT": "-0400",
	"CST": "-0600",
	"CDT": "-0500",
	"MST": "-0700",
	"MDT": "-0600",
	"PST": "-0800",
	"PDT": "-0700",
}

var zoneAbbrev = regexp.MustCompile(`\b(EST|EDT|CST|CDT|MST|MDT|PST|PDT)\b`)

var ErrEmpty = errors.New("empty timestamp")

// Parse converts s into a UTC time. Values without zone information are
// taken as UTC.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmpty
	}

	s = zoneAbbrev.ReplaceAllStringFunc(s, func(m string) string {
		return zoneOffsets[m]
	})

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Format renders t the way state files store it.
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// StartOfDay returns midnight UTC of the day t falls on.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
