package datetime

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"Mon, 02 Jan 2006 15:04:05 EST", time.Date(2006, 1, 2, 20, 4, 5, 0, time.UTC)},
		{"Mon, 02 Jan 2006 15:04:05 PDT", time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)},
		{"Mon, 02 Jan 2006 15:04:05 CDT", time.Date(2006, 1, 2, 20, 4, 5, 0, time.UTC)},
		{"Mon, 02 Jan 2006 15:04:05 GMT", time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)},
		{"Mon, 02 Jan 2006 15:04:05 +0000", time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)},
		{"2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:00:00+02:00", time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)},
		{"2024-05-01 10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if got.Location() != time.UTC {
			t.Errorf("Parse(%q) location = %v, want UTC", tt.in, got.Location())
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not a date at all"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error", in)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 30, 0, 0, time.FixedZone("x", 3600))
	got, err := Parse(Format(ts))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(ts) {
		t.Errorf("round trip = %v, want %v", got, ts)
	}
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)
	if got := StartOfDay(in); !got.Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartOfDay = %v", got)
	}
}
