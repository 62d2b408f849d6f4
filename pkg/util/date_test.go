package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}
func TestDayOrdinalSameDay(t *testing.T) {
	morning := time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 2, 23, 45, 0, 0, time.UTC)
	if DayOrdinal(morning) != DayOrdinal(evening) {
		t.Fatalf("same UTC day produced different ordinals")
	}
	if DayOrdinal(evening.AddDate(0, 0, 1)) != DayOrdinal(evening)+1 {
		t.Fatalf("next day must advance the ordinal by 1")
	}
}

func TestDayOrdinalEpoch(t *testing.T) {
	epoch := time.Date(1970, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := DayOrdinal(epoch); got != 0 {
		t.Fatalf("epoch day ordinal = %d, want 0", got)
	}
}

func TestDayStart(t *testing.T) {
	in := time.Date(2026, 3, 2, 18, 4, 5, 123, time.UTC)
	got := DayStart(in)
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DayStart = %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Fatalf("DayStart must return UTC")
	}
}
