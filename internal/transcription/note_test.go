package transcription

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 14, 30, 5, 0, time.Local)
}

func TestHeaderExactBytes(t *testing.T) {
	got := Header(date(2025, time.October, 11))
	want := "---\ntags:\n  - 日記\n---\n\n" +
		"[[2025]] / [[2025-Q4|Q4]] / [[2025-10|10月]]\n" +
		"❮ [[2025-W40|Week 40]] | Week 41 | [[2025-W42|Week 42]] ❯\n" +
		"[[2025-10-06|06]] - [[2025-10-07|07]] - [[2025-10-08|08]] - [[2025-10-09|09]] - " +
		"[[2025-10-10|10]] - [[2025-10-11|11]] - [[2025-10-12|12]]\n\n"
	if got != want {
		t.Fatalf("header mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestHeaderCalendarEdges(t *testing.T) {
	tests := []struct {
		name       string
		date       time.Time
		breadcrumb string
		weekNav    string
		firstDay   string
		lastDay    string
	}{
		{
			name:       "iso week belongs to next year",
			date:       date(2025, time.December, 31),
			breadcrumb: "[[2025]] / [[2025-Q4|Q4]] / [[2025-12|12月]]",
			weekNav:    "❮ [[2025-W52|Week 52]] | Week 1 | [[2026-W02|Week 2]] ❯",
			firstDay:   "[[2025-12-29|29]]",
			lastDay:    "[[2026-01-04|04]]",
		},
		{
			name:       "sunday in week 53 of previous year",
			date:       date(2021, time.January, 3),
			breadcrumb: "[[2021]] / [[2021-Q1|Q1]] / [[2021-01|1月]]",
			weekNav:    "❮ [[2020-W52|Week 52]] | Week 53 | [[2021-W01|Week 1]] ❯",
			firstDay:   "[[2020-12-28|28]]",
			lastDay:    "[[2021-01-03|03]]",
		},
		{
			name:       "monday starts its own week",
			date:       date(2024, time.July, 1),
			breadcrumb: "[[2024]] / [[2024-Q3|Q3]] / [[2024-07|7月]]",
			weekNav:    "❮ [[2024-W26|Week 26]] | Week 27 | [[2024-W28|Week 28]] ❯",
			firstDay:   "[[2024-07-01|01]]",
			lastDay:    "[[2024-07-07|07]]",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lines := strings.Split(Header(tc.date), "\n")
			// front matter occupies lines 0-4
			if lines[5] != tc.breadcrumb {
				t.Errorf("breadcrumb = %q, want %q", lines[5], tc.breadcrumb)
			}
			if lines[6] != tc.weekNav {
				t.Errorf("week nav = %q, want %q", lines[6], tc.weekNav)
			}
			days := strings.Split(lines[7], " - ")
			if len(days) != 7 {
				t.Fatalf("expected 7 day links, got %d", len(days))
			}
			if days[0] != tc.firstDay || days[6] != tc.lastDay {
				t.Errorf("days = %s .. %s, want %s .. %s", days[0], days[6], tc.firstDay, tc.lastDay)
			}
		})
	}
}

func TestQuarterBoundaries(t *testing.T) {
	for month := time.January; month <= time.December; month++ {
		want := (int(month)-1)/3 + 1
		got := breadcrumb(date(2025, month, 15))
		if !strings.Contains(got, "|Q"+string(rune('0'+want))+"]]") {
			t.Errorf("month %d: breadcrumb %q lacks Q%d", month, got, want)
		}
	}
}

func TestDailyNotePath(t *testing.T) {
	got := DailyNotePath("/notes", date(2025, time.October, 11))
	if got != filepath.Join("/notes", "2025-10-11.md") {
		t.Fatalf("DailyNotePath = %q", got)
	}
}

func TestFormatEntry(t *testing.T) {
	got := FormatEntry(date(2025, time.October, 11), "voice.ogg", "hello")
	if got != "\n## 14:30:05 - voice.ogg\n\nhello\n" {
		t.Fatalf("FormatEntry = %q", got)
	}
}
