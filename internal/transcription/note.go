package transcription

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	noteDateLayout  = "2006-01-02"
	entryTimeLayout = "15:04:05"
	frontMatter     = "---\ntags:\n  - 日記\n---\n\n"
)

// DailyNotePath returns {notesDir}/YYYY-MM-DD.md for the local date of now.
func DailyNotePath(notesDir string, now time.Time) string {
	return filepath.Join(notesDir, now.Format(noteDateLayout)+".md")
}

// Header renders the navigation block written once at the top of a new note.
func Header(date time.Time) string {
	var b strings.Builder
	b.WriteString(frontMatter)
	b.WriteString(breadcrumb(date))
	b.WriteByte('\n')
	b.WriteString(weekNavigation(date))
	b.WriteByte('\n')
	b.WriteString(weekDays(date))
	b.WriteString("\n\n")
	return b.String()
}

// FormatEntry renders one transcript entry.
func FormatEntry(at time.Time, filename, text string) string {
	return fmt.Sprintf("\n## %s - %s\n\n%s\n", at.Format(entryTimeLayout), filename, text)
}

func breadcrumb(date time.Time) string {
	year := date.Year()
	month := int(date.Month())
	quarter := (month-1)/3 + 1
	return fmt.Sprintf("[[%d]] / [[%d-Q%d|Q%d]] / [[%s|%d月]]",
		year, year, quarter, quarter, date.Format("2006-01"), month)
}

func weekNavigation(date time.Time) string {
	_, week := date.ISOWeek()
	prevYear, prevWeek := date.AddDate(0, 0, -7).ISOWeek()
	nextYear, nextWeek := date.AddDate(0, 0, 7).ISOWeek()
	return fmt.Sprintf("❮ %s | Week %d | %s ❯", weekLink(prevYear, prevWeek), week, weekLink(nextYear, nextWeek))
}

func weekLink(year, week int) string {
	return fmt.Sprintf("[[%d-W%02d|Week %d]]", year, week, week)
}

func weekDays(date time.Time) string {
	monday := date.AddDate(0, 0, -isoWeekdayOffset(date))
	links := make([]string, 7)
	for i := range links {
		day := monday.AddDate(0, 0, i)
		links[i] = fmt.Sprintf("[[%s|%s]]", day.Format(noteDateLayout), day.Format("02"))
	}
	return strings.Join(links, " - ")
}

// isoWeekdayOffset is 0 for Monday through 6 for Sunday.
func isoWeekdayOffset(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}
