package tool

import (
	"time"

	"github.com/kirsrus/healing-garden/server/pkg/validator"
)

// Сутки
const Day = 24 * time.Hour

// RoundToDate начало дня, в который попадает t (в часовом поясе t)
func RoundToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayKey дата дня t в виде YYYY-MM-DD. Используется как ключ группировки по дням
func DayKey(t time.Time) string {
	return RoundToDate(t).Format(validator.IsoDate)
}

// DayWindow окно длиной days суток, заканчивающееся за offset суток до now
func DayWindow(now time.Time, days uint, offset uint) (start, finish time.Time) {
	finish = now.Add(-time.Duration(offset) * Day)
	start = finish.Add(-time.Duration(days) * Day)
	return start, finish
}
