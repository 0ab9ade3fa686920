// internal/model/stats.go
package model

import "time"

type StatsWindow string

const (
	WindowToday StatsWindow = "today"
	WindowWeek  StatsWindow = "week"
	WindowMonth StatsWindow = "month"
	WindowAll   StatsWindow = "all"
)

func ParseStatsWindow(s string) (StatsWindow, bool) {
	switch StatsWindow(s) {
	case "", WindowAll:
		return WindowAll, true
	case WindowToday, WindowWeek, WindowMonth:
		return StatsWindow(s), true
	}
	return "", false
}

// Start returns the inclusive lower bound of the window relative to now, and
// false for the unbounded window. Weeks start on Monday.
func (w StatsWindow) Start(now time.Time) (time.Time, bool) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch w {
	case WindowToday:
		return day, true
	case WindowWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset), true
	case WindowMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), true
	}
	return time.Time{}, false
}

// StatsSnapshot is derived from the ledger on read and never stored.
// Sent counts every record the transport accepted (sent, delivered, bounced),
// so Sent+Failed+Pending == Total.
type StatsSnapshot struct {
	Window    StatsWindow `json:"window"`
	Total     int         `json:"total"`
	Sent      int         `json:"sent"`
	Delivered int         `json:"delivered"`
	Bounced   int         `json:"bounced"`
	Failed    int         `json:"failed"`
	Pending   int         `json:"pending"`
	Today     int         `json:"today"`
	ThisWeek  int         `json:"thisWeek"`
	ThisMonth int         `json:"thisMonth"`
}
