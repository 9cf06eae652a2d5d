package billing

import "time"

// DateFormat is the layout of the from/to query parameters.
const DateFormat = "2006-01-02"

// Window is the lookback range sent with every request, in whole days before now.
type Window struct {
	FromDays int
	ToDays   int
}

// DefaultWindow covers the day before yesterday up to yesterday.
func DefaultWindow() Window {
	return Window{FromDays: 2, ToDays: 1}
}

// Range returns the from and to dates of the window ending relative to now.
func (w Window) Range(now time.Time) (from, to string) {
	now = now.UTC()
	return now.AddDate(0, 0, -w.FromDays).Format(DateFormat), now.AddDate(0, 0, -w.ToDays).Format(DateFormat)
}
