package domain

import (
	"fmt"
	"time"
)

type YearCounter struct {
	Year    int `json:"year"`
	Counter int `json:"counter"`
}

// TwoDigitYear is the counter key for t.
func TwoDigitYear(t time.Time) int {
	return t.UTC().Year() % 100
}

// FormatDisplayID renders YY-NNN. Counters past 999 simply widen.
func FormatDisplayID(year, counter int) string {
	return fmt.Sprintf("%02d-%03d", year, counter)
}
