package usecase

import (
	"context"
	"fmt"
	"time"

	"chesapeake-backend/internal/domain"
)

// DisplayIDs issues YY-NNN order numbers from the per-year counter rows.
type DisplayIDs struct {
	Counters CounterRepo
	Now      func() time.Time
}

// Next issues the next display id for the two-digit year. There is no placeholder on failure.
func (d *DisplayIDs) Next(ctx context.Context, year int) (string, error) {
	n, err := d.Counters.NextYearCounter(ctx, year)
	if err != nil {
		return "", fmt.Errorf("next display id for %02d: %w", year, err)
	}
	return domain.FormatDisplayID(year, n), nil
}

func (d *DisplayIDs) NextForNow(ctx context.Context) (string, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return d.Next(ctx, domain.TwoDigitYear(now()))
}
