package usecase

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"chesapeake-backend/internal/domain"
)

type DisplayIDAssignment struct {
	OrderID        string
	DisplayOrderID string
}

// PlanDisplayIDs numbers orders oldest first, continuing each year's counter.
// The returned map holds the final counter of every year that advanced.
func PlanDisplayIDs(counters map[int]int, orders []OrderStub) ([]DisplayIDAssignment, map[int]int) {
	sorted := make([]OrderStub, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	running := make(map[int]int, len(counters))
	for y, c := range counters {
		running[y] = c
	}
	touched := map[int]int{}
	out := make([]DisplayIDAssignment, 0, len(sorted))
	for _, o := range sorted {
		y := domain.TwoDigitYear(o.CreatedAt)
		running[y]++
		touched[y] = running[y]
		out = append(out, DisplayIDAssignment{OrderID: o.ID, DisplayOrderID: domain.FormatDisplayID(y, running[y])})
	}
	return out, touched
}

type BackfillService struct {
	Repo BackfillRepo
	Log  *zap.Logger
}

// BackfillDisplayIDs assigns display ids to every order lacking one, all or nothing.
func (s *BackfillService) BackfillDisplayIDs(ctx context.Context) (int, error) {
	assigned := 0
	err := s.Repo.WithBackfillTx(ctx, func(tx BackfillTx) error {
		counters, err := tx.YearCounters(ctx)
		if err != nil {
			return fmt.Errorf("read year counters: %w", err)
		}
		missing, err := tx.OrdersMissingDisplayID(ctx)
		if err != nil {
			return fmt.Errorf("list orders missing display id: %w", err)
		}
		plan, finals := PlanDisplayIDs(counters, missing)
		for _, a := range plan {
			if err := tx.SetDisplayOrderID(ctx, a.OrderID, a.DisplayOrderID); err != nil {
				return fmt.Errorf("assign %s to order %s: %w", a.DisplayOrderID, a.OrderID, err)
			}
		}
		years := make([]int, 0, len(finals))
		for y := range finals {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			if err := tx.SetYearCounter(ctx, y, finals[y]); err != nil {
				return fmt.Errorf("update counter %02d: %w", y, err)
			}
		}
		assigned = len(plan)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if s.Log != nil {
		s.Log.Info("display id backfill complete", zap.Int("assigned", assigned))
	}
	return assigned, nil
}
