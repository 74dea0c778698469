package usecase_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chesapeake-backend/internal/domain"
	"chesapeake-backend/internal/infrastructure/repo"
	"chesapeake-backend/internal/usecase"
)

func counterOf(t *testing.T, id string) int {
	t.Helper()
	parts := strings.SplitN(id, "-", 2)
	require.Len(t, parts, 2)
	n, err := strconv.Atoi(parts[1])
	require.NoError(t, err)
	return n
}

func TestDisplayIDsStrictlyIncreasing(t *testing.T) {
	d := &usecase.DisplayIDs{Counters: repo.NewMemoryRepo()}
	prev := 0
	seen := map[string]bool{}
	for i := 0; i < 1200; i++ {
		id, err := d.Next(context.Background(), 26)
		require.NoError(t, err)
		require.False(t, seen[id], id)
		seen[id] = true
		n := counterOf(t, id)
		require.Greater(t, n, prev)
		prev = n
	}
}

func TestDisplayIDsConcurrentCallersNeverCollide(t *testing.T) {
	d := &usecase.DisplayIDs{Counters: repo.NewMemoryRepo()}
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := d.Next(context.Background(), 26)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[id] {
				t.Errorf("duplicate display id %s", id)
			}
			seen[id] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestDisplayIDRollsToFourDigits(t *testing.T) {
	r := repo.NewMemoryRepo()
	r.SetYearCounter(26, 999)
	d := &usecase.DisplayIDs{Counters: r}

	id, err := d.Next(context.Background(), 26)
	require.NoError(t, err)
	assert.Equal(t, "26-1000", id)
}

func TestDisplayIDYearsAreIndependent(t *testing.T) {
	r := repo.NewMemoryRepo()
	r.SetYearCounter(25, 41)
	d := &usecase.DisplayIDs{Counters: r, Now: func() time.Time { return time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC) }}

	id, err := d.NextForNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "26-001", id)
	id, err = d.Next(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, "25-042", id)
}

type brokenCounter struct{}

func (brokenCounter) NextYearCounter(context.Context, int) (int, error) {
	return 0, errors.New("counter table locked")
}

func TestDisplayIDFailureHasNoPlaceholder(t *testing.T) {
	d := &usecase.DisplayIDs{Counters: brokenCounter{}}
	id, err := d.Next(context.Background(), 26)
	assert.Error(t, err)
	assert.Empty(t, id)
}

func TestCounterFailureAbortsOrder(t *testing.T) {
	f := newFixture(t)
	f.svc.DisplayIDs = &usecase.DisplayIDs{Counters: brokenCounter{}}

	_, err := f.svc.HandleCheckoutCompleted(context.Background(), catalogSession())
	require.Error(t, err)
	assert.Empty(t, f.repo.Orders())
}

func TestFormatDisplayIDMatchesCounter(t *testing.T) {
	assert.Equal(t, "26-042", domain.FormatDisplayID(26, 42))
}
