package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store/storetest"
)

var now = time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func TestAllowUnderAndAtBudget(t *testing.T) {
	t.Parallel()

	st := storetest.New()
	sid := uuid.New()
	l := New(Config{}, WithClock(fixedClock))

	st.AddUsage(sid, 6000, now.Add(-2*time.Hour))
	ok, err := l.Allow(context.Background(), st, sid)
	require.NoError(t, err)
	assert.True(t, ok)

	st.AddUsage(sid, 4000, now.Add(-time.Hour))
	ok, err = l.Allow(context.Background(), st, sid)
	require.NoError(t, err)
	assert.True(t, ok, "exactly the budget is still allowed")

	st.AddUsage(sid, 1, now)
	ok, err = l.Allow(context.Background(), st, sid)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWindowBoundaryIsExclusive(t *testing.T) {
	t.Parallel()

	st := storetest.New()
	sid := uuid.New()
	l := New(Config{Budget: 100, Window: 24 * time.Hour}, WithClock(fixedClock))

	st.AddUsage(sid, 5000, now.Add(-24*time.Hour))
	st.AddUsage(sid, 5000, now.Add(-25*time.Hour))
	st.AddUsage(sid, 5000, now.Add(time.Minute))

	used, err := l.Used(context.Background(), st, sid)
	require.NoError(t, err)
	assert.Equal(t, 0, used)

	ok, err := l.Allow(context.Background(), st, sid)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSessionsAreIndependent(t *testing.T) {
	t.Parallel()

	st := storetest.New()
	busy, idle := uuid.New(), uuid.New()
	l := New(Config{Budget: 10}, WithClock(fixedClock))
	st.AddUsage(busy, 50, now.Add(-time.Minute))

	ok, err := l.Allow(context.Background(), st, busy)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(context.Background(), st, idle)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedgerErrorPropagates(t *testing.T) {
	t.Parallel()

	st := storetest.New()
	st.FailOn("SumTokensSince", contractx.ErrInfrastructure)
	l := New(Config{}, WithClock(fixedClock))

	ok, err := l.Allow(context.Background(), st, uuid.New())
	assert.False(t, ok)
	assert.True(t, errors.Is(err, contractx.ErrInfrastructure))
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	assert.Equal(t, DefaultBudget, l.Budget())
	assert.Error(t, Config{Budget: 0, Window: time.Hour}.Validate())
	assert.NoError(t, Config{Budget: 1, Window: time.Hour}.Validate())
}
