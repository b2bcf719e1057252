package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)

	run := &Run{ID: "run-1", Direction: "sell_to_open", Symbols: "AAPL,MSFT"}
	require.NoError(t, store.CreateRun(run))
	assert.False(t, run.StartedAt.IsZero())

	got, err := store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "sell_to_open", got.Direction)
	assert.Nil(t, got.FinishedAt)

	finished := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.FinishRun("run-1", finished))

	got, err = store.GetRun("run-1")
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt)
	assert.WithinDuration(t, finished, *got.FinishedAt, time.Second)
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = store.FinishRun("missing", time.Now())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestAttemptsAndOutcomes(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateRun(&Run{ID: "run-1", Direction: "sell_to_open"}))

	attempts := []Attempt{
		{RunID: "run-1", Symbol: "AAPL", Round: 1, OrderID: "o-1", Price: 0.45, State: "cancelled"},
		{RunID: "run-1", Symbol: "AAPL", Round: 2, OrderID: "o-2", Price: 0.40, State: "filled"},
		{RunID: "run-2", Symbol: "MSFT", Round: 1, OrderID: "o-3", Price: 1.10, State: "cancelled"},
	}
	for i := range attempts {
		require.NoError(t, store.RecordAttempt(&attempts[i]))
	}

	got, err := store.ListAttempts("run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "o-1", got[0].OrderID)
	assert.Equal(t, "o-2", got[1].OrderID)

	require.NoError(t, store.RecordOutcome(&Outcome{
		RunID: "run-1", Symbol: "AAPL", Filled: true, OrderID: "o-2", Price: 0.40,
	}))
	require.NoError(t, store.RecordOutcome(&Outcome{
		RunID: "run-1", Symbol: "MSFT", Filled: false, Error: "EXHAUSTED",
	}))

	outcomes, err := store.ListOutcomes("run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Filled)
	assert.Equal(t, "EXHAUSTED", outcomes[1].Error)
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, store.CreateRun(&Run{
			ID:        id,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)

	all, err := store.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetStatistics(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateRun(&Run{ID: "run-1"}))
	require.NoError(t, store.RecordAttempt(&Attempt{RunID: "run-1", Symbol: "AAPL"}))
	require.NoError(t, store.RecordAttempt(&Attempt{RunID: "run-1", Symbol: "MSFT"}))
	require.NoError(t, store.RecordOutcome(&Outcome{RunID: "run-1", Symbol: "AAPL", Filled: true}))
	require.NoError(t, store.RecordOutcome(&Outcome{RunID: "run-1", Symbol: "MSFT", Filled: false}))

	stats, err := store.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRuns)
	assert.Equal(t, int64(2), stats.TotalAttempts)
	assert.Equal(t, int64(1), stats.FilledCount)
	assert.Equal(t, int64(1), stats.ExhaustedCount)
	assert.InDelta(t, 0.5, stats.FillRate, 1e-9)
}
