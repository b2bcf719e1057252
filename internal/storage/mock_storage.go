package storage

import (
	"fmt"
	"sync"
	"time"
)

// MockStore implements Interface in memory for tests.
type MockStore struct {
	mu sync.Mutex

	Runs     []Run
	Attempts []Attempt
	Outcomes []Outcome

	// Err, when set, is returned by every write.
	Err error
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// CreateRun implements Interface.
func (m *MockStore) CreateRun(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	m.Runs = append(m.Runs, *run)
	return nil
}

// FinishRun implements Interface.
func (m *MockStore) FinishRun(runID string, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for i := range m.Runs {
		if m.Runs[i].ID == runID {
			t := finishedAt
			m.Runs[i].FinishedAt = &t
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

// RecordAttempt implements Interface.
func (m *MockStore) RecordAttempt(att *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	att.ID = uint(len(m.Attempts) + 1)
	m.Attempts = append(m.Attempts, *att)
	return nil
}

// RecordOutcome implements Interface.
func (m *MockStore) RecordOutcome(out *Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	out.ID = uint(len(m.Outcomes) + 1)
	m.Outcomes = append(m.Outcomes, *out)
	return nil
}

// GetRun implements Interface.
func (m *MockStore) GetRun(runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Runs {
		if m.Runs[i].ID == runID {
			run := m.Runs[i]
			return &run, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

// ListRuns implements Interface.
func (m *MockStore) ListRuns(limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := append([]Run(nil), m.Runs...)
	if limit > 0 && len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}
	return runs, nil
}

// ListAttempts implements Interface.
func (m *MockStore) ListAttempts(runID string) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for _, att := range m.Attempts {
		if att.RunID == runID {
			out = append(out, att)
		}
	}
	return out, nil
}

// ListOutcomes implements Interface.
func (m *MockStore) ListOutcomes(runID string) ([]Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Outcome
	for _, o := range m.Outcomes {
		if o.RunID == runID {
			out = append(out, o)
		}
	}
	return out, nil
}

// GetStatistics implements Interface.
func (m *MockStore) GetStatistics() (*Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &Statistics{
		TotalRuns:     int64(len(m.Runs)),
		TotalAttempts: int64(len(m.Attempts)),
	}
	for _, o := range m.Outcomes {
		if o.Filled {
			stats.FilledCount++
		} else {
			stats.ExhaustedCount++
		}
	}
	if total := stats.FilledCount + stats.ExhaustedCount; total > 0 {
		stats.FillRate = float64(stats.FilledCount) / float64(total)
	}
	return stats, nil
}

// Close implements Interface.
func (m *MockStore) Close() error { return nil }

// Ensure MockStore implements Interface.
var _ Interface = (*MockStore)(nil)
