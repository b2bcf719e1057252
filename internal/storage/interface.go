// Package storage persists run history: every batch run, each order
// attempt inside it, and the terminal outcome per symbol. The dashboard
// reads this history; the executor writes it.
package storage

import "time"

// Run is one execution of the order engine over a batch of symbols.
type Run struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	Direction  string     `gorm:"index" json:"direction"`
	Symbols    string     `json:"symbols"` // comma-joined request, preserved for display
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// Attempt is a single order submission within a run.
type Attempt struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID     string    `gorm:"index" json:"run_id"`
	Symbol    string    `gorm:"index" json:"symbol"`
	Round     int       `json:"round"`
	OrderID   string    `json:"order_id"`
	Price     float64   `json:"price"`
	State     string    `json:"state"` // order state after the round's cancel/poll
	CreatedAt time.Time `json:"created_at"`
}

// Outcome is the terminal result for one symbol in a run.
type Outcome struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID     string    `gorm:"index" json:"run_id"`
	Symbol    string    `gorm:"index" json:"symbol"`
	Filled    bool      `json:"filled"`
	OrderID   string    `json:"order_id"`
	Price     float64   `json:"price"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Statistics summarizes stored run history.
type Statistics struct {
	TotalRuns      int64   `json:"total_runs"`
	TotalAttempts  int64   `json:"total_attempts"`
	FilledCount    int64   `json:"filled_count"`
	ExhaustedCount int64   `json:"exhausted_count"`
	FillRate       float64 `json:"fill_rate"`
}

// Interface is the run-history persistence contract.
//
// Implementations must be safe for concurrent use: the executor writes
// while the dashboard reads.
type Interface interface {
	// Run lifecycle
	CreateRun(run *Run) error
	FinishRun(runID string, finishedAt time.Time) error

	// Per-round records
	RecordAttempt(att *Attempt) error
	RecordOutcome(out *Outcome) error

	// Queries
	GetRun(runID string) (*Run, error)
	ListRuns(limit int) ([]Run, error)
	ListAttempts(runID string) ([]Attempt, error)
	ListOutcomes(runID string) ([]Outcome, error)
	GetStatistics() (*Statistics, error)

	Close() error
}

// Ensure SQLiteStore implements Interface.
var _ Interface = (*SQLiteStore)(nil)
