package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrRunNotFound is returned when a run ID has no stored row.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore is a pure-Go SQLite implementation of Interface. gorm
// serializes access through its connection pool, so the store is safe for
// concurrent use.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if needed) the run-history database at
// the given path and migrates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&Run{}, &Attempt{}, &Outcome{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// CreateRun inserts a new run row.
func (s *SQLiteStore) CreateRun(run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	return s.db.Create(run).Error
}

// FinishRun stamps a run's completion time.
func (s *SQLiteStore) FinishRun(runID string, finishedAt time.Time) error {
	res := s.db.Model(&Run{}).Where("id = ?", runID).
		Update("finished_at", finishedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// RecordAttempt inserts an attempt row.
func (s *SQLiteStore) RecordAttempt(att *Attempt) error {
	return s.db.Create(att).Error
}

// RecordOutcome inserts a terminal outcome row.
func (s *SQLiteStore) RecordOutcome(out *Outcome) error {
	return s.db.Create(out).Error
}

// GetRun fetches one run by ID.
func (s *SQLiteStore) GetRun(runID string) (*Run, error) {
	var run Run
	err := s.db.First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit returns everything.
func (s *SQLiteStore) ListRuns(limit int) ([]Run, error) {
	q := s.db.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []Run
	err := q.Find(&runs).Error
	return runs, err
}

// ListAttempts returns a run's attempts in submission order.
func (s *SQLiteStore) ListAttempts(runID string) ([]Attempt, error) {
	var attempts []Attempt
	err := s.db.Where("run_id = ?", runID).Order("id ASC").Find(&attempts).Error
	return attempts, err
}

// ListOutcomes returns a run's terminal outcomes.
func (s *SQLiteStore) ListOutcomes(runID string) ([]Outcome, error) {
	var outcomes []Outcome
	err := s.db.Where("run_id = ?", runID).Order("id ASC").Find(&outcomes).Error
	return outcomes, err
}

// GetStatistics aggregates stored history into summary counters.
func (s *SQLiteStore) GetStatistics() (*Statistics, error) {
	var stats Statistics
	if err := s.db.Model(&Run{}).Count(&stats.TotalRuns).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&Attempt{}).Count(&stats.TotalAttempts).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&Outcome{}).Where("filled = ?", true).
		Count(&stats.FilledCount).Error; err != nil {
		return nil, err
	}
	var total int64
	if err := s.db.Model(&Outcome{}).Count(&total).Error; err != nil {
		return nil, err
	}
	stats.ExhaustedCount = total - stats.FilledCount
	if total > 0 {
		stats.FillRate = float64(stats.FilledCount) / float64(total)
	}
	return &stats, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
