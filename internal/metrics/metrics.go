package metrics

import (
	"sync"
	"time"
)

// Metrics accumulates counters across runs of one process.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	Runs             int64
	SourcesSucceeded int64
	SourcesFailed    int64
	EntriesSeen      int64
	EntriesStale     int64
	EntriesFiltered  int64
	EntriesFailed    int64
	EntriesDuplicate int64
	ArticlesIngested int64
	ArchiveAdded     int64
	FeedsWritten     int64

	// Timings
	LastRunDuration    time.Duration
	AverageRunDuration time.Duration
	TotalRunDuration   time.Duration

	// Status
	LastRunID     string
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool

	// Request budget usage of the last run
	Budget map[string]interface{}
}

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

// RunStats is what one ingestion run reports.
type RunStats struct {
	SourcesSucceeded int
	SourcesFailed    int
	EntriesSeen      int
	EntriesStale     int
	EntriesFiltered  int
	EntriesFailed    int
	EntriesDuplicate int
	ArticlesIngested int
}

func (m *Metrics) AddRun(s RunStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SourcesSucceeded += int64(s.SourcesSucceeded)
	m.SourcesFailed += int64(s.SourcesFailed)
	m.EntriesSeen += int64(s.EntriesSeen)
	m.EntriesStale += int64(s.EntriesStale)
	m.EntriesFiltered += int64(s.EntriesFiltered)
	m.EntriesFailed += int64(s.EntriesFailed)
	m.EntriesDuplicate += int64(s.EntriesDuplicate)
	m.ArticlesIngested += int64(s.ArticlesIngested)
}

func (m *Metrics) AddArchived(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArchiveAdded += int64(n)
}

func (m *Metrics) AddFeedsWritten(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeedsWritten += int64(n)
}

// RecordRun marks a finished run and updates timings.
func (m *Metrics) RecordRun(runID string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Runs++
	m.LastRunID = runID
	m.LastRunTime = time.Now()
	m.LastRunDuration = duration
	m.TotalRunDuration += duration
	m.AverageRunDuration = m.TotalRunDuration / time.Duration(m.Runs)
	m.IsHealthy = true
}

// SetBudget stores the budget usage reported at the end of a run.
func (m *Metrics) SetBudget(stats map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Budget = stats
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	budget := make(map[string]interface{}, len(m.Budget))
	for k, v := range m.Budget {
		budget[k] = v
	}

	return map[string]interface{}{
		"runs":                 m.Runs,
		"sources_succeeded":    m.SourcesSucceeded,
		"sources_failed":       m.SourcesFailed,
		"entries_seen":         m.EntriesSeen,
		"entries_stale":        m.EntriesStale,
		"entries_filtered":     m.EntriesFiltered,
		"entries_failed":       m.EntriesFailed,
		"entries_duplicate":    m.EntriesDuplicate,
		"articles_ingested":    m.ArticlesIngested,
		"archive_added":        m.ArchiveAdded,
		"feeds_written":        m.FeedsWritten,
		"last_run_duration_ms": m.LastRunDuration.Milliseconds(),
		"average_run_ms":       m.AverageRunDuration.Milliseconds(),
		"last_run_id":          m.LastRunID,
		"last_run_time":        m.LastRunTime.Format(time.RFC3339),
		"last_error_time":      m.LastErrorTime.Format(time.RFC3339),
		"last_error":           m.LastError,
		"is_healthy":           m.IsHealthy,
		"budget":               budget,
	}
}
