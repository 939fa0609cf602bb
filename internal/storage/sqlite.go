package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rusenback/dockersmoke/internal/logger"
	"github.com/rusenback/dockersmoke/internal/model"
	_ "modernc.org/sqlite"
)

// retention is how long run records are kept
const retention = 30 * 24 * time.Hour

// TimeRange represents different time window options
type TimeRange int

const (
	Range30Min TimeRange = iota
	Range1Hour
	Range6Hour
	Range1Day
	Range1Week
)

func (t TimeRange) String() string {
	switch t {
	case Range30Min:
		return "30min"
	case Range1Hour:
		return "1hour"
	case Range6Hour:
		return "6hours"
	case Range1Day:
		return "1day"
	case Range1Week:
		return "1week"
	default:
		return "unknown"
	}
}

// Duration returns the time duration for the range
func (t TimeRange) Duration() time.Duration {
	switch t {
	case Range30Min:
		return 30 * time.Minute
	case Range1Hour:
		return 1 * time.Hour
	case Range6Hour:
		return 6 * time.Hour
	case Range1Day:
		return 24 * time.Hour
	case Range1Week:
		return 7 * 24 * time.Hour
	default:
		return 30 * time.Minute
	}
}

// ParseTimeRange maps a TimeRange name back to its value.
func ParseTimeRange(s string) (TimeRange, error) {
	for r := Range30Min; r <= Range1Week; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown time range %q (want 30min, 1hour, 6hours, 1day or 1week)", s)
}

// Storage persists smoke run records
type Storage struct {
	db        *sql.DB
	writeChan chan *model.RunRecord
	closeChan chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// DefaultDataDir returns ~/.dockersmoke
func DefaultDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".dockersmoke"), nil
}

// NewStorage opens (creating if needed) the run database in dataDir
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "runs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the writer and readers on the same SQLite handle.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	storage := &Storage{
		db:        db,
		writeChan: make(chan *model.RunRecord, 100),
		closeChan: make(chan struct{}),
	}

	// Runs are short-lived processes, so expire old records on open as well
	// as on the ticker.
	storage.expire()

	storage.wg.Add(2)
	go storage.writer()
	go storage.cleanup()

	return storage, nil
}

// createTables creates the database schema
func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		archive TEXT NOT NULL,
		image_id TEXT,
		container_id TEXT,
		user TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER,
		outcome TEXT NOT NULL,
		failed_stage TEXT,
		error TEXT,
		status_code INTEGER,
		host_port INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started
	ON runs(started_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Record queues a run record for writing
func (s *Storage) Record(rec *model.RunRecord) {
	select {
	case s.writeChan <- rec:
	case <-s.closeChan:
	}
}

// writer runs in background and batch writes to database
func (s *Storage) writer() {
	defer s.wg.Done()

	buffer := make([]*model.RunRecord, 0, 16)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case rec := <-s.writeChan:
			buffer = append(buffer, rec)
			if len(buffer) >= 16 {
				s.flush(buffer)
				buffer = buffer[:0]
			}

		case <-ticker.C:
			if len(buffer) > 0 {
				s.flush(buffer)
				buffer = buffer[:0]
			}

		case <-s.closeChan:
			// Drain anything queued before Close, then final flush
			for {
				select {
				case rec := <-s.writeChan:
					buffer = append(buffer, rec)
					continue
				default:
				}
				break
			}
			if len(buffer) > 0 {
				s.flush(buffer)
			}
			return
		}
	}
}

func (s *Storage) flush(records []*model.RunRecord) {
	if err := s.batchWrite(records); err != nil {
		logger.Warn().Err(err).Int("records", len(records)).Msg("failed to write run records")
	}
}

// batchWrite writes a batch of records to the database
func (s *Storage) batchWrite(records []*model.RunRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO runs
		(id, archive, image_id, container_id, user, started_at, duration_ms,
		 outcome, failed_stage, error, status_code, host_port)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(
			rec.ID,
			rec.Archive,
			rec.ImageID,
			rec.ContainerID,
			rec.User,
			rec.StartedAt.UnixMilli(),
			rec.Duration.Milliseconds(),
			string(rec.Outcome),
			string(rec.FailedStage),
			rec.Error,
			rec.StatusCode,
			rec.HostPort,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const selectRuns = `
	SELECT id, archive, image_id, container_id, user, started_at, duration_ms,
	       outcome, failed_stage, error, status_code, host_port
	FROM runs
`

// Recent returns the newest runs first, at most limit of them
func (s *Storage) Recent(limit int) ([]model.RunRecord, error) {
	rows, err := s.db.Query(selectRuns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// Since returns the runs started within the time range, newest first
func (s *Storage) Since(timeRange TimeRange) ([]model.RunRecord, error) {
	cutoff := time.Now().Add(-timeRange.Duration()).UnixMilli()

	rows, err := s.db.Query(selectRuns+` WHERE started_at > ? ORDER BY started_at DESC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// scanRows scans database rows into run records
func scanRows(rows *sql.Rows) ([]model.RunRecord, error) {
	var records []model.RunRecord

	for rows.Next() {
		var (
			rec                  model.RunRecord
			imageID, containerID sql.NullString
			user, stage, errMsg  sql.NullString
			startedAt, duration  int64
			outcome              string
			status, port         sql.NullInt64
		)

		if err := rows.Scan(&rec.ID, &rec.Archive, &imageID, &containerID, &user,
			&startedAt, &duration, &outcome, &stage, &errMsg, &status, &port); err != nil {
			return nil, err
		}

		rec.ImageID = imageID.String
		rec.ContainerID = containerID.String
		rec.User = user.String
		rec.StartedAt = time.UnixMilli(startedAt)
		rec.Duration = time.Duration(duration) * time.Millisecond
		rec.Outcome = model.Outcome(outcome)
		rec.FailedStage = model.Stage(stage.String)
		rec.Error = errMsg.String
		rec.StatusCode = int(status.Int64)
		rec.HostPort = int(port.Int64)

		records = append(records, rec)
	}

	return records, rows.Err()
}

// cleanup removes old records periodically
func (s *Storage) cleanup() {
	defer s.wg.Done()

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expire()

		case <-s.closeChan:
			return
		}
	}
}

// expire deletes records older than the retention period
func (s *Storage) expire() {
	n, err := s.deleteBefore(time.Now().Add(-retention))
	if err != nil {
		logger.Warn().Err(err).Msg("failed to expire old run records")
		return
	}
	if n > 0 {
		logger.Debug().Int64("deleted", n).Msg("expired old run records")
	}
}

// deleteBefore removes records started before cutoff
func (s *Storage) deleteBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM runs WHERE started_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close flushes queued records and closes the storage
func (s *Storage) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeChan)
	})
	s.wg.Wait()
	return s.db.Close()
}
