// Package trace records simulation events for offline analysis.
package trace

import (
	"database/sql"
	"fmt"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"github.com/tebeka/atexit"

	"github.com/mtrqq/memsim/pkg/sched"
)

const (
	KindAdmit = "admit"
	KindEvict = "evict"
)

// Event is one row of the events table.
type Event struct {
	Seq     int
	Tick    int
	Kind    string
	Process string
	Other   string
	Start   int
	Size    int
	Used    int
}

// SQLiteWriter stores the events of one run into a SQLite database. Events
// are buffered and written in batches, one transaction per batch.
type SQLiteWriter struct {
	db        *sql.DB
	statement *sql.Stmt

	path      string
	runID     string
	seq       int
	used      int
	events    []Event
	batchSize int
	closed    bool
	err       error
}

func NewSQLiteWriter(path string) *SQLiteWriter {
	return &SQLiteWriter{
		path:      path,
		batchSize: 1000,
	}
}

func (w *SQLiteWriter) RunID() string {
	return w.runID
}

// Err returns the first error met while recording.
func (w *SQLiteWriter) Err() error {
	return w.err
}

// Init opens the database, creates the tables if needed and registers the
// run. Pending events are flushed when the process exits through atexit.
func (w *SQLiteWriter) Init(policy string, memory int) error {
	db, err := sql.Open("sqlite3", w.path)
	if err != nil {
		return fmt.Errorf("failed to open trace database %s: %w", w.path, err)
	}
	w.db = db

	if err := w.createTables(); err != nil {
		return err
	}

	w.statement, err = w.db.Prepare(`INSERT INTO events
		(run_id, seq, tick, kind, process, other, start, size, used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event statement: %w", err)
	}

	w.runID = xid.New().String()
	_, err = w.db.Exec(`INSERT INTO runs (id, policy, memory, started_at) VALUES (?, ?, ?, ?)`,
		w.runID, policy, memory, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to register run: %w", err)
	}

	atexit.Register(func() {
		if err := w.Close(); err != nil {
			log.Error().Err(err).Str("path", w.path).Msg("failed to close trace database")
		}
	})

	log.Debug().Str("run", w.runID).Str("path", w.path).Msg("trace database ready")
	return nil
}

func (w *SQLiteWriter) createTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			policy TEXT NOT NULL,
			memory INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ticks INTEGER,
			admissions INTEGER,
			evictions INTEGER,
			peak_used INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL REFERENCES runs(id),
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			process TEXT NOT NULL,
			other TEXT,
			start INTEGER NOT NULL,
			size INTEGER NOT NULL,
			used INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
	}

	for _, stmt := range statements {
		if _, err := w.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create trace tables: %w", err)
		}
	}

	return nil
}

func (w *SQLiteWriter) write(e Event) {
	if w.err != nil || w.closed {
		return
	}

	w.seq++
	e.Seq = w.seq
	w.events = append(w.events, e)
	if len(w.events) >= w.batchSize {
		w.err = w.Flush()
	}
}

func (w *SQLiteWriter) OnAdmit(snapshot sched.Snapshot) {
	w.used = snapshot.Used
	w.write(Event{
		Tick:    snapshot.Tick,
		Kind:    KindAdmit,
		Process: snapshot.Process.String(),
		Start:   snapshot.Block.Start,
		Size:    snapshot.Block.Size,
		Used:    snapshot.Used,
	})
}

func (w *SQLiteWriter) OnEvict(eviction sched.Eviction) {
	w.used -= eviction.Released.Size
	w.write(Event{
		Tick:    eviction.Tick,
		Kind:    KindEvict,
		Process: eviction.Victim.String(),
		Other:   eviction.Incoming.String(),
		Start:   eviction.Released.Start,
		Size:    eviction.Released.Size,
		Used:    w.used,
	})
}

func (w *SQLiteWriter) OnComplete(stats sched.Stats) {
	if w.err != nil || w.closed {
		return
	}

	_, err := w.db.Exec(`UPDATE runs SET ticks = ?, admissions = ?, evictions = ?, peak_used = ? WHERE id = ?`,
		stats.Ticks, stats.Admissions, stats.Evictions, stats.PeakUsed, w.runID)
	if err != nil {
		w.err = fmt.Errorf("failed to record run summary: %w", err)
	}
}

// Flush writes the buffered events in a single transaction.
func (w *SQLiteWriter) Flush() error {
	if len(w.events) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin trace transaction: %w", err)
	}

	stmt := tx.Stmt(w.statement)
	for _, e := range w.events {
		_, err := stmt.Exec(w.runID, e.Seq, e.Tick, e.Kind, e.Process, e.Other, e.Start, e.Size, e.Used)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert trace event %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace events: %w", err)
	}

	w.events = nil
	return nil
}

// Close flushes pending events and closes the database. Calling it more than
// once is a no-op.
func (w *SQLiteWriter) Close() error {
	if w.closed || w.db == nil {
		return nil
	}
	w.closed = true

	flushErr := w.Flush()
	if w.statement != nil {
		_ = w.statement.Close()
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close trace database: %w", err)
	}

	return flushErr
}
