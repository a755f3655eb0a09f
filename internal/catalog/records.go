package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentineleof/eof/pkg/products"
)

// RunStatus is the lifecycle state of a download run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// Run is one invocation of the downloader.
type Run struct {
	ID         string     `json:"id" yaml:"id"`
	Source     string     `json:"source" yaml:"source"`
	SaveDir    string     `json:"save_dir" yaml:"save_dir"`
	Target     string     `json:"target" yaml:"target"`
	Saved      int        `json:"saved" yaml:"saved"`
	Status     RunStatus  `json:"status" yaml:"status"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Download is one saved orbit file.
type Download struct {
	ID           int64     `json:"id" yaml:"id"`
	RunID        string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Filename     string    `json:"filename" yaml:"filename"`
	Path         string    `json:"path" yaml:"path"`
	Mission      string    `json:"mission" yaml:"mission"`
	OrbitType    string    `json:"orbit_type" yaml:"orbit_type"`
	Source       string    `json:"source" yaml:"source"`
	URL          string    `json:"url,omitempty" yaml:"url,omitempty"`
	ValidFrom    time.Time `json:"validity_start" yaml:"validity_start"`
	ValidTo      time.Time `json:"validity_stop" yaml:"validity_stop"`
	Created      time.Time `json:"created" yaml:"created"`
	Size         int64     `json:"size" yaml:"size"`
	DownloadedAt time.Time `json:"downloaded_at" yaml:"downloaded_at"`
}

// StartRun records a new run and returns its ID. target describes what was
// asked for: a product file, a mission and date, or a search directory.
func (db *DB) StartRun(source, target, saveDir string) (string, error) {
	id := uuid.New().String()
	_, err := db.exec(`
		INSERT INTO runs (id, source, target, save_dir, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, source, target, saveDir, RunRunning, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run finished, or failed when runErr is non-nil.
func (db *DB) FinishRun(id string, saved int, runErr error) error {
	status := RunFinished
	var msg sql.NullString
	if runErr != nil {
		status = RunFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := db.exec(`
		UPDATE runs SET saved = ?, status = ?, error = ?, finished_at = ? WHERE id = ?
	`, saved, status, msg, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

// RecordDownload stores a saved orbit file.
func (db *DB) RecordDownload(runID string, orbit products.Orbit, path, source, url string, size int64) error {
	var run sql.NullString
	if runID != "" {
		run = sql.NullString{String: runID, Valid: true}
	}
	_, err := db.exec(`
		INSERT INTO downloads (run_id, filename, path, mission, orbit_type, source, url,
			validity_start, validity_stop, created_at, size, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run, orbit.Filename, path, string(orbit.Mission), string(orbit.OrbitType), source, url,
		formatTime(orbit.Start), formatTime(orbit.Stop), formatTime(orbit.Created), size,
		formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record download %s: %w", orbit.Filename, err)
	}
	return nil
}

// Has reports whether a file with this name was ever downloaded.
func (db *DB) Has(filename string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM downloads WHERE filename = ?", filename).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("look up %s: %w", filename, err)
	}
	return n > 0, nil
}

// Filter narrows ListDownloads. Zero values match everything.
type Filter struct {
	Mission   string
	OrbitType string
	RunID     string
	Limit     int
}

// ListDownloads returns downloads, newest first.
func (db *DB) ListDownloads(f Filter) ([]Download, error) {
	var (
		where []string
		args  []any
	)
	if f.Mission != "" {
		where = append(where, "mission = ?")
		args = append(args, f.Mission)
	}
	if f.OrbitType != "" {
		where = append(where, "orbit_type = ?")
		args = append(args, f.OrbitType)
	}
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}

	query := `SELECT id, COALESCE(run_id, ''), filename, path, mission, orbit_type, source,
		COALESCE(url, ''), validity_start, validity_stop, created_at, size, downloaded_at
		FROM downloads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY downloaded_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		var (
			d                                     Download
			start, stop, created, downloadedAtStr string
		)
		if err := rows.Scan(&d.ID, &d.RunID, &d.Filename, &d.Path, &d.Mission, &d.OrbitType,
			&d.Source, &d.URL, &start, &stop, &created, &d.Size, &downloadedAtStr); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		var perr error
		parse := func(s string) time.Time {
			t, err := parseTime(s)
			if err != nil && perr == nil {
				perr = err
			}
			return t
		}
		d.ValidFrom = parse(start)
		d.ValidTo = parse(stop)
		d.Created = parse(created)
		d.DownloadedAt = parse(downloadedAtStr)
		if perr != nil {
			return nil, fmt.Errorf("parse download %d: %w", d.ID, perr)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, source, target, save_dir, saved, status, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r         Run
			errMsg    sql.NullString
			startedAt string
			finished  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Source, &r.Target, &r.SaveDir, &r.Saved, &r.Status,
			&errMsg, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		t, err := parseTime(startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse run %s: %w", r.ID, err)
		}
		r.StartedAt = t
		r.FinishedAt = parseNullableTime(finished)
		r.Error = errMsg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns a run by ID, or nil when it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var (
		r         Run
		errMsg    sql.NullString
		startedAt string
		finished  sql.NullString
	)
	err := db.conn.QueryRow(`
		SELECT id, source, target, save_dir, saved, status, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Source, &r.Target, &r.SaveDir, &r.Saved, &r.Status,
		&errMsg, &startedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	t, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse run %s: %w", id, err)
	}
	r.StartedAt = t
	r.FinishedAt = parseNullableTime(finished)
	r.Error = errMsg.String
	return &r, nil
}

// Purge deletes runs and downloads older than olderThan and returns the
// number of download rows removed.
func (db *DB) Purge(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	var removed int64
	err := db.transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM downloads WHERE downloaded_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("purge downloads: %w", err)
		}
		if removed, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM runs WHERE started_at < ?", cutoff); err != nil {
			return fmt.Errorf("purge runs: %w", err)
		}
		return nil
	})
	return removed, err
}

func (db *DB) exec(query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Exec(query, args...)
}

func (db *DB) transaction(fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
