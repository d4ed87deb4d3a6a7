// Package db persists capture sessions and decoded samples to sqlite so
// the analysis tooling can work on them offline.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the sqlite capture store at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			port              TEXT,
			note              TEXT,
			started           TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS samples (
			session_id        TEXT,
			report_id         INTEGER,
			report            TEXT,
			ticks_us          BIGINT,
			wall_time         TIMESTAMP,
			time_valid        BOOLEAN,
			accuracy          INTEGER,
			v0                DOUBLE, v1 DOUBLE, v2 DOUBLE, v3 DOUBLE,
			v4                DOUBLE, v5 DOUBLE, v6 DOUBLE,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS samples_session_report
			ON samples(session_id, report_id);
		CREATE TABLE IF NOT EXISTS commands (
			session_id        TEXT,
			command           TEXT,
			status            TEXT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// Sample is the storage shape of one decoded report. Values carries at
// most seven scaled fields, matching the widest report layout.
type Sample struct {
	SessionID string
	ReportID  uint8
	Report    string
	TicksUS   int64
	WallTime  time.Time
	TimeValid bool
	Accuracy  int
	Values    []float64
}

// CreateSession registers a new capture run and returns its ID.
func (db *DB) CreateSession(port, note string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, port, note) VALUES (?, ?, ?)`,
		id, port, note,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// RecordSample appends one decoded sample to the session.
func (db *DB) RecordSample(s Sample) error {
	if len(s.Values) > 7 {
		return fmt.Errorf("sample for report %s has %d values, max 7", s.Report, len(s.Values))
	}
	vals := make([]any, 7)
	for i, v := range s.Values {
		vals[i] = v
	}
	args := append([]any{
		s.SessionID, s.ReportID, s.Report, s.TicksUS, s.WallTime, s.TimeValid, s.Accuracy,
	}, vals...)
	_, err := db.Exec(`
		INSERT INTO samples
			(session_id, report_id, report, ticks_us, wall_time, time_valid, accuracy,
			 v0, v1, v2, v3, v4, v5, v6)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	return err
}

// RecordCommand appends one control-command outcome to the session's
// audit trail.
func (db *DB) RecordCommand(sessionID, command, status string) error {
	_, err := db.Exec(
		`INSERT INTO commands (session_id, command, status) VALUES (?, ?, ?)`,
		sessionID, command, status,
	)
	return err
}

// SampleCount returns how many samples the session holds for a report.
func (db *DB) SampleCount(sessionID string, reportID uint8) (int, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM samples WHERE session_id = ? AND report_id = ?`,
		sessionID, reportID,
	).Scan(&n)
	return n, err
}

// SampleTicks returns the session's reconstructed timestamps for one
// report, in arrival order, restricted to samples whose timestamp was
// valid. Input for interval analysis.
func (db *DB) SampleTicks(sessionID string, reportID uint8) ([]int64, error) {
	rows, err := db.Query(`
		SELECT ticks_us FROM samples
		WHERE session_id = ? AND report_id = ? AND time_valid
		ORDER BY rowid`,
		sessionID, reportID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []int64
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// LatestSample returns the newest stored sample for a report within a
// session, or sql.ErrNoRows.
func (db *DB) LatestSample(sessionID string, reportID uint8) (Sample, error) {
	row := db.QueryRow(`
		SELECT session_id, report_id, report, ticks_us, wall_time, time_valid, accuracy,
		       v0, v1, v2, v3, v4, v5, v6
		FROM samples
		WHERE session_id = ? AND report_id = ?
		ORDER BY rowid DESC LIMIT 1`,
		sessionID, reportID,
	)
	var s Sample
	vals := make([]sql.NullFloat64, 7)
	err := row.Scan(
		&s.SessionID, &s.ReportID, &s.Report, &s.TicksUS, &s.WallTime, &s.TimeValid, &s.Accuracy,
		&vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5], &vals[6],
	)
	if err != nil {
		return Sample{}, err
	}
	for _, v := range vals {
		if v.Valid {
			s.Values = append(s.Values, v.Float64)
		}
	}
	return s, nil
}
