// Package chargelog keeps the historical charge log used to estimate the
// cycle count when no source reports one.
package chargelog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/charlie0129/battlife/pkg/powerinfo"
)

const (
	// Retention is how long entries are kept.
	Retention = 90 * 24 * time.Hour
	// MaxEntries caps the log. The oldest entries are evicted first.
	MaxEntries = 5000
)

const schema = `
CREATE TABLE IF NOT EXISTS charge_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	percent INTEGER NOT NULL,
	charging INTEGER NOT NULL,
	cycle_contribution REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_charge_log_ts ON charge_log(timestamp);
`

// Log is an append-only charge log stored in SQLite.
type Log struct {
	db         *sql.DB
	maxEntries int
	now        func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithMaxEntries overrides MaxEntries.
func WithMaxEntries(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// Open opens or creates the log at path.
func Open(path string, opts ...Option) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create directory for %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open charge log %s", path)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrapf(err, "failed to init charge log schema")
	}

	l := &Log{
		db:         db,
		maxEntries: MaxEntries,
		now:        time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append adds an entry and evicts the oldest ones beyond the cap.
func (l *Log) Append(ctx context.Context, e powerinfo.ChargeLogEntry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to begin tx")
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO charge_log (timestamp, percent, charging, cycle_contribution) VALUES (?, ?, ?, ?)",
		e.Timestamp.UnixMilli(), e.Percent, boolToInt(e.Charging), e.CycleContribution,
	)
	if err != nil {
		_ = tx.Rollback()
		return pkgerrors.Wrapf(err, "failed to insert charge log entry")
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM charge_log WHERE id NOT IN (SELECT id FROM charge_log ORDER BY timestamp DESC, id DESC LIMIT ?)",
		l.maxEntries,
	)
	if err != nil {
		_ = tx.Rollback()
		return pkgerrors.Wrapf(err, "failed to evict old charge log entries")
	}

	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrapf(err, "failed to commit charge log entry")
	}
	return nil
}

// Entries returns entries newer than since, oldest first.
func (l *Log) Entries(ctx context.Context, since time.Time) ([]powerinfo.ChargeLogEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT timestamp, percent, charging, cycle_contribution FROM charge_log WHERE timestamp >= ? ORDER BY timestamp ASC, id ASC",
		since.UnixMilli(),
	)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to query charge log")
	}
	defer rows.Close()

	var ret []powerinfo.ChargeLogEntry
	for rows.Next() {
		var (
			ts       int64
			e        powerinfo.ChargeLogEntry
			charging int
		)
		if err := rows.Scan(&ts, &e.Percent, &charging, &e.CycleContribution); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to scan charge log row")
		}
		e.Timestamp = time.UnixMilli(ts)
		e.Charging = charging != 0
		ret = append(ret, e)
	}
	return ret, rows.Err()
}

// Last returns the newest entry, or nil if the log is empty.
func (l *Log) Last(ctx context.Context) (*powerinfo.ChargeLogEntry, error) {
	row := l.db.QueryRowContext(ctx,
		"SELECT timestamp, percent, charging, cycle_contribution FROM charge_log ORDER BY timestamp DESC, id DESC LIMIT 1",
	)
	var (
		ts       int64
		e        powerinfo.ChargeLogEntry
		charging int
	)
	err := row.Scan(&ts, &e.Percent, &charging, &e.CycleContribution)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read last charge log entry")
	}
	e.Timestamp = time.UnixMilli(ts)
	e.Charging = charging != 0
	return &e, nil
}

// TotalContribution sums the cycle contributions inside the retention window.
func (l *Log) TotalContribution(ctx context.Context) (float64, int, error) {
	var (
		total sql.NullFloat64
		count int
	)
	err := l.db.QueryRowContext(ctx,
		"SELECT SUM(cycle_contribution), COUNT(*) FROM charge_log WHERE timestamp >= ?",
		l.now().Add(-Retention).UnixMilli(),
	).Scan(&total, &count)
	if err != nil {
		return 0, 0, pkgerrors.Wrapf(err, "failed to sum charge log")
	}
	return total.Float64, count, nil
}

// Prune drops entries older than the retention window and returns how many
// rows were removed.
func (l *Log) Prune(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		"DELETE FROM charge_log WHERE timestamp < ?",
		l.now().Add(-Retention).UnixMilli(),
	)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to prune charge log")
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logrus.WithField("deleted", n).Debug("pruned charge log")
	}
	return n, nil
}

// Contribution returns the fraction of a full cycle consumed between two
// consecutive samples: the percentage drop while discharging, 0 otherwise.
func Contribution(prev *powerinfo.ChargeLogEntry, percent int, charging bool) float64 {
	if prev == nil || charging || percent >= prev.Percent {
		return 0
	}
	return float64(prev.Percent-percent) / 100
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
