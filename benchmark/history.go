package benchmark

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/nvr-ai/go-ml-bench/inference"
)

// ErrNoHistory is returned when no run was recorded for a model.
var ErrNoHistory = errors.New("no recorded runs")

// timestampLayout has fixed width so recorded_at sorts lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const historySchema = `
CREATE TABLE IF NOT EXISTS results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL,
	model       TEXT    NOT NULL,
	label       TEXT    NOT NULL,
	engine      TEXT    NOT NULL,
	precision   TEXT    NOT NULL,
	accelerated INTEGER NOT NULL,
	batch_size  INTEGER NOT NULL,
	tier        TEXT    NOT NULL,
	emulated    INTEGER NOT NULL,
	cache_hit   INTEGER NOT NULL,
	seconds     REAL    NOT NULL,
	baseline    TEXT    NOT NULL,
	recorded_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS results_model_run ON results (model, recorded_at, run_id);
`

// History is a sqlite store of past runs.
type History struct {
	db *sql.DB
}

// OpenHistory opens (and migrates) the history database at path.
func OpenHistory(path string) (*History, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create history directory %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open history %s", path)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate history")
	}
	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

// Record stores every entry of rs under a new run id.
//
// Returns:
//   - string: The run id.
//   - error: An error if the insert fails; nothing is stored then.
func (h *History) Record(ctx context.Context, model string, rs *ResultSet) (string, error) {
	runID := uuid.NewString()
	recordedAt := time.Now().UTC().Format(timestampLayout)

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "begin history transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results
		(run_id, model, label, engine, precision, accelerated, batch_size, tier, emulated, cache_hit, seconds, baseline, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", errors.Wrap(err, "prepare history insert")
	}
	defer stmt.Close()

	for _, r := range rs.Results() {
		_, err := stmt.ExecContext(ctx,
			runID, model, r.Label, string(r.Case.Engine), string(r.Case.Precision),
			r.Case.Accelerate, r.Case.BatchSize, r.Tier, r.Emulated, r.CacheHit,
			r.Seconds, rs.Baseline(), recordedAt,
		)
		if err != nil {
			return "", errors.Wrapf(err, "record %s", r.Label)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "commit history")
	}
	return runID, nil
}

// Latest returns the most recent run recorded for model.
//
// Returns:
//   - *ResultSet: The run's results in insertion order.
//   - error: ErrNoHistory when nothing was recorded.
func (h *History) Latest(ctx context.Context, model string) (*ResultSet, error) {
	var runID, baseline string
	err := h.db.QueryRowContext(ctx,
		`SELECT run_id, baseline FROM results WHERE model = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`, model,
	).Scan(&runID, &baseline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNoHistory, "model %s", model)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query latest run")
	}

	rows, err := h.db.QueryContext(ctx, `SELECT label, engine, precision, accelerated, batch_size, tier, emulated, cache_hit, seconds, recorded_at
		FROM results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query run results")
	}
	defer rows.Close()

	rs := NewResultSet(baseline)
	for rows.Next() {
		var (
			r          Result
			engine     string
			precision  string
			recordedAt string
		)
		if err := rows.Scan(&r.Label, &engine, &precision, &r.Case.Accelerate, &r.Case.BatchSize,
			&r.Tier, &r.Emulated, &r.CacheHit, &r.Seconds, &recordedAt); err != nil {
			return nil, errors.Wrap(err, "scan run result")
		}
		r.Case.Model = model
		r.Case.Engine = inference.EngineType(engine)
		r.Case.Precision = inference.Precision(precision)
		r.Elapsed = time.Duration(r.Seconds * float64(time.Second))
		ts, err := time.Parse(timestampLayout, recordedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "parse recorded_at of %s", r.Label)
		}
		r.Timestamp = ts
		rs.Add(r)
	}
	return rs, errors.Wrap(rows.Err(), "read run results")
}
