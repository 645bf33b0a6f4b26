package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	params     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS range_samples (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	individual TEXT NOT NULL,
	step       INTEGER NOT NULL,
	fix_time   DATETIME NOT NULL,
	area_km2   REAL NOT NULL,
	days       REAL NOT NULL,
	PRIMARY KEY (run_id, individual, step)
);

CREATE TABLE IF NOT EXISTS logistic_fits (
	run_id          TEXT PRIMARY KEY REFERENCES runs(id),
	asymptote       REAL NOT NULL,
	midpoint        REAL NOT NULL,
	scale           REAL NOT NULL,
	asymptote_se    REAL NOT NULL,
	midpoint_se     REAL NOT NULL,
	scale_se        REAL NOT NULL,
	rss             REAL NOT NULL,
	residual_se     REAL NOT NULL,
	r_squared       REAL NOT NULL,
	n_obs           INTEGER NOT NULL,
	dof             INTEGER NOT NULL,
	iterations      INTEGER NOT NULL,
	func_evals      INTEGER NOT NULL,
	plateau_km2     REAL,
	settlement_days REAL
);

CREATE TABLE IF NOT EXISTS dispersals (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	individual  TEXT NOT NULL,
	fixes       INTEGER NOT NULL,
	distance_km REAL NOT NULL,
	PRIMARY KEY (run_id, individual)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_range_samples_run_id ON range_samples(run_id);
CREATE INDEX IF NOT EXISTS idx_dispersals_run_id ON dispersals(run_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, params, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(paramsJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Params:    params,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause string) error {
	return s.CompleteRun(ctx, runID, model.RunStatusFailed, &model.RunResult{Error: cause})
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, params, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, params, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND json_extract(params, '$.source') = ?`
		args = append(args, filter.Source)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRunFromRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveSamples(ctx context.Context, runID string, samples []model.RangeSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin samples tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO range_samples (run_id, individual, step, fix_time, area_km2, days) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert sample")
	}
	defer stmt.Close()

	for _, sm := range samples {
		if _, err := stmt.ExecContext(ctx, runID, sm.Individual, sm.Step, sm.Time.UTC(), sm.AreaKm2, sm.Days); err != nil {
			return eris.Wrapf(err, "sqlite: insert sample for %s", sm.Individual)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit samples")
}

func (s *SQLiteStore) ListSamples(ctx context.Context, runID string) ([]model.RangeSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT individual, step, fix_time, area_km2, days FROM range_samples
		 WHERE run_id = ? ORDER BY individual, step`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list samples")
	}
	defer rows.Close()

	var samples []model.RangeSample
	for rows.Next() {
		var sm model.RangeSample
		if err := rows.Scan(&sm.Individual, &sm.Step, &sm.Time, &sm.AreaKm2, &sm.Days); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sample")
		}
		samples = append(samples, sm)
	}
	return samples, eris.Wrap(rows.Err(), "sqlite: list samples iterate")
}

func (s *SQLiteStore) SaveFit(ctx context.Context, runID string, fit *model.FitResult, settlement *model.Settlement) error {
	var plateau, settleDays sql.NullFloat64
	if settlement != nil {
		plateau = sql.NullFloat64{Float64: settlement.PlateauKm2, Valid: true}
		settleDays = sql.NullFloat64{Float64: settlement.SettlementDays, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logistic_fits
		 (run_id, asymptote, midpoint, scale, asymptote_se, midpoint_se, scale_se,
		  rss, residual_se, r_squared, n_obs, dof, iterations, func_evals,
		  plateau_km2, settlement_days)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET
		   asymptote = excluded.asymptote, midpoint = excluded.midpoint, scale = excluded.scale,
		   asymptote_se = excluded.asymptote_se, midpoint_se = excluded.midpoint_se, scale_se = excluded.scale_se,
		   rss = excluded.rss, residual_se = excluded.residual_se, r_squared = excluded.r_squared,
		   n_obs = excluded.n_obs, dof = excluded.dof, iterations = excluded.iterations,
		   func_evals = excluded.func_evals, plateau_km2 = excluded.plateau_km2,
		   settlement_days = excluded.settlement_days`,
		runID, fit.Asymptote, fit.Midpoint, fit.Scale, fit.AsymptoteSE, fit.MidpointSE, fit.ScaleSE,
		fit.RSS, fit.ResidualSE, fit.RSquared, fit.N, fit.DOF, fit.Iterations, fit.FuncEvals,
		plateau, settleDays,
	)
	return eris.Wrap(err, "sqlite: save fit")
}

func (s *SQLiteStore) GetFit(ctx context.Context, runID string) (*model.FitResult, *model.Settlement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT asymptote, midpoint, scale, asymptote_se, midpoint_se, scale_se,
		        rss, residual_se, r_squared, n_obs, dof, iterations, func_evals,
		        plateau_km2, settlement_days
		 FROM logistic_fits WHERE run_id = ?`,
		runID,
	)

	var fit model.FitResult
	var plateau, settleDays sql.NullFloat64
	err := row.Scan(&fit.Asymptote, &fit.Midpoint, &fit.Scale,
		&fit.AsymptoteSE, &fit.MidpointSE, &fit.ScaleSE,
		&fit.RSS, &fit.ResidualSE, &fit.RSquared,
		&fit.N, &fit.DOF, &fit.Iterations, &fit.FuncEvals,
		&plateau, &settleDays)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: get fit")
	}

	var settlement *model.Settlement
	if plateau.Valid && settleDays.Valid {
		settlement = &model.Settlement{PlateauKm2: plateau.Float64, SettlementDays: settleDays.Float64}
	}
	return &fit, settlement, nil
}

func (s *SQLiteStore) SaveDispersals(ctx context.Context, runID string, dispersals []model.Dispersal) error {
	if len(dispersals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin dispersals tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dispersals (run_id, individual, fixes, distance_km) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id, individual) DO UPDATE SET fixes = excluded.fixes, distance_km = excluded.distance_km`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert dispersal")
	}
	defer stmt.Close()

	for _, d := range dispersals {
		if _, err := stmt.ExecContext(ctx, runID, d.Individual, d.Fixes, d.DistanceKm); err != nil {
			return eris.Wrapf(err, "sqlite: insert dispersal for %s", d.Individual)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit dispersals")
}

func (s *SQLiteStore) ListDispersals(ctx context.Context, runID string) ([]model.Dispersal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT individual, fixes, distance_km FROM dispersals WHERE run_id = ? ORDER BY individual`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dispersals")
	}
	defer rows.Close()

	var dispersals []model.Dispersal
	for rows.Next() {
		var d model.Dispersal
		if err := rows.Scan(&d.Individual, &d.Fixes, &d.DistanceKm); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dispersal")
		}
		dispersals = append(dispersals, d)
	}
	return dispersals, eris.Wrap(rows.Err(), "sqlite: list dispersals iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var paramsJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &paramsJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal params")
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}

func scanRunFromRows(rows *sql.Rows) (*model.Run, error) {
	return scanRun(rows)
}
