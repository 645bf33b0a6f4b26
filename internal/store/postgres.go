package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/tamarack-wildlife/settle-cli/internal/db"
	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO runs (id, params, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_run": `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":      `SELECT id, params, status, result, created_at, updated_at FROM runs WHERE id = $1`,
	"list_samples": `SELECT individual, step, fix_time, area_km2, days FROM range_samples WHERE run_id = $1 ORDER BY individual, step`,
	"get_fit":      `SELECT asymptote, midpoint, scale, asymptote_se, midpoint_se, scale_se, rss, residual_se, r_squared, n_obs, dof, iterations, func_evals, plateau_km2, settlement_days FROM logistic_fits WHERE run_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	applyPoolSizing(pgxCfg, poolCfg)

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// applyPoolSizing applies pool tuning from config with sensible defaults.
func applyPoolSizing(pgxCfg *pgxpool.Config, poolCfg *PoolConfig) {
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	params     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS range_samples (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	individual TEXT NOT NULL,
	step       INTEGER NOT NULL,
	fix_time   TIMESTAMPTZ NOT NULL,
	area_km2   DOUBLE PRECISION NOT NULL,
	days       DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, individual, step)
);

CREATE TABLE IF NOT EXISTS logistic_fits (
	run_id          TEXT PRIMARY KEY REFERENCES runs(id),
	asymptote       DOUBLE PRECISION NOT NULL,
	midpoint        DOUBLE PRECISION NOT NULL,
	scale           DOUBLE PRECISION NOT NULL,
	asymptote_se    DOUBLE PRECISION NOT NULL,
	midpoint_se     DOUBLE PRECISION NOT NULL,
	scale_se        DOUBLE PRECISION NOT NULL,
	rss             DOUBLE PRECISION NOT NULL,
	residual_se     DOUBLE PRECISION NOT NULL,
	r_squared       DOUBLE PRECISION NOT NULL,
	n_obs           INTEGER NOT NULL,
	dof             INTEGER NOT NULL,
	iterations      INTEGER NOT NULL,
	func_evals      INTEGER NOT NULL,
	plateau_km2     DOUBLE PRECISION,
	settlement_days DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS dispersals (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	individual  TEXT NOT NULL,
	fixes       INTEGER NOT NULL,
	distance_km DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, individual)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_range_samples_run_id ON range_samples(run_id);
CREATE INDEX IF NOT EXISTS idx_dispersals_run_id ON dispersals(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, params, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, paramsJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Params:    params,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause string) error {
	return s.CompleteRun(ctx, runID, model.RunStatusFailed, &model.RunResult{Error: cause})
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var paramsJSON []byte
	var resultNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, params, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &paramsJSON, &r.Status, &resultNull, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(paramsJSON, &r.Params); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal params")
	}
	if resultNull != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(*resultNull, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, params, status, result, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND params->>'source' = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var paramsJSON []byte
		var resultNull *[]byte

		if err := rows.Scan(&r.ID, &paramsJSON, &r.Status, &resultNull, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(paramsJSON, &r.Params); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal params")
		}
		if resultNull != nil {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(*resultNull, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveSamples bulk-loads a run's home-range series over the COPY protocol.
func (s *PostgresStore) SaveSamples(ctx context.Context, runID string, samples []model.RangeSample) error {
	rows := make([][]any, 0, len(samples))
	for _, sm := range samples {
		rows = append(rows, []any{runID, sm.Individual, sm.Step, sm.Time.UTC(), sm.AreaKm2, sm.Days})
	}

	_, err := db.CopyFrom(ctx, s.pool, "range_samples",
		[]string{"run_id", "individual", "step", "fix_time", "area_km2", "days"}, rows)
	return eris.Wrapf(err, "postgres: save samples for run %s", runID)
}

func (s *PostgresStore) ListSamples(ctx context.Context, runID string) ([]model.RangeSample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT individual, step, fix_time, area_km2, days FROM range_samples
		 WHERE run_id = $1 ORDER BY individual, step`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list samples")
	}
	defer rows.Close()

	var samples []model.RangeSample
	for rows.Next() {
		var sm model.RangeSample
		if err := rows.Scan(&sm.Individual, &sm.Step, &sm.Time, &sm.AreaKm2, &sm.Days); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sample")
		}
		samples = append(samples, sm)
	}
	return samples, eris.Wrap(rows.Err(), "postgres: list samples iterate")
}

func (s *PostgresStore) SaveFit(ctx context.Context, runID string, fit *model.FitResult, settlement *model.Settlement) error {
	var plateau, settleDays *float64
	if settlement != nil {
		plateau = &settlement.PlateauKm2
		settleDays = &settlement.SettlementDays
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO logistic_fits
		 (run_id, asymptote, midpoint, scale, asymptote_se, midpoint_se, scale_se,
		  rss, residual_se, r_squared, n_obs, dof, iterations, func_evals,
		  plateau_km2, settlement_days)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (run_id) DO UPDATE SET
		   asymptote = EXCLUDED.asymptote, midpoint = EXCLUDED.midpoint, scale = EXCLUDED.scale,
		   asymptote_se = EXCLUDED.asymptote_se, midpoint_se = EXCLUDED.midpoint_se, scale_se = EXCLUDED.scale_se,
		   rss = EXCLUDED.rss, residual_se = EXCLUDED.residual_se, r_squared = EXCLUDED.r_squared,
		   n_obs = EXCLUDED.n_obs, dof = EXCLUDED.dof, iterations = EXCLUDED.iterations,
		   func_evals = EXCLUDED.func_evals, plateau_km2 = EXCLUDED.plateau_km2,
		   settlement_days = EXCLUDED.settlement_days`,
		runID, fit.Asymptote, fit.Midpoint, fit.Scale, fit.AsymptoteSE, fit.MidpointSE, fit.ScaleSE,
		fit.RSS, fit.ResidualSE, fit.RSquared, fit.N, fit.DOF, fit.Iterations, fit.FuncEvals,
		plateau, settleDays,
	)
	return eris.Wrapf(err, "postgres: save fit for run %s", runID)
}

func (s *PostgresStore) GetFit(ctx context.Context, runID string) (*model.FitResult, *model.Settlement, error) {
	var fit model.FitResult
	var plateau, settleDays *float64

	err := s.pool.QueryRow(ctx,
		`SELECT asymptote, midpoint, scale, asymptote_se, midpoint_se, scale_se,
		        rss, residual_se, r_squared, n_obs, dof, iterations, func_evals,
		        plateau_km2, settlement_days
		 FROM logistic_fits WHERE run_id = $1`,
		runID,
	).Scan(&fit.Asymptote, &fit.Midpoint, &fit.Scale,
		&fit.AsymptoteSE, &fit.MidpointSE, &fit.ScaleSE,
		&fit.RSS, &fit.ResidualSE, &fit.RSquared,
		&fit.N, &fit.DOF, &fit.Iterations, &fit.FuncEvals,
		&plateau, &settleDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, eris.Wrap(err, "postgres: get fit")
	}

	var settlement *model.Settlement
	if plateau != nil && settleDays != nil {
		settlement = &model.Settlement{PlateauKm2: *plateau, SettlementDays: *settleDays}
	}
	return &fit, settlement, nil
}

// SaveDispersals upserts per-individual dispersal distances so a recomputed
// run replaces its previous values.
func (s *PostgresStore) SaveDispersals(ctx context.Context, runID string, dispersals []model.Dispersal) error {
	rows := make([][]any, 0, len(dispersals))
	for _, d := range dispersals {
		rows = append(rows, []any{runID, d.Individual, d.Fixes, d.DistanceKm})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "dispersals",
		Columns:      []string{"run_id", "individual", "fixes", "distance_km"},
		ConflictKeys: []string{"run_id", "individual"},
	}, rows)
	return eris.Wrapf(err, "postgres: save dispersals for run %s", runID)
}

func (s *PostgresStore) ListDispersals(ctx context.Context, runID string) ([]model.Dispersal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT individual, fixes, distance_km FROM dispersals WHERE run_id = $1 ORDER BY individual`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dispersals")
	}
	defer rows.Close()

	var dispersals []model.Dispersal
	for rows.Next() {
		var d model.Dispersal
		if err := rows.Scan(&d.Individual, &d.Fixes, &d.DistanceKm); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dispersal")
		}
		dispersals = append(dispersals, d)
	}
	return dispersals, eris.Wrap(rows.Err(), "postgres: list dispersals iterate")
}
