package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/resilience"
)

// Pool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool so the Postgres methods run without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
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
	"insert_run":          `INSERT INTO runs (id, source, provider, status, counters, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_run_counters": `UPDATE runs SET counters = $1 WHERE id = $2`,
	"get_run":             `SELECT id, source, provider, status, counters, error, started_at, finished_at FROM runs WHERE id = $1`,
	"insert_stage":        `INSERT INTO run_stages (run_id, stage, status, items_in, items_out, error, at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"upsert_lead":         `INSERT INTO leads (run_id, id, position, status, data, updated_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (run_id, id) DO UPDATE SET position = $3, status = $4, data = $5, updated_at = $6`,
	"save_checkpoint":     `INSERT INTO checkpoints (run_id, data, saved_at) VALUES ($1, $2, $3) ON CONFLICT (run_id) DO UPDATE SET data = $2, saved_at = $3`,
	"load_checkpoint":     `SELECT data FROM checkpoints WHERE run_id = $1`,
	"record_push":         `INSERT INTO push_records (lead_id, sink, status, error, at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (lead_id, sink) DO UPDATE SET status = $3, error = $4, at = $5`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source      TEXT NOT NULL,
	provider    TEXT,
	status      TEXT NOT NULL DEFAULT 'running',
	counters    JSONB NOT NULL DEFAULT '{}'::jsonb,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS run_stages (
	id        BIGSERIAL PRIMARY KEY,
	run_id    TEXT NOT NULL REFERENCES runs(id),
	stage     TEXT NOT NULL,
	status    TEXT NOT NULL,
	items_in  INTEGER NOT NULL DEFAULT 0,
	items_out INTEGER NOT NULL DEFAULT 0,
	error     TEXT,
	at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	id         TEXT NOT NULL,
	position   INTEGER NOT NULL,
	status     TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id   TEXT PRIMARY KEY,
	data     JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS push_records (
	lead_id TEXT NOT NULL,
	sink    TEXT NOT NULL,
	status  TEXT NOT NULL,
	error   TEXT,
	at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (lead_id, sink)
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead           JSONB NOT NULL,
	sink           TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
CREATE INDEX IF NOT EXISTS idx_push_records_sink ON push_records(sink);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
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

func (s *PostgresStore) CreateRun(ctx context.Context, source model.Source, provider string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	countersJSON, err := json.Marshal(model.RunCounters{})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal counters")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, provider, status, counters, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, string(source), provider, string(model.RunStatusRunning), countersJSON, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Provider:  provider,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1 WHERE id = $2`,
		string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunCounters(ctx context.Context, runID string, counters model.RunCounters) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counters")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET counters = $1 WHERE id = $2`,
		countersJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run counters %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, provider, status, counters, error, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("run not found: %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, provider, status, counters, error, started_at, finished_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, string(filter.Source))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

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
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordStage(ctx context.Context, rec model.StageRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_stages (run_id, stage, status, items_in, items_out, error, at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.RunID, string(rec.Stage), string(rec.Status), rec.ItemsIn, rec.ItemsOut, rec.Error, at,
	)
	return eris.Wrapf(err, "postgres: record stage for run %s", rec.RunID)
}

func (s *PostgresStore) ListStages(ctx context.Context, runID string) ([]model.StageRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, stage, status, items_in, items_out, error, at FROM run_stages WHERE run_id = $1 ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stages")
	}
	defer rows.Close()

	var recs []model.StageRecord
	for rows.Next() {
		var rec model.StageRecord
		var errMsg *string
		if err := rows.Scan(&rec.RunID, &rec.Stage, &rec.Status, &rec.ItemsIn, &rec.ItemsOut, &errMsg, &rec.At); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage")
		}
		if errMsg != nil {
			rec.Error = *errMsg
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list stages iterate")
}

func (s *PostgresStore) SaveLeads(ctx context.Context, runID string, leads []model.EnrichedLead) error {
	now := time.Now().UTC()
	for i, lead := range leads {
		data, err := json.Marshal(lead)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal lead %s", lead.Candidate.ID)
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO leads (run_id, id, position, status, data, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (run_id, id) DO UPDATE SET position = $3, status = $4, data = $5, updated_at = $6`,
			runID, lead.Candidate.ID, i, string(lead.Status), data, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert lead %s", lead.Candidate.ID)
		}
	}
	return nil
}

func (s *PostgresStore) GetLeads(ctx context.Context, runID string) ([]model.EnrichedLead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM leads WHERE run_id = $1 ORDER BY position ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get leads")
	}
	defer rows.Close()

	var leads []model.EnrichedLead
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		var lead model.EnrichedLead
		if err := json.Unmarshal(data, &lead); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal lead")
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: get leads iterate")
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp *model.RunCheckpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal checkpoint")
	}
	savedAt := cp.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (run_id, data, saved_at) VALUES ($1, $2, $3)
		 ON CONFLICT (run_id) DO UPDATE SET data = $2, saved_at = $3`,
		cp.RunID, data, savedAt,
	)
	return eris.Wrap(err, "postgres: save checkpoint")
}

func (s *PostgresStore) LoadCheckpoint(ctx context.Context, runID string) (*model.RunCheckpoint, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM checkpoints WHERE run_id = $1`,
		runID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: load checkpoint")
	}

	var cp model.RunCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal checkpoint")
	}
	return &cp, nil
}

func (s *PostgresStore) ClearCheckpoint(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM checkpoints WHERE run_id = $1`,
		runID,
	)
	return eris.Wrap(err, "postgres: clear checkpoint")
}

func (s *PostgresStore) RecordPush(ctx context.Context, rec model.PushRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO push_records (lead_id, sink, status, error, at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (lead_id, sink) DO UPDATE SET status = $3, error = $4, at = $5`,
		rec.LeadID, string(rec.Sink), string(rec.Status), rec.Error, at,
	)
	return eris.Wrapf(err, "postgres: record push %s to %s", rec.LeadID, rec.Sink)
}

func (s *PostgresStore) ListPushed(ctx context.Context, sink model.PushSink) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT lead_id FROM push_records WHERE sink = $1 AND status = $2`,
		string(sink), string(model.PushStatusPushed),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pushed")
	}
	defer rows.Close()

	pushed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pushed lead")
		}
		pushed[id] = true
	}
	return pushed, eris.Wrap(rows.Err(), "postgres: list pushed iterate")
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	leadJSON, err := json.Marshal(entry.Lead)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq lead")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, lead, sink, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_type = $5, retry_count = $6,
		   next_retry_at = $8, last_failed_at = $10`,
		entry.ID, leadJSON, string(entry.Sink), entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, lead, sink, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= now() AND retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.Sink != "" {
		query += fmt.Sprintf(` AND sink = $%d`, argIdx)
		args = append(args, string(filter.Sink))
		argIdx++
	}
	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var leadJSON []byte
		if err := rows.Scan(&e.ID, &leadJSON, &e.Sink, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if err := json.Unmarshal(leadJSON, &e.Lead); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq lead")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq_entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var provider, errMsg *string
	var countersJSON []byte
	var finishedAt *time.Time

	err := row.Scan(&r.ID, &r.Source, &provider, &r.Status, &countersJSON, &errMsg, &r.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if provider != nil {
		r.Provider = *provider
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	if err := json.Unmarshal(countersJSON, &r.Counters); err != nil {
		return nil, eris.Wrap(err, "unmarshal counters")
	}
	r.FinishedAt = finishedAt
	return &r, nil
}
