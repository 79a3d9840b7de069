package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/resilience"
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
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	provider    TEXT,
	status      TEXT NOT NULL DEFAULT 'running',
	counters    TEXT NOT NULL DEFAULT '{}',
	error       TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS run_stages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL REFERENCES runs(id),
	stage     TEXT NOT NULL,
	status    TEXT NOT NULL,
	items_in  INTEGER NOT NULL DEFAULT 0,
	items_out INTEGER NOT NULL DEFAULT 0,
	error     TEXT,
	at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	id         TEXT NOT NULL,
	position   INTEGER NOT NULL,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id   TEXT PRIMARY KEY,
	data     TEXT NOT NULL,
	saved_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS push_records (
	lead_id TEXT NOT NULL,
	sink    TEXT NOT NULL,
	status  TEXT NOT NULL,
	error   TEXT,
	at      DATETIME NOT NULL,
	PRIMARY KEY (lead_id, sink)
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	lead           TEXT NOT NULL,
	sink           TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
CREATE INDEX IF NOT EXISTS idx_push_records_sink ON push_records(sink);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source model.Source, provider string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	countersJSON, err := json.Marshal(model.RunCounters{})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal counters")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, provider, status, counters, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(source), provider, string(model.RunStatusRunning), string(countersJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Provider:  provider,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE id = ?`,
		string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunCounters(ctx context.Context, runID string, counters model.RunCounters) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counters")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET counters = ? WHERE id = ?`,
		string(countersJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run counters %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, provider, status, counters, error, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, provider, status, counters, error, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	query += ` ORDER BY started_at DESC`

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
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordStage(ctx context.Context, rec model.StageRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_stages (run_id, stage, status, items_in, items_out, error, at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, string(rec.Stage), string(rec.Status), rec.ItemsIn, rec.ItemsOut, rec.Error, at,
	)
	return eris.Wrapf(err, "sqlite: record stage for run %s", rec.RunID)
}

func (s *SQLiteStore) ListStages(ctx context.Context, runID string) ([]model.StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, status, items_in, items_out, error, at FROM run_stages WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stages")
	}
	defer rows.Close()

	var recs []model.StageRecord
	for rows.Next() {
		var rec model.StageRecord
		var errMsg sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Stage, &rec.Status, &rec.ItemsIn, &rec.ItemsOut, &errMsg, &rec.At); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage")
		}
		rec.Error = errMsg.String
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list stages iterate")
}

func (s *SQLiteStore) SaveLeads(ctx context.Context, runID string, leads []model.EnrichedLead) error {
	if len(leads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save leads")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i, lead := range leads {
		data, err := json.Marshal(lead)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal lead %s", lead.Candidate.ID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO leads (run_id, id, position, status, data, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (run_id, id) DO UPDATE SET
			   position = excluded.position, status = excluded.status, data = excluded.data, updated_at = excluded.updated_at`,
			runID, lead.Candidate.ID, i, string(lead.Status), string(data), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert lead %s", lead.Candidate.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save leads")
}

func (s *SQLiteStore) GetLeads(ctx context.Context, runID string) ([]model.EnrichedLead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM leads WHERE run_id = ? ORDER BY position ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get leads")
	}
	defer rows.Close()

	var leads []model.EnrichedLead
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		var lead model.EnrichedLead
		if err := json.Unmarshal([]byte(data), &lead); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal lead")
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: get leads iterate")
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *model.RunCheckpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal checkpoint")
	}
	savedAt := cp.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, data, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		cp.RunID, string(data), savedAt,
	)
	return eris.Wrap(err, "sqlite: save checkpoint")
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, runID string) (*model.RunCheckpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM checkpoints WHERE run_id = ?`,
		runID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load checkpoint")
	}

	var cp model.RunCheckpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal checkpoint")
	}
	return &cp, nil
}

func (s *SQLiteStore) ClearCheckpoint(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, runID)
	return eris.Wrap(err, "sqlite: clear checkpoint")
}

func (s *SQLiteStore) RecordPush(ctx context.Context, rec model.PushRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_records (lead_id, sink, status, error, at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (lead_id, sink) DO UPDATE SET
		   status = excluded.status, error = excluded.error, at = excluded.at`,
		rec.LeadID, string(rec.Sink), string(rec.Status), rec.Error, at,
	)
	return eris.Wrapf(err, "sqlite: record push %s to %s", rec.LeadID, rec.Sink)
}

func (s *SQLiteStore) ListPushed(ctx context.Context, sink model.PushSink) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lead_id FROM push_records WHERE sink = ? AND status = ?`,
		string(sink), string(model.PushStatusPushed),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pushed")
	}
	defer rows.Close()

	pushed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pushed lead")
		}
		pushed[id] = true
	}
	return pushed, eris.Wrap(rows.Err(), "sqlite: list pushed iterate")
}

// Dead letter queue methods

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	leadJSON, err := json.Marshal(entry.Lead)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq lead")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, lead, sink, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		entry.ID, string(leadJSON), string(entry.Sink), entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, lead, sink, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= ? AND retry_count < max_retries`
	args := []any{time.Now().UTC()}

	if filter.Sink != "" {
		query += ` AND sink = ?`
		args = append(args, string(filter.Sink))
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var leadJSON string
		if err := rows.Scan(&e.ID, &leadJSON, &e.Sink, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if err := json.Unmarshal([]byte(leadJSON), &e.Lead); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq lead")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt, lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	return checkRowsAffected(res, "dlq_entry", id)
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
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
	var provider, errMsg sql.NullString
	var countersJSON string
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Source, &provider, &r.Status, &countersJSON, &errMsg, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Provider = provider.String
	r.Error = errMsg.String
	if err := json.Unmarshal([]byte(countersJSON), &r.Counters); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal counters")
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
