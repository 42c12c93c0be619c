package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage-cli/internal/db"
	"github.com/sells-group/lineage-cli/internal/model"
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

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_job":             `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`,
	"get_ancestor":        `SELECT ` + ancestorColumns + ` FROM ancestors WHERE job_id = $1 AND asc_num = $2`,
	"list_ancestors":      `SELECT ` + ancestorColumns + ` FROM ancestors WHERE job_id = $1 ORDER BY asc_num`,
	"list_rejected":       `SELECT person_id FROM rejected_sources WHERE job_id = $1 ORDER BY created_at`,
	"update_job_progress": `UPDATE jobs SET processed = $1, total = $2, updated_at = $3 WHERE id = $4`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	depth      INTEGER NOT NULL,
	processed  INTEGER NOT NULL DEFAULT 0,
	total      INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ancestors (
	id               TEXT PRIMARY KEY,
	job_id           TEXT NOT NULL REFERENCES jobs(id),
	asc_num          INTEGER NOT NULL,
	generation       INTEGER NOT NULL,
	name             TEXT NOT NULL,
	gender           TEXT NOT NULL DEFAULT '',
	birth_date       TEXT NOT NULL DEFAULT '',
	birth_place      TEXT NOT NULL DEFAULT '',
	death_date       TEXT NOT NULL DEFAULT '',
	death_place      TEXT NOT NULL DEFAULT '',
	confidence_score INTEGER NOT NULL DEFAULT 0 CHECK (confidence_score BETWEEN 0 AND 100),
	confidence_level TEXT NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	source_person_id TEXT NOT NULL DEFAULT '',
	sources          JSONB NOT NULL DEFAULT '[]',
	not_found        BOOLEAN NOT NULL DEFAULT false,
	evidence_chain   JSONB NOT NULL DEFAULT '[]',
	search_log       JSONB NOT NULL DEFAULT '[]',
	corrections_log  JSONB NOT NULL DEFAULT '[]',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (job_id, asc_num)
);

CREATE TABLE IF NOT EXISTS rejected_sources (
	job_id     TEXT NOT NULL REFERENCES jobs(id),
	source     TEXT NOT NULL,
	person_id  TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (job_id, person_id)
);

CREATE TABLE IF NOT EXISTS search_candidates (
	id               TEXT PRIMARY KEY,
	job_id           TEXT NOT NULL REFERENCES jobs(id),
	asc_num          INTEGER NOT NULL,
	candidate        JSONB NOT NULL,
	computed_score   INTEGER NOT NULL,
	selected         BOOLEAN NOT NULL DEFAULT false,
	rejection_reason TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feedback (
	id             TEXT PRIMARY KEY,
	job_id         TEXT NOT NULL,
	asc_num        INTEGER NOT NULL,
	field          TEXT NOT NULL,
	rejected_value TEXT NOT NULL,
	restored_value TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_ancestors_job ON ancestors(job_id);
CREATE INDEX IF NOT EXISTS idx_search_candidates_position ON search_candidates(job_id, asc_num);
CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at DESC);
`

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
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

// Jobs

func (s *PostgresStore) CreateJob(ctx context.Context, depth int) (*model.Job, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusQueued,
		Depth:     depth,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, depth, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		job.ID, string(job.Status), depth, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	return j, eris.Wrapf(err, "postgres: get job %s", jobID)
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		string(filter.Status), limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	return nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID string, processed, total int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET processed = $1, total = $2, updated_at = $3 WHERE id = $4`,
		processed, total, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job progress %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	return nil
}

// Positions

func (s *PostgresStore) CreateAncestor(ctx context.Context, a *model.Ancestor) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	prepareAncestor(a)

	j, err := marshalAncestorJSON(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal ancestor")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ancestors (`+ancestorColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		 ON CONFLICT (job_id, asc_num) DO UPDATE SET
			name = EXCLUDED.name, gender = EXCLUDED.gender, birth_date = EXCLUDED.birth_date,
			birth_place = EXCLUDED.birth_place, death_date = EXCLUDED.death_date, death_place = EXCLUDED.death_place,
			confidence_score = EXCLUDED.confidence_score, confidence_level = EXCLUDED.confidence_level,
			source = EXCLUDED.source, source_person_id = EXCLUDED.source_person_id, sources = EXCLUDED.sources,
			not_found = EXCLUDED.not_found, evidence_chain = EXCLUDED.evidence_chain,
			search_log = EXCLUDED.search_log, corrections_log = EXCLUDED.corrections_log,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.JobID, a.AscendancyNum, a.Generation, a.Name, string(a.Gender), a.BirthDate, a.BirthPlace,
		a.DeathDate, a.DeathPlace, a.ConfidenceScore, string(a.ConfidenceLevel), a.Source, a.SourcePersonID,
		j.sources, a.NotFound, j.evidence, j.search, j.corrections, a.CreatedAt, a.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert ancestor %s/%d", a.JobID, a.AscendancyNum)
}

func (s *PostgresStore) GetAncestorByPosition(ctx context.Context, jobID string, asc int) (*model.Ancestor, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ancestorColumns+` FROM ancestors WHERE job_id = $1 AND asc_num = $2`, jobID, asc)
	a, err := scanPgAncestor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "position %s/%d", jobID, asc)
	}
	return a, eris.Wrapf(err, "postgres: get ancestor %s/%d", jobID, asc)
}

// UpdateAncestorByPosition locks the row, applies patch and writes it back.
func (s *PostgresStore) UpdateAncestorByPosition(ctx context.Context, jobID string, asc int, patch model.AncestorPatch) (*model.Ancestor, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin update ancestor")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx,
		`SELECT `+ancestorColumns+` FROM ancestors WHERE job_id = $1 AND asc_num = $2 FOR UPDATE`, jobID, asc)
	a, err := scanPgAncestor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "position %s/%d", jobID, asc)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load ancestor %s/%d", jobID, asc)
	}

	patch.Apply(a)
	a.ConfidenceScore = model.ClampScore(a.ConfidenceScore)
	a.UpdatedAt = time.Now().UTC()
	j, err := marshalAncestorJSON(a)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal ancestor")
	}

	_, err = tx.Exec(ctx,
		`UPDATE ancestors SET name = $1, gender = $2, birth_date = $3, birth_place = $4, death_date = $5,
			death_place = $6, confidence_score = $7, confidence_level = $8, source = $9, source_person_id = $10,
			sources = $11, not_found = $12, evidence_chain = $13, search_log = $14, corrections_log = $15,
			updated_at = $16
		 WHERE job_id = $17 AND asc_num = $18`,
		a.Name, string(a.Gender), a.BirthDate, a.BirthPlace, a.DeathDate, a.DeathPlace,
		a.ConfidenceScore, string(a.ConfidenceLevel), a.Source, a.SourcePersonID, j.sources,
		a.NotFound, j.evidence, j.search, j.corrections, a.UpdatedAt, jobID, asc,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update ancestor %s/%d", jobID, asc)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit update ancestor")
	}
	return a, nil
}

func (s *PostgresStore) ListAncestors(ctx context.Context, jobID string) ([]model.Ancestor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ancestorColumns+` FROM ancestors WHERE job_id = $1 ORDER BY asc_num`, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ancestors")
	}
	defer rows.Close()

	var out []model.Ancestor
	for rows.Next() {
		a, err := scanPgAncestor(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan ancestor")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list ancestors iterate")
}

// DeleteSubtree removes asc and all of its ancestors in one transaction.
func (s *PostgresStore) DeleteSubtree(ctx context.Context, jobID string, asc int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin delete subtree")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx,
		`SELECT asc_num FROM ancestors WHERE job_id = $1 AND asc_num >= $2 FOR UPDATE`, jobID, asc)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: list subtree positions")
	}
	positions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return 0, eris.Wrap(err, "postgres: scan positions")
	}

	doomed := subtree(positions, asc)
	if len(doomed) == 0 {
		return 0, nil
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM ancestors WHERE job_id = $1 AND asc_num = ANY($2)`, jobID, doomed)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete subtree")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit delete subtree")
	}
	return int(tag.RowsAffected()), nil
}

// Rejection blacklist

func (s *PostgresStore) AddRejectedSourceID(ctx context.Context, jobID, source, personID, reason string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rejected_sources (job_id, source, person_id, reason, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (job_id, person_id) DO UPDATE SET reason = EXCLUDED.reason`,
		jobID, source, personID, reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: add rejected source id %s", personID)
}

func (s *PostgresStore) ListRejectedSourceIDs(ctx context.Context, jobID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT person_id FROM rejected_sources WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rejected source ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, eris.Wrap(err, "postgres: scan rejected source ids")
}

// Search candidates

var candidateCopyColumns = []string{
	"id", "job_id", "asc_num", "candidate", "computed_score", "selected", "rejection_reason", "created_at",
}

// RecordSearchCandidates replaces the candidates recorded for a position,
// bulk loading the new set with COPY inside one transaction.
func (s *PostgresStore) RecordSearchCandidates(ctx context.Context, jobID string, asc int, cands []model.SearchCandidate) error {
	rows := make([][]any, 0, len(cands))
	for i := range cands {
		c := &cands[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		c.JobID, c.AscendancyNum = jobID, asc
		body, err := json.Marshal(c.Candidate)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal candidate")
		}
		rows = append(rows, []any{c.ID, jobID, asc, body, c.ComputedScore, c.Selected, c.RejectionReason, c.CreatedAt})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin record candidates")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM search_candidates WHERE job_id = $1 AND asc_num = $2`, jobID, asc); err != nil {
		return eris.Wrap(err, "postgres: clear candidates")
	}
	if _, err := db.CopyFrom(ctx, tx, "search_candidates", candidateCopyColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: copy candidates")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit candidates")
}

func (s *PostgresStore) ListSearchCandidates(ctx context.Context, jobID string, asc int) ([]model.SearchCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM search_candidates WHERE job_id = $1 AND asc_num = $2
		 ORDER BY computed_score DESC, created_at`, jobID, asc)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.SearchCandidate
	for rows.Next() {
		c, err := scanPgCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func (s *PostgresStore) GetSearchCandidate(ctx context.Context, id string) (*model.SearchCandidate, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM search_candidates WHERE id = $1`, id)
	c, err := scanPgCandidate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "candidate %s", id)
	}
	return c, err
}

// Feedback

func (s *PostgresStore) RecordFeedback(ctx context.Context, f model.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback (id, job_id, asc_num, field, rejected_value, restored_value, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.JobID, f.AscendancyNum, f.Field, f.RejectedValue, f.RestoredValue, f.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert feedback")
}

func (s *PostgresStore) ListFeedback(ctx context.Context, limit int) ([]model.Feedback, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, asc_num, field, rejected_value, restored_value, created_at
		 FROM feedback ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var out []model.Feedback
	for rows.Next() {
		var f model.Feedback
		if err := rows.Scan(&f.ID, &f.JobID, &f.AscendancyNum, &f.Field, &f.RejectedValue, &f.RestoredValue, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list feedback iterate")
}

func scanPgAncestor(row pgx.Row) (*model.Ancestor, error) {
	var a model.Ancestor
	var gender, level string
	var sources, evidence, search, corrections []byte
	err := row.Scan(&a.ID, &a.JobID, &a.AscendancyNum, &a.Generation, &a.Name, &gender,
		&a.BirthDate, &a.BirthPlace, &a.DeathDate, &a.DeathPlace, &a.ConfidenceScore, &level,
		&a.Source, &a.SourcePersonID, &sources, &a.NotFound, &evidence, &search, &corrections,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Gender = model.Gender(gender)
	a.ConfidenceLevel = model.ConfidenceLevel(level)
	if err := unmarshalAncestorJSON(&a, sources, evidence, search, corrections); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal ancestor")
	}
	return &a, nil
}

func scanPgCandidate(row pgx.Row) (*model.SearchCandidate, error) {
	var c model.SearchCandidate
	var body []byte
	err := row.Scan(&c.ID, &c.JobID, &c.AscendancyNum, &body, &c.ComputedScore, &c.Selected, &c.RejectionReason, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan candidate")
	}
	if err := json.Unmarshal(body, &c.Candidate); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal candidate")
	}
	return &c, nil
}
