package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lineage-cli/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	depth      INTEGER NOT NULL,
	processed  INTEGER NOT NULL DEFAULT 0,
	total      INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
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
	confidence_score INTEGER NOT NULL DEFAULT 0,
	confidence_level TEXT NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	source_person_id TEXT NOT NULL DEFAULT '',
	sources          TEXT NOT NULL DEFAULT '[]',
	not_found        INTEGER NOT NULL DEFAULT 0,
	evidence_chain   TEXT NOT NULL DEFAULT '[]',
	search_log       TEXT NOT NULL DEFAULT '[]',
	corrections_log  TEXT NOT NULL DEFAULT '[]',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (job_id, asc_num)
);

CREATE TABLE IF NOT EXISTS rejected_sources (
	job_id     TEXT NOT NULL REFERENCES jobs(id),
	source     TEXT NOT NULL,
	person_id  TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (job_id, person_id)
);

CREATE TABLE IF NOT EXISTS search_candidates (
	id               TEXT PRIMARY KEY,
	job_id           TEXT NOT NULL REFERENCES jobs(id),
	asc_num          INTEGER NOT NULL,
	candidate        TEXT NOT NULL,
	computed_score   INTEGER NOT NULL,
	selected         INTEGER NOT NULL DEFAULT 0,
	rejection_reason TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS feedback (
	id             TEXT PRIMARY KEY,
	job_id         TEXT NOT NULL,
	asc_num        INTEGER NOT NULL,
	field          TEXT NOT NULL,
	rejected_value TEXT NOT NULL,
	restored_value TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_ancestors_job ON ancestors(job_id);
CREATE INDEX IF NOT EXISTS idx_search_candidates_position ON search_candidates(job_id, asc_num);
CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Jobs

func (s *SQLiteStore) CreateJob(ctx context.Context, depth int) (*model.Job, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusQueued,
		Depth:     depth,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, depth, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), depth, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return job, nil
}

const jobColumns = `id, status, depth, processed, total, error, created_at, updated_at`

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	return j, eris.Wrapf(err, "sqlite: get job %s", jobID)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
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
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, jobID string, processed, total int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET processed = ?, total = ?, updated_at = ? WHERE id = ?`,
		processed, total, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job progress %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

// Positions

const ancestorColumns = `id, job_id, asc_num, generation, name, gender, birth_date, birth_place,
	death_date, death_place, confidence_score, confidence_level, source, source_person_id, sources,
	not_found, evidence_chain, search_log, corrections_log, created_at, updated_at`

// CreateAncestor inserts a position, replacing any existing row for the
// same (job, position).
func (s *SQLiteStore) CreateAncestor(ctx context.Context, a *model.Ancestor) error {
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
		return eris.Wrap(err, "sqlite: marshal ancestor")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ancestors (`+ancestorColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (job_id, asc_num) DO UPDATE SET
			name = excluded.name, gender = excluded.gender, birth_date = excluded.birth_date,
			birth_place = excluded.birth_place, death_date = excluded.death_date, death_place = excluded.death_place,
			confidence_score = excluded.confidence_score, confidence_level = excluded.confidence_level,
			source = excluded.source, source_person_id = excluded.source_person_id, sources = excluded.sources,
			not_found = excluded.not_found, evidence_chain = excluded.evidence_chain,
			search_log = excluded.search_log, corrections_log = excluded.corrections_log,
			updated_at = excluded.updated_at`,
		a.ID, a.JobID, a.AscendancyNum, a.Generation, a.Name, string(a.Gender), a.BirthDate, a.BirthPlace,
		a.DeathDate, a.DeathPlace, a.ConfidenceScore, string(a.ConfidenceLevel), a.Source, a.SourcePersonID,
		string(j.sources), a.NotFound, string(j.evidence), string(j.search), string(j.corrections),
		a.CreatedAt, a.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert ancestor %s/%d", a.JobID, a.AscendancyNum)
}

func (s *SQLiteStore) GetAncestorByPosition(ctx context.Context, jobID string, asc int) (*model.Ancestor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ancestorColumns+` FROM ancestors WHERE job_id = ? AND asc_num = ?`, jobID, asc)
	a, err := scanAncestor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "position %s/%d", jobID, asc)
	}
	return a, eris.Wrapf(err, "sqlite: get ancestor %s/%d", jobID, asc)
}

// UpdateAncestorByPosition applies patch to the stored position inside a
// transaction and returns the updated row.
func (s *SQLiteStore) UpdateAncestorByPosition(ctx context.Context, jobID string, asc int, patch model.AncestorPatch) (*model.Ancestor, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin update ancestor")
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx,
		`SELECT `+ancestorColumns+` FROM ancestors WHERE job_id = ? AND asc_num = ?`, jobID, asc)
	a, err := scanAncestor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "position %s/%d", jobID, asc)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load ancestor %s/%d", jobID, asc)
	}

	patch.Apply(a)
	a.ConfidenceScore = model.ClampScore(a.ConfidenceScore)
	a.UpdatedAt = time.Now().UTC()
	j, err := marshalAncestorJSON(a)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal ancestor")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE ancestors SET name = ?, gender = ?, birth_date = ?, birth_place = ?, death_date = ?,
			death_place = ?, confidence_score = ?, confidence_level = ?, source = ?, source_person_id = ?,
			sources = ?, not_found = ?, evidence_chain = ?, search_log = ?, corrections_log = ?, updated_at = ?
		 WHERE job_id = ? AND asc_num = ?`,
		a.Name, string(a.Gender), a.BirthDate, a.BirthPlace, a.DeathDate, a.DeathPlace,
		a.ConfidenceScore, string(a.ConfidenceLevel), a.Source, a.SourcePersonID, string(j.sources),
		a.NotFound, string(j.evidence), string(j.search), string(j.corrections), a.UpdatedAt,
		jobID, asc,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update ancestor %s/%d", jobID, asc)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit update ancestor")
	}
	return a, nil
}

func (s *SQLiteStore) ListAncestors(ctx context.Context, jobID string) ([]model.Ancestor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ancestorColumns+` FROM ancestors WHERE job_id = ? ORDER BY asc_num`, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ancestors")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Ancestor
	for rows.Next() {
		a, err := scanAncestor(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ancestor")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list ancestors iterate")
}

// DeleteSubtree removes asc and every position descending from it by
// repeated doubling. Returns the number of rows deleted.
func (s *SQLiteStore) DeleteSubtree(ctx context.Context, jobID string, asc int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin delete subtree")
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `SELECT asc_num FROM ancestors WHERE job_id = ? AND asc_num >= ?`, jobID, asc)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: list subtree positions")
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return 0, err
	}

	doomed := subtree(positions, asc)
	if len(doomed) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(doomed)), ",")
	args := []any{jobID}
	for _, p := range doomed {
		args = append(args, p)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM ancestors WHERE job_id = ? AND asc_num IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete subtree")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit delete subtree")
	}
	return int(n), nil
}

// positionRows is the part of *sql.Rows scanPositions reads.
type positionRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// scanPositions drains rows of asc_num values and closes them.
func scanPositions(rows positionRows) ([]int, error) {
	defer rows.Close() //nolint:errcheck
	var positions []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan position")
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list subtree iterate")
	}
	return positions, nil
}

// Rejection blacklist

func (s *SQLiteStore) AddRejectedSourceID(ctx context.Context, jobID, source, personID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejected_sources (job_id, source, person_id, reason, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (job_id, person_id) DO UPDATE SET reason = excluded.reason`,
		jobID, source, personID, reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: add rejected source id %s", personID)
}

func (s *SQLiteStore) ListRejectedSourceIDs(ctx context.Context, jobID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT person_id FROM rejected_sources WHERE job_id = ? ORDER BY created_at`, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rejected source ids")
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rejected source id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list rejected iterate")
}

// Search candidates

// RecordSearchCandidates replaces the candidates recorded for a position.
func (s *SQLiteStore) RecordSearchCandidates(ctx context.Context, jobID string, asc int, cands []model.SearchCandidate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin record candidates")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM search_candidates WHERE job_id = ? AND asc_num = ?`, jobID, asc); err != nil {
		return eris.Wrap(err, "sqlite: clear candidates")
	}
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
			return eris.Wrap(err, "sqlite: marshal candidate")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_candidates (id, job_id, asc_num, candidate, computed_score, selected, rejection_reason, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, jobID, asc, string(body), c.ComputedScore, c.Selected, c.RejectionReason, c.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert candidate")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit candidates")
}

const candidateColumns = `id, job_id, asc_num, candidate, computed_score, selected, rejection_reason, created_at`

func (s *SQLiteStore) ListSearchCandidates(ctx context.Context, jobID string, asc int) ([]model.SearchCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM search_candidates WHERE job_id = ? AND asc_num = ?
		 ORDER BY computed_score DESC, created_at`, jobID, asc)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SearchCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func (s *SQLiteStore) GetSearchCandidate(ctx context.Context, id string) (*model.SearchCandidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM search_candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "candidate %s", id)
	}
	return c, err
}

// Feedback

func (s *SQLiteStore) RecordFeedback(ctx context.Context, f model.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, job_id, asc_num, field, rejected_value, restored_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.JobID, f.AscendancyNum, f.Field, f.RejectedValue, f.RestoredValue, f.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert feedback")
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, limit int) ([]model.Feedback, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, asc_num, field, rejected_value, restored_value, created_at
		 FROM feedback ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Feedback
	for rows.Next() {
		var f model.Feedback
		if err := rows.Scan(&f.ID, &f.JobID, &f.AscendancyNum, &f.Field, &f.RejectedValue, &f.RestoredValue, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list feedback iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	err := row.Scan(&j.ID, &j.Status, &j.Depth, &j.Processed, &j.Total, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanAncestor(row scannable) (*model.Ancestor, error) {
	var a model.Ancestor
	var sources, evidence, search, corrections string
	err := row.Scan(&a.ID, &a.JobID, &a.AscendancyNum, &a.Generation, &a.Name, &a.Gender,
		&a.BirthDate, &a.BirthPlace, &a.DeathDate, &a.DeathPlace, &a.ConfidenceScore, &a.ConfidenceLevel,
		&a.Source, &a.SourcePersonID, &sources, &a.NotFound, &evidence, &search, &corrections,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalAncestorJSON(&a, []byte(sources), []byte(evidence), []byte(search), []byte(corrections)); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal ancestor")
	}
	return &a, nil
}

func scanCandidate(row scannable) (*model.SearchCandidate, error) {
	var c model.SearchCandidate
	var body string
	err := row.Scan(&c.ID, &c.JobID, &c.AscendancyNum, &body, &c.ComputedScore, &c.Selected, &c.RejectionReason, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan candidate")
	}
	if err := json.Unmarshal([]byte(body), &c.Candidate); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal candidate")
	}
	return &c, nil
}
