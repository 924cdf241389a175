package queuexpg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gardenledger/fieldsync/pkg/errx"
	"github.com/gardenledger/fieldsync/pkg/queuex"
)

// PostgresStore implements queuex.Store on PostgreSQL. One row per job with
// an indexed synced flag for filtered scans.
//
// Expected schema:
//
//	CREATE TABLE sync_jobs (
//	    id           TEXT PRIMARY KEY,
//	    kind         TEXT NOT NULL,
//	    payload      JSONB NOT NULL,
//	    meta         JSONB,
//	    synced       BOOLEAN NOT NULL DEFAULT FALSE,
//	    tx_ref       TEXT,
//	    attempts     INT NOT NULL DEFAULT 0,
//	    max_attempts INT NOT NULL DEFAULT 3,
//	    last_error   TEXT,
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    updated_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX sync_jobs_synced_idx ON sync_jobs (synced);
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new Postgres-backed store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, job queuex.Job) error {
	query := `
		INSERT INTO sync_jobs (
			id, kind, payload, meta, synced, tx_ref,
			attempts, max_attempts, last_error, created_at, updated_at
		) VALUES (
			:id, :kind, :payload, :meta, :synced, :tx_ref,
			:attempts, :max_attempts, :last_error, :created_at, :updated_at
		)`

	row, err := toPersistence(job)
	if err != nil {
		return err
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return errx.New("job already exists", errx.TypeConflict).WithDetail("job_id", job.ID)
		}
		return errx.Wrap(err, "failed to insert job", errx.TypeExternal).WithDetail("job_id", job.ID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*queuex.Job, error) {
	var row jobPersistence
	query := `SELECT * FROM sync_jobs WHERE id = $1`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, queuex.NotFound(id)
		}
		return nil, errx.Wrap(err, "failed to load job", errx.TypeExternal).WithDetail("job_id", id)
	}
	job := toDomain(row)
	return &job, nil
}

func (s *PostgresStore) List(ctx context.Context, filter queuex.Filter) ([]queuex.Job, error) {
	var rows []jobPersistence
	var err error

	if filter.Synced == nil {
		query := `SELECT * FROM sync_jobs ORDER BY created_at ASC`
		err = s.db.SelectContext(ctx, &rows, query)
	} else {
		query := `SELECT * FROM sync_jobs WHERE synced = $1 ORDER BY created_at ASC`
		err = s.db.SelectContext(ctx, &rows, query, *filter.Synced)
	}
	if err != nil {
		return nil, errx.Wrap(err, "failed to list jobs", errx.TypeExternal)
	}

	jobs := make([]queuex.Job, len(rows))
	for i, row := range rows {
		jobs[i] = toDomain(row)
	}
	return jobs, nil
}

func (s *PostgresStore) Update(ctx context.Context, job queuex.Job) error {
	query := `
		UPDATE sync_jobs SET
			synced = :synced,
			tx_ref = :tx_ref,
			attempts = :attempts,
			last_error = :last_error,
			updated_at = :updated_at
		WHERE id = :id`

	row, err := toPersistence(job)
	if err != nil {
		return err
	}

	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return errx.Wrap(err, "failed to update job", errx.TypeExternal).WithDetail("job_id", job.ID)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on update", errx.TypeInternal)
	}
	if affected == 0 {
		return queuex.NotFound(job.ID)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_jobs WHERE id = $1`, id); err != nil {
		return errx.Wrap(err, "failed to delete job", errx.TypeExternal).WithDetail("job_id", id)
	}
	return nil
}

func (s *PostgresStore) DeleteSynced(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sync_jobs WHERE synced = TRUE`)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete synced jobs", errx.TypeExternal)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to get rows affected on delete", errx.TypeInternal)
	}
	return int(affected), nil
}

// jobPersistence maps the domain job onto DB-specific types.
type jobPersistence struct {
	ID          string         `db:"id"`
	Kind        string         `db:"kind"`
	Payload     []byte         `db:"payload"`
	Meta        []byte         `db:"meta"`
	Synced      bool           `db:"synced"`
	TxRef       sql.NullString `db:"tx_ref"`
	Attempts    int            `db:"attempts"`
	MaxAttempts int            `db:"max_attempts"`
	LastError   sql.NullString `db:"last_error"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func toPersistence(job queuex.Job) (jobPersistence, error) {
	meta := []byte("{}")
	if job.Meta != nil {
		encoded, err := json.Marshal(job.Meta)
		if err != nil {
			return jobPersistence{}, errx.Wrap(err, "failed to marshal job meta", errx.TypeInternal)
		}
		meta = encoded
	}

	return jobPersistence{
		ID:          job.ID,
		Kind:        string(job.Kind),
		Payload:     []byte(job.Payload),
		Meta:        meta,
		Synced:      job.Synced,
		TxRef:       sql.NullString{String: job.TxRef, Valid: job.TxRef != ""},
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		LastError:   sql.NullString{String: job.LastError, Valid: job.LastError != ""},
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}, nil
}

func toDomain(row jobPersistence) queuex.Job {
	var meta map[string]string
	if len(row.Meta) > 0 {
		_ = json.Unmarshal(row.Meta, &meta)
	}

	return queuex.Job{
		ID:          row.ID,
		Kind:        queuex.JobKind(row.Kind),
		Payload:     json.RawMessage(row.Payload),
		Meta:        meta,
		Synced:      row.Synced,
		TxRef:       row.TxRef.String,
		Attempts:    row.Attempts,
		MaxAttempts: row.MaxAttempts,
		LastError:   row.LastError.String,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
