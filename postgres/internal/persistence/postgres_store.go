package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	corep "github.com/petrijr/chartflow/internal/persistence"
	"github.com/petrijr/chartflow/pkg/api"
	"github.com/petrijr/chartflow/pkg/query"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib" or "github.com/lib/pq").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	db *sql.DB
}

var _ corep.Store = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database
// and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PostgresStore) initSchema() error {
	// One statement per Exec: the pgx extended protocol rejects
	// multi-statement strings.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			state TEXT NOT NULL,
			is_complete BOOLEAN NOT NULL DEFAULT FALSE,
			lock_version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
			state TEXT NOT NULL,
			name TEXT NOT NULL,
			step_order INTEGER NOT NULL,
			participant TEXT NOT NULL DEFAULT '',
			decision TEXT NOT NULL DEFAULT '',
			is_complete BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ,
			completed_metadata BYTEA,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (workflow_id, state, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_steps_participant
			ON workflow_steps(participant)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, id string) (*api.WorkflowRecord, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, state, is_complete, lock_version, created_at, updated_at
		FROM workflows
		WHERE id = $1`,
		id,
	)

	var rec api.WorkflowRecord
	if err := row.Scan(&rec.ID, &rec.Name, &rec.State, &rec.Complete, &rec.LockVersion, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		return nil, err
	}
	if err := p.loadSteps(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *PostgresStore) loadSteps(ctx context.Context, rec *api.WorkflowRecord) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, state, name, step_order, participant, decision, is_complete,
		       completed_at, completed_metadata, created_at, updated_at
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY state, step_order, name`,
		rec.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var st api.StepRecord
		var completedAt sql.NullTime
		var metadata []byte
		if err := rows.Scan(&st.ID, &st.State, &st.Name, &st.Order, &st.Participant, &st.Decision,
			&st.Complete, &completedAt, &metadata, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return err
		}
		st.WorkflowID = rec.ID
		if completedAt.Valid {
			at := completedAt.Time
			st.CompletedAt = &at
		}
		meta, err := corep.DecodeMetadata(metadata)
		if err != nil {
			return err
		}
		st.CompletedMetadata = meta
		rec.Steps = append(rec.Steps, st)
	}
	return rows.Err()
}

func (p *PostgresStore) Create(ctx context.Context, snap api.Snapshot) (*api.WorkflowRecord, error) {
	now := time.Now().UTC()
	rec := &api.WorkflowRecord{
		ID:        uuid.NewString(),
		Name:      snap.Name,
		State:     snap.State,
		Complete:  snap.Complete,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, name, state, is_complete, lock_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6)`,
		rec.ID, rec.Name, rec.State, rec.Complete, now, now,
	)
	if err != nil {
		return nil, err
	}

	for _, st := range snap.Steps {
		sr := api.StepRecord{
			ID:          uuid.NewString(),
			WorkflowID:  rec.ID,
			State:       st.State,
			Name:        st.Name,
			Order:       st.Order,
			Participant: st.Participant,
			Decision:    st.Decision,
			Complete:    st.Complete,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (id, workflow_id, state, name, step_order, participant,
				decision, is_complete, completed_at, completed_metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, NULL, $9, $10)`,
			sr.ID, rec.ID, sr.State, sr.Name, sr.Order, sr.Participant,
			sr.Decision, sr.Complete, now, now,
		)
		if err != nil {
			return nil, err
		}
		rec.Steps = append(rec.Steps, sr)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *PostgresStore) Update(ctx context.Context, rec *api.WorkflowRecord, snap api.Snapshot, opts corep.UpdateOptions) (*api.WorkflowRecord, error) {
	now := time.Now().UTC()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE workflows
		SET state = $1, is_complete = $2, lock_version = lock_version + 1, updated_at = $3
		WHERE id = $4 AND lock_version = $5`,
		snap.State, snap.Complete, now, rec.ID, rec.LockVersion,
	)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM workflows WHERE id = $1)`, rec.ID,
		).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, api.ErrNotFound
		}
		return nil, api.ErrConflict
	}

	for _, st := range snap.Steps {
		prev, found := rec.StepNamed(st.State, st.Name)
		switch {
		case !found:
			var completedAt any
			var metadata []byte
			if st.Complete {
				completedAt = now
				metadata, err = corep.EncodeMetadata(opts.CompletedMetadata)
				if err != nil {
					return nil, err
				}
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO workflow_steps (id, workflow_id, state, name, step_order, participant,
					decision, is_complete, completed_at, completed_metadata, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				uuid.NewString(), rec.ID, st.State, st.Name, st.Order, st.Participant,
				st.Decision, st.Complete, completedAt, metadata, now, now,
			)
		case st.Complete && !prev.Complete:
			var metadata []byte
			metadata, err = corep.EncodeMetadata(opts.CompletedMetadata)
			if err != nil {
				return nil, err
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE workflow_steps
				SET decision = $1, is_complete = TRUE, completed_at = $2, completed_metadata = $3, updated_at = $4
				WHERE id = $5`,
				st.Decision, now, metadata, now, prev.ID,
			)
		case !st.Complete && prev.Complete:
			_, err = tx.ExecContext(ctx, `
				UPDATE workflow_steps
				SET decision = '', is_complete = FALSE, completed_at = NULL, completed_metadata = NULL, updated_at = $1
				WHERE id = $2`,
				now, prev.ID,
			)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p.Load(ctx, rec.ID)
}

func (p *PostgresStore) Find(ctx context.Context, preds []query.Predicate) ([]*api.WorkflowRecord, error) {
	sqlText := `
		SELECT w.id, w.name, w.state, w.is_complete, w.lock_version, w.created_at, w.updated_at
		FROM workflows w`
	where, args := query.Where(query.Postgres, preds)
	if where != "" {
		sqlText += " WHERE " + where
	}
	sqlText += " ORDER BY w.created_at, w.id"
	sqlText = query.Rebind(query.Postgres, sqlText)

	rows, err := p.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*api.WorkflowRecord
	for rows.Next() {
		var rec api.WorkflowRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.State, &rec.Complete, &rec.LockVersion, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range records {
		if err := p.loadSteps(ctx, rec); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrNotFound
	}
	return nil
}
