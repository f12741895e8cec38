package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/chartflow/pkg/api"
	"github.com/petrijr/chartflow/pkg/query"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			state TEXT NOT NULL,
			is_complete INTEGER NOT NULL DEFAULT 0,
			lock_version INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS workflow_steps (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
			state TEXT NOT NULL,
			name TEXT NOT NULL,
			step_order INTEGER NOT NULL,
			participant TEXT NOT NULL DEFAULT '',
			decision TEXT NOT NULL DEFAULT '',
			is_complete INTEGER NOT NULL DEFAULT 0,
			completed_at TIMESTAMP,
			completed_metadata BLOB,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (workflow_id, state, name)
		);

		CREATE INDEX IF NOT EXISTS idx_workflow_steps_participant
			ON workflow_steps(participant);`,
	)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*api.WorkflowRecord, error) {
	rec, err := s.loadWorkflow(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadSteps(ctx, s.db, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) loadWorkflow(ctx context.Context, q querier, id string) (*api.WorkflowRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, state, is_complete, lock_version, created_at, updated_at
		FROM workflows
		WHERE id = ?`,
		id,
	)

	var rec api.WorkflowRecord
	var complete int
	if err := row.Scan(&rec.ID, &rec.Name, &rec.State, &complete, &rec.LockVersion, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		return nil, err
	}
	rec.Complete = complete != 0
	return &rec, nil
}

func (s *SQLiteStore) loadSteps(ctx context.Context, q querier, rec *api.WorkflowRecord) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, state, name, step_order, participant, decision, is_complete,
		       completed_at, completed_metadata, created_at, updated_at
		FROM workflow_steps
		WHERE workflow_id = ?
		ORDER BY state, step_order, name`,
		rec.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var st api.StepRecord
		var complete int
		var completedAt sql.NullTime
		var metadata []byte
		if err := rows.Scan(&st.ID, &st.State, &st.Name, &st.Order, &st.Participant, &st.Decision,
			&complete, &completedAt, &metadata, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return err
		}
		st.WorkflowID = rec.ID
		st.Complete = complete != 0
		if completedAt.Valid {
			at := completedAt.Time
			st.CompletedAt = &at
		}
		meta, err := DecodeMetadata(metadata)
		if err != nil {
			return err
		}
		st.CompletedMetadata = meta
		rec.Steps = append(rec.Steps, st)
	}
	return rows.Err()
}

func (s *SQLiteStore) Create(ctx context.Context, snap api.Snapshot) (*api.WorkflowRecord, error) {
	now := time.Now().UTC()
	rec := &api.WorkflowRecord{
		ID:        uuid.NewString(),
		Name:      snap.Name,
		State:     snap.State,
		Complete:  snap.Complete,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, name, state, is_complete, lock_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		rec.ID, rec.Name, rec.State, boolToInt(rec.Complete), now, now,
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
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?)`,
			sr.ID, rec.ID, sr.State, sr.Name, sr.Order, sr.Participant,
			sr.Decision, boolToInt(sr.Complete), now, now,
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

func (s *SQLiteStore) Update(ctx context.Context, rec *api.WorkflowRecord, snap api.Snapshot, opts UpdateOptions) (*api.WorkflowRecord, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE workflows
		SET state = ?, is_complete = ?, lock_version = lock_version + 1, updated_at = ?
		WHERE id = ? AND lock_version = ?`,
		snap.State, boolToInt(snap.Complete), now, rec.ID, rec.LockVersion,
	)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Either the row is gone or someone else updated it first.
		if _, err := s.loadWorkflow(ctx, tx, rec.ID); errors.Is(err, api.ErrNotFound) {
			return nil, api.ErrNotFound
		}
		return nil, api.ErrConflict
	}

	for _, st := range snap.Steps {
		prev, found := rec.StepNamed(st.State, st.Name)
		switch {
		case !found:
			id := uuid.NewString()
			var completedAt any
			var metadata []byte
			if st.Complete {
				completedAt = now
				metadata, err = EncodeMetadata(opts.CompletedMetadata)
				if err != nil {
					return nil, err
				}
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO workflow_steps (id, workflow_id, state, name, step_order, participant,
					decision, is_complete, completed_at, completed_metadata, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, rec.ID, st.State, st.Name, st.Order, st.Participant,
				st.Decision, boolToInt(st.Complete), completedAt, metadata, now, now,
			)
		case st.Complete && !prev.Complete:
			var metadata []byte
			metadata, err = EncodeMetadata(opts.CompletedMetadata)
			if err != nil {
				return nil, err
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE workflow_steps
				SET decision = ?, is_complete = 1, completed_at = ?, completed_metadata = ?, updated_at = ?
				WHERE id = ?`,
				st.Decision, now, metadata, now, prev.ID,
			)
		case !st.Complete && prev.Complete:
			// Step reset by a re-entering transition.
			_, err = tx.ExecContext(ctx, `
				UPDATE workflow_steps
				SET decision = '', is_complete = 0, completed_at = NULL, completed_metadata = NULL, updated_at = ?
				WHERE id = ?`,
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
	return s.Load(ctx, rec.ID)
}

func (s *SQLiteStore) Find(ctx context.Context, preds []query.Predicate) ([]*api.WorkflowRecord, error) {
	sqlText := `
		SELECT w.id, w.name, w.state, w.is_complete, w.lock_version, w.created_at, w.updated_at
		FROM workflows w`
	where, args := query.Where(query.SQLite, preds)
	if where != "" {
		sqlText += " WHERE " + where
	}
	sqlText += " ORDER BY w.created_at, w.id"

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*api.WorkflowRecord
	for rows.Next() {
		var rec api.WorkflowRecord
		var complete int
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.State, &complete, &rec.LockVersion, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Complete = complete != 0
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range records {
		if err := s.loadSteps(ctx, s.db, rec); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
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
	// Steps cascade when foreign keys are enabled; clean up explicitly for
	// connections opened without PRAGMA foreign_keys.
	_, err = s.db.ExecContext(ctx, `DELETE FROM workflow_steps WHERE workflow_id = ?`, id)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
