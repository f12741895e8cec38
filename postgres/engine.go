// Package postgres provides a PostgreSQL-backed chartflow engine.
package postgres

import (
	"database/sql"

	"github.com/petrijr/chartflow/internal/engine"
	"github.com/petrijr/chartflow/pkg/api"

	pstore "github.com/petrijr/chartflow/postgres/internal/persistence"
)

// NewEngine returns an Engine that persists workflows in PostgreSQL.
func NewEngine(db *sql.DB) (api.Engine, error) {
	return NewEngineWithObserver(db, nil)
}

// NewEngineWithObserver returns a Postgres-backed Engine with the given
// Observer.
func NewEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	store, err := pstore.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return engine.NewEngineWithConfig(engine.Config{
		Store:    store,
		Observer: obs,
	}), nil
}
