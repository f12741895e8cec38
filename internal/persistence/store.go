package persistence

import (
	"context"

	"github.com/petrijr/chartflow/pkg/api"
	"github.com/petrijr/chartflow/pkg/query"
)

// Store persists workflow records. Implementations must serialize
// concurrent updates to one workflow through the record's lock version:
// Update fails with api.ErrConflict when the stored version no longer
// matches the loaded record.
type Store interface {
	// Load returns the record with the given ID, or api.ErrNotFound.
	Load(ctx context.Context, id string) (*api.WorkflowRecord, error)

	// Create persists a fresh snapshot and returns the new record.
	Create(ctx context.Context, snap api.Snapshot) (*api.WorkflowRecord, error)

	// Update writes the snapshot over the given record, incrementing the
	// lock version. Steps that became complete since the record was loaded
	// are stamped with a completion time and the options' metadata.
	Update(ctx context.Context, rec *api.WorkflowRecord, snap api.Snapshot, opts UpdateOptions) (*api.WorkflowRecord, error)

	// Find returns records matching all predicates.
	Find(ctx context.Context, preds []query.Predicate) ([]*api.WorkflowRecord, error)

	// Delete removes a record and its steps. Deleting an unknown ID is an
	// error.
	Delete(ctx context.Context, id string) error
}

// UpdateOptions carries per-update side data.
type UpdateOptions struct {
	// CompletedMetadata is attached to every step that transitions to
	// complete in this update.
	CompletedMetadata map[string]any
}
