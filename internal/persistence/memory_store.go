package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/chartflow/pkg/api"
	"github.com/petrijr/chartflow/pkg/query"
)

// MemoryStore is a Store backed by an in-process map. Useful for tests and
// ephemeral workflows.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*api.WorkflowRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*api.WorkflowRecord)}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*api.WorkflowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, api.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Create(ctx context.Context, snap api.Snapshot) (*api.WorkflowRecord, error) {
	now := time.Now().UTC()
	rec := &api.WorkflowRecord{
		ID:          uuid.NewString(),
		Name:        snap.Name,
		State:       snap.State,
		Complete:    snap.Complete,
		LockVersion: 0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, st := range snap.Steps {
		rec.Steps = append(rec.Steps, api.StepRecord{
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
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = copyRecord(rec)
	return rec, nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *api.WorkflowRecord, snap api.Snapshot, opts UpdateOptions) (*api.WorkflowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[rec.ID]
	if !ok {
		return nil, api.ErrNotFound
	}
	if stored.LockVersion != rec.LockVersion {
		return nil, api.ErrConflict
	}

	now := time.Now().UTC()
	next := &api.WorkflowRecord{
		ID:          stored.ID,
		Name:        stored.Name,
		State:       snap.State,
		Complete:    snap.Complete,
		LockVersion: stored.LockVersion + 1,
		CreatedAt:   stored.CreatedAt,
		UpdatedAt:   now,
	}
	for _, st := range snap.Steps {
		sr := api.StepRecord{
			ID:          uuid.NewString(),
			WorkflowID:  stored.ID,
			State:       st.State,
			Name:        st.Name,
			Order:       st.Order,
			Participant: st.Participant,
			Decision:    st.Decision,
			Complete:    st.Complete,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if prev, found := stored.StepNamed(st.State, st.Name); found {
			sr.ID = prev.ID
			sr.CreatedAt = prev.CreatedAt
			switch {
			case st.Complete && prev.Complete:
				sr.CompletedAt = prev.CompletedAt
				sr.CompletedMetadata = prev.CompletedMetadata
			case st.Complete && !prev.Complete:
				at := now
				sr.CompletedAt = &at
				sr.CompletedMetadata = opts.CompletedMetadata
			}
		} else if st.Complete {
			at := now
			sr.CompletedAt = &at
			sr.CompletedMetadata = opts.CompletedMetadata
		}
		next.Steps = append(next.Steps, sr)
	}

	s.records[stored.ID] = copyRecord(next)
	return next, nil
}

func (s *MemoryStore) Find(ctx context.Context, preds []query.Predicate) ([]*api.WorkflowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*api.WorkflowRecord
	for _, rec := range s.records {
		completed := make(map[string]bool)
		for _, st := range rec.Steps {
			if st.Complete {
				completed[st.Name] = true
			}
		}
		matched := true
		for _, p := range preds {
			if !p.Match(rec.State, completed) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return api.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func copyRecord(rec *api.WorkflowRecord) *api.WorkflowRecord {
	c := *rec
	c.Steps = make([]api.StepRecord, len(rec.Steps))
	copy(c.Steps, rec.Steps)
	return &c
}
