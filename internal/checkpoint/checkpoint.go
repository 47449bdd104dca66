package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"approvalflow/pkg"
)

// Checkpoint is the persisted snapshot that makes exact resumption
// possible: the state as of the pause plus the cursor naming the node to
// re-evaluate. Seq is the next event sequence number for the run.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	Cursor    string    `json:"cursor"`
	State     pkg.State `json:"state"`
	Seq       int       `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store durably associates the most recent checkpoint with a run ID.
// Save is last-write-wins per run ID and a Save followed by Load for the
// same run ID observes the latest write.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, runID string) (*Checkpoint, error)
	HasPending(ctx context.Context, runID string) (bool, error)
	Delete(ctx context.Context, runID string) error
}

// MemoryStore keeps checkpoints in process memory. Suitable for tests and
// single-process deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Checkpoint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Checkpoint)}
}

func (m *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.RunID == "" {
		return fmt.Errorf("checkpoint must carry a run id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[cp.RunID] = copyCheckpoint(cp)
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.data[runID]
	if !ok {
		return nil, fmt.Errorf("checkpoint for %q: %w", runID, pkg.ErrNotFound)
	}
	return copyCheckpoint(cp), nil
}

func (m *MemoryStore) HasPending(ctx context.Context, runID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[runID]
	return ok, nil
}

func (m *MemoryStore) Delete(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, runID)
	return nil
}

// copyCheckpoint guards the store against callers mutating a checkpoint
// they saved or loaded.
func copyCheckpoint(cp *Checkpoint) *Checkpoint {
	out := *cp
	out.State = cp.State.Clone()
	return &out
}
