package vm

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// ResourceTracker records every live handle the VM owns (buffers and
// gRPC connections). Each handle is stamped with a uuid so that
// cancellation and drop logging can name the exact resource being
// force-closed. On Cancelled or VM close, every remaining handle is
// released (spec §5 "Shared resources").
type ResourceTracker struct {
	mu      sync.Mutex
	handles map[uuid.UUID]trackedHandle
}

type trackedHandle struct {
	kind  string
	close func() error
}

func NewResourceTracker() *ResourceTracker {
	return &ResourceTracker{handles: make(map[uuid.UUID]trackedHandle)}
}

// Register records a live handle and returns its id. closeFn may be nil
// for handles with no teardown beyond forgetting them (e.g. buffers).
func (t *ResourceTracker) Register(kind string, closeFn func() error) uuid.UUID {
	id := uuid.New()
	t.mu.Lock()
	t.handles[id] = trackedHandle{kind: kind, close: closeFn}
	t.mu.Unlock()
	return id
}

// Release closes and forgets one handle. Releasing an unknown id is a
// no-op: the handle was already consumed.
func (t *ResourceTracker) Release(id uuid.UUID) error {
	t.mu.Lock()
	h, ok := t.handles[id]
	delete(t.handles, id)
	t.mu.Unlock()
	if ok && h.close != nil {
		return h.close()
	}
	return nil
}

// Live reports the number of currently tracked handles.
func (t *ResourceTracker) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

// CloseAll force-closes every live handle, logging each to w when non-nil.
func (t *ResourceTracker) CloseAll(w io.Writer) {
	t.mu.Lock()
	handles := t.handles
	t.handles = make(map[uuid.UUID]trackedHandle)
	t.mu.Unlock()
	for id, h := range handles {
		if w != nil {
			fmt.Fprintf(w, "closing leaked %s handle %s\n", h.kind, id)
		}
		if h.close != nil {
			_ = h.close()
		}
	}
}
