package catalog

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/openfroyo/blueprint/pkg/engine"
)

// snapshot is an immutable set of handles. Writers build a new snapshot and
// publish it with a single pointer swap.
type snapshot struct {
	handles map[string]*Handle
	order   []string
}

var emptySnapshot = &snapshot{handles: map[string]*Handle{}}

func (s *snapshot) get(id string) (*Handle, bool) {
	h, ok := s.handles[id]
	return h, ok
}

// with returns a new snapshot holding s plus added. Ids already present in
// s or repeated in added are rejected.
func (s *snapshot) with(added []*Handle) (*snapshot, error) {
	next := &snapshot{
		handles: make(map[string]*Handle, len(s.handles)+len(added)),
		order:   make([]string, len(s.order), len(s.order)+len(added)),
	}
	for id, h := range s.handles {
		next.handles[id] = h
	}
	copy(next.order, s.order)

	for _, h := range added {
		id := h.item.ID()
		if _, exists := next.handles[id]; exists {
			return nil, duplicateError(id)
		}
		next.handles[id] = h
		next.order = append(next.order, id)
	}
	return next, nil
}

func (s *snapshot) each(fn func(*Handle)) {
	for _, id := range s.order {
		fn(s.handles[id])
	}
}

// registry is one node of the registry tree.
type registry struct {
	name   string
	parent *registry

	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

func newRegistry(name string, parent *registry) *registry {
	r := &registry{name: name, parent: parent}
	r.current.Store(emptySnapshot)
	return r
}

func (r *registry) snapshot() *snapshot {
	return r.current.Load()
}

// contains reports whether id is registered here or in an ancestor.
func (r *registry) contains(id string) bool {
	for node := r; node != nil; node = node.parent {
		if _, ok := node.snapshot().get(id); ok {
			return true
		}
	}
	return false
}

// add publishes handles atomically. commit runs under the write lock after
// the duplicate check and before publication; an error aborts the add.
func (r *registry) add(handles []*Handle, commit func() error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if r.parent != nil {
		for _, h := range handles {
			if r.parent.contains(h.item.ID()) {
				return duplicateError(h.item.ID())
			}
		}
	}

	next, err := r.snapshot().with(handles)
	if err != nil {
		return err
	}
	if commit != nil {
		if err := commit(); err != nil {
			return err
		}
	}
	r.current.Store(next)
	return nil
}

// replace publishes s wholesale.
func (r *registry) replace(s *snapshot) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.current.Store(s)
}

func duplicateError(id string) error {
	return engine.NewInvalidArgumentError(fmt.Sprintf("catalog item %s already exists", id), nil).
		WithCode(engine.ErrCodeAlreadyExists).
		WithSubject(id)
}
