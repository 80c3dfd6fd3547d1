package gptl

import "sync"

// ThreadID is the caller-supplied stand-in for spec.md's "OS/user thread".
// Goroutines have no public stable identity in Go, so callers that want
// per-goroutine timing pass a value they control (a worker index, a
// context key, goroutine-local storage from a third-party helper, etc).
// The single-threaded back-end ignores whatever is passed.
type ThreadID any

// threadRegistry maps a ThreadID to a dense 0-based logical index,
// allocating slots for new threads on first sight. Implementations must
// serialize first-time allocation; subsequent lookups for a known thread
// should be as cheap as possible.
type threadRegistry interface {
	// current returns the logical index for id, allocating a new slot if
	// id has not been seen before. Returns errThreadOverflow once
	// maxthreads slots are in use.
	current(id ThreadID) (int, error)
	// count returns the number of slots allocated so far.
	count() int
	// ids returns, in allocation order, the ThreadID each logical index
	// maps to -- used by the reporter's thread map section.
	ids() []ThreadID
	// idAt returns the ThreadID assigned to logical index idx, and
	// whether idx has actually been allocated -- used by GetThreadStats
	// to name a statistic's producer thread.
	idAt(idx int) (ThreadID, bool)
}

// mutexRegistry is the parallel-threads back-end: a shared map guarded by
// a single mutex. First-time allocation takes the lock; so does every
// lookup, since a plain map isn't safe for concurrent readers and a
// concurrent writer. This matches spec §4.2/§5: "first-time slot
// allocation...is serialized by a single mutex."
type mutexRegistry struct {
	mu         sync.Mutex
	maxthreads int
	index      map[ThreadID]int
	order      []ThreadID
}

func newMutexRegistry(maxthreads int) *mutexRegistry {
	return &mutexRegistry{
		maxthreads: maxthreads,
		index:      make(map[ThreadID]int),
	}
}

func (r *mutexRegistry) current(id ThreadID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.index[id]; ok {
		return idx, nil
	}
	if len(r.order) >= r.maxthreads {
		return 0, errThreadOverflow
	}
	idx := len(r.order)
	r.index[id] = idx
	r.order = append(r.order, id)
	return idx, nil
}

func (r *mutexRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *mutexRegistry) ids() []ThreadID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ThreadID, len(r.order))
	copy(out, r.order)
	return out
}

func (r *mutexRegistry) idAt(idx int) (ThreadID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.order) {
		return nil, false
	}
	return r.order[idx], true
}

// preAssignedRegistry is the "compiler-provided thread index" back-end:
// the caller already knows its dense index (e.g. a worker pool handing out
// indices 0..N-1) and passes it directly as the ThreadID, so no map lookup
// is needed beyond a bounds check. A mutex is still taken on every call to
// record which indices have been seen, for count, ids and idAt.
type preAssignedRegistry struct {
	maxthreads int
	seen       []bool
	mu         sync.Mutex
	seenCount  int
}

func newPreAssignedRegistry(maxthreads int) *preAssignedRegistry {
	return &preAssignedRegistry{maxthreads: maxthreads, seen: make([]bool, maxthreads)}
}

func (r *preAssignedRegistry) current(id ThreadID) (int, error) {
	idx, ok := id.(int)
	if !ok || idx < 0 || idx >= r.maxthreads {
		return 0, errThreadOverflow
	}
	r.mu.Lock()
	if !r.seen[idx] {
		r.seen[idx] = true
		r.seenCount++
	}
	r.mu.Unlock()
	return idx, nil
}

func (r *preAssignedRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seenCount
}

func (r *preAssignedRegistry) ids() []ThreadID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ThreadID, 0, r.seenCount)
	for i, s := range r.seen {
		if s {
			out = append(out, i)
		}
	}
	return out
}

func (r *preAssignedRegistry) idAt(idx int) (ThreadID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= r.maxthreads || !r.seen[idx] {
		return nil, false
	}
	return idx, true
}

// singleRegistry is the single-threaded back-end: always index 0,
// unconditionally, regardless of what id is passed.
type singleRegistry struct {
	used bool
}

func (r *singleRegistry) current(ThreadID) (int, error) {
	r.used = true
	return 0, nil
}

func (r *singleRegistry) count() int {
	if r.used {
		return 1
	}
	return 0
}

func (r *singleRegistry) ids() []ThreadID {
	if !r.used {
		return nil
	}
	return []ThreadID{0}
}

func (r *singleRegistry) idAt(idx int) (ThreadID, bool) {
	if idx == 0 && r.used {
		return 0, true
	}
	return nil, false
}
