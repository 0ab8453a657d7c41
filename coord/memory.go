package coord

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// MemoryQueue is an in-process Queue with the same holding semantics as the
// etcd queue. Lower priority values are served first, FIFO within a priority.
type MemoryQueue struct {
	mu       sync.Mutex
	seq      uint64
	entries  map[string]*memoryEntry
	changed  chan struct{}
	consumes int
	releases int
}

type memoryEntry struct {
	key      string
	id       []byte
	priority int
	seq      uint64
	held     bool
}

// NewMemoryQueue returns an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		entries: map[string]*memoryEntry{},
		changed: make(chan struct{}),
	}
}

// Put enqueues a job id. Putting the same id twice creates two entries.
func (q *MemoryQueue) Put(id string, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	key := strconv.FormatUint(q.seq, 10)
	q.entries[key] = &memoryEntry{key: key, id: []byte(id), priority: priority, seq: q.seq}
	q.notifyLocked()
}

// Len returns the number of entries, held or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Held returns the number of entries currently held.
func (q *MemoryQueue) Held() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.held {
			n++
		}
	}
	return n
}

// Stats returns how many consume and release calls took effect.
func (q *MemoryQueue) Stats() (consumes, releases int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.consumes, q.releases
}

func (q *MemoryQueue) Acquire(ctx context.Context) (Lease, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.mu.Lock()
		if e := q.nextLocked(); e != nil {
			e.held = true
			q.mu.Unlock()
			return &memoryLease{queue: q, entry: e}, nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

func (q *MemoryQueue) nextLocked() *memoryEntry {
	free := make([]*memoryEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if !e.held {
			free = append(free, e)
		}
	}
	if len(free) == 0 {
		return nil
	}
	sort.Slice(free, func(i, j int) bool {
		if free[i].priority != free[j].priority {
			return free[i].priority < free[j].priority
		}
		return free[i].seq < free[j].seq
	})
	return free[0]
}

// notifyLocked wakes every blocked Acquire.
func (q *MemoryQueue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

type memoryLease struct {
	queue *MemoryQueue
	entry *memoryEntry
	done  bool
}

func (l *memoryLease) ID() []byte { return l.entry.id }

func (l *memoryLease) Consume(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	q := l.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	if l.done {
		return true, nil
	}
	l.done = true
	delete(q.entries, l.entry.key)
	q.consumes++
	q.notifyLocked()
	return true, nil
}

func (l *memoryLease) Release(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	q := l.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	if l.done {
		return true, nil
	}
	l.done = true
	l.entry.held = false
	q.releases++
	q.notifyLocked()
	return true, nil
}

// MemoryElector is an in-process Elector. Every Campaign call is a contender.
type MemoryElector struct {
	mu      sync.Mutex
	leaders map[string]context.CancelFunc
	changed chan struct{}
}

// NewMemoryElector returns an elector with no leaders.
func NewMemoryElector() *MemoryElector {
	return &MemoryElector{
		leaders: map[string]context.CancelFunc{},
		changed: make(chan struct{}),
	}
}

// Leading reports whether some contender currently holds name's token.
func (e *MemoryElector) Leading(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.leaders[name]
	return ok
}

// Revoke cancels the current leader of name, as a lost session would.
func (e *MemoryElector) Revoke(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.leaders[name]; ok {
		cancel()
	}
}

func (e *MemoryElector) Campaign(ctx context.Context, name string, lead func(ctx context.Context) error) error {
	for {
		leadCtx, cancel, err := e.acquire(ctx, name)
		if err != nil {
			return nil
		}

		err = lead(leadCtx)
		lost := leadCtx.Err() != nil
		cancel()
		e.resign(name)

		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !lost {
			return err
		}
	}
}

func (e *MemoryElector) acquire(ctx context.Context, name string) (context.Context, context.CancelFunc, error) {
	for {
		e.mu.Lock()
		if _, taken := e.leaders[name]; !taken {
			leadCtx, cancel := context.WithCancel(ctx)
			e.leaders[name] = cancel
			e.mu.Unlock()
			return leadCtx, cancel, nil
		}
		wait := e.changed
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-wait:
		}
	}
}

func (e *MemoryElector) resign(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.leaders, name)
	close(e.changed)
	e.changed = make(chan struct{})
}
