package coord

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"

	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/logger"
)

// Dial connects to the coordination service and checks it answers.
func Dial(ctx context.Context, hosts []string, timeout time.Duration, log *zap.SugaredLogger) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   hosts,
		DialTimeout: timeout,
		Logger:      log.Desugar().Named("etcd"),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to etcd %v", hosts)
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := cli.Get(checkCtx, "health"); err != nil {
		cli.Close()
		return nil, errors.Wrapf(err, "etcd %v unreachable", hosts)
	}
	return cli, nil
}

// EtcdQueue is a locking queue on etcd. Entries live under <prefix>/entries,
// keyed so a sorted scan yields priority order then creation order. Holding an
// entry means owning a concurrency.Mutex under <prefix>/locks tied to this
// process's session, so the hold lapses with the session lease.
//
// A session's mutex is re-entrant, so workers sharing the queue also reserve
// the entry in held before locking it.
type EtcdQueue struct {
	client  *clientv3.Client
	prefix  string
	session *concurrency.Session
	logger  *zap.SugaredLogger

	mu    sync.Mutex
	held  map[string]struct{}
	freed chan struct{}
}

// NewEtcdQueue opens the session used for every hold taken by this queue.
func NewEtcdQueue(client *clientv3.Client, prefix string, ttlSeconds int, log *zap.SugaredLogger) (*EtcdQueue, error) {
	session, err := concurrency.NewSession(client, concurrency.WithTTL(ttlSeconds))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create etcd session for queue")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &EtcdQueue{
		client:  client,
		prefix:  path.Join(prefix, "queue"),
		session: session,
		logger:  log,
		held:    map[string]struct{}{},
		freed:   make(chan struct{}),
	}, nil
}

func (q *EtcdQueue) entriesPrefix() string { return q.prefix + "/entries/" }

func (q *EtcdQueue) locksPrefix() string { return q.prefix + "/locks/" }

func (q *EtcdQueue) lockPrefix(entryKey string) string {
	return q.locksPrefix() + path.Base(entryKey)
}

// Put enqueues a job id. Lower priority values are served first.
func (q *EtcdQueue) Put(ctx context.Context, id string, priority int) error {
	key := EntryKey(q.entriesPrefix(), priority, uuid.Must(uuid.NewV7()).String())
	if _, err := q.client.Put(ctx, key, id); err != nil {
		return errors.Wrapf(err, "failed to enqueue %s", id)
	}
	return nil
}

// EntryKey builds the sortable key of a queue entry.
func EntryKey(entriesPrefix string, priority int, unique string) string {
	return fmt.Sprintf("%s%010d-%s", entriesPrefix, priority, unique)
}

func (q *EtcdQueue) Acquire(ctx context.Context) (Lease, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-q.session.Done():
			return nil, ErrSessionExpired
		default:
		}

		freed := q.freedSignal()
		resp, err := q.client.Get(ctx, q.entriesPrefix(),
			clientv3.WithPrefix(),
			clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
		if err != nil {
			return nil, errors.Wrap(err, "failed to list queue entries")
		}

		for _, kv := range resp.Kvs {
			lease, err := q.tryHold(ctx, string(kv.Key), kv.Value)
			if err != nil {
				return nil, err
			}
			if lease != nil {
				return lease, nil
			}
		}

		if err := q.waitForChange(ctx, resp.Header.Revision+1, freed); err != nil {
			return nil, err
		}
	}
}

// tryHold locks one entry. It returns a nil lease when the entry is held
// elsewhere, by this process included, or was consumed in between.
func (q *EtcdQueue) tryHold(ctx context.Context, key string, value []byte) (Lease, error) {
	if !q.reserve(key) {
		return nil, nil
	}
	// a held entry is skipped without writing, so idle contenders stay quiet
	holders, err := q.client.Get(ctx, q.lockPrefix(key)+"/", clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		q.unreserve(key)
		return nil, errors.Wrapf(err, "failed to inspect lock of queue entry %s", key)
	}
	if holders.Count > 0 {
		q.unreserve(key)
		return nil, nil
	}

	mu := concurrency.NewMutex(q.session, q.lockPrefix(key))
	if err := mu.TryLock(ctx); err != nil {
		q.unreserve(key)
		if errors.Is(err, concurrency.ErrLocked) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to lock queue entry %s", key)
	}

	check, err := q.client.Get(ctx, key)
	if err != nil || len(check.Kvs) == 0 {
		_ = mu.Unlock(context.WithoutCancel(ctx))
		q.unreserve(key)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read queue entry %s", key)
		}
		return nil, nil
	}

	q.logger.Debugw("Holding queue entry", "key", key, logger.FieldJobID, string(value))
	return &etcdLease{queue: q, key: key, id: value, mutex: mu}, nil
}

func (q *EtcdQueue) reserve(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.held[key]; ok {
		return false
	}
	q.held[key] = struct{}{}
	return true
}

func (q *EtcdQueue) unreserve(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.held, key)
}

// forget drops a settled hold and wakes this process's waiting workers. Their
// watches ignore unlocks made under our own session.
func (q *EtcdQueue) forget(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.held, key)
	close(q.freed)
	q.freed = make(chan struct{})
}

func (q *EtcdQueue) freedSignal() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.freed
}

// waitForChange blocks until, after rev, an entry is added, another session
// lets go of a lock, or a hold of this process is settled.
func (q *EtcdQueue) waitForChange(ctx context.Context, rev int64, freed <-chan struct{}) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	added := q.client.Watch(watchCtx, q.entriesPrefix(),
		clientv3.WithPrefix(), clientv3.WithRev(rev), clientv3.WithFilterDelete())
	unlocked := q.client.Watch(watchCtx, q.locksPrefix(),
		clientv3.WithPrefix(), clientv3.WithRev(rev), clientv3.WithFilterPut())
	own := fmt.Sprintf("/%x", q.session.Lease())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.session.Done():
			return ErrSessionExpired
		case <-freed:
			return nil
		case resp, ok := <-added:
			if !ok {
				return nil
			}
			if err := watchError(resp); err != nil || resp.CompactRevision != 0 {
				return err
			}
			if len(resp.Events) > 0 {
				return nil
			}
		case resp, ok := <-unlocked:
			if !ok {
				return nil
			}
			if err := watchError(resp); err != nil || resp.CompactRevision != 0 {
				return err
			}
			for _, ev := range resp.Events {
				if !strings.HasSuffix(string(ev.Kv.Key), own) {
					return nil
				}
			}
		}
	}
}

// watchError ignores compaction, which only means a rescan is due.
func watchError(resp clientv3.WatchResponse) error {
	if err := resp.Err(); err != nil && resp.CompactRevision == 0 {
		return errors.Wrap(err, "queue watch failed")
	}
	return nil
}

// Close ends the session, lapsing every hold.
func (q *EtcdQueue) Close() error {
	return q.session.Close()
}

type etcdLease struct {
	queue *EtcdQueue
	key   string
	id    []byte
	mutex *concurrency.Mutex

	mu       sync.Mutex
	consumed bool
	settled  bool
}

func (l *etcdLease) ID() []byte { return l.id }

// Consume deletes the entry and lets go of it. Calls after the lease is
// settled do nothing: the session key may by then guard another worker's hold.
func (l *etcdLease) Consume(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.settled {
		return true, nil
	}
	if !l.consumed {
		if _, err := l.queue.client.Delete(ctx, l.key); err != nil {
			return false, errors.Wrapf(err, "failed to delete queue entry %s", l.key)
		}
		l.consumed = true
	}
	return l.settle(ctx)
}

func (l *etcdLease) Release(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.settled {
		return true, nil
	}
	return l.settle(ctx)
}

func (l *etcdLease) settle(ctx context.Context) (bool, error) {
	if err := l.mutex.Unlock(ctx); err != nil {
		return false, errors.Wrapf(err, "failed to unlock queue entry %s", l.key)
	}
	l.settled = true
	l.queue.forget(l.key)
	return true, nil
}

// EtcdElector runs leader election with etcd's concurrency.Election, one
// election per name under <prefix>/election/<name>.
type EtcdElector struct {
	client   *clientv3.Client
	prefix   string
	ttl      int
	identity string
	logger   *zap.SugaredLogger
}

// NewEtcdElector creates an elector campaigning as identity.
func NewEtcdElector(client *clientv3.Client, prefix string, ttlSeconds int, identity string, logger *zap.SugaredLogger) *EtcdElector {
	return &EtcdElector{
		client:   client,
		prefix:   path.Join(prefix, "election"),
		ttl:      ttlSeconds,
		identity: identity,
		logger:   logger,
	}
}

func (e *EtcdElector) Campaign(ctx context.Context, name string, lead func(ctx context.Context) error) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		lost, err := e.term(ctx, name, lead)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !lost {
			return err
		}
		if lost {
			e.logger.Warnw("Leadership lost, contending again", logger.FieldJobType, name)
		}
	}
}

// term contends once and leads until ctx is done, lead returns or the session
// expires. lost reports the latter.
func (e *EtcdElector) term(ctx context.Context, name string, lead func(ctx context.Context) error) (lost bool, err error) {
	session, err := concurrency.NewSession(e.client, concurrency.WithTTL(e.ttl))
	if err != nil {
		return false, errors.Wrapf(err, "failed to create election session for %s", name)
	}
	defer session.Close()

	election := concurrency.NewElection(session, path.Join(e.prefix, name))
	if err := election.Campaign(ctx, e.identity); err != nil {
		return false, errors.Wrapf(err, "election campaign for %s failed", name)
	}
	e.logger.Infow("Elected leader", logger.FieldJobType, name, "identity", e.identity)

	leadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-session.Done():
			cancel()
		case <-leadCtx.Done():
		}
	}()

	err = lead(leadCtx)
	select {
	case <-session.Done():
		lost = true
	default:
	}

	resignCtx, resignCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer resignCancel()
	if rerr := election.Resign(resignCtx); rerr != nil && !lost {
		e.logger.Warnw("Failed to resign leadership", logger.FieldJobType, name, logger.FieldError, rerr)
	}
	return lost, err
}
