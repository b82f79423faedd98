// Package dbpool implements the DatabasePool / DatabaseQueue / Database of
// §4.1: at-most-one live writable Database per Endpoints key, multiplexed
// readable handles, bounded retries, and scoped acquisition.
//
// Grounded on original_source/src/database.cc's DatabasePool::checkout /
// checkin (single recursive mutex guarding a map of per-key queues, a
// count of live handles, block-until-pushed-back for a busy writable
// queue) and on the teacher's single-reentrant-lock + condition-per-queue
// discipline described for cluster ownership in cluster/map.go (Smap
// listeners use the same single-lock/republish pattern, §5).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package dbpool

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/xapiand/xapiand/cmn"
	"github.com/xapiand/xapiand/cmn/debug"
	"github.com/xapiand/xapiand/cmn/xerrors"
	"github.com/xapiand/xapiand/endpoint"
	"github.com/xapiand/xapiand/index"
)

// Database wraps one opened shard set with the transactional/WAL state
// §3 describes. The Schema binding lives one layer up (schema.Schema),
// referenced here only as an opaque pointer so this package has no import
// cycle with package schema.
type Database struct {
	Endpoints  *endpoint.Endpoints
	Writable   bool
	Hash       uint64
	WDB        index.WritableDatabase // nil when !Writable and no mutation API is needed
	RDB        index.Database
	ReopenTime time.Time
	Revision   uint64
	Incomplete bool
	Closed     bool

	// generation is bumped on every reopen/close; the autocommit scheduler
	// (§4.6) compares against the value it captured at schedule time to
	// implement the "weak reference ... skip if destroyed" behavior without
	// a real weak pointer.
	generation uint64

	Schema interface{} // bound lazily by the handler layer (package schema)
}

// reopen re-establishes the underlying shard handle(s), up to
// MaxDatabaseRetries attempts (§4.1 "which calls reopen up to 4 times on
// failure"). The in-memory index backend never actually fails to open, so
// this mostly exists as the hook real storage would plug into.
func (d *Database) reopen(newBackend func() (index.WritableDatabase, error)) error {
	var lastErr error
	for attempt := 0; attempt < cmn.MaxDatabaseRetries; attempt++ {
		wdb, err := newBackend()
		if err == nil {
			d.WDB = wdb
			d.RDB = wdb
			d.ReopenTime = time.Now()
			d.generation++
			d.Incomplete = false
			return nil
		}
		lastErr = err
		glog.Warningf("reopen attempt %d/%d for %s failed: %v", attempt+1, cmn.MaxDatabaseRetries, d.Endpoints, err)
	}
	d.Incomplete = true
	return xerrors.NewDatabaseError(lastErr, "failed to open %s after %d attempts", d.Endpoints, cmn.MaxDatabaseRetries)
}

func (d *Database) Generation() uint64 { return d.generation }

// queue is a bounded holding pen of idle handles for one (Endpoints,
// writable) key (§3 DatabaseQueue). Writable queues hold at most one idle
// handle; readable queues may hold several.
type queue struct {
	cond    *sync.Cond
	idle    []*Database
	count   int // live handles: checked out + idle
	waiters int
}

// Pool is the Endpoints.Hash -> queue map plus the finished flag (§3
// DatabasePool). A single reentrant-in-spirit lock (Go's sync.Mutex is not
// reentrant, so every method here takes it exactly once and never calls
// another locking method while held) guards the map and every queue's
// condition variable.
type Pool struct {
	mu       sync.Mutex
	queues   map[uint64]*queue
	finished bool

	maxWaiters int
	newBackend func(eps *endpoint.Endpoints, writable bool) (index.WritableDatabase, error)
}

func New(maxWaiters int, newBackend func(eps *endpoint.Endpoints, writable bool) (index.WritableDatabase, error)) *Pool {
	if newBackend == nil {
		// One in-memory store per Endpoints set, shared by its writable and
		// readable handles so reads see what writes stored.
		var storesMu sync.Mutex
		stores := make(map[uint64]index.WritableDatabase)
		newBackend = func(eps *endpoint.Endpoints, writable bool) (index.WritableDatabase, error) {
			storesMu.Lock()
			defer storesMu.Unlock()
			db, ok := stores[eps.Hash()]
			if !ok {
				db = index.NewMemDatabase(eps.String())
				stores[eps.Hash()] = db
			}
			return db, nil
		}
	}
	return &Pool{queues: make(map[uint64]*queue), maxWaiters: maxWaiters, newBackend: newBackend}
}

func keyHash(eps *endpoint.Endpoints, writable bool) uint64 {
	h := eps.Hash()
	if writable {
		h ^= 1
	}
	return h
}

func (p *Pool) queueFor(key uint64) *queue {
	q, ok := p.queues[key]
	if !ok {
		q = &queue{cond: sync.NewCond(&p.mu)}
		p.queues[key] = q
	}
	return q
}

// Checkout implements §4.1's checkout algorithm exactly:
//  1. pop an idle handle if present;
//  2. else, if readable or the queue is empty, create a new handle;
//  3. else (writable, busy) block on the queue's condition, bounded by
//     deadline, until one is pushed back.
func (p *Pool) Checkout(eps *endpoint.Endpoints, writable bool, deadline time.Time) (*Database, error) {
	key := keyHash(eps, writable)

	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return nil, xerrors.ErrDatabaseNotAvailable
	}
	q := p.queueFor(key)

	if n := len(q.idle); n > 0 {
		db := q.idle[n-1]
		q.idle = q.idle[:n-1]
		p.mu.Unlock()
		return db, nil
	}

	if !writable || q.count == 0 {
		q.count++
		p.mu.Unlock()

		backend, err := p.newBackend(eps, writable)
		if err != nil {
			p.mu.Lock()
			q.count--
			p.mu.Unlock()
			return nil, xerrors.NewDatabaseError(err, "open %s failed", eps)
		}
		db := &Database{Endpoints: eps, Writable: writable, Hash: key, WDB: backend, RDB: backend, ReopenTime: time.Now()}
		return db, nil
	}

	// Writable and busy: backpressure cap (§5) before blocking.
	if q.waiters >= p.maxWaiters {
		p.mu.Unlock()
		return nil, xerrors.ErrDatabaseNotAvailable
	}
	q.waiters++
	defer func() { q.waiters-- }()

	for len(q.idle) == 0 && !p.finished {
		if deadline.IsZero() {
			q.cond.Wait()
			continue
		}
		if !waitUntil(q.cond, deadline) {
			p.mu.Unlock()
			return nil, xerrors.NewTimeOutError("checkout of %s timed out", eps)
		}
	}
	if p.finished {
		p.mu.Unlock()
		return nil, xerrors.ErrDatabaseNotAvailable
	}
	n := len(q.idle)
	db := q.idle[n-1]
	q.idle = q.idle[:n-1]
	p.mu.Unlock()
	return db, nil
}

// waitUntil is sync.Cond.Wait with a deadline: it spawns a timer that
// broadcasts the condition on expiry so the waiting goroutine wakes up
// either way, then reports whether it woke due to real progress (false on
// timeout). Every blocking primitive in §5 must honor a per-request
// deadline; this is the one the pool's queue condition uses.
func waitUntil(cond *sync.Cond, deadline time.Time) bool {
	d := time.Until(deadline)
	if d <= 0 {
		return false
	}
	timer := time.AfterFunc(d, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
	return time.Now().Before(deadline)
}

// Checkin pushes a handle back onto its queue and signals one waiter
// (§4.1). If markBad is set the handle is dropped instead (decrementing
// count) — §4.1 "If the database was marked unusable, decrement count and
// drop it instead."
func (p *Pool) Checkin(db *Database, markBad bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[db.Hash]
	debug.Assertf(ok, "checkin of handle for unknown queue %x", db.Hash)
	if markBad || db.Closed {
		q.count--
		q.cond.Signal()
		return
	}
	q.idle = append(q.idle, db)
	q.cond.Signal()
}

// Finish marks the pool finished and wakes every waiter (§4.1).
func (p *Pool) Finish() {
	p.mu.Lock()
	p.finished = true
	p.mu.Unlock()
	p.mu.Lock()
	for _, q := range p.queues {
		q.cond.Broadcast()
	}
	p.mu.Unlock()
}

// Stats reports, per queue key, live counters useful for the pool
// accounting invariant (§8 property 1): count == idle + checked_out.
type Stats struct {
	Count       int
	Idle        int
	CheckedOut  int
}

func (p *Pool) StatsFor(eps *endpoint.Endpoints, writable bool) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[keyHash(eps, writable)]
	if !ok {
		return Stats{}
	}
	return Stats{Count: q.count, Idle: len(q.idle), CheckedOut: q.count - len(q.idle)}
}
