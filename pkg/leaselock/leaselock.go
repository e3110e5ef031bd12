// Package leaselock provides TTL leases backed by the app_locks table.
// The merge engine leases one key per graph node so concurrent workers
// serialize writes to the same node; leases held by crashed workers
// expire with the TTL instead of deadlocking the pipeline.
package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBusy = errors.New("lease lock busy")
	ErrLost = errors.New("lease lock lost")
)

const (
	renewTimeout = 15 * time.Second
	renewRetries = 3
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Client hands out leases keyed by arbitrary strings.
type Client struct {
	db dbConn
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{db: pool}
}

// NodeKey builds the lease key guarding writes to one graph node.
func NodeKey(nodeID string) string {
	return "node:" + nodeID
}

type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	// Wait blocks until the lease frees up instead of returning ErrBusy.
	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration
}

func (o *Options) withDefaults() {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = 250 * time.Millisecond
	}
	if o.WaitJitter < 0 {
		o.WaitJitter = 0
	}
}

// WithLease acquires the lease on key, runs fn under the lease context,
// and releases on return. The lease context is canceled if a renewal
// fails, so fn's writes stop once exclusivity can no longer be
// guaranteed.
func (c *Client) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	l, err := c.acquire(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = l.release(context.Background())
	}()
	return fn(l.ctx)
}

// lease is one held lock. holder is a random fencing token; renewal and
// release only touch rows this holder owns.
type lease struct {
	key    string
	holder string
	ttlMs  int64

	ctx    context.Context
	cancel context.CancelCauseFunc

	client   *Client
	stopOnce sync.Once
	stopCh   chan struct{}
}

func (c *Client) acquire(ctx context.Context, key string, opts Options) (*lease, error) {
	if key == "" {
		return nil, errors.New("lease lock key is empty")
	}
	opts.withDefaults()
	ttlMs := opts.TTL.Milliseconds()

	holder, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	for {
		var got string
		err := c.db.QueryRow(ctx, acquireSQL, key, holder, ttlMs).Scan(&got)
		if err == nil && got != "" {
			break
		}
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if !opts.Wait {
			return nil, ErrBusy
		}
		if err := sleepWithJitter(ctx, opts.WaitInterval, opts.WaitJitter); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &lease{
		key:    key,
		holder: holder,
		ttlMs:  ttlMs,
		ctx:    leaseCtx,
		cancel: cancel,
		client: c,
		stopCh: make(chan struct{}),
	}
	go l.renewLoop(opts.RenewEvery)

	return l, nil
}

func (l *lease) release(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel(context.Canceled)
	})

	_, err := l.client.db.Exec(ctx, releaseSQL, l.key, l.holder)
	return err
}

func (l *lease) renewLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.ctx.Done():
			return
		case <-t.C:
			if err := l.renewOnce(); err != nil {
				l.cancel(err)
				return
			}
		}
	}
}

func (l *lease) renewOnce() error {
	for attempt := range renewRetries {
		renewCtx, cancel := context.WithTimeout(l.ctx, renewTimeout)
		var got string
		err := l.client.db.QueryRow(renewCtx, renewSQL, l.key, l.holder, l.ttlMs).Scan(&got)
		cancel()
		if err == nil {
			return nil
		}
		// No row means another holder took over after our row expired.
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
		if attempt == renewRetries-1 {
			return err
		}
		if err := sleepWithJitter(l.ctx, 200*time.Millisecond, 0); err != nil {
			return err
		}
	}
	return ErrLost
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// An expired row can be taken over by any holder; re-upserting our own
// row extends it, which makes acquisition reentrant per holder.
const acquireSQL = `
INSERT INTO app_locks (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE app_locks.expires_at < now()
   OR app_locks.locked_by = EXCLUDED.locked_by
RETURNING lock_key;
`

const renewSQL = `
UPDATE app_locks
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key;
`

const releaseSQL = `
DELETE FROM app_locks
WHERE lock_key = $1 AND locked_by = $2;
`
