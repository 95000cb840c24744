// Package locks provides the run lock that keeps two imports from writing
// the same shared store at once.
package locks

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"

	"catalog-importer/internal/common/errors"
	"catalog-importer/internal/common/logging"
)

// DefaultExpiry is how long a lock survives without renewal
const DefaultExpiry = 30 * time.Second

// ErrLockLost is the cause of a Guard context whose lock could not be renewed
var ErrLockLost = stderrors.New("run lock lost")

// Lock is a held run lock
type Lock interface {
	Key() string
	IsHeld() bool
	// Lost is closed when renewal fails. It is not closed by Release.
	Lost() <-chan struct{}
	Release(ctx context.Context) error
}

// Guard returns a context that is cancelled with cause ErrLockLost as soon
// as lock is lost. Callers must call the returned cancel function.
func Guard(ctx context.Context, lock Lock) (context.Context, context.CancelFunc) {
	guarded, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-lock.Lost():
			cancel(ErrLockLost)
		case <-guarded.Done():
		}
	}()
	return guarded, func() { cancel(context.Canceled) }
}

// Locker hands out run locks
type Locker interface {
	Acquire(ctx context.Context, name string) (Lock, error)
}

// RedsyncLocker takes Redlock mutexes on the store's Redis server
type RedsyncLocker struct {
	redsync *redsync.Redsync
	prefix  string
	expiry  time.Duration
	logger  logging.Logger
}

// NewRedsyncLocker creates a locker whose keys are prefix + "lock:" + name
func NewRedsyncLocker(client *redis.Client, prefix string, expiry time.Duration, logger logging.Logger) (*RedsyncLocker, error) {
	if client == nil {
		return nil, errors.ConfigError("redis client is required")
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &RedsyncLocker{
		redsync: redsync.New(goredis.NewPool(client)),
		prefix:  prefix,
		expiry:  expiry,
		logger:  logger,
	}, nil
}

// Acquire takes the named lock without waiting. A lock held by another
// process is a connection error, so the run does not start.
func (l *RedsyncLocker) Acquire(ctx context.Context, name string) (Lock, error) {
	key := fmt.Sprintf("%slock:%s", l.prefix, name)
	mutex := l.redsync.NewMutex(key, redsync.WithExpiry(l.expiry), redsync.WithTries(1))

	if err := mutex.LockContext(ctx); err != nil {
		return nil, errors.ConnectionError("run lock is held by another import", err).WithContext("key", key)
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	lock := &redsyncLock{
		mutex:  mutex,
		key:    key,
		expiry: l.expiry,
		ctx:    renewCtx,
		cancel: cancel,
		lost:   make(chan struct{}),
		logger: l.logger,
	}
	lock.wg.Add(1)
	go lock.renew()

	return lock, nil
}

type redsyncLock struct {
	mutex  *redsync.Mutex
	key    string
	expiry time.Duration
	ctx    context.Context
	cancel context.CancelFunc
	lost   chan struct{}
	logger logging.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

// renew extends the lock at a third of its expiry until released
func (rl *redsyncLock) renew() {
	defer rl.wg.Done()

	interval := rl.expiry / 3
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(rl.ctx, 5*time.Second)
			ok, err := rl.mutex.ExtendContext(ctx)
			cancel()
			if rl.ctx.Err() != nil {
				return
			}
			if err != nil || !ok {
				rl.logger.Warn("Run lock lost", logging.String("key", rl.key), logging.Err(err))
				rl.cancel()
				close(rl.lost)
				return
			}
		}
	}
}

func (rl *redsyncLock) Key() string {
	return rl.key
}

func (rl *redsyncLock) IsHeld() bool {
	return rl.ctx.Err() == nil
}

func (rl *redsyncLock) Lost() <-chan struct{} {
	return rl.lost
}

// Release stops renewal and deletes the lock. Releasing twice is a no-op.
func (rl *redsyncLock) Release(ctx context.Context) error {
	var err error
	rl.once.Do(func() {
		rl.cancel()
		rl.wg.Wait()
		if _, unlockErr := rl.mutex.UnlockContext(ctx); unlockErr != nil {
			err = errors.ConnectionError("failed to release run lock", unlockErr).WithContext("key", rl.key)
		}
	})
	return err
}

// NopLocker is used for stores that are not shared between processes
type NopLocker struct{}

func (NopLocker) Acquire(_ context.Context, name string) (Lock, error) {
	return &nopLock{key: name, held: true}, nil
}

type nopLock struct {
	mu   sync.Mutex
	key  string
	held bool
}

func (n *nopLock) Key() string { return n.key }

func (n *nopLock) IsHeld() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.held
}

// Lost returns nil; a process-local lock cannot be taken away
func (n *nopLock) Lost() <-chan struct{} { return nil }

func (n *nopLock) Release(context.Context) error {
	n.mu.Lock()
	n.held = false
	n.mu.Unlock()
	return nil
}
