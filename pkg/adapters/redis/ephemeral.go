package redis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
)

// acquirePollInterval paces contended lock acquisition attempts.
const acquirePollInterval = 20 * time.Millisecond

// releaseScript deletes the lock key only if this holder still owns it, so
// a release can never clobber a lock someone else re-acquired after our
// TTL lapsed.
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

type redisLock struct {
	coord *Coordinator
	key   string
	id    string

	mu         sync.Mutex
	acquired   bool
	registered bool
}

// NewLock implements ports.Coordinator.
func (c *Coordinator) NewLock(path, id string) ports.Lock {
	return &redisLock{coord: c, key: c.lockKey(path), id: id}
}

func (l *redisLock) tryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.coord.client.SetNX(ctx, l.key, l.id, l.coord.sessionTimeout).Result()
	if err != nil {
		return false, xlate(err)
	}
	if ok {
		return true, nil
	}
	// Re-acquiring a lock we already own succeeds.
	owner, err := l.coord.client.Get(ctx, l.key).Result()
	if errors.Is(err, backend.Nil) {
		// Released between the SetNX and the Get; next attempt races again.
		return false, nil
	}
	if err != nil {
		return false, xlate(err)
	}
	return owner == l.id, nil
}

func (l *redisLock) Acquire(timeout time.Duration) (bool, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		ctx, cancel := l.coord.opCtx()
		ok, err := l.tryAcquire(ctx)
		cancel()
		if err != nil {
			return false, err
		}
		if ok {
			l.mu.Lock()
			l.acquired = true
			if !l.registered {
				l.registered = true
				l.coord.addEphemeral(l)
			}
			l.mu.Unlock()
			return true, nil
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(acquirePollInterval)
	}
}

func (l *redisLock) Release() error {
	l.mu.Lock()
	l.acquired = false
	l.mu.Unlock()

	ctx, cancel := l.coord.opCtx()
	defer cancel()
	n, err := l.coord.client.Eval(ctx, releaseScript, []string{l.key}, l.id).Int()
	if err != nil {
		return xlate(err)
	}
	if n == 0 {
		return domain.ErrNoNode
	}
	return nil
}

func (l *redisLock) IsAcquired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired
}

func (l *redisLock) Abandon() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = false
}

// refresh renews the lock TTL while we believe we hold it.
func (l *redisLock) refresh(ctx context.Context) error {
	if !l.IsAcquired() {
		return nil
	}
	return xlate(l.coord.client.PExpire(ctx, l.key, l.coord.sessionTimeout).Err())
}

type redisParty struct {
	coord *Coordinator
	path  string
	id    string

	mu         sync.Mutex
	joined     bool
	registered bool
}

// NewParty implements ports.Coordinator.
func (c *Coordinator) NewParty(path, id string) (ports.GroupParty, error) {
	return &redisParty{coord: c, path: path, id: id}, nil
}

func (p *redisParty) Join() error {
	ctx, cancel := p.coord.opCtx()
	defer cancel()
	key := p.coord.memberKey(p.path, p.id)
	if err := p.coord.client.Set(ctx, key, "1", p.coord.sessionTimeout).Err(); err != nil {
		return xlate(err)
	}
	p.mu.Lock()
	p.joined = true
	if !p.registered {
		p.registered = true
		p.coord.addEphemeral(p)
	}
	p.mu.Unlock()
	return nil
}

func (p *redisParty) Members() ([]string, error) {
	ctx, cancel := p.coord.opCtx()
	defer cancel()
	prefix := p.coord.memberKey(p.path, "")
	var (
		cursor uint64
		ids    []string
	)
	for {
		keys, next, err := p.coord.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, xlate(err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
		if next == 0 {
			return ids, nil
		}
		cursor = next
	}
}

// refresh keeps the membership key alive while joined, re-creating it if
// it lapsed during a blip.
func (p *redisParty) refresh(ctx context.Context) error {
	p.mu.Lock()
	joined := p.joined
	p.mu.Unlock()
	if !joined {
		return nil
	}
	key := p.coord.memberKey(p.path, p.id)
	return xlate(p.coord.client.Set(ctx, key, "1", p.coord.sessionTimeout).Err())
}
