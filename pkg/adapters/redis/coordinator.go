// Package redis implements the Coordinator port on Redis. Nodes live in
// hashes, children in per-parent sets, and the ephemeral primitives (lock,
// party) in TTL-bearing keys kept alive by the same liveness probe that
// synthesizes session-state notifications. It is a ZooKeeper-shaped view
// of Redis, not a Redis API.
package redis

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
)

const (
	// DefaultProbeInterval is how often the session probe pings.
	DefaultProbeInterval = 1 * time.Second

	// DefaultSessionTimeout is both the unresponsiveness budget before a
	// Suspended session is reported Lost and the TTL on ephemeral keys.
	DefaultSessionTimeout = 10 * time.Second

	// opTimeout bounds every individual remote call.
	opTimeout = 3 * time.Second
)

// Coordinator implements ports.Coordinator against a Redis backend.
type Coordinator struct {
	client *backend.Client
	prefix string

	probeInterval  time.Duration
	sessionTimeout time.Duration

	logger *slog.Logger
	clk    clock.Clock

	mu        sync.Mutex
	listeners []ports.SessionListener
	state     domain.SessionState
	downSince time.Time
	ephemeral []refresher // live locks and party memberships to keep alive

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// refresher is implemented by ephemeral primitives that need their TTL
// renewed while the session is alive.
type refresher interface {
	refresh(ctx context.Context) error
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithPrefix sets the key prefix for everything this coordinator stores.
func WithPrefix(prefix string) Option {
	return func(c *Coordinator) {
		c.prefix = prefix
	}
}

// WithProbeInterval sets the liveness probe cadence.
func WithProbeInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		c.probeInterval = d
	}
}

// WithSessionTimeout sets the unresponsiveness budget after which a
// suspended session is reported lost, and the TTL on ephemeral keys.
func WithSessionTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.sessionTimeout = d
	}
}

// WithLogger configures a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithClock injects the clock used for node timestamps and the probe.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clk = clk
	}
}

// New creates a coordinator talking to the Redis instance at addr.
func New(addr string, opts ...Option) *Coordinator {
	return NewFromClient(backend.NewClient(&backend.Options{Addr: addr}), opts...)
}

// NewFromClient creates a coordinator from an existing client. Used by
// tests to point at miniredis.
func NewFromClient(client *backend.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:         client,
		prefix:         "lattice:",
		probeInterval:  DefaultProbeInterval,
		sessionTimeout: DefaultSessionTimeout,
		logger:         logging.NewNop(),
		clk:            clock.New(),
		state:          domain.SessionDisconnected,
		stop:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// xlate maps client-native failures into the domain taxonomy.
func xlate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, backend.Nil):
		return domain.ErrNoNode
	default:
		return domain.ErrConnectionLoss
	}
}

func (c *Coordinator) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

func (c *Coordinator) nodeKey(path string) string     { return c.prefix + "n:" + path }
func (c *Coordinator) childrenKey(path string) string { return c.prefix + "c:" + path }
func (c *Coordinator) lockKey(path string) string     { return c.prefix + "lock:" + path }
func (c *Coordinator) memberKey(path, id string) string {
	return c.prefix + "pm:" + path + ":" + id
}

// Start verifies connectivity, reports the session connected and spawns
// the liveness probe.
func (c *Coordinator) Start(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return xlate(err)
	}
	c.setState(domain.SessionConnected)
	c.wg.Add(1)
	go c.probeLoop()
	return nil
}

// Close stops the probe, releases ephemeral keys and closes the client.
func (c *Coordinator) Close() error {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
	return c.client.Close()
}

// OnSessionChange implements ports.Coordinator.
func (c *Coordinator) OnSessionChange(l ports.SessionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// SessionID implements ports.Coordinator.
func (c *Coordinator) SessionID() string {
	return c.client.Options().Addr
}

func (c *Coordinator) setState(s domain.SessionState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	if s != domain.SessionConnected && c.downSince.IsZero() {
		c.downSince = c.clk.Now()
	}
	if s == domain.SessionConnected {
		c.downSince = time.Time{}
	}
	ls := make([]ports.SessionListener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.Unlock()
	for _, l := range ls {
		l(s)
	}
}

// probeLoop synthesizes session-state notifications from periodic pings
// and keeps ephemeral keys alive while the session is up.
func (c *Coordinator) probeLoop() {
	defer c.wg.Done()
	ticker := c.clk.Ticker(c.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := c.opCtx()
		err := c.client.Ping(ctx).Err()
		if err == nil {
			c.refreshEphemeral(ctx)
			cancel()
			c.setState(domain.SessionConnected)
			continue
		}
		cancel()
		c.mu.Lock()
		downSince := c.downSince
		c.mu.Unlock()
		if !downSince.IsZero() && c.clk.Since(downSince) > c.sessionTimeout {
			c.setState(domain.SessionLost)
		} else {
			c.setState(domain.SessionSuspended)
		}
	}
}

func (c *Coordinator) refreshEphemeral(ctx context.Context) {
	c.mu.Lock()
	eph := make([]refresher, len(c.ephemeral))
	copy(eph, c.ephemeral)
	c.mu.Unlock()
	for _, r := range eph {
		if err := r.refresh(ctx); err != nil {
			c.logger.Debug("ephemeral refresh failed", "err", err)
		}
	}
}

func (c *Coordinator) addEphemeral(r refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ephemeral = append(c.ephemeral, r)
}

// EnsurePath implements ports.Coordinator.
func (c *Coordinator) EnsurePath(path string) error {
	ctx, cancel := c.opCtx()
	defer cancel()
	return c.ensurePath(ctx, path)
}

func (c *Coordinator) ensurePath(ctx context.Context, path string) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		parent := cur
		cur += "/" + p
		exists, err := c.client.Exists(ctx, c.nodeKey(cur)).Result()
		if err != nil {
			return xlate(err)
		}
		if exists == 0 {
			if err := c.writeNode(ctx, cur, nil, 0); err != nil {
				return err
			}
		}
		if parent != "" {
			if err := c.client.SAdd(ctx, c.childrenKey(parent), p).Err(); err != nil {
				return xlate(err)
			}
		}
	}
	return nil
}

func (c *Coordinator) writeNode(ctx context.Context, path string, value []byte, version int64) error {
	err := c.client.HSet(ctx, c.nodeKey(path),
		"value", value,
		"version", version,
		"mtime", c.clk.Now().UnixMilli(),
	).Err()
	return xlate(err)
}

// Create implements ports.Coordinator.
func (c *Coordinator) Create(path string, value []byte, makePath bool) error {
	ctx, cancel := c.opCtx()
	defer cancel()
	exists, err := c.client.Exists(ctx, c.nodeKey(path)).Result()
	if err != nil {
		return xlate(err)
	}
	if exists != 0 {
		return domain.ErrNodeExists
	}
	parent := parentOf(path)
	if makePath && parent != "" {
		if err := c.ensurePath(ctx, parent); err != nil {
			return err
		}
	}
	if err := c.writeNode(ctx, path, value, 0); err != nil {
		return err
	}
	if parent != "" {
		if err := c.client.SAdd(ctx, c.childrenKey(parent), baseOf(path)).Err(); err != nil {
			return xlate(err)
		}
	}
	return nil
}

// Set implements ports.Coordinator.
func (c *Coordinator) Set(path string, value []byte) error {
	ctx, cancel := c.opCtx()
	defer cancel()
	key := c.nodeKey(path)
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return xlate(err)
	}
	if exists == 0 {
		return domain.ErrNoNode
	}
	if err := c.client.HSet(ctx, key,
		"value", value,
		"mtime", c.clk.Now().UnixMilli(),
	).Err(); err != nil {
		return xlate(err)
	}
	return xlate(c.client.HIncrBy(ctx, key, "version", 1).Err())
}

// Get implements ports.Coordinator.
func (c *Coordinator) Get(path string) ([]byte, domain.Stat, error) {
	ctx, cancel := c.opCtx()
	defer cancel()
	fields, err := c.client.HGetAll(ctx, c.nodeKey(path)).Result()
	if err != nil {
		return nil, domain.Stat{}, xlate(err)
	}
	if len(fields) == 0 {
		return nil, domain.Stat{}, domain.ErrNoNode
	}
	return []byte(fields["value"]), statFromFields(fields), nil
}

// Exists implements ports.Coordinator.
func (c *Coordinator) Exists(path string) (domain.Stat, bool, error) {
	ctx, cancel := c.opCtx()
	defer cancel()
	fields, err := c.client.HGetAll(ctx, c.nodeKey(path)).Result()
	if err != nil {
		return domain.Stat{}, false, xlate(err)
	}
	if len(fields) == 0 {
		return domain.Stat{}, false, nil
	}
	return statFromFields(fields), true, nil
}

// Children implements ports.Coordinator.
func (c *Coordinator) Children(path string) ([]string, error) {
	ctx, cancel := c.opCtx()
	defer cancel()
	exists, err := c.client.Exists(ctx, c.nodeKey(path)).Result()
	if err != nil {
		return nil, xlate(err)
	}
	if exists == 0 {
		return nil, domain.ErrNoNode
	}
	names, err := c.client.SMembers(ctx, c.childrenKey(path)).Result()
	if err != nil {
		return nil, xlate(err)
	}
	// Children sets can lag deletions; report only live nodes.
	live := names[:0]
	for _, name := range names {
		n, err := c.client.Exists(ctx, c.nodeKey(path+"/"+name)).Result()
		if err != nil {
			return nil, xlate(err)
		}
		if n != 0 {
			live = append(live, name)
		}
	}
	sort.Strings(live)
	return live, nil
}

// Delete implements ports.Coordinator.
func (c *Coordinator) Delete(path string) error {
	ctx, cancel := c.opCtx()
	defer cancel()
	n, err := c.client.Del(ctx, c.nodeKey(path)).Result()
	if err != nil {
		return xlate(err)
	}
	if n == 0 {
		return domain.ErrNoNode
	}
	if parent := parentOf(path); parent != "" {
		if err := c.client.SRem(ctx, c.childrenKey(parent), baseOf(path)).Err(); err != nil {
			return xlate(err)
		}
	}
	return nil
}

func statFromFields(fields map[string]string) domain.Stat {
	version, _ := strconv.ParseInt(fields["version"], 10, 64)
	ms, _ := strconv.ParseInt(fields["mtime"], 10, 64)
	return domain.Stat{
		Version:      version,
		LastModified: time.UnixMilli(ms),
	}
}

func parentOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return ""
	}
	return path[:i]
}

func baseOf(path string) string {
	i := strings.LastIndex(path, "/")
	return path[i+1:]
}
