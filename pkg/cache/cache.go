// Package cache mirrors a namespace of small versioned entries from the
// coordination service into local handlers. It keeps no payloads: entries
// pass through during a single processing pass, and only a bounded,
// age-limited metadata cache is retained to avoid re-statting every entry
// on every pass.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/observability"
	"github.com/aretw0/lattice/pkg/ports"
)

// metadataCacheSize caps the local metadata cache. The cap is purely a
// guard against unbounded local growth and is independent of the max-age
// eviction on the remote entries.
const metadataCacheSize = 100

// Conn is the slice of the connection manager the cache consumes. It is
// satisfied by *lattice.Conn.
type Conn interface {
	IsConnected() bool
	Epoch() uint64
	Prefix() string
	Coordinator() ports.Coordinator
}

// Handler receives one ordered batch of entry payloads per processing
// pass. It is invoked synchronously on the caller of Process, and only
// when the batch is non-empty.
type Handler func(entries [][]byte)

// Cache is a shared cache of small blobs under one namespace path.
// Process detects and dispatches newly changed entries; Expire removes
// entries past their age limit. Not safe for concurrent use of Process by
// multiple goroutines; the cursor state assumes one processing loop.
type Cache struct {
	conn    Conn
	coord   ports.Coordinator
	path    string
	handler Handler
	maxAge  time.Duration

	meta *expirable.LRU[string, domain.Stat]

	mu     sync.Mutex
	latest time.Time // most recent modification seen this epoch
	epoch  uint64    // connection epoch the cursor is valid for

	clk     clock.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects the clock used by age-based expiry.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) {
		c.clk = clk
	}
}

// WithLogger configures a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics wires prometheus collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a shared cache rooted at relPath below the connection's
// namespace. Entries older than maxAge are eligible for Expire; the local
// metadata cache uses the same age limit for its records.
func New(conn Conn, relPath string, handler Handler, maxAge time.Duration, opts ...Option) *Cache {
	c := &Cache{
		conn:    conn,
		coord:   conn.Coordinator(),
		path:    conn.Prefix() + "/" + strings.Trim(relPath, "/"),
		handler: handler,
		maxAge:  maxAge,
		meta:    expirable.NewLRU[string, domain.Stat](metadataCacheSize, nil, maxAge),
		clk:     clock.New(),
		logger:  logging.NewNop(),
		metrics: observability.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) entryPath(name string) string {
	return c.path + "/" + name
}

// Store writes an entry, overwriting an existing one or creating it if
// absent. Losing a creation race to another writer is success: the value
// exists, which is all this cache promises.
func (c *Cache) Store(name string, value []byte) error {
	if !c.conn.IsConnected() {
		return fmt.Errorf("store %q: %w", name, domain.ErrConnectionLoss)
	}
	p := c.entryPath(name)
	err := c.coord.Set(p, value)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNoNode) {
		return fmt.Errorf("store %q (%v): %w", name, err, domain.ErrConnectionLoss)
	}
	err = c.coord.Create(p, value, true)
	if err == nil || errors.Is(err, domain.ErrNodeExists) {
		return nil
	}
	return fmt.Errorf("store %q (%v): %w", name, err, domain.ErrConnectionLoss)
}

// Process scans the remote namespace for entries modified since the last
// pass and hands them to the handler in one batch. A connection epoch
// change since the previous pass invalidates the cursor entirely: entries
// may have changed while disconnected, so everything is re-examined.
// Returns the number of entries successfully fetched.
func (c *Cache) Process() (int, error) {
	if !c.conn.IsConnected() {
		return 0, fmt.Errorf("process %q: %w", c.path, domain.ErrConnectionLoss)
	}

	epoch := c.conn.Epoch()
	c.mu.Lock()
	if c.epoch != epoch {
		c.logger.Debug("connection epoch changed, rescanning from scratch",
			"path", c.path,
			"old_epoch", c.epoch,
			"new_epoch", epoch,
		)
		c.latest = time.Time{}
		c.epoch = epoch
	}
	c.mu.Unlock()

	metas, err := c.listMetadata()
	if err != nil {
		return 0, err
	}
	return c.handleEntries(c.findUpdated(metas)), nil
}

type entryMeta struct {
	name string
	stat domain.Stat
}

// listMetadata lists all entries with their metadata, consulting the local
// metadata cache first and falling back to a remote stat. Names whose node
// vanished between listing and stat are skipped.
func (c *Cache) listMetadata() ([]entryMeta, error) {
	names, err := c.coord.Children(c.path)
	if err != nil {
		if errors.Is(err, domain.ErrNoNode) {
			// Nothing stored yet.
			return nil, nil
		}
		return nil, fmt.Errorf("listing %q (%v): %w",
			c.path, err, domain.ErrConnectionLoss)
	}
	metas := make([]entryMeta, 0, len(names))
	for _, name := range names {
		stat, ok := c.meta.Get(name)
		if !ok {
			var err error
			stat, err = c.stat(name)
			if errors.Is(err, domain.ErrNoNode) {
				continue
			}
			if err != nil {
				return nil, err
			}
		}
		metas = append(metas, entryMeta{name: name, stat: stat})
	}
	return metas, nil
}

// stat fetches remote metadata for one entry, updating the local metadata
// cache as a side effect.
func (c *Cache) stat(name string) (domain.Stat, error) {
	stat, ok, err := c.coord.Exists(c.entryPath(name))
	if err != nil {
		return domain.Stat{}, fmt.Errorf("stat %q (%v): %w",
			name, err, domain.ErrConnectionLoss)
	}
	if !ok {
		c.meta.Remove(name)
		return domain.Stat{}, fmt.Errorf("stat %q: %w", name, domain.ErrNoNode)
	}
	c.meta.Add(name, stat)
	return stat, nil
}

// get fetches one entry's payload, updating the local metadata cache as a
// side effect.
func (c *Cache) get(name string) ([]byte, error) {
	value, stat, err := c.coord.Get(c.entryPath(name))
	if err != nil {
		if errors.Is(err, domain.ErrNoNode) {
			c.meta.Remove(name)
			return nil, fmt.Errorf("get %q: %w", name, domain.ErrNoNode)
		}
		return nil, fmt.Errorf("get %q (%v): %w",
			name, err, domain.ErrConnectionLoss)
	}
	c.meta.Add(name, stat)
	return value, nil
}

// findUpdated selects the names modified strictly after the cursor and
// advances the cursor to the most recent modification seen.
func (c *Cache) findUpdated(metas []entryMeta) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	maxSeen := c.latest
	for _, em := range metas {
		if !em.stat.LastModified.After(c.latest) {
			continue
		}
		names = append(names, em.name)
		if em.stat.LastModified.After(maxSeen) {
			maxSeen = em.stat.LastModified
		}
	}
	c.latest = maxSeen
	return names
}

// handleEntries fetches the given entries and dispatches the survivors to
// the handler as one ordered batch. Entries deleted concurrently and
// entries lost to a connection blip are dropped individually; the batch
// carries whatever was fetched successfully.
func (c *Cache) handleEntries(names []string) int {
	batch := make([][]byte, 0, len(names))
	for _, name := range names {
		value, err := c.get(name)
		if err != nil {
			c.logger.Debug("skipping cache entry", "name", name, "err", err)
			continue
		}
		batch = append(batch, value)
	}
	if len(batch) > 0 {
		c.handler(batch)
	}
	c.metrics.CacheEntriesHandled.Add(float64(len(batch)))
	return len(batch)
}

// Expire deletes entries whose age exceeds olderThan and drops their local
// metadata records regardless of the deletion outcome. An entry deleted by
// someone else first is fine; any other failure aborts the sweep.
func (c *Cache) Expire(olderThan time.Duration) error {
	if !c.conn.IsConnected() {
		return fmt.Errorf("expire %q: %w", c.path, domain.ErrConnectionLoss)
	}
	now := c.clk.Now()
	metas, err := c.listMetadata()
	if err != nil {
		return err
	}
	for _, em := range metas {
		if now.Sub(em.stat.LastModified) <= olderThan {
			continue
		}
		err := c.coord.Delete(c.entryPath(em.name))
		c.meta.Remove(em.name)
		if err != nil && !errors.Is(err, domain.ErrNoNode) {
			return fmt.Errorf("expiring %q (%v): %w",
				em.name, err, domain.ErrConnectionLoss)
		}
		c.metrics.CacheEntriesExpired.Inc()
		c.logger.Debug("expired cache entry",
			"name", em.name,
			"age", now.Sub(em.stat.LastModified),
		)
	}
	return nil
}
