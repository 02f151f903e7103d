package lattice

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/aretw0/lattice/internal/event"
	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/observability"
	"github.com/aretw0/lattice/pkg/ports"
)

const (
	// DefaultStartupTimeout bounds the initial session establishment.
	DefaultStartupTimeout = 1 * time.Second

	// stateQueueSize is deliberately generous: the listener must never
	// block the coordinator's delivery goroutine. If the queue is somehow
	// full anyway, the notification is dropped after the epoch bump, which
	// still records that a disruption happened.
	stateQueueSize = 64

	// noDeadlineSlice bounds each wait when WaitConnected has no deadline,
	// so a pending Close is observed instead of blocking forever.
	noDeadlineSlice = 10 * time.Second

	// minWaitSlice keeps the deadline-driven wait loop from busy spinning
	// as the remaining budget shrinks.
	minWaitSlice = 5 * time.Millisecond
)

// startupSentinel precedes any real session state in the drain loop, so the
// first notification always reads as a transition.
const startupSentinel = domain.SessionState(-1)

// Conn owns the handle to the coordination service and tracks the session
// across disruptions. It is the single owner of the connected signal, the
// lock signal and the connection epoch; every other component reads those
// through Conn and never mutates them.
type Conn struct {
	coord    ports.Coordinator
	prefix   string
	memberID string
	timeout  time.Duration

	onConnect    func()
	onDisconnect func()

	logger  *slog.Logger
	clk     clock.Clock
	metrics *observability.Metrics
	fatal   func()

	connected *event.Flag
	lockHeld  *event.Flag
	epoch     atomic.Uint64
	states    chan domain.SessionState

	partiesMu sync.Mutex
	parties   map[string]*Party

	lockMu    sync.Mutex
	remote    ports.Lock
	lockEpoch uint64

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Conn.
type Option func(*Conn)

// WithStartupTimeout bounds the initial session establishment.
func WithStartupTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.timeout = d
	}
}

// WithOnConnect registers a callback invoked on every transition into the
// connected state. It runs on the transition goroutine and must not block.
func WithOnConnect(f func()) Option {
	return func(c *Conn) {
		c.onConnect = f
	}
}

// WithOnDisconnect registers a callback invoked on every transition out of
// the connected state. Same contract as WithOnConnect.
func WithOnDisconnect(f func()) Option {
	return func(c *Conn) {
		c.onDisconnect = f
	}
}

// WithLogger configures a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

// WithClock injects the clock used for wait deadlines.
func WithClock(clk clock.Clock) Option {
	return func(c *Conn) {
		c.clk = clk
	}
}

// WithMetrics wires prometheus collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Conn) {
		c.metrics = m
	}
}

// WithFatalFunc overrides what happens when the coordinator cannot start
// within the startup timeout. The default exits the process: without an
// initial session no coordination is possible.
func WithFatalFunc(f func()) Option {
	return func(c *Conn) {
		c.fatal = f
	}
}

// New creates a connection manager for the namespace
// /ISD<isd>-AD<as>/<svcType>, identifying this process as memberID.
// Call Start before anything else.
func New(coord ports.Coordinator, isd, as int, svcType, memberID string, opts ...Option) *Conn {
	c := &Conn{
		coord:     coord,
		prefix:    fmt.Sprintf("/ISD%d-AD%d/%s", isd, as, svcType),
		memberID:  memberID,
		timeout:   DefaultStartupTimeout,
		logger:    logging.NewNop(),
		clk:       clock.New(),
		metrics:   observability.NewNop(),
		connected: event.New(),
		lockHeld:  event.New(),
		states:    make(chan domain.SessionState, stateQueueSize),
		parties:   make(map[string]*Party),
		done:      make(chan struct{}),
	}
	c.fatal = func() {
		os.Exit(1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start registers the session listener, starts the coordinator and spawns
// the transition goroutine. A startup timeout is unconditionally fatal.
func (c *Conn) Start() error {
	c.coord.OnSessionChange(c.sessionEvent)
	if err := c.coord.Start(c.timeout); err != nil {
		c.logger.Error("coordination client failed to start",
			"timeout", c.timeout,
			"err", err,
		)
		c.fatal()
		return err
	}
	go c.drainStates()
	return nil
}

// Close stops the transition goroutine and tears the session down.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.coord.Close()
}

// sessionEvent runs on the coordinator's delivery goroutine. It must return
// immediately: bump the epoch, hand the state to the drain goroutine, done.
func (c *Conn) sessionEvent(state domain.SessionState) {
	c.epoch.Add(1)
	c.metrics.EpochBumps.Inc()
	select {
	case c.states <- state:
	default:
		c.logger.Warn("session event queue full, dropping notification",
			"state", state,
		)
	}
}

// drainStates serially applies session-state transitions. Running every
// side effect on this one goroutine keeps transitions in delivery order
// and rules out races between reconnect and disconnect handling.
func (c *Conn) drainStates() {
	prev := startupSentinel
	for {
		select {
		case <-c.done:
			return
		case state := <-c.states:
			if state == prev {
				c.logger.Debug("session state unchanged, ignoring",
					"state", state,
				)
				continue
			}
			old := prev
			prev = state
			c.metrics.SessionTransitions.WithLabelValues(state.String()).Inc()
			c.logger.Debug("session state transition",
				"old", old,
				"new", state,
			)
			switch state {
			case domain.SessionConnected:
				c.stateConnected()
			default:
				c.stateDown(state)
			}
		}
	}
}

func (c *Conn) stateConnected() {
	if err := c.EnsurePathAbs(c.prefix); err != nil {
		// A later connected notification will retry.
		c.logger.Info("namespace setup failed after reconnect, skipping",
			"prefix", c.prefix,
			"err", err,
		)
		return
	}
	c.logger.Info("connection to coordination service up",
		"session", c.coord.SessionID(),
	)

	c.partiesMu.Lock()
	parties := make([]*Party, 0, len(c.parties))
	for _, p := range c.parties {
		parties = append(parties, p)
	}
	c.partiesMu.Unlock()
	for _, p := range parties {
		if err := p.Autojoin(); err != nil {
			c.logger.Warn("party rejoin failed, next reconnect retries",
				"path", p.path,
				"err", err,
			)
		}
	}

	c.connected.Set()
	if c.onConnect != nil {
		c.onConnect()
	}
}

// stateDown handles suspended and lost identically; the distinction only
// matters for observability.
func (c *Conn) stateDown(state domain.SessionState) {
	c.logger.Info("connection to coordination service down",
		"state", state,
	)
	c.connected.Clear()
	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

// IsConnected reports a snapshot of the connected signal.
func (c *Conn) IsConnected() bool {
	return c.connected.IsSet()
}

// WaitConnected blocks until the session is connected. A timeout of 0
// means no deadline. The wait polls in bounded slices (a tenth of the
// remaining budget when a deadline is given) so a pending Close is
// observed promptly. Returns a connection-loss error when the deadline
// elapses first.
func (c *Conn) WaitConnected(timeout time.Duration) error {
	if c.IsConnected() {
		return nil
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = c.clk.Now().Add(timeout)
	}
	for {
		slice := noDeadlineSlice
		if timeout > 0 {
			remaining := deadline.Sub(c.clk.Now())
			if remaining <= 0 {
				return fmt.Errorf("no connection after %s: %w",
					timeout, domain.ErrConnectionLoss)
			}
			slice = remaining / 10
			if slice < minWaitSlice {
				slice = minWaitSlice
				if slice > remaining {
					slice = remaining
				}
			}
		}
		timer := c.clk.Timer(slice)
		select {
		case <-c.connected.Chan():
			timer.Stop()
			return nil
		case <-c.done:
			timer.Stop()
			return fmt.Errorf("connection manager closed: %w",
				domain.ErrConnectionLoss)
		case <-timer.C:
		}
	}
}

// EnsurePath creates path below the namespace root if missing.
func (c *Conn) EnsurePath(path string) error {
	return c.EnsurePathAbs(c.prefix + "/" + strings.TrimLeft(path, "/"))
}

// EnsurePathAbs creates an absolute path if missing. Coordinator failures
// surface as connection loss.
func (c *Conn) EnsurePathAbs(path string) error {
	if err := c.coord.EnsurePath(path); err != nil {
		return fmt.Errorf("ensure path %q (%v): %w",
			path, err, domain.ErrConnectionLoss)
	}
	return nil
}

// Epoch returns the connection epoch: a counter incremented once per
// session notification, used to detect whether the session round-tripped
// through a disruption since the value was captured.
func (c *Conn) Epoch() uint64 {
	return c.epoch.Load()
}

// Prefix returns the namespace root of this connection.
func (c *Conn) Prefix() string {
	return c.prefix
}

// MemberID returns the identity this process registers under.
func (c *Conn) MemberID() string {
	return c.memberID
}

// Coordinator exposes the underlying coordination client for components
// built on top of the connection manager, such as the shared cache.
func (c *Conn) Coordinator() ports.Coordinator {
	return c.coord
}
