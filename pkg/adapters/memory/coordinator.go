// Package memory provides an in-memory Coordinator used by tests and local
// development. Besides the full node/party/lock behavior it exposes hooks
// to inject session-state notifications and failures, which is how the
// connection-manager and cache tests simulate flaky networks.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
)

type node struct {
	value   []byte
	version int64
	mtime   time.Time
}

// Coordinator implements ports.Coordinator against process-local state.
type Coordinator struct {
	mu        sync.Mutex
	nodes     map[string]*node
	parties   map[string]map[string]struct{}
	lockOwner map[string]string // lock path -> holder id
	listeners []ports.SessionListener
	started   bool
	failure   error
	clock     clock.Clock
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithClock injects the clock used to stamp node metadata.
func WithClock(c clock.Clock) Option {
	return func(m *Coordinator) {
		m.clock = c
	}
}

// New creates an empty in-memory coordinator.
func New(opts ...Option) *Coordinator {
	m := &Coordinator{
		nodes:     make(map[string]*node),
		parties:   make(map[string]map[string]struct{}),
		lockOwner: make(map[string]string),
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start marks the session live and delivers a Connected notification.
// An injected failure makes startup fail, which callers treat as fatal.
func (m *Coordinator) Start(timeout time.Duration) error {
	m.mu.Lock()
	if err := m.checkUp(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.started = true
	m.mu.Unlock()
	m.FireSession(domain.SessionConnected)
	return nil
}

// Close drops the session and reclaims ephemeral state.
func (m *Coordinator) Close() error {
	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
	m.ReclaimEphemeral()
	return nil
}

// OnSessionChange registers a session listener.
func (m *Coordinator) OnSessionChange(l ports.SessionListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// SessionID implements ports.Coordinator.
func (m *Coordinator) SessionID() string { return "memory-session" }

// FireSession synchronously delivers a session-state notification to every
// registered listener, emulating the client's delivery goroutine.
func (m *Coordinator) FireSession(state domain.SessionState) {
	m.mu.Lock()
	ls := make([]ports.SessionListener, len(m.listeners))
	copy(ls, m.listeners)
	m.mu.Unlock()
	for _, l := range ls {
		l(state)
	}
}

// SetFailure makes every subsequent remote operation fail with err until
// cleared with SetFailure(nil).
func (m *Coordinator) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// ReclaimEphemeral drops all party memberships and lock ownership, the way
// the service does when a session expires.
func (m *Coordinator) ReclaimEphemeral() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parties = make(map[string]map[string]struct{})
	m.lockOwner = make(map[string]string)
}

func (m *Coordinator) checkUp() error {
	if m.failure != nil {
		return m.failure
	}
	return nil
}

// EnsurePath implements ports.Coordinator.
func (m *Coordinator) EnsurePath(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp(); err != nil {
		return err
	}
	m.ensureLocked(path)
	return nil
}

func (m *Coordinator) ensureLocked(path string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur += "/" + p
		if _, ok := m.nodes[cur]; !ok {
			m.nodes[cur] = &node{mtime: m.clock.Now()}
		}
	}
}

// Create implements ports.Coordinator.
func (m *Coordinator) Create(path string, value []byte, makePath bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp(); err != nil {
		return err
	}
	if _, ok := m.nodes[path]; ok {
		return domain.ErrNodeExists
	}
	if makePath {
		if parent := parentPath(path); parent != "" {
			m.ensureLocked(parent)
		}
	}
	m.nodes[path] = &node{value: value, mtime: m.clock.Now()}
	return nil
}

// Set implements ports.Coordinator.
func (m *Coordinator) Set(path string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp(); err != nil {
		return err
	}
	n, ok := m.nodes[path]
	if !ok {
		return domain.ErrNoNode
	}
	n.value = value
	n.version++
	n.mtime = m.clock.Now()
	return nil
}

// Get implements ports.Coordinator.
func (m *Coordinator) Get(path string) ([]byte, domain.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp(); err != nil {
		return nil, domain.Stat{}, err
	}
	n, ok := m.nodes[path]
	if !ok {
		return nil, domain.Stat{}, domain.ErrNoNode
	}
	value := make([]byte, len(n.value))
	copy(value, n.value)
	return value, domain.Stat{Version: n.version, LastModified: n.mtime}, nil
}

// Exists implements ports.Coordinator.
func (m *Coordinator) Exists(path string) (domain.Stat, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp(); err != nil {
		return domain.Stat{}, false, err
	}
	n, ok := m.nodes[path]
	if !ok {
		return domain.Stat{}, false, nil
	}
	return domain.Stat{Version: n.version, LastModified: n.mtime}, true, nil
}

// Children implements ports.Coordinator.
func (m *Coordinator) Children(path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp(); err != nil {
		return nil, err
	}
	if _, ok := m.nodes[path]; !ok {
		return nil, domain.ErrNoNode
	}
	prefix := strings.TrimRight(path, "/") + "/"
	var names []string
	for p := range m.nodes {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete implements ports.Coordinator.
func (m *Coordinator) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp(); err != nil {
		return err
	}
	if _, ok := m.nodes[path]; !ok {
		return domain.ErrNoNode
	}
	delete(m.nodes, path)
	return nil
}

// NewLock implements ports.Coordinator.
func (m *Coordinator) NewLock(path, id string) ports.Lock {
	return &memLock{coord: m, path: path, id: id}
}

// NewParty implements ports.Coordinator.
func (m *Coordinator) NewParty(path, id string) (ports.GroupParty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp(); err != nil {
		return nil, err
	}
	if _, ok := m.parties[path]; !ok {
		m.parties[path] = make(map[string]struct{})
	}
	return &memParty{coord: m, path: path, id: id}, nil
}

func parentPath(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return ""
	}
	return path[:i]
}

type memLock struct {
	coord    *Coordinator
	path     string
	id       string
	mu       sync.Mutex
	acquired bool
}

func (l *memLock) tryAcquire() (bool, error) {
	l.coord.mu.Lock()
	defer l.coord.mu.Unlock()
	if err := l.coord.checkUp(); err != nil {
		return false, err
	}
	owner, held := l.coord.lockOwner[l.path]
	if !held || owner == l.id {
		l.coord.lockOwner[l.path] = l.id
		return true, nil
	}
	return false, nil
}

func (l *memLock) Acquire(timeout time.Duration) (bool, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		ok, err := l.tryAcquire()
		if err != nil {
			return false, err
		}
		if ok {
			l.mu.Lock()
			l.acquired = true
			l.mu.Unlock()
			return true, nil
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (l *memLock) Release() error {
	l.mu.Lock()
	l.acquired = false
	l.mu.Unlock()

	l.coord.mu.Lock()
	defer l.coord.mu.Unlock()
	if err := l.coord.checkUp(); err != nil {
		return err
	}
	if owner, held := l.coord.lockOwner[l.path]; !held || owner != l.id {
		return domain.ErrNoNode
	}
	delete(l.coord.lockOwner, l.path)
	return nil
}

func (l *memLock) IsAcquired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired
}

func (l *memLock) Abandon() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = false
}

type memParty struct {
	coord *Coordinator
	path  string
	id    string
}

func (p *memParty) Join() error {
	p.coord.mu.Lock()
	defer p.coord.mu.Unlock()
	if err := p.coord.checkUp(); err != nil {
		return err
	}
	members, ok := p.coord.parties[p.path]
	if !ok {
		members = make(map[string]struct{})
		p.coord.parties[p.path] = members
	}
	members[p.id] = struct{}{}
	return nil
}

func (p *memParty) Members() ([]string, error) {
	p.coord.mu.Lock()
	defer p.coord.mu.Unlock()
	if err := p.coord.checkUp(); err != nil {
		return nil, err
	}
	var ids []string
	for id := range p.coord.parties[p.path] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
