package lattice

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
)

// Party is an ephemeral membership registration in a named group, used for
// presence and discovery among cooperating processes. The service removes
// the membership when the owning session ends; locally nothing is tracked
// beyond the autojoin flag.
type Party struct {
	remote   ports.GroupParty
	path     string
	autojoin bool
	logger   *slog.Logger
}

func newParty(coord ports.Coordinator, path, id string, autojoin bool, logger *slog.Logger) (*Party, error) {
	remote, err := coord.NewParty(path, id)
	if err != nil {
		return nil, fmt.Errorf("party registration at %q (%v): %w",
			path, err, domain.ErrConnectionLoss)
	}
	return &Party{
		remote:   remote,
		path:     path,
		autojoin: autojoin,
		logger:   logger,
	}, nil
}

// Join adds this member to the group.
func (p *Party) Join() error {
	if err := p.remote.Join(); err != nil {
		return fmt.Errorf("joining party %q (%v): %w",
			p.path, err, domain.ErrConnectionLoss)
	}
	p.logger.Debug("joined party", "path", p.path)
	return nil
}

// Autojoin joins only if the party was set up with the autojoin flag. The
// connection manager calls this on every reconnection.
func (p *Party) Autojoin() error {
	if !p.autojoin {
		return nil
	}
	return p.Join()
}

// List enumerates the member ids currently present in the group.
func (p *Party) List() (map[string]struct{}, error) {
	ids, err := p.remote.Members()
	if err != nil {
		return nil, fmt.Errorf("listing party %q (%v): %w",
			p.path, err, domain.ErrConnectionLoss)
	}
	members := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		members[id] = struct{}{}
	}
	return members, nil
}

// PartySetup registers this process in the party under the given prefix
// (the namespace root when empty) and records it for automatic rejoin on
// reconnection. With autojoin the member joins immediately.
func (c *Conn) PartySetup(prefix string, autojoin bool) (*Party, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("party setup: %w", domain.ErrConnectionLoss)
	}
	if prefix == "" {
		prefix = c.prefix
	}
	path := prefix + "/party"
	if err := c.EnsurePathAbs(path); err != nil {
		return nil, err
	}
	p, err := newParty(c.coord, path, c.memberID, autojoin, c.logger)
	if err != nil {
		return nil, err
	}
	if err := p.Autojoin(); err != nil {
		return nil, err
	}
	c.partiesMu.Lock()
	c.parties[path] = p
	c.partiesMu.Unlock()
	return p, nil
}
