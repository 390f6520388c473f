package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/baalimago/chatmux/internal/tools"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"golang.org/x/sync/errgroup"
)

// sharedKey holds the integrations registered in the static registry. It
// can't collide with user ids since those are used verbatim, and the empty
// id is the anonymous user.
const sharedKey = "\x00shared"

// Manager connects integrations per user and registers their tools in the
// user's session registry.
type Manager struct {
	sessions *tools.Sessions

	mu    sync.Mutex
	conns map[string]map[string]*Integration
}

func NewManager(sessions *tools.Sessions) *Manager {
	return &Manager{
		sessions: sessions,
		conns:    make(map[string]map[string]*Integration),
	}
}

// Connect srv for userID and return the names of the registered tools.
// Connecting a server name again replaces its previous connection and tools.
func (m *Manager) Connect(ctx context.Context, userID string, srv Server) ([]string, error) {
	integ, err := Connect(ctx, srv)
	if err != nil {
		return nil, err
	}
	return m.add(m.sessions.UserRegistry(userID), userID, integ), nil
}

// ConnectAll connects the servers concurrently. Failing servers are logged
// and skipped, the error is only non-nil if all of them failed.
func (m *Manager) ConnectAll(ctx context.Context, userID string, servers []Server) ([]string, error) {
	return m.connectAll(ctx, m.sessions.UserRegistry(userID), userID, servers)
}

// ConnectShared connects servers whose tools are offered to every user,
// next to the static tools.
func (m *Manager) ConnectShared(ctx context.Context, servers []Server) ([]string, error) {
	return m.connectAll(ctx, m.sessions.Static(), sharedKey, servers)
}

func (m *Manager) connectAll(ctx context.Context, reg *tools.Registry, key string, servers []Server) ([]string, error) {
	integs := make([]*Integration, len(servers))
	errs := make([]error, len(servers))
	g, gCtx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		g.Go(func() error {
			integ, err := Connect(gCtx, srv)
			if err != nil {
				ancli.Warnf("failed to connect mcp server '%v': %v\n", srv.Name, err)
				errs[i] = err
				return nil
			}
			integs[i] = integ
			return nil
		})
	}
	// Goroutines never return errors, only ctx may fail
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var names []string
	var lastErr error
	for i, integ := range integs {
		if integ == nil {
			lastErr = errs[i]
			continue
		}
		names = append(names, m.add(reg, key, integ)...)
	}
	if len(servers) > 0 && len(names) == 0 && lastErr != nil {
		return nil, fmt.Errorf("failed to connect any mcp server: %w", lastErr)
	}
	return names, nil
}

func (m *Manager) add(reg *tools.Registry, key string, integ *Integration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	userConns, ok := m.conns[key]
	if !ok {
		userConns = make(map[string]*Integration)
		m.conns[key] = userConns
	}
	if prev, exists := userConns[integ.Name]; exists {
		for _, t := range prev.Tools {
			reg.Remove(t.Specification().Name)
		}
		if err := prev.Close(); err != nil {
			ancli.Warnf("failed to close mcp server '%v': %v\n", prev.Name, err)
		}
	}
	userConns[integ.Name] = integ

	names := make([]string, 0, len(integ.Tools))
	for _, t := range integ.Tools {
		if _, exists := reg.Get(t.Specification().Name); exists {
			ancli.Warnf("tool '%v' of mcp server '%v' replaces a tool of the same name\n", t.Specification().Name, integ.Name)
		}
		reg.Register(t)
		names = append(names, t.Specification().Name)
	}
	if key == sharedKey {
		ancli.Okf("registered %v shared tools of mcp server '%v'\n", len(names), integ.Name)
	} else {
		ancli.Okf("registered %v tools of mcp server '%v' for user '%v'\n", len(names), integ.Name, key)
	}
	return names
}

// Disconnect closes all integrations of userID and drops its dynamic tools.
func (m *Manager) Disconnect(userID string) {
	m.mu.Lock()
	userConns := m.conns[userID]
	delete(m.conns, userID)
	m.mu.Unlock()
	for _, integ := range userConns {
		if err := integ.Close(); err != nil {
			ancli.Warnf("failed to close mcp server '%v': %v\n", integ.Name, err)
		}
	}
	m.sessions.Drop(userID)
}

// Close all integrations, shared ones included, and forget every user
// session.
func (m *Manager) Close() {
	m.mu.Lock()
	users := make([]string, 0, len(m.conns))
	for u := range m.conns {
		if u != sharedKey {
			users = append(users, u)
		}
	}
	shared := m.conns[sharedKey]
	delete(m.conns, sharedKey)
	m.mu.Unlock()
	for _, u := range users {
		m.Disconnect(u)
	}
	// Users whose servers all failed to connect still hold an empty registry
	for u := range m.sessions.Users() {
		m.sessions.Drop(u)
	}
	for _, integ := range shared {
		for _, t := range integ.Tools {
			m.sessions.Static().Remove(t.Specification().Name)
		}
		if err := integ.Close(); err != nil {
			ancli.Warnf("failed to close mcp server '%v': %v\n", integ.Name, err)
		}
	}
}
