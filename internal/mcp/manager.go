package mcp

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/strandworks/strand/internal/tool"
)

// Manager owns the server connections and keeps the tool registry in
// sync: connecting a server registers its tools under source
// "remote:<server>", disconnecting revokes exactly those entries.
// Teardown order is session, then proxies, then registry entries.
type Manager struct {
	registry *tool.Registry

	mu      sync.Mutex
	clients map[string]*Client
}

// NewManager creates a manager bound to the given registry.
func NewManager(registry *tool.Registry) *Manager {
	return &Manager{
		registry: registry,
		clients:  make(map[string]*Client),
	}
}

// ConnectAll connects every configured server. Individual failures are
// logged and skipped so one bad server does not block the rest.
func (m *Manager) ConnectAll(ctx context.Context, configs map[string]ServerConfig) {
	for name, cfg := range configs {
		if err := m.Connect(ctx, cfg); err != nil {
			log.Printf("[MCP] Skipping server %q: %v", name, err)
		}
	}
}

// Connect opens a session to one server and registers its tools.
func (m *Manager) Connect(ctx context.Context, cfg ServerConfig) error {
	m.mu.Lock()
	if _, exists := m.clients[cfg.Name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("mcp: server %q already connected", cfg.Name)
	}
	m.mu.Unlock()

	client := NewClient(cfg)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	infos, err := client.ListTools(ctx)
	if err != nil {
		client.Disconnect()
		return err
	}

	source := tool.SourceRemote(cfg.Name)
	for _, info := range infos {
		m.registry.Add(NewRemoteTool(cfg.Name, info, client), source)
	}

	m.mu.Lock()
	m.clients[cfg.Name] = client
	m.mu.Unlock()

	log.Printf("[MCP] Connected server %q (%d tools)", cfg.Name, len(infos))
	return nil
}

// Disconnect closes one server's session and removes its tools.
func (m *Manager) Disconnect(serverName string) error {
	m.mu.Lock()
	client, ok := m.clients[serverName]
	delete(m.clients, serverName)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("mcp: server %q not connected", serverName)
	}

	err := client.Disconnect()
	removed := m.registry.RemoveBySource(tool.SourceRemote(serverName))
	log.Printf("[MCP] Disconnected server %q, revoked %d tools", serverName, removed)
	return err
}

// DisconnectAll tears down every session and revokes every remote tool.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for name, client := range clients {
		if err := client.Disconnect(); err != nil {
			log.Printf("[MCP] Error closing server %q: %v", name, err)
		}
	}
	m.registry.RemoveBySourcePrefix(tool.SourceRemotePrefix)
}

// Servers lists the connected server names.
func (m *Manager) Servers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.clients))
	for name := range m.clients {
		out = append(out, name)
	}
	return out
}
