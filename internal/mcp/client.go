// Package mcp connects to remote tool servers over the Model Context
// Protocol and proxies their tools into the local registry.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	sdkclient "github.com/mark3labs/mcp-go/client"
	sdkmcp "github.com/mark3labs/mcp-go/mcp"
)

// ServerConfig describes one remote tool server. Name comes from the
// map key in the config file, not a JSON field.
type ServerConfig struct {
	Name      string
	Transport string   `json:"transport"` // "stdio" | "sse"
	Command   string   `json:"command,omitempty"`
	Args      []string `json:"args,omitempty"`
	URL       string   `json:"url,omitempty"`
	Env       []string `json:"env,omitempty"`
}

type configFile struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// LoadConfig reads a mcp.json-style server map from path.
func LoadConfig(path string) (map[string]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mcp: read config %q: %w", path, err)
	}
	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("mcp: parse config %q: %w", path, err)
	}
	if file.MCPServers == nil {
		return map[string]ServerConfig{}, nil
	}
	for key, cfg := range file.MCPServers {
		cfg.Name = key
		file.MCPServers[key] = cfg
	}
	return file.MCPServers, nil
}

// RemoteToolInfo is the metadata of one tool exposed by a server.
type RemoteToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Client wraps one server session. Safe for concurrent use; after
// Disconnect every call returns a "no session" error until reconnection.
type Client struct {
	mu      sync.RWMutex
	cfg     ServerConfig
	session sdkclient.MCPClient
}

// NewClient creates an unconnected client for the given server.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// ServerName returns the configured server id.
func (c *Client) ServerName() string { return c.cfg.Name }

// Connect opens the transport and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	var session sdkclient.MCPClient

	switch c.cfg.Transport {
	case "stdio":
		cli, err := sdkclient.NewStdioMCPClient(c.cfg.Command, c.cfg.Env, c.cfg.Args...)
		if err != nil {
			return fmt.Errorf("mcp: start stdio server %q: %w", c.cfg.Name, err)
		}
		session = cli

	case "sse":
		cli, err := sdkclient.NewSSEMCPClient(c.cfg.URL)
		if err != nil {
			return fmt.Errorf("mcp: create SSE client %q: %w", c.cfg.Name, err)
		}
		if err := cli.Start(ctx); err != nil {
			return fmt.Errorf("mcp: start SSE client %q: %w", c.cfg.Name, err)
		}
		session = cli

	default:
		return fmt.Errorf("mcp: unknown transport %q for server %q", c.cfg.Transport, c.cfg.Name)
	}

	_, err := session.Initialize(ctx, sdkmcp.InitializeRequest{
		Params: sdkmcp.InitializeParams{
			ProtocolVersion: sdkmcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: sdkmcp.Implementation{
				Name:    "strand",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		session.Close()
		return fmt.Errorf("mcp: initialize server %q: %w", c.cfg.Name, err)
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return nil
}

// ListTools returns the server's tool metadata.
func (c *Client) ListTools(ctx context.Context) ([]RemoteToolInfo, error) {
	session := c.current()
	if session == nil {
		return nil, fmt.Errorf("mcp: no session for server %q", c.cfg.Name)
	}

	result, err := session.ListTools(ctx, sdkmcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools on %q: %w", c.cfg.Name, err)
	}

	tools := make([]RemoteToolInfo, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = json.RawMessage("{}")
		}
		tools = append(tools, RemoteToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return tools, nil
}

// CallTool invokes a tool on the server and returns the joined text
// content. Server-reported tool errors come back as non-nil errors so
// the adapter can surface them as ToolResult errors.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	session := c.current()
	if session == nil {
		return "", fmt.Errorf("mcp: no session for server %q", c.cfg.Name)
	}

	req := sdkmcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := session.CallTool(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("mcp: cancelled: tool %q on %q: %w", name, c.cfg.Name, ctx.Err())
		}
		return "", fmt.Errorf("mcp: call tool %q on %q: %w", name, c.cfg.Name, err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(sdkmcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		return "", fmt.Errorf("mcp: tool %q returned error: %s", name, text)
	}
	return text, nil
}

// Disconnect closes the session. Idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.Close()
}

func (c *Client) current() sdkclient.MCPClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}
