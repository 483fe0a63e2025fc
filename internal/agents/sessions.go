package agents

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/agentalign/internal/config"
)

// MCP transport types.
const (
	MCPTransportStdio = "stdio"
	MCPTransportHTTP  = "http"
)

// MCPServerConfig describes one MCP server connection. Stdio servers are
// spawned as child processes; http servers are dialed at URL.
type MCPServerConfig struct {
	Name    string
	Type    string
	Command string
	Args    []string
	Env     []string // KEY=VALUE pairs appended to the child environment
	URL     string
}

// Sessions holds connected MCP sessions keyed by server name.
type Sessions struct {
	sessions map[string]*mcp.ClientSession
	log      zerolog.Logger
}

// ConnectSessions dials every configured MCP server. Connect performs the
// protocol handshake, so a returned session is ready for tool calls. On any
// failure the sessions opened so far are closed.
func ConnectSessions(ctx context.Context, servers []MCPServerConfig, logger zerolog.Logger) (*Sessions, error) {
	client := mcp.NewClient(
		&mcp.Implementation{
			Name:    "agentalign",
			Version: config.Version,
		},
		nil,
	)

	s := &Sessions{
		sessions: make(map[string]*mcp.ClientSession, len(servers)),
		log:      logger,
	}

	for _, server := range servers {
		logger.Info().
			Str("name", server.Name).
			Str("type", server.Type).
			Msg("Connecting to MCP server")

		session, err := connectSession(ctx, client, server)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect MCP server %s: %w", server.Name, err)
		}
		s.sessions[server.Name] = session

		logger.Info().Str("name", server.Name).Msg("MCP server connected")
	}

	return s, nil
}

func connectSession(ctx context.Context, client *mcp.Client, server MCPServerConfig) (*mcp.ClientSession, error) {
	switch server.Type {
	case MCPTransportStdio:
		cmd := exec.CommandContext(ctx, server.Command, server.Args...) // #nosec G204 command comes from validated config
		if len(server.Env) > 0 {
			cmd.Env = append(os.Environ(), server.Env...)
		}
		return client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)

	case MCPTransportHTTP:
		return client.Connect(ctx, &mcp.SSEClientTransport{Endpoint: server.URL}, nil)

	default:
		return nil, fmt.Errorf("unknown MCP server type %q", server.Type)
	}
}

// ToolCallers adapts the session map for roster building.
func (s *Sessions) ToolCallers() map[string]ToolCaller {
	callers := make(map[string]ToolCaller, len(s.sessions))
	for name, session := range s.sessions {
		callers[name] = session
	}
	return callers
}

// Close closes every session. Stdio child processes exit when their
// transport closes.
func (s *Sessions) Close() {
	for name, session := range s.sessions {
		if err := session.Close(); err != nil {
			s.log.Warn().Err(err).Str("server", name).Msg("Failed to close MCP session")
		}
	}
}
