package agents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/llm"
)

// Agent types a roster can declare.
const (
	AgentTypeLLM    = "llm"
	AgentTypeMCP    = "mcp"
	AgentTypeStatic = "static"
)

// RosterEntry declares one agent in a roster file. Which knobs apply depends
// on the type: model/max_tokens/temperature for llm, server/tool for mcp,
// decision/confidence/rationale/evidence for static.
type RosterEntry struct {
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type"`
	RoleType    string  `yaml:"role_type"`
	Instruction string  `yaml:"instruction"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`

	// llm
	Model string `yaml:"model,omitempty"`

	// mcp
	Server string `yaml:"server,omitempty"`
	Tool   string `yaml:"tool,omitempty"`

	// static
	Decision   interface{} `yaml:"decision,omitempty"`
	Confidence float64     `yaml:"confidence,omitempty"`
	Rationale  string      `yaml:"rationale,omitempty"`
	Evidence   []string    `yaml:"evidence,omitempty"`
}

// Roster is a declarative agent panel loaded from YAML.
type Roster struct {
	Agents []RosterEntry `yaml:"agents"`
}

// LoadRoster reads and parses a roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	return ParseRoster(data)
}

// ParseRoster parses roster YAML. Agent names must be unique: downstream
// alignment analysis keys per-agent statistics by name.
func ParseRoster(data []byte) (*Roster, error) {
	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if len(roster.Agents) == 0 {
		return nil, fmt.Errorf("roster declares no agents")
	}

	seen := make(map[string]bool, len(roster.Agents))
	for i, entry := range roster.Agents {
		if entry.Name == "" {
			return nil, fmt.Errorf("roster entry %d: name is required", i)
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("duplicate agent name %q in roster", entry.Name)
		}
		seen[entry.Name] = true
		switch entry.Type {
		case AgentTypeLLM, AgentTypeMCP, AgentTypeStatic:
		default:
			return nil, fmt.Errorf("agent %s: unknown agent type %q", entry.Name, entry.Type)
		}
	}
	return &roster, nil
}

// BuildDeps carries the external dependencies roster agents are built from.
// LLM is the base client configuration; per-entry knobs overlay it. Sessions
// maps MCP server names to connected sessions.
type BuildDeps struct {
	LLM      llm.ClientConfig
	Sessions map[string]ToolCaller
}

// Build constructs the declared agents in roster order.
func (r *Roster) Build(deps BuildDeps) ([]evaluation.Agent, error) {
	built := make([]evaluation.Agent, 0, len(r.Agents))
	for _, entry := range r.Agents {
		agent, err := entry.build(deps)
		if err != nil {
			return nil, err
		}
		built = append(built, agent)
	}
	return built, nil
}

func (e RosterEntry) build(deps BuildDeps) (evaluation.Agent, error) {
	role := evaluation.AgentRole{
		Name:        e.Name,
		RoleType:    e.RoleType,
		Instruction: e.Instruction,
		MaxTokens:   e.MaxTokens,
		Temperature: e.Temperature,
	}

	switch e.Type {
	case AgentTypeLLM:
		cfg := deps.LLM
		if e.Model != "" {
			cfg.Model = e.Model
		}
		if e.Temperature > 0 {
			cfg.Temperature = e.Temperature
		}
		if e.MaxTokens > 0 {
			cfg.MaxTokens = e.MaxTokens
		}
		return NewLLMAgent(role, llm.NewClient(cfg))
	case AgentTypeMCP:
		session, ok := deps.Sessions[e.Server]
		if !ok {
			return nil, fmt.Errorf("agent %s: MCP server %q is not connected", e.Name, e.Server)
		}
		return NewMCPAgent(role, session, e.Tool)
	case AgentTypeStatic:
		return NewStaticAgent(role, e.Decision, e.Confidence, e.Rationale, e.Evidence)
	default:
		return nil, fmt.Errorf("agent %s: unknown agent type %q", e.Name, e.Type)
	}
}
