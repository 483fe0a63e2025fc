package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/schema"
)

// mcpToolCallTimeout caps a single tool call; evaluation tools may run their
// own models and need headroom beyond a typical RPC.
const mcpToolCallTimeout = 60 * time.Second

// ToolCaller is the slice of an MCP client session an agent needs.
// *mcp.ClientSession satisfies it.
type ToolCaller interface {
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
}

// MCPAgent proxies evaluation to a named tool on an MCP server. The task
// travels as JSON arguments; the tool replies with the same decision body
// LLM-backed agents produce.
type MCPAgent struct {
	role    evaluation.AgentRole
	session ToolCaller
	tool    string
	timeout time.Duration
}

// NewMCPAgent creates an agent backed by a tool on an MCP session.
func NewMCPAgent(role evaluation.AgentRole, session ToolCaller, tool string) (*MCPAgent, error) {
	if err := role.Validate(); err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("agent %s: MCP session is required", role.Name)
	}
	if tool == "" {
		return nil, fmt.Errorf("agent %s: tool name is required", role.Name)
	}
	return &MCPAgent{role: role, session: session, tool: tool, timeout: mcpToolCallTimeout}, nil
}

// Role returns the agent's role definition.
func (a *MCPAgent) Role() evaluation.AgentRole { return a.role }

// Evaluate calls the tool with the task as arguments and decodes the reply.
func (a *MCPAgent) Evaluate(ctx context.Context, task *evaluation.Task) (*evaluation.AgentDecision, error) {
	start := time.Now()

	toolCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.session.CallTool(toolCtx, &mcp.CallToolParams{
		Name: a.tool,
		Arguments: map[string]interface{}{
			"task_id":             task.TaskID,
			"task_type":           task.TaskType,
			"decision_schema":     schema.SpecOf(task.Schema),
			"context":             task.Context,
			"evaluation_criteria": task.Criteria,
			"role_type":           a.role.RoleType,
			"instruction":         a.role.Instruction,
		},
	})
	if err != nil {
		return nil, evaluation.TransientFailure(fmt.Errorf("tool call failed: %w", err))
	}
	if result.IsError {
		return nil, evaluation.TransientFailure(fmt.Errorf("tool %s reported an error", a.tool))
	}

	body, err := decodeToolResult(result)
	if err != nil {
		return nil, err
	}

	decision := body.toDecision(a.role)
	decision.ProcessingTimeMS = time.Since(start).Milliseconds()
	return decision, nil
}

// decodeToolResult extracts the decision body from a tool result, preferring
// StructuredContent and falling back to the first text content block.
func decodeToolResult(result *mcp.CallToolResult) (decisionBody, error) {
	var body decisionBody

	if result.StructuredContent != nil {
		if resultMap, ok := result.StructuredContent.(map[string]interface{}); ok {
			body.Decision = resultMap["decision"]
			body.Confidence = resultMap["confidence"]
			if rationale, ok := schema.AsString(resultMap["rationale"]); ok {
				body.Rationale = rationale
			}
			if reasoning, ok := schema.AsString(resultMap["reasoning"]); ok {
				body.Reasoning = reasoning
			}
			body.Evidence = resultMap["evidence"]
			return body, nil
		}
	}

	if len(result.Content) == 0 {
		return body, evaluation.PermanentFailure(fmt.Errorf("empty tool result content"))
	}
	textContent, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return body, evaluation.PermanentFailure(fmt.Errorf("expected TextContent, got %T", result.Content[0]))
	}
	if err := json.Unmarshal([]byte(textContent.Text), &body); err != nil {
		return body, evaluation.TransientFailure(fmt.Errorf("failed to parse tool result: %w", err))
	}
	return body, nil
}
