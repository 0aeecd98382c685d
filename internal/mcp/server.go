package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/ops"
)

// protocolVersion is the MCP revision this server speaks.
const protocolVersion = "2024-11-05"

// Server is a line-delimited JSON-RPC 2.0 server over a reader/writer pair
// (stdio in production, pipes in tests). Requests are handled serially; the
// operation surface already serializes state access through file locks, so
// concurrency here would buy nothing.
type Server struct {
	env    *ops.Env
	logger *zap.Logger

	in  io.Reader
	out io.Writer
	wmu sync.Mutex

	// envMu guards env replacement on config reload.
	envMu sync.RWMutex
}

// NewServer builds a server over the given streams.
func NewServer(env *ops.Env, logger *zap.Logger, in io.Reader, out io.Writer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{env: env, logger: logger, in: in, out: out}
}

// SwapEnv replaces the operation environment, used by config live-reload.
func (s *Server) SwapEnv(env *ops.Env) {
	s.envMu.Lock()
	s.env = env
	s.envMu.Unlock()
}

func (s *Server) currentEnv() *ops.Env {
	s.envMu.RLock()
	defer s.envMu.RUnlock()
	return s.env
}

// Serve reads requests until EOF or context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(newErrorResponse(nil, codeParseError, "parse error", err.Error()))
			continue
		}
		if req.JSONRPC != "2.0" || req.Method == "" {
			s.write(newErrorResponse(req.ID, codeInvalidRequest, "invalid request", nil))
			continue
		}

		resp, reply := s.handle(ctx, req)
		if reply && !req.isNotification() {
			s.write(resp)
		}
	}
	return scanner.Err()
}

func (s *Server) write(resp response) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("response marshal failed", zap.Error(err))
		return
	}
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		s.logger.Error("response write failed", zap.Error(err))
	}
}

// handle dispatches one request. The second return is false for notifications
// that produce no reply.
func (s *Server) handle(ctx context.Context, req request) (response, bool) {
	switch req.Method {
	case "initialize":
		return newResponse(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "cleo", "version": ops.Version},
		}), true
	case "notifications/initialized", "notifications/cancelled":
		return response{}, false
	case "ping":
		return newResponse(req.ID, map[string]any{}), true
	case "tools/list":
		return newResponse(req.ID, map[string]any{"tools": toolDescriptors()}), true
	case "tools/call":
		return s.handleToolCall(ctx, req), true
	default:
		return newErrorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil), true
	}
}

// callParams is the tools/call parameter shape.
type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleToolCall(ctx context.Context, req request) response {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newErrorResponse(req.ID, codeInvalidParams, "invalid tools/call params", err.Error())
	}

	var mutate bool
	switch params.Name {
	case "cleo_query":
		mutate = false
	case "cleo_mutate":
		mutate = true
	default:
		return newErrorResponse(req.ID, codeInvalidParams,
			fmt.Sprintf("unknown tool %q", params.Name), []string{"cleo_query", "cleo_mutate"})
	}

	op, _ := params.Arguments["operation"].(string)
	if op == "" {
		return newErrorResponse(req.ID, codeInvalidParams, "missing required argument \"operation\"", nil)
	}
	if !mutate && !readOnlyOps[op] {
		return newErrorResponse(req.ID, codeInvalidParams,
			fmt.Sprintf("operation %q mutates state; call it through cleo_mutate", op), nil)
	}

	opParams, _ := params.Arguments["params"].(map[string]any)
	actor, _ := params.Arguments["actor"].(string)
	if actor == "" {
		actor = "agent"
	}
	dryRun, _ := params.Arguments["dryRun"].(bool)

	envl := ops.Dispatch(ctx, s.currentEnv(), ops.Request{
		Op:     op,
		Actor:  actor,
		DryRun: dryRun,
		Params: opParams,
	})

	text, err := json.Marshal(envl)
	if err != nil {
		return newErrorResponse(req.ID, codeInternalError, "envelope marshal failed", err.Error())
	}
	return newResponse(req.ID, map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(text)}},
		"isError": !envl.Success,
	})
}

// readOnlyOps is the subset of the operation surface cleo_query may reach.
var readOnlyOps = map[string]bool{
	"show": true, "list": true, "find": true,
	"analyze": true, "deps": true, "waves": true, "next": true,
	"blockers": true, "critical-path": true, "staleness": true,
	"session-status": true, "focus-show": true, "focus-history": true,
	"orchestrator-ready": true, "orchestrator-next": true,
	"research-gaps": true, "compliance-report": true,
	"metrics-summary": true, "roadmap": true, "dash": true,
	"stats": true, "version": true, "validate": true,
}

// toolDescriptors returns the MCP tool listing. The operation name enums are
// derived from the live registry so the listing never drifts from the
// surface.
func toolDescriptors() []map[string]any {
	var queries, mutations []string
	for _, name := range ops.Names() {
		if readOnlyOps[name] {
			queries = append(queries, name)
		} else {
			mutations = append(mutations, name)
		}
	}

	schema := func(opNames []string) map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type":        "string",
					"description": "operation name",
					"enum":        opNames,
				},
				"params": map[string]any{
					"type":        "object",
					"description": "operation parameters",
				},
				"actor": map[string]any{
					"type":        "string",
					"description": "actor recorded in the audit log",
				},
				"dryRun": map[string]any{
					"type":        "boolean",
					"description": "run without persisting",
				},
			},
			"required": []string{"operation"},
		}
	}

	return []map[string]any{
		{
			"name":        "cleo_query",
			"description": "Read task, session, graph, and metrics state. Never modifies anything.",
			"inputSchema": schema(queries),
		},
		{
			"name":        "cleo_mutate",
			"description": "Run a state-changing CLEO operation: tasks, sessions, focus, orchestration, admin.",
			"inputSchema": schema(append(append([]string{}, queries...), mutations...)),
		},
	}
}
