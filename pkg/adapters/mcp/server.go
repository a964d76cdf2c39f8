// Package mcp exposes the administrative surface of an agent as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/mobility"
	"github.com/aretw0/mobility/internal/logging"
	"github.com/aretw0/mobility/internal/presentation/tui"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
)

// Status summarizes an agent for the get_status tool.
type Status struct {
	Scripts  int `json:"scripts" jsonschema_description:"Number of scripts"`
	Procs    int `json:"procs" jsonschema_description:"Number of procs"`
	Running  int `json:"running" jsonschema_description:"Procs that have not finished"`
	Steps    int `json:"steps" jsonschema_description:"Steps in flight"`
	Requests int `json:"requests" jsonschema_description:"Requests, pending or completed"`
}

// Server wraps an agent and exposes it as an MCP Server.
type Server struct {
	admin     mobility.Admin
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(admin mobility.Admin, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		admin:     admin,
		mcpServer: server.NewMCPServer("mobility-mcp", strings.TrimSpace(mobility.Version)),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: addr, Handler: mux}
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Count the scripts, procs, steps and requests of the agent."),
		mcp.WithOutputSchema[Status](),
	), mcp.NewStructuredToolHandler(s.handleStatus))

	s.mcpServer.AddTool(mcp.NewTool("list_scripts",
		mcp.WithDescription("List every script with its compiled entries."),
	), s.jsonResult(func(ctx context.Context, _ map[string]any) (any, error) {
		return s.admin.Scripts(ctx)
	}))

	s.mcpServer.AddTool(mcp.NewTool("describe_script",
		mcp.WithDescription("Describe one script as a markdown table."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Script id, owner/seq")),
	), s.handleDescribeScript)

	s.mcpServer.AddTool(mcp.NewTool("list_procs",
		mcp.WithDescription("List every proc and its progress."),
	), s.jsonResult(func(ctx context.Context, _ map[string]any) (any, error) {
		return s.admin.Procs(ctx)
	}))

	s.mcpServer.AddTool(mcp.NewTool("get_step",
		mcp.WithDescription("Get one step and its status."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Step id, owner/seq")),
	), s.jsonResult(func(ctx context.Context, args map[string]any) (any, error) {
		id, err := decodeID(args)
		if err != nil {
			return nil, err
		}
		return s.admin.Step(ctx, id)
	}))

	s.mcpServer.AddTool(mcp.NewTool("list_requests",
		mcp.WithDescription("List every agent request and its completion."),
	), s.jsonResult(func(ctx context.Context, _ map[string]any) (any, error) {
		return s.admin.Requests(ctx)
	}))

	s.mcpServer.AddTool(mcp.NewTool("create_script",
		mcp.WithDescription("Compile and store a script of move, label and goto lines."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Script source")),
	), s.jsonResult(func(ctx context.Context, args map[string]any) (any, error) {
		var in struct {
			Text string `mapstructure:"text"`
		}
		if err := decode(args, &in); err != nil {
			return nil, err
		}
		return s.admin.CreateScript(ctx, in.Text)
	}))

	s.mcpServer.AddTool(mcp.NewTool("create_proc",
		mcp.WithDescription("Start running a script on this agent."),
		mcp.WithString("script_id", mcp.Required(), mcp.Description("Script id, owner/seq")),
	), s.jsonResult(func(ctx context.Context, args map[string]any) (any, error) {
		var in struct {
			ScriptID string `mapstructure:"script_id"`
		}
		if err := decode(args, &in); err != nil {
			return nil, err
		}
		id, err := domain.ParseUID(in.ScriptID)
		if err != nil {
			return nil, err
		}
		return s.admin.CreateProc(ctx, id)
	}))

	s.mcpServer.AddTool(mcp.NewTool("create_request",
		mcp.WithDescription("Send a one-shot agent request."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("add, control, move, remove or transfer")),
		mcp.WithString("target", mcp.Description("Agent that handles the request; defaults to the mobile agent")),
		mcp.WithString("mobile_agent", mcp.Description("Agent being relocated")),
		mcp.WithString("origin", mcp.Description("Node the agent leaves")),
		mcp.WithString("destination", mcp.Description("Node the agent reaches")),
		mcp.WithBoolean("force_restart", mcp.Description("Restart the agent after the move")),
	), s.jsonResult(s.createRequest))

	for _, kind := range []domain.FactKind{domain.FactScript, domain.FactProc, domain.FactRequest} {
		kind := kind
		s.mcpServer.AddTool(mcp.NewTool("remove_"+string(kind),
			mcp.WithDescription(fmt.Sprintf("Remove a %s.", kind)),
			mcp.WithString("id", mcp.Required(), mcp.Description(fmt.Sprintf("%s id, owner/seq", kind))),
		), s.jsonResult(func(ctx context.Context, args map[string]any) (any, error) {
			id, err := decodeID(args)
			if err != nil {
				return nil, err
			}
			return map[string]string{"removed": id.String()}, s.remove(ctx, kind, id)
		}))
	}
}

type createRequestArgs struct {
	Kind         string `mapstructure:"kind"`
	Target       string `mapstructure:"target"`
	MobileAgent  string `mapstructure:"mobile_agent"`
	Origin       string `mapstructure:"origin"`
	Destination  string `mapstructure:"destination"`
	ForceRestart bool   `mapstructure:"force_restart"`
}

func (s *Server) createRequest(ctx context.Context, args map[string]any) (any, error) {
	var in createRequestArgs
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	return s.admin.CreateRequest(ctx, domain.RequestKind(in.Kind), domain.AgentID(in.Target), domain.Ticket{
		MobileAgent:  domain.AgentID(in.MobileAgent),
		Origin:       domain.NodeID(in.Origin),
		Destination:  domain.NodeID(in.Destination),
		ForceRestart: in.ForceRestart,
	})
}

func (s *Server) remove(ctx context.Context, kind domain.FactKind, id domain.UID) error {
	switch kind {
	case domain.FactScript:
		return s.admin.RemoveScript(ctx, id)
	case domain.FactProc:
		return s.admin.RemoveProc(ctx, id)
	default:
		return s.admin.RemoveRequest(ctx, id)
	}
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (Status, error) {
	var st Status
	scripts, err := s.admin.Scripts(ctx)
	if err != nil {
		return st, err
	}
	procs, err := s.admin.Procs(ctx)
	if err != nil {
		return st, err
	}
	steps, err := s.admin.Steps(ctx)
	if err != nil {
		return st, err
	}
	reqs, err := s.admin.Requests(ctx)
	if err != nil {
		return st, err
	}
	st.Scripts, st.Procs, st.Steps, st.Requests = len(scripts), len(procs), len(steps), len(reqs)
	for _, p := range procs {
		if p.Running() {
			st.Running++
		}
	}
	return st, nil
}

func (s *Server) handleDescribeScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := decodeID(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scripts, err := s.admin.Scripts(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	for _, sc := range scripts {
		if sc.ID == id {
			return mcp.NewToolResultText(tui.ScriptMarkdown(sc)), nil
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("%v: %s", domain.ErrNotFound, id)), nil
}

// jsonResult adapts fn to a tool handler returning its result as JSON text.
// Errors become tool errors so the client sees them.
func (s *Server) jsonResult(fn func(context.Context, map[string]any) (any, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		v, err := fn(ctx, request.GetArguments())
		if err != nil {
			s.logger.Warn("MCP tool failed", "tool", request.Params.Name, "err", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func decodeID(args map[string]any) (domain.UID, error) {
	var in struct {
		ID string `mapstructure:"id"`
	}
	if err := decode(args, &in); err != nil {
		return domain.UID{}, err
	}
	if in.ID == "" {
		return domain.UID{}, fmt.Errorf("%w: id is required", domain.ErrInvalidUID)
	}
	return domain.ParseUID(in.ID)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("mobility://procs", "Procs of the agent",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		procs, err := s.admin.Procs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list procs: %w", err)
		}
		jsonBytes, _ := json.Marshal(procs)
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "mobility://procs",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
