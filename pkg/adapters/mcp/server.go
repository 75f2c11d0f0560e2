package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphURI names the resource holding the task graph.
const GraphURI = "sluice://graph"

// RunResponse is the structured result of run_task.
type RunResponse struct {
	ID      string              `json:"id" jsonschema_description:"Run identifier"`
	Status  domain.RunStatus    `json:"status" jsonschema_description:"Outcome of the run"`
	Error   string              `json:"error,omitempty" jsonschema_description:"Failure message, if any"`
	Results []domain.TaskResult `json:"results" jsonschema_description:"Per-task outcomes"`
}

// Engine is what the MCP server needs from sluice.
type Engine interface {
	Graph() *domain.Graph
	Run(ctx context.Context, names ...string) (*domain.RunRecord, error)
}

// Server exposes a sluice project as MCP tools.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    engine,
		logger:    logger,
		mcpServer: server.NewMCPServer("sluice-mcp", strings.TrimSpace(version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on port until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := net.JoinHostPort("", strconv.Itoa(port))
	baseURL := fmt.Sprintf("http://localhost:%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	r := chi.NewRouter()
	r.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	r.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
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

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List every task with its prerequisites and description."),
	), s.handleListTasks)

	s.mcpServer.AddTool(mcp.NewTool("run_task",
		mcp.WithDescription("Run one or more tasks, with their prerequisites, and wait for the outcome."),
		mcp.WithString("tasks", mcp.Required(), mcp.Description("Comma separated task names")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleRunTask))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the full task graph as JSON."),
	), func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := s.graphJSON()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) handleListTasks(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g := s.engine.Graph()
	if g == nil {
		return mcp.NewToolResultError("no task graph loaded"), nil
	}
	var b strings.Builder
	for _, t := range g.Tasks() {
		b.WriteString(t.Name)
		if len(t.Deps) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(t.Deps, ", "))
		}
		if t.Description != "" {
			b.WriteString(" - ")
			b.WriteString(firstLine(t.Description))
		}
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleRunTask(ctx context.Context, request mcp.CallToolRequest, _ map[string]interface{}) (RunResponse, error) {
	raw, err := request.RequireString("tasks")
	if err != nil {
		return RunResponse{}, err
	}
	var names []string
	for _, n := range strings.Split(raw, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}

	run, err := s.engine.Run(ctx, names...)
	if run == nil {
		return RunResponse{}, fmt.Errorf("run failed: %w", err)
	}
	if err != nil {
		s.logger.Warn("MCP run failed", "run_id", run.ID, "err", err)
	}
	return RunResponse{ID: run.ID, Status: run.Status, Error: run.Error, Results: run.Results}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Task graph",
		mcp.WithMIMEType("application/json"),
	), func(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := s.graphJSON()
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func (s *Server) graphJSON() ([]byte, error) {
	g := s.engine.Graph()
	if g == nil {
		return nil, errors.New("no task graph loaded")
	}
	data, err := json.Marshal(g.Tasks())
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	return data, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
