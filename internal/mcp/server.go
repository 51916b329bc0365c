// Package mcp implements a Model Context Protocol server exposing one branch
// tracking session as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/branchtrack/internal/observability"
	"github.com/Sumatoshi-tech/branchtrack/internal/session"
	"github.com/Sumatoshi-tech/branchtrack/pkg/version"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "branchtrack"

	// toolCount is the expected number of registered tools.
	toolCount = 6
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer

	// Session is the session the tools operate on. Nil creates one with
	// default options.
	Session *session.Session
}

// Server wraps the MCP SDK server with branch tool registrations.
type Server struct {
	inner    *mcpsdk.Server
	handlers *handlers
	mu       sync.RWMutex
	tools    []string
	metrics  *observability.REDMetrics
	tracer   trace.Tracer
}

// NewServer creates a new MCP server with all branch tools registered.
func NewServer(deps ServerDeps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sess := deps.Session
	if sess == nil {
		created, err := session.New(session.Options{}, session.Deps{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("mcp session: %w", err)
		}

		sess = created
	}

	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		opts,
	)

	srv := &Server{
		inner:    inner,
		handlers: &handlers{session: sess, logger: logger},
		tools:    make([]string, 0, toolCount),
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
	}

	srv.registerTools()

	return srv, nil
}

// Session returns the session the tools operate on.
func (s *Server) Session() *session.Session {
	return s.handlers.session
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// registerTools adds all branch MCP tools to the server.
func (s *Server) registerTools() {
	h := s.handlers

	register(s, ToolNameRecord, recordToolDescription, h.handleRecord)
	register(s, ToolNameResult, resultToolDescription, h.handleResult)
	register(s, ToolNameResults, resultsToolDescription, h.handleResults)
	register(s, ToolNameLineage, lineageToolDescription, h.handleLineage)
	register(s, ToolNameDiff, diffToolDescription, h.handleDiff)
	register(s, ToolNameStats, statsToolDescription, h.handleStats)
}

func register[Input any](s *Server, name, description string, handler mcpsdk.ToolHandlerFor[Input, ToolOutput]) {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        name,
		Description: description,
	}, withSession(s.handlers.session.ID(), withMetrics(s.metrics, name, withTracing(s.tracer, name, handler))))

	s.trackTool(name)
}

// mcpSpanPrefix is the prefix for MCP tool span names and metric operations.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler mcpsdk.ToolHandlerFor[Input, ToolOutput],
) mcpsdk.ToolHandlerFor[Input, ToolOutput] {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withSession tags the handler context with the session id so every log
// record written while serving the call carries it.
func withSession[Input any](
	sessionID string,
	handler mcpsdk.ToolHandlerFor[Input, ToolOutput],
) mcpsdk.ToolHandlerFor[Input, ToolOutput] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		return handler(observability.WithSession(ctx, sessionID), req, input)
	}
}

// withMetrics wraps an MCP tool handler to record RED metrics per invocation.
func withMetrics[Input any](
	metrics *observability.REDMetrics,
	toolName string,
	handler mcpsdk.ToolHandlerFor[Input, ToolOutput],
) mcpsdk.ToolHandlerFor[Input, ToolOutput] {
	if metrics == nil {
		return handler
	}

	op := mcpSpanPrefix + toolName

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		decInflight := metrics.TrackInflight(ctx, op)
		defer decInflight()

		result, output, err := handler(ctx, req, input)

		status := observability.StatusOK
		if err != nil || (result != nil && result.IsError) {
			status = observability.StatusError
		}

		metrics.RecordRequest(ctx, op, status, time.Since(start))

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	recordToolDescription = "Record a branch: the params a search was run with and the result it produced. " +
		"Each branch gets the next free slot and creates a new version. " +
		"Pass from_version to fork from an earlier version instead of the current one."

	resultToolDescription = "Return the result held in one slot as of a version. " +
		"A slot allocated on a different line is reported with set=false."

	resultsToolDescription = "Return every slot allocated as of a version, in slot order. " +
		"Defaults to the current version."

	lineageToolDescription = "Return the chain of versions from a version back to version 0. " +
		"Defaults to the current version."

	diffToolDescription = "Compare two versions and return the slots whose results differ, " +
		"with a character-level diff of each result."

	statsToolDescription = "Return session counters: capacity, allocated slots, versions, tree nodes and payload sizes."
)
