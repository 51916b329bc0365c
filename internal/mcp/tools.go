package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/branchtrack/internal/session"
)

// Tool name constants.
const (
	ToolNameRecord  = "branch_record"
	ToolNameResult  = "branch_result"
	ToolNameResults = "branch_results"
	ToolNameLineage = "branch_lineage"
	ToolNameDiff    = "branch_diff"
	ToolNameStats   = "branch_stats"
)

// Input types (auto-generate JSON schemas via struct tags).

// RecordInput is the input schema for the branch_record tool.
type RecordInput struct {
	Params      any  `json:"params"                 jsonschema:"search parameters the result was produced with"`
	Result      any  `json:"result"                 jsonschema:"result of the search"`
	FromVersion *int `json:"from_version,omitempty" jsonschema:"version to fork from (default: current version)"`
}

// ResultInput is the input schema for the branch_result tool.
type ResultInput struct {
	Version int `json:"version" jsonschema:"version to read"`
	Slot    int `json:"slot"    jsonschema:"slot to read"`
}

// VersionInput is the input schema for tools reading a single version.
type VersionInput struct {
	Version *int `json:"version,omitempty" jsonschema:"version to read (default: current version)"`
}

// DiffInput is the input schema for the branch_diff tool.
type DiffInput struct {
	From int `json:"from" jsonschema:"base version"`
	To   int `json:"to"   jsonschema:"version compared against the base"`
}

// StatsInput is the input schema for the branch_stats tool.
type StatsInput struct{}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// ResultOutput is the branch_result payload.
type ResultOutput struct {
	session.SlotResult

	Version int `json:"version"`
}

// ResultsOutput is the branch_results payload.
type ResultsOutput struct {
	Results []session.SlotResult `json:"results"`
	Version int                  `json:"version"`
}

// LineageOutput is the branch_lineage payload.
type LineageOutput struct {
	Lineage []int `json:"lineage"`
	Version int   `json:"version"`
}

// DiffOutput is the branch_diff payload.
type DiffOutput struct {
	Changes []session.SlotChange `json:"changes"`
	From    int                  `json:"from"`
	To      int                  `json:"to"`
}

// handlers serves the tools of one session.
type handlers struct {
	session *session.Session
	logger  *slog.Logger
}

func (h *handlers) handleRecord(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input RecordInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	var (
		recorded session.Recorded
		err      error
	)

	if input.FromVersion != nil {
		recorded, err = h.session.Fork(*input.FromVersion, input.Params, input.Result)
	} else {
		recorded, err = h.session.Record(input.Params, input.Result)
	}

	if err != nil {
		return h.fail(ctx, ToolNameRecord, err)
	}

	return jsonResult(recorded)
}

func (h *handlers) handleResult(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input ResultInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	result, err := h.session.Result(input.Version, input.Slot)
	if err != nil {
		return h.fail(ctx, ToolNameResult, err)
	}

	return jsonResult(ResultOutput{SlotResult: result, Version: input.Version})
}

func (h *handlers) handleResults(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input VersionInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	version := h.versionOrCurrent(input.Version)

	results, err := h.session.Results(version)
	if err != nil {
		return h.fail(ctx, ToolNameResults, err)
	}

	return jsonResult(ResultsOutput{Results: results, Version: version})
}

func (h *handlers) handleLineage(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input VersionInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	version := h.versionOrCurrent(input.Version)

	lineage, err := h.session.Lineage(version)
	if err != nil {
		return h.fail(ctx, ToolNameLineage, err)
	}

	return jsonResult(LineageOutput{Lineage: lineage, Version: version})
}

func (h *handlers) handleDiff(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input DiffInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	changes, err := h.session.Diff(input.From, input.To)
	if err != nil {
		return h.fail(ctx, ToolNameDiff, err)
	}

	return jsonResult(DiffOutput{Changes: changes, From: input.From, To: input.To})
}

func (h *handlers) handleStats(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	_ StatsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return jsonResult(h.session.Stats())
}

func (h *handlers) versionOrCurrent(version *int) int {
	if version != nil {
		return *version
	}

	return h.session.CurrentVersion()
}

// fail logs a rejected tool call and reports it to the client prefixed with
// its error code.
func (h *handlers) fail(ctx context.Context, tool string, err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	code := session.Code(err)

	h.logger.WarnContext(ctx, "tool call failed",
		slog.String("tool", tool),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)

	return errorResult(fmt.Errorf("%s: %w", code, err))
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
