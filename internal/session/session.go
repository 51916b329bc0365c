// Package session binds one branch tracker to one collaborator session.
// Params and results arrive as arbitrary JSON-like values, are captured as
// immutable payloads at record time, and may be checked against a params
// JSON schema before anything is recorded.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/branchtrack/pkg/branch"
	"github.com/Sumatoshi-tech/branchtrack/pkg/payload"
	"github.com/Sumatoshi-tech/branchtrack/pkg/pstree"
)

// Sentinel errors.
var (
	// ErrInvalidParams indicates params rejected by the session's params schema.
	ErrInvalidParams = errors.New("params do not match schema")
	// ErrInvalidSchema indicates a params schema that could not be compiled.
	ErrInvalidSchema = errors.New("invalid params schema")
)

// DefaultMaxBranches is the capacity used when Options.MaxBranches is zero.
const DefaultMaxBranches = 100

// Options configures a Session.
type Options struct {
	// MaxBranches is the number of branch slots. Zero uses DefaultMaxBranches.
	MaxBranches int
	// CompressThreshold is the payload size in bytes from which payloads are
	// kept compressed. Zero disables compression.
	CompressThreshold int
	// ParamsSchema is an optional JSON schema document for branch params.
	ParamsSchema []byte
}

// Deps holds injectable dependencies for a Session.
type Deps struct {
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger
}

// Session owns a tracker of JSON payloads.
type Session struct {
	id        string
	tracker   *branch.Tracker[payload.Payload, payload.Payload]
	schema    *gojsonschema.Schema
	logger    *slog.Logger
	threshold int

	payloadBytes atomic.Int64
	storedBytes  atomic.Int64
	compressed   atomic.Int64
}

// New creates a Session with a fresh id.
func New(opts Options, deps Deps) (*Session, error) {
	maxBranches := opts.MaxBranches
	if maxBranches == 0 {
		maxBranches = DefaultMaxBranches
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	logger = logger.With(slog.String("session", id))

	var schema *gojsonschema.Schema

	if len(opts.ParamsSchema) > 0 {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(opts.ParamsSchema))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
		}

		schema = compiled
	}

	tracker, err := branch.New[payload.Payload, payload.Payload](maxBranches, branch.Deps{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	logger.Info("session started", slog.Int("max_branches", maxBranches))

	return &Session{
		id:        id,
		tracker:   tracker,
		schema:    schema,
		logger:    logger,
		threshold: opts.CompressThreshold,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Recorded describes a newly recorded branch.
type Recorded struct {
	Version int `json:"version"`
	Slot    int `json:"slot"`
	Parent  int `json:"parent"`
}

// Record adds a branch on top of the current version.
func (s *Session) Record(params, result any) (Recorded, error) {
	return s.record(params, result, func(p, r payload.Payload) (int, error) {
		return s.tracker.AddBranch(p, r)
	})
}

// Fork adds a branch on top of version from.
func (s *Session) Fork(from int, params, result any) (Recorded, error) {
	return s.record(params, result, func(p, r payload.Payload) (int, error) {
		return s.tracker.ForkBranch(from, p, r)
	})
}

func (s *Session) record(params, result any, add func(p, r payload.Payload) (int, error)) (Recorded, error) {
	paramsPayload, err := payload.Encode(params, s.threshold)
	if err != nil {
		return Recorded{}, fmt.Errorf("params: %w", err)
	}

	err = s.validateParams(paramsPayload)
	if err != nil {
		return Recorded{}, err
	}

	resultPayload, err := payload.Encode(result, s.threshold)
	if err != nil {
		return Recorded{}, fmt.Errorf("result: %w", err)
	}

	version, err := add(paramsPayload, resultPayload)
	if err != nil {
		return Recorded{}, err
	}

	s.account(paramsPayload)
	s.account(resultPayload)

	record, err := s.tracker.CreatedBy(version)
	if err != nil {
		return Recorded{}, err
	}

	return Recorded{Version: version, Slot: record.Slot, Parent: record.Parent}, nil
}

func (s *Session) account(p payload.Payload) {
	s.payloadBytes.Add(int64(p.Size()))
	s.storedBytes.Add(int64(p.StoredSize()))

	if p.Compressed() {
		s.compressed.Add(1)
	}
}

func (s *Session) validateParams(params payload.Payload) error {
	if s.schema == nil {
		return nil
	}

	raw, err := params.JSON()
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		problems = append(problems, verr.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(problems, "; "))
}

// SlotResult is the content of one slot as of a version. Result is null when
// Set is false.
type SlotResult struct {
	Result payload.Payload `json:"result"`
	Slot   int             `json:"slot"`
	Set    bool            `json:"set"`
}

// Result returns the result in slot as of version.
func (s *Session) Result(version, slot int) (SlotResult, error) {
	entry, err := s.tracker.BranchResult(version, slot)
	if err != nil {
		return SlotResult{}, err
	}

	return SlotResult{Slot: slot, Set: entry.Set, Result: entry.Value}, nil
}

// Results returns every slot allocated as of version, in slot order.
func (s *Session) Results(version int) ([]SlotResult, error) {
	entries, err := s.tracker.AllResults(version)
	if err != nil {
		return nil, err
	}

	results := make([]SlotResult, len(entries))
	for slot, entry := range entries {
		results[slot] = SlotResult{Slot: slot, Set: entry.Set, Result: entry.Value}
	}

	return results, nil
}

// CurrentVersion returns the most recently created version.
func (s *Session) CurrentVersion() int {
	return s.tracker.CurrentVersion()
}

// BranchRecord is the full record of one branch.
type BranchRecord struct {
	Params  payload.Payload `json:"params"`
	Result  payload.Payload `json:"result"`
	Slot    int             `json:"slot"`
	Version int             `json:"version"`
	Parent  int             `json:"parent"`
}

// Branch returns the record stored in slot.
func (s *Session) Branch(slot int) (BranchRecord, error) {
	record, err := s.tracker.Branch(slot)
	if err != nil {
		return BranchRecord{}, err
	}

	return BranchRecord{
		Params:  record.Params,
		Result:  record.Result,
		Slot:    record.Slot,
		Version: record.Version,
		Parent:  record.Parent,
	}, nil
}

// Lineage returns the versions from version back to version 0.
func (s *Session) Lineage(version int) ([]int, error) {
	return s.tracker.Lineage(version)
}

// Stats summarizes the session.
type Stats struct {
	branch.Stats

	SessionID    string `json:"session_id"`
	PayloadBytes int64  `json:"payload_bytes"`
	StoredBytes  int64  `json:"stored_bytes"`
	Compressed   int64  `json:"compressed_payloads"`
}

// Stats returns the tracker counters plus payload accounting.
func (s *Session) Stats() Stats {
	return Stats{
		Stats:        s.tracker.Stats(),
		SessionID:    s.id,
		PayloadBytes: s.payloadBytes.Load(),
		StoredBytes:  s.storedBytes.Load(),
		Compressed:   s.compressed.Load(),
	}
}

// TrackerStats returns the tracker counters alone.
func (s *Session) TrackerStats() branch.Stats {
	return s.tracker.Stats()
}

// Error codes reported to collaborators.
const (
	CodeCapacityExceeded = "capacity_exceeded"
	CodeNotFound         = "not_found"
	CodeInvalidVersion   = "invalid_version"
	CodeInvalidParams    = "invalid_params"
	CodeInvalidPayload   = "invalid_payload"
	CodeInternal         = "internal"
)

// Code maps an error returned by a Session to a stable error code.
func Code(err error) string {
	switch {
	case errors.Is(err, branch.ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, branch.ErrNotFound), errors.Is(err, pstree.ErrIndexOutOfRange):
		return CodeNotFound
	case errors.Is(err, pstree.ErrInvalidVersion):
		return CodeInvalidVersion
	case errors.Is(err, ErrInvalidParams):
		return CodeInvalidParams
	case errors.Is(err, payload.ErrInvalidJSON):
		return CodeInvalidPayload
	default:
		return CodeInternal
	}
}
