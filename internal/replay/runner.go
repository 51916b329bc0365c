package replay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/branchtrack/internal/config"
	"github.com/Sumatoshi-tech/branchtrack/internal/observability"
	"github.com/Sumatoshi-tech/branchtrack/internal/session"
)

// Options configures a replay run.
type Options struct {
	// Session holds the session options a script header may override.
	Session session.Options
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger
}

// Outcome is the result of one step.
type Outcome struct {
	// Output is the step value: session.Recorded, session.SlotResult,
	// []session.SlotResult, []session.SlotChange, []int or session.Stats.
	Output any
	Err    error
	Op     string
	// Code is the error code of Err, empty on success.
	Code string
	// Expected is the error code the step declared with expect_error.
	Expected string
	// Index is the 1-based position of the step in the script.
	Index int
	// Version is the version the step read or created.
	Version int
}

// OK reports whether the step ended the way the script expected.
func (o Outcome) OK() bool {
	return o.Code == o.Expected
}

// Report collects the outcomes of a run.
type Report struct {
	Name      string
	SessionID string
	Outcomes  []Outcome
	Stats     session.Stats
}

// Failed returns the number of steps that did not end as expected.
func (r Report) Failed() int {
	failed := 0

	for _, o := range r.Outcomes {
		if !o.OK() {
			failed++
		}
	}

	return failed
}

// Run validates script and executes every step against a fresh session.
// Step failures are recorded in the report; the returned error covers invalid
// scripts, setup problems and cancellation only.
func Run(ctx context.Context, script *Script, opts Options) (Report, error) {
	if script == nil {
		return Report{}, fmt.Errorf("%w: no script", ErrInvalidScript)
	}

	err := script.Validate()
	if err != nil {
		return Report{}, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sessOpts, err := sessionOptions(script, opts.Session)
	if err != nil {
		return Report{}, err
	}

	sess, err := session.New(sessOpts, session.Deps{Logger: logger})
	if err != nil {
		return Report{}, fmt.Errorf("replay session: %w", err)
	}

	report := Report{
		Name:      script.Name,
		SessionID: sess.ID(),
		Outcomes:  make([]Outcome, 0, len(script.Steps)),
	}

	ctx = observability.WithSession(ctx, sess.ID())

	for i, step := range script.Steps {
		err = ctx.Err()
		if err != nil {
			return report, fmt.Errorf("replay interrupted at step %d: %w", i+1, err)
		}

		outcome := execute(sess, step)
		outcome.Index = i + 1
		outcome.Op = step.Op
		outcome.Expected = step.ExpectError

		if outcome.Err != nil {
			outcome.Code = session.Code(outcome.Err)
		}

		if !outcome.OK() {
			logger.WarnContext(ctx, "replay step did not match expectation",
				slog.Int("step", outcome.Index),
				slog.String("op", outcome.Op),
				slog.String("code", outcome.Code),
				slog.String("expected", outcome.Expected),
			)
		}

		report.Outcomes = append(report.Outcomes, outcome)
	}

	report.Stats = sess.Stats()

	return report, nil
}

func sessionOptions(script *Script, defaults session.Options) (session.Options, error) {
	opts := defaults

	if script.MaxBranches > 0 {
		opts.MaxBranches = script.MaxBranches
	}

	if script.CompressThreshold != "" {
		threshold, err := config.PayloadConfig{CompressThreshold: script.CompressThreshold}.Threshold()
		if err != nil {
			return session.Options{}, fmt.Errorf("%w: %w", ErrInvalidScript, err)
		}

		opts.CompressThreshold = threshold
	}

	if script.ParamsSchema != "" {
		raw, err := session.LoadParamsSchema(script.ParamsSchema)
		if err != nil {
			return session.Options{}, err
		}

		opts.ParamsSchema = raw
	}

	return opts, nil
}

func execute(sess *session.Session, step Step) Outcome {
	switch step.Op {
	case OpRecord:
		return recorded(sess.Record(jsonValue(step.Params), jsonValue(step.Result)))
	case OpFork:
		return recorded(sess.Fork(*step.From, jsonValue(step.Params), jsonValue(step.Result)))
	case OpResult:
		result, err := sess.Result(*step.Version, *step.Slot)

		return Outcome{Output: result, Err: err, Version: *step.Version}
	case OpResults:
		version := versionOrCurrent(sess, step.Version)
		results, err := sess.Results(version)

		return Outcome{Output: results, Err: err, Version: version}
	case OpDiff:
		changes, err := sess.Diff(*step.From, *step.To)

		return Outcome{Output: changes, Err: err, Version: *step.To}
	case OpLineage:
		version := versionOrCurrent(sess, step.Version)
		lineage, err := sess.Lineage(version)

		return Outcome{Output: lineage, Err: err, Version: version}
	case OpStats:
		return Outcome{Output: sess.Stats(), Version: sess.CurrentVersion()}
	default:
		return Outcome{Err: fmt.Errorf("%w: unknown op %q", ErrInvalidScript, step.Op)}
	}
}

func recorded(rec session.Recorded, err error) Outcome {
	return Outcome{Output: rec, Err: err, Version: rec.Version}
}

func versionOrCurrent(sess *session.Session, version *int) int {
	if version != nil {
		return *version
	}

	return sess.CurrentVersion()
}

// jsonValue rewrites mappings decoded with non-string keys, such as {1: x},
// into string-keyed maps so they encode as JSON objects. Keys are formatted
// with fmt.Sprint.
func jsonValue(value any) any {
	switch v := value.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = jsonValue(item)
		}

		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = jsonValue(item)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = jsonValue(item)
		}

		return out
	default:
		return value
	}
}
