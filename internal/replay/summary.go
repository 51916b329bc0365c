package replay

import (
	"encoding/json"
	"fmt"
)

// SummaryBasename is the file name, without extension, a Summary is saved under.
const SummaryBasename = "replay-report"

// Summary is the serializable form of a Report. Step outputs and stats are
// kept as plain JSON values so that every codec can encode them.
type Summary struct {
	Stats     any           `json:"stats"      yaml:"stats"`
	Name      string        `json:"name"       yaml:"name"`
	SessionID string        `json:"session_id" yaml:"session_id"`
	Steps     []StepSummary `json:"steps"      yaml:"steps"`
	Failed    int           `json:"failed"     yaml:"failed"`
}

// StepSummary is the serializable form of an Outcome.
type StepSummary struct {
	Output   any    `json:"output,omitempty"   yaml:"output,omitempty"`
	Op       string `json:"op"                 yaml:"op"`
	Code     string `json:"code,omitempty"     yaml:"code,omitempty"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Error    string `json:"error,omitempty"    yaml:"error,omitempty"`
	Index    int    `json:"index"              yaml:"index"`
	Version  int    `json:"version"            yaml:"version"`
	OK       bool   `json:"ok"                 yaml:"ok"`
}

// Summarize converts a report into a Summary.
func Summarize(report Report) (*Summary, error) {
	stats, err := plain(report.Stats)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Name:      report.Name,
		SessionID: report.SessionID,
		Steps:     make([]StepSummary, 0, len(report.Outcomes)),
		Failed:    report.Failed(),
		Stats:     stats,
	}

	for _, o := range report.Outcomes {
		step := StepSummary{
			Index:    o.Index,
			Op:       o.Op,
			Version:  o.Version,
			OK:       o.OK(),
			Code:     o.Code,
			Expected: o.Expected,
		}

		if o.Err != nil {
			step.Error = o.Err.Error()
		} else {
			step.Output, err = plain(o.Output)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", o.Index, err)
			}
		}

		summary.Steps = append(summary.Steps, step)
	}

	return summary, nil
}

// plain converts value into generic JSON values: maps, slices, strings,
// float64 numbers, bools and nil.
func plain(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	var out any

	err = json.Unmarshal(raw, &out)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	return out, nil
}
