package session

import (
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/branchtrack/pkg/payload"
)

// Diff fragment operations.
const (
	OpEqual  = "="
	OpInsert = "+"
	OpDelete = "-"
)

// Fragment is one piece of a character-level diff between two JSON documents.
type Fragment struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

// SlotChange describes a slot whose result differs between two versions.
type SlotChange struct {
	From      SlotResult `json:"from"`
	To        SlotResult `json:"to"`
	Fragments []Fragment `json:"fragments"`
	Slot      int        `json:"slot"`
}

// Diff returns the slots whose results differ between versions from and to.
// A slot allocated in only one of the versions counts as unset in the other.
func (s *Session) Diff(from, to int) ([]SlotChange, error) {
	slots, err := s.tracker.Diff(from, to, payload.Equal)
	if err != nil {
		return nil, err
	}

	if len(slots) == 0 {
		return []SlotChange{}, nil
	}

	left, err := s.Results(from)
	if err != nil {
		return nil, err
	}

	right, err := s.Results(to)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	changes := make([]SlotChange, 0, len(slots))

	for _, slot := range slots {
		before := resultAt(left, slot)
		after := resultAt(right, slot)

		fragments, fragErr := diffFragments(dmp, before.Result, after.Result)
		if fragErr != nil {
			return nil, fragErr
		}

		changes = append(changes, SlotChange{
			Slot:      slot,
			From:      before,
			To:        after,
			Fragments: fragments,
		})
	}

	return changes, nil
}

func resultAt(results []SlotResult, slot int) SlotResult {
	if slot < len(results) {
		return results[slot]
	}

	return SlotResult{Slot: slot}
}

func diffFragments(dmp *diffmatchpatch.DiffMatchPatch, before, after payload.Payload) ([]Fragment, error) {
	beforeJSON, err := before.JSON()
	if err != nil {
		return nil, err
	}

	afterJSON, err := after.JSON()
	if err != nil {
		return nil, err
	}

	diffs := dmp.DiffMain(string(beforeJSON), string(afterJSON), false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	fragments := make([]Fragment, 0, len(diffs))

	for _, d := range diffs {
		fragments = append(fragments, Fragment{Op: diffOp(d.Type), Text: d.Text})
	}

	return fragments, nil
}

func diffOp(op diffmatchpatch.Operation) string {
	switch op {
	case diffmatchpatch.DiffInsert:
		return OpInsert
	case diffmatchpatch.DiffDelete:
		return OpDelete
	case diffmatchpatch.DiffEqual:
		return OpEqual
	default:
		return OpEqual
	}
}
