// Package trace records what a pipeline run decided, stage by stage.
//
// A trace holds logical facts only: which stages completed, failed, were
// aborted or skipped, and which files each one wrote. It never contains
// timestamps, sizes or error text, so two runs over the same tree produce the
// same bytes.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// PipelineTrace is the canonical record of one pipeline run.
type PipelineTrace struct {
	Pipeline string
	Events   []Event
}

// EventKind discriminates Event. The string values are part of the encoded
// bytes; do not rename.
type EventKind string

const (
	EventStageCompleted EventKind = "StageCompleted"
	EventStageFailed    EventKind = "StageFailed"
	EventStageAborted   EventKind = "StageAborted"
	EventStageSkipped   EventKind = "StageSkipped"
)

// Event is one stage decision.
type Event struct {
	Kind EventKind

	// Index is the stage's position in the pipeline. It is the primary sort key.
	Index int

	// Stage names the stage this event refers to.
	Stage string

	// Reason is a stable reason code, e.g. "UpstreamFailed".
	Reason string

	// CauseStage is the upstream stage that caused a skip.
	CauseStage string

	// Files lists the project-relative paths the stage wrote.
	Files []string
}

// Validate checks basic invariants.
func (t *PipelineTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.Pipeline == "" {
		return errors.New("pipeline is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Stage == "" {
			return fmt.Errorf("events[%d].stage is required", i)
		}
		for j, f := range e.Files {
			if f == "" {
				return fmt.Errorf("events[%d].files[%d] is empty", i, j)
			}
		}
	}
	return nil
}

// Canonicalize sorts files within each event and events by
// (index, kind, stage, reason, cause).
func (t *PipelineTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].Files) == 0 {
			t.Events[i].Files = nil
			continue
		}
		files := make([]string, len(t.Events[i].Files))
		copy(files, t.Events[i].Files)
		sort.Strings(files)
		t.Events[i].Files = files
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		return a.CauseStage < b.CauseStage
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventStageCompleted:
		return 10
	case EventStageFailed:
		return 20
	case EventStageAborted:
		return 30
	case EventStageSkipped:
		return 40
	default:
		return 1000
	}
}

// CanonicalJSON returns the canonical encoding without mutating t.
func (t PipelineTrace) CanonicalJSON() ([]byte, error) {
	cp := PipelineTrace{Pipeline: t.Pipeline, Events: make([]Event, len(t.Events))}
	copy(cp.Events, t.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&cp)
}

// Hash returns the sha256 hex of the canonical encoding.
func (t PipelineTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeHash(b), nil
}

// MarshalJSON fixes field order.
func (t PipelineTrace) MarshalJSON() ([]byte, error) {
	if t.Pipeline == "" {
		return nil, errors.New("pipeline is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"pipeline":`)
	pb, _ := json.Marshal(t.Pipeline)
	buf.Write(pb)
	buf.WriteString(`,"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var files []string
	if len(e.Files) > 0 {
		files = make([]string, len(e.Files))
		copy(files, e.Files)
		sort.Strings(files)
	}

	var buf bytes.Buffer
	writeField := func(name string, v any) {
		b, _ := json.Marshal(v)
		buf.WriteString(`,"` + name + `":`)
		buf.Write(b)
	}

	buf.WriteString(`{"kind":`)
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)
	writeField("index", e.Index)
	writeField("stage", e.Stage)
	if e.Reason != "" {
		writeField("reason", e.Reason)
	}
	if e.CauseStage != "" {
		writeField("causeStage", e.CauseStage)
	}
	if len(files) > 0 {
		writeField("files", files)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
