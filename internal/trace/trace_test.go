package trace

import (
	"bytes"
	"testing"
)

func TestCanonicalTraceStability_ByteForByte(t *testing.T) {
	trace1 := PipelineTrace{
		Pipeline: "prod",
		Events: []Event{
			{Kind: EventStageCompleted, Index: 1, Stage: "compile-styles", Files: []string{"build/assets/app-1.0.0.css"}},
			{Kind: EventStageAborted, Index: 0, Stage: "clean-prod"},
			{Kind: EventStageSkipped, Index: 2, Stage: "copy", Reason: "UpstreamFailed", CauseStage: "clean-prod"},
		},
	}
	trace2 := PipelineTrace{
		Pipeline: "prod",
		Events: []Event{
			{Kind: EventStageSkipped, Index: 2, Stage: "copy", CauseStage: "clean-prod", Reason: "UpstreamFailed"},
			{Kind: EventStageAborted, Index: 0, Stage: "clean-prod"},
			{Kind: EventStageCompleted, Index: 1, Stage: "compile-styles", Files: []string{"build/assets/app-1.0.0.css"}},
		},
	}

	b1, err := trace1.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json (1): %v", err)
	}
	b2, err := trace2.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json (2): %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatalf("expected identical bytes\n1=%s\n2=%s", b1, b2)
	}
}

func TestCanonicalOrdering_SortsByPipelinePosition(t *testing.T) {
	tr := PipelineTrace{
		Pipeline: "build",
		Events: []Event{
			{Kind: EventStageCompleted, Index: 1, Stage: "compile-styles"},
			{Kind: EventStageCompleted, Index: 0, Stage: "clean"},
		},
	}
	b, err := tr.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	expected := `{"pipeline":"build","events":[{"kind":"StageCompleted","index":0,"stage":"clean"},{"kind":"StageCompleted","index":1,"stage":"compile-styles"}]}`
	if string(b) != expected {
		t.Fatalf("unexpected canonical bytes\nexpected=%s\nactual  =%s", expected, b)
	}
}

func TestHash_IgnoresInsertionOrder(t *testing.T) {
	tr1 := PipelineTrace{Pipeline: "build", Events: []Event{
		{Kind: EventStageCompleted, Index: 0, Stage: "clean"},
		{Kind: EventStageFailed, Index: 1, Stage: "compile-styles"},
	}}
	tr2 := PipelineTrace{Pipeline: "build", Events: []Event{
		{Kind: EventStageFailed, Index: 1, Stage: "compile-styles"},
		{Kind: EventStageCompleted, Index: 0, Stage: "clean"},
	}}

	h1, err := tr1.Hash()
	if err != nil {
		t.Fatalf("hash (1): %v", err)
	}
	h2, err := tr2.Hash()
	if err != nil {
		t.Fatalf("hash (2): %v", err)
	}
	if h1 != h2 || len(h1) != 64 {
		t.Fatalf("expected equal sha256 hex, got %q / %q", h1, h2)
	}
}

func TestEventFiles_SortedAndOmittedWhenEmpty(t *testing.T) {
	tr := PipelineTrace{Pipeline: "build", Events: []Event{{
		Kind:  EventStageCompleted,
		Stage: "copy",
		Files: []string{"build/z.js", "build/a.js"},
	}}}
	b, err := tr.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	expected := `{"pipeline":"build","events":[{"kind":"StageCompleted","index":0,"stage":"copy","files":["build/a.js","build/z.js"]}]}`
	if string(b) != expected {
		t.Fatalf("unexpected canonical bytes\nexpected=%s\nactual  =%s", expected, b)
	}

	tr2 := PipelineTrace{Pipeline: "build", Events: []Event{{Kind: EventStageCompleted, Stage: "copy", Files: []string{}}}}
	b2, err := tr2.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	expected2 := `{"pipeline":"build","events":[{"kind":"StageCompleted","index":0,"stage":"copy"}]}`
	if string(b2) != expected2 {
		t.Fatalf("unexpected canonical bytes\nexpected=%s\nactual  =%s", expected2, b2)
	}
}

func TestValidate_RequiresStage(t *testing.T) {
	tr := PipelineTrace{Pipeline: "build", Events: []Event{{Kind: EventStageCompleted}}}
	if _, err := tr.CanonicalJSON(); err == nil {
		t.Fatalf("expected error for event without stage")
	}
}

func TestSafeRecord_SwallowsPanics(t *testing.T) {
	SafeRecord(panickySink{}, Event{Kind: EventStageCompleted, Stage: "clean"})
	SafeRecord(nil, Event{Kind: EventStageCompleted, Stage: "clean"})

	r := NewRecorder()
	SafeRecord(r, Event{Kind: EventStageCompleted, Stage: "clean"})
	if got := len(r.Snapshot()); got != 1 {
		t.Fatalf("expected 1 event, got %d", got)
	}
}

type panickySink struct{}

func (panickySink) Record(Event) { panic("boom") }
