package session

import (
	"context"
	"testing"

	"ripple/internal/domain/models"
	"ripple/internal/domain/services"
	"ripple/internal/testutil"
)

func TestAccumulatorFlushesOnPartBoundary(t *testing.T) {
	repo := testutil.NewMemMessageRepo()
	acc := NewPartAccumulator("msg-1", repo)
	ctx := context.Background()

	flushed, err := acc.ProcessDelta(ctx, &services.ProviderDelta{
		PartIndex: 0, PartType: models.PartTypeText, TextDelta: strPtr("hello "),
	})
	if err != nil {
		t.Fatalf("process delta: %v", err)
	}
	if flushed != nil {
		t.Fatal("first delta flushed a part")
	}

	if _, err := acc.ProcessDelta(ctx, &services.ProviderDelta{
		PartIndex: 0, TextDelta: strPtr("world"),
	}); err != nil {
		t.Fatalf("process delta: %v", err)
	}

	// Moving to part 1 closes part 0.
	flushed, err = acc.ProcessDelta(ctx, &services.ProviderDelta{
		PartIndex: 1, PartType: models.PartTypeText, TextDelta: strPtr("next"),
	})
	if err != nil {
		t.Fatalf("process delta: %v", err)
	}
	if flushed == nil || flushed.Sequence != 0 {
		t.Fatalf("flushed = %+v, want part 0", flushed)
	}
	if flushed.Text() != "hello world" {
		t.Errorf("flushed text = %q, want %q", flushed.Text(), "hello world")
	}

	parts := repo.PartsOf("msg-1")
	if len(parts) != 1 {
		t.Fatalf("persisted parts = %d, want 1", len(parts))
	}

	// Finalize closes the in-progress part 1.
	last, err := acc.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if last == nil || last.Sequence != 1 || last.Text() != "next" {
		t.Fatalf("finalized = %+v, want part 1 with text next", last)
	}
	if got := len(repo.PartsOf("msg-1")); got != 2 {
		t.Errorf("persisted parts = %d, want 2", got)
	}
}

func TestAccumulatorBuildsToolUseContent(t *testing.T) {
	repo := testutil.NewMemMessageRepo()
	acc := NewPartAccumulator("msg-1", repo)
	ctx := context.Background()

	deltas := []*services.ProviderDelta{
		{PartIndex: 0, PartType: models.PartTypeToolUse, DeltaType: services.DeltaTypeToolCallStart,
			ToolCallID: strPtr("call-1"), ToolCallName: strPtr("search")},
		{PartIndex: 0, DeltaType: services.DeltaTypeInputJSON, InputJSONDelta: strPtr(`{"query":`)},
		{PartIndex: 0, DeltaType: services.DeltaTypeInputJSON, InputJSONDelta: strPtr(`"weather"}`)},
	}
	for _, d := range deltas {
		if _, err := acc.ProcessDelta(ctx, d); err != nil {
			t.Fatalf("process delta: %v", err)
		}
	}

	part, err := acc.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if part.PartType != models.PartTypeToolUse {
		t.Fatalf("part type = %s, want %s", part.PartType, models.PartTypeToolUse)
	}
	if id, _ := part.Content[models.ContentKeyToolID].(string); id != "call-1" {
		t.Errorf("tool call id = %q, want call-1", id)
	}
	if name, _ := part.Content[models.ContentKeyToolName].(string); name != "search" {
		t.Errorf("tool name = %q, want search", name)
	}
	input, ok := part.Content[models.ContentKeyInput].(map[string]any)
	if !ok {
		t.Fatalf("input = %#v, want parsed object", part.Content[models.ContentKeyInput])
	}
	if input["query"] != "weather" {
		t.Errorf("input.query = %v, want weather", input["query"])
	}
}

func TestAccumulatorKeepsRawFragmentOnPartialJSON(t *testing.T) {
	repo := testutil.NewMemMessageRepo()
	acc := NewPartAccumulator("msg-1", repo)
	ctx := context.Background()

	if _, err := acc.ProcessDelta(ctx, &services.ProviderDelta{
		PartIndex: 0, PartType: models.PartTypeToolUse,
		ToolCallID: strPtr("call-1"), InputJSONDelta: strPtr(`{"query": "wea`),
	}); err != nil {
		t.Fatalf("process delta: %v", err)
	}

	part, err := acc.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if raw, _ := part.Content[models.ContentKeyInput].(string); raw != `{"query": "wea` {
		t.Errorf("input = %#v, want raw fragment", part.Content[models.ContentKeyInput])
	}
}

func TestAccumulatorAdoptCompleteSkipsWrittenParts(t *testing.T) {
	repo := testutil.NewMemMessageRepo()
	acc := NewPartAccumulator("msg-1", repo)
	ctx := context.Background()

	if _, err := acc.ProcessDelta(ctx, &services.ProviderDelta{
		PartIndex: 0, PartType: models.PartTypeText, TextDelta: strPtr("streamed"),
	}); err != nil {
		t.Fatalf("process delta: %v", err)
	}
	if _, err := acc.Finalize(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// The provider re-sends part 0 as a complete block; it must not
	// double-write.
	text := "streamed"
	adopted, err := acc.AdoptComplete(ctx, &models.Part{Sequence: 0, PartType: models.PartTypeText, TextContent: &text})
	if err != nil {
		t.Fatalf("adopt complete: %v", err)
	}
	if adopted != nil {
		t.Error("already-written part adopted again")
	}
	if got := len(repo.PartsOf("msg-1")); got != 1 {
		t.Errorf("persisted parts = %d, want 1", got)
	}

	// A genuinely new part is adopted.
	next := "fresh"
	adopted, err = acc.AdoptComplete(ctx, &models.Part{Sequence: 1, PartType: models.PartTypeText, TextContent: &next})
	if err != nil {
		t.Fatalf("adopt complete: %v", err)
	}
	if adopted == nil {
		t.Fatal("new complete part not adopted")
	}
	if acc.LastWritten() != 1 {
		t.Errorf("last written = %d, want 1", acc.LastWritten())
	}
}

func TestAccumulatorFinalizeWithNothingPending(t *testing.T) {
	acc := NewPartAccumulator("msg-1", testutil.NewMemMessageRepo())

	part, err := acc.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if part != nil {
		t.Errorf("finalize flushed %+v, want nil", part)
	}
}
