package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"quill/internal/harvester"
	"quill/internal/processor"
	"quill/internal/ranking"
	"quill/internal/registry"
	"quill/internal/store"
	"quill/internal/testsupport"
)

type fakeSource struct {
	items []harvester.Item
	err   error
}

func (f *fakeSource) Harvest(ctx context.Context, startLocator string) ([]harvester.Item, error) {
	return f.items, f.err
}

// failingProcessor wraps another processor and fails transform for titles
// containing a marker.
type failingProcessor struct {
	processor.Processor
	failMarker string
}

func (f *failingProcessor) Transform(ctx context.Context, in processor.Input) (*processor.Output, error) {
	if strings.Contains(in.Title, f.failMarker) {
		return nil, errors.New("injected transform failure")
	}
	return f.Processor.Transform(ctx, in)
}

func newTestOrchestrator(t *testing.T, source Source) (*Orchestrator, *store.Store, *registry.Registry) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	proc, err := processor.New(cfg.LLM, cfg.Pipeline)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	reg := registry.New(st, registry.Options{TTL: time.Hour, SweepInterval: time.Hour}, nil)
	ranker := ranking.New(ranking.Params{
		LearningRate:   cfg.Ranking.LearningRate,
		DiscountFactor: cfg.Ranking.DiscountFactor,
		Seed:           cfg.Ranking.Seed,
	})
	orch := New(context.Background(), cfg.Pipeline, st, source, proc, ranker, reg, nil)
	return orch, st, reg
}

func chapterItems(n int) []harvester.Item {
	items := make([]harvester.Item, n)
	for i := range items {
		items[i] = harvester.Item{
			Title:          "Chapter " + string(rune('A'+i)),
			Body:           "the story continues with chapter " + string(rune('a'+i)) + ". it ends cleanly.",
			SequenceNumber: i + 1,
			OriginLocator:  "https://example.com/chapter-" + string(rune('a'+i)),
		}
	}
	return items
}

func TestRunProcessesAllItems(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, &fakeSource{items: chapterItems(2)})

	record, err := orch.Run(context.Background(), "https://example.com/chapter-a")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if record.Status != store.ProcessCompleted {
		t.Fatalf("status = %q", record.Status)
	}
	if record.Metrics.ItemsProcessed != 2 {
		t.Fatalf("items processed = %d", record.Metrics.ItemsProcessed)
	}
	if record.EndedAt == nil {
		t.Fatal("ended_at not set")
	}
	if len(record.ItemResults) != 2 {
		t.Fatalf("item results = %d", len(record.ItemResults))
	}

	ctx := context.Background()
	for _, result := range record.ItemResults {
		if result.Status != store.ItemSuccess {
			t.Fatalf("item %q failed: %s", result.Title, result.Error)
		}
		for _, stage := range []store.Stage{store.StageTransformed, store.StageReviewed, store.StageEdited, store.StageEvaluation} {
			id, ok := result.VersionIDs[string(stage)]
			if !ok {
				t.Fatalf("item %q missing %s version", result.Title, stage)
			}
			version, err := st.GetVersion(ctx, id)
			if err != nil || version == nil {
				t.Fatalf("version %q not stored: %v", id, err)
			}
			if version.ContentID != result.ContentID {
				t.Fatalf("version %q content = %q, want %q", id, version.ContentID, result.ContentID)
			}
		}
	}
}

func TestRunRecordsStageLineage(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, &fakeSource{items: chapterItems(1)})

	record, err := orch.Run(context.Background(), "https://example.com/start")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	result := record.ItemResults[0]

	ctx := context.Background()
	edited, err := st.GetVersion(ctx, result.VersionIDs[string(store.StageEdited)])
	if err != nil || edited == nil {
		t.Fatalf("get edited: %v", err)
	}
	if edited.BasedOnVersionID != result.VersionIDs[string(store.StageTransformed)] {
		t.Fatalf("edited based on %q, want transformed id", edited.BasedOnVersionID)
	}
	if edited.StageOrdinal != 1 {
		t.Fatalf("edited ordinal = %d", edited.StageOrdinal)
	}
}

func TestRunItemFailureDoesNotDisturbSiblings(t *testing.T) {
	items := chapterItems(3)
	items[1].Title = "Chapter BROKEN"

	cfgSource := &fakeSource{items: items}
	orch, _, _ := newTestOrchestrator(t, cfgSource)
	orch.processor = &failingProcessor{Processor: orch.processor, failMarker: "BROKEN"}

	record, err := orch.Run(context.Background(), "https://example.com/start")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if record.Status != store.ProcessCompleted {
		t.Fatalf("status = %q, partial failure should still complete", record.Status)
	}
	if record.Metrics.ItemsProcessed != 2 {
		t.Fatalf("items processed = %d", record.Metrics.ItemsProcessed)
	}

	statuses := map[string]store.ItemStatus{}
	for _, result := range record.ItemResults {
		statuses[result.Title] = result.Status
	}
	if statuses["Chapter BROKEN"] != store.ItemFailed {
		t.Fatal("broken item should fail")
	}
	if statuses["Chapter A"] != store.ItemSuccess || statuses["Chapter C"] != store.ItemSuccess {
		t.Fatalf("sibling items disturbed: %v", statuses)
	}
}

func TestRunFailsWithoutItems(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeSource{})

	record, err := orch.Run(context.Background(), "https://example.com/empty")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if record.Status != store.ProcessFailed {
		t.Fatalf("status = %q", record.Status)
	}
	if !strings.Contains(record.Error, ErrNoContent.Error()) {
		t.Fatalf("error = %q", record.Error)
	}
}

func TestRunFailsOnHarvestError(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeSource{err: errors.New("connection refused")})

	record, err := orch.Run(context.Background(), "https://example.com/down")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if record.Status != store.ProcessFailed {
		t.Fatalf("status = %q", record.Status)
	}
	if !strings.Contains(record.Error, "connection refused") {
		t.Fatalf("error = %q", record.Error)
	}
}

func TestRunRejectsEmptyLocator(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeSource{})
	if _, err := orch.Run(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty locator")
	}
}

func TestStartRunsInBackground(t *testing.T) {
	orch, st, reg := newTestOrchestrator(t, &fakeSource{items: chapterItems(1)})

	processID, err := orch.Start("https://example.com/start")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.HasPrefix(processID, "process_") {
		t.Fatalf("process id = %q", processID)
	}
	orch.Wait()

	record, err := reg.Get(context.Background(), processID)
	if err != nil {
		t.Fatalf("registry get: %v", err)
	}
	if record == nil || !record.Terminal() {
		t.Fatalf("record not terminal: %+v", record)
	}

	persisted, err := st.GetProcessRecord(context.Background(), processID)
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	if persisted == nil || persisted.Status != store.ProcessCompleted {
		t.Fatalf("persisted record = %+v", persisted)
	}
}

func TestRefineUsesEditedBase(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, &fakeSource{items: chapterItems(1)})

	record, err := orch.Run(context.Background(), "https://example.com/start")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	result := record.ItemResults[0]

	refined, err := orch.Refine(context.Background(), result.ContentID, "tighten the opening paragraph")
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if refined.Stage != store.StageRefined {
		t.Fatalf("stage = %q", refined.Stage)
	}
	if refined.BasedOnVersionID != result.VersionIDs[string(store.StageEdited)] {
		t.Fatalf("based on %q, want edited version", refined.BasedOnVersionID)
	}
	if refined.HumanFeedback != "tighten the opening paragraph" {
		t.Fatalf("feedback = %q", refined.HumanFeedback)
	}

	latest, err := st.GetLatestVersion(context.Background(), result.ContentID, store.StageRefined)
	if err != nil || latest == nil {
		t.Fatalf("latest refined: %v", err)
	}
	if latest.ID != refined.ID {
		t.Fatalf("latest = %q, want %q", latest.ID, refined.ID)
	}
}

func TestRefineFallsBackToTransformed(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, &fakeSource{})

	ctx := context.Background()
	content, err := st.CreateSource(ctx, store.NewSource{Title: "Manual", Body: "manually added content."})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	transformed, err := st.CreateVersion(ctx, store.NewVersion{
		ContentID: content.ID,
		Stage:     store.StageTransformed,
		Body:      "a transformed rendition of the content.",
	})
	if err != nil {
		t.Fatalf("create version: %v", err)
	}

	refined, err := orch.Refine(ctx, content.ID, "feedback here")
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if refined.BasedOnVersionID != transformed.ID {
		t.Fatalf("based on %q, want transformed %q", refined.BasedOnVersionID, transformed.ID)
	}
}

func TestRefineErrors(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, &fakeSource{})
	ctx := context.Background()

	if _, err := orch.Refine(ctx, "content_0_0_missing", "feedback"); !errors.Is(err, store.ErrUnknownContent) {
		t.Fatalf("unknown content error = %v", err)
	}

	content, err := st.CreateSource(ctx, store.NewSource{Title: "Bare", Body: "no versions yet."})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	if _, err := orch.Refine(ctx, content.ID, "feedback"); !errors.Is(err, ErrNoBaseVersion) {
		t.Fatalf("no base error = %v", err)
	}
}

func TestTransformStagePicksRankedCandidate(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, &fakeSource{items: chapterItems(1)})
	orch.cfg.TransformCandidates = 3

	record, err := orch.Run(context.Background(), "https://example.com/start")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	result := record.ItemResults[0]
	if result.Status != store.ItemSuccess {
		t.Fatalf("item failed: %s", result.Error)
	}

	transformed, err := st.GetVersion(context.Background(), result.VersionIDs[string(store.StageTransformed)])
	if err != nil || transformed == nil {
		t.Fatalf("get transformed: %v", err)
	}
	if transformed.Metadata["candidates"] != "3" {
		t.Fatalf("candidates metadata = %q", transformed.Metadata["candidates"])
	}
}
