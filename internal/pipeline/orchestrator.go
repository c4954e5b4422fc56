package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quill/internal/config"
	"quill/internal/fingerprint"
	"quill/internal/harvester"
	"quill/internal/logging"
	"quill/internal/processor"
	"quill/internal/ranking"
	"quill/internal/registry"
	"quill/internal/store"
)

// Source yields items to process; the HTTP harvester is the production
// implementation.
type Source interface {
	Harvest(ctx context.Context, startLocator string) ([]harvester.Item, error)
}

// Orchestrator drives transformation runs end to end.
type Orchestrator struct {
	cfg       config.Pipeline
	store     *store.Store
	source    Source
	processor processor.Processor
	ranker    *ranking.Engine
	registry  *registry.Registry
	ids       *fingerprint.Generator
	logger    *slog.Logger

	// baseCtx bounds background runs started by Start; it is the daemon
	// lifetime, not the request that kicked the run off.
	baseCtx context.Context

	runs sync.WaitGroup
}

// New constructs an Orchestrator. baseCtx bounds background runs; pass the
// daemon's root context.
func New(
	baseCtx context.Context,
	cfg config.Pipeline,
	st *store.Store,
	source Source,
	proc processor.Processor,
	ranker *ranking.Engine,
	reg *registry.Registry,
	logger *slog.Logger,
) *Orchestrator {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		source:    source,
		processor: proc,
		ranker:    ranker,
		registry:  reg,
		ids:       fingerprint.New(),
		logger:    logging.WithComponent(logger, "pipeline"),
		baseCtx:   baseCtx,
	}
}

// Start launches a run in the background and returns its process id
// immediately. The run outlives the caller's request context.
func (o *Orchestrator) Start(startLocator string) (string, error) {
	record, err := o.begin(startLocator)
	if err != nil {
		return "", err
	}
	o.runs.Add(1)
	go func() {
		defer o.runs.Done()
		o.execute(o.baseCtx, record, startLocator)
	}()
	return record.ProcessID, nil
}

// Run executes a run synchronously and returns the terminal record.
func (o *Orchestrator) Run(ctx context.Context, startLocator string) (*store.ProcessRecord, error) {
	record, err := o.begin(startLocator)
	if err != nil {
		return nil, err
	}
	o.execute(ctx, record, startLocator)
	return record, nil
}

// Wait blocks until every background run started by Start has finished.
func (o *Orchestrator) Wait() {
	o.runs.Wait()
}

func (o *Orchestrator) begin(startLocator string) (*store.ProcessRecord, error) {
	if strings.TrimSpace(startLocator) == "" {
		return nil, fmt.Errorf("start locator required")
	}
	record := &store.ProcessRecord{
		ProcessID: o.ids.Process(uuid.NewString()[:8]),
		Status:    store.ProcessRunning,
		StartedAt: time.Now().UTC(),
		Metrics:   store.Metrics{StageSeconds: map[string]float64{}},
	}
	o.registry.Register(record)
	return record, nil
}

func (o *Orchestrator) execute(ctx context.Context, record *store.ProcessRecord, startLocator string) {
	logger := o.logger.With(logging.String(logging.FieldProcessID, record.ProcessID))
	logger.Info("run started", logging.String("start_locator", startLocator))

	items, err := o.source.Harvest(ctx, startLocator)
	if err != nil && len(items) == 0 {
		o.finish(record, store.ProcessFailed, fmt.Sprintf("harvest: %v", err), logger)
		return
	}
	if err != nil {
		// Partial harvest: process what we have, note the truncation.
		logger.Warn("harvest ended early", logging.Error(err), logging.Int("items", len(items)))
	}
	if len(items) == 0 {
		o.finish(record, store.ProcessFailed, ErrNoContent.Error(), logger)
		return
	}

	// One goroutine per item. An item failure is recorded in its result and
	// must not disturb its siblings, so this is a plain fan-out rather than a
	// shared-cancel group.
	results := make([]store.ItemResult, len(items))
	stageTimes := make([]map[string]float64, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item harvester.Item) {
			defer wg.Done()
			results[i], stageTimes[i] = o.processItem(ctx, item, logger)
		}(i, item)
	}
	wg.Wait()

	record.ItemResults = results
	for i, result := range results {
		if result.Status == store.ItemSuccess {
			record.Metrics.ItemsProcessed++
		}
		record.Metrics.TotalCharacters += len(items[i].Body)
		for stage, seconds := range stageTimes[i] {
			record.Metrics.StageSeconds[stage] += seconds
		}
	}
	o.registry.Update(record)

	// A run with at least one processed item completes; per-item failures
	// stay visible in the item results.
	o.finish(record, store.ProcessCompleted, "", logger)
}

func (o *Orchestrator) finish(record *store.ProcessRecord, status store.ProcessStatus, errMsg string, logger *slog.Logger) {
	ended := time.Now().UTC()
	record.Status = status
	record.EndedAt = &ended
	record.Error = errMsg

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.registry.Complete(persistCtx, record); err != nil {
		logger.Error("persist run record", logging.Error(err))
	}

	if status == store.ProcessFailed {
		logger.Error("run failed", logging.String("reason", errMsg))
		return
	}
	logger.Info("run completed",
		logging.Int("items_processed", record.Metrics.ItemsProcessed),
		logging.Int("items_total", len(record.ItemResults)))
}

func (o *Orchestrator) processItem(ctx context.Context, item harvester.Item, logger *slog.Logger) (store.ItemResult, map[string]float64) {
	started := time.Now()
	result := store.ItemResult{
		Title:      item.Title,
		Status:     store.ItemFailed,
		VersionIDs: map[string]string{},
	}
	stageSeconds := map[string]float64{}
	defer func() {
		result.Seconds = time.Since(started).Seconds()
	}()
	timeStage := func(stage store.Stage, from time.Time) {
		stageSeconds[string(stage)] += time.Since(from).Seconds()
	}

	content, err := o.store.CreateSource(ctx, store.NewSource{
		Body:           item.Body,
		Title:          item.Title,
		SequenceNumber: item.SequenceNumber,
		OriginLocator:  item.OriginLocator,
	})
	if err != nil {
		result.Error = fmt.Sprintf("store source: %v", err)
		return result, stageSeconds
	}
	result.ContentID = content.ID
	itemLogger := logger.With(logging.String(logging.FieldContentID, content.ID))

	stageStart := time.Now()
	transformed, err := o.transformStage(ctx, content)
	timeStage(store.StageTransformed, stageStart)
	if err != nil {
		result.Error = fmt.Sprintf("transform: %v", err)
		itemLogger.Error("transform stage failed", logging.Error(err))
		return result, stageSeconds
	}
	result.VersionIDs[string(store.StageTransformed)] = transformed.ID

	// Review failures degrade: the item continues without reviewer notes.
	stageStart = time.Now()
	review, reviewVersion, reviewErr := o.reviewStage(ctx, content, transformed)
	timeStage(store.StageReviewed, stageStart)
	if reviewErr != nil {
		itemLogger.Warn("review stage degraded", logging.Error(reviewErr))
	} else if reviewVersion != nil {
		result.VersionIDs[string(store.StageReviewed)] = reviewVersion.ID
	}

	stageStart = time.Now()
	edited, err := o.editStage(ctx, content, transformed, review)
	timeStage(store.StageEdited, stageStart)
	if err != nil {
		result.Error = fmt.Sprintf("edit: %v", err)
		itemLogger.Error("edit stage failed", logging.Error(err))
		return result, stageSeconds
	}
	result.VersionIDs[string(store.StageEdited)] = edited.ID

	if evaluation, err := o.evaluationStage(ctx, content, transformed, edited, review); err != nil {
		itemLogger.Warn("evaluation stage degraded", logging.Error(err))
	} else if evaluation != nil {
		result.VersionIDs[string(store.StageEvaluation)] = evaluation.ID
	}

	result.Status = store.ItemSuccess
	itemLogger.Info("item processed", logging.Int("versions", len(result.VersionIDs)))
	return result, stageSeconds
}

func (o *Orchestrator) stageTimeout() time.Duration {
	if o.cfg.StageTimeoutSeconds > 0 {
		return time.Duration(o.cfg.StageTimeoutSeconds) * time.Second
	}
	return 2 * time.Minute
}

func (o *Orchestrator) withStageTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.stageTimeout())
}

// transformStage produces the transformed version. When more than one
// candidate is configured, each is generated independently and the ranking
// engine chooses the winner.
func (o *Orchestrator) transformStage(ctx context.Context, content *store.ContentItem) (*store.Version, error) {
	candidateCount := o.cfg.TransformCandidates
	if candidateCount < 1 {
		candidateCount = 1
	}

	input := processor.Input{Title: content.Title, Body: content.Body}

	var outputs []*processor.Output
	for i := 0; i < candidateCount; i++ {
		stageCtx, cancel := o.withStageTimeout(ctx)
		out, err := o.processor.Transform(stageCtx, input)
		cancel()
		if err != nil {
			if len(outputs) == 0 {
				return nil, err
			}
			o.logger.Warn("transform candidate failed", logging.Error(err))
			continue
		}
		outputs = append(outputs, out)
	}

	chosen := outputs[0]
	if len(outputs) > 1 && o.ranker != nil {
		candidates := make([]ranking.Candidate, len(outputs))
		for i, out := range outputs {
			candidates[i] = ranking.Candidate{ID: strconv.Itoa(i), Content: out.Body}
		}
		scored := o.ranker.RankCandidates(content.Title, candidates, map[string]string{
			"content_id": content.ID,
			"stage":      string(store.StageTransformed),
		}, nil)
		if idx, err := strconv.Atoi(scored[0].ID); err == nil {
			chosen = outputs[idx]
		}
	}

	metadata := map[string]string{}
	for k, v := range chosen.Metadata {
		metadata[k] = v
	}
	if len(outputs) > 1 {
		metadata["candidates"] = strconv.Itoa(len(outputs))
	}

	return o.store.CreateVersion(ctx, store.NewVersion{
		ContentID:  content.ID,
		Stage:      store.StageTransformed,
		Body:       chosen.Body,
		ProducedBy: o.processor.Name(),
		Metadata:   metadata,
	})
}

func (o *Orchestrator) reviewStage(ctx context.Context, content *store.ContentItem, transformed *store.Version) (*processor.Review, *store.Version, error) {
	stageCtx, cancel := o.withStageTimeout(ctx)
	defer cancel()

	review, err := o.processor.ReviewContent(stageCtx, processor.Input{Title: content.Title, Body: transformed.Body})
	if err != nil {
		return nil, nil, err
	}

	version, err := o.store.CreateVersion(ctx, store.NewVersion{
		ContentID:        content.ID,
		Stage:            store.StageReviewed,
		Body:             review.Notes,
		ProducedBy:       o.processor.Name(),
		BasedOnVersionID: transformed.ID,
		Metadata: map[string]string{
			"score": strconv.FormatFloat(review.Score, 'f', 2, 64),
		},
	})
	if err != nil {
		return review, nil, err
	}
	return review, version, nil
}

func (o *Orchestrator) editStage(ctx context.Context, content *store.ContentItem, transformed *store.Version, review *processor.Review) (*store.Version, error) {
	stageCtx, cancel := o.withStageTimeout(ctx)
	defer cancel()

	input := processor.Input{Title: content.Title, Body: transformed.Body}
	if review != nil {
		input.Notes = review.Notes
	}
	out, err := o.processor.Edit(stageCtx, input)
	if err != nil {
		return nil, err
	}

	return o.store.CreateVersion(ctx, store.NewVersion{
		ContentID:        content.ID,
		Stage:            store.StageEdited,
		Body:             out.Body,
		ProducedBy:       o.processor.Name(),
		BasedOnVersionID: transformed.ID,
		Metadata:         out.Metadata,
	})
}

// evaluationStage records a compact quality report for the item: size deltas
// across stages and the reviewer score when one exists.
func (o *Orchestrator) evaluationStage(ctx context.Context, content *store.ContentItem, transformed, edited *store.Version, review *processor.Review) (*store.Version, error) {
	metadata := map[string]string{
		"source_chars":      strconv.Itoa(len(content.Body)),
		"transformed_chars": strconv.Itoa(len(transformed.Body)),
		"edited_chars":      strconv.Itoa(len(edited.Body)),
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "source: %d chars\ntransformed: %d chars\nedited: %d chars\n",
		len(content.Body), len(transformed.Body), len(edited.Body))
	if review != nil {
		metadata["review_score"] = strconv.FormatFloat(review.Score, 'f', 2, 64)
		fmt.Fprintf(&sb, "review score: %.2f\n", review.Score)
	}

	return o.store.CreateVersion(ctx, store.NewVersion{
		ContentID:        content.ID,
		Stage:            store.StageEvaluation,
		Body:             sb.String(),
		ProducedBy:       o.processor.Name(),
		BasedOnVersionID: edited.ID,
		Metadata:         metadata,
	})
}

// Refine produces a refined version of a content item from human feedback.
// The base is the latest edited version, falling back to the latest
// transformed version. Returns store.ErrUnknownContent for an unknown id and
// ErrNoBaseVersion when no base exists.
func (o *Orchestrator) Refine(ctx context.Context, contentID, feedback string) (*store.Version, error) {
	content, err := o.store.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, fmt.Errorf("refine %q: %w", contentID, store.ErrUnknownContent)
	}

	base, err := o.store.GetLatestVersion(ctx, contentID, store.StageEdited)
	if err != nil {
		return nil, err
	}
	if base == nil {
		if base, err = o.store.GetLatestVersion(ctx, contentID, store.StageTransformed); err != nil {
			return nil, err
		}
	}
	if base == nil {
		return nil, fmt.Errorf("refine %q: %w", contentID, ErrNoBaseVersion)
	}

	stageCtx, cancel := o.withStageTimeout(ctx)
	defer cancel()
	out, err := o.processor.Refine(stageCtx, processor.Input{
		Title: content.Title,
		Body:  base.Body,
		Notes: feedback,
	})
	if err != nil {
		return nil, fmt.Errorf("refine %q: %w", contentID, err)
	}

	version, err := o.store.CreateVersion(ctx, store.NewVersion{
		ContentID:        contentID,
		Stage:            store.StageRefined,
		Body:             out.Body,
		ProducedBy:       o.processor.Name(),
		BasedOnVersionID: base.ID,
		HumanFeedback:    feedback,
		Metadata:         out.Metadata,
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("content refined",
		logging.String(logging.FieldContentID, contentID),
		logging.String(logging.FieldVersionID, version.ID),
		logging.String("base_version", base.ID))
	return version, nil
}
