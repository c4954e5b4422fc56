package store

import (
	"strings"
	"time"
)

// Stage names a step in the transformation pipeline. The set is open-ended
// string keys; the orchestrator drives a fixed sequence through them.
type Stage string

const (
	StageTransformed Stage = "transformed"
	StageReviewed    Stage = "reviewed"
	StageEdited      Stage = "edited"
	StageRefined     Stage = "refined"
	StageEvaluation  Stage = "evaluation"
)

var knownStages = []Stage{
	StageTransformed,
	StageReviewed,
	StageEdited,
	StageRefined,
	StageEvaluation,
}

// KnownStages returns the ordered list of stages the orchestrator produces.
func KnownStages() []Stage {
	cp := make([]Stage, len(knownStages))
	copy(cp, knownStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	for _, stage := range knownStages {
		if stage == normalized {
			return normalized, true
		}
	}
	return "", false
}

// ContentItem is an immutable harvested source document. Created once per
// harvested item, never mutated, never deleted.
type ContentItem struct {
	ID             string
	Title          string
	SequenceNumber int
	OriginLocator  string
	Body           string
	CreatedAt      time.Time
}

// Version is a stage-tagged derivative of a ContentItem. History per
// (content id, stage) is append-only; "latest" is the greatest created_at,
// ties broken by insertion order.
type Version struct {
	ID               string
	ContentID        string
	Stage            Stage
	StageOrdinal     int
	Body             string
	ProducedBy       string
	BasedOnVersionID string
	HumanFeedback    string
	Metadata         map[string]string
	CreatedAt        time.Time
}

// NewSource carries the fields required to persist a source document.
type NewSource struct {
	Body           string
	Title          string
	SequenceNumber int
	OriginLocator  string
}

// NewVersion carries the fields required to persist a derived version.
type NewVersion struct {
	ContentID        string
	Stage            Stage
	Body             string
	ProducedBy       string
	BasedOnVersionID string
	HumanFeedback    string
	Metadata         map[string]string
}

// ProcessStatus is the lifecycle of an orchestration run.
type ProcessStatus string

const (
	ProcessRunning   ProcessStatus = "running"
	ProcessCompleted ProcessStatus = "completed"
	ProcessFailed    ProcessStatus = "failed"
)

// ItemStatus is the per-item outcome inside a run.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
)

// ItemResult records the outcome for one harvested item within a run.
type ItemResult struct {
	ContentID  string            `json:"content_id"`
	Title      string            `json:"title"`
	Status     ItemStatus        `json:"status"`
	Error      string            `json:"error,omitempty"`
	VersionIDs map[string]string `json:"version_ids,omitempty"`
	Seconds    float64           `json:"seconds"`
}

// Metrics aggregates counters across a run.
type Metrics struct {
	ItemsProcessed  int                `json:"items_processed"`
	TotalCharacters int                `json:"total_characters"`
	StageSeconds    map[string]float64 `json:"stage_seconds,omitempty"`
}

// ProcessRecord is the aggregate artifact of one orchestration run. It is
// created at run start, mutated only by the owning run, and persisted once
// terminal.
type ProcessRecord struct {
	ProcessID   string       `json:"process_id"`
	Status      ProcessStatus `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	EndedAt     *time.Time   `json:"ended_at,omitempty"`
	Error       string       `json:"error,omitempty"`
	ItemResults []ItemResult `json:"item_results,omitempty"`
	Metrics     Metrics      `json:"metrics"`
}

// Terminal reports whether the record reached a final status.
func (r *ProcessRecord) Terminal() bool {
	return r != nil && (r.Status == ProcessCompleted || r.Status == ProcessFailed)
}
