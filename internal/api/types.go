// Package api defines the JSON payloads exchanged over the daemon HTTP API.
package api

import (
	"time"

	"quill/internal/store"
)

// ContentSummary is the list representation of a stored content item.
type ContentSummary struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	SequenceNumber int    `json:"sequence_number,omitempty"`
	OriginLocator  string `json:"origin_locator,omitempty"`
	CreatedAt      string `json:"created_at"`
	Characters     int    `json:"characters"`
}

// ContentDetail is the full representation. When a stage was requested the
// Version field carries that stage's latest version; Body always holds the
// text the caller asked for (stage version body, or the raw source).
type ContentDetail struct {
	ContentSummary
	Body     string          `json:"body"`
	Stage    string          `json:"stage,omitempty"`
	Version  *VersionPayload `json:"version,omitempty"`
	Versions int             `json:"versions"`
}

// VersionPayload is the wire form of a stored version.
type VersionPayload struct {
	ID               string            `json:"id"`
	ContentID        string            `json:"content_id"`
	Stage            string            `json:"stage"`
	StageOrdinal     int               `json:"stage_ordinal"`
	Body             string            `json:"body"`
	ProducedBy       string            `json:"produced_by,omitempty"`
	BasedOnVersionID string            `json:"based_on_version_id,omitempty"`
	HumanFeedback    string            `json:"human_feedback,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        string            `json:"created_at"`
}

// ContentListResponse wraps the content listing.
type ContentListResponse struct {
	Items []ContentSummary `json:"items"`
	Total int              `json:"total"`
}

// VersionListResponse wraps a content item's version history.
type VersionListResponse struct {
	Versions []VersionPayload `json:"versions"`
}

// StartProcessRequest begins an orchestration run.
type StartProcessRequest struct {
	StartLocator string `json:"start_locator"`
}

// StartProcessResponse acknowledges a started run.
type StartProcessResponse struct {
	ProcessID string `json:"process_id"`
	Status    string `json:"status"`
}

// RefineRequest asks for a feedback-driven revision of a content item.
type RefineRequest struct {
	Feedback string `json:"feedback"`
}

// SearchResult is one ranked hit from the search endpoint.
type SearchResult struct {
	ContentID string  `json:"content_id"`
	Title     string  `json:"title"`
	Stage     string  `json:"stage"`
	Score     float64 `json:"score"`
	Excerpt   string  `json:"excerpt"`
}

// SearchResponse wraps ranked search hits.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// DaemonStatus reports daemon runtime information.
type DaemonStatus struct {
	Running         bool                   `json:"running"`
	PID             int                    `json:"pid"`
	DatabasePath    string                 `json:"database_path"`
	LockFilePath    string                 `json:"lock_file_path"`
	ContentItems    int                    `json:"content_items"`
	ActiveProcesses []*store.ProcessRecord `json:"active_processes,omitempty"`
	Processor       string                 `json:"processor"`
}

// FromVersion converts a stored version into its wire form.
func FromVersion(v *store.Version) *VersionPayload {
	if v == nil {
		return nil
	}
	return &VersionPayload{
		ID:               v.ID,
		ContentID:        v.ContentID,
		Stage:            string(v.Stage),
		StageOrdinal:     v.StageOrdinal,
		Body:             v.Body,
		ProducedBy:       v.ProducedBy,
		BasedOnVersionID: v.BasedOnVersionID,
		HumanFeedback:    v.HumanFeedback,
		Metadata:         v.Metadata,
		CreatedAt:        v.CreatedAt.Format(time.RFC3339),
	}
}

// FromContent converts a stored content item into its list form.
func FromContent(item *store.ContentItem) ContentSummary {
	return ContentSummary{
		ID:             item.ID,
		Title:          item.Title,
		SequenceNumber: item.SequenceNumber,
		OriginLocator:  item.OriginLocator,
		CreatedAt:      item.CreatedAt.Format(time.RFC3339),
		Characters:     len(item.Body),
	}
}
