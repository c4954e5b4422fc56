package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const versionColumns = "id, content_id, stage, stage_ordinal, body, produced_by, based_on_version_id, human_feedback, metadata_json, created_at"

// CreateVersion appends a new Version for an existing content item. It never
// overwrites: every call adds a row whose stage ordinal is the running count
// of versions for (content id, stage) plus one, computed inside the insert
// transaction so concurrent appends cannot share an ordinal.
func (s *Store) CreateVersion(ctx context.Context, v NewVersion) (*Version, error) {
	if strings.TrimSpace(v.Body) == "" {
		return nil, ErrEmptyBody
	}
	stage := Stage(strings.ToLower(strings.TrimSpace(string(v.Stage))))
	if stage == "" {
		return nil, errors.New("stage must not be empty")
	}

	var metadataJSON string
	if len(v.Metadata) > 0 {
		encoded, err := json.Marshal(v.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal version metadata: %w", err)
		}
		metadataJSON = string(encoded)
	}

	id := s.ids.Version(v.ContentID, string(stage))
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin version tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	row := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sources WHERE id = ?`, v.ContentID)
	if err := row.Scan(&exists); err != nil {
		return nil, fmt.Errorf("check content id: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("create version for %q: %w", v.ContentID, ErrUnknownContent)
	}

	var ordinal int
	row = tx.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM versions WHERE content_id = ? AND stage = ?`,
		v.ContentID,
		stage,
	)
	if err := row.Scan(&ordinal); err != nil {
		return nil, fmt.Errorf("count stage versions: %w", err)
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO versions (
            id, content_id, stage, stage_ordinal, body, produced_by,
            based_on_version_id, human_feedback, metadata_json, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		v.ContentID,
		stage,
		ordinal+1,
		v.Body,
		nullableString(v.ProducedBy),
		nullableString(v.BasedOnVersionID),
		nullableString(v.HumanFeedback),
		nullableString(metadataJSON),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit version: %w", err)
	}

	return s.GetVersion(ctx, id)
}

// GetVersion fetches a Version by identifier. It returns (nil, nil) when the
// id does not resolve.
func (s *Store) GetVersion(ctx context.Context, id string) (*Version, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id = ?`, id)
	version, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// GetLatestVersion returns the most recent Version for (content id, stage):
// greatest created_at, ties broken by insertion order rather than wall clock.
// It returns (nil, nil) when no version matches.
func (s *Store) GetLatestVersion(ctx context.Context, contentID string, stage Stage) (*Version, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+versionColumns+` FROM versions
         WHERE content_id = ? AND stage = ?
         ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		contentID,
		stage,
	)
	version, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest version: %w", err)
	}
	return version, nil
}

// ListVersions returns versions for a content item ordered by created_at
// ascending, insertion order on ties. An empty stage matches every stage.
// Result size is unbounded for a single content item; callers page with
// limit/offset when histories grow large.
func (s *Store) ListVersions(ctx context.Context, contentID string, stage Stage, limit, offset int) ([]*Version, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var (
		rows *sql.Rows
		err  error
	)
	base := `SELECT ` + versionColumns + ` FROM versions WHERE content_id = ?`
	order := ` ORDER BY created_at ASC, rowid ASC LIMIT ? OFFSET ?`
	if stage == "" {
		rows, err = s.db.QueryContext(ctx, base+order, contentID, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, base+` AND stage = ?`+order, contentID, stage, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// CountVersions returns the number of versions recorded for a content item.
func (s *Store) CountVersions(ctx context.Context, contentID string) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM versions WHERE content_id = ?`, contentID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return count, nil
}

func scanVersion(scanner interface{ Scan(dest ...any) error }) (*Version, error) {
	var (
		id          string
		contentID   string
		stageStr    string
		ordinal     int
		body        string
		producedBy  sql.NullString
		basedOn     sql.NullString
		feedback    sql.NullString
		metadataRaw sql.NullString
		createdRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&contentID,
		&stageStr,
		&ordinal,
		&body,
		&producedBy,
		&basedOn,
		&feedback,
		&metadataRaw,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	version := &Version{
		ID:               id,
		ContentID:        contentID,
		Stage:            Stage(stageStr),
		StageOrdinal:     ordinal,
		Body:             body,
		ProducedBy:       producedBy.String,
		BasedOnVersionID: basedOn.String,
		HumanFeedback:    feedback.String,
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		metadata := map[string]string{}
		if err := json.Unmarshal([]byte(metadataRaw.String), &metadata); err == nil {
			version.Metadata = metadata
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		version.CreatedAt = created
	}
	return version, nil
}
