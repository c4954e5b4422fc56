package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const sourceColumns = "id, title, sequence_number, origin_locator, body, created_at"

// CreateSource persists one ContentItem and returns it. Each call produces a
// fresh id even for identical content; the store never deduplicates.
func (s *Store) CreateSource(ctx context.Context, src NewSource) (*ContentItem, error) {
	if strings.TrimSpace(src.Body) == "" {
		return nil, ErrEmptyBody
	}
	title := strings.TrimSpace(src.Title)
	if title == "" {
		title = "Untitled"
	}

	id := s.ids.Content(src.Body)
	now := time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sources (id, title, sequence_number, origin_locator, body, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		title,
		nullableInt(src.SequenceNumber),
		nullableString(src.OriginLocator),
		src.Body,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}

	return s.GetContent(ctx, id)
}

// GetContent fetches a ContentItem by identifier. It returns (nil, nil) when
// the id does not resolve.
func (s *Store) GetContent(ctx context.Context, id string) (*ContentItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	item, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	return item, nil
}

// ListSources returns source items ordered by insertion. Limit bounds the
// page size (0 means a default of 100); offset skips preceding rows.
func (s *Store) ListSources(ctx context.Context, limit, offset int) ([]*ContentItem, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+sourceColumns+` FROM sources ORDER BY rowid LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var items []*ContentItem
	for rows.Next() {
		item, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountSources returns the total number of stored source items.
func (s *Store) CountSources(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sources`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count sources: %w", err)
	}
	return count, nil
}

func scanSource(scanner interface{ Scan(dest ...any) error }) (*ContentItem, error) {
	var (
		id         string
		title      string
		seqNum     sql.NullInt64
		origin     sql.NullString
		body       string
		createdRaw sql.NullString
	)

	if err := scanner.Scan(&id, &title, &seqNum, &origin, &body, &createdRaw); err != nil {
		return nil, err
	}

	item := &ContentItem{
		ID:            id,
		Title:         title,
		OriginLocator: origin.String,
		Body:          body,
	}
	if seqNum.Valid {
		item.SequenceNumber = int(seqNum.Int64)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	return item, nil
}
