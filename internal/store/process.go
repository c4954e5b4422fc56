package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PutProcessRecord upserts the record for an orchestration run. The record is
// owned by the run that created it; other writers never touch the same id.
func (s *Store) PutProcessRecord(ctx context.Context, record *ProcessRecord) error {
	if record == nil {
		return errors.New("process record is nil")
	}
	if record.ProcessID == "" {
		return errors.New("process record id must not be empty")
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal process record: %w", err)
	}

	var endedAt any
	if record.EndedAt != nil {
		endedAt = record.EndedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO process_records (id, status, started_at, ended_at, record_json, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             status = excluded.status,
             ended_at = excluded.ended_at,
             record_json = excluded.record_json,
             updated_at = excluded.updated_at`,
		record.ProcessID,
		record.Status,
		record.StartedAt.UTC().Format(time.RFC3339Nano),
		endedAt,
		string(encoded),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert process record: %w", err)
	}
	return nil
}

// GetProcessRecord fetches a persisted run record by process id. It returns
// (nil, nil) when the id does not resolve.
func (s *Store) GetProcessRecord(ctx context.Context, processID string) (*ProcessRecord, error) {
	var recordJSON string
	row := s.db.QueryRowContext(ctx, `SELECT record_json FROM process_records WHERE id = ?`, processID)
	if err := row.Scan(&recordJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get process record: %w", err)
	}

	var record ProcessRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, fmt.Errorf("decode process record: %w", err)
	}
	return &record, nil
}

// ListProcessRecords returns persisted run records ordered newest first.
func (s *Store) ListProcessRecords(ctx context.Context, limit int) ([]*ProcessRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT record_json FROM process_records ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list process records: %w", err)
	}
	defer rows.Close()

	var records []*ProcessRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, err
		}
		var record ProcessRecord
		if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
			return nil, fmt.Errorf("decode process record: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}
