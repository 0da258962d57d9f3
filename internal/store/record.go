package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateRecord inserts a record of the given kind with a fresh id.
func (db *DB) CreateRecord(ctx context.Context, kind string, fields map[string]any) (*Record, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	now := time.Now().UnixMilli()
	r := &Record{Kind: kind, ID: uuid.NewString(), Fields: fields, CreatedAt: now, UpdatedAt: now}
	_, err = db.ExecContext(ctx, `
		INSERT INTO records (kind, id, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.Kind, r.ID, string(raw), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRecord returns the record or nil when it does not exist.
func (db *DB) GetRecord(ctx context.Context, kind, id string) (*Record, error) {
	return getRecord(ctx, db.DB, kind, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q queryRower, kind, id string) (*Record, error) {
	var r Record
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT kind, id, fields, created_at, updated_at
		FROM records WHERE kind = ? AND id = ?`, kind, id).
		Scan(&r.Kind, &r.ID, &raw, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &r.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s/%s: %w", kind, id, err)
	}
	return &r, nil
}

// UpdateRecord merges fields into an existing record. A nil value deletes
// the field.
func (db *DB) UpdateRecord(ctx context.Context, kind, id string, fields map[string]any) (*Record, error) {
	var out *Record
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		r, err := getRecord(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%s/%s: %w", kind, id, ErrRecordNotFound)
		}
		if r.Fields == nil {
			r.Fields = map[string]any{}
		}
		for k, v := range fields {
			if v == nil {
				delete(r.Fields, k)
				continue
			}
			r.Fields[k] = v
		}
		raw, err := json.Marshal(r.Fields)
		if err != nil {
			return fmt.Errorf("encode fields: %w", err)
		}
		r.UpdatedAt = time.Now().UnixMilli()
		if _, err := tx.ExecContext(ctx, `
			UPDATE records SET fields = ?, updated_at = ? WHERE kind = ? AND id = ?`,
			string(raw), r.UpdatedAt, kind, id); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// ListRecords returns records of a kind, oldest first.
func (db *DB) ListRecords(ctx context.Context, kind string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT kind, id, fields, created_at, updated_at
		FROM records WHERE kind = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`, kind, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var r Record
		var raw string
		if err := rows.Scan(&r.Kind, &r.ID, &raw, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &r.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s/%s: %w", r.Kind, r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StringFields flattens a record's fields into template values. Strings
// are used as-is; other scalars are formatted with JSON encoding.
func (r *Record) StringFields() map[string]string {
	out := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
		default:
			b, err := json.Marshal(t)
			if err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}
