package store

import "context"

// AppendSendLog records one dispatch attempt.
func (db *DB) AppendSendLog(ctx context.Context, e *SendLogEntry) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO send_log (message_id, recipient, body, status, delivery_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.MessageID, e.Recipient, e.Body, string(e.Status), e.DeliveryID, e.Error, e.CreatedAt)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

// ListSendLog returns attempts newest first.
func (db *DB) ListSendLog(ctx context.Context, limit, offset int) ([]SendLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, message_id, recipient, body, status, delivery_id, error, created_at
		FROM send_log
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SendLogEntry
	for rows.Next() {
		var e SendLogEntry
		var status string
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Recipient, &e.Body, &status, &e.DeliveryID, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = SendStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountSendLog counts attempts with the given status at or after sinceMs.
func (db *DB) CountSendLog(ctx context.Context, status SendStatus, sinceMs int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM send_log WHERE status = ? AND created_at >= ?`,
		string(status), sinceMs).Scan(&n)
	return n, err
}
