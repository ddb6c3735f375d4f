package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/starford/heirloom/internal/models"
)

const defaultLogLimit = 50

// AppendActivity appends one audit entry outside any plan mutation.
func (db *DB) AppendActivity(ctx context.Context, a models.Activity) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := insertActivity(ctx, tx, a); err != nil {
		return err
	}
	return tx.Commit()
}

// ListActivities returns the most recent activities for owner in append order.
func (db *DB) ListActivities(ctx context.Context, owner string, limit int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, owner_address, type, description, metadata, created_at FROM (
			SELECT * FROM activities WHERE owner_address = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list activities: %w", err)
	}
	defer rows.Close()

	out := []models.Activity{}
	for rows.Next() {
		var (
			a    models.Activity
			meta string
			at   int64
		)
		if err := rows.Scan(&a.ID, &a.OwnerAddress, &a.Type, &a.Description, &meta, &at); err != nil {
			return nil, err
		}
		if meta != "" && meta != "{}" {
			_ = json.Unmarshal([]byte(meta), &a.Metadata)
		}
		a.Timestamp = fromMillis(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListCheckIns returns the most recent check-ins for owner in append order.
func (db *DB) ListCheckIns(ctx context.Context, owner string, limit int) ([]models.CheckIn, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, owner_address, created_at, seconds_since_last, timeliness_percent, triggered_by, note FROM (
			SELECT * FROM check_ins WHERE owner_address = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list check-ins: %w", err)
	}
	defer rows.Close()

	out := []models.CheckIn{}
	for rows.Next() {
		var (
			c  models.CheckIn
			at int64
		)
		if err := rows.Scan(&c.ID, &c.OwnerAddress, &at, &c.SecondsSinceLast, &c.TimelinessPercent,
			&c.TriggeredBy, &c.Note); err != nil {
			return nil, err
		}
		c.Timestamp = fromMillis(at)
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertActivity(ctx context.Context, tx *sql.Tx, a models.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	meta := []byte("{}")
	if len(a.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(a.Metadata); err != nil {
			return fmt.Errorf("store: encode activity metadata: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO activities (id, owner_address, type, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.OwnerAddress, string(a.Type), a.Description, string(meta), toMillis(a.Timestamp))
	if err != nil {
		return fmt.Errorf("store: insert activity: %w", err)
	}
	return nil
}

func insertCheckIn(ctx context.Context, tx *sql.Tx, c models.CheckIn) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO check_ins (id, owner_address, created_at, seconds_since_last, timeliness_percent, triggered_by, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.OwnerAddress, toMillis(c.Timestamp), c.SecondsSinceLast, c.TimelinessPercent, c.TriggeredBy, c.Note)
	if err != nil {
		return fmt.Errorf("store: insert check-in: %w", err)
	}
	return nil
}
