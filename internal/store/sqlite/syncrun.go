package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopbridge/shopbridge/internal/store"
)

// StartSyncRun inserts a running entry and returns its ID.
func (q *queries) StartSyncRun(ctx context.Context, kind, direction string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO sync_runs (kind, direction, status, started_at) VALUES (?, ?, ?, ?)",
		kind, direction, store.SyncRunRunning, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to start sync run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get sync run id: %w", err)
	}
	return id, nil
}

// FinishSyncRun closes a run with its outcome.
func (q *queries) FinishSyncRun(ctx context.Context, id int64, status string, succeeded, failed int64, message string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET status = ?, succeeded = ?, failed = ?, message = ?, finished_at = ?
		WHERE id = ?`,
		status, succeeded, failed, message, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	return requireAffected(res)
}

// LatestSyncRuns retrieves the most recent runs, newest first.
func (q *queries) LatestSyncRuns(ctx context.Context, limit int) ([]*store.SyncRun, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, kind, direction, status, succeeded, failed, message, started_at, finished_at
		FROM sync_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var out []*store.SyncRun
	for rows.Next() {
		var r store.SyncRun
		var started, finished int64
		err := rows.Scan(&r.ID, &r.Kind, &r.Direction, &r.Status,
			&r.Succeeded, &r.Failed, &r.Message, &started, &finished)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		r.StartedAt = timeOrZero(started)
		r.FinishedAt = timeOrZero(finished)
		out = append(out, &r)
	}
	return out, rows.Err()
}
