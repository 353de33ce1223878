package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/recruit/internal/models"
)

// DefaultJobLease is how long a job stays claimed by one worker.
const DefaultJobLease = 10 * time.Minute

// The jobs tables keep Unix seconds, unlike the domain tables.
const jobColumns = `id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`

func scanJob(s rowScanner) (*models.BackgroundJob, error) {
	var (
		j                           models.BackgroundJob
		payload, lastError          sql.NullString
		nextTry                     sql.NullInt64
		scheduled, created, updated int64
	)
	if err := s.Scan(&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &j.MaxAttempts, &j.Priority, &scheduled, &nextTry, &lastError, &created, &updated); err != nil {
		return nil, err
	}
	if payload.Valid {
		j.Payload = json.RawMessage(payload.String)
	}
	if nextTry.Valid {
		t := time.Unix(nextTry.Int64, 0).UTC()
		j.NextTryAt = &t
	}
	j.LastError = lastError.String
	j.ScheduledAt = time.Unix(scheduled, 0).UTC()
	j.Created = time.Unix(created, 0).UTC()
	j.Updated = time.Unix(updated, 0).UTC()
	return &j, nil
}

// Enqueue stores j as queued. Zero MaxAttempts becomes 5 and a zero
// ScheduledAt means now.
func (r *SQLiteRepo) Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error) {
	if j == nil {
		return 0, fmt.Errorf("job is nil")
	}
	if j.Type == "" {
		return 0, fmt.Errorf("job type is required")
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = 5
	}
	ts := time.Now().UTC()
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = ts
	}
	j.Status = models.JobQueued

	res, err := r.conn.Exec(ctx, `INSERT INTO jobs (type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.Type, string(j.Payload), j.Status, j.Attempts, j.MaxAttempts, j.Priority, j.ScheduledAt.Unix(), ts.Unix(), ts.Unix())
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", j.Type, err)
	}
	return res.LastInsertId()
}

// FetchNext claims the most urgent due job by marking it running and returns
// it, or nil when nothing is due. A running job whose lease has expired is
// claimable again, so work held by a crashed worker is picked up.
func (r *SQLiteRepo) FetchNext(ctx context.Context) (*models.BackgroundJob, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-r.jobLease).Unix()

	row := r.conn.QueryRow(ctx, `UPDATE jobs SET status = 'running', updated = ?
WHERE id = (
	SELECT id FROM jobs
	WHERE (status IN ('queued', 'retry') AND COALESCE(next_try_at, 0) <= ? AND scheduled_at <= ?)
	   OR (status = 'running' AND updated <= ?)
	ORDER BY priority ASC, scheduled_at ASC, id ASC
	LIMIT 1
)
RETURNING `+jobColumns, now.Unix(), now.Unix(), now.Unix(), staleBefore)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return j, nil
}

// UpdateJob records the outcome of a run: status, attempts, retry time and error.
func (r *SQLiteRepo) UpdateJob(ctx context.Context, j *models.BackgroundJob) error {
	var nextTry any
	if j.NextTryAt != nil {
		nextTry = j.NextTryAt.Unix()
	}
	_, err := r.conn.Exec(ctx, `UPDATE jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`,
		j.Status, j.Attempts, nextTry, j.LastError, time.Now().UTC().Unix(), j.ID)
	if err != nil {
		return fmt.Errorf("update job %d: %w", j.ID, err)
	}
	return nil
}

// MoveToDeadLetter copies j into dead_letter_jobs and removes it from the queue.
func (r *SQLiteRepo) MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO dead_letter_jobs (job_id, type, payload, attempts, last_error, failed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, time.Now().UTC().Unix()); err != nil {
		return fmt.Errorf("insert dead letter for job %d: %w", j.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID); err != nil {
		return fmt.Errorf("delete job %d: %w", j.ID, err)
	}
	return tx.Commit()
}

// CountDeadLetters reports how many jobs of type typ gave up.
func (r *SQLiteRepo) CountDeadLetters(ctx context.Context, typ string) (int64, error) {
	var n int64
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_jobs WHERE type = ?`, typ).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
