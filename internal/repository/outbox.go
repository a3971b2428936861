package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationJob is a row in the notification outbox. Notifications are
// enqueued after the primary transaction commits and delivered by the
// background worker, so a slow or failing mail server never affects an
// API response or a webhook acknowledgement.
type NotificationJob struct {
	ID         uuid.UUID
	NotifyType string
	Payload    json.RawMessage
	Status     string
	Attempts   int32
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const enqueueNotification = `
INSERT INTO notification_jobs (id, notify_type, payload, status)
VALUES ($1, $2, $3, 'pending')`

type EnqueueNotificationParams struct {
	ID         uuid.UUID
	NotifyType string
	Payload    json.RawMessage
}

func (q *Queries) EnqueueNotification(ctx context.Context, arg EnqueueNotificationParams) error {
	_, err := q.db.ExecContext(ctx, enqueueNotification, arg.ID, arg.NotifyType, []byte(arg.Payload))
	return err
}

// DequeueNotifications claims a batch of pending jobs. SKIP LOCKED lets
// multiple worker processes poll without contending.
const dequeueNotifications = `
UPDATE notification_jobs
SET status = 'processing', updated_at = now()
WHERE id IN (
	SELECT id FROM notification_jobs
	WHERE status = 'pending'
	ORDER BY created_at
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, notify_type, payload, status, attempts, last_error, created_at, updated_at`

func (q *Queries) DequeueNotifications(ctx context.Context, limit int32) ([]NotificationJob, error) {
	rows, err := q.db.QueryContext(ctx, dequeueNotifications, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []NotificationJob
	for rows.Next() {
		var j NotificationJob
		var payload []byte
		if err := rows.Scan(&j.ID, &j.NotifyType, &payload, &j.Status,
			&j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		j.Payload = payload
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

const markNotificationSent = `
UPDATE notification_jobs SET status = 'sent', updated_at = now() WHERE id = $1`

func (q *Queries) MarkNotificationSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markNotificationSent, id)
	return err
}

// MarkNotificationFailed re-queues the job until maxAttempts is reached,
// then parks it as failed.
const markNotificationFailed = `
UPDATE notification_jobs
SET attempts = attempts + 1,
	last_error = $2,
	status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END,
	updated_at = now()
WHERE id = $1`

type MarkNotificationFailedParams struct {
	ID          uuid.UUID
	LastError   string
	MaxAttempts int32
}

func (q *Queries) MarkNotificationFailed(ctx context.Context, arg MarkNotificationFailedParams) error {
	_, err := q.db.ExecContext(ctx, markNotificationFailed, arg.ID, arg.LastError, arg.MaxAttempts)
	return err
}

// RecoverStaleNotifications resets jobs stuck in processing after a
// worker crash.
const recoverStaleNotifications = `
UPDATE notification_jobs
SET status = 'pending', updated_at = now()
WHERE status = 'processing' AND updated_at < now() - make_interval(secs => $1)`

func (q *Queries) RecoverStaleNotifications(ctx context.Context, thresholdSeconds float64) (int64, error) {
	res, err := q.db.ExecContext(ctx, recoverStaleNotifications, thresholdSeconds)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
