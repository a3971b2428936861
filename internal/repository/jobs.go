package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/harlowfield/tradevine/internal/domain"
)

const jobColumns = `id, customer_id, title, description, status, budget,
	accepted_quote_id, tradesperson_id, COALESCE(payment_status, ''), deletion_reason, created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*domain.Job, error) {
	var (
		j               domain.Job
		budget          sql.NullInt64
		acceptedQuoteID uuid.NullUUID
		tradespersonID  uuid.NullUUID
	)
	err := row.Scan(
		&j.ID,
		&j.CustomerID,
		&j.Title,
		&j.Description,
		&j.Status,
		&budget,
		&acceptedQuoteID,
		&tradespersonID,
		&j.PaymentStatus,
		&j.DeletionReason,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if budget.Valid {
		j.Budget = &budget.Int64
	}
	if acceptedQuoteID.Valid {
		id := acceptedQuoteID.UUID
		j.AcceptedQuoteID = &id
	}
	if tradespersonID.Valid {
		id := tradespersonID.UUID
		j.TradespersonID = &id
	}
	return &j, nil
}

const createJob = `
INSERT INTO jobs (id, customer_id, title, description, status, budget)
VALUES ($1, $2, $3, $4, 'open', $5)
RETURNING ` + jobColumns

type CreateJobParams struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	Title       string
	Description string
	Budget      *int64
}

func (q *Queries) CreateJob(ctx context.Context, arg CreateJobParams) (*domain.Job, error) {
	var budget sql.NullInt64
	if arg.Budget != nil {
		budget = sql.NullInt64{Int64: *arg.Budget, Valid: true}
	}
	return scanJob(q.db.QueryRowContext(ctx, createJob,
		arg.ID, arg.CustomerID, arg.Title, arg.Description, budget))
}

const getJob = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

func (q *Queries) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return scanJob(q.db.QueryRowContext(ctx, getJob, id))
}

const listJobsByCustomer = `
SELECT ` + jobColumns + ` FROM jobs WHERE customer_id = $1 ORDER BY created_at DESC`

func (q *Queries) ListJobsByCustomer(ctx context.Context, customerID uuid.UUID) ([]*domain.Job, error) {
	rows, err := q.db.QueryContext(ctx, listJobsByCustomer, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// AssignJob is the compare-and-set acceptance write: it only succeeds
// while the job is still quotable and unassigned. A zero row count means
// a concurrent acceptance won; the caller reloads to distinguish an
// idempotent re-accept from a conflict.
const assignJob = `
UPDATE jobs
SET status = 'assigned', accepted_quote_id = $2, tradesperson_id = $3,
	payment_status = $4, updated_at = now()
WHERE id = $1 AND status IN ('open', 'quoted') AND accepted_quote_id IS NULL`

type AssignJobParams struct {
	JobID          uuid.UUID
	QuoteID        uuid.UUID
	TradespersonID uuid.UUID
	PaymentStatus  string
}

func (q *Queries) AssignJob(ctx context.Context, arg AssignJobParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, assignJob,
		arg.JobID, arg.QuoteID, arg.TradespersonID, arg.PaymentStatus)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const completeJob = `
UPDATE jobs SET status = 'completed', updated_at = now()
WHERE id = $1 AND status = 'assigned'`

func (q *Queries) CompleteJob(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx, completeJob, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const cancelJob = `
UPDATE jobs SET status = 'cancelled', deletion_reason = $2, updated_at = now()
WHERE id = $1 AND status NOT IN ('completed', 'cancelled')`

type CancelJobParams struct {
	JobID  uuid.UUID
	Reason string
}

func (q *Queries) CancelJob(ctx context.Context, arg CancelJobParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, cancelJob, arg.JobID, arg.Reason)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const saveJob = `
INSERT INTO saved_jobs (user_id, job_id)
VALUES ($1, $2)
ON CONFLICT (user_id, job_id) DO NOTHING`

type SaveJobParams struct {
	UserID uuid.UUID
	JobID  uuid.UUID
}

// SaveJob bookmarks a job for a provider. Returns false when the job
// was already saved and the primary key absorbed the insert.
func (q *Queries) SaveJob(ctx context.Context, arg SaveJobParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, saveJob, arg.UserID, arg.JobID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

const unsaveJob = `DELETE FROM saved_jobs WHERE user_id = $1 AND job_id = $2`

func (q *Queries) UnsaveJob(ctx context.Context, arg SaveJobParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, unsaveJob, arg.UserID, arg.JobID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listSavedJobs = `
SELECT ` + jobColumns + ` FROM jobs
WHERE id IN (SELECT job_id FROM saved_jobs WHERE user_id = $1)
ORDER BY created_at DESC`

func (q *Queries) ListSavedJobs(ctx context.Context, userID uuid.UUID) ([]*domain.Job, error) {
	rows, err := q.db.QueryContext(ctx, listSavedJobs, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJobPaymentStatusIfCurrent advances the payment status only when
// the stored value still matches what the caller observed. Zero rows
// means a concurrent writer got there first; reload and re-merge.
const updateJobPaymentStatusIfCurrent = `
UPDATE jobs SET payment_status = $3, updated_at = now()
WHERE id = $1 AND COALESCE(payment_status, '') = $2`

type UpdateJobPaymentStatusParams struct {
	JobID    uuid.UUID
	Expected string
	Next     string
}

func (q *Queries) UpdateJobPaymentStatusIfCurrent(ctx context.Context, arg UpdateJobPaymentStatusParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateJobPaymentStatusIfCurrent,
		arg.JobID, arg.Expected, arg.Next)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
