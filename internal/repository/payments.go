package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/harlowfield/tradevine/internal/domain"
)

// InsertPaymentRecord records a captured payment. The unique indexes on
// (job_id, payment_type) and external_payment_id make the insert
// idempotent: a duplicate webhook delivery inserts nothing and returns
// false, which the reconciler treats as a no-op rather than an error.
const insertPaymentRecord = `
INSERT INTO payment_records (id, job_id, payment_type, external_payment_id, amount, paid_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING`

type InsertPaymentRecordParams struct {
	ID                uuid.UUID
	JobID             uuid.UUID
	Type              string
	ExternalPaymentID string
	Amount            int64
	PaidAt            time.Time
}

func (q *Queries) InsertPaymentRecord(ctx context.Context, arg InsertPaymentRecordParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertPaymentRecord,
		arg.ID, arg.JobID, arg.Type, arg.ExternalPaymentID, arg.Amount, arg.PaidAt)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

const paymentRecordColumns = `id, job_id, payment_type, external_payment_id, amount, paid_at`

func scanPaymentRecord(row interface{ Scan(...interface{}) error }) (*domain.PaymentRecord, error) {
	var r domain.PaymentRecord
	err := row.Scan(&r.ID, &r.JobID, &r.Type, &r.ExternalPaymentID, &r.Amount, &r.PaidAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const getPaymentRecordByExternalID = `
SELECT ` + paymentRecordColumns + ` FROM payment_records WHERE external_payment_id = $1`

func (q *Queries) GetPaymentRecordByExternalID(ctx context.Context, externalID string) (*domain.PaymentRecord, error) {
	return scanPaymentRecord(q.db.QueryRowContext(ctx, getPaymentRecordByExternalID, externalID))
}

const listPaymentRecordsByJob = `
SELECT ` + paymentRecordColumns + ` FROM payment_records WHERE job_id = $1 ORDER BY paid_at`

func (q *Queries) ListPaymentRecordsByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.PaymentRecord, error) {
	rows, err := q.db.QueryContext(ctx, listPaymentRecordsByJob, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.PaymentRecord
	for rows.Next() {
		record, err := scanPaymentRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
