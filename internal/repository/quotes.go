package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/harlowfield/tradevine/internal/domain"
)

const quoteColumns = `id, job_id, tradesperson_id, price, deposit_amount,
	line_items, status, checkout_session_id, checkout_status, created_at, updated_at`

func scanQuote(row interface{ Scan(...interface{}) error }) (*domain.Quote, error) {
	var (
		qt        domain.Quote
		lineItems pqtype.NullRawMessage
	)
	err := row.Scan(
		&qt.ID,
		&qt.JobID,
		&qt.TradespersonID,
		&qt.Price,
		&qt.DepositAmount,
		&lineItems,
		&qt.Status,
		&qt.CheckoutSessionID,
		&qt.CheckoutStatus,
		&qt.CreatedAt,
		&qt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lineItems.Valid {
		if err := json.Unmarshal(lineItems.RawMessage, &qt.LineItems); err != nil {
			return nil, fmt.Errorf("decode quote line items: %w", err)
		}
	}
	return &qt, nil
}

const createQuote = `
INSERT INTO quotes (id, job_id, tradesperson_id, price, deposit_amount, line_items, status)
VALUES ($1, $2, $3, $4, $5, $6, 'pending')
RETURNING ` + quoteColumns

type CreateQuoteParams struct {
	ID             uuid.UUID
	JobID          uuid.UUID
	TradespersonID uuid.UUID
	Price          int64
	DepositAmount  int64
	LineItems      []domain.LineItem
}

// CreateQuote inserts a pending quote. The partial unique index on
// (job_id, tradesperson_id) WHERE status <> 'withdrawn' rejects a second
// active quote from the same tradesperson; callers detect that via
// IsUniqueViolation.
func (q *Queries) CreateQuote(ctx context.Context, arg CreateQuoteParams) (*domain.Quote, error) {
	var lineItems pqtype.NullRawMessage
	if len(arg.LineItems) > 0 {
		raw, err := json.Marshal(arg.LineItems)
		if err != nil {
			return nil, fmt.Errorf("encode quote line items: %w", err)
		}
		lineItems = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}
	return scanQuote(q.db.QueryRowContext(ctx, createQuote,
		arg.ID, arg.JobID, arg.TradespersonID, arg.Price, arg.DepositAmount, lineItems))
}

const getQuote = `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`

func (q *Queries) GetQuote(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	return scanQuote(q.db.QueryRowContext(ctx, getQuote, id))
}

const listQuotesByJob = `
SELECT ` + quoteColumns + ` FROM quotes WHERE job_id = $1 ORDER BY created_at`

func (q *Queries) ListQuotesByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.Quote, error) {
	rows, err := q.db.QueryContext(ctx, listQuotesByJob, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []*domain.Quote
	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, quote)
	}
	return quotes, rows.Err()
}

// CountQuotesByTradespersonSince counts every quote the tradesperson
// submitted on any job since the given instant. Withdrawn quotes still
// count: the quota caps submissions, not open offers. Derived by query
// each time rather than a maintained counter, so it cannot drift.
const countQuotesByTradespersonSince = `
SELECT COUNT(*) FROM quotes WHERE tradesperson_id = $1 AND created_at >= $2`

type CountQuotesParams struct {
	TradespersonID uuid.UUID
	Since          time.Time
}

func (q *Queries) CountQuotesByTradespersonSince(ctx context.Context, arg CountQuotesParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countQuotesByTradespersonSince,
		arg.TradespersonID, arg.Since).Scan(&count)
	return count, err
}

const acceptQuote = `
UPDATE quotes SET status = 'accepted', updated_at = now()
WHERE id = $1 AND status = 'pending'`

func (q *Queries) AcceptQuote(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx, acceptQuote, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const withdrawQuote = `
UPDATE quotes SET status = 'withdrawn', updated_at = now()
WHERE id = $1 AND status = 'pending'`

func (q *Queries) WithdrawQuote(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx, withdrawQuote, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetQuoteCheckout records the breadcrumb for a created payment session.
// Written before the session URL is returned so a crash afterwards can be
// reconciled against the processor's own record.
const setQuoteCheckout = `
UPDATE quotes SET checkout_session_id = $2, checkout_status = $3, updated_at = now()
WHERE id = $1`

type SetQuoteCheckoutParams struct {
	ID                uuid.UUID
	CheckoutSessionID string
	CheckoutStatus    string
}

func (q *Queries) SetQuoteCheckout(ctx context.Context, arg SetQuoteCheckoutParams) error {
	_, err := q.db.ExecContext(ctx, setQuoteCheckout,
		arg.ID, arg.CheckoutSessionID, arg.CheckoutStatus)
	return err
}
