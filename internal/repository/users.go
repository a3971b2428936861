package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/harlowfield/tradevine/internal/domain"
)

const userColumns = `id, email, name, phone, role, stripe_customer_id,
	subscription_status, subscription_tier, subscription_id, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Phone,
		&u.Role,
		&u.StripeCustomerID,
		&u.SubscriptionStatus,
		&u.SubscriptionTier,
		&u.SubscriptionID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByStripeCustomerID = `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`

func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByStripeCustomerID, customerID))
}

const getUserBySessionTokenHash = `
SELECT u.id, u.email, u.name, u.phone, u.role, u.stripe_customer_id,
	u.subscription_status, u.subscription_tier, u.subscription_id, u.created_at, u.updated_at
FROM users u
JOIN sessions s ON s.user_id = u.id
WHERE s.token_hash = $1 AND s.expires_at > now()`

// GetUserBySessionTokenHash resolves a hashed session token to its user.
// Sessions are issued by the external auth service; this side only reads.
func (q *Queries) GetUserBySessionTokenHash(ctx context.Context, tokenHash string) (*domain.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserBySessionTokenHash, tokenHash))
}

const updateUserStripeCustomer = `
UPDATE users SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`

type UpdateUserStripeCustomerParams struct {
	ID               uuid.UUID
	StripeCustomerID string
}

func (q *Queries) UpdateUserStripeCustomer(ctx context.Context, arg UpdateUserStripeCustomerParams) error {
	_, err := q.db.ExecContext(ctx, updateUserStripeCustomer, arg.ID, arg.StripeCustomerID)
	return err
}

const updateUserSubscription = `
UPDATE users SET subscription_status = $2, subscription_tier = $3, subscription_id = $4, updated_at = now()
WHERE id = $1`

type UpdateUserSubscriptionParams struct {
	ID                 uuid.UUID
	SubscriptionStatus string
	SubscriptionTier   string
	SubscriptionID     string
}

func (q *Queries) UpdateUserSubscription(ctx context.Context, arg UpdateUserSubscriptionParams) error {
	_, err := q.db.ExecContext(ctx, updateUserSubscription,
		arg.ID, arg.SubscriptionStatus, arg.SubscriptionTier, arg.SubscriptionID)
	return err
}

// SessionRow is retained for the auth middleware's expiry sweeps.
type SessionRow struct {
	TokenHash string
	UserID    uuid.UUID
	ExpiresAt time.Time
}

const deleteExpiredSessions = `DELETE FROM sessions WHERE expires_at <= now()`

func (q *Queries) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredSessions)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
