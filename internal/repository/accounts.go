package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/harlowfield/tradevine/internal/domain"
)

const connectedAccountColumns = `owner_user_id, external_account_id,
	onboarding_complete, charges_enabled, created_at, updated_at`

func scanConnectedAccount(row interface{ Scan(...interface{}) error }) (*domain.ConnectedAccount, error) {
	var a domain.ConnectedAccount
	err := row.Scan(
		&a.OwnerUserID,
		&a.ExternalAccountID,
		&a.OnboardingComplete,
		&a.ChargesEnabled,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const getConnectedAccountByOwner = `
SELECT ` + connectedAccountColumns + ` FROM connected_accounts WHERE owner_user_id = $1`

func (q *Queries) GetConnectedAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.ConnectedAccount, error) {
	return scanConnectedAccount(q.db.QueryRowContext(ctx, getConnectedAccountByOwner, ownerID))
}

// UpsertConnectedAccount provisions (or re-provisions) the payee's
// external account. On conflict the flags reset to false: this is the one
// place the monotonic flags may legitimately go back to false, because
// the account itself was superseded after the processor reported the old
// ID missing.
const upsertConnectedAccount = `
INSERT INTO connected_accounts (owner_user_id, external_account_id, onboarding_complete, charges_enabled)
VALUES ($1, $2, false, false)
ON CONFLICT (owner_user_id) DO UPDATE
SET external_account_id = EXCLUDED.external_account_id,
	onboarding_complete = false,
	charges_enabled = false,
	updated_at = now()
RETURNING ` + connectedAccountColumns

type UpsertConnectedAccountParams struct {
	OwnerUserID       uuid.UUID
	ExternalAccountID string
}

func (q *Queries) UpsertConnectedAccount(ctx context.Context, arg UpsertConnectedAccountParams) (*domain.ConnectedAccount, error) {
	return scanConnectedAccount(q.db.QueryRowContext(ctx, upsertConnectedAccount,
		arg.OwnerUserID, arg.ExternalAccountID))
}

// RaiseConnectedAccountFlags is a monotonic OR: it can set flags, never
// clear them. Safe to call from any background sync.
const raiseConnectedAccountFlags = `
UPDATE connected_accounts
SET onboarding_complete = onboarding_complete OR $2,
	charges_enabled = charges_enabled OR $3,
	updated_at = now()
WHERE owner_user_id = $1`

type RaiseConnectedAccountFlagsParams struct {
	OwnerUserID        uuid.UUID
	OnboardingComplete bool
	ChargesEnabled     bool
}

func (q *Queries) RaiseConnectedAccountFlags(ctx context.Context, arg RaiseConnectedAccountFlagsParams) error {
	_, err := q.db.ExecContext(ctx, raiseConnectedAccountFlags,
		arg.OwnerUserID, arg.OnboardingComplete, arg.ChargesEnabled)
	return err
}
