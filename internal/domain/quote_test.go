package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

func TestQuoteParams_Validate(t *testing.T) {
	vatRate := 20.0
	negativeVAT := -1.0

	testCases := []struct {
		name    string
		params  QuoteParams
		wantErr string
	}{
		{"valid minimal", QuoteParams{Price: 20000}, ""},
		{"valid with deposit", QuoteParams{Price: 20000, DepositAmount: 5000}, ""},
		{"deposit equals price", QuoteParams{Price: 20000, DepositAmount: 20000}, ""},
		{"zero price", QuoteParams{Price: 0}, "price must be positive"},
		{"negative price", QuoteParams{Price: -100}, "price must be positive"},
		{"negative deposit", QuoteParams{Price: 100, DepositAmount: -1}, "deposit must not be negative"},
		{"deposit over price", QuoteParams{Price: 100, DepositAmount: 101}, "deposit must not exceed the price"},
		{
			"valid line items",
			QuoteParams{Price: 100, LineItems: []LineItem{
				{Description: "labour", Quantity: 2, UnitPrice: 40, VATRate: &vatRate, Unit: UnitHour},
				{Description: "materials", Quantity: 1, UnitPrice: 20},
			}},
			"",
		},
		{
			"zero quantity",
			QuoteParams{Price: 100, LineItems: []LineItem{{Quantity: 0, UnitPrice: 10}}},
			"line items must have a positive quantity",
		},
		{
			"negative unit price",
			QuoteParams{Price: 100, LineItems: []LineItem{{Quantity: 1, UnitPrice: -10}}},
			"line item unit prices must not be negative",
		},
		{
			"negative vat",
			QuoteParams{Price: 100, LineItems: []LineItem{{Quantity: 1, UnitPrice: 10, VATRate: &negativeVAT}}},
			"line item VAT rates must not be negative",
		},
		{
			"bad unit",
			QuoteParams{Price: 100, LineItems: []LineItem{{Quantity: 1, UnitPrice: 10, Unit: "week"}}},
			"line item unit must be one of hour, day, item or job",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, EINVALID, ErrorCode(err))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestQuote_DepositBranches(t *testing.T) {
	withDeposit := &Quote{Price: 20000, DepositAmount: 5000}
	assert.True(t, withDeposit.HasDeposit())
	assert.Equal(t, int64(15000), withDeposit.BalanceAmount())

	// no deposit configured is an explicit business state
	noDeposit := &Quote{Price: 20000}
	assert.False(t, noDeposit.HasDeposit())
	assert.Equal(t, int64(20000), noDeposit.BalanceAmount())
}

func TestQuoteStatus_IsActive(t *testing.T) {
	assert.True(t, QuoteStatusPending.IsActive())
	assert.True(t, QuoteStatusAccepted.IsActive())
	assert.True(t, QuoteStatusRejected.IsActive())
	assert.False(t, QuoteStatusWithdrawn.IsActive())
}

func TestJobStatus_Helpers(t *testing.T) {
	assert.True(t, JobStatusOpen.AcceptsQuotes())
	assert.True(t, JobStatusQuoted.AcceptsQuotes())
	assert.False(t, JobStatusAssigned.AcceptsQuotes())
	assert.False(t, JobStatusCompleted.AcceptsQuotes())

	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
	assert.False(t, JobStatusInProgress.IsTerminal())
}

func TestJob_OwnershipHelpers(t *testing.T) {
	customerID := mustUUID("11111111-1111-1111-1111-111111111111")
	tradespersonID := mustUUID("22222222-2222-2222-2222-222222222222")
	quoteID := mustUUID("33333333-3333-3333-3333-333333333333")

	job := &Job{
		CustomerID:      customerID,
		TradespersonID:  &tradespersonID,
		AcceptedQuoteID: &quoteID,
	}

	assert.True(t, job.IsOwnedBy(customerID))
	assert.False(t, job.IsOwnedBy(tradespersonID))
	assert.True(t, job.IsAssignedTo(tradespersonID))
	assert.True(t, job.HasAcceptedQuote(quoteID))
	assert.False(t, job.HasAcceptedQuote(customerID))

	unassigned := &Job{CustomerID: customerID}
	assert.False(t, unassigned.IsAssignedTo(tradespersonID))
	assert.False(t, unassigned.HasAcceptedQuote(quoteID))
}
