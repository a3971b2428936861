package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/repository"
)

// mockOrderStore implements OrderStore for testing.
type mockOrderStore struct {
	ExistsFunc   func(ctx context.Context, externalPaymentID string) (bool, error)
	ProductsFunc func(ctx context.Context, ids []uuid.UUID) ([]*domain.Product, error)
	CreateFunc   func(ctx context.Context, order repository.CreateOrderParams, items []repository.CreateOrderItemParams) (bool, error)
}

func (m *mockOrderStore) OrderExists(ctx context.Context, externalPaymentID string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, externalPaymentID)
	}
	return false, nil
}

func (m *mockOrderStore) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Product, error) {
	if m.ProductsFunc != nil {
		return m.ProductsFunc(ctx, ids)
	}
	return nil, errors.New("ProductsFunc not implemented")
}

func (m *mockOrderStore) CreateOrderWithItems(ctx context.Context, order repository.CreateOrderParams, items []repository.CreateOrderItemParams) (bool, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, order, items)
	}
	return true, nil
}

func catalog(products ...*domain.Product) func(ctx context.Context, ids []uuid.UUID) ([]*domain.Product, error) {
	return func(ctx context.Context, ids []uuid.UUID) ([]*domain.Product, error) {
		return products, nil
	}
}

func TestApplyStorefrontPayment_PricesFromCatalog(t *testing.T) {
	spanner := &domain.Product{ID: uuid.New(), Name: "Adjustable spanner", Price: 1500}
	store := &mockOrderStore{ProductsFunc: catalog(spanner)}
	svc := NewOrderService(store, testLogger())

	order, err := svc.ApplyStorefrontPayment(context.Background(), StorefrontPaymentParams{
		ExternalPaymentID: "pi_shop_1",
		CustomerEmail:     "shopper@example.com",
		Items:             []StorefrontItem{{ProductID: spanner.ID, Quantity: 2}},
	})

	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, int64(3000), order.Subtotal)
	assert.Equal(t, int64(600), order.Tax, "20% VAT on the subtotal")
	assert.Equal(t, int64(499), order.Shipping, "standard shipping under the free threshold")
	assert.Equal(t, int64(4099), order.Total)
}

func TestApplyStorefrontPayment_FreeShippingOverThreshold(t *testing.T) {
	drill := &domain.Product{ID: uuid.New(), Name: "Cordless drill", Price: 6000}
	store := &mockOrderStore{ProductsFunc: catalog(drill)}
	svc := NewOrderService(store, testLogger())

	order, err := svc.ApplyStorefrontPayment(context.Background(), StorefrontPaymentParams{
		ExternalPaymentID: "pi_shop_2",
		Items:             []StorefrontItem{{ProductID: drill.ID, Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Zero(t, order.Shipping)
	assert.Equal(t, int64(6000+1200), order.Total)
}

func TestApplyStorefrontPayment_AggregatesDuplicateLines(t *testing.T) {
	tape := &domain.Product{ID: uuid.New(), Name: "PTFE tape", Price: 250}
	store := &mockOrderStore{ProductsFunc: catalog(tape)}
	svc := NewOrderService(store, testLogger())

	order, err := svc.ApplyStorefrontPayment(context.Background(), StorefrontPaymentParams{
		ExternalPaymentID: "pi_shop_3",
		Items: []StorefrontItem{
			{ProductID: tape.ID, Quantity: 1},
			{ProductID: tape.ID, Quantity: 2},
		},
	})

	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(3), order.Items[0].Quantity)
	assert.Equal(t, int64(750), order.Subtotal)
}

func TestApplyStorefrontPayment_UnknownProductsSkipped(t *testing.T) {
	known := &domain.Product{ID: uuid.New(), Name: "Work gloves", Price: 800}
	store := &mockOrderStore{ProductsFunc: catalog(known)}
	svc := NewOrderService(store, testLogger())

	order, err := svc.ApplyStorefrontPayment(context.Background(), StorefrontPaymentParams{
		ExternalPaymentID: "pi_shop_4",
		Items: []StorefrontItem{
			{ProductID: known.ID, Quantity: 1},
			{ProductID: uuid.New(), Quantity: 5}, // not in the catalog
		},
	})

	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, known.ID, order.Items[0].ProductID)
}

func TestApplyStorefrontPayment_NoValidItems(t *testing.T) {
	store := &mockOrderStore{ProductsFunc: catalog()}
	svc := NewOrderService(store, testLogger())

	_, err := svc.ApplyStorefrontPayment(context.Background(), StorefrontPaymentParams{
		ExternalPaymentID: "pi_shop_5",
		Items:             []StorefrontItem{{ProductID: uuid.New(), Quantity: 1}},
	})

	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestApplyStorefrontPayment_DuplicateDeliveryAbsorbed(t *testing.T) {
	created := false
	store := &mockOrderStore{
		ExistsFunc: func(ctx context.Context, externalPaymentID string) (bool, error) {
			return true, nil
		},
		CreateFunc: func(ctx context.Context, order repository.CreateOrderParams, items []repository.CreateOrderItemParams) (bool, error) {
			created = true
			return true, nil
		},
	}
	svc := NewOrderService(store, testLogger())

	order, err := svc.ApplyStorefrontPayment(context.Background(), StorefrontPaymentParams{
		ExternalPaymentID: "pi_shop_6",
		Items:             []StorefrontItem{{ProductID: uuid.New(), Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Nil(t, order)
	assert.False(t, created)
}

func TestApplyStorefrontPayment_ConcurrentInsertLosesGracefully(t *testing.T) {
	widget := &domain.Product{ID: uuid.New(), Name: "Widget", Price: 1000}
	store := &mockOrderStore{
		ProductsFunc: catalog(widget),
		CreateFunc: func(ctx context.Context, order repository.CreateOrderParams, items []repository.CreateOrderItemParams) (bool, error) {
			return false, nil // unique index absorbed the insert
		},
	}
	svc := NewOrderService(store, testLogger())

	order, err := svc.ApplyStorefrontPayment(context.Background(), StorefrontPaymentParams{
		ExternalPaymentID: "pi_shop_7",
		Items:             []StorefrontItem{{ProductID: widget.ID, Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Nil(t, order)
}
