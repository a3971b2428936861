// Package service contains the business logic layer.
//
// This file implements the storefront order reconciler: it turns a
// payment-succeeded webhook for a catalog purchase into an order row.
// Prices are re-fetched from the catalog at apply time; metadata from
// the processor only identifies products and quantities.
package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/repository"
)

// OrderStore is the storefront persistence surface. Satisfied by
// *repository.Queries.
type OrderStore interface {
	OrderExists(ctx context.Context, externalPaymentID string) (bool, error)
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Product, error)
	CreateOrderWithItems(ctx context.Context, order repository.CreateOrderParams, items []repository.CreateOrderItemParams) (bool, error)
}

// StorefrontItem is one purchased (product, quantity) pair extracted from
// webhook metadata.
type StorefrontItem struct {
	ProductID uuid.UUID
	Quantity  int64
}

// StorefrontPaymentParams carries a storefront purchase event.
type StorefrontPaymentParams struct {
	ExternalPaymentID string
	CustomerEmail     string
	Items             []StorefrontItem
}

// OrderService applies storefront purchases.
type OrderService interface {
	// ApplyStorefrontPayment creates the order for a captured storefront
	// payment. Idempotent under webhook redelivery.
	ApplyStorefrontPayment(ctx context.Context, params StorefrontPaymentParams) (*domain.Order, error)
}

type orderService struct {
	orders OrderStore
	logger *slog.Logger
}

// NewOrderService creates a new OrderService.
func NewOrderService(orders OrderStore, logger *slog.Logger) OrderService {
	return &orderService{orders: orders, logger: logger}
}

// Storefront pricing constants, minor currency units.
const (
	vatRateBasisPoints    = 2000 // 20% VAT
	freeShippingThreshold = 5000
	standardShipping      = 499
)

func (s *orderService) ApplyStorefrontPayment(ctx context.Context, params StorefrontPaymentParams) (*domain.Order, error) {
	const op = "order.apply_storefront_payment"

	if params.ExternalPaymentID == "" {
		return nil, domain.Invalid(op, "external payment id is required")
	}

	exists, err := s.orders.OrderExists(ctx, params.ExternalPaymentID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to check for existing order")
	}
	if exists {
		s.logger.Info("duplicate storefront payment absorbed", "external_id", params.ExternalPaymentID)
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(params.Items))
	qtyByID := make(map[uuid.UUID]int64, len(params.Items))
	for _, item := range params.Items {
		if item.Quantity <= 0 {
			continue
		}
		if _, seen := qtyByID[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		qtyByID[item.ProductID] += item.Quantity
	}

	products, err := s.orders.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load products")
	}
	productByID := make(map[uuid.UUID]*domain.Product, len(products))
	for _, p := range products {
		productByID[p.ID] = p
	}

	// Unknown or inactive product IDs are skipped, not fatal: the payment
	// already happened, so we record what we can identify and log the rest.
	var (
		orderItems []domain.OrderItem
		subtotal   int64
	)
	for _, id := range ids {
		p, ok := productByID[id]
		if !ok {
			s.logger.Warn("storefront payment references unknown product",
				"external_id", params.ExternalPaymentID, "product_id", id)
			continue
		}
		qty := qtyByID[id]
		orderItems = append(orderItems, domain.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  qty,
			UnitPrice: p.Price,
		})
		subtotal += p.Price * qty
	}
	if len(orderItems) == 0 {
		return nil, domain.Invalid(op, "no valid items in storefront payment")
	}

	tax := (subtotal*vatRateBasisPoints + 5000) / 10000
	var shipping int64
	if subtotal < freeShippingThreshold {
		shipping = standardShipping
	}
	total := subtotal + tax + shipping

	orderID := uuid.New()
	itemParams := make([]repository.CreateOrderItemParams, len(orderItems))
	for i, item := range orderItems {
		itemParams[i] = repository.CreateOrderItemParams{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	inserted, err := s.orders.CreateOrderWithItems(ctx, repository.CreateOrderParams{
		ID:                orderID,
		ExternalPaymentID: params.ExternalPaymentID,
		CustomerEmail:     params.CustomerEmail,
		Subtotal:          subtotal,
		Tax:               tax,
		Shipping:          shipping,
		Total:             total,
	}, itemParams)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create order")
	}
	if !inserted {
		// Lost the race to a concurrent delivery; the winner's order stands.
		s.logger.Info("duplicate storefront payment absorbed", "external_id", params.ExternalPaymentID)
		return nil, nil
	}

	s.logger.Info("storefront order created",
		"order_id", orderID, "external_id", params.ExternalPaymentID,
		"items", len(orderItems), "total", total)

	return &domain.Order{
		ID:                orderID,
		ExternalPaymentID: params.ExternalPaymentID,
		CustomerEmail:     params.CustomerEmail,
		Subtotal:          subtotal,
		Tax:               tax,
		Shipping:          shipping,
		Total:             total,
		Items:             orderItems,
	}, nil
}
