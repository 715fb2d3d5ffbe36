// Package broker provides order-execution collaborator interfaces and
// implementations. The engine only ever talks to the Broker interface;
// everything venue-specific stays behind it.
package broker

import (
	"context"

	"swing-trader/internal/models"
)

// Broker defines the order-execution surface the engine requires. All
// brokerage-facing actions either fill, fail fast, or are backed by a
// safety-net stop order; nothing blocks indefinitely.
type Broker interface {
	// Authentication
	Login(ctx context.Context) error
	IsAuthenticated() bool

	// Market data
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// Orders
	PlaceOrder(ctx context.Context, order *models.Order) (*models.OrderResult, error)
	ModifyOrder(ctx context.Context, orderID string, order *models.Order) error
	CancelOrder(ctx context.Context, orderID string) error
}

// StatusFilled and friends are the order statuses the engine interprets.
// A partial fill reports StatusPartial with the filled quantity; the caller
// must never assume the requested size.
const (
	StatusFilled   = "FILLED"
	StatusPartial  = "PARTIAL"
	StatusRejected = "REJECTED"
	StatusPlaced   = "PLACED"
)
