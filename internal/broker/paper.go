package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"swing-trader/internal/errors"
	"swing-trader/internal/models"
)

// PaperBroker implements the Broker interface for paper trading and
// backtests. Market orders fill immediately at the last known price for the
// symbol; stop orders are tracked but never self-trigger, since the exit
// evaluator owns exit decisions in simulated modes.
type PaperBroker struct {
	mu sync.RWMutex

	// Last known price per symbol, pushed by whichever feed drives the run.
	prices map[string]float64

	orders       map[string]*models.Order
	orderCounter int

	// Optional fill overrides keyed by symbol, for exercising partial-fill
	// and rejection handling.
	partialFills map[string]int
	rejects      map[string]string
}

// NewPaperBroker creates a new paper trading broker.
func NewPaperBroker() *PaperBroker {
	return &PaperBroker{
		prices:       make(map[string]float64),
		orders:       make(map[string]*models.Order),
		partialFills: make(map[string]int),
		rejects:      make(map[string]string),
	}
}

// SetPrice updates the simulated last price for a symbol.
func (p *PaperBroker) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// SetPartialFill makes the next market order for symbol fill at qty shares.
func (p *PaperBroker) SetPartialFill(symbol string, qty int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.partialFills[symbol] = qty
}

// SetReject makes the next order for symbol be rejected with the message.
func (p *PaperBroker) SetReject(symbol, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejects[symbol] = message
}

// Login is a no-op for paper trading.
func (p *PaperBroker) Login(ctx context.Context) error { return nil }

// IsAuthenticated always returns true for paper trading.
func (p *PaperBroker) IsAuthenticated() bool { return true }

// GetQuote returns a quote at the simulated last price.
func (p *PaperBroker) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[symbol]
	if !ok {
		return nil, &errors.DataGapError{Symbol: symbol, At: time.Now().Format(time.RFC3339)}
	}
	return &models.Quote{Symbol: symbol, Last: price, Timestamp: time.Now()}, nil
}

// PlaceOrder simulates an order fill.
func (p *PaperBroker) PlaceOrder(ctx context.Context, order *models.Order) (*models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.orderCounter++
	orderID := fmt.Sprintf("PAPER-%06d", p.orderCounter)

	if msg, ok := p.rejects[order.Symbol]; ok {
		delete(p.rejects, order.Symbol)
		return &models.OrderResult{OrderID: orderID, Status: StatusRejected, Message: msg}, nil
	}

	p.orders[orderID] = order

	// Stop orders rest at the broker as the safety net; only market orders
	// fill immediately.
	if order.Type == models.OrderTypeStopLoss || order.Type == models.OrderTypeStopLossM {
		return &models.OrderResult{OrderID: orderID, Status: StatusPlaced}, nil
	}

	price := order.Price
	if order.Type == models.OrderTypeMarket {
		px, ok := p.prices[order.Symbol]
		if !ok {
			return &models.OrderResult{OrderID: orderID, Status: StatusRejected, Message: "no price for symbol"}, nil
		}
		price = px
	}

	filled := order.Quantity
	if qty, ok := p.partialFills[order.Symbol]; ok {
		delete(p.partialFills, order.Symbol)
		if qty < filled {
			filled = qty
		}
	}

	status := StatusFilled
	if filled < order.Quantity {
		status = StatusPartial
	}

	return &models.OrderResult{
		OrderID:   orderID,
		Status:    status,
		FilledQty: filled,
		AvgPrice:  price,
	}, nil
}

// ModifyOrder updates a resting order.
func (p *PaperBroker) ModifyOrder(ctx context.Context, orderID string, order *models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[orderID]; !ok {
		return fmt.Errorf("order not found: %s", orderID)
	}
	p.orders[orderID] = order
	return nil
}

// CancelOrder removes a resting order.
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[orderID]; !ok {
		return fmt.Errorf("order not found: %s", orderID)
	}
	delete(p.orders, orderID)
	return nil
}
