// Package models provides domain models for the trading engine.
package models

import (
	"time"
)

// Direction represents the side of a signal or position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// TimingGroup controls when an admitted signal executes.
type TimingGroup string

const (
	// TimingAtOpen executes immediately at session open.
	TimingAtOpen TimingGroup = "AT_OPEN"
	// TimingConfirm waits for a same-morning confirmation check and is
	// discarded if not confirmed by the deadline.
	TimingConfirm TimingGroup = "CONFIRM"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStopLoss  OrderType = "SL"
	OrderTypeStopLossM OrderType = "SL-M"
)

// TakeProfitRule describes how a position takes profit: an indicator-based
// condition, an ATR-multiple distance from entry, or both. Whichever is
// reached first wins.
type TakeProfitRule struct {
	Indicator   string  // empty when no indicator condition applies
	ATRMultiple float64 // 0 when no ATR target applies
}

// Signal is a candidate trade produced by an external strategy collaborator.
// It is immutable once issued. A signal without an explicit stop price is
// invalid and must never be sized.
type Signal struct {
	Strategy   string
	Symbol     string
	Sector     string
	Direction  Direction
	EntryPrice float64 // reference entry price
	StopPrice  float64 // absolute declared stop, never a multiplier
	TakeProfit *TakeProfitRule
	ATR        float64 // average true range at issuance, used for targets
	Score      float64 // composite rank score
	Timing     TimingGroup
	IssuedAt   time.Time
	PrevClose  float64 // reference close for the pre-open gap filter
}

// IsFavorable reports whether a price is on the profitable side of the
// signal's entry.
func (s *Signal) IsFavorable(price float64) bool {
	if s.Direction == DirectionShort {
		return price < s.EntryPrice
	}
	return price > s.EntryPrice
}

// Order is a sized order handed to the execution collaborator.
type Order struct {
	Symbol       string
	Side         OrderSide
	Type         OrderType
	Quantity     int
	Price        float64 // for limit orders
	TriggerPrice float64 // for stop orders
	Tag          string
}

// OrderResult is the execution collaborator's response to an order.
type OrderResult struct {
	OrderID   string
	Status    string
	FilledQty int
	AvgPrice  float64
	Message   string
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Tick represents an intraday price observation.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    int64
	Timestamp time.Time
}

// Quote represents a market quote.
type Quote struct {
	Symbol    string
	Last      float64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Timestamp time.Time
}
