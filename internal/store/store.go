// Package store provides data persistence implementations.
package store

import (
	"context"
	"time"

	"swing-trader/internal/models"
	"swing-trader/internal/risk"
)

// Store is the persisted state surface: an append-only closed-trade log and
// the risk/position snapshots that crash recovery reconstructs state from.
type Store interface {
	SaveClosedTrade(ctx context.Context, trade models.ClosedTrade) error
	ListClosedTrades(ctx context.Context, from, to time.Time) ([]models.ClosedTrade, error)

	SaveRiskSnapshot(ctx context.Context, day time.Time, snap risk.Snapshot) error
	LoadLatestRiskSnapshot(ctx context.Context) (risk.Snapshot, time.Time, error)

	SavePositions(ctx context.Context, positions []*models.Position) error
	LoadPositions(ctx context.Context) ([]*models.Position, error)

	Close() error
}
