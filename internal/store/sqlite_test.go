package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-trader/internal/models"
	"swing-trader/internal/risk"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStore_ClosedTradeLog(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	entry := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	exit := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	trade := models.ClosedTrade{
		Symbol:     "ACME",
		Strategy:   "momentum",
		Sector:     "tech",
		Direction:  models.DirectionLong,
		Quantity:   100,
		EntryPrice: 100,
		ExitPrice:  95,
		EntryDate:  entry,
		ExitDate:   exit,
		Reason:     models.ExitStopLoss,
		PnL:        -500,
	}
	require.NoError(t, st.SaveClosedTrade(ctx, trade))

	trades, err := st.ListClosedTrades(ctx, entry, exit.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "ACME", trades[0].Symbol)
	assert.Equal(t, models.ExitStopLoss, trades[0].Reason)
	assert.Equal(t, -500.0, trades[0].PnL)

	// A window before the exit date is empty.
	trades, err = st.ListClosedTrades(ctx, entry.AddDate(0, 0, -10), entry)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestSQLiteStore_RiskSnapshotUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	first := risk.Snapshot{Equity: 100000, SafetyTier: 0}
	require.NoError(t, st.SaveRiskSnapshot(ctx, day, first))

	// Same day again: the row is replaced, not duplicated.
	second := risk.Snapshot{
		Equity:     97500,
		SafetyTier: 1,
		Strategies: []risk.StrategySnapshot{
			{Strategy: "momentum", CumulativePnL: -2500, Window: []float64{0, -2500}, Tier: 1},
		},
	}
	require.NoError(t, st.SaveRiskSnapshot(ctx, day, second))

	snap, got, err := st.LoadLatestRiskSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, day.Format("2006-01-02"), got.Format("2006-01-02"))
	assert.Equal(t, 97500.0, snap.Equity)
	assert.Equal(t, 1, snap.SafetyTier)
	require.Len(t, snap.Strategies, 1)
	assert.Equal(t, []float64{0, -2500}, snap.Strategies[0].Window)
}

func TestSQLiteStore_LatestSnapshotWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveRiskSnapshot(ctx, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), risk.Snapshot{Equity: 1}))
	require.NoError(t, st.SaveRiskSnapshot(ctx, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), risk.Snapshot{Equity: 2}))

	snap, day, err := st.LoadLatestRiskSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", day.Format("2006-01-02"))
	assert.Equal(t, 2.0, snap.Equity)
}

func TestSQLiteStore_EmptySnapshotIsNotAnError(t *testing.T) {
	st := newTestStore(t)

	snap, day, err := st.LoadLatestRiskSnapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, day.IsZero())
	assert.Zero(t, snap.Equity)
}

func TestSQLiteStore_PositionsReplacedWholesale(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	mk := func(symbol string) *models.Position {
		return &models.Position{
			Symbol:     symbol,
			Strategy:   "momentum",
			Direction:  models.DirectionLong,
			Quantity:   100,
			EntryPrice: 100,
			EntryDate:  time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			State:      models.StateActive,
			StopPrice:  95,
			Trailing:   &models.TrailingState{ActivationPrice: 106, Distance: 4, Activated: true, Stop: 104},
			DayIndex:   2,
		}
	}
	require.NoError(t, st.SavePositions(ctx, []*models.Position{mk("AAA"), mk("BBB")}))
	require.NoError(t, st.SavePositions(ctx, []*models.Position{mk("BBB")}))

	positions, err := st.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	pos := positions[0]
	assert.Equal(t, "BBB", pos.Symbol)
	assert.Equal(t, 2, pos.DayIndex)
	// The trailing state survives the round trip; recovery resumes the
	// ratchet where it left off.
	require.NotNil(t, pos.Trailing)
	assert.True(t, pos.Trailing.Activated)
	assert.Equal(t, 104.0, pos.Trailing.Stop)
	assert.Equal(t, 104.0, pos.CurrentStop())
}
