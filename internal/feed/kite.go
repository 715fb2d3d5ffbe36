package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"swing-trader/internal/broker"
	"swing-trader/internal/errors"
	"swing-trader/internal/models"
)

// KiteFeed is the live Feed implementation: reference and session prices
// come from broker quotes, the intraday stream from the Kite websocket
// ticker. The stream is subscribed only to the symbols the engine asks for,
// which in practice is the set of entry-day positions.
type KiteFeed struct {
	broker      broker.Broker
	apiKey      string
	accessToken string

	// Instrument token lookup for websocket subscriptions.
	tokens       map[string]uint32
	tokenSymbols map[uint32]string

	mu sync.RWMutex
}

// NewKiteFeed creates a live feed over an authenticated broker session.
func NewKiteFeed(b broker.Broker, apiKey, accessToken string, tokens map[string]uint32) *KiteFeed {
	tokenSymbols := make(map[uint32]string, len(tokens))
	for symbol, token := range tokens {
		tokenSymbols[token] = symbol
	}
	return &KiteFeed{
		broker:       b,
		apiKey:       apiKey,
		accessToken:  accessToken,
		tokens:       tokens,
		tokenSymbols: tokenSymbols,
	}
}

// PrevClose returns the previous session close from the quote snapshot.
func (f *KiteFeed) PrevClose(ctx context.Context, symbol string, day time.Time) (float64, error) {
	q, err := f.broker.GetQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if q.Close == 0 {
		return 0, &errors.DataGapError{Symbol: symbol, At: day.Format("2006-01-02")}
	}
	return q.Close, nil
}

// PreMarketPrice returns the latest pre-open print.
func (f *KiteFeed) PreMarketPrice(ctx context.Context, symbol string, day time.Time) (float64, error) {
	q, err := f.broker.GetQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return q.Last, nil
}

// OpenPrice returns the session open once available, falling back to the
// last print while the open is still forming.
func (f *KiteFeed) OpenPrice(ctx context.Context, symbol string, day time.Time) (float64, error) {
	q, err := f.broker.GetQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if q.Open > 0 {
		return q.Open, nil
	}
	return q.Last, nil
}

// ConfirmPrice returns the live price at the confirmation deadline.
func (f *KiteFeed) ConfirmPrice(ctx context.Context, symbol string, day time.Time) (float64, error) {
	q, err := f.broker.GetQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return q.Last, nil
}

// DayCandle returns the session OHLC from the quote snapshot.
func (f *KiteFeed) DayCandle(ctx context.Context, symbol string, day time.Time) (models.Candle, error) {
	q, err := f.broker.GetQuote(ctx, symbol)
	if err != nil {
		return models.Candle{}, err
	}
	return models.Candle{
		Timestamp: day,
		Open:      q.Open,
		High:      q.High,
		Low:       q.Low,
		Close:     q.Last,
		Volume:    q.Volume,
	}, nil
}

// Ticks opens a websocket stream for the given symbols. The channel closes
// when ctx is cancelled.
func (f *KiteFeed) Ticks(ctx context.Context, symbols []string) (<-chan models.Tick, error) {
	tokens := make([]uint32, 0, len(symbols))
	for _, s := range symbols {
		f.mu.RLock()
		token, ok := f.tokens[s]
		f.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("no instrument token for %s", s)
		}
		tokens = append(tokens, token)
	}

	ch := make(chan models.Tick, 64)
	// Callbacks write only to raw, which is never closed, so a tick in
	// flight during cancellation cannot hit a closed channel.
	raw := make(chan models.Tick, 64)
	t := kiteticker.New(f.apiKey, f.accessToken)

	t.OnConnect(func() {
		_ = t.Subscribe(tokens)
		_ = t.SetMode(kiteticker.ModeLTP, tokens)
	})
	t.OnTick(func(tick kitemodels.Tick) {
		f.mu.RLock()
		symbol, ok := f.tokenSymbols[tick.InstrumentToken]
		f.mu.RUnlock()
		if !ok {
			return
		}
		select {
		case raw <- models.Tick{
			Symbol:    symbol,
			Price:     tick.LastPrice,
			Volume:    int64(tick.VolumeTraded),
			Timestamp: tick.Timestamp.Time,
		}:
		default:
			// Drop rather than block the websocket read loop; the next
			// print supersedes a missed one for emergency checks.
		}
	})
	t.OnError(func(err error) {})

	go t.Serve()
	go func() {
		defer close(ch)
		defer t.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case tk := <-raw:
				select {
				case ch <- tk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
