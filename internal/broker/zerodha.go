package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"golang.org/x/time/rate"

	"swing-trader/internal/errors"
	"swing-trader/internal/models"
)

// ZerodhaBroker implements the Broker interface for Zerodha Kite Connect.
// All API calls go through a rate limiter so a burst of stop refreshes at
// end of day cannot trip the venue's request limits.
type ZerodhaBroker struct {
	client        *kiteconnect.Client
	limiter       *rate.Limiter
	apiKey        string
	apiSecret     string
	userID        string
	password      string
	totpSecret    string
	exchange      string
	tokenPath     string
	accessToken   string
	authenticated bool
	mu            sync.RWMutex
}

// ZerodhaConfig holds configuration for the Zerodha broker.
type ZerodhaConfig struct {
	APIKey     string
	APISecret  string
	UserID     string
	Password   string
	TOTPSecret string
	Exchange   string // defaults to NSE
	TokenPath  string
	RateLimit  rate.Limit // requests per second, defaults to 3
}

// NewZerodhaBroker creates a new Zerodha broker instance and loads any
// persisted session.
func NewZerodhaBroker(cfg ZerodhaConfig) *ZerodhaBroker {
	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		home, _ := os.UserHomeDir()
		tokenPath = filepath.Join(home, ".config", "swing-trader", "session.json")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "NSE"
	}
	limit := cfg.RateLimit
	if limit == 0 {
		limit = 3
	}

	zb := &ZerodhaBroker{
		client:     kiteconnect.New(cfg.APIKey),
		limiter:    rate.NewLimiter(limit, 1),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		userID:     cfg.UserID,
		password:   cfg.Password,
		totpSecret: cfg.TOTPSecret,
		exchange:   exchange,
		tokenPath:  tokenPath,
	}
	_ = zb.loadSession()
	return zb
}

type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login authenticates with Zerodha. A valid persisted session is reused;
// otherwise the TOTP auto-login flow runs when credentials allow it.
func (z *ZerodhaBroker) Login(ctx context.Context) error {
	if z.IsAuthenticated() {
		if _, err := z.client.GetUserProfile(); err == nil {
			return nil
		}
	}

	if z.password == "" || z.totpSecret == "" {
		return fmt.Errorf("%w: visit %s and complete login, then call CompleteLogin with the request token",
			errors.ErrNotAuthenticated, z.client.GetLoginURL())
	}

	requestToken, err := z.autoLogin(ctx)
	if err != nil {
		return fmt.Errorf("auto-login: %w", err)
	}
	return z.CompleteLogin(ctx, requestToken)
}

// CompleteLogin completes the OAuth flow with the request token.
func (z *ZerodhaBroker) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := z.client.GenerateSession(requestToken, z.apiSecret)
	if err != nil {
		return fmt.Errorf("generating session: %w", err)
	}

	z.mu.Lock()
	z.client.SetAccessToken(session.AccessToken)
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.mu.Unlock()

	return z.saveSession(session.AccessToken)
}

// autoLogin performs the Kite web login with stored password and a generated
// TOTP code, returning the request token for session generation.
func (z *ZerodhaBroker) autoLogin(ctx context.Context) (string, error) {
	jar, _ := cookiejar.New(nil)
	hc := &http.Client{
		Jar:     jar,
		Timeout: 15 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := hc.PostForm("https://kite.zerodha.com/api/login", url.Values{
		"user_id":  {z.userID},
		"password": {z.password},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var loginResp struct {
		Data struct {
			RequestID string `json:"request_id"`
		} `json:"data"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", fmt.Errorf("decoding login response: %w", err)
	}
	if loginResp.Status != "success" {
		return "", errors.ErrNotAuthenticated
	}

	code, err := totp.GenerateCode(z.totpSecret, time.Now())
	if err != nil {
		return "", fmt.Errorf("generating TOTP: %w", err)
	}

	resp2, err := hc.PostForm("https://kite.zerodha.com/api/twofa", url.Values{
		"user_id":      {z.userID},
		"request_id":   {loginResp.Data.RequestID},
		"twofa_value":  {code},
		"twofa_type":   {"totp"},
		"skip_session": {"true"},
	})
	if err != nil {
		return "", err
	}
	resp2.Body.Close()

	// The connect login redirect carries the request token.
	resp3, err := hc.Get(z.client.GetLoginURL())
	if err != nil {
		return "", err
	}
	resp3.Body.Close()

	loc := resp3.Header.Get("Location")
	for loc != "" {
		u, err := url.Parse(loc)
		if err != nil {
			break
		}
		if token := u.Query().Get("request_token"); token != "" {
			return token, nil
		}
		next, err := hc.Get(loc)
		if err != nil {
			return "", err
		}
		next.Body.Close()
		loc = next.Header.Get("Location")
	}
	return "", fmt.Errorf("request token not found in login redirect")
}

// IsAuthenticated returns whether the broker has a session.
func (z *ZerodhaBroker) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

// GetQuote fetches a real-time quote for a symbol.
func (z *ZerodhaBroker) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := z.wait(ctx); err != nil {
		return nil, err
	}
	key := z.exchange + ":" + symbol
	quotes, err := z.client.GetQuote(key)
	if err != nil {
		return nil, fmt.Errorf("fetching quote: %w", err)
	}
	q, ok := quotes[key]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &models.Quote{
		Symbol:    symbol,
		Last:      q.LastPrice,
		Open:      q.OHLC.Open,
		High:      q.OHLC.High,
		Low:       q.OHLC.Low,
		Close:     q.OHLC.Close,
		Volume:    int64(q.Volume),
		Timestamp: time.Now(),
	}, nil
}

// PlaceOrder places a new order and reports the fill outcome.
func (z *ZerodhaBroker) PlaceOrder(ctx context.Context, order *models.Order) (*models.OrderResult, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}
	if err := z.wait(ctx); err != nil {
		return nil, err
	}

	params := kiteconnect.OrderParams{
		Exchange:        z.exchange,
		Tradingsymbol:   order.Symbol,
		TransactionType: string(order.Side),
		OrderType:       string(order.Type),
		Product:         "CNC",
		Quantity:        order.Quantity,
		Price:           order.Price,
		TriggerPrice:    order.TriggerPrice,
		Validity:        "DAY",
		Tag:             order.Tag,
	}

	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return nil, errors.NewExecutionError("", "place_order", "order placement failed", err)
	}

	return z.orderOutcome(resp.OrderID, order.Quantity)
}

// orderOutcome polls the order book once for the terminal status so callers
// see rejections and partial fills instead of assuming the requested size.
func (z *ZerodhaBroker) orderOutcome(orderID string, requested int) (*models.OrderResult, error) {
	history, err := z.client.GetOrderHistory(orderID)
	if err != nil || len(history) == 0 {
		// Order placed but status unknown; report as placed and let the
		// safety-net layer cover it.
		return &models.OrderResult{OrderID: orderID, Status: StatusPlaced, FilledQty: requested}, nil
	}
	last := history[len(history)-1]
	switch strings.ToUpper(last.Status) {
	case "REJECTED", "CANCELLED":
		return &models.OrderResult{OrderID: orderID, Status: StatusRejected, Message: last.StatusMessage}, nil
	case "COMPLETE":
		return &models.OrderResult{
			OrderID:   orderID,
			Status:    StatusFilled,
			FilledQty: int(last.FilledQuantity),
			AvgPrice:  last.AveragePrice,
		}, nil
	default:
		filled := int(last.FilledQuantity)
		status := StatusPlaced
		if filled > 0 && filled < requested {
			status = StatusPartial
		}
		return &models.OrderResult{
			OrderID:   orderID,
			Status:    status,
			FilledQty: filled,
			AvgPrice:  last.AveragePrice,
		}, nil
	}
}

// ModifyOrder modifies a resting order, used to refresh safety-net stops.
func (z *ZerodhaBroker) ModifyOrder(ctx context.Context, orderID string, order *models.Order) error {
	if !z.IsAuthenticated() {
		return errors.ErrNotAuthenticated
	}
	if err := z.wait(ctx); err != nil {
		return err
	}
	params := kiteconnect.OrderParams{
		Quantity:     order.Quantity,
		Price:        order.Price,
		TriggerPrice: order.TriggerPrice,
	}
	if _, err := z.client.ModifyOrder(kiteconnect.VarietyRegular, orderID, params); err != nil {
		return errors.NewExecutionError(orderID, "modify_order", "order modification failed", err)
	}
	return nil
}

// CancelOrder cancels a resting order.
func (z *ZerodhaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if !z.IsAuthenticated() {
		return errors.ErrNotAuthenticated
	}
	if err := z.wait(ctx); err != nil {
		return err
	}
	if _, err := z.client.CancelOrder(kiteconnect.VarietyRegular, orderID, nil); err != nil {
		return errors.NewExecutionError(orderID, "cancel_order", "order cancellation failed", err)
	}
	return nil
}

func (z *ZerodhaBroker) wait(ctx context.Context) error {
	return z.limiter.Wait(ctx)
}

func (z *ZerodhaBroker) loadSession() error {
	data, err := os.ReadFile(z.tokenPath)
	if err != nil {
		return err
	}
	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}
	if time.Now().After(session.ExpiresAt) {
		return fmt.Errorf("session expired")
	}
	z.mu.Lock()
	z.client.SetAccessToken(session.AccessToken)
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.mu.Unlock()
	return nil
}

// AccessToken returns the current session token, for the websocket feed.
func (z *ZerodhaBroker) AccessToken() string {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.accessToken
}

func (z *ZerodhaBroker) saveSession(accessToken string) error {
	if err := os.MkdirAll(filepath.Dir(z.tokenPath), 0700); err != nil {
		return err
	}
	// Kite sessions expire at 6 AM the next day; record a conservative bound.
	session := sessionData{
		AccessToken: accessToken,
		UserID:      z.userID,
		ExpiresAt:   time.Now().Add(12 * time.Hour),
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return os.WriteFile(z.tokenPath, data, 0600)
}
