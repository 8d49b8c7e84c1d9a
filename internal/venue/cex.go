// cex.go implements the VenueClient and MarketFeed adapter for the
// centralized exchange: REST order placement/cancellation/balance/position
// with HMAC-SHA256 request signing, a WS user-data stream of order
// lifecycle events, and a WS market stream of top-20 depth.
//
// Grounded on the teacher's internal/exchange/client.go (resty REST
// client shape, rate limiting, retry) and auth.go's L2 HMAC signing path,
// and on original_source/trade_engine.py's Binance-shaped adapter.
package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"arbengine/internal/config"
	"arbengine/pkg/types"
)

const (
	cexPingInterval     = 20 * time.Second
	cexReadTimeout      = 60 * time.Second
	cexMaxReconnectWait = 30 * time.Second
)

// CEXClient is the centralized-exchange VenueClient implementation.
type CEXClient struct {
	cfg    config.CEXConfig
	http   *resty.Client
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewCEXClient creates a CEX REST+WS client.
func NewCEXClient(cfg config.CEXConfig, dryRun bool, logger *slog.Logger) *CEXClient {
	httpClient := resty.New().
		SetBaseURL(cfg.RESTURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &CEXClient{
		cfg:    cfg,
		http:   httpClient,
		rl:     NewRateLimiter(),
		dryRun: dryRun,
		logger: logger.With("component", "cex_client"),
	}
}

// Venue identifies this client as CEX.
func (c *CEXClient) Venue() types.Venue { return types.CEX }

// cexOrderPlaceResponse models the subset of a REST order-placement
// response the order-id extractor needs, tolerant of nesting.
type cexOrderPlaceResponse struct {
	OrderID string `json:"orderId"`
	Data    *struct {
		OrderID string `json:"orderId"`
	} `json:"data"`
}

// extractCEXOrderID reduces a CEX placement response, however nested, to
// (order_id, ok), per spec.md §4.C. Grounded on
// original_source/trade_engine.py's `_extract order id` multi-format parser.
func extractCEXOrderID(resp cexOrderPlaceResponse) (string, bool) {
	if resp.OrderID != "" {
		return resp.OrderID, true
	}
	if resp.Data != nil && resp.Data.OrderID != "" {
		return resp.Data.OrderID, true
	}
	return "", false
}

// PlaceOrder places a LIMIT GTC or MARKET order on the CEX.
func (c *CEXClient) PlaceOrder(ctx context.Context, req types.PlaceOrderRequest) (types.PlaceOrderResult, error) {
	if c.dryRun {
		return types.PlaceOrderResult{OrderID: fmt.Sprintf("dryrun-cex-%d", time.Now().UnixNano()), Ok: true}, nil
	}
	if err := waitLimiter(ctx, c.rl.Order); err != nil {
		return types.PlaceOrderResult{}, err
	}

	params := map[string]string{
		"symbol":   req.Symbol,
		"side":     string(req.Side),
		"quantity": req.Quantity.String(),
	}
	if req.Price != nil {
		params["type"] = "LIMIT"
		params["timeInForce"] = "GTC"
		params["price"] = req.Price.String()
	} else {
		params["type"] = "MARKET"
	}

	var result cexOrderPlaceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.signedHeaders("POST", "/api/v1/order", params)).
		SetQueryParams(params).
		SetResult(&result).
		Post("/api/v1/order")
	if err != nil {
		return types.PlaceOrderResult{}, fmt.Errorf("place order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Error("place order rejected", "status", resp.StatusCode(), "body", resp.String())
		return types.PlaceOrderResult{Ok: false}, nil
	}

	orderID, ok := extractCEXOrderID(result)
	return types.PlaceOrderResult{OrderID: orderID, Ok: ok}, nil
}

// CancelOrder cancels an order by id on the CEX.
func (c *CEXClient) CancelOrder(ctx context.Context, req types.CancelOrderRequest) error {
	if c.dryRun {
		return nil
	}
	if err := waitLimiter(ctx, c.rl.Cancel); err != nil {
		return err
	}

	params := map[string]string{"symbol": req.Symbol, "orderId": req.OrderID}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.signedHeaders("DELETE", "/api/v1/order", params)).
		SetQueryParams(params).
		Delete("/api/v1/order")
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

type cexBalanceResponse struct {
	Total     string `json:"total"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

// Balance queries the futures account balance.
func (c *CEXClient) Balance(ctx context.Context) (types.Balance, error) {
	if err := waitLimiter(ctx, c.rl.Query); err != nil {
		return types.Balance{}, err
	}

	var result cexBalanceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.signedHeaders("GET", "/api/v1/balance", nil)).
		SetResult(&result).
		Get("/api/v1/balance")
	if err != nil {
		return types.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Balance{}, fmt.Errorf("get balance: status %d", resp.StatusCode())
	}

	total, _ := decimal.NewFromString(result.Total)
	avail, _ := decimal.NewFromString(result.Available)
	locked, _ := decimal.NewFromString(result.Locked)
	return types.Balance{Total: total, Available: avail, Locked: locked}, nil
}

type cexPositionResponse struct {
	Size       string `json:"positionAmt"`
	EntryPrice string `json:"entryPrice"`
}

// Position queries the futures position for symbol.
func (c *CEXClient) Position(ctx context.Context, symbol string) (types.Position, error) {
	if err := waitLimiter(ctx, c.rl.Query); err != nil {
		return types.Position{}, err
	}

	params := map[string]string{"symbol": symbol}
	var result cexPositionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.signedHeaders("GET", "/api/v1/position", params)).
		SetQueryParams(params).
		SetResult(&result).
		Get("/api/v1/position")
	if err != nil {
		return types.Position{}, fmt.Errorf("get position: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Position{}, fmt.Errorf("get position: status %d", resp.StatusCode())
	}

	size, _ := decimal.NewFromString(result.Size)
	entry, _ := decimal.NewFromString(result.EntryPrice)
	if size.IsZero() {
		return types.Position{Empty: true}, nil
	}
	side := types.PositionLong
	if size.IsNegative() {
		side = types.PositionShort
		size = size.Abs()
	}
	return types.Position{Size: size, Side: side, EntryPrice: entry}, nil
}

// signedHeaders builds the HMAC-SHA256 signed headers a CEX trading
// request needs. message = timestamp + method + path + sorted query.
func (c *CEXClient) signedHeaders(method, path string, params map[string]string) map[string]string {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	query := encodeParams(params)
	message := timestamp + method + path + query

	mac := hmac.New(sha256.New, []byte(c.cfg.Secret))
	mac.Write([]byte(message))
	sig := hex.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"X-API-KEY":   c.cfg.APIKey,
		"X-TIMESTAMP": timestamp,
		"X-SIGNATURE": sig,
	}
}

func encodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	// Keys are sorted so the signed message does not depend on map
	// iteration order.
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += k + "=" + params[k] + "&"
	}
	return out
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket: market stream (top-20 depth) and user stream (order events)
// ————————————————————————————————————————————————————————————————————————

type cexDepthMsg struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

// SubscribeMarketStream connects to the CEX top-20 depth stream and
// invokes onBook for every update, reconnecting with exponential backoff
// on disconnect. This is the MarketFeed adapter (spec component B) for
// the CEX side.
func (c *CEXClient) SubscribeMarketStream(ctx context.Context, onBook func(types.L2Book)) error {
	return runWithBackoff(ctx, c.logger, "cex_market", func(ctx context.Context) error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WSURL+"/ws/"+c.cfg.Symbol+"@depth20", nil)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close()

		return readLoop(ctx, conn, cexReadTimeout, cexPingInterval, func(data []byte) {
			var msg cexDepthMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				return
			}
			book := parseCEXDepth(c.cfg.Symbol, msg)
			if len(book.Bids) > 0 && len(book.Asks) > 0 {
				onBook(book)
			}
		})
	})
}

func parseCEXDepth(symbol string, msg cexDepthMsg) types.L2Book {
	book := types.L2Book{Venue: types.CEX, Symbol: symbol, EventTime: time.Now().UnixMilli()}
	for _, lvl := range msg.Bids {
		p, _ := decimal.NewFromString(lvl[0])
		s, _ := decimal.NewFromString(lvl[1])
		book.Bids = append(book.Bids, types.Level{Price: p, Size: s, Orders: 1})
	}
	for _, lvl := range msg.Asks {
		p, _ := decimal.NewFromString(lvl[0])
		s, _ := decimal.NewFromString(lvl[1])
		book.Asks = append(book.Asks, types.Level{Price: p, Size: s, Orders: 1})
	}
	return book
}

type cexUserEventMsg struct {
	OrderID      string `json:"order_id"`
	FinalStatus  string `json:"final_status"` // FILLED, CANCELED, EXPIRED, REJECTED
	CumFilledQty string `json:"cumulative_filled_qty"`
}

// SubscribeUserStream connects to the CEX user-data stream and fires
// handler on every order lifecycle event.
func (c *CEXClient) SubscribeUserStream(ctx context.Context, handler UserStreamHandler) error {
	return runWithBackoff(ctx, c.logger, "cex_user", func(ctx context.Context) error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WSURL+"/ws/user?apiKey="+c.cfg.APIKey, nil)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close()

		return readLoop(ctx, conn, cexReadTimeout, cexPingInterval, func(data []byte) {
			var msg cexUserEventMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				return
			}
			if msg.OrderID == "" {
				return
			}
			cum, _ := decimal.NewFromString(msg.CumFilledQty)
			handler(types.RawOrderEvent{
				Venue:        types.CEX,
				OrderID:      msg.OrderID,
				Status:       msg.FinalStatus,
				CumFilledQty: cum,
			})
		})
	})
}
