// dex.go implements the VenueClient and MarketFeed adapter for the
// decentralized perpetuals venue: signed-action REST placement/
// cancellation via EIP-712 typed-data signatures, REST balance/position
// reads, and one unified WS stream carrying both L2 book updates and
// user order events.
//
// Grounded on the teacher's internal/exchange/auth.go (L1 EIP-712
// signing via go-ethereum's signer/core/apitypes) and ws.go's dispatch
// pattern, adapted for the Hyperliquid-shaped wire format referenced in
// original_source/trade_engine.py and websocket_cex_dex.py.
package venue

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"arbengine/internal/config"
	"arbengine/pkg/types"
)

const (
	dexPingInterval = 20 * time.Second
	dexReadTimeout  = 60 * time.Second
)

// DEXClient is the decentralized-venue VenueClient implementation.
type DEXClient struct {
	cfg        config.DEXConfig
	http       *resty.Client
	rl         *RateLimiter
	privateKey *ecdsa.PrivateKey
	dryRun     bool
	logger     *slog.Logger
}

// NewDEXClient creates a DEX REST+WS client, parsing the wallet private
// key used for EIP-712 order signing.
func NewDEXClient(cfg config.DEXConfig, dryRun bool, logger *slog.Logger) (*DEXClient, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(cfg.WalletKey))
	if err != nil {
		return nil, fmt.Errorf("parse dex wallet key: %w", err)
	}

	httpClient := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)

	return &DEXClient{
		cfg:        cfg,
		http:       httpClient,
		rl:         NewRateLimiter(),
		privateKey: key,
		dryRun:     dryRun,
		logger:     logger.With("component", "dex_client"),
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Venue identifies this client as DEX.
func (c *DEXClient) Venue() types.Venue { return types.DEX }

// signedAction is the envelope every DEX trading call sends: an
// EIP-712-typed action payload plus its signature and a nonce.
type signedAction struct {
	Action       interface{} `json:"action"`
	Nonce        int64       `json:"nonce"`
	Signature    apiSig      `json:"signature"`
	WalletAddr   string      `json:"wallet"`
}

type apiSig struct {
	R string `json:"r"`
	S string `json:"s"`
	V int64  `json:"v"`
}

type placeActionPayload struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity string `json:"quantity"`
	Price    string `json:"price,omitempty"`
	Tif      string `json:"tif,omitempty"`
}

// PlaceOrder places a limit GTC order, or if req.Price is nil, an IOC
// order with no limit (the signed-action API has no true market order;
// callers escalating to "market" must supply a slippage-capped limit
// price themselves).
func (c *DEXClient) PlaceOrder(ctx context.Context, req types.PlaceOrderRequest) (types.PlaceOrderResult, error) {
	if c.dryRun {
		return types.PlaceOrderResult{OrderID: fmt.Sprintf("dryrun-dex-%d", time.Now().UnixNano()), Ok: true}, nil
	}
	if err := waitLimiter(ctx, c.rl.Order); err != nil {
		return types.PlaceOrderResult{}, err
	}

	payload := placeActionPayload{
		Type:     "order",
		Symbol:   req.Symbol,
		Side:     string(req.Side),
		Quantity: req.Quantity.String(),
	}
	if req.Price != nil {
		payload.Tif = "Gtc"
		payload.Price = req.Price.String()
	} else {
		payload.Tif = "Ioc"
	}

	action, err := c.signAction(payload)
	if err != nil {
		return types.PlaceOrderResult{}, fmt.Errorf("sign place action: %w", err)
	}

	var result struct {
		OrderID string `json:"oid"`
		Status  string `json:"status"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(action).
		SetResult(&result).
		Post("/exchange")
	if err != nil {
		return types.PlaceOrderResult{}, fmt.Errorf("place order: %w", err)
	}
	if resp.IsError() || result.Status == "error" {
		c.logger.Error("dex place rejected", "status", resp.StatusCode(), "body", resp.String())
		return types.PlaceOrderResult{Ok: false}, nil
	}
	return types.PlaceOrderResult{OrderID: result.OrderID, Ok: result.OrderID != ""}, nil
}

type cancelActionPayload struct {
	Type    string `json:"type"`
	Symbol  string `json:"symbol"`
	OrderID string `json:"oid"`
}

// CancelOrder cancels an order by id on the DEX.
func (c *DEXClient) CancelOrder(ctx context.Context, req types.CancelOrderRequest) error {
	if c.dryRun {
		return nil
	}
	if err := waitLimiter(ctx, c.rl.Cancel); err != nil {
		return err
	}

	action, err := c.signAction(cancelActionPayload{Type: "cancel", Symbol: req.Symbol, OrderID: req.OrderID})
	if err != nil {
		return fmt.Errorf("sign cancel action: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(action).
		Post("/exchange")
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

type dexUserStateResponse struct {
	Balances []struct {
		Total     string `json:"total"`
		Available string `json:"available"`
		Locked    string `json:"locked"`
	} `json:"balances"`
	Positions []struct {
		Symbol     string `json:"symbol"`
		Size       string `json:"size"`
		EntryPrice string `json:"entryPrice"`
	} `json:"positions"`
}

func (c *DEXClient) fetchUserState(ctx context.Context) (dexUserStateResponse, error) {
	var result dexUserStateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"type": "userState", "wallet": c.cfg.Wallet}).
		SetResult(&result).
		Post("/info")
	if err != nil {
		return result, fmt.Errorf("user state: %w", err)
	}
	if resp.IsError() {
		return result, fmt.Errorf("user state: status %d", resp.StatusCode())
	}
	return result, nil
}

// Balance returns the DEX settlement-asset balance.
func (c *DEXClient) Balance(ctx context.Context) (types.Balance, error) {
	if err := waitLimiter(ctx, c.rl.Query); err != nil {
		return types.Balance{}, err
	}
	state, err := c.fetchUserState(ctx)
	if err != nil {
		return types.Balance{}, err
	}
	if len(state.Balances) == 0 {
		return types.Balance{}, nil
	}
	b := state.Balances[0]
	total, _ := decimal.NewFromString(b.Total)
	avail, _ := decimal.NewFromString(b.Available)
	locked, _ := decimal.NewFromString(b.Locked)
	return types.Balance{Total: total, Available: avail, Locked: locked}, nil
}

// Position returns the current DEX position for symbol.
func (c *DEXClient) Position(ctx context.Context, symbol string) (types.Position, error) {
	if err := waitLimiter(ctx, c.rl.Query); err != nil {
		return types.Position{}, err
	}
	state, err := c.fetchUserState(ctx)
	if err != nil {
		return types.Position{}, err
	}
	for _, p := range state.Positions {
		if p.Symbol != symbol {
			continue
		}
		size, _ := decimal.NewFromString(p.Size)
		entry, _ := decimal.NewFromString(p.EntryPrice)
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
	return types.Position{Empty: true}, nil
}

// signAction hashes payload as EIP-712 typed data and signs it with the
// configured wallet key, returning the full signed envelope ready to post.
func (c *DEXClient) signAction(payload interface{}) (signedAction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return signedAction{}, err
	}
	var message map[string]interface{}
	if err := json.Unmarshal(raw, &message); err != nil {
		return signedAction{}, err
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Agent": []apitypes.Type{
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:    "Exchange",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(1),
		},
		Message: apitypes.TypedDataMessage{
			"source":       "a",
			"connectionId": hexutil.Encode(crypto.Keccak256(raw)),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return signedAction{}, fmt.Errorf("hash typed data: %w", err)
	}

	sig, err := crypto.Sign(hash, c.privateKey)
	if err != nil {
		return signedAction{}, fmt.Errorf("sign: %w", err)
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	v := int64(sig[64]) + 27

	return signedAction{
		Action:     payload,
		Nonce:      time.Now().UnixMilli(),
		Signature:  apiSig{R: hexutil.EncodeBig(r), S: hexutil.EncodeBig(s), V: v},
		WalletAddr: c.cfg.Wallet,
	}, nil
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket: unified stream carrying both L2 book and user order events
// ————————————————————————————————————————————————————————————————————————

type dexWSEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type dexLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

type dexL2BookData struct {
	Symbol string       `json:"coin"`
	Levels [][]dexLevel `json:"levels"` // [bids, asks]
	Time   int64        `json:"time"`
}

type dexOrderUpdate struct {
	OrderID string `json:"oid"`
	Status  string `json:"status"` // open, filled, canceled, rejected
	CumSz   string `json:"cumSz"`
	Sz      string `json:"sz"`
}

type dexOrderUpdatesData struct {
	OrderUpdates []dexOrderUpdate `json:"orderUpdates"`
}

// SubscribeMarketStream connects to the DEX unified WS stream and
// forwards l2Book channel messages as types.L2Book. This is the
// MarketFeed adapter (spec component B) for the DEX side.
func (c *DEXClient) SubscribeMarketStream(ctx context.Context, onBook func(types.L2Book)) error {
	return runWithBackoff(ctx, c.logger, "dex_market", func(ctx context.Context) error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WSURL, nil)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close()

		if err := conn.WriteJSON(map[string]interface{}{
			"method":       "subscribe",
			"subscription": map[string]string{"type": "l2Book", "coin": c.cfg.Symbol},
		}); err != nil {
			return fmt.Errorf("subscribe l2Book: %w", err)
		}

		return readLoop(ctx, conn, dexReadTimeout, dexPingInterval, func(data []byte) {
			var env dexWSEnvelope
			if err := json.Unmarshal(data, &env); err != nil || env.Channel != "l2Book" {
				return
			}
			var book dexL2BookData
			if err := json.Unmarshal(env.Data, &book); err != nil {
				return
			}
			onBook(parseDEXBook(book))
		})
	})
}

func parseDEXBook(d dexL2BookData) types.L2Book {
	book := types.L2Book{Venue: types.DEX, Symbol: d.Symbol, EventTime: d.Time}
	if len(d.Levels) > 0 {
		for _, lvl := range d.Levels[0] {
			p, _ := decimal.NewFromString(lvl.Px)
			s, _ := decimal.NewFromString(lvl.Sz)
			book.Bids = append(book.Bids, types.Level{Price: p, Size: s, Orders: lvl.N})
		}
	}
	if len(d.Levels) > 1 {
		for _, lvl := range d.Levels[1] {
			p, _ := decimal.NewFromString(lvl.Px)
			s, _ := decimal.NewFromString(lvl.Sz)
			book.Asks = append(book.Asks, types.Level{Price: p, Size: s, Orders: lvl.N})
		}
	}
	return book
}

// SubscribeUserStream connects to the DEX unified WS stream and fires
// handler once per order update. A "filled" status is only terminal
// (AllFilled) when cumSz == sz; otherwise it is a partial-fill progress
// event and is forwarded with its status rewritten to "partial", which
// the normalizer treats as non-terminal.
func (c *DEXClient) SubscribeUserStream(ctx context.Context, handler UserStreamHandler) error {
	return runWithBackoff(ctx, c.logger, "dex_user", func(ctx context.Context) error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WSURL, nil)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close()

		if err := conn.WriteJSON(map[string]interface{}{
			"method":       "subscribe",
			"subscription": map[string]string{"type": "orderUpdates", "user": c.cfg.Wallet},
		}); err != nil {
			return fmt.Errorf("subscribe orderUpdates: %w", err)
		}

		return readLoop(ctx, conn, dexReadTimeout, dexPingInterval, func(data []byte) {
			var env dexWSEnvelope
			if err := json.Unmarshal(data, &env); err != nil || env.Channel != "orderUpdates" {
				return
			}
			var updates dexOrderUpdatesData
			if err := json.Unmarshal(env.Data, &updates); err != nil {
				return
			}
			for _, u := range updates.OrderUpdates {
				if u.OrderID == "" {
					continue
				}
				cum, _ := decimal.NewFromString(u.CumSz)
				total, _ := decimal.NewFromString(u.Sz)
				status := u.Status
				if status == "filled" && !cum.Equal(total) {
					status = "partial"
				}
				handler(types.RawOrderEvent{
					Venue:        types.DEX,
					OrderID:      u.OrderID,
					Status:       status,
					CumFilledQty: cum,
					TotalQty:     total,
				})
			}
		})
	})
}
