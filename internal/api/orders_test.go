package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-matching/internal/account"
	"spot-matching/internal/engine"
	"spot-matching/internal/events"
	"spot-matching/internal/pairspec"
	"spot-matching/internal/projection"
)

type testServer struct {
	router *Router
	ledger *account.MemoryService
	eng    *engine.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pair, err := pairspec.NewPair("BTC/USDT", 2, 4, 8)
	require.NoError(t, err)
	pairs, err := pairspec.NewRegistry(pair)
	require.NoError(t, err)

	ledger := account.NewMemoryService()
	orders := projection.NewMemoryOrderRepository()
	trades := projection.NewMemoryTradeRepository()
	bus := events.NewBus(nil)
	bus.Subscribe("projection", projection.NewProjector(orders, trades).Handle)

	eng, err := engine.NewEngine(engine.DefaultEngineConfig(), engine.Dependencies{
		Pairs:     pairs,
		Ledger:    ledger,
		Publisher: bus,
	})
	require.NoError(t, err)
	eng.Start()
	t.Cleanup(eng.Stop)

	return &testServer{
		router: NewRouter(Dependencies{
			Engine:   eng,
			Accounts: ledger,
			Pairs:    pairs,
			Orders:   orders,
			Trades:   trades,
		}),
		ledger: ledger,
		eng:    eng,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) deposit(t *testing.T, accountID, currency, amount string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/accounts/"+accountID+"/deposits", DepositRequest{Currency: currency, Amount: amount})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func limitOrder(accountID, side, price, qty, key string) PlaceOrderRequest {
	return PlaceOrderRequest{
		ClientOrderID:  "c-" + key,
		AccountID:      accountID,
		Pair:           "BTC/USDT",
		Side:           side,
		Type:           "LIMIT",
		Price:          price,
		Quantity:       qty,
		IdempotencyKey: key,
	}
}

func TestPlaceOrder_Success(t *testing.T) {
	s := newTestServer(t)
	s.deposit(t, "acc1", "USDT", "1000")

	w := s.do(t, http.MethodPost, "/v1/orders", limitOrder("acc1", "BUY", "100", "1", "k1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[PlaceOrderResponse](t, w)
	assert.Equal(t, orderIDFromIdempotencyKey("acc1", "k1"), resp.Order.OrderID)
	assert.Equal(t, "c-k1", resp.Order.ClientOrderID)
	assert.Equal(t, "OPEN", resp.Order.Status)
	assert.Empty(t, resp.Trades)

	// notional 100 plus the 0.1% fee allowance
	w = s.do(t, http.MethodGet, "/v1/accounts/acc1/balances", nil)
	require.Equal(t, http.StatusOK, w.Code)
	balances := decode[[]BalanceDTO](t, w)
	require.Len(t, balances, 1)
	assert.Equal(t, "USDT", balances[0].Currency)
	assert.Equal(t, "100.1", balances[0].Frozen)
	assert.Equal(t, "899.9", balances[0].Available)
}

func TestPlaceOrder_InsufficientBalance(t *testing.T) {
	s := newTestServer(t)
	s.deposit(t, "acc1", "USDT", "50")

	w := s.do(t, http.MethodPost, "/v1/orders", limitOrder("acc1", "BUY", "100", "1", "k1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(engine.ErrorCodeInsufficientBalance), decode[ErrorResponse](t, w).Code)

	// the rejection is visible in the read model
	w = s.do(t, http.MethodGet, "/v1/orders?account_id=acc1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orders := decode[[]OrderDTO](t, w)
	require.Len(t, orders, 1)
	assert.Equal(t, "REJECTED", orders[0].Status)
	assert.NotEmpty(t, orders[0].RejectReason)
}

func TestPlaceOrder_Validation(t *testing.T) {
	s := newTestServer(t)
	s.deposit(t, "acc1", "USDT", "1000")

	cases := []struct {
		name string
		req  PlaceOrderRequest
		code engine.ErrorCode
	}{
		{"bad side", limitOrder("acc1", "HOLD", "100", "1", "a"), engine.ErrorCodeInvalidArgument},
		{"price precision", limitOrder("acc1", "BUY", "100.123", "1", "b"), engine.ErrorCodeInvalidArgument},
		{"zero quantity", limitOrder("acc1", "BUY", "100", "0", "c"), engine.ErrorCodeInvalidArgument},
		{"market with price", func() PlaceOrderRequest {
			r := limitOrder("acc1", "BUY", "100", "1", "d")
			r.Type = "MARKET"
			return r
		}(), engine.ErrorCodeInvalidArgument},
		{"unknown pair", func() PlaceOrderRequest {
			r := limitOrder("acc1", "BUY", "100", "1", "e")
			r.Pair = "DOGE/USDT"
			return r
		}(), engine.ErrorCodeUnknownPair},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/v1/orders", tc.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, string(tc.code), decode[ErrorResponse](t, w).Code)
		})
	}

	w := s.do(t, http.MethodPost, "/v1/orders", map[string]string{"pair": "BTC/USDT"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlaceOrder_IdempotentRetry(t *testing.T) {
	s := newTestServer(t)
	s.deposit(t, "acc1", "USDT", "1000")

	req := limitOrder("acc1", "BUY", "100", "1", "k1")
	first := decode[PlaceOrderResponse](t, s.do(t, http.MethodPost, "/v1/orders", req))
	w := s.do(t, http.MethodPost, "/v1/orders", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.Order.OrderID, decode[PlaceOrderResponse](t, w).Order.OrderID)

	bal, err := s.ledger.GetBalance("acc1", "USDT")
	require.NoError(t, err)
	assert.Equal(t, "100.1", bal.Frozen.String(), "retry must not reserve twice")

	req.Quantity = "2"
	w = s.do(t, http.MethodPost, "/v1/orders", req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(engine.ErrorCodeDuplicateRequest), decode[ErrorResponse](t, w).Code)
}

func TestMatchingThroughAPI(t *testing.T) {
	s := newTestServer(t)
	s.deposit(t, "seller", "BTC", "2")
	s.deposit(t, "buyer", "USDT", "1000")

	w := s.do(t, http.MethodPost, "/v1/orders", limitOrder("seller", "SELL", "100", "1", "s1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sell := decode[PlaceOrderResponse](t, w)

	w = s.do(t, http.MethodPost, "/v1/orders", limitOrder("buyer", "BUY", "101", "0.4", "b1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	buy := decode[PlaceOrderResponse](t, w)
	assert.Equal(t, "FILLED", buy.Order.Status)
	require.Len(t, buy.Trades, 1)
	assert.Equal(t, "100", buy.Trades[0].Price, "trades execute at the maker's price")
	assert.Equal(t, "0.4", buy.Trades[0].Quantity)
	assert.Equal(t, sell.Order.OrderID, buy.Trades[0].MakerOrderID)

	w = s.do(t, http.MethodGet, "/v1/books/btc/usdt?depth=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	book := decode[OrderBookResponse](t, w)
	assert.Equal(t, "BTC/USDT", book.Pair)
	assert.Empty(t, book.Bids)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, "0.6", book.Asks[0].Quantity)
	assert.Equal(t, "60", book.Asks[0].Total)

	w = s.do(t, http.MethodGet, "/v1/orders/"+sell.Order.OrderID+"?account_id=seller", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "PARTIALLY_FILLED", decode[OrderDTO](t, w).Status)

	w = s.do(t, http.MethodGet, "/v1/trades?account_id=buyer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]TradeDTO](t, w), 1)

	w = s.do(t, http.MethodGet, "/v1/trades?pair=BTC/USDT&from_sequence=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]TradeDTO](t, w))
}

func TestListOrdersHistory(t *testing.T) {
	s := newTestServer(t)
	s.deposit(t, "seller", "BTC", "1")
	s.deposit(t, "buyer", "USDT", "1000")

	place := func(req PlaceOrderRequest) OrderDTO {
		w := s.do(t, http.MethodPost, "/v1/orders", req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode[PlaceOrderResponse](t, w).Order
	}
	place(limitOrder("seller", "SELL", "100", "1", "s1"))
	filled := place(limitOrder("buyer", "BUY", "101", "0.4", "b1"))
	cancelled := place(limitOrder("buyer", "BUY", "90", "1", "b2"))
	w := s.do(t, http.MethodDelete, "/v1/orders/"+cancelled.OrderID+"?account_id=buyer", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	open := place(limitOrder("buyer", "BUY", "95", "1", "b3"))

	list := func(query string) []OrderDTO {
		w := s.do(t, http.MethodGet, "/v1/orders?"+query, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode[[]OrderDTO](t, w)
	}
	ids := func(orders []OrderDTO) []string {
		out := make([]string, 0, len(orders))
		for _, o := range orders {
			out = append(out, o.OrderID)
		}
		return out
	}

	assert.Equal(t, []string{open.OrderID, cancelled.OrderID, filled.OrderID}, ids(list("account_id=buyer")))
	assert.Equal(t, []string{open.OrderID}, ids(list("account_id=buyer&limit=1")))

	got := list("account_id=buyer&status=filled")
	require.Len(t, got, 1)
	assert.Equal(t, filled.OrderID, got[0].OrderID)
	assert.Equal(t, "0.04", got[0].Fee)
	assert.Equal(t, "USDT", got[0].FeeCurrency)
	assert.NotNil(t, got[0].FilledAt)
	assert.Nil(t, got[0].CancelledAt)

	got = list("pair=BTC/USDT&status=CANCELLED")
	require.Len(t, got, 1)
	assert.Equal(t, cancelled.OrderID, got[0].OrderID)
	assert.NotNil(t, got[0].CancelledAt)
	assert.Empty(t, got[0].Fee)

	w = s.do(t, http.MethodGet, "/v1/orders?account_id=buyer&status=PENDING", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelOrder(t *testing.T) {
	s := newTestServer(t)
	s.deposit(t, "acc1", "USDT", "1000")
	order := decode[PlaceOrderResponse](t, s.do(t, http.MethodPost, "/v1/orders", limitOrder("acc1", "BUY", "100", "1", "k1"))).Order

	w := s.do(t, http.MethodDelete, "/v1/orders/"+order.OrderID+"?account_id=other&pair=BTC/USDT", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodDelete, "/v1/orders/"+order.OrderID+"?account_id=acc1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[CancelOrderResponse](t, w)
	assert.Equal(t, "CANCELLED", resp.Status)
	assert.Equal(t, "1", resp.RemainingQty)

	bal, err := s.ledger.GetBalance("acc1", "USDT")
	require.NoError(t, err)
	assert.True(t, bal.Frozen.IsZero())
	assert.Equal(t, "1000", bal.Available.String())

	w = s.do(t, http.MethodDelete, "/v1/orders/"+order.OrderID+"?account_id=acc1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(engine.ErrorCodeOrderAlreadyTerminal), decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodDelete, "/v1/orders/missing?account_id=acc1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEndpointsRequireFilter(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/orders", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/trades", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/books/BTC/USDT?depth=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/books/DOGE/USDT", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
}

func TestMapEngineErrorToHTTP(t *testing.T) {
	cases := map[engine.ErrorCode]int{
		engine.ErrorCodeInvalidArgument:      http.StatusBadRequest,
		engine.ErrorCodeOrderNotFound:        http.StatusNotFound,
		engine.ErrorCodeOrderAlreadyTerminal: http.StatusConflict,
		engine.ErrorCodeUnauthorized:         http.StatusForbidden,
		engine.ErrorCodeDuplicateRequest:     http.StatusConflict,
		engine.ErrorCodeLaneHalted:           http.StatusServiceUnavailable,
		engine.ErrorCodeUnavailable:          http.StatusServiceUnavailable,
		engine.ErrorCodeInternalError:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		status, resp := MapEngineErrorToHTTP(code, nil)
		assert.Equal(t, want, status, code)
		assert.Equal(t, string(code), resp.Code)
		assert.NotEmpty(t, resp.Message)
	}
}
