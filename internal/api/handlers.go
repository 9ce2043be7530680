package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spot-matching/internal/account"
	"spot-matching/internal/engine"
	"spot-matching/internal/logger"
	"spot-matching/internal/matching"
	"spot-matching/internal/pairspec"
	"spot-matching/internal/projection"
)

const (
	defaultDepth     = 20
	maxDepth         = 500
	defaultListLimit = 100
	maxListLimit     = 1000
)

// orderNamespace scopes order ids derived from idempotency keys.
var orderNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("spot-matching/orders"))

// Engine is the part of the matching engine the API drives
type Engine interface {
	PlaceCommand(req *matching.PlaceOrderRequest) (*engine.CommandEnvelope, error)
	CancelCommand(req *matching.CancelOrderRequest) (*engine.CommandEnvelope, error)
	Execute(ctx context.Context, envelope *engine.CommandEnvelope) *engine.CommandExecResult
	Query(ctx context.Context, pair, orderID, accountID string) (*matching.Order, error)
	BookSnapshot(ctx context.Context, pair string, depth int) (*matching.BookSnapshotEvent, error)
}

// Handler handles HTTP requests for the order API
type Handler struct {
	engine   Engine
	accounts account.Service
	pairs    *pairspec.Registry
	orders   projection.OrderRepository
	trades   projection.TradeRepository
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		engine:   deps.Engine,
		accounts: deps.Accounts,
		pairs:    deps.Pairs,
		orders:   deps.Orders,
		trades:   deps.Trades,
		logger:   logger.OrNop(deps.Logger),
	}
}

// PlaceOrder handles POST /v1/orders
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorResponse(c, http.StatusBadRequest, engine.ErrorCodeInvalidArgument, "invalid request body: "+err.Error())
		return
	}

	placeReq, err := h.toPlaceRequest(&req)
	if err != nil {
		writeError(c, err)
		return
	}

	envelope, err := h.engine.PlaceCommand(placeReq)
	if err != nil {
		writeError(c, err)
		return
	}
	result := h.engine.Execute(c.Request.Context(), envelope)
	if result.ErrorCode != engine.ErrorCodeNone {
		statusCode, errResp := MapEngineErrorToHTTP(result.ErrorCode, result.Err)
		c.JSON(statusCode, errResp)
		return
	}

	cr, ok := result.Result.(*matching.CommandResult)
	if !ok || cr.Order == nil {
		writeErrorResponse(c, http.StatusInternalServerError, engine.ErrorCodeInternalError, "invalid result type")
		return
	}

	resp := PlaceOrderResponse{
		Order:  orderFromEngine(cr.Order),
		Trades: make([]TradeDTO, 0, len(cr.Trades)),
	}
	for _, t := range cr.Trades {
		resp.Trades = append(resp.Trades, tradeFromEngine(t))
	}
	c.JSON(http.StatusOK, resp)
}

// CancelOrder handles DELETE /v1/orders/:order_id
func (h *Handler) CancelOrder(c *gin.Context) {
	orderID := c.Param("order_id")
	accountID := c.Query("account_id")
	if accountID == "" {
		writeErrorResponse(c, http.StatusBadRequest, engine.ErrorCodeInvalidArgument, "account_id required")
		return
	}
	pair, err := h.pairOf(c, orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	envelope, err := h.engine.CancelCommand(&matching.CancelOrderRequest{
		OrderID:        orderID,
		AccountID:      accountID,
		Pair:           pair,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	result := h.engine.Execute(c.Request.Context(), envelope)
	if result.ErrorCode != engine.ErrorCodeNone {
		statusCode, errResp := MapEngineErrorToHTTP(result.ErrorCode, result.Err)
		c.JSON(statusCode, errResp)
		return
	}

	cr, ok := result.Result.(*matching.CommandResult)
	if !ok || cr.Order == nil {
		writeErrorResponse(c, http.StatusInternalServerError, engine.ErrorCodeInternalError, "invalid result type")
		return
	}
	c.JSON(http.StatusOK, CancelOrderResponse{
		OrderID:      cr.Order.ID,
		Status:       string(cr.Order.Status),
		RemainingQty: cr.Order.RemainingQty.String(),
		FilledQty:    cr.Order.FilledQty.String(),
	})
}

// QueryOrder handles GET /v1/orders/:order_id
func (h *Handler) QueryOrder(c *gin.Context) {
	orderID := c.Param("order_id")
	accountID := c.Query("account_id")
	if accountID == "" {
		writeErrorResponse(c, http.StatusBadRequest, engine.ErrorCodeInvalidArgument, "account_id required")
		return
	}
	pair, err := h.pairOf(c, orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	order, err := h.engine.Query(c.Request.Context(), pair, orderID, accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderFromEngine(order))
}

// ListOrders handles GET /v1/orders?account_id=|pair=[&status=], newest first
func (h *Handler) ListOrders(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultListLimit, maxListLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	filter := projection.OrderFilter{AccountID: c.Query("account_id"), Limit: limit}
	if pair := c.Query("pair"); pair != "" {
		filter.Pair = h.canonical(pair)
	}
	if filter.AccountID == "" && filter.Pair == "" {
		writeError(c, fmt.Errorf("%w: account_id or pair required", matching.ErrValidation))
		return
	}
	if raw := c.Query("status"); raw != "" {
		if filter.Status, err = matching.ParseOrderStatus(raw); err != nil {
			writeError(c, err)
			return
		}
	}

	views, err := h.orders.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]OrderDTO, 0, len(views))
	for _, v := range views {
		out = append(out, orderFromView(v))
	}
	c.JSON(http.StatusOK, out)
}

// ListTrades handles GET /v1/trades?account_id=|order_id=|pair=
func (h *Handler) ListTrades(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultListLimit, maxListLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()

	var views []*projection.TradeView
	switch {
	case c.Query("account_id") != "":
		views, err = h.trades.ListByAccount(ctx, c.Query("account_id"), limit)
	case c.Query("order_id") != "":
		views, err = h.trades.ListByOrder(ctx, c.Query("order_id"), limit)
	case c.Query("pair") != "":
		var from int
		if from, err = intQuery(c, "from_sequence", 0, 0); err == nil {
			views, err = h.trades.ListByPair(ctx, h.canonical(c.Query("pair")), int64(from), limit)
		}
	default:
		err = fmt.Errorf("%w: account_id, order_id or pair required", matching.ErrValidation)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]TradeDTO, 0, len(views))
	for _, v := range views {
		out = append(out, tradeFromView(v))
	}
	c.JSON(http.StatusOK, out)
}

// GetOrderBook handles GET /v1/books/:base/:quote
func (h *Handler) GetOrderBook(c *gin.Context) {
	depth, err := intQuery(c, "depth", defaultDepth, maxDepth)
	if err != nil {
		writeError(c, err)
		return
	}
	pair := c.Param("base") + "/" + c.Param("quote")

	snap, err := h.engine.BookSnapshot(c.Request.Context(), pair, depth)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrderBookResponse{
		Pair:     snap.Pair(),
		Sequence: snap.Sequence(),
		Bids:     levelsFrom(snap.Depth.Bids),
		Asks:     levelsFrom(snap.Depth.Asks),
	})
}

// Deposit handles POST /v1/accounts/:account_id/deposits
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorResponse(c, http.StatusBadRequest, engine.ErrorCodeInvalidArgument, "invalid request body: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		writeErrorResponse(c, http.StatusBadRequest, engine.ErrorCodeInvalidArgument, "amount must be a positive decimal")
		return
	}

	accountID := c.Param("account_id")
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := h.accounts.Deposit(c.Request.Context(), accountID, currency, amount); err != nil {
		writeError(c, err)
		return
	}
	h.logger.Info("deposit",
		zap.String("account_id", accountID),
		zap.String("currency", currency),
		zap.String("amount", amount.String()))

	bal, err := h.accounts.GetBalance(accountID, currency)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceFrom(currency, bal))
}

// GetBalances handles GET /v1/accounts/:account_id/balances
func (h *Handler) GetBalances(c *gin.Context) {
	balances := h.accounts.Balances(c.Param("account_id"))
	currencies := make([]string, 0, len(balances))
	for cur := range balances {
		currencies = append(currencies, cur)
	}
	sort.Strings(currencies)

	out := make([]BalanceDTO, 0, len(currencies))
	for _, cur := range currencies {
		out = append(out, balanceFrom(cur, balances[cur]))
	}
	c.JSON(http.StatusOK, out)
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pairs": h.pairs.Symbols()})
}

// Helper functions

func (h *Handler) toPlaceRequest(req *PlaceOrderRequest) (*matching.PlaceOrderRequest, error) {
	pair, err := h.pairs.Get(req.Pair)
	if err != nil {
		return nil, err
	}
	side := matching.Side(strings.ToUpper(req.Side))
	if !side.IsValid() {
		return nil, fmt.Errorf("%w: side must be BUY or SELL", matching.ErrValidation)
	}
	typ := matching.OrderTypeLimit
	if req.Type != "" {
		typ = matching.OrderType(strings.ToUpper(req.Type))
	}

	qty, err := pairspec.ParseAmount(req.Quantity, pair.QuantityScale)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid quantity: %v", matching.ErrValidation, err)
	}
	price := decimal.Zero
	if typ == matching.OrderTypeLimit {
		price, err = pairspec.ParseAmount(req.Price, pair.PriceScale)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid price: %v", matching.ErrValidation, err)
		}
	} else if strings.TrimSpace(req.Price) != "" {
		return nil, fmt.Errorf("%w: market orders must not carry a price", matching.ErrValidation)
	}

	placeReq := &matching.PlaceOrderRequest{
		ClientOrderID:  req.ClientOrderID,
		AccountID:      req.AccountID,
		Pair:           pair.Symbol,
		Side:           side,
		Type:           typ,
		Price:          price,
		Quantity:       qty,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.IdempotencyKey != "" {
		placeReq.OrderID = orderIDFromIdempotencyKey(req.AccountID, req.IdempotencyKey)
	}
	return placeReq, nil
}

// pairOf returns the pair query parameter, or the pair the read model recorded for the order.
func (h *Handler) pairOf(c *gin.Context, orderID string) (string, error) {
	if pair := c.Query("pair"); pair != "" {
		return pair, nil
	}
	view, err := h.orders.GetByID(c.Request.Context(), orderID)
	if err != nil {
		return "", err
	}
	return view.Pair, nil
}

func (h *Handler) canonical(pair string) string {
	if p, err := h.pairs.Get(pair); err == nil {
		return p.Symbol
	}
	return pair
}

func intQuery(c *gin.Context, key string, def, max int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", matching.ErrValidation, key)
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}

// orderIDFromIdempotencyKey derives a stable order id so a retried request names the same order.
func orderIDFromIdempotencyKey(accountID, idempotencyKey string) string {
	return "ord_" + uuid.NewSHA1(orderNamespace, []byte(accountID+"|"+idempotencyKey)).String()
}

func writeError(c *gin.Context, err error) {
	statusCode, errResp := MapErrorToHTTP(err)
	c.JSON(statusCode, errResp)
}

func writeErrorResponse(c *gin.Context, statusCode int, code engine.ErrorCode, message string) {
	c.JSON(statusCode, ErrorResponse{
		Code:    string(code),
		Message: message,
	})
}
