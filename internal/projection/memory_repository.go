package projection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryOrderRepository is an in-memory implementation of OrderRepository
type MemoryOrderRepository struct {
	mu sync.RWMutex

	// Primary storage: order_id -> OrderView
	orders map[string]*OrderView

	// Indexes for efficient queries, in first-seen order
	byClientOrderID map[string]map[string]*OrderView // account_id -> client_order_id -> OrderView
	byAccount       map[string][]*OrderView          // account_id -> []*OrderView
	byPair          map[string][]*OrderView          // pair -> []*OrderView

	// Last applied sequence per pair
	lastSequence map[string]int64 // pair -> last_sequence
}

// NewMemoryOrderRepository creates a new in-memory order repository
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:          make(map[string]*OrderView),
		byClientOrderID: make(map[string]map[string]*OrderView),
		byAccount:       make(map[string][]*OrderView),
		byPair:          make(map[string][]*OrderView),
		lastSequence:    make(map[string]int64),
	}
}

// Save creates or updates an order view. Owner and pair of an order never change.
func (r *MemoryOrderRepository) Save(ctx context.Context, order *OrderView) error {
	if order == nil || order.OrderID == "" {
		return ErrInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	orderCopy := cloneOrderView(order)

	existing, exists := r.orders[orderCopy.OrderID]
	if exists {
		if existing.AccountID != orderCopy.AccountID || existing.Pair != orderCopy.Pair {
			return fmt.Errorf("%w: order %s changed owner or pair", ErrInvalidArgument, orderCopy.OrderID)
		}
		replace(r.byAccount[existing.AccountID], existing, orderCopy)
		replace(r.byPair[existing.Pair], existing, orderCopy)
	} else {
		r.byAccount[orderCopy.AccountID] = append(r.byAccount[orderCopy.AccountID], orderCopy)
		r.byPair[orderCopy.Pair] = append(r.byPair[orderCopy.Pair], orderCopy)
	}
	if orderCopy.ClientOrderID != "" {
		if _, ok := r.byClientOrderID[orderCopy.AccountID]; !ok {
			r.byClientOrderID[orderCopy.AccountID] = make(map[string]*OrderView)
		}
		r.byClientOrderID[orderCopy.AccountID][orderCopy.ClientOrderID] = orderCopy
	}
	r.orders[orderCopy.OrderID] = orderCopy
	return nil
}

func replace(views []*OrderView, old, next *OrderView) {
	for i, v := range views {
		if v == old {
			views[i] = next
			return
		}
	}
}

// GetByID retrieves an order by order_id
func (r *MemoryOrderRepository) GetByID(ctx context.Context, orderID string) (*OrderView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.orders[orderID]
	if !exists {
		return nil, ErrOrderNotFound
	}

	return cloneOrderView(order), nil
}

// GetByClientOrderID retrieves an order by client_order_id and account_id
func (r *MemoryOrderRepository) GetByClientOrderID(ctx context.Context, accountID, clientOrderID string) (*OrderView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.byClientOrderID[accountID][clientOrderID]
	if !exists {
		return nil, ErrOrderNotFound
	}

	return cloneOrderView(order), nil
}

// List retrieves the orders matching filter, newest first
func (r *MemoryOrderRepository) List(ctx context.Context, filter OrderFilter) ([]*OrderView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var index []*OrderView
	switch {
	case filter.AccountID != "":
		index = r.byAccount[filter.AccountID]
	case filter.Pair != "":
		index = r.byPair[filter.Pair]
	default:
		return nil, fmt.Errorf("%w: account or pair required", ErrInvalidArgument)
	}

	out := make([]*OrderView, 0)
	for i := len(index) - 1; i >= 0; i-- {
		if !filter.matches(index[i]) {
			continue
		}
		out = append(out, cloneOrderView(index[i]))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// GetLastSequence returns the last applied sequence number for a pair
func (r *MemoryOrderRepository) GetLastSequence(ctx context.Context, pair string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastSequence[pair], nil
}

// SetLastSequence updates the last applied sequence number for a pair
func (r *MemoryOrderRepository) SetLastSequence(ctx context.Context, pair string, sequence int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.lastSequence[pair]
	if sequence < current {
		return fmt.Errorf("%w: pair=%s current=%d new=%d", ErrSequenceRegression, pair, current, sequence)
	}

	r.lastSequence[pair] = sequence
	return nil
}

// MemoryTradeRepository is an in-memory implementation of TradeRepository
type MemoryTradeRepository struct {
	mu sync.RWMutex

	// Primary storage: trade_id -> TradeView
	trades map[string]*TradeView

	// Indexes for efficient queries
	byPair    map[string][]*TradeView // pair -> []*TradeView (sorted by trade sequence)
	byOrder   map[string][]*TradeView // order_id -> []*TradeView
	byAccount map[string][]*TradeView // account_id -> []*TradeView

	// Last applied sequence per pair
	lastSequence map[string]int64 // pair -> last_sequence
}

// NewMemoryTradeRepository creates a new in-memory trade repository
func NewMemoryTradeRepository() *MemoryTradeRepository {
	return &MemoryTradeRepository{
		trades:       make(map[string]*TradeView),
		byPair:       make(map[string][]*TradeView),
		byOrder:      make(map[string][]*TradeView),
		byAccount:    make(map[string][]*TradeView),
		lastSequence: make(map[string]int64),
	}
}

// Save creates a trade view. Trades are immutable: saving the same trade twice is a
// no-op and a different trade under a known id is a conflict.
func (r *MemoryTradeRepository) Save(ctx context.Context, trade *TradeView) error {
	if trade == nil || trade.TradeID == "" {
		return ErrInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tradeCopy := cloneTradeView(trade)

	if existing, exists := r.trades[tradeCopy.TradeID]; exists {
		if sameTrade(existing, tradeCopy) {
			return nil
		}
		return fmt.Errorf("%w: trade_id=%s", ErrTradeConflict, tradeCopy.TradeID)
	}

	r.trades[tradeCopy.TradeID] = tradeCopy

	trades := append(r.byPair[tradeCopy.Pair], tradeCopy)
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].TradeSequence < trades[j].TradeSequence
	})
	r.byPair[tradeCopy.Pair] = trades

	r.byOrder[tradeCopy.MakerOrderID] = append(r.byOrder[tradeCopy.MakerOrderID], tradeCopy)
	r.byOrder[tradeCopy.TakerOrderID] = append(r.byOrder[tradeCopy.TakerOrderID], tradeCopy)

	r.byAccount[tradeCopy.MakerAccountID] = append(r.byAccount[tradeCopy.MakerAccountID], tradeCopy)
	if tradeCopy.TakerAccountID != tradeCopy.MakerAccountID {
		r.byAccount[tradeCopy.TakerAccountID] = append(r.byAccount[tradeCopy.TakerAccountID], tradeCopy)
	}

	return nil
}

// GetByID retrieves a trade by trade_id
func (r *MemoryTradeRepository) GetByID(ctx context.Context, tradeID string) (*TradeView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trade, exists := r.trades[tradeID]
	if !exists {
		return nil, ErrTradeNotFound
	}

	return cloneTradeView(trade), nil
}

// ListByPair retrieves trades for a specific pair
func (r *MemoryTradeRepository) ListByPair(ctx context.Context, pair string, fromSequence int64, limit int) ([]*TradeView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trades := r.byPair[pair]
	if fromSequence > 0 {
		i := sort.Search(len(trades), func(i int) bool { return trades[i].TradeSequence >= fromSequence })
		trades = trades[i:]
	}

	return cloneTradeViews(limited(trades, limit)), nil
}

// ListByOrder retrieves trades for a specific order
func (r *MemoryTradeRepository) ListByOrder(ctx context.Context, orderID string, limit int) ([]*TradeView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return cloneTradeViews(limited(r.byOrder[orderID], limit)), nil
}

// ListByAccount retrieves trades of an account
func (r *MemoryTradeRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*TradeView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return cloneTradeViews(limited(r.byAccount[accountID], limit)), nil
}

// GetLastSequence returns the last applied sequence number for a pair
func (r *MemoryTradeRepository) GetLastSequence(ctx context.Context, pair string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastSequence[pair], nil
}

// SetLastSequence updates the last applied sequence number for a pair
func (r *MemoryTradeRepository) SetLastSequence(ctx context.Context, pair string, sequence int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.lastSequence[pair]
	if sequence < current {
		return fmt.Errorf("%w: pair=%s current=%d new=%d", ErrSequenceRegression, pair, current, sequence)
	}

	r.lastSequence[pair] = sequence
	return nil
}

func limited[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

func cloneOrderView(in *OrderView) *OrderView {
	if in == nil {
		return nil
	}
	cp := *in
	cp.FilledAt = cloneTime(in.FilledAt)
	cp.CancelledAt = cloneTime(in.CancelledAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneTradeView(in *TradeView) *TradeView {
	if in == nil {
		return nil
	}
	cp := *in
	return &cp
}

func cloneTradeViews(in []*TradeView) []*TradeView {
	out := make([]*TradeView, 0, len(in))
	for _, v := range in {
		out = append(out, cloneTradeView(v))
	}
	return out
}

func sameTrade(a, b *TradeView) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.TradeID == b.TradeID &&
		a.Pair == b.Pair &&
		a.MakerOrderID == b.MakerOrderID &&
		a.TakerOrderID == b.TakerOrderID &&
		a.MakerAccountID == b.MakerAccountID &&
		a.TakerAccountID == b.TakerAccountID &&
		a.TakerSide == b.TakerSide &&
		a.Price.Equal(b.Price) &&
		a.Quantity.Equal(b.Quantity) &&
		a.MakerFee.Equal(b.MakerFee) &&
		a.TakerFee.Equal(b.TakerFee) &&
		a.TradeSequence == b.TradeSequence &&
		a.OccurredAt.Equal(b.OccurredAt)
}
