package matching

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// OrderBook holds the resting orders of one pair. It is not safe for concurrent use:
// the pair's lane is its only writer.
type OrderBook struct {
	Pair    string
	bids    *btree.BTreeG[*PriceLevel] // Min() is the highest bid
	asks    *btree.BTreeG[*PriceLevel] // Min() is the lowest ask
	orders  map[string]*Order          // resting order_id -> Order
	retired map[string]*Order          // terminal order_id -> final copy

	retiredIDs []string // retirement order, oldest first
	retention  int      // retired orders kept, <= 0 keeps all

	journalSeq int64 // journal entries, rejections included
	commandSeq int64 // admitted commands; an order's admission sequence is its submit's
	tradeSeq   int64
	eventSeq   int64
}

// DefaultRetention is the number of terminal orders a book remembers.
const DefaultRetention = 10000

// NewOrderBook creates an empty order book
func NewOrderBook(pair string) *OrderBook {
	return &OrderBook{
		Pair: pair,
		bids: btree.NewBTreeGOptions(func(a, b *PriceLevel) bool {
			return a.Price.GreaterThan(b.Price)
		}, btree.Options{NoLocks: true}),
		asks: btree.NewBTreeGOptions(func(a, b *PriceLevel) bool {
			return a.Price.LessThan(b.Price)
		}, btree.Options{NoLocks: true}),
		orders:    make(map[string]*Order),
		retired:   make(map[string]*Order),
		retention: DefaultRetention,
	}
}

// SetRetention bounds the retired set to n orders, evicting the oldest retirements.
func (ob *OrderBook) SetRetention(n int) {
	ob.retention = n
	ob.evict()
}

func (ob *OrderBook) side(s Side) *btree.BTreeG[*PriceLevel] {
	if s == SideBuy {
		return ob.bids
	}
	return ob.asks
}

// NextJournalSequence assigns the next journal entry sequence.
func (ob *OrderBook) NextJournalSequence() int64 {
	ob.journalSeq++
	return ob.journalSeq
}

// NextCommandSequence assigns the next command sequence.
func (ob *OrderBook) NextCommandSequence() int64 {
	ob.commandSeq++
	return ob.commandSeq
}

// NextTradeSequence assigns the next trade sequence.
func (ob *OrderBook) NextTradeSequence() int64 {
	ob.tradeSeq++
	return ob.tradeSeq
}

// NextEventSequence assigns the next event sequence.
func (ob *OrderBook) NextEventSequence() int64 {
	ob.eventSeq++
	return ob.eventSeq
}

// Sequences is the counter state of a book, persisted with snapshots.
type Sequences struct {
	Journal int64 `json:"journal"`
	Command int64 `json:"command"`
	Trade   int64 `json:"trade"`
	Event   int64 `json:"event"`
}

// Sequences returns the last assigned sequences.
func (ob *OrderBook) Sequences() Sequences {
	return Sequences{Journal: ob.journalSeq, Command: ob.commandSeq, Trade: ob.tradeSeq, Event: ob.eventSeq}
}

// RestoreSequences resets the counters, used when loading a snapshot.
func (ob *OrderBook) RestoreSequences(s Sequences) {
	ob.journalSeq = s.Journal
	ob.commandSeq = s.Command
	ob.tradeSeq = s.Trade
	ob.eventSeq = s.Event
}

// SkipEventsTo advances the event counter so the next event gets seq+1.
func (ob *OrderBook) SkipEventsTo(seq int64) {
	if seq > ob.eventSeq {
		ob.eventSeq = seq
	}
}

// Insert rests a live limit order at the back of its price level.
func (ob *OrderBook) Insert(order *Order) error {
	if order.Type != OrderTypeLimit {
		return fmt.Errorf("%w: only limit orders rest, got %s", ErrValidation, order.Type)
	}
	if order.IsTerminal() || !order.RemainingQty.IsPositive() {
		return fmt.Errorf("%w: order %s cannot rest with status %s", ErrInvariantViolation, order.ID, order.Status)
	}
	if _, ok := ob.orders[order.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ID)
	}
	if _, ok := ob.retired[order.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ID)
	}
	tree := ob.side(order.Side)
	level, ok := tree.Get(&PriceLevel{Price: order.Price})
	if !ok {
		level = NewPriceLevel(order.Price)
		tree.Set(level)
	}
	level.AddOrder(order)
	ob.orders[order.ID] = order
	return nil
}

// Remove takes a resting order off the book without changing its status.
func (ob *OrderBook) Remove(orderID string) (*Order, error) {
	order, ok := ob.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	ob.detach(order)
	delete(ob.orders, orderID)
	return order, nil
}

func (ob *OrderBook) detach(order *Order) {
	tree := ob.side(order.Side)
	level, ok := tree.Get(&PriceLevel{Price: order.Price})
	if !ok {
		return
	}
	level.RemoveOrder(order)
	if level.IsEmpty() {
		tree.Delete(level)
	}
}

// Fill executes qty against a resting order. A fully filled order leaves the
// book and is retired.
func (ob *OrderBook) Fill(order *Order, qty decimal.Decimal, at time.Time) error {
	if _, ok := ob.orders[order.ID]; !ok {
		return fmt.Errorf("%w: fill on order %s not resting", ErrInvariantViolation, order.ID)
	}
	level, ok := ob.side(order.Side).Get(&PriceLevel{Price: order.Price})
	if !ok {
		return fmt.Errorf("%w: order %s has no price level", ErrInvariantViolation, order.ID)
	}
	if err := order.Fill(qty, at); err != nil {
		return err
	}
	level.Volume = level.Volume.Sub(qty)
	if order.Status == OrderStatusFilled {
		ob.detach(order)
		delete(ob.orders, order.ID)
		ob.Retire(order)
	}
	return nil
}

// Retire records the final state of a terminal order for later lookups. Once the
// retention is exceeded the oldest retirement is forgotten.
func (ob *OrderBook) Retire(order *Order) {
	if _, ok := ob.retired[order.ID]; !ok {
		ob.retiredIDs = append(ob.retiredIDs, order.ID)
	}
	ob.retired[order.ID] = order.Clone()
	ob.evict()
}

func (ob *OrderBook) evict() {
	for ob.retention > 0 && len(ob.retiredIDs) > ob.retention {
		delete(ob.retired, ob.retiredIDs[0])
		ob.retiredIDs[0] = ""
		ob.retiredIDs = ob.retiredIDs[1:]
	}
}

// Lookup finds a resting or retired order.
func (ob *OrderBook) Lookup(orderID string) (*Order, bool) {
	if o, ok := ob.orders[orderID]; ok {
		return o, true
	}
	o, ok := ob.retired[orderID]
	return o, ok
}

// Resting reports whether orderID is currently on the book.
func (ob *OrderBook) Resting(orderID string) bool {
	_, ok := ob.orders[orderID]
	return ok
}

// BestLevel returns the best price level of side, or nil when the side is empty.
func (ob *OrderBook) BestLevel(side Side) *PriceLevel {
	level, ok := ob.side(side).Min()
	if !ok {
		return nil
	}
	return level
}

// Level returns the level at price on side, or nil.
func (ob *OrderBook) Level(side Side, price decimal.Decimal) *PriceLevel {
	level, ok := ob.side(side).Get(&PriceLevel{Price: price})
	if !ok {
		return nil
	}
	return level
}

// BestBid returns the highest bid price.
func (ob *OrderBook) BestBid() (decimal.Decimal, bool) {
	if l := ob.BestLevel(SideBuy); l != nil {
		return l.Price, true
	}
	return decimal.Zero, false
}

// BestAsk returns the lowest ask price.
func (ob *OrderBook) BestAsk() (decimal.Decimal, bool) {
	if l := ob.BestLevel(SideSell); l != nil {
		return l.Price, true
	}
	return decimal.Zero, false
}

// Spread returns best ask - best bid when both sides are populated.
func (ob *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

// WalkLevels visits levels of side from best to worst until fn returns false.
func (ob *OrderBook) WalkLevels(side Side, fn func(level *PriceLevel) bool) {
	ob.side(side).Scan(fn)
}

// Depth aggregates the top n levels of each side. n <= 0 returns every level.
func (ob *OrderBook) Depth(n int) Depth {
	d := Depth{Pair: ob.Pair, Bids: []LevelDepth{}, Asks: []LevelDepth{}}
	collect := func(side Side, dst *[]LevelDepth) {
		ob.WalkLevels(side, func(level *PriceLevel) bool {
			if n > 0 && len(*dst) >= n {
				return false
			}
			*dst = append(*dst, LevelDepth{Price: level.Price, Quantity: level.Volume, Orders: level.Len()})
			return true
		})
	}
	collect(SideBuy, &d.Bids)
	collect(SideSell, &d.Asks)
	return d
}

// RestingOrders returns copies of all resting orders in admission order.
func (ob *OrderBook) RestingOrders() []*Order {
	out := make([]*Order, 0, len(ob.orders))
	for _, o := range ob.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// RetiredOrders returns copies of retired orders in retirement order. Retiring them
// in this order rebuilds the same eviction queue.
func (ob *OrderBook) RetiredOrders() []*Order {
	out := make([]*Order, 0, len(ob.retiredIDs))
	for _, id := range ob.retiredIDs {
		out = append(out, ob.retired[id].Clone())
	}
	return out
}

// Retired returns the number of remembered terminal orders.
func (ob *OrderBook) Retired() int {
	return len(ob.retired)
}

// Len returns the number of resting orders.
func (ob *OrderBook) Len() int {
	return len(ob.orders)
}

// CheckCrossed reports an error when resting liquidity crosses itself.
func (ob *OrderBook) CheckCrossed() error {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if okBid && okAsk && bid.GreaterThanOrEqual(ask) {
		return fmt.Errorf("%w: book crossed bid=%s ask=%s", ErrInvariantViolation, bid, ask)
	}
	return nil
}
