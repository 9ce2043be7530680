package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spot-matching/internal/account"
	"spot-matching/internal/matching"
	"spot-matching/internal/metrics"
)

var tradeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("spot-matching/trades"))

// TradeID derives the id of a pair's n-th trade. Replaying a journal reproduces it.
func TradeID(pair string, seq int64) string {
	return uuid.NewSHA1(tradeNamespace, []byte(pair+"|"+strconv.FormatInt(seq, 10))).String()
}

// match executes taker against the opposite side while it stays marketable. Each
// crossing level is split by the configured algorithm.
func (l *Lane) match(ctx context.Context, taker *matching.Order, now time.Time, res *matching.CommandResult) error {
	opposite := taker.Side.Opposite()
	for taker.RemainingQty.IsPositive() {
		level := l.book.BestLevel(opposite)
		if level == nil || !taker.Crosses(level.Price) {
			return nil
		}
		price := level.Price

		allocations := l.algorithm.Allocate(level, taker.RemainingQty, l.pair.QuantityScale)
		if len(allocations) == 0 {
			return fmt.Errorf("%w: %s allocated nothing at %s", matching.ErrInvariantViolation, l.algorithm.Kind(), price)
		}
		for _, a := range allocations {
			if err := l.fill(ctx, taker, a.Order, a.Quantity, price, now, res); err != nil {
				return err
			}
		}

		res.Events = append(res.Events, matching.NewBookDelta(l.pair.Symbol, opposite, price,
			l.book.Level(opposite, price), l.book.NextEventSequence(), now))
	}
	return nil
}

// fill executes qty between taker and one resting maker at the maker's price.
func (l *Lane) fill(ctx context.Context, taker, maker *matching.Order, qty, price decimal.Decimal, now time.Time, res *matching.CommandResult) error {
	seq := l.book.NextTradeSequence()
	trade := matching.Trade{
		TradeID:        TradeID(l.pair.Symbol, seq),
		Pair:           l.pair.Symbol,
		TakerOrderID:   taker.ID,
		MakerOrderID:   maker.ID,
		TakerAccountID: taker.AccountID,
		MakerAccountID: maker.AccountID,
		TakerSide:      taker.Side,
		Price:          price,
		Quantity:       qty,
		MakerFee:       l.fees.Fee(l.pair, price, qty, false),
		TakerFee:       l.fees.Fee(l.pair, price, qty, true),
		Sequence:       seq,
		ExecutedAt:     now,
	}

	buyer, seller := taker, maker
	buyerFee, sellerFee := trade.TakerFee, trade.MakerFee
	if taker.Side == matching.SideSell {
		buyer, seller = maker, taker
		buyerFee, sellerFee = trade.MakerFee, trade.TakerFee
	}
	buyer.Consumed = buyer.Consumed.Add(trade.Notional()).Add(buyerFee)
	seller.Consumed = seller.Consumed.Add(qty)
	for _, o := range []*matching.Order{buyer, seller} {
		if o.Consumed.GreaterThan(o.Reserved) {
			return fmt.Errorf("%w: order %s consumed %s of %s reserved",
				matching.ErrInvariantViolation, o.ID, o.Consumed, o.Reserved)
		}
	}

	if err := l.book.Fill(maker, qty, now); err != nil {
		return err
	}
	if err := taker.Fill(qty, now); err != nil {
		return err
	}

	if l.ledger != nil && !l.replaying {
		err := l.ledger.Settle(ctx, account.Settlement{
			TradeID:         trade.TradeID,
			Pair:            l.pair.Symbol,
			Base:            l.pair.Base,
			Quote:           l.pair.Quote,
			BuyerAccountID:  buyer.AccountID,
			SellerAccountID: seller.AccountID,
			BuyerOrderID:    buyer.ID,
			SellerOrderID:   seller.ID,
			BaseAmount:      qty,
			QuoteAmount:     trade.Notional(),
			BuyerFee:        buyerFee,
			SellerFee:       sellerFee,
		})
		if err != nil {
			return fmt.Errorf("%w: trade %s: %w", ErrSettlementFailed, trade.TradeID, err)
		}
	}
	if !l.replaying {
		metrics.TradesTotal.WithLabelValues(l.pair.Symbol).Inc()
	}

	res.Trades = append(res.Trades, trade)
	res.Events = append(res.Events,
		&matching.TradeExecutedEvent{
			EventHeader: l.header(matching.EventTradeExecuted, now),
			Trade:       trade,
		},
		matching.NewFillEvent(maker, trade, l.pair.Quote, l.book.NextEventSequence(), now),
		matching.NewFillEvent(taker, trade, l.pair.Quote, l.book.NextEventSequence(), now),
	)

	if maker.Status == matching.OrderStatusFilled {
		l.release(ctx, maker)
	}
	return nil
}
