package projection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spot-matching/internal/matching"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testTrade(id string, seq int64) *TradeView {
	return &TradeView{
		TradeID:        id,
		Pair:           "BTC/USDT",
		MakerOrderID:   "ord-m",
		TakerOrderID:   "ord-t",
		MakerAccountID: "acc-m",
		TakerAccountID: "acc-t",
		TakerSide:      matching.SideBuy,
		Price:          dec("100"),
		Quantity:       dec("2"),
		MakerFee:       dec("0.2"),
		TakerFee:       dec("0.002"),
		TradeSequence:  seq,
		OccurredAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Sequence:       seq * 10,
	}
}

func TestMemoryOrderRepository_SaveNil(t *testing.T) {
	repo := NewMemoryOrderRepository()
	if err := repo.Save(context.Background(), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestMemoryTradeRepository_SaveNil(t *testing.T) {
	repo := NewMemoryTradeRepository()
	if err := repo.Save(context.Background(), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestMemoryOrderRepository_UpdateKeepsListPosition(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()
	for _, id := range []string{"o-1", "o-2", "o-3"} {
		err := repo.Save(ctx, &OrderView{OrderID: id, ClientOrderID: "c-" + id, AccountID: "acc", Pair: "BTC/USDT", Status: matching.OrderStatusOpen})
		if err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	if err := repo.Save(ctx, &OrderView{OrderID: "o-1", AccountID: "acc", Pair: "BTC/USDT", Status: matching.OrderStatusFilled}); err != nil {
		t.Fatalf("update: %v", err)
	}

	list, err := repo.List(ctx, OrderFilter{AccountID: "acc"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[2].OrderID != "o-1" || list[2].Status != matching.OrderStatusFilled {
		t.Fatalf("unexpected list after update: %+v", list)
	}

	byPair, _ := repo.List(ctx, OrderFilter{Pair: "BTC/USDT", Limit: 2})
	if len(byPair) != 2 || byPair[0].OrderID != "o-3" || byPair[1].OrderID != "o-2" {
		t.Fatalf("expected the two newest orders, got %+v", byPair)
	}

	got, err := repo.GetByClientOrderID(ctx, "acc", "c-o-2")
	if err != nil || got.OrderID != "o-2" {
		t.Fatalf("lookup by client order id: %v %+v", err, got)
	}

	err = repo.Save(ctx, &OrderView{OrderID: "o-2", AccountID: "other", Pair: "BTC/USDT"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected owner change to fail, got %v", err)
	}
}

func TestMemoryOrderRepository_ListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()
	seed := []*OrderView{
		{OrderID: "o-1", AccountID: "acc", Pair: "BTC/USDT", Status: matching.OrderStatusFilled},
		{OrderID: "o-2", AccountID: "acc", Pair: "ETH/USDT", Status: matching.OrderStatusOpen},
		{OrderID: "o-3", AccountID: "other", Pair: "BTC/USDT", Status: matching.OrderStatusOpen},
		{OrderID: "o-4", AccountID: "acc", Pair: "BTC/USDT", Status: matching.OrderStatusOpen},
		{OrderID: "o-5", AccountID: "acc", Pair: "BTC/USDT", Status: matching.OrderStatusCancelled},
	}
	for _, o := range seed {
		if err := repo.Save(ctx, o); err != nil {
			t.Fatalf("save %s: %v", o.OrderID, err)
		}
	}

	cases := []struct {
		name   string
		filter OrderFilter
		want   []string
	}{
		{"account newest first", OrderFilter{AccountID: "acc"}, []string{"o-5", "o-4", "o-2", "o-1"}},
		{"account and pair", OrderFilter{AccountID: "acc", Pair: "BTC/USDT"}, []string{"o-5", "o-4", "o-1"}},
		{"status", OrderFilter{AccountID: "acc", Status: matching.OrderStatusOpen}, []string{"o-4", "o-2"}},
		{"limit after filtering", OrderFilter{Pair: "BTC/USDT", Status: matching.OrderStatusOpen, Limit: 1}, []string{"o-4"}},
		{"no match", OrderFilter{AccountID: "nobody"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			list, err := repo.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			got := make([]string, 0, len(list))
			for _, o := range list {
				got = append(got, o.OrderID)
			}
			if fmt.Sprint(got) != fmt.Sprint(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	if _, err := repo.List(ctx, OrderFilter{Status: matching.OrderStatusOpen}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument without account or pair, got %v", err)
	}
}

func TestMemoryOrderRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()
	filledAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.Save(ctx, &OrderView{OrderID: "o-1", AccountID: "acc", Pair: "BTC/USDT", Status: matching.OrderStatusOpen, FilledAt: &filledAt}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := repo.GetByID(ctx, "o-1")
	got.Status = matching.OrderStatusCancelled
	*got.FilledAt = filledAt.Add(time.Hour)

	again, _ := repo.GetByID(ctx, "o-1")
	if again.Status != matching.OrderStatusOpen || !again.FilledAt.Equal(filledAt) {
		t.Fatalf("stored view mutated through returned copy")
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestMemoryTradeRepository_SaveIdempotent(t *testing.T) {
	repo := NewMemoryTradeRepository()
	trade := testTrade("trd-1", 1)

	if err := repo.Save(context.Background(), trade); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	// equal decimals with a different scale are the same trade
	again := testTrade("trd-1", 1)
	again.Price = dec("100.00")
	if err := repo.Save(context.Background(), again); err != nil {
		t.Fatalf("idempotent save failed: %v", err)
	}

	list, err := repo.ListByPair(context.Background(), "BTC/USDT", 0, 100)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 trade after duplicate save, got %d", len(list))
	}
}

func TestMemoryTradeRepository_SaveConflict(t *testing.T) {
	repo := NewMemoryTradeRepository()
	if err := repo.Save(context.Background(), testTrade("trd-1", 1)); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	conflict := testTrade("trd-1", 1)
	conflict.Quantity = dec("3")
	if err := repo.Save(context.Background(), conflict); !errors.Is(err, ErrTradeConflict) {
		t.Fatalf("expected ErrTradeConflict, got %v", err)
	}
}

func TestMemoryTradeRepository_ListByPairFromSequence(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTradeRepository()
	for _, seq := range []int64{3, 1, 2, 4} {
		if err := repo.Save(ctx, testTrade(fmt.Sprintf("trd-%d", seq), seq)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	list, err := repo.ListByPair(ctx, "BTC/USDT", 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].TradeSequence != 2 || list[1].TradeSequence != 3 {
		t.Fatalf("unexpected page: %+v", list)
	}

	byOrder, _ := repo.ListByOrder(ctx, "ord-m", 0)
	if len(byOrder) != 4 {
		t.Fatalf("expected 4 trades for maker order, got %d", len(byOrder))
	}
	byAccount, _ := repo.ListByAccount(ctx, "acc-t", 0)
	if len(byAccount) != 4 {
		t.Fatalf("expected 4 trades for taker account, got %d", len(byAccount))
	}
}

func TestMemoryTradeRepository_SelfTradeIndexedOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTradeRepository()
	trade := testTrade("trd-1", 1)
	trade.TakerAccountID = trade.MakerAccountID
	if err := repo.Save(ctx, trade); err != nil {
		t.Fatalf("save: %v", err)
	}
	list, _ := repo.ListByAccount(ctx, "acc-m", 0)
	if len(list) != 1 {
		t.Fatalf("expected self trade listed once, got %d", len(list))
	}
}

func TestMemoryRepositories_SequenceRegression(t *testing.T) {
	ctx := context.Background()
	orders := NewMemoryOrderRepository()
	trades := NewMemoryTradeRepository()

	if err := orders.SetLastSequence(ctx, "BTC/USDT", 5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := orders.SetLastSequence(ctx, "BTC/USDT", 4); !errors.Is(err, ErrSequenceRegression) {
		t.Fatalf("expected ErrSequenceRegression, got %v", err)
	}
	if err := trades.SetLastSequence(ctx, "BTC/USDT", 5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := trades.SetLastSequence(ctx, "BTC/USDT", 5); err != nil {
		t.Fatalf("same sequence must be accepted: %v", err)
	}
	last, _ := trades.GetLastSequence(ctx, "ETH/USDT")
	if last != 0 {
		t.Fatalf("expected 0 for unknown pair, got %d", last)
	}
}
