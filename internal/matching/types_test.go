package matching

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-matching/internal/pairspec"
)

func testPair(t *testing.T) pairspec.Pair {
	t.Helper()
	p, err := pairspec.NewPair("BTC/USDT", 2, 4, 8)
	require.NoError(t, err)
	return p
}

func TestPlaceOrderRequestValidate(t *testing.T) {
	pair := testPair(t)
	valid := func() *PlaceOrderRequest {
		return &PlaceOrderRequest{AccountID: "a1", Pair: "BTC/USDT", Side: SideBuy, Type: OrderTypeLimit, Price: d("100.5"), Quantity: d("0.0001")}
	}
	require.NoError(t, valid().Validate(pair))

	cases := map[string]func(r *PlaceOrderRequest){
		"no account":        func(r *PlaceOrderRequest) { r.AccountID = "" },
		"bad side":          func(r *PlaceOrderRequest) { r.Side = "HOLD" },
		"bad type":          func(r *PlaceOrderRequest) { r.Type = "STOP" },
		"zero quantity":     func(r *PlaceOrderRequest) { r.Quantity = d("0") },
		"negative quantity": func(r *PlaceOrderRequest) { r.Quantity = d("-1") },
		"quantity off step": func(r *PlaceOrderRequest) { r.Quantity = d("0.00001") },
		"zero price":        func(r *PlaceOrderRequest) { r.Price = d("0") },
		"price off step":    func(r *PlaceOrderRequest) { r.Price = d("100.001") },
		"market with price": func(r *PlaceOrderRequest) { r.Type = OrderTypeMarket },
	}
	for name, mutate := range cases {
		r := valid()
		mutate(r)
		assert.ErrorIs(t, r.Validate(pair), ErrValidation, name)
	}

	m := valid()
	m.Type = OrderTypeMarket
	m.Price = d("0")
	assert.NoError(t, m.Validate(pair))
}

func TestCancelOrderRequestValidate(t *testing.T) {
	assert.NoError(t, (&CancelOrderRequest{OrderID: "o", AccountID: "a", Pair: "BTC/USDT"}).Validate())
	assert.ErrorIs(t, (&CancelOrderRequest{AccountID: "a", Pair: "BTC/USDT"}).Validate(), ErrValidation)
	assert.ErrorIs(t, (&CancelOrderRequest{OrderID: "o", Pair: "BTC/USDT"}).Validate(), ErrValidation)
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.False(t, OrderStatusOpen.IsTerminal())
	assert.False(t, OrderStatusPartiallyFilled.IsTerminal())
	assert.True(t, OrderStatusFilled.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.True(t, OrderStatusRejected.IsTerminal())
	assert.Equal(t, SideSell, SideBuy.Opposite())
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus(" partially_filled ")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPartiallyFilled, status)
	_, err = ParseOrderStatus("PENDING")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFillEventCarriesOwnFee(t *testing.T) {
	trade := Trade{TradeID: "t-1", MakerOrderID: "m", TakerOrderID: "k", MakerFee: d("0.1"), TakerFee: d("0.2")}
	maker := &Order{ID: "m", Pair: "BTC/USDT", Status: OrderStatusFilled}
	taker := &Order{ID: "k", Pair: "BTC/USDT", Status: OrderStatusPartiallyFilled}

	mev := NewFillEvent(maker, trade, "USDT", 7, testNow)
	assert.Equal(t, EventOrderFilled, mev.EventType())
	assert.True(t, mev.Fee.Equal(d("0.1")))
	assert.Equal(t, "USDT", mev.FeeCurrency)

	tev := NewFillEvent(taker, trade, "USDT", 8, testNow)
	assert.Equal(t, EventOrderPartiallyFilled, tev.EventType())
	assert.True(t, tev.Fee.Equal(d("0.2")))
}

func TestOrderCancelTerminal(t *testing.T) {
	ob := NewOrderBook("BTC/USDT")
	o := restingOrder(ob, "b1", "a1", SideBuy, "100", "1")
	require.NoError(t, o.Cancel(CancelReasonUser, testNow))
	assert.ErrorIs(t, o.Cancel(CancelReasonUser, testNow), ErrAlreadyTerminal)
	assert.Equal(t, CancelReasonUser, o.CancelReason)
}

func TestOrderCrosses(t *testing.T) {
	ob := NewOrderBook("BTC/USDT")
	buy := restingOrder(ob, "b1", "a1", SideBuy, "100", "1")
	sell := restingOrder(ob, "s1", "a1", SideSell, "100", "1")
	assert.True(t, buy.Crosses(d("100")))
	assert.False(t, buy.Crosses(d("100.01")))
	assert.True(t, sell.Crosses(d("100")))
	assert.False(t, sell.Crosses(d("99.99")))
}

func TestEventJSONCarriesHeader(t *testing.T) {
	ev := &TradeExecutedEvent{
		EventHeader: NewEventHeader("BTC/USDT", EventTradeExecuted, 7, testNow),
		Trade:       Trade{TradeID: "t1", Price: d("100"), Quantity: d("1")},
	}
	var e Event = ev
	assert.Equal(t, "BTC/USDT:evt_7", e.EventID())
	assert.Equal(t, EventTradeExecuted, e.EventType())

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "TradeExecuted", decoded["event_type"])
	assert.Equal(t, float64(7), decoded["sequence"])
	assert.Equal(t, "BTC/USDT", decoded["pair"])
}
