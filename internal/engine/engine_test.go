package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafaaboulwafa/bybit-trader/internal/gateway/exchange"
	"github.com/wafaaboulwafa/bybit-trader/internal/market"
	"github.com/wafaaboulwafa/bybit-trader/internal/strategy"
)

// fakeGateway 记录所有执行调用，持仓与余额可注入。
type fakeGateway struct {
	mu         sync.Mutex
	orders     []exchange.Order
	closes     []string
	hasBuy     bool
	hasSell    bool
	balance    float64
	balanceErr error
}

func (f *fakeGateway) Buy(ctx context.Context, o exchange.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeGateway) Sell(ctx context.Context, o exchange.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeGateway) CloseBuy(ctx context.Context, pair string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, "closeBuy:"+pair)
	return nil
}

func (f *fakeGateway) CloseSell(ctx context.Context, pair string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, "closeSell:"+pair)
	return nil
}

func (f *fakeGateway) CloseAll(ctx context.Context, pair string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, "closeAll:"+pair)
	return nil
}

func (f *fakeGateway) HasOpenBuy(ctx context.Context, pair string) (bool, error) {
	return f.hasBuy, nil
}

func (f *fakeGateway) HasOpenSell(ctx context.Context, pair string) (bool, error) {
	return f.hasSell, nil
}

func (f *fakeGateway) Balance(ctx context.Context, asset string) (float64, error) {
	return f.balance, f.balanceErr
}

func (f *fakeGateway) recordedOrders() []exchange.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]exchange.Order, len(f.orders))
	copy(out, f.orders)
	return out
}

// stubStrategy 按脚本对每个 tick 做一件事。
type stubStrategy struct {
	evaluate func(ctx *strategy.Context) error
	calls    int
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Evaluate(ctx *strategy.Context) error {
	s.calls++
	if s.evaluate == nil {
		return nil
	}
	return s.evaluate(ctx)
}

func newTestMarket(t *testing.T, specs ...market.PairSpec) *market.Market {
	t.Helper()
	if len(specs) == 0 {
		specs = []market.PairSpec{{
			Name:          "BTCUSDT",
			Strategy:      "default",
			TimeFrames:    []string{"5"},
			BaseCoin:      "BTC",
			QuotationCoin: "USDT",
			RiskMethod:    "percentOfEquity",
			RiskAmount:    0.25,
			Limits:        market.InstrumentLimits{QtyStep: 0.001, MinQty: 0.001},
		}}
	}
	m, err := market.NewMarket(specs, 0)
	require.NoError(t, err)
	return m
}

func TestEngineMergesAndEvaluates(t *testing.T) {
	m := newTestMarket(t)
	gw := &fakeGateway{balance: 1000}
	e, err := New(m, Options{Gateway: gw})
	require.NoError(t, err)

	stub := &stubStrategy{}
	e.workers["BTCUSDT"].strat = stub

	events := make(chan market.CandleEvent, 4)
	events <- market.CandleEvent{
		Pair:      "BTCUSDT",
		Timeframe: "5",
		Candle:    market.Candle{Key: 1000, Open: 100, High: 101, Low: 99, Close: 100.5},
	}
	events <- market.CandleEvent{
		Pair:      "BTCUSDT",
		Timeframe: "5",
		Candle:    market.Candle{Key: 1000, Open: 100, High: 102, Low: 99, Close: 101.5},
	}
	close(events)
	require.NoError(t, e.Run(context.Background(), events))

	assert.Equal(t, 2, stub.calls)
	pair, _ := m.Pair("BTCUSDT")
	series, _ := pair.Series("5")
	// 同 Key 更新不增长
	assert.Equal(t, 1, series.Len())
	last, _ := series.Last()
	assert.Equal(t, 101.5, last.Close)
}

func TestEngineIgnoresUnknownPairAndTimeframe(t *testing.T) {
	m := newTestMarket(t)
	gw := &fakeGateway{}
	e, err := New(m, Options{Gateway: gw})
	require.NoError(t, err)

	stub := &stubStrategy{}
	e.workers["BTCUSDT"].strat = stub

	events := make(chan market.CandleEvent, 4)
	events <- market.CandleEvent{Pair: "DOGEUSDT", Timeframe: "5", Candle: market.Candle{Key: 1}}
	events <- market.CandleEvent{Pair: "BTCUSDT", Timeframe: "60", Candle: market.Candle{Key: 1}}
	close(events)
	require.NoError(t, e.Run(context.Background(), events))

	assert.Equal(t, 0, stub.calls)
}

func TestEngineClearsTriggersWhenPositionReported(t *testing.T) {
	m := newTestMarket(t)
	gw := &fakeGateway{hasBuy: true}
	gate := NewPositionGate()
	gate.SetBuyTriggered("BTCUSDT")
	gate.SetSellTriggered("BTCUSDT")
	e, err := New(m, Options{Gateway: gw, Gate: gate})
	require.NoError(t, err)
	e.workers["BTCUSDT"].strat = &stubStrategy{}

	events := make(chan market.CandleEvent, 1)
	events <- market.CandleEvent{Pair: "BTCUSDT", Timeframe: "5", Candle: market.Candle{Key: 1, Close: 100}}
	close(events)
	require.NoError(t, e.Run(context.Background(), events))

	assert.False(t, gate.BuyTriggered("BTCUSDT"))
	assert.False(t, gate.SellTriggered("BTCUSDT"))
}

func TestEngineBuySizesThroughRisk(t *testing.T) {
	m := newTestMarket(t)
	gw := &fakeGateway{balance: 1000}
	e, err := New(m, Options{Gateway: gw})
	require.NoError(t, err)

	e.workers["BTCUSDT"].strat = &stubStrategy{
		evaluate: func(ctx *strategy.Context) error {
			return ctx.Buy(100, 110, 95)
		},
	}

	events := make(chan market.CandleEvent, 1)
	events <- market.CandleEvent{Pair: "BTCUSDT", Timeframe: "5", Candle: market.Candle{Key: 1, Close: 100}}
	close(events)
	require.NoError(t, e.Run(context.Background(), events))

	orders := gw.recordedOrders()
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, exchange.SideBuy, o.Side)
	// 余额 1000 × 25%，止损距离 5 → qty = 50
	assert.InDelta(t, 50, o.Qty, 1e-9)
	assert.Equal(t, 110.0, o.TakeProfit)
	assert.Equal(t, 95.0, o.StopLoss)
}

func TestEngineInvertedPairFlipsSideAndMirrorsProtection(t *testing.T) {
	m := newTestMarket(t, market.PairSpec{
		Name:          "BTCUSDT",
		Strategy:      "default",
		TimeFrames:    []string{"5"},
		BaseCoin:      "BTC",
		QuotationCoin: "USDT",
		Invert:        true,
		RiskMethod:    "fixedQty",
		RiskAmount:    1,
		Limits:        market.InstrumentLimits{QtyStep: 0.001, MinQty: 0.001},
	})
	gw := &fakeGateway{}
	e, err := New(m, Options{Gateway: gw})
	require.NoError(t, err)

	e.workers["BTCUSDT"].strat = &stubStrategy{
		evaluate: func(ctx *strategy.Context) error {
			if err := ctx.Buy(100, 110, 95); err != nil {
				return err
			}
			return ctx.CloseBuy(100)
		},
	}

	events := make(chan market.CandleEvent, 1)
	events <- market.CandleEvent{Pair: "BTCUSDT", Timeframe: "5", Candle: market.Candle{Key: 1, Close: 100}}
	close(events)
	require.NoError(t, e.Run(context.Background(), events))

	orders := gw.recordedOrders()
	require.Len(t, orders, 1)
	o := orders[0]
	// 买变卖，保护位关于入场价镜像
	assert.Equal(t, exchange.SideSell, o.Side)
	assert.Equal(t, 90.0, o.TakeProfit)
	assert.Equal(t, 105.0, o.StopLoss)
	assert.Equal(t, []string{"closeSell:BTCUSDT"}, gw.closes)
}
