package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

// fakeGate 只记录方向闩，供策略测试使用。
type fakeGate struct {
	buy  map[string]bool
	sell map[string]bool
}

func newFakeGate() *fakeGate {
	return &fakeGate{buy: map[string]bool{}, sell: map[string]bool{}}
}

func (g *fakeGate) BuyTriggered(pair string) bool  { return g.buy[pair] }
func (g *fakeGate) SellTriggered(pair string) bool { return g.sell[pair] }
func (g *fakeGate) SetBuyTriggered(pair string)    { g.buy[pair] = true }
func (g *fakeGate) SetSellTriggered(pair string)   { g.sell[pair] = true }
func (g *fakeGate) ClearBuyTrigger(pair string)    { delete(g.buy, pair) }
func (g *fakeGate) ClearSellTrigger(pair string)   { delete(g.sell, pair) }

// tradeCall 记录一次回调参数。
type tradeCall struct {
	price      float64
	takeProfit float64
	stopLoss   float64
}

type recorder struct {
	buys       []tradeCall
	sells      []tradeCall
	closeBuys  []float64
	closeSells []float64
}

func newTestContext(t *testing.T, pair *market.Pair, timeframe string, rec *recorder) *Context {
	t.Helper()
	ctx := &Context{
		Pair:      pair,
		Timeframe: timeframe,
		Gate:      newFakeGate(),
		Buy: func(price, tp, sl float64) error {
			rec.buys = append(rec.buys, tradeCall{price, tp, sl})
			return nil
		},
		Sell: func(price, tp, sl float64) error {
			rec.sells = append(rec.sells, tradeCall{price, tp, sl})
			return nil
		},
		CloseBuy: func(price float64) error {
			rec.closeBuys = append(rec.closeBuys, price)
			return nil
		},
		CloseSell: func(price float64) error {
			rec.closeSells = append(rec.closeSells, price)
			return nil
		},
		CloseAll: func(price float64) error { return nil },
	}
	if series, ok := pair.Series(timeframe); ok {
		if last, ok := series.Last(); ok {
			ctx.Price = last.Close
			ctx.Candle = last
		}
	}
	return ctx
}

func newTestPair(t *testing.T, strategyName string, timeFrames ...string) *market.Pair {
	t.Helper()
	pair, err := market.NewPair(market.PairSpec{
		Name:          "BTCUSDT",
		Strategy:      strategyName,
		TimeFrames:    timeFrames,
		BaseCoin:      "BTC",
		QuotationCoin: "USDT",
	}, 0)
	require.NoError(t, err)
	return pair
}

// fillFlat 以 O=H=L=C 的平 K 线填充序列，close 由 f(i) 给出。
func fillSeries(t *testing.T, pair *market.Pair, timeframe string, n int, f func(i int) float64) {
	t.Helper()
	series, ok := pair.Series(timeframe)
	require.True(t, ok)
	base := series.Len()
	for i := 0; i < n; i++ {
		v := f(i)
		series.Merge(market.Candle{
			Key:   int64(base+i) * 60_000,
			Open:  v,
			High:  v,
			Low:   v,
			Close: v,
		})
	}
}

func TestNewFallsBackToDefault(t *testing.T) {
	s := New("doesNotExist")
	assert.Equal(t, "default", s.Name())
}

func TestRegisteredNames(t *testing.T) {
	names := Names()
	for _, want := range []string{"default", "trendFollow", "wyckoff", "bbReversion", "pullback"} {
		assert.Contains(t, names, want)
		assert.NoError(t, Known(want))
	}
	assert.Error(t, Known("martingale"))
}

func TestExtremes(t *testing.T) {
	candles := []market.Candle{
		{Low: 10, High: 20},
		{Low: 8, High: 25},
		{Low: 12, High: 18},
		{Low: 9, High: 22},
	}
	assert.Equal(t, 8.0, lowestLow(candles, 3))
	assert.Equal(t, 25.0, highestHigh(candles, 3))
	// count 超过长度时退化为全量
	assert.Equal(t, 8.0, lowestLow(candles, 10))
}

func TestTrendFollowInsufficientHistoryIsQuiet(t *testing.T) {
	pair := newTestPair(t, "trendFollow", "240", "5")
	fillSeries(t, pair, "240", 10, func(i int) float64 { return 100 + float64(i) })
	rec := &recorder{}
	s := New("trendFollow")
	require.NoError(t, s.Evaluate(newTestContext(t, pair, "240", rec)))
	assert.Empty(t, rec.buys)
	assert.Empty(t, rec.sells)
}

func TestTrendFollowBuyOnAgreement(t *testing.T) {
	pair := newTestPair(t, "trendFollow", "240", "5")
	// 高周期：强劲上行，SMA15>SMA20 且斜率强
	fillSeries(t, pair, "240", 120, func(i int) float64 { return 100 + float64(i) })
	// 低周期：围绕 150 震荡后向上突破，价格仍低于高周期均线带（回踩）
	fillSeries(t, pair, "5", 117, func(i int) float64 {
		if i%2 == 0 {
			return 150
		}
		return 149.5
	})
	fillSeries(t, pair, "5", 3, func(i int) float64 { return 149 + float64(i)*1.5 })

	rec := &recorder{}
	s := New("trendFollow")
	gate := newFakeGate()

	highCtx := newTestContext(t, pair, "240", rec)
	highCtx.Gate = gate
	require.NoError(t, s.Evaluate(highCtx))

	lowCtx := newTestContext(t, pair, "5", rec)
	lowCtx.Gate = gate
	require.NoError(t, s.Evaluate(lowCtx))

	require.Len(t, rec.buys, 1)
	call := rec.buys[0]
	assert.Equal(t, 152.0, call.price)
	assert.Less(t, call.stopLoss, call.price)
	assert.Greater(t, call.takeProfit, call.price)
	// 固定盈亏比 2:1
	assert.InDelta(t, 2*(call.price-call.stopLoss), call.takeProfit-call.price, 1e-9)
	assert.True(t, gate.BuyTriggered(pair.Name))

	// 条件保持期间闩位挡住重复下单
	require.NoError(t, s.Evaluate(lowCtx))
	assert.Len(t, rec.buys, 1)
}

func TestTrendFollowClosesReversingLong(t *testing.T) {
	pair := newTestPair(t, "trendFollow", "240", "5")
	// 高周期：强劲下行
	fillSeries(t, pair, "240", 120, func(i int) float64 { return 400 - float64(i) })
	// 低周期：反弹触及高周期均线带后掉头向下
	fillSeries(t, pair, "5", 117, func(i int) float64 {
		if i%2 == 0 {
			return 320
		}
		return 320.5
	})
	fillSeries(t, pair, "5", 3, func(i int) float64 { return 321 - float64(i)*1.5 })

	rec := &recorder{}
	s := New("trendFollow")
	gate := newFakeGate()

	highCtx := newTestContext(t, pair, "240", rec)
	highCtx.Gate = gate
	require.NoError(t, s.Evaluate(highCtx))

	lowCtx := newTestContext(t, pair, "5", rec)
	lowCtx.Gate = gate
	lowCtx.HasOpenBuy = true
	require.NoError(t, s.Evaluate(lowCtx))

	// 反向一致：先平多
	require.Len(t, rec.closeBuys, 1)
	assert.Equal(t, lowCtx.Price, rec.closeBuys[0])
	// 平掉后本 tick 仍可开空
	require.Len(t, rec.sells, 1)
	assert.Greater(t, rec.sells[0].stopLoss, rec.sells[0].price)
	assert.Less(t, rec.sells[0].takeProfit, rec.sells[0].price)
}
