package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPullbackBuyOnCounterTrendPop(t *testing.T) {
	pair := newTestPair(t, "pullback", "15", "5")
	s := New("pullback").(*pullback)
	gate := newFakeGate()
	rec := &recorder{}

	// 15 分钟：上行定方向
	fillSeries(t, pair, "15", 60, func(i int) float64 { return 100 + float64(i) })
	highCtx := newTestContext(t, pair, "15", rec)
	highCtx.Gate = gate
	require.NoError(t, s.Evaluate(highCtx))
	require.True(t, s.highDirReady)
	assert.Equal(t, crossUp, s.highDir)

	// 5 分钟：回调中最后一根放量上破（SMA1 上穿 SMA3）
	fillSeries(t, pair, "5", 30, func(i int) float64 { return 130 - float64(i) })
	fillSeries(t, pair, "5", 1, func(int) float64 { return 108 })
	lowCtx := newTestContext(t, pair, "5", rec)
	lowCtx.Gate = gate
	require.NoError(t, s.Evaluate(lowCtx))

	require.Len(t, rec.buys, 1)
	call := rec.buys[0]
	assert.Equal(t, 108.0, call.price)
	// 止损距离是止盈的两倍
	assert.InDelta(t, 2*(call.takeProfit-call.price), call.price-call.stopLoss, 1e-9)
	assert.True(t, gate.BuyTriggered(pair.Name))
}

func TestPullbackClosesShortBeforeLong(t *testing.T) {
	pair := newTestPair(t, "pullback", "15", "5")
	s := New("pullback").(*pullback)
	gate := newFakeGate()
	rec := &recorder{}

	fillSeries(t, pair, "15", 60, func(i int) float64 { return 100 + float64(i) })
	highCtx := newTestContext(t, pair, "15", rec)
	highCtx.Gate = gate
	require.NoError(t, s.Evaluate(highCtx))

	fillSeries(t, pair, "5", 30, func(i int) float64 { return 130 - float64(i) })
	fillSeries(t, pair, "5", 1, func(int) float64 { return 108 })
	lowCtx := newTestContext(t, pair, "5", rec)
	lowCtx.Gate = gate
	lowCtx.HasOpenSell = true
	gate.SetSellTriggered(pair.Name)
	require.NoError(t, s.Evaluate(lowCtx))

	// 先平空再开多，同时清掉空方向闩
	require.Len(t, rec.closeSells, 1)
	assert.Equal(t, 108.0, rec.closeSells[0])
	require.Len(t, rec.buys, 1)
	assert.False(t, gate.SellTriggered(pair.Name))
}

func TestPullbackNoSignalWithoutHighDirection(t *testing.T) {
	pair := newTestPair(t, "pullback", "15", "5")
	s := New("pullback").(*pullback)
	rec := &recorder{}

	fillSeries(t, pair, "5", 40, func(i int) float64 { return 130 - float64(i) })
	require.NoError(t, s.Evaluate(newTestContext(t, pair, "5", rec)))
	assert.Empty(t, rec.buys)
	assert.Empty(t, rec.sells)
}
