package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPhase(t *testing.T) {
	cases := []struct {
		name                                 string
		price, highFast, highSlow, lowFast, lowSlow float64
		current                              Phase
		want                                 Phase
	}{
		{"价格夹在高周期均线带内为盘整", 100, 98, 103, 90, 90, PhaseUnknown, PhaseConsolidation},
		{"带区边界判定与均线顺序无关", 100, 103, 98, 90, 90, PhaseUnknown, PhaseConsolidation},
		{"低快线领先且价格在其上为拉升", 120, 105, 100, 112, 108, PhaseUnknown, PhaseMarkUp},
		{"低快线落后且价格在其下为下跌", 80, 95, 100, 88, 92, PhaseUnknown, PhaseMarkDown},
		{"低快线走弱但仍高于高快线时破位下跌", 90, 88, 80, 94, 96, PhaseUnknown, PhaseMarkDown},
		{"低快线走强但仍低于高快线时转入拉升", 110, 115, 120, 106, 104, PhaseUnknown, PhaseMarkUp},
		{"价格跌破高位快线为派发", 100, 95, 90, 104, 104, PhaseUnknown, PhaseDistribution},
		{"价格站上低位快线为吸筹", 100, 105, 110, 96, 96, PhaseUnknown, PhaseAccumulation},
		{"无规则命中时保持原阶段", 104, 95, 90, 104, 104, PhaseMarkUp, PhaseMarkUp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyPhase(tc.price, tc.highFast, tc.highSlow, tc.lowFast, tc.lowSlow, tc.current)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWyckoffBuyOnMarkUpEdge(t *testing.T) {
	pair := newTestPair(t, "wyckoff", "240", "5")
	s := New("wyckoff").(*wyckoff)
	gate := newFakeGate()
	rec := &recorder{}

	// 高周期：温和上行，均线带落在 150 附近
	fillSeries(t, pair, "240", 60, func(i int) float64 { return 100 + float64(i) })
	highCtx := newTestContext(t, pair, "240", rec)
	highCtx.Gate = gate
	require.NoError(t, s.Evaluate(highCtx))
	require.True(t, s.highReady)

	// 低周期先落进均线带 → Consolidation
	fillSeries(t, pair, "5", 40, func(i int) float64 { return s.highFast - 1 })
	lowCtx := newTestContext(t, pair, "5", rec)
	lowCtx.Gate = gate
	require.NoError(t, s.Evaluate(lowCtx))
	assert.Equal(t, PhaseConsolidation, s.phase)
	assert.Empty(t, rec.buys)

	// 价格跃出带区且低周期快线领先 → Mark-up，边沿触发买入
	fillSeries(t, pair, "5", 20, func(i int) float64 { return s.highSlow + 5 + float64(i) })
	lowCtx = newTestContext(t, pair, "5", rec)
	lowCtx.Gate = gate
	var notes []string
	lowCtx.Notify = func(text string) { notes = append(notes, text) }
	require.NoError(t, s.Evaluate(lowCtx))

	assert.Equal(t, PhaseMarkUp, s.phase)
	require.Len(t, rec.buys, 1)
	call := rec.buys[0]
	assert.Equal(t, lowCtx.Price, call.price)
	// ATR 保护位 1:3
	assert.InDelta(t, 3*(call.price-call.stopLoss), call.takeProfit-call.price, 1e-9)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "BTCUSDT")
	assert.Contains(t, notes[0], "Mark-up")

	// 阶段保持期间不再触发
	require.NoError(t, s.Evaluate(lowCtx))
	assert.Len(t, rec.buys, 1)
}

func TestWyckoffRequiresHighTimeframeFirst(t *testing.T) {
	pair := newTestPair(t, "wyckoff", "240", "5")
	fillSeries(t, pair, "5", 50, func(i int) float64 { return 100 + float64(i) })
	rec := &recorder{}
	s := New("wyckoff").(*wyckoff)
	require.NoError(t, s.Evaluate(newTestContext(t, pair, "5", rec)))
	assert.Equal(t, PhaseUnknown, s.phase)
	assert.Empty(t, rec.buys)
}
