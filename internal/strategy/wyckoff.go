package strategy

import (
	"fmt"

	"github.com/wafaaboulwafa/bybit-trader/internal/analysis/signal"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
)

func init() {
	register("wyckoff", func() Strategy {
		return &wyckoff{
			highTF:          "240",
			lowTF:           "5",
			stopLossRatio:   3,
			takeProfitRatio: 9,
		}
	})
}

// Phase 是威科夫市场阶段。
type Phase string

const (
	PhaseUnknown       Phase = ""
	PhaseConsolidation Phase = "Consolidation"
	PhaseMarkUp        Phase = "Mark-up"
	PhaseMarkDown      Phase = "Mark-down"
	PhaseDistribution  Phase = "Distribution"
	PhaseAccumulation  Phase = "Accumulation"
)

// wyckoff 用高低两级 SMA15/20 与价格的相对位置给市场分段。
// 交易只在阶段"切换"的那个 tick 触发（边沿触发），阶段保持期间不重复下单。
type wyckoff struct {
	highTF          string
	lowTF           string
	stopLossRatio   float64
	takeProfitRatio float64

	highFast  float64
	highSlow  float64
	highReady bool

	phase Phase
}

func (s *wyckoff) Name() string { return "wyckoff" }

func (s *wyckoff) Evaluate(ctx *Context) error {
	if ctx.Price == 0 {
		return nil
	}
	if ctx.Timeframe != s.highTF && ctx.Timeframe != s.lowTF {
		return nil
	}
	series, ok := ctx.Pair.Series(ctx.Timeframe)
	if !ok {
		return nil
	}
	prices := series.OHLC4()
	if len(prices) < 3 {
		return nil
	}

	if ctx.Timeframe == s.highTF {
		fast, okF := signal.LastValue(signal.SMA(prices, 15))
		slow, okS := signal.LastValue(signal.SMA(prices, 20))
		if !okF || !okS {
			return nil
		}
		s.highFast = fast
		s.highSlow = slow
		s.highReady = true
		return nil
	}

	if !s.highReady {
		return nil
	}
	lowFast, okF := signal.LastValue(signal.SMA(prices, 15))
	lowSlow, okS := signal.LastValue(signal.SMA(prices, 20))
	if !okF || !okS {
		return nil
	}

	next := classifyPhase(ctx.Price, s.highFast, s.highSlow, lowFast, lowSlow, s.phase)
	if next == s.phase {
		return nil
	}
	prev := s.phase
	s.phase = next

	logger.Infof("%s: 阶段切换 %s -> %s", ctx.Pair.Name, prev, next)
	ctx.notify(fmt.Sprintf("%s: %s", ctx.Pair.Name, next))

	isBuy := next == PhaseMarkUp &&
		(prev == PhaseConsolidation || prev == PhaseDistribution)
	isSell := next == PhaseMarkDown &&
		(prev == PhaseConsolidation || prev == PhaseAccumulation)
	if !isBuy && !isSell {
		return nil
	}

	atr, err := signal.ATR(series.Candles(), 14)
	if err != nil {
		return nil
	}
	pair := ctx.Pair.Name

	if isBuy && !ctx.HasOpenBuy && !ctx.Gate.BuyTriggered(pair) {
		ctx.Gate.SetBuyTriggered(pair)
		logger.Infof("Buy signal on %s at price: %v", pair, ctx.Price)
		return ctx.Buy(ctx.Price,
			ctx.Price+atr*s.takeProfitRatio,
			ctx.Price-atr*s.stopLossRatio)
	}
	if isSell && !ctx.HasOpenSell && !ctx.Gate.SellTriggered(pair) {
		ctx.Gate.SetSellTriggered(pair)
		logger.Infof("Sell signal on %s at price: %v", pair, ctx.Price)
		return ctx.Sell(ctx.Price,
			ctx.Price-atr*s.takeProfitRatio,
			ctx.Price+atr*s.stopLossRatio)
	}
	return nil
}

// classifyPhase 按价格与两级均线的相对位置给出市场阶段；没有任何规则命中时
// 保持上一阶段不变。
func classifyPhase(price, highFast, highSlow, lowFast, lowSlow float64, current Phase) Phase {
	bandLow, bandHigh := highFast, highSlow
	if bandLow > bandHigh {
		bandLow, bandHigh = bandHigh, bandLow
	}
	switch {
	case price >= bandLow && price <= bandHigh:
		return PhaseConsolidation
	case lowFast > lowSlow && lowFast > highFast && price > lowFast:
		return PhaseMarkUp
	case lowFast < lowSlow && lowFast < highFast && price < lowFast:
		return PhaseMarkDown
	case lowFast < lowSlow && lowFast > highFast && price < lowFast:
		return PhaseMarkDown
	case lowFast > lowSlow && lowFast < highFast && price > lowFast:
		return PhaseMarkUp
	case price <= lowFast && lowFast > highFast:
		return PhaseDistribution
	case price >= lowFast && lowFast < highFast:
		return PhaseAccumulation
	default:
		return current
	}
}
