package strategy

import (
	"github.com/wafaaboulwafa/bybit-trader/internal/analysis/signal"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
)

func init() {
	register("trendFollow", func() Strategy {
		return &trendFollow{highTF: "240", lowTF: "5", rewardMultiple: 2}
	})
}

type crossState int

const (
	crossNone crossState = iota
	crossUp
	crossDown
)

type directionSignal int

const (
	signalNone directionSignal = iota
	signalBuy
	signalSell
)

// trendFollow 是多周期趋势跟随：高周期给方向（SMA15/20 交叉 + 斜率分档），
// 低周期等待回踩高周期均线带后的 EMA 交叉确认。止损取最近 3 根 K 线极值，
// 止盈按固定盈亏比外推。
type trendFollow struct {
	highTF         string
	lowTF          string
	rewardMultiple float64

	highTrend   signal.Trend
	highTrendOK bool
	highCross   crossState
	highFastMA  float64
	highSlowMA  float64
	highSignal  directionSignal

	lowCross      crossState
	lowOverbought bool
	lowOversold   bool
	lowSignal     directionSignal
}

func (s *trendFollow) Name() string { return "trendFollow" }

func (s *trendFollow) Evaluate(ctx *Context) error {
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
	if len(prices) < 100 {
		return nil
	}

	if ctx.Timeframe == s.highTF {
		s.analyzeHigh(prices)
		return nil
	}

	s.analyzeLow(ctx.Price, prices)
	return s.checkTrades(ctx)
}

func (s *trendFollow) analyzeHigh(prices []float64) {
	fastArr := signal.SMA(prices, 15)
	slowArr := signal.SMA(prices, 20)
	fast, okF := signal.LastValue(fastArr)
	slow, okS := signal.LastValue(slowArr)
	if !okF || !okS {
		return
	}
	trend, err := signal.ClassifySlope(slowArr)
	if err != nil {
		return
	}

	switch {
	case fast > slow:
		s.highCross = crossUp
	case slow > fast:
		s.highCross = crossDown
	default:
		s.highCross = crossNone
	}
	s.highTrend = trend
	s.highTrendOK = true
	s.highFastMA = fast
	s.highSlowMA = slow

	switch {
	case s.highCross == crossUp && trend.Up():
		s.highSignal = signalBuy
	case s.highCross == crossDown && trend.Down():
		s.highSignal = signalSell
	default:
		s.highSignal = signalNone
	}
}

func (s *trendFollow) analyzeLow(price float64, prices []float64) {
	// 等高周期先出结论
	if !s.highTrendOK || s.highFastMA == 0 || s.highSlowMA == 0 {
		return
	}
	fast, okF := signal.LastValue(signal.EMA(prices, 1))
	slow, okS := signal.LastValue(signal.EMA(prices, 2))
	if !okF || !okS {
		return
	}

	if fast > slow {
		s.lowCross = crossUp
	} else if fast < slow {
		s.lowCross = crossDown
	}

	// 回踩高周期均线带：顺势方向上触带视为超卖/超买
	if s.highTrend.Up() && s.highCross == crossUp &&
		(price <= s.highFastMA || price <= s.highSlowMA) {
		s.lowOversold = true
		s.lowOverbought = false
	}
	if s.highTrend.Down() && s.highCross == crossDown &&
		(price >= s.highFastMA || price >= s.highSlowMA) {
		s.lowOverbought = true
		s.lowOversold = false
	}

	switch {
	case s.lowOversold && s.lowCross == crossUp:
		s.lowSignal = signalBuy
	case s.lowOverbought && s.lowCross == crossDown:
		s.lowSignal = signalSell
	default:
		s.lowSignal = signalNone
	}
}

func (s *trendFollow) checkTrades(ctx *Context) error {
	series, ok := ctx.Pair.Series(s.lowTF)
	if !ok {
		return nil
	}
	candles := series.Candles()
	if len(candles) < 3 {
		return nil
	}
	pair := ctx.Pair.Name

	// 高低周期反向一致时先平反向仓
	if s.highSignal == signalSell && s.lowSignal == signalSell && ctx.HasOpenBuy {
		logger.Infof("%s: 高周期趋势反转，平多", pair)
		if err := ctx.CloseBuy(ctx.Price); err != nil {
			return err
		}
		ctx.Gate.ClearBuyTrigger(pair)
	}
	if s.highSignal == signalBuy && s.lowSignal == signalBuy && ctx.HasOpenSell {
		logger.Infof("%s: 高周期趋势反转，平空", pair)
		if err := ctx.CloseSell(ctx.Price); err != nil {
			return err
		}
		ctx.Gate.ClearSellTrigger(pair)
	}

	if s.highSignal == signalBuy && s.lowSignal == signalBuy &&
		!ctx.HasOpenBuy && !ctx.Gate.BuyTriggered(pair) {
		stopLoss := lowestLow(candles, 3)
		if stopLoss <= 0 || stopLoss >= ctx.Price {
			return nil
		}
		takeProfit := ctx.Price + s.rewardMultiple*(ctx.Price-stopLoss)
		ctx.Gate.SetBuyTriggered(pair)
		logger.Infof("Buy signal on %s at price: %v", pair, ctx.Price)
		return ctx.Buy(ctx.Price, takeProfit, stopLoss)
	}

	if s.highSignal == signalSell && s.lowSignal == signalSell &&
		!ctx.HasOpenSell && !ctx.Gate.SellTriggered(pair) {
		stopLoss := highestHigh(candles, 3)
		if stopLoss <= ctx.Price {
			return nil
		}
		takeProfit := ctx.Price - s.rewardMultiple*(stopLoss-ctx.Price)
		ctx.Gate.SetSellTriggered(pair)
		logger.Infof("Sell signal on %s at price: %v", pair, ctx.Price)
		return ctx.Sell(ctx.Price, takeProfit, stopLoss)
	}
	return nil
}
