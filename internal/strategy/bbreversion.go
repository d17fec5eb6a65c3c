package strategy

import (
	"github.com/wafaaboulwafa/bybit-trader/internal/analysis/signal"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
)

func init() {
	register("bbReversion", func() Strategy {
		return &bbReversion{
			timeFrame:       "5",
			bbPeriod:        5,
			bbStdDev:        2,
			rsiPeriod:       14,
			rsiOversold:     30,
			rsiOverbought:   70,
			stopLossRatio:   2,
			takeProfitRatio: 3,
		}
	})
}

// bbReversion 做均值回归：价格越出布林带（或 RSI 进入极值区）先只记一个
// 超买/超卖闩，等 EMA 交叉 + 中轨方向共同确认后才把闩转成交易，消费即清闩。
type bbReversion struct {
	timeFrame       string
	bbPeriod        int
	bbStdDev        float64
	rsiPeriod       int
	rsiOversold     float64
	rsiOverbought   float64
	stopLossRatio   float64
	takeProfitRatio float64

	overbought bool
	oversold   bool
}

func (s *bbReversion) Name() string { return "bbReversion" }

func (s *bbReversion) Evaluate(ctx *Context) error {
	if ctx.Price == 0 || ctx.Timeframe != s.timeFrame {
		return nil
	}
	series, ok := ctx.Pair.Series(ctx.Timeframe)
	if !ok {
		return nil
	}
	prices := series.OHLC4()

	upperSeries, _, lowerSeries := signal.BBands(prices, s.bbPeriod, s.bbStdDev)
	upper, okU := signal.LastValue(upperSeries)
	lower, okL := signal.LastValue(lowerSeries)
	if !okU || !okL {
		return nil
	}
	rsi, err := signal.RSI(prices, s.rsiPeriod)
	if err != nil {
		return nil
	}

	// 触带或 RSI 极值只设闩，不立即交易
	if ctx.Price > upper || rsi >= s.rsiOverbought {
		s.overbought = true
		s.oversold = false
	}
	if ctx.Price < lower || rsi <= s.rsiOversold {
		s.oversold = true
		s.overbought = false
	}
	if !s.overbought && !s.oversold {
		return nil
	}

	crossUp, errUp := signal.EMACrossUp(prices, 3, 5, 5)
	crossDown, errDown := signal.EMACrossDown(prices, 3, 5, 5)
	if errUp != nil || errDown != nil {
		return nil
	}
	bandDir, err := signal.BandTrend(prices, s.bbPeriod, s.bbStdDev)
	if err != nil {
		return nil
	}

	atr, err := signal.ATR(series.Candles(), 14)
	if err != nil {
		return nil
	}
	pair := ctx.Pair.Name

	if s.oversold && crossUp && bandDir == signal.Up &&
		!ctx.HasOpenBuy && !ctx.Gate.BuyTriggered(pair) {
		s.oversold = false
		ctx.Gate.SetBuyTriggered(pair)
		logger.Infof("Buy signal on %s at price: %v", pair, ctx.Price)
		return ctx.Buy(ctx.Price,
			ctx.Price+atr*s.takeProfitRatio,
			ctx.Price-atr*s.stopLossRatio)
	}
	if s.overbought && crossDown && bandDir == signal.Down &&
		!ctx.HasOpenSell && !ctx.Gate.SellTriggered(pair) {
		s.overbought = false
		ctx.Gate.SetSellTriggered(pair)
		logger.Infof("Sell signal on %s at price: %v", pair, ctx.Price)
		return ctx.Sell(ctx.Price,
			ctx.Price-atr*s.takeProfitRatio,
			ctx.Price+atr*s.stopLossRatio)
	}
	return nil
}
