package strategy

import (
	"github.com/wafaaboulwafa/bybit-trader/internal/analysis/signal"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
)

func init() {
	register("pullback", func() Strategy {
		return &pullback{
			highTF:          "15",
			lowTF:           "5",
			stopLossRatio:   2,
			takeProfitRatio: 1,
		}
	})
}

// pullback 顺大逆小：15 分钟级别定方向，5 分钟级别逆向回调中出现
// SMA1/3 反向交叉时顺大方向入场。入场前先平掉反向持仓。
type pullback struct {
	highTF          string
	lowTF           string
	stopLossRatio   float64
	takeProfitRatio float64

	highDir      crossState
	highDirReady bool
}

func (s *pullback) Name() string { return "pullback" }

func (s *pullback) Evaluate(ctx *Context) error {
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

	if ctx.Timeframe == s.highTF {
		dir, ok := smaDirection(prices)
		if !ok {
			return nil
		}
		s.highDir = dir
		s.highDirReady = true
		return nil
	}

	if !s.highDirReady {
		return nil
	}
	lowDir, ok := smaDirection(prices)
	if !ok {
		return nil
	}
	fastArr := signal.SMA(prices, 1)
	slowArr := signal.SMA(prices, 3)
	crossOver, errUp := signal.CrossUp(fastArr, slowArr, 2)
	crossUnder, errDown := signal.CrossDown(fastArr, slowArr, 2)
	if errUp != nil || errDown != nil {
		return nil
	}

	isBuy := s.highDir == crossUp && lowDir == crossDown && crossOver
	isSell := s.highDir == crossDown && lowDir == crossUp && crossUnder
	if !isBuy && !isSell {
		return nil
	}

	atr, err := signal.ATR(series.Candles(), 14)
	if err != nil {
		return nil
	}
	pair := ctx.Pair.Name

	if isBuy {
		if ctx.HasOpenSell {
			if err := ctx.CloseSell(ctx.Price); err != nil {
				return err
			}
			ctx.Gate.ClearSellTrigger(pair)
		}
		takeProfit := ctx.Price + atr*s.takeProfitRatio
		stopLoss := ctx.Price - atr*s.stopLossRatio
		// 保护位必须把入场价夹在中间
		if !(takeProfit > ctx.Price && ctx.Price > stopLoss) {
			return nil
		}
		if ctx.HasOpenBuy || ctx.Gate.BuyTriggered(pair) {
			return nil
		}
		ctx.Gate.SetBuyTriggered(pair)
		logger.Infof("Buy signal on %s at price: %v", pair, ctx.Price)
		return ctx.Buy(ctx.Price, takeProfit, stopLoss)
	}

	if ctx.HasOpenBuy {
		if err := ctx.CloseBuy(ctx.Price); err != nil {
			return err
		}
		ctx.Gate.ClearBuyTrigger(pair)
	}
	takeProfit := ctx.Price - atr*s.takeProfitRatio
	stopLoss := ctx.Price + atr*s.stopLossRatio
	if !(stopLoss > ctx.Price && ctx.Price > takeProfit) {
		return nil
	}
	if ctx.HasOpenSell || ctx.Gate.SellTriggered(pair) {
		return nil
	}
	ctx.Gate.SetSellTriggered(pair)
	logger.Infof("Sell signal on %s at price: %v", pair, ctx.Price)
	return ctx.Sell(ctx.Price, takeProfit, stopLoss)
}

// smaDirection 用 SMA15/20 的相对位置给出方向；任一均线缺值时 ok 为 false。
func smaDirection(prices []float64) (crossState, bool) {
	fast, okF := signal.LastValue(signal.SMA(prices, 15))
	slow, okS := signal.LastValue(signal.SMA(prices, 20))
	if !okF || !okS {
		return crossNone, false
	}
	if fast > slow {
		return crossUp, true
	}
	if fast < slow {
		return crossDown, true
	}
	return crossNone, true
}
