package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/wafaaboulwafa/bybit-trader/internal/engine"
	"github.com/wafaaboulwafa/bybit-trader/internal/gateway/exchange"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

// queueItem 是全局重放队列中的一格：某个 (pair, timeframe) 的一根完整 K 线。
type queueItem struct {
	pair      string
	timeframe string
	candle    market.Candle
}

// EquityPoint 是资金曲线上的一个采样点（K 线收盘 tick 后的总权益）。
type EquityPoint struct {
	Key    int64
	Equity float64
}

// Result 汇总一次回测。
type Result struct {
	RunID        string
	BuyTrades    int
	SellTrades   int
	StartBalance float64
	FinalBalance float64
	GrowthPct    int
	Curves       map[string][]EquityPoint
}

// Runner 在归档上重放全部交易对。重放是单 goroutine 的：全局队列按
// K 线 Key 升序推进，每根 K 线展开为开→高→低→收四个合成 tick，保证
// 同一份归档反复运行得到完全一致的结果。
type Runner struct {
	market  *market.Market
	archive *Archive
	wallet  *Wallet
	engine  *engine.Engine

	startBalance float64
}

func NewRunner(m *market.Market, archive *Archive, initial map[string]float64) (*Runner, error) {
	return NewRunnerWithGateway(m, archive, initial, nil)
}

// NewRunnerWithGateway 允许在钱包外再包一层执行通道装饰器（例如交易日志）。
// wrap 为 nil 时引擎直接落在钱包上。
func NewRunnerWithGateway(m *market.Market, archive *Archive, initial map[string]float64, wrap func(exchange.Gateway) exchange.Gateway) (*Runner, error) {
	wallet := NewWallet(initial, m.Pairs())
	var gateway exchange.Gateway = wallet
	if wrap != nil {
		gateway = wrap(wallet)
	}
	eng, err := engine.New(m, engine.Options{Gateway: gateway})
	if err != nil {
		return nil, err
	}
	start := 0.0
	for _, amount := range initial {
		start += amount
	}
	return &Runner{
		market:       m,
		archive:      archive,
		wallet:       wallet,
		engine:       eng,
		startBalance: start,
	}, nil
}

func (r *Runner) Run(ctx context.Context) (*Result, error) {
	queue := r.buildQueue()
	if len(queue) == 0 {
		return nil, fmt.Errorf("归档中没有可重放的 K 线")
	}
	runID := uuid.NewString()
	logger.Infof("[回测] run=%s 共 %d 根 K 线", runID, len(queue))

	curves := make(map[string][]EquityPoint)
	lastPrice := make(map[string]float64)

	for _, item := range queue {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.replayCandle(ctx, item)
		lastPrice[item.pair] = item.candle.Close

		if pair, ok := r.market.Pair(item.pair); ok {
			curves[item.pair] = append(curves[item.pair], EquityPoint{
				Key:    item.candle.Key,
				Equity: r.wallet.Equity(pair, item.candle.Close),
			})
		}
	}

	// 重放结束：按最后一个收盘价强制平掉所有持仓
	for _, pair := range r.market.Pairs() {
		price, ok := lastPrice[pair.Name]
		if !ok || price <= 0 {
			continue
		}
		if err := r.wallet.CloseAll(ctx, pair.Name, price); err != nil {
			logger.Warnf("[回测] %s 强制平仓失败: %v", pair.Name, err)
		}
	}

	buys, sells := r.wallet.Trades()
	final := r.finalBalance(ctx)
	growth := 0
	if r.startBalance > 0 {
		growth = int(math.Round(final * 100 / r.startBalance))
	}
	result := &Result{
		RunID:        runID,
		BuyTrades:    buys,
		SellTrades:   sells,
		StartBalance: r.startBalance,
		FinalBalance: final,
		GrowthPct:    growth,
		Curves:       curves,
	}

	logger.InfoBlock(fmt.Sprintf(
		"回测结果 run=%s\n买入 %d 次，卖出 %d 次\n初始 %.2f → 最终 %.2f（%d%%）",
		runID, buys, sells, r.startBalance, final, growth))
	return result, nil
}

// replayCandle 把一根完整 K 线拆成 4 个合成 tick 依次喂给引擎：
// 第 0 个 tick 全部字段等于开盘价，随后高、低、收依次揭示。
func (r *Runner) replayCandle(ctx context.Context, item queueItem) {
	c := item.candle
	partial := market.Candle{Key: c.Key, Open: c.Open, High: c.Open, Low: c.Open, Close: c.Open}
	ticks := [4]float64{c.Open, c.High, c.Low, c.Close}
	for i, price := range ticks {
		partial.Close = price
		switch i {
		case 1:
			partial.High = price
		case 2:
			partial.Low = price
		}
		r.engine.Process(ctx, market.CandleEvent{
			Pair:      item.pair,
			Timeframe: item.timeframe,
			Candle:    partial,
		})
	}
}

// buildQueue 把归档里所有 (pair, timeframe) 的 K 线合并成按 Key 升序的
// 全局队列；Key 相同时按 pair、timeframe 字典序，保证确定性。
func (r *Runner) buildQueue() []queueItem {
	var queue []queueItem
	for _, pair := range r.market.Pairs() {
		for _, tf := range pair.TimeframeKeys() {
			candles := r.archive.Candles(pair.Name, tf)
			if len(candles) == 0 {
				logger.Warnf("[回测] 归档缺少 %s %s，跳过", pair.Name, tf)
				continue
			}
			for _, c := range candles {
				queue = append(queue, queueItem{pair: pair.Name, timeframe: tf, candle: c})
			}
		}
	}
	sort.Slice(queue, func(i, j int) bool {
		if queue[i].candle.Key != queue[j].candle.Key {
			return queue[i].candle.Key < queue[j].candle.Key
		}
		if queue[i].pair != queue[j].pair {
			return queue[i].pair < queue[j].pair
		}
		return queue[i].timeframe < queue[j].timeframe
	})
	return queue
}

func (r *Runner) finalBalance(ctx context.Context) float64 {
	seen := make(map[string]bool)
	total := 0.0
	for _, pair := range r.market.Pairs() {
		if seen[pair.QuotationCoin] {
			continue
		}
		seen[pair.QuotationCoin] = true
		balance, err := r.wallet.Balance(ctx, pair.QuotationCoin)
		if err != nil {
			continue
		}
		total += balance
	}
	return total
}
