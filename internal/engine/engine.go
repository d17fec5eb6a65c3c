// Package engine 把行情事件流变成交易决策：每个交易对一个 worker goroutine，
// 串行执行"写序列 → 查持仓 → 策略评估 → 风控定量 → 下单"，天然满足序列的
// 单写者约束；交易对之间互不阻塞，单个交易对的失败也不会波及其他交易对。
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/wafaaboulwafa/bybit-trader/internal/gateway/exchange"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
	"github.com/wafaaboulwafa/bybit-trader/internal/market"
	"github.com/wafaaboulwafa/bybit-trader/internal/risk"
	"github.com/wafaaboulwafa/bybit-trader/internal/strategy"
)

const defaultWorkerBuffer = 64

// Options 配置引擎的外部依赖。Notify 可为 nil（回测不接通知）。
type Options struct {
	Gateway exchange.Gateway
	Gate    *PositionGate
	Notify  func(text string)
	Buffer  int
}

type Engine struct {
	market  *market.Market
	gateway exchange.Gateway
	gate    *PositionGate
	notify  func(string)
	buffer  int

	workers map[string]*pairWorker
	wg      sync.WaitGroup
}

func New(m *market.Market, opts Options) (*Engine, error) {
	if m == nil {
		return nil, fmt.Errorf("engine 缺少 market")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("engine 缺少 gateway")
	}
	gate := opts.Gate
	if gate == nil {
		gate = NewPositionGate()
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultWorkerBuffer
	}
	e := &Engine{
		market:  m,
		gateway: opts.Gateway,
		gate:    gate,
		notify:  opts.Notify,
		buffer:  buffer,
		workers: make(map[string]*pairWorker),
	}
	for _, pair := range m.Pairs() {
		e.workers[pair.Name] = newPairWorker(e, pair)
	}
	return e, nil
}

// Gate 暴露闸门给 webhook 等旁路下单路径共用。
func (e *Engine) Gate() *PositionGate { return e.gate }

// Run 消费事件流直到流关闭或 ctx 取消。每个事件路由到对应交易对的 worker；
// worker 队列满时丢弃该事件（行情会继续推送同一根 K 线的更新，丢一帧无害）。
func (e *Engine) Run(ctx context.Context, events <-chan market.CandleEvent) error {
	for name, w := range e.workers {
		e.wg.Add(1)
		go w.loop(ctx)
		logger.Debugf("engine: worker %s 启动", name)
	}
	defer func() {
		for _, w := range e.workers {
			close(w.ch)
		}
		e.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w, found := e.workers[ev.Pair]
			if !found {
				continue
			}
			select {
			case w.ch <- ev:
			default:
				logger.Warnf("engine: %s worker 队列满，丢弃 %s 事件", ev.Pair, ev.Timeframe)
			}
		}
	}
}

// Process 同步处理单个事件，绕过 worker 通道。回测重放要求严格确定性，
// 由调用方保证串行。
func (e *Engine) Process(ctx context.Context, ev market.CandleEvent) {
	if w, ok := e.workers[ev.Pair]; ok {
		w.handle(ctx, ev)
	}
}

type pairWorker struct {
	engine *Engine
	pair   *market.Pair
	strat  strategy.Strategy
	ch     chan market.CandleEvent
}

func newPairWorker(e *Engine, pair *market.Pair) *pairWorker {
	return &pairWorker{
		engine: e,
		pair:   pair,
		strat:  strategy.New(pair.Strategy),
		ch:     make(chan market.CandleEvent, e.buffer),
	}
}

func (w *pairWorker) loop(ctx context.Context) {
	defer w.engine.wg.Done()
	for ev := range w.ch {
		w.handle(ctx, ev)
	}
}

// handle 处理一个行情事件。panic 只打掉当前 tick，不打掉 worker。
func (w *pairWorker) handle(ctx context.Context, ev market.CandleEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("engine: %s 策略 panic: %v", w.pair.Name, r)
			debug.PrintStack()
		}
	}()

	name := w.pair.Name
	if !w.engine.gate.TryEnter(name) {
		return
	}
	defer w.engine.gate.Exit(name)

	// 序列只在持有处理权时读写：webhook 路径读最新价走同一把锁。
	// 占不到锁就丢帧，行情会继续推送同一根 K 线的更新。
	series, ok := w.pair.Series(ev.Timeframe)
	if !ok {
		return
	}
	series.Merge(ev.Candle)

	hasBuy, err := w.engine.gateway.HasOpenBuy(ctx, name)
	if err != nil {
		logger.Warnf("engine: %s 查询多头持仓失败: %v", name, err)
		return
	}
	hasSell, err := w.engine.gateway.HasOpenSell(ctx, name)
	if err != nil {
		logger.Warnf("engine: %s 查询空头持仓失败: %v", name, err)
		return
	}
	// 交易所已报告持仓：方向闩完成使命，复位以便平仓后能再次进场
	if hasBuy || hasSell {
		w.engine.gate.ClearTriggers(name)
	}

	sctx := &strategy.Context{
		Pair:        w.pair,
		Timeframe:   ev.Timeframe,
		Price:       ev.Candle.Close,
		Candle:      ev.Candle,
		HasOpenBuy:  hasBuy,
		HasOpenSell: hasSell,
		Gate:        w.engine.gate,
		Buy:         w.entryFunc(ctx, exchange.SideBuy),
		Sell:        w.entryFunc(ctx, exchange.SideSell),
		CloseBuy:    w.closeFunc(ctx, exchange.SideBuy),
		CloseSell:   w.closeFunc(ctx, exchange.SideSell),
		CloseAll: func(price float64) error {
			return w.engine.gateway.CloseAll(ctx, name, price)
		},
		Notify: w.engine.notify,
	}

	if err := w.strat.Evaluate(sctx); err != nil {
		logger.Errorf("engine: %s 策略 %s 评估失败: %v", name, w.strat.Name(), err)
	}
}

// entryFunc 构造入场回调：风控定量后把订单交给执行通道。
// 反向交易对先做保护位镜像，再把方向翻转。
func (w *pairWorker) entryFunc(ctx context.Context, side exchange.Side) func(price, takeProfit, stopLoss float64) error {
	return func(price, takeProfit, stopLoss float64) error {
		pair := w.pair
		orderSide := side
		tp, sl := takeProfit, stopLoss
		if pair.Invert {
			var err error
			tp, sl, err = risk.MirrorProtection(price, takeProfit, stopLoss)
			if err != nil {
				return err
			}
			orderSide = side.Opposite()
		}

		method, err := risk.ParseMethod(pair.RiskMethod)
		if err != nil {
			return err
		}
		balance := 0.0
		if method != risk.FixedQty {
			balance, err = w.engine.gateway.Balance(ctx, pair.QuotationCoin)
			if err != nil {
				return fmt.Errorf("查询 %s 余额失败: %w", pair.QuotationCoin, err)
			}
		}
		qty, err := risk.Size(risk.Request{
			Policy:   risk.Policy{Method: method, Amount: pair.RiskAmount},
			Entry:    price,
			StopLoss: sl,
			Balance:  balance,
			Limits:   pair.Limits,
		})
		if err != nil {
			return err
		}

		order := exchange.Order{
			Pair:       pair.Name,
			Side:       orderSide,
			Qty:        qty,
			Price:      price,
			TakeProfit: tp,
			StopLoss:   sl,
		}
		if orderSide == exchange.SideBuy {
			return w.engine.gateway.Buy(ctx, order)
		}
		return w.engine.gateway.Sell(ctx, order)
	}
}

func (w *pairWorker) closeFunc(ctx context.Context, side exchange.Side) func(price float64) error {
	return func(price float64) error {
		closeSide := side
		if w.pair.Invert {
			closeSide = side.Opposite()
		}
		if closeSide == exchange.SideBuy {
			return w.engine.gateway.CloseBuy(ctx, w.pair.Name, price)
		}
		return w.engine.gateway.CloseSell(ctx, w.pair.Name, price)
	}
}
