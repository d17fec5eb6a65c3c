package tradelog

import (
	"context"

	"github.com/wafaaboulwafa/bybit-trader/internal/gateway/exchange"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
)

// LoggingGateway 包装任意 exchange.Gateway：执行成功后追加一条交易日志。
// 日志写失败只告警，不影响交易结果。
type LoggingGateway struct {
	inner exchange.Gateway
	store *Store
}

func NewLoggingGateway(inner exchange.Gateway, store *Store) *LoggingGateway {
	return &LoggingGateway{inner: inner, store: store}
}

var _ exchange.Gateway = (*LoggingGateway)(nil)

func (g *LoggingGateway) record(ctx context.Context, rec Record) {
	if g.store == nil {
		return
	}
	if err := g.store.Append(ctx, rec); err != nil {
		logger.Warnf("[交易日志] 写入失败 %s %s: %v", rec.Pair, rec.Action, err)
	}
}

func (g *LoggingGateway) Buy(ctx context.Context, order exchange.Order) error {
	if err := g.inner.Buy(ctx, order); err != nil {
		return err
	}
	g.record(ctx, Record{
		Pair:       order.Pair,
		Action:     ActionBuy,
		Qty:        order.Qty,
		Price:      order.Price,
		TakeProfit: order.TakeProfit,
		StopLoss:   order.StopLoss,
		Details:    orderDetails(order),
	})
	return nil
}

func (g *LoggingGateway) Sell(ctx context.Context, order exchange.Order) error {
	if err := g.inner.Sell(ctx, order); err != nil {
		return err
	}
	g.record(ctx, Record{
		Pair:       order.Pair,
		Action:     ActionSell,
		Qty:        order.Qty,
		Price:      order.Price,
		TakeProfit: order.TakeProfit,
		StopLoss:   order.StopLoss,
		Details:    orderDetails(order),
	})
	return nil
}

func (g *LoggingGateway) CloseBuy(ctx context.Context, pair string, price float64) error {
	if err := g.inner.CloseBuy(ctx, pair, price); err != nil {
		return err
	}
	g.record(ctx, Record{Pair: pair, Action: ActionCloseBuy, Price: price})
	return nil
}

func (g *LoggingGateway) CloseSell(ctx context.Context, pair string, price float64) error {
	if err := g.inner.CloseSell(ctx, pair, price); err != nil {
		return err
	}
	g.record(ctx, Record{Pair: pair, Action: ActionCloseSell, Price: price})
	return nil
}

func (g *LoggingGateway) CloseAll(ctx context.Context, pair string, price float64) error {
	if err := g.inner.CloseAll(ctx, pair, price); err != nil {
		return err
	}
	g.record(ctx, Record{Pair: pair, Action: ActionCloseAll, Price: price})
	return nil
}

func (g *LoggingGateway) HasOpenBuy(ctx context.Context, pair string) (bool, error) {
	return g.inner.HasOpenBuy(ctx, pair)
}

func (g *LoggingGateway) HasOpenSell(ctx context.Context, pair string) (bool, error) {
	return g.inner.HasOpenSell(ctx, pair)
}

func (g *LoggingGateway) Balance(ctx context.Context, asset string) (float64, error) {
	return g.inner.Balance(ctx, asset)
}

func orderDetails(order exchange.Order) map[string]any {
	return map[string]any{
		"side":       string(order.Side),
		"qty":        order.Qty,
		"price":      order.Price,
		"takeProfit": order.TakeProfit,
		"stopLoss":   order.StopLoss,
	}
}
