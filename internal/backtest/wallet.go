package backtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/wafaaboulwafa/bybit-trader/internal/gateway/exchange"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
	"github.com/wafaaboulwafa/bybit-trader/internal/market"
	"github.com/wafaaboulwafa/bybit-trader/internal/risk"
)

const dust = 1e-9

// Wallet 是回测的双资产台账，同时实现 exchange.Gateway：买入把计价币换成
// 基础币，卖出反向；平多 = 清空基础币。双资产模型做不了净空头，
// HasOpenSell 恒为 false（决策见 DESIGN.md）。
type Wallet struct {
	mu       sync.Mutex
	balances map[string]float64
	pairs    map[string]*market.Pair

	buyTrades  int
	sellTrades int
}

func NewWallet(initial map[string]float64, pairs []*market.Pair) *Wallet {
	w := &Wallet{
		balances: make(map[string]float64, len(initial)),
		pairs:    make(map[string]*market.Pair, len(pairs)),
	}
	for coin, amount := range initial {
		w.balances[strings.ToUpper(coin)] = amount
	}
	for _, p := range pairs {
		w.pairs[p.Name] = p
	}
	return w
}

var _ exchange.Gateway = (*Wallet)(nil)

func (w *Wallet) pair(name string) (*market.Pair, error) {
	p, ok := w.pairs[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("未知交易对: %s", name)
	}
	return p, nil
}

func (w *Wallet) Buy(ctx context.Context, order exchange.Order) error {
	p, err := w.pair(order.Pair)
	if err != nil {
		return err
	}
	if order.Qty <= 0 || order.Price <= 0 {
		return fmt.Errorf("非法买入参数 qty=%v price=%v", order.Qty, order.Price)
	}
	cost := order.Qty * order.Price

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balances[p.QuotationCoin] < cost {
		return risk.ErrInsufficientBalance
	}
	w.balances[p.QuotationCoin] -= cost
	w.balances[p.BaseCoin] += order.Qty
	w.buyTrades++
	logger.Debugf("[回测] %s 买入 qty=%v price=%v", p.Name, order.Qty, order.Price)
	return nil
}

func (w *Wallet) Sell(ctx context.Context, order exchange.Order) error {
	p, err := w.pair(order.Pair)
	if err != nil {
		return err
	}
	if order.Qty <= 0 || order.Price <= 0 {
		return fmt.Errorf("非法卖出参数 qty=%v price=%v", order.Qty, order.Price)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	qty := order.Qty
	if held := w.balances[p.BaseCoin]; qty > held {
		qty = held
	}
	if qty <= dust {
		return risk.ErrInsufficientBalance
	}
	w.balances[p.BaseCoin] -= qty
	w.balances[p.QuotationCoin] += qty * order.Price
	w.sellTrades++
	logger.Debugf("[回测] %s 卖出 qty=%v price=%v", p.Name, qty, order.Price)
	return nil
}

// CloseBuy 清空基础币持仓（100% 平多）。无持仓时为空操作。
func (w *Wallet) CloseBuy(ctx context.Context, pair string, price float64) error {
	p, err := w.pair(pair)
	if err != nil {
		return err
	}
	if price <= 0 {
		return fmt.Errorf("平仓价格必须为正: %v", price)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	held := w.balances[p.BaseCoin]
	if held <= dust {
		return nil
	}
	w.balances[p.BaseCoin] = 0
	w.balances[p.QuotationCoin] += held * price
	w.sellTrades++
	logger.Debugf("[回测] %s 平多 qty=%v price=%v", p.Name, held, price)
	return nil
}

// CloseSell 在双资产模型下无仓可平，保持空操作以满足接口。
func (w *Wallet) CloseSell(ctx context.Context, pair string, price float64) error {
	return nil
}

func (w *Wallet) CloseAll(ctx context.Context, pair string, price float64) error {
	return w.CloseBuy(ctx, pair, price)
}

func (w *Wallet) HasOpenBuy(ctx context.Context, pair string) (bool, error) {
	p, err := w.pair(pair)
	if err != nil {
		return false, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[p.BaseCoin] > dust, nil
}

func (w *Wallet) HasOpenSell(ctx context.Context, pair string) (bool, error) {
	return false, nil
}

func (w *Wallet) Balance(ctx context.Context, asset string) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[strings.ToUpper(strings.TrimSpace(asset))], nil
}

// Equity 按给定价格把基础币折算进计价币，返回总权益。
func (w *Wallet) Equity(p *market.Pair, price float64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[p.QuotationCoin] + w.balances[p.BaseCoin]*price
}

// Trades 返回 (买入次数, 卖出次数)。
func (w *Wallet) Trades() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buyTrades, w.sellTrades
}
