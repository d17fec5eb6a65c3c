package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/wafaaboulwafa/bybit-trader/internal/gateway/exchange"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
)

// Executor 用 Bybit v5 私有接口实现 exchange.Gateway。
// 下单前先撤掉该交易对的全部挂单，避免新旧保护单叠加。
type Executor struct {
	client *Client
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{client: NewClient(cfg)}
}

var _ exchange.Gateway = (*Executor)(nil)

type orderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TakeProfit  string `json:"takeProfit,omitempty"`
	StopLoss    string `json:"stopLoss,omitempty"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
}

func (e *Executor) Buy(ctx context.Context, order exchange.Order) error {
	return e.submit(ctx, order)
}

func (e *Executor) Sell(ctx context.Context, order exchange.Order) error {
	return e.submit(ctx, order)
}

func (e *Executor) submit(ctx context.Context, order exchange.Order) error {
	if order.Qty <= 0 {
		return fmt.Errorf("下单数量必须为正: %v", order.Qty)
	}
	pair := strings.ToUpper(strings.TrimSpace(order.Pair))
	if err := e.cancelAll(ctx, pair); err != nil {
		logger.Warnf("[bybit] %s 撤单失败（继续下单）: %v", pair, err)
	}

	req := orderRequest{
		Category:  e.client.cfg.Category,
		Symbol:    pair,
		Side:      string(order.Side),
		OrderType: "Market",
		Qty:       formatFloat(order.Qty),
	}
	if order.TakeProfit > 0 {
		req.TakeProfit = formatFloat(order.TakeProfit)
	}
	if order.StopLoss > 0 {
		req.StopLoss = formatFloat(order.StopLoss)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	result, err := e.client.post(ctx, "/v5/order/create", string(body))
	if err != nil {
		return err
	}
	logger.Infof("[bybit] %s %s qty=%s orderId=%s",
		pair, order.Side, req.Qty, result.Get("orderId").String())
	return nil
}

func (e *Executor) CloseBuy(ctx context.Context, pair string, price float64) error {
	return e.closeSide(ctx, pair, exchange.SideBuy)
}

func (e *Executor) CloseSell(ctx context.Context, pair string, price float64) error {
	return e.closeSide(ctx, pair, exchange.SideSell)
}

func (e *Executor) CloseAll(ctx context.Context, pair string, price float64) error {
	if err := e.closeSide(ctx, pair, exchange.SideBuy); err != nil {
		return err
	}
	return e.closeSide(ctx, pair, exchange.SideSell)
}

// closeSide 以 reduceOnly 市价单平掉指定方向的全部仓位；无持仓时为空操作。
func (e *Executor) closeSide(ctx context.Context, pair string, side exchange.Side) error {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	size, err := e.positionSize(ctx, pair, side)
	if err != nil {
		return err
	}
	if size <= 0 {
		return nil
	}
	if err := e.cancelAll(ctx, pair); err != nil {
		logger.Warnf("[bybit] %s 撤单失败（继续平仓）: %v", pair, err)
	}

	req := orderRequest{
		Category:   e.client.cfg.Category,
		Symbol:     pair,
		Side:       string(side.Opposite()),
		OrderType:  "Market",
		Qty:        formatFloat(size),
		ReduceOnly: true,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := e.client.post(ctx, "/v5/order/create", string(body)); err != nil {
		return err
	}
	logger.Infof("[bybit] %s 平 %s 仓 qty=%s", pair, side, req.Qty)
	return nil
}

func (e *Executor) cancelAll(ctx context.Context, pair string) error {
	body, err := json.Marshal(map[string]string{
		"category": e.client.cfg.Category,
		"symbol":   pair,
	})
	if err != nil {
		return err
	}
	_, err = e.client.post(ctx, "/v5/order/cancel-all", string(body))
	return err
}

func (e *Executor) HasOpenBuy(ctx context.Context, pair string) (bool, error) {
	size, err := e.positionSize(ctx, pair, exchange.SideBuy)
	return size > 0, err
}

func (e *Executor) HasOpenSell(ctx context.Context, pair string) (bool, error) {
	size, err := e.positionSize(ctx, pair, exchange.SideSell)
	return size > 0, err
}

func (e *Executor) positionSize(ctx context.Context, pair string, side exchange.Side) (float64, error) {
	query := url.Values{}
	query.Set("category", e.client.cfg.Category)
	query.Set("symbol", strings.ToUpper(strings.TrimSpace(pair)))

	result, err := e.client.get(ctx, "/v5/position/list", query, true)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, pos := range result.Get("list").Array() {
		if pos.Get("side").String() != string(side) {
			continue
		}
		total += pos.Get("size").Float()
	}
	return total, nil
}

// Balance 返回某资产在统一账户下的可用余额。
func (e *Executor) Balance(ctx context.Context, asset string) (float64, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	query := url.Values{}
	query.Set("accountType", "UNIFIED")
	query.Set("coin", asset)

	result, err := e.client.get(ctx, "/v5/account/wallet-balance", query, true)
	if err != nil {
		return 0, err
	}
	for _, account := range result.Get("list").Array() {
		for _, coin := range account.Get("coin").Array() {
			if coin.Get("coin").String() != asset {
				continue
			}
			if v := coin.Get("availableToWithdraw").Float(); v > 0 {
				return v, nil
			}
			return coin.Get("walletBalance").Float(), nil
		}
	}
	return 0, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
