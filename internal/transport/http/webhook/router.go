package webhookhttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wafaaboulwafa/bybit-trader/internal/engine"
	"github.com/wafaaboulwafa/bybit-trader/internal/gateway/exchange"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
	"github.com/wafaaboulwafa/bybit-trader/internal/market"
	"github.com/wafaaboulwafa/bybit-trader/internal/risk"
	"github.com/wafaaboulwafa/bybit-trader/internal/store/tradelog"
)

// RouterConfig 描述 webhook 路由的依赖。Trades 可为 nil（未启用交易日志）。
type RouterConfig struct {
	Market  *market.Market
	Gateway exchange.Gateway
	Gate    *engine.PositionGate
	Trades  *tradelog.Store
}

// Router 暴露人工开平仓与交易日志查询接口。
type Router struct {
	market  *market.Market
	gateway exchange.Gateway
	gate    *engine.PositionGate
	trades  *tradelog.Store
}

func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Market == nil || cfg.Gateway == nil || cfg.Gate == nil {
		return nil, errors.New("webhook 路由缺少 market/gateway/gate")
	}
	return &Router{
		market:  cfg.Market,
		gateway: cfg.Gateway,
		gate:    cfg.Gate,
		trades:  cfg.Trades,
	}, nil
}

// Register 将路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/trade/buy", r.handleOpen(exchange.SideBuy))
	group.POST("/trade/sell", r.handleOpen(exchange.SideSell))
	group.POST("/trade/closeBuy", r.handleClose("closeBuy"))
	group.POST("/trade/closeSell", r.handleClose("closeSell"))
	group.POST("/trade/closeAll", r.handleClose("closeAll"))
	group.GET("/trades", r.handleTrades)
}

// tradeRequest 是人工下单参数。Qty 为 0 时按交易对的风险策略换算数量，
// Price 为 0 时取最新行情价。
type tradeRequest struct {
	Pair       string  `json:"pair"`
	Qty        float64 `json:"qty"`
	Price      float64 `json:"price"`
	TakeProfit float64 `json:"takeProfit"`
	StopLoss   float64 `json:"stopLoss"`
}

type closeRequest struct {
	Pair  string  `json:"pair"`
	Price float64 `json:"price"`
}

func (r *Router) handleOpen(side exchange.Side) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pair, ok := r.market.Pair(req.Pair)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "未知交易对: " + req.Pair})
			return
		}
		// 与行情 worker 共用同一把处理锁：既避免人工单与策略单同时在途，
		// 也保证随后的序列读价与 worker 的 Merge 不并发
		if !r.gate.TryEnter(pair.Name) {
			c.JSON(http.StatusConflict, gin.H{"error": "该交易对正在处理中，稍后重试"})
			return
		}
		defer r.gate.Exit(pair.Name)

		price := req.Price
		if price <= 0 {
			price, ok = r.latestPrice(pair)
			if !ok {
				c.JSON(http.StatusConflict, gin.H{"error": "暂无行情价，需显式指定 price"})
				return
			}
		}

		ctx := c.Request.Context()
		takeProfit, stopLoss := req.TakeProfit, req.StopLoss
		orderSide := side
		if pair.Invert {
			var err error
			if takeProfit > 0 || stopLoss > 0 {
				takeProfit, stopLoss, err = risk.MirrorProtection(price, takeProfit, stopLoss)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
			}
			orderSide = side.Opposite()
		}

		qty := req.Qty
		if qty <= 0 {
			var err error
			qty, err = r.sizeOrder(c, pair, price, stopLoss)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		order := exchange.Order{
			Pair:       pair.Name,
			Side:       orderSide,
			Qty:        qty,
			Price:      price,
			TakeProfit: takeProfit,
			StopLoss:   stopLoss,
		}
		var err error
		if orderSide == exchange.SideBuy {
			err = r.gateway.Buy(ctx, order)
		} else {
			err = r.gateway.Sell(ctx, order)
		}
		if err != nil {
			logger.Errorf("[webhook] %s %s 下单失败: %v", pair.Name, orderSide, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		// 人工单同样落方向闩，策略随后不会对同一方向重复开仓
		if side == exchange.SideBuy {
			r.gate.SetBuyTriggered(pair.Name)
		} else {
			r.gate.SetSellTriggered(pair.Name)
		}
		logger.Infof("[webhook] %s %s qty=%v price=%v", pair.Name, orderSide, qty, price)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "qty": qty, "price": price})
	}
}

func (r *Router) handleClose(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req closeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pair, ok := r.market.Pair(req.Pair)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "未知交易对: " + req.Pair})
			return
		}
		if !r.gate.TryEnter(pair.Name) {
			c.JSON(http.StatusConflict, gin.H{"error": "该交易对正在处理中，稍后重试"})
			return
		}
		defer r.gate.Exit(pair.Name)

		price := req.Price
		if price <= 0 {
			price, ok = r.latestPrice(pair)
			if !ok {
				c.JSON(http.StatusConflict, gin.H{"error": "暂无行情价，需显式指定 price"})
				return
			}
		}

		ctx := c.Request.Context()
		var err error
		switch action {
		case "closeBuy":
			if pair.Invert {
				err = r.gateway.CloseSell(ctx, pair.Name, price)
			} else {
				err = r.gateway.CloseBuy(ctx, pair.Name, price)
			}
			r.gate.ClearBuyTrigger(pair.Name)
		case "closeSell":
			if pair.Invert {
				err = r.gateway.CloseBuy(ctx, pair.Name, price)
			} else {
				err = r.gateway.CloseSell(ctx, pair.Name, price)
			}
			r.gate.ClearSellTrigger(pair.Name)
		default:
			err = r.gateway.CloseAll(ctx, pair.Name, price)
			r.gate.ClearTriggers(pair.Name)
		}
		if err != nil {
			logger.Errorf("[webhook] %s %s 失败: %v", pair.Name, action, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		logger.Infof("[webhook] %s %s price=%v", pair.Name, action, price)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (r *Router) handleTrades(c *gin.Context) {
	if r.trades == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "交易日志未启用"})
		return
	}
	pair := strings.TrimSpace(c.Query("pair"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	recs, err := r.trades.Recent(c.Request.Context(), pair, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": recs})
}

// sizeOrder 按交易对的风险策略把余额换算成数量。
func (r *Router) sizeOrder(c *gin.Context, pair *market.Pair, price, stopLoss float64) (float64, error) {
	method, err := risk.ParseMethod(pair.RiskMethod)
	if err != nil {
		return 0, err
	}
	balance := 0.0
	if method != risk.FixedQty {
		balance, err = r.gateway.Balance(c.Request.Context(), pair.QuotationCoin)
		if err != nil {
			return 0, err
		}
	}
	return risk.Size(risk.Request{
		Policy:   risk.Policy{Method: method, Amount: pair.RiskAmount},
		Entry:    price,
		StopLoss: stopLoss,
		Balance:  balance,
		Limits:   pair.Limits,
	})
}

// latestPrice 取该交易对所有序列里最新一根 K 线的收盘价。
func (r *Router) latestPrice(pair *market.Pair) (float64, bool) {
	bestKey := int64(-1)
	price := 0.0
	for _, tf := range pair.TimeframeKeys() {
		series, ok := pair.Series(tf)
		if !ok {
			continue
		}
		last, ok := series.Last()
		if !ok {
			continue
		}
		if last.Key > bestKey {
			bestKey = last.Key
			price = last.Close
		}
	}
	return price, bestKey >= 0
}
