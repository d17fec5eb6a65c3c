package webhookhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafaaboulwafa/bybit-trader/internal/engine"
	"github.com/wafaaboulwafa/bybit-trader/internal/gateway/exchange"
	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

type fakeGateway struct {
	orders  []exchange.Order
	closes  []string
	balance float64
}

func (f *fakeGateway) Buy(ctx context.Context, order exchange.Order) error {
	f.orders = append(f.orders, order)
	return nil
}

func (f *fakeGateway) Sell(ctx context.Context, order exchange.Order) error {
	f.orders = append(f.orders, order)
	return nil
}

func (f *fakeGateway) CloseBuy(ctx context.Context, pair string, price float64) error {
	f.closes = append(f.closes, "closeBuy:"+pair)
	return nil
}

func (f *fakeGateway) CloseSell(ctx context.Context, pair string, price float64) error {
	f.closes = append(f.closes, "closeSell:"+pair)
	return nil
}

func (f *fakeGateway) CloseAll(ctx context.Context, pair string, price float64) error {
	f.closes = append(f.closes, "closeAll:"+pair)
	return nil
}

func (f *fakeGateway) HasOpenBuy(ctx context.Context, pair string) (bool, error) {
	return false, nil
}

func (f *fakeGateway) HasOpenSell(ctx context.Context, pair string) (bool, error) {
	return false, nil
}

func (f *fakeGateway) Balance(ctx context.Context, asset string) (float64, error) {
	return f.balance, nil
}

func newTestRouter(t *testing.T, invert bool) (*gin.Engine, *fakeGateway, *engine.PositionGate, *market.Market) {
	t.Helper()
	m, err := market.NewMarket([]market.PairSpec{{
		Name:          "BTCUSDT",
		Strategy:      "default",
		TimeFrames:    []string{"5"},
		BaseCoin:      "BTC",
		QuotationCoin: "USDT",
		Invert:        invert,
		RiskMethod:    "percentOfEquity",
		RiskAmount:    0.25,
	}}, 0)
	require.NoError(t, err)

	gw := &fakeGateway{balance: 1000}
	gate := engine.NewPositionGate()
	r, err := NewRouter(RouterConfig{Market: m, Gateway: gw, Gate: gate})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	g := gin.New()
	r.Register(g.Group("/api"))
	return g, gw, gate, m
}

func post(g *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func TestManualBuyWithExplicitQty(t *testing.T) {
	g, gw, gate, _ := newTestRouter(t, false)

	w := post(g, "/api/trade/buy", `{"pair":"BTCUSDT","qty":0.5,"price":100,"takeProfit":110,"stopLoss":95}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, gw.orders, 1)
	assert.Equal(t, exchange.SideBuy, gw.orders[0].Side)
	assert.Equal(t, 0.5, gw.orders[0].Qty)
	assert.Equal(t, 110.0, gw.orders[0].TakeProfit)
	assert.Equal(t, 95.0, gw.orders[0].StopLoss)
	assert.True(t, gate.BuyTriggered("BTCUSDT"))
}

func TestManualBuySizesFromRiskPolicy(t *testing.T) {
	g, gw, _, _ := newTestRouter(t, false)

	// percentOfEquity 0.25 × 1000 = 250，止损距离 5 → qty 50
	w := post(g, "/api/trade/buy", `{"pair":"BTCUSDT","price":100,"stopLoss":95}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, gw.orders, 1)
	assert.InDelta(t, 50, gw.orders[0].Qty, 1e-9)
}

func TestManualBuyUnknownPair(t *testing.T) {
	g, _, _, _ := newTestRouter(t, false)
	w := post(g, "/api/trade/buy", `{"pair":"DOGEUSDT","qty":1,"price":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestManualBuyWithoutPriceNeedsMarketData(t *testing.T) {
	g, _, _, _ := newTestRouter(t, false)
	w := post(g, "/api/trade/buy", `{"pair":"BTCUSDT","qty":1}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestManualBuyUsesLatestCandlePrice(t *testing.T) {
	g, gw, _, m := newTestRouter(t, false)
	pair, _ := m.Pair("BTCUSDT")
	series, _ := pair.Series("5")
	series.Merge(market.Candle{Key: 300000, Open: 100, High: 102, Low: 99, Close: 101})

	w := post(g, "/api/trade/buy", `{"pair":"BTCUSDT","qty":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, gw.orders, 1)
	assert.Equal(t, 101.0, gw.orders[0].Price)
}

func TestBusyPairReturnsConflict(t *testing.T) {
	g, gw, gate, _ := newTestRouter(t, false)
	require.True(t, gate.TryEnter("BTCUSDT"))
	defer gate.Exit("BTCUSDT")

	w := post(g, "/api/trade/buy", `{"pair":"BTCUSDT","qty":1,"price":100}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, gw.orders)
}

func TestInvertedPairFlipsSideAndMirrorsProtection(t *testing.T) {
	g, gw, _, _ := newTestRouter(t, true)

	w := post(g, "/api/trade/buy", `{"pair":"BTCUSDT","qty":1,"price":100,"takeProfit":110,"stopLoss":95}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, gw.orders, 1)
	assert.Equal(t, exchange.SideSell, gw.orders[0].Side)
	assert.Equal(t, 90.0, gw.orders[0].TakeProfit)
	assert.Equal(t, 105.0, gw.orders[0].StopLoss)
}

func TestCloseAllClearsTriggers(t *testing.T) {
	g, gw, gate, _ := newTestRouter(t, false)
	gate.SetBuyTriggered("BTCUSDT")
	gate.SetSellTriggered("BTCUSDT")

	w := post(g, "/api/trade/closeAll", `{"pair":"BTCUSDT","price":100}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"closeAll:BTCUSDT"}, gw.closes)
	assert.False(t, gate.BuyTriggered("BTCUSDT"))
	assert.False(t, gate.SellTriggered("BTCUSDT"))
}

func TestCloseBuyOnInvertedPairClosesShortLeg(t *testing.T) {
	g, gw, _, _ := newTestRouter(t, true)
	w := post(g, "/api/trade/closeBuy", `{"pair":"BTCUSDT","price":100}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"closeSell:BTCUSDT"}, gw.closes)
}

// 行情 worker 写序列与 webhook 读最新价走同一把处理锁，
// -race 下并发推进行情 + 无价平仓不应报告竞争。
func TestConcurrentMarketUpdatesAndManualClose(t *testing.T) {
	m, err := market.NewMarket([]market.PairSpec{{
		Name:          "BTCUSDT",
		Strategy:      "default",
		TimeFrames:    []string{"5"},
		BaseCoin:      "BTC",
		QuotationCoin: "USDT",
		RiskMethod:    "fixedQty",
		RiskAmount:    1,
	}}, 2)
	require.NoError(t, err)

	gw := &fakeGateway{balance: 1000}
	eng, err := engine.New(m, engine.Options{Gateway: gw})
	require.NoError(t, err)
	r, err := NewRouter(RouterConfig{Market: m, Gateway: gw, Gate: eng.Gate()})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	g := gin.New()
	r.Register(g.Group("/api"))

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			price := 100 + float64(i%7)
			eng.Process(ctx, market.CandleEvent{
				Pair:      "BTCUSDT",
				Timeframe: "5",
				Candle: market.Candle{
					Key:   int64(300000 * (i/4 + 1)),
					Open:  price,
					High:  price + 1,
					Low:   price - 1,
					Close: price,
				},
			})
		}
	}()

	// 不带 price，强制走 latestPrice 读序列；占不到锁时 409 也是合法结果
	for i := 0; i < 200; i++ {
		w := post(g, "/api/trade/closeAll", `{"pair":"BTCUSDT"}`)
		require.Contains(t, []int{http.StatusOK, http.StatusConflict}, w.Code)
	}
	<-done
}

func TestTradesEndpointDisabledWithoutStore(t *testing.T) {
	g, _, _, _ := newTestRouter(t, false)
	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
