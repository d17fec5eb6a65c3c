// Package app 负责应用级编排：按配置把行情、引擎、执行通道、通知与
// webhook 服务装配起来，live 与 backtest 共享同一套交易管线。
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wafaaboulwafa/bybit-trader/internal/backtest"
	"github.com/wafaaboulwafa/bybit-trader/internal/config"
	"github.com/wafaaboulwafa/bybit-trader/internal/engine"
	"github.com/wafaaboulwafa/bybit-trader/internal/gateway/notifier"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
	"github.com/wafaaboulwafa/bybit-trader/internal/market"
	"github.com/wafaaboulwafa/bybit-trader/internal/store/tradelog"
	webhookhttp "github.com/wafaaboulwafa/bybit-trader/internal/transport/http/webhook"
)

// App 持有一次进程运行所需的全部组件。
type App struct {
	cfg    *config.Config
	market *market.Market

	source   market.Source
	engine   *engine.Engine
	webhook  *webhookhttp.Server
	tradeLog *tradelog.Store
	notify   notifier.TextNotifier

	runner *backtest.Runner
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.Log.Level)

	a := &App{cfg: cfg, notify: notifier.Noop{}}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		a.notify = notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		logger.Infof("✓ Telegram 通知已启用")
	}

	var err error
	switch cfg.Mode {
	case config.ModeBacktest:
		err = a.buildBacktest(ctx)
	default:
		err = a.buildLive(ctx)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Run 按模式运行，直到 ctx 取消或出现致命错误。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app 未初始化")
	}
	defer a.Close()

	if a.cfg.Mode == config.ModeBacktest {
		return a.runBacktest(ctx)
	}
	return a.runLive(ctx)
}

func (a *App) runLive(ctx context.Context) error {
	events, err := a.subscribe(ctx)
	if err != nil {
		return fmt.Errorf("订阅行情失败: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	if a.webhook != nil {
		group.Go(func() error {
			logger.Infof("✓ webhook 接口监听 %s", a.webhook.Addr())
			return a.webhook.Start(ctx)
		})
	}
	group.Go(func() error {
		return a.engine.Run(ctx, events)
	})
	return group.Wait()
}

func (a *App) runBacktest(ctx context.Context) error {
	result, err := a.runner.Run(ctx)
	if err != nil {
		return err
	}
	if path := a.cfg.Backtest.ReportPath; path != "" {
		if err := backtest.WriteReport(path, result); err != nil {
			logger.Warnf("写报告失败: %v", err)
		}
	}
	for _, pair := range a.market.Pairs() {
		msg := notifier.BacktestMessage{
			Pair:       pair.Name,
			Strategy:   pair.Strategy,
			BuyTrades:  result.BuyTrades,
			SellTrades: result.SellTrades,
			GrowthPct:  result.GrowthPct,
		}
		if err := a.notify.SendText(msg.RenderMarkdown()); err != nil {
			logger.Warnf("回测通知失败: %v", err)
		}
	}
	return nil
}

// subscribe 把配置的 (pair, timeframe) 集合转成行情订阅。
func (a *App) subscribe(ctx context.Context) (<-chan market.CandleEvent, error) {
	pairs := make([]string, 0, len(a.market.Pairs()))
	timeframes := make(map[string][]string, len(a.market.Pairs()))
	for _, pair := range a.market.Pairs() {
		pairs = append(pairs, pair.Name)
		timeframes[pair.Name] = pair.TimeframeKeys()
	}
	return a.source.Subscribe(ctx, pairs, timeframes, market.SubscribeOptions{
		Buffer: a.cfg.Market.EventBuffer,
		OnConnect: func() {
			logger.Infof("行情连接就绪，%d 个交易对", len(pairs))
		},
		OnDisconnect: func(err error) {
			logger.Warnf("行情连接断开: %v", err)
		},
	})
}

// Close 释放持有的外部资源，可重复调用。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.source != nil {
		_ = a.source.Close()
	}
	if a.tradeLog != nil {
		_ = a.tradeLog.Close()
	}
}
