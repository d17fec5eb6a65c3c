package backtest

import (
	"fmt"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
)

// WriteReport 把回测结果渲染成单页 HTML：每个交易对一条资金曲线，
// 页面标题带汇总统计。
func WriteReport(path string, result *Result) error {
	if path == "" {
		return fmt.Errorf("报告路径不能为空")
	}
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("回测 %s", result.RunID)

	for pair, points := range result.Curves {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title: fmt.Sprintf("%s 资金曲线", pair),
				Subtitle: fmt.Sprintf("买入 %d 次 / 卖出 %d 次 / 资金 %d%%",
					result.BuyTrades, result.SellTrades, result.GrowthPct),
			}),
		)
		xs := make([]string, 0, len(points))
		ys := make([]opts.LineData, 0, len(points))
		for _, p := range points {
			xs = append(xs, time.UnixMilli(p.Key).UTC().Format("01-02 15:04"))
			ys = append(ys, opts.LineData{Value: p.Equity})
		}
		line.SetXAxis(xs).AddSeries("equity", ys)
		page.AddCharts(line)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return err
	}
	logger.Infof("[回测] 报告已写入 %s", path)
	return nil
}
