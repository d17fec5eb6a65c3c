package notifier

import (
	"fmt"
	"strings"
	"time"
)

const maxMessageLen = 3800

// TradeMessage 描述一次开仓/平仓推送的统一格式。
type TradeMessage struct {
	Pair       string
	Action     string // Buy / Sell / CloseBuy / CloseSell / CloseAll
	Strategy   string
	Price      float64
	Qty        float64
	TakeProfit float64
	StopLoss   float64
	Timestamp  time.Time
}

// RenderMarkdown 生成 Markdown 文本，自动裁剪长度。
func (m TradeMessage) RenderMarkdown() string {
	icon := "🟢"
	if strings.HasPrefix(m.Action, "Close") || m.Action == "Sell" {
		icon = "🔴"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s\n", icon, m.Pair, m.Action)
	if m.Strategy != "" {
		fmt.Fprintf(&b, "策略：%s\n", m.Strategy)
	}
	if m.Price > 0 {
		fmt.Fprintf(&b, "价格：%v\n", m.Price)
	}
	if m.Qty > 0 {
		fmt.Fprintf(&b, "数量：%v\n", m.Qty)
	}
	if m.TakeProfit > 0 {
		fmt.Fprintf(&b, "止盈：%v\n", m.TakeProfit)
	}
	if m.StopLoss > 0 {
		fmt.Fprintf(&b, "止损：%v\n", m.StopLoss)
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：" + m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	return clamp(strings.TrimSpace(b.String()))
}

// BacktestMessage 是回测完成的摘要推送。
type BacktestMessage struct {
	Pair       string
	Strategy   string
	BuyTrades  int
	SellTrades int
	GrowthPct  int
}

func (m BacktestMessage) RenderMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *%s* 回测完成\n", m.Pair)
	if m.Strategy != "" {
		fmt.Fprintf(&b, "策略：%s\n", m.Strategy)
	}
	fmt.Fprintf(&b, "买入：%d 次，卖出：%d 次\n", m.BuyTrades, m.SellTrades)
	fmt.Fprintf(&b, "资金变化：%d%%", m.GrowthPct)
	return clamp(b.String())
}

func clamp(body string) string {
	if len(body) > maxMessageLen {
		return body[:maxMessageLen] + "..."
	}
	return body
}
