package bybit

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

const (
	defaultCandleBufSize = 512
	wsPingInterval       = 20 * time.Second
	wsReadTimeout        = 60 * time.Second
)

// Source 通过 REST 拉取历史、WS 订阅实时 kline，实现 market.Source。
type Source struct {
	client *Client

	subMu    sync.Mutex
	subClose context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats
}

func NewSource(cfg Config) *Source {
	return &Source{client: NewClient(cfg)}
}

// FetchHistory 拉取最近 limit 根 K 线，按 Key 升序返回。
func (s *Source) FetchHistory(ctx context.Context, pair, timeframe string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if pair == "" {
		return nil, fmt.Errorf("pair 不能为空")
	}
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("category", s.client.cfg.Category)
	query.Set("symbol", pair)
	query.Set("interval", tf.Key)
	query.Set("limit", strconv.Itoa(limit))

	result, err := s.client.get(ctx, "/v5/market/kline", query, false)
	if err != nil {
		logger.Errorf("[bybit] 拉取 %s %s 历史失败: %v", pair, tf.Key, err)
		return nil, err
	}

	// list 是新在前的二维数组 [start, open, high, low, close, volume, turnover]
	rows := result.Get("list").Array()
	out := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		cols := row.Array()
		if len(cols) < 5 {
			continue
		}
		out = append(out, market.Candle{
			Key:   cols[0].Int(),
			Open:  cols[1].Float(),
			High:  cols[2].Float(),
			Low:   cols[3].Float(),
			Close: cols[4].Float(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Subscribe 为每个 (pair, timeframe) 组合订阅 kline.<tf>.<symbol>。返回的
// 通道在 ctx 取消后关闭；连接断开时按指数退避自动重连并重新订阅。
func (s *Source) Subscribe(ctx context.Context, pairs []string, timeframes map[string][]string, opts market.SubscribeOptions) (<-chan market.CandleEvent, error) {
	topics := buildTopics(pairs, timeframes)
	if len(topics) == 0 {
		return nil, fmt.Errorf("没有可订阅的 pair/timeframe 组合")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultCandleBufSize
	}

	subCtx, cancel := context.WithCancel(ctx)
	s.subMu.Lock()
	if s.subClose != nil {
		s.subClose()
	}
	s.subClose = cancel
	s.subMu.Unlock()

	out := make(chan market.CandleEvent, buffer)
	go func() {
		defer close(out)
		s.runLoop(subCtx, topics, out, opts)
	}()
	return out, nil
}

func (s *Source) runLoop(ctx context.Context, topics []string, out chan<- market.CandleEvent, opts market.SubscribeOptions) {
	wsURL := strings.TrimRight(s.client.cfg.WSBaseURL, "/") + "/" + s.client.cfg.Category
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.runConnection(ctx, wsURL, topics, out, opts)
		if ctx.Err() != nil {
			return
		}
		s.recordReconnect(err)
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(err)
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

// runConnection 维持一条 WS 连接直到出错或 ctx 取消。
func (s *Source) runConnection(ctx context.Context, wsURL string, topics []string, out chan<- market.CandleEvent, opts market.SubscribeOptions) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		s.recordSubscribeError(err)
		return err
	}
	defer conn.Close()

	sub := map[string]any{"op": "subscribe", "args": topics}
	if err := conn.WriteJSON(sub); err != nil {
		s.recordSubscribeError(err)
		return err
	}
	logger.Infof("[bybit] WS 已连接，订阅 %d 个 topic", len(topics))
	if opts.OnConnect != nil {
		opts.OnConnect()
	}

	// 心跳 goroutine：ctx 取消或连接关闭时退出
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteJSON(map[string]any{"op": "ping"}); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			return err
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		for _, evt := range convertKlineMessage(raw) {
			select {
			case <-ctx.Done():
				return nil
			case out <- evt:
			default:
				s.recordDropped()
				logger.Warnf("[bybit] kline 通道满，丢弃 %s %s", evt.Pair, evt.Timeframe)
			}
		}
	}
}

// convertKlineMessage 把一条 WS 推送转成零或多个 CandleEvent。
// 非 kline topic、缺字段的推送直接丢弃。
func convertKlineMessage(raw []byte) []market.CandleEvent {
	body := gjson.ParseBytes(raw)
	topic := body.Get("topic").String()
	if !strings.HasPrefix(topic, "kline.") {
		return nil
	}
	parts := strings.Split(topic, ".")
	if len(parts) != 3 {
		return nil
	}
	timeframe, pair := parts[1], strings.ToUpper(parts[2])

	var events []market.CandleEvent
	for _, item := range body.Get("data").Array() {
		start := item.Get("start").Int()
		if start == 0 {
			continue
		}
		c := market.Candle{
			Key:   start,
			Open:  item.Get("open").Float(),
			High:  item.Get("high").Float(),
			Low:   item.Get("low").Float(),
			Close: item.Get("close").Float(),
		}
		if c.Open == 0 && c.Close == 0 {
			continue
		}
		events = append(events, market.CandleEvent{
			Pair:      pair,
			Timeframe: timeframe,
			Candle:    c,
		})
	}
	return events
}

func buildTopics(pairs []string, timeframes map[string][]string) []string {
	var topics []string
	seen := make(map[string]struct{})
	for _, pair := range pairs {
		pair = strings.ToUpper(strings.TrimSpace(pair))
		if pair == "" {
			continue
		}
		for _, raw := range timeframes[pair] {
			tf, err := market.ParseTimeframe(raw)
			if err != nil {
				continue
			}
			topic := fmt.Sprintf("kline.%s.%s", tf.Key, pair)
			if _, dup := seen[topic]; dup {
				continue
			}
			seen[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.subMu.Lock()
	if s.subClose != nil {
		s.subClose()
		s.subClose = nil
	}
	s.subMu.Unlock()
	return nil
}

func (s *Source) recordSubscribeError(err error) {
	if err == nil {
		return
	}
	s.statsMu.Lock()
	s.stats.SubscribeErrors++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}

func (s *Source) recordReconnect(err error) {
	s.statsMu.Lock()
	s.stats.Reconnects++
	if err != nil && err.Error() != "" {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
}

func (s *Source) recordDropped() {
	s.statsMu.Lock()
	s.stats.Dropped++
	s.statsMu.Unlock()
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
