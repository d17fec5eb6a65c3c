// Package bybit 实现 Bybit v5 的行情来源与交易执行：REST 拉历史/下单/查持仓，
// WS 订阅 kline 推送。鉴权按 v5 规范对 timestamp+apiKey+recvWindow+payload 做
// HMAC-SHA256 签名。
package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
)

const (
	defaultRESTBaseURL = "https://api.bybit.com"
	defaultWSBaseURL   = "wss://stream.bybit.com/v5/public"
	defaultRecvWindow  = "5000"
	defaultHTTPTimeout = 10 * time.Second
	maxKlineLimit      = 1000
)

// Config 是 Bybit 接入参数。Category 取 linear/spot，默认 linear。
type Config struct {
	RESTBaseURL string
	WSBaseURL   string
	APIKey      string
	APISecret   string
	Category    string
	Demo        bool
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.RESTBaseURL) == "" {
		c.RESTBaseURL = defaultRESTBaseURL
	}
	if strings.TrimSpace(c.WSBaseURL) == "" {
		c.WSBaseURL = defaultWSBaseURL
	}
	if strings.TrimSpace(c.Category) == "" {
		c.Category = "linear"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	return c
}

// Client 是 Bybit v5 REST 客户端。
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

func NewClient(cfg Config) *Client {
	final := cfg.withDefaults()
	return &Client{
		cfg:  final,
		http: &http.Client{Timeout: final.HTTPTimeout},
		now:  time.Now,
	}
}

// sign 计算 v5 签名：HMAC-SHA256(secret, timestamp + apiKey + recvWindow + payload)。
// GET 的 payload 是原始 query string，POST 是 JSON body。
func sign(secret, timestamp, apiKey, recvWindow, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + apiKey + recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) get(ctx context.Context, path string, query url.Values, private bool) (gjson.Result, error) {
	endpoint := c.cfg.RESTBaseURL + path
	encoded := query.Encode()
	if encoded != "" {
		endpoint += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	if private {
		c.authorize(req, encoded)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RESTBaseURL+path,
		bytes.NewReader([]byte(body)))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, body)
	return c.do(req)
}

func (c *Client) authorize(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.cfg.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", defaultRecvWindow)
	req.Header.Set("X-BAPI-SIGN",
		sign(c.cfg.APISecret, timestamp, c.cfg.APIKey, defaultRecvWindow, payload))
	if c.cfg.Demo {
		req.Header.Set("X-BAPI-DEMO-TRADING", "1")
	}
}

func (c *Client) do(req *http.Request) (gjson.Result, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("bybit %s: http %d: %s",
			req.URL.Path, resp.StatusCode, truncate(string(raw), 256))
	}
	body := gjson.ParseBytes(raw)
	if code := body.Get("retCode").Int(); code != 0 {
		msg := body.Get("retMsg").String()
		logger.Debugf("[bybit] %s retCode=%d retMsg=%s", req.URL.Path, code, msg)
		return gjson.Result{}, fmt.Errorf("bybit %s: retCode=%d retMsg=%s", req.URL.Path, code, msg)
	}
	return body.Get("result"), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
