package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe 描述一个周期标签及其时长。标签与交易所 kline 订阅主题一致
//（分钟数字或 "D"/"W"）。
type Timeframe struct {
	Key      string
	Duration time.Duration
}

var supportedTimeframes = map[string]Timeframe{
	"1":   {Key: "1", Duration: time.Minute},
	"3":   {Key: "3", Duration: 3 * time.Minute},
	"5":   {Key: "5", Duration: 5 * time.Minute},
	"15":  {Key: "15", Duration: 15 * time.Minute},
	"30":  {Key: "30", Duration: 30 * time.Minute},
	"60":  {Key: "60", Duration: time.Hour},
	"120": {Key: "120", Duration: 2 * time.Hour},
	"240": {Key: "240", Duration: 4 * time.Hour},
	"360": {Key: "360", Duration: 6 * time.Hour},
	"720": {Key: "720", Duration: 12 * time.Hour},
	"d":   {Key: "D", Duration: 24 * time.Hour},
	"w":   {Key: "W", Duration: 7 * 24 * time.Hour},
}

// ParseTimeframe 返回标准化周期定义。
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	tf, ok := supportedTimeframes[key]
	if !ok {
		return Timeframe{}, fmt.Errorf("不支持的周期: %s", input)
	}
	return tf, nil
}

// SupportedTimeframes 返回所有支持的标签（排序后）。
func SupportedTimeframes() []string {
	keys := make([]string, 0, len(supportedTimeframes))
	for _, tf := range supportedTimeframes {
		keys = append(keys, tf.Key)
	}
	sort.Strings(keys)
	return keys
}

func (tf Timeframe) DurationMillis() int64 {
	return tf.Duration.Milliseconds()
}
