package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

func zzCandle(key int64, high, low float64) market.Candle {
	return market.Candle{Key: key, Open: low, High: high, Low: low, Close: high}
}

func TestZigZagExtractsAlternatingSwings(t *testing.T) {
	candles := []market.Candle{
		zzCandle(0, 10, 9),
		zzCandle(1, 11, 10),
		zzCandle(2, 15, 14),
		zzCandle(3, 12, 11),
		zzCandle(4, 10, 9),
		zzCandle(5, 11, 10),
	}

	swings := ZigZag(candles, 10, 5)
	require.Len(t, swings, 3)

	assert.Equal(t, 0, swings[0].Index)
	assert.Equal(t, SwingLow, swings[0].Type)
	assert.Equal(t, 9.0, swings[0].Value)

	assert.Equal(t, 2, swings[1].Index)
	assert.Equal(t, SwingHigh, swings[1].Type)
	assert.Equal(t, 15.0, swings[1].Value)

	assert.Equal(t, 4, swings[2].Index)
	assert.Equal(t, SwingLow, swings[2].Type)

	// 升序返回
	for i := 1; i < len(swings); i++ {
		assert.Less(t, swings[i-1].Index, swings[i].Index)
	}
}

func TestZigZagShortInput(t *testing.T) {
	assert.Nil(t, ZigZag(nil, 2, 5))
	assert.Nil(t, ZigZag([]market.Candle{zzCandle(0, 10, 9)}, 2, 5))
}

func TestZigZagFlatSeriesHasNoSwings(t *testing.T) {
	var candles []market.Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, zzCandle(int64(i), 10, 10))
	}
	assert.Empty(t, ZigZag(candles, 2, 5))
}
