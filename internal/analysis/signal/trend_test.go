package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySlopeBuckets(t *testing.T) {
	steep := make([]float64, 10)
	for i := range steep {
		steep[i] = 100 + float64(i)
	}
	trend, err := ClassifySlope(steep)
	require.NoError(t, err)
	assert.Equal(t, StrongUptrend, trend)
	assert.True(t, trend.Up())

	reversed := make([]float64, 10)
	for i := range reversed {
		reversed[i] = 109 - float64(i)
	}
	trend, err = ClassifySlope(reversed)
	require.NoError(t, err)
	assert.Equal(t, StrongDowntrend, trend)
	assert.True(t, trend.Down())

	gentle := make([]float64, 10)
	for i := range gentle {
		gentle[i] = 100 + float64(i)*0.1
	}
	trend, err = ClassifySlope(gentle)
	require.NoError(t, err)
	assert.Equal(t, Uptrend, trend)

	flat := []float64{100, 100.001, 100, 100.001, 100}
	trend, err = ClassifySlope(flat)
	require.NoError(t, err)
	assert.Equal(t, Sideways, trend)
}

func TestClassifySlopeNeedsTwoPoints(t *testing.T) {
	_, err := ClassifySlope([]float64{42})
	assert.ErrorIs(t, err, ErrInsufficientHistory)
	_, err = ClassifySlope(nil)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestBandTrendDirection(t *testing.T) {
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	dir, err := BandTrend(rising, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, Up, dir)

	falling := make([]float64, 20)
	for i := range falling {
		falling[i] = 200 - float64(i)
	}
	dir, err = BandTrend(falling, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, Down, dir)

	_, err = BandTrend([]float64{1, 2, 3}, 5, 2)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}
