package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSI_BalancedGainsAndLosses(t *testing.T) {
	// 涨跌幅完全对称，RSI 应为中性50。
	values := []float64{100}
	for i := 0; i < 7; i++ {
		values = append(values, values[len(values)-1]+1)
		values = append(values, values[len(values)-1]-1)
	}

	assert.InDelta(t, 50.0, RSI(values, 14), 1e-9)
}

func TestRSI_AllGains(t *testing.T) {
	values := make([]float64, 0, 15)
	for i := 0; i < 15; i++ {
		values = append(values, 100+float64(i))
	}

	assert.Equal(t, 100.0, RSI(values, 14))
}

func TestRSI_KnownRatio(t *testing.T) {
	// 7次+3与7次-1：平均涨幅1.5，平均跌幅0.5，RS=3，RSI=75。
	values := []float64{100}
	for i := 0; i < 7; i++ {
		values = append(values, values[len(values)-1]+3)
		values = append(values, values[len(values)-1]-1)
	}

	assert.InDelta(t, 75.0, RSI(values, 14), 1e-9)
}

func TestRSI_InsufficientData(t *testing.T) {
	values := []float64{100, 101, 102}
	assert.Equal(t, 50.0, RSI(values, 14))
}

func TestEMA_SeedAndDecay(t *testing.T) {
	out := EMA([]float64{10, 20}, 3)
	require.Len(t, out, 2)

	// 首值作为种子，k=0.5。
	assert.Equal(t, 10.0, out[0])
	assert.InDelta(t, 15.0, out[1], 1e-9)
}

func TestEMA_ConstantSeries(t *testing.T) {
	values := []float64{42, 42, 42, 42, 42}
	for _, v := range EMA(values, 9) {
		assert.InDelta(t, 42.0, v, 1e-9)
	}
}

func TestSMA(t *testing.T) {
	assert.InDelta(t, 4.0, SMA([]float64{1, 2, 3, 4, 5}, 3), 1e-9)
	assert.True(t, math.IsNaN(SMA([]float64{1, 2}, 3)))
}

func TestStdDev_SampleVariance(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	// 均值5，平方偏差和32，样本方差32/7。
	assert.InDelta(t, math.Sqrt(32.0/7.0), StdDev(values, 8), 1e-9)
}

func TestStdDev_InsufficientData(t *testing.T) {
	assert.Equal(t, 0.0, StdDev([]float64{1}, 20))
}

func TestATR_RangeOnly(t *testing.T) {
	// 每根K线区间恒为2且无跳空，ATR应等于2。
	n := 20
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = 101
		low[i] = 99
		closes[i] = 100
	}

	assert.InDelta(t, 2.0, ATR(high, low, closes, 14), 1e-9)
}

func TestPctChanges(t *testing.T) {
	changes := PctChanges([]float64{100, 110, 99})
	require.Len(t, changes, 2)
	assert.InDelta(t, 0.10, changes[0], 1e-9)
	assert.InDelta(t, -0.10, changes[1], 1e-9)

	assert.Nil(t, PctChanges([]float64{100}))
}
