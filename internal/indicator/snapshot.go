package indicator

import (
	"errors"
	"fmt"
	"sync"

	"volt-trader/internal/exchange"
)

// MinCandles 为计算全部指标所需的最少K线数量。
const MinCandles = 50

// ErrInsufficientData 表示K线数量不足，无法得到可靠指标。
var ErrInsufficientData = errors.New("insufficient candle data")

// MACDResult 保存 MACD 当前值与上一根值，用于判断金叉死叉。
type MACDResult struct {
	Value      float64
	Signal     float64
	Histogram  float64
	PrevValue  float64
	PrevSignal float64
}

// BullishCross 判断当前是否为新出现的金叉。
func (m MACDResult) BullishCross() bool {
	return m.Value > m.Signal && m.PrevValue <= m.PrevSignal
}

// BearishCross 判断当前是否为新出现的死叉。
func (m MACDResult) BearishCross() bool {
	return m.Value < m.Signal && m.PrevValue >= m.PrevSignal
}

// BollingerResult 保存布林带三条轨道。
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// VolumeResult 保存成交量统计。
type VolumeResult struct {
	Current   float64
	Average20 float64
	Ratio     float64
}

// Snapshot 为单个交易对最新一根K线上的指标汇总。
type Snapshot struct {
	Symbol        string
	Series        Series
	RSI           float64
	MACD          MACDResult
	Bollinger     BollingerResult
	SMA20         float64
	SMA50         float64
	EMA12         float64
	EMA26         float64
	ATR           float64
	Volume        VolumeResult
	Close         float64
	PreviousClose float64
}

type cacheEntry struct {
	key      string
	snapshot Snapshot
}

// Calculator 计算技术指标，并按交易对缓存最近一次结果。
type Calculator struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCalculator 创建 Calculator。
func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[string]cacheEntry),
	}
}

// Compute 依据K线计算指标快照，K线需按时间升序。
func (c *Calculator) Compute(symbol string, candles []exchange.Candle) (Snapshot, error) {
	if len(candles) < MinCandles {
		return Snapshot{}, fmt.Errorf("%w: %s 仅有 %d 根K线，至少需要 %d 根",
			ErrInsufficientData, symbol, len(candles), MinCandles)
	}

	series := NewSeries(candles)
	cacheKey := fmt.Sprintf("%s:%d:%d", symbol, series.Len(), series.Timestamps[series.Len()-1].Unix())

	c.mu.Lock()
	if entry, ok := c.cache[symbol]; ok && entry.key == cacheKey {
		c.mu.Unlock()
		return entry.snapshot, nil
	}
	c.mu.Unlock()

	snapshot := c.calculate(symbol, series)

	c.mu.Lock()
	c.cache[symbol] = cacheEntry{key: cacheKey, snapshot: snapshot}
	c.mu.Unlock()

	return snapshot, nil
}

func (c *Calculator) calculate(symbol string, series Series) Snapshot {
	closes := series.Close
	volumes := series.Volume

	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = ema12[i] - ema26[i]
	}
	signalLine := EMA(macdLine, 9)

	middle := SMA(closes, 20)
	std := StdDev(closes, 20)

	volumeAvg := average(SliceTail(volumes, 20))
	volumeCurrent := Last(volumes)

	return Snapshot{
		Symbol: symbol,
		Series: series,
		RSI:    RSI(closes, 14),
		MACD: MACDResult{
			Value:      Last(macdLine),
			Signal:     Last(signalLine),
			Histogram:  Last(macdLine) - Last(signalLine),
			PrevValue:  Prev(macdLine),
			PrevSignal: Prev(signalLine),
		},
		Bollinger: BollingerResult{
			Upper:  middle + 2*std,
			Middle: middle,
			Lower:  middle - 2*std,
		},
		SMA20: middle,
		SMA50: SMA(closes, 50),
		EMA12: Last(ema12),
		EMA26: Last(ema26),
		ATR:   ATR(series.High, series.Low, closes, 14),
		Volume: VolumeResult{
			Current:   volumeCurrent,
			Average20: volumeAvg,
			Ratio:     SafeDivide(volumeCurrent, volumeAvg),
		},
		Close:         Last(closes),
		PreviousClose: Prev(closes),
	}
}
