package indicator

import "math"

// RSI 计算相对强弱指数，窗口内涨跌幅取简单滚动均值。
// 数据不足返回中性值50，窗口内没有下跌返回100。
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 50
	}

	gains := 0.0
	losses := 0.0
	for i := len(values) - period; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// EMA 计算指数移动平均序列，以首个值为种子。
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}

	k := 2.0 / (float64(period) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// SMA 计算窗口内的简单均值，数据不足返回 NaN。
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}
	return average(values[len(values)-period:])
}

// StdDev 计算窗口内的样本标准差。
func StdDev(values []float64, period int) float64 {
	if period < 2 || len(values) < period {
		return 0
	}

	tail := values[len(values)-period:]
	mean := average(tail)

	sum := 0.0
	for _, v := range tail {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(period-1))
}

// ATR 计算平均真实波幅，真实波幅取简单滚动均值。
func ATR(high, low, close []float64, period int) float64 {
	n := len(close)
	if period <= 0 || n < period+1 {
		return 0
	}

	sum := 0.0
	for i := n - period; i < n; i++ {
		tr := high[i] - low[i]
		if d := math.Abs(high[i] - close[i-1]); d > tr {
			tr = d
		}
		if d := math.Abs(low[i] - close[i-1]); d > tr {
			tr = d
		}
		sum += tr
	}
	return sum / float64(period)
}

// PctChanges 返回逐根收盘价的涨跌幅序列。
func PctChanges(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}

	changes := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		changes = append(changes, (values[i]-values[i-1])/values[i-1])
	}
	return changes
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
