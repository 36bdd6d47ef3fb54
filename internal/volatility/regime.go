package volatility

// Regime 按 VIX 水平划分的市场波动状态。
type Regime string

const (
	RegimeLow      Regime = "LOW"
	RegimeNormal   Regime = "NORMAL"
	RegimeElevated Regime = "ELEVATED"
	RegimePanic    Regime = "PANIC"
)

// ClassifyRegime 按 VIX 水平划分市场状态。
func ClassifyRegime(vix float64) Regime {
	switch {
	case vix < 12:
		return RegimeLow
	case vix < 20:
		return RegimeNormal
	case vix < 30:
		return RegimeElevated
	default:
		return RegimePanic
	}
}

// Threshold 返回该状态下信号强度需要越过的门槛。
// 波动越高门槛越高，恐慌行情只放行极强信号。
func (r Regime) Threshold() float64 {
	switch r {
	case RegimeLow:
		return 0.40
	case RegimeElevated:
		return 0.55
	case RegimePanic:
		return 0.70
	default:
		return 0.45
	}
}

// Percentile 估算 VIX 在一年区间内的分位。
func Percentile(vix float64) float64 {
	switch {
	case vix < 12:
		return 0.10
	case vix < 15:
		return 0.30
	case vix < 20:
		return 0.50
	case vix < 25:
		return 0.70
	case vix < 30:
		return 0.85
	default:
		return 0.95
	}
}
