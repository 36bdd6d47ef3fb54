package risk

import "time"

// Assessment 为一次风控评估的结论。
type Assessment struct {
	Approved     bool    `json:"approved"`
	PositionSize float64 `json:"position_size"`
	RiskScore    float64 `json:"risk_score"`
	Reason       string  `json:"reason"`
}

// Metrics 为当日风控运行指标快照。
type Metrics struct {
	DailyPnl        float64   `json:"daily_pnl"`
	DailyTrades     int       `json:"daily_trades"`
	MaxPositionSize float64   `json:"max_position_size"`
	MaxDrawdown     float64   `json:"max_drawdown"`
	LastReset       time.Time `json:"last_reset"`
}
