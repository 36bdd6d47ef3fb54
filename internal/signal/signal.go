package signal

import "time"

// 信号方向。
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// Signal 为策略产出的交易信号。
type Signal struct {
	Symbol       string    `json:"symbol"`
	Action       string    `json:"action"`
	Strength     float64   `json:"strength"`
	EntryPrice   float64   `json:"entry_price"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	PositionSize float64   `json:"position_size"`
	Confidence   float64   `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
	Timestamp    time.Time `json:"timestamp"`
}

// RewardRiskRatio 按入场价、止损、止盈计算盈亏比。
func (s Signal) RewardRiskRatio() float64 {
	risk := s.EntryPrice - s.StopLoss
	reward := s.TakeProfit - s.EntryPrice
	if s.Action == ActionSell {
		risk = s.StopLoss - s.EntryPrice
		reward = s.EntryPrice - s.TakeProfit
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}
