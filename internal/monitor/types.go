package monitor

import (
	"time"

	"volt-trader/internal/agent"
	"volt-trader/internal/exchange"
	"volt-trader/internal/risk"
	"volt-trader/internal/signal"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventSignal    EventType = "signal"
	EventConsensus EventType = "consensus"
	EventRisk      EventType = "risk_assessment"
	EventExecution EventType = "execution"
	EventPortfolio EventType = "portfolio"
	EventError     EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SignalPayload 记录策略产出的交易信号。
type SignalPayload struct {
	Signal signal.Signal `json:"signal"`
}

// ConsensusPayload 记录多智能体共识结果。
type ConsensusPayload struct {
	Symbol    string          `json:"symbol"`
	Consensus agent.Consensus `json:"consensus"`
}

// RiskPayload 记录风控评估过程。
type RiskPayload struct {
	Signal     signal.Signal   `json:"signal"`
	Assessment risk.Assessment `json:"assessment"`
}

// ExecutionPayload 记录订单执行结果。
type ExecutionPayload struct {
	Signal signal.Signal  `json:"signal"`
	Order  exchange.Order `json:"order"`
}

// PortfolioPayload 追踪账户与持仓。
type PortfolioPayload struct {
	TotalValue float64                      `json:"total_value"`
	Balance    map[string]float64           `json:"balance"`
	Positions  map[string]exchange.Position `json:"positions"`
}

// ErrorPayload 记录运行异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
