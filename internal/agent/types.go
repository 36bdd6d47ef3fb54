package agent

import (
	"volt-trader/internal/exchange"
	"volt-trader/internal/indicator"
	"volt-trader/internal/signal"
	"volt-trader/internal/volatility"
)

// 共识决策取值。
const (
	DecisionBuy  = "BUY"
	DecisionSell = "SELL"
	DecisionHold = "HOLD"
)

// 市场情绪取值。
const (
	SentimentBullish = "BULLISH"
	SentimentBearish = "BEARISH"
	SentimentNeutral = "NEUTRAL"
)

// 共识类型，按最终置信度分档。
const (
	ConsensusRejectedByRisk = "REJECTED_BY_RISK"
	ConsensusError          = "ERROR"
)

// Vote 为策略智能体的交易提案。
type Vote struct {
	AgentID    string  `json:"agent_id"`
	Symbol     string  `json:"symbol"`
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// RiskReview 为风控智能体的审查结论。
type RiskReview struct {
	AgentID   string   `json:"agent_id"`
	Approved  bool     `json:"approved"`
	Concerns  []string `json:"concerns"`
	Reasoning string   `json:"reasoning"`
}

// SentimentView 为市场智能体的情绪判断。
type SentimentView struct {
	AgentID    string  `json:"agent_id"`
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ExecutionPlan 为执行智能体给出的下单建议。
type ExecutionPlan struct {
	AgentID      string  `json:"agent_id"`
	Style        string  `json:"style"`
	Urgency      string  `json:"urgency"`
	PositionSize float64 `json:"position_size"`
	Reasoning    string  `json:"reasoning"`
}

// AuditReport 为审计智能体的巡查结果，仅作记录不参与投票。
type AuditReport struct {
	AgentID          string `json:"agent_id"`
	ConflictDetected bool   `json:"conflict_detected"`
	Reasoning        string `json:"reasoning"`
}

// Consensus 为多智能体加权共识结果。
type Consensus struct {
	Decision      string  `json:"decision"`
	Confidence    float64 `json:"confidence"`
	ConsensusType string  `json:"consensus_type"`
	Reasoning     string  `json:"reasoning"`

	BuyScore  float64 `json:"buy_score"`
	SellScore float64 `json:"sell_score"`
	HoldScore float64 `json:"hold_score"`

	Strategy  Vote           `json:"strategy"`
	Market    SentimentView  `json:"market"`
	Risk      RiskReview     `json:"risk"`
	Execution *ExecutionPlan `json:"execution,omitempty"`
	Audit     *AuditReport   `json:"audit,omitempty"`
}

// MarketContext 为一次共识评估的市场侧输入。
type MarketContext struct {
	Symbol   string
	Price    float64
	Snapshot indicator.Snapshot
	VIX      volatility.VIXData
	Proposal *signal.Signal
}

// PortfolioContext 为账户侧输入，由调用方提供只读快照。
type PortfolioContext struct {
	Positions        map[string]exchange.Position
	TotalValue       float64
	AvailableCapital float64
	Exposure         float64
	MaxPositionSize  float64
}
