package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// extractJSON 从模型输出中截取JSON片段，兼容 markdown 代码块包裹。
func extractJSON(content string) ([]byte, error) {
	if idx := strings.Index(content, "```json"); idx != -1 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			content = rest[:end]
		} else {
			content = rest
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", truncate(content, 200))
	}
	return []byte(content[start : end+1]), nil
}

// ParseVote 解析交易提案。JSON解析失败时退回关键词判断，
// 永远返回一个可用的投票而不是错误。
func ParseVote(content string) Vote {
	payload, err := extractJSON(content)
	if err == nil {
		var raw struct {
			Decision   string  `json:"decision"`
			Confidence float64 `json:"confidence"`
			Reasoning  string  `json:"reasoning"`
		}
		if json.Unmarshal(payload, &raw) == nil {
			decision := strings.ToUpper(strings.TrimSpace(raw.Decision))
			if decision != DecisionBuy && decision != DecisionSell && decision != DecisionHold {
				decision = DecisionHold
			}
			reasoning := raw.Reasoning
			if reasoning == "" {
				reasoning = "No reasoning provided"
			}
			return Vote{
				Decision:   decision,
				Confidence: clamp01(raw.Confidence),
				Reasoning:  reasoning,
			}
		}
	}

	lower := strings.ToLower(content)
	decision := DecisionHold
	if strings.Contains(lower, "buy") && !strings.Contains(lower, "sell") {
		decision = DecisionBuy
	} else if strings.Contains(lower, "sell") {
		decision = DecisionSell
	}

	return Vote{
		Decision:   decision,
		Confidence: 0.50,
		Reasoning:  truncate(content, 200),
	}
}

// ParseRiskReview 解析风控审查结论，解析失败时按关键词兜底。
func ParseRiskReview(content string) RiskReview {
	payload, err := extractJSON(content)
	if err == nil {
		var raw struct {
			Approved  bool     `json:"approved"`
			Concerns  []string `json:"concerns"`
			Reasoning string   `json:"reasoning"`
		}
		if json.Unmarshal(payload, &raw) == nil {
			return RiskReview{
				Approved:  raw.Approved,
				Concerns:  raw.Concerns,
				Reasoning: raw.Reasoning,
			}
		}
	}

	lower := strings.ToLower(content)
	approved := strings.Contains(lower, "approved") && !strings.Contains(lower, "not approved")
	return RiskReview{
		Approved:  approved,
		Concerns:  []string{"Unable to parse full response"},
		Reasoning: truncate(content, 200),
	}
}

// ParseSentiment 从模型输出中提取市场情绪。
func ParseSentiment(content string) SentimentView {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "bullish"):
		return SentimentView{Sentiment: SentimentBullish, Confidence: 0.60, Reasoning: truncate(content, 200)}
	case strings.Contains(lower, "bearish"):
		return SentimentView{Sentiment: SentimentBearish, Confidence: 0.60, Reasoning: truncate(content, 200)}
	default:
		return SentimentView{Sentiment: SentimentNeutral, Confidence: 0.50, Reasoning: truncate(content, 200)}
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
