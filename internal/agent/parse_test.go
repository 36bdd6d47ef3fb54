package agent

import (
	"strings"
	"testing"
)

func TestParseVote_FencedJSON(t *testing.T) {
	content := "Here is my analysis:\n```json\n{\"decision\": \"buy\", \"confidence\": 0.85, \"reasoning\": \"oversold bounce\"}\n```"

	vote := ParseVote(content)
	if vote.Decision != DecisionBuy {
		t.Fatalf("expected BUY, got %s", vote.Decision)
	}
	if vote.Confidence != 0.85 {
		t.Errorf("expected confidence 0.85, got %f", vote.Confidence)
	}
	if vote.Reasoning != "oversold bounce" {
		t.Errorf("unexpected reasoning: %s", vote.Reasoning)
	}
}

func TestParseVote_InvalidDecisionFallsBackToHold(t *testing.T) {
	vote := ParseVote(`{"decision": "SHORT", "confidence": 0.9}`)
	if vote.Decision != DecisionHold {
		t.Fatalf("expected HOLD for unknown decision, got %s", vote.Decision)
	}
}

func TestParseVote_ConfidenceClamped(t *testing.T) {
	vote := ParseVote(`{"decision": "SELL", "confidence": 1.8}`)
	if vote.Confidence != 1.0 {
		t.Errorf("expected confidence clamped to 1.0, got %f", vote.Confidence)
	}

	vote = ParseVote(`{"decision": "SELL", "confidence": -0.5}`)
	if vote.Confidence != 0 {
		t.Errorf("expected confidence clamped to 0, got %f", vote.Confidence)
	}
}

func TestParseVote_KeywordFallback(t *testing.T) {
	vote := ParseVote("I think we should buy here, momentum looks strong")
	if vote.Decision != DecisionBuy {
		t.Fatalf("expected keyword fallback BUY, got %s", vote.Decision)
	}
	if vote.Confidence != 0.50 {
		t.Errorf("expected fallback confidence 0.50, got %f", vote.Confidence)
	}

	vote = ParseVote("nothing actionable in this market")
	if vote.Decision != DecisionHold {
		t.Errorf("expected HOLD for neutral text, got %s", vote.Decision)
	}
}

func TestParseRiskReview(t *testing.T) {
	review := ParseRiskReview(`{"approved": true, "concerns": ["size"], "reasoning": "acceptable"}`)
	if !review.Approved {
		t.Fatalf("expected approved review")
	}
	if len(review.Concerns) != 1 || review.Concerns[0] != "size" {
		t.Errorf("unexpected concerns: %v", review.Concerns)
	}

	review = ParseRiskReview("the trade is not approved due to exposure")
	if review.Approved {
		t.Errorf("expected rejection for 'not approved' text")
	}

	review = ParseRiskReview("trade approved, looks fine")
	if !review.Approved {
		t.Errorf("expected keyword fallback approval")
	}
}

func TestParseSentiment(t *testing.T) {
	cases := []struct {
		content string
		want    string
	}{
		{"market looks bullish with strong volume", SentimentBullish},
		{"clearly bearish breakdown", SentimentBearish},
		{"sideways chop, no direction", SentimentNeutral},
	}

	for _, tc := range cases {
		view := ParseSentiment(tc.content)
		if view.Sentiment != tc.want {
			t.Errorf("content %q: expected %s, got %s", tc.content, tc.want, view.Sentiment)
		}
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	if _, err := extractJSON("no structured data here"); err == nil {
		t.Fatalf("expected error for content without JSON")
	}
	if _, err := extractJSON("broken } { order"); err == nil {
		t.Fatalf("expected error for reversed braces")
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 300)
	if got := truncate(long, 200); len(got) != 200 {
		t.Errorf("expected 200 chars, got %d", len(got))
	}
	if got := truncate("  short  ", 200); got != "short" {
		t.Errorf("expected trimmed text, got %q", got)
	}
}
