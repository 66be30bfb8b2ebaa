package models

import (
	"fmt"
	"strings"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type ToneAnalysis struct {
	Sentiment  Sentiment `json:"sentiment"`
	Confidence float64   `json:"confidence"`
	Emotions   []string  `json:"emotions"`
	Urgency    Priority  `json:"urgency"`
}

type PriorityAssessment struct {
	Priority           Priority `json:"priority"`
	Score              float64  `json:"score"`
	Factors            []string `json:"factors"`
	EscalationRequired bool     `json:"escalation_required"`
}

type ChurnPrediction struct {
	ChurnProbability float64   `json:"churn_probability"`
	RiskLevel        RiskLevel `json:"risk_level"`
	Factors          []string  `json:"factors"`
	Recommendations  []string  `json:"recommendations"`
}

// AnalyticsResult bundles the comprehensive analysis output. Churn is only
// present when the request carried a client id.
type AnalyticsResult struct {
	Tone     *ToneAnalysis       `json:"tone,omitempty"`
	Priority *PriorityAssessment `json:"priority,omitempty"`
	Churn    *ChurnPrediction    `json:"churn,omitempty"`
}

func (a *AnalyticsResult) Summarize() string {
	var parts []string

	if a.Tone != nil && a.Priority != nil {
		parts = append(parts, fmt.Sprintf("Analytics: %s sentiment detected with %s priority.",
			a.Tone.Sentiment, a.Priority.Priority))
	}
	if a.Churn != nil {
		parts = append(parts, fmt.Sprintf("Churn Risk: %.1f%% - %s",
			a.Churn.ChurnProbability*100, a.Churn.RiskLevel))
	}

	return strings.Join(parts, "\n")
}

// ChurnAnalysisEntry is one row of a batch churn report.
type ChurnAnalysisEntry struct {
	ClientID   int64            `json:"client_id"`
	ClientName string           `json:"client_name"`
	Prediction *ChurnPrediction `json:"prediction"`
}
