package models

type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneFormal       Tone = "formal"
	ToneEmpathetic   Tone = "empathetic"
)

// CommunicationResponse is the communication agent's payload inside a
// coordinated workflow.
type CommunicationResponse struct {
	Response string               `json:"response"`
	Tone     Tone                 `json:"tone"`
	Metadata CommunicationDetails `json:"metadata"`
}

type CommunicationDetails struct {
	WordCount          int      `json:"word_count"`
	EstimatedReadTime  int      `json:"estimated_read_time_min"`
	FormalityScore     float64  `json:"formality_score"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`
}

func (c *CommunicationResponse) Summarize() string {
	return c.Response
}

// DraftRequest drives standalone draft generation.
type DraftRequest struct {
	Subject   string `json:"subject" binding:"required"`
	Context   string `json:"context,omitempty"`
	Tone      Tone   `json:"tone,omitempty"`
	ClientID  *int64 `json:"client_id,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

type DraftResponse struct {
	Draft         string               `json:"draft"`
	SuggestedTone Tone                 `json:"suggested_tone"`
	Metadata      CommunicationDetails `json:"metadata"`
}

// FollowUpSuggestion accompanies smart drafts.
type FollowUpSuggestion struct {
	Timing   string   `json:"timing"`
	Method   string   `json:"method"`
	Priority Priority `json:"priority"`
}

type SmartDraft struct {
	Draft              string               `json:"draft"`
	SuggestedTone      Tone                 `json:"suggested_tone"`
	RecommendedActions []string             `json:"recommended_actions"`
	FollowUp           *FollowUpSuggestion  `json:"follow_up,omitempty"`
	Analysis           *AnalyticsResult     `json:"analysis,omitempty"`
	Metadata           CommunicationDetails `json:"metadata"`
}
