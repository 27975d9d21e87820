package model

import "time"

// Pending plan lifecycle states.
const (
	PlanClarifying           = "clarifying"
	PlanAwaitingConfirmation = "awaiting_confirmation"
)

// PendingPlan is the persisted record of an unconfirmed or unclarified
// plan. At most one exists per conversation; its presence is the sole
// signal that the next user message is a followup rather than a new
// request.
type PendingPlan struct {
	OriginalInput  string            `json:"originalInput"`
	Plan           string            `json:"plan,omitempty"`
	Context        string            `json:"context,omitempty"`
	Question       string            `json:"question,omitempty"`
	Fields         map[string]string `json:"fields,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	Status         string            `json:"status"`
	Clarifications []string          `json:"clarifications,omitempty"`
}

// PlanningResult is the planner's structured output describing what the
// system intends to do before doing it.
type PlanningResult struct {
	NeedsFollowup bool              `json:"needsFollowup"`
	Question      string            `json:"question"`
	Plan          string            `json:"plan"`
	Context       string            `json:"context"`
	Fields        map[string]string `json:"fields"`
}

// Intent labels for classified user input.
const (
	IntentChat    = "chat"
	IntentAction  = "action"
	IntentMixed   = "mixed"
	IntentUnclear = "unclear"
)

// IntentResult is the classifier's verdict on a user message.
type IntentResult struct {
	Intent     string  `json:"intent"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Conversation is one durable chat thread. Title starts as a placeholder
// and is derived from the first user message once one arrives.
type Conversation struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Messages    []Message    `json:"messages"`
	PendingPlan *PendingPlan `json:"pendingPlan,omitempty"`
}
