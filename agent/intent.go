// Package agent implements the orchestration engine: intent
// classification, the plan-then-confirm protocol, the bounded tool
// execution loop, and the chat controller tying them together.
package agent

import (
	"context"
	"encoding/json"
	"strings"

	"pfagent/config"
	"pfagent/model"
)

// defaultIntent is returned whenever the classifier's output cannot be
// trusted. Misclassifying chat as action triggers tool execution;
// misclassifying action as chat only costs the user a rephrase, so the
// failure default is the harmless one.
var defaultIntent = model.IntentResult{
	Intent: model.IntentChat,
	Reason: "Invalid classifier output.",
}

// ClassifyIntent runs the fixed classification prompt against the
// provider with no tools exposed. Any failure (transport, parse,
// unknown label) yields the chat default rather than an error.
func ClassifyIntent(ctx context.Context, p model.Provider, input string) model.IntentResult {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: intentPrompt},
		{Role: model.RoleUser, Content: input},
	}

	var content strings.Builder
	err := p.Stream(ctx, messages, nil, func(evt model.StreamEvent) error {
		if evt.Type == model.EventContent {
			content.WriteString(evt.Delta)
		}
		return nil
	})
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[intent] classification stream failed: %v", err)
		}
		return defaultIntent
	}

	result, ok := parseIntentJSON(content.String())
	if !ok {
		return defaultIntent
	}
	return result
}

func parseIntentJSON(raw string) (model.IntentResult, bool) {
	slice, ok := extractJSON(raw)
	if !ok {
		return model.IntentResult{}, false
	}

	var obj struct {
		Intent     string  `json:"intent"`
		Reason     string  `json:"reason"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(slice), &obj); err != nil {
		return model.IntentResult{}, false
	}

	intent := strings.ToLower(strings.TrimSpace(obj.Intent))
	switch intent {
	case model.IntentChat, model.IntentAction, model.IntentMixed, model.IntentUnclear:
	default:
		return model.IntentResult{}, false
	}

	confidence := obj.Confidence
	if confidence < 0 || confidence > 1 {
		confidence = 0
	}
	return model.IntentResult{Intent: intent, Reason: obj.Reason, Confidence: confidence}, true
}

// extractJSON cuts the first-brace-to-last-brace slice out of raw.
// Models wrap JSON in prose and code fences; this recovers the object
// without attempting full fence parsing.
func extractJSON(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}
