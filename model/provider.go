package model

import "context"

// StreamFunc receives normalized stream events in wire order.
// Returning an error aborts the stream.
type StreamFunc func(StreamEvent) error

// Provider abstracts LLM backend implementations (Anthropic, OpenAI
// compatible, Ollama) behind one streaming contract.
//
// The interface lives in the model package (not provider) to avoid
// import cycles: provider implementations import model, and everything
// that consumes a Provider can too without pulling in SDK packages.
//
// The event sequence a Stream call produces is lazy, finite and not
// restartable; callers retry by issuing a new call. Partial output
// already delivered before an error is not retracted.
type Provider interface {
	// Stream sends the message list (with tools translated to the
	// backend's wire format) and pushes normalized events through fn.
	Stream(ctx context.Context, messages []Message, tools []ToolDefinition, fn StreamFunc) error

	// Model returns the active model name.
	Model() string
}
