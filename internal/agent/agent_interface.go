package agent

import (
	"context"
	"encoding/json"
	"iter"
)

// Processor defines the interface for AI agent processing.
// This interface is implemented by Assistant.
type Processor interface {
	// Converse runs one conversational turn for a session and streams the result.
	Converse(ctx context.Context, sessionID, input string) iter.Seq2[Event, error]

	// Extract asks for schema-constrained JSON and decodes it into out.
	Extract(ctx context.Context, prompt, schemaName string, schema json.RawMessage, out any) error

	// Forget drops the conversation memory of a session.
	Forget(sessionID string)
}

// Ensure Assistant implements Processor.
var _ Processor = (*Assistant)(nil)
