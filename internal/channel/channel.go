// Package channel provides the bidirectional text channel a chat session runs over.
package channel

import (
	"context"
	"errors"

	"github.com/coder/websocket"
)

var (
	// ErrClosed is returned once the peer has gone away.
	ErrClosed = errors.New("channel closed")
	// ErrIdle is returned by Receive when no frame arrived within the idle timeout.
	ErrIdle = errors.New("channel idle")
)

// Channel carries text frames between a client and a chat session.
type Channel interface {
	// Receive blocks for the next text frame.
	Receive(ctx context.Context) (string, error)
	// Send writes one text frame.
	Send(ctx context.Context, text string) error
	// SendJSON marshals v and writes it as one text frame.
	SendJSON(ctx context.Context, v any) error
	// Close ends the channel with a websocket close status.
	Close(status websocket.StatusCode, reason string) error
}
