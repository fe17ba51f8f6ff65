package model

import (
	"context"
)

// StateStore persists ConversationState keyed by conversation id with idle expiry.
type StateStore interface {
	// Get returns the state for id, or nil when it does not exist or has expired.
	Get(ctx context.Context, id string) (*ConversationState, error)

	// Save stores the state and restarts its idle TTL.
	Save(ctx context.Context, state *ConversationState) error

	// Delete removes the state for id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}
