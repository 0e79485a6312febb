package branching

import (
	"context"

	"variantree/internal/domain/models/branching"
)

// MessageReader defines read operations for message data access
// Used by components that only need to query messages
type MessageReader interface {
	// GetMessage retrieves a message by ID
	// Returns domain.ErrNotFound if not found
	GetMessage(ctx context.Context, messageID string) (*branching.Message, error)

	// ListVariantsOf retrieves every variant whose variant_of_id is rootID
	// Ordered by variant_sequence; the root itself is not included
	ListVariantsOf(ctx context.Context, rootID string) ([]branching.Message, error)

	// CountVariantsOf returns the number of variants currently stored for rootID
	CountVariantsOf(ctx context.Context, rootID string) (int, error)

	// ListBranchMessages retrieves all messages filed under a conversation branch
	// Ordered by created_at, ties broken by id
	ListBranchMessages(ctx context.Context, conversationBranchID string) ([]branching.Message, error)

	// ListThreadBranches returns the distinct conversation branch ids of a thread
	// Ordered by first appearance; empty if the thread has no messages
	ListThreadBranches(ctx context.Context, threadID string) ([]string, error)
}

// MessageNavigator defines bounded ancestry traversal
type MessageNavigator interface {
	// GetParentChain walks parent_message_id pointers upward starting at the
	// parent of messageID, nearest first, stopping after maxDepth messages
	// A dangling parent pointer ends the chain without error
	GetParentChain(ctx context.Context, messageID string, maxDepth int) ([]branching.Message, error)

	// GetBranchOrigin returns the earliest message of a conversation branch that
	// carries a branch point, or domain.ErrNotFound
	GetBranchOrigin(ctx context.Context, conversationBranchID string) (*branching.Message, error)
}
