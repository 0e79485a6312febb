package branching

import (
	"context"

	"variantree/internal/domain/models/branching"
)

// MessageWriter defines write operations for message data access
type MessageWriter interface {
	// CreateMessage persists an ordinary (root) message
	// Assigns ID and CreatedAt when empty; rejects messages with VariantOfID set
	CreateMessage(ctx context.Context, msg *branching.Message) error

	// InsertVariantAtomic persists a variant only if the root still has exactly
	// expectedCount variants. The count check and insert form one atomic unit
	// scoped to the root's variant set.
	// Returns domain.ErrConstraintViolation when the count moved or the
	// (variant_of_id, variant_sequence) pair is already taken, and
	// domain.ErrNotFound when the root does not exist.
	InsertVariantAtomic(ctx context.Context, msg *branching.Message, expectedCount int) error

	// UpdateMessageContent sets content, status, error and completed_at
	// Identity and branching fields are never touched
	UpdateMessageContent(ctx context.Context, msg *branching.Message) error
}

// MessageStore is the full contract the branching core requires from storage
type MessageStore interface {
	MessageReader
	MessageNavigator
	MessageWriter
}
