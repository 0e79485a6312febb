package branching

import (
	"context"
	"errors"
	"fmt"

	"variantree/internal/domain"
	models "variantree/internal/domain/models/branching"
	branchingRepo "variantree/internal/domain/repositories/branching"
)

// RootResolver follows variant_of_id pointers to the original message
type RootResolver struct {
	reader  branchingRepo.MessageReader
	maxHops int
}

// NewRootResolver creates a resolver that gives up after maxHops pointer hops
func NewRootResolver(reader branchingRepo.MessageReader, maxHops int) *RootResolver {
	return &RootResolver{reader: reader, maxHops: maxHops}
}

// Resolve returns the root of messageID.
// A well-formed store needs at most one hop; longer chains are still followed
// so that data written before roots were collapsed resolves correctly.
func (r *RootResolver) Resolve(ctx context.Context, messageID string) (*models.Message, error) {
	msg, err := r.reader.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return r.ResolveFrom(ctx, msg)
}

// ResolveFrom is Resolve for a message that has already been loaded
func (r *RootResolver) ResolveFrom(ctx context.Context, msg *models.Message) (*models.Message, error) {
	visited := map[string]bool{msg.ID: true}
	current := msg

	for hops := 0; !current.IsRoot(); hops++ {
		if hops >= r.maxHops {
			return nil, fmt.Errorf("variant chain from %s exceeds %d hops: %w", msg.ID, r.maxHops, domain.ErrDataIntegrity)
		}

		nextID := *current.VariantOfID
		if visited[nextID] {
			return nil, fmt.Errorf("variant chain from %s cycles at %s: %w", msg.ID, nextID, domain.ErrDataIntegrity)
		}
		visited[nextID] = true

		next, err := r.reader.GetMessage(ctx, nextID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("message %s points at missing variant root %s: %w", current.ID, nextID, domain.ErrNotFound)
			}
			return nil, err
		}
		current = next
	}

	return current, nil
}
