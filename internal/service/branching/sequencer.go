package branching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"variantree/internal/domain"
	models "variantree/internal/domain/models/branching"
	branchingRepo "variantree/internal/domain/repositories/branching"
)

// Sequencer allocates variant sequence numbers and enforces the per-root limit.
//
// The count is never trusted across a round trip: each attempt re-reads it and
// hands it to the store as the expected count, and the store rejects the
// insert if another retry got there first.
type Sequencer struct {
	store       branchingRepo.MessageStore
	maxVariants int
	attempts    int
	metrics     *Metrics
	logger      *slog.Logger
}

// NewSequencer creates a sequencer
func NewSequencer(store branchingRepo.MessageStore, maxVariants, attempts int, metrics *Metrics, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		store:       store,
		maxVariants: maxVariants,
		attempts:    attempts,
		metrics:     metrics,
		logger:      logger,
	}
}

// CheckLimit fails with a BranchLimitExceededError when root cannot take another variant
func (s *Sequencer) CheckLimit(ctx context.Context, root *models.Message) (int, error) {
	count, err := s.store.CountVariantsOf(ctx, root.ID)
	if err != nil {
		return 0, fmt.Errorf("count variants: %w", err)
	}
	if count >= s.maxVariants {
		return count, &domain.BranchLimitExceededError{RootID: root.ID, Limit: s.maxVariants}
	}
	return count, nil
}

// NextSequence returns the sequence the next variant of root would receive
func (s *Sequencer) NextSequence(ctx context.Context, root *models.Message) (int, error) {
	count, err := s.CheckLimit(ctx, root)
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

// Insert persists variant as the next variant of root. It fills in
// VariantOfID, VariantSequence and BranchID; everything else is the caller's.
func (s *Sequencer) Insert(ctx context.Context, root *models.Message, variant *models.Message) error {
	variant.VariantOfID = &root.ID

	for attempt := 1; attempt <= s.attempts; attempt++ {
		count, err := s.CheckLimit(ctx, root)
		if err != nil {
			return err
		}

		seq := count + 1
		label := models.LocalBranchLabel(seq)
		variant.VariantSequence = &seq
		variant.BranchID = &label

		err = s.store.InsertVariantAtomic(ctx, variant, count)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConstraintViolation) {
			return err
		}

		s.metrics.conflict()
		s.logger.Debug("variant sequence conflict, re-deriving",
			"root_id", root.ID,
			"expected_count", count,
			"attempt", attempt,
		)
	}

	variant.VariantSequence = nil
	variant.BranchID = nil
	return fmt.Errorf("allocate variant sequence for %s: gave up after %d attempts: %w",
		root.ID, s.attempts, domain.ErrTransient)
}
