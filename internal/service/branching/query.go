package branching

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/singleflight"

	models "variantree/internal/domain/models/branching"
	branchingRepo "variantree/internal/domain/repositories/branching"
	branchingSvc "variantree/internal/domain/services/branching"
)

// QueryService implements the VariantQueryService interface
type QueryService struct {
	reader   branchingRepo.MessageReader
	resolver *RootResolver
	group    singleflight.Group
	logger   *slog.Logger
}

// NewQueryService creates the read-only variant and branch query surface
func NewQueryService(reader branchingRepo.MessageReader, resolver *RootResolver, logger *slog.Logger) *QueryService {
	return &QueryService{
		reader:   reader,
		resolver: resolver,
		logger:   logger,
	}
}

var _ branchingSvc.VariantQueryService = (*QueryService)(nil)

// ListVariants returns the root followed by its variants in sequence order.
// Concurrent calls for the same message share one store round trip. The shared
// load ignores the cancellation of whichever caller started it; each caller
// stops waiting when its own context ends.
func (s *QueryService) ListVariants(ctx context.Context, messageID string) (*models.VariantSet, error) {
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(messageID, func() (interface{}, error) {
		return s.loadVariantSet(loadCtx, messageID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		s.logger.Debug("variant set load shared", "message_id", messageID)
	}

	// Callers must not alias each other's slices
	set := res.Val.(*models.VariantSet)
	out := &models.VariantSet{
		RootID:   set.RootID,
		Messages: append([]models.Message(nil), set.Messages...),
		Total:    set.Total,
	}
	return out, nil
}

func (s *QueryService) loadVariantSet(ctx context.Context, messageID string) (*models.VariantSet, error) {
	root, err := s.resolver.Resolve(ctx, messageID)
	if err != nil {
		return nil, err
	}

	variants, err := s.reader.ListVariantsOf(ctx, root.ID)
	if err != nil {
		return nil, fmt.Errorf("list variants of %s: %w", root.ID, err)
	}
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Sequence() < variants[j].Sequence()
	})

	messages := make([]models.Message, 0, len(variants)+1)
	messages = append(messages, *root)
	messages = append(messages, variants...)

	return &models.VariantSet{
		RootID:   root.ID,
		Messages: messages,
		Total:    len(messages),
	}, nil
}

// ListBranchMessages returns a conversation branch's messages oldest first
func (s *QueryService) ListBranchMessages(ctx context.Context, conversationBranchID string) ([]models.Message, error) {
	messages, err := s.reader.ListBranchMessages(ctx, conversationBranchID)
	if err != nil {
		return nil, fmt.Errorf("list branch %s: %w", conversationBranchID, err)
	}

	// Stores already order this way; re-sorting keeps the tie-break on id
	// deterministic regardless of backend
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return messages, nil
}

// ListBranches returns the thread's conversation branches, main first
func (s *QueryService) ListBranches(ctx context.Context, threadID string) ([]string, error) {
	found, err := s.reader.ListThreadBranches(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("list branches of thread %s: %w", threadID, err)
	}
	if len(found) == 0 {
		return []string{}, nil
	}

	branches := make([]string, 0, len(found)+1)
	branches = append(branches, models.MainBranch)
	for _, id := range found {
		if id != models.MainBranch && id != "" {
			branches = append(branches, id)
		}
	}
	return branches, nil
}
