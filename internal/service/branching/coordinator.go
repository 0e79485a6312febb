package branching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"variantree/internal/config"
	"variantree/internal/domain"
	models "variantree/internal/domain/models/branching"
	branchingRepo "variantree/internal/domain/repositories/branching"
	branchingSvc "variantree/internal/domain/services/branching"
)

// Coordinator implements the RetryService interface
// Orchestrates one retry: resolve root, assign branch, allocate sequence, persist
type Coordinator struct {
	store       branchingRepo.MessageStore
	resolver    *RootResolver
	sequencer   *Sequencer
	scanDepth   int
	newBranchID func() string
	metrics     *Metrics
	logger      *slog.Logger
}

// NewCoordinator creates a retry coordinator
func NewCoordinator(
	store branchingRepo.MessageStore,
	resolver *RootResolver,
	sequencer *Sequencer,
	limits config.Branching,
	metrics *Metrics,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		store:       store,
		resolver:    resolver,
		sequencer:   sequencer,
		scanDepth:   limits.AncestryScanDepth,
		newBranchID: uuid.NewString,
		metrics:     metrics,
		logger:      logger,
	}
}

var _ branchingSvc.RetryService = (*Coordinator)(nil)

// Retry creates a new variant of the clicked message's root
func (c *Coordinator) Retry(ctx context.Context, req *branchingSvc.RetryRequest) (*branchingSvc.RetryResult, error) {
	start := time.Now()

	if err := validateRetryRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	result, err := c.retry(ctx, req)
	c.metrics.observeRetry(retryOutcome(err), start)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBranchLimitExceeded):
			c.logger.Info("retry rejected: branch limit reached", "message_id", req.MessageID, "error", err)
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrValidation):
			// caller error, logged by the transport
		default:
			c.logger.Error("retry failed", "message_id", req.MessageID, "error", err)
		}
		return nil, err
	}

	c.logger.Info("variant created",
		"id", result.Variant.ID,
		"root_id", result.RootID,
		"sequence", result.Variant.Sequence(),
		"conversation_branch_id", result.ConversationBranchID,
		"branch_point", result.BranchPoint,
		"forked", result.Forked,
	)
	return result, nil
}

func (c *Coordinator) retry(ctx context.Context, req *branchingSvc.RetryRequest) (*branchingSvc.RetryResult, error) {
	clicked, err := c.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}

	root, err := c.resolver.ResolveFrom(ctx, clicked)
	if err != nil {
		return nil, err
	}

	// Fail fast before the ancestry scan; Insert re-checks atomically
	if _, err := c.sequencer.CheckLimit(ctx, root); err != nil {
		return nil, err
	}

	ancestry, err := c.fetchAncestry(ctx, clicked, root)
	if err != nil {
		return nil, err
	}

	assignment := AssignBranch(clicked, root, ancestry, c.newBranchID)

	variant := &models.Message{
		ThreadID:             root.ThreadID,
		Role:                 root.Role,
		ParentMessageID:      root.ParentMessageID,
		ConversationBranchID: assignment.ConversationBranchID,
		BranchPoint:          &assignment.BranchPoint,
		Status:               models.StatusPending,
	}
	if req.Content != nil {
		// Edit: the variant arrives with its content
		now := time.Now().UTC()
		variant.Content = *req.Content
		variant.Status = models.StatusComplete
		variant.CompletedAt = &now
	}

	if err := c.sequencer.Insert(ctx, root, variant); err != nil {
		return nil, err
	}
	if assignment.Forked {
		c.metrics.fork()
	}

	return &branchingSvc.RetryResult{
		Variant:              variant,
		RootID:               root.ID,
		ConversationBranchID: assignment.ConversationBranchID,
		BranchPoint:          assignment.BranchPoint,
		Forked:               assignment.Forked,
	}, nil
}

// fetchAncestry loads only the history AssignBranch will look at
func (c *Coordinator) fetchAncestry(ctx context.Context, clicked, root *models.Message) (models.Ancestry, error) {
	var ancestry models.Ancestry

	if clicked.OnMainBranch() {
		path, err := c.store.GetParentChain(ctx, root.ID, c.scanDepth)
		if err != nil {
			return ancestry, fmt.Errorf("root ancestry: %w", err)
		}
		ancestry.RootPath = path
		return ancestry, nil
	}

	origin, err := c.store.GetBranchOrigin(ctx, clicked.ConversationBranchID)
	switch {
	case err == nil:
		ancestry.BranchOrigin = origin
	case !errors.Is(err, domain.ErrNotFound):
		return ancestry, fmt.Errorf("branch origin: %w", err)
	}

	if (origin == nil || origin.BranchPoint == nil) && clicked.BranchPoint == nil {
		path, err := c.store.GetParentChain(ctx, clicked.ID, c.scanDepth)
		if err != nil {
			return ancestry, fmt.Errorf("clicked ancestry: %w", err)
		}
		ancestry.ClickedPath = path
	}
	return ancestry, nil
}

// ResolveRoot returns the root of any message
func (c *Coordinator) ResolveRoot(ctx context.Context, messageID string) (*models.Message, error) {
	return c.resolver.Resolve(ctx, messageID)
}

func validateRetryRequest(req *branchingSvc.RetryRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.MessageID, validation.Required, validation.Length(1, config.MaxIDLength)),
		validation.Field(&req.Content, validation.NilOrNotEmpty, validation.Length(0, config.MaxContentLength)),
	)
}

func retryOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeCreated
	case errors.Is(err, domain.ErrBranchLimitExceeded):
		return outcomeLimit
	case errors.Is(err, domain.ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, domain.ErrTransient):
		return outcomeTransient
	default:
		return outcomeError
	}
}
