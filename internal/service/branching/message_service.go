package branching

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"variantree/internal/config"
	"variantree/internal/domain"
	models "variantree/internal/domain/models/branching"
	branchingRepo "variantree/internal/domain/repositories/branching"
	branchingSvc "variantree/internal/domain/services/branching"
)

// MessageService implements the MessageService interface
// Handles ordinary conversation flow; variants are only created by the Coordinator
type MessageService struct {
	store  branchingRepo.MessageStore
	logger *slog.Logger
}

// NewMessageService creates a new message service
func NewMessageService(store branchingRepo.MessageStore, logger *slog.Logger) *MessageService {
	return &MessageService{
		store:  store,
		logger: logger,
	}
}

var _ branchingSvc.MessageService = (*MessageService)(nil)

// AppendMessage creates a root message.
// A reply lands on its parent's conversation branch with the same anchor,
// which keeps a forked timeline sticky as the conversation continues.
func (s *MessageService) AppendMessage(ctx context.Context, req *branchingSvc.AppendMessageRequest) (*models.Message, error) {
	if err := validateAppendRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	msg := &models.Message{
		ThreadID:             req.ThreadID,
		Role:                 models.Role(req.Role),
		Content:              req.Content,
		ParentMessageID:      req.ParentMessageID,
		ConversationBranchID: models.MainBranch,
		Status:               models.StatusComplete,
	}

	if req.ParentMessageID != nil {
		parent, err := s.store.GetMessage(ctx, *req.ParentMessageID)
		if err != nil {
			return nil, fmt.Errorf("parent message: %w", err)
		}
		if parent.ThreadID != req.ThreadID {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("parent message %s belongs to thread %s", parent.ID, parent.ThreadID),
			}
		}
		if !parent.OnMainBranch() {
			msg.ConversationBranchID = parent.ConversationBranchID
		}
		msg.BranchPoint = parent.BranchPoint
	}

	if msg.Role == models.RoleAssistant && strings.TrimSpace(msg.Content) == "" {
		// Placeholder for a response still being generated
		msg.Status = models.StatusPending
	} else {
		now := time.Now().UTC()
		msg.CompletedAt = &now
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.logger.Info("message appended",
		"id", msg.ID,
		"thread_id", msg.ThreadID,
		"role", msg.Role,
		"conversation_branch_id", msg.ConversationBranchID,
	)
	return msg, nil
}

// GetMessage retrieves a single message
func (s *MessageService) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	return s.store.GetMessage(ctx, messageID)
}

// UpdateContent completes a message with generated content or marks it failed.
// Branching metadata is never touched; a failed variant stays in its set.
func (s *MessageService) UpdateContent(ctx context.Context, req *branchingSvc.UpdateContentRequest) (*models.Message, error) {
	if err := validateUpdateContentRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	msg, err := s.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if req.Content != nil {
		msg.Content = *req.Content
	}
	if req.Error != nil {
		msg.Status = models.StatusError
		msg.Error = req.Error
	} else {
		msg.Status = models.StatusComplete
		msg.Error = nil
	}
	msg.CompletedAt = &now

	if err := s.store.UpdateMessageContent(ctx, msg); err != nil {
		return nil, err
	}

	s.logger.Info("message content updated",
		"id", msg.ID,
		"status", msg.Status,
	)
	return msg, nil
}

func validateAppendRequest(req *branchingSvc.AppendMessageRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.ThreadID, validation.Required, validation.Length(1, config.MaxIDLength)),
		validation.Field(&req.Role, validation.Required, validation.In(string(models.RoleUser), string(models.RoleAssistant))),
		validation.Field(&req.Content, validation.Length(0, config.MaxContentLength)),
		validation.Field(&req.ParentMessageID, validation.NilOrNotEmpty, validation.Length(0, config.MaxIDLength)),
	)
}

func validateUpdateContentRequest(req *branchingSvc.UpdateContentRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.MessageID, validation.Required, validation.Length(1, config.MaxIDLength)),
		validation.Field(&req.Content,
			validation.When(req.Error == nil, validation.NotNil),
			validation.Length(0, config.MaxContentLength),
		),
		validation.Field(&req.Error, validation.NilOrNotEmpty, validation.Length(0, config.MaxErrorLength)),
	)
}
