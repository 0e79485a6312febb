// Package seed populates a store with a sample conversation tree.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	models "variantree/internal/domain/models/branching"
	branchingSvc "variantree/internal/domain/services/branching"
	branchingService "variantree/internal/service/branching"
)

// ConversationSeeder builds sample threads through the public services so the
// seeded data obeys the same rules as live traffic
type ConversationSeeder struct {
	services *branchingService.Services
	logger   *slog.Logger
}

// Result summarizes a seeded thread
type Result struct {
	ThreadID string
	Messages int
	Variants int
	Branches []string
}

// NewConversationSeeder creates a new conversation seeder
func NewConversationSeeder(services *branchingService.Services, logger *slog.Logger) *ConversationSeeder {
	return &ConversationSeeder{
		services: services,
		logger:   logger,
	}
}

// SeedConversation creates a thread demonstrating forks, sticky retries and
// a failed generation.
//
// Structure:
//
//	u1 (user): "Analyze the protagonist's character arc"
//	  └─ a1 (assistant) ─┬─ a1/b1 (fork, retried again as a1/b2 on the same branch)
//	     │                 └─ u2' (user): "How does this compare to Chapter 2?"
//	     │                      └─ a2' (assistant)
//	     └─ u2 (user): "What about the antagonist?"
//	          └─ a2 (assistant) ── a2/b1 (retry that failed)
func (s *ConversationSeeder) SeedConversation(ctx context.Context, threadID string) (*Result, error) {
	res := &Result{ThreadID: threadID}

	u1, err := s.append(ctx, res, threadID, nil, models.RoleUser, "Analyze the protagonist's character arc")
	if err != nil {
		return nil, err
	}
	a1, err := s.append(ctx, res, threadID, &u1.ID, models.RoleAssistant,
		"The protagonist starts out guarded and learns to trust the people around her.")
	if err != nil {
		return nil, err
	}
	u2, err := s.append(ctx, res, threadID, &a1.ID, models.RoleUser, "What about the antagonist?")
	if err != nil {
		return nil, err
	}
	a2, err := s.append(ctx, res, threadID, &u2.ID, models.RoleAssistant,
		"The antagonist mirrors the protagonist's fears and makes them concrete.")
	if err != nil {
		return nil, err
	}

	// Retrying a1 forks a new conversation branch at u1
	fork, err := s.retry(ctx, res, a1.ID, "Her arc is a slow turn from isolation toward community.")
	if err != nil {
		return nil, err
	}

	u2b, err := s.append(ctx, res, threadID, &fork.Variant.ID, models.RoleUser, "How does this compare to Chapter 2?")
	if err != nil {
		return nil, err
	}
	if _, err := s.append(ctx, res, threadID, &u2b.ID, models.RoleAssistant,
		"Chapter 2 shows the same pattern in miniature, before the stakes are clear."); err != nil {
		return nil, err
	}

	// Retrying the variant stays on the fork
	if _, err := s.retry(ctx, res, fork.Variant.ID, "The arc is about learning to ask for help."); err != nil {
		return nil, err
	}

	// A retry whose generation failed keeps its slot
	failed, err := s.retry(ctx, res, a2.ID, "")
	if err != nil {
		return nil, err
	}
	reason := "provider timeout"
	if _, err := s.services.Message.UpdateContent(ctx, &branchingSvc.UpdateContentRequest{
		MessageID: failed.Variant.ID,
		Error:     &reason,
	}); err != nil {
		return nil, fmt.Errorf("fail variant %s: %w", failed.Variant.ID, err)
	}

	branches, err := s.services.Query.ListBranches(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	res.Branches = branches

	s.logger.Info("conversation seeded",
		"thread_id", threadID,
		"messages", res.Messages,
		"variants", res.Variants,
		"branches", len(branches),
	)
	return res, nil
}

func (s *ConversationSeeder) append(ctx context.Context, res *Result, threadID string, parentID *string, role models.Role, content string) (*models.Message, error) {
	msg, err := s.services.Message.AppendMessage(ctx, &branchingSvc.AppendMessageRequest{
		ThreadID:        threadID,
		ParentMessageID: parentID,
		Role:            string(role),
		Content:         content,
	})
	if err != nil {
		return nil, fmt.Errorf("append %s message: %w", role, err)
	}
	res.Messages++
	return msg, nil
}

func (s *ConversationSeeder) retry(ctx context.Context, res *Result, messageID, content string) (*branchingSvc.RetryResult, error) {
	req := &branchingSvc.RetryRequest{MessageID: messageID}
	if content != "" {
		req.Content = &content
	}
	result, err := s.services.Retry.Retry(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("retry %s: %w", messageID, err)
	}
	res.Messages++
	res.Variants++
	return result, nil
}
