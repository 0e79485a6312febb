package branching

import (
	"context"

	"variantree/internal/domain/models/branching"
)

// RetryService creates variants of existing messages
type RetryService interface {
	// Retry creates a new variant of the message's root
	// Retrying a variant collapses onto the root; the conversation branch is
	// sticky once the clicked message is off the main timeline
	// Returns domain.ErrNotFound, domain.ErrBranchLimitExceeded, or domain.ErrTransient
	Retry(ctx context.Context, req *RetryRequest) (*RetryResult, error)

	// ResolveRoot returns the root of any message
	ResolveRoot(ctx context.Context, messageID string) (*branching.Message, error)
}

// VariantQueryService is the read-only surface used by UIs
type VariantQueryService interface {
	// ListVariants returns the root followed by its variants in sequence order
	// Accepts the root or any of its variants
	ListVariants(ctx context.Context, messageID string) (*branching.VariantSet, error)

	// ListBranchMessages returns all messages of a conversation branch, oldest first
	ListBranchMessages(ctx context.Context, conversationBranchID string) ([]branching.Message, error)

	// ListBranches returns the conversation branch ids present in a thread
	// "main" is always first when the thread has any message
	ListBranches(ctx context.Context, threadID string) ([]string, error)
}

// MessageService handles ordinary conversation flow and content completion
type MessageService interface {
	// AppendMessage creates a root message; replies inherit the parent's branch
	AppendMessage(ctx context.Context, req *AppendMessageRequest) (*branching.Message, error)

	// GetMessage retrieves a single message
	GetMessage(ctx context.Context, messageID string) (*branching.Message, error)

	// UpdateContent records generated content or a generation failure
	UpdateContent(ctx context.Context, req *UpdateContentRequest) (*branching.Message, error)
}

// RetryRequest is the DTO for retrying a message
type RetryRequest struct {
	MessageID string  `json:"-"`                 // Set by handler from path
	Content   *string `json:"content,omitempty"` // Edit: create the variant with this content
}

// RetryResult is what the generation subsystem needs to attach content
type RetryResult struct {
	Variant              *branching.Message `json:"variant"`
	RootID               string             `json:"root_id"`
	ConversationBranchID string             `json:"conversation_branch_id"`
	BranchPoint          string             `json:"branch_point"`
	Forked               bool               `json:"forked"`
}

// AppendMessageRequest is the DTO for adding a message to a thread
type AppendMessageRequest struct {
	ThreadID        string  `json:"-"` // Set by handler from path
	ParentMessageID *string `json:"parent_message_id,omitempty"`
	Role            string  `json:"role"`
	Content         string  `json:"content"`
}

// UpdateContentRequest is the DTO for completing or failing a message
type UpdateContentRequest struct {
	MessageID string  `json:"-"`
	Content   *string `json:"content,omitempty"`
	Error     *string `json:"error,omitempty"` // Non-nil marks the message as failed
}
