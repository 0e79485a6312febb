package branching

import (
	"strconv"
	"time"
)

// MainBranch is the conversation branch every message belongs to until a retry forks it
const MainBranch = "main"

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status tracks content completion. Branching metadata never depends on it.
type Status string

const (
	StatusPending  Status = "pending"  // variant shell waiting for generated content
	StatusComplete Status = "complete" // content present
	StatusError    Status = "error"    // generation failed; the variant stays
)

// Message is a single conversational turn.
//
// A message with VariantOfID == nil is a root. A variant always points at its
// root directly, never at another variant, so every variant set is one level deep.
type Message struct {
	ID              string  `json:"id" db:"id"`
	ThreadID        string  `json:"thread_id" db:"thread_id"`
	Role            Role    `json:"role" db:"role"`
	Content         string  `json:"content" db:"content"`
	Status          Status  `json:"status" db:"status"`
	Error           *string `json:"error,omitempty" db:"error"`
	ParentMessageID *string `json:"parent_message_id,omitempty" db:"parent_message_id"`

	// Variant identity (immutable once created)
	VariantOfID     *string `json:"variant_of_id,omitempty" db:"variant_of_id"`
	VariantSequence *int    `json:"variant_sequence,omitempty" db:"variant_sequence"`
	BranchID        *string `json:"branch_id,omitempty" db:"branch_id"` // "b1", "b2", ... local to the root

	// Conversation timeline
	ConversationBranchID string  `json:"conversation_branch_id" db:"conversation_branch_id"`
	BranchPoint          *string `json:"branch_point,omitempty" db:"branch_point"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// IsRoot reports whether the message is the original form of its turn
func (m *Message) IsRoot() bool {
	return m.VariantOfID == nil
}

// OnMainBranch reports whether the message belongs to the main timeline.
// An empty branch id is treated as main, matching the storage default.
func (m *Message) OnMainBranch() bool {
	return m.ConversationBranchID == "" || m.ConversationBranchID == MainBranch
}

// Sequence returns the ordinal within the variant set; roots are 0
func (m *Message) Sequence() int {
	if m.VariantSequence == nil {
		return 0
	}
	return *m.VariantSequence
}

// LocalBranchLabel returns the per-root branch label for a variant sequence
func LocalBranchLabel(sequence int) string {
	return "b" + strconv.Itoa(sequence)
}
