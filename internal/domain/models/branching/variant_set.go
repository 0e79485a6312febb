package branching

// VariantSet is a root followed by its variants in sequence order.
// Messages[0] is always the root; Messages[i] has VariantSequence == i.
type VariantSet struct {
	RootID   string    `json:"root_id"`
	Messages []Message `json:"messages"`
	Total    int       `json:"total"` // len(Messages), root included
}

// Position returns the 1-based position of messageID in the set (the "2" in
// "variant 2 of 5"), or 0 when the message is not a member.
func (s *VariantSet) Position(messageID string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == messageID {
			return i + 1
		}
	}
	return 0
}

// Ancestry is the bounded history the branch assigner needs, fetched by the
// coordinator before assignment so that assignment itself stays pure.
type Ancestry struct {
	// RootPath is the parent chain above the root, nearest first.
	RootPath []Message
	// ClickedPath is the parent chain above the clicked message, nearest first.
	// Empty when the clicked message is the root.
	ClickedPath []Message
	// BranchOrigin is the earliest message of the clicked message's conversation
	// branch that carries a branch point. Nil for main or when none was found.
	BranchOrigin *Message
}

// BranchAssignment is the branch a new variant is filed under
type BranchAssignment struct {
	ConversationBranchID string `json:"conversation_branch_id"`
	BranchPoint          string `json:"branch_point"`
	Forked               bool   `json:"forked"` // true when a new branch id was minted
}
