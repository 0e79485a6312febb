package branching

import (
	models "variantree/internal/domain/models/branching"
)

// AssignBranch decides which conversation branch a new variant of root is
// filed under when the user clicked retry on clicked.
//
// A click on the main timeline forks: newBranchID mints the id and the branch
// point is the nearest user message above the root. A click inside a branch
// stays in that branch and keeps the branch's original anchor. When no anchor
// can be found the root id is used, so the result always has a branch point.
func AssignBranch(clicked, root *models.Message, ancestry models.Ancestry, newBranchID func() string) models.BranchAssignment {
	if clicked.OnMainBranch() {
		return models.BranchAssignment{
			ConversationBranchID: newBranchID(),
			BranchPoint:          nearestUserMessage(ancestry.RootPath, root.ID),
			Forked:               true,
		}
	}

	return models.BranchAssignment{
		ConversationBranchID: clicked.ConversationBranchID,
		BranchPoint:          inheritedBranchPoint(clicked, root, ancestry),
		Forked:               false,
	}
}

// nearestUserMessage returns the first user message in a nearest-first path
func nearestUserMessage(path []models.Message, fallback string) string {
	for i := range path {
		if path[i].Role == models.RoleUser {
			return path[i].ID
		}
	}
	return fallback
}

// inheritedBranchPoint finds the anchor of the branch clicked already lives in
func inheritedBranchPoint(clicked, root *models.Message, ancestry models.Ancestry) string {
	if origin := ancestry.BranchOrigin; origin != nil && origin.BranchPoint != nil {
		return *origin.BranchPoint
	}
	if clicked.BranchPoint != nil {
		return *clicked.BranchPoint
	}

	// No recorded anchor: walk up to where the branch rejoins main and anchor
	// on the nearest user message from there
	for i := range ancestry.ClickedPath {
		if ancestry.ClickedPath[i].OnMainBranch() {
			return nearestUserMessage(ancestry.ClickedPath[i:], ancestry.ClickedPath[i].ID)
		}
	}
	return root.ID
}
