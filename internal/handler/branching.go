package handler

import (
	"log/slog"
	"net/http"

	branchingSvc "variantree/internal/domain/services/branching"
	"variantree/internal/httputil"
)

// BranchingHandler handles message, retry and branch HTTP requests
// Follows Clean Architecture: handlers only communicate with services, never repositories
type BranchingHandler struct {
	retryService   branchingSvc.RetryService
	queryService   branchingSvc.VariantQueryService
	messageService branchingSvc.MessageService
	logger         *slog.Logger
}

// NewBranchingHandler creates a new branching handler
func NewBranchingHandler(
	retryService branchingSvc.RetryService,
	queryService branchingSvc.VariantQueryService,
	messageService branchingSvc.MessageService,
	logger *slog.Logger,
) *BranchingHandler {
	return &BranchingHandler{
		retryService:   retryService,
		queryService:   queryService,
		messageService: messageService,
		logger:         logger,
	}
}

// RegisterRoutes mounts the handler on mux (Go 1.22+ patterns)
func (h *BranchingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/threads/{id}/messages", h.AppendMessage)
	mux.HandleFunc("GET /api/threads/{id}/branches", h.ListBranches)

	mux.HandleFunc("GET /api/messages/{id}", h.GetMessage)
	mux.HandleFunc("POST /api/messages/{id}/retry", h.Retry)
	mux.HandleFunc("GET /api/messages/{id}/variants", h.ListVariants)
	mux.HandleFunc("GET /api/messages/{id}/root", h.ResolveRoot)
	mux.HandleFunc("PATCH /api/messages/{id}/content", h.UpdateContent)

	mux.HandleFunc("GET /api/branches/{id}/messages", h.ListBranchMessages)
}

// HealthCheck reports liveness
// GET /health
func (h *BranchingHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AppendMessage adds a message to a thread
// POST /api/threads/{id}/messages
func (h *BranchingHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	threadID, ok := PathParam(w, r, "id", "Thread ID")
	if !ok {
		return
	}

	var req branchingSvc.AppendMessageRequest
	if !parseBody(w, r, &req) {
		return
	}
	req.ThreadID = threadID

	msg, err := h.messageService.AppendMessage(r.Context(), &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, msg)
}

// ListBranches lists the conversation branches of a thread, main first
// GET /api/threads/{id}/branches
func (h *BranchingHandler) ListBranches(w http.ResponseWriter, r *http.Request) {
	threadID, ok := PathParam(w, r, "id", "Thread ID")
	if !ok {
		return
	}

	branches, err := h.queryService.ListBranches(r.Context(), threadID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"thread_id": threadID,
		"branches":  branches,
	})
}

// GetMessage retrieves a single message
// GET /api/messages/{id}
func (h *BranchingHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	messageID, ok := PathParam(w, r, "id", "Message ID")
	if !ok {
		return
	}

	msg, err := h.messageService.GetMessage(r.Context(), messageID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, msg)
}

// Retry creates a new variant of a message (body may carry edited content)
// POST /api/messages/{id}/retry
// Returns 201 with the variant, 409 when the message has no versions left
func (h *BranchingHandler) Retry(w http.ResponseWriter, r *http.Request) {
	messageID, ok := PathParam(w, r, "id", "Message ID")
	if !ok {
		return
	}

	var req branchingSvc.RetryRequest
	if !parseBody(w, r, &req) {
		return
	}
	req.MessageID = messageID

	result, err := h.retryService.Retry(r.Context(), &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, result)
}

// ListVariants returns the variant set containing a message
// GET /api/messages/{id}/variants
func (h *BranchingHandler) ListVariants(w http.ResponseWriter, r *http.Request) {
	messageID, ok := PathParam(w, r, "id", "Message ID")
	if !ok {
		return
	}

	set, err := h.queryService.ListVariants(r.Context(), messageID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"root_id":  set.RootID,
		"messages": set.Messages,
		"total":    set.Total,
		"position": set.Position(messageID),
	})
}

// ResolveRoot returns the root of a message's variant set
// GET /api/messages/{id}/root
func (h *BranchingHandler) ResolveRoot(w http.ResponseWriter, r *http.Request) {
	messageID, ok := PathParam(w, r, "id", "Message ID")
	if !ok {
		return
	}

	root, err := h.retryService.ResolveRoot(r.Context(), messageID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, root)
}

// UpdateContent completes or fails a message
// PATCH /api/messages/{id}/content
func (h *BranchingHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	messageID, ok := PathParam(w, r, "id", "Message ID")
	if !ok {
		return
	}

	var req branchingSvc.UpdateContentRequest
	if !parseBody(w, r, &req) {
		return
	}
	req.MessageID = messageID

	msg, err := h.messageService.UpdateContent(r.Context(), &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, msg)
}

// ListBranchMessages lists a conversation branch oldest first
// GET /api/branches/{id}/messages
func (h *BranchingHandler) ListBranchMessages(w http.ResponseWriter, r *http.Request) {
	branchID, ok := PathParam(w, r, "id", "Branch ID")
	if !ok {
		return
	}

	messages, err := h.queryService.ListBranchMessages(r.Context(), branchID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, messages)
}
