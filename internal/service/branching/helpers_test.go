package branching

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"variantree/internal/config"
	models "variantree/internal/domain/models/branching"
	branchingRepo "variantree/internal/domain/repositories/branching"
	branchingSvc "variantree/internal/domain/services/branching"
	"variantree/internal/repository/pebblestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *pebblestore.Store {
	t.Helper()
	store, err := pebblestore.OpenInMemory(testLogger())
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type testEnv struct {
	store       *pebblestore.Store
	coordinator *Coordinator
	query       *QueryService
	messages    *MessageService
	metrics     *Metrics
}

// newTestEnv wires the services onto a fresh in-memory store. wrap, when set,
// decorates the store the services see.
func newTestEnv(t *testing.T, wrap func(*pebblestore.Store) branchingRepo.MessageStore, limits *config.Branching) *testEnv {
	t.Helper()
	base := newTestStore(t)
	var store branchingRepo.MessageStore = base
	if wrap != nil {
		store = wrap(base)
	}
	if limits == nil {
		limits = config.DefaultBranching()
	}

	logger := testLogger()
	metrics := NewMetrics(prometheus.NewRegistry())
	resolver := NewRootResolver(store, limits.MaxRootHops)
	sequencer := NewSequencer(store, limits.MaxVariantsPerRoot, limits.InsertAttempts, metrics, logger)

	return &testEnv{
		store:       base,
		coordinator: NewCoordinator(store, resolver, sequencer, *limits, metrics, logger),
		query:       NewQueryService(store, resolver, logger),
		messages:    NewMessageService(store, logger),
		metrics:     metrics,
	}
}

func (e *testEnv) append(t *testing.T, role models.Role, parent *models.Message) *models.Message {
	t.Helper()
	req := &branchingSvc.AppendMessageRequest{
		ThreadID: "thread-1",
		Role:     string(role),
		Content:  string(role) + " turn",
	}
	if parent != nil {
		req.ParentMessageID = &parent.ID
	}
	msg, err := e.messages.AppendMessage(context.Background(), req)
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	return msg
}

func (e *testEnv) retry(t *testing.T, messageID string) *branchingSvc.RetryResult {
	t.Helper()
	result, err := e.coordinator.Retry(context.Background(), &branchingSvc.RetryRequest{MessageID: messageID})
	if err != nil {
		t.Fatalf("Retry(%s) error = %v", messageID, err)
	}
	return result
}

func strPtr(s string) *string { return &s }
