package branching

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"variantree/internal/domain"
	models "variantree/internal/domain/models/branching"
	branchingRepo "variantree/internal/domain/repositories/branching"
	"variantree/internal/repository/postgres"
)

// newLiveStore connects to TEST_DATABASE_URL with a throwaway table prefix
func newLiveStore(t *testing.T) branchingRepo.MessageStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, url)
	if err != nil {
		t.Fatalf("CreateConnectionPool() error = %v", err)
	}

	prefix := "t" + strings.ReplaceAll(uuid.NewString()[:8], "-", "") + "_"
	tables := postgres.NewTableNames(prefix)
	if err := postgres.Migrate(ctx, pool, tables); err != nil {
		pool.Close()
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() {
		postgres.DropSchema(context.Background(), pool, tables)
		pool.Close()
	})

	return NewMessageStore(&postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
}

func strPtr(s string) *string { return &s }

func variantOf(root *models.Message, seq int, branch string) *models.Message {
	return &models.Message{
		ThreadID:             root.ThreadID,
		Role:                 root.Role,
		ParentMessageID:      root.ParentMessageID,
		VariantOfID:          &root.ID,
		VariantSequence:      &seq,
		BranchID:             strPtr(models.LocalBranchLabel(seq)),
		ConversationBranchID: branch,
		BranchPoint:          root.ParentMessageID,
	}
}

func TestLiveMessageStore_VariantLifecycle(t *testing.T) {
	store := newLiveStore(t)
	ctx := context.Background()

	user := &models.Message{ThreadID: "thread-1", Role: models.RoleUser, Content: "q"}
	if err := store.CreateMessage(ctx, user); err != nil {
		t.Fatalf("CreateMessage(user) error = %v", err)
	}
	root := &models.Message{ThreadID: "thread-1", Role: models.RoleAssistant, Content: "a", ParentMessageID: &user.ID}
	if err := store.CreateMessage(ctx, root); err != nil {
		t.Fatalf("CreateMessage(root) error = %v", err)
	}

	if err := store.InsertVariantAtomic(ctx, variantOf(root, 1, "br-1"), 0); err != nil {
		t.Fatalf("InsertVariantAtomic() error = %v", err)
	}
	if err := store.InsertVariantAtomic(ctx, variantOf(root, 1, "br-1"), 0); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Errorf("stale insert error = %v, want ErrConstraintViolation", err)
	}
	if err := store.InsertVariantAtomic(ctx, variantOf(&models.Message{ID: uuid.NewString(), ThreadID: "thread-1"}, 1, "br-1"), 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing root error = %v, want ErrNotFound", err)
	}

	count, err := store.CountVariantsOf(ctx, root.ID)
	if err != nil || count != 1 {
		t.Errorf("CountVariantsOf() = %d, %v", count, err)
	}

	chain, err := store.GetParentChain(ctx, root.ID, 10)
	if err != nil || len(chain) != 1 || chain[0].ID != user.ID {
		t.Errorf("GetParentChain() = %v, %v", chain, err)
	}

	origin, err := store.GetBranchOrigin(ctx, "br-1")
	if err != nil || origin.BranchPoint == nil || *origin.BranchPoint != user.ID {
		t.Errorf("GetBranchOrigin() = %+v, %v", origin, err)
	}

	branches, err := store.ListThreadBranches(ctx, "thread-1")
	if err != nil || len(branches) != 2 || branches[0] != models.MainBranch {
		t.Errorf("ListThreadBranches() = %v, %v", branches, err)
	}
}

func TestLiveMessageStore_ConcurrentInsertsSerializePerRoot(t *testing.T) {
	store := newLiveStore(t)
	ctx := context.Background()

	root := &models.Message{ThreadID: "thread-1", Role: models.RoleAssistant}
	if err := store.CreateMessage(ctx, root); err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	const writers = 6
	results := make([]error, writers)
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			results[i] = store.InsertVariantAtomic(ctx, variantOf(root, 1, "br-1"), 0)
			return nil
		})
	}
	_ = g.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, domain.ErrConstraintViolation):
			t.Errorf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want 1", wins)
	}
}
