// Package pebblestore is an embedded MessageStore on cockroachdb/pebble.
//
// Pebble has no conditional writes, so the variant count check and insert are
// serialized per root with an in-process lock. This is only correct while a
// single process owns the database directory, which pebble itself enforces
// with its LOCK file.
package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"

	"variantree/internal/domain"
	models "variantree/internal/domain/models/branching"
	branchingRepo "variantree/internal/domain/repositories/branching"
)

// Store implements MessageStore on a pebble database
type Store struct {
	db     *pebble.DB
	logger *slog.Logger

	// per-root locks for the variant check-and-insert, per-message locks for updates.
	// Entries are dropped once no goroutine holds or waits on them.
	locksMu sync.Mutex
	locks   map[string]*keyLock

	// last issued timestamp; keeps created_at strictly increasing within the process
	clockMu sync.Mutex
	lastTS  time.Time
}

var _ branchingRepo.MessageStore = (*Store)(nil)

// Open opens (or creates) a pebble database at path
func Open(path string, logger *slog.Logger) (*Store, error) {
	return open(path, &pebble.Options{}, logger)
}

// OpenInMemory opens a store backed by an in-memory filesystem
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()}, logger)
}

func open(path string, opts *pebble.Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error("pebble open failed", "path", path, "error", err)
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	logger.Info("pebble store opened", "path", path)

	return &Store{
		db:     db,
		logger: logger,
		locks:  make(map[string]*keyLock),
	}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close pebble store: %w", err)
	}
	return nil
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for key and returns its release func
func (s *Store) lock(key string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.locksMu.Unlock()
	}
}

// heldLocks reports how many lock entries are live
func (s *Store) heldLocks() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

// now returns a UTC timestamp strictly after the previous one
func (s *Store) now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	t := time.Now().UTC()
	if !t.After(s.lastTS) {
		t = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = t
	return t
}

// GetMessage retrieves a message by ID
func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateID("message", messageID); err != nil {
		// A malformed id cannot exist in the store
		return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	return s.get(messageID)
}

func (s *Store) get(messageID string) (*models.Message, error) {
	value, closer, err := s.db.Get(msgKey(messageID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	defer closer.Close()

	var msg models.Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", messageID, err)
	}
	return &msg, nil
}

// scanIndex returns the message ids stored under prefix in key order
func (s *Store) scanIndex(prefix []byte, limit int) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	ids := []string{}
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, string(iter.Value()))
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate index: %w", err)
	}
	return ids, nil
}

// loadAll resolves index ids to messages; a dangling index entry is an error
func (s *Store) loadAll(ids []string) ([]models.Message, error) {
	messages := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.get(id)
		if err != nil {
			return nil, fmt.Errorf("load indexed message: %w", err)
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

// ListVariantsOf retrieves all variants of a root ordered by sequence
func (s *Store) ListVariantsOf(ctx context.Context, rootID string) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateID("message", rootID); err != nil {
		return []models.Message{}, nil
	}

	ids, err := s.scanIndex(variantPrefix(rootID), 0)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	return s.loadAll(ids)
}

// CountVariantsOf returns the current variant count of a root
func (s *Store) CountVariantsOf(ctx context.Context, rootID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := ValidateID("message", rootID); err != nil {
		return 0, nil
	}
	ids, err := s.scanIndex(variantPrefix(rootID), 0)
	if err != nil {
		return 0, fmt.Errorf("count variants: %w", err)
	}
	return len(ids), nil
}

// ListBranchMessages retrieves a branch's messages ordered by created_at, id
func (s *Store) ListBranchMessages(ctx context.Context, conversationBranchID string) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateID("branch", conversationBranchID); err != nil {
		return []models.Message{}, nil
	}

	ids, err := s.scanIndex(branchPrefix(conversationBranchID), 0)
	if err != nil {
		return nil, fmt.Errorf("list branch messages: %w", err)
	}
	return s.loadAll(ids)
}

// ListThreadBranches returns distinct branch ids of a thread by first appearance
func (s *Store) ListThreadBranches(ctx context.Context, threadID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateID("thread", threadID); err != nil {
		return []string{}, nil
	}

	ids, err := s.scanIndex(threadPrefix(threadID), 0)
	if err != nil {
		return nil, fmt.Errorf("list thread branches: %w", err)
	}

	seen := make(map[string]bool)
	branches := []string{}
	for _, id := range ids {
		msg, err := s.get(id)
		if err != nil {
			return nil, fmt.Errorf("load thread message: %w", err)
		}
		if !seen[msg.ConversationBranchID] {
			seen[msg.ConversationBranchID] = true
			branches = append(branches, msg.ConversationBranchID)
		}
	}
	return branches, nil
}

// GetParentChain walks parent pointers upward, nearest first
func (s *Store) GetParentChain(ctx context.Context, messageID string, maxDepth int) ([]models.Message, error) {
	chain := []models.Message{}

	start, err := s.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return chain, nil
		}
		return nil, err
	}

	visited := map[string]bool{start.ID: true}
	next := start.ParentMessageID
	for next != nil && len(chain) < maxDepth {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if visited[*next] {
			break // cycle; the chain so far is still a valid bounded ancestry
		}
		parent, err := s.get(*next)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				break
			}
			return nil, err
		}
		visited[parent.ID] = true
		chain = append(chain, *parent)
		next = parent.ParentMessageID
	}
	return chain, nil
}

// GetBranchOrigin returns the earliest message of a branch with a branch point
func (s *Store) GetBranchOrigin(ctx context.Context, conversationBranchID string) (*models.Message, error) {
	messages, err := s.ListBranchMessages(ctx, conversationBranchID)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if messages[i].BranchPoint != nil {
			return &messages[i], nil
		}
	}
	return nil, fmt.Errorf("branch origin %s: %w", conversationBranchID, domain.ErrNotFound)
}

// CreateMessage inserts a root message
func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.VariantOfID != nil || msg.VariantSequence != nil {
		return fmt.Errorf("variants must be created with InsertVariantAtomic: %w", domain.ErrValidation)
	}
	if err := ValidateID("thread", msg.ThreadID); err != nil {
		return err
	}

	if msg.ParentMessageID != nil {
		if _, err := s.GetMessage(ctx, *msg.ParentMessageID); err != nil {
			return fmt.Errorf("parent message: %w", err)
		}
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	} else if err := ValidateID("message", msg.ID); err != nil {
		return err
	}

	unlock := s.lock(msg.ID)
	defer unlock()

	if _, err := s.get(msg.ID); err == nil {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("message %s already exists", msg.ID),
			ResourceType: "message",
			ResourceID:   msg.ID,
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	s.prepareInsert(msg)
	if err := s.write(msg, nil); err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	s.logger.Debug("message stored", "id", msg.ID, "thread_id", msg.ThreadID, "branch", msg.ConversationBranchID)
	return nil
}

// InsertVariantAtomic inserts a variant if the root still has expectedCount variants
func (s *Store) InsertVariantAtomic(ctx context.Context, msg *models.Message, expectedCount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.VariantOfID == nil || msg.VariantSequence == nil {
		return fmt.Errorf("variant requires variant_of_id and variant_sequence: %w", domain.ErrValidation)
	}
	rootID := *msg.VariantOfID
	seq := *msg.VariantSequence
	if err := ValidateID("branch", msg.ConversationBranchID); err != nil {
		return err
	}

	unlock := s.lock(rootID)
	defer unlock()

	root, err := s.GetMessage(ctx, rootID)
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if !root.IsRoot() {
		return fmt.Errorf("message %s is a variant of %s, not a root: %w", rootID, *root.VariantOfID, domain.ErrDataIntegrity)
	}

	count, err := s.CountVariantsOf(ctx, rootID)
	if err != nil {
		return err
	}
	if count != expectedCount {
		return fmt.Errorf("root %s has %d variants, expected %d: %w", rootID, count, expectedCount, domain.ErrConstraintViolation)
	}

	// (variant_of_id, variant_sequence) uniqueness
	if _, closer, err := s.db.Get(variantKey(rootID, seq)); err == nil {
		closer.Close()
		return fmt.Errorf("root %s sequence %d taken: %w", rootID, seq, domain.ErrConstraintViolation)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("check sequence: %w", err)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	s.prepareInsert(msg)

	if err := s.write(msg, variantKey(rootID, seq)); err != nil {
		return fmt.Errorf("insert variant: %w", err)
	}

	s.logger.Debug("variant stored",
		"id", msg.ID,
		"root_id", rootID,
		"sequence", seq,
		"branch", msg.ConversationBranchID,
	)
	return nil
}

// UpdateMessageContent updates content and completion status only
func (s *Store) UpdateMessageContent(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateID("message", msg.ID); err != nil {
		return fmt.Errorf("message %s: %w", msg.ID, domain.ErrNotFound)
	}

	unlock := s.lock(msg.ID)
	defer unlock()

	stored, err := s.get(msg.ID)
	if err != nil {
		return err
	}

	stored.Content = msg.Content
	stored.Status = msg.Status
	stored.Error = msg.Error
	stored.CompletedAt = msg.CompletedAt

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.db.Set(msgKey(stored.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("update message content: %w", err)
	}
	return nil
}

func (s *Store) prepareInsert(msg *models.Message) {
	msg.CreatedAt = s.now()
	if msg.ConversationBranchID == "" {
		msg.ConversationBranchID = models.MainBranch
	}
	if msg.Status == "" {
		msg.Status = models.StatusComplete
	}
}

// write stores the record and its index entries in one batch
func (s *Store) write(msg *models.Message, variantIdx []byte) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	id := []byte(msg.ID)
	if err := batch.Set(msgKey(msg.ID), data, nil); err != nil {
		return err
	}
	if err := batch.Set(branchKey(msg.ConversationBranchID, msg.CreatedAt, msg.ID), id, nil); err != nil {
		return err
	}
	if err := batch.Set(threadKey(msg.ThreadID, msg.CreatedAt, msg.ID), id, nil); err != nil {
		return err
	}
	if variantIdx != nil {
		if err := batch.Set(variantIdx, id, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}
