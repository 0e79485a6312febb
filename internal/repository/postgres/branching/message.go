package branching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"variantree/internal/domain"
	models "variantree/internal/domain/models/branching"
	"variantree/internal/domain/repositories"
	branchingRepo "variantree/internal/domain/repositories/branching"
	"variantree/internal/repository/postgres"
)

const (
	// MaxRecursionDepth guards the parent-chain CTE against cycles
	MaxRecursionDepth = 1000

	messageColumns = `id, thread_id, role, content, status, error, parent_message_id,
		variant_of_id, variant_sequence, branch_id, conversation_branch_id, branch_point,
		created_at, completed_at`
)

// PostgresMessageStore implements the MessageStore interface using PostgreSQL
type PostgresMessageStore struct {
	pool      *pgxpool.Pool
	tables    *postgres.TableNames
	txManager repositories.TransactionManager
	logger    *slog.Logger
}

// NewMessageStore creates a new PostgresMessageStore
func NewMessageStore(config *postgres.RepositoryConfig) branchingRepo.MessageStore {
	return &PostgresMessageStore{
		pool:      config.Pool,
		tables:    config.Tables,
		txManager: postgres.NewTransactionManager(config.Pool, config.Logger),
		logger:    config.Logger,
	}
}

// scanner defines the interface for row scanning (implemented by both pgx.Row and pgx.Rows)
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanMessageRow scans a database row into a Message struct
func scanMessageRow(row scanner) (*models.Message, error) {
	var msg models.Message
	var role, status string
	err := row.Scan(
		&msg.ID,
		&msg.ThreadID,
		&role,
		&msg.Content,
		&status,
		&msg.Error,
		&msg.ParentMessageID,
		&msg.VariantOfID,
		&msg.VariantSequence,
		&msg.BranchID,
		&msg.ConversationBranchID,
		&msg.BranchPoint,
		&msg.CreatedAt,
		&msg.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Role = models.Role(role)
	msg.Status = models.Status(status)
	return &msg, nil
}

// collectMessages drains rows into a slice, never returning nil
func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessageRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// GetMessage retrieves a message by ID
func (r *PostgresMessageStore) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, messageColumns, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	msg, err := scanMessageRow(executor.QueryRow(ctx, query, messageID))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	return msg, nil
}

// ListVariantsOf retrieves all variants of a root ordered by sequence
func (r *PostgresMessageStore) ListVariantsOf(ctx context.Context, rootID string) ([]models.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE variant_of_id = $1
		ORDER BY variant_sequence
	`, messageColumns, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, rootID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}

	return collectMessages(rows)
}

// CountVariantsOf returns the current variant count of a root
func (r *PostgresMessageStore) CountVariantsOf(ctx context.Context, rootID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE variant_of_id = $1`, r.tables.Messages)

	var count int
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, rootID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count variants: %w", err)
	}

	return count, nil
}

// ListBranchMessages retrieves all messages of a conversation branch in time order
func (r *PostgresMessageStore) ListBranchMessages(ctx context.Context, conversationBranchID string) ([]models.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE conversation_branch_id = $1
		ORDER BY created_at, id
	`, messageColumns, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, conversationBranchID)
	if err != nil {
		return nil, fmt.Errorf("list branch messages: %w", err)
	}

	return collectMessages(rows)
}

// ListThreadBranches returns distinct branch ids of a thread by first appearance
func (r *PostgresMessageStore) ListThreadBranches(ctx context.Context, threadID string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT conversation_branch_id
		FROM %s
		WHERE thread_id = $1
		GROUP BY conversation_branch_id
		ORDER BY MIN(created_at), conversation_branch_id
	`, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("list thread branches: %w", err)
	}
	defer rows.Close()

	branches := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan branch id: %w", err)
		}
		branches = append(branches, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branch ids: %w", err)
	}

	return branches, nil
}

// GetParentChain walks parent pointers upward, nearest first
func (r *PostgresMessageStore) GetParentChain(ctx context.Context, messageID string, maxDepth int) ([]models.Message, error) {
	if maxDepth <= 0 {
		return []models.Message{}, nil
	}
	if maxDepth > MaxRecursionDepth {
		maxDepth = MaxRecursionDepth
	}

	// Recursive CTE starting at the parent of messageID
	query := fmt.Sprintf(`
		WITH RECURSIVE chain AS (
			SELECT p.*, 1 AS depth
			FROM %s p
			WHERE p.id = (SELECT parent_message_id FROM %s WHERE id = $1)

			UNION ALL

			SELECT m.*, c.depth + 1
			FROM %s m
			INNER JOIN chain c ON m.id = c.parent_message_id
			WHERE c.depth < $2  -- Prevent infinite recursion
		)
		SELECT %s FROM chain
		ORDER BY depth
	`, r.tables.Messages, r.tables.Messages, r.tables.Messages, messageColumns)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, messageID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("get parent chain: %w", err)
	}

	return collectMessages(rows)
}

// GetBranchOrigin returns the earliest message of a branch with a branch point
func (r *PostgresMessageStore) GetBranchOrigin(ctx context.Context, conversationBranchID string) (*models.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE conversation_branch_id = $1 AND branch_point IS NOT NULL
		ORDER BY created_at, id
		LIMIT 1
	`, messageColumns, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	msg, err := scanMessageRow(executor.QueryRow(ctx, query, conversationBranchID))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("branch origin %s: %w", conversationBranchID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get branch origin: %w", err)
	}

	return msg, nil
}

// CreateMessage inserts a root message
func (r *PostgresMessageStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.VariantOfID != nil || msg.VariantSequence != nil {
		return fmt.Errorf("variants must be created with InsertVariantAtomic: %w", domain.ErrValidation)
	}
	prepareInsert(msg)

	executor := postgres.GetExecutor(ctx, r.pool)
	if err := r.insert(ctx, executor, msg); err != nil {
		return createMessageError(msg, err)
	}

	return nil
}

// InsertVariantAtomic inserts a variant if the root still has expectedCount variants.
//
// The root row is locked with SELECT ... FOR UPDATE, which serializes every
// variant insert for that root; the count is re-read under the lock. The unique
// index on (variant_of_id, variant_sequence) is the backstop if a caller bypasses
// this method.
func (r *PostgresMessageStore) InsertVariantAtomic(ctx context.Context, msg *models.Message, expectedCount int) error {
	if msg.VariantOfID == nil || msg.VariantSequence == nil {
		return fmt.Errorf("variant requires variant_of_id and variant_sequence: %w", domain.ErrValidation)
	}
	rootID := *msg.VariantOfID
	prepareInsert(msg)

	err := r.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		executor := postgres.GetExecutor(txCtx, r.pool)

		lockQuery := fmt.Sprintf(`SELECT variant_of_id FROM %s WHERE id = $1 FOR UPDATE`, r.tables.Messages)
		var rootVariantOf *string
		if err := executor.QueryRow(txCtx, lockQuery, rootID).Scan(&rootVariantOf); err != nil {
			if postgres.IsPgNoRowsError(err) {
				return fmt.Errorf("root %s: %w", rootID, domain.ErrNotFound)
			}
			return fmt.Errorf("lock root: %w", err)
		}
		if rootVariantOf != nil {
			return fmt.Errorf("message %s is a variant of %s, not a root: %w", rootID, *rootVariantOf, domain.ErrDataIntegrity)
		}

		countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE variant_of_id = $1`, r.tables.Messages)
		var count int
		if err := executor.QueryRow(txCtx, countQuery, rootID).Scan(&count); err != nil {
			return fmt.Errorf("count variants: %w", err)
		}
		if count != expectedCount {
			return fmt.Errorf("root %s has %d variants, expected %d: %w", rootID, count, expectedCount, domain.ErrConstraintViolation)
		}

		return r.insert(txCtx, executor, msg)
	})
	if err != nil {
		return insertVariantError(rootID, err)
	}

	return nil
}

// createMessageError maps a failed root insert onto domain errors
func createMessageError(msg *models.Message, err error) error {
	switch {
	case postgres.IsPgForeignKeyError(err):
		return fmt.Errorf("parent message %s: %w", derefOr(msg.ParentMessageID, ""), domain.ErrNotFound)
	case postgres.IsPgDuplicateError(err):
		return &domain.ConflictError{
			Message:      fmt.Sprintf("message %s already exists", msg.ID),
			ResourceType: "message",
			ResourceID:   msg.ID,
		}
	case postgres.IsPgCheckViolation(err), postgres.IsPgInvalidTextError(err):
		return fmt.Errorf("create message: %w", &domain.ValidationError{Message: "message rejected by schema constraints"})
	}
	return fmt.Errorf("create message: %w", err)
}

// insertVariantError maps a failed variant transaction onto domain errors.
// Lost races, whether seen as a duplicate sequence or an aborted transaction,
// become ErrConstraintViolation so the sequencer re-reads and tries again.
func insertVariantError(rootID string, err error) error {
	switch {
	case postgres.IsPgDuplicateError(err), postgres.IsPgRetryableTxError(err):
		return fmt.Errorf("insert variant of %s: %w", rootID, domain.ErrConstraintViolation)
	case postgres.IsPgForeignKeyError(err):
		return fmt.Errorf("insert variant of %s: %w", rootID, domain.ErrNotFound)
	case postgres.IsPgCheckViolation(err), postgres.IsPgInvalidTextError(err):
		return fmt.Errorf("insert variant of %s: %w", rootID, &domain.ValidationError{Message: "variant rejected by schema constraints"})
	}
	return err
}

// insert writes msg and fills the store-assigned fields
func (r *PostgresMessageStore) insert(ctx context.Context, executor repositories.DBTX, msg *models.Message) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, thread_id, role, content, status, error, parent_message_id,
			variant_of_id, variant_sequence, branch_id, conversation_branch_id, branch_point,
			created_at, completed_at
		)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at
	`, r.tables.Messages)

	return executor.QueryRow(ctx, query,
		msg.ID,
		msg.ThreadID,
		string(msg.Role),
		msg.Content,
		string(msg.Status),
		msg.Error,
		msg.ParentMessageID,
		msg.VariantOfID,
		msg.VariantSequence,
		msg.BranchID,
		msg.ConversationBranchID,
		msg.BranchPoint,
		msg.CreatedAt,
		msg.CompletedAt,
	).Scan(&msg.ID, &msg.CreatedAt)
}

// UpdateMessageContent updates content and completion status only
func (r *PostgresMessageStore) UpdateMessageContent(ctx context.Context, msg *models.Message) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = $1, status = $2, error = $3, completed_at = $4
		WHERE id = $5
	`, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		msg.Content,
		string(msg.Status),
		msg.Error,
		msg.CompletedAt,
		msg.ID,
	)
	if err != nil {
		return fmt.Errorf("update message content: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", msg.ID, domain.ErrNotFound)
	}

	return nil
}

// prepareInsert fills defaults the table would otherwise assign, so the
// in-memory message matches the stored row
func prepareInsert(msg *models.Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.ConversationBranchID == "" {
		msg.ConversationBranchID = models.MainBranch
	}
	if msg.Status == "" {
		msg.Status = models.StatusComplete
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
