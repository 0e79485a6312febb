package branching

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"variantree/internal/domain"
	models "variantree/internal/domain/models/branching"
)

func pgErr(code string) error {
	return fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: code})
}

func TestInsertVariantError(t *testing.T) {
	plain := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate sequence", pgErr("23505"), domain.ErrConstraintViolation},
		{"serialization failure", pgErr("40001"), domain.ErrConstraintViolation},
		{"deadlock", pgErr("40P01"), domain.ErrConstraintViolation},
		{"root deleted", pgErr("23503"), domain.ErrNotFound},
		{"check constraint", pgErr("23514"), domain.ErrValidation},
		{"malformed literal", pgErr("22P02"), domain.ErrValidation},
		{"expected count mismatch passes through", fmt.Errorf("root r1: %w", domain.ErrConstraintViolation), domain.ErrConstraintViolation},
		{"other error passes through", plain, plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := insertVariantError("r1", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("insertVariantError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCreateMessageError(t *testing.T) {
	parent := "p1"
	msg := &models.Message{ID: "m1", ParentMessageID: &parent}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"missing parent", pgErr("23503"), domain.ErrNotFound},
		{"duplicate id", pgErr("23505"), domain.ErrConflict},
		{"check constraint", pgErr("23514"), domain.ErrValidation},
		{"malformed literal", pgErr("22P02"), domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := createMessageError(msg, tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("createMessageError() = %v, want %v", got, tt.want)
			}
		})
	}

	var typed *domain.ValidationError
	if !errors.As(createMessageError(msg, pgErr("23514")), &typed) {
		t.Error("check violation should carry a ValidationError")
	}
	if errors.Is(createMessageError(msg, pgErr("08006")), domain.ErrValidation) {
		t.Error("connection failure classified as validation")
	}
}
