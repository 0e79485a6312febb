package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPgErrorClassification(t *testing.T) {
	wrap := func(code string) error {
		return fmt.Errorf("insert variant: %w", &pgconn.PgError{Code: code})
	}

	tests := []struct {
		name      string
		err       error
		duplicate bool
		foreign   bool
		check     bool
		retryable bool
		noRows    bool
	}{
		{name: "unique violation", err: wrap("23505"), duplicate: true},
		{name: "foreign key", err: wrap("23503"), foreign: true},
		{name: "check constraint", err: wrap("23514"), check: true},
		{name: "serialization failure", err: wrap("40001"), retryable: true},
		{name: "deadlock", err: wrap("40P01"), retryable: true},
		{name: "no rows", err: fmt.Errorf("get message: %w", pgx.ErrNoRows), noRows: true},
		{name: "plain error", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPgDuplicateError(tt.err); got != tt.duplicate {
				t.Errorf("IsPgDuplicateError = %v, want %v", got, tt.duplicate)
			}
			if got := IsPgForeignKeyError(tt.err); got != tt.foreign {
				t.Errorf("IsPgForeignKeyError = %v, want %v", got, tt.foreign)
			}
			if got := IsPgCheckViolation(tt.err); got != tt.check {
				t.Errorf("IsPgCheckViolation = %v, want %v", got, tt.check)
			}
			if got := IsPgRetryableTxError(tt.err); got != tt.retryable {
				t.Errorf("IsPgRetryableTxError = %v, want %v", got, tt.retryable)
			}
			if got := IsPgNoRowsError(tt.err); got != tt.noRows {
				t.Errorf("IsPgNoRowsError = %v, want %v", got, tt.noRows)
			}
		})
	}

	if !IsPgInvalidTextError(wrap("22P02")) {
		t.Error("IsPgInvalidTextError should match 22P02")
	}
}
