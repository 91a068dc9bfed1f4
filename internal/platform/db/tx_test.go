package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestTxFromContext_Nil(t *testing.T) {
	tx := TxFromContext(context.Background())
	if tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil tx for wrong value type")
	}
}

func TestConn_FallsBackToPool(t *testing.T) {
	var pool *pgxpool.Pool
	if q := Conn(context.Background(), pool); q != Querier(pool) {
		t.Errorf("expected the pool without a transaction, got %T", q)
	}
}

func TestNotFound(t *testing.T) {
	if !errors.Is(NotFound(pgx.ErrNoRows), ErrNotFound) {
		t.Error("expected pgx.ErrNoRows to map to ErrNotFound")
	}
	wrapped := fmt.Errorf("get patient: %w", pgx.ErrNoRows)
	if !errors.Is(NotFound(wrapped), ErrNotFound) {
		t.Error("expected wrapped pgx.ErrNoRows to map to ErrNotFound")
	}
	other := errors.New("boom")
	if NotFound(other) != other {
		t.Error("expected other errors to pass through")
	}
	if NotFound(nil) != nil {
		t.Error("expected nil to stay nil")
	}
}

func TestPoolTransactor_NoPool(t *testing.T) {
	called := false
	err := NewTransactor(nil).InTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("expected error when no pool is configured")
	}
	if called {
		t.Error("fn must not run without a transaction")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Error("expected wrapped 23505 to be a unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("expected foreign key violation not to match")
	}
	if IsUniqueViolation(errors.New("plain")) {
		t.Error("expected plain error not to match")
	}
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("expected 23503 to be a foreign key violation")
	}
}
