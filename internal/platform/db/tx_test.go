package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
)

// stubTx satisfies pgx.Tx for context plumbing tests; its methods are never called.
type stubTx struct {
	pgx.Tx
}

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx, got %v", tx)
	}
}

func TestWithTxContext_RoundTrip(t *testing.T) {
	tx := &stubTx{}
	ctx := WithTxContext(context.Background(), tx)
	if got := TxFromContext(ctx); got != tx {
		t.Errorf("expected stored tx, got %v", got)
	}
}

func TestConn_PrefersTx(t *testing.T) {
	tx := &stubTx{}
	ctx := WithTxContext(context.Background(), tx)
	if got := Conn(ctx, nil); got != tx {
		t.Errorf("expected Conn to return the context tx")
	}
	if got := Conn(context.Background(), tx); got != tx {
		t.Errorf("expected Conn to fall back to the given querier")
	}
}

func TestWithTx_NestedReusesOuter(t *testing.T) {
	m := &TxManager{}
	outer := &stubTx{}
	ctx := WithTxContext(context.Background(), outer)

	called := false
	err := m.WithTx(ctx, func(ctx context.Context) error {
		called = true
		if TxFromContext(ctx) != outer {
			t.Error("expected nested call to see the outer tx")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected fn to run")
	}
}
