package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
)

func TestTxFromContext(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil tx for wrong value type")
	}
}

func TestMemTransactor_RollsBackOnError(t *testing.T) {
	tr := NewMemTransactor()
	state := map[string]int{"a": 1}

	set := func(ctx context.Context, k string, v int) {
		old, had := state[k]
		state[k] = v
		RecordUndo(ctx, func() {
			if had {
				state[k] = old
			} else {
				delete(state, k)
			}
		})
	}

	boom := errors.New("boom")
	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		set(ctx, "a", 2)
		set(ctx, "b", 3)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if state["a"] != 1 {
		t.Errorf("a = %d, want 1", state["a"])
	}
	if _, ok := state["b"]; ok {
		t.Error("b should have been removed")
	}
}

func TestMemTransactor_CommitKeepsChanges(t *testing.T) {
	tr := NewMemTransactor()
	n := 0
	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		n = 5
		RecordUndo(ctx, func() { n = 0 })
		return nil
	})
	if err != nil || n != 5 {
		t.Errorf("n = %d, err = %v", n, err)
	}
}

func TestMemTransactor_NestedJoinsOuter(t *testing.T) {
	tr := NewMemTransactor()
	n := 0
	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		inner := tr.WithinTx(ctx, func(ctx context.Context) error {
			n++
			RecordUndo(ctx, func() { n-- })
			return nil
		})
		if inner != nil {
			return inner
		}
		return errors.New("outer fails")
	})
	if err == nil {
		t.Fatal("expected outer error")
	}
	if n != 0 {
		t.Errorf("nested change should be undone by outer failure, n = %d", n)
	}
}

func TestRecordUndo_OutsideTxIsNoop(t *testing.T) {
	called := false
	RecordUndo(context.Background(), func() { called = true })
	if called {
		t.Error("undo should not run outside a unit of work")
	}
}

func TestMapConstraintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"slot", &pgconn.PgError{Code: "23505", ConstraintName: ConstraintSlotBooking}, apperr.KindSlotConflict},
		{"bed", &pgconn.PgError{Code: "23505", ConstraintName: ConstraintOpenByResource}, apperr.KindResourceOccupied},
		{"ot", &pgconn.PgError{Code: "23P01", ConstraintName: ConstraintOTRoomWindow}, apperr.KindOTRoomConflict},
		{"ward", &pgconn.PgError{Code: "23505", ConstraintName: ConstraintResourceNumber}, apperr.KindValidation},
		{"fk", &pgconn.PgError{Code: "23503", TableName: "admission"}, apperr.KindResourceInUse},
		{"other unique", &pgconn.PgError{Code: "23505", ConstraintName: "something_else"}, ""},
		{"plain", errors.New("network"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapConstraintError(fmt.Errorf("insert: %w", tt.err))
			if k := apperr.KindOf(got); k != tt.want {
				t.Errorf("kind = %q, want %q", k, tt.want)
			}
		})
	}
}

func TestMemTransactor_ExpiredContextRollsBack(t *testing.T) {
	tr := NewMemTransactor()
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := tr.WithinTx(ctx, func(ctx context.Context) error {
		n = 1
		RecordUndo(ctx, func() { n = 0 })
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n != 0 {
		t.Errorf("n = %d, want 0 after rollback", n)
	}

	called := false
	err = tr.WithinTx(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("expected done context to skip the unit of work, err=%v called=%v", err, called)
	}
}
