package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/store"
)

func openTemp(t *testing.T) store.Store {
	t.Helper()
	st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestSQLiteFacts tests fact insert, lookup and weight replacement
func TestSQLiteFacts(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)

	for _, f := range []store.Fact{
		{Functor: "child", Args: []string{"pam", "bob"}},
		{Functor: "child", Args: []string{"pam", "liz"}, Weight: 2},
		{Functor: "child", Args: []string{"tom", "bob"}},
		{Functor: "triple", Args: []string{"a", "b", "c"}},
		{Functor: "nullary"},
	} {
		if err := st.AddFact(ctx, f); err != nil {
			t.Fatalf("AddFact(%v): %v", f, err)
		}
	}

	facts, err := st.FactsFor(ctx, "child/2")
	if err != nil {
		t.Fatalf("FactsFor: %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(facts))
	}
	if facts[1].Args[1] != "liz" || facts[1].EffectiveWeight() != 2 {
		t.Errorf("unexpected second fact %+v", facts[1])
	}
	if facts[0].EffectiveWeight() != 1 {
		t.Errorf("unset weight should read as 1, got %v", facts[0].EffectiveWeight())
	}

	pam, _ := st.Lookup(ctx, "child/2", 0, "pam")
	if len(pam) != 2 {
		t.Errorf("expected 2 facts for pam, got %d", len(pam))
	}
	bob, _ := st.Lookup(ctx, "child/2", 1, "bob")
	if len(bob) != 2 {
		t.Errorf("expected 2 facts for bob, got %d", len(bob))
	}
	third, _ := st.Lookup(ctx, "triple/3", 2, "c")
	if len(third) != 1 {
		t.Errorf("expected unindexed position lookup to match 1 fact, got %d", len(third))
	}

	if err := st.AddFact(ctx, store.Fact{Functor: "child", Args: []string{"pam", "bob"}, Weight: 5}); err != nil {
		t.Fatalf("AddFact (replace): %v", err)
	}
	facts, _ = st.FactsFor(ctx, "child/2")
	if len(facts) != 3 || facts[0].Weight != 5 {
		t.Errorf("expected weight replaced in place, got %+v", facts)
	}

	sigs, _ := st.Signatures(ctx)
	want := []string{"child/2", "nullary/0", "triple/3"}
	if len(sigs) != len(want) {
		t.Fatalf("signatures = %v, want %v", sigs, want)
	}
	for i := range want {
		if sigs[i] != want[i] {
			t.Errorf("signatures[%d] = %q, want %q", i, sigs[i], want[i])
		}
	}

	if err := st.AddFact(ctx, store.Fact{}); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty fact, got %v", err)
	}
}

// TestSQLiteGroundings tests the grounding archive
func TestSQLiteGroundings(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)

	now := time.Now()
	for _, g := range []store.Grounding{
		{ID: "01B", RunID: "run", Query: "q2", Line: "line2", CreatedAt: now},
		{ID: "01A", RunID: "run", Query: "q1", Line: "line1", CreatedAt: now},
		{ID: "01C", RunID: "other", Query: "q3", Line: "line3"},
	} {
		if err := st.SaveGrounding(ctx, g); err != nil {
			t.Fatalf("SaveGrounding: %v", err)
		}
	}

	gs, err := st.Groundings(ctx, "run")
	if err != nil {
		t.Fatalf("Groundings: %v", err)
	}
	if len(gs) != 2 || gs[0].Line != "line1" || gs[1].Query != "q2" {
		t.Fatalf("unexpected groundings %+v", gs)
	}
	if gs[0].CreatedAt.IsZero() {
		t.Error("created_at not restored")
	}

	if err := st.SaveGrounding(ctx, store.Grounding{Line: "x"}); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

// TestSQLiteReopen verifies data survives closing the database
func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	st, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := st.AddFact(ctx, store.Fact{Functor: "edge", Args: []string{"a", "b"}}); err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	st.Close()

	st, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	facts, _ := st.FactsFor(ctx, "edge/2")
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact after reopen, got %d", len(facts))
	}
}
