package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/store"
)

func TestFacts_AddAndLookup(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, f := range []store.Fact{
		{Functor: "child", Args: []string{"pam", "bob"}},
		{Functor: "child", Args: []string{"pam", "liz"}, Weight: 2},
		{Functor: "child", Args: []string{"tom", "bob"}},
		{Functor: "female", Args: []string{"pam"}},
	} {
		if err := s.AddFact(ctx, f); err != nil {
			t.Fatalf("AddFact: %v", err)
		}
	}

	facts, err := s.FactsFor(ctx, "child/2")
	if err != nil {
		t.Fatalf("FactsFor: %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("expected 3 child facts, got %d", len(facts))
	}
	if facts[1].Args[1] != "liz" || facts[1].Weight != 2 {
		t.Errorf("facts out of insertion order: %+v", facts)
	}

	bobs, _ := s.Lookup(ctx, "child/2", 1, "bob")
	if len(bobs) != 2 {
		t.Errorf("expected 2 facts with bob second, got %d", len(bobs))
	}
	none, _ := s.Lookup(ctx, "child/2", 5, "bob")
	if len(none) != 0 {
		t.Errorf("out-of-range position should match nothing, got %d", len(none))
	}

	sigs, _ := s.Signatures(ctx)
	if len(sigs) != 2 || sigs[0] != "child/2" || sigs[1] != "female/1" {
		t.Errorf("unexpected signatures %v", sigs)
	}
}

func TestFacts_ReplaceWeight(t *testing.T) {
	ctx := context.Background()
	s := New()
	f := store.Fact{Functor: "edge", Args: []string{"a", "b"}, Weight: 1}
	_ = s.AddFact(ctx, f)
	f.Weight = 3
	_ = s.AddFact(ctx, f)

	facts, _ := s.FactsFor(ctx, "edge/2")
	if len(facts) != 1 || facts[0].Weight != 3 {
		t.Fatalf("expected one edge with weight 3, got %+v", facts)
	}

	// Returned facts are copies.
	facts[0].Args[0] = "mutated"
	again, _ := s.FactsFor(ctx, "edge/2")
	if again[0].Args[0] != "a" {
		t.Error("store leaked its internal slice")
	}
}

func TestFacts_RejectsEmptyFunctor(t *testing.T) {
	err := New().AddFact(context.Background(), store.Fact{Args: []string{"a"}})
	if !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGroundings_OrderedByID(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.SaveGrounding(ctx, store.Grounding{ID: "02", RunID: "r1", Line: "second"})
	_ = s.SaveGrounding(ctx, store.Grounding{ID: "01", RunID: "r1", Line: "first"})
	_ = s.SaveGrounding(ctx, store.Grounding{ID: "03", RunID: "r2", Line: "other"})

	gs, err := s.Groundings(ctx, "r1")
	if err != nil {
		t.Fatalf("Groundings: %v", err)
	}
	if len(gs) != 2 || gs[0].Line != "first" || gs[1].Line != "second" {
		t.Fatalf("unexpected groundings %+v", gs)
	}
}
