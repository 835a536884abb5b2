package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/term"
)

// Store persists extensional facts served to the prover and archives
// grounded examples.
type Store interface {
	Close() error

	// Facts
	AddFact(ctx context.Context, f Fact) error
	FactsFor(ctx context.Context, signature string) ([]Fact, error)
	Lookup(ctx context.Context, signature string, position int, value string) ([]Fact, error)
	Signatures(ctx context.Context) ([]string, error)

	// Grounding archive
	SaveGrounding(ctx context.Context, g Grounding) error
	Groundings(ctx context.Context, runID string) ([]Grounding, error)
}

// Fact is one ground tuple. Facts are unique per (functor, args); adding
// the same tuple again replaces its weight.
type Fact struct {
	Functor string
	Args    []string
	Weight  float64
}

// Signature returns the predicate label "functor/arity".
func (f Fact) Signature() string { return term.Signature(f.Functor, len(f.Args)) }

// Validate rejects facts that cannot be stored.
func (f Fact) Validate() error {
	if f.Functor == "" {
		return fmt.Errorf("%w: fact has no functor", internalerr.ErrInvalidInput)
	}
	return nil
}

// EffectiveWeight is the weight, with unset (zero) meaning 1.
func (f Fact) EffectiveWeight() float64 {
	if f.Weight == 0 {
		return 1
	}
	return f.Weight
}

// Grounding is one archived grounded-example line.
type Grounding struct {
	ID        string // ULID, sortable by creation
	RunID     string
	Query     string
	Line      string
	CreatedAt time.Time
}
