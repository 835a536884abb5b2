// Package weight turns edge feature sets into edge weights and carries the
// parameter-side state a trainer needs: squashing functions with their
// derivatives, the parameter vector and the lazy-update clock.
package weight

import (
	"fmt"
	"math"
	"sort"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
)

// SquashingFunction maps a linear feature score to an edge weight.
type SquashingFunction interface {
	Name() string
	Compute(x float64) float64
	ComputeDerivative(x float64) float64
	// DefaultValue is the parameter value assumed for unseen features.
	DefaultValue() float64
}

type linear struct{}

func (linear) Name() string                        { return "linear" }
func (linear) Compute(x float64) float64           { return x }
func (linear) ComputeDerivative(x float64) float64 { return 1 }
func (linear) DefaultValue() float64               { return 1 }

type exponential struct{}

func (exponential) Name() string                        { return "exp" }
func (exponential) Compute(x float64) float64           { return math.Exp(x) }
func (exponential) ComputeDerivative(x float64) float64 { return math.Exp(x) }
func (exponential) DefaultValue() float64               { return 0 }

type relu struct{}

func (relu) Name() string              { return "relu" }
func (relu) Compute(x float64) float64 { return math.Max(0, x) }
func (relu) ComputeDerivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}
func (relu) DefaultValue() float64 { return 1 }

// leakyReLU keeps a small slope below zero so gradients never vanish.
type leakyReLU struct{ slope float64 }

func (leakyReLU) Name() string { return "leaky_relu" }
func (l leakyReLU) Compute(x float64) float64 {
	if x > 0 {
		return x
	}
	return l.slope * x
}
func (l leakyReLU) ComputeDerivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return l.slope
}
func (leakyReLU) DefaultValue() float64 { return 1 }

type sigmoid struct{}

func (sigmoid) Name() string              { return "sigmoid" }
func (sigmoid) Compute(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
func (s sigmoid) ComputeDerivative(x float64) float64 {
	y := s.Compute(x)
	return y * (1 - y)
}
func (sigmoid) DefaultValue() float64 { return 0 }

// tanh is shifted into (0,2) so weights stay positive:
//
//	f(x) = tanh(x) + 1
type tanh struct{}

func (tanh) Name() string              { return "tanh" }
func (tanh) Compute(x float64) float64 { return math.Tanh(x) + 1 }
func (tanh) ComputeDerivative(x float64) float64 {
	t := math.Tanh(x)
	return 1 - t*t
}
func (tanh) DefaultValue() float64 { return 0 }

// clippedExp is exp with its argument clamped to [-bound, bound].
type clippedExp struct{ bound float64 }

func (clippedExp) Name() string { return "clipped_exp" }
func (c clippedExp) Compute(x float64) float64 {
	return math.Exp(math.Max(-c.bound, math.Min(c.bound, x)))
}
func (c clippedExp) ComputeDerivative(x float64) float64 {
	if x < -c.bound || x > c.bound {
		return 0
	}
	return math.Exp(x)
}
func (clippedExp) DefaultValue() float64 { return 0 }

// DefaultSquashing is used when no squashing function is configured.
const DefaultSquashing = "relu"

var squashers = map[string]SquashingFunction{
	"linear":      linear{},
	"exp":         exponential{},
	"relu":        relu{},
	"leaky_relu":  leakyReLU{slope: 0.01},
	"sigmoid":     sigmoid{},
	"tanh":        tanh{},
	"clipped_exp": clippedExp{bound: 50},
}

// Squashing looks up a squashing function by name. The empty name selects
// DefaultSquashing.
func Squashing(name string) (SquashingFunction, error) {
	if name == "" {
		name = DefaultSquashing
	}
	s, ok := squashers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown squashing function %q", internalerr.ErrInvalidConfig, name)
	}
	return s, nil
}

// SquashingNames lists the registered squashing functions.
func SquashingNames() []string {
	out := make([]string, 0, len(squashers))
	for n := range squashers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
