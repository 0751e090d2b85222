package internal

import (
	"fmt"
	"math"
	"sectorrebalance/internal/domain"

	"github.com/maja42/goval"
)

// Figure out how a sector's core and satellite budgets get split across
// the chosen candidates

const (
	CoreFraction      = 0.6
	SatelliteFraction = 0.3
	BufferFraction    = 0.1

	// absolute cap on the first (core) holding of any sector, in percent
	MaxCorePct = 8.0

	minConvictionWeight = 0.01
)

// RoundTo rounds half away from zero
func RoundTo(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

type SectorSplit struct {
	CorePct      float64
	SatellitePct float64
	BufferPct    float64
}

func SplitSector(sectorPct float64) SectorSplit {
	return SectorSplit{
		CorePct:      RoundTo(sectorPct*CoreFraction, 2),
		SatellitePct: RoundTo(sectorPct*SatelliteFraction, 2),
		BufferPct:    RoundTo(sectorPct*BufferFraction, 2),
	}
}

// SimpleCoreWeights gives the first entry min(8, core) and splits what
// is left in decreasing fashion: each entry takes remaining / entriesLeft
func SimpleCoreWeights(corePct float64, n int) []float64 {
	out := make([]float64, n)
	remaining := corePct
	for i := 0; i < n; i++ {
		var alloc float64
		if i == 0 {
			alloc = math.Min(MaxCorePct, remaining)
		} else {
			alloc = RoundTo(remaining/float64(n-i), 2)
		}
		remaining = RoundTo(math.Max(0, remaining-alloc), 2)
		out[i] = alloc
	}
	return out
}

// ProportionalCoreWeights splits core by weight, still capping the first
// entry at 8
func ProportionalCoreWeights(corePct float64, weights []float64) []float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		total = 1
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		alloc := RoundTo(corePct*(w/total), 2)
		if i == 0 {
			alloc = math.Min(MaxCorePct, alloc)
		}
		out[i] = alloc
	}
	return out
}

func convictionFunctions() map[string]goval.ExpressionFunction {
	numericArgs := func(name string, want int, args []interface{}) ([]float64, error) {
		if len(args) < want {
			return nil, fmt.Errorf("%s needs %d args, got %d", name, want, len(args))
		}
		out := []float64{}
		for _, a := range args {
			f, err := toFloat(a)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out = append(out, f)
		}
		return out, nil
	}
	return map[string]goval.ExpressionFunction{
		"max": func(args ...interface{}) (interface{}, error) {
			values, err := numericArgs("max", 1, args)
			if err != nil {
				return nil, err
			}
			out := values[0]
			for _, v := range values[1:] {
				out = math.Max(out, v)
			}
			return out, nil
		},
		"min": func(args ...interface{}) (interface{}, error) {
			values, err := numericArgs("min", 1, args)
			if err != nil {
				return nil, err
			}
			out := values[0]
			for _, v := range values[1:] {
				out = math.Min(out, v)
			}
			return out, nil
		},
		"abs": func(args ...interface{}) (interface{}, error) {
			values, err := numericArgs("abs", 1, args)
			if err != nil {
				return nil, err
			}
			return math.Abs(values[0]), nil
		},
		"sqrt": func(args ...interface{}) (interface{}, error) {
			values, err := numericArgs("sqrt", 1, args)
			if err != nil {
				return nil, err
			}
			return math.Sqrt(math.Max(0, values[0])), nil
		},
		"log1p": func(args ...interface{}) (interface{}, error) {
			values, err := numericArgs("log1p", 1, args)
			if err != nil {
				return nil, err
			}
			return math.Log1p(math.Max(0, values[0])), nil
		},
	}
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

// ConvictionWeight evaluates the conviction expression for a single
// candidate. the result is floored at 0.01 so every chosen candidate keeps
// some weight
func ConvictionWeight(expression string, c domain.Candidate) (float64, error) {
	eval := goval.NewEvaluator()
	variables := map[string]interface{}{
		"avgScore": c.AvgScore,
		"positive": float64(c.Positive),
		"negative": float64(c.Negative),
		"neutral":  float64(c.Neutral),
		"count":    float64(c.Count),
	}
	result, err := eval.Evaluate(expression, variables, convictionFunctions())
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate conviction expression: %w", err)
	}
	w, err := toFloat(result)
	if err != nil {
		return 0, fmt.Errorf("failed to convert conviction result: %w", err)
	} else if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0, fmt.Errorf("conviction expression produced %f for %s", w, c.Name)
	}

	return math.Max(w, minConvictionWeight), nil
}

func ConvictionWeights(expression string, candidates []domain.Candidate) ([]float64, error) {
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		w, err := ConvictionWeight(expression, c)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// ValidateConvictionExpression dry-runs the expression against a zero
// candidate
func ValidateConvictionExpression(expression string) error {
	_, err := ConvictionWeight(expression, domain.Candidate{Name: "validation"})
	return err
}
