// Package classify holds the waste category table and the probability
// vector produced by a forward pass.
package classify

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

// Labels is the fixed category table, index-aligned with model output.
var Labels = [...]string{"Cardboard", "Glass", "Metal", "Paper", "Plastic", "Trash"}

// NumClasses is the length of a complete result.
const NumClasses = len(Labels)

var ErrInvalidResult = errors.New("invalid classification result")

// Result is the probability vector of one classification. An empty result
// means nothing has been classified yet.
type Result struct {
	Probabilities []float32 `json:"probabilities"`
}

// NewResult validates probs and returns a result owning a copy of it.
func NewResult(probs []float32) (Result, error) {
	if len(probs) != NumClasses {
		return Result{}, fmt.Errorf("%w: got %d values, want %d", ErrInvalidResult, len(probs), NumClasses)
	}
	for i, p := range probs {
		if math.IsNaN(float64(p)) || p < 0 || p > 1 {
			return Result{}, fmt.Errorf("%w: value %v at index %d outside [0,1]", ErrInvalidResult, p, i)
		}
	}
	out := make([]float32, len(probs))
	copy(out, probs)
	return Result{Probabilities: out}, nil
}

func (r Result) Empty() bool {
	return len(r.Probabilities) == 0
}

// Best returns the index of the highest probability. Ties keep the lowest
// index. ok is false for an empty result.
func (r Result) Best() (idx int, ok bool) {
	if r.Empty() {
		return 0, false
	}
	for i, p := range r.Probabilities {
		if p > r.Probabilities[idx] {
			idx = i
		}
	}
	return idx, true
}

// BestLabel returns the label of Best, or "" for an empty result.
func (r Result) BestLabel() string {
	idx, ok := r.Best()
	if !ok {
		return ""
	}
	return Label(idx)
}

// Label returns the category name for idx, or "" when out of range.
func Label(idx int) string {
	if idx < 0 || idx >= NumClasses {
		return ""
	}
	return Labels[idx]
}

// Line renders one probability as "<Label>: %<percent to 2 decimals>".
func Line(label string, p float32) string {
	return label + ": %" + percent(float64(p)*100)
}

// percent formats x with two decimals. A value exactly halfway between two
// hundredths rounds away from zero; everything else rounds to nearest.
func percent(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fmt.Sprintf("%.2f", x)
	}
	sign := ""
	if x < 0 {
		sign, x = "-", -x
	}
	halves := new(big.Rat).SetFloat64(x)
	halves.Mul(halves, big.NewRat(200, 1))
	if !halves.IsInt() || halves.Num().Bit(0) == 0 {
		return sign + fmt.Sprintf("%.2f", x)
	}
	// x*200 is odd, so x sits on a tie: hundredths = (x*200 + 1) / 2.
	hundredths := new(big.Int).Add(halves.Num(), big.NewInt(1))
	hundredths.Rsh(hundredths, 1)
	whole, frac := new(big.Int).DivMod(hundredths, big.NewInt(100), new(big.Int))
	return fmt.Sprintf("%s%d.%02d", sign, whole, frac.Int64())
}

// Lines renders every probability in label order.
func (r Result) Lines() []string {
	lines := make([]string, 0, len(r.Probabilities))
	for i, p := range r.Probabilities {
		lines = append(lines, Line(Label(i), p))
	}
	return lines
}

// ByLabel maps each label to its probability.
func (r Result) ByLabel() map[string]float32 {
	out := make(map[string]float32, len(r.Probabilities))
	for i, p := range r.Probabilities {
		out[Label(i)] = p
	}
	return out
}
