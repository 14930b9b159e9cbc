package approval

import (
	"math"
	"sync/atomic"

	"github.com/ppiankov/toolgate/internal/model"
)

// Gate holds the approval threshold. Reads are lock-free; a new threshold
// applies to every decision made after SetThreshold returns.
type Gate struct {
	bits atomic.Uint64
}

// NewGate returns a Gate with the given threshold.
func NewGate(threshold float64) (*Gate, error) {
	g := &Gate{}
	if err := g.SetThreshold(threshold); err != nil {
		return nil, err
	}
	return g, nil
}

// ValidateThreshold rejects values outside [0,1] and NaN.
func ValidateThreshold(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return &model.ValidationError{Field: "threshold", Value: v, Reason: "must be within [0,1]"}
	}
	return nil
}

// Threshold returns the current threshold.
func (g *Gate) Threshold() float64 {
	return math.Float64frombits(g.bits.Load())
}

// RequiresApproval reports whether score strictly exceeds the threshold.
// A score equal to the threshold does not require approval.
func (g *Gate) RequiresApproval(score float64) bool {
	return score > g.Threshold()
}

// SetThreshold replaces the threshold. Invalid values leave it unchanged.
func (g *Gate) SetThreshold(v float64) error {
	_, err := g.Swap(v)
	return err
}

// Swap replaces the threshold and returns the previous value.
func (g *Gate) Swap(v float64) (float64, error) {
	if err := ValidateThreshold(v); err != nil {
		return g.Threshold(), err
	}
	old := g.bits.Swap(math.Float64bits(v))
	return math.Float64frombits(old), nil
}
