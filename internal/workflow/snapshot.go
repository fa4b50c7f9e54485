package workflow

import (
	"github.com/Brownie44l1/waste-api/internal/classify"
	"github.com/Brownie44l1/waste-api/internal/phase"
)

// Image references the selected upload held in the image store.
type Image struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Snapshot is the complete workflow state at one point. A driver replaces
// its snapshot wholesale on every change, so phase and data always agree.
type Snapshot struct {
	Phase   phase.Phase
	Image   *Image
	Result  classify.Result
	Failure *Failure
	Version uint64
}

// clone returns a copy that shares nothing mutable with s.
func (s Snapshot) clone() Snapshot {
	out := s
	if s.Image != nil {
		img := *s.Image
		out.Image = &img
	}
	if s.Result.Probabilities != nil {
		out.Result.Probabilities = append([]float32(nil), s.Result.Probabilities...)
	}
	return out
}
