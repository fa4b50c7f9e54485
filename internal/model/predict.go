package model

import (
	"context"

	"github.com/Brownie44l1/waste-api/internal/classify"
)

// Classify runs m over input and validates the output against the label table.
func Classify(ctx context.Context, m Model, input []float32) (classify.Result, error) {
	out, err := m.Predict(ctx, input)
	if err != nil {
		return classify.Result{}, err
	}
	return classify.NewResult(out)
}

// NewPredictionResponse summarizes a result for the stateless predict endpoints.
func NewPredictionResponse(r classify.Result) *PredictionResponse {
	resp := &PredictionResponse{
		Class:       r.BestLabel(),
		Predictions: r.ByLabel(),
		Lines:       r.Lines(),
	}
	if idx, ok := r.Best(); ok {
		resp.Confidence = r.Probabilities[idx]
	}
	return resp
}
