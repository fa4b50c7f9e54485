package view

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/waste-api/internal/classify"
	"github.com/Brownie44l1/waste-api/internal/phase"
	"github.com/Brownie44l1/waste-api/internal/workflow"
)

func completeSnapshot(t *testing.T) workflow.Snapshot {
	t.Helper()
	r, err := classify.NewResult([]float32{0.1, 0.7, 0.05, 0.05, 0.05, 0.05})
	require.NoError(t, err)
	return workflow.Snapshot{
		Phase:  phase.Complete,
		Image:  &workflow.Image{ID: "img-1", Name: "jar.jpg"},
		Result: r,
	}
}

func TestRenderComplete(t *testing.T) {
	v := Render("s1", completeSnapshot(t), false)

	assert.True(t, v.ShowImage)
	assert.True(t, v.ShowResults)
	assert.Equal(t, "/images/img-1", v.ImageURL)
	assert.Equal(t, "Glass", v.BestLabel)
	assert.Equal(t, "Cardboard: %10.00", v.Lines[0])
	assert.Equal(t, "Glass: %70.00", v.Lines[1])
	assert.Equal(t, Button{Label: "Reset", Action: phase.ActionReset}, v.Button)
}

func TestRenderHidesResultsOutsideComplete(t *testing.T) {
	snap := completeSnapshot(t)
	snap.Phase = phase.Identifying

	v := Render("s1", snap, false)
	assert.False(t, v.ShowImage)
	assert.Empty(t, v.ImageURL)
	assert.Empty(t, v.Lines)
	assert.Empty(t, v.BestLabel)
	assert.Equal(t, "Identifying...", v.Button.Label)
	assert.Equal(t, phase.ActionNone, v.Button.Action)
}

func TestRenderImageReady(t *testing.T) {
	snap := workflow.Snapshot{Phase: phase.ImageReady, Image: &workflow.Image{ID: "x"}}
	v := Render("s1", snap, true)
	assert.Equal(t, "/images/x", v.ImageURL)
	assert.True(t, v.UploadRequested)
	assert.False(t, v.ShowResults)
}

func TestRenderFailure(t *testing.T) {
	snap := workflow.Snapshot{
		Phase:   phase.Initial,
		Failure: &workflow.Failure{Kind: workflow.AssetLoadFailure, Operation: "workflow.load_model", Phase: phase.LoadingModel, Err: errors.New("missing")},
	}
	v := Render("s1", snap, false)
	assert.Contains(t, v.Error, "asset-load")
	assert.Equal(t, "Load Model", v.Button.Label)
}

func TestViewJSONUsesPhaseNames(t *testing.T) {
	raw, err := json.Marshal(Render("s1", completeSnapshot(t), false))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"phase":"complete"`)
	assert.Contains(t, string(raw), `"action":"reset"`)
}

func TestRenderMarksInProgressPhasesBusy(t *testing.T) {
	for _, p := range phase.All {
		v := Render("s1", workflow.Snapshot{Phase: p}, false)
		assert.Equal(t, p == phase.LoadingModel || p == phase.Identifying, v.Busy, p.String())
	}
}

func TestRenderUnknownPhaseFallsBackToInitial(t *testing.T) {
	v := Render("s1", workflow.Snapshot{Phase: phase.Phase(42)}, false)
	assert.Equal(t, phase.Initial, v.Phase)
	assert.Equal(t, Button{Label: "Load Model", Action: phase.ActionLoadModel}, v.Button)
	assert.False(t, v.Busy)
}
