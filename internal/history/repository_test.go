package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/waste-api/internal/classify"
	"github.com/Brownie44l1/waste-api/internal/workflow"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func completion(t *testing.T, session string, probs []float32, at time.Time) workflow.Completion {
	t.Helper()
	r, err := classify.NewResult(probs)
	require.NoError(t, err)
	return workflow.Completion{
		SessionID: session,
		Image:     workflow.Image{Name: "item.png"},
		Result:    r,
		Took:      25 * time.Millisecond,
		At:        at,
	}
}

func TestRecordAndRecent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, completion(t, "a", []float32{0.1, 0.7, 0.05, 0.05, 0.05, 0.05}, base)))
	require.NoError(t, repo.Record(ctx, completion(t, "b", []float32{0, 0, 0, 0, 0, 1}, base.Add(time.Minute))))

	rows, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Trash", rows[0].Label)
	assert.Equal(t, "b", rows[0].SessionID)
	assert.Equal(t, "Glass", rows[1].Label)
	assert.InDelta(t, 0.7, rows[1].Confidence, 1e-6)
	assert.Equal(t, int64(25), rows[1].LatencyMs)

	r, err := rows[1].Result()
	require.NoError(t, err)
	assert.Equal(t, "Glass", r.BestLabel())

	rows, err = repo.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCountByLabel(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	glass := []float32{0, 1, 0, 0, 0, 0}
	metal := []float32{0, 0, 1, 0, 0, 0}

	require.NoError(t, repo.Record(ctx, completion(t, "a", glass, now)))
	require.NoError(t, repo.Record(ctx, completion(t, "a", glass, now)))
	require.NoError(t, repo.Record(ctx, completion(t, "b", metal, now)))

	counts, err := repo.CountByLabel(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Glass": 2, "Metal": 1}, counts)
}
