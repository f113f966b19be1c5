package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s := NewSQLiteStore(filepath.Join(t.TempDir(), "studyd.db"))
		require.NoError(t, s.Init(context.Background()))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStoreReopenContinuesIDs(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "studyd.db")

	first := NewSQLiteStore(path)
	require.NoError(t, first.Init(ctx))
	mustStudy(t, first, "persist")
	for i := 0; i < 3; i++ {
		_, err := first.CreateTrial(ctx, running("persist", map[string]any{"x": float64(i)}))
		require.NoError(t, err)
	}
	v := 4.0
	_, err := first.UpdateTrial(ctx, "persist", 1, TrialUpdate{State: models.TrialStateComplete, Value: &v})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := NewSQLiteStore(path)
	require.NoError(t, second.Init(ctx))
	t.Cleanup(func() { _ = second.Close() })

	trials, err := second.ListTrials(ctx, "persist")
	require.NoError(t, err)
	require.Len(t, trials, 3)
	assert.Equal(t, models.TrialStateComplete, trials[1].State)
	assert.Equal(t, 4.0, *trials[1].Value)
	assert.Equal(t, 2.0, trials[2].Params["x"])

	next, err := second.CreateTrial(ctx, running("persist", nil))
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.ID)
}

func TestSQLiteStoreSharedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	a := NewSQLiteStore(path)
	require.NoError(t, a.Init(ctx))
	t.Cleanup(func() { _ = a.Close() })
	b := NewSQLiteStore(path)
	require.NoError(t, b.Init(ctx))
	t.Cleanup(func() { _ = b.Close() })

	mustStudy(t, a, "shared")
	for i := 0; i < 5; i++ {
		s := Store(a)
		if i%2 == 1 {
			s = b
		}
		tr, err := s.CreateTrial(ctx, running("shared", nil))
		require.NoError(t, err)
		assert.Equal(t, int64(i), tr.ID)
	}

	v := 1.0
	_, err := a.UpdateTrial(ctx, "shared", 0, TrialUpdate{State: models.TrialStateComplete, Value: &v})
	require.NoError(t, err)
	_, err = b.UpdateTrial(ctx, "shared", 0, TrialUpdate{State: models.TrialStateFailed})
	assert.ErrorIs(t, err, ErrTrialTerminal)
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	s := NewSQLiteStore(filepath.Join(t.TempDir(), "x.db"))
	_, err := s.GetStudy(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.Error(t, NewSQLiteStore("").Init(context.Background()))
}
