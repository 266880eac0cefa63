package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wirl-lang/wirl/internal/engine"
)

func TestFileStoreSaveAndLoadLatest(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	st := engine.NewState(map[string]interface{}{"x": int64(1)})
	st.Channels["A.out"] = int64(2)
	st.Superstep = 1
	require.NoError(t, store.Save(ctx, "run-1", st))

	st.Channels["B.out"] = int64(4)
	st.Superstep = 2
	require.NoError(t, store.Save(ctx, "run-1", st))

	snap, err := store.LoadLatest(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, 2, snap.Superstep)
	require.Equal(t, int64(2), snap.State.Channels["A.out"])
	require.Equal(t, int64(4), snap.State.Channels["B.out"])
}

func TestFileStoreCompactsAfterThreshold(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	st := engine.NewState(map[string]interface{}{})
	for i := 1; i <= compactEvery+5; i++ {
		st.Channels["count"] = int64(i)
		st.Superstep = i
		require.NoError(t, store.Save(ctx, "run-2", st))
	}

	entries, err := store.loadManifest("run-2")
	require.NoError(t, err)
	baseCount := 0
	for _, e := range entries {
		if e.Kind == kindBase {
			baseCount++
		}
	}
	require.GreaterOrEqual(t, baseCount, 2, "expected compaction to emit a second base snapshot")

	snap, err := store.LoadLatest(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, int64(compactEvery+5), snap.State.Channels["count"])
}

func TestFileStoreListMaterializesEverySuperstep(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	st := engine.NewState(map[string]interface{}{})
	for i := 1; i <= 3; i++ {
		st.Channels["count"] = int64(i)
		st.Superstep = i
		require.NoError(t, store.Save(ctx, "run-3", st))
	}

	snaps, err := store.List(ctx, "run-3")
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	for i, snap := range snaps {
		require.Equal(t, i+1, snap.Superstep)
		require.Equal(t, int64(i+1), snap.State.Channels["count"])
	}
}

func TestFileStoreLoadLatestNotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.LoadLatest(context.Background(), "missing-run")
	require.ErrorIs(t, err, ErrNotFound)
}
