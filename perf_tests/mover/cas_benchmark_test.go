// Package mover_test benchmarks internal/checkpoint's base+delta snapshot
// chain, the content-addressed-storage-shaped concern the teacher's own
// mover/CAS benchmarks measured (cas_blob read/write throughput). WIRL has
// no separate mover service: the FileStore backend plays both roles,
// storing and materializing snapshots directly, so these benchmarks
// exercise it rather than a client around a socket.
package mover_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/wirl-lang/wirl/internal/checkpoint"
	"github.com/wirl-lang/wirl/internal/engine"
)

// BenchmarkFileStoreSave measures append-only checkpoint write throughput,
// the write side of the base+delta chain (internal/checkpoint/filestore.go).
func BenchmarkFileStoreSave(b *testing.B) {
	store, err := checkpoint.NewFileStore(b.TempDir())
	if err != nil {
		b.Fatalf("create file store: %v", err)
	}
	ctx := context.Background()
	st := engine.NewState(map[string]interface{}{"x": int64(0)})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		st.Channels["count"] = int64(i)
		st.Superstep = i + 1
		if err := store.Save(ctx, "bench-run", st); err != nil {
			b.Fatalf("save: %v", err)
		}
	}
}

// BenchmarkFileStoreLoadLatest measures the read side: materializing the
// latest snapshot by walking back to the last base entry and replaying
// merge-patch deltas (internal/checkpoint/filestore.go's compaction
// window: a new base every 20 checkpoints, so at most 19 deltas).
func BenchmarkFileStoreLoadLatest(b *testing.B) {
	store, err := checkpoint.NewFileStore(b.TempDir())
	if err != nil {
		b.Fatalf("create file store: %v", err)
	}
	ctx := context.Background()
	st := engine.NewState(map[string]interface{}{"x": int64(0)})
	const supersteps = 50
	for i := 1; i <= supersteps; i++ {
		st.Channels["count"] = int64(i)
		st.Superstep = i
		if err := store.Save(ctx, "bench-run", st); err != nil {
			b.Fatalf("save: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.LoadLatest(ctx, "bench-run"); err != nil {
			b.Fatalf("load latest: %v", err)
		}
	}
}

// BenchmarkFileStoreManyRuns measures per-run isolation overhead (each run
// gets its own directory and manifest) under concurrently growing run
// counts, the shape of load a worker pool with many in-flight runs puts on
// the embedded store.
func BenchmarkFileStoreManyRuns(b *testing.B) {
	store, err := checkpoint.NewFileStore(b.TempDir())
	if err != nil {
		b.Fatalf("create file store: %v", err)
	}
	ctx := context.Background()
	st := engine.NewState(map[string]interface{}{"x": int64(1)})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		runID := fmt.Sprintf("run-%d", i)
		if err := store.Save(ctx, runID, st); err != nil {
			b.Fatalf("save: %v", err)
		}
	}
}
