package vannoy

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
)

func newDB(t *testing.T, opts ...Option) *Database {
	t.Helper()
	db, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestIndex_RequiresDimensions(t *testing.T) {
	db := newDB(t)
	if _, err := db.Index(0); err == nil {
		t.Fatal("expected an error opening an index without WithDimensions")
	}
}

func TestIndex_UnknownDistance(t *testing.T) {
	db := newDB(t)
	if _, err := db.Index(0, WithDimensions(2), WithDistance("chebyshev")); err == nil {
		t.Fatal("expected an error for an unknown distance name")
	}
}

func TestSixPointEuclidean(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	idx, err := db.Index(0, WithDimensions(2), WithDistance("euclidean"))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	for i := uint32(0); i < 6; i++ {
		if err := idx.Insert(ctx, i, []float32{float32(i), 0}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := idx.Build(ctx, WithNTrees(1), WithSeed(42)); err != nil {
		t.Fatalf("Build: %v", err)
	}

	res, err := idx.Query(ctx).WithVector([]float32{1, 0}).Limit(3).Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	wantIDs := []uint32{1, 0, 2}
	wantDists := []float32{0, 1, 1}
	if len(res.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.Results))
	}
	for i, m := range res.Results {
		if m.ID != wantIDs[i] {
			t.Errorf("result %d: expected id %d, got %d", i, wantIDs[i], m.ID)
		}
		if diff := m.Distance - wantDists[i]; diff > 1e-5 || diff < -1e-5 {
			t.Errorf("result %d: expected distance %v, got %v", i, wantDists[i], m.Distance)
		}
	}
}

func TestDeleteThenRebuild(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	idx, err := db.Index(0, WithDimensions(2), WithDistance("euclidean"))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	for i := uint32(0); i < 6; i++ {
		if err := idx.Insert(ctx, i, []float32{float32(i), 0}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := idx.Build(ctx, WithNTrees(1), WithSeed(42)); err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, id := range []uint32{1, 5} {
		existed, err := idx.Delete(ctx, id)
		if err != nil {
			t.Fatalf("Delete(%d): %v", id, err)
		}
		if !existed {
			t.Fatalf("Delete(%d): expected the item to exist", id)
		}
	}
	if err := idx.Build(ctx, WithNTrees(1), WithSeed(42)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if err := idx.CheckIntegrity(ctx); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.DescendantItems != 4 {
		t.Fatalf("expected 4 items across descendants after two deletes, got %d", stats.DescendantItems)
	}

	res, err := idx.Query(ctx).WithVector([]float32{0, 0}).Limit(10).Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, m := range res.Results {
		if m.ID == 1 || m.ID == 5 {
			t.Fatalf("deleted item %d still appears in results", m.ID)
		}
	}
}

func TestAppendOrderingAndRecovery(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	idx, err := db.Index(0, WithDimensions(2), WithDistance("euclidean"))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	if err := idx.Append(ctx, 0, []float32{0, 0}); err != nil {
		t.Fatalf("Append(0): %v", err)
	}
	if err := idx.Append(ctx, 1, []float32{1, 0}); err != nil {
		t.Fatalf("Append(1): %v", err)
	}

	err = idx.Append(ctx, 0, []float32{2, 0})
	if err == nil {
		t.Fatal("expected out-of-order append to fail")
	}
	var verr *Error
	if !errors.As(err, &verr) || verr.Code != CodeValidation {
		t.Fatalf("expected a CodeValidation *Error, got %v", err)
	}

	if _, err := idx.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete(1): %v", err)
	}
	if err := idx.Append(ctx, 1, []float32{1, 1}); err != nil {
		t.Fatalf("Append(1) after Delete(1): %v", err)
	}
}

func TestQueryBeforeBuildIsRefused(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	idx, err := db.Index(0, WithDimensions(2))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx.Insert(ctx, 0, []float32{1, 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	_, err = idx.Query(ctx).WithVector([]float32{1, 0}).Limit(1).Execute()
	if err == nil {
		t.Fatal("expected a query against an unbuilt index to fail")
	}
	var verr *Error
	if !errors.As(err, &verr) || verr.Code != CodeState {
		t.Fatalf("expected a CodeState *Error, got %v", err)
	}

	// A pending insert after a successful build is refused the same way.
	if err := idx.Build(ctx, WithSeed(1)); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := idx.Insert(ctx, 1, []float32{0, 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := idx.Query(ctx).ByItem(0).Limit(1).Execute(); err == nil {
		t.Fatal("expected a query with pending changes to fail")
	}
}

func TestBuildCancellation(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	idx, err := db.Index(0, WithDimensions(2), WithDistance("euclidean"))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	for i := uint32(0); i < 100; i++ {
		if err := idx.Insert(ctx, i, []float32{float32(i), float32(i % 7)}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	var ticks atomic.Int64
	err = idx.Build(ctx,
		WithNTrees(50),
		WithSeed(42),
		WithParallelism(1),
		WithCancel(func() bool { return ticks.Add(1) > 5 }),
	)
	if err == nil {
		t.Fatal("expected cancellation to abort the build")
	}
	var verr *Error
	if !errors.As(err, &verr) || verr.Code != CodeControl {
		t.Fatalf("expected a CodeControl *Error, got %v", err)
	}

	// The aborted transaction must leave the store unchanged: the index
	// still reports a pending build.
	need, err := idx.NeedBuild(ctx)
	if err != nil {
		t.Fatalf("NeedBuild: %v", err)
	}
	if !need {
		t.Fatal("expected NeedBuild true after a cancelled build")
	}
}

func TestContextCancellationAbortsBuild(t *testing.T) {
	db := newDB(t)
	idx, err := db.Index(0, WithDimensions(2), WithDistance("euclidean"))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	ctx := context.Background()
	for i := uint32(0); i < 50; i++ {
		if err := idx.Insert(ctx, i, []float32{float32(i), 1}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := idx.Build(cancelled, WithSeed(1)); err == nil {
		t.Fatal("expected a cancelled context to abort the build")
	}
}

func TestChangeDistanceThenRebuild(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	idx, err := db.Index(0, WithDimensions(2))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	for i := uint32(0); i < 10; i++ {
		if err := idx.Insert(ctx, i, []float32{float32(i) + 1, 1}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := idx.Build(ctx, WithSeed(7)); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := idx.ChangeDistance(ctx, "euclidean"); err != nil {
		t.Fatalf("ChangeDistance: %v", err)
	}
	if idx.Distance() != "euclidean" {
		t.Fatalf("expected the handle to rebind to euclidean, got %q", idx.Distance())
	}
	if err := idx.Build(ctx, WithSeed(7)); err != nil {
		t.Fatalf("rebuild under euclidean: %v", err)
	}

	res, err := idx.Query(ctx).ByItem(3).Limit(3).Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 3 || res.Results[0].ID != 3 {
		t.Fatalf("expected item 3 first among its own neighbors, got %+v", res.Results)
	}
}

// TestChangeDistanceAcrossHeaderLayouts switches to a metric whose leaf
// header is a different size (and then to one with a different vector
// packing), forcing the stored leaves to be re-encoded.
func TestChangeDistanceAcrossHeaderLayouts(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	idx, err := db.Index(0, WithDimensions(2))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	for i := uint32(0); i < 8; i++ {
		if err := idx.Insert(ctx, i, []float32{float32(i) + 1, -float32(i) - 1}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := idx.Build(ctx, WithSeed(11)); err != nil {
		t.Fatalf("Build under angular: %v", err)
	}

	for _, name := range []string{"dot-product", "binary-quantized-angular"} {
		if err := idx.ChangeDistance(ctx, name); err != nil {
			t.Fatalf("ChangeDistance(%s): %v", name, err)
		}
		if err := idx.Build(ctx, WithSeed(11)); err != nil {
			t.Fatalf("Build under %s: %v", name, err)
		}
		if err := idx.CheckIntegrity(ctx); err != nil {
			t.Fatalf("CheckIntegrity under %s: %v", name, err)
		}
		res, err := idx.Query(ctx).ByItem(2).Limit(3).WithSearchK(1000).Execute()
		if err != nil {
			t.Fatalf("query under %s: %v", name, err)
		}
		if len(res.Results) != 3 {
			t.Fatalf("expected 3 results under %s, got %d", name, len(res.Results))
		}
	}
}

func TestFilterRestrictsResults(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	idx, err := db.Index(0, WithDimensions(2), WithDistance("euclidean"))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	for i := uint32(0); i < 20; i++ {
		if err := idx.Insert(ctx, i, []float32{float32(i), 0}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := idx.Build(ctx, WithSeed(3)); err != nil {
		t.Fatalf("Build: %v", err)
	}

	res, err := idx.Query(ctx).
		WithVector([]float32{0, 0}).
		Limit(5).
		WithFilterIDs(7, 8, 9).
		WithSearchK(1000).
		Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 3 {
		t.Fatalf("expected exactly the 3 allowed ids, got %d results", len(res.Results))
	}
	for _, m := range res.Results {
		if m.ID < 7 || m.ID > 9 {
			t.Fatalf("filter leaked id %d", m.ID)
		}
	}
}

func TestExtremeItemIDs(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	idx, err := db.Index(0, WithDimensions(2), WithDistance("euclidean"))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	const maxID = ^uint32(0)
	if err := idx.Insert(ctx, 0, []float32{0, 0}); err != nil {
		t.Fatalf("Insert(0): %v", err)
	}
	if err := idx.Insert(ctx, maxID, []float32{1, 1}); err != nil {
		t.Fatalf("Insert(max): %v", err)
	}
	if err := idx.Build(ctx, WithSeed(1)); err != nil {
		t.Fatalf("Build: %v", err)
	}

	res, err := idx.Query(ctx).ByItem(maxID).Limit(2).Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 2 || res.Results[0].ID != maxID {
		t.Fatalf("expected item %d first, got %+v", maxID, res.Results)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := New(WithPath(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	idx, err := db.Index(0, WithDimensions(2), WithDistance("euclidean"))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	for i := uint32(0); i < 10; i++ {
		if err := idx.Insert(ctx, i, []float32{float32(i), 0}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := idx.Build(ctx, WithSeed(9)); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := newDB(t, WithPath(dir))
	idx2, err := reopened.Index(0, WithDimensions(2), WithDistance("euclidean"))
	if err != nil {
		t.Fatalf("Index after reopen: %v", err)
	}
	res, err := idx2.Query(ctx).ByItem(4).Limit(3).Execute()
	if err != nil {
		t.Fatalf("Execute after reopen: %v", err)
	}
	want := []uint32{4, 3, 5}
	for i, m := range res.Results {
		if m.ID != want[i] {
			t.Fatalf("expected %v, got %+v", want, res.Results)
		}
	}
}

func TestMultipleIndexesAreIndependent(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	a, err := db.Index(0, WithDimensions(2), WithDistance("euclidean"))
	if err != nil {
		t.Fatalf("Index(0): %v", err)
	}
	b, err := db.Index(1, WithDimensions(3), WithDistance("manhattan"))
	if err != nil {
		t.Fatalf("Index(1): %v", err)
	}

	if err := a.Insert(ctx, 0, []float32{1, 2}); err != nil {
		t.Fatalf("a.Insert: %v", err)
	}
	if err := b.Insert(ctx, 0, []float32{1, 2, 3}); err != nil {
		t.Fatalf("b.Insert: %v", err)
	}
	if err := a.Build(ctx, WithSeed(1)); err != nil {
		t.Fatalf("a.Build: %v", err)
	}
	if err := b.Build(ctx, WithSeed(1)); err != nil {
		t.Fatalf("b.Build: %v", err)
	}

	av, err := a.Vector(ctx, 0)
	if err != nil {
		t.Fatalf("a.Vector: %v", err)
	}
	bv, err := b.Vector(ctx, 0)
	if err != nil {
		t.Fatalf("b.Vector: %v", err)
	}
	if len(av) != 2 || len(bv) != 3 {
		t.Fatalf("indexes leaked into each other: %v / %v", av, bv)
	}
}

// TestRandomOperationStream drives several batches of random inserts and
// deletes over a small id domain, rebuilding and revalidating after each
// batch; a present item must always surface in its own neighbor list.
func TestRandomOperationStream(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	idx, err := db.Index(0, WithDimensions(2), WithDistance("euclidean"))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	rng := rand.New(rand.NewSource(1234))
	live := make(map[uint32]bool)

	for batch := 0; batch < 5; batch++ {
		for op := 0; op < 30; op++ {
			id := uint32(rng.Intn(24))
			if rng.Intn(3) == 0 {
				if _, err := idx.Delete(ctx, id); err != nil {
					t.Fatalf("batch %d: Delete(%d): %v", batch, id, err)
				}
				delete(live, id)
			} else {
				vec := []float32{rng.Float32()*10 - 5, rng.Float32()*10 - 5}
				if err := idx.Insert(ctx, id, vec); err != nil {
					t.Fatalf("batch %d: Insert(%d): %v", batch, id, err)
				}
				live[id] = true
			}
		}

		if err := idx.Build(ctx, WithSeed(int64(batch))); err != nil {
			t.Fatalf("batch %d: Build: %v", batch, err)
		}
		if err := idx.CheckIntegrity(ctx); err != nil {
			t.Fatalf("batch %d: CheckIntegrity: %v", batch, err)
		}

		for id := range live {
			res, err := idx.Query(ctx).ByItem(id).Limit(10).WithSearchK(10000).Execute()
			if err != nil {
				t.Fatalf("batch %d: query by item %d: %v", batch, id, err)
			}
			found := false
			for _, m := range res.Results {
				if m.ID == id {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("batch %d: item %d missing from its own neighbor list", batch, id)
			}
		}
	}
}
