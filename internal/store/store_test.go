package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// testDB opens a fresh isolated database in t.TempDir().
// It is closed and deleted automatically when the test ends.
func testDB(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var t0 = time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

// makeRecords builds daily readings for one variant.
func makeRecords(seller, sku, name string, prices ...float64) []model.PriceRecord {
	out := make([]model.PriceRecord, len(prices))
	for i, p := range prices {
		out[i] = model.PriceRecord{
			Variant:    model.Variant{CatalogID: "gtin-" + sku, Seller: seller, SKU: sku, Name: name},
			Price:      p,
			ObservedAt: t0.AddDate(0, 0, i),
		}
	}
	return out
}

// ─── Open / Path ──────────────────────────────────────────────────────────────

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open with nested path: %v", err)
	}
	defer s.Close()
	if s.Path() != path {
		t.Errorf("Path: expected %q, got %q", path, s.Path())
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.PutRecords(makeRecords("shopa", "m1", "Milk", 1, 2)); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}
	s.Close()

	s, err = store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Observations(context.Background(), "")
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 records after reopen, got %d", len(got))
	}
}

// ─── VariantKey ───────────────────────────────────────────────────────────────

func TestVariantKeyNormalisesSeller(t *testing.T) {
	a := store.VariantKey(model.Variant{Seller: "ShopA ", SKU: "m1"})
	b := store.VariantKey(model.Variant{Seller: "shopa", SKU: "m1"})
	if a != b {
		t.Errorf("expected equal keys, got %q and %q", a, b)
	}
}

func TestVariantKeyDistinct(t *testing.T) {
	a := store.VariantKey(model.Variant{Seller: "shopa", SKU: "m1", CatalogID: "1"})
	b := store.VariantKey(model.Variant{Seller: "shopa", SKU: "m1", CatalogID: "2"})
	if a == b {
		t.Error("different catalog ids must not share a key")
	}
}

// ─── Price Records ────────────────────────────────────────────────────────────

func TestPutRecordsMergesAndDedupes(t *testing.T) {
	s := testDB(t)
	added, err := s.PutRecords(makeRecords("shopa", "m1", "Milk", 10, 11, 12))
	if err != nil {
		t.Fatalf("PutRecords: %v", err)
	}
	if added != 3 {
		t.Errorf("first write: expected 3 added, got %d", added)
	}

	// Same three timestamps with one changed price, plus a fourth day.
	again := makeRecords("shopa", "m1", "Milk", 10, 99, 12, 13)
	added, err = s.PutRecords(again)
	if err != nil {
		t.Fatalf("PutRecords: %v", err)
	}
	if added != 1 {
		t.Errorf("second write: expected 1 added, got %d", added)
	}

	got, err := s.Observations(context.Background(), "milk")
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 readings, got %d", len(got))
	}
	if got[1].Price != 99 {
		t.Errorf("replaced price: expected 99, got %g", got[1].Price)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].ObservedAt.After(got[i-1].ObservedAt) {
			t.Errorf("readings not sorted at %d", i)
		}
	}
}

func TestPutRecordsOutOfOrder(t *testing.T) {
	s := testDB(t)
	recs := makeRecords("shopa", "m1", "Milk", 1, 2, 3)
	recs[0], recs[2] = recs[2], recs[0]
	if _, err := s.PutRecords(recs); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}
	got, _ := s.Observations(context.Background(), "")
	if got[0].Price != 1 || got[2].Price != 3 {
		t.Errorf("expected readings sorted by time, got %+v", got)
	}
}

func TestObservationsFilter(t *testing.T) {
	s := testDB(t)
	_, _ = s.PutRecords(makeRecords("shopa", "m1", "Whole Milk", 1, 2))
	_, _ = s.PutRecords(makeRecords("shopa", "b1", "Rye Bread", 3))

	got, err := s.Observations(context.Background(), "BREAD")
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(got) != 1 || got[0].Variant.Name != "Rye Bread" {
		t.Errorf("unexpected records: %+v", got)
	}
}

func TestListVariants(t *testing.T) {
	s := testDB(t)
	_, _ = s.PutRecords(makeRecords("shopa", "m1", "Whole Milk", 1, 2, 3))
	_, _ = s.PutRecords(makeRecords("shopb", "m7", "Skim Milk", 4))

	vs, err := s.ListVariants("")
	if err != nil {
		t.Fatalf("ListVariants: %v", err)
	}
	if len(vs) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(vs))
	}
	first := vs[0]
	if first.Variant.Seller != "shopa" || first.Observations != 3 || first.LastPrice != 3 {
		t.Errorf("unexpected summary: %+v", first)
	}
	if !first.Last.After(first.First) {
		t.Error("Last should be after First")
	}
}

func TestDeleteVariants(t *testing.T) {
	s := testDB(t)
	_, _ = s.PutRecords(makeRecords("shopa", "m1", "Whole Milk", 1))
	_, _ = s.PutRecords(makeRecords("shopa", "b1", "Rye Bread", 1))

	if _, err := s.DeleteVariants(""); err == nil {
		t.Error("expected empty filter to be rejected")
	}
	n, err := s.DeleteVariants("milk")
	if err != nil {
		t.Fatalf("DeleteVariants: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
	vs, _ := s.ListVariants("")
	if len(vs) != 1 || vs[0].Variant.Name != "Rye Bread" {
		t.Errorf("unexpected remaining variants: %+v", vs)
	}
}

func TestObservationsCancelled(t *testing.T) {
	s := testDB(t)
	_, _ = s.PutRecords(makeRecords("shopa", "m1", "Milk", 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Observations(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// ─── Snapshots ────────────────────────────────────────────────────────────────

func TestPutGetSnapshot(t *testing.T) {
	s := testDB(t)
	snap := store.Snapshot{
		ID:          "0b7c",
		Name:        "milk weekly",
		CommandLine: "index --filter milk --granularity week",
		CreatedAt:   time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	if err := s.PutSnapshot(snap); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}
	got, found, err := s.GetSnapshot(snap.ID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if !found {
		t.Fatal("snapshot not found after put")
	}
	if got.CommandLine != snap.CommandLine || got.Name != snap.Name {
		t.Errorf("unexpected snapshot: %+v", got)
	}
}

func TestListSnapshotsByCreation(t *testing.T) {
	s := testDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.PutSnapshot(store.Snapshot{ID: "zzz", CreatedAt: base})
	_ = s.PutSnapshot(store.Snapshot{ID: "aaa", CreatedAt: base.Add(time.Hour)})

	snaps, err := s.ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 2 || snaps[0].ID != "zzz" {
		t.Errorf("expected creation order, got %+v", snaps)
	}
}

func TestDeleteSnapshot(t *testing.T) {
	s := testDB(t)
	_ = s.PutSnapshot(store.Snapshot{ID: "DELETEME"})
	if err := s.DeleteSnapshot("DELETEME"); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if _, found, _ := s.GetSnapshot("DELETEME"); found {
		t.Error("snapshot still present after delete")
	}
	if err := s.DeleteSnapshot("DELETEME"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

func TestStatsCountsRows(t *testing.T) {
	s := testDB(t)
	_, _ = s.PutRecords(makeRecords("shopa", "m1", "Milk", 1, 2))
	_, _ = s.PutRecords(makeRecords("shopb", "m2", "Milk", 1))
	_ = s.PutSnapshot(store.Snapshot{ID: "x"})

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	counts := map[string]int{}
	for _, b := range stats {
		counts[b.Name] = b.Count
	}
	if counts["obs"] != 2 || counts["snapshots"] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestClearBucket(t *testing.T) {
	s := testDB(t)
	_, _ = s.PutRecords(makeRecords("shopa", "m1", "Milk", 1))
	if err := s.ClearBucket("obs"); err != nil {
		t.Fatalf("ClearBucket: %v", err)
	}
	got, _ := s.Observations(context.Background(), "")
	if len(got) != 0 {
		t.Errorf("expected empty store, got %d records", len(got))
	}
	if err := s.ClearBucket("_meta"); err == nil {
		t.Error("expected internal bucket to be rejected")
	}
}

func TestClearAll(t *testing.T) {
	s := testDB(t)
	_, _ = s.PutRecords(makeRecords("shopa", "m1", "Milk", 1))
	_ = s.PutSnapshot(store.Snapshot{ID: "x"})
	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	stats, _ := s.Stats()
	for _, b := range stats {
		if b.Count != 0 {
			t.Errorf("bucket %s not empty: %d", b.Name, b.Count)
		}
	}
}

func TestCompactKeepsData(t *testing.T) {
	s := testDB(t)
	var recs []model.PriceRecord
	for i := 0; i < 50; i++ {
		recs = append(recs, makeRecords("shopa", "sku"+string(rune('a'+i%26))+string(rune('a'+i/26)), "Milk", 1, 2, 3)...)
	}
	if _, err := s.PutRecords(recs); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}
	if err := s.ClearBucket("snapshots"); err != nil {
		t.Fatalf("ClearBucket: %v", err)
	}

	before, after, err := s.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if before <= 0 || after <= 0 {
		t.Errorf("expected positive sizes, got %d → %d", before, after)
	}
	got, err := s.Observations(context.Background(), "")
	if err != nil {
		t.Fatalf("Observations after compact: %v", err)
	}
	if len(got) != 150 {
		t.Errorf("expected 150 readings after compact, got %d", len(got))
	}
}
