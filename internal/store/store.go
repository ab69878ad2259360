// Package store provides a thin bbolt wrapper for shelfindex's local data store.
//
// The store is an intentional snapshot accumulator, not a transparent cache.
// Price records are written explicitly by fetch and import, and queries can
// then run offline against the frozen snapshot. No TTL, no auto-invalidation.
//
// Buckets:
//
//	obs         price history per raw variant (seller, sku, catalog id)
//	snapshots   saved index queries for reproducible workflows
//	_meta       internal: schema version, created_at, last fetch
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/source"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 2

// ErrNotFound is returned when a keyed entry does not exist.
var ErrNotFound = errors.New("not found")

// Bucket name constants.
var (
	bucketObs       = []byte("obs")
	bucketSnapshots = []byte("snapshots")
	bucketInternal  = []byte("_meta")
)

// AllBuckets lists every user-facing bucket for stats and clear operations.
var AllBuckets = []string{"obs", "snapshots"}

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

var _ source.Source = (*Store)(nil)

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := openBolt(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

func openBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketObs, bucketSnapshots, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Price Records ────────────────────────────────────────────────────────────

// VariantKey builds the canonical key for a raw variant.
// Format: seller:<s>|sku:<k>|catalog:<c>. Empty parts are kept so that any
// identity scheme can still be applied when the records are read back.
func VariantKey(v model.Variant) string {
	return "seller:" + strings.ToLower(strings.TrimSpace(v.Seller)) +
		"|sku:" + strings.TrimSpace(v.SKU) +
		"|catalog:" + strings.TrimSpace(v.CatalogID)
}

// storedPrice is one reading on disk.
type storedPrice struct {
	ObservedAt time.Time `json:"t"`
	Price      float64   `json:"p"`
}

// storedVariant is the on-disk envelope for one variant's price history.
// Prices are kept sorted by ObservedAt with no duplicate timestamps.
type storedVariant struct {
	Variant   model.Variant `json:"variant"`
	UpdatedAt time.Time     `json:"updated_at"`
	Prices    []storedPrice `json:"prices"`
}

// PutRecords merges records into the store in a single transaction.
// A reading whose timestamp already exists for the variant replaces the
// stored price. It returns the number of newly added readings.
func (s *Store) PutRecords(records []model.PriceRecord) (int, error) {
	byKey := make(map[string][]model.PriceRecord)
	for _, r := range records {
		k := VariantKey(r.Variant)
		byKey[k] = append(byKey[k], r)
	}

	added := 0
	now := time.Now().UTC()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketObs)
		for key, recs := range byKey {
			var sv storedVariant
			if v := b.Get([]byte(key)); v != nil {
				if err := json.Unmarshal(v, &sv); err != nil {
					return fmt.Errorf("decoding %s: %w", key, err)
				}
			}
			n := mergePrices(&sv, recs)
			added += n
			sv.UpdatedAt = now

			data, err := json.Marshal(sv)
			if err != nil {
				return fmt.Errorf("encoding %s: %w", key, err)
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketInternal).Put([]byte("last_write"), []byte(now.Format(time.RFC3339)))
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// mergePrices folds recs into sv and returns how many timestamps were new.
// Variant fields are taken from the last record in recs.
func mergePrices(sv *storedVariant, recs []model.PriceRecord) int {
	byTime := make(map[int64]int, len(sv.Prices))
	for i, p := range sv.Prices {
		byTime[p.ObservedAt.UnixNano()] = i
	}
	added := 0
	for _, r := range recs {
		sv.Variant = r.Variant
		ts := r.ObservedAt.UTC()
		if i, ok := byTime[ts.UnixNano()]; ok {
			sv.Prices[i].Price = r.Price
			continue
		}
		byTime[ts.UnixNano()] = len(sv.Prices)
		sv.Prices = append(sv.Prices, storedPrice{ObservedAt: ts, Price: r.Price})
		added++
	}
	sort.SliceStable(sv.Prices, func(i, j int) bool {
		return sv.Prices[i].ObservedAt.Before(sv.Prices[j].ObservedAt)
	})
	return added
}

// Observations returns every stored reading whose variant name matches
// nameFilter. It satisfies source.Source, so queries can run against the
// local snapshot.
func (s *Store) Observations(ctx context.Context, nameFilter string) ([]model.PriceRecord, error) {
	var out []model.PriceRecord
	err := s.forEachVariant(nameFilter, func(sv storedVariant) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, p := range sv.Prices {
			out = append(out, model.PriceRecord{Variant: sv.Variant, Price: p.Price, ObservedAt: p.ObservedAt})
		}
		return nil
	})
	return out, err
}

// ListVariants summarises the stored variants matching nameFilter, in key order.
func (s *Store) ListVariants(nameFilter string) ([]model.VariantSummary, error) {
	var out []model.VariantSummary
	err := s.forEachVariant(nameFilter, func(sv storedVariant) error {
		vs := model.VariantSummary{Variant: sv.Variant, Observations: len(sv.Prices)}
		if n := len(sv.Prices); n > 0 {
			vs.First = sv.Prices[0].ObservedAt
			vs.Last = sv.Prices[n-1].ObservedAt
			vs.LastPrice = sv.Prices[n-1].Price
		}
		out = append(out, vs)
		return nil
	})
	return out, err
}

// DeleteVariants removes every variant whose name matches nameFilter.
// An empty filter is rejected; use ClearBucket to drop everything.
func (s *Store) DeleteVariants(nameFilter string) (int, error) {
	if strings.TrimSpace(nameFilter) == "" {
		return 0, errors.New("delete requires a name filter")
	}
	var keys [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObs).ForEach(func(k, v []byte) error {
			var sv storedVariant
			if err := json.Unmarshal(v, &sv); err != nil {
				return fmt.Errorf("decoding %s: %w", k, err)
			}
			if source.MatchName(sv.Variant.Name, nameFilter) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketObs)
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return len(keys), err
}

func (s *Store) forEachVariant(nameFilter string, fn func(storedVariant) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObs).ForEach(func(k, v []byte) error {
			var sv storedVariant
			if err := json.Unmarshal(v, &sv); err != nil {
				return fmt.Errorf("decoding %s: %w", k, err)
			}
			if !source.MatchName(sv.Variant.Name, nameFilter) {
				return nil
			}
			return fn(sv)
		})
	})
}

// ─── Snapshots ────────────────────────────────────────────────────────────────

// Snapshot represents a saved index query for reproducible workflows.
type Snapshot struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CommandLine string    `json:"command_line"`
	CreatedAt   time.Time `json:"created_at"`
}

// PutSnapshot saves a snapshot. The key is snap:<ID>.
func (s *Store) PutSnapshot(snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte("snap:"+snap.ID), b)
	})
}

// GetSnapshot retrieves a snapshot by ID.
func (s *Store) GetSnapshot(id string) (Snapshot, bool, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get([]byte("snap:" + id))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &snap)
	})
	if err != nil {
		return snap, false, err
	}
	return snap, snap.ID != "", nil
}

// ListSnapshots returns all snapshots ordered by creation time.
func (s *Store) ListSnapshots() ([]Snapshot, error) {
	var snaps []Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, v []byte) error {
			var snap Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			snaps = append(snaps, snap)
			return nil
		})
	})
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })
	return snaps, err
}

// DeleteSnapshot removes a snapshot by ID.
func (s *Store) DeleteSnapshot(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		if b.Get([]byte("snap:"+id)) == nil {
			return fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
		}
		return b.Delete([]byte("snap:" + id))
	})
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all user-facing buckets,
// sorted by name.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			var bytes int64
			if err := b.ForEach(func(k, v []byte) error {
				count++
				bytes += int64(len(k) + len(v))
				return nil
			}); err != nil {
				return err
			}
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: bytes})
		}
		return nil
	})
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	known := false
	for _, b := range AllBuckets {
		if b == name {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown bucket %q (use %s)", name, strings.Join(AllBuckets, ", "))
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the database into a fresh file and swaps it in place,
// returning the file size before and after. The Store stays usable.
func (s *Store) Compact() (before, after int64, err error) {
	path := s.db.Path()
	fi, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	before = fi.Size()

	tmp := path + ".compact"
	_ = os.Remove(tmp)
	dst, err := openBolt(tmp)
	if err != nil {
		return 0, 0, err
	}
	if err := bolt.Compact(dst, s.db, 64<<20); err != nil {
		dst.Close()
		os.Remove(tmp)
		return 0, 0, fmt.Errorf("copying pages: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return 0, 0, err
	}
	if err := s.db.Close(); err != nil {
		return 0, 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		if db, rerr := openBolt(path); rerr == nil {
			s.db = db
		}
		return 0, 0, fmt.Errorf("replacing db: %w", err)
	}

	db, err := openBolt(path)
	if err != nil {
		return 0, 0, err
	}
	s.db = db

	fi, err = os.Stat(path)
	if err != nil {
		return before, 0, err
	}
	return before, fi.Size(), nil
}
