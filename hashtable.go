package binder

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/meigma/binder/internal/binio"
	"github.com/meigma/binder/internal/pathhash"
)

// Hash table layout constants. Only these are validated on read.
const (
	hashTableHeaderSize = 0x10
	hashBucketSize      = 8
	hashEntrySize       = 8

	// maxHashBuckets bounds the prime search for the bucket count.
	maxHashBuckets = 100000
	// filesPerBucket is the target load factor of the table.
	filesPerBucket = 7
)

// pathHash is one table record: the hash of a file name and the file's
// index in the container.
type pathHash struct {
	hash  uint32
	index int
}

// hashGroup describes one bucket as a run of the sorted record list.
type hashGroup struct {
	start int
	count int
}

// hashBucketCount returns the smallest prime that is at least
// ceil(fileCount/7).
func hashBucketCount(fileCount int) (int, error) {
	for p := (fileCount + filesPerBucket - 1) / filesPerBucket; p <= maxHashBuckets; p++ {
		if isPrime(p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %d files need more than %d buckets", ErrHashBuckets, fileCount, maxHashBuckets)
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for i := 3; i*i <= n; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}

// buildHashTable buckets every name by hash mod bucket count and returns the
// bucket descriptors with the concatenated records, each bucket sorted by
// ascending hash. Files with equal hashes keep their container order.
func buildHashTable(names []string) ([]hashGroup, []pathHash, error) {
	count, err := hashBucketCount(len(names))
	if err != nil {
		return nil, nil, err
	}

	buckets := make([][]pathHash, count)
	for i, name := range names {
		ph := pathHash{hash: pathhash.Compute(name), index: i}
		b := ph.hash % uint32(count) //nolint:gosec // count ≤ maxHashBuckets
		buckets[b] = append(buckets[b], ph)
	}

	groups := make([]hashGroup, 0, count)
	hashes := make([]pathHash, 0, len(names))
	for _, bucket := range buckets {
		slices.SortStableFunc(bucket, func(a, b pathHash) int {
			return cmp.Compare(a.hash, b.hash)
		})
		groups = append(groups, hashGroup{start: len(hashes), count: len(bucket)})
		hashes = append(hashes, bucket...)
	}
	return groups, hashes, nil
}

// writeHashTable emits the table for headers at the writer's position.
// Formats without names hash every file as the empty name.
func writeHashTable(w *binio.Writer, headers []fileHeader, format Format) error {
	names := make([]string, len(headers))
	if format.HasNames() {
		for i := range headers {
			names[i] = headers[i].Name
		}
	}
	groups, hashes, err := buildHashTable(names)
	if err != nil {
		return err
	}

	w.ReserveInt64("HashesOffset")
	w.Uint32(uint32(len(groups))) //nolint:gosec // bounded by maxHashBuckets
	w.Uint8(hashTableHeaderSize)
	w.Uint8(hashBucketSize)
	w.Uint8(hashEntrySize)
	w.Uint8(0)

	for _, g := range groups {
		w.Int32(int32(g.count)) //nolint:gosec // file count is validated to fit in int32
		w.Int32(int32(g.start)) //nolint:gosec // file count is validated to fit in int32
	}

	w.FillInt64("HashesOffset", w.Pos())
	for _, ph := range hashes {
		w.Uint32(ph.hash)
		w.Int32(int32(ph.index)) //nolint:gosec // file count is validated to fit in int32
	}
	return nil
}

// assertHashTable validates the fixed geometry of the table at the cursor.
// The buckets and records themselves are not read.
func assertHashTable(r *binio.Reader) {
	r.Int64()  // hashes offset
	r.Uint32() // bucket count
	r.AssertUint8("hash table header size", hashTableHeaderSize)
	r.AssertUint8("hash bucket size", hashBucketSize)
	r.AssertUint8("hash entry size", hashEntrySize)
	r.AssertUint8("hash table padding", 0)
}
