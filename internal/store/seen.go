package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SeenTracks is a thread-safe membership cache over the catalog track ids a
// party has ever stored. A Bloom filter answers the common "never seen"
// case without touching the backing map; an LRU bounds memory when parties
// run long. The suggestion generator loads it from Store.TrackIDs and
// consults it while fanning out catalog searches.
type SeenTracks struct {
	trackIDs          map[string]struct{}
	bloom             *bloom.BloomFilter
	lru               *lru.Cache[string, struct{}]
	mutex             sync.RWMutex
	maxTracks         int
	falsePositiveRate float64
}

// NewSeenTracks creates a cache bounded to maxTracks entries with the given
// Bloom false positive rate.
func NewSeenTracks(maxTracks int, falsePositiveRate float64) *SeenTracks {
	if maxTracks <= 0 {
		panic("maxTracks must be positive")
	}

	st := &SeenTracks{
		trackIDs:          make(map[string]struct{}),
		bloom:             bloom.NewWithEstimates(uint(maxTracks), falsePositiveRate),
		maxTracks:         maxTracks,
		falsePositiveRate: falsePositiveRate,
	}

	// The LRU decides which id gets dropped at capacity; the eviction
	// callback keeps the membership map aligned with that choice. Callbacks
	// fire inside Add and Purge while st.mutex is already held.
	lruCache, err := lru.NewWithEvict[string, struct{}](maxTracks, func(trackID string, _ struct{}) {
		delete(st.trackIDs, trackID)
	})
	if err != nil {
		panic(err)
	}
	st.lru = lruCache

	return st
}

// Has reports whether the track id is in the cache.
func (st *SeenTracks) Has(trackID string) bool {
	st.mutex.RLock()
	defer st.mutex.RUnlock()

	if !st.bloom.TestString(trackID) {
		return false
	}

	_, exists := st.trackIDs[trackID]
	return exists
}

// Add marks a track id as seen.
func (st *SeenTracks) Add(trackID string) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if _, exists := st.trackIDs[trackID]; exists {
		return
	}

	st.trackIDs[trackID] = struct{}{}
	st.bloom.AddString(trackID)
	st.lru.Add(trackID, struct{}{})
}

// Load replaces the cache contents with the given track ids. Empty ids are
// ignored.
func (st *SeenTracks) Load(trackIDs []string) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	st.reset()

	for _, trackID := range trackIDs {
		if trackID == "" {
			continue
		}
		st.trackIDs[trackID] = struct{}{}
		st.bloom.AddString(trackID)
		st.lru.Add(trackID, struct{}{})
	}
}

// Size returns the number of cached track ids.
func (st *SeenTracks) Size() int {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return len(st.trackIDs)
}

func (st *SeenTracks) reset() {
	// Swap the map before Purge so its eviction callbacks hit the fresh map.
	st.trackIDs = make(map[string]struct{})
	// Bloom filters do not support removal, so rebuild on reload.
	st.bloom = bloom.NewWithEstimates(uint(st.maxTracks), st.falsePositiveRate)
	st.lru.Purge()
}
