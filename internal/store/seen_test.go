package store

import (
	"fmt"
	"testing"
)

func TestSeenTracks_Basic(t *testing.T) {
	seen := NewSeenTracks(100, 0.001)

	if seen.Has("track1") {
		t.Error("Empty cache should not contain any tracks")
	}
	if seen.Size() != 0 {
		t.Errorf("Empty cache size should be 0, got %d", seen.Size())
	}

	seen.Add("track1")
	if !seen.Has("track1") {
		t.Error("Cache should contain track1 after Add")
	}

	seen.Add("track1")
	if seen.Size() != 1 {
		t.Errorf("Duplicate Add should not grow the cache, size = %d", seen.Size())
	}

	seen.Add("track2")
	seen.Add("track3")
	if seen.Size() != 3 {
		t.Errorf("Size = %d, expected 3", seen.Size())
	}
}

func TestSeenTracks_LoadReplaces(t *testing.T) {
	seen := NewSeenTracks(100, 0.001)

	seen.Load([]string{"t1", "t2", "t3"})
	if seen.Size() != 3 {
		t.Errorf("Size after load = %d, expected 3", seen.Size())
	}

	seen.Load([]string{"t4", ""})
	if seen.Size() != 1 {
		t.Errorf("Size after reload = %d, expected 1 (empty ids ignored)", seen.Size())
	}
	if seen.Has("t1") {
		t.Error("Old ids should be gone after reload")
	}
	if !seen.Has("t4") {
		t.Error("New id should be present after reload")
	}
}

func TestSeenTracks_EvictsExactlyTheOldest(t *testing.T) {
	seen := NewSeenTracks(3, 0.001)

	seen.Add("t1")
	seen.Add("t2")
	seen.Add("t3")
	// At capacity: the next Add must drop t1, and only t1.
	seen.Add("t4")

	if seen.Size() != 3 {
		t.Errorf("Size = %d, expected 3", seen.Size())
	}
	if seen.Has("t1") {
		t.Error("Oldest id t1 should be evicted at capacity")
	}
	for _, id := range []string{"t2", "t3", "t4"} {
		if !seen.Has(id) {
			t.Errorf("Id %s should survive the eviction of t1", id)
		}
	}
}

func TestSeenTracks_BoundedEviction(t *testing.T) {
	seen := NewSeenTracks(10, 0.001)

	for i := 0; i < 25; i++ {
		seen.Add(fmt.Sprintf("track%d", i))
	}

	if seen.Size() > 10 {
		t.Errorf("Cache exceeded its bound: size = %d", seen.Size())
	}
	if !seen.Has("track24") {
		t.Error("Most recent id should survive eviction")
	}
}
