package suggest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/alexlhtam/vibeq/internal/core"
	"github.com/alexlhtam/vibeq/internal/filter"
	"github.com/alexlhtam/vibeq/internal/store"
)

type fakeCatalog struct {
	byArtist map[string][]core.Track
	err      error
	calls    []string
}

func (f *fakeCatalog) Search(_ context.Context, _ string) ([]core.Track, error) {
	return nil, nil
}

func (f *fakeCatalog) SearchByArtist(_ context.Context, artist string, limit int) ([]core.Track, error) {
	f.calls = append(f.calls, artist)
	if f.err != nil {
		return nil, f.err
	}
	tracks := f.byArtist[artist]
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

func newTestGenerator(t *testing.T, catalog *fakeCatalog) (*Generator, *store.Store, core.PartyID) {
	t.Helper()

	s, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	party, err := s.EnsureParty(context.Background(), "PARTY")
	if err != nil {
		t.Fatalf("EnsureParty failed: %v", err)
	}

	cfg := &core.AppConfig{
		SuggestionArtists:   5,
		SuggestionPerArtist: 10,
		SuggestionLimit:     20,
	}
	f := filter.New(s, nil, zap.NewNop())
	return NewGenerator(s, catalog, f, cfg, zap.NewNop()), s, party
}

func approveTrack(t *testing.T, s *store.Store, party core.PartyID, trackID, artist string) {
	t.Helper()

	req, err := s.InsertRequest(context.Background(), party, core.Track{ID: trackID, Title: "Song", Artist: artist})
	if err != nil {
		t.Fatalf("InsertRequest failed: %v", err)
	}
	if _, err := s.Approve(context.Background(), party, req.ID); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
}

func TestSuggest_EmptyWithoutApprovedArtists(t *testing.T) {
	catalog := &fakeCatalog{}
	g, _, party := newTestGenerator(t, catalog)

	tracks, err := g.Suggest(context.Background(), party)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(tracks) != 0 {
		t.Errorf("Expected no suggestions, got %d", len(tracks))
	}
	if len(catalog.calls) != 0 {
		t.Errorf("No catalog calls expected without artists, got %v", catalog.calls)
	}
}

func TestSuggest_ExcludesEveryStoredTrack(t *testing.T) {
	catalog := &fakeCatalog{byArtist: map[string][]core.Track{
		"Artist A": {
			{ID: "seen-approved", Artist: "Artist A"},
			{ID: "seen-pending", Artist: "Artist A"},
			{ID: "new-1", Artist: "Artist A"},
		},
	}}
	g, s, party := newTestGenerator(t, catalog)
	ctx := context.Background()

	approveTrack(t, s, party, "seen-approved", "Artist A")
	// A pending request's track must also never be re-suggested.
	if _, err := s.InsertRequest(ctx, party, core.Track{ID: "seen-pending", Artist: "Artist B"}); err != nil {
		t.Fatalf("InsertRequest failed: %v", err)
	}

	tracks, err := g.Suggest(ctx, party)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}

	if len(tracks) != 1 || tracks[0].ID != "new-1" {
		t.Errorf("Expected only new-1, got %v", tracks)
	}
}

func TestSuggest_ArtistFanOutBounded(t *testing.T) {
	catalog := &fakeCatalog{byArtist: map[string][]core.Track{}}
	g, s, party := newTestGenerator(t, catalog)

	for i := 0; i < 8; i++ {
		approveTrack(t, s, party, fmt.Sprintf("t%d", i), fmt.Sprintf("Artist %d", i))
	}

	if _, err := g.Suggest(context.Background(), party); err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(catalog.calls) != 5 {
		t.Errorf("Fan-out should stop at 5 artists, got %d calls", len(catalog.calls))
	}
}

func TestSuggest_DeduplicatesAndCaps(t *testing.T) {
	shared := core.Track{ID: "dup", Artist: "Artist A"}
	var many []core.Track
	for i := 0; i < 30; i++ {
		many = append(many, core.Track{ID: fmt.Sprintf("b%d", i), Artist: "Artist B"})
	}
	catalog := &fakeCatalog{byArtist: map[string][]core.Track{
		"Artist A": {shared, shared},
		"Artist B": many,
	}}
	g, s, party := newTestGenerator(t, catalog)

	approveTrack(t, s, party, "seed-a", "Artist A")
	approveTrack(t, s, party, "seed-b", "Artist B")

	tracks, err := g.Suggest(context.Background(), party)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}

	ids := make(map[string]int)
	for _, track := range tracks {
		ids[track.ID]++
	}
	if ids["dup"] != 1 {
		t.Errorf("Duplicate track id should appear once, got %d", ids["dup"])
	}
	if len(tracks) > 20 {
		t.Errorf("Suggestions exceed cap: %d", len(tracks))
	}
	// First-seen order: the Artist A track precedes Artist B tracks.
	if len(tracks) > 0 && tracks[0].ID != "dup" {
		t.Errorf("First suggestion should be first-seen candidate, got %q", tracks[0].ID)
	}
}

func TestSuggest_CatalogOutageDegradesToEmpty(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("catalog down")}
	g, s, party := newTestGenerator(t, catalog)

	approveTrack(t, s, party, "t1", "Artist A")

	tracks, err := g.Suggest(context.Background(), party)
	if err != nil {
		t.Fatalf("Catalog outage must not be fatal: %v", err)
	}
	if len(tracks) != 0 {
		t.Errorf("Expected empty suggestions on outage, got %v", tracks)
	}
}

func TestSuggest_ExplicitPolicyAnnotatesResults(t *testing.T) {
	catalog := &fakeCatalog{byArtist: map[string][]core.Track{
		"Artist A": {{ID: "new-explicit", Artist: "Artist A", Explicit: true}},
	}}
	g, s, party := newTestGenerator(t, catalog)
	ctx := context.Background()

	approveTrack(t, s, party, "seed", "Artist A")
	if err := s.Set(ctx, core.SettingBlockExplicit, "true"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	tracks, err := g.Suggest(ctx, party)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(tracks) != 1 || !tracks[0].Blocked {
		t.Errorf("Explicit suggestion should be marked blocked, got %v", tracks)
	}
}
