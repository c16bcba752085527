// Package suggest derives candidate tracks from the artists already playing
// at the party, excluding anything a guest has requested before.
package suggest

import (
	"context"

	"go.uber.org/zap"

	"github.com/alexlhtam/vibeq/internal/core"
	"github.com/alexlhtam/vibeq/internal/filter"
	"github.com/alexlhtam/vibeq/internal/store"
)

const seenCacheSize = 10000

// Generator fans out catalog searches over the party's approved artists.
// Per-artist catalog failures degrade to skipping that artist; the result is
// best-effort and may be empty.
type Generator struct {
	store   *store.Store
	catalog core.CatalogClient
	filter  *filter.Filter
	seen    *store.SeenTracks
	logger  *zap.Logger

	maxArtists int
	perArtist  int
	limit      int
}

func NewGenerator(s *store.Store, catalog core.CatalogClient, f *filter.Filter,
	cfg *core.AppConfig, logger *zap.Logger) *Generator {
	return &Generator{
		store:      s,
		catalog:    catalog,
		filter:     f,
		seen:       store.NewSeenTracks(seenCacheSize, 0.001),
		logger:     logger,
		maxArtists: cfg.SuggestionArtists,
		perArtist:  cfg.SuggestionPerArtist,
		limit:      cfg.SuggestionLimit,
	}
}

// Suggest returns up to the configured number of candidate tracks. A track
// id ever stored for the party, in any status, is never suggested.
func (g *Generator) Suggest(ctx context.Context, party core.PartyID) ([]core.Track, error) {
	artists, err := g.store.Artists(ctx, party)
	if err != nil {
		return nil, err
	}
	if len(artists) == 0 {
		return nil, nil
	}
	if len(artists) > g.maxArtists {
		// Bounded fan-out: excess artists are silently dropped.
		artists = artists[:g.maxArtists]
	}

	trackIDs, err := g.store.TrackIDs(ctx, party)
	if err != nil {
		return nil, err
	}
	g.seen.Load(trackIDs)

	var candidates []core.Track
	for _, artist := range artists {
		tracks, err := g.catalog.SearchByArtist(ctx, artist, g.perArtist)
		if err != nil {
			g.logger.Warn("Artist search failed, skipping",
				zap.String("artist", artist),
				zap.Error(err))
			continue
		}

		for _, track := range tracks {
			if track.ID == "" || g.seen.Has(track.ID) {
				continue
			}
			candidates = append(candidates, track)
		}
	}

	// De-duplicate by track id, first seen wins, then cap.
	unique := make([]core.Track, 0, len(candidates))
	included := make(map[string]struct{}, len(candidates))
	for _, track := range candidates {
		if _, ok := included[track.ID]; ok {
			continue
		}
		included[track.ID] = struct{}{}
		unique = append(unique, track)
		if len(unique) >= g.limit {
			break
		}
	}

	result := g.filter.Annotate(ctx, unique)

	g.logger.Debug("Suggestions generated",
		zap.Int("artists", len(artists)),
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(result)))
	return result, nil
}
