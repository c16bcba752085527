// Package catalog provides the Spotify-backed track catalog client used for
// guest search and artist suggestions.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/alexlhtam/vibeq/internal/core"
	"github.com/alexlhtam/vibeq/pkg/textnorm"
)

// minQueryLength is the minimum number of runes in a search query; shorter
// queries return no results instead of spamming the provider.
const minQueryLength = 3

// SpotifyClient implements core.CatalogClient over the Spotify Web API. All
// provider failures degrade to empty results wrapped in
// core.ErrCatalogUnavailable; the queue stays usable when the catalog is
// down.
type SpotifyClient struct {
	client      *spotify.Client
	logger      *zap.Logger
	searchLimit int
}

// NewSpotifyClient builds a client on top of a token source, typically the
// token manager's adapter. The underlying HTTP client pulls a fresh access
// token per request.
func NewSpotifyClient(tokens oauth2.TokenSource, searchLimit int, logger *zap.Logger) *SpotifyClient {
	httpClient := oauth2.NewClient(context.Background(), tokens)
	return &SpotifyClient{
		client:      spotify.New(httpClient),
		logger:      logger,
		searchLimit: searchLimit,
	}
}

// Search returns candidate tracks for a free-text query.
func (c *SpotifyClient) Search(ctx context.Context, query string) ([]core.Track, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minQueryLength {
		return nil, nil
	}

	results, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
		spotify.Limit(c.searchLimit))
	if err != nil {
		c.logger.Warn("Catalog search failed", zap.String("query", query), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
	}

	return c.collectTracks(results, c.searchLimit), nil
}

// SearchByArtist returns up to limit tracks by the named artist.
func (c *SpotifyClient) SearchByArtist(ctx context.Context, artist string, limit int) ([]core.Track, error) {
	folded := textnorm.Fold(artist)
	if folded == "" {
		return nil, nil
	}

	results, err := c.client.Search(ctx, fmt.Sprintf("artist:%q", folded),
		spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		c.logger.Warn("Catalog artist search failed", zap.String("artist", artist), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
	}

	return c.collectTracks(results, limit), nil
}

func (c *SpotifyClient) collectTracks(results *spotify.SearchResult, limit int) []core.Track {
	if results == nil || results.Tracks == nil {
		return nil
	}

	var tracks []core.Track
	for i := range results.Tracks.Tracks {
		if len(tracks) >= limit {
			break
		}
		tracks = append(tracks, convertTrack(&results.Tracks.Tracks[i]))
	}
	return tracks
}

// convertTrack maps a provider track onto the domain type, tolerating
// missing fields: artwork defaults to "", explicit to false.
func convertTrack(track *spotify.FullTrack) core.Track {
	artist := ""
	if len(track.Artists) > 0 {
		var names []string
		for _, a := range track.Artists {
			names = append(names, a.Name)
		}
		artist = strings.Join(names, ", ")
	}

	artwork := ""
	if len(track.Album.Images) > 0 {
		artwork = track.Album.Images[0].URL
	}

	return core.Track{
		ID:         string(track.ID),
		Title:      track.Name,
		Artist:     artist,
		ArtworkURL: artwork,
		DurationMS: int(track.Duration),
		Explicit:   track.Explicit,
	}
}
