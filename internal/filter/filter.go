// Package filter decides whether tracks are blocked, allowed or annotated
// based on admin settings and optional lyrics analysis.
package filter

import (
	"context"

	"go.uber.org/zap"

	"github.com/alexlhtam/vibeq/internal/core"
	"github.com/alexlhtam/vibeq/pkg/textnorm"
)

// denylist holds the words and phrases that disqualify lyrics from being
// PG-safe. Matching is whole-word over folded text.
var denylist = []string{
	"fuck",
	"motherfucker",
	"shit",
	"bitch",
	"asshole",
	"cunt",
	"nigga",
	"cocaine",
	"heroin",
	"kill yourself",
	"slit your",
}

// LyricsCheck is the outcome of a PG-safety determination. FlaggedWords
// lists the specific denylist hits for audit logging.
type LyricsCheck struct {
	PGSafe       bool     `json:"is_pg_safe"`
	FlaggedWords []string `json:"flagged_words"`
}

// Filter applies the admin content policy. Every dependency failure
// degrades to allowing the content through (degrade: allow); only explicit
// policy hits reject.
type Filter struct {
	settings core.SettingsStore
	lyrics   core.LyricsService
	logger   *zap.Logger
}

func New(settings core.SettingsStore, lyrics core.LyricsService, logger *zap.Logger) *Filter {
	return &Filter{
		settings: settings,
		lyrics:   lyrics,
		logger:   logger,
	}
}

// Admit is the submission gate: an explicit track while block_explicit is
// enabled is rejected with core.ErrExplicitBlocked. Everything else passes.
func (f *Filter) Admit(ctx context.Context, track core.Track) error {
	blockExplicit, err := f.settings.GetBool(ctx, core.SettingBlockExplicit)
	if err != nil {
		f.logger.Warn("Could not read block_explicit, admitting", zap.Error(err))
		return nil
	}

	if blockExplicit && track.Explicit {
		f.logger.Info("Submission rejected by explicit policy",
			zap.String("trackID", track.ID),
			zap.String("title", track.Title))
		return core.ErrExplicitBlocked
	}
	return nil
}

// Annotate applies the search-result policy: explicit tracks are marked
// blocked but kept visible to the host; tracks with non-PG lyrics are
// dropped when block_pg is enabled and the lyrics service is configured.
func (f *Filter) Annotate(ctx context.Context, tracks []core.Track) []core.Track {
	blockExplicit, err := f.settings.GetBool(ctx, core.SettingBlockExplicit)
	if err != nil {
		f.logger.Warn("Could not read block_explicit", zap.Error(err))
		blockExplicit = false
	}
	blockPG, err := f.settings.GetBool(ctx, core.SettingBlockPG)
	if err != nil {
		f.logger.Warn("Could not read block_pg", zap.Error(err))
		blockPG = false
	}

	checkLyrics := blockPG && f.lyrics != nil && f.lyrics.Configured()
	if blockPG && !checkLyrics {
		f.logger.Debug("block_pg set but lyrics service not configured, degrade=allow")
	}

	result := make([]core.Track, 0, len(tracks))
	for _, track := range tracks {
		if blockExplicit {
			track.Blocked = track.Explicit
		}

		if checkLyrics {
			check := f.CheckLyrics(ctx, track.Title, track.Artist)
			if !check.PGSafe {
				f.logger.Info("Track dropped by lyrics policy",
					zap.String("trackID", track.ID),
					zap.String("title", track.Title),
					zap.Strings("flaggedWords", check.FlaggedWords))
				continue
			}
		}

		result = append(result, track)
	}
	return result
}

// CheckLyrics determines PG safety for a track. Missing lyrics are safe
// (fail open, never block on missing data); found lyrics are folded and
// scanned against the denylist, and the provider's own explicit flag also
// disqualifies.
func (f *Filter) CheckLyrics(ctx context.Context, title, artist string) LyricsCheck {
	safe := LyricsCheck{PGSafe: true, FlaggedWords: []string{}}

	if f.lyrics == nil || !f.lyrics.Configured() {
		return safe
	}

	result, err := f.lyrics.Lookup(ctx, title, artist)
	if err != nil || !result.Found {
		// degrade: allow
		return safe
	}

	var flagged []string
	for _, term := range denylist {
		if textnorm.ContainsTerm(result.Lyrics, term) {
			flagged = append(flagged, term)
		}
	}

	if len(flagged) == 0 && !result.Explicit {
		return safe
	}
	return LyricsCheck{PGSafe: false, FlaggedWords: flagged}
}
