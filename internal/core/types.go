package core

import (
	"context"
)

// PartyID identifies the active playback context. A single party is created
// at startup, but every operation takes the handle explicitly so nothing in
// the core depends on global state.
type PartyID int64

// RequestStatus is the lifecycle state of a SongRequest.
type RequestStatus string

const (
	// StatusPending is the initial state of every submitted request.
	StatusPending RequestStatus = "PENDING"
	// StatusApproved means the host accepted the request into the playback order.
	StatusApproved RequestStatus = "APPROVED"
	// StatusRejected is terminal; the request never entered the playback order.
	StatusRejected RequestStatus = "REJECTED"
	// StatusCompleted is terminal; the track was played and is kept as history.
	StatusCompleted RequestStatus = "COMPLETED"
)

// Track is a candidate track as returned by the catalog.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	ArtworkURL string `json:"artwork_url"`
	DurationMS int    `json:"duration_ms"`
	Explicit   bool   `json:"explicit"`
	// Blocked is set by the content filter on search results when
	// block_explicit is enabled; the track stays visible to the host.
	Blocked bool `json:"blocked,omitempty"`
}

// SongRequest is one guest submission and its lifecycle state.
type SongRequest struct {
	ID         int64         `json:"id"`
	Party      PartyID       `json:"-"`
	TrackID    string        `json:"track_id"`
	Title      string        `json:"title"`
	Artist     string        `json:"artist"`
	ArtworkURL string        `json:"artwork_url"`
	DurationMS int           `json:"duration_ms"`
	Explicit   bool          `json:"explicit"`
	Status     RequestStatus `json:"status"`
	// Position is the playback rank. Meaningful only while APPROVED;
	// zero otherwise.
	Position int `json:"position"`
}

// Credential holds the host's catalog tokens. There is exactly one row,
// created on first authorization and updated in place on every refresh.
type Credential struct {
	ID           int64
	AccessToken  string
	RefreshToken string
	// ExpiresAt is seconds since epoch. Set whenever AccessToken is set.
	ExpiresAt int64
}

// LyricsResult is the outcome of a lyrics lookup.
type LyricsResult struct {
	Found    bool
	Lyrics   string
	Explicit bool
}

// CatalogClient searches the external music catalog. Implementations must
// tolerate missing provider fields and degrade failures to empty results.
type CatalogClient interface {
	Search(ctx context.Context, query string) ([]Track, error)
	SearchByArtist(ctx context.Context, artist string, limit int) ([]Track, error)
}

// LyricsService looks up lyrics text for a track. Configured reports whether
// the service can be used at all; unconfigured services fail open.
type LyricsService interface {
	Configured() bool
	Lookup(ctx context.Context, title, artist string) (LyricsResult, error)
}

// SettingsStore is the key/value settings surface consulted by the content
// filter. Keys are created lazily on first write.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	GetBool(ctx context.Context, key string) (bool, error)
}

// Settings keys consulted by the content filter.
const (
	SettingBlockExplicit = "block_explicit"
	SettingBlockPG       = "block_pg"
)
