package core

import (
	"time"
)

type Config struct {
	Catalog CatalogConfig
	Lyrics  LyricsConfig
	Server  ServerConfig
	Store   StoreConfig
	Log     LogConfig
	App     AppConfig
}

type CatalogConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// TokenURL and AuthURL are the OAuth endpoints. Overridable for tests.
	TokenURL string
	AuthURL  string
}

type LyricsConfig struct {
	BaseURL string
	APIKey  string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StoreConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	RoomCode            string
	SuggestionArtists   int
	SuggestionPerArtist int
	SuggestionLimit     int
	SearchLimit         int
}

func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			RedirectURL: "http://localhost:8080/auth/callback",
			TokenURL:    "https://accounts.spotify.com/api/token",
			AuthURL:     "https://accounts.spotify.com/authorize",
		},
		Lyrics: LyricsConfig{
			BaseURL: "https://api.lyrics.ovh/v1",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path: "./vibeq.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			RoomCode:            "PARTY",
			SuggestionArtists:   5,
			SuggestionPerArtist: 10,
			SuggestionLimit:     20,
			SearchLimit:         10,
		},
	}
}
