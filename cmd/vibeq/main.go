// Package main provides the vibeq CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/alexlhtam/vibeq/internal/catalog"
	"github.com/alexlhtam/vibeq/internal/core"
	"github.com/alexlhtam/vibeq/internal/filter"
	httpserver "github.com/alexlhtam/vibeq/internal/http"
	"github.com/alexlhtam/vibeq/internal/lyrics"
	"github.com/alexlhtam/vibeq/internal/queue"
	"github.com/alexlhtam/vibeq/internal/store"
	"github.com/alexlhtam/vibeq/internal/suggest"
	"github.com/alexlhtam/vibeq/internal/token"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vibeq",
	Short: "VibeQ - party jukebox with host-moderated queue",
	Long: `VibeQ is a party jukebox service: guests search Spotify and submit song
requests, the host approves them into an ordered playback queue, and an
optional content filter keeps explicit tracks off the party.`,
	RunE: runVibeq,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "OAuth redirect URL")
	rootCmd.PersistentFlags().String("lyrics-api-key", "", "lyrics provider API key")
	rootCmd.PersistentFlags().String("db-path", "./vibeq.db", "SQLite database path")
	rootCmd.PersistentFlags().String("room-code", "PARTY", "party room code")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("VIBEQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Catalog.ClientID = viper.GetString("spotify-client-id")
	cfg.Catalog.ClientSecret = viper.GetString("spotify-client-secret")
	if url := viper.GetString("spotify-redirect-url"); url != "" {
		cfg.Catalog.RedirectURL = url
	}

	cfg.Lyrics.APIKey = viper.GetString("lyrics-api-key")
	if url := viper.GetString("lyrics-base-url"); url != "" {
		cfg.Lyrics.BaseURL = url
	}

	if host := viper.GetString("server-host"); host != "" {
		cfg.Server.Host = host
	}
	cfg.Server.Port = viper.GetInt("server-port")

	if path := viper.GetString("db-path"); path != "" {
		cfg.Store.Path = path
	}

	cfg.Log.Level = viper.GetString("log-level")

	if room := viper.GetString("room-code"); room != "" {
		cfg.App.RoomCode = room
	}

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runVibeq(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting VibeQ",
		zap.String("room", config.App.RoomCode),
		zap.String("db", config.Store.Path))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	db, err := store.Open(config.Store.Path, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	party, err := db.EnsureParty(ctx, config.App.RoomCode)
	if err != nil {
		return fmt.Errorf("failed to ensure party: %w", err)
	}

	tokens := token.NewManager(&config.Catalog, db, logger.Named("token"))
	catalogClient := catalog.NewSpotifyClient(tokens.TokenSource(ctx), config.App.SearchLimit, logger.Named("catalog"))
	lyricsClient := lyrics.NewClient(&config.Lyrics, logger.Named("lyrics"))
	contentFilter := filter.New(db, lyricsClient, logger.Named("filter"))
	engine := queue.NewEngine(db, contentFilter, logger.Named("queue"))
	suggester := suggest.NewGenerator(db, catalogClient, contentFilter, &config.App, logger.Named("suggest"))

	httpServer := httpserver.NewServer(
		&config.Server,
		party,
		engine,
		catalogClient,
		contentFilter,
		suggester,
		tokens,
		db,
		logger.Named("http"),
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				visible, err := engine.Visible(gCtx, party)
				if err != nil {
					logger.Warn("Failed to sample queue size", zap.Error(err))
					continue
				}
				httpServer.SetQueueSize(len(visible))
			}
		}
	})

	logger.Info("VibeQ started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("VibeQ stopped with error", zap.Error(err))
		return err
	}

	logger.Info("VibeQ stopped gracefully")
	return nil
}

func validateConfig() error {
	if config.Catalog.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}

	if config.Catalog.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}

	if config.App.RoomCode == "" {
		return fmt.Errorf("room code is required")
	}

	return nil
}
