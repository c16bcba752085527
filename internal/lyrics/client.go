// Package lyrics looks up lyrics text for a track. The service is optional:
// without an API key every lookup reports unavailable and the content filter
// fails open.
package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/alexlhtam/vibeq/internal/core"
)

const requestTimeout = 5 * time.Second

type Client struct {
	config *core.LyricsConfig
	logger *zap.Logger
	client *http.Client
}

func NewClient(config *core.LyricsConfig, logger *zap.Logger) *Client {
	return &Client{
		config: config,
		logger: logger,
		client: &http.Client{Timeout: requestTimeout},
	}
}

// Configured reports whether the service can be used. Callers must fail open
// when it is not.
func (c *Client) Configured() bool {
	return c.config.APIKey != "" && c.config.BaseURL != ""
}

type lookupResponse struct {
	Lyrics   string `json:"lyrics"`
	Explicit bool   `json:"explicit"`
}

// Lookup fetches lyrics for (title, artist). A missing track or any
// transport failure is reported as not found, never as a hard error the
// caller should block on.
func (c *Client) Lookup(ctx context.Context, title, artist string) (core.LyricsResult, error) {
	if !c.Configured() {
		return core.LyricsResult{}, nil
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.config.BaseURL,
		url.PathEscape(artist), url.PathEscape(title))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return core.LyricsResult{}, fmt.Errorf("build lyrics request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Lyrics lookup failed",
			zap.String("title", title),
			zap.String("artist", artist),
			zap.Error(err))
		return core.LyricsResult{}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.LyricsResult{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Lyrics service returned error status",
			zap.Int("status", resp.StatusCode))
		return core.LyricsResult{}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.LyricsResult{}, nil
	}

	var parsed lookupResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Warn("Lyrics response not parseable", zap.Error(err))
		return core.LyricsResult{}, nil
	}
	if parsed.Lyrics == "" {
		return core.LyricsResult{}, nil
	}

	return core.LyricsResult{
		Found:    true,
		Lyrics:   parsed.Lyrics,
		Explicit: parsed.Explicit,
	}, nil
}
