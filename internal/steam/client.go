// Package steam provides a rate-limited, cache-augmented client for the
// Steam Web API and the Steam store API. All outbound calls pass through a
// fixed-capacity permit gate, the primary defense against provider-side
// throttling.
package steam

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/trophydeck/trophydeck-server/internal/cache"
	"github.com/trophydeck/trophydeck-server/internal/domain"
	"github.com/trophydeck/trophydeck-server/internal/ratelimit"
)

const (
	defaultAPIBase   = "https://api.steampowered.com"
	defaultStoreBase = "https://store.steampowered.com/api"

	// Concurrency and pacing defaults.
	defaultMaxRequests = 6
	defaultRPS         = 6.0

	// HTTP client defaults.
	defaultRequestTimeout = 15 * time.Second
	defaultConnectTimeout = 5 * time.Second

	// In-memory cache defaults. Summaries are user-scoped and short-lived;
	// schemas change rarely and live longer.
	defaultAchievementTTL       = 5 * time.Minute
	defaultSchemaTTL            = time.Hour
	defaultAchievementCacheSize = 100
	defaultSchemaCacheSize      = 50
)

// MetadataCache is the disk-backed cache for slow-changing app metadata.
// Get returns nil, nil on a miss or expired entry.
type MetadataCache interface {
	GetCachedMetadata(ctx context.Context, gameID int64) (*domain.GameMetadata, error)
	SetCachedMetadata(ctx context.Context, gameID int64, md *domain.GameMetadata) error
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	APIKey string
	UserID string

	MaxConcurrentRequests int
	RequestsPerSecond     float64
	RequestTimeout        time.Duration
	ConnectTimeout        time.Duration

	AchievementTTL       time.Duration
	SchemaTTL            time.Duration
	AchievementCacheSize int
	SchemaCacheSize      int

	// MetadataCache is optional; without it every metadata lookup is live.
	MetadataCache MetadataCache
}

// Client is a rate-limited Steam Web API client with in-memory TTL caches
// for achievement summaries and game schemas.
type Client struct {
	http   *http.Client
	gate   *ratelimit.Gate
	logger *slog.Logger

	apiBase   string
	storeBase string

	mu       sync.RWMutex
	apiKey   string
	userID   string
	shutdown bool

	achievementCache *cache.Cache[string, *domain.GameAchievementSummary]
	schemaCache      *cache.Cache[int64, []rawSchemaAchievement]

	metadataCache MetadataCache
}

// New creates a new Steam client.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.MaxConcurrentRequests <= 0 {
		opts.MaxConcurrentRequests = defaultMaxRequests
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRPS
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.AchievementTTL <= 0 {
		opts.AchievementTTL = defaultAchievementTTL
	}
	if opts.SchemaTTL <= 0 {
		opts.SchemaTTL = defaultSchemaTTL
	}
	if opts.AchievementCacheSize <= 0 {
		opts.AchievementCacheSize = defaultAchievementCacheSize
	}
	if opts.SchemaCacheSize <= 0 {
		opts.SchemaCacheSize = defaultSchemaCacheSize
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: opts.ConnectTimeout,
		}).DialContext,
		MaxIdleConns:        opts.MaxConcurrentRequests,
		MaxConnsPerHost:     opts.MaxConcurrentRequests,
		TLSHandshakeTimeout: opts.ConnectTimeout,
	}

	return &Client{
		http: &http.Client{
			Timeout:   opts.RequestTimeout,
			Transport: transport,
		},
		gate:             ratelimit.NewGate(opts.MaxConcurrentRequests, opts.RequestsPerSecond, opts.MaxConcurrentRequests),
		logger:           logger,
		apiBase:          defaultAPIBase,
		storeBase:        defaultStoreBase,
		apiKey:           opts.APIKey,
		userID:           opts.UserID,
		achievementCache: cache.New[string, *domain.GameAchievementSummary](opts.AchievementCacheSize, opts.AchievementTTL),
		schemaCache:      cache.New[int64, []rawSchemaAchievement](opts.SchemaCacheSize, opts.SchemaTTL),
		metadataCache:    opts.MetadataCache,
	}
}

// SetCredentials replaces the API key and user ID. Both in-memory caches are
// cleared since cached summaries are scoped to the previous user.
func (c *Client) SetCredentials(apiKey, userID string) {
	c.mu.Lock()
	c.apiKey = apiKey
	c.userID = userID
	c.mu.Unlock()

	c.achievementCache.Clear()
	c.schemaCache.Clear()
	c.logger.Info("steam credentials updated", "user_configured", userID != "")
}

// credentials returns the configured key and user, failing fast when either
// is missing so no network call is attempted.
func (c *Client) credentials() (apiKey, userID string, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.shutdown {
		return "", "", ErrShutdown
	}
	if c.apiKey == "" || c.userID == "" {
		return "", "", ErrMissingCredentials
	}
	return c.apiKey, c.userID, nil
}

// Invalidate clears the in-memory achievement cache for one game (including
// its schema) or, when gameID is zero, clears both caches entirely. The disk
// metadata cache is never touched.
func (c *Client) Invalidate(gameID int64) {
	if gameID == 0 {
		c.achievementCache.Clear()
		c.schemaCache.Clear()
		c.logger.Info("cleared all in-memory caches")
		return
	}

	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()

	c.achievementCache.Delete(summaryCacheKey(gameID, userID))
	c.schemaCache.Delete(gameID)
	c.logger.Info("cleared in-memory caches for game", "game_id", gameID)
}

// Shutdown releases the network transport and clears both in-memory caches.
// Safe to call multiple times; all subsequent operations fail with ErrShutdown.
func (c *Client) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	c.mu.Unlock()

	// Stop handing out permits before tearing the transport down so no new
	// request can race the close.
	c.gate.Close()
	c.http.CloseIdleConnections()

	c.achievementCache.Clear()
	c.schemaCache.Clear()

	c.logger.Info("steam client shut down")
}

// doRequest executes a GET against the given base URL under the request gate.
func (c *Client) doRequest(ctx context.Context, base, path string, query url.Values) ([]byte, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		if err == ratelimit.ErrClosed {
			return nil, ErrShutdown
		}
		return nil, fmt.Errorf("acquire request permit: %w", err)
	}
	defer c.gate.Release()

	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "TrophyDeck/1.0")

	c.logger.Debug("steam request", "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRemoteUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("steam rate limited", "status", resp.StatusCode, "path", path)
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusBadRequest:
		// Steam answers 400 for apps without stat registration; callers
		// decide whether that is an error. Body kept for classification.
		return body, ErrBadRequest
	case resp.StatusCode >= 500:
		return nil, ErrRemoteUnavailable
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrRemoteUnavailable, resp.StatusCode)
	}
}

// summaryCacheKey scopes cached summaries to both game and user.
func summaryCacheKey(gameID int64, userID string) string {
	return fmt.Sprintf("%d:%s", gameID, userID)
}
