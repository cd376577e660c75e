package steam

import (
	"context"
	"encoding/json/v2"
	"net/url"
	"strconv"

	"github.com/trophydeck/trophydeck-server/internal/domain"
)

// FetchGameMetadata returns store-page metadata for a game, served from the
// disk cache when available. Failures degrade to a synthetic placeholder so
// display enrichment never blocks an aggregate.
func (c *Client) FetchGameMetadata(ctx context.Context, gameID int64) (*domain.GameMetadata, error) {
	if gameID <= 0 {
		return nil, wrapError("appDetails", gameID, ErrBadRequest)
	}

	if c.metadataCache != nil {
		cached, err := c.metadataCache.GetCachedMetadata(ctx, gameID)
		if err != nil {
			c.logger.Warn("metadata cache read failed", "game_id", gameID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	md := c.fetchMetadataLive(ctx, gameID)

	if c.metadataCache != nil {
		// Placeholders are cached too: a dead store page stays dead, and
		// caching it avoids hammering the endpoint on every recompute.
		if err := c.metadataCache.SetCachedMetadata(ctx, gameID, md); err != nil {
			c.logger.Warn("metadata cache write failed", "game_id", gameID, "error", err)
		}
	}

	return md, nil
}

func (c *Client) fetchMetadataLive(ctx context.Context, gameID int64) *domain.GameMetadata {
	idStr := strconv.FormatInt(gameID, 10)
	query := url.Values{
		"appids":  {idStr},
		"filters": {"basic,achievements"},
	}

	body, err := c.doRequest(ctx, c.storeBase, "/appdetails", query)
	if err != nil {
		c.logger.Debug("app details unavailable", "game_id", gameID, "error", err)
		return domain.FallbackMetadata(gameID)
	}

	// The store response is an object keyed by the stringified app ID.
	var parsed map[string]rawAppDetailsEntry
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Debug("app details decode failed", "game_id", gameID, "error", err)
		return domain.FallbackMetadata(gameID)
	}

	entry, ok := parsed[idStr]
	if !ok || !entry.Success {
		return domain.FallbackMetadata(gameID)
	}

	name := entry.Data.Name
	if name == "" {
		name = domain.PlaceholderGameName(gameID)
	}

	return &domain.GameMetadata{
		ID:               gameID,
		Name:             name,
		HeaderImage:      entry.Data.HeaderImage,
		HasAchievements:  entry.Data.Achievements.Total > 0,
		AchievementCount: entry.Data.Achievements.Total,
	}
}
