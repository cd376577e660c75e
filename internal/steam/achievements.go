package steam

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"net/url"
	"strconv"

	"github.com/trophydeck/trophydeck-server/internal/domain"
)

// Human-readable messages carried on zero-total summaries. These are success
// variants, not failures: the game simply has nothing to aggregate.
const (
	msgNoAchievements  = "no achievements for this game"
	msgNoStatsForGame  = "no stats registered for this game"
	msgRequestedFailed = "requested app has no stats"
)

// FetchGameAchievements returns the achievement summary for one game,
// serving from the in-memory cache when fresh. The schema is fetched first:
// an empty schema short-circuits to a zero-total summary without touching
// the per-player endpoint, which answers 400 for such apps.
func (c *Client) FetchGameAchievements(ctx context.Context, gameID int64) (*domain.GameAchievementSummary, error) {
	if gameID <= 0 {
		return nil, wrapError("achievements", gameID, fmt.Errorf("%w: non-positive game id", ErrBadRequest))
	}

	_, userID, err := c.credentials()
	if err != nil {
		return nil, wrapError("achievements", gameID, err)
	}

	key := summaryCacheKey(gameID, userID)
	if cached, ok := c.achievementCache.Get(key); ok {
		c.logger.Debug("achievement cache hit", "game_id", gameID)
		return cached, nil
	}

	summary, err := c.fetchAchievementsLive(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}

	if err := summary.Normalize(); err != nil {
		return nil, wrapError("achievements", gameID, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err))
	}

	c.achievementCache.Set(key, summary)
	return summary, nil
}

func (c *Client) fetchAchievementsLive(ctx context.Context, gameID int64, userID string) (*domain.GameAchievementSummary, error) {
	schema, err := c.fetchSchema(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(schema) == 0 {
		return &domain.GameAchievementSummary{
			GameID: gameID,
			Error:  msgNoAchievements,
		}, nil
	}

	player, playerErr, err := c.fetchPlayerAchievements(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	if player == nil {
		// success:false with a payload-level error string. The game exists
		// but has no stats registered for this user.
		c.logger.Debug("player achievements unavailable", "game_id", gameID, "reason", playerErr)
		return &domain.GameAchievementSummary{
			GameID: gameID,
			Error:  msgNoStatsForGame,
		}, nil
	}

	// Global percentages are display garnish; a failure here never fails the
	// whole summary.
	percents := c.fetchGlobalPercentages(ctx, gameID)

	unlockedByName := make(map[string]rawPlayerAchievement, len(player))
	for _, a := range player {
		unlockedByName[a.APIName] = a
	}

	records := make([]domain.AchievementRecord, 0, len(schema))
	unlocked := 0
	for _, s := range schema {
		rec := domain.AchievementRecord{
			APIName:       s.Name,
			DisplayName:   s.DisplayName,
			Description:   s.Description,
			IconURL:       s.Icon,
			IconLockedURL: s.IconGray,
			Hidden:        s.Hidden == 1,
		}
		if pa, ok := unlockedByName[s.Name]; ok && pa.Achieved == 1 {
			rec.Unlocked = true
			// Steam reports unlocktime 0 for achievements earned before it
			// tracked timestamps; keep the zero epoch so every unlocked
			// record carries a time.
			ts := pa.UnlockTime
			rec.UnlockTime = &ts
			unlocked++
		}
		if pct, ok := percents[s.Name]; ok {
			v := float64(pct)
			rec.GlobalUnlockPercent = &v
		}
		records = append(records, rec)
	}

	return &domain.GameAchievementSummary{
		GameID:   gameID,
		Total:    len(schema),
		Unlocked: unlocked,
		Records:  records,
	}, nil
}

// fetchSchema returns the achievement schema for a game, cached independently
// of the per-player state since it changes far less often. A game without an
// achievement block yields an empty slice, not an error.
func (c *Client) fetchSchema(ctx context.Context, gameID int64) ([]rawSchemaAchievement, error) {
	if cached, ok := c.schemaCache.Get(gameID); ok {
		c.logger.Debug("schema cache hit", "game_id", gameID)
		return cached, nil
	}

	apiKey, _, err := c.credentials()
	if err != nil {
		return nil, wrapError("schema", gameID, err)
	}

	query := url.Values{
		"key":   {apiKey},
		"appid": {strconv.FormatInt(gameID, 10)},
	}

	body, err := c.doRequest(ctx, c.apiBase, "/ISteamUserStats/GetSchemaForGame/v2/", query)
	if err != nil {
		// Steam answers 400 for unknown or stats-free apps; treat as empty.
		if err == ErrBadRequest {
			c.schemaCache.Set(gameID, nil)
			return nil, nil
		}
		return nil, wrapError("schema", gameID, err)
	}

	var parsed rawSchemaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, wrapError("schema", gameID, fmt.Errorf("%w: decode: %v", ErrRemoteUnavailable, err))
	}

	schema := parsed.Game.AvailableGameStats.Achievements
	c.schemaCache.Set(gameID, schema)
	return schema, nil
}

// fetchPlayerAchievements returns the per-player unlock state. A payload
// carrying success:false is reported via the second return value with a nil
// slice; transport and server failures come back as errors.
func (c *Client) fetchPlayerAchievements(ctx context.Context, gameID int64, userID string) ([]rawPlayerAchievement, string, error) {
	apiKey, _, err := c.credentials()
	if err != nil {
		return nil, "", wrapError("achievements", gameID, err)
	}

	query := url.Values{
		"key":     {apiKey},
		"steamid": {userID},
		"appid":   {strconv.FormatInt(gameID, 10)},
	}

	body, err := c.doRequest(ctx, c.apiBase, "/ISteamUserStats/GetPlayerAchievements/v1/", query)
	if err != nil && err != ErrBadRequest {
		return nil, "", wrapError("achievements", gameID, err)
	}

	var parsed rawPlayerStatsResponse
	if decodeErr := json.Unmarshal(body, &parsed); decodeErr != nil {
		// Even a 400 must carry Steam's success:false payload to count as
		// "no stats"; anything undecodable is a provider failure.
		return nil, "", wrapError("achievements", gameID, fmt.Errorf("%w: decode: %v", ErrRemoteUnavailable, decodeErr))
	}

	if !parsed.PlayerStats.Success {
		reason := parsed.PlayerStats.Error
		if reason == "" {
			reason = msgRequestedFailed
		}
		return nil, reason, nil
	}

	return parsed.PlayerStats.Achievements, "", nil
}

// fetchGlobalPercentages returns community unlock rates keyed by achievement
// API name. Best-effort: any failure yields an empty map.
func (c *Client) fetchGlobalPercentages(ctx context.Context, gameID int64) map[string]flexFloat {
	query := url.Values{
		"gameid": {strconv.FormatInt(gameID, 10)},
	}

	body, err := c.doRequest(ctx, c.apiBase, "/ISteamUserStats/GetGlobalAchievementPercentagesForApp/v2/", query)
	if err != nil {
		c.logger.Debug("global percentages unavailable", "game_id", gameID, "error", err)
		return nil
	}

	var parsed rawGlobalPercentagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Debug("global percentages decode failed", "game_id", gameID, "error", err)
		return nil
	}

	out := make(map[string]flexFloat, len(parsed.AchievementPercentages.Achievements))
	for _, a := range parsed.AchievementPercentages.Achievements {
		out[a.Name] = a.Percent
	}
	return out
}
