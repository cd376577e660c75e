package steam

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"net/url"
	"strconv"

	"github.com/trophydeck/trophydeck-server/internal/domain"
)

// ListOwnedGames returns the configured user's full game catalog, always
// fetched live. The catalog is the freshness anchor for aggregate staleness
// checks, so it is deliberately never cached.
func (c *Client) ListOwnedGames(ctx context.Context) ([]domain.OwnedGame, error) {
	apiKey, userID, err := c.credentials()
	if err != nil {
		return nil, wrapError("ownedGames", 0, err)
	}

	query := url.Values{
		"key":                       {apiKey},
		"steamid":                   {userID},
		"include_appinfo":           {"1"},
		"include_played_free_games": {"1"},
	}

	body, err := c.doRequest(ctx, c.apiBase, "/IPlayerService/GetOwnedGames/v1/", query)
	if err != nil {
		return nil, wrapError("ownedGames", 0, err)
	}

	var parsed rawOwnedGamesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, wrapError("ownedGames", 0, fmt.Errorf("%w: decode: %v", ErrRemoteUnavailable, err))
	}

	games := make([]domain.OwnedGame, 0, len(parsed.Response.Games))
	for _, g := range parsed.Response.Games {
		if g.AppID <= 0 {
			continue
		}
		name := g.Name
		if name == "" {
			name = domain.PlaceholderGameName(g.AppID)
		}
		games = append(games, domain.OwnedGame{
			ID:                g.AppID,
			Name:              name,
			HasCommunityStats: g.HasCommunityVisibleStats,
			PlaytimeMinutes:   g.PlaytimeForever,
		})
	}

	c.logger.Debug("fetched owned games", "count", len(games))
	return games, nil
}

// ListRecentlyPlayed returns games played in the last two weeks, newest
// playtime first as Steam reports them. count limits the result; zero means
// the provider default.
func (c *Client) ListRecentlyPlayed(ctx context.Context, count int) ([]domain.OwnedGame, error) {
	apiKey, userID, err := c.credentials()
	if err != nil {
		return nil, wrapError("recentlyPlayed", 0, err)
	}

	query := url.Values{
		"key":     {apiKey},
		"steamid": {userID},
	}
	if count > 0 {
		query.Set("count", strconv.Itoa(count))
	}

	body, err := c.doRequest(ctx, c.apiBase, "/IPlayerService/GetRecentlyPlayedGames/v1/", query)
	if err != nil {
		return nil, wrapError("recentlyPlayed", 0, err)
	}

	var parsed rawOwnedGamesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, wrapError("recentlyPlayed", 0, fmt.Errorf("%w: decode: %v", ErrRemoteUnavailable, err))
	}

	games := make([]domain.OwnedGame, 0, len(parsed.Response.Games))
	for _, g := range parsed.Response.Games {
		if g.AppID <= 0 {
			continue
		}
		name := g.Name
		if name == "" {
			name = domain.PlaceholderGameName(g.AppID)
		}
		games = append(games, domain.OwnedGame{
			ID:                g.AppID,
			Name:              name,
			HasCommunityStats: g.HasCommunityVisibleStats,
			PlaytimeMinutes:   g.PlaytimeForever,
		})
	}

	return games, nil
}
