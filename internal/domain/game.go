package domain

import "strconv"

// OwnedGame is one entry from the user's game catalog.
type OwnedGame struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	// HasCommunityStats signals that the game exposes community-visible
	// stats, a cheap proxy for achievement support.
	HasCommunityStats bool `json:"has_community_stats"`
	// PlaytimeMinutes is total recorded playtime.
	PlaytimeMinutes int `json:"playtime"`
}

// GameMetadata is store-listing data for a game. It is cosmetic: callers
// receive a minimal fallback record instead of an error when the live
// lookup fails.
type GameMetadata struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	HeaderImage      string `json:"header_image,omitempty"`
	HasAchievements  bool   `json:"has_achievements"`
	AchievementCount int    `json:"achievement_count"`
}

// FallbackMetadata builds the placeholder record returned when a live
// metadata fetch fails.
func FallbackMetadata(gameID int64) *GameMetadata {
	return &GameMetadata{
		ID:   gameID,
		Name: PlaceholderGameName(gameID),
	}
}

// PlaceholderGameName names a game whose display name is unknown.
func PlaceholderGameName(gameID int64) string {
	return "App " + strconv.FormatInt(gameID, 10)
}
