package domain

// RecentUnlock is one unlocked achievement annotated with its game, for the
// recent-activity feed.
type RecentUnlock struct {
	GameID   int64             `json:"game_id"`
	GameName string            `json:"game_name"`
	Record   AchievementRecord `json:"record"`
}
