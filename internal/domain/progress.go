package domain

import (
	"fmt"
	"math"
)

// PerfectGame is a game where every achievement is unlocked.
type PerfectGame struct {
	GameID           int64  `json:"game_id"`
	Name             string `json:"name"`
	AchievementCount int    `json:"achievement_count"`
	// HeaderImage is best-effort display metadata; empty when the lookup failed.
	HeaderImage string `json:"header_image,omitempty"`
}

// OverallProgress is the cross-library achievement aggregate.
type OverallProgress struct {
	// TotalGames counts every catalog entry, with or without achievements.
	TotalGames            int           `json:"total_games"`
	GamesWithAchievements int           `json:"games_with_achievements"`
	TotalAchievements     int           `json:"total_achievements"`
	UnlockedAchievements  int           `json:"unlocked_achievements"`
	AverageCompletion     float64       `json:"average_completion"`
	PerfectGames          []PerfectGame `json:"perfect_games"`
	PerfectGamesCount     int           `json:"perfect_games_count"`
	// ProcessedGames counts games whose per-game fetch succeeded.
	ProcessedGames int `json:"processed_games"`
	// LastUpdated is epoch seconds of the computation.
	LastUpdated int64 `json:"last_updated"`
}

// Normalize coerces derived fields and rejects aggregates that violate the
// model invariants, so a corrupted cache document can never reach callers.
func (p *OverallProgress) Normalize() error {
	if p.TotalGames < 0 || p.TotalAchievements < 0 || p.UnlockedAchievements < 0 {
		return fmt.Errorf("negative aggregate counts: games=%d achievements=%d unlocked=%d",
			p.TotalGames, p.TotalAchievements, p.UnlockedAchievements)
	}
	if p.GamesWithAchievements > p.TotalGames {
		return fmt.Errorf("games with achievements (%d) exceeds total games (%d)",
			p.GamesWithAchievements, p.TotalGames)
	}
	if p.UnlockedAchievements > p.TotalAchievements {
		return fmt.Errorf("unlocked achievements (%d) exceeds total achievements (%d)",
			p.UnlockedAchievements, p.TotalAchievements)
	}
	if math.IsNaN(p.AverageCompletion) || math.IsInf(p.AverageCompletion, 0) {
		return fmt.Errorf("average completion is not a finite number")
	}

	p.AverageCompletion = CompletionPercent(p.UnlockedAchievements, p.TotalAchievements)
	if p.PerfectGames == nil {
		p.PerfectGames = []PerfectGame{}
	}
	p.PerfectGamesCount = len(p.PerfectGames)

	return nil
}
