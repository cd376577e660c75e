package domain

import (
	"fmt"
	"math"
)

// AchievementRecord is one achievement definition merged with player state.
type AchievementRecord struct {
	APIName     string `json:"api_name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	// IconURL is shown for unlocked achievements, IconLockedURL otherwise.
	IconURL       string `json:"icon_url"`
	IconLockedURL string `json:"icon_locked_url"`
	Hidden        bool   `json:"is_hidden"`
	Unlocked      bool   `json:"is_unlocked"`
	// UnlockTime is epoch seconds, set iff Unlocked is true.
	UnlockTime *int64 `json:"unlock_time,omitempty"`
	// GlobalUnlockPercent is the community-wide unlock rate (0-100),
	// nil when the percentage endpoint was unavailable.
	GlobalUnlockPercent *float64 `json:"global_unlock_percent"`
}

// GameAchievementSummary is the per-game aggregate of achievement state.
// Error is set instead of Records when the game has no achievement support;
// the two are mutually exclusive.
type GameAchievementSummary struct {
	GameID     int64               `json:"game_id"`
	Total      int                 `json:"total"`
	Unlocked   int                 `json:"unlocked"`
	Percentage float64             `json:"percentage"`
	Records    []AchievementRecord `json:"records,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Perfect reports whether every achievement is unlocked (and there is at least one).
func (s *GameAchievementSummary) Perfect() bool {
	return s.Total > 0 && s.Unlocked == s.Total
}

// Normalize coerces derived fields and rejects values that would corrupt
// downstream arithmetic. It recomputes Percentage from Unlocked/Total and
// enforces the unlock-time-iff-unlocked invariant on every record.
func (s *GameAchievementSummary) Normalize() error {
	if s.GameID <= 0 {
		return fmt.Errorf("game id must be positive, got %d", s.GameID)
	}
	if s.Total < 0 {
		return fmt.Errorf("game %d: negative achievement total %d", s.GameID, s.Total)
	}
	if s.Unlocked < 0 || s.Unlocked > s.Total {
		return fmt.Errorf("game %d: unlocked count %d outside [0,%d]", s.GameID, s.Unlocked, s.Total)
	}

	s.Percentage = CompletionPercent(s.Unlocked, s.Total)

	for i := range s.Records {
		r := &s.Records[i]
		if r.Unlocked && r.UnlockTime == nil {
			return fmt.Errorf("game %d: achievement %q unlocked without an unlock time", s.GameID, r.APIName)
		}
		if !r.Unlocked {
			r.UnlockTime = nil
		}
		if r.GlobalUnlockPercent != nil {
			p := *r.GlobalUnlockPercent
			if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 100 {
				r.GlobalUnlockPercent = nil
			}
		}
	}

	return nil
}

// CompletionPercent returns unlocked/total as a percentage rounded to one
// decimal, or 0 when total is zero.
func CompletionPercent(unlocked, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(unlocked)/float64(total)*1000) / 10
}
