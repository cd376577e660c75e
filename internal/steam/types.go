package steam

import (
	"strconv"
	"strings"
)

// Raw API response types (internal). Upstream payloads are dynamic and
// loosely typed; everything here is normalized into domain types before it
// leaves this package.

type rawOwnedGamesResponse struct {
	Response struct {
		GameCount int            `json:"game_count"`
		Games     []rawOwnedGame `json:"games"`
	} `json:"response"`
}

type rawOwnedGame struct {
	AppID                    int64  `json:"appid"`
	Name                     string `json:"name"`
	PlaytimeForever          int    `json:"playtime_forever"`
	HasCommunityVisibleStats bool   `json:"has_community_visible_stats"`
}

type rawSchemaResponse struct {
	Game struct {
		GameName           string `json:"gameName"`
		AvailableGameStats struct {
			Achievements []rawSchemaAchievement `json:"achievements"`
		} `json:"availableGameStats"`
	} `json:"game"`
}

type rawSchemaAchievement struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	IconGray    string `json:"icongray"`
	Hidden      int    `json:"hidden"`
}

type rawPlayerStatsResponse struct {
	PlayerStats struct {
		Success      bool                   `json:"success"`
		Error        string                 `json:"error"`
		Achievements []rawPlayerAchievement `json:"achievements"`
	} `json:"playerstats"`
}

type rawPlayerAchievement struct {
	APIName    string `json:"apiname"`
	Achieved   int    `json:"achieved"`
	UnlockTime int64  `json:"unlocktime"`
}

type rawGlobalPercentagesResponse struct {
	AchievementPercentages struct {
		Achievements []rawGlobalPercentage `json:"achievements"`
	} `json:"achievementpercentages"`
}

type rawGlobalPercentage struct {
	Name    string    `json:"name"`
	Percent flexFloat `json:"percent"`
}

// rawAppDetailsEntry is one entry of the store appdetails response, which is
// keyed by the stringified app ID.
type rawAppDetailsEntry struct {
	Success bool `json:"success"`
	Data    struct {
		Name         string `json:"name"`
		HeaderImage  string `json:"header_image"`
		Achievements struct {
			Total int `json:"total"`
		} `json:"achievements"`
	} `json:"data"`
}

// flexFloat decodes a float that upstream sometimes serializes as a string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
