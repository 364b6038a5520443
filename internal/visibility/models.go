package visibility

import "time"

// DateLayout is the calendar-day key used by every daily series.
const DateLayout = "2006-01-02"

// Entity is a company or competitor on the tracked roster.
type Entity struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	IsSelf  bool   `json:"is_self"`
}

// Response is one AI answer to a tracked prompt.
type Response struct {
	ID        int64
	CreatedAt time.Time
	PromptID  int64
	SourceIDs []int64
}

// Analysis joins a response to an entity. A nil EntityID refers to the
// tracked company itself.
type Analysis struct {
	ResponseID     int64
	EntityID       *int64
	CompanyAppears bool
	Sentiment      *float64
	Position       *int
}

// DayCount holds the per-day counters for one entity.
type DayCount struct {
	Total   int
	Appears int
}

// CompetitorMetric accumulates analysis rows for one entity over a window.
type CompetitorMetric struct {
	EntityID        int64
	TotalVisibility int
	TotalSentiment  float64
	SentimentCount  int
	TotalPosition   int
	PositionCount   int
	Daily           map[string]*DayCount
}

// DailyPoint is one point of a daily visibility series.
type DailyPoint struct {
	Date          string `json:"date"`
	VisibilityPct int    `json:"visibility"`
}

// Sentiment is the bucketed average sentiment of an entity.
type Sentiment string

const (
	SentimentNone     Sentiment = ""
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// LeaderboardEntry is one ranked roster row.
type LeaderboardEntry struct {
	EntityID      int64     `json:"entity_id"`
	Name          string    `json:"name"`
	IsSelf        bool      `json:"is_self"`
	VisibilityPct int       `json:"visibility"`
	AvgPosition   *float64  `json:"avg_position"`
	Sentiment     Sentiment `json:"sentiment,omitempty"`
	Rank          int       `json:"rank"`
}

// Input is everything Aggregate needs for one window.
type Input struct {
	Responses                []Response
	Analyses                 []Analysis
	Roster                   []Entity
	SelfEntityID             *int64
	TotalApprovedCompetitors int
	// Location decides the calendar day of a response. Nil means time.Local.
	Location *time.Location
}

// Result is the output of Aggregate.
type Result struct {
	DailySeries           map[int64][]DailyPoint `json:"daily_series"`
	Leaderboard           []LeaderboardEntry     `json:"leaderboard"`
	OverallVisibilityRate int                    `json:"visibility_rate"`
	// OverallRank is the self-entity's leaderboard rank, 0 when absent.
	OverallRank int `json:"industry_rank"`
}
