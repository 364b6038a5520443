// Package visibility turns raw response-analysis rows into visibility
// percentages, average positions, sentiment buckets and rankings.
//
// Everything here is pure: callers fetch rows, this package only counts.
package visibility

import (
	"math"
	"sort"
	"time"
)

// Aggregate computes daily series, the leaderboard and the self-entity's
// overall numbers for one window.
//
// Three denominators are in play and are kept distinct on purpose:
// daily visibility divides by analysis rows of the entity that day,
// leaderboard visibility divides by all responses in the window, and the
// overall rate divides self appearances by all responses in the window.
func Aggregate(in Input) Result {
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}

	days := make(map[int64]string, len(in.Responses))
	for _, r := range in.Responses {
		days[r.ID] = r.CreatedAt.In(loc).Format(DateLayout)
	}

	metrics := make(map[int64]*CompetitorMetric)
	selfAppears := 0
	for _, a := range in.Analyses {
		id, ok := resolveEntity(a.EntityID, in.SelfEntityID)
		if !ok {
			continue
		}
		day, ok := days[a.ResponseID]
		if !ok {
			continue
		}
		m := metrics[id]
		if m == nil {
			m = &CompetitorMetric{EntityID: id, Daily: make(map[string]*DayCount)}
			metrics[id] = m
		}
		m.Add(a, day, in.TotalApprovedCompetitors)

		if a.CompanyAppears && in.SelfEntityID != nil && id == *in.SelfEntityID {
			selfAppears++
		}
	}

	res := Result{
		DailySeries: make(map[int64][]DailyPoint, len(metrics)),
		Leaderboard: make([]LeaderboardEntry, 0, len(in.Roster)),
	}
	for id, m := range metrics {
		res.DailySeries[id] = m.Series()
	}

	for _, e := range in.Roster {
		entry := LeaderboardEntry{
			EntityID: e.ID,
			Name:     e.Name,
			IsSelf:   in.SelfEntityID != nil && e.ID == *in.SelfEntityID,
		}
		if m := metrics[e.ID]; m != nil {
			// Duplicate rows for one response can push the count past the
			// response total; the rate is capped like the overall rate.
			entry.VisibilityPct = min(Percent(m.TotalVisibility, len(in.Responses)), 100)
			entry.AvgPosition = m.AvgPosition()
			entry.Sentiment = BucketSentiment(m.AvgSentiment())
		}
		res.Leaderboard = append(res.Leaderboard, entry)
	}
	SortLeaderboard(res.Leaderboard)

	for _, e := range res.Leaderboard {
		if e.IsSelf {
			res.OverallRank = e.Rank
			break
		}
	}
	res.OverallVisibilityRate = min(Percent(selfAppears, len(in.Responses)), 100)

	return res
}

// Add folds one analysis row into the metric.
func (m *CompetitorMetric) Add(a Analysis, day string, totalApproved int) {
	d := m.Daily[day]
	if d == nil {
		d = &DayCount{}
		m.Daily[day] = d
	}
	d.Total++
	if a.CompanyAppears {
		d.Appears++
		m.TotalVisibility++
	}

	m.TotalPosition += NormalizePosition(a.Position, totalApproved)
	m.PositionCount++

	if a.Sentiment != nil {
		m.TotalSentiment += *a.Sentiment
		m.SentimentCount++
	}
}

// Series returns the daily points in date order.
func (m *CompetitorMetric) Series() []DailyPoint {
	points := make([]DailyPoint, 0, len(m.Daily))
	for day, c := range m.Daily {
		points = append(points, DailyPoint{Date: day, VisibilityPct: Percent(c.Appears, c.Total)})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// AvgPosition is the mean normalized position rounded to one decimal, nil
// when no rows were seen.
func (m *CompetitorMetric) AvgPosition() *float64 {
	if m.PositionCount == 0 {
		return nil
	}
	avg := math.Round(float64(m.TotalPosition)/float64(m.PositionCount)*10) / 10
	return &avg
}

// AvgSentiment is nil when no row carried a sentiment.
func (m *CompetitorMetric) AvgSentiment() *float64 {
	if m.SentimentCount == 0 {
		return nil
	}
	avg := m.TotalSentiment / float64(m.SentimentCount)
	return &avg
}

// SortLeaderboard orders entries by visibility descending, then average
// position ascending with missing positions last, and assigns ranks.
func SortLeaderboard(entries []LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.VisibilityPct != b.VisibilityPct {
			return a.VisibilityPct > b.VisibilityPct
		}
		switch {
		case a.AvgPosition == nil:
			return false
		case b.AvgPosition == nil:
			return true
		default:
			return *a.AvgPosition < *b.AvgPosition
		}
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// NormalizePosition maps a missing or zero position to last place,
// one past the number of approved competitors.
func NormalizePosition(pos *int, totalApproved int) int {
	if pos == nil || *pos == 0 {
		return totalApproved + 1
	}
	return *pos
}

// BucketSentiment classifies a 0-100 average.
func BucketSentiment(avg *float64) Sentiment {
	switch {
	case avg == nil:
		return SentimentNone
	case *avg >= 67:
		return SentimentPositive
	case *avg >= 34:
		return SentimentNeutral
	default:
		return SentimentNegative
	}
}

// Percent returns round(n/d*100), or 0 when d is not positive.
// Halves round up.
func Percent(n, d int) int {
	if d <= 0 {
		return 0
	}
	return int(math.Floor(float64(n)/float64(d)*100 + 0.5))
}

// resolveEntity attributes rows with no entity to the self-entity; such
// rows are dropped when the self-entity is unknown.
func resolveEntity(id, self *int64) (int64, bool) {
	if id != nil {
		return *id, true
	}
	if self != nil {
		return *self, true
	}
	return 0, false
}
