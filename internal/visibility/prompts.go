package visibility

import (
	"math"
	"sort"
	"time"
)

// Prompt is the minimal prompt record needed for per-prompt metrics.
type Prompt struct {
	ID      int64  `json:"id"`
	Text    string `json:"prompt"`
	Country string `json:"country,omitempty"`
}

// PromptMetric is one row of the prompt table.
type PromptMetric struct {
	Prompt
	ResponsesCount int       `json:"responses_count"`
	VisibilityPct  int       `json:"visibility"`
	Position       *int      `json:"position"`
	Sentiment      Sentiment `json:"sentiment,omitempty"`
}

// PromptMetrics computes visibility, rounded average position and
// sentiment for one entity per prompt. With a nil entity every prompt
// only reports its response count.
func PromptMetrics(prompts []Prompt, responses []Response, analyses []Analysis, entityID *int64, totalApproved int) []PromptMetric {
	byPrompt := make(map[int64][]int64)
	for _, r := range responses {
		byPrompt[r.PromptID] = append(byPrompt[r.PromptID], r.ID)
	}
	byResponse := make(map[int64][]Analysis)
	if entityID != nil {
		for _, a := range analyses {
			if a.EntityID != nil && *a.EntityID == *entityID {
				byResponse[a.ResponseID] = append(byResponse[a.ResponseID], a)
			}
		}
	}

	out := make([]PromptMetric, 0, len(prompts))
	for _, p := range prompts {
		ids := byPrompt[p.ID]
		m := PromptMetric{Prompt: p, ResponsesCount: len(ids)}
		if entityID != nil {
			acc := CompetitorMetric{EntityID: *entityID, Daily: map[string]*DayCount{}}
			for _, rid := range ids {
				for _, a := range byResponse[rid] {
					acc.Add(a, "", totalApproved)
				}
			}
			m.VisibilityPct = min(Percent(acc.TotalVisibility, len(ids)), 100)
			if acc.PositionCount > 0 {
				pos := int(math.Floor(float64(acc.TotalPosition)/float64(acc.PositionCount) + 0.5))
				m.Position = &pos
			}
			m.Sentiment = BucketSentiment(acc.AvgSentiment())
		}
		out = append(out, m)
	}
	return out
}

// PromptSeries is the daily self-visibility of one prompt.
type PromptSeries struct {
	PromptID int64        `json:"prompt_id"`
	Prompt   string       `json:"prompt"`
	Points   []DailyPoint `json:"points"`
}

// PromptDailySeries computes, per prompt and local day, the share of
// responses in which the self-entity appears. Prompts without responses
// are omitted.
func PromptDailySeries(prompts []Prompt, responses []Response, analyses []Analysis, selfID *int64, loc *time.Location) []PromptSeries {
	if loc == nil {
		loc = time.Local
	}
	appears := make(map[int64]bool)
	if selfID != nil {
		for _, a := range analyses {
			if a.CompanyAppears && a.EntityID != nil && *a.EntityID == *selfID {
				appears[a.ResponseID] = true
			}
		}
	}

	daily := make(map[int64]map[string]*DayCount)
	for _, r := range responses {
		days := daily[r.PromptID]
		if days == nil {
			days = make(map[string]*DayCount)
			daily[r.PromptID] = days
		}
		day := r.CreatedAt.In(loc).Format(DateLayout)
		c := days[day]
		if c == nil {
			c = &DayCount{}
			days[day] = c
		}
		c.Total++
		if appears[r.ID] {
			c.Appears++
		}
	}

	var out []PromptSeries
	for _, p := range prompts {
		days, ok := daily[p.ID]
		if !ok {
			continue
		}
		m := CompetitorMetric{Daily: days}
		out = append(out, PromptSeries{PromptID: p.ID, Prompt: p.Text, Points: m.Series()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PromptID < out[j].PromptID })
	return out
}
