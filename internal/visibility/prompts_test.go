package visibility

import (
	"testing"
	"time"
)

func TestPromptMetrics(t *testing.T) {
	prompts := []Prompt{{ID: 1, Text: "best crm"}, {ID: 2, Text: "cheap crm"}, {ID: 3, Text: "unused"}}
	rs := []Response{
		{ID: 10, PromptID: 1, CreatedAt: day1},
		{ID: 11, PromptID: 1, CreatedAt: day1},
		{ID: 12, PromptID: 2, CreatedAt: day1},
	}
	as := []Analysis{
		{ResponseID: 10, EntityID: id(7), CompanyAppears: true, Position: pos(1), Sentiment: sent(90)},
		{ResponseID: 11, EntityID: id(7), CompanyAppears: false, Position: nil, Sentiment: sent(50)},
		{ResponseID: 12, EntityID: id(8), CompanyAppears: true, Position: pos(1)},
	}

	got := PromptMetrics(prompts, rs, as, id(7), 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 metrics, got %d", len(got))
	}

	first := got[0]
	if first.ResponsesCount != 2 || first.VisibilityPct != 50 {
		t.Errorf("prompt 1: unexpected %+v", first)
	}
	// (1 + 4) / 2 = 2.5 rounds to 3
	if first.Position == nil || *first.Position != 3 {
		t.Errorf("prompt 1: expected position 3, got %v", first.Position)
	}
	if first.Sentiment != SentimentPositive {
		t.Errorf("prompt 1: expected positive, got %q", first.Sentiment)
	}

	second := got[1]
	if second.ResponsesCount != 1 || second.VisibilityPct != 0 || second.Position != nil {
		t.Errorf("prompt 2: rows for other entities should not count, got %+v", second)
	}

	if got[2].ResponsesCount != 0 || got[2].VisibilityPct != 0 {
		t.Errorf("prompt 3: expected zeroes, got %+v", got[2])
	}
}

func TestPromptMetricsCapsDuplicateRows(t *testing.T) {
	rs := []Response{{ID: 10, PromptID: 1, CreatedAt: day1}}
	as := []Analysis{
		{ResponseID: 10, EntityID: id(7), CompanyAppears: true},
		{ResponseID: 10, EntityID: id(7), CompanyAppears: true},
	}
	got := PromptMetrics([]Prompt{{ID: 1}}, rs, as, id(7), 1)
	if got[0].VisibilityPct != 100 {
		t.Errorf("expected visibility capped at 100, got %d", got[0].VisibilityPct)
	}
}

func TestPromptMetricsWithoutEntity(t *testing.T) {
	got := PromptMetrics([]Prompt{{ID: 1}}, []Response{{ID: 1, PromptID: 1}}, nil, nil, 0)
	if got[0].ResponsesCount != 1 || got[0].VisibilityPct != 0 || got[0].Position != nil {
		t.Errorf("unexpected %+v", got[0])
	}
}

func TestPromptDailySeries(t *testing.T) {
	next := day1.Add(24 * time.Hour)
	rs := []Response{
		{ID: 1, PromptID: 1, CreatedAt: day1},
		{ID: 2, PromptID: 1, CreatedAt: day1},
		{ID: 3, PromptID: 1, CreatedAt: next},
		{ID: 4, PromptID: 2, CreatedAt: next},
	}
	as := []Analysis{
		{ResponseID: 1, EntityID: id(7), CompanyAppears: true},
		{ResponseID: 1, EntityID: id(7), CompanyAppears: true},
		{ResponseID: 3, EntityID: id(8), CompanyAppears: true},
	}

	got := PromptDailySeries([]Prompt{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}, {ID: 3, Text: "c"}}, rs, as, id(7), time.UTC)
	if len(got) != 2 {
		t.Fatalf("expected 2 series, got %d", len(got))
	}
	p1 := got[0].Points
	if len(p1) != 2 || p1[0].VisibilityPct != 50 || p1[1].VisibilityPct != 0 {
		t.Errorf("prompt 1: unexpected %+v", p1)
	}
	if got[1].Points[0].VisibilityPct != 0 {
		t.Errorf("prompt 2: expected 0, got %+v", got[1].Points)
	}
}

func TestSourcesUsage(t *testing.T) {
	rs := []Response{
		{ID: 1, SourceIDs: []int64{1, 2}},
		{ID: 2, SourceIDs: []int64{1, 3}},
		{ID: 3, SourceIDs: []int64{4}},
	}
	srcs := []Source{
		{ID: 1, Link: "https://a.com"},
		{ID: 2, Link: "https://b.com"},
		{ID: 3, Link: "https://b.com"},
	}

	got := SourcesUsage(rs, srcs)
	if len(got) != 2 {
		t.Fatalf("expected 2 links, got %+v", got)
	}
	// a: 2 of 5 references, b: 2 of 5 references (ids 2 and 3 merged)
	if got[0].Link != "https://a.com" || got[0].UsageCount != 2 || got[0].UsagePct != 40 {
		t.Errorf("unexpected first %+v", got[0])
	}
	if got[1].Link != "https://b.com" || got[1].UsageCount != 2 {
		t.Errorf("unexpected second %+v", got[1])
	}

	if SourcesUsage(nil, srcs) != nil {
		t.Error("expected nil with no references")
	}
}
