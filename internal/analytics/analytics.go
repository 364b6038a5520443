// Package analytics loads a company's tracking data through the query
// executor and turns it into dashboard views.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/AIVisibility/internal/database"
	"github.com/TobiSchelling/AIVisibility/internal/executor"
	"github.com/TobiSchelling/AIVisibility/internal/logger"
	"github.com/TobiSchelling/AIVisibility/internal/visibility"
)

// ErrNotFound is returned when the company does not exist.
var ErrNotFound = errors.New("company not found")

// Store is the read side of the database used for analytics.
type Store interface {
	GetCompany(ctx context.Context, id string) (*database.Company, error)
	ListCompetitors(ctx context.Context, companyID string) ([]database.Competitor, error)
	ListApprovedCompetitors(ctx context.Context, companyID string) ([]database.Competitor, error)
	LatestResponseTime(ctx context.Context, companyID string) (*time.Time, error)
	ListResponses(ctx context.Context, f database.ResponseFilter) ([]database.Response, error)
	ListAnalyses(ctx context.Context, responseIDs []int64) ([]database.Analysis, error)
	ListPrompts(ctx context.Context, companyID string) ([]database.Prompt, error)
	GetSources(ctx context.Context, ids []int64) ([]database.Source, error)
}

// Service serves dashboard views.
type Service struct {
	store Store
	exec  *executor.Executor
	loc   *time.Location
	now   func() time.Time
	log   *logger.Logger
}

// NewService creates a Service. loc decides calendar days; nil means
// time.Local.
func NewService(store Store, exec *executor.Executor, loc *time.Location, log *logger.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, exec: exec, loc: loc, now: time.Now, log: log}
}

// Dashboard is the headline view for one company and period.
type Dashboard struct {
	CompanyID          string              `json:"company_id"`
	CompanyName        string              `json:"company_name"`
	Period             visibility.Period   `json:"period"`
	Since              time.Time           `json:"since"`
	TotalResponses     int                 `json:"total_responses"`
	CompetitorsTracked int                 `json:"competitors_tracked"`
	SelfEntityID       *int64              `json:"self_entity_id"`
	Roster             []visibility.Entity `json:"roster"`
	// Degraded is set when a fetch failed and its data was left out.
	Degraded bool `json:"degraded,omitempty"`
	visibility.Result
}

// window is the raw data of one company and period.
type window struct {
	company   *database.Company
	since     time.Time
	roster    []visibility.Entity
	self      *int64
	responses []visibility.Response
	analyses  []visibility.Analysis
	degraded  bool
}

func fetch[T any](ctx context.Context, e *executor.Executor, q func(context.Context) (T, error)) (T, error) {
	res := executor.Execute(ctx, e, q)
	return res.Data, res.Err
}

// load fetches the company, its approved roster and the responses and
// analyses of the window. Only a failed company lookup is an error; other
// failed fetches leave their part empty.
func (s *Service) load(ctx context.Context, companyID string, period visibility.Period) (*window, error) {
	w := &window{}
	var approved []database.Competitor
	var latest *time.Time

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := fetch(gctx, s.exec, func(ctx context.Context) (*database.Company, error) {
			return s.store.GetCompany(ctx, companyID)
		})
		if err != nil {
			return fmt.Errorf("getting company: %w", err)
		}
		w.company = c
		return nil
	})
	g.Go(func() error {
		rows, err := fetch(gctx, s.exec, func(ctx context.Context) ([]database.Competitor, error) {
			return s.store.ListApprovedCompetitors(ctx, companyID)
		})
		if err != nil {
			s.log.Warn("loading competitors failed", "company_id", companyID, "error", err)
			w.degraded = true
			return nil
		}
		approved = rows
		return nil
	})
	if period == visibility.PeriodToday {
		g.Go(func() error {
			t, err := fetch(gctx, s.exec, func(ctx context.Context) (*time.Time, error) {
				return s.store.LatestResponseTime(ctx, companyID)
			})
			if err != nil {
				s.log.Warn("loading latest response time failed", "company_id", companyID, "error", err)
				return nil
			}
			latest = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if w.company == nil {
		return nil, ErrNotFound
	}

	w.roster = toEntities(approved)
	w.self = visibility.FindSelf(w.company.Name, w.roster)
	visibility.MarkSelf(w.roster, w.self)
	w.since = visibility.WindowStart(period, s.now(), latest, s.loc)

	responses, err := fetch(ctx, s.exec, func(ctx context.Context) ([]database.Response, error) {
		return s.store.ListResponses(ctx, database.ResponseFilter{CompanyID: companyID, Since: &w.since})
	})
	if err != nil {
		s.log.Warn("loading responses failed", "company_id", companyID, "error", err)
		w.degraded = true
		return w, nil
	}
	w.responses = toResponses(responses)
	if len(responses) == 0 {
		return w, nil
	}

	ids := make([]int64, len(responses))
	for i, r := range responses {
		ids[i] = r.ID
	}
	analyses, err := fetch(ctx, s.exec, func(ctx context.Context) ([]database.Analysis, error) {
		return s.store.ListAnalyses(ctx, ids)
	})
	if err != nil {
		s.log.Warn("loading analyses failed", "company_id", companyID, "error", err)
		w.degraded = true
		return w, nil
	}
	w.analyses = toAnalyses(analyses)
	return w, nil
}

// Dashboard aggregates the company's visibility for the period.
func (s *Service) Dashboard(ctx context.Context, companyID string, period visibility.Period) (*Dashboard, error) {
	w, err := s.load(ctx, companyID, period)
	if err != nil {
		return nil, err
	}

	result := visibility.Aggregate(visibility.Input{
		Responses:                w.responses,
		Analyses:                 w.analyses,
		Roster:                   w.roster,
		SelfEntityID:             w.self,
		TotalApprovedCompetitors: len(w.roster),
		Location:                 s.loc,
	})

	return &Dashboard{
		CompanyID:          w.company.ID,
		CompanyName:        w.company.Name,
		Period:             period,
		Since:              w.since,
		TotalResponses:     len(w.responses),
		CompetitorsTracked: len(w.roster),
		SelfEntityID:       w.self,
		Roster:             w.roster,
		Degraded:           w.degraded,
		Result:             result,
	}, nil
}

// PromptMetrics returns the prompt table for one entity, the company's own
// entry when entityID is nil.
func (s *Service) PromptMetrics(ctx context.Context, companyID string, period visibility.Period, entityID *int64) ([]visibility.PromptMetric, error) {
	w, prompts, err := s.loadWithPrompts(ctx, companyID, period)
	if err != nil {
		return nil, err
	}
	if entityID == nil {
		entityID = w.self
	}
	return visibility.PromptMetrics(prompts, w.responses, w.analyses, entityID, len(w.roster)), nil
}

// PromptVisibility returns the daily self-visibility of every prompt.
func (s *Service) PromptVisibility(ctx context.Context, companyID string, period visibility.Period) ([]visibility.PromptSeries, error) {
	w, prompts, err := s.loadWithPrompts(ctx, companyID, period)
	if err != nil {
		return nil, err
	}
	return visibility.PromptDailySeries(prompts, w.responses, w.analyses, w.self, s.loc), nil
}

func (s *Service) loadWithPrompts(ctx context.Context, companyID string, period visibility.Period) (*window, []visibility.Prompt, error) {
	var w *window
	var prompts []database.Prompt

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		w, err = s.load(gctx, companyID, period)
		return err
	})
	g.Go(func() error {
		rows, err := fetch(gctx, s.exec, func(ctx context.Context) ([]database.Prompt, error) {
			return s.store.ListPrompts(ctx, companyID)
		})
		if err != nil {
			s.log.Warn("loading prompts failed", "company_id", companyID, "error", err)
			return nil
		}
		prompts = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return w, toPrompts(prompts), nil
}

// Sources ranks the links cited by the period's responses.
func (s *Service) Sources(ctx context.Context, companyID string, period visibility.Period) ([]visibility.SourceUsage, error) {
	w, err := s.load(ctx, companyID, period)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, r := range w.responses {
		for _, id := range r.SourceIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return []visibility.SourceUsage{}, nil
	}

	rows, err := fetch(ctx, s.exec, func(ctx context.Context) ([]database.Source, error) {
		return s.store.GetSources(ctx, ids)
	})
	if err != nil {
		s.log.Warn("loading sources failed", "company_id", companyID, "error", err)
		return []visibility.SourceUsage{}, nil
	}
	sources := make([]visibility.Source, len(rows))
	for i, src := range rows {
		sources[i] = visibility.Source{ID: src.ID, Link: src.Link}
	}
	return visibility.SourcesUsage(w.responses, sources), nil
}

// Competitors lists the roster for management, pending first, without
// the row that tracks the company itself.
func (s *Service) Competitors(ctx context.Context, companyID string) ([]database.Competitor, error) {
	var company *database.Company
	var rows []database.Competitor

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := fetch(gctx, s.exec, func(ctx context.Context) (*database.Company, error) {
			return s.store.GetCompany(ctx, companyID)
		})
		company = c
		return err
	})
	g.Go(func() error {
		r, err := fetch(gctx, s.exec, func(ctx context.Context) ([]database.Competitor, error) {
			return s.store.ListCompetitors(ctx, companyID)
		})
		rows = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if company == nil {
		return nil, ErrNotFound
	}

	domain := ""
	if company.Domain != nil {
		domain = *company.Domain
	}
	out := make([]database.Competitor, 0, len(rows))
	for _, c := range rows {
		e := visibility.Entity{ID: c.ID, Name: c.Name}
		if c.Website != nil {
			e.Website = *c.Website
		}
		if visibility.IsSelfCompetitor(company.Name, domain, e) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func toEntities(rows []database.Competitor) []visibility.Entity {
	out := make([]visibility.Entity, len(rows))
	for i, c := range rows {
		out[i] = visibility.Entity{ID: c.ID, Name: c.Name}
		if c.Website != nil {
			out[i].Website = *c.Website
		}
	}
	return out
}

func toResponses(rows []database.Response) []visibility.Response {
	out := make([]visibility.Response, len(rows))
	for i, r := range rows {
		out[i] = visibility.Response{ID: r.ID, CreatedAt: r.CreatedAt, PromptID: r.PromptID, SourceIDs: r.SourceIDs}
	}
	return out
}

func toAnalyses(rows []database.Analysis) []visibility.Analysis {
	out := make([]visibility.Analysis, len(rows))
	for i, a := range rows {
		out[i] = visibility.Analysis{
			ResponseID:     a.ResponseID,
			EntityID:       a.CompetitorID,
			CompanyAppears: a.CompanyAppears,
			Sentiment:      a.Sentiment,
			Position:       a.Position,
		}
	}
	return out
}

func toPrompts(rows []database.Prompt) []visibility.Prompt {
	out := make([]visibility.Prompt, len(rows))
	for i, p := range rows {
		out[i] = visibility.Prompt{ID: p.ID, Text: p.Prompt}
		if p.Country != nil {
			out[i].Country = *p.Country
		}
	}
	return out
}
