// Package onboarding drives a new user from company creation to the first
// analysed responses, waiting on the external jobs by polling the store.
package onboarding

import (
	"context"
	"fmt"
	"sync"

	"github.com/TobiSchelling/AIVisibility/internal/database"
	"github.com/TobiSchelling/AIVisibility/internal/executor"
	"github.com/TobiSchelling/AIVisibility/internal/functions"
	"github.com/TobiSchelling/AIVisibility/internal/logger"
	"github.com/TobiSchelling/AIVisibility/internal/poll"
	"github.com/TobiSchelling/AIVisibility/internal/webhook"
)

// Step is a wizard state.
type Step int

const (
	StepProfile Step = iota
	StepGoal
	StepReview
	StepCompetitorDiscovery
	StepResponseAnalysis
	StepCompleted
)

func (s Step) String() string {
	switch s {
	case StepProfile:
		return "profile"
	case StepGoal:
		return "goal"
	case StepReview:
		return "review"
	case StepCompetitorDiscovery:
		return "competitor_discovery"
	case StepResponseAnalysis:
		return "response_analysis"
	case StepCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// StepResult holds the result of a single wizard step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a wizard run.
type Result struct {
	CompanyID string
	Steps     []StepResult
	Completed bool
}

// Request is the input of a run. A non-empty CompanyID resumes an
// onboarding whose company already exists.
type Request struct {
	UserID    string
	CompanyID string
	Company   functions.CreateCompanyRequest
	Goal      string
}

// Functions is the part of functions.Service the wizard calls.
type Functions interface {
	CreateCompany(ctx context.Context, userID string, req functions.CreateCompanyRequest) (*database.Company, error)
	GeneratePrompts(ctx context.Context, userID, companyID, goal string) ([]database.Prompt, error)
	AnalyzePrompts(ctx context.Context, userID, companyID string) (*webhook.Reply, error)
	AnalyzeResponses(ctx context.Context, userID, companyID string) (*webhook.Reply, error)
}

// Store answers the polling conditions.
type Store interface {
	CountCompetitors(ctx context.Context, companyID string, approvedOnly bool) (int, error)
	ListApprovedCompetitors(ctx context.Context, companyID string) ([]database.Competitor, error)
	ListResponses(ctx context.Context, f database.ResponseFilter) ([]database.Response, error)
	HasAnalysis(ctx context.Context, responseIDs, competitorIDs []int64) (bool, error)
	MarkOnboardingCompleted(ctx context.Context, userID string) error
}

// Wizard runs the onboarding flow.
type Wizard struct {
	fns       Functions
	store     Store
	exec      *executor.Executor
	discovery poll.Options
	analysis  poll.Options
	log       *logger.Logger

	mu     sync.Mutex
	step   Step
	onStep func(Step)
}

// NewWizard creates a Wizard. discovery and analysis bound the two waits.
func NewWizard(fns Functions, store Store, exec *executor.Executor, discovery, analysis poll.Options, log *logger.Logger) *Wizard {
	if log == nil {
		log = logger.Nop()
	}
	return &Wizard{
		fns:       fns,
		store:     store,
		exec:      exec,
		discovery: discovery,
		analysis:  analysis,
		log:       log,
	}
}

// OnStep registers a callback fired on every step change.
func (w *Wizard) OnStep(fn func(Step)) {
	w.mu.Lock()
	w.onStep = fn
	w.mu.Unlock()
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) advance(s Step) {
	w.mu.Lock()
	w.step = s
	fn := w.onStep
	w.mu.Unlock()
	w.log.Debug("onboarding step", "step", s.String())
	if fn != nil {
		fn(s)
	}
}

// Run executes the whole flow. A failed company, prompt or trigger step
// stops the run; a wait that times out proceeds to the next step.
func (w *Wizard) Run(ctx context.Context, req Request) *Result {
	r := &Result{CompanyID: req.CompanyID}
	w.advance(StepProfile)

	// Step 1: Company
	if r.CompanyID == "" {
		step := w.runCompany(ctx, req, r)
		r.Steps = append(r.Steps, step)
		if step.Err != nil {
			return r
		}
	}

	// Step 2: Prompts
	w.advance(StepGoal)
	step := w.runPrompts(ctx, req.UserID, r.CompanyID, req.Goal)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}
	w.advance(StepReview)

	// Step 3: Competitor discovery
	step = w.runDiscovery(ctx, req.UserID, r.CompanyID)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 4: Response analysis
	step = w.runAnalysis(ctx, req.UserID, r.CompanyID)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 5: Complete
	step = w.runComplete(ctx, req.UserID)
	r.Steps = append(r.Steps, step)
	r.Completed = step.Err == nil
	return r
}

func (w *Wizard) runCompany(ctx context.Context, req Request, r *Result) StepResult {
	company, err := w.fns.CreateCompany(ctx, req.UserID, req.Company)
	if err != nil {
		return StepResult{Name: "Company", Err: err}
	}
	r.CompanyID = company.ID
	return StepResult{
		Name:    "Company",
		Summary: fmt.Sprintf("Created %s (%s)", company.Name, company.ID),
	}
}

func (w *Wizard) runPrompts(ctx context.Context, userID, companyID, goal string) StepResult {
	prompts, err := w.fns.GeneratePrompts(ctx, userID, companyID, goal)
	if err != nil {
		return StepResult{Name: "Prompts", Err: err}
	}
	return StepResult{
		Name:    "Prompts",
		Summary: fmt.Sprintf("Generated and saved %d prompts", len(prompts)),
	}
}

func (w *Wizard) runDiscovery(ctx context.Context, userID, companyID string) StepResult {
	w.advance(StepCompetitorDiscovery)
	if _, err := w.fns.AnalyzePrompts(ctx, userID, companyID); err != nil {
		return StepResult{Name: "Competitor discovery", Err: err}
	}

	outcome := poll.Run(ctx, w.discovery, w.competitorsFound(companyID))
	if outcome == poll.Cancelled {
		return StepResult{Name: "Competitor discovery", Err: ctx.Err()}
	}
	return StepResult{
		Name:    "Competitor discovery",
		Summary: "Competitors " + summarize(outcome),
	}
}

func (w *Wizard) runAnalysis(ctx context.Context, userID, companyID string) StepResult {
	w.advance(StepResponseAnalysis)
	if _, err := w.fns.AnalyzeResponses(ctx, userID, companyID); err != nil {
		return StepResult{Name: "Response analysis", Err: err}
	}

	outcome := poll.Run(ctx, w.analysis, w.analysisFound(companyID))
	if outcome == poll.Cancelled {
		return StepResult{Name: "Response analysis", Err: ctx.Err()}
	}
	return StepResult{
		Name:    "Response analysis",
		Summary: "Analysis " + summarize(outcome),
	}
}

func (w *Wizard) runComplete(ctx context.Context, userID string) StepResult {
	res := executor.Execute(ctx, w.exec, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.store.MarkOnboardingCompleted(ctx, userID)
	})
	if res.Err != nil {
		return StepResult{Name: "Complete", Err: fmt.Errorf("marking onboarding completed: %w", res.Err)}
	}
	w.advance(StepCompleted)
	return StepResult{Name: "Complete", Summary: "Onboarding completed"}
}

func summarize(o poll.Outcome) string {
	if o == poll.Satisfied {
		return "ready"
	}
	return "still pending, continuing anyway"
}

// competitorsFound holds once discovery wrote any competitor row.
func (w *Wizard) competitorsFound(companyID string) poll.Condition {
	return func(ctx context.Context) (bool, error) {
		res := executor.Execute(ctx, w.exec, func(ctx context.Context) (int, error) {
			return w.store.CountCompetitors(ctx, companyID, false)
		})
		if res.Err != nil {
			w.log.Warn("checking competitors failed", "company_id", companyID, "error", res.Err)
			return false, res.Err
		}
		return res.Data > 0, nil
	}
}

// analysisFound holds once an analysis row links one of the company's
// responses to one of its approved competitors.
func (w *Wizard) analysisFound(companyID string) poll.Condition {
	return func(ctx context.Context) (bool, error) {
		approved := executor.Execute(ctx, w.exec, func(ctx context.Context) ([]database.Competitor, error) {
			return w.store.ListApprovedCompetitors(ctx, companyID)
		})
		if approved.Err != nil {
			return false, approved.Err
		}
		if len(approved.Data) == 0 {
			return false, nil
		}

		responses := executor.Execute(ctx, w.exec, func(ctx context.Context) ([]database.Response, error) {
			return w.store.ListResponses(ctx, database.ResponseFilter{CompanyID: companyID})
		})
		if responses.Err != nil {
			return false, responses.Err
		}
		if len(responses.Data) == 0 {
			return false, nil
		}

		competitorIDs := make([]int64, len(approved.Data))
		for i, c := range approved.Data {
			competitorIDs[i] = c.ID
		}
		responseIDs := make([]int64, len(responses.Data))
		for i, r := range responses.Data {
			responseIDs[i] = r.ID
		}
		found := executor.Execute(ctx, w.exec, func(ctx context.Context) (bool, error) {
			return w.store.HasAnalysis(ctx, responseIDs, competitorIDs)
		})
		return found.Data, found.Err
	}
}
