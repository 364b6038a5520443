package onboarding

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/AIVisibility/internal/database"
	"github.com/TobiSchelling/AIVisibility/internal/executor"
	"github.com/TobiSchelling/AIVisibility/internal/functions"
	"github.com/TobiSchelling/AIVisibility/internal/poll"
	"github.com/TobiSchelling/AIVisibility/internal/webhook"
)

// jobHooks simulates the external workflows: when simulate is set the
// analysis triggers write the rows the wizard waits for.
type jobHooks struct {
	db        *database.DB
	simulate  bool
	promptErr error
}

func (h *jobHooks) GeneratePrompts(ctx context.Context, req webhook.PromptRequest) ([]string, error) {
	if h.promptErr != nil {
		return nil, h.promptErr
	}
	return []string{"best crm", "crm for startups"}, nil
}

func (h *jobHooks) AnalyzePrompts(ctx context.Context, companyID string) (*webhook.Reply, error) {
	if h.simulate {
		go func() {
			time.Sleep(20 * time.Millisecond)
			h.db.InsertCompetitor(context.Background(), database.Competitor{Name: "Acme", Approved: true, CompanyID: companyID})
			h.db.InsertCompetitor(context.Background(), database.Competitor{Name: "Rival", CompanyID: companyID})
		}()
	}
	return &webhook.Reply{Empty: true}, nil
}

func (h *jobHooks) AnalyzeResponses(ctx context.Context, companyID string) (*webhook.Reply, error) {
	if h.simulate {
		go func() {
			ctx := context.Background()
			prompts, _ := h.db.ListPrompts(ctx, companyID)
			approved, _ := h.db.ListApprovedCompetitors(ctx, companyID)
			if len(prompts) == 0 || len(approved) == 0 {
				return
			}
			id, _ := h.db.InsertResponse(ctx, database.Response{PromptID: prompts[0].ID, CompanyID: companyID})
			h.db.InsertAnalysis(ctx, database.Analysis{ResponseID: id, CompetitorID: &approved[0].ID, CompanyAppears: true})
		}()
	}
	return &webhook.Reply{Empty: true}, nil
}

func setup(t *testing.T, hooks *jobHooks, attempts int) (*Wizard, *database.DB) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	hooks.db = db

	fns := functions.NewService(db, hooks, nil)
	exec := executor.New(db, executor.Options{RetryDelay: -1})
	opts := poll.Options{Interval: 10 * time.Millisecond, MaxAttempts: attempts, Timeout: 5 * time.Second}
	return NewWizard(fns, db, exec, opts, opts, nil), db
}

func newRequest() Request {
	country := "DE"
	return Request{
		UserID: "u1",
		Company: functions.CreateCompanyRequest{
			CompanyName:               "Acme",
			CompanyDomain:             "acme.com",
			SearchOptimizationCountry: &country,
		},
		Goal: "be recommended",
	}
}

func TestRunCompletes(t *testing.T) {
	w, db := setup(t, &jobHooks{simulate: true}, 100)

	var steps []Step
	w.OnStep(func(s Step) { steps = append(steps, s) })

	r := w.Run(context.Background(), newRequest())
	if !r.Completed {
		t.Fatalf("expected completed run, got %+v", r.Steps)
	}
	if len(r.Steps) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(r.Steps))
	}
	for _, s := range r.Steps {
		if s.Err != nil {
			t.Errorf("step %s failed: %v", s.Name, s.Err)
		}
	}
	if !strings.HasSuffix(r.Steps[2].Summary, "ready") || !strings.HasSuffix(r.Steps[3].Summary, "ready") {
		t.Errorf("expected both waits to be satisfied, got %q / %q", r.Steps[2].Summary, r.Steps[3].Summary)
	}
	if w.Step() != StepCompleted {
		t.Errorf("expected completed step, got %s", w.Step())
	}
	if steps[len(steps)-1] != StepCompleted || steps[0] != StepProfile {
		t.Errorf("unexpected step sequence %v", steps)
	}

	profile, _ := db.GetUserProfile(context.Background(), "u1")
	if profile == nil || !profile.OnboardingCompleted {
		t.Error("expected onboarding to be marked completed")
	}
}

func TestRunProceedsOnTimeout(t *testing.T) {
	w, _ := setup(t, &jobHooks{}, 2)

	r := w.Run(context.Background(), newRequest())
	if !r.Completed {
		t.Fatalf("expected run to complete after timeouts, got %+v", r.Steps)
	}
	if !strings.Contains(r.Steps[2].Summary, "continuing anyway") {
		t.Errorf("expected discovery to time out, got %q", r.Steps[2].Summary)
	}
	if !strings.Contains(r.Steps[3].Summary, "continuing anyway") {
		t.Errorf("expected analysis to time out, got %q", r.Steps[3].Summary)
	}
}

func TestRunStopsOnPromptFailure(t *testing.T) {
	w, _ := setup(t, &jobHooks{promptErr: webhook.ErrInvalidResponse}, 2)

	r := w.Run(context.Background(), newRequest())
	if r.Completed {
		t.Fatal("expected run to stop")
	}
	last := r.Steps[len(r.Steps)-1]
	if last.Name != "Prompts" || !errors.Is(last.Err, webhook.ErrInvalidResponse) {
		t.Errorf("expected prompt failure, got %+v", last)
	}
	if r.CompanyID == "" {
		t.Error("expected company id to be kept for resuming")
	}
	if w.Step() != StepGoal {
		t.Errorf("expected wizard to stay on goal step, got %s", w.Step())
	}
}

func TestRunResumesExistingCompany(t *testing.T) {
	w, db := setup(t, &jobHooks{}, 1)
	ctx := context.Background()

	company, err := db.InsertCompany(ctx, database.Company{Name: "Acme"})
	if err != nil {
		t.Fatalf("InsertCompany: %v", err)
	}
	db.AddCompanyUser(ctx, company.ID, "u1", database.RoleAdmin)
	db.UpsertUserProfile(ctx, database.UserProfile{ID: "u1"})

	r := w.Run(ctx, Request{UserID: "u1", CompanyID: company.ID, Goal: "grow"})
	if !r.Completed {
		t.Fatalf("expected completed run, got %+v", r.Steps)
	}
	if r.Steps[0].Name != "Prompts" {
		t.Errorf("expected company step to be skipped, got %q", r.Steps[0].Name)
	}
}

func TestRunCancelled(t *testing.T) {
	w, _ := setup(t, &jobHooks{}, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	w.OnStep(func(s Step) {
		if s == StepCompetitorDiscovery {
			go func() {
				time.Sleep(30 * time.Millisecond)
				cancel()
			}()
		}
	})

	r := w.Run(ctx, newRequest())
	if r.Completed {
		t.Fatal("expected cancelled run")
	}
	last := r.Steps[len(r.Steps)-1]
	if last.Name != "Competitor discovery" || !errors.Is(last.Err, context.Canceled) {
		t.Errorf("expected cancelled discovery, got %+v", last)
	}
}
