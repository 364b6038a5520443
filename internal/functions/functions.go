// Package functions implements the company onboarding operations that sit
// in front of the external workflow webhooks: company creation, prompt
// generation and the two analysis job triggers.
package functions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/AIVisibility/internal/database"
	"github.com/TobiSchelling/AIVisibility/internal/logger"
	"github.com/TobiSchelling/AIVisibility/internal/visibility"
	"github.com/TobiSchelling/AIVisibility/internal/webhook"
)

var (
	ErrForbidden       = errors.New("access denied to this company")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrCompanyNotFound = fmt.Errorf("company %w", ErrNotFound)
	ErrProfileNotFound = fmt.Errorf("user profile %w", ErrNotFound)
)

// Failure is a server-side error with the message shown to API clients.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	return f.Message + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(msg string, err error) error {
	return &Failure{Message: msg, Err: err}
}

// Store is the subset of the database the functions need.
type Store interface {
	InsertCompany(ctx context.Context, c database.Company) (*database.Company, error)
	GetCompany(ctx context.Context, id string) (*database.Company, error)
	DeleteCompany(ctx context.Context, id string) error
	UpdateCompanyGoal(ctx context.Context, id, goal string) error
	AddCompanyUser(ctx context.Context, companyID, userID, role string) error
	GetCompanyRole(ctx context.Context, companyID, userID string) (string, error)
	UpsertUserProfile(ctx context.Context, p database.UserProfile) error
	GetUserProfile(ctx context.Context, id string) (*database.UserProfile, error)
	UpdateUserProfile(ctx context.Context, id string, u database.ProfileUpdate) error
	InsertPrompts(ctx context.Context, prompts []database.Prompt) ([]database.Prompt, error)
}

// Webhooks triggers the external workflows.
type Webhooks interface {
	GeneratePrompts(ctx context.Context, req webhook.PromptRequest) ([]string, error)
	AnalyzePrompts(ctx context.Context, companyID string) (*webhook.Reply, error)
	AnalyzeResponses(ctx context.Context, companyID string) (*webhook.Reply, error)
}

// Service runs the functions against a store and the webhooks.
type Service struct {
	store Store
	hooks Webhooks
	log   *logger.Logger
}

// NewService creates a Service. log may be nil.
func NewService(store Store, hooks Webhooks, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, hooks: hooks, log: log}
}

// CreateCompanyRequest is the create-company body.
type CreateCompanyRequest struct {
	CompanyName               string  `json:"companyName"`
	CompanyDomain             string  `json:"companyDomain"`
	CompanyCountry            string  `json:"companyCountry"`
	FirstName                 *string `json:"firstName"`
	LastName                  *string `json:"lastName"`
	SearchOptimizationCountry *string `json:"searchOptimizationCountry"`
}

// Authorize returns the user's role in the company or ErrForbidden.
func (s *Service) Authorize(ctx context.Context, userID, companyID string) (string, error) {
	if companyID == "" {
		return "", ErrForbidden
	}
	role, err := s.store.GetCompanyRole(ctx, companyID, userID)
	if err != nil {
		return "", fmt.Errorf("checking membership: %w", err)
	}
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

// CreateCompany inserts the company and makes the user its admin. The
// company is removed again when the membership cannot be written. Profile
// fields are applied best-effort.
func (s *Service) CreateCompany(ctx context.Context, userID string, req CreateCompanyRequest) (*database.Company, error) {
	name := strings.TrimSpace(req.CompanyName)
	if name == "" {
		return nil, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}

	c := database.Company{Name: name}
	if strings.TrimSpace(req.CompanyDomain) != "" {
		domain, err := visibility.CanonicalDomain(req.CompanyDomain)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		c.Domain = &domain
	}
	if req.CompanyCountry != "" {
		country := req.CompanyCountry
		c.Country = &country
	}

	company, err := s.store.InsertCompany(ctx, c)
	if err != nil {
		return nil, fail("Failed to create company", err)
	}

	if err := s.store.AddCompanyUser(ctx, company.ID, userID, database.RoleAdmin); err != nil {
		s.log.Warn("adding company user failed, rolling back company", "company_id", company.ID, "error", err)
		if derr := s.store.DeleteCompany(ctx, company.ID); derr != nil {
			s.log.Error("rolling back company failed", "company_id", company.ID, "error", derr)
		}
		return nil, fail("Failed to add user to company", err)
	}

	update := database.ProfileUpdate{
		FirstName:                 nonEmpty(req.FirstName),
		LastName:                  nonEmpty(req.LastName),
		SearchOptimizationCountry: nonEmpty(req.SearchOptimizationCountry),
	}
	if update.FirstName != nil || update.LastName != nil || update.SearchOptimizationCountry != nil {
		if err := s.updateProfile(ctx, userID, update); err != nil {
			s.log.Warn("profile update failed", "user_id", userID, "error", err)
		}
	}

	s.log.Info("company created", "company_id", company.ID, "user_id", userID)
	return company, nil
}

func (s *Service) updateProfile(ctx context.Context, userID string, u database.ProfileUpdate) error {
	if err := s.store.UpsertUserProfile(ctx, database.UserProfile{ID: userID}); err != nil {
		return err
	}
	return s.store.UpdateUserProfile(ctx, userID, u)
}

// GeneratePrompts stores the goal, asks the workflow for prompts and saves
// them for the company.
func (s *Service) GeneratePrompts(ctx context.Context, userID, companyID, goal string) ([]database.Prompt, error) {
	if _, err := s.Authorize(ctx, userID, companyID); err != nil {
		return nil, err
	}

	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("getting company: %w", err)
	}
	if company == nil {
		return nil, ErrCompanyNotFound
	}

	if err := s.store.UpdateCompanyGoal(ctx, companyID, goal); err != nil {
		return nil, fail("Failed to update company goal", err)
	}

	profile, err := s.store.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	texts, err := s.hooks.GeneratePrompts(ctx, webhook.PromptRequest{
		CompanyName:   company.Name,
		CompanyDomain: company.Domain,
		CompanyGoal:   goal,
		Location:      profile.SearchOptimizationCountry,
	})
	if err != nil {
		return nil, err
	}

	description := "Generated prompt for " + company.Name
	rows := make([]database.Prompt, len(texts))
	for i, text := range texts {
		rows[i] = database.Prompt{
			Prompt:      text,
			Description: &description,
			Country:     profile.SearchOptimizationCountry,
			CompanyID:   companyID,
		}
	}
	saved, err := s.store.InsertPrompts(ctx, rows)
	if err != nil {
		return nil, fail("Failed to save prompts to database", err)
	}

	s.log.Info("prompts generated", "company_id", companyID, "count", len(saved))
	return saved, nil
}

// AnalyzePrompts starts competitor discovery for the company.
func (s *Service) AnalyzePrompts(ctx context.Context, userID, companyID string) (*webhook.Reply, error) {
	if _, err := s.Authorize(ctx, userID, companyID); err != nil {
		return nil, err
	}
	s.log.Info("triggering prompt analysis", "company_id", companyID)
	return s.hooks.AnalyzePrompts(ctx, companyID)
}

// AnalyzeResponses starts response analysis for the company.
func (s *Service) AnalyzeResponses(ctx context.Context, userID, companyID string) (*webhook.Reply, error) {
	if _, err := s.Authorize(ctx, userID, companyID); err != nil {
		return nil, err
	}
	s.log.Info("triggering response analysis", "company_id", companyID)
	return s.hooks.AnalyzeResponses(ctx, companyID)
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
