package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/AIVisibility/internal/analytics"
	"github.com/TobiSchelling/AIVisibility/internal/database"
	"github.com/TobiSchelling/AIVisibility/internal/executor"
	"github.com/TobiSchelling/AIVisibility/internal/visibility"
)

type promptRequest struct {
	Prompt  string  `json:"prompt"`
	Country *string `json:"country"`
}

type competitorRequest struct {
	Name    string `json:"name"`
	Website string `json:"website"`
}

// call runs a store read or idempotent write through the executor's
// timeout and retry. Inserts bypass it so a retry cannot duplicate rows.
func call[T any](c *gin.Context, s *Server, q func(context.Context) (T, error)) (T, error) {
	res := executor.Execute(c.Request.Context(), s.exec, q)
	return res.Data, res.Err
}

// callErr is call for writes without a result.
func callErr(c *gin.Context, s *Server, q func(context.Context) error) error {
	_, err := call(c, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, q(ctx)
	})
	return err
}

func (s *Server) handleGetProfile(c *gin.Context) {
	id := userID(c)
	profile, err := call(c, s, func(ctx context.Context) (*database.UserProfile, error) {
		return s.db.GetUserProfile(ctx, id)
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	if profile == nil {
		abortError(c, http.StatusNotFound, "User profile not found")
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req database.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	id := userID(c)

	email := c.GetString(keyEmail)
	p := database.UserProfile{ID: id}
	if email != "" {
		p.Email = &email
	}
	err := callErr(c, s, func(ctx context.Context) error {
		if err := s.db.UpsertUserProfile(ctx, p); err != nil {
			return err
		}
		return s.db.UpdateUserProfile(ctx, id, req)
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	s.handleGetProfile(c)
}

func (s *Server) handleCountries(c *gin.Context) {
	countries, err := call(c, s, s.db.ListCountries)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, countries)
}

func (s *Server) handleCompanies(c *gin.Context) {
	id := userID(c)
	companies, err := call(c, s, func(ctx context.Context) ([]database.Company, error) {
		return s.db.ListCompaniesForUser(ctx, id)
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	if companies == nil {
		companies = []database.Company{}
	}
	c.JSON(http.StatusOK, companies)
}

func (s *Server) handleCompany(c *gin.Context) {
	companyID := c.Param("companyID")
	company, err := call(c, s, func(ctx context.Context) (*database.Company, error) {
		return s.db.GetCompany(ctx, companyID)
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	if company == nil {
		abortError(c, http.StatusNotFound, "Company not found")
		return
	}
	responses, err := call(c, s, func(ctx context.Context) (int, error) {
		return s.db.CountResponses(ctx, companyID, nil)
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"company": company, "role": c.GetString(keyRole), "responses": responses})
}

// period reads the period query parameter, answering 400 when invalid.
func period(c *gin.Context) (visibility.Period, bool) {
	p, err := visibility.ParsePeriod(c.Query("period"))
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return "", false
	}
	return p, true
}

func (s *Server) analyticsError(c *gin.Context, err error) {
	if errors.Is(err, analytics.ErrNotFound) {
		abortError(c, http.StatusNotFound, "Company not found")
		return
	}
	s.internalError(c, err)
}

func (s *Server) handleDashboard(c *gin.Context) {
	p, ok := period(c)
	if !ok {
		return
	}
	d, err := s.analytics.Dashboard(c.Request.Context(), c.Param("companyID"), p)
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handlePromptMetrics(c *gin.Context) {
	p, ok := period(c)
	if !ok {
		return
	}
	var entity *int64
	if raw := c.Query("entity"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			abortError(c, http.StatusBadRequest, "Invalid entity id")
			return
		}
		entity = &id
	}
	rows, err := s.analytics.PromptMetrics(c.Request.Context(), c.Param("companyID"), p, entity)
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handlePromptVisibility(c *gin.Context) {
	p, ok := period(c)
	if !ok {
		return
	}
	series, err := s.analytics.PromptVisibility(c.Request.Context(), c.Param("companyID"), p)
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) handleSources(c *gin.Context) {
	p, ok := period(c)
	if !ok {
		return
	}
	usage, err := s.analytics.Sources(c.Request.Context(), c.Param("companyID"), p)
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (s *Server) handleCompetitors(c *gin.Context) {
	rows, err := s.analytics.Competitors(c.Request.Context(), c.Param("companyID"))
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleResponse(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	r, err := call(c, s, func(ctx context.Context) (*database.Response, error) {
		return s.db.GetResponse(ctx, id)
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	if r == nil || r.CompanyID != c.Param("companyID") {
		abortError(c, http.StatusNotFound, "Response not found")
		return
	}
	html := ""
	if r.Body != nil {
		html = renderMarkdown(*r.Body)
	}
	c.JSON(http.StatusOK, gin.H{"response": r, "html": html})
}

func (s *Server) handleAddPrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		abortError(c, http.StatusBadRequest, "Prompt text is required")
		return
	}
	saved, err := s.db.InsertPrompts(c.Request.Context(), []database.Prompt{{
		Prompt:    strings.TrimSpace(req.Prompt),
		Country:   req.Country,
		CompanyID: c.Param("companyID"),
	}})
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved[0])
}

func (s *Server) handleUpdatePrompt(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		abortError(c, http.StatusBadRequest, "Prompt text is required")
		return
	}
	companyID := c.Param("companyID")
	changed, err := call(c, s, func(ctx context.Context) (bool, error) {
		return s.db.UpdatePrompt(ctx, companyID, id, strings.TrimSpace(req.Prompt), req.Country)
	})
	s.mutationResult(c, changed, err, "Prompt not found")
}

func (s *Server) handleDeletePrompt(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	companyID := c.Param("companyID")
	changed, err := call(c, s, func(ctx context.Context) (bool, error) {
		return s.db.DeletePrompt(ctx, companyID, id)
	})
	s.mutationResult(c, changed, err, "Prompt not found")
}

// handleAddCompetitor stores a manually added competitor. Manual entries
// skip review and are approved immediately; a name already on the roster
// is a conflict.
func (s *Server) handleAddCompetitor(c *gin.Context) {
	var req competitorRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		abortError(c, http.StatusBadRequest, "Competitor name is required")
		return
	}
	comp := database.Competitor{
		Name:      strings.TrimSpace(req.Name),
		Approved:  true,
		CompanyID: c.Param("companyID"),
	}
	existing, err := call(c, s, func(ctx context.Context) (*database.Competitor, error) {
		return s.db.FindCompetitorByName(ctx, comp.CompanyID, comp.Name)
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	if existing != nil {
		abortError(c, http.StatusConflict, "Competitor already exists")
		return
	}
	if website := visibility.EnsureScheme(req.Website); website != "" {
		comp.Website = &website
	}
	id, err := s.db.InsertCompetitor(c.Request.Context(), comp)
	if err != nil {
		s.internalError(c, err)
		return
	}
	comp.ID = id
	c.JSON(http.StatusCreated, comp)
}

func (s *Server) handleApproveCompetitor(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	companyID := c.Param("companyID")
	changed, err := call(c, s, func(ctx context.Context) (bool, error) {
		return s.db.ApproveCompetitor(ctx, companyID, id)
	})
	s.mutationResult(c, changed, err, "Competitor not found")
}

func (s *Server) handleUpdateCompetitor(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req competitorRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		abortError(c, http.StatusBadRequest, "Competitor name is required")
		return
	}
	var website *string
	if w := visibility.EnsureScheme(req.Website); w != "" {
		website = &w
	}
	companyID := c.Param("companyID")
	changed, err := call(c, s, func(ctx context.Context) (bool, error) {
		return s.db.UpdateCompetitor(ctx, companyID, id, strings.TrimSpace(req.Name), website)
	})
	s.mutationResult(c, changed, err, "Competitor not found")
}

func (s *Server) handleDeleteCompetitor(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	companyID := c.Param("companyID")
	changed, err := call(c, s, func(ctx context.Context) (bool, error) {
		return s.db.DeleteCompetitor(ctx, companyID, id)
	})
	s.mutationResult(c, changed, err, "Competitor not found")
}

func (s *Server) mutationResult(c *gin.Context, changed bool, err error, notFound string) {
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !changed {
		abortError(c, http.StatusNotFound, notFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortError(c, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}
