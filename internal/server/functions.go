package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/AIVisibility/internal/functions"
	"github.com/TobiSchelling/AIVisibility/internal/webhook"
)

type generatePromptsRequest struct {
	CompanyID   string `json:"companyId"`
	CompanyGoal string `json:"companyGoal"`
}

type analyzeRequest struct {
	CompanyID string `json:"companyId"`
}

func (s *Server) handleCreateCompany(c *gin.Context) {
	var req functions.CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	company, err := s.functions.CreateCompany(c.Request.Context(), userID(c), req)
	if err != nil {
		if errors.Is(err, functions.ErrInvalidInput) {
			abortError(c, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"company": company,
		"message": "Company created and user added successfully",
	})
}

func (s *Server) handleGeneratePrompts(c *gin.Context) {
	var req generatePromptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	prompts, err := s.functions.GeneratePrompts(c.Request.Context(), userID(c), req.CompanyID, req.CompanyGoal)
	if err != nil {
		var se *webhook.StatusError
		switch {
		case errors.Is(err, functions.ErrForbidden):
			abortError(c, http.StatusForbidden, "Access denied to this company")
		case errors.Is(err, functions.ErrCompanyNotFound):
			abortError(c, http.StatusNotFound, "Company not found")
		case errors.Is(err, functions.ErrProfileNotFound):
			abortError(c, http.StatusNotFound, "User profile not found")
		case errors.As(err, &se):
			s.log.Warn("generate prompts webhook failed", "status", se.Status)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":      "Failed to generate prompts from webhook",
				"status":     se.Status,
				"statusText": se.StatusText,
				"details":    fmt.Sprintf("Webhook returned %d: %s", se.Status, se.StatusText),
			})
		case errors.Is(err, webhook.ErrInvalidResponse), errors.Is(err, webhook.ErrMalformed):
			s.log.Warn("generate prompts webhook returned bad body", "error", err)
			abortError(c, http.StatusInternalServerError, "Invalid response format from webhook")
		default:
			s.internalError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"prompts": prompts,
		"message": fmt.Sprintf("Generated and saved %d prompts successfully", len(prompts)),
	})
}

func (s *Server) handleAnalyzePrompts(c *gin.Context) {
	s.relayAnalysis(c, "prompts", s.functions.AnalyzePrompts)
}

func (s *Server) handleAnalyzeResponses(c *gin.Context) {
	s.relayAnalysis(c, "responses", s.functions.AnalyzeResponses)
}

type analyzeFunc func(ctx context.Context, userID, companyID string) (*webhook.Reply, error)

// relayAnalysis triggers an analysis job and relays the webhook's answer.
func (s *Server) relayAnalysis(c *gin.Context, subject string, run analyzeFunc) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	reply, err := run(c.Request.Context(), userID(c), req.CompanyID)
	if err != nil {
		var se *webhook.StatusError
		var me *webhook.MalformedError
		switch {
		case errors.Is(err, functions.ErrForbidden):
			abortError(c, http.StatusForbidden, "Access denied to this company")
		case errors.As(err, &se):
			s.log.Warn("analysis webhook failed", "subject", subject, "status", se.Status)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":        fmt.Sprintf("Failed to analyze %s via webhook", subject),
				"status":       se.Status,
				"statusText":   se.StatusText,
				"details":      fmt.Sprintf("Webhook returned %d: %s", se.Status, se.StatusText),
				"responseBody": se.Body,
			})
		case errors.As(err, &me):
			s.log.Warn("analysis webhook returned malformed JSON", "subject", subject, "error", me.Err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       "Webhook returned malformed JSON response",
				"details":     fmt.Sprintf("JSON parse error: %v", me.Err),
				"rawResponse": me.Raw,
			})
		default:
			s.internalError(c, err)
		}
		return
	}

	message := "Prompt analysis completed successfully"
	if subject == "responses" {
		message = "Response analysis completed successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"data":    reply.Data,
	})
}
