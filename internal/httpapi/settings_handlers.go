package httpapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/polylate/polylate/internal/apperrors"
	"github.com/polylate/polylate/internal/db"
	"github.com/polylate/polylate/internal/samlauth"
)

type settingsRequest struct {
	AdminID                 string `json:"admin_id"`
	APIKey                  string `json:"api_key"`
	DeepLAPIKey             string `json:"deepl_api_key"`
	TextEndpoint            string `json:"text_translation_endpoint"`
	DocumentEndpoint        string `json:"document_translation_endpoint"`
	Region                  string `json:"region"`
	StorageConnectionString string `json:"storage_connection_string"`
}

type settingsResponse struct {
	AdminID          string `json:"admin_id"`
	TextEndpoint     string `json:"text_translation_endpoint"`
	DocumentEndpoint string `json:"document_translation_endpoint"`
	Region           string `json:"region"`
	UpdatedAt        string `json:"updated_at"`
}

// adminID resolves the acting admin: an explicit request field wins, then the
// SAML session subject when the request came through the SSO surface.
func (s *Server) adminID(c echo.Context, explicit string) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	if s.saml != nil {
		if id, err := samlauth.AdminID(c.Request()); err == nil {
			return id, nil
		}
	}
	return "", apperrors.InvalidRequest("admin_id is required")
}

func (s *Server) handleSaveSettings(c echo.Context) error {
	var req settingsRequest
	if err := c.Bind(&req); err != nil {
		return failInvalid(c, "request body must be JSON")
	}

	adminID, err := s.adminID(c, req.AdminID)
	if err != nil {
		return failWithError(c, err)
	}

	saved, err := s.settings.Save(c.Request().Context(), &db.AdminSettings{
		AdminID:                 adminID,
		APIKey:                  req.APIKey,
		DeepLAPIKey:             req.DeepLAPIKey,
		TextEndpoint:            req.TextEndpoint,
		DocumentEndpoint:        req.DocumentEndpoint,
		Region:                  req.Region,
		StorageConnectionString: req.StorageConnectionString,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("admin_id", adminID).Msg("save settings failed")
		return failWithError(c, err)
	}

	return success(c, buildSettingsResponse(saved))
}

func (s *Server) handleGetSettings(c echo.Context) error {
	adminID, err := s.adminID(c, c.QueryParam("admin_id"))
	if err != nil {
		return failWithError(c, err)
	}

	row, err := s.settings.Get(c.Request().Context(), adminID)
	if err != nil {
		if !apperrors.Is(err, apperrors.KindNotFound) {
			s.logger.Error().Err(err).Str("admin_id", adminID).Msg("load settings failed")
		}
		return failWithError(c, err)
	}

	return success(c, buildSettingsResponse(row))
}

// Credentials never leave the gateway; the response omits both provider API
// keys and the storage connection string.
func buildSettingsResponse(row *db.AdminSettings) settingsResponse {
	return settingsResponse{
		AdminID:          row.AdminID,
		TextEndpoint:     row.TextEndpoint,
		DocumentEndpoint: row.DocumentEndpoint,
		Region:           row.Region,
		UpdatedAt:        row.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type feedbackRequest struct {
	AdminID string `json:"admin_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (s *Server) handleSubmitFeedback(c echo.Context) error {
	if s.feedback == nil {
		return internalError(c, "feedback storage is not available")
	}

	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return failInvalid(c, "request body must be JSON")
	}
	adminID, err := s.adminID(c, req.AdminID)
	if err != nil {
		return failWithError(c, err)
	}
	if req.Rating < 1 || req.Rating > 5 {
		return failInvalid(c, "rating must be between 1 and 5")
	}

	row, err := s.feedback.InsertFeedback(c.Request().Context(), adminID, req.Rating, req.Comment)
	if err != nil {
		s.logger.Error().Err(err).Str("admin_id", adminID).Msg("insert feedback failed")
		return internalError(c, "failed to store feedback")
	}

	return success(c, map[string]any{
		"feedback_id": row.FeedbackID,
		"created_at":  row.CreatedAt,
	})
}

func (s *Server) handleListFeedback(c echo.Context) error {
	if s.feedback == nil {
		return internalError(c, "feedback storage is not available")
	}

	adminID, err := s.adminID(c, c.QueryParam("admin_id"))
	if err != nil {
		return failWithError(c, err)
	}

	limit := 50
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return failInvalid(c, "limit must be a positive integer")
		}
		limit = parsed
	}

	rows, err := s.feedback.ListFeedback(c.Request().Context(), adminID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("admin_id", adminID).Msg("list feedback failed")
		return internalError(c, "failed to load feedback")
	}

	return success(c, map[string]any{"items": rows})
}
