package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleSAMLLogin starts the SSO flow by redirecting to the identity
// provider. The assertion callback and metadata routes are served directly by
// the SAML middleware.
func (s *Server) handleSAMLLogin(c echo.Context) error {
	if s.saml == nil {
		return internalError(c, "single sign-on is not configured")
	}

	handler := s.saml.Middleware().RequireAccount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reaching this handler means the session is already established.
		w.WriteHeader(http.StatusNoContent)
	}))
	handler.ServeHTTP(c.Response(), c.Request())
	return nil
}
