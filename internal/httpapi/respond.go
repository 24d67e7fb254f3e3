package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/polylate/polylate/internal/apperrors"
)

type errorResponse struct {
	Error string `json:"error"`
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

func successWithStatus(c echo.Context, code int, data any) error {
	return c.JSON(code, data)
}

// failWithError serializes a classified error as {"error": message} with the
// status its kind dictates. Unclassified errors become a plain 500.
func failWithError(c echo.Context, err error) error {
	kind, ok := apperrors.KindOf(err)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
	return c.JSON(kind.HTTPStatus(), errorResponse{Error: apperrors.Message(err)})
}

func failInvalid(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: message})
}

func internalError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: message})
}
