package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/auth"
	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return "unauthorized"
	case errors.Is(err, auth.ErrForbidden):
		return "forbidden"
	case errors.Is(err, errRateLimited):
		return "too_many_requests"
	default:
		return domain.Kind(err)
	}
}

func statusFor(kind string) int {
	switch kind {
	case "not_found":
		return http.StatusNotFound
	case "invalid_quantity", "invalid_amount":
		return http.StatusUnprocessableEntity
	case "duplicate", "empty_cart", "invalid_transition", "unavailable":
		return http.StatusConflict
	case "validation":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "too_many_requests":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// handleError переводит ошибки обработчиков в {"error": kind, "message": text}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if text, ok := httpErr.Message.(string); ok {
			message = text
		}
		_ = c.JSON(httpErr.Code, errorResponse{Error: "http_error", Message: message})
		return
	}

	kind := errorKind(err)
	status := statusFor(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(log.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error("request failed")
		message = "internal error"
	}
	_ = c.JSON(status, errorResponse{Error: kind, Message: message})
}
