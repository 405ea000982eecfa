package httpapi

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/auth"
)

// accessLog пишет одну строку logrus на запрос.
func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		started := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		req := c.Request()
		res := c.Response()
		entry := s.logger.WithFields(log.Fields{
			"method":      req.Method,
			"path":        c.Path(),
			"status":      res.Status,
			"remote_ip":   c.RealIP(),
			"duration_ms": time.Since(started).Milliseconds(),
		})
		if res.Status >= 500 {
			entry.Warn("http request")
		} else {
			entry.Info("http request")
		}
		return nil
	}
}

// authenticate кладёт identity из bearer-токена в контекст запроса.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.verifier == nil {
			return next(c)
		}

		raw, err := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return err
		}
		identity, err := s.verifier.Verify(raw)
		if err != nil {
			return err
		}

		req := c.Request()
		c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), identity)))
		return next(c)
	}
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, _ := auth.FromContext(c.Request().Context())
		if err := auth.RequireAdmin(identity); err != nil {
			return err
		}
		return next(c)
	}
}

// authorizeUser проверяет, что вызывающий может действовать от имени username.
func (s *Server) authorizeUser(c echo.Context, username string) error {
	if s.verifier == nil {
		return nil
	}
	identity, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return auth.ErrMissingToken
	}
	return auth.Authorize(identity, username)
}

// authorizeOrder проверяет, что заказ принадлежит вызывающему.
func (s *Server) authorizeOrder(c echo.Context, orderID string) error {
	if s.verifier == nil {
		return nil
	}
	identity, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return auth.ErrMissingToken
	}
	if identity.IsAdmin() {
		return nil
	}

	owned, err := s.svc.Ledger.OwnedBy(c.Request().Context(), orderID, identity.Username)
	if err != nil {
		return err
	}
	if !owned {
		return fmt.Errorf("%w: order %s belongs to another user", auth.ErrForbidden, orderID)
	}
	return nil
}
