package middleware

import (
	"github.com/covxx/Paleta-sub000/pkg/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDMiddleware tags every request with an id so log lines from the
// CRUD layer and any sync work it triggers can be correlated. An incoming
// X-Request-ID is honored; otherwise a fresh UUID is assigned.
func RequestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get(logger.RequestIDKey)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// Echo the id back to the caller and keep it reachable for
		// logger.FromContext.
		c.Request().Header.Set(logger.RequestIDKey, requestID)
		c.Response().Header().Set(logger.RequestIDKey, requestID)
		c.Set(logger.RequestIDKey, requestID)

		return next(c)
	}
}
