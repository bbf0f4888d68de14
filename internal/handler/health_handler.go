package handler

import (
	"net/http"

	"github.com/covxx/Paleta-sub000/pkg/database"
	"github.com/labstack/echo/v4"
)

// Health returns service health including database connectivity
func Health(c echo.Context) error {
	sqlDB, err := database.GetDB().DB()
	if err != nil || sqlDB.Ping() != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":   "degraded",
			"database": "unreachable",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
