package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/internal/qbsync"
	"github.com/covxx/Paleta-sub000/internal/quickbooks"
	"github.com/covxx/Paleta-sub000/pkg/jwtutil"
	"github.com/covxx/Paleta-sub000/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var (
	tokenManager *quickbooks.TokenManager
	orchestrator *qbsync.Orchestrator
	statusSvc    *qbsync.StatusService
)

// InitQuickBooksHandler wires the QuickBooks connection and sync services
func InitQuickBooksHandler(tm *quickbooks.TokenManager, orch *qbsync.Orchestrator, status *qbsync.StatusService) {
	tokenManager = tm
	orchestrator = orch
	statusSvc = status
}

// Connect starts the OAuth2 authorization flow and returns the Intuit
// authorization URL for the browser to open.
func Connect(c echo.Context) error {
	log := logger.FromContext(c)

	state, err := jwtutil.NewOAuthState()
	if err != nil {
		log.Error("Failed to generate OAuth state", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to start authorization"})
	}

	log.Info("QuickBooks authorization started")
	return c.JSON(http.StatusOK, echo.Map{
		"authorization_url": tokenManager.AuthorizationURL(state),
	})
}

// Callback completes the OAuth2 flow. Intuit redirects here with an
// authorization code, the state we issued in Connect, and the realm id of
// the company the user picked.
func Callback(c echo.Context) error {
	log := logger.FromContext(c)

	if errParam := c.QueryParam("error"); errParam != "" {
		log.Warn("QuickBooks authorization denied", zap.String("oauth_error", errParam))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Authorization was denied"})
	}

	code := c.QueryParam("code")
	realmID := c.QueryParam("realmId")
	state := c.QueryParam("state")
	if code == "" || realmID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing code or realmId"})
	}

	if err := jwtutil.ValidateOAuthState(state); err != nil {
		log.Warn("Invalid OAuth state", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid or expired state"})
	}

	if err := tokenManager.Exchange(c.Request().Context(), code, realmID); err != nil {
		log.Error("Failed to exchange authorization code",
			zap.String("realm_id", realmID),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "Failed to complete authorization"})
	}

	log.Info("QuickBooks connected", zap.String("realm_id", realmID))
	return c.JSON(http.StatusOK, echo.Map{
		"message":  "QuickBooks connected successfully",
		"realm_id": realmID,
	})
}

// Disconnect revokes the stored connection
func Disconnect(c echo.Context) error {
	log := logger.FromContext(c)

	if err := tokenManager.Disconnect(c.Request().Context()); err != nil {
		log.Error("Failed to disconnect QuickBooks", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to disconnect"})
	}

	log.Info("QuickBooks disconnected")
	return c.JSON(http.StatusOK, echo.Map{"message": "QuickBooks disconnected"})
}

// SyncStatus returns the live sync status snapshot for the admin UI
func SyncStatus(c echo.Context) error {
	log := logger.FromContext(c)

	snapshot, err := statusSvc.CurrentStatus(c.Request().Context())
	if err != nil {
		log.Error("Failed to compute sync status", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve sync status"})
	}

	return c.JSON(http.StatusOK, snapshot)
}

// SyncLogs returns recent sync activity log entries. Supports optional
// entity and limit query parameters.
func SyncLogs(c echo.Context) error {
	log := logger.FromContext(c)

	var entityType model.EntityType
	if raw := c.QueryParam("entity"); raw != "" {
		et, ok := model.ParseEntityType(raw)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Unknown entity type"})
		}
		entityType = et
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid limit"})
		}
		limit = n
	}

	entries, err := statusSvc.RecentLogs(c.Request().Context(), entityType, limit)
	if err != nil {
		log.Error("Failed to retrieve sync logs", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve sync logs"})
	}

	return c.JSON(http.StatusOK, entries)
}

// TriggerSync runs a sync for one entity type on demand. Returns 409 if a
// run for that entity is already in progress.
func TriggerSync(c echo.Context) error {
	log := logger.FromContext(c)

	entityType, ok := model.ParseEntityType(c.Param("entity"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Unknown entity type"})
	}

	result, err := orchestrator.TriggerSync(c.Request().Context(), entityType)
	if err != nil {
		if errors.Is(err, qbsync.ErrSyncInProgress) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "Sync already in progress for this entity"})
		}
		if errors.Is(err, quickbooks.ErrNotConnected) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "QuickBooks is not connected"})
		}
		log.Error("Sync run failed",
			zap.String("entity_type", string(entityType)),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error": "Sync run failed",
			"details": err.Error(),
		})
	}

	log.Info("Manual sync completed",
		zap.String("entity_type", string(entityType)),
		zap.String("status", result.Status()),
		zap.Int("processed", result.Processed))
	return c.JSON(http.StatusOK, echo.Map{
		"entity_type": entityType,
		"status":      result.Status(),
		"summary":     result.Summary(),
		"processed":   result.Processed,
		"succeeded":   result.Succeeded,
		"failed":      result.Failed,
		"skipped":     result.Skipped,
	})
}
