package handler

import (
	"net/http"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/pkg/database"
	"github.com/covxx/Paleta-sub000/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// PriceRuleRequest defines the structure for price rule creation requests
type PriceRuleRequest struct {
	ItemID        uint       `json:"item_id" validate:"required"`
	UnitPrice     float64    `json:"unit_price" validate:"required,gt=0"`
	EffectiveDate *time.Time `json:"effective_date"`
	Note          string     `json:"note"`
}

// ListPriceRules handles retrieving price rules, optionally filtered by item
func ListPriceRules(c echo.Context) error {
	log := logger.FromContext(c)

	query := database.GetDB().Preload("Item")
	if itemID := c.QueryParam("item_id"); itemID != "" {
		query = query.Where("item_id = ?", itemID)
	}

	var rules []model.PriceRule
	if result := query.Order("effective_date DESC").Find(&rules); result.Error != nil {
		log.Error("Failed to list price rules", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve price rules"})
	}

	return c.JSON(http.StatusOK, rules)
}

// CreatePriceRule records a new selling price for an item. The local item
// price is updated immediately; the rule itself is pushed to QuickBooks on
// the next pricing sync run.
func CreatePriceRule(c echo.Context) error {
	log := logger.FromContext(c)

	var req PriceRuleRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	db := database.GetDB()

	var item model.Item
	if result := db.First(&item, req.ItemID); result.Error != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Item not found"})
	}

	effective := time.Now()
	if req.EffectiveDate != nil {
		effective = *req.EffectiveDate
	}

	rule := model.PriceRule{
		ItemID:        req.ItemID,
		UnitPrice:     req.UnitPrice,
		EffectiveDate: effective,
		Note:          req.Note,
		SyncMeta:      model.SyncMeta{Dirty: true},
	}
	if result := db.Create(&rule); result.Error != nil {
		log.Error("Failed to create price rule",
			zap.Uint("item_id", req.ItemID),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create price rule"})
	}

	// Keep the local catalog price in step with the newest rule.
	item.UnitPrice = req.UnitPrice
	if result := db.Save(&item); result.Error != nil {
		log.Error("Failed to update item price",
			zap.Uint("item_id", item.ID),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update item price"})
	}

	log.Info("Price rule created",
		zap.Uint("price_rule_id", rule.ID),
		zap.Uint("item_id", rule.ItemID),
		zap.Float64("unit_price", rule.UnitPrice))
	return c.JSON(http.StatusCreated, rule)
}
