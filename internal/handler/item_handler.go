package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/pkg/database"
	"github.com/covxx/Paleta-sub000/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ItemRequest defines the structure for item creation/update requests
type ItemRequest struct {
	Name        string  `json:"name" validate:"required"`
	SKU         string  `json:"sku" validate:"required"`
	Description string  `json:"description"`
	UnitPrice   float64 `json:"unit_price" validate:"required,gt=0"`
	Category    string  `json:"category"`
	IsActive    *bool   `json:"is_active"`
}

// LotRequest defines the structure for lot creation requests
type LotRequest struct {
	LotNumber   string     `json:"lot_number" validate:"required"`
	Quantity    float64    `json:"quantity"`
	HarvestDate *time.Time `json:"harvest_date"`
	ExpiryDate  *time.Time `json:"expiry_date"`
	Vendor      string     `json:"vendor"`
}

// ListItems handles retrieving all items with optional filtering
func ListItems(c echo.Context) error {
	log := logger.FromContext(c)

	db := database.GetDB()
	var items []model.Item

	query := db
	if isActive := c.QueryParam("is_active"); isActive != "" {
		if active, err := strconv.ParseBool(isActive); err == nil {
			query = query.Where("is_active = ?", active)
		}
	}
	if pending := c.QueryParam("sync_pending"); pending != "" {
		if dirty, err := strconv.ParseBool(pending); err == nil {
			query = query.Where("dirty = ?", dirty)
		}
	}

	if result := query.Find(&items); result.Error != nil {
		log.Error("Failed to list items", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve items"})
	}

	return c.JSON(http.StatusOK, items)
}

// GetItem handles retrieving a single item with its lots
func GetItem(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var item model.Item
	result := database.GetDB().Preload("Lots").First(&item, id)
	if result.Error != nil {
		log.Warn("Item not found", zap.String("item_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Item not found"})
	}

	return c.JSON(http.StatusOK, item)
}

// CreateItem handles creating a new item. New items start dirty so the next
// sync run pushes them to QuickBooks.
func CreateItem(c echo.Context) error {
	log := logger.FromContext(c)

	var req ItemRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	// Check if item with SKU already exists
	var count int64
	database.GetDB().Model(&model.Item{}).Where("sku = ?", req.SKU).Count(&count)
	if count > 0 {
		log.Warn("Item with this SKU already exists", zap.String("sku", req.SKU))
		return c.JSON(http.StatusConflict, echo.Map{"error": "Item with this SKU already exists"})
	}

	// New items are active unless the request says otherwise
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	item := model.Item{
		Name:        req.Name,
		SKU:         req.SKU,
		Description: req.Description,
		UnitPrice:   req.UnitPrice,
		Category:    req.Category,
		IsActive:    isActive,
		SyncMeta:    model.SyncMeta{Dirty: true},
	}

	if result := database.GetDB().Create(&item); result.Error != nil {
		log.Error("Failed to create item", zap.String("sku", req.SKU), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create item"})
	}

	log.Info("Item created",
		zap.Uint("item_id", item.ID),
		zap.String("sku", item.SKU))
	return c.JSON(http.StatusCreated, item)
}

// UpdateItem handles updating an existing item and flags it for sync
func UpdateItem(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var req ItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	var item model.Item
	if result := database.GetDB().First(&item, id); result.Error != nil {
		log.Warn("Item not found for update", zap.String("item_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Item not found"})
	}

	if req.SKU != item.SKU {
		var count int64
		database.GetDB().Model(&model.Item{}).Where("sku = ? AND id != ?", req.SKU, id).Count(&count)
		if count > 0 {
			return c.JSON(http.StatusConflict, echo.Map{"error": "Item with this SKU already exists"})
		}
	}

	item.Name = req.Name
	item.SKU = req.SKU
	item.Description = req.Description
	item.UnitPrice = req.UnitPrice
	item.Category = req.Category
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	// Business fields changed: flag for the next outbound sync.
	item.SyncMeta.Dirty = true

	if result := database.GetDB().Save(&item); result.Error != nil {
		log.Error("Failed to update item", zap.String("item_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update item"})
	}

	log.Info("Item updated", zap.Uint("item_id", item.ID), zap.String("sku", item.SKU))
	return c.JSON(http.StatusOK, item)
}

// DeleteItem handles deleting an item (soft delete)
func DeleteItem(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	result := database.GetDB().Delete(&model.Item{}, id)
	if result.Error != nil {
		log.Error("Failed to delete item", zap.String("item_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete item"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Item not found"})
	}

	log.Info("Item deleted", zap.String("item_id", id))
	return c.JSON(http.StatusOK, echo.Map{"message": "Item deleted successfully"})
}

// CreateLot records a received lot for an item
func CreateLot(c echo.Context) error {
	log := logger.FromContext(c)
	itemID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid item id"})
	}

	var item model.Item
	if result := database.GetDB().First(&item, itemID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Item not found"})
	}

	var req LotRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	lot := model.Lot{
		LotNumber:   req.LotNumber,
		ItemID:      uint(itemID),
		Quantity:    req.Quantity,
		HarvestDate: req.HarvestDate,
		ExpiryDate:  req.ExpiryDate,
		Vendor:      req.Vendor,
	}
	if result := database.GetDB().Create(&lot); result.Error != nil {
		log.Error("Failed to create lot",
			zap.String("lot_number", req.LotNumber),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create lot"})
	}

	log.Info("Lot created",
		zap.Uint("lot_id", lot.ID),
		zap.String("lot_number", lot.LotNumber),
		zap.Uint64("item_id", itemID))
	return c.JSON(http.StatusCreated, lot)
}

// ListLots returns all lots for an item
func ListLots(c echo.Context) error {
	itemID := c.Param("id")

	var lots []model.Lot
	if result := database.GetDB().Where("item_id = ?", itemID).Find(&lots); result.Error != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve lots"})
	}
	return c.JSON(http.StatusOK, lots)
}
