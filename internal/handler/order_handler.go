package handler

import (
	"net/http"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/internal/qbsync"
	"github.com/covxx/Paleta-sub000/pkg/database"
	"github.com/covxx/Paleta-sub000/pkg/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var orderOrchestrator *qbsync.Orchestrator

// InitOrderHandler wires the sync orchestrator so order creation can attempt
// an instant push to QuickBooks.
func InitOrderHandler(orch *qbsync.Orchestrator) {
	orderOrchestrator = orch
}

// OrderLineRequest is a single line in an order creation request
type OrderLineRequest struct {
	ItemID    uint    `json:"item_id" validate:"required"`
	LotID     *uint   `json:"lot_id"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"required,gte=0"`
}

// OrderRequest defines the structure for order creation requests
type OrderRequest struct {
	CustomerID uint               `json:"customer_id" validate:"required"`
	OrderDate  *time.Time         `json:"order_date"`
	Lines      []OrderLineRequest `json:"lines" validate:"required,min=1"`
}

// OrderResponse is the order creation response, including the outcome of the
// instant sync attempt.
type OrderResponse struct {
	Order model.Order            `json:"order"`
	Sync  qbsync.OrderSyncOutcome `json:"sync"`
}

// ListOrders handles retrieving all orders
func ListOrders(c echo.Context) error {
	log := logger.FromContext(c)

	query := database.GetDB().Preload("Customer").Preload("Lines")
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var orders []model.Order
	if result := query.Order("created_at DESC").Find(&orders); result.Error != nil {
		log.Error("Failed to list orders", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve orders"})
	}

	return c.JSON(http.StatusOK, orders)
}

// GetOrder handles retrieving a single order with customer and lines
func GetOrder(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var order model.Order
	result := database.GetDB().
		Preload("Customer").
		Preload("Lines").
		Preload("Lines.Item").
		First(&order, id)
	if result.Error != nil {
		log.Warn("Order not found", zap.String("order_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Order not found"})
	}

	return c.JSON(http.StatusOK, order)
}

// CreateOrder handles creating a new order. After the order is stored an
// instant sync is attempted; if it cannot run right now the order stays
// queued for the next scheduled run.
func CreateOrder(c echo.Context) error {
	log := logger.FromContext(c)

	var req OrderRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if len(req.Lines) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Order must have at least one line"})
	}

	db := database.GetDB()

	var customer model.Customer
	if result := db.First(&customer, req.CustomerID); result.Error != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Customer not found"})
	}

	orderDate := time.Now()
	if req.OrderDate != nil {
		orderDate = *req.OrderDate
	}

	order := model.Order{
		OrderNumber: "ORD-" + uuid.New().String()[:8],
		CustomerID:  req.CustomerID,
		Status:      model.OrderStatusOpen,
		OrderDate:   orderDate,
		SyncMeta:    model.SyncMeta{Dirty: true},
	}

	var total float64
	for _, lr := range req.Lines {
		var item model.Item
		if result := db.First(&item, lr.ItemID); result.Error != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Item not found"})
		}
		unitPrice := lr.UnitPrice
		if unitPrice == 0 {
			unitPrice = item.UnitPrice
		}
		line := model.OrderLine{
			ItemID:    lr.ItemID,
			LotID:     lr.LotID,
			Quantity:  lr.Quantity,
			UnitPrice: unitPrice,
		}
		total += line.LineTotal()
		order.Lines = append(order.Lines, line)
	}
	order.Total = total

	if result := db.Create(&order); result.Error != nil {
		log.Error("Failed to create order", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create order"})
	}

	log.Info("Order created",
		zap.Uint("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Float64("total", order.Total))

	outcome := qbsync.OrderSyncOutcome{Reason: "sync not configured"}
	if orderOrchestrator != nil {
		outcome = orderOrchestrator.OnOrderCreated(c.Request().Context(), order.ID)
	}

	if result := db.Preload("Customer").Preload("Lines").First(&order, order.ID); result.Error != nil {
		log.Error("Failed to reload created order",
			zap.Uint("order_id", order.ID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve created order"})
	}
	return c.JSON(http.StatusCreated, OrderResponse{Order: order, Sync: outcome})
}

// UpdateOrderStatus handles moving an order through its lifecycle
func UpdateOrderStatus(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var req struct {
		Status string `json:"status" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	switch req.Status {
	case model.OrderStatusOpen, model.OrderStatusShipped, model.OrderStatusCancelled:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid order status"})
	}

	var order model.Order
	if result := database.GetDB().First(&order, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Order not found"})
	}

	if order.Status != req.Status {
		order.Status = req.Status
		// Business field changed: flag for the next outbound sync so the
		// QuickBooks invoice follows the lifecycle change.
		order.SyncMeta.Dirty = true
	}
	if result := database.GetDB().Save(&order); result.Error != nil {
		log.Error("Failed to update order status", zap.String("order_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update order"})
	}

	log.Info("Order status updated",
		zap.Uint("order_id", order.ID),
		zap.String("status", order.Status))
	return c.JSON(http.StatusOK, order)
}
