package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct {
	inventoryService service.InventoryService
}

func NewInventoryHandler(inventoryService service.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService}
}

func (h *InventoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	staff := middleware.RequireRole(model.RoleAdmin, model.RoleVeterinarian, model.RoleTechnician, model.RoleReceptionist)
	stockKeepers := middleware.RequireRole(model.RoleAdmin, model.RoleVeterinarian, model.RoleTechnician)

	inventory := router.Group("/api/inventory")
	{
		inventory.GET("", staff, h.ListItems)
		inventory.GET("/alerts", staff, h.GetAlerts)
		inventory.GET("/valuation", middleware.RequireRole(model.RoleAdmin, model.RoleVeterinarian), h.GetValuation)
		inventory.GET("/:id", staff, h.GetItem)
		inventory.GET("/:id/history", staff, h.GetHistory)
		inventory.POST("", stockKeepers, h.CreateItem)
		inventory.PUT("/:id", stockKeepers, h.UpdateItem)
		inventory.DELETE("/:id", middleware.RequireRole(model.RoleAdmin), h.DeleteItem)
		inventory.POST("/:id/adjust-stock", stockKeepers, h.AdjustStock)
	}
}

// ListItems handles retrieving paginated inventory items
// @Summary      List inventory items
// @Description  Retrieves a paginated list of inventory items with current stock levels
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Number of items per page (default 50)"
// @Param        search        query     string  false  "Search by name, SKU, or barcode"
// @Param        location      query     string  false  "Filter by storage location"
// @Param        low_stock     query     bool    false  "Only items at or below minimum stock"
// @Param        out_of_stock  query     bool    false  "Only items with zero stock"
// @Success      200  {object}  response.Response{data=response.ListPayload}
// @Failure      500  {object}  response.Response
// @Router       /api/inventory [get]
func (h *InventoryHandler) ListItems(c *gin.Context) {
	params := pagination.Parse(c)

	items, total, err := h.inventoryService.ListItems(c.Request.Context(), service.ItemFilter{
		Search:     c.Query("search"),
		Location:   c.Query("location"),
		LowStock:   c.Query("low_stock") == "true",
		OutOfStock: c.Query("out_of_stock") == "true",
		Page:       params.Page,
		Limit:      params.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessList(http.StatusOK, items, total, params.Page, params.Limit))
}

// GetItem fetches a single inventory item
// @Summary      Get inventory item
// @Description  Fetch a single inventory item's detail by ID
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Inventory Item ID"
// @Success      200  {object}  response.Response{data=service.ItemResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/inventory/{id} [get]
func (h *InventoryHandler) GetItem(c *gin.Context) {
	item, err := h.inventoryService.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// CreateItem creates a new inventory item
// @Summary      Create inventory item
// @Description  Creates a new inventory item with an initial stock level
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateItemRequest  true  "Create Item Payload"
// @Success      201      {object}  response.Response{data=service.ItemResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/inventory [post]
func (h *InventoryHandler) CreateItem(c *gin.Context) {
	var req service.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	item, err := h.inventoryService.CreateItem(c.Request.Context(), middleware.CurrentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, item))
}

// UpdateItem updates an inventory item's metadata
// @Summary      Update inventory item
// @Description  Updates item details; stock level can only change via adjust-stock
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Inventory Item ID"
// @Param        payload  body      service.UpdateItemRequest  true  "Update Item Payload"
// @Success      200      {object}  response.Response{data=service.ItemResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/inventory/{id} [put]
func (h *InventoryHandler) UpdateItem(c *gin.Context) {
	var req service.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	item, err := h.inventoryService.UpdateItem(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// DeleteItem soft deletes an inventory item
// @Summary      Delete inventory item
// @Description  Soft deletes an inventory item by ID
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Inventory Item ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/inventory/{id} [delete]
func (h *InventoryHandler) DeleteItem(c *gin.Context) {
	if err := h.inventoryService.DeleteItem(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Item deleted successfully"))
}

// AdjustStock applies a manual stock movement
// @Summary      Adjust stock
// @Description  Applies a signed stock movement and records the matching inventory transaction atomically
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Inventory Item ID"
// @Param        payload  body      service.AdjustStockRequest  true  "Adjust Stock Payload"
// @Success      200      {object}  response.Response{data=service.StockAdjustmentResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/inventory/{id}/adjust-stock [post]
func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	var req service.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.inventoryService.AdjustStock(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetHistory lists an item's stock movement ledger
// @Summary      Get stock history
// @Description  Retrieves the append-only stock transaction history for an item, newest first
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        id     path      string  true   "Inventory Item ID"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Number of items per page (default 50)"
// @Success      200  {object}  response.Response{data=response.ListPayload}
// @Failure      404  {object}  response.Response
// @Router       /api/inventory/{id}/history [get]
func (h *InventoryHandler) GetHistory(c *gin.Context) {
	params := pagination.Parse(c)

	history, total, err := h.inventoryService.GetHistory(c.Request.Context(), c.Param("id"), params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessList(http.StatusOK, history, total, params.Page, params.Limit))
}

// GetAlerts reports items needing attention
// @Summary      Get inventory alerts
// @Description  Retrieves low-stock and out-of-stock items with reorder suggestions
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.AlertsResponse}
// @Failure      500  {object}  response.Response
// @Router       /api/inventory/alerts [get]
func (h *InventoryHandler) GetAlerts(c *gin.Context) {
	alerts, err := h.inventoryService.GetAlerts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, alerts))
}

// GetValuation reports stock value at cost and retail
// @Summary      Get inventory valuation
// @Description  Computes total inventory value at cost and at retail price
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.ValuationResponse}
// @Failure      500  {object}  response.Response
// @Router       /api/inventory/valuation [get]
func (h *InventoryHandler) GetValuation(c *gin.Context) {
	valuation, err := h.inventoryService.GetValuation(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, valuation))
}
