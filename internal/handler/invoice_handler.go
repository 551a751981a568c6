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

type InvoiceHandler struct {
	invoiceService service.InvoiceService
}

func NewInvoiceHandler(invoiceService service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	staff := middleware.RequireRole(model.RoleAdmin, model.RoleVeterinarian, model.RoleTechnician, model.RoleReceptionist)
	approvers := middleware.RequireRole(model.RoleAdmin, model.RoleVeterinarian)
	frontDesk := middleware.RequireRole(model.RoleAdmin, model.RoleVeterinarian, model.RoleReceptionist)

	invoices := router.Group("/api/invoices")
	{
		invoices.GET("", staff, h.ListInvoices)
		invoices.GET("/:id", staff, h.GetInvoice)
		invoices.POST("", staff, h.CreateInvoice)
		invoices.POST("/:id/approve", approvers, h.ApproveInvoice)
		invoices.POST("/:id/payments", frontDesk, h.RecordPayment)
		invoices.POST("/:id/send", frontDesk, h.SendInvoice)
		invoices.POST("/:id/cancel", frontDesk, h.CancelInvoice)
	}
}

// ListInvoices handles retrieving paginated invoices
// @Summary      List invoices
// @Description  Retrieves a paginated list of invoices with optional filters
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        page            query     int     false  "Page number (default 1)"
// @Param        limit           query     int     false  "Number of items per page (default 20)"
// @Param        status          query     string  false  "Filter by status"
// @Param        client_id       query     string  false  "Filter by client"
// @Param        pet_id          query     string  false  "Filter by pet"
// @Param        invoice_number  query     string  false  "Search by invoice number"
// @Success      200  {object}  response.Response{data=response.ListPayload}
// @Failure      500  {object}  response.Response
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	params := pagination.Parse(c)

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), service.InvoiceFilter{
		Status:        c.Query("status"),
		ClientID:      c.Query("client_id"),
		PetID:         c.Query("pet_id"),
		InvoiceNumber: c.Query("invoice_number"),
		Page:          params.Page,
		Limit:         params.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessList(http.StatusOK, invoices, total, params.Page, params.Limit))
}

// GetInvoice fetches a single invoice with items and payments
// @Summary      Get invoice
// @Description  Fetch a single invoice's full detail by ID
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// CreateInvoice creates a draft invoice
// @Summary      Create invoice
// @Description  Creates a new invoice in draft or pending_approval status with computed totals
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateInvoiceRequest  true  "Create Invoice Payload"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req service.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), middleware.CurrentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// ApproveInvoice finalizes an invoice and deducts inventory atomically
// @Summary      Approve invoice
// @Description  Approves an invoice, recomputes totals, deducts referenced inventory stock, and emits print/low-stock events. All-or-nothing.
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true   "Invoice ID"
// @Param        payload  body      service.ApproveInvoiceRequest  false  "Optional line-item override"
// @Success      200      {object}  response.Response{data=service.ApprovalResult}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/invoices/{id}/approve [post]
func (h *InvoiceHandler) ApproveInvoice(c *gin.Context) {
	var req service.ApproveInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
			return
		}
	}

	result, err := h.invoiceService.ApproveInvoice(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RecordPayment records money received against an invoice
// @Summary      Record payment
// @Description  Records a payment against an approved invoice and updates its balance and status
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Invoice ID"
// @Param        payload  body      service.RecordPaymentRequest  true  "Payment Payload"
// @Success      200      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/invoices/{id}/payments [post]
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	invoice, err := h.invoiceService.RecordPayment(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// SendInvoice marks an approved invoice as sent to the client
// @Summary      Send invoice
// @Description  Transitions an approved invoice to sent
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id}/send [post]
func (h *InvoiceHandler) SendInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.SendInvoice(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// CancelInvoice cancels an invoice still awaiting approval
// @Summary      Cancel invoice
// @Description  Cancels a draft or pending invoice. Approved invoices cannot be cancelled.
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id}/cancel [post]
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.CancelInvoice(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}
