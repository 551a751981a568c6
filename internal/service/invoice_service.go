package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type InvoiceItemRequest struct {
	ItemType           string  `json:"item_type" binding:"required,oneof=service product medication diagnostic"`
	Description        string  `json:"description" binding:"required"`
	Quantity           int     `json:"quantity" binding:"required,min=1"`
	UnitPrice          string  `json:"unit_price" binding:"required"`
	TaxRate            string  `json:"tax_rate"`
	DiscountPercentage string  `json:"discount_percentage"`
	InventoryItemID    *string `json:"inventory_item_id"`
}

type CreateInvoiceRequest struct {
	ClientID string               `json:"client_id" binding:"required,uuid"`
	PetID    *string              `json:"pet_id" binding:"omitempty,uuid"`
	Status   string               `json:"status" binding:"omitempty,oneof=draft pending_approval"`
	Notes    string               `json:"notes"`
	Items    []InvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
}

// ApproveInvoiceRequest optionally overrides the invoice's line items at the
// moment of approval. When Items is nil the stored items are billed as-is.
type ApproveInvoiceRequest struct {
	Items []InvoiceItemRequest `json:"items" binding:"omitempty,min=1,dive"`
	Notes *string              `json:"notes"`
}

type RecordPaymentRequest struct {
	PaymentMethod   string `json:"payment_method" binding:"required,oneof=cash card transfer"`
	Amount          string `json:"amount" binding:"required"`
	ReferenceNumber string `json:"reference_number"`
	Notes           string `json:"notes"`
}

type InvoiceItemResponse struct {
	ID                 string  `json:"id"`
	ItemType           string  `json:"item_type"`
	Description        string  `json:"description"`
	Quantity           int     `json:"quantity"`
	UnitPrice          string  `json:"unit_price"`
	TaxRate            string  `json:"tax_rate"`
	DiscountPercentage string  `json:"discount_percentage"`
	InventoryItemID    *string `json:"inventory_item_id,omitempty"`
	Subtotal           string  `json:"subtotal"`
	Total              string  `json:"total"`
}

type PaymentResponse struct {
	ID              string `json:"id"`
	PaymentMethod   string `json:"payment_method"`
	Amount          string `json:"amount"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       string `json:"created_at"`
}

type InvoiceResponse struct {
	ID            string                `json:"id"`
	InvoiceNumber string                `json:"invoice_number"`
	ClientID      string                `json:"client_id"`
	ClientName    string                `json:"client_name,omitempty"`
	PetID         *string               `json:"pet_id,omitempty"`
	PetName       string                `json:"pet_name,omitempty"`
	Status        string                `json:"status"`
	Subtotal      string                `json:"subtotal"`
	TaxAmount     string                `json:"tax_amount"`
	TotalAmount   string                `json:"total_amount"`
	AmountPaid    string                `json:"amount_paid"`
	BalanceDue    string                `json:"balance_due"`
	ApprovedBy    *string               `json:"approved_by,omitempty"`
	ApprovedAt    *string               `json:"approved_at,omitempty"`
	Notes         string                `json:"notes,omitempty"`
	Items         []InvoiceItemResponse `json:"items"`
	Payments      []PaymentResponse     `json:"payments,omitempty"`
	CreatedAt     string                `json:"created_at"`
}

// MedicationLabel is the print payload for one dispensed medication line
type MedicationLabel struct {
	ItemID      string `json:"item_id"`
	ItemName    string `json:"item_name"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	PetName     string `json:"pet_name,omitempty"`
	OwnerName   string `json:"owner_name"`
}

// ApprovalResult is the approve operation's response payload
type ApprovalResult struct {
	Invoice           *InvoiceResponse `json:"invoice"`
	InventoryDeducted int              `json:"inventory_deducted"`
	LabelsGenerated   int              `json:"labels_generated"`
}

type InvoiceFilter struct {
	Status        string
	ClientID      string
	PetID         string
	InvoiceNumber string
	Page          int
	Limit         int
}

// --- Interface ---

type InvoiceService interface {
	CreateInvoice(ctx context.Context, userID string, req CreateInvoiceRequest) (*InvoiceResponse, error)
	GetInvoice(ctx context.Context, id string) (*InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error)
	ApproveInvoice(ctx context.Context, userID string, id string, req ApproveInvoiceRequest) (*ApprovalResult, error)
	RecordPayment(ctx context.Context, userID string, id string, req RecordPaymentRequest) (*InvoiceResponse, error)
	SendInvoice(ctx context.Context, userID string, id string) (*InvoiceResponse, error)
	CancelInvoice(ctx context.Context, userID string, id string) (*InvoiceResponse, error)
}

type invoiceService struct {
	invoices  repository.InvoiceRepository
	items     repository.InventoryRepository
	clients   repository.ClientRepository
	sequences repository.SequenceRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	adjuster  *StockAdjuster
	notifier  Notifier
}

func NewInvoiceService(
	invoices repository.InvoiceRepository,
	items repository.InventoryRepository,
	clients repository.ClientRepository,
	sequences repository.SequenceRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	adjuster *StockAdjuster,
	notifier Notifier,
) InvoiceService {
	return &invoiceService{
		invoices:  invoices,
		items:     items,
		clients:   clients,
		sequences: sequences,
		auditRepo: auditRepo,
		txManager: txManager,
		adjuster:  adjuster,
		notifier:  notifier,
	}
}

// --- Create / read ---

func (s *invoiceService) CreateInvoice(ctx context.Context, userID string, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return nil, &ValidationError{Field: "client_id", Message: "invalid client id"}
	}

	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "client", ID: req.ClientID}
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}

	var petID *uuid.UUID
	if req.PetID != nil {
		parsed, err := uuid.Parse(*req.PetID)
		if err != nil {
			return nil, &ValidationError{Field: "pet_id", Message: "invalid pet id"}
		}
		pet, err := s.clients.FindPetByID(ctx, parsed)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &NotFoundError{Resource: "pet", ID: *req.PetID}
			}
			return nil, fmt.Errorf("failed to load pet: %w", err)
		}
		if pet.ClientID != client.ID {
			return nil, &ValidationError{Field: "pet_id", Message: "pet does not belong to this client"}
		}
		petID = &parsed
	}

	items, err := s.buildInvoiceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = model.InvoiceStatusDraft
	}

	invoice := &model.Invoice{
		ClientID:    client.ID,
		PetID:       petID,
		Status:      status,
		Notes:       req.Notes,
		GeneratedBy: parseActorID(userID),
		Items:       items,
	}
	applyInvoiceTotals(invoice, items)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		seq, err := s.sequences.Next(txCtx, invoiceSequenceName(time.Now()))
		if err != nil {
			return fmt.Errorf("failed to allocate invoice number: %w", err)
		}
		invoice.InvoiceNumber = fmt.Sprintf("INV-%d-%06d", time.Now().Year(), seq)

		if err := s.invoices.Create(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		return s.writeInvoiceAudit(txCtx, userID, model.ActionCreateInvoice, invoice, map[string]interface{}{
			"invoice_number": invoice.InvoiceNumber,
			"total_amount":   invoice.TotalAmount.StringFixed(2),
			"item_count":     len(items),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetInvoice(ctx, invoice.ID.String())
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*InvoiceResponse, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return nil, &ValidationError{Field: "id", Message: "invalid invoice id"}
	}

	invoice, err := s.invoices.FindByIDFull(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "invoice", ID: id}
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}

	res := toInvoiceResponse(invoice)
	return &res, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error) {
	repoFilter := repository.InvoiceListFilter{
		Status:        filter.Status,
		InvoiceNumber: filter.InvoiceNumber,
		Page:          filter.Page,
		Limit:         filter.Limit,
	}
	if repoFilter.Page <= 0 {
		repoFilter.Page = 1
	}
	if repoFilter.Limit <= 0 {
		repoFilter.Limit = 20
	}
	if filter.ClientID != "" {
		parsed, err := uuid.Parse(filter.ClientID)
		if err != nil {
			return nil, 0, &ValidationError{Field: "client_id", Message: "invalid client id"}
		}
		repoFilter.ClientID = &parsed
	}
	if filter.PetID != "" {
		parsed, err := uuid.Parse(filter.PetID)
		if err != nil {
			return nil, 0, &ValidationError{Field: "pet_id", Message: "invalid pet id"}
		}
		repoFilter.PetID = &parsed
	}

	invoices, total, err := s.invoices.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}

	res := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		res = append(res, toInvoiceResponse(&invoices[i]))
	}
	return res, total, nil
}

// --- Approval ---

// ApproveInvoice finalizes an invoice and deducts inventory in one unit of
// work. Steps, all inside the transaction:
//
//  1. load the invoice with items and reject non-approvable statuses
//  2. apply the optional line-item override and recompute all totals
//  3. deduct stock once per distinct referenced inventory item (quantities
//     across duplicate lines are summed first)
//  4. transition the status under a guard so a concurrent approval loses
//
// Any failure rolls the whole thing back. Notifications (approved event,
// medication labels, low-stock warnings) go out only after commit.
func (s *invoiceService) ApproveInvoice(ctx context.Context, userID string, id string, req ApproveInvoiceRequest) (*ApprovalResult, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return nil, &ValidationError{Field: "id", Message: "invalid invoice id"}
	}
	approverID := parseActorID(userID)

	var (
		labels    []MedicationLabel
		lowStock  []*model.InventoryItem
		deducted  int
		approvedN string
	)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoices.FindByIDWithItems(txCtx, invoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "invoice", ID: id}
			}
			return fmt.Errorf("failed to load invoice: %w", err)
		}
		if !invoice.IsApprovable() {
			return &InvalidStateError{
				Entity:  "invoice",
				ID:      id,
				Status:  invoice.Status,
				Message: "invoice cannot be approved in current status",
			}
		}

		items := invoice.Items
		if req.Items != nil {
			items, err = s.buildInvoiceItems(txCtx, req.Items)
			if err != nil {
				return err
			}
			if err := s.invoices.ReplaceItems(txCtx, invoice.ID, items); err != nil {
				return fmt.Errorf("failed to replace invoice items: %w", err)
			}
		}

		applyInvoiceTotals(invoice, items)
		if err := s.invoices.UpdateTotals(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to save invoice totals: %w", err)
		}

		adjustments, err := s.deductInventory(txCtx, invoice, items, approverID)
		if err != nil {
			return err
		}
		deducted = len(adjustments)
		itemNames := make(map[uuid.UUID]string, len(adjustments))
		for _, adj := range adjustments {
			itemNames[adj.Item.ID] = adj.Item.Name
			if adj.LowStock {
				lowStock = append(lowStock, adj.Item)
			}
		}

		now := time.Now()
		rows, err := s.invoices.TransitionStatus(txCtx, invoice.ID, repository.StatusTransition{
			FromStatuses: model.ApprovableStatuses,
			ToStatus:     model.InvoiceStatusApproved,
			ApprovedBy:   approverID,
			ApprovedAt:   &now,
			Notes:        req.Notes,
		})
		if err != nil {
			return fmt.Errorf("failed to transition invoice status: %w", err)
		}
		if rows == 0 {
			return &InvalidStateError{
				Entity:  "invoice",
				ID:      id,
				Status:  invoice.Status,
				Message: "invoice was approved or cancelled by another user",
			}
		}

		labels = collectMedicationLabels(invoice, items, itemNames)
		approvedN = invoice.InvoiceNumber

		return s.writeInvoiceAudit(txCtx, userID, model.ActionApproveInvoice, invoice, map[string]interface{}{
			"invoice_number": invoice.InvoiceNumber,
			"total_amount":   invoice.TotalAmount.StringFixed(2),
			"deductions":     len(adjustments),
		})
	})
	if err != nil {
		return nil, err
	}

	res, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ws.EventInvoiceApproved, map[string]interface{}{
		"invoice_id":     id,
		"invoice_number": approvedN,
		"status":         model.InvoiceStatusApproved,
	})
	if len(labels) > 0 {
		s.notifier.Publish(ws.EventPrintMedicationLabels, labels)
	}
	for _, item := range lowStock {
		s.notifier.Publish(ws.EventInventoryLowStock, lowStockPayload(item))
	}

	return &ApprovalResult{
		Invoice:           res,
		InventoryDeducted: deducted,
		LabelsGenerated:   len(labels),
	}, nil
}

// deductInventory applies one stock deduction per distinct referenced
// inventory item. Duplicate lines referencing the same item are netted into
// a single movement so the transaction ledger stays one-row-per-item.
func (s *invoiceService) deductInventory(ctx context.Context, invoice *model.Invoice, items []model.InvoiceItem, actorID *uuid.UUID) ([]*StockAdjustment, error) {
	totals := make(map[uuid.UUID]int)
	for i := range items {
		if items[i].InventoryItemID == nil {
			continue
		}
		totals[*items[i].InventoryItemID] += items[i].Quantity
	}
	if len(totals) == 0 {
		return nil, nil
	}

	// Deterministic order keeps deadlock risk and test output stable
	ids := make([]uuid.UUID, 0, len(totals))
	for itemID := range totals {
		ids = append(ids, itemID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	refID := invoice.ID
	adjustments := make([]*StockAdjustment, 0, len(ids))
	for _, itemID := range ids {
		adj, err := s.adjuster.Adjust(ctx, AdjustParams{
			ItemID:          itemID,
			Quantity:        -totals[itemID],
			TransactionType: model.TxTypeSale,
			ActorID:         actorID,
			ReferenceType:   model.RefTypeInvoice,
			ReferenceID:     &refID,
			Notes:           fmt.Sprintf("Invoice %s", invoice.InvoiceNumber),
		})
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, nil
}

// --- Payments and lifecycle ---

func (s *invoiceService) RecordPayment(ctx context.Context, userID string, id string, req RecordPaymentRequest) (*InvoiceResponse, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return nil, &ValidationError{Field: "id", Message: "invalid invoice id"}
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, &ValidationError{Field: "amount", Message: "invalid decimal amount"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}

	payableStatuses := []string{
		model.InvoiceStatusApproved,
		model.InvoiceStatusSent,
		model.InvoiceStatusPartiallyPaid,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoices.FindByID(txCtx, invoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "invoice", ID: id}
			}
			return fmt.Errorf("failed to load invoice: %w", err)
		}

		// The balance moves through a guarded incremental update so two
		// payments landing at once both count instead of the later write
		// clobbering the earlier one.
		rows, err := s.invoices.ApplyPayment(txCtx, invoice.ID, amount, payableStatuses)
		if err != nil {
			return fmt.Errorf("failed to apply payment: %w", err)
		}
		if rows == 0 {
			current, readErr := s.invoices.FindByID(txCtx, invoiceID)
			if readErr != nil {
				current = invoice
			}
			for _, st := range payableStatuses {
				if current.Status == st {
					return &ValidationError{
						Field:   "amount",
						Message: fmt.Sprintf("exceeds balance due of %s", current.BalanceDue.StringFixed(2)),
					}
				}
			}
			return &InvalidStateError{
				Entity:  "invoice",
				ID:      id,
				Status:  current.Status,
				Message: "payments can only be recorded against an approved invoice",
			}
		}

		updated, err := s.invoices.FindByID(txCtx, invoiceID)
		if err != nil {
			return fmt.Errorf("failed to reload invoice: %w", err)
		}

		newStatus := model.InvoiceStatusPartiallyPaid
		if updated.BalanceDue.IsZero() {
			newStatus = model.InvoiceStatusPaid
		}
		if updated.Status != newStatus {
			rows, err := s.invoices.TransitionStatus(txCtx, invoice.ID, repository.StatusTransition{
				FromStatuses: payableStatuses,
				ToStatus:     newStatus,
			})
			if err != nil {
				return fmt.Errorf("failed to transition invoice status: %w", err)
			}
			if rows == 0 {
				return &InvalidStateError{
					Entity:  "invoice",
					ID:      id,
					Status:  updated.Status,
					Message: "invoice status changed while recording payment",
				}
			}
		}

		payment := &model.Payment{
			InvoiceID:       invoice.ID,
			PaymentMethod:   req.PaymentMethod,
			Amount:          amount,
			ReferenceNumber: req.ReferenceNumber,
			ProcessedBy:     parseActorID(userID),
			Notes:           req.Notes,
		}
		if err := s.invoices.CreatePayment(txCtx, payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}

		return s.writeInvoiceAudit(txCtx, userID, model.ActionRecordPayment, invoice, map[string]interface{}{
			"invoice_number": invoice.InvoiceNumber,
			"amount":         amount.StringFixed(2),
			"method":         req.PaymentMethod,
			"balance_due":    updated.BalanceDue.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	res, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ws.EventPaymentRecorded, map[string]interface{}{
		"invoice_id":     id,
		"invoice_number": res.InvoiceNumber,
		"amount":         amount.StringFixed(2),
		"balance_due":    res.BalanceDue,
		"status":         res.Status,
	})

	return res, nil
}

func (s *invoiceService) SendInvoice(ctx context.Context, userID string, id string) (*InvoiceResponse, error) {
	return s.transitionLifecycle(ctx, userID, id, lifecycleTransition{
		from:    []string{model.InvoiceStatusApproved},
		to:      model.InvoiceStatusSent,
		action:  model.ActionSendInvoice,
		blocked: "only an approved invoice can be sent",
	})
}

func (s *invoiceService) CancelInvoice(ctx context.Context, userID string, id string) (*InvoiceResponse, error) {
	return s.transitionLifecycle(ctx, userID, id, lifecycleTransition{
		from:    model.ApprovableStatuses,
		to:      model.InvoiceStatusCancelled,
		action:  model.ActionCancelInvoice,
		blocked: "invoice can no longer be cancelled",
	})
}

type lifecycleTransition struct {
	from    []string
	to      string
	action  string
	blocked string
}

func (s *invoiceService) transitionLifecycle(ctx context.Context, userID string, id string, t lifecycleTransition) (*InvoiceResponse, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return nil, &ValidationError{Field: "id", Message: "invalid invoice id"}
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoices.FindByID(txCtx, invoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "invoice", ID: id}
			}
			return fmt.Errorf("failed to load invoice: %w", err)
		}

		rows, err := s.invoices.TransitionStatus(txCtx, invoice.ID, repository.StatusTransition{
			FromStatuses: t.from,
			ToStatus:     t.to,
		})
		if err != nil {
			return fmt.Errorf("failed to transition invoice status: %w", err)
		}
		if rows == 0 {
			return &InvalidStateError{
				Entity:  "invoice",
				ID:      id,
				Status:  invoice.Status,
				Message: t.blocked,
			}
		}

		return s.writeInvoiceAudit(txCtx, userID, t.action, invoice, map[string]interface{}{
			"invoice_number": invoice.InvoiceNumber,
			"from_status":    invoice.Status,
			"to_status":      t.to,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetInvoice(ctx, id)
}

// --- Helpers ---

// buildInvoiceItems validates line-item requests and computes per-line
// amounts. Per line: subtotal = quantity * unit price, the discount
// percentage comes off the subtotal, tax applies to the discounted amount.
func (s *invoiceService) buildInvoiceItems(ctx context.Context, reqs []InvoiceItemRequest) ([]model.InvoiceItem, error) {
	hundred := decimal.NewFromInt(100)
	items := make([]model.InvoiceItem, 0, len(reqs))

	for i, req := range reqs {
		unitPrice, err := decimal.NewFromString(req.UnitPrice)
		if err != nil || unitPrice.IsNegative() {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].unit_price", i), Message: "must be a non-negative decimal"}
		}
		taxRate, err := parsePercent(req.TaxRate)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].tax_rate", i), Message: "must be a percentage between 0 and 100"}
		}
		discount, err := parsePercent(req.DiscountPercentage)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].discount_percentage", i), Message: "must be a percentage between 0 and 100"}
		}

		item := model.InvoiceItem{
			ItemType:           req.ItemType,
			Description:        req.Description,
			Quantity:           req.Quantity,
			UnitPrice:          unitPrice,
			TaxRate:            taxRate,
			DiscountPercentage: discount,
		}

		if req.InventoryItemID != nil {
			refID, err := uuid.Parse(*req.InventoryItemID)
			if err != nil {
				return nil, &ValidationError{Field: fmt.Sprintf("items[%d].inventory_item_id", i), Message: "invalid inventory item id"}
			}
			if _, err := s.items.FindByID(ctx, refID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, &NotFoundError{Resource: "inventory item", ID: *req.InventoryItemID}
				}
				return nil, fmt.Errorf("failed to load inventory item: %w", err)
			}
			item.InventoryItemID = &refID
		}

		subtotal := unitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
		discountAmount := subtotal.Mul(discount).Div(hundred)
		taxable := subtotal.Sub(discountAmount)
		tax := taxable.Mul(taxRate).Div(hundred)

		item.Subtotal = subtotal
		item.Total = taxable.Add(tax)
		items = append(items, item)
	}

	return items, nil
}

// applyInvoiceTotals recomputes the invoice's financial fields from its
// lines. Subtotal is the pre-discount sum of line subtotals; TaxAmount is
// the sum of (line total - line subtotal), which folds line discounts in
// and can go negative when discounts outweigh tax. Either way
// TotalAmount = Subtotal + TaxAmount holds exactly.
func applyInvoiceTotals(invoice *model.Invoice, items []model.InvoiceItem) {
	subtotal := decimal.Zero
	total := decimal.Zero

	for i := range items {
		subtotal = subtotal.Add(items[i].Subtotal)
		total = total.Add(items[i].Total)
	}

	invoice.Subtotal = subtotal
	invoice.TaxAmount = total.Sub(subtotal)
	invoice.TotalAmount = total
	invoice.BalanceDue = total.Sub(invoice.AmountPaid)
}

// collectMedicationLabels builds one print label per medication line. Item
// names come from the inventory rows touched by the deduction pass; lines
// without an inventory reference fall back to the line description.
func collectMedicationLabels(invoice *model.Invoice, items []model.InvoiceItem, itemNames map[uuid.UUID]string) []MedicationLabel {
	var labels []MedicationLabel
	for i := range items {
		if items[i].ItemType != model.ItemTypeMedication {
			continue
		}
		label := MedicationLabel{
			Description: items[i].Description,
			Quantity:    items[i].Quantity,
		}
		if items[i].InventoryItemID != nil {
			label.ItemID = items[i].InventoryItemID.String()
			label.ItemName = itemNames[*items[i].InventoryItemID]
		}
		if label.ItemName == "" {
			label.ItemName = items[i].Description
		}
		if invoice.Pet != nil {
			label.PetName = invoice.Pet.Name
		}
		if invoice.Client != nil {
			label.OwnerName = invoice.Client.FullName()
		}
		labels = append(labels, label)
	}
	return labels
}

func (s *invoiceService) writeInvoiceAudit(ctx context.Context, userID, action string, invoice *model.Invoice, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	audit := &model.AuditLog{
		UserID:     parseActorID(userID),
		Action:     action,
		EntityID:   invoice.ID.String(),
		EntityName: invoice.InvoiceNumber,
		Details:    string(payload),
	}
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func parsePercent(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	if parsed.IsNegative() || parsed.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("out of range")
	}
	return parsed, nil
}

func invoiceSequenceName(now time.Time) string {
	return fmt.Sprintf("invoice-%d", now.Year())
}

func toInvoiceResponse(invoice *model.Invoice) InvoiceResponse {
	res := InvoiceResponse{
		ID:            invoice.ID.String(),
		InvoiceNumber: invoice.InvoiceNumber,
		ClientID:      invoice.ClientID.String(),
		Status:        invoice.Status,
		Subtotal:      invoice.Subtotal.StringFixed(2),
		TaxAmount:     invoice.TaxAmount.StringFixed(2),
		TotalAmount:   invoice.TotalAmount.StringFixed(2),
		AmountPaid:    invoice.AmountPaid.StringFixed(2),
		BalanceDue:    invoice.BalanceDue.StringFixed(2),
		Notes:         invoice.Notes,
		Items:         make([]InvoiceItemResponse, 0, len(invoice.Items)),
		CreatedAt:     invoice.CreatedAt.Format(time.RFC3339),
	}
	if invoice.Client != nil {
		res.ClientName = invoice.Client.FullName()
	}
	if invoice.PetID != nil {
		petID := invoice.PetID.String()
		res.PetID = &petID
	}
	if invoice.Pet != nil {
		res.PetName = invoice.Pet.Name
	}
	if invoice.ApprovedBy != nil {
		approver := invoice.ApprovedBy.String()
		res.ApprovedBy = &approver
	}
	if invoice.ApprovedAt != nil {
		approvedAt := invoice.ApprovedAt.Format(time.RFC3339)
		res.ApprovedAt = &approvedAt
	}

	for i := range invoice.Items {
		item := &invoice.Items[i]
		itemRes := InvoiceItemResponse{
			ID:                 item.ID.String(),
			ItemType:           item.ItemType,
			Description:        item.Description,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice.StringFixed(2),
			TaxRate:            item.TaxRate.StringFixed(2),
			DiscountPercentage: item.DiscountPercentage.StringFixed(2),
			Subtotal:           item.Subtotal.StringFixed(2),
			Total:              item.Total.StringFixed(2),
		}
		if item.InventoryItemID != nil {
			refID := item.InventoryItemID.String()
			itemRes.InventoryItemID = &refID
		}
		res.Items = append(res.Items, itemRes)
	}

	for i := range invoice.Payments {
		p := &invoice.Payments[i]
		res.Payments = append(res.Payments, PaymentResponse{
			ID:              p.ID.String(),
			PaymentMethod:   p.PaymentMethod,
			Amount:          p.Amount.StringFixed(2),
			ReferenceNumber: p.ReferenceNumber,
			Notes:           p.Notes,
			CreatedAt:       p.CreatedAt.Format(time.RFC3339),
		})
	}

	return res
}
