package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceListFilter narrows invoice listings
type InvoiceListFilter struct {
	Status        string
	ClientID      *uuid.UUID
	PetID         *uuid.UUID
	InvoiceNumber string
	Page          int
	Limit         int
}

// StatusTransition describes a guarded invoice status change
type StatusTransition struct {
	FromStatuses []string
	ToStatus     string
	ApprovedBy   *uuid.UUID
	ApprovedAt   *time.Time
	Notes        *string
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	UpdateTotals(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindByIDFull(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error)
	ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []model.InvoiceItem) error
	TransitionStatus(ctx context.Context, id uuid.UUID, transition StatusTransition) (int64, error)
	ApplyPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, fromStatuses []string) (int64, error)
	CreatePayment(ctx context.Context, payment *model.Payment) error
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Create(invoice).Error
}

// UpdateTotals writes only the invoice's financial columns. Status and
// approval fields never pass through here; they move exclusively via
// TransitionStatus so a totals write from a stale read cannot revert a
// transition committed by a concurrent writer.
func (r *invoiceRepository) UpdateTotals(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]interface{}{
			"subtotal":     invoice.Subtotal,
			"tax_amount":   invoice.TaxAmount,
			"total_amount": invoice.TotalAmount,
			"balance_due":  invoice.BalanceDue,
		}).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Client").
		Preload("Pet").
		First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByIDFull(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Items.InventoryItem").
		Preload("Client").
		Preload("Pet").
		Preload("Payments").
		First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Invoice{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", filter.ClientID)
	}
	if filter.PetID != nil {
		query = query.Where("pet_id = ?", filter.PetID)
	}
	if filter.InvoiceNumber != "" {
		query = query.Where("invoice_number LIKE ?", "%"+filter.InvoiceNumber+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.
		Preload("Items").
		Preload("Client").
		Preload("Pet").
		Order("created_at desc").
		Offset(offset).Limit(filter.Limit).
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

// ReplaceItems swaps the invoice's item set wholesale. Only valid while the
// invoice is still editable (pre-approval); must run inside the approval's
// unit of work when driven by an item override.
func (r *invoiceRepository) ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []model.InvoiceItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("invoice_id = ?", invoiceID).Delete(&model.InvoiceItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].InvoiceID = invoiceID
	}
	return db.Create(&items).Error
}

// TransitionStatus performs a guarded status change: the row is updated only
// if its current status is still one of FromStatuses. A zero rows-affected
// result means another writer got there first (or the status was never
// eligible) and the caller must treat the transition as rejected.
func (r *invoiceRepository) TransitionStatus(ctx context.Context, id uuid.UUID, transition StatusTransition) (int64, error) {
	updates := map[string]interface{}{"status": transition.ToStatus}
	if transition.ApprovedBy != nil {
		updates["approved_by"] = transition.ApprovedBy
	}
	if transition.ApprovedAt != nil {
		updates["approved_at"] = transition.ApprovedAt
	}
	if transition.Notes != nil {
		updates["notes"] = *transition.Notes
	}

	res := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ? AND status IN ?", id, transition.FromStatuses).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ApplyPayment adds amount to amount_paid behind a guard: the row must still
// be in a payable status and have enough balance left for the amount. The
// increment form means two concurrent payments both land instead of the
// later one overwriting the earlier; zero rows affected means the guard
// refused (status moved or the balance is too small).
func (r *invoiceRepository) ApplyPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, fromStatuses []string) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ? AND status IN ? AND balance_due >= ?", id, fromStatuses, amount).
		Updates(map[string]interface{}{
			"amount_paid": gorm.Expr("amount_paid + ?", amount),
			"balance_due": gorm.Expr("balance_due - ?", amount),
		})
	return res.RowsAffected, res.Error
}

func (r *invoiceRepository) CreatePayment(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}
