package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus enum constants. Status leaves draft/pending_approval only via
// approval; once approved, line items are immutable and only payment fields move.
const (
	InvoiceStatusDraft           = "draft"
	InvoiceStatusPendingApproval = "pending_approval"
	InvoiceStatusApproved        = "approved"
	InvoiceStatusSent            = "sent"
	InvoiceStatusPartiallyPaid   = "partially_paid"
	InvoiceStatusPaid            = "paid"
	InvoiceStatusCancelled       = "cancelled"
)

// ItemType enum constants for invoice line items
const (
	ItemTypeService    = "service"
	ItemTypeProduct    = "product"
	ItemTypeMedication = "medication"
	ItemTypeDiagnostic = "diagnostic"
)

// ApprovableStatuses lists the statuses an invoice may be approved from
var ApprovableStatuses = []string{InvoiceStatusDraft, InvoiceStatusPendingApproval}

// Invoice represents a billing document for a client visit.
// Financial invariants: TotalAmount = Subtotal + TaxAmount and
// BalanceDue = TotalAmount - AmountPaid after every mutation. Subtotal is
// the pre-discount line sum, so TaxAmount absorbs line discounts and can
// be negative.
type Invoice struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceNumber string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"invoice_number"`
	ClientID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Client        *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	PetID         *uuid.UUID      `gorm:"type:uuid;index" json:"pet_id"`
	Pet           *Pet            `gorm:"foreignKey:PetID" json:"pet,omitempty"`
	Status        string          `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"subtotal"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"tax_amount"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_amount"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"amount_paid"`
	BalanceDue    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"balance_due"`
	GeneratedBy   *uuid.UUID      `gorm:"type:uuid" json:"generated_by"`
	Generator     *User           `gorm:"foreignKey:GeneratedBy" json:"generator,omitempty"`
	ApprovedBy    *uuid.UUID      `gorm:"type:uuid" json:"approved_by"`
	Approver      *User           `gorm:"foreignKey:ApprovedBy" json:"approver,omitempty"`
	ApprovedAt    *time.Time      `json:"approved_at"`
	Notes         string          `gorm:"type:text" json:"notes"`
	Items         []InvoiceItem   `gorm:"foreignKey:InvoiceID" json:"items"`
	Payments      []Payment       `gorm:"foreignKey:InvoiceID" json:"payments,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// IsApprovable reports whether the invoice may still transition to approved
func (i *Invoice) IsApprovable() bool {
	return i.Status == InvoiceStatusDraft || i.Status == InvoiceStatusPendingApproval
}

// InvoiceItem is one billable line on an invoice, optionally tied to an
// inventory item. Owned exclusively by its invoice and replaced wholesale
// when items are edited pre-approval.
type InvoiceItem struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	ItemType           string          `gorm:"type:varchar(20);not null" json:"item_type"` // service, product, medication, diagnostic
	Description        string          `gorm:"type:varchar(500);not null" json:"description"`
	Quantity           int             `gorm:"type:int;not null" json:"quantity"`
	UnitPrice          decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	TaxRate            decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"tax_rate"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"discount_percentage"`
	InventoryItemID    *uuid.UUID      `gorm:"type:uuid;index" json:"inventory_item_id"`
	InventoryItem      *InventoryItem  `gorm:"foreignKey:InventoryItemID" json:"inventory_item,omitempty"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	Total              decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
}

func (i *InvoiceItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Payment records money received against an approved invoice
type Payment struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	PaymentMethod   string          `gorm:"type:varchar(30);not null" json:"payment_method"` // cash, card, transfer
	Amount          decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	ReferenceNumber string          `gorm:"type:varchar(100)" json:"reference_number"`
	ProcessedBy     *uuid.UUID      `gorm:"type:uuid" json:"processed_by"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
