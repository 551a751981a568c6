package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionType enum constants
const (
	TxTypeSale       = "sale"
	TxTypePurchase   = "purchase"
	TxTypeAdjustment = "adjustment"
)

// ReferenceType enum constants for inventory transactions
const (
	RefTypeInvoice       = "invoice"
	RefTypePurchaseOrder = "purchase_order"
)

// StockStatus enum constants
const (
	StockStatusOut     = "out_of_stock"
	StockStatusLow     = "low_stock"
	StockStatusOptimal = "optimal"
	StockStatusInStock = "in_stock"
)

// InventoryItem represents a stocked product or medication.
// CurrentStock is mutated only through the stock adjuster and never goes negative.
type InventoryItem struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SKU                   string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"sku"`
	Barcode               string          `gorm:"type:varchar(100)" json:"barcode"`
	Name                  string          `gorm:"type:varchar(255);not null" json:"name"`
	Description           string          `gorm:"type:text" json:"description"`
	Manufacturer          string          `gorm:"type:varchar(255)" json:"manufacturer"`
	UnitOfMeasure         string          `gorm:"type:varchar(50)" json:"unit_of_measure"`
	CostPerUnit           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"cost_per_unit"`
	SellingPrice          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"selling_price"`
	IsPrescription        bool            `gorm:"default:false" json:"is_prescription"`
	IsControlledSubstance bool            `gorm:"default:false" json:"is_controlled_substance"`
	CurrentStock          int             `gorm:"type:int;not null;default:0" json:"current_stock"`
	MinimumStock          int             `gorm:"type:int;not null;default:0" json:"minimum_stock"`
	OptimalStock          *int            `gorm:"type:int" json:"optimal_stock"`
	Location              string          `gorm:"type:varchar(100)" json:"location"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	DeletedAt             gorm.DeletedAt  `gorm:"index" json:"-"`
}

// BeforeCreate assigns the ID app-side so the same models work on Postgres
// and the sqlite test database
func (i *InventoryItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// StockStatus derives the display status from current stock and thresholds
func (i *InventoryItem) StockStatus() string {
	switch {
	case i.CurrentStock == 0:
		return StockStatusOut
	case i.CurrentStock <= i.MinimumStock:
		return StockStatusLow
	case i.OptimalStock != nil && i.CurrentStock >= *i.OptimalStock:
		return StockStatusOptimal
	default:
		return StockStatusInStock
	}
}

// InventoryTransaction is an append-only record of one stock movement.
// Quantity is signed: negative = consumption, positive = receipt/adjustment.
// StockAfter snapshots the item's stock as committed in the same unit of work.
type InventoryTransaction struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"item_id"`
	Item            *InventoryItem  `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	TransactionType string          `gorm:"type:varchar(20);not null" json:"transaction_type"` // sale, purchase, adjustment
	Quantity        int             `gorm:"type:int;not null" json:"quantity"`
	StockAfter      int             `gorm:"type:int;not null" json:"stock_after"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"unit_cost"`
	ReferenceType   string          `gorm:"type:varchar(30);index" json:"reference_type"` // invoice, purchase_order or empty for manual
	ReferenceID     *uuid.UUID      `gorm:"type:uuid;index" json:"reference_id"`
	PerformedBy     *uuid.UUID      `gorm:"type:uuid" json:"performed_by"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`
}

func (t *InventoryTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
