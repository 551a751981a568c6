package service

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdjustParams describes one signed stock movement
type AdjustParams struct {
	ItemID          uuid.UUID
	Quantity        int // negative consumes, positive restocks
	TransactionType string
	ActorID         *uuid.UUID
	ReferenceType   string
	ReferenceID     *uuid.UUID
	Notes           string
}

// StockAdjustment is the result of a successful adjustment: the item with its
// committed stock level and the paired audit transaction.
type StockAdjustment struct {
	Item        *model.InventoryItem
	Transaction *model.InventoryTransaction
	LowStock    bool
}

// StockAdjuster applies a single quantity change to one inventory item and
// records the matching InventoryTransaction. Both writes belong to the
// caller's unit of work: Adjust must run inside a TransactionManager.RunInTx
// context so that stock update and transaction insert commit or roll back
// together. It is the only code path that mutates InventoryItem.CurrentStock.
type StockAdjuster struct {
	items        repository.InventoryRepository
	transactions repository.InventoryTxRepository
}

func NewStockAdjuster(items repository.InventoryRepository, transactions repository.InventoryTxRepository) *StockAdjuster {
	return &StockAdjuster{items: items, transactions: transactions}
}

// Adjust validates and applies the movement. Fails with InsufficientStockError
// when the change would drive stock negative; in that case nothing is written.
// There is no idempotency: every call is a distinct real-world movement.
func (a *StockAdjuster) Adjust(ctx context.Context, params AdjustParams) (*StockAdjustment, error) {
	if params.Quantity == 0 {
		return nil, &ValidationError{Field: "quantity", Message: "must be a non-zero integer"}
	}
	switch params.TransactionType {
	case model.TxTypeSale, model.TxTypePurchase, model.TxTypeAdjustment:
	default:
		return nil, &ValidationError{Field: "transaction_type", Message: "must be sale, purchase, or adjustment"}
	}

	item, err := a.items.FindByID(ctx, params.ItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "inventory item", ID: params.ItemID.String()}
		}
		return nil, fmt.Errorf("failed to load inventory item: %w", err)
	}

	rows, err := a.items.ApplyStockDelta(ctx, params.ItemID, params.Quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to update stock for %s: %w", item.Name, err)
	}
	if rows == 0 {
		// The guard refused the change: report against a fresh read so the
		// available quantity reflects concurrent movements.
		current, readErr := a.items.FindByID(ctx, params.ItemID)
		if readErr != nil {
			current = item
		}
		return nil, &InsufficientStockError{
			ItemID:    item.ID,
			ItemName:  item.Name,
			Available: current.CurrentStock,
			Required:  -params.Quantity,
		}
	}

	// Re-read inside the unit of work: the guarded update holds the row, so
	// this stock snapshot is stable until commit.
	updated, err := a.items.FindByID(ctx, params.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload inventory item: %w", err)
	}

	tx := &model.InventoryTransaction{
		ItemID:          item.ID,
		TransactionType: params.TransactionType,
		Quantity:        params.Quantity,
		StockAfter:      updated.CurrentStock,
		UnitCost:        item.CostPerUnit,
		ReferenceType:   params.ReferenceType,
		ReferenceID:     params.ReferenceID,
		PerformedBy:     params.ActorID,
		Notes:           params.Notes,
	}
	if err := a.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record inventory transaction: %w", err)
	}

	return &StockAdjustment{
		Item:        updated,
		Transaction: tx,
		LowStock:    updated.CurrentStock <= updated.MinimumStock && updated.CurrentStock > 0,
	}, nil
}
