package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InventoryTxRepository interface {
	Create(ctx context.Context, tx *model.InventoryTransaction) error
	ListByItem(ctx context.Context, itemID uuid.UUID, page, limit int) ([]model.InventoryTransaction, int64, error)
	CountByReference(ctx context.Context, refType string, refID uuid.UUID) (int64, error)
	ListByReference(ctx context.Context, refType string, refID uuid.UUID) ([]model.InventoryTransaction, error)
}

type inventoryTxRepository struct {
	db *gorm.DB
}

func NewInventoryTxRepository(db *gorm.DB) InventoryTxRepository {
	return &inventoryTxRepository{db: db}
}

func (r *inventoryTxRepository) Create(ctx context.Context, tx *model.InventoryTransaction) error {
	return GetDB(ctx, r.db).Create(tx).Error
}

func (r *inventoryTxRepository) ListByItem(ctx context.Context, itemID uuid.UUID, page, limit int) ([]model.InventoryTransaction, int64, error) {
	var txs []model.InventoryTransaction
	var total int64

	db := GetDB(ctx, r.db).Model(&model.InventoryTransaction{}).Where("item_id = ?", itemID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&txs).Error; err != nil {
		return nil, 0, err
	}

	return txs, total, nil
}

func (r *inventoryTxRepository) CountByReference(ctx context.Context, refType string, refID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.InventoryTransaction{}).
		Where("reference_type = ? AND reference_id = ?", refType, refID).
		Count(&count).Error
	return count, err
}

func (r *inventoryTxRepository) ListByReference(ctx context.Context, refType string, refID uuid.UUID) ([]model.InventoryTransaction, error) {
	var txs []model.InventoryTransaction
	err := GetDB(ctx, r.db).
		Where("reference_type = ? AND reference_id = ?", refType, refID).
		Order("created_at asc").
		Find(&txs).Error
	return txs, err
}
