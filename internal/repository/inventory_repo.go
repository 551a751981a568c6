package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ItemListFilter narrows inventory listings
type ItemListFilter struct {
	Search     string
	Location   string
	LowStock   bool
	OutOfStock bool
	Page       int
	Limit      int
}

type InventoryRepository interface {
	Create(ctx context.Context, item *model.InventoryItem) error
	Update(ctx context.Context, item *model.InventoryItem) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error)
	FindBySKU(ctx context.Context, sku string) (*model.InventoryItem, error)
	List(ctx context.Context, filter ItemListFilter) ([]model.InventoryItem, int64, error)
	ListLowStock(ctx context.Context, limit int) ([]model.InventoryItem, error)
	ListOutOfStock(ctx context.Context, limit int) ([]model.InventoryItem, error)
	ListAll(ctx context.Context) ([]model.InventoryItem, error)
	ApplyStockDelta(ctx context.Context, id uuid.UUID, delta int) (int64, error)
}

type inventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) Create(ctx context.Context, item *model.InventoryItem) error {
	return GetDB(ctx, r.db).Create(item).Error
}

func (r *inventoryRepository) Update(ctx context.Context, item *model.InventoryItem) error {
	return GetDB(ctx, r.db).Save(item).Error
}

func (r *inventoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.InventoryItem{}).Error
}

func (r *inventoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error) {
	var item model.InventoryItem
	if err := GetDB(ctx, r.db).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *inventoryRepository) FindBySKU(ctx context.Context, sku string) (*model.InventoryItem, error) {
	var item model.InventoryItem
	if err := GetDB(ctx, r.db).Where("sku = ?", sku).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *inventoryRepository) List(ctx context.Context, filter ItemListFilter) ([]model.InventoryItem, int64, error) {
	var items []model.InventoryItem
	var total int64

	db := GetDB(ctx, r.db).Model(&model.InventoryItem{})
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		db = db.Where("name LIKE ? OR sku LIKE ? OR manufacturer LIKE ?", pattern, pattern, pattern)
	}
	if filter.Location != "" {
		db = db.Where("location = ?", filter.Location)
	}
	if filter.LowStock {
		db = db.Where("current_stock <= minimum_stock AND current_stock > 0")
	}
	if filter.OutOfStock {
		db = db.Where("current_stock = 0")
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Order("name asc").Offset(offset).Limit(filter.Limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (r *inventoryRepository) ListLowStock(ctx context.Context, limit int) ([]model.InventoryItem, error) {
	var items []model.InventoryItem
	err := GetDB(ctx, r.db).
		Where("current_stock <= minimum_stock AND current_stock > 0").
		Order("current_stock asc").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *inventoryRepository) ListOutOfStock(ctx context.Context, limit int) ([]model.InventoryItem, error) {
	var items []model.InventoryItem
	err := GetDB(ctx, r.db).
		Where("current_stock = 0").
		Order("name asc").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *inventoryRepository) ListAll(ctx context.Context) ([]model.InventoryItem, error) {
	var items []model.InventoryItem
	err := GetDB(ctx, r.db).Order("name asc").Find(&items).Error
	return items, err
}

// ApplyStockDelta applies a signed quantity change as a guarded update:
// the WHERE clause refuses any change that would drive current_stock
// negative, and the single UPDATE serializes concurrent adjustments to the
// same row. Returns the number of rows affected (0 = guard rejected it).
func (r *inventoryRepository) ApplyStockDelta(ctx context.Context, id uuid.UUID, delta int) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.InventoryItem{}).
		Where("id = ? AND current_stock + ? >= 0", id, delta).
		Update("current_stock", gorm.Expr("current_stock + ?", delta))
	return res.RowsAffected, res.Error
}
