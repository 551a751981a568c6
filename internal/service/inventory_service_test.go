package service_test

import (
	"context"
	"testing"

	"backend/internal/model"
	"backend/internal/service"
	ws "backend/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustStock_PositiveMovement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, model.RoleTechnician)
	item := env.seedItem(t, "Amoxicillin 250mg", 10, 5)

	res, err := env.inventory.AdjustStock(ctx, user.ID.String(), item.ID.String(), service.AdjustStockRequest{
		Quantity: 15,
		Reason:   model.TxTypePurchase,
		Notes:    "restock delivery",
	})
	require.NoError(t, err)

	assert.Equal(t, 25, res.Item.CurrentStock)
	assert.Equal(t, 15, res.Transaction.Quantity)
	assert.Equal(t, 25, res.Transaction.StockAfter)
	assert.Equal(t, model.TxTypePurchase, res.Transaction.TransactionType)
	assert.False(t, res.LowStock)

	// The movement must have a matching ledger row
	history, total, err := env.inventory.GetHistory(ctx, item.ID.String(), 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, 25, history[0].StockAfter)
}

func TestAdjustStock_InsufficientStockWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, model.RoleTechnician)
	item := env.seedItem(t, "Gauze Roll", 3, 1)

	_, err := env.inventory.AdjustStock(ctx, user.ID.String(), item.ID.String(), service.AdjustStockRequest{
		Quantity: -5,
	})

	var stockErr *service.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, item.ID, stockErr.ItemID)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 5, stockErr.Required)

	// Stock untouched, no ledger row, no audit entry
	var reloaded model.InventoryItem
	require.NoError(t, env.db.First(&reloaded, "id = ?", item.ID).Error)
	assert.Equal(t, 3, reloaded.CurrentStock)

	var txCount int64
	require.NoError(t, env.db.Model(&model.InventoryTransaction{}).Count(&txCount).Error)
	assert.EqualValues(t, 0, txCount)

	var auditCount int64
	require.NoError(t, env.db.Model(&model.AuditLog{}).Count(&auditCount).Error)
	assert.EqualValues(t, 0, auditCount)
}

func TestAdjustStock_ZeroQuantityRejected(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, model.RoleTechnician)
	item := env.seedItem(t, "Syringe 5ml", 10, 2)

	_, err := env.inventory.AdjustStock(context.Background(), user.ID.String(), item.ID.String(), service.AdjustStockRequest{
		Quantity: 0,
	})

	var valErr *service.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "quantity", valErr.Field)
}

func TestAdjustStock_LowStockSignal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, model.RoleTechnician)
	item := env.seedItem(t, "Rabies Vaccine", 10, 5)

	res, err := env.inventory.AdjustStock(ctx, user.ID.String(), item.ID.String(), service.AdjustStockRequest{
		Quantity: -6,
	})
	require.NoError(t, err)

	assert.True(t, res.LowStock)
	assert.Equal(t, 4, res.Item.CurrentStock)
	assert.Len(t, env.notifier.byType(ws.EventInventoryLowStock), 1)

	// Draining to exactly zero is out-of-stock, not low-stock
	res, err = env.inventory.AdjustStock(ctx, user.ID.String(), item.ID.String(), service.AdjustStockRequest{
		Quantity: -4,
	})
	require.NoError(t, err)
	assert.False(t, res.LowStock)
	assert.Equal(t, model.StockStatusOut, res.Item.StockStatus)
}

func TestCreateItem_DuplicateSKURejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, model.RoleAdmin)

	req := service.CreateItemRequest{
		SKU:          "MED-001",
		Name:         "Carprofen 75mg",
		CostPerUnit:  "2.10",
		SellingPrice: "6.50",
		CurrentStock: 40,
		MinimumStock: 10,
	}
	_, err := env.inventory.CreateItem(ctx, user.ID.String(), req)
	require.NoError(t, err)

	_, err = env.inventory.CreateItem(ctx, user.ID.String(), req)
	var valErr *service.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "sku", valErr.Field)
}

func TestUpdateItem_DoesNotTouchStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, model.RoleAdmin)
	item := env.seedItem(t, "Flea Collar", 12, 3)

	updated, err := env.inventory.UpdateItem(ctx, user.ID.String(), item.ID.String(), service.UpdateItemRequest{
		SKU:          item.SKU,
		Name:         "Flea Collar XL",
		CostPerUnit:  "4.00",
		SellingPrice: "11.00",
		MinimumStock: 6,
	})
	require.NoError(t, err)

	assert.Equal(t, "Flea Collar XL", updated.Name)
	assert.Equal(t, 12, updated.CurrentStock)
	assert.Equal(t, 6, updated.MinimumStock)
}

func TestGetAlerts_ReorderHeuristics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	optimal := 20
	low := env.seedItem(t, "Dewormer", 4, 5)
	low.OptimalStock = &optimal
	require.NoError(t, env.db.Save(low).Error)

	out := env.seedItem(t, "Insulin Pen", 0, 2)

	alerts, err := env.inventory.GetAlerts(ctx)
	require.NoError(t, err)

	require.Len(t, alerts.LowStock, 1)
	require.Len(t, alerts.OutOfStock, 1)
	assert.Equal(t, low.ID.String(), alerts.LowStock[0].ID)
	assert.Equal(t, out.ID.String(), alerts.OutOfStock[0].ID)
	assert.Equal(t, 2, alerts.Summary.NeedsOrderingCount)

	for _, suggestion := range alerts.NeedsOrdering {
		switch suggestion.Item.ID {
		case low.ID.String():
			// optimal 20 - current 4
			assert.Equal(t, 16, suggestion.RecommendedOrderQuantity)
			assert.Equal(t, 2, suggestion.DaysUntilStockout)
		case out.ID.String():
			// no optimal: minimum*2 - current
			assert.Equal(t, 4, suggestion.RecommendedOrderQuantity)
			assert.Equal(t, 0, suggestion.DaysUntilStockout)
		default:
			t.Fatalf("unexpected suggestion for item %s", suggestion.Item.ID)
		}
	}
}

func TestGetValuation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 10 * 3.50 cost, 10 * 9.99 retail
	env.seedItem(t, "Ear Drops", 10, 2)

	valuation, err := env.inventory.GetValuation(ctx)
	require.NoError(t, err)

	require.Len(t, valuation.Items, 1)
	assert.Equal(t, "35.00", valuation.Summary.TotalCost)
	assert.Equal(t, "99.90", valuation.Summary.TotalRetailValue)
	assert.Equal(t, "64.90", valuation.Summary.PotentialProfit)
}

func TestGetHistory_NewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, model.RoleTechnician)
	item := env.seedItem(t, "Bandage", 10, 2)

	for _, qty := range []int{5, -3, 2} {
		_, err := env.inventory.AdjustStock(ctx, user.ID.String(), item.ID.String(), service.AdjustStockRequest{Quantity: qty})
		require.NoError(t, err)
	}

	history, total, err := env.inventory.GetHistory(ctx, item.ID.String(), 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, history, 2)
	assert.Equal(t, 14, history[0].StockAfter)
}
