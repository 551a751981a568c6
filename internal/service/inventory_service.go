package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Notifier delivers fire-and-forget events to connected UI clients.
// Delivery failures are never surfaced to business operations.
type Notifier interface {
	Publish(eventType string, payload interface{})
}

// --- DTOs ---

type CreateItemRequest struct {
	SKU                   string `json:"sku" binding:"required"`
	Barcode               string `json:"barcode"`
	Name                  string `json:"name" binding:"required"`
	Description           string `json:"description"`
	Manufacturer          string `json:"manufacturer"`
	UnitOfMeasure         string `json:"unit_of_measure"`
	CostPerUnit           string `json:"cost_per_unit"`  // decimal string, defaults to 0
	SellingPrice          string `json:"selling_price"`  // decimal string, defaults to 0
	IsPrescription        bool   `json:"is_prescription"`
	IsControlledSubstance bool   `json:"is_controlled_substance"`
	CurrentStock          int    `json:"current_stock" binding:"min=0"`
	MinimumStock          int    `json:"minimum_stock" binding:"min=0"`
	OptimalStock          *int   `json:"optimal_stock"`
	Location              string `json:"location"`
}

type UpdateItemRequest struct {
	SKU                   string `json:"sku" binding:"required"`
	Barcode               string `json:"barcode"`
	Name                  string `json:"name" binding:"required"`
	Description           string `json:"description"`
	Manufacturer          string `json:"manufacturer"`
	UnitOfMeasure         string `json:"unit_of_measure"`
	CostPerUnit           string `json:"cost_per_unit"`
	SellingPrice          string `json:"selling_price"`
	IsPrescription        bool   `json:"is_prescription"`
	IsControlledSubstance bool   `json:"is_controlled_substance"`
	MinimumStock          int    `json:"minimum_stock" binding:"min=0"`
	OptimalStock          *int   `json:"optimal_stock"`
	Location              string `json:"location"`
}

type AdjustStockRequest struct {
	Quantity int    `json:"quantity" binding:"required"`
	Reason   string `json:"reason" binding:"omitempty,oneof=sale purchase adjustment"`
	Notes    string `json:"notes"`
}

type ItemFilter struct {
	Search     string
	Location   string
	LowStock   bool
	OutOfStock bool
	Page       int
	Limit      int
}

type ItemResponse struct {
	ID                    string `json:"id"`
	SKU                   string `json:"sku"`
	Barcode               string `json:"barcode,omitempty"`
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
	Manufacturer          string `json:"manufacturer,omitempty"`
	UnitOfMeasure         string `json:"unit_of_measure,omitempty"`
	CostPerUnit           string `json:"cost_per_unit"`
	SellingPrice          string `json:"selling_price"`
	IsPrescription        bool   `json:"is_prescription"`
	IsControlledSubstance bool   `json:"is_controlled_substance"`
	CurrentStock          int    `json:"current_stock"`
	MinimumStock          int    `json:"minimum_stock"`
	OptimalStock          *int   `json:"optimal_stock,omitempty"`
	Location              string `json:"location,omitempty"`
	StockStatus           string `json:"stock_status"`
}

type TransactionResponse struct {
	ID              string  `json:"id"`
	ItemID          string  `json:"item_id"`
	TransactionType string  `json:"transaction_type"`
	Quantity        int     `json:"quantity"`
	StockAfter      int     `json:"stock_after"`
	UnitCost        string  `json:"unit_cost"`
	ReferenceType   string  `json:"reference_type,omitempty"`
	ReferenceID     *string `json:"reference_id,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

type StockAdjustmentResponse struct {
	Item        ItemResponse        `json:"item"`
	Transaction TransactionResponse `json:"transaction"`
	LowStock    bool                `json:"low_stock"`
}

// ReorderSuggestion carries the reorder heuristics for one item. The
// estimates are simple linear projections and may be replaced by any
// reasonable reorder policy without affecting stock correctness.
type ReorderSuggestion struct {
	Item                     ItemResponse `json:"item"`
	RecommendedOrderQuantity int          `json:"recommended_order_quantity"`
	DaysUntilStockout        int          `json:"days_until_stockout"`
}

type AlertsResponse struct {
	LowStock      []ItemResponse      `json:"low_stock"`
	OutOfStock    []ItemResponse      `json:"out_of_stock"`
	NeedsOrdering []ReorderSuggestion `json:"needs_ordering"`
	Summary       AlertsSummary       `json:"summary"`
}

type AlertsSummary struct {
	LowStockCount      int `json:"low_stock_count"`
	OutOfStockCount    int `json:"out_of_stock_count"`
	NeedsOrderingCount int `json:"needs_ordering_count"`
}

type ValuedItem struct {
	Item            ItemResponse `json:"item"`
	TotalCost       string       `json:"total_cost"`
	TotalValue      string       `json:"total_value"`
	PotentialProfit string       `json:"potential_profit"`
}

type ValuationResponse struct {
	Items   []ValuedItem     `json:"items"`
	Summary ValuationSummary `json:"summary"`
}

type ValuationSummary struct {
	TotalItems       int    `json:"total_items"`
	TotalCost        string `json:"total_cost"`
	TotalRetailValue string `json:"total_retail_value"`
	PotentialProfit  string `json:"potential_profit"`
}

// --- Interface ---

type InventoryService interface {
	ListItems(ctx context.Context, filter ItemFilter) ([]ItemResponse, int64, error)
	GetItem(ctx context.Context, id string) (*ItemResponse, error)
	CreateItem(ctx context.Context, userID string, req CreateItemRequest) (*ItemResponse, error)
	UpdateItem(ctx context.Context, userID string, id string, req UpdateItemRequest) (*ItemResponse, error)
	DeleteItem(ctx context.Context, userID string, id string) error
	AdjustStock(ctx context.Context, userID string, id string, req AdjustStockRequest) (*StockAdjustmentResponse, error)
	GetHistory(ctx context.Context, id string, page, limit int) ([]TransactionResponse, int64, error)
	GetAlerts(ctx context.Context) (*AlertsResponse, error)
	GetValuation(ctx context.Context) (*ValuationResponse, error)
}

type inventoryService struct {
	items        repository.InventoryRepository
	transactions repository.InventoryTxRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	adjuster     *StockAdjuster
	notifier     Notifier
}

func NewInventoryService(
	items repository.InventoryRepository,
	transactions repository.InventoryTxRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	adjuster *StockAdjuster,
	notifier Notifier,
) InventoryService {
	return &inventoryService{
		items:        items,
		transactions: transactions,
		auditRepo:    auditRepo,
		txManager:    txManager,
		adjuster:     adjuster,
		notifier:     notifier,
	}
}

// --- Implementation ---

func (s *inventoryService) ListItems(ctx context.Context, filter ItemFilter) ([]ItemResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	items, total, err := s.items.List(ctx, repository.ItemListFilter{
		Search:     filter.Search,
		Location:   filter.Location,
		LowStock:   filter.LowStock,
		OutOfStock: filter.OutOfStock,
		Page:       filter.Page,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch inventory items: %w", err)
	}

	res := make([]ItemResponse, 0, len(items))
	for i := range items {
		res = append(res, toItemResponse(&items[i]))
	}
	return res, total, nil
}

func (s *inventoryService) GetItem(ctx context.Context, id string) (*ItemResponse, error) {
	itemID, err := uuid.Parse(id)
	if err != nil {
		return nil, &ValidationError{Field: "id", Message: "invalid inventory item id"}
	}

	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "inventory item", ID: id}
		}
		return nil, fmt.Errorf("failed to load inventory item: %w", err)
	}

	res := toItemResponse(item)
	return &res, nil
}

func (s *inventoryService) CreateItem(ctx context.Context, userID string, req CreateItemRequest) (*ItemResponse, error) {
	costPerUnit, err := parseMoney(req.CostPerUnit, "cost_per_unit")
	if err != nil {
		return nil, err
	}
	sellingPrice, err := parseMoney(req.SellingPrice, "selling_price")
	if err != nil {
		return nil, err
	}

	if _, err := s.items.FindBySKU(ctx, req.SKU); err == nil {
		return nil, &ValidationError{Field: "sku", Message: "SKU already exists"}
	}

	item := model.InventoryItem{
		SKU:                   req.SKU,
		Barcode:               req.Barcode,
		Name:                  req.Name,
		Description:           req.Description,
		Manufacturer:          req.Manufacturer,
		UnitOfMeasure:         req.UnitOfMeasure,
		CostPerUnit:           costPerUnit,
		SellingPrice:          sellingPrice,
		IsPrescription:        req.IsPrescription,
		IsControlledSubstance: req.IsControlledSubstance,
		CurrentStock:          req.CurrentStock,
		MinimumStock:          req.MinimumStock,
		OptimalStock:          req.OptimalStock,
		Location:              req.Location,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.items.Create(txCtx, &item); err != nil {
			return fmt.Errorf("failed to create inventory item: %w", err)
		}

		details, _ := json.Marshal(req)
		audit := &model.AuditLog{
			UserID:     parseActorID(userID),
			Action:     model.ActionCreateItem,
			EntityID:   item.ID.String(),
			EntityName: item.Name,
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := toItemResponse(&item)
	return &res, nil
}

func (s *inventoryService) UpdateItem(ctx context.Context, userID string, id string, req UpdateItemRequest) (*ItemResponse, error) {
	itemID, err := uuid.Parse(id)
	if err != nil {
		return nil, &ValidationError{Field: "id", Message: "invalid inventory item id"}
	}

	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "inventory item", ID: id}
		}
		return nil, fmt.Errorf("failed to load inventory item: %w", err)
	}

	costPerUnit, err := parseMoney(req.CostPerUnit, "cost_per_unit")
	if err != nil {
		return nil, err
	}
	sellingPrice, err := parseMoney(req.SellingPrice, "selling_price")
	if err != nil {
		return nil, err
	}

	// CurrentStock is deliberately untouched here: stock moves only through
	// the adjuster so every change has a paired transaction.
	item.SKU = req.SKU
	item.Barcode = req.Barcode
	item.Name = req.Name
	item.Description = req.Description
	item.Manufacturer = req.Manufacturer
	item.UnitOfMeasure = req.UnitOfMeasure
	item.CostPerUnit = costPerUnit
	item.SellingPrice = sellingPrice
	item.IsPrescription = req.IsPrescription
	item.IsControlledSubstance = req.IsControlledSubstance
	item.MinimumStock = req.MinimumStock
	item.OptimalStock = req.OptimalStock
	item.Location = req.Location

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.items.Update(txCtx, item); err != nil {
			return fmt.Errorf("failed to update inventory item: %w", err)
		}

		details, _ := json.Marshal(req)
		audit := &model.AuditLog{
			UserID:     parseActorID(userID),
			Action:     model.ActionUpdateItem,
			EntityID:   item.ID.String(),
			EntityName: item.Name,
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := toItemResponse(item)
	return &res, nil
}

func (s *inventoryService) DeleteItem(ctx context.Context, userID string, id string) error {
	itemID, err := uuid.Parse(id)
	if err != nil {
		return &ValidationError{Field: "id", Message: "invalid inventory item id"}
	}

	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "inventory item", ID: id}
		}
		return fmt.Errorf("failed to load inventory item: %w", err)
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.items.Delete(txCtx, itemID); err != nil {
			return fmt.Errorf("failed to delete inventory item: %w", err)
		}

		audit := &model.AuditLog{
			UserID:     parseActorID(userID),
			Action:     model.ActionDeleteItem,
			EntityID:   item.ID.String(),
			EntityName: item.Name,
			Details:    `{"deleted": true}`,
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
}

// AdjustStock applies a manual signed stock movement via the stock adjuster.
// The stock update, transaction insert, and audit row commit as one unit;
// low-stock crossings are broadcast after commit.
func (s *inventoryService) AdjustStock(ctx context.Context, userID string, id string, req AdjustStockRequest) (*StockAdjustmentResponse, error) {
	itemID, err := uuid.Parse(id)
	if err != nil {
		return nil, &ValidationError{Field: "id", Message: "invalid inventory item id"}
	}

	reason := req.Reason
	if reason == "" {
		reason = model.TxTypeAdjustment
	}

	var adjustment *StockAdjustment
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var adjErr error
		adjustment, adjErr = s.adjuster.Adjust(txCtx, AdjustParams{
			ItemID:          itemID,
			Quantity:        req.Quantity,
			TransactionType: reason,
			ActorID:         parseActorID(userID),
			Notes:           req.Notes,
		})
		if adjErr != nil {
			return adjErr
		}

		details, _ := json.Marshal(map[string]interface{}{
			"quantity":    req.Quantity,
			"reason":      reason,
			"stock_after": adjustment.Item.CurrentStock,
		})
		audit := &model.AuditLog{
			UserID:     parseActorID(userID),
			Action:     model.ActionAdjustStock,
			EntityID:   adjustment.Item.ID.String(),
			EntityName: adjustment.Item.Name,
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &StockAdjustmentResponse{
		Item:        toItemResponse(adjustment.Item),
		Transaction: toTransactionResponse(adjustment.Transaction),
		LowStock:    adjustment.LowStock,
	}

	s.notifier.Publish(ws.EventInventoryStockAdjusted, res)
	if adjustment.LowStock {
		s.notifier.Publish(ws.EventInventoryLowStock, lowStockPayload(adjustment.Item))
	}

	return res, nil
}

func (s *inventoryService) GetHistory(ctx context.Context, id string, page, limit int) ([]TransactionResponse, int64, error) {
	itemID, err := uuid.Parse(id)
	if err != nil {
		return nil, 0, &ValidationError{Field: "id", Message: "invalid inventory item id"}
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	txs, total, err := s.transactions.ListByItem(ctx, itemID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch stock history: %w", err)
	}

	res := make([]TransactionResponse, 0, len(txs))
	for i := range txs {
		res = append(res, toTransactionResponse(&txs[i]))
	}
	return res, total, nil
}

func (s *inventoryService) GetAlerts(ctx context.Context) (*AlertsResponse, error) {
	lowStock, err := s.items.ListLowStock(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch low-stock items: %w", err)
	}
	outOfStock, err := s.items.ListOutOfStock(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch out-of-stock items: %w", err)
	}

	res := &AlertsResponse{
		LowStock:   make([]ItemResponse, 0, len(lowStock)),
		OutOfStock: make([]ItemResponse, 0, len(outOfStock)),
	}
	for i := range lowStock {
		res.LowStock = append(res.LowStock, toItemResponse(&lowStock[i]))
		res.NeedsOrdering = append(res.NeedsOrdering, toReorderSuggestion(&lowStock[i]))
	}
	for i := range outOfStock {
		res.OutOfStock = append(res.OutOfStock, toItemResponse(&outOfStock[i]))
		res.NeedsOrdering = append(res.NeedsOrdering, toReorderSuggestion(&outOfStock[i]))
	}

	res.Summary = AlertsSummary{
		LowStockCount:      len(res.LowStock),
		OutOfStockCount:    len(res.OutOfStock),
		NeedsOrderingCount: len(res.NeedsOrdering),
	}
	return res, nil
}

func (s *inventoryService) GetValuation(ctx context.Context) (*ValuationResponse, error) {
	items, err := s.items.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inventory items: %w", err)
	}

	totalCost := decimal.Zero
	totalValue := decimal.Zero
	valued := make([]ValuedItem, 0, len(items))

	for i := range items {
		item := &items[i]
		stock := decimal.NewFromInt(int64(item.CurrentStock))
		cost := item.CostPerUnit.Mul(stock)
		value := item.SellingPrice.Mul(stock)
		totalCost = totalCost.Add(cost)
		totalValue = totalValue.Add(value)

		valued = append(valued, ValuedItem{
			Item:            toItemResponse(item),
			TotalCost:       cost.StringFixed(2),
			TotalValue:      value.StringFixed(2),
			PotentialProfit: value.Sub(cost).StringFixed(2),
		})
	}

	return &ValuationResponse{
		Items: valued,
		Summary: ValuationSummary{
			TotalItems:       len(items),
			TotalCost:        totalCost.StringFixed(2),
			TotalRetailValue: totalValue.StringFixed(2),
			PotentialProfit:  totalValue.Sub(totalCost).StringFixed(2),
		},
	}, nil
}

// --- Helpers ---

func parseActorID(userID string) *uuid.UUID {
	if parsed, err := uuid.Parse(userID); err == nil {
		return &parsed
	}
	return nil
}

func parseMoney(value, field string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Message: "invalid decimal amount"}
	}
	if parsed.IsNegative() {
		return decimal.Zero, &ValidationError{Field: field, Message: "must not be negative"}
	}
	return parsed, nil
}

func toItemResponse(item *model.InventoryItem) ItemResponse {
	return ItemResponse{
		ID:                    item.ID.String(),
		SKU:                   item.SKU,
		Barcode:               item.Barcode,
		Name:                  item.Name,
		Description:           item.Description,
		Manufacturer:          item.Manufacturer,
		UnitOfMeasure:         item.UnitOfMeasure,
		CostPerUnit:           item.CostPerUnit.StringFixed(2),
		SellingPrice:          item.SellingPrice.StringFixed(2),
		IsPrescription:        item.IsPrescription,
		IsControlledSubstance: item.IsControlledSubstance,
		CurrentStock:          item.CurrentStock,
		MinimumStock:          item.MinimumStock,
		OptimalStock:          item.OptimalStock,
		Location:              item.Location,
		StockStatus:           item.StockStatus(),
	}
}

func toTransactionResponse(tx *model.InventoryTransaction) TransactionResponse {
	res := TransactionResponse{
		ID:              tx.ID.String(),
		ItemID:          tx.ItemID.String(),
		TransactionType: tx.TransactionType,
		Quantity:        tx.Quantity,
		StockAfter:      tx.StockAfter,
		UnitCost:        tx.UnitCost.StringFixed(2),
		ReferenceType:   tx.ReferenceType,
		Notes:           tx.Notes,
		CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.ReferenceID != nil {
		ref := tx.ReferenceID.String()
		res.ReferenceID = &ref
	}
	return res
}

// toReorderSuggestion applies the reorder heuristics: order back up to
// optimal stock when configured, otherwise to twice the minimum; stockout
// projection is a linear estimate of two units consumed per day.
func toReorderSuggestion(item *model.InventoryItem) ReorderSuggestion {
	var recommended int
	if item.OptimalStock != nil {
		recommended = *item.OptimalStock - item.CurrentStock
	} else {
		recommended = item.MinimumStock*2 - item.CurrentStock
	}
	if recommended < 0 {
		recommended = 0
	}

	days := 0
	if item.CurrentStock > 0 {
		days = item.CurrentStock / 2
	}

	return ReorderSuggestion{
		Item:                     toItemResponse(item),
		RecommendedOrderQuantity: recommended,
		DaysUntilStockout:        days,
	}
}

func lowStockPayload(item *model.InventoryItem) map[string]interface{} {
	return map[string]interface{}{
		"item_id":       item.ID.String(),
		"name":          item.Name,
		"current_stock": item.CurrentStock,
		"minimum_stock": item.MinimumStock,
	}
}
