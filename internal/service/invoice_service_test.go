package service_test

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"backend/internal/model"
	"backend/internal/service"
	ws "backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serviceLine(description string, qty int, price string) service.InvoiceItemRequest {
	return service.InvoiceItemRequest{
		ItemType:    model.ItemTypeService,
		Description: description,
		Quantity:    qty,
		UnitPrice:   price,
	}
}

func stockedLine(itemType string, item *model.InventoryItem, qty int, price string) service.InvoiceItemRequest {
	id := item.ID.String()
	return service.InvoiceItemRequest{
		ItemType:        itemType,
		Description:     item.Name,
		Quantity:        qty,
		UnitPrice:       price,
		InventoryItemID: &id,
	}
}

func (e *testEnv) createInvoice(t *testing.T, userID string, client *model.Client, pet *model.Pet, items ...service.InvoiceItemRequest) *service.InvoiceResponse {
	t.Helper()
	req := service.CreateInvoiceRequest{
		ClientID: client.ID.String(),
		Items:    items,
	}
	if pet != nil {
		petID := pet.ID.String()
		req.PetID = &petID
	}
	invoice, err := e.invoice.CreateInvoice(context.Background(), userID, req)
	require.NoError(t, err)
	return invoice
}

func TestCreateInvoice_TotalsAndNumbering(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, model.RoleVeterinarian)
	client, pet := env.seedClient(t)

	first := env.createInvoice(t, user.ID.String(), client, pet,
		service.InvoiceItemRequest{
			ItemType:           model.ItemTypeService,
			Description:        "Consultation",
			Quantity:           2,
			UnitPrice:          "50.00",
			TaxRate:            "10",
			DiscountPercentage: "20",
		},
	)

	// Line: 2*50 = 100, minus 20% = 80, plus 10% tax = 88.
	// Invoice subtotal stays pre-discount; tax_amount carries the rest.
	assert.Equal(t, "100.00", first.Subtotal)
	assert.Equal(t, "-12.00", first.TaxAmount)
	assert.Equal(t, "88.00", first.TotalAmount)
	assert.Equal(t, "88.00", first.BalanceDue)
	assert.Equal(t, "0.00", first.AmountPaid)
	assert.Equal(t, model.InvoiceStatusDraft, first.Status)
	assert.Equal(t, fmt.Sprintf("INV-%d-000001", time.Now().Year()), first.InvoiceNumber)

	second := env.createInvoice(t, user.ID.String(), client, nil, serviceLine("Nail trim", 1, "15.00"))
	assert.Equal(t, fmt.Sprintf("INV-%d-000002", time.Now().Year()), second.InvoiceNumber)
}

func TestCreateInvoice_DiscountLargerThanTax(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, model.RoleVeterinarian)
	client, _ := env.seedClient(t)

	invoice := env.createInvoice(t, user.ID.String(), client, nil,
		service.InvoiceItemRequest{
			ItemType:           model.ItemTypeService,
			Description:        "Dental cleaning",
			Quantity:           1,
			UnitPrice:          "100.00",
			TaxRate:            "10",
			DiscountPercentage: "50",
		},
	)

	// 100 minus 50% = 50, plus 10% tax = 55. The discount outweighs the
	// tax, so tax_amount goes negative while the identity still holds.
	assert.Equal(t, "100.00", invoice.Subtotal)
	assert.Equal(t, "-45.00", invoice.TaxAmount)
	assert.Equal(t, "55.00", invoice.TotalAmount)
}

func TestCreateInvoice_PetMustBelongToClient(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, model.RoleVeterinarian)
	client, _ := env.seedClient(t)
	_, strangerPet := env.seedClient(t)

	petID := strangerPet.ID.String()
	_, err := env.invoice.CreateInvoice(context.Background(), user.ID.String(), service.CreateInvoiceRequest{
		ClientID: client.ID.String(),
		PetID:    &petID,
		Items:    []service.InvoiceItemRequest{serviceLine("Exam", 1, "30.00")},
	})

	var valErr *service.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "pet_id", valErr.Field)
}

func TestApproveInvoice_DeductsStockAndEmitsEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vet := env.seedUser(t, model.RoleVeterinarian)
	client, pet := env.seedClient(t)
	med := env.seedItem(t, "Amoxicillin 250mg", 20, 5)

	medLine := stockedLine(model.ItemTypeMedication, med, 4, "9.99")
	medLine.Description = "Take twice daily with food"
	invoice := env.createInvoice(t, vet.ID.String(), client, pet,
		medLine,
		serviceLine("Consultation", 1, "50.00"),
	)

	result, err := env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{})
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceStatusApproved, result.Invoice.Status)
	require.NotNil(t, result.Invoice.ApprovedBy)
	assert.Equal(t, vet.ID.String(), *result.Invoice.ApprovedBy)
	assert.NotNil(t, result.Invoice.ApprovedAt)
	assert.Equal(t, 1, result.InventoryDeducted)
	assert.Equal(t, 1, result.LabelsGenerated)

	// Stock deducted with a paired sale transaction referencing the invoice
	var reloaded model.InventoryItem
	require.NoError(t, env.db.First(&reloaded, "id = ?", med.ID).Error)
	assert.Equal(t, 16, reloaded.CurrentStock)

	invoiceID := mustParseUUID(t, invoice.ID)
	txs, err := env.itemTxs.ListByReference(ctx, model.RefTypeInvoice, invoiceID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, -4, txs[0].Quantity)
	assert.Equal(t, 16, txs[0].StockAfter)
	assert.Equal(t, model.TxTypeSale, txs[0].TransactionType)

	// Audit row written
	var auditCount int64
	require.NoError(t, env.db.Model(&model.AuditLog{}).
		Where("action = ?", model.ActionApproveInvoice).Count(&auditCount).Error)
	assert.EqualValues(t, 1, auditCount)

	// Events: approved + one label batch, no low-stock (16 > 5)
	assert.Len(t, env.notifier.byType(ws.EventInvoiceApproved), 1)
	labels := env.notifier.byType(ws.EventPrintMedicationLabels)
	require.Len(t, labels, 1)
	batch, ok := labels[0].Payload.([]service.MedicationLabel)
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.Equal(t, "Amoxicillin 250mg", batch[0].ItemName)
	assert.Equal(t, "Take twice daily with food", batch[0].Description)
	assert.Equal(t, 4, batch[0].Quantity)
	assert.Equal(t, "Rocky", batch[0].PetName)
	assert.Equal(t, "Ana Silva", batch[0].OwnerName)
	assert.Len(t, env.notifier.byType(ws.EventInventoryLowStock), 0)
}

func TestApproveInvoice_NetsDuplicateReferences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vet := env.seedUser(t, model.RoleVeterinarian)
	client, _ := env.seedClient(t)
	item := env.seedItem(t, "Saline Bag", 10, 2)

	invoice := env.createInvoice(t, vet.ID.String(), client, nil,
		stockedLine(model.ItemTypeProduct, item, 3, "5.00"),
		stockedLine(model.ItemTypeProduct, item, 2, "5.00"),
	)

	result, err := env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.InventoryDeducted)

	var reloaded model.InventoryItem
	require.NoError(t, env.db.First(&reloaded, "id = ?", item.ID).Error)
	assert.Equal(t, 5, reloaded.CurrentStock)

	// One netted movement, not one per line
	count, err := env.itemTxs.CountByReference(ctx, model.RefTypeInvoice, mustParseUUID(t, invoice.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestApproveInvoice_InsufficientStockRollsBackEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vet := env.seedUser(t, model.RoleVeterinarian)
	client, _ := env.seedClient(t)
	plenty := env.seedItem(t, "Cotton Swabs", 100, 10)
	scarce := env.seedItem(t, "Insulin Vial", 2, 1)

	invoice := env.createInvoice(t, vet.ID.String(), client, nil,
		stockedLine(model.ItemTypeProduct, plenty, 5, "1.00"),
		stockedLine(model.ItemTypeMedication, scarce, 3, "25.00"),
	)

	_, err := env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{})

	var stockErr *service.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, scarce.ID, stockErr.ItemID)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Required)

	// The whole unit of work rolled back: both stocks untouched, status
	// unchanged, no ledger rows, no events
	var p, s model.InventoryItem
	require.NoError(t, env.db.First(&p, "id = ?", plenty.ID).Error)
	require.NoError(t, env.db.First(&s, "id = ?", scarce.ID).Error)
	assert.Equal(t, 100, p.CurrentStock)
	assert.Equal(t, 2, s.CurrentStock)

	reloaded, err := env.invoice.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusDraft, reloaded.Status)

	var txCount int64
	require.NoError(t, env.db.Model(&model.InventoryTransaction{}).Count(&txCount).Error)
	assert.EqualValues(t, 0, txCount)
	assert.Len(t, env.notifier.byType(ws.EventInvoiceApproved), 0)
}

func TestApproveInvoice_RejectsWrongStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vet := env.seedUser(t, model.RoleVeterinarian)
	client, _ := env.seedClient(t)

	invoice := env.createInvoice(t, vet.ID.String(), client, nil, serviceLine("Exam", 1, "30.00"))

	_, err := env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{})
	require.NoError(t, err)

	_, err = env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{})
	var stateErr *service.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, model.InvoiceStatusApproved, stateErr.Status)
}

func TestApproveInvoice_ItemOverrideRecomputesTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vet := env.seedUser(t, model.RoleVeterinarian)
	client, _ := env.seedClient(t)
	item := env.seedItem(t, "Dental Chews", 30, 5)

	invoice := env.createInvoice(t, vet.ID.String(), client, nil, serviceLine("Exam", 1, "30.00"))
	assert.Equal(t, "30.00", invoice.TotalAmount)

	result, err := env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{
		Items: []service.InvoiceItemRequest{
			serviceLine("Extended exam", 1, "45.00"),
			stockedLine(model.ItemTypeProduct, item, 2, "8.00"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "61.00", result.Invoice.TotalAmount)
	assert.Len(t, result.Invoice.Items, 2)
	assert.Equal(t, 1, result.InventoryDeducted)

	var reloaded model.InventoryItem
	require.NoError(t, env.db.First(&reloaded, "id = ?", item.ID).Error)
	assert.Equal(t, 28, reloaded.CurrentStock)
}

func TestApproveInvoice_ConcurrentApprovalsDeductOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vet := env.seedUser(t, model.RoleVeterinarian)
	client, _ := env.seedClient(t)
	item := env.seedItem(t, "Vaccine Dose", 10, 2)

	invoice := env.createInvoice(t, vet.ID.String(), client, nil,
		stockedLine(model.ItemTypeMedication, item, 4, "12.00"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{})
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stateErr *service.InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	// Exactly one deduction landed
	var reloaded model.InventoryItem
	require.NoError(t, env.db.First(&reloaded, "id = ?", item.ID).Error)
	assert.Equal(t, 6, reloaded.CurrentStock)

	count, err := env.itemTxs.CountByReference(ctx, model.RefTypeInvoice, mustParseUUID(t, invoice.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestApproveInvoice_StaleTotalsWriteCannotRevertApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vet := env.seedUser(t, model.RoleVeterinarian)
	client, _ := env.seedClient(t)
	item := env.seedItem(t, "Heartworm Tabs", 10, 2)

	invoice := env.createInvoice(t, vet.ID.String(), client, nil,
		stockedLine(model.ItemTypeMedication, item, 2, "12.00"))
	invoiceID := mustParseUUID(t, invoice.ID)

	// Snapshot the row the way a slower approver would have read it
	stale, err := env.invoices.FindByIDWithItems(ctx, invoiceID)
	require.NoError(t, err)
	require.Equal(t, model.InvoiceStatusDraft, stale.Status)

	_, err = env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{})
	require.NoError(t, err)

	// Replaying the stale snapshot's totals write must leave the committed
	// status untouched, so a second approval still loses the guard
	require.NoError(t, env.invoices.UpdateTotals(ctx, stale))

	var reloaded model.Invoice
	require.NoError(t, env.db.First(&reloaded, "id = ?", invoiceID).Error)
	assert.Equal(t, model.InvoiceStatusApproved, reloaded.Status)

	_, err = env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{})
	var stateErr *service.InvalidStateError
	require.ErrorAs(t, err, &stateErr)

	// The deduction landed exactly once
	var stock model.InventoryItem
	require.NoError(t, env.db.First(&stock, "id = ?", item.ID).Error)
	assert.Equal(t, 8, stock.CurrentStock)

	count, err := env.itemTxs.CountByReference(ctx, model.RefTypeInvoice, invoiceID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRecordPayment_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vet := env.seedUser(t, model.RoleVeterinarian)
	desk := env.seedUser(t, model.RoleReceptionist)
	client, _ := env.seedClient(t)

	invoice := env.createInvoice(t, vet.ID.String(), client, nil, serviceLine("Surgery", 1, "200.00"))

	// Payments before approval are rejected
	_, err := env.invoice.RecordPayment(ctx, desk.ID.String(), invoice.ID, service.RecordPaymentRequest{
		PaymentMethod: "cash", Amount: "50.00",
	})
	var stateErr *service.InvalidStateError
	require.ErrorAs(t, err, &stateErr)

	_, err = env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{})
	require.NoError(t, err)

	partial, err := env.invoice.RecordPayment(ctx, desk.ID.String(), invoice.ID, service.RecordPaymentRequest{
		PaymentMethod: "cash", Amount: "50.00",
	})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPartiallyPaid, partial.Status)
	assert.Equal(t, "50.00", partial.AmountPaid)
	assert.Equal(t, "150.00", partial.BalanceDue)

	// Overpaying the remaining balance is rejected
	_, err = env.invoice.RecordPayment(ctx, desk.ID.String(), invoice.ID, service.RecordPaymentRequest{
		PaymentMethod: "card", Amount: "150.01",
	})
	var valErr *service.ValidationError
	require.ErrorAs(t, err, &valErr)

	paid, err := env.invoice.RecordPayment(ctx, desk.ID.String(), invoice.ID, service.RecordPaymentRequest{
		PaymentMethod: "card", Amount: "150.00", ReferenceNumber: "AUTH-42",
	})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, "0.00", paid.BalanceDue)
	require.Len(t, paid.Payments, 2)

	assert.Len(t, env.notifier.byType(ws.EventPaymentRecorded), 2)
}

func TestRecordPayment_ConcurrentPaymentsCannotOverdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vet := env.seedUser(t, model.RoleVeterinarian)
	desk := env.seedUser(t, model.RoleReceptionist)
	client, _ := env.seedClient(t)

	invoice := env.createInvoice(t, vet.ID.String(), client, nil, serviceLine("Surgery", 1, "100.00"))
	_, err := env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{})
	require.NoError(t, err)

	// Two 60.00 payments against a 100.00 balance: the guarded increment
	// lets only one land, the other must be refused rather than both
	// reading the same balance and overdrawing it
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.invoice.RecordPayment(ctx, desk.ID.String(), invoice.ID, service.RecordPaymentRequest{
				PaymentMethod: "cash", Amount: "60.00",
			})
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var valErr *service.ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Equal(t, "amount", valErr.Field)
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	var stored model.Invoice
	require.NoError(t, env.db.First(&stored, "id = ?", mustParseUUID(t, invoice.ID)).Error)
	assert.True(t, stored.AmountPaid.Equal(decimal.NewFromInt(60)),
		"amount paid is %s", stored.AmountPaid)
	assert.True(t, stored.BalanceDue.Equal(decimal.NewFromInt(40)),
		"balance due is %s", stored.BalanceDue)
	assert.Equal(t, model.InvoiceStatusPartiallyPaid, stored.Status)

	var payCount int64
	require.NoError(t, env.db.Model(&model.Payment{}).
		Where("invoice_id = ?", stored.ID).Count(&payCount).Error)
	assert.EqualValues(t, 1, payCount)
}

func TestSendAndCancel_Transitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vet := env.seedUser(t, model.RoleVeterinarian)
	client, _ := env.seedClient(t)

	// Draft can be cancelled
	draft := env.createInvoice(t, vet.ID.String(), client, nil, serviceLine("Exam", 1, "30.00"))
	cancelled, err := env.invoice.CancelInvoice(ctx, vet.ID.String(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusCancelled, cancelled.Status)

	// Cancelled invoices cannot be approved
	_, err = env.invoice.ApproveInvoice(ctx, vet.ID.String(), draft.ID, service.ApproveInvoiceRequest{})
	var stateErr *service.InvalidStateError
	require.ErrorAs(t, err, &stateErr)

	// Only approved invoices can be sent
	other := env.createInvoice(t, vet.ID.String(), client, nil, serviceLine("Exam", 1, "30.00"))
	_, err = env.invoice.SendInvoice(ctx, vet.ID.String(), other.ID)
	require.ErrorAs(t, err, &stateErr)

	_, err = env.invoice.ApproveInvoice(ctx, vet.ID.String(), other.ID, service.ApproveInvoiceRequest{})
	require.NoError(t, err)

	sent, err := env.invoice.SendInvoice(ctx, vet.ID.String(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusSent, sent.Status)

	// Approved/sent invoices can no longer be cancelled
	_, err = env.invoice.CancelInvoice(ctx, vet.ID.String(), other.ID)
	require.ErrorAs(t, err, &stateErr)
}

func TestInvoiceTotals_FinancialIdentity(t *testing.T) {
	env := newTestEnv(t)
	vet := env.seedUser(t, model.RoleVeterinarian)
	client, _ := env.seedClient(t)
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 10; run++ {
		n := 1 + rng.Intn(6)
		items := make([]service.InvoiceItemRequest, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, service.InvoiceItemRequest{
				ItemType:           model.ItemTypeService,
				Description:        fmt.Sprintf("Line %d", i),
				Quantity:           1 + rng.Intn(100),
				UnitPrice:          strconv.FormatFloat(float64(rng.Intn(100000))/100, 'f', 2, 64),
				TaxRate:            strconv.Itoa(rng.Intn(31)),
				DiscountPercentage: strconv.Itoa(rng.Intn(101)),
			})
		}

		invoice := env.createInvoice(t, vet.ID.String(), client, nil, items...)

		// Check the stored values at full precision, not the rounded
		// response strings
		var stored model.Invoice
		require.NoError(t, env.db.Preload("Items").First(&stored, "id = ?", mustParseUUID(t, invoice.ID)).Error)

		lineSubtotals := decimal.Zero
		lineTotals := decimal.Zero
		for i := range stored.Items {
			lineSubtotals = lineSubtotals.Add(stored.Items[i].Subtotal)
			lineTotals = lineTotals.Add(stored.Items[i].Total)
		}

		assert.True(t, stored.Subtotal.Add(stored.TaxAmount).Equal(stored.TotalAmount),
			"total %s must equal subtotal %s + tax %s", stored.TotalAmount, stored.Subtotal, stored.TaxAmount)
		assert.True(t, stored.Subtotal.Equal(lineSubtotals))
		assert.True(t, stored.TotalAmount.Equal(lineTotals))
		assert.True(t, stored.BalanceDue.Equal(stored.TotalAmount))
		assert.False(t, stored.Subtotal.IsNegative())
		assert.False(t, stored.TotalAmount.IsNegative())
	}
}

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
