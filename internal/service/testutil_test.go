package service_test

import (
	"sync"
	"testing"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database limited to a single
// connection so concurrent transactions serialize deterministically.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Client{},
		&model.Pet{},
		&model.InventoryItem{},
		&model.InventoryTransaction{},
		&model.Invoice{},
		&model.InvoiceItem{},
		&model.Payment{},
		&model.NumberSequence{},
		&model.AuditLog{},
	))

	return db
}

// recordingNotifier captures published events for assertions
type recordingNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Type    string
	Payload interface{}
}

func (n *recordingNotifier) Publish(eventType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{Type: eventType, Payload: payload})
}

func (n *recordingNotifier) byType(eventType string) []publishedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []publishedEvent
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// testEnv bundles the wired services over one test database
type testEnv struct {
	db        *gorm.DB
	items     repository.InventoryRepository
	itemTxs   repository.InventoryTxRepository
	invoices  repository.InvoiceRepository
	notifier  *recordingNotifier
	inventory service.InventoryService
	invoice   service.InvoiceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	notifier := &recordingNotifier{}

	txManager := repository.NewTransactionManager(db)
	itemRepo := repository.NewInventoryRepository(db)
	itemTxRepo := repository.NewInventoryTxRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	clientRepo := repository.NewClientRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	adjuster := service.NewStockAdjuster(itemRepo, itemTxRepo)

	return &testEnv{
		db:       db,
		items:    itemRepo,
		itemTxs:  itemTxRepo,
		invoices: invoiceRepo,
		notifier: notifier,
		inventory: service.NewInventoryService(
			itemRepo, itemTxRepo, auditRepo, txManager, adjuster, notifier),
		invoice: service.NewInvoiceService(
			invoiceRepo, itemRepo, clientRepo, sequenceRepo, auditRepo, txManager, adjuster, notifier),
	}
}

func (e *testEnv) seedUser(t *testing.T, role string) *model.User {
	t.Helper()
	user := &model.User{
		FirstName: "Sarah",
		LastName:  "Nguyen",
		Email:     uuid.NewString() + "@clinic.test",
		Password:  "hashed",
		Role:      role,
		IsActive:  true,
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) seedClient(t *testing.T) (*model.Client, *model.Pet) {
	t.Helper()
	client := &model.Client{FirstName: "Ana", LastName: "Silva", Email: uuid.NewString() + "@owner.test"}
	require.NoError(t, e.db.Create(client).Error)

	pet := &model.Pet{ClientID: client.ID, Name: "Rocky", Species: "dog", Breed: "beagle"}
	require.NoError(t, e.db.Create(pet).Error)
	return client, pet
}

func (e *testEnv) seedItem(t *testing.T, name string, stock, minimum int) *model.InventoryItem {
	t.Helper()
	item := &model.InventoryItem{
		SKU:          uuid.NewString()[:8],
		Name:         name,
		CostPerUnit:  decimal.NewFromFloat(3.50),
		SellingPrice: decimal.NewFromFloat(9.99),
		CurrentStock: stock,
		MinimumStock: minimum,
	}
	require.NoError(t, e.db.Create(item).Error)
	return item
}
