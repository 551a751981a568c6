package repository_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSequenceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.NumberSequence{}))
	return db
}

func TestSequenceNext_Monotonic(t *testing.T) {
	db := newSequenceTestDB(t)
	repo := repository.NewSequenceRepository(db)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := repo.Next(ctx, "invoice-2026")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Independent sequences do not interfere
	got, err := repo.Next(ctx, "invoice-2027")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got)
}

func TestSequenceNext_ConcurrentAllocationsAreUnique(t *testing.T) {
	db := newSequenceTestDB(t)
	repo := repository.NewSequenceRepository(db)
	txManager := repository.NewTransactionManager(db)
	ctx := context.Background()

	const workers = 10
	values := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := txManager.RunInTx(ctx, func(txCtx context.Context) error {
				v, err := repo.Next(txCtx, "invoice-2026")
				values[i] = v
				return err
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i := 0; i < workers; i++ {
		assert.EqualValues(t, i+1, values[i], "each allocation must be unique and gapless")
	}
}
