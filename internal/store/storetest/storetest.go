// Package storetest provides a throwaway SQLite-backed store for tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mining-bot/internal/models"
	"mining-bot/internal/store"
)

// NewDB opens an isolated in-memory database with the store schema applied.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection serializes writers and keeps the shared-cache database alive
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// New returns a GormStore over a fresh database.
func New(t testing.TB) *store.GormStore {
	t.Helper()
	return store.NewGormStore(NewDB(t))
}

// Seed inserts records, failing the test on error.
func Seed(t testing.TB, st store.Store, recs ...*models.UserRecord) {
	t.Helper()
	for _, rec := range recs {
		if err := st.Set(context.Background(), rec); err != nil {
			t.Fatalf("seed %s: %v", rec.ID, err)
		}
	}
}

// MustGet loads a record, failing the test on error.
func MustGet(t testing.TB, st store.Store, id string) *models.UserRecord {
	t.Helper()
	rec, err := st.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return rec
}

// Faulty wraps a Store and fails Get or Update for selected ids.
type Faulty struct {
	store.Store

	mu          sync.Mutex
	failGet     map[string]error
	failUpdate  map[string]error
	updateCalls map[string]int
}

func NewFaulty(inner store.Store) *Faulty {
	return &Faulty{
		Store:       inner,
		failGet:     make(map[string]error),
		failUpdate:  make(map[string]error),
		updateCalls: make(map[string]int),
	}
}

// FailGet makes Get(id) return err.
func (f *Faulty) FailGet(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet[id] = err
}

// FailUpdate makes Update(id, ...) return err without touching the record.
func (f *Faulty) FailUpdate(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUpdate[id] = err
}

// UpdateCalls reports how many times Update was called for id.
func (f *Faulty) UpdateCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls[id]
}

func (f *Faulty) Get(ctx context.Context, id string) (*models.UserRecord, error) {
	f.mu.Lock()
	err := f.failGet[id]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, id)
}

func (f *Faulty) Update(ctx context.Context, id string, ops ...store.Op) error {
	f.mu.Lock()
	f.updateCalls[id]++
	err := f.failUpdate[id]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Update(ctx, id, ops...)
}
