// Package storetest opens migrated throwaway databases for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rezonia/fiscal-manager/internal/store"
)

// New returns a migrated sqlite database in t's temp dir, closed on cleanup
func New(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := store.Connect(context.Background(), store.Options{
		Driver: store.DriverSQLite,
		URL:    filepath.Join(t.TempDir(), "fiscal.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background(), db))

	t.Cleanup(func() { _ = store.Close(db) })
	return db
}
