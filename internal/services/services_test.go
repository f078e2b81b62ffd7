package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/storage"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUser(t *testing.T, store *storage.SQLiteRepository, username string) core.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), username, "hash")
	require.NoError(t, err)
	return u
}

func seedCategory(t *testing.T, store *storage.SQLiteRepository, userID int64, name string) core.Category {
	t.Helper()
	c, err := store.CreateCategory(context.Background(), userID, name)
	require.NoError(t, err)
	return c
}

func seedExpense(t *testing.T, store *storage.SQLiteRepository, userID, categoryID int64, paise int64, date string) core.Expense {
	t.Helper()
	d, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	e, err := store.CreateExpense(context.Background(), core.Expense{
		UserID:      userID,
		CategoryID:  &categoryID,
		Description: "seeded expense",
		Amount:      core.Money{Paise: paise},
		Date:        d,
	})
	require.NoError(t, err)
	return e
}

// recordingCleaner captures cleanup dispatches instead of deleting anything.
type recordingCleaner struct {
	refs []string
	err  error
}

func (c *recordingCleaner) PublishReceiptCleanup(_ context.Context, ref string) error {
	if c.err != nil {
		return c.err
	}
	c.refs = append(c.refs, ref)
	return nil
}
