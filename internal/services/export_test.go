package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportCSV(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, store, "tanu")
	food := seedCategory(t, store, u.ID, "Food")
	seedExpense(t, store, u.ID, food.ID, 12550, "2026-08-05")
	seedExpense(t, store, u.ID, food.ID, 300, "2026-08-20")

	var buf bytes.Buffer
	require.NoError(t, NewExportService(store).WriteCSV(ctx, u.ID, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"Description", "Amount", "Category", "Date"}, rows[0])
	// Newest first.
	assert.Equal(t, []string{"seeded expense", "3.00", "Food", "2026-08-20"}, rows[1])
	assert.Equal(t, []string{"seeded expense", "125.50", "Food", "2026-08-05"}, rows[2])
}

func TestExportCSVEmptyHistory(t *testing.T) {
	store := newTestStore(t)
	u := seedUser(t, store, "tanu")

	var buf bytes.Buffer
	require.NoError(t, NewExportService(store).WriteCSV(context.Background(), u.ID, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Description", "Amount", "Category", "Date"}, rows[0])
}

func TestExportCSVOnlyOwnRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, store, "tanu")
	other := seedUser(t, store, "meera")
	otherCat := seedCategory(t, store, other.ID, "Food")
	seedExpense(t, store, other.ID, otherCat.ID, 5000, "2026-08-05")

	var buf bytes.Buffer
	require.NoError(t, NewExportService(store).WriteCSV(ctx, u.ID, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
