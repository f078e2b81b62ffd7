package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"kharcha/internal/storage"
)

var exportHeader = []string{"Description", "Amount", "Category", "Date"}

type ExportService struct {
	store *storage.SQLiteRepository
}

func NewExportService(store *storage.SQLiteRepository) *ExportService {
	return &ExportService{store: store}
}

// WriteCSV streams the user's full expense history as CSV: header row, then
// one row per expense, newest first. Amounts are plain decimals, dates ISO
// (YYYY-MM-DD). An expense whose category was removed exports an empty
// category cell.
func (s *ExportService) WriteCSV(ctx context.Context, userID int64, w io.Writer) error {
	expenses, err := s.store.ListExpensesWithCategory(ctx, userID)
	if err != nil {
		return fmt.Errorf("export expenses: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range expenses {
		row := []string{
			e.Description,
			e.Amount.String(),
			e.CategoryName,
			e.Date.Format("2006-01-02"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
