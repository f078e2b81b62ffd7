package services

import (
	"context"
	"fmt"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

type BudgetService struct {
	store *storage.SQLiteRepository
}

func NewBudgetService(store *storage.SQLiteRepository) *BudgetService {
	return &BudgetService{store: store}
}

// Upsert sets the budget for (category, month), replacing any existing
// amount for the same triple. Setting twice never yields two rows.
func (s *BudgetService) Upsert(ctx context.Context, userID, categoryID int64, month string, amount core.Money) (core.Budget, error) {
	m, err := core.ParseMonth(month)
	if err != nil {
		return core.Budget{}, err
	}

	b := core.Budget{
		UserID:     userID,
		CategoryID: categoryID,
		Month:      m,
		Amount:     amount,
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	if _, err := s.store.GetCategory(ctx, userID, categoryID); err != nil {
		return core.Budget{}, fmt.Errorf("category: %w", err)
	}

	return s.store.UpsertBudget(ctx, b)
}

// Update rewrites an owned budget by id. Moving it onto a (category, month)
// pair that already has a budget fails with ErrConflict.
func (s *BudgetService) Update(ctx context.Context, userID, id, categoryID int64, month string, amount core.Money) (core.Budget, error) {
	m, err := core.ParseMonth(month)
	if err != nil {
		return core.Budget{}, err
	}

	if _, err := s.store.GetBudgetByID(ctx, userID, id); err != nil {
		return core.Budget{}, err
	}
	if _, err := s.store.GetCategory(ctx, userID, categoryID); err != nil {
		return core.Budget{}, fmt.Errorf("category: %w", err)
	}

	b := core.Budget{
		ID:         id,
		UserID:     userID,
		CategoryID: categoryID,
		Month:      m,
		Amount:     amount,
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := s.store.UpdateBudget(ctx, b); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func (s *BudgetService) Delete(ctx context.Context, userID, id int64) error {
	return s.store.DeleteBudget(ctx, userID, id)
}

func (s *BudgetService) List(ctx context.Context, userID int64) ([]storage.BudgetWithCategory, error) {
	return s.store.ListBudgets(ctx, userID)
}
