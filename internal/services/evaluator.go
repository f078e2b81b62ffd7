package services

import (
	"context"
	"errors"
	"fmt"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

// Evaluator computes spending-vs-budget classifications. It only reads;
// repeated calls against unchanged store state return identical results.
type Evaluator struct {
	store *storage.SQLiteRepository
}

func NewEvaluator(store *storage.SQLiteRepository) *Evaluator {
	return &Evaluator{store: store}
}

// Evaluate totals the user's spend in one category for one calendar month
// and classifies it against the configured budget, if any. Store errors
// propagate untouched; retrying is the caller's concern.
func (ev *Evaluator) Evaluate(ctx context.Context, userID, categoryID int64, month core.Month) (core.Evaluation, error) {
	total, err := ev.store.SumExpenses(ctx, userID, categoryID, month)
	if err != nil {
		return core.Evaluation{}, fmt.Errorf("total spent: %w", err)
	}

	var budget *core.Money
	b, err := ev.store.GetBudget(ctx, userID, categoryID, month)
	switch {
	case err == nil:
		budget = &b.Amount
	case errors.Is(err, core.ErrNotFound):
		// No ceiling configured; report the raw total.
	default:
		return core.Evaluation{}, fmt.Errorf("budget lookup: %w", err)
	}

	return core.Evaluate(categoryID, month, total, budget), nil
}

// EvaluateMonth evaluates every category the user owns for one month,
// with category names filled in for presentation. Dashboard callers use
// the current month.
func (ev *Evaluator) EvaluateMonth(ctx context.Context, userID int64, month core.Month) ([]core.Evaluation, error) {
	cats, err := ev.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	evals := make([]core.Evaluation, 0, len(cats))
	for _, cat := range cats {
		e, err := ev.Evaluate(ctx, userID, cat.ID, month)
		if err != nil {
			return nil, fmt.Errorf("evaluate category %d: %w", cat.ID, err)
		}
		e.CategoryName = cat.Name
		evals = append(evals, e)
	}
	return evals, nil
}
