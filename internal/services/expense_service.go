package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/receipts"
	"kharcha/internal/storage"
)

// CleanupPublisher hands a no-longer-referenced receipt off for deletion.
// The broker client satisfies it; DirectCleaner is the brokerless fallback.
type CleanupPublisher interface {
	PublishReceiptCleanup(ctx context.Context, ref string) error
}

// DirectCleaner deletes receipt artifacts inline instead of going through
// the queue. Used when no broker is configured.
type DirectCleaner struct {
	Store *receipts.Store
}

func (d DirectCleaner) PublishReceiptCleanup(_ context.Context, ref string) error {
	return d.Store.Delete(ref)
}

// ExpenseInput carries the caller-supplied fields for creating or updating
// an expense. ReceiptRef is the handle returned by the receipt store for a
// freshly uploaded file, or empty.
type ExpenseInput struct {
	Description string
	Amount      core.Money
	Date        time.Time
	CategoryID  int64
	ReceiptRef  string
}

type ExpenseService struct {
	store     *storage.SQLiteRepository
	evaluator *Evaluator
	cleaner   CleanupPublisher
	logger    *slog.Logger
}

func NewExpenseService(store *storage.SQLiteRepository, evaluator *Evaluator, cleaner CleanupPublisher, logger *slog.Logger) *ExpenseService {
	return &ExpenseService{store: store, evaluator: evaluator, cleaner: cleaner, logger: logger}
}

// Create records an expense and reports the resulting budget standing for
// its category and month. The evaluation is advisory: if it fails the
// expense is still created and the error only gets logged.
func (s *ExpenseService) Create(ctx context.Context, userID int64, in ExpenseInput) (core.Expense, *core.Evaluation, error) {
	exp := core.Expense{
		UserID:      userID,
		Description: in.Description,
		Amount:      in.Amount,
		Date:        in.Date,
		ReceiptRef:  in.ReceiptRef,
	}
	if err := exp.Validate(); err != nil {
		return core.Expense{}, nil, err
	}

	// The category id comes from the client; re-check ownership here, the
	// foreign key alone would accept another user's category.
	cat, err := s.store.GetCategory(ctx, userID, in.CategoryID)
	if err != nil {
		return core.Expense{}, nil, fmt.Errorf("category: %w", err)
	}
	exp.CategoryID = &cat.ID

	created, err := s.store.CreateExpense(ctx, exp)
	if err != nil {
		return core.Expense{}, nil, fmt.Errorf("create expense: %w", err)
	}

	eval, err := s.evaluator.Evaluate(ctx, userID, cat.ID, core.MonthOf(created.Date))
	if err != nil {
		s.logger.Warn("post-create evaluation failed",
			"expense_id", created.ID,
			"category_id", cat.ID,
			"error", err)
		return created, nil, nil
	}
	eval.CategoryName = cat.Name
	return created, &eval, nil
}

// Update rewrites an owned expense. When in.ReceiptRef is non-empty it
// supersedes the stored receipt and the old artifact is handed to the
// cleaner; when empty the existing receipt is kept.
func (s *ExpenseService) Update(ctx context.Context, userID, id int64, in ExpenseInput) (core.Expense, error) {
	existing, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, err
	}

	exp := core.Expense{
		ID:          id,
		UserID:      userID,
		Description: in.Description,
		Amount:      in.Amount,
		Date:        in.Date,
		ReceiptRef:  existing.ReceiptRef,
	}
	if in.ReceiptRef != "" {
		exp.ReceiptRef = in.ReceiptRef
	}
	if err := exp.Validate(); err != nil {
		return core.Expense{}, err
	}

	cat, err := s.store.GetCategory(ctx, userID, in.CategoryID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("category: %w", err)
	}
	exp.CategoryID = &cat.ID

	if err := s.store.UpdateExpense(ctx, exp); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}

	if in.ReceiptRef != "" && existing.ReceiptRef != "" && existing.ReceiptRef != in.ReceiptRef {
		s.cleanup(ctx, existing.ReceiptRef)
	}
	return exp, nil
}

// Delete removes an owned expense and hands its receipt, if any, to the
// cleaner.
func (s *ExpenseService) Delete(ctx context.Context, userID, id int64) error {
	existing, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, userID, id); err != nil {
		return err
	}
	if existing.ReceiptRef != "" {
		s.cleanup(ctx, existing.ReceiptRef)
	}
	return nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id int64) (core.Expense, error) {
	return s.store.GetExpense(ctx, userID, id)
}

func (s *ExpenseService) List(ctx context.Context, userID int64, f storage.ExpenseFilter) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, userID, f)
}

// cleanup is best effort: the row change already committed, a lost
// cleanup only leaves an orphan for the sweeper to collect.
func (s *ExpenseService) cleanup(ctx context.Context, ref string) {
	if err := s.cleaner.PublishReceiptCleanup(ctx, ref); err != nil {
		s.logger.Warn("receipt cleanup dispatch failed", "ref", ref, "error", err)
	}
}
