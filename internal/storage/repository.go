package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kharcha/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// SQLiteRepository is the transactional store behind all managers. Every
// read and write on user-owned rows is scoped by user id in the query
// itself, never filtered after the fact.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.migrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// isUniqueViolation detects SQLite unique-constraint failures without
// depending on driver error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// --- users ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, username, passwordHash string) (core.User, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, fmt.Errorf("username %q: %w", username, core.ErrConflict)
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("create user id: %w", err)
	}
	return r.GetUserByID(ctx, id)
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, core.ErrNotFound
		}
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = parseTimestamp(createdAt)
	return u, nil
}

// --- sessions ---

func (r *SQLiteRepository) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSessionUser resolves a session token to its user. Expired or unknown
// tokens report core.ErrNotFound.
func (r *SQLiteRepository) GetSessionUser(ctx context.Context, token string) (core.User, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, u.password_hash, u.created_at
		 FROM sessions s JOIN users u ON s.user_id = u.id
		 WHERE s.token = ? AND s.expires_at > ?`, token, now))
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, userID int64, name string) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name) VALUES (?, ?)`, userID, name)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("create category id: %w", err)
	}
	return core.Category{ID: id, UserID: userID, Name: name}, nil
}

// GetCategory looks up a category owned by userID. Someone else's
// category is indistinguishable from a missing one.
func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id int64) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&c.ID, &c.UserID, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Category{}, core.ErrNotFound
		}
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// --- expenses ---

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	var categoryID sql.NullInt64
	if e.CategoryID != nil {
		categoryID = sql.NullInt64{Int64: *e.CategoryID, Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, category_id, description, amount_paise, date, receipt_ref)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.UserID, categoryID, e.Description, e.Amount.Paise, e.Date.Format(dateLayout), e.ReceiptRef)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense id: %w", err)
	}
	e.ID = id

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"user_id", e.UserID,
		"amount_paise", e.Amount.Paise,
		"date", e.Date.Format(dateLayout))

	return e, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, category_id, description, amount_paise, date, receipt_ref
		 FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	e, err := scanExpense(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Expense{}, core.ErrNotFound
		}
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func scanExpense(scan func(...any) error) (core.Expense, error) {
	var e core.Expense
	var categoryID sql.NullInt64
	var date string
	if err := scan(&e.ID, &e.UserID, &categoryID, &e.Description, &e.Amount.Paise, &date, &e.ReceiptRef); err != nil {
		return core.Expense{}, err
	}
	if categoryID.Valid {
		e.CategoryID = &categoryID.Int64
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse expense date %q: %w", date, err)
	}
	e.Date = d
	return e, nil
}

// UpdateExpense overwrites all mutable fields of an owned expense.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	var categoryID sql.NullInt64
	if e.CategoryID != nil {
		categoryID = sql.NullInt64{Int64: *e.CategoryID, Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses
		 SET category_id = ?, description = ?, amount_paise = ?, date = ?, receipt_ref = ?,
		     updated_at = datetime('now')
		 WHERE id = ? AND user_id = ?`,
		categoryID, e.Description, e.Amount.Paise, e.Date.Format(dateLayout), e.ReceiptRef,
		e.ID, e.UserID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update expense rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ExpenseFilter narrows ListExpenses. Nil fields match everything.
type ExpenseFilter struct {
	CategoryID *int64
	Month      *core.Month
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64, f ExpenseFilter) ([]core.Expense, error) {
	query := `SELECT id, user_id, category_id, description, amount_paise, date, receipt_ref
	          FROM expenses WHERE user_id = ?`
	args := []any{userID}
	if f.CategoryID != nil {
		query += ` AND category_id = ?`
		args = append(args, *f.CategoryID)
	}
	if f.Month != nil {
		query += ` AND substr(date, 1, 7) = ?`
		args = append(args, f.Month.String())
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// ExpenseWithCategory joins an expense with its category display name for
// export and listing. CategoryName is empty when the category is gone.
type ExpenseWithCategory struct {
	core.Expense
	CategoryName string
}

func (r *SQLiteRepository) ListExpensesWithCategory(ctx context.Context, userID int64) ([]ExpenseWithCategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.user_id, e.category_id, e.description, e.amount_paise, e.date, e.receipt_ref,
		        COALESCE(c.name, '')
		 FROM expenses e LEFT JOIN categories c ON e.category_id = c.id
		 WHERE e.user_id = ?
		 ORDER BY e.date DESC, e.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses with category: %w", err)
	}
	defer rows.Close()

	var out []ExpenseWithCategory
	for rows.Next() {
		var ec ExpenseWithCategory
		var categoryID sql.NullInt64
		var date string
		if err := rows.Scan(&ec.ID, &ec.UserID, &categoryID, &ec.Description,
			&ec.Amount.Paise, &date, &ec.ReceiptRef, &ec.CategoryName); err != nil {
			return nil, fmt.Errorf("scan expense row: %w", err)
		}
		if categoryID.Valid {
			ec.CategoryID = &categoryID.Int64
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("parse expense date %q: %w", date, err)
		}
		ec.Date = d
		out = append(out, ec)
	}
	return out, rows.Err()
}

// SumExpenses totals an owner's spend in one category for one calendar
// month. Months are matched on the YYYY-MM prefix of the stored date.
func (r *SQLiteRepository) SumExpenses(ctx context.Context, userID, categoryID int64, month core.Month) (core.Money, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_paise), 0)
		 FROM expenses
		 WHERE user_id = ? AND category_id = ? AND substr(date, 1, 7) = ?`,
		userID, categoryID, month.String()).Scan(&total)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", err)
	}
	return core.Money{Paise: total}, nil
}

// ReceiptRefInUse reports whether any expense still references ref. Used
// by the orphan sweep.
func (r *SQLiteRepository) ReceiptRefInUse(ctx context.Context, ref string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM expenses WHERE receipt_ref = ?)`, ref).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check receipt ref: %w", err)
	}
	return exists == 1, nil
}

// ReceiptOwnedBy reports whether one of the user's own expenses references
// ref. Gatekeeps receipt serving.
func (r *SQLiteRepository) ReceiptOwnedBy(ctx context.Context, userID int64, ref string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM expenses WHERE user_id = ? AND receipt_ref = ?)`,
		userID, ref).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check receipt owner: %w", err)
	}
	return exists == 1, nil
}

// --- budgets ---

func (r *SQLiteRepository) GetBudget(ctx context.Context, userID, categoryID int64, month core.Month) (core.Budget, error) {
	var b core.Budget
	var m string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, category_id, month, amount_paise
		 FROM budgets WHERE user_id = ? AND category_id = ? AND month = ?`,
		userID, categoryID, month.String()).Scan(&b.ID, &b.UserID, &b.CategoryID, &m, &b.Amount.Paise)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Budget{}, core.ErrNotFound
		}
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	b.Month = core.Month(m)
	return b, nil
}

func (r *SQLiteRepository) GetBudgetByID(ctx context.Context, userID, id int64) (core.Budget, error) {
	var b core.Budget
	var m string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, category_id, month, amount_paise
		 FROM budgets WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&b.ID, &b.UserID, &b.CategoryID, &m, &b.Amount.Paise)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Budget{}, core.ErrNotFound
		}
		return core.Budget{}, fmt.Errorf("get budget by id: %w", err)
	}
	b.Month = core.Month(m)
	return b, nil
}

// UpsertBudget sets the ceiling for (user, category, month) in a single
// atomic statement. Two concurrent upserts on the same triple cannot
// produce duplicate rows or lose an update to a read-then-write race.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO budgets (user_id, category_id, month, amount_paise)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, category_id, month)
		 DO UPDATE SET amount_paise = excluded.amount_paise, updated_at = datetime('now')
		 RETURNING id`,
		b.UserID, b.CategoryID, b.Month.String(), b.Amount.Paise).Scan(&b.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget upserted",
		"id", b.ID,
		"user_id", b.UserID,
		"category_id", b.CategoryID,
		"month", b.Month.String(),
		"amount_paise", b.Amount.Paise)

	return b, nil
}

// UpdateBudget overwrites all fields of an owned budget. Moving it onto an
// occupied (user, category, month) triple fails with core.ErrConflict.
func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE budgets
		 SET category_id = ?, month = ?, amount_paise = ?, updated_at = datetime('now')
		 WHERE id = ? AND user_id = ?`,
		b.CategoryID, b.Month.String(), b.Amount.Paise, b.ID, b.UserID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("budget for (%d, %s): %w", b.CategoryID, b.Month, core.ErrConflict)
		}
		return fmt.Errorf("update budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update budget rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete budget rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// BudgetWithCategory enriches a budget with its category display name for
// presentation. The name is joined on read, never denormalized.
type BudgetWithCategory struct {
	core.Budget
	CategoryName string
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID int64) ([]BudgetWithCategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.id, b.user_id, b.category_id, b.month, b.amount_paise, c.name
		 FROM budgets b JOIN categories c ON b.category_id = c.id
		 WHERE b.user_id = ?
		 ORDER BY b.month DESC, c.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []BudgetWithCategory
	for rows.Next() {
		var bc BudgetWithCategory
		var m string
		if err := rows.Scan(&bc.ID, &bc.UserID, &bc.CategoryID, &m, &bc.Amount.Paise, &bc.CategoryName); err != nil {
			return nil, fmt.Errorf("scan budget row: %w", err)
		}
		bc.Month = core.Month(m)
		out = append(out, bc)
	}
	return out, rows.Err()
}
