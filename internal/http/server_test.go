package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"kharcha/internal/receipts"
	"kharcha/internal/services"
	"kharcha/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv   *httptest.Server
	repo  *storage.SQLiteRepository
	files *receipts.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	files, err := receipts.NewStore(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	evaluator := services.NewEvaluator(repo)
	server := NewServer(":0", Deps{
		Users:      services.NewUserService(repo, time.Hour, logger),
		Categories: services.NewCategoryService(repo),
		Expenses:   services.NewExpenseService(repo, evaluator, services.DirectCleaner{Store: files}, logger),
		Budgets:    services.NewBudgetService(repo),
		Export:     services.NewExportService(repo),
		Evaluator:  evaluator,
		Receipts:   files,
		Store:      repo,
	})

	srv := httptest.NewServer(server.Server.Handler)
	t.Cleanup(srv.Close)
	t.Cleanup(server.rateLimiter.stop)

	return &testEnv{srv: srv, repo: repo, files: files}
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// registerAndLogin creates a user and returns a bearer token.
func (e *testEnv) registerAndLogin(t *testing.T, username string) string {
	t.Helper()
	resp := e.doJSON(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": username, "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.doJSON(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": username, "password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody[loginResponse](t, resp).Token
}

func (e *testEnv) categoryID(t *testing.T, token, name string) int64 {
	t.Helper()
	resp := e.doJSON(t, http.MethodGet, "/api/categories", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range decodeBody[[]categoryResponse](t, resp) {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("category %s not found", name)
	return 0
}

func (e *testEnv) postExpense(t *testing.T, token string, fields map[string]string, receiptName string, receiptBody []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if receiptName != "" {
		fw, err := mw.CreateFormFile("receipt", receiptName)
		require.NoError(t, err)
		_, err = fw.Write(receiptBody)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/expenses", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doJSON(t, http.MethodGet, "/api/expenses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterSeedsCategories(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doJSON(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "tanu", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	reg := decodeBody[registerResponse](t, resp)
	assert.Equal(t, []string{"Food", "Transport", "Bills", "Health", "Other"}, reg.SeededCategories)
}

func TestRegisterShortPasswordIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doJSON(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "tanu", "password": "abc",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	assert.Contains(t, body.Error, "at least 5 characters")
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t, "tanu")

	resp := env.doJSON(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "tanu", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLoginBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t, "tanu")

	resp := env.doJSON(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": "tanu", "password": "wrongpass",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.doJSON(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": "nobody", "password": "secret123",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestExpenseLifecycleWithReceipt(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "tanu")
	foodID := env.categoryID(t, token, "Food")

	receipt := []byte("fake jpeg bytes")
	resp := env.postExpense(t, token, map[string]string{
		"description": "groceries",
		"amount":      "250.00",
		"date":        "2026-08-10",
		"category_id": fmt.Sprintf("%d", foodID),
	}, "bill.jpg", receipt)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[createExpenseResponse](t, resp)
	assert.Equal(t, "250.00", created.Expense.Amount)
	assert.NotEmpty(t, created.Expense.ReceiptRef)

	// Receipt round-trips byte for byte.
	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/receipts/"+created.Expense.ReceiptRef, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer rresp.Body.Close()
	require.Equal(t, http.StatusOK, rresp.StatusCode)
	got, err := io.ReadAll(rresp.Body)
	require.NoError(t, err)
	assert.Equal(t, receipt, got)

	// Another user cannot see the receipt or the expense.
	otherToken := env.registerAndLogin(t, "meera")
	req, err = http.NewRequest(http.MethodGet, env.srv.URL+"/api/receipts/"+created.Expense.ReceiptRef, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+otherToken)
	oresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer oresp.Body.Close()
	assert.Equal(t, http.StatusNotFound, oresp.StatusCode)

	dresp := env.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/expenses/%d", created.Expense.ID), otherToken, nil)
	assert.Equal(t, http.StatusNotFound, dresp.StatusCode)

	// Owner deletes; the receipt artifact goes too (direct cleaner).
	dresp = env.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/expenses/%d", created.Expense.ID), token, nil)
	assert.Equal(t, http.StatusNoContent, dresp.StatusCode)

	_, err = env.files.Open(created.Expense.ReceiptRef)
	assert.Error(t, err)
}

func TestExpenseRejectsBadUpload(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "tanu")
	foodID := env.categoryID(t, token, "Food")

	resp := env.postExpense(t, token, map[string]string{
		"description": "groceries",
		"amount":      "10.00",
		"date":        "2026-08-10",
		"category_id": fmt.Sprintf("%d", foodID),
	}, "malware.exe", []byte("nope"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExpenseRejectsOversizedUpload(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "tanu")
	foodID := env.categoryID(t, token, "Food")

	// 12 MiB body blows past the 10 MiB cap.
	huge := bytes.Repeat([]byte("x"), 12<<20)
	resp := env.postExpense(t, token, map[string]string{
		"description": "groceries",
		"amount":      "10.00",
		"date":        "2026-08-10",
		"category_id": fmt.Sprintf("%d", foodID),
	}, "big.jpg", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	// Nothing was recorded and no artifact was kept.
	lresp := env.doJSON(t, http.MethodGet, "/api/expenses", token, nil)
	require.Equal(t, http.StatusOK, lresp.StatusCode)
	assert.Empty(t, decodeBody[[]expenseResponse](t, lresp))

	artifacts, err := env.files.List()
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestExpenseValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "tanu")
	foodID := env.categoryID(t, token, "Food")

	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"negative amount", map[string]string{
			"description": "x", "amount": "-5", "date": "2026-08-10",
			"category_id": fmt.Sprintf("%d", foodID),
		}},
		{"zero amount", map[string]string{
			"description": "x", "amount": "0", "date": "2026-08-10",
			"category_id": fmt.Sprintf("%d", foodID),
		}},
		{"garbage amount", map[string]string{
			"description": "x", "amount": "abc", "date": "2026-08-10",
			"category_id": fmt.Sprintf("%d", foodID),
		}},
		{"bad date", map[string]string{
			"description": "x", "amount": "10", "date": "10/08/2026",
			"category_id": fmt.Sprintf("%d", foodID),
		}},
		{"missing category", map[string]string{
			"description": "x", "amount": "10", "date": "2026-08-10",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.postExpense(t, token, tt.fields, "", nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestBudgetEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "tanu")
	foodID := env.categoryID(t, token, "Food")

	// Upsert twice: second call replaces, no duplicate row.
	resp := env.doJSON(t, http.MethodPut, "/api/budgets", token, budgetPayload{
		CategoryID: foodID, Month: "2026-08", Amount: "200.00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decodeBody[budgetResponse](t, resp)

	resp = env.doJSON(t, http.MethodPut, "/api/budgets", token, budgetPayload{
		CategoryID: foodID, Month: "2026-08", Amount: "150.00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeBody[budgetResponse](t, resp)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "150.00", second.Amount)

	resp = env.doJSON(t, http.MethodGet, "/api/budgets", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]budgetResponse](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "Food", list[0].Category)

	// Invalid month token.
	resp = env.doJSON(t, http.MethodPut, "/api/budgets", token, budgetPayload{
		CategoryID: foodID, Month: "2026-13", Amount: "100.00",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/budgets/%d", first.ID), token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDashboardEvaluations(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "tanu")
	foodID := env.categoryID(t, token, "Food")

	resp := env.doJSON(t, http.MethodPut, "/api/budgets", token, budgetPayload{
		CategoryID: foodID, Month: "2026-08", Amount: "200.00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.postExpense(t, token, map[string]string{
		"description": "groceries",
		"amount":      "250.00",
		"date":        "2026-08-10",
		"category_id": fmt.Sprintf("%d", foodID),
	}, "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[createExpenseResponse](t, resp)
	require.NotNil(t, created.Evaluation)
	assert.Equal(t, "over_budget", created.Evaluation.Status)
	assert.Equal(t, "50.00", created.Evaluation.OverAmount)

	resp = env.doJSON(t, http.MethodGet, "/api/dashboard?month=2026-08", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dash := decodeBody[dashboardResponse](t, resp)
	require.Len(t, dash.Expenses, 1)
	require.Len(t, dash.Evaluations, 5)

	var food *evaluationResponse
	for i := range dash.Evaluations {
		if dash.Evaluations[i].CategoryName == "Food" {
			food = &dash.Evaluations[i]
		}
	}
	require.NotNil(t, food)
	assert.Equal(t, "over_budget", food.Status)
	assert.Equal(t, "250.00", food.TotalSpent)
	assert.Equal(t, "200.00", food.Budget)
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "tanu")
	foodID := env.categoryID(t, token, "Food")

	resp := env.postExpense(t, token, map[string]string{
		"description": "groceries",
		"amount":      "125.50",
		"date":        "2026-08-05",
		"category_id": fmt.Sprintf("%d", foodID),
	}, "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/export.csv", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	cresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer cresp.Body.Close()
	require.Equal(t, http.StatusOK, cresp.StatusCode)
	assert.Contains(t, cresp.Header.Get("Content-Type"), "text/csv")

	body, err := io.ReadAll(cresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Description,Amount,Category,Date")
	assert.Contains(t, string(body), "groceries,125.50,Food,2026-08-05")
}

func TestCustomCategory(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "tanu")

	resp := env.doJSON(t, http.MethodPost, "/api/categories", token, map[string]string{"name": "Travel"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[categoryResponse](t, resp)
	assert.Equal(t, "Travel", created.Name)

	// Blank name rejected.
	resp = env.doJSON(t, http.MethodPost, "/api/categories", token, map[string]string{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Not visible to another account.
	otherToken := env.registerAndLogin(t, "meera")
	resp = env.doJSON(t, http.MethodGet, "/api/categories", otherToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range decodeBody[[]categoryResponse](t, resp) {
		assert.NotEqual(t, "Travel", c.Name)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "tanu")

	resp := env.doJSON(t, http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.doJSON(t, http.MethodGet, "/api/expenses", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
