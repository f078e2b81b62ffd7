package http

import (
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

type expenseResponse struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	CategoryID  *int64 `json:"category_id"`
	Date        string `json:"date"`
	ReceiptRef  string `json:"receipt_ref,omitempty"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		Description: e.Description,
		Amount:      e.Amount.String(),
		CategoryID:  e.CategoryID,
		Date:        e.Date.Format("2006-01-02"),
		ReceiptRef:  e.ReceiptRef,
	}
}

type createExpenseResponse struct {
	Expense    expenseResponse     `json:"expense"`
	Evaluation *evaluationResponse `json:"evaluation,omitempty"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, user core.User) {
	form, err := parseExpenseForm(w, r)
	if err != nil {
		writeFormError(w, err)
		return
	}
	defer form.closeFile()

	if form.File != nil {
		ref, err := s.receipts.Save(user.ID, form.File, form.Filename)
		if err != nil {
			writeError(w, r, err)
			return
		}
		form.Input.ReceiptRef = ref
	}

	exp, eval, err := s.expenses.Create(r.Context(), user.ID, form.Input)
	if err != nil {
		// The expense row never landed; drop the artifact we just saved.
		if form.Input.ReceiptRef != "" {
			if derr := s.receipts.Delete(form.Input.ReceiptRef); derr != nil {
				slog.WarnContext(r.Context(), "Failed to remove receipt after create error",
					"ref", form.Input.ReceiptRef, "error", derr)
			}
		}
		writeError(w, r, err)
		return
	}

	resp := createExpenseResponse{Expense: toExpenseResponse(exp)}
	if eval != nil {
		er := toEvaluationResponse(*eval)
		resp.Evaluation = &er
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, user core.User) {
	var filter storage.ExpenseFilter

	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := core.ParseMonth(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filter.Month = &m
	}
	if v := strings.TrimSpace(r.URL.Query().Get("category_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			badRequest(w, "invalid category_id")
			return
		}
		filter.CategoryID = &id
	}

	expenses, err := s.expenses.List(r.Context(), user.ID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, user core.User) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	form, err := parseExpenseForm(w, r)
	if err != nil {
		writeFormError(w, err)
		return
	}
	defer form.closeFile()

	if form.File != nil {
		ref, err := s.receipts.Save(user.ID, form.File, form.Filename)
		if err != nil {
			writeError(w, r, err)
			return
		}
		form.Input.ReceiptRef = ref
	}

	exp, err := s.expenses.Update(r.Context(), user.ID, id, form.Input)
	if err != nil {
		if form.Input.ReceiptRef != "" {
			if derr := s.receipts.Delete(form.Input.ReceiptRef); derr != nil {
				slog.WarnContext(r.Context(), "Failed to remove receipt after update error",
					"ref", form.Input.ReceiptRef, "error", derr)
			}
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(exp))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, user core.User) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.expenses.Delete(r.Context(), user.ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var receiptContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request, user core.User) {
	ref := r.PathValue("ref")

	owned, err := s.store.ReceiptOwnedBy(r.Context(), user.ID, ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !owned {
		writeError(w, r, core.ErrNotFound)
		return
	}

	rc, err := s.receipts.Open(ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	if ct, ok := receiptContentTypes[strings.ToLower(filepath.Ext(ref))]; ok {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if _, err := io.Copy(w, rc); err != nil {
		slog.WarnContext(r.Context(), "Failed to stream receipt", "ref", ref, "error", err)
	}
}
