package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

type evaluationResponse struct {
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category,omitempty"`
	Month        string `json:"month"`
	TotalSpent   string `json:"total_spent"`
	HasBudget    bool   `json:"has_budget"`
	Budget       string `json:"budget,omitempty"`
	Status       string `json:"status,omitempty"`
	OverAmount   string `json:"over_amount,omitempty"`
	SavedAmount  string `json:"saved_amount,omitempty"`
}

func toEvaluationResponse(e core.Evaluation) evaluationResponse {
	resp := evaluationResponse{
		CategoryID:   e.CategoryID,
		CategoryName: e.CategoryName,
		Month:        e.Month.String(),
		TotalSpent:   e.TotalSpent.String(),
		HasBudget:    e.HasBudget,
		Status:       string(e.Status),
	}
	if e.HasBudget {
		resp.Budget = e.Budget.String()
	}
	switch e.Status {
	case core.StatusOverBudget:
		resp.OverAmount = e.OverAmount.String()
	case core.StatusUnderBudget:
		resp.SavedAmount = e.SavedAmount.String()
	}
	return resp
}

type dashboardResponse struct {
	Month       string               `json:"month"`
	Expenses    []expenseResponse    `json:"expenses"`
	Evaluations []evaluationResponse `json:"evaluations"`
}

// handleDashboard returns the month's expenses plus a budget evaluation
// per category. Defaults to the current month.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, user core.User) {
	month := core.MonthOf(time.Now())
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := core.ParseMonth(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		month = m
	}

	expenses, err := s.expenses.List(r.Context(), user.ID, storage.ExpenseFilter{Month: &month})
	if err != nil {
		writeError(w, r, err)
		return
	}

	evals, err := s.evaluator.EvaluateMonth(r.Context(), user.ID, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := dashboardResponse{
		Month:       month.String(),
		Expenses:    make([]expenseResponse, 0, len(expenses)),
		Evaluations: make([]evaluationResponse, 0, len(evals)),
	}
	for _, e := range expenses {
		resp.Expenses = append(resp.Expenses, toExpenseResponse(e))
	}
	for _, e := range evals {
		resp.Evaluations = append(resp.Evaluations, toEvaluationResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request, user core.User) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=expenses_%s.csv", time.Now().Format("2006-01-02")))

	if err := s.export.WriteCSV(r.Context(), user.ID, w); err != nil {
		// Headers may already be out; log and cut the stream short.
		writeError(w, r, err)
	}
}
