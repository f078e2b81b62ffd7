package http

import (
	"encoding/json"
	"net/http"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

type budgetResponse struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Category   string `json:"category,omitempty"`
	Month      string `json:"month"`
	Amount     string `json:"amount"`
}

func toBudgetResponse(b core.Budget) budgetResponse {
	return budgetResponse{
		ID:         b.ID,
		CategoryID: b.CategoryID,
		Month:      b.Month.String(),
		Amount:     b.Amount.String(),
	}
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request, user core.User) {
	var payload budgetPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	amount, err := payload.amountPaise()
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.budgets.Upsert(r.Context(), user.ID, payload.CategoryID, payload.Month, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetResponse(b))
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request, user core.User) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var payload budgetPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	amount, err := payload.amountPaise()
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.budgets.Update(r.Context(), user.ID, id, payload.CategoryID, payload.Month, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetResponse(b))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request, user core.User) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.budgets.Delete(r.Context(), user.ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request, user core.User) {
	budgets, err := s.budgets.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, budgetWithCategoryResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func budgetWithCategoryResponse(b storage.BudgetWithCategory) budgetResponse {
	resp := toBudgetResponse(b.Budget)
	resp.Category = b.CategoryName
	return resp
}
