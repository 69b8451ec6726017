package http

import (
	"errors"
	"net/http"

	"reisekosten/internal/core"
	"reisekosten/internal/log"
)

// ExpenseList is the listing response.
type ExpenseList struct {
	Expenses []core.Expense `json:"expenses"`
	Count    int            `json:"count"`
	Total    core.Money     `json:"total"`
}

func newExpenseList(list []core.Expense) ExpenseList {
	out := ExpenseList{Expenses: list, Count: len(list)}
	if out.Expenses == nil {
		out.Expenses = []core.Expense{}
	}
	for _, e := range list {
		out.Total = out.Total.Add(e.Amount)
	}
	return out
}

// handleListExpenses refetches the collection and filters it.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	criteria, err := ParseCriteria(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	if err := s.deps.Store.FetchAll(r.Context()); err != nil {
		writeError(w, r, log.OpFetch, err)
		return
	}
	NewJSONResponse().Body(newExpenseList(s.deps.Store.Filter(criteria))).Write(w)
}

func (s *Server) handleLatestExpenses(w http.ResponseWriter, r *http.Request) {
	n, err := ParseLatestCount(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	if err := s.deps.Store.FetchAll(r.Context()); err != nil {
		writeError(w, r, log.OpFetch, err)
		return
	}
	NewJSONResponse().Body(newExpenseList(s.deps.Store.Latest(n))).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var e core.NewExpense
	if err := DecodeJSON(w, r, &e); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	if e.Image != "" {
		if _, _, err := core.DecodeDataURI(e.Image); err != nil {
			writeError(w, r, log.OpValidate, &core.ValidationError{Field: "image", Err: err})
			return
		}
	}

	created, err := s.deps.Store.Add(r.Context(), e)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+created.ID).
		Body(created).
		Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var patch core.ExpensePatch
	if err := DecodeJSON(w, r, &patch); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	if patch.Image != nil && *patch.Image != "" {
		if _, _, err := core.DecodeDataURI(*patch.Image); err != nil {
			writeError(w, r, log.OpValidate, &core.ValidationError{Field: "image", Err: err})
			return
		}
	}

	updated, err := s.deps.Store.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(updated).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, r, log.OpDelete, &core.ValidationError{Field: "id", Err: errors.New("missing id")})
		return
	}
	if err := s.deps.Store.Remove(r.Context(), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
