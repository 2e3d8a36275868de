package http

import (
	"net/http"

	"poupa/internal/core"
	applog "poupa/internal/log"
)

type transactionList struct {
	Transactions []core.Transaction `json:"transactions"`
	Range        *core.DateRange    `json:"range,omitempty"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	rng, err := ParseRangeQuery(r.URL.Query(), s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs, err := s.deps.Transactions.List(r.Context(), userID, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := transactionList{Transactions: txs}
	if body.Transactions == nil {
		body.Transactions = []core.Transaction{}
	}
	if !rng.IsZero() {
		body.Range = &rng
	}
	NewJSONResponse().Body(body).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toInput(s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.deps.Transactions.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.countTransaction()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+created.ID).
		Body(created).
		Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	tx, err := s.deps.Transactions.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(tx).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	var req patchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := req.toPatch(s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := s.deps.Transactions.Update(r.Context(), userID, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(updated).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	if err := s.deps.Transactions.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Transaction deleted",
		applog.FieldUserID, userID,
		applog.FieldTransactionID, id)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
