package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/usecase"
)

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []usecase.CartItem `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.orders.Checkout(r.Context(), viewer(r), req.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"orders":  toOrderDTOs(res.Orders),
		"total":   res.Total,
		"balance": res.Balance,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var status *model.OrderStatus
	if v := q.Get("status"); v != "" {
		st := model.OrderStatus(v)
		status = &st
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, domain.ErrInvalidArgument)
			return
		}
		limit = n
	}
	list, err := s.orders.History(r.Context(), viewer(r), status, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toOrderDTOs(list)})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	o, err := s.orders.Activate(r.Context(), viewer(r), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*o))
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID := chi.URLParam(r, "userID")
	bal, err := s.orders.TopUp(r.Context(), viewer(r), userID, req.Amount, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "balance": bal})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.orders.Transactions(r.Context(), viewer(r), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toBalanceTxDTOs(list)})
}

// handleStreamCheck always answers with a StreamStatus body; upstream failures
// carry the message in its error field.
func (s *Server) handleStreamCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StreamURL string `json:"streamUrl"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.StreamStatus{Error: "Invalid request body"})
		return
	}
	st, err := s.streams.Check(r.Context(), req.StreamURL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, model.StreamStatus{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}
