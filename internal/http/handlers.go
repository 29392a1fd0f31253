package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"dompet/internal/core"
)

type walletResponse struct {
	Banknotes []banknoteJSON `json:"banknotes"`
	TotalCash int64          `json:"total_cash"`
}

type banknoteJSON struct {
	Value int64  `json:"value"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type transactionJSON struct {
	ID        int64  `json:"id"`
	Note      string `json:"note"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

type detailResponse struct {
	transactionJSON
	PaidWith       core.NoteCounts `json:"paid_with,omitempty"`
	ChangeReceived core.NoteCounts `json:"change_received,omitempty"`
	NotesReceived  core.NoteCounts `json:"notes_received,omitempty"`
}

// transactionRequest is the shared request body for create and update.
// The note mappings are JSON objects keyed by denomination value, e.g.
// {"paid_with": {"100000": 1}, "change_received": {"50000": 1}}.
type transactionRequest struct {
	Note           *string          `json:"note"`
	Amount         *int64           `json:"amount"`
	Kind           string           `json:"kind"`
	PaidWith       *core.NoteCounts `json:"paid_with"`
	ChangeReceived *core.NoteCounts `json:"change_received"`
	NotesReceived  *core.NoteCounts `json:"notes_received"`
	Timestamp      *string          `json:"timestamp"`
}

// hasMovements reports whether the request carries any note mapping,
// i.e. whether it defines (or replaces) the movement set.
func (req *transactionRequest) hasMovements() bool {
	return req.PaidWith != nil || req.ChangeReceived != nil || req.NotesReceived != nil
}

// breakdown assembles the tagged breakdown variant for the request's
// kind. An empty kind means expense, matching the original API where
// every transaction was a purchase. For incomes, change_received is
// accepted as a legacy alias of notes_received.
func (req *transactionRequest) breakdown() (core.Breakdown, error) {
	kind := core.Kind(req.Kind)
	if req.Kind == "" {
		kind = core.KindExpense
	}
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	counts := func(p *core.NoteCounts) core.NoteCounts {
		if p == nil {
			return core.NoteCounts{}
		}
		return *p
	}

	if kind == core.KindIncome {
		received := counts(req.NotesReceived)
		if req.NotesReceived == nil {
			received = counts(req.ChangeReceived)
		}
		return core.IncomeBreakdown{NotesReceived: received}, nil
	}
	return core.ExpenseBreakdown{
		PaidWith:       counts(req.PaidWith),
		ChangeReceived: counts(req.ChangeReceived),
	}, nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, req *transactionRequest) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusNotFound, "transaction not found")
		return 0, false
	}
	return id, true
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.walletCache.get(); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	notes, total, err := s.ledger.Wallet(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := &walletResponse{Banknotes: make([]banknoteJSON, 0, len(notes)), TotalCash: total}
	for _, d := range notes {
		resp.Banknotes = append(resp.Banknotes, banknoteJSON{Value: d.Value, Name: d.Name, Count: d.Count})
	}

	s.walletCache.set(resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	breakdown, err := req.breakdown()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ts time.Time
	if req.Timestamp != nil {
		if ts, err = core.ParseTimestamp(*req.Timestamp); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	in := core.TransactionInput{
		Breakdown: breakdown,
		Timestamp: ts,
	}
	if req.Note != nil {
		in.Note = *req.Note
	}
	if req.Amount != nil {
		in.Amount = *req.Amount
	}

	id, err := s.ledger.CreateTransaction(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.walletCache.invalidate()
	slog.InfoContext(r.Context(), "Transaction created", "id", id, "kind", string(breakdown.Kind()), "amount", in.Amount)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Transaction successful", "id": id})
}

func (s *Server) handleTransactionDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	detail, err := s.ledger.TransactionDetail(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := detailResponse{transactionJSON: toTransactionJSON(detail.Transaction)}
	switch b := detail.Breakdown.(type) {
	case core.ExpenseBreakdown:
		resp.PaidWith = b.PaidWith
		resp.ChangeReceived = b.ChangeReceived
	case core.IncomeBreakdown:
		resp.NotesReceived = b.NotesReceived
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req transactionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	upd := core.TransactionUpdate{
		Note:   req.Note,
		Amount: req.Amount,
	}
	if req.Timestamp != nil {
		ts, err := core.ParseTimestamp(*req.Timestamp)
		if err != nil || ts.IsZero() {
			writeError(w, http.StatusBadRequest, core.ErrBadTimestamp.Error())
			return
		}
		upd.Timestamp = &ts
	}
	if req.hasMovements() {
		breakdown, err := req.breakdown()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		upd.Breakdown = breakdown
	}

	if err := s.ledger.UpdateTransaction(r.Context(), id, upd); err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.walletCache.invalidate()
	slog.InfoContext(r.Context(), "Transaction updated", "id", id, "movements_replaced", upd.Breakdown != nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction updated successfully"})
}

// handleUpdateTimestamp is the timestamp-only update endpoint kept from
// the API's earlier shape.
func (s *Server) handleUpdateTimestamp(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	ts, err := core.ParseTimestamp(req.Timestamp)
	if err != nil || ts.IsZero() {
		writeError(w, http.StatusBadRequest, core.ErrBadTimestamp.Error())
		return
	}

	if err := s.ledger.UpdateTransaction(r.Context(), id, core.TransactionUpdate{Timestamp: &ts}); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Timestamp updated successfully"})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.walletCache.invalidate()
	slog.InfoContext(r.Context(), "Transaction deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction deleted successfully"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	period, err := core.ParsePeriod(r.URL.Query().Get("filter_period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sortBy, err := core.ParseSortOrder(r.URL.Query().Get("sort_by"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := s.ledger.History(r.Context(), period, sortBy)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]transactionJSON, 0, len(history))
	for _, t := range history {
		resp = append(resp, toTransactionJSON(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdjustWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Adjustments core.NoteCounts `json:"adjustments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Adjustments) == 0 {
		writeError(w, http.StatusBadRequest, "adjustments cannot be empty")
		return
	}

	if err := s.ledger.AdjustWallet(r.Context(), req.Adjustments); err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.walletCache.invalidate()
	slog.InfoContext(r.Context(), "Wallet adjusted directly", "denominations", len(req.Adjustments))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Wallet adjusted successfully"})
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:        t.ID,
		Note:      t.Note,
		Amount:    t.Amount,
		Kind:      string(t.Kind),
		Timestamp: core.FormatTimestamp(t.Timestamp),
	}
}
