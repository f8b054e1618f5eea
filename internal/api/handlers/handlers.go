package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/finance-manager/internal/api/middleware"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/dvloznov/finance-manager/internal/query"
	"github.com/shopspring/decimal"
)

// maxFormBytes caps request bodies; setup forms are the largest.
const maxFormBytes = 1 << 20

// LedgerService is the ledger API the handlers drive.
type LedgerService interface {
	Add(ctx context.Context, in ledger.AddInput) (*ledger.MutationResult, error)
	Edit(ctx context.Context, in ledger.EditInput) (*ledger.MutationResult, error)
	Delete(ctx context.Context, id string) (*ledger.MutationResult, error)
	Refund(ctx context.Context, in ledger.RefundInput) (*ledger.MutationResult, error)
	Setup(ctx context.Context, in ledger.SetupInput) (*ledger.SetupResult, error)
	List(ctx context.Context, f query.Filter) ([]domain.Transaction, error)
	Balances(ctx context.Context) (domain.RegistrySummary, error)
}

// TransactionsHandler handles ledger reads and mutations.
type TransactionsHandler struct {
	svc LedgerService
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc LedgerService) *TransactionsHandler {
	return &TransactionsHandler{svc: svc}
}

// AddTransaction handles POST /add_transaction
func (h *TransactionsHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	in := ledger.AddInput{
		TransactionInput: transactionInput(r),
		InteracType:      r.PostFormValue("interac_type"),
		TargetBank:       r.PostFormValue("target_bank"),
		TargetAccount:    r.PostFormValue("target_account"),
	}

	result, err := h.svc.Add(r.Context(), in)
	if err != nil {
		middleware.WriteServiceError(w, r, "Failed to add transaction", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, mutationResponse("Transaction added successfully", result))
}

// EditTransaction handles POST /edit_transaction
func (h *TransactionsHandler) EditTransaction(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	id, ok := requireID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Edit(r.Context(), ledger.EditInput{ID: id, TransactionInput: transactionInput(r)})
	if err != nil {
		middleware.WriteServiceError(w, r, "Failed to edit transaction", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, mutationResponse("Transaction updated successfully", result))
}

// DeleteTransaction handles POST /delete_transaction
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	id, ok := requireID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		middleware.WriteServiceError(w, r, "Failed to delete transaction", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, mutationResponse("Transaction deleted successfully", result))
}

// RefundTransaction handles POST /refund_transaction
func (h *TransactionsHandler) RefundTransaction(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	id, ok := requireID(w, r)
	if !ok {
		return
	}

	in := ledger.RefundInput{
		ID:         id,
		Amount:     r.PostFormValue("refund_amount"),
		RefundType: r.PostFormValue("refund_type"),
	}
	result, err := h.svc.Refund(r.Context(), in)
	if err != nil {
		middleware.WriteServiceError(w, r, "Failed to refund transaction", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, mutationResponse("Refund processed successfully", result))
}

// ViewTransactions handles GET /view_transactions
func (h *TransactionsHandler) ViewTransactions(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// SearchTransactions handles GET /search_transactions. It takes the same
// predicates as ViewTransactions but requires a keyword.
func (h *TransactionsHandler) SearchTransactions(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *TransactionsHandler) list(w http.ResponseWriter, r *http.Request, requireKeyword bool) {
	filter, err := query.ParseFilter(r.URL.Query())
	if err != nil {
		middleware.WriteServiceError(w, r, "Invalid filter", err)
		return
	}
	if requireKeyword && filter.Keyword == "" {
		middleware.WriteServiceError(w, r, "Invalid filter", domain.NewValidationError("keyword", "is required"))
		return
	}

	records, err := h.svc.List(r.Context(), filter)
	if err != nil {
		middleware.WriteServiceError(w, r, "Failed to list transactions", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": records,
		"count":        len(records),
	})
}

// SetupHandler handles the account registry endpoints.
type SetupHandler struct {
	svc LedgerService
}

// NewSetupHandler creates a new setup handler.
func NewSetupHandler(svc LedgerService) *SetupHandler {
	return &SetupHandler{svc: svc}
}

// Balances handles GET /balances and GET /setup.
func (h *SetupHandler) Balances(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Balances(r.Context())
	if err != nil {
		middleware.WriteServiceError(w, r, "Failed to read balances", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

// SaveSetup handles POST /setup.
func (h *SetupHandler) SaveSetup(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	in, err := setupInput(r)
	if err != nil {
		middleware.WriteServiceError(w, r, "Invalid setup form", err)
		return
	}

	result, err := h.svc.Setup(r.Context(), in)
	if err != nil {
		middleware.WriteServiceError(w, r, "Failed to save setup", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Setup saved successfully",
		"result":  result,
	})
}

// setupInput reads bank[] and, for the i-th bank (0-based),
// account_name_{i}[], account_type_{i}[] and account_balance_{i}[].
// A blank balance means zero.
func setupInput(r *http.Request) (ledger.SetupInput, error) {
	in := ledger.SetupInput{Reset: strings.EqualFold(r.PostFormValue("reset"), "true")}

	for i, bank := range r.PostForm["bank[]"] {
		names := r.PostForm[fmt.Sprintf("account_name_%d[]", i)]
		types := r.PostForm[fmt.Sprintf("account_type_%d[]", i)]
		balances := r.PostForm[fmt.Sprintf("account_balance_%d[]", i)]

		for j, name := range names {
			entry := domain.AccountEntry{
				Bank:    strings.TrimSpace(bank),
				Account: strings.TrimSpace(name),
				Balance: decimal.Zero,
			}
			if j < len(types) {
				entry.Type = strings.TrimSpace(types[j])
			}
			if j < len(balances) && strings.TrimSpace(balances[j]) != "" {
				b, err := domain.ParseAmount(fmt.Sprintf("account_balance_%d[]", i), balances[j])
				if err != nil {
					return ledger.SetupInput{}, err
				}
				entry.Balance = b
			}
			in.Accounts = append(in.Accounts, entry)
		}
	}
	return in, nil
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func transactionInput(r *http.Request) ledger.TransactionInput {
	return ledger.TransactionInput{
		Date:      r.PostFormValue("date"),
		Time:      r.PostFormValue("time"),
		Type:      r.PostFormValue("type"),
		Bank:      r.PostFormValue("bank"),
		Account:   r.PostFormValue("account"),
		Direction: r.PostFormValue("transaction_direction"),
		Amount:    r.PostFormValue("amount"),
		Purpose:   r.PostFormValue("purpose"),
	}
}

func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid form body")
		return false
	}
	return true
}

func requireID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PostFormValue("id"))
	if id == "" {
		middleware.WriteServiceError(w, r, "Missing id", domain.NewValidationError("id", "is required"))
		return "", false
	}
	return id, true
}

func mutationResponse(message string, result *ledger.MutationResult) map[string]interface{} {
	return map[string]interface{}{
		"message":  message,
		"records":  result.Records,
		"balances": result.Balances,
	}
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer")
	}
	return n, nil
}
