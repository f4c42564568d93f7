package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
)

// GetBalance serves an account's spendable balance and tier.
func (a *App) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.badRequest(w, "invalid account id")
		return
	}
	balance, err := a.Ledger.GetBalance(r.Context(), accountID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, balance)
}

type debitRequest struct {
	Amount      int                    `json:"amount"`
	Type        domain.TransactionType `json:"transaction_type,omitempty"`
	Description string                 `json:"description"`
	ReferenceID string                 `json:"reference_id,omitempty"`
}

// Debit charges an account. Billing code calls this with the job id as
// reference_id so metered work stays traceable to its charge.
func (a *App) Debit(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.badRequest(w, "invalid account id")
		return
	}
	var req debitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid json body")
		return
	}
	entry, err := a.Ledger.Debit(r.Context(), domain.DebitParams{
		AccountID:   accountID,
		Amount:      req.Amount,
		Type:        req.Type,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, entry)
}

type creditRequest struct {
	Amount      int                    `json:"amount"`
	Type        domain.TransactionType `json:"transaction_type"`
	Description string                 `json:"description"`
	ReferenceID string                 `json:"reference_id,omitempty"`
}

// Credit grants credits, e.g. after a confirmed purchase or as a bonus.
func (a *App) Credit(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.badRequest(w, "invalid account id")
		return
	}
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid json body")
		return
	}
	entry, err := a.Ledger.Credit(r.Context(), domain.CreditParams{
		AccountID:   accountID,
		Amount:      req.Amount,
		Type:        req.Type,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, entry)
}

// ListTransactions pages through the audit trail, newest first.
func (a *App) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.badRequest(w, "invalid account id")
		return
	}
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	entries, err := a.Ledger.ListTransactions(r.Context(), accountID, limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.CreditTransaction{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": entries})
}

type subscriptionRequest struct {
	Tier        domain.SubscriptionTier `json:"tier"`
	ExpiresAt   *time.Time              `json:"expires_at,omitempty"`
	ExternalRef string                  `json:"external_ref,omitempty"`
}

// SetSubscription updates tier and expiry. Plan provisioning that grants
// credits pairs this with a Credit call.
func (a *App) SetSubscription(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.badRequest(w, "invalid account id")
		return
	}
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid json body")
		return
	}
	if err := a.Ledger.SetSubscription(r.Context(), accountID, req.Tier, req.ExpiresAt, req.ExternalRef); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"tier": string(req.Tier)})
}
