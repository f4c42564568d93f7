package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier enumerates billing plans.
type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "free"
	TierPro        SubscriptionTier = "pro"
	TierEnterprise SubscriptionTier = "enterprise"
)

// Valid reports whether t is a known tier.
func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// TransactionType is the business reason for a ledger entry.
type TransactionType string

const (
	TxPurchase     TransactionType = "purchase"
	TxSubscription TransactionType = "subscription"
	TxGeneration   TransactionType = "generation"
	TxRefund       TransactionType = "refund"
	TxBonus        TransactionType = "bonus"
	TxAdjustment   TransactionType = "adjustment"
)

// DebitTypes are the transaction types a debit may carry.
var DebitTypes = map[TransactionType]bool{
	TxGeneration: true,
	TxAdjustment: true,
}

// CreditTypes are the transaction types a credit may carry.
var CreditTypes = map[TransactionType]bool{
	TxPurchase:     true,
	TxSubscription: true,
	TxRefund:       true,
	TxBonus:        true,
	TxAdjustment:   true,
}

// CreditBalance is the spendable-credit view of an account.
type CreditBalance struct {
	AccountID             uuid.UUID        `json:"account_id"`
	CreditsRemaining      int              `json:"credits_remaining"`
	SubscriptionTier      SubscriptionTier `json:"subscription_tier"`
	SubscriptionExpiresAt *time.Time       `json:"subscription_expires_at,omitempty"`
	LifetimeCreditsUsed   int              `json:"lifetime_credits_used"`
}

// CreditTransaction is one immutable row of the audit trail. Amount is
// negative for debits and positive for credits; BalanceAfter snapshots the
// cached balance as of this entry.
type CreditTransaction struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Amount       int             `json:"amount"`
	Type         TransactionType `json:"transaction_type"`
	Description  string          `json:"description"`
	ReferenceID  string          `json:"reference_id,omitempty"`
	BalanceAfter int             `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}
