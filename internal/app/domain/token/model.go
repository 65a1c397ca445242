// Package token defines the unified token ledger: every balance-affecting
// event is a token that moves from pending to exactly one terminal state.
package token

import "time"

// Type enumerates the financial events the ledger records.
type Type string

const (
	TypeDeposit            Type = "deposit"
	TypeWithdrawal         Type = "withdrawal"
	TypeBonus              Type = "bonus"
	TypeReferralCommission Type = "referral_commission"
	TypeCashback           Type = "cashback"
	TypeRaffleEntry        Type = "raffle_entry"
)

// Valid reports whether t is a known token type.
func (t Type) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeBonus, TypeReferralCommission, TypeCashback, TypeRaffleEntry:
		return true
	}
	return false
}

// Credit reports whether approval of this type increases the owner's
// balance. Withdrawals and raffle entries debit it.
func (t Type) Credit() bool {
	switch t {
	case TypeWithdrawal, TypeRaffleEntry:
		return false
	}
	return true
}

// Status is the lifecycle state of a token.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool { return s != StatusPending }

// UnifiedToken represents one pending or settled financial event. Tokens are
// never deleted; expiry and rejection are recorded, not erased.
type UnifiedToken struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Type         Type              `json:"type"`
	Amount       int64             `json:"amount"` // always positive; Type decides the sign
	Status       Status            `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ExpiresAt    time.Time         `json:"expires_at,omitempty"`
	DecidedBy    string            `json:"decided_by,omitempty"` // admin id, or "system"
	DecidedAt    time.Time         `json:"decided_at,omitempty"`
	RejectReason string            `json:"reject_reason,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// LegacyTransaction is the deprecated predecessor of UnifiedToken, read only
// for one-time migration into the unified model.
type LegacyTransaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`  // legacy free-form kind, mapped to Type on migration
	Amount    int64     `json:"amount"`
	State     string    `json:"state"` // "completed" or "pending"
	Migrated  bool      `json:"migrated"`
	CreatedAt time.Time `json:"created_at"`
}
