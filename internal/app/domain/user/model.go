// Package user defines the user aggregate: balance, referral identity and
// the running referral statistics embedded on the record.
package user

import "time"

// ReferralStats aggregates a user's referral activity. It is denormalized
// onto the user record and mutated only alongside ledger decisions.
type ReferralStats struct {
	InvitedCount       int64 `json:"invited_count"`
	TotalCommission    int64 `json:"total_commission"`     // lifetime commission earned, smallest unit
	TotalDepositVolume int64 `json:"total_deposit_volume"` // sum of referred users' approved deposits
}

// User holds the balance and referral identity for one account. Creation is
// driven by the authentication tier; this service upserts the record the
// first time it sees an id.
type User struct {
	ID           string            `json:"id"`
	Balance      int64             `json:"balance"` // smallest currency unit
	ReferralCode string            `json:"referral_code"`
	ReferredBy   string            `json:"referred_by,omitempty"` // user id, set at most once
	Stats        ReferralStats     `json:"referral_stats"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
