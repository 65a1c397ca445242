// Package raffle defines raffle rounds funded by raffle_entry tokens.
package raffle

import "time"

// RoundStatus is the lifecycle state of a raffle round.
type RoundStatus string

const (
	RoundStatusOpen  RoundStatus = "open"
	RoundStatusDrawn RoundStatus = "drawn"
)

// Round is one raffle drawing period. The pot accumulates from approved
// entries; the draw credits the winner a share of the pot.
type Round struct {
	ID          string            `json:"id"`
	RoundNumber int64             `json:"round_number"`
	Status      RoundStatus       `json:"status"`
	EntryPrice  int64             `json:"entry_price"` // smallest unit, debited on entry approval
	Pot         int64             `json:"pot"`
	EntryCount  int64             `json:"entry_count"`
	WinnerID    string            `json:"winner_id,omitempty"` // user id
	Prize       int64             `json:"prize,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	DrawnAt     time.Time         `json:"drawn_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Entry joins a user to a round. One approved raffle_entry token backs each
// entry; TokenID keeps the audit link.
type Entry struct {
	ID        string    `json:"id"`
	RoundID   string    `json:"round_id"`
	UserID    string    `json:"user_id"`
	TokenID   string    `json:"token_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PrizeShareBps is the winner's share of the pot in basis points.
const PrizeShareBps = 8000 // 80%, the remainder funds the next round
