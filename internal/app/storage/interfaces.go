// Package storage defines the persistence interfaces for the rewards
// platform. Multi-record consistency (balance mutation tied to a token
// decision) is owned by the store: services compose a Decision or Draw and
// the store applies it atomically.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rafflehub/rewards/internal/app/domain/raffle"
	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/app/domain/user"
)

// Sentinel errors shared by all implementations.
var (
	ErrNotFound            = errors.New("record not found")
	ErrAlreadyDecided      = errors.New("token already decided")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyBound        = errors.New("referrer already bound")
	ErrAlreadyMigrated     = errors.New("legacy transaction already migrated")
	ErrDuplicateCode       = errors.New("referral code already in use")
)

// BalanceDelta adjusts one user's balance. Negative deltas must not drive
// the balance below zero.
type BalanceDelta struct {
	UserID string
	Delta  int64
}

// StatsDelta adjusts one user's embedded referral statistics.
type StatsDelta struct {
	UserID             string
	InvitedDelta       int64
	CommissionDelta    int64
	DepositVolumeDelta int64
}

// PotDelta adjusts a raffle round's pot and entry count.
type PotDelta struct {
	RoundID    string
	PotDelta   int64
	EntryDelta int64
}

// Decision is the atomic unit of the approval workflow: a terminal status
// transition plus every side effect it implies. The store applies it in one
// transaction, guarded on the token still being pending.
type Decision struct {
	TokenID      string
	Status       token.Status // StatusApproved, StatusRejected or StatusExpired
	DecidedBy    string
	DecidedAt    time.Time
	RejectReason string

	Balances        []BalanceDelta
	Stats           []StatsDelta
	CommissionToken *token.UnifiedToken // inserted already-approved
	RaffleEntry     *raffle.Entry
	RafflePot       *PotDelta
}

// Draw settles a raffle round: the round moves to drawn and, when a prize is
// paid, the prize token is inserted approved and the winner's balance is
// credited, atomically. A nil PrizeToken settles the round without payout.
type Draw struct {
	Round      raffle.Round // terminal state to persist
	PrizeToken *token.UnifiedToken
	Balance    BalanceDelta
}

// UserStore persists user records.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (user.User, error)
	ListUsers(ctx context.Context, limit int) ([]user.User, error)
	ListReferred(ctx context.Context, referrerID string, limit int) ([]user.User, error)

	// BindReferrer sets u.ReferredBy once and bumps the referrer's invited
	// count in the same transaction. ErrAlreadyBound when already set.
	BindReferrer(ctx context.Context, userID, referrerID string) (user.User, error)
}

// TokenStore persists unified tokens and applies decisions.
type TokenStore interface {
	CreateToken(ctx context.Context, t token.UnifiedToken) (token.UnifiedToken, error)
	GetToken(ctx context.Context, id string) (token.UnifiedToken, error)
	ListTokens(ctx context.Context, filter TokenFilter) ([]token.UnifiedToken, error)
	ListPendingTokens(ctx context.Context, limit int) ([]token.UnifiedToken, error)

	// ApplyDecision performs the guarded terminal transition and its side
	// effects. ErrAlreadyDecided when the token is no longer pending;
	// ErrInsufficientBalance when a debit would go negative. On error no
	// write is retained.
	ApplyDecision(ctx context.Context, d Decision) (token.UnifiedToken, error)

	// ExpireDue marks pending tokens whose expiry has passed and returns
	// how many were swept.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// TokenFilter narrows ListTokens. Zero values mean "any".
type TokenFilter struct {
	UserID string
	Type   token.Type
	Status token.Status
	Limit  int
}

// LegacyStore reads the deprecated transaction collection for migration.
type LegacyStore interface {
	CreateLegacyTransaction(ctx context.Context, tx token.LegacyTransaction) (token.LegacyTransaction, error)
	ListUnmigrated(ctx context.Context, userID string) ([]token.LegacyTransaction, error)

	// MigrateLegacy inserts the replacement token and flags the legacy row
	// migrated, atomically. ErrAlreadyMigrated when already flagged.
	MigrateLegacy(ctx context.Context, legacyID string, replacement token.UnifiedToken) (token.UnifiedToken, error)
}

// RaffleStore persists raffle rounds and entries.
type RaffleStore interface {
	CreateRound(ctx context.Context, r raffle.Round) (raffle.Round, error)
	GetRound(ctx context.Context, id string) (raffle.Round, error)
	GetOpenRound(ctx context.Context) (raffle.Round, error)
	UpdateRound(ctx context.Context, r raffle.Round) (raffle.Round, error)
	ListRounds(ctx context.Context, limit int) ([]raffle.Round, error)
	ListEntries(ctx context.Context, roundID string) ([]raffle.Entry, error)

	// ApplyDraw settles a round atomically. Guarded on the round still
	// being open.
	ApplyDraw(ctx context.Context, d Draw) (raffle.Round, error)
}
