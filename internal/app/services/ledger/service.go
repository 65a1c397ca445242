// Package ledger implements the unified token ledger: every balance-affecting
// event enters as a pending token and settles through exactly one terminal
// transition. Balance mutation happens only inside that transition.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rafflehub/rewards/internal/app/domain/raffle"
	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/app/metrics"
	"github.com/rafflehub/rewards/internal/app/storage"
	"github.com/rafflehub/rewards/internal/cache"
	"github.com/rafflehub/rewards/pkg/logger"
)

var (
	ErrInvalidType   = errors.New("invalid token type")
	ErrInvalidAmount = errors.New("token amount must be positive")
)

// Metadata keys carried on tokens.
const (
	MetaRoundID     = "round_id"
	MetaSourceToken = "source_token_id"
	MetaSourceUser  = "source_user_id"
	MetaLegacyID    = "legacy_id"
	MetaLegacyKind  = "legacy_kind"
)

// DecidedBySystem marks transitions not attributable to an admin.
const DecidedBySystem = "system"

// Config tunes ledger behavior.
type Config struct {
	// CommissionBps is the referrer's share of an approved deposit, in
	// basis points.
	CommissionBps int64
	// PendingTTL bounds how long a token may stay pending before the
	// sweeper expires it.
	PendingTTL time.Duration
}

// DefaultConfig returns production defaults: 10% commission, 72h TTL.
func DefaultConfig() Config {
	return Config{CommissionBps: 1000, PendingTTL: 72 * time.Hour}
}

// Service provides ledger operations.
type Service struct {
	tokens      storage.TokenStore
	users       storage.UserStore
	legacy      storage.LegacyStore
	cfg         Config
	invalidator cache.Invalidator
	log         *logger.Logger
}

// New constructs a ledger service.
func New(tokens storage.TokenStore, users storage.UserStore, legacy storage.LegacyStore, cfg Config, invalidator cache.Invalidator, log *logger.Logger) *Service {
	if cfg.CommissionBps == 0 {
		cfg.CommissionBps = DefaultConfig().CommissionBps
	}
	if cfg.PendingTTL == 0 {
		cfg.PendingTTL = DefaultConfig().PendingTTL
	}
	if invalidator == nil {
		invalidator = cache.NewNoopInvalidator()
	}
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{tokens: tokens, users: users, legacy: legacy, cfg: cfg, invalidator: invalidator, log: log}
}

// Create mints a pending token. The owner must exist; amount is the absolute
// value and Type decides the sign at approval time.
func (s *Service) Create(ctx context.Context, t token.UnifiedToken) (token.UnifiedToken, error) {
	if !t.Type.Valid() {
		return token.UnifiedToken{}, ErrInvalidType
	}
	if t.Amount <= 0 {
		return token.UnifiedToken{}, ErrInvalidAmount
	}
	if _, err := s.users.GetUser(ctx, t.UserID); err != nil {
		return token.UnifiedToken{}, fmt.Errorf("get owner: %w", err)
	}

	t.Status = token.StatusPending
	if t.ExpiresAt.IsZero() {
		t.ExpiresAt = time.Now().UTC().Add(s.cfg.PendingTTL)
	}
	t.DecidedBy = ""
	t.DecidedAt = time.Time{}
	t.RejectReason = ""

	created, err := s.tokens.CreateToken(ctx, t)
	if err != nil {
		return token.UnifiedToken{}, fmt.Errorf("create token: %w", err)
	}

	s.log.WithField("token_id", created.ID).
		WithField("user_id", created.UserID).
		WithField("type", string(created.Type)).
		WithField("amount", created.Amount).
		Info("token created")
	metrics.RecordTokenCreated(string(created.Type))
	s.invalidator.Invalidate(ctx, cache.TokensTag(created.UserID))

	return created, nil
}

// Get retrieves a token by id.
func (s *Service) Get(ctx context.Context, id string) (token.UnifiedToken, error) {
	return s.tokens.GetToken(ctx, id)
}

// List returns tokens matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter storage.TokenFilter) ([]token.UnifiedToken, error) {
	return s.tokens.ListTokens(ctx, filter)
}

// ListPending returns the admin review queue.
func (s *Service) ListPending(ctx context.Context, limit int) ([]token.UnifiedToken, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.tokens.ListPendingTokens(ctx, limit)
}

// Approve settles a pending token. Credits increase the owner's balance,
// debits decrease it (never below zero). Approving a deposit additionally
// pays referral commission to the owner's referrer, all in one transaction.
// A second approval of the same token returns storage.ErrAlreadyDecided.
func (s *Service) Approve(ctx context.Context, tokenID, adminID string) (token.UnifiedToken, error) {
	t, err := s.tokens.GetToken(ctx, tokenID)
	if err != nil {
		return token.UnifiedToken{}, fmt.Errorf("get token: %w", err)
	}

	now := time.Now().UTC()
	d := storage.Decision{
		TokenID:   tokenID,
		Status:    token.StatusApproved,
		DecidedBy: adminID,
		DecidedAt: now,
	}

	delta := t.Amount
	if !t.Type.Credit() {
		delta = -t.Amount
	}
	d.Balances = append(d.Balances, storage.BalanceDelta{UserID: t.UserID, Delta: delta})

	var commission int64
	if t.Type == token.TypeDeposit {
		commission, err = s.attachCommission(ctx, &d, t, now)
		if err != nil {
			return token.UnifiedToken{}, err
		}
	}
	if t.Type == token.TypeRaffleEntry {
		s.attachRaffleEntry(&d, t)
	}

	decided, err := s.tokens.ApplyDecision(ctx, d)
	if err != nil {
		return token.UnifiedToken{}, err
	}

	s.log.WithField("token_id", tokenID).
		WithField("user_id", t.UserID).
		WithField("type", string(t.Type)).
		WithField("admin_id", adminID).
		Info("token approved")
	metrics.RecordTokenDecided(string(t.Type), string(token.StatusApproved))
	if commission > 0 {
		metrics.RecordCommissionPaid(commission)
	}

	tags := []string{cache.UserTag(t.UserID), cache.TokensTag(t.UserID)}
	for _, st := range d.Stats {
		tags = append(tags, cache.UserTag(st.UserID), cache.TokensTag(st.UserID))
	}
	s.invalidator.Invalidate(ctx, tags...)

	return decided, nil
}

// attachCommission extends a deposit approval with the referrer's commission
// token, balance credit and stats bump. Deposits by unreferred users pay
// nothing, and a dangling referrer reference must not block the approval.
func (s *Service) attachCommission(ctx context.Context, d *storage.Decision, t token.UnifiedToken, now time.Time) (int64, error) {
	owner, err := s.users.GetUser(ctx, t.UserID)
	if err != nil {
		return 0, fmt.Errorf("get owner: %w", err)
	}
	if owner.ReferredBy == "" {
		return 0, nil
	}
	if _, err := s.users.GetUser(ctx, owner.ReferredBy); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.WithField("token_id", t.ID).
				WithField("referrer_id", owner.ReferredBy).
				Warn("referrer missing, deposit approved without commission")
			return 0, nil
		}
		return 0, fmt.Errorf("get referrer: %w", err)
	}

	commission := t.Amount * s.cfg.CommissionBps / 10000
	d.Stats = append(d.Stats, storage.StatsDelta{
		UserID:             owner.ReferredBy,
		CommissionDelta:    commission,
		DepositVolumeDelta: t.Amount,
	})
	if commission <= 0 {
		return 0, nil
	}

	d.Balances = append(d.Balances, storage.BalanceDelta{UserID: owner.ReferredBy, Delta: commission})
	d.CommissionToken = &token.UnifiedToken{
		UserID:    owner.ReferredBy,
		Type:      token.TypeReferralCommission,
		Amount:    commission,
		Status:    token.StatusApproved,
		DecidedBy: DecidedBySystem,
		DecidedAt: now,
		Metadata: map[string]string{
			MetaSourceToken: t.ID,
			MetaSourceUser:  t.UserID,
		},
	}
	return commission, nil
}

// attachRaffleEntry extends a raffle_entry approval with the entry row and
// pot accrual for the round named in the token metadata.
func (s *Service) attachRaffleEntry(d *storage.Decision, t token.UnifiedToken) {
	roundID := t.Metadata[MetaRoundID]
	if roundID == "" {
		return
	}
	d.RaffleEntry = &raffle.Entry{
		RoundID: roundID,
		UserID:  t.UserID,
		TokenID: t.ID,
	}
	d.RafflePot = &storage.PotDelta{
		RoundID:    roundID,
		PotDelta:   t.Amount,
		EntryDelta: 1,
	}
}

// Reject settles a pending token without touching any balance.
func (s *Service) Reject(ctx context.Context, tokenID, adminID, reason string) (token.UnifiedToken, error) {
	t, err := s.tokens.GetToken(ctx, tokenID)
	if err != nil {
		return token.UnifiedToken{}, fmt.Errorf("get token: %w", err)
	}

	decided, err := s.tokens.ApplyDecision(ctx, storage.Decision{
		TokenID:      tokenID,
		Status:       token.StatusRejected,
		DecidedBy:    adminID,
		DecidedAt:    time.Now().UTC(),
		RejectReason: reason,
	})
	if err != nil {
		return token.UnifiedToken{}, err
	}

	s.log.WithField("token_id", tokenID).
		WithField("admin_id", adminID).
		WithField("reason", reason).
		Info("token rejected")
	metrics.RecordTokenDecided(string(t.Type), string(token.StatusRejected))
	s.invalidator.Invalidate(ctx, cache.TokensTag(t.UserID))

	return decided, nil
}

// ExpireDue sweeps pending tokens past their expiry and returns the count.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	swept, err := s.tokens.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire due: %w", err)
	}
	if swept > 0 {
		s.log.WithField("count", swept).Info("pending tokens expired")
		metrics.RecordTokensExpired(swept)
	}
	return swept, nil
}
