// Package referral exposes read views over the referral program. Commission
// is paid by the ledger at deposit approval; this service only reports.
package referral

import (
	"context"
	"fmt"

	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/app/domain/user"
	"github.com/rafflehub/rewards/internal/app/storage"
	"github.com/rafflehub/rewards/pkg/logger"
)

// Overview is a user's referral summary.
type Overview struct {
	ReferralCode       string `json:"referral_code"`
	ReferredBy         string `json:"referred_by,omitempty"`
	InvitedCount       int64  `json:"invited_count"`
	TotalCommission    int64  `json:"total_commission"`
	TotalDepositVolume int64  `json:"total_deposit_volume"`
}

// Service provides referral queries.
type Service struct {
	users  storage.UserStore
	tokens storage.TokenStore
	log    *logger.Logger
}

// New constructs a referral service.
func New(users storage.UserStore, tokens storage.TokenStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("referral")
	}
	return &Service{users: users, tokens: tokens, log: log}
}

// Overview returns the referral summary for a user. The numbers come off the
// denormalized user record, which the ledger keeps in step with decisions.
func (s *Service) Overview(ctx context.Context, userID string) (Overview, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return Overview{}, fmt.Errorf("get user: %w", err)
	}
	return Overview{
		ReferralCode:       u.ReferralCode,
		ReferredBy:         u.ReferredBy,
		InvitedCount:       u.Stats.InvitedCount,
		TotalCommission:    u.Stats.TotalCommission,
		TotalDepositVolume: u.Stats.TotalDepositVolume,
	}, nil
}

// ListInvited returns the users a referrer has brought in.
func (s *Service) ListInvited(ctx context.Context, referrerID string, limit int) ([]user.User, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.users.ListReferred(ctx, referrerID, limit)
}

// ListCommissions returns a referrer's commission history, newest first.
func (s *Service) ListCommissions(ctx context.Context, referrerID string, limit int) ([]token.UnifiedToken, error) {
	return s.tokens.ListTokens(ctx, storage.TokenFilter{
		UserID: referrerID,
		Type:   token.TypeReferralCommission,
		Limit:  limit,
	})
}
