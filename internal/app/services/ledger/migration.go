package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/app/storage"
)

// legacyKinds maps the free-form kind strings of the deprecated transaction
// collection onto ledger types. Unknown kinds migrate as bonus so no legacy
// value is silently dropped.
var legacyKinds = map[string]token.Type{
	"deposit":    token.TypeDeposit,
	"recharge":   token.TypeDeposit,
	"withdraw":   token.TypeWithdrawal,
	"withdrawal": token.TypeWithdrawal,
	"bonus":      token.TypeBonus,
	"reward":     token.TypeBonus,
	"commission": token.TypeReferralCommission,
	"referral":   token.TypeReferralCommission,
	"cashback":   token.TypeCashback,
	"rebate":     token.TypeCashback,
}

func mapLegacyKind(kind string) token.Type {
	if t, ok := legacyKinds[kind]; ok {
		return t
	}
	return token.TypeBonus
}

// MigrationResult reports one migration pass.
type MigrationResult struct {
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
}

// MigrateLegacy converts a user's unmigrated legacy transactions into
// unified tokens. Completed transactions become approved tokens without
// re-applying any balance: the legacy system already settled them, the
// migration only preserves history. Pending transactions re-enter the
// review queue as pending tokens. Safe to call repeatedly.
func (s *Service) MigrateLegacy(ctx context.Context, userID string) (MigrationResult, error) {
	pending, err := s.legacy.ListUnmigrated(ctx, userID)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("list unmigrated: %w", err)
	}

	var result MigrationResult
	now := time.Now().UTC()
	for _, lt := range pending {
		replacement := token.UnifiedToken{
			UserID: lt.UserID,
			Type:   mapLegacyKind(lt.Kind),
			Amount: lt.Amount,
			Metadata: map[string]string{
				MetaLegacyID:   lt.ID,
				MetaLegacyKind: lt.Kind,
			},
		}
		if lt.State == "completed" {
			replacement.Status = token.StatusApproved
			replacement.DecidedBy = DecidedBySystem
			replacement.DecidedAt = now
		} else {
			replacement.Status = token.StatusPending
			replacement.ExpiresAt = now.Add(s.cfg.PendingTTL)
		}

		if _, err := s.legacy.MigrateLegacy(ctx, lt.ID, replacement); err != nil {
			if errors.Is(err, storage.ErrAlreadyMigrated) {
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("migrate legacy %s: %w", lt.ID, err)
		}
		result.Migrated++
	}

	if result.Migrated > 0 {
		s.log.WithField("user_id", userID).
			WithField("migrated", result.Migrated).
			Info("legacy transactions migrated")
	}
	return result, nil
}
