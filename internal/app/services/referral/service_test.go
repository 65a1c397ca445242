package referral

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/app/domain/user"
	"github.com/rafflehub/rewards/internal/app/services/ledger"
	"github.com/rafflehub/rewards/internal/app/storage/memory"
)

func TestOverviewAndListingsAfterDepositApproval(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledgerSvc := ledger.New(store, store, store, ledger.Config{CommissionBps: 1000, PendingTTL: time.Hour}, nil, nil)
	svc := New(store, store, nil)

	_, err := store.CreateUser(ctx, user.User{ID: "ref", ReferralCode: "REFCODE1"})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, user.User{ID: "dep", ReferralCode: "DEPCODE1"})
	require.NoError(t, err)
	_, err = store.BindReferrer(ctx, "dep", "ref")
	require.NoError(t, err)

	deposit, err := ledgerSvc.Create(ctx, token.UnifiedToken{UserID: "dep", Type: token.TypeDeposit, Amount: 2000})
	require.NoError(t, err)
	_, err = ledgerSvc.Approve(ctx, deposit.ID, "admin-1")
	require.NoError(t, err)

	overview, err := svc.Overview(ctx, "ref")
	require.NoError(t, err)
	assert.Equal(t, "REFCODE1", overview.ReferralCode)
	assert.Equal(t, int64(1), overview.InvitedCount)
	assert.Equal(t, int64(200), overview.TotalCommission)
	assert.Equal(t, int64(2000), overview.TotalDepositVolume)

	invited, err := svc.ListInvited(ctx, "ref", 10)
	require.NoError(t, err)
	require.Len(t, invited, 1)
	assert.Equal(t, "dep", invited[0].ID)

	commissions, err := svc.ListCommissions(ctx, "ref", 10)
	require.NoError(t, err)
	require.Len(t, commissions, 1)
	assert.Equal(t, int64(200), commissions[0].Amount)
}
