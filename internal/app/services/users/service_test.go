package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflehub/rewards/internal/app/storage"
	"github.com/rafflehub/rewards/internal/app/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, nil, nil), store
}

func TestEnsureUserCreatesOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.EnsureUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", created.ID)
	assert.Len(t, created.ReferralCode, referralCodeLen)
	assert.Equal(t, int64(0), created.Balance)

	again, err := svc.EnsureUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, created.ReferralCode, again.ReferralCode)
	assert.Equal(t, created.CreatedAt, again.CreatedAt)
}

func TestEnsureUserRequiresID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.EnsureUser(context.Background(), "")
	assert.Error(t, err)
}

func TestBindReferrer(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	referrer, err := svc.EnsureUser(ctx, "ref")
	require.NoError(t, err)
	_, err = svc.EnsureUser(ctx, "invitee")
	require.NoError(t, err)

	bound, err := svc.BindReferrer(ctx, "invitee", referrer.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, "ref", bound.ReferredBy)

	updated, err := store.GetUser(ctx, "ref")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Stats.InvitedCount)
}

func TestBindReferrerRejectsSelf(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.EnsureUser(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.BindReferrer(ctx, "u1", u.ReferralCode)
	assert.ErrorIs(t, err, ErrSelfReferral)
}

func TestBindReferrerIsPermanent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.EnsureUser(ctx, "ref1")
	require.NoError(t, err)
	second, err := svc.EnsureUser(ctx, "ref2")
	require.NoError(t, err)
	_, err = svc.EnsureUser(ctx, "invitee")
	require.NoError(t, err)

	_, err = svc.BindReferrer(ctx, "invitee", first.ReferralCode)
	require.NoError(t, err)

	_, err = svc.BindReferrer(ctx, "invitee", second.ReferralCode)
	assert.ErrorIs(t, err, storage.ErrAlreadyBound)
}

func TestBindReferrerUnknownCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnsureUser(ctx, "invitee")
	require.NoError(t, err)

	_, err = svc.BindReferrer(ctx, "invitee", "NOPE0000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
