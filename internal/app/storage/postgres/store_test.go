package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	return New(db), mock, func() { db.Close() }
}

func tokenRows(t token.UnifiedToken) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "type", "amount", "status", "metadata",
		"expires_at", "decided_by", "decided_at", "reject_reason", "created_at", "updated_at",
	}).AddRow(t.ID, t.UserID, string(t.Type), t.Amount, string(t.Status), []byte(nil),
		toNullTime(t.ExpiresAt), t.DecidedBy, toNullTime(t.DecidedAt), t.RejectReason, t.CreatedAt, t.UpdatedAt)
}

func TestApplyDecisionCreditsBalance(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now().UTC()
	decided := token.UnifiedToken{
		ID: "tok-1", UserID: "user-1", Type: token.TypeDeposit, Amount: 500,
		Status: token.StatusApproved, DecidedBy: "admin", DecidedAt: now,
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE rewards_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE rewards_users`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM rewards_tokens WHERE id = \$1`).
		WithArgs("tok-1").
		WillReturnRows(tokenRows(decided))
	mock.ExpectCommit()

	got, err := store.ApplyDecision(context.Background(), storage.Decision{
		TokenID:   "tok-1",
		Status:    token.StatusApproved,
		DecidedBy: "admin",
		DecidedAt: now,
		Balances:  []storage.BalanceDelta{{UserID: "user-1", Delta: 500}},
	})
	if err != nil {
		t.Fatalf("apply decision: %v", err)
	}
	if got.Status != token.StatusApproved {
		t.Fatalf("expected approved token, got %s", got.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyDecisionAlreadyDecided(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now().UTC()
	settled := token.UnifiedToken{
		ID: "tok-1", UserID: "user-1", Type: token.TypeDeposit, Amount: 500,
		Status: token.StatusApproved, CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE rewards_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM rewards_tokens WHERE id = \$1`).
		WithArgs("tok-1").
		WillReturnRows(tokenRows(settled))
	mock.ExpectRollback()

	_, err := store.ApplyDecision(context.Background(), storage.Decision{
		TokenID: "tok-1", Status: token.StatusRejected, DecidedBy: "admin", DecidedAt: now,
	})
	if err != storage.ErrAlreadyDecided {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyDecisionInsufficientBalance(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now().UTC()
	userRow := sqlmock.NewRows([]string{
		"id", "balance", "referral_code", "referred_by",
		"invited_count", "total_commission", "total_deposit_volume",
		"metadata", "created_at", "updated_at",
	}).AddRow("user-1", int64(100), "CODE1", "", int64(0), int64(0), int64(0), []byte(nil), now, now)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE rewards_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE rewards_users`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM rewards_users WHERE id = \$1`).
		WithArgs("user-1").
		WillReturnRows(userRow)
	mock.ExpectRollback()

	_, err := store.ApplyDecision(context.Background(), storage.Decision{
		TokenID: "tok-1", Status: token.StatusApproved, DecidedBy: "admin", DecidedAt: now,
		Balances: []storage.BalanceDelta{{UserID: "user-1", Delta: -500}},
	})
	if err != storage.ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestExpireDueReportsSweptCount(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`UPDATE rewards_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	swept, err := store.ExpireDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if swept != 3 {
		t.Fatalf("expected 3 swept, got %d", swept)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMigrateLegacyAlreadyMigrated(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE rewards_legacy_transactions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("legacy-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := store.MigrateLegacy(context.Background(), "legacy-1", token.UnifiedToken{})
	if err != storage.ErrAlreadyMigrated {
		t.Fatalf("expected ErrAlreadyMigrated, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
