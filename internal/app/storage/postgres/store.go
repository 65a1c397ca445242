// Package postgres implements the storage interfaces backed by PostgreSQL.
// Composed writes (ApplyDecision, ApplyDraw, BindReferrer, MigrateLegacy)
// run in a single transaction with conditional UPDATEs as guards.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/rafflehub/rewards/internal/app/domain/raffle"
	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/app/domain/user"
	"github.com/rafflehub/rewards/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.TokenStore = (*Store)(nil)
var _ storage.LegacyStore = (*Store)(nil)
var _ storage.RaffleStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func toNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// execer covers *sql.DB and *sql.Tx for the shared query helpers.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	metadataJSON, err := json.Marshal(u.Metadata)
	if err != nil {
		return user.User{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rewards_users (id, balance, referral_code, referred_by, invited_count, total_commission, total_deposit_volume, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Balance, u.ReferralCode, u.ReferredBy, u.Stats.InvitedCount, u.Stats.TotalCommission, u.Stats.TotalDepositVolume, metadataJSON, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, storage.ErrDuplicateCode
		}
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}

	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(u.Metadata)
	if err != nil {
		return user.User{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rewards_users
		SET balance = $2, referral_code = $3, referred_by = $4, invited_count = $5,
		    total_commission = $6, total_deposit_volume = $7, metadata = $8, updated_at = $9
		WHERE id = $1
	`, u.ID, u.Balance, u.ReferralCode, u.ReferredBy, u.Stats.InvitedCount, u.Stats.TotalCommission, u.Stats.TotalDepositVolume, metadataJSON, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

const userColumns = `id, balance, referral_code, referred_by, invited_count, total_commission, total_deposit_volume, metadata, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (user.User, error) {
	var (
		u           user.User
		metadataRaw []byte
	)
	err := row.Scan(&u.ID, &u.Balance, &u.ReferralCode, &u.ReferredBy,
		&u.Stats.InvitedCount, &u.Stats.TotalCommission, &u.Stats.TotalDepositVolume,
		&metadataRaw, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, err
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &u.Metadata)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM rewards_users
		WHERE id = $1
	`, id))
}

func (s *Store) GetUserByReferralCode(ctx context.Context, code string) (user.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM rewards_users
		WHERE referral_code = $1
	`, code))
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]user.User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM rewards_users
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) ListReferred(ctx context.Context, referrerID string, limit int) ([]user.User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM rewards_users
		WHERE referred_by = $1
		ORDER BY created_at
		LIMIT $2
	`, referrerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) BindReferrer(ctx context.Context, userID, referrerID string) (user.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return user.User{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE rewards_users
		SET referred_by = $2, updated_at = $3
		WHERE id = $1 AND referred_by = ''
	`, userID, referrerID, now)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := scanUser(tx.QueryRowContext(ctx, `
			SELECT `+userColumns+` FROM rewards_users WHERE id = $1
		`, userID)); err != nil {
			return user.User{}, err
		}
		return user.User{}, storage.ErrAlreadyBound
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE rewards_users
		SET invited_count = invited_count + 1, updated_at = $2
		WHERE id = $1
	`, referrerID, now)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, storage.ErrNotFound
	}

	u, err := scanUser(tx.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM rewards_users WHERE id = $1
	`, userID))
	if err != nil {
		return user.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return user.User{}, err
	}
	return u, nil
}

// --- TokenStore -------------------------------------------------------------

const tokenColumns = `id, user_id, type, amount, status, metadata, expires_at, decided_by, decided_at, reject_reason, created_at, updated_at`

func insertToken(ctx context.Context, q execer, t token.UnifiedToken) (token.UnifiedToken, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	metadataJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return token.UnifiedToken{}, err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO rewards_tokens (id, user_id, type, amount, status, metadata, expires_at, decided_by, decided_at, reject_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, t.ID, t.UserID, string(t.Type), t.Amount, string(t.Status), metadataJSON,
		toNullTime(t.ExpiresAt), t.DecidedBy, toNullTime(t.DecidedAt), t.RejectReason, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return token.UnifiedToken{}, err
	}
	return t, nil
}

func scanToken(row interface{ Scan(...any) error }) (token.UnifiedToken, error) {
	var (
		t           token.UnifiedToken
		metadataRaw []byte
		expiresAt   sql.NullTime
		decidedAt   sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Status, &metadataRaw,
		&expiresAt, &t.DecidedBy, &decidedAt, &t.RejectReason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return token.UnifiedToken{}, storage.ErrNotFound
		}
		return token.UnifiedToken{}, err
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &t.Metadata)
	}
	if expiresAt.Valid {
		t.ExpiresAt = expiresAt.Time
	}
	if decidedAt.Valid {
		t.DecidedAt = decidedAt.Time
	}
	return t, nil
}

func (s *Store) CreateToken(ctx context.Context, t token.UnifiedToken) (token.UnifiedToken, error) {
	return insertToken(ctx, s.db, t)
}

func (s *Store) GetToken(ctx context.Context, id string) (token.UnifiedToken, error) {
	return scanToken(s.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM rewards_tokens
		WHERE id = $1
	`, id))
}

func (s *Store) ListTokens(ctx context.Context, filter storage.TokenFilter) ([]token.UnifiedToken, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	// Empty filter fields match everything.
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tokenColumns+`
		FROM rewards_tokens
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR type = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`, filter.UserID, string(filter.Type), string(filter.Status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []token.UnifiedToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) ListPendingTokens(ctx context.Context, limit int) ([]token.UnifiedToken, error) {
	return s.ListTokens(ctx, storage.TokenFilter{Status: token.StatusPending, Limit: limit})
}

func (s *Store) ApplyDecision(ctx context.Context, d storage.Decision) (token.UnifiedToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return token.UnifiedToken{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE rewards_tokens
		SET status = $2, decided_by = $3, decided_at = $4, reject_reason = $5, updated_at = $6
		WHERE id = $1 AND status = 'pending'
	`, d.TokenID, string(d.Status), d.DecidedBy, toNullTime(d.DecidedAt), d.RejectReason, now)
	if err != nil {
		return token.UnifiedToken{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := scanToken(tx.QueryRowContext(ctx, `
			SELECT `+tokenColumns+` FROM rewards_tokens WHERE id = $1
		`, d.TokenID)); err != nil {
			return token.UnifiedToken{}, err
		}
		return token.UnifiedToken{}, storage.ErrAlreadyDecided
	}

	for _, delta := range d.Balances {
		result, err := tx.ExecContext(ctx, `
			UPDATE rewards_users
			SET balance = balance + $2, updated_at = $3
			WHERE id = $1 AND balance + $2 >= 0
		`, delta.UserID, delta.Delta, now)
		if err != nil {
			return token.UnifiedToken{}, err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			if _, err := scanUser(tx.QueryRowContext(ctx, `
				SELECT `+userColumns+` FROM rewards_users WHERE id = $1
			`, delta.UserID)); err != nil {
				return token.UnifiedToken{}, err
			}
			return token.UnifiedToken{}, storage.ErrInsufficientBalance
		}
	}

	for _, delta := range d.Stats {
		_, err := tx.ExecContext(ctx, `
			UPDATE rewards_users
			SET invited_count = invited_count + $2,
			    total_commission = total_commission + $3,
			    total_deposit_volume = total_deposit_volume + $4,
			    updated_at = $5
			WHERE id = $1
		`, delta.UserID, delta.InvitedDelta, delta.CommissionDelta, delta.DepositVolumeDelta, now)
		if err != nil {
			return token.UnifiedToken{}, err
		}
	}

	if d.CommissionToken != nil {
		if _, err := insertToken(ctx, tx, *d.CommissionToken); err != nil {
			return token.UnifiedToken{}, err
		}
	}

	if d.RaffleEntry != nil {
		entry := *d.RaffleEntry
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rewards_raffle_entries (id, round_id, user_id, token_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, entry.ID, entry.RoundID, entry.UserID, entry.TokenID, now)
		if err != nil {
			return token.UnifiedToken{}, err
		}
	}

	if d.RafflePot != nil {
		_, err := tx.ExecContext(ctx, `
			UPDATE rewards_raffle_rounds
			SET pot = pot + $2, entry_count = entry_count + $3, updated_at = $4
			WHERE id = $1
		`, d.RafflePot.RoundID, d.RafflePot.PotDelta, d.RafflePot.EntryDelta, now)
		if err != nil {
			return token.UnifiedToken{}, err
		}
	}

	decided, err := scanToken(tx.QueryRowContext(ctx, `
		SELECT `+tokenColumns+` FROM rewards_tokens WHERE id = $1
	`, d.TokenID))
	if err != nil {
		return token.UnifiedToken{}, err
	}
	if err := tx.Commit(); err != nil {
		return token.UnifiedToken{}, err
	}
	return decided, nil
}

func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE rewards_tokens
		SET status = 'expired', decided_by = 'system', decided_at = $1, updated_at = $1
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at <= $1
	`, now.UTC())
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// --- LegacyStore ------------------------------------------------------------

func (s *Store) CreateLegacyTransaction(ctx context.Context, lt token.LegacyTransaction) (token.LegacyTransaction, error) {
	if lt.ID == "" {
		lt.ID = uuid.NewString()
	}
	if lt.CreatedAt.IsZero() {
		lt.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rewards_legacy_transactions (id, user_id, kind, amount, state, migrated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, lt.ID, lt.UserID, lt.Kind, lt.Amount, lt.State, lt.Migrated, lt.CreatedAt)
	if err != nil {
		return token.LegacyTransaction{}, err
	}
	return lt, nil
}

func (s *Store) ListUnmigrated(ctx context.Context, userID string) ([]token.LegacyTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, amount, state, migrated, created_at
		FROM rewards_legacy_transactions
		WHERE migrated = FALSE AND ($1 = '' OR user_id = $1)
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []token.LegacyTransaction
	for rows.Next() {
		var lt token.LegacyTransaction
		if err := rows.Scan(&lt.ID, &lt.UserID, &lt.Kind, &lt.Amount, &lt.State, &lt.Migrated, &lt.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, lt)
	}
	return result, rows.Err()
}

func (s *Store) MigrateLegacy(ctx context.Context, legacyID string, replacement token.UnifiedToken) (token.UnifiedToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return token.UnifiedToken{}, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE rewards_legacy_transactions
		SET migrated = TRUE
		WHERE id = $1 AND migrated = FALSE
	`, legacyID)
	if err != nil {
		return token.UnifiedToken{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM rewards_legacy_transactions WHERE id = $1)
		`, legacyID).Scan(&exists); err != nil {
			return token.UnifiedToken{}, err
		}
		if !exists {
			return token.UnifiedToken{}, storage.ErrNotFound
		}
		return token.UnifiedToken{}, storage.ErrAlreadyMigrated
	}

	created, err := insertToken(ctx, tx, replacement)
	if err != nil {
		return token.UnifiedToken{}, err
	}
	if err := tx.Commit(); err != nil {
		return token.UnifiedToken{}, err
	}
	return created, nil
}

// --- RaffleStore ------------------------------------------------------------

const roundColumns = `id, round_number, status, entry_price, pot, entry_count, winner_id, prize, metadata, drawn_at, created_at, updated_at`

func scanRound(row interface{ Scan(...any) error }) (raffle.Round, error) {
	var (
		r           raffle.Round
		metadataRaw []byte
		drawnAt     sql.NullTime
	)
	err := row.Scan(&r.ID, &r.RoundNumber, &r.Status, &r.EntryPrice, &r.Pot, &r.EntryCount,
		&r.WinnerID, &r.Prize, &metadataRaw, &drawnAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return raffle.Round{}, storage.ErrNotFound
		}
		return raffle.Round{}, err
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &r.Metadata)
	}
	if drawnAt.Valid {
		r.DrawnAt = drawnAt.Time
	}
	return r, nil
}

func (s *Store) CreateRound(ctx context.Context, r raffle.Round) (raffle.Round, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return raffle.Round{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rewards_raffle_rounds (id, round_number, status, entry_price, pot, entry_count, winner_id, prize, metadata, drawn_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.ID, r.RoundNumber, string(r.Status), r.EntryPrice, r.Pot, r.EntryCount,
		r.WinnerID, r.Prize, metadataJSON, toNullTime(r.DrawnAt), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return raffle.Round{}, err
	}
	return r, nil
}

func (s *Store) GetRound(ctx context.Context, id string) (raffle.Round, error) {
	return scanRound(s.db.QueryRowContext(ctx, `
		SELECT `+roundColumns+`
		FROM rewards_raffle_rounds
		WHERE id = $1
	`, id))
}

func (s *Store) GetOpenRound(ctx context.Context) (raffle.Round, error) {
	return scanRound(s.db.QueryRowContext(ctx, `
		SELECT `+roundColumns+`
		FROM rewards_raffle_rounds
		WHERE status = 'open'
		ORDER BY round_number DESC
		LIMIT 1
	`))
}

func (s *Store) UpdateRound(ctx context.Context, r raffle.Round) (raffle.Round, error) {
	existing, err := s.GetRound(ctx, r.ID)
	if err != nil {
		return raffle.Round{}, err
	}

	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return raffle.Round{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rewards_raffle_rounds
		SET status = $2, entry_price = $3, pot = $4, entry_count = $5, winner_id = $6,
		    prize = $7, metadata = $8, drawn_at = $9, updated_at = $10
		WHERE id = $1
	`, r.ID, string(r.Status), r.EntryPrice, r.Pot, r.EntryCount, r.WinnerID,
		r.Prize, metadataJSON, toNullTime(r.DrawnAt), r.UpdatedAt)
	if err != nil {
		return raffle.Round{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return raffle.Round{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListRounds(ctx context.Context, limit int) ([]raffle.Round, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roundColumns+`
		FROM rewards_raffle_rounds
		ORDER BY round_number DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []raffle.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) ListEntries(ctx context.Context, roundID string) ([]raffle.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round_id, user_id, token_id, created_at
		FROM rewards_raffle_entries
		WHERE round_id = $1
		ORDER BY created_at
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []raffle.Entry
	for rows.Next() {
		var e raffle.Entry
		if err := rows.Scan(&e.ID, &e.RoundID, &e.UserID, &e.TokenID, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) ApplyDraw(ctx context.Context, d storage.Draw) (raffle.Round, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return raffle.Round{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	metadataJSON, err := json.Marshal(d.Round.Metadata)
	if err != nil {
		return raffle.Round{}, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE rewards_raffle_rounds
		SET status = $2, winner_id = $3, prize = $4, metadata = $5, drawn_at = $6, updated_at = $7
		WHERE id = $1 AND status = 'open'
	`, d.Round.ID, string(d.Round.Status), d.Round.WinnerID, d.Round.Prize, metadataJSON, toNullTime(d.Round.DrawnAt), now)
	if err != nil {
		return raffle.Round{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := scanRound(tx.QueryRowContext(ctx, `
			SELECT `+roundColumns+` FROM rewards_raffle_rounds WHERE id = $1
		`, d.Round.ID)); err != nil {
			return raffle.Round{}, err
		}
		return raffle.Round{}, storage.ErrAlreadyDecided
	}

	if d.PrizeToken != nil {
		if _, err := insertToken(ctx, tx, *d.PrizeToken); err != nil {
			return raffle.Round{}, err
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE rewards_users
			SET balance = balance + $2, updated_at = $3
			WHERE id = $1
		`, d.Balance.UserID, d.Balance.Delta, now)
		if err != nil {
			return raffle.Round{}, err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return raffle.Round{}, storage.ErrNotFound
		}
	}

	drawn, err := scanRound(tx.QueryRowContext(ctx, `
		SELECT `+roundColumns+` FROM rewards_raffle_rounds WHERE id = $1
	`, d.Round.ID))
	if err != nil {
		return raffle.Round{}, err
	}
	if err := tx.Commit(); err != nil {
		return raffle.Round{}, err
	}
	return drawn, nil
}
