// Package memory provides an in-memory implementation of the storage
// interfaces. It backs tests and zero-dependency development runs; the
// write lock stands in for the database transaction.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rafflehub/rewards/internal/app/domain/raffle"
	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/app/domain/user"
	"github.com/rafflehub/rewards/internal/app/storage"
)

// Store implements every storage interface with mutex-guarded maps.
type Store struct {
	mu      sync.RWMutex
	users   map[string]user.User
	tokens  map[string]token.UnifiedToken
	legacy  map[string]token.LegacyTransaction
	rounds  map[string]raffle.Round
	entries map[string]raffle.Entry
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.TokenStore = (*Store)(nil)
var _ storage.LegacyStore = (*Store)(nil)
var _ storage.RaffleStore = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:   make(map[string]user.User),
		tokens:  make(map[string]token.UnifiedToken),
		legacy:  make(map[string]token.LegacyTransaction),
		rounds:  make(map[string]raffle.Round),
		entries: make(map[string]raffle.Entry),
	}
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	for _, existing := range s.users {
		if existing.ReferralCode == u.ReferralCode && u.ReferralCode != "" {
			return user.User{}, storage.ErrDuplicateCode
		}
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByReferralCode(ctx context.Context, code string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ReferralCode == code {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListReferred(ctx context.Context, referrerID string, limit int) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []user.User
	for _, u := range s.users {
		if u.ReferredBy == referrerID {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) BindReferrer(ctx context.Context, userID, referrerID string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	referrer, ok := s.users[referrerID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	if u.ReferredBy != "" {
		return user.User{}, storage.ErrAlreadyBound
	}

	now := time.Now().UTC()
	u.ReferredBy = referrerID
	u.UpdatedAt = now
	referrer.Stats.InvitedCount++
	referrer.UpdatedAt = now
	s.users[userID] = u
	s.users[referrerID] = referrer
	return u, nil
}

// --- TokenStore -------------------------------------------------------------

func (s *Store) CreateToken(ctx context.Context, t token.UnifiedToken) (token.UnifiedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTokenLocked(t), nil
}

func (s *Store) insertTokenLocked(t token.UnifiedToken) token.UnifiedToken {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tokens[t.ID] = t
	return t
}

func (s *Store) GetToken(ctx context.Context, id string) (token.UnifiedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[id]
	if !ok {
		return token.UnifiedToken{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTokens(ctx context.Context, filter storage.TokenFilter) ([]token.UnifiedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []token.UnifiedToken
	for _, t := range s.tokens {
		if filter.UserID != "" && t.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ListPendingTokens(ctx context.Context, limit int) ([]token.UnifiedToken, error) {
	return s.ListTokens(ctx, storage.TokenFilter{Status: token.StatusPending, Limit: limit})
}

func (s *Store) ApplyDecision(ctx context.Context, d storage.Decision) (token.UnifiedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[d.TokenID]
	if !ok {
		return token.UnifiedToken{}, storage.ErrNotFound
	}
	if t.Status != token.StatusPending {
		return token.UnifiedToken{}, storage.ErrAlreadyDecided
	}

	// Validate every balance delta before mutating anything.
	for _, delta := range d.Balances {
		u, ok := s.users[delta.UserID]
		if !ok {
			return token.UnifiedToken{}, storage.ErrNotFound
		}
		if u.Balance+delta.Delta < 0 {
			return token.UnifiedToken{}, storage.ErrInsufficientBalance
		}
	}

	now := time.Now().UTC()
	t.Status = d.Status
	t.DecidedBy = d.DecidedBy
	t.DecidedAt = d.DecidedAt
	t.RejectReason = d.RejectReason
	t.UpdatedAt = now
	s.tokens[t.ID] = t

	for _, delta := range d.Balances {
		u := s.users[delta.UserID]
		u.Balance += delta.Delta
		u.UpdatedAt = now
		s.users[delta.UserID] = u
	}
	for _, delta := range d.Stats {
		u, ok := s.users[delta.UserID]
		if !ok {
			continue
		}
		u.Stats.InvitedCount += delta.InvitedDelta
		u.Stats.TotalCommission += delta.CommissionDelta
		u.Stats.TotalDepositVolume += delta.DepositVolumeDelta
		u.UpdatedAt = now
		s.users[delta.UserID] = u
	}
	if d.CommissionToken != nil {
		s.insertTokenLocked(*d.CommissionToken)
	}
	if d.RaffleEntry != nil {
		entry := *d.RaffleEntry
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.CreatedAt = now
		s.entries[entry.ID] = entry
	}
	if d.RafflePot != nil {
		if r, ok := s.rounds[d.RafflePot.RoundID]; ok {
			r.Pot += d.RafflePot.PotDelta
			r.EntryCount += d.RafflePot.EntryDelta
			r.UpdatedAt = now
			s.rounds[r.ID] = r
		}
	}

	return t, nil
}

func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept int64
	for id, t := range s.tokens {
		if t.Status != token.StatusPending || t.ExpiresAt.IsZero() || t.ExpiresAt.After(now) {
			continue
		}
		t.Status = token.StatusExpired
		t.DecidedBy = "system"
		t.DecidedAt = now
		t.UpdatedAt = now
		s.tokens[id] = t
		swept++
	}
	return swept, nil
}

// --- LegacyStore ------------------------------------------------------------

func (s *Store) CreateLegacyTransaction(ctx context.Context, tx token.LegacyTransaction) (token.LegacyTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.legacy[tx.ID] = tx
	return tx, nil
}

func (s *Store) ListUnmigrated(ctx context.Context, userID string) ([]token.LegacyTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []token.LegacyTransaction
	for _, tx := range s.legacy {
		if tx.Migrated {
			continue
		}
		if userID != "" && tx.UserID != userID {
			continue
		}
		result = append(result, tx)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) MigrateLegacy(ctx context.Context, legacyID string, replacement token.UnifiedToken) (token.UnifiedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.legacy[legacyID]
	if !ok {
		return token.UnifiedToken{}, storage.ErrNotFound
	}
	if tx.Migrated {
		return token.UnifiedToken{}, storage.ErrAlreadyMigrated
	}

	created := s.insertTokenLocked(replacement)
	tx.Migrated = true
	s.legacy[legacyID] = tx
	return created, nil
}

// --- RaffleStore ------------------------------------------------------------

func (s *Store) CreateRound(ctx context.Context, r raffle.Round) (raffle.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.rounds[r.ID] = r
	return r, nil
}

func (s *Store) GetRound(ctx context.Context, id string) (raffle.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rounds[id]
	if !ok {
		return raffle.Round{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) GetOpenRound(ctx context.Context) (raffle.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rounds {
		if r.Status == raffle.RoundStatusOpen {
			return r, nil
		}
	}
	return raffle.Round{}, storage.ErrNotFound
}

func (s *Store) UpdateRound(ctx context.Context, r raffle.Round) (raffle.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rounds[r.ID]
	if !ok {
		return raffle.Round{}, storage.ErrNotFound
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	s.rounds[r.ID] = r
	return r, nil
}

func (s *Store) ListRounds(ctx context.Context, limit int) ([]raffle.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]raffle.Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RoundNumber > result[j].RoundNumber })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListEntries(ctx context.Context, roundID string) ([]raffle.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []raffle.Entry
	for _, e := range s.entries {
		if e.RoundID == roundID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ApplyDraw(ctx context.Context, d storage.Draw) (raffle.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rounds[d.Round.ID]
	if !ok {
		return raffle.Round{}, storage.ErrNotFound
	}
	if existing.Status != raffle.RoundStatusOpen {
		return raffle.Round{}, storage.ErrAlreadyDecided
	}
	if d.PrizeToken != nil {
		if _, ok := s.users[d.Balance.UserID]; !ok {
			return raffle.Round{}, storage.ErrNotFound
		}
	}

	now := time.Now().UTC()
	r := d.Round
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = now
	s.rounds[r.ID] = r

	if d.PrizeToken != nil {
		s.insertTokenLocked(*d.PrizeToken)

		winner := s.users[d.Balance.UserID]
		winner.Balance += d.Balance.Delta
		winner.UpdatedAt = now
		s.users[winner.ID] = winner
	}

	return r, nil
}
