// Package raffle runs pot-based raffle rounds. Entries are ordinary ledger
// tokens: buying in mints a pending raffle_entry token, and the pot accrues
// when an admin approves it. The draw settles the round atomically.
package raffle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/rafflehub/rewards/internal/app/domain/raffle"
	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/app/metrics"
	"github.com/rafflehub/rewards/internal/app/services/ledger"
	"github.com/rafflehub/rewards/internal/app/storage"
	"github.com/rafflehub/rewards/internal/cache"
	"github.com/rafflehub/rewards/pkg/logger"
)

var (
	ErrNoOpenRound   = errors.New("no open raffle round")
	ErrRoundNotOpen  = errors.New("round is not open")
	ErrNoEntries     = errors.New("round has no entries")
	ErrOpenRoundBusy = errors.New("an open round already exists")
)

// DefaultEntryPrice is used when opening a round without an explicit price.
const DefaultEntryPrice = 100

// Service provides raffle management.
type Service struct {
	store       storage.RaffleStore
	ledger      *ledger.Service
	invalidator cache.Invalidator
	log         *logger.Logger
	rng         *rand.Rand
}

// New constructs a raffle service.
func New(store storage.RaffleStore, ledgerSvc *ledger.Service, invalidator cache.Invalidator, log *logger.Logger) *Service {
	if invalidator == nil {
		invalidator = cache.NewNoopInvalidator()
	}
	if log == nil {
		log = logger.NewDefault("raffle")
	}
	return &Service{
		store:       store,
		ledger:      ledgerSvc,
		invalidator: invalidator,
		log:         log,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// OpenRound starts a new round. Only one round may be open at a time.
func (s *Service) OpenRound(ctx context.Context, entryPrice, seedPot int64) (raffle.Round, error) {
	if entryPrice <= 0 {
		entryPrice = DefaultEntryPrice
	}
	if _, err := s.store.GetOpenRound(ctx); err == nil {
		return raffle.Round{}, ErrOpenRoundBusy
	} else if !errors.Is(err, storage.ErrNotFound) {
		return raffle.Round{}, fmt.Errorf("get open round: %w", err)
	}

	roundNumber := int64(1)
	if rounds, err := s.store.ListRounds(ctx, 1); err == nil && len(rounds) > 0 {
		roundNumber = rounds[0].RoundNumber + 1
	}

	created, err := s.store.CreateRound(ctx, raffle.Round{
		RoundNumber: roundNumber,
		Status:      raffle.RoundStatusOpen,
		EntryPrice:  entryPrice,
		Pot:         seedPot,
	})
	if err != nil {
		return raffle.Round{}, fmt.Errorf("create round: %w", err)
	}

	s.log.WithField("round_id", created.ID).
		WithField("round_number", created.RoundNumber).
		Info("raffle round opened")
	s.invalidator.Invalidate(ctx, cache.RaffleTag(created.ID))

	return created, nil
}

// Enter mints a pending raffle_entry token for the open round. The entry and
// pot accrue only when the token is approved; the token carries the round id
// so the approval can attribute it.
func (s *Service) Enter(ctx context.Context, userID string) (token.UnifiedToken, error) {
	round, err := s.store.GetOpenRound(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return token.UnifiedToken{}, ErrNoOpenRound
		}
		return token.UnifiedToken{}, fmt.Errorf("get open round: %w", err)
	}

	created, err := s.ledger.Create(ctx, token.UnifiedToken{
		UserID: userID,
		Type:   token.TypeRaffleEntry,
		Amount: round.EntryPrice,
		Metadata: map[string]string{
			ledger.MetaRoundID: round.ID,
		},
	})
	if err != nil {
		return token.UnifiedToken{}, err
	}

	s.log.WithField("round_id", round.ID).
		WithField("user_id", userID).
		WithField("token_id", created.ID).
		Info("raffle entry requested")

	return created, nil
}

// Draw settles the open round: a uniformly random approved entry wins the
// prize share of the pot, the remainder seeds the next round. A second draw
// of the same round returns storage.ErrAlreadyDecided.
func (s *Service) Draw(ctx context.Context, decidedBy string) (raffle.Round, error) {
	round, err := s.store.GetOpenRound(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return raffle.Round{}, ErrNoOpenRound
		}
		return raffle.Round{}, fmt.Errorf("get open round: %w", err)
	}

	entries, err := s.store.ListEntries(ctx, round.ID)
	if err != nil {
		return raffle.Round{}, fmt.Errorf("list entries: %w", err)
	}
	if len(entries) == 0 {
		return raffle.Round{}, ErrNoEntries
	}

	winner := entries[s.rng.Intn(len(entries))]
	prize := round.Pot * raffle.PrizeShareBps / 10000
	now := time.Now().UTC()

	round.Status = raffle.RoundStatusDrawn
	round.WinnerID = winner.UserID
	round.Prize = prize
	round.DrawnAt = now

	draw := storage.Draw{Round: round}
	// A tiny pot can round the prize to zero; the ledger never carries
	// zero-amount tokens, so the round settles without a payout.
	if prize > 0 {
		draw.PrizeToken = &token.UnifiedToken{
			UserID:    winner.UserID,
			Type:      token.TypeBonus,
			Amount:    prize,
			Status:    token.StatusApproved,
			DecidedBy: decidedBy,
			DecidedAt: now,
			Metadata: map[string]string{
				ledger.MetaRoundID: round.ID,
				"prize":            "raffle",
				"round_number":     strconv.FormatInt(round.RoundNumber, 10),
			},
		}
		draw.Balance = storage.BalanceDelta{UserID: winner.UserID, Delta: prize}
	}

	drawn, err := s.store.ApplyDraw(ctx, draw)
	if err != nil {
		return raffle.Round{}, err
	}

	s.log.WithField("round_id", drawn.ID).
		WithField("winner_id", drawn.WinnerID).
		WithField("prize", drawn.Prize).
		WithField("entries", len(entries)).
		Info("raffle round drawn")
	metrics.RecordRaffleDraw()
	s.invalidator.Invalidate(ctx, cache.RaffleTag(drawn.ID), cache.UserTag(winner.UserID))

	// Unpaid remainder carries into the next round's pot.
	if _, err := s.OpenRound(ctx, round.EntryPrice, round.Pot-prize); err != nil {
		s.log.WithError(err).Warn("failed to open follow-up round")
	}

	return drawn, nil
}

// GetRound retrieves a round by id.
func (s *Service) GetRound(ctx context.Context, id string) (raffle.Round, error) {
	return s.store.GetRound(ctx, id)
}

// GetOpenRound retrieves the currently open round.
func (s *Service) GetOpenRound(ctx context.Context) (raffle.Round, error) {
	round, err := s.store.GetOpenRound(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return raffle.Round{}, ErrNoOpenRound
	}
	return round, err
}

// ListRounds lists rounds, newest first.
func (s *Service) ListRounds(ctx context.Context, limit int) ([]raffle.Round, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListRounds(ctx, limit)
}

// ListEntries lists the approved entries of a round.
func (s *Service) ListEntries(ctx context.Context, roundID string) ([]raffle.Entry, error) {
	return s.store.ListEntries(ctx, roundID)
}
