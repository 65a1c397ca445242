// Package users manages user records: first-touch creation, referral codes
// and the one-time referrer binding.
package users

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rafflehub/rewards/internal/app/domain/user"
	"github.com/rafflehub/rewards/internal/app/storage"
	"github.com/rafflehub/rewards/internal/cache"
	"github.com/rafflehub/rewards/pkg/logger"
)

var (
	ErrSelfReferral = errors.New("cannot use own referral code")
)

const referralCodeLen = 8

// Service provides user management.
type Service struct {
	store       storage.UserStore
	invalidator cache.Invalidator
	log         *logger.Logger
}

// New constructs a users service.
func New(store storage.UserStore, invalidator cache.Invalidator, log *logger.Logger) *Service {
	if invalidator == nil {
		invalidator = cache.NewNoopInvalidator()
	}
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, invalidator: invalidator, log: log}
}

// EnsureUser returns the user with the given id, creating the record with a
// fresh referral code on first sight. The id comes from the authentication
// tier; this service never mints ids itself.
func (s *Service) EnsureUser(ctx context.Context, id string) (user.User, error) {
	if id == "" {
		return user.User{}, errors.New("user id required")
	}

	existing, err := s.store.GetUser(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, fmt.Errorf("get user: %w", err)
	}

	// Retry on code collision; 8 hex chars collide rarely but cheaply.
	for attempt := 0; attempt < 5; attempt++ {
		code, err := generateReferralCode()
		if err != nil {
			return user.User{}, fmt.Errorf("generate referral code: %w", err)
		}
		created, err := s.store.CreateUser(ctx, user.User{ID: id, ReferralCode: code})
		if err == nil {
			s.log.WithField("user_id", id).Info("user created")
			return created, nil
		}
		if !errors.Is(err, storage.ErrDuplicateCode) {
			return user.User{}, fmt.Errorf("create user: %w", err)
		}
	}
	return user.User{}, errors.New("could not allocate referral code")
}

// Get retrieves a user by id.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetUser(ctx, id)
}

// GetByReferralCode retrieves the owner of a referral code.
func (s *Service) GetByReferralCode(ctx context.Context, code string) (user.User, error) {
	return s.store.GetUserByReferralCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// List returns users ordered by creation time.
func (s *Service) List(ctx context.Context, limit int) ([]user.User, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListUsers(ctx, limit)
}

// BindReferrer attaches the owner of code as userID's referrer. The binding
// is permanent: a second call returns storage.ErrAlreadyBound regardless of
// the code presented.
func (s *Service) BindReferrer(ctx context.Context, userID, code string) (user.User, error) {
	referrer, err := s.GetByReferralCode(ctx, code)
	if err != nil {
		return user.User{}, fmt.Errorf("resolve referral code: %w", err)
	}
	if referrer.ID == userID {
		return user.User{}, ErrSelfReferral
	}

	bound, err := s.store.BindReferrer(ctx, userID, referrer.ID)
	if err != nil {
		return user.User{}, err
	}

	s.log.WithField("user_id", userID).
		WithField("referrer_id", referrer.ID).
		Info("referrer bound")
	s.invalidator.Invalidate(ctx, cache.UserTag(userID), cache.UserTag(referrer.ID))

	return bound, nil
}

func generateReferralCode() (string, error) {
	buf := make([]byte, referralCodeLen/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
