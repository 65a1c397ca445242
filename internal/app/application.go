package app

import (
	"context"
	"fmt"

	ledgersvc "github.com/rafflehub/rewards/internal/app/services/ledger"
	rafflesvc "github.com/rafflehub/rewards/internal/app/services/raffle"
	referralsvc "github.com/rafflehub/rewards/internal/app/services/referral"
	userssvc "github.com/rafflehub/rewards/internal/app/services/users"
	"github.com/rafflehub/rewards/internal/app/storage"
	"github.com/rafflehub/rewards/internal/app/storage/memory"
	"github.com/rafflehub/rewards/internal/app/system"
	"github.com/rafflehub/rewards/internal/cache"
	"github.com/rafflehub/rewards/internal/config"
	"github.com/rafflehub/rewards/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to a
// shared in-memory implementation.
type Stores struct {
	Users   storage.UserStore
	Tokens  storage.TokenStore
	Legacy  storage.LegacyStore
	Raffles storage.RaffleStore
}

// Options tunes the application beyond its stores. A nil Options uses
// defaults throughout.
type Options struct {
	Ledger      config.LedgerConfig
	Invalidator cache.Invalidator
	Logger      *logger.Logger
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Users    *userssvc.Service
	Ledger   *ledgersvc.Service
	Referral *referralsvc.Service
	Raffle   *rafflesvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts *Options) (*Application, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("app")
	}
	invalidator := opts.Invalidator
	if invalidator == nil {
		invalidator = cache.NewNoopInvalidator()
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Tokens == nil {
		stores.Tokens = mem
	}
	if stores.Legacy == nil {
		stores.Legacy = mem
	}
	if stores.Raffles == nil {
		stores.Raffles = mem
	}

	manager := system.NewManager()

	ledgerCfg := ledgersvc.Config{
		CommissionBps: opts.Ledger.CommissionBps,
		PendingTTL:    opts.Ledger.PendingTTL(),
	}
	ledgerService := ledgersvc.New(stores.Tokens, stores.Users, stores.Legacy, ledgerCfg, invalidator, log.WithField("service", "ledger"))
	usersService := userssvc.New(stores.Users, invalidator, log.WithField("service", "users"))
	referralService := referralsvc.New(stores.Users, stores.Tokens, log.WithField("service", "referral"))
	raffleService := rafflesvc.New(stores.Raffles, ledgerService, invalidator, log.WithField("service", "raffle"))

	sweeper := ledgersvc.NewSweeper(ledgerService, opts.Ledger.SweepInterval(), opts.Ledger.SweepCron, log.WithField("service", "sweeper"))
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
	}

	return &Application{
		manager:  manager,
		log:      log,
		Users:    usersService,
		Ledger:   ledgerService,
		Referral: referralService,
		Raffle:   raffleService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
