package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rafflehub/rewards/internal/app/system"
	"github.com/rafflehub/rewards/pkg/logger"
)

// Sweeper expires overdue pending tokens. A short ticker keeps the review
// queue fresh; a daily cron pass catches anything the ticker missed after
// restarts or clock skew.
type Sweeper struct {
	service  *Service
	interval time.Duration
	schedule string
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Sweeper)(nil)

// NewSweeper constructs a sweeper. interval defaults to one minute and
// schedule to a daily 03:00 pass.
func NewSweeper(service *Service, interval time.Duration, schedule string, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	if log == nil {
		log = logger.NewDefault("ledger-sweeper")
	}
	return &Sweeper{service: service, interval: interval, schedule: schedule, log: log}
}

func (s *Sweeper) Name() string { return "ledger-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() { s.sweep(runCtx) }); err != nil {
		cancel()
		s.running = false
		return err
	}
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.sweep(runCtx)
			}
		}
	}()

	s.log.Info("ledger sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	cronRunner := s.cron
	s.running = false
	s.cancel = nil
	s.cron = nil
	s.mu.Unlock()

	if cronRunner != nil {
		<-cronRunner.Stop().Done()
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.service.ExpireDue(ctx); err != nil {
		s.log.WithError(err).Warn("expiry sweep failed")
	}
}
