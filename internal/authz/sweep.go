package authz

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/overture-stack/ego-sub000/internal/obs"
)

// Sweeper runs a periodic safety-net reconciliation over every owner holding
// active tokens, catching anything a missed or failed event left behind.
type Sweeper struct {
	store      Store
	reconciler *Reconciler
	log        *logrus.Logger
	cron       *cron.Cron
}

func NewSweeper(store Store, reconciler *Reconciler, log *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		reconciler: reconciler,
		log:        log,
		cron:       cron.New(),
	}
}

// Start schedules the sweep with the given cron spec (e.g. "@every 1h") and
// begins running it in the background.
func (s *Sweeper) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep reconciles every owner with active tokens. Per-owner failures are
// logged and counted; the pass continues to the remaining owners.
func (s *Sweeper) Sweep(ctx context.Context) {
	owners, err := s.store.Tokens().Owners(ctx)
	if err != nil {
		s.log.WithError(err).Error("sweep: list token owners")
		obs.ReconciliationFailed()
		return
	}
	for _, owner := range owners {
		if err := s.reconciler.Reconcile(ctx, owner); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"owner_kind": owner.Kind,
				"owner_id":   owner.ID,
			}).Error("sweep: reconciliation failed")
			obs.ReconciliationFailed()
		}
	}
	s.log.WithField("owners", len(owners)).Debug("sweep: pass complete")
}
