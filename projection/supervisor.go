package projection

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerid/core/corelog"
)

// InstanceSource returns the current set of instance ids a Supervisor
// should drive workers for; callers typically back this with a query
// against their instance/org projection.
type InstanceSource func(ctx context.Context) ([]string, error)

// Supervisor schedules ticks for every (Worker, instance) pair on a fixed
// interval, running the pairs for one tick concurrently and bounding
// fan-out with an errgroup, matching §5's "projection workers are parallel
// across (projection_name, instance_id) pairs" concurrency model.
type Supervisor struct {
	Workers      []*Worker
	Instances    InstanceSource
	TickInterval time.Duration
	MaxWorkers   int
	Log          corelog.Logger

	scheduler gocron.Scheduler
}

// NewSupervisor builds a Supervisor over workers, one InstanceSource shared
// across all of them.
func NewSupervisor(workers []*Worker, instances InstanceSource, tickInterval time.Duration, maxWorkers int, log corelog.Logger) *Supervisor {
	if log == nil {
		log = corelog.Discard{}
	}
	return &Supervisor{Workers: workers, Instances: instances, TickInterval: tickInterval, MaxWorkers: maxWorkers, Log: log}
}

// Start schedules a recurring tick via gocron and blocks until ctx is
// cancelled, then stops the scheduler cleanly.
func (s *Supervisor) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.scheduler = sched

	_, err = sched.NewJob(
		gocron.DurationJob(s.TickInterval),
		gocron.NewTask(func() {
			if err := s.tickAll(ctx); err != nil {
				s.Log.Error("projection supervisor tick failed", err)
			}
		}),
	)
	if err != nil {
		return err
	}
	sched.Start()

	<-ctx.Done()
	return sched.Shutdown()
}

// tickAll runs one tick for every (worker, instance) pair, bounding
// concurrency to MaxWorkers via errgroup.SetLimit.
func (s *Supervisor) tickAll(ctx context.Context) error {
	instances, err := s.Instances(ctx)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	if s.MaxWorkers > 0 {
		g.SetLimit(s.MaxWorkers)
	}
	for _, worker := range s.Workers {
		worker := worker
		for _, instanceID := range instances {
			instanceID := instanceID
			g.Go(func() error {
				if err := worker.Tick(gctx, instanceID); err != nil {
					s.Log.Error("projection tick failed", err,
						"projection", worker.Def.Name(), "instance_id", instanceID)
				}
				return nil
			})
		}
	}
	return g.Wait()
}
