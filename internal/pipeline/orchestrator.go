package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/valeria-popova/guildmgr/internal/profile"
)

// Orchestrator schedules pipeline runs across accounts under a fixed
// concurrency limit with a randomized stagger between launches.
type Orchestrator struct {
	Concurrency int

	// StaggerMin/StaggerMax bound the launch delay between accounts.
	StaggerMin time.Duration
	StaggerMax time.Duration

	Pipeline *Pipeline
	Log      *logrus.Logger
}

func (o *Orchestrator) concurrency() int {
	if o.Concurrency <= 0 {
		return 3
	}
	return o.Concurrency
}

// Run drives every account through the pipeline and returns once all
// of them have joined, so the shared aggregates are quiescent for the
// final report. Per-account failures never abort siblings.
func (o *Orchestrator) Run(ctx context.Context, accounts []profile.Account, mode Mode) {
	o.Log.Infof("Starting guild %s mode...", mode)

	var g errgroup.Group
	g.SetLimit(o.concurrency())

	for i, acct := range accounts {
		g.Go(func() error {
			o.Pipeline.Run(ctx, acct, mode)
			return nil
		})

		if i < len(accounts)-1 {
			delay := o.stagger()
			if delay > 0 {
				o.Log.Infof("Waiting %s before next account...", delay.Round(time.Millisecond))
			}
			select {
			case <-ctx.Done():
				o.Log.Warn("Run canceled; waiting for in-flight accounts")
				_ = g.Wait()
				return
			case <-time.After(delay):
			}
		}
	}

	_ = g.Wait()
}

func (o *Orchestrator) stagger() time.Duration {
	if o.StaggerMax <= 0 {
		return 0
	}
	if o.StaggerMax <= o.StaggerMin {
		return o.StaggerMin
	}
	return o.StaggerMin + rand.N(o.StaggerMax-o.StaggerMin)
}
