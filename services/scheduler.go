// services/scheduler.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartLifecycleScheduler runs the minute jobs that move rounds through their
// lifecycle and re-judge entries the scoring queue dropped or gave up on.
func (s *RoundService) StartLifecycleScheduler(ctx context.Context, scoring *ScoringService) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Every minute: open rounds whose start time has come
	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			n, err := s.ActivateDueRounds(ctx)
			if err != nil {
				log.Printf("[Scheduler] activate rounds: %v", err)
				return
			}
			if n > 0 {
				log.Printf("✅ Activated %d round(s)", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	// Every minute: stop submissions on expired rounds
	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			n, err := s.CloseExpiredRounds(ctx)
			if err != nil {
				log.Printf("[Scheduler] close expired rounds: %v", err)
				return
			}
			if n > 0 {
				log.Printf("✅ Moved %d round(s) to judging", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	if scoring != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(1*time.Minute),
			gocron.NewTask(func() { RescoreSweep(ctx, scoring) }),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}

// RescoreSweep runs a batch pass over every round that still has unscored paid entries.
func RescoreSweep(ctx context.Context, scoring *ScoringService) {
	ids, err := scoring.RoundsAwaitingScores(ctx)
	if err != nil {
		log.Printf("[Scheduler] find unscored rounds: %v", err)
		return
	}
	for _, id := range ids {
		out, err := scoring.ScoreRound(ctx, id)
		if err != nil {
			if errors.Is(err, ErrScoringUnavailable) {
				log.Printf("[Scheduler] judge unavailable, sweep stops until next tick: %v", err)
				return
			}
			log.Printf("[Scheduler] re-score round %s: %v", id, err)
			continue
		}
		if out.Scored > 0 {
			log.Printf("✅ Re-scored %d entries in round %s", out.Scored, id)
		}
	}
}
