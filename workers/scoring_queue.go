package workers

import (
	"context"
	"errors"
	"log"
	"time"

	"roast-battle/services"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
)

// EntryScorer is the part of the scoring service the queue drives.
type EntryScorer interface {
	ScoreEntry(ctx context.Context, entryID string) (services.ScoreOutcome, error)
}

type ScoringQueueConfig struct {
	Workers        int
	Size           int
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c ScoringQueueConfig) normalized() ScoringQueueConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Size <= 0 {
		c.Size = 256
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	return c
}

// ScoringQueue judges freshly confirmed entries off the request path.
// Jobs that do not fit are dropped; the re-score sweep picks them up later.
type ScoringQueue struct {
	scorer EntryScorer
	cfg    ScoringQueueConfig
	jobs   chan string
}

func NewScoringQueue(scorer EntryScorer, cfg ScoringQueueConfig) *ScoringQueue {
	cfg = cfg.normalized()
	return &ScoringQueue{
		scorer: scorer,
		cfg:    cfg,
		jobs:   make(chan string, cfg.Size),
	}
}

// Enqueue never blocks.
func (q *ScoringQueue) Enqueue(entryID string) bool {
	select {
	case q.jobs <- entryID:
		return true
	default:
		log.Printf("[QUEUE] ⚠️ scoring queue full, dropping entry %s until the next sweep", entryID)
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled.
func (q *ScoringQueue) Run(ctx context.Context) error {
	log.Printf("[QUEUE] starting %d scoring worker(s), capacity %d", q.cfg.Workers, q.cfg.Size)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case id := <-q.jobs:
					q.process(gctx, id)
				}
			}
		})
	}
	err := g.Wait()
	log.Println("[QUEUE] scoring workers stopped.")
	return err
}

func (q *ScoringQueue) process(ctx context.Context, entryID string) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.cfg.InitialBackoff
	b.MaxInterval = q.cfg.MaxBackoff

	out, err := backoff.Retry(ctx, func() (services.ScoreOutcome, error) {
		out, err := q.scorer.ScoreEntry(ctx, entryID)
		if err != nil && IsPermanentScoringError(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(q.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Printf("[QUEUE] scoring entry %s failed, retrying in %s: %v", entryID, next.Round(time.Millisecond), err)
		}),
	)
	if err != nil {
		log.Printf("[QUEUE] ❌ giving up on entry %s: %v", entryID, err)
		return
	}
	if out.Scored {
		log.Printf("[QUEUE] ✅ entry %s scored %d", entryID, out.Score)
	}
}

// IsPermanentScoringError reports errors that no retry can fix.
func IsPermanentScoringError(err error) bool {
	return errors.Is(err, services.ErrScoringParse) ||
		errors.Is(err, services.ErrRoundFrozen) ||
		errors.Is(err, services.ErrNotFound) ||
		errors.Is(err, services.ErrRoundNotFound) ||
		errors.Is(err, services.ErrInvalidInput)
}
