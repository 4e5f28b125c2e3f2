package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"roast-battle/models"
)

func newScoringService(t *testing.T, judge Judge) *ScoringService {
	t.Helper()
	db := newTestDB(t)
	svc := NewScoringService(db, judge, NewRankingService(db))
	svc.Now = stepClock()
	return svc
}

func TestScoreEntryWritesCompositeAndRanks(t *testing.T) {
	svc := newScoringService(t, uniformJudge(85, 70, 90, 80))
	round := seedRound(t, svc.DB, models.RoundStatusActive)
	e := seedEntry(t, svc.DB, round.ID, 1, testEpoch, "0xpaid", nil)

	out, err := svc.ScoreEntry(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !out.Scored || out.Score != 81 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	got := reloadEntry(t, svc.DB, e.ID)
	if got.Score == nil || *got.Score != 81 || got.Humor == nil || *got.Humor != 85 || got.ScoredAt == nil {
		t.Fatalf("entry not scored: %+v", got)
	}
	if got.Rank == nil || *got.Rank != 1 {
		t.Fatalf("entry should be ranked after scoring: %v", got.Rank)
	}
	if got.State().Phase() != models.PhaseRanked {
		t.Fatalf("phase = %s", got.State().Phase())
	}

	// Already scored: no second judge call.
	judge := svc.Judge.(*fakeJudge)
	if _, err := svc.ScoreEntry(context.Background(), e.ID); err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if len(judge.requests) != 1 {
		t.Fatalf("judge called %d times", len(judge.requests))
	}
}

func TestScoreEntryDisqualified(t *testing.T) {
	judge := &fakeJudge{judge: func(req JudgeRequest) ([]JudgeVerdict, error) {
		return []JudgeVerdict{{EntryID: req.Entries[0].ID, Humor: 99, Feedback: "disqualified", Disqualified: true}}, nil
	}}
	svc := newScoringService(t, judge)
	round := seedRound(t, svc.DB, models.RoundStatusActive)
	e := seedEntry(t, svc.DB, round.ID, 1, testEpoch, "0xpaid", nil)

	out, err := svc.ScoreEntry(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	got := reloadEntry(t, svc.DB, e.ID)
	if !out.Disqualified || *got.Score != 0 || !got.Disqualified || got.Feedback == nil || *got.Feedback != DisqualifiedFeedback {
		t.Fatalf("disqualification not recorded: out=%+v entry=%+v", out, got)
	}
}

func TestScoreEntryJudgeFailureLeavesEntryUntouched(t *testing.T) {
	for name, judgeErr := range map[string]error{
		"timeout": context.DeadlineExceeded,
		"parse":   ErrScoringParse,
	} {
		t.Run(name, func(t *testing.T) {
			svc := newScoringService(t, &fakeJudge{judge: func(JudgeRequest) ([]JudgeVerdict, error) { return nil, judgeErr }})
			round := seedRound(t, svc.DB, models.RoundStatusActive)
			e := seedEntry(t, svc.DB, round.ID, 1, testEpoch, "0xpaid", nil)

			_, err := svc.ScoreEntry(context.Background(), e.ID)
			if err == nil {
				t.Fatalf("expected error")
			}
			if name == "timeout" && !errors.Is(err, ErrScoringUnavailable) {
				t.Fatalf("expected ErrScoringUnavailable, got %v", err)
			}
			if name == "parse" && !errors.Is(err, ErrScoringParse) {
				t.Fatalf("expected ErrScoringParse, got %v", err)
			}
			if got := reloadEntry(t, svc.DB, e.ID); got.Score != nil || got.Rank != nil {
				t.Fatalf("entry mutated on failure: %+v", got)
			}
		})
	}
}

func TestScoreEntryRejectsUnpaidAndFrozen(t *testing.T) {
	svc := newScoringService(t, uniformJudge(50, 50, 50, 50))
	round := seedRound(t, svc.DB, models.RoundStatusActive)
	unpaid := seedEntry(t, svc.DB, round.ID, 1, testEpoch, "", nil)
	if _, err := svc.ScoreEntry(context.Background(), unpaid.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	paid := seedEntry(t, svc.DB, round.ID, 2, testEpoch, "0xpaid", nil)
	svc.DB.Model(&models.Round{}).Where("id = ?", round.ID).Update("frozen_at", testEpoch)
	if _, err := svc.ScoreEntry(context.Background(), paid.ID); !errors.Is(err, ErrRoundFrozen) {
		t.Fatalf("expected ErrRoundFrozen, got %v", err)
	}
	if _, err := svc.ScoreEntry(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScoreRoundToleratesSubsets(t *testing.T) {
	judge := &fakeJudge{}
	svc := newScoringService(t, judge)
	round := seedRound(t, svc.DB, models.RoundStatusJudging)
	a := seedEntry(t, svc.DB, round.ID, 1, testEpoch, "0xa", nil)
	b := seedEntry(t, svc.DB, round.ID, 2, testEpoch.Add(time.Second), "0xb", nil)
	c := seedEntry(t, svc.DB, round.ID, 3, testEpoch.Add(2*time.Second), "0xc", nil)
	seedEntry(t, svc.DB, round.ID, 4, testEpoch, "", nil) // unpaid, never sent to the judge

	judge.judge = func(req JudgeRequest) ([]JudgeVerdict, error) {
		if len(req.Entries) != 3 {
			t.Errorf("judge got %d entries, want 3", len(req.Entries))
		}
		return []JudgeVerdict{
			{EntryID: a.ID, Humor: 60, Creativity: 60, Relevance: 60, Savagery: 60},
			{EntryID: c.ID, Humor: 90, Creativity: 90, Relevance: 90, Savagery: 90},
			{EntryID: "stranger", Humor: 100, Creativity: 100, Relevance: 100, Savagery: 100},
		}, nil
	}

	out, err := svc.ScoreRound(context.Background(), round.ID)
	if err != nil {
		t.Fatalf("score round: %v", err)
	}
	if out.Requested != 3 || out.Scored != 2 || out.Missing != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if e := reloadEntry(t, svc.DB, b.ID); e.Score != nil {
		t.Fatalf("omitted entry must stay unscored")
	}
	if e := reloadEntry(t, svc.DB, c.ID); *e.Rank != 1 {
		t.Fatalf("c rank = %d", *e.Rank)
	}
	if e := reloadEntry(t, svc.DB, a.ID); *e.Rank != 2 {
		t.Fatalf("a rank = %d", *e.Rank)
	}

	// A later pass only sends the leftover entry.
	judge.judge = func(req JudgeRequest) ([]JudgeVerdict, error) {
		if len(req.Entries) != 1 || req.Entries[0].ID != b.ID {
			t.Errorf("second pass sent %+v", req.Entries)
		}
		return []JudgeVerdict{{EntryID: b.ID, Humor: 70, Creativity: 70, Relevance: 70, Savagery: 70}}, nil
	}
	out, err = svc.ScoreRound(context.Background(), round.ID)
	if err != nil || out.Scored != 1 {
		t.Fatalf("second pass: %+v %v", out, err)
	}

	st, err := svc.JudgingStatus(context.Background(), round.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Total != 3 || st.Judged != 3 || !st.Complete {
		t.Fatalf("status = %+v", st)
	}
}

func TestScoreRoundBatchesAndFailsAtomically(t *testing.T) {
	calls := 0
	judge := &fakeJudge{judge: func(req JudgeRequest) ([]JudgeVerdict, error) {
		calls++
		if calls == 2 {
			return nil, ErrScoringUnavailable
		}
		out := make([]JudgeVerdict, 0, len(req.Entries))
		for _, e := range req.Entries {
			out = append(out, JudgeVerdict{EntryID: e.ID, Humor: 50, Creativity: 50, Relevance: 50, Savagery: 50})
		}
		return out, nil
	}}
	svc := newScoringService(t, judge)
	svc.BatchSize = 2
	round := seedRound(t, svc.DB, models.RoundStatusJudging)
	for i := int64(1); i <= 3; i++ {
		seedEntry(t, svc.DB, round.ID, i, testEpoch.Add(time.Duration(i)*time.Second), fmt.Sprintf("0xpaid%d", i), nil)
	}

	if _, err := svc.ScoreRound(context.Background(), round.ID); !errors.Is(err, ErrScoringUnavailable) {
		t.Fatalf("expected ErrScoringUnavailable, got %v", err)
	}
	var scored int64
	svc.DB.Model(&models.Entry{}).Where("round_id = ? AND score IS NOT NULL", round.ID).Count(&scored)
	if scored != 0 {
		t.Fatalf("no entry should be written when a batch fails, got %d", scored)
	}
}

func TestRoundsAwaitingScores(t *testing.T) {
	svc := newScoringService(t, uniformJudge(1, 1, 1, 1))
	active := seedRound(t, svc.DB, models.RoundStatusActive)
	ended := seedRound(t, svc.DB, models.RoundStatusEnded)
	done := seedRound(t, svc.DB, models.RoundStatusJudging)
	seedEntry(t, svc.DB, active.ID, 1, testEpoch, "0xa", nil)
	seedEntry(t, svc.DB, ended.ID, 1, testEpoch, "0xb", nil)
	seedEntry(t, svc.DB, done.ID, 1, testEpoch, "0xc", intPtr(40))

	ids, err := svc.RoundsAwaitingScores(context.Background())
	if err != nil {
		t.Fatalf("awaiting: %v", err)
	}
	if len(ids) != 1 || ids[0] != active.ID {
		t.Fatalf("ids = %v", ids)
	}

	RescoreSweep(context.Background(), svc)
	var left int64
	svc.DB.Model(&models.Entry{}).Where("round_id = ? AND score IS NULL", active.ID).Count(&left)
	if left != 0 {
		t.Fatalf("sweep left %d unscored entries", left)
	}
}

func TestRoundsAwaitingScoresIgnoresUnpaidAndEnded(t *testing.T) {
	svc := newScoringService(t, uniformJudge(50, 50, 50, 50))
	ctx := context.Background()

	pending := seedRound(t, svc.DB, models.RoundStatusActive)
	seedEntry(t, svc.DB, pending.ID, 1, testEpoch, "0xpaid", nil)
	seedEntry(t, svc.DB, pending.ID, 2, testEpoch, "0xpaid2", nil)

	unpaidOnly := seedRound(t, svc.DB, models.RoundStatusActive)
	seedEntry(t, svc.DB, unpaidOnly.ID, 1, testEpoch, "", nil)

	done := seedRound(t, svc.DB, models.RoundStatusJudging)
	seedEntry(t, svc.DB, done.ID, 1, testEpoch, "0xdone", intPtr(70))

	ended := seedRound(t, svc.DB, models.RoundStatusEnded)
	seedEntry(t, svc.DB, ended.ID, 1, testEpoch, "0xlate", nil)

	ids, err := svc.RoundsAwaitingScores(ctx)
	if err != nil {
		t.Fatalf("awaiting: %v", err)
	}
	if len(ids) != 1 || ids[0] != pending.ID {
		t.Fatalf("rounds awaiting scores = %v, want [%s]", ids, pending.ID)
	}
}
