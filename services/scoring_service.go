package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"roast-battle/models"

	"gorm.io/gorm"
)

// DisqualifiedFeedback replaces the judge's text on disqualified entries.
const DisqualifiedFeedback = "Disqualified: this entry breaks the content rules."

const defaultJudgeBatchSize = 25

type ScoringService struct {
	DB        *gorm.DB
	Judge     Judge
	Ranker    *RankingService
	BatchSize int
	Now       func() time.Time
}

func NewScoringService(db *gorm.DB, judge Judge, ranker *RankingService) *ScoringService {
	return &ScoringService{DB: db, Judge: judge, Ranker: ranker, BatchSize: defaultJudgeBatchSize, Now: time.Now}
}

type ScoreOutcome struct {
	EntryID      string `json:"entry_id"`
	Scored       bool   `json:"scored"`
	Score        int    `json:"score"`
	Feedback     string `json:"feedback,omitempty"`
	Disqualified bool   `json:"disqualified"`
}

type BatchOutcome struct {
	RoundID   string         `json:"round_id"`
	Requested int            `json:"requested"`
	Scored    int            `json:"scored"`
	Missing   int            `json:"missing"`
	Results   []ScoreOutcome `json:"results"`
}

type JudgingStatus struct {
	RoundID  string `json:"round_id"`
	Total    int64  `json:"total"`
	Judged   int64  `json:"judged"`
	Complete bool   `json:"complete"`
}

// ScoreEntry judges a single confirmed entry. An entry that already has a
// score is returned as-is; one the judge omitted comes back with Scored=false.
func (s *ScoringService) ScoreEntry(ctx context.Context, entryID string) (ScoreOutcome, error) {
	var entry models.Entry
	if err := s.DB.WithContext(ctx).First(&entry, "id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ScoreOutcome{}, fmt.Errorf("%w: entry %s", ErrNotFound, entryID)
		}
		return ScoreOutcome{}, fmt.Errorf("load entry %s: %w", entryID, err)
	}
	if !entry.IsConfirmed() {
		return ScoreOutcome{}, fmt.Errorf("%w: entry %s has no payment", ErrInvalidInput, entryID)
	}
	if entry.Score != nil {
		out := ScoreOutcome{EntryID: entry.ID, Scored: true, Score: *entry.Score, Disqualified: entry.Disqualified}
		if entry.Feedback != nil {
			out.Feedback = *entry.Feedback
		}
		return out, nil
	}

	round, err := loadRound(ctx, s.DB, entry.RoundID)
	if err != nil {
		return ScoreOutcome{}, err
	}
	if round.IsFrozen() {
		return ScoreOutcome{}, fmt.Errorf("%w: %s", ErrRoundFrozen, round.ID)
	}

	verdicts, err := s.judge(ctx, round.Theme, []models.Entry{entry})
	if err != nil {
		return ScoreOutcome{}, err
	}
	v, ok := verdicts[entry.ID]
	if !ok {
		log.Printf("[SCORING] judge returned no verdict for entry %s", entry.ID)
		return ScoreOutcome{EntryID: entry.ID}, nil
	}

	out, err := s.apply(ctx, v)
	if err != nil {
		return ScoreOutcome{}, err
	}
	s.rerank(ctx, round.ID)
	return out, nil
}

// ScoreRound judges every confirmed, unscored entry of the round. All judge
// calls complete before anything is written, so a failure leaves the round untouched.
func (s *ScoringService) ScoreRound(ctx context.Context, roundID string) (BatchOutcome, error) {
	round, err := loadRound(ctx, s.DB, roundID)
	if err != nil {
		return BatchOutcome{}, err
	}
	if round.IsFrozen() {
		return BatchOutcome{}, fmt.Errorf("%w: %s", ErrRoundFrozen, roundID)
	}

	var pending []models.Entry
	if err := s.DB.WithContext(ctx).
		Where("round_id = ? AND payment_ref IS NOT NULL AND score IS NULL", roundID).
		Order("created_at ASC").Order("id ASC").
		Find(&pending).Error; err != nil {
		return BatchOutcome{}, fmt.Errorf("load unscored entries: %w", err)
	}
	outcome := BatchOutcome{RoundID: roundID, Requested: len(pending), Results: []ScoreOutcome{}}
	if len(pending) == 0 {
		return outcome, nil
	}

	size := s.BatchSize
	if size <= 0 {
		size = defaultJudgeBatchSize
	}
	verdicts := make(map[string]JudgeVerdict, len(pending))
	for start := 0; start < len(pending); start += size {
		end := start + size
		if end > len(pending) {
			end = len(pending)
		}
		got, err := s.judge(ctx, round.Theme, pending[start:end])
		if err != nil {
			return BatchOutcome{}, err
		}
		for id, v := range got {
			verdicts[id] = v
		}
	}

	for _, e := range pending {
		v, ok := verdicts[e.ID]
		if !ok {
			outcome.Missing++
			continue
		}
		res, err := s.apply(ctx, v)
		if err != nil {
			if errors.Is(err, ErrRoundFrozen) {
				return outcome, err
			}
			log.Printf("[SCORING] ⚠️ failed to store score for entry %s: %v", e.ID, err)
			outcome.Missing++
			continue
		}
		outcome.Scored++
		outcome.Results = append(outcome.Results, res)
	}

	if outcome.Scored > 0 {
		s.rerank(ctx, roundID)
	}
	log.Printf("[SCORING] ✅ round %s: %d/%d entries scored, %d left for a later pass",
		roundID, outcome.Scored, outcome.Requested, outcome.Missing)
	return outcome, nil
}

// JudgingStatus reports how many confirmed entries of the round have a score.
func (s *ScoringService) JudgingStatus(ctx context.Context, roundID string) (JudgingStatus, error) {
	if _, err := loadRound(ctx, s.DB, roundID); err != nil {
		return JudgingStatus{}, err
	}
	st := JudgingStatus{RoundID: roundID}
	if err := s.DB.WithContext(ctx).Model(&models.Entry{}).
		Where("round_id = ? AND payment_ref IS NOT NULL", roundID).
		Count(&st.Total).Error; err != nil {
		return JudgingStatus{}, fmt.Errorf("count entries: %w", err)
	}
	if err := s.DB.WithContext(ctx).Model(&models.Entry{}).
		Where("round_id = ? AND score IS NOT NULL", roundID).
		Count(&st.Judged).Error; err != nil {
		return JudgingStatus{}, fmt.Errorf("count judged entries: %w", err)
	}
	st.Complete = st.Total > 0 && st.Judged == st.Total
	return st, nil
}

// RoundsAwaitingScores lists unfrozen active or judging rounds with confirmed, unscored entries.
func (s *ScoringService) RoundsAwaitingScores(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Model(&models.Entry{}).
		Distinct("entries.round_id").
		Joins("JOIN rounds ON rounds.id = entries.round_id").
		Where("entries.payment_ref IS NOT NULL AND entries.score IS NULL").
		Where("rounds.frozen_at IS NULL AND rounds.status IN ?",
			[]models.RoundStatus{models.RoundStatusActive, models.RoundStatusJudging}).
		Pluck("entries.round_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("find rounds awaiting scores: %w", err)
	}
	return ids, nil
}

func (s *ScoringService) judge(ctx context.Context, theme string, entries []models.Entry) (map[string]JudgeVerdict, error) {
	if s.Judge == nil {
		return nil, fmt.Errorf("%w: no judge configured", ErrScoringUnavailable)
	}
	req := JudgeRequest{Theme: theme, Entries: make([]JudgeEntry, 0, len(entries))}
	wanted := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		req.Entries = append(req.Entries, JudgeEntry{ID: e.ID, Text: e.Text})
		wanted[e.ID] = struct{}{}
	}

	verdicts, err := s.Judge.Judge(ctx, req)
	if err != nil {
		err = classifyJudgeError(err)
		log.Printf("[SCORING] ❌ judge call for %d entries failed: %v", len(entries), err)
		return nil, err
	}

	out := make(map[string]JudgeVerdict, len(verdicts))
	for _, v := range verdicts {
		if _, ok := wanted[v.EntryID]; !ok {
			log.Printf("[SCORING] ignoring verdict for unknown entry %q", v.EntryID)
			continue
		}
		out[v.EntryID] = v
	}
	return out, nil
}

// apply writes one verdict. The update only lands on a paid, unscored entry of an unfrozen round.
func (s *ScoringService) apply(ctx context.Context, v JudgeVerdict) (ScoreOutcome, error) {
	out := ScoreOutcome{EntryID: v.EntryID, Scored: true}
	updates := map[string]interface{}{
		"scored_at": s.now(),
	}
	if v.Disqualified {
		out.Score = 0
		out.Feedback = DisqualifiedFeedback
		out.Disqualified = true
		updates["score"] = 0
		updates["humor"] = 0
		updates["creativity"] = 0
		updates["relevance"] = 0
		updates["savagery"] = 0
		updates["feedback"] = DisqualifiedFeedback
		updates["disqualified"] = true
	} else {
		out.Score = v.Composite()
		out.Feedback = v.Feedback
		updates["score"] = out.Score
		updates["humor"] = SubScore(v.Humor)
		updates["creativity"] = SubScore(v.Creativity)
		updates["relevance"] = SubScore(v.Relevance)
		updates["savagery"] = SubScore(v.Savagery)
		updates["feedback"] = v.Feedback
		updates["disqualified"] = false
	}

	unfrozen := s.DB.Model(&models.Round{}).Select("id").Where("frozen_at IS NULL")
	res := s.DB.WithContext(ctx).Model(&models.Entry{}).
		Where("id = ? AND payment_ref IS NOT NULL AND score IS NULL", v.EntryID).
		Where("round_id IN (?)", unfrozen).
		Updates(updates)
	if res.Error != nil {
		return ScoreOutcome{}, fmt.Errorf("store score for %s: %w", v.EntryID, res.Error)
	}
	if res.RowsAffected == 0 {
		var entry models.Entry
		if err := s.DB.WithContext(ctx).Select("id", "round_id", "score").First(&entry, "id = ?", v.EntryID).Error; err != nil {
			return ScoreOutcome{}, fmt.Errorf("reload entry %s: %w", v.EntryID, err)
		}
		if entry.Score != nil {
			// Scored concurrently by the queue or a batch pass; first write wins.
			return ScoreOutcome{EntryID: entry.ID, Scored: true, Score: *entry.Score}, nil
		}
		return ScoreOutcome{}, fmt.Errorf("%w: round %s", ErrRoundFrozen, entry.RoundID)
	}
	log.Printf("[SCORING] entry %s scored %d (disqualified=%t)", v.EntryID, out.Score, out.Disqualified)
	return out, nil
}

func (s *ScoringService) rerank(ctx context.Context, roundID string) {
	if s.Ranker == nil {
		return
	}
	if _, err := s.Ranker.Rank(ctx, roundID); err != nil {
		log.Printf("[SCORING] ⚠️ re-rank of round %s failed: %v", roundID, err)
	}
}

func (s *ScoringService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
