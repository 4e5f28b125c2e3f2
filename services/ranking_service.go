package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"roast-battle/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RankingService struct {
	DB *gorm.DB
}

func NewRankingService(db *gorm.DB) *RankingService {
	return &RankingService{DB: db}
}

type RankAssignment struct {
	EntryID       string `json:"entry_id"`
	ParticipantID int64  `json:"participant_id"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"`
}

// Rank recomputes dense ranks for every scored entry in the round.
// Frozen rounds are refused.
func (s *RankingService) Rank(ctx context.Context, roundID string) ([]RankAssignment, error) {
	var out []RankAssignment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = rankRound(tx, roundID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[RANK] round %s ranked (%d scored entries)", roundID, len(out))
	return out, nil
}

// rankRound runs inside the caller's transaction. allowFrozen is only set by distribution.
func rankRound(tx *gorm.DB, roundID string, allowFrozen bool) ([]RankAssignment, error) {
	var round models.Round
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "frozen_at").
		First(&round, "id = ?", roundID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRoundNotFound, roundID)
		}
		return nil, fmt.Errorf("lock round %s: %w", roundID, err)
	}
	if round.IsFrozen() && !allowFrozen {
		return nil, fmt.Errorf("%w: %s", ErrRoundFrozen, roundID)
	}

	// Clear first so reassigned ranks never collide on (round_id, rank).
	if err := tx.Model(&models.Entry{}).
		Where("round_id = ? AND rank IS NOT NULL", roundID).
		Update("rank", nil).Error; err != nil {
		return nil, fmt.Errorf("clear ranks: %w", err)
	}

	var scored []models.Entry
	if err := tx.Select("id", "participant_id", "score", "created_at").
		Where("round_id = ? AND score IS NOT NULL", roundID).
		Find(&scored).Error; err != nil {
		return nil, fmt.Errorf("load scored entries: %w", err)
	}
	SortForRanking(scored)

	out := make([]RankAssignment, 0, len(scored))
	for i, e := range scored {
		rank := i + 1
		if err := tx.Model(&models.Entry{}).Where("id = ?", e.ID).Update("rank", rank).Error; err != nil {
			return nil, fmt.Errorf("assign rank %d to %s: %w", rank, e.ID, err)
		}
		out = append(out, RankAssignment{EntryID: e.ID, ParticipantID: e.ParticipantID, Score: *e.Score, Rank: rank})
	}
	return out, nil
}

// SortForRanking orders scored entries by score desc, then earliest submission, then id.
func SortForRanking(entries []models.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if *a.Score != *b.Score {
			return *a.Score > *b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
