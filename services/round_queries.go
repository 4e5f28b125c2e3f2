package services

import (
	"context"
	"fmt"

	"roast-battle/models"
)

type RoundResults struct {
	Round   *models.Round        `json:"round"`
	Entries []models.EntryResult `json:"entries"`
	Payouts []models.Payout      `json:"payouts"`
}

// ActiveRound returns the active round that ends soonest, with its paid entry count.
func (s *RoundService) ActiveRound(ctx context.Context) (*models.ActiveRoundSummary, error) {
	var round models.Round
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.RoundStatusActive).
		Order("ends_at ASC").
		First(&round).Error
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: no active round", ErrRoundNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load active round: %w", err)
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Entry{}).
		Where("round_id = ? AND payment_ref IS NOT NULL", round.ID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	return &models.ActiveRoundSummary{
		ID:         round.ID,
		Slug:       round.Slug,
		Theme:      round.Theme,
		StartsAt:   round.StartsAt,
		EndsAt:     round.EndsAt,
		PrizePool:  round.PrizePool,
		EntryFee:   round.EntryFee,
		Status:     round.Status,
		EntryCount: count,
	}, nil
}

// RoundResults lists the paid entries of a round, ranked first, then by score, then by submission time.
func (s *RoundService) RoundResults(ctx context.Context, roundID string) (*RoundResults, error) {
	round, err := loadRound(ctx, s.DB, roundID)
	if err != nil {
		return nil, err
	}

	var entries []models.Entry
	if err := s.DB.WithContext(ctx).
		Where("round_id = ? AND payment_ref IS NOT NULL", roundID).
		Order("rank IS NULL, rank ASC").
		Order("score IS NULL, score DESC").
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ParticipantID)
	}
	var people map[int64]*models.Participant
	if s.Participants != nil {
		people, err = s.Participants.GetParticipants(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	out := &RoundResults{Round: round, Entries: make([]models.EntryResult, 0, len(entries))}
	for i := range entries {
		e := &entries[i]
		p := people[e.ParticipantID]
		res := models.EntryResult{
			ID:            e.ID,
			ParticipantID: e.ParticipantID,
			Text:          e.Text,
			Score:         e.Score,
			Feedback:      e.Feedback,
			Disqualified:  e.Disqualified,
			Rank:          e.Rank,
			Phase:         e.State().Phase(),
			AuthorName:    models.DisplayLabel(e.ParticipantID, p),
			CreatedAt:     e.CreatedAt,
		}
		if p != nil && p.AvatarRef != nil {
			res.AuthorAvatar = *p.AvatarRef
		}
		out.Entries = append(out.Entries, res)
	}

	if err := s.DB.WithContext(ctx).Where("round_id = ?", roundID).Order("rank ASC").Find(&out.Payouts).Error; err != nil {
		return nil, fmt.Errorf("load payouts: %w", err)
	}
	return out, nil
}
