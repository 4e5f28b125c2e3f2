package services

import (
	"context"
	"fmt"

	"roast-battle/models"

	"github.com/shopspring/decimal"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 200
)

// Leaderboard ranks participants by round wins, then by total earnings from payouts that have not failed.
func (s *RoundService) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardRow, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	var rows []struct {
		ParticipantID int64
		Wins          int64
		TotalEarnings decimal.Decimal
	}
	err := s.DB.WithContext(ctx).Model(&models.Payout{}).
		Select("participant_id, SUM(CASE WHEN rank = 1 THEN 1 ELSE 0 END) AS wins, SUM(amount) AS total_earnings").
		Where("status <> ?", models.PayoutStatusFailed).
		Group("participant_id").
		Order("wins DESC").
		Order("total_earnings DESC").
		Order("participant_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate leaderboard: %w", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ParticipantID)
	}
	var people map[int64]*models.Participant
	if s.Participants != nil {
		if people, err = s.Participants.GetParticipants(ctx, ids); err != nil {
			return nil, err
		}
	}

	out := make([]models.LeaderboardRow, 0, len(rows))
	for _, r := range rows {
		p := people[r.ParticipantID]
		row := models.LeaderboardRow{
			ParticipantID: r.ParticipantID,
			Name:          models.DisplayLabel(r.ParticipantID, p),
			Wins:          r.Wins,
			TotalEarnings: r.TotalEarnings,
		}
		if p != nil && p.AvatarRef != nil {
			row.Avatar = *p.AvatarRef
		}
		out = append(out, row)
	}
	return out, nil
}
