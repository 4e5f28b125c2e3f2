package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"roast-battle/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ParticipantService struct {
	DB *gorm.DB
}

func NewParticipantService(db *gorm.DB) *ParticipantService {
	return &ParticipantService{DB: db}
}

// UpsertProfile creates the participant row or refreshes only the fields the caller supplied.
func (s *ParticipantService) UpsertProfile(ctx context.Context, id int64, profile models.ParticipantProfile) error {
	if id <= 0 {
		return fmt.Errorf("%w: participant id must be positive", ErrInvalidInput)
	}
	if profile.IsEmpty() {
		return nil
	}

	row := models.Participant{ID: id}
	var cols []string
	if v := strings.TrimSpace(profile.Username); v != "" {
		row.Username = &v
		cols = append(cols, "username")
	}
	if v := strings.TrimSpace(profile.DisplayName); v != "" {
		row.DisplayName = &v
		cols = append(cols, "display_name")
	}
	if v := strings.TrimSpace(profile.AvatarRef); v != "" {
		row.AvatarRef = &v
		cols = append(cols, "avatar_ref")
	}
	if v := strings.TrimSpace(profile.WalletAddress); v != "" {
		row.WalletAddress = &v
		cols = append(cols, "wallet_address")
	}
	cols = append(cols, "updated_at")

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert participant %d: %w", id, err)
	}
	return nil
}

// GetParticipants loads the given participants keyed by id; unknown ids are simply absent.
func (s *ParticipantService) GetParticipants(ctx context.Context, ids []int64) (map[int64]*models.Participant, error) {
	out := make(map[int64]*models.Participant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Participant
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// upsertProfileBestEffort never fails the caller; profile data is opportunistic.
func (s *ParticipantService) upsertProfileBestEffort(ctx context.Context, id int64, profile *models.ParticipantProfile) {
	if s == nil || profile == nil || profile.IsEmpty() {
		return
	}
	if err := s.UpsertProfile(ctx, id, *profile); err != nil {
		log.Printf("[RESERVE] ⚠️ profile upsert for participant %d failed: %v", id, err)
	}
}
