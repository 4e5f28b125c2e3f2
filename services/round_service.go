package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"roast-battle/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxThemeSlugLength = 48

// RoundOpener registers a round on the payment network before it can take entry fees.
type RoundOpener interface {
	OpenRound(ctx context.Context, roundID string, entryFee decimal.Decimal) (string, error)
}

type RoundService struct {
	DB               *gorm.DB
	Payments         RoundOpener
	Participants     *ParticipantService
	EntryFee         decimal.Decimal
	PoolSharePercent decimal.Decimal
	Now              func() time.Time
}

func NewRoundService(db *gorm.DB, payments RoundOpener, participants *ParticipantService, entryFee, poolSharePercent decimal.Decimal) *RoundService {
	return &RoundService{
		DB:               db,
		Payments:         payments,
		Participants:     participants,
		EntryFee:         entryFee,
		PoolSharePercent: poolSharePercent,
		Now:              time.Now,
	}
}

type CreateRoundRequest struct {
	Theme    string           `json:"theme"`
	StartsAt time.Time        `json:"starts_at"`
	EndsAt   time.Time        `json:"ends_at"`
	EntryFee *decimal.Decimal `json:"entry_fee,omitempty"`
}

// PoolShareFor is the amount credited to the prize pool for each confirmed entry.
func PoolShareFor(entryFee, percent decimal.Decimal) decimal.Decimal {
	return entryFee.Mul(percent).Div(decimal.NewFromInt(100)).Truncate(8)
}

// CreateRound opens the round on the payment network and only then inserts the row.
func (s *RoundService) CreateRound(ctx context.Context, req CreateRoundRequest) (*models.Round, error) {
	theme := strings.TrimSpace(req.Theme)
	if theme == "" {
		return nil, fmt.Errorf("%w: theme is required", ErrInvalidInput)
	}
	now := s.now()
	startsAt := req.StartsAt
	if startsAt.IsZero() {
		startsAt = now
	}
	if req.EndsAt.IsZero() || !req.EndsAt.After(startsAt) {
		return nil, fmt.Errorf("%w: ends_at must be after starts_at", ErrInvalidInput)
	}
	if !req.EndsAt.After(now) {
		return nil, fmt.Errorf("%w: ends_at is in the past", ErrInvalidInput)
	}
	fee := s.EntryFee
	if req.EntryFee != nil {
		fee = *req.EntryFee
	}
	if !fee.IsPositive() {
		return nil, fmt.Errorf("%w: entry fee must be positive", ErrInvalidInput)
	}

	id := uuid.NewString()
	round := &models.Round{
		ID:        id,
		Slug:      roundSlug(theme, id),
		Theme:     theme,
		StartsAt:  startsAt.UTC(),
		EndsAt:    req.EndsAt.UTC(),
		Status:    models.RoundStatusUpcoming,
		EntryFee:  fee,
		PoolShare: PoolShareFor(fee, s.PoolSharePercent),
		PrizePool: decimal.Zero,
	}
	if !startsAt.After(now) {
		round.Status = models.RoundStatusActive
	}

	if s.Payments != nil {
		ref, err := s.Payments.OpenRound(ctx, id, fee)
		if err != nil {
			log.Printf("[ROUND] ❌ payment network refused round %s: %v", id, err)
			return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		round.OpenTxRef = ref
	}

	if err := s.DB.WithContext(ctx).Create(round).Error; err != nil {
		log.Printf("[ROUND] ❌ round %s opened on payment network (%s) but insert failed: %v", id, round.OpenTxRef, err)
		return nil, fmt.Errorf("insert round: %w", err)
	}
	log.Printf("[ROUND] ✅ created round %s (%s) status=%s pool share=%s", round.ID, round.Slug, round.Status, round.PoolShare)
	return round, nil
}

// ActivateDueRounds moves upcoming rounds whose start time has passed to active.
func (s *RoundService) ActivateDueRounds(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Round{}).
		Where("status = ? AND starts_at <= ?", models.RoundStatusUpcoming, s.now()).
		Update("status", models.RoundStatusActive)
	if res.Error != nil {
		return 0, fmt.Errorf("activate due rounds: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CloseExpiredRounds moves active rounds past their end time to judging.
func (s *RoundService) CloseExpiredRounds(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Round{}).
		Where("status = ? AND ends_at <= ?", models.RoundStatusActive, s.now()).
		Update("status", models.RoundStatusJudging)
	if res.Error != nil {
		return 0, fmt.Errorf("close expired rounds: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// StartJudging stops submissions for an active round. Already judging is a no-op.
func (s *RoundService) StartJudging(ctx context.Context, roundID string) (*models.Round, error) {
	return s.transition(ctx, roundID, models.RoundStatusJudging, models.RoundStatusActive)
}

// EndRound closes the round from any earlier status. Already ended is a no-op.
func (s *RoundService) EndRound(ctx context.Context, roundID string) (*models.Round, error) {
	return s.transition(ctx, roundID, models.RoundStatusEnded,
		models.RoundStatusUpcoming, models.RoundStatusActive, models.RoundStatusJudging)
}

// EndAllActive ends every round that is currently active.
func (s *RoundService) EndAllActive(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.Round{}).
		Where("status = ?", models.RoundStatusActive).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list active rounds: %w", err)
	}
	ended := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := s.EndRound(ctx, id); err != nil {
			return ended, err
		}
		ended = append(ended, id)
	}
	return ended, nil
}

func (s *RoundService) transition(ctx context.Context, roundID string, to models.RoundStatus, from ...models.RoundStatus) (*models.Round, error) {
	round, err := loadRound(ctx, s.DB, roundID)
	if err != nil {
		return nil, err
	}
	if round.Status == to {
		return round, nil
	}
	allowed := false
	for _, f := range from {
		if round.Status == f {
			allowed = true
			break
		}
	}
	if !allowed || !round.Status.CanAdvanceTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, round.Status, to)
	}

	res := s.DB.WithContext(ctx).Model(&models.Round{}).
		Where("id = ? AND status = ?", roundID, round.Status).
		Update("status", to)
	if res.Error != nil {
		return nil, fmt.Errorf("update round %s status: %w", roundID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Someone else moved it; accept if they moved it where we wanted.
		current, err := loadRound(ctx, s.DB, roundID)
		if err != nil {
			return nil, err
		}
		if current.Status == to {
			return current, nil
		}
		return nil, fmt.Errorf("%w: %s changed to %s concurrently", ErrInvalidTransition, roundID, current.Status)
	}
	log.Printf("[ROUND] round %s: %s -> %s", roundID, round.Status, to)
	round.Status = to
	return round, nil
}

// GetRound loads a round by id.
func (s *RoundService) GetRound(ctx context.Context, roundID string) (*models.Round, error) {
	return loadRound(ctx, s.DB, roundID)
}

func (s *RoundService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func roundSlug(theme, id string) string {
	base := slug.Make(theme)
	if len(base) > maxThemeSlugLength {
		base = strings.TrimRight(base[:maxThemeSlugLength], "-")
	}
	if base == "" {
		base = "round"
	}
	return base + "-" + id[:8]
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
