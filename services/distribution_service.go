package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"roast-battle/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PayoutSender moves prize money to a winner's wallet.
type PayoutSender interface {
	Pay(ctx context.Context, roundID string, amount decimal.Decimal, recipient string) (string, error)
}

// ResultsArchiver stores the frozen outcome of a round somewhere durable.
type ResultsArchiver interface {
	ArchiveResults(ctx context.Context, roundID string, snapshot interface{}) error
}

// DefaultPayoutSplits are the percentages of the pool paid to places 1..3.
var DefaultPayoutSplits = []decimal.Decimal{
	decimal.NewFromInt(60),
	decimal.NewFromInt(25),
	decimal.NewFromInt(15),
}

type DistributionService struct {
	DB       *gorm.DB
	Rounds   *RoundService
	Payments PayoutSender
	Verifier PaymentVerifier
	Archive  ResultsArchiver
	Splits   []decimal.Decimal
	Now      func() time.Time
}

func NewDistributionService(db *gorm.DB, rounds *RoundService, payments PayoutSender, verifier PaymentVerifier, archive ResultsArchiver, splits []decimal.Decimal) *DistributionService {
	if len(splits) == 0 {
		splits = DefaultPayoutSplits
	}
	return &DistributionService{
		DB:       db,
		Rounds:   rounds,
		Payments: payments,
		Verifier: verifier,
		Archive:  archive,
		Splits:   splits,
		Now:      time.Now,
	}
}

// SkippedWinner is a place that could not be paid.
type SkippedWinner struct {
	Place         int    `json:"place"`
	EntryID       string `json:"entry_id"`
	ParticipantID int64  `json:"participant_id"`
	Reason        string `json:"reason"`
}

type DistributionResult struct {
	RoundID            string          `json:"round_id"`
	PrizePool          decimal.Decimal `json:"prize_pool"`
	WinnerID           *int64          `json:"winner_id,omitempty"`
	Payouts            []models.Payout `json:"payouts"`
	Skipped            []SkippedWinner `json:"skipped,omitempty"`
	AlreadyDistributed bool            `json:"already_distributed"`
}

// SplitPool divides pool by the given percentages, truncated to 8 decimals.
func SplitPool(pool decimal.Decimal, splits []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(splits))
	hundred := decimal.NewFromInt(100)
	for i, pct := range splits {
		out[i] = pool.Mul(pct).Div(hundred).Truncate(8)
	}
	return out
}

// Distribute freezes the round's ranking, records one payout per paid place and
// submits the transfers. Calling it again resumes unfinished transfers.
func (s *DistributionService) Distribute(ctx context.Context, roundID string) (*DistributionResult, error) {
	round, err := loadRound(ctx, s.DB, roundID)
	if err != nil {
		return nil, err
	}
	if round.DistributedAt != nil {
		result := &DistributionResult{RoundID: round.ID, PrizePool: round.PrizePool, WinnerID: round.WinnerID, AlreadyDistributed: true}
		if err := s.DB.WithContext(ctx).Where("round_id = ?", round.ID).Order("rank ASC").Find(&result.Payouts).Error; err != nil {
			return nil, fmt.Errorf("load payouts: %w", err)
		}
		return result, nil
	}
	if round.Status != models.RoundStatusJudging && round.Status != models.RoundStatusEnded {
		return nil, fmt.Errorf("%w: round %s is %s; end or judge it before distributing", ErrInvalidTransition, round.ID, round.Status)
	}

	result := &DistributionResult{RoundID: round.ID}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Round
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, "id = ?", round.ID).Error; err != nil {
			return fmt.Errorf("lock round: %w", err)
		}
		if !locked.IsFrozen() {
			if _, err := rankRound(tx, locked.ID, true); err != nil {
				return err
			}
			now := s.now()
			if err := tx.Model(&models.Round{}).Where("id = ?", locked.ID).Update("frozen_at", now).Error; err != nil {
				return fmt.Errorf("freeze round: %w", err)
			}
			log.Printf("[DISTRIBUTE] round %s frozen at %s", locked.ID, now.Format(time.RFC3339))
		}
		result.PrizePool = locked.PrizePool

		var winners []models.Entry
		if err := tx.Where("round_id = ? AND rank IS NOT NULL AND disqualified = ? AND score > 0", locked.ID, false).
			Order("rank ASC").
			Limit(len(s.Splits)).
			Find(&winners).Error; err != nil {
			return fmt.Errorf("load winners: %w", err)
		}

		ids := make([]int64, 0, len(winners))
		for _, w := range winners {
			ids = append(ids, w.ParticipantID)
		}
		wallets, err := walletsFor(tx, ids)
		if err != nil {
			return err
		}

		amounts := SplitPool(locked.PrizePool, s.Splits)
		for i, w := range winners {
			place := i + 1
			if place == 1 {
				id := w.ParticipantID
				result.WinnerID = &id
			}
			wallet := wallets[w.ParticipantID]
			if wallet == "" {
				log.Printf("[DISTRIBUTE] ⚠️ place %d (entry %s, participant %d) has no wallet; share not paid", place, w.ID, w.ParticipantID)
				result.Skipped = append(result.Skipped, SkippedWinner{Place: place, EntryID: w.ID, ParticipantID: w.ParticipantID, Reason: "no wallet address"})
				continue
			}
			if !amounts[i].IsPositive() {
				result.Skipped = append(result.Skipped, SkippedWinner{Place: place, EntryID: w.ID, ParticipantID: w.ParticipantID, Reason: "empty prize pool"})
				continue
			}
			payout := models.Payout{
				ID:            uuid.NewString(),
				RoundID:       locked.ID,
				EntryID:       w.ID,
				ParticipantID: w.ParticipantID,
				Rank:          place,
				Recipient:     wallet,
				Amount:        amounts[i],
				Status:        models.PayoutStatusPending,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&payout).Error; err != nil {
				return fmt.Errorf("record payout for place %d: %w", place, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var pending []models.Payout
	if err := s.DB.WithContext(ctx).
		Where("round_id = ? AND status = ?", round.ID, models.PayoutStatusPending).
		Order("rank ASC").
		Find(&pending).Error; err != nil {
		return nil, fmt.Errorf("load pending payouts: %w", err)
	}
	var payErrs []error
	for _, p := range pending {
		if err := s.submit(ctx, p); err != nil {
			payErrs = append(payErrs, err)
		}
	}
	if err := s.DB.WithContext(ctx).Where("round_id = ?", round.ID).Order("rank ASC").Find(&result.Payouts).Error; err != nil {
		return nil, fmt.Errorf("load payouts: %w", err)
	}
	if len(payErrs) > 0 {
		return result, fmt.Errorf("%w: %d of %d transfers failed, retry distribution: %v",
			ErrPaymentFailed, len(payErrs), len(pending), errors.Join(payErrs...))
	}

	now := s.now()
	if err := s.DB.WithContext(ctx).Model(&models.Round{}).Where("id = ?", round.ID).
		Updates(map[string]interface{}{
			"status":         models.RoundStatusEnded,
			"winner_id":      result.WinnerID,
			"distributed_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("mark round distributed: %w", err)
	}
	log.Printf("[DISTRIBUTE] ✅ round %s distributed: pool=%s payouts=%d skipped=%d",
		round.ID, result.PrizePool, len(result.Payouts), len(result.Skipped))

	s.archive(ctx, round.ID)
	return result, nil
}

func (s *DistributionService) submit(ctx context.Context, p models.Payout) error {
	if s.Payments == nil {
		return fmt.Errorf("no payment client configured")
	}
	ref, err := s.Payments.Pay(ctx, p.RoundID, p.Amount, p.Recipient)
	if err != nil {
		log.Printf("[DISTRIBUTE] ❌ payout place %d of round %s failed: %v", p.Rank, p.RoundID, err)
		if dbErr := s.DB.WithContext(ctx).Model(&models.Payout{}).Where("id = ?", p.ID).
			Update("last_error", err.Error()).Error; dbErr != nil {
			log.Printf("[DISTRIBUTE] failed to record payout error: %v", dbErr)
		}
		return err
	}
	if err := s.DB.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND status = ?", p.ID, models.PayoutStatusPending).
		Updates(map[string]interface{}{
			"payment_ref": ref,
			"status":      models.PayoutStatusSubmitted,
			"last_error":  "",
		}).Error; err != nil {
		// The transfer went out; losing the reference here must be visible.
		log.Printf("[DISTRIBUTE] ❌ payout %s submitted as %s but not recorded: %v", p.ID, ref, err)
		return err
	}
	log.Printf("[DISTRIBUTE] place %d of round %s: %s to %s (%s)", p.Rank, p.RoundID, p.Amount, p.Recipient, ref)
	return nil
}

func (s *DistributionService) archive(ctx context.Context, roundID string) {
	if s.Archive == nil || s.Rounds == nil {
		return
	}
	snapshot, err := s.Rounds.RoundResults(ctx, roundID)
	if err != nil {
		log.Printf("[DISTRIBUTE] ⚠️ could not build results snapshot for %s: %v", roundID, err)
		return
	}
	if err := s.Archive.ArchiveResults(ctx, roundID, snapshot); err != nil {
		log.Printf("[DISTRIBUTE] ⚠️ results archive upload for %s failed: %v", roundID, err)
	}
}

// VerifySubmittedPayouts asks the payment network about every submitted payout
// and records the settled ones. It returns how many rows changed.
func (s *DistributionService) VerifySubmittedPayouts(ctx context.Context) (int, error) {
	if s.Verifier == nil {
		return 0, nil
	}
	var submitted []models.Payout
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND payment_ref IS NOT NULL", models.PayoutStatusSubmitted).
		Order("created_at ASC").
		Find(&submitted).Error; err != nil {
		return 0, fmt.Errorf("load submitted payouts: %w", err)
	}

	changed := 0
	for _, p := range submitted {
		status, err := s.Verifier.Verify(ctx, *p.PaymentRef)
		if err != nil {
			log.Printf("[PAYOUT] ⚠️ verify %s failed: %v", *p.PaymentRef, err)
			continue
		}
		var next models.PayoutStatus
		switch status {
		case PaymentStatusConfirmed:
			next = models.PayoutStatusConfirmed
		case PaymentStatusFailed:
			next = models.PayoutStatusFailed
		default:
			continue
		}
		res := s.DB.WithContext(ctx).Model(&models.Payout{}).
			Where("id = ? AND status = ?", p.ID, models.PayoutStatusSubmitted).
			Update("status", next)
		if res.Error != nil {
			log.Printf("[PAYOUT] failed to update payout %s: %v", p.ID, res.Error)
			continue
		}
		if res.RowsAffected > 0 {
			changed++
			log.Printf("[PAYOUT] payout %s (round %s place %d) is %s", p.ID, p.RoundID, p.Rank, next)
		}
	}
	return changed, nil
}

func (s *DistributionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func walletsFor(tx *gorm.DB, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Participant
	if err := tx.Select("id", "wallet_address").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load winner wallets: %w", err)
	}
	for _, r := range rows {
		if r.WalletAddress != nil {
			out[r.ID] = *r.WalletAddress
		}
	}
	return out, nil
}
