package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"roast-battle/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentVerifier checks a payment reference against the payment network.
type PaymentVerifier interface {
	Verify(ctx context.Context, paymentRef string) (PaymentStatus, error)
}

// ScoreEnqueuer hands an entry to the best-effort scoring pipeline. It must not block.
type ScoreEnqueuer interface {
	Enqueue(entryID string) bool
}

type SettlementService struct {
	DB       *gorm.DB
	Verifier PaymentVerifier // nil: trust the caller-supplied reference
	Scoring  ScoreEnqueuer
	Now      func() time.Time
}

func NewSettlementService(db *gorm.DB, verifier PaymentVerifier, scoring ScoreEnqueuer) *SettlementService {
	return &SettlementService{DB: db, Verifier: verifier, Scoring: scoring, Now: time.Now}
}

type SettlementResult struct {
	EntryID          string `json:"id"`
	RoundID          string `json:"round_id"`
	PaymentRef       string `json:"payment_ref"`
	AlreadyConfirmed bool   `json:"already_confirmed"`
	ScoringQueued    bool   `json:"scoring_queued"`
}

// Confirm binds paymentRef to a reserved entry and credits the round's prize pool, exactly once.
func (s *SettlementService) Confirm(ctx context.Context, entryID, paymentRef string, participantID int64) (SettlementResult, error) {
	entryID = strings.TrimSpace(entryID)
	paymentRef = strings.TrimSpace(paymentRef)
	if entryID == "" || paymentRef == "" || participantID <= 0 {
		return SettlementResult{}, fmt.Errorf("%w: entry id, payment reference and participant id are required", ErrInvalidInput)
	}

	entry, err := s.loadEntry(ctx, s.DB, entryID)
	if err != nil {
		return SettlementResult{}, err
	}
	if entry.ParticipantID != participantID {
		return SettlementResult{}, fmt.Errorf("%w: entry %s belongs to another participant", ErrForbidden, entryID)
	}
	if entry.PaymentRef != nil {
		return alreadyConfirmed(entry), nil
	}

	if s.Verifier != nil {
		status, err := s.Verifier.Verify(ctx, paymentRef)
		if err != nil {
			log.Printf("[SETTLE] ⚠️ verify %s for entry %s failed: %v", paymentRef, entryID, err)
			return SettlementResult{}, fmt.Errorf("%w: %v", ErrPaymentUnverified, err)
		}
		if status != PaymentStatusConfirmed {
			return SettlementResult{}, fmt.Errorf("%w: payment %s is %s", ErrPaymentUnverified, paymentRef, status)
		}
	}

	var raced *models.Entry
	now := s.now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Entry{}).
			Where("id = ? AND payment_ref IS NULL", entryID).
			Updates(map[string]interface{}{
				"payment_ref":  paymentRef,
				"confirmed_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("bind payment reference: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Another confirm committed first; its reference stands and it already credited the pool.
			current, err := s.loadEntry(ctx, tx, entryID)
			if err != nil {
				return err
			}
			raced = current
			return nil
		}

		var round models.Round
		if err := tx.Select("id", "pool_share", "frozen_at").First(&round, "id = ?", entry.RoundID).Error; err != nil {
			return fmt.Errorf("load round %s: %w", entry.RoundID, err)
		}
		if round.IsFrozen() {
			log.Printf("[SETTLE] ⚠️ entry %s confirmed after round %s was frozen; pool credited, ranking unaffected", entryID, round.ID)
		}

		credit := models.PrizePoolCredit{EntryID: entryID, RoundID: round.ID, Amount: round.PoolShare}
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&credit)
		if ins.Error != nil {
			return fmt.Errorf("record pool credit: %w", ins.Error)
		}
		if ins.RowsAffected == 0 {
			log.Printf("[SETTLE] pool credit for entry %s already recorded; skipping increment", entryID)
			return nil
		}
		if err := tx.Model(&models.Round{}).
			Where("id = ?", round.ID).
			Update("prize_pool", gorm.Expr("prize_pool + ?", round.PoolShare)).Error; err != nil {
			return fmt.Errorf("increment prize pool: %w", err)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			log.Printf("[SETTLE] ❌ payment %s already bound to another entry, refusing entry %s", paymentRef, entryID)
			return SettlementResult{}, fmt.Errorf("%w: reference %s already used", ErrPaymentUnverified, paymentRef)
		}
		return SettlementResult{}, err
	}
	if raced != nil {
		return alreadyConfirmed(raced), nil
	}

	result := SettlementResult{EntryID: entry.ID, RoundID: entry.RoundID, PaymentRef: paymentRef}
	if s.Scoring != nil {
		result.ScoringQueued = s.Scoring.Enqueue(entry.ID)
	}
	log.Printf("[SETTLE] ✅ entry %s confirmed with %s (scoring queued=%t)", entry.ID, paymentRef, result.ScoringQueued)
	return result, nil
}

func (s *SettlementService) loadEntry(ctx context.Context, db *gorm.DB, entryID string) (*models.Entry, error) {
	var entry models.Entry
	if err := db.WithContext(ctx).First(&entry, "id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: entry %s", ErrNotFound, entryID)
		}
		return nil, fmt.Errorf("load entry %s: %w", entryID, err)
	}
	return &entry, nil
}

func (s *SettlementService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func alreadyConfirmed(entry *models.Entry) SettlementResult {
	return SettlementResult{
		EntryID:          entry.ID,
		RoundID:          entry.RoundID,
		PaymentRef:       *entry.PaymentRef,
		AlreadyConfirmed: true,
	}
}
