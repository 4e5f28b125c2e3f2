package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"roast-battle/models"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MinEntryLength = 10
	MaxEntryLength = 500
)

type ReservationService struct {
	DB           *gorm.DB
	Participants *ParticipantService
	Now          func() time.Time
}

func NewReservationService(db *gorm.DB, participants *ParticipantService) *ReservationService {
	return &ReservationService{DB: db, Participants: participants, Now: time.Now}
}

type ReserveRequest struct {
	RoundID       string
	ParticipantID int64
	Text          string
	Profile       *models.ParticipantProfile
}

// EntryHandle identifies a reserved entry. Resumed is true when an unpaid
// reservation already existed and is being handed back for payment retry.
type EntryHandle struct {
	EntryID string `json:"id"`
	RoundID string `json:"round_id"`
	Resumed bool   `json:"resumed"`
}

// NormalizeEntryText canonicalises the entry (NFC, trimmed) and enforces the length window in runes.
func NormalizeEntryText(raw string) (string, error) {
	text := strings.TrimSpace(norm.NFC.String(raw))
	n := utf8.RuneCountInString(text)
	if n < MinEntryLength {
		return "", fmt.Errorf("%w: entry too short (%d < %d characters)", ErrInvalidInput, n, MinEntryLength)
	}
	if n > MaxEntryLength {
		return "", fmt.Errorf("%w: entry too long (%d > %d characters)", ErrInvalidInput, n, MaxEntryLength)
	}
	return text, nil
}

// Reserve locks the participant's single slot in the round before payment.
func (s *ReservationService) Reserve(ctx context.Context, req ReserveRequest) (EntryHandle, error) {
	if strings.TrimSpace(req.RoundID) == "" || req.ParticipantID <= 0 {
		return EntryHandle{}, fmt.Errorf("%w: round_id and participant_id are required", ErrInvalidInput)
	}
	text, err := NormalizeEntryText(req.Text)
	if err != nil {
		return EntryHandle{}, err
	}

	round, err := loadRound(ctx, s.DB, req.RoundID)
	if err != nil {
		return EntryHandle{}, err
	}
	if round.Status != models.RoundStatusActive {
		return EntryHandle{}, fmt.Errorf("%w: round %s is %s", ErrRoundNotActive, round.ID, round.Status)
	}

	existing, err := s.findEntry(ctx, req.RoundID, req.ParticipantID)
	if err != nil {
		return EntryHandle{}, err
	}
	if existing != nil {
		return existingHandle(existing)
	}

	s.Participants.upsertProfileBestEffort(ctx, req.ParticipantID, req.Profile)

	entry := models.Entry{
		ID:            uuid.NewString(),
		RoundID:       req.RoundID,
		ParticipantID: req.ParticipantID,
		Text:          text,
		CreatedAt:     s.now(),
	}

	// The share lock keeps EndRound from flipping the status between the check and the insert.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Round
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("id", "status").
			First(&locked, "id = ?", req.RoundID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoundNotFound
			}
			return err
		}
		if locked.Status != models.RoundStatusActive {
			return fmt.Errorf("%w: round %s is %s", ErrRoundNotActive, locked.ID, locked.Status)
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent reserve won the insert; follow the existing-entry path.
			existing, findErr := s.findEntry(ctx, req.RoundID, req.ParticipantID)
			if findErr != nil {
				return EntryHandle{}, findErr
			}
			if existing == nil {
				return EntryHandle{}, fmt.Errorf("reserve: unique violation without visible row: %w", err)
			}
			log.Printf("[RESERVE] concurrent reservation for participant %d in round %s resolved to entry %s",
				req.ParticipantID, req.RoundID, existing.ID)
			return existingHandle(existing)
		}
		if errors.Is(err, ErrRoundNotFound) || errors.Is(err, ErrRoundNotActive) {
			return EntryHandle{}, err
		}
		return EntryHandle{}, fmt.Errorf("reserve entry: %w", err)
	}

	log.Printf("[RESERVE] ✅ reserved entry %s for participant %d in round %s", entry.ID, entry.ParticipantID, entry.RoundID)
	return EntryHandle{EntryID: entry.ID, RoundID: entry.RoundID}, nil
}

// Eligibility answers "may this participant submit to this round right now".
type Eligibility struct {
	Eligible       bool   `json:"eligible"`
	Reason         string `json:"reason,omitempty"`
	PendingEntryID string `json:"pending_entry_id,omitempty"`
}

// CheckEligibility is the read-only counterpart of Reserve.
func (s *ReservationService) CheckEligibility(ctx context.Context, roundID string, participantID int64) (Eligibility, error) {
	if strings.TrimSpace(roundID) == "" || participantID <= 0 {
		return Eligibility{}, fmt.Errorf("%w: round_id and participant_id are required", ErrInvalidInput)
	}
	existing, err := s.findEntry(ctx, roundID, participantID)
	if err != nil {
		return Eligibility{}, err
	}
	if existing != nil && existing.IsConfirmed() {
		return Eligibility{Eligible: false, Reason: "already submitted to this round"}, nil
	}

	round, err := loadRound(ctx, s.DB, roundID)
	if errors.Is(err, ErrRoundNotFound) {
		return Eligibility{Eligible: false, Reason: "round not found"}, nil
	}
	if err != nil {
		return Eligibility{}, err
	}
	if round.Status != models.RoundStatusActive {
		return Eligibility{Eligible: false, Reason: "round is no longer accepting entries"}, nil
	}
	if existing != nil {
		return Eligibility{Eligible: true, Reason: "pending entry awaiting payment", PendingEntryID: existing.ID}, nil
	}
	return Eligibility{Eligible: true}, nil
}

func (s *ReservationService) findEntry(ctx context.Context, roundID string, participantID int64) (*models.Entry, error) {
	var entry models.Entry
	err := s.DB.WithContext(ctx).
		Where("round_id = ? AND participant_id = ?", roundID, participantID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup entry: %w", err)
	}
	return &entry, nil
}

func (s *ReservationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func existingHandle(entry *models.Entry) (EntryHandle, error) {
	if entry.IsConfirmed() {
		return EntryHandle{}, fmt.Errorf("%w: entry %s", ErrDuplicateEntry, entry.ID)
	}
	return EntryHandle{EntryID: entry.ID, RoundID: entry.RoundID, Resumed: true}, nil
}

// loadRound maps a missing row to ErrRoundNotFound.
func loadRound(ctx context.Context, db *gorm.DB, roundID string) (*models.Round, error) {
	var round models.Round
	if err := db.WithContext(ctx).First(&round, "id = ?", roundID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRoundNotFound, roundID)
		}
		return nil, fmt.Errorf("load round %s: %w", roundID, err)
	}
	return &round, nil
}
