package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PrizePoolCredit records the single pool increment owed to a confirmed entry.
// The unique entry_id makes a replayed confirmation unable to credit twice.
type PrizePoolCredit struct {
	EntryID   string          `json:"entry_id" gorm:"primaryKey;type:varchar(36)"`
	RoundID   string          `json:"round_id" gorm:"type:varchar(36);not null;index"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:numeric(38,8);not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// PayoutStatus tracks a prize transfer through the payment network.
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"   // row written, transfer not yet submitted
	PayoutStatusSubmitted PayoutStatus = "submitted" // payment reference received, awaiting verification
	PayoutStatusConfirmed PayoutStatus = "confirmed"
	PayoutStatusFailed    PayoutStatus = "failed"
)

// Payout is one prize transfer to a ranked winner of a distributed round.
type Payout struct {
	ID            string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RoundID       string          `json:"round_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_payouts_round_rank"`
	EntryID       string          `json:"entry_id" gorm:"type:varchar(36);not null;uniqueIndex"`
	ParticipantID int64           `json:"participant_id" gorm:"not null;index"`
	Rank          int             `json:"rank" gorm:"not null;uniqueIndex:idx_payouts_round_rank"`
	Recipient     string          `json:"recipient" gorm:"type:varchar(128);not null"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(38,8);not null"`
	PaymentRef    *string         `json:"payment_ref,omitempty" gorm:"type:varchar(128)"`
	Status        PayoutStatus    `json:"status" gorm:"type:varchar(16);not null;default:'pending';index"`
	LastError     string          `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// LeaderboardRow aggregates a participant's distributed winnings across rounds.
type LeaderboardRow struct {
	ParticipantID int64           `json:"participant_id"`
	Name          string          `json:"name"`
	Avatar        string          `json:"avatar,omitempty"`
	Wins          int64           `json:"wins"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
}

// AllModels lists every table owned by the service, in migration order.
func AllModels() []any {
	return []any{
		&Participant{},
		&Round{},
		&Entry{},
		&PrizePoolCredit{},
		&Payout{},
	}
}
