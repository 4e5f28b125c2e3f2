package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundStatus is the lifecycle position of a Round: upcoming → active → (judging) → ended.
type RoundStatus string

const (
	RoundStatusUpcoming RoundStatus = "upcoming"
	RoundStatusActive   RoundStatus = "active"
	RoundStatusJudging  RoundStatus = "judging"
	RoundStatusEnded    RoundStatus = "ended"
)

// roundStatusOrder gives each status its position so transitions can only move forward.
var roundStatusOrder = map[RoundStatus]int{
	RoundStatusUpcoming: 0,
	RoundStatusActive:   1,
	RoundStatusJudging:  2,
	RoundStatusEnded:    3,
}

// Valid reports whether s is a known status.
func (s RoundStatus) Valid() bool {
	_, ok := roundStatusOrder[s]
	return ok
}

// CanAdvanceTo reports whether moving from s to next is a forward (or same-state) transition.
func (s RoundStatus) CanAdvanceTo(next RoundStatus) bool {
	from, ok := roundStatusOrder[s]
	if !ok {
		return false
	}
	to, ok := roundStatusOrder[next]
	if !ok {
		return false
	}
	return to >= from
}

// Round is a timed competition window with a theme and a fee-funded prize pool.
type Round struct {
	ID       string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Slug     string      `json:"slug" gorm:"type:varchar(128);uniqueIndex;not null"`
	Theme    string      `json:"theme" gorm:"type:text;not null"`
	StartsAt time.Time   `json:"starts_at" gorm:"not null"`
	EndsAt   time.Time   `json:"ends_at" gorm:"not null;index"`
	Status   RoundStatus `json:"status" gorm:"type:varchar(16);not null;default:'upcoming';index"`

	// Money is kept in whole token units with 8 decimals of headroom.
	EntryFee  decimal.Decimal `json:"entry_fee" gorm:"type:numeric(38,8);not null;default:0"`
	PoolShare decimal.Decimal `json:"pool_share" gorm:"type:numeric(38,8);not null;default:0"` // credited per confirmed entry
	PrizePool decimal.Decimal `json:"prize_pool" gorm:"type:numeric(38,8);not null;default:0"`

	WinnerID      *int64     `json:"winner_id,omitempty" gorm:"index"`
	OpenTxRef     string     `json:"open_tx_ref,omitempty" gorm:"type:varchar(128)"` // payment-network reference of the round opening
	FrozenAt      *time.Time `json:"frozen_at,omitempty"`
	DistributedAt *time.Time `json:"distributed_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsFrozen reports whether the final ranking has been read for distribution.
func (r *Round) IsFrozen() bool {
	return r.FrozenAt != nil
}

// ActiveRoundSummary is the public view of the round currently accepting entries.
type ActiveRoundSummary struct {
	ID         string          `json:"id"`
	Slug       string          `json:"slug"`
	Theme      string          `json:"theme"`
	StartsAt   time.Time       `json:"starts_at"`
	EndsAt     time.Time       `json:"ends_at"`
	PrizePool  decimal.Decimal `json:"prize_pool"`
	EntryFee   decimal.Decimal `json:"entry_fee"`
	Status     RoundStatus     `json:"status"`
	EntryCount int64           `json:"entry_count"`
}
