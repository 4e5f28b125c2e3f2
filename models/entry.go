package models

import (
	"time"
)

// Entry is one participant's submission within a Round.
// A NULL payment_ref means the slot is reserved but unpaid.
type Entry struct {
	ID            string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RoundID       string `json:"round_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_entries_round_participant;uniqueIndex:idx_entries_round_rank"`
	ParticipantID int64  `json:"participant_id" gorm:"not null;uniqueIndex:idx_entries_round_participant;index"`
	Text          string `json:"text" gorm:"type:text;not null"`

	PaymentRef  *string    `json:"payment_ref,omitempty" gorm:"type:varchar(128);uniqueIndex:idx_entries_payment_ref;check:chk_entries_score_paid,score IS NULL OR payment_ref IS NOT NULL"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`

	Score        *int       `json:"score,omitempty" gorm:"index"`
	Humor        *int       `json:"humor,omitempty"`
	Creativity   *int       `json:"creativity,omitempty"`
	Relevance    *int       `json:"relevance,omitempty"`
	Savagery     *int       `json:"savagery,omitempty"`
	Feedback     *string    `json:"feedback,omitempty" gorm:"type:text"`
	Disqualified bool       `json:"disqualified" gorm:"not null;default:false"`
	ScoredAt     *time.Time `json:"scored_at,omitempty"`

	Rank *int `json:"rank,omitempty" gorm:"uniqueIndex:idx_entries_round_rank;check:chk_entries_rank_scored,rank IS NULL OR score IS NOT NULL"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// EntryPhase names the lifecycle position of an entry.
type EntryPhase string

const (
	PhaseReserved  EntryPhase = "reserved"
	PhaseConfirmed EntryPhase = "confirmed"
	PhaseScored    EntryPhase = "scored"
	PhaseRanked    EntryPhase = "ranked"
)

// EntryState is the tagged view of an Entry; each variant only carries the
// fields that are valid in that phase.
type EntryState interface {
	Phase() EntryPhase
}

// Reserved holds the participant's slot before payment.
type Reserved struct{}

// Confirmed is a paid entry awaiting a score.
type Confirmed struct {
	PaymentRef string
}

// Scored carries the judge's outcome.
type Scored struct {
	PaymentRef   string
	Score        int
	Feedback     string
	Disqualified bool
}

// Ranked is a scored entry with its position in the round.
type Ranked struct {
	Scored
	Rank int
}

func (Reserved) Phase() EntryPhase  { return PhaseReserved }
func (Confirmed) Phase() EntryPhase { return PhaseConfirmed }
func (Scored) Phase() EntryPhase    { return PhaseScored }
func (Ranked) Phase() EntryPhase    { return PhaseRanked }

// State projects the row onto its tagged state. Rows that would be
// ranked-but-unscored or scored-but-unpaid are rejected by CHECK constraints,
// so the projection below only ever drops to the last consistent phase.
func (e *Entry) State() EntryState {
	if e.PaymentRef == nil {
		return Reserved{}
	}
	if e.Score == nil {
		return Confirmed{PaymentRef: *e.PaymentRef}
	}
	scored := Scored{
		PaymentRef:   *e.PaymentRef,
		Score:        *e.Score,
		Disqualified: e.Disqualified,
	}
	if e.Feedback != nil {
		scored.Feedback = *e.Feedback
	}
	if e.Rank == nil {
		return scored
	}
	return Ranked{Scored: scored, Rank: *e.Rank}
}

// IsConfirmed reports whether a payment reference has been bound.
func (e *Entry) IsConfirmed() bool {
	return e.PaymentRef != nil
}

// EntryResult is an entry joined with its author for results pages.
type EntryResult struct {
	ID            string     `json:"id"`
	ParticipantID int64      `json:"participant_id"`
	Text          string     `json:"text"`
	Score         *int       `json:"score,omitempty"`
	Feedback      *string    `json:"feedback,omitempty"`
	Disqualified  bool       `json:"disqualified"`
	Rank          *int       `json:"rank,omitempty"`
	Phase         EntryPhase `json:"phase"`
	AuthorName    string     `json:"author_name"`
	AuthorAvatar  string     `json:"author_avatar,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
