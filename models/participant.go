package models

import (
	"fmt"
	"time"
)

// Participant is a local snapshot of the external identity that submits entries.
// Rows are upserted by ID whenever a reservation carries profile fields; never deleted.
type Participant struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Username      *string   `json:"username,omitempty" gorm:"type:varchar(64);index"`
	DisplayName   *string   `json:"display_name,omitempty" gorm:"type:varchar(128)"`
	AvatarRef     *string   `json:"avatar_ref,omitempty" gorm:"type:text"`
	WalletAddress *string   `json:"wallet_address,omitempty" gorm:"type:varchar(128)"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ParticipantProfile carries the optional profile fields a caller may supply with a reservation.
type ParticipantProfile struct {
	Username      string `json:"username,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	AvatarRef     string `json:"avatar_ref,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// IsEmpty reports whether no profile field was supplied.
func (p ParticipantProfile) IsEmpty() bool {
	return p.Username == "" && p.DisplayName == "" && p.AvatarRef == "" && p.WalletAddress == ""
}

// DisplayLabel picks the best human-readable name, falling back to the numeric id.
func DisplayLabel(id int64, p *Participant) string {
	if p != nil {
		if p.DisplayName != nil && *p.DisplayName != "" {
			return *p.DisplayName
		}
		if p.Username != nil && *p.Username != "" {
			return *p.Username
		}
	}
	return fmt.Sprintf("fid:%d", id)
}
