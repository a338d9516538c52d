package models

import "time"

// RefreshToken is a long-lived opaque credential used to mint new access
// tokens. Revoking it cascades to every access token in its family.
type RefreshToken struct {
	ID        string `gorm:"primaryKey"`
	TokenHash string `gorm:"uniqueIndex;not null"` // SHA256(opaque token)
	RawToken  string `gorm:"-"`                    // In-memory only; never persisted
	ClientID  string `gorm:"not null;index"`
	SubjectID string `gorm:"not null;index"`
	Scopes    string `gorm:"not null"`
	SessionID string `gorm:"index"`
	TierLevel int    `gorm:"not null;default:0"`

	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}
