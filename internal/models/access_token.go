package models

import "time"

// AccessToken is a bearer credential for resource access. The token itself
// is a signed JWT produced by the signer; only its SHA256 hash is persisted.
// Records are never mutated after creation — they are deleted by explicit
// revocation or by the lifecycle sweep.
type AccessToken struct {
	ID        string `gorm:"primaryKey"`
	TokenHash string `gorm:"uniqueIndex;not null"` // SHA256(token string)
	RawToken  string `gorm:"-"`                    // In-memory only; never persisted
	TokenType string `gorm:"not null;default:'Bearer'"`
	ClientID  string `gorm:"not null;index"`
	SubjectID string `gorm:"not null;index"`
	Scopes    string `gorm:"not null"` // space-separated
	SessionID string `gorm:"index"`
	TierLevel int    `gorm:"not null;default:0"`

	// RefreshTokenID links the access token to the refresh token it was
	// minted from (empty for implicit and client_credentials grants).
	// Cascade revocation of a token family follows this link.
	RefreshTokenID string `gorm:"index"`

	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t *AccessToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (AccessToken) TableName() string {
	return "access_tokens"
}
