package models

import "time"

// AuthorizationCode stores OAuth 2.0 authorization codes (RFC 6749).
// Codes are short-lived (default 10 minutes) and single-use.
type AuthorizationCode struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"`
	UUID string `gorm:"uniqueIndex;size:36;not null"` // Public UUID for API identification

	// Code storage: SHA256 hash for security, prefix for log correlation
	CodeHash   string `gorm:"uniqueIndex;not null"`  // SHA256(plainCode)
	CodePrefix string `gorm:"index;not null;size:8"` // First 8 chars for quick lookup

	ClientID  string `gorm:"not null;index"`
	SubjectID string `gorm:"not null;index"`
	SessionID string `gorm:"index"` // Session the code was minted under; may be empty

	RedirectURI string `gorm:"not null"`
	Scopes      string `gorm:"not null"` // space-separated

	// PKCE (RFC 7636)
	CodeChallenge       string `gorm:"default:''"`     // code_challenge (empty = PKCE not used)
	CodeChallengeMethod string `gorm:"default:'S256'"` // "S256" or "plain"

	Nonce string // echoed into the ID token to bind it to the browser session

	ExpiresAt time.Time
	UsedAt    *time.Time // Set exactly once upon exchange; prevents replay
	CreatedAt time.Time
}

func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

func (a *AuthorizationCode) IsUsed() bool {
	return a.UsedAt != nil
}

func (AuthorizationCode) TableName() string {
	return "authorization_codes"
}
