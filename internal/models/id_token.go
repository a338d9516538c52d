package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// IDToken is a signed assertion of an authentication event (OIDC Core §2).
// Only issued when "openid" is in the granted scope.
type IDToken struct {
	ID        string `gorm:"primaryKey"`
	TokenHash string `gorm:"uniqueIndex;not null"`
	RawToken  string `gorm:"-"`
	ClientID  string `gorm:"not null;index"`
	SubjectID string `gorm:"not null;index"`
	Issuer    string `gorm:"not null"`
	Audience  string `gorm:"not null"`
	Nonce     string
	Claims    ClaimsMap `gorm:"type:json"`

	IssuedAt  time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t *IDToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (IDToken) TableName() string {
	return "id_tokens"
}

// ClaimsMap stores arbitrary JWT claims as a JSON column.
type ClaimsMap map[string]any

// Scan implements sql.Scanner interface
func (m *ClaimsMap) Scan(value interface{}) error {
	if value == nil {
		*m = ClaimsMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("failed to unmarshal JSON value")
	}
}

// Value implements driver.Valuer interface
func (m ClaimsMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return json.Marshal(map[string]any{})
	}
	return json.Marshal(m)
}
