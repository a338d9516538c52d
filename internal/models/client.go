package models

import (
	"context"
	"database/sql/driver"
	"encoding/base32"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tokengate/tokengate/internal/util"

	"golang.org/x/crypto/bcrypt"
)

// Token endpoint auth method constants (RFC 6749 §2.3, OIDC Core §9).
const (
	AuthMethodSecretBasic = "client_secret_basic"
	AuthMethodSecretPost  = "client_secret_post"
	AuthMethodNone        = "none"
)

// Base32 characters, but lowercased.
const lowerBase32Chars = "abcdefghijklmnopqrstuvwxyz234567"

// base32 encoder that uses lowered characters without padding.
var base32Lower = base32.NewEncoding(lowerBase32Chars).WithPadding(base32.NoPadding)

// Client is a registered relying party. Immutable after registration
// except for the IsActive flag.
type Client struct {
	ID            int64       `gorm:"primaryKey;autoIncrement"`
	ClientID      string      `gorm:"uniqueIndex;not null"`
	ClientSecret  string      // bcrypt hashed secret; empty for public clients
	ClientName    string      `gorm:"not null"`
	Description   string      `gorm:"type:text"`
	RedirectURIs  StringArray `gorm:"type:json"`
	GrantTypes    string      `gorm:"not null"` // space-separated
	ResponseTypes string      `gorm:"not null;default:'code'"`
	Scopes        string      `gorm:"not null"`
	AuthMethod    string      `gorm:"not null;default:'client_secret_basic'"`
	IsActive      bool        `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsPublic reports whether the client authenticates with no credentials.
func (c *Client) IsPublic() bool {
	return c.AuthMethod == AuthMethodNone
}

// GenerateClientSecret generates a fresh client secret, stores its bcrypt
// hash on the model, and returns the plaintext for one-time display.
func (c *Client) GenerateClientSecret(ctx context.Context) (string, error) {
	rBytes, err := util.CryptoRandomBytes(32)
	if err != nil {
		return "", err
	}
	// The prefix makes leaked secrets easy for code scanners to grab.
	clientSecret := "tg_" + base32Lower.EncodeToString(rBytes)

	hashedSecret, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	c.ClientSecret = string(hashedSecret)
	return clientSecret, nil
}

// ValidateClientSecret validates the given secret against the stored hash.
// bcrypt comparison is constant-time with respect to the secret contents.
func (c *Client) ValidateClientSecret(secret []byte) bool {
	if c.ClientSecret == "" || len(secret) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.ClientSecret), secret) == nil
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
func (c *Client) HasRedirectURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// HasGrantType reports whether the client is registered for the given grant type.
func (c *Client) HasGrantType(grantType string) bool {
	for g := range strings.FieldsSeq(c.GrantTypes) {
		if g == grantType {
			return true
		}
	}
	return false
}

// HasResponseType reports whether the client is registered for the given
// response type. ResponseTypes stores the primitive types the client may use
// ("code token id_token"); a compound request such as "id_token token"
// matches when every element is registered.
func (c *Client) HasResponseType(responseType string) bool {
	requested := strings.Fields(responseType)
	if len(requested) == 0 {
		return false
	}
	registered := make(map[string]bool)
	for r := range strings.FieldsSeq(c.ResponseTypes) {
		registered[r] = true
	}
	for _, r := range requested {
		if !registered[r] {
			return false
		}
	}
	return true
}

// StringArray is a custom type for []string stored as JSON in the database.
type StringArray []string

// Scan implements sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("failed to unmarshal JSON value")
	}
}

// Value implements driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return json.Marshal([]string{})
	}
	return json.Marshal(s)
}

// TableName overrides the table name used by Client to `oauth_clients`
func (Client) TableName() string {
	return "oauth_clients"
}
