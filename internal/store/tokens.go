package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tokengate/tokengate/internal/models"
)

// Access token operations

func (s *Store) CreateAccessToken(token *models.AccessToken) error {
	return s.db.Create(token).Error
}

func (s *Store) GetAccessTokenByHash(tokenHash string) (*models.AccessToken, error) {
	var t models.AccessToken
	if err := s.db.Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) DeleteAccessToken(id string) error {
	return s.db.Where("id = ?", id).Delete(&models.AccessToken{}).Error
}

func (s *Store) CountActiveAccessTokens() (int64, error) {
	var n int64
	err := s.db.Model(&models.AccessToken{}).
		Where("expires_at > ?", time.Now()).
		Count(&n).Error
	return n, err
}

// Refresh token operations

func (s *Store) CreateRefreshToken(token *models.RefreshToken) error {
	return s.db.Create(token).Error
}

func (s *Store) GetRefreshTokenByHash(tokenHash string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	if err := s.db.Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) DeleteRefreshToken(id string) error {
	return s.db.Where("id = ?", id).Delete(&models.RefreshToken{}).Error
}

func (s *Store) CountActiveRefreshTokens() (int64, error) {
	var n int64
	err := s.db.Model(&models.RefreshToken{}).
		Where("expires_at > ?", time.Now()).
		Count(&n).Error
	return n, err
}

// SaveIssuedTokens persists an access token and its optional refresh token
// and ID token in a single transaction, so a token family is never partially
// visible.
func (s *Store) SaveIssuedTokens(
	access *models.AccessToken,
	refresh *models.RefreshToken,
	idToken *models.IDToken,
) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if refresh != nil {
			if err := tx.Create(refresh).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(access).Error; err != nil {
			return err
		}
		if idToken != nil {
			if err := tx.Create(idToken).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RotateRefreshToken deletes the old refresh token and inserts its
// replacement plus the freshly minted access token atomically, so there is
// no window where both refresh tokens are valid or both are absent. The
// conditional delete detects a concurrent rotation of the same token.
func (s *Store) RotateRefreshToken(
	oldID string,
	newRefresh *models.RefreshToken,
	newAccess *models.AccessToken,
) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", oldID).Delete(&models.RefreshToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRefreshTokenGone
		}
		if err := tx.Create(newRefresh).Error; err != nil {
			return err
		}
		return tx.Create(newAccess).Error
	})
}

// RevokeRefreshTokenFamily deletes a refresh token and every access token
// minted from it in one transaction. Returns the number of access tokens
// removed. A refresh token that is already gone is not an error (RFC 7009).
func (s *Store) RevokeRefreshTokenFamily(refreshTokenID string) (int64, error) {
	var revoked int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("refresh_token_id = ?", refreshTokenID).
			Delete(&models.AccessToken{})
		if res.Error != nil {
			return res.Error
		}
		revoked = res.RowsAffected
		return tx.Where("id = ?", refreshTokenID).Delete(&models.RefreshToken{}).Error
	})
	return revoked, err
}

// ID token operations

func (s *Store) CreateIDToken(token *models.IDToken) error {
	return s.db.Create(token).Error
}

func (s *Store) GetIDTokenByHash(tokenHash string) (*models.IDToken, error) {
	var t models.IDToken
	if err := s.db.Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Expiry sweep

func (s *Store) DeleteExpiredAccessTokens() (int64, error) {
	res := s.db.Where("expires_at < ?", time.Now()).Delete(&models.AccessToken{})
	return res.RowsAffected, res.Error
}

func (s *Store) DeleteExpiredRefreshTokens() (int64, error) {
	res := s.db.Where("expires_at < ?", time.Now()).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (s *Store) DeleteExpiredIDTokens() (int64, error) {
	res := s.db.Where("expires_at < ?", time.Now()).Delete(&models.IDToken{})
	return res.RowsAffected, res.Error
}
