package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tokengate/tokengate/internal/models"
)

// Authorization code operations

func (s *Store) CreateAuthorizationCode(code *models.AuthorizationCode) error {
	return s.db.Create(code).Error
}

func (s *Store) GetAuthorizationCodeByHash(codeHash string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	if err := s.db.Where("code_hash = ?", codeHash).First(&code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &code, nil
}

// MarkAuthorizationCodeUsed flips used_at from NULL exactly once. The
// conditional WHERE clause makes this a compare-and-swap: of two concurrent
// exchange attempts on the same code, one wins and the other receives
// ErrCodeAlreadyUsed (0 rows updated).
func (s *Store) MarkAuthorizationCodeUsed(id uint) error {
	now := time.Now()
	res := s.db.Model(&models.AuthorizationCode{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCodeAlreadyUsed
	}
	return nil
}

func (s *Store) DeleteAuthorizationCode(id uint) error {
	return s.db.Delete(&models.AuthorizationCode{}, id).Error
}

func (s *Store) CountActiveAuthorizationCodes() (int64, error) {
	var n int64
	err := s.db.Model(&models.AuthorizationCode{}).
		Where("expires_at > ? AND used_at IS NULL", time.Now()).
		Count(&n).Error
	return n, err
}

func (s *Store) DeleteExpiredAuthorizationCodes() (int64, error) {
	res := s.db.Where("expires_at < ?", time.Now()).Delete(&models.AuthorizationCode{})
	return res.RowsAffected, res.Error
}
