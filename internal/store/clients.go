package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/tokengate/tokengate/internal/models"
)

// Client registry operations

func (s *Store) CreateClient(client *models.Client) error {
	return s.db.Create(client).Error
}

func (s *Store) GetClient(clientID string) (*models.Client, error) {
	var client models.Client
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &client, nil
}

func (s *Store) ListClients() ([]models.Client, error) {
	var clients []models.Client
	if err := s.db.Order("created_at DESC").Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

// SetClientActive flips the active flag. Clients are never deleted;
// deactivation is the only lifecycle transition after registration.
func (s *Store) SetClientActive(clientID string, active bool) error {
	res := s.db.Model(&models.Client{}).
		Where("client_id = ?", clientID).
		Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
