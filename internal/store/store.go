package store

import (
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tokengate/tokengate/internal/models"
)

// Store owns the client registry and all four token collections. No other
// component reaches into the underlying tables directly.
type Store struct {
	db *gorm.DB
}

func New(driver, dsn string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer, and a :memory: database exists per
	// connection; one pooled connection keeps both properties sane.
	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&models.Client{},
		&models.AuthorizationCode{},
		&models.AccessToken{},
		&models.RefreshToken{},
		&models.IDToken{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
