package storage

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nightloom/server/internal/config"
	"nightloom/server/internal/models"
)

type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&models.SessionRecord{}, &models.TurnRecord{}); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) GetDB() *gorm.DB {
	return s.db
}

// Transaction helper
func (s *MySQLStore) WithTx(fn func(*gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// CreateSessionRecord inserts the archive row for a new session.
func (s *MySQLStore) CreateSessionRecord(record *models.SessionRecord) error {
	return s.db.Create(record).Error
}

// ArchiveTurn writes a committed turn and bumps the session's turn
// count in one transaction.
func (s *MySQLStore) ArchiveTurn(record *models.TurnRecord) error {
	return s.WithTx(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return tx.Model(&models.SessionRecord{}).
			Where("id = ?", record.SessionID).
			Update("turn_count", record.Turn).Error
	})
}

// EndSession marks a session row as ended.
func (s *MySQLStore) EndSession(sessionID string) error {
	return s.db.Model(&models.SessionRecord{}).
		Where("id = ?", sessionID).
		Update("status", "ended").Error
}

// ListTurns returns the archived turns for a session in play order.
func (s *MySQLStore) ListTurns(sessionID string, limit int) ([]models.TurnRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []models.TurnRecord
	err := s.db.Where("session_id = ?", sessionID).
		Order("turn asc").
		Limit(limit).
		Find(&records).Error
	return records, err
}
