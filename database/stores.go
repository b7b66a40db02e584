// file: database/stores.go
package database

import (
	"context"
	"errors"
	"time"

	"CTFBox/models"
	"CTFBox/services"
	"gorm.io/gorm"
)

// AssignmentStore services.AssignmentStore 的 GORM 实现
type AssignmentStore struct {
	db *gorm.DB
}

func NewAssignmentStore(db *gorm.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

func (s *AssignmentStore) ownerScope(owner services.Owner) *gorm.DB {
	if owner.TeamID != 0 {
		return s.db.Where("team_id = ?", owner.TeamID)
	}
	return s.db.Where("user_id = ?", owner.UserID)
}

func (s *AssignmentStore) FindLive(ctx context.Context, challengeID uint32, owner services.Owner, now time.Time) (*models.Instance, error) {
	var inst models.Instance
	err := s.ownerScope(owner).WithContext(ctx).
		Where("challenge_id = ? AND expires_at > ?", challengeID, now).
		First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *AssignmentStore) CountLive(ctx context.Context, owner services.Owner, now time.Time) (int64, error) {
	var count int64
	err := s.ownerScope(owner).WithContext(ctx).
		Model(&models.Instance{}).
		Where("expires_at > ?", now).
		Count(&count).Error
	return count, err
}

func (s *AssignmentStore) ListByOwner(ctx context.Context, owner services.Owner) ([]models.Instance, error) {
	var instances []models.Instance
	err := s.ownerScope(owner).WithContext(ctx).Find(&instances).Error
	return instances, err
}

func (s *AssignmentStore) Insert(ctx context.Context, inst *models.Instance) error {
	return s.db.WithContext(ctx).Create(inst).Error
}

func (s *AssignmentStore) Delete(ctx context.Context, dockerID string) error {
	return s.db.WithContext(ctx).Delete(&models.Instance{}, "docker_id = ?", dockerID).Error
}

func (s *AssignmentStore) UpdateExpiry(ctx context.Context, dockerID string, expiresAt time.Time, renewCount uint) error {
	return s.db.WithContext(ctx).Model(&models.Instance{}).
		Where("docker_id = ?", dockerID).
		Updates(map[string]interface{}{"expires_at": expiresAt, "renew_count": renewCount}).Error
}

func (s *AssignmentStore) Expired(ctx context.Context, now time.Time) ([]models.Instance, error) {
	var instances []models.Instance
	err := s.db.WithContext(ctx).Where("expires_at <= ?", now).Find(&instances).Error
	return instances, err
}

func (s *AssignmentStore) All(ctx context.Context) ([]models.Instance, error) {
	var instances []models.Instance
	err := s.db.WithContext(ctx).Find(&instances).Error
	return instances, err
}

// ChallengeStore services.ChallengeStore 的 GORM 实现
type ChallengeStore struct {
	db *gorm.DB
}

func NewChallengeStore(db *gorm.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func (s *ChallengeStore) GetChallenge(ctx context.Context, challengeID uint32) (*models.Challenge, error) {
	var ch models.Challenge
	err := s.db.WithContext(ctx).First(&ch, challengeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// SettingsStore services.SettingsSource 的 GORM 实现，Snapshot 每次都读库
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Snapshot() (*services.Settings, error) {
	var rows []models.Setting
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return services.NewSettings(values), nil
}
