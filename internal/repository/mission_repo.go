package repository

import (
	"context"
	"errors"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/model"

	"gorm.io/gorm"
)

// MissionRepository stores mission templates.
type MissionRepository struct {
	db *gorm.DB
}

func NewMissionRepository(db *gorm.DB) *MissionRepository {
	return &MissionRepository{db: db}
}

func (r *MissionRepository) Create(ctx context.Context, mission *model.Mission) error {
	return r.db.WithContext(ctx).Create(mission).Error
}

func (r *MissionRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Mission, error) {
	if tx == nil {
		tx = r.db
	}
	var mission model.Mission
	err := tx.WithContext(ctx).Where("id = ?", id).First(&mission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrMissionNotFound
		}
		return nil, err
	}
	return &mission, nil
}

func (r *MissionRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Mission, error) {
	result := make(map[int64]*model.Mission, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var missions []*model.Mission
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&missions).Error; err != nil {
		return nil, err
	}
	for _, m := range missions {
		result[m.ID] = m
	}
	return result, nil
}

// ListAvailable returns active templates covering age that userID has never started.
func (r *MissionRepository) ListAvailable(ctx context.Context, userID int64, age int) ([]*model.Mission, error) {
	missions := []*model.Mission{}
	started := r.db.Model(&model.UserMission{}).Select("mission_id").Where("user_id = ?", userID)
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND age_min <= ? AND age_max >= ?", true, age, age).
		Where("id NOT IN (?)", started).
		Order("id ASC").
		Find(&missions).Error
	return missions, err
}

func (r *MissionRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.db.WithContext(ctx).
		Model(&model.Mission{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}

// UserMissionRepository stores per-user mission instances.
//
// Every status change is a conditional UPDATE on the status the caller saw,
// so two racing writers cannot both move the same instance.
type UserMissionRepository struct {
	db *gorm.DB
}

func NewUserMissionRepository(db *gorm.DB) *UserMissionRepository {
	return &UserMissionRepository{db: db}
}

func (r *UserMissionRepository) Create(ctx context.Context, tx *gorm.DB, um *model.UserMission) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(um).Error
}

func (r *UserMissionRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.UserMission, error) {
	if tx == nil {
		tx = r.db
	}
	var um model.UserMission
	err := tx.WithContext(ctx).Where("id = ?", id).First(&um).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrMissionNotFound
		}
		return nil, err
	}
	return &um, nil
}

// ExistsUnexpired reports whether the user holds an instance of the mission
// in any status other than expired.
func (r *UserMissionRepository) ExistsUnexpired(ctx context.Context, tx *gorm.DB, userID, missionID int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.UserMission{}).
		Where("user_id = ? AND mission_id = ? AND status <> ?", userID, missionID, model.MissionStatusExpired).
		Count(&count).Error
	return count > 0, err
}

func (r *UserMissionRepository) ListByUserID(ctx context.Context, userID int64, status model.MissionStatus) ([]*model.UserMission, error) {
	instances := []*model.UserMission{}
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("started_at DESC").Order("id DESC").Find(&instances).Error
	return instances, err
}

// UpdateProgress writes progress while the instance is still active and the
// stored progress does not exceed the new value.
func (r *UserMissionRepository) UpdateProgress(ctx context.Context, tx *gorm.DB, id int64, progress int, currentValue *int64, now time.Time) error {
	if tx == nil {
		tx = r.db
	}
	updates := map[string]interface{}{
		"progress":   progress,
		"updated_at": now,
	}
	if currentValue != nil {
		updates["current_value"] = *currentValue
	}
	if progress >= model.MaxProgress {
		updates["status"] = model.MissionStatusCompleted
		updates["completed_at"] = now
	}

	result := tx.WithContext(ctx).
		Model(&model.UserMission{}).
		Where("id = ? AND status = ? AND progress <= ?", id, model.MissionStatusActive, progress).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.ErrConflict
	}
	return nil
}

// Transition moves an instance from one status to another.
func (r *UserMissionRepository) Transition(ctx context.Context, tx *gorm.DB, id int64, from, to model.MissionStatus, now time.Time) (bool, error) {
	if !model.CanTransitionTo(from, to) {
		return false, apperr.New(apperr.KindInvalidArgument, "illegal mission transition "+string(from)+" -> "+string(to))
	}
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.UserMission{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkClaimed flips reward_claimed on a completed, fully progressed, unclaimed
// instance. It returns false when the flag was not flipped.
func (r *UserMissionRepository) MarkClaimed(ctx context.Context, tx *gorm.DB, id int64, now time.Time) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.UserMission{}).
		Where("id = ? AND status = ? AND progress = ? AND reward_claimed = ?", id, model.MissionStatusCompleted, model.MaxProgress, false).
		Updates(map[string]interface{}{
			"reward_claimed": true,
			"updated_at":     now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListExpiredActive returns active instances whose expiry is at or before now.
func (r *UserMissionRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*model.UserMission, error) {
	var instances []*model.UserMission
	query := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", model.MissionStatusActive, now).
		Order("expires_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&instances).Error
	return instances, err
}

func (r *UserMissionRepository) CountCompletedSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.UserMission{}).
		Where("user_id = ? AND status = ? AND completed_at >= ?", userID, model.MissionStatusCompleted, since).
		Count(&count).Error
	return count, err
}
