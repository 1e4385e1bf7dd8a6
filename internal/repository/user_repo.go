package repository

import (
	"context"
	"errors"

	"kidledger/internal/apperr"
	"kidledger/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, tx *gorm.DB, user *model.User) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.User, error) {
	if tx == nil {
		tx = r.db
	}
	var user model.User
	err := tx.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) ListChildren(ctx context.Context, parentID int64) ([]*model.User, error) {
	children := []*model.User{}
	err := r.db.WithContext(ctx).
		Where("parent_id = ? AND role = ?", parentID, model.RoleChild).
		Order("id ASC").
		Find(&children).Error
	return children, err
}

func (r *UserRepository) CreateAvatar(ctx context.Context, tx *gorm.DB, avatar *model.Avatar) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(avatar).Error
}

// GetAvatar returns nil without error when the user has none.
func (r *UserRepository) GetAvatar(ctx context.Context, userID int64) (*model.Avatar, error) {
	var avatar model.Avatar
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&avatar).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &avatar, nil
}
