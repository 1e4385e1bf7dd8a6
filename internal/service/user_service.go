package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"kidledger/internal/apperr"
	"kidledger/internal/config"
	"kidledger/internal/logging"
	"kidledger/internal/model"
	"kidledger/internal/repository"

	"gorm.io/gorm"
)

// UserService manages parents and children. A child always comes with a
// zeroed wallet and a default avatar.
type UserService struct {
	db           *gorm.DB
	cfg          *config.Config
	logger       *logging.Logger
	clock        Clock
	userRepo     *repository.UserRepository
	walletRepo   *repository.WalletRepository
	activityRepo *repository.ActivityRepository
}

func NewUserService(db *gorm.DB, cfg *config.Config, logger *logging.Logger) *UserService {
	return &UserService{
		db:           db,
		cfg:          cfg,
		logger:       logger.WithComponent(logging.ComponentUser),
		clock:        systemClock,
		userRepo:     repository.NewUserRepository(db),
		walletRepo:   repository.NewWalletRepository(db),
		activityRepo: repository.NewActivityRepository(db),
	}
}

func (s *UserService) SetClock(clock Clock) {
	s.clock = clock
}

type CreateParentRequest struct {
	Email string `json:"email" binding:"required"`
	Name  string `json:"name" binding:"required"`
}

type CreateChildRequest struct {
	Email string `json:"email" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Age   *int   `json:"age"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) checkIdentity(ctx context.Context, email, name string) (string, string, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", apperr.New(apperr.KindInvalidArgument, "name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", "", apperr.New(apperr.KindInvalidArgument, fmt.Sprintf("invalid email %q", email))
	}
	taken, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return "", "", err
	}
	if taken {
		return "", "", apperr.New(apperr.KindConflict, "email already registered")
	}
	return email, name, nil
}

func (s *UserService) CreateParent(ctx context.Context, req *CreateParentRequest) (*model.User, error) {
	email, name, err := s.checkIdentity(ctx, req.Email, req.Name)
	if err != nil {
		return nil, err
	}
	user := &model.User{Email: email, Name: name, Role: model.RoleParent, IsActive: true, CreatedAt: s.clock()}
	if err := s.userRepo.Create(ctx, nil, user); err != nil {
		return nil, fmt.Errorf("create parent: %w", err)
	}
	s.logger.Info("parent created", logging.FieldUserID, user.ID)
	return user, nil
}

// CreateChild creates the child with its wallet, avatar and first activity
// entry in one transaction.
func (s *UserService) CreateChild(ctx context.Context, parentID int64, req *CreateChildRequest) (*model.User, error) {
	parent, err := s.userRepo.GetByID(ctx, nil, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Role != model.RoleParent {
		return nil, apperr.ErrUnauthorized
	}
	if req.Age != nil && (*req.Age < 0 || *req.Age > 18) {
		return nil, apperr.New(apperr.KindInvalidArgument, "age must be within 0..18")
	}
	email, name, err := s.checkIdentity(ctx, req.Email, req.Name)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	child := &model.User{
		Email:     email,
		Name:      name,
		Role:      model.RoleChild,
		ParentID:  &parent.ID,
		Age:       req.Age,
		IsActive:  true,
		CreatedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.Create(ctx, tx, child); err != nil {
			return fmt.Errorf("create child: %w", err)
		}
		wallet := &model.Wallet{UserID: child.ID, CreatedAt: now, UpdatedAt: now}
		if err := s.walletRepo.Create(ctx, tx, wallet); err != nil {
			return fmt.Errorf("create wallet: %w", err)
		}
		if err := s.userRepo.CreateAvatar(ctx, tx, model.DefaultAvatar(child.ID, name)); err != nil {
			return fmt.Errorf("create avatar: %w", err)
		}
		return s.activityRepo.Create(ctx, tx, &model.ActivityLog{
			UserID:      child.ID,
			ActorID:     parent.ID,
			ActionType:  model.ActionAccountCreated,
			Description: fmt.Sprintf("Account created for %s", name),
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("child created", logging.FieldUserID, child.ID, logging.FieldActorID, parent.ID)
	return child, nil
}

func (s *UserService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, nil, userID)
}

// GetUserByEmail matches the address the same way registration stores it.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "email is required")
	}
	return s.userRepo.GetByEmail(ctx, email)
}

func (s *UserService) ListChildren(ctx context.Context, parentID int64) ([]*model.User, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, parentID); err != nil {
		return nil, err
	}
	return s.userRepo.ListChildren(ctx, parentID)
}
