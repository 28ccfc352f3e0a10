package service

import (
	"errors"
	"strings"
	"time"

	"socratic_backend/internal/config"
	"socratic_backend/internal/model"
	"socratic_backend/internal/repository"
	"socratic_backend/internal/util"
	"socratic_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	User        *model.User `json:"user"`
}

func (s *AuthService) Login(req LoginRequest) (*TokenResponse, error) {
	user, err := s.UserRepo.FindByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.UnauthorizedError("%s", util.ErrInvalidCredentials)
		}
		return nil, util.InternalError(err, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, util.UnauthorizedError("%s", util.ErrInvalidCredentials)
	}
	if !user.IsActive {
		return nil, util.ForbiddenError("%s", util.ErrInactiveUser)
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, util.InternalError(err, "failed to issue token")
	}

	now := time.Now()
	if err := s.UserRepo.UpdateLastLogin(user.ID, now); err != nil {
		logger.Log.Warn("Failed to update last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	user.LastLogin = now

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.Cfg.JWT.ExpireTime.Seconds()),
		User:        user,
	}, nil
}

func (s *AuthService) CurrentUser(actor *Actor) (*model.User, error) {
	if actor == nil {
		return nil, util.UnauthorizedError("authentication required")
	}
	user, err := s.UserRepo.FindByID(actor.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.NotFoundError("%s", util.ErrUserNotFound)
	}
	if err != nil {
		return nil, util.InternalError(err, "failed to load user")
	}
	return user, nil
}

// EnsureSuperuser 启动时创建初始管理员，已存在则跳过
func (s *AuthService) EnsureSuperuser() error {
	email := strings.ToLower(strings.TrimSpace(s.Cfg.FirstSuperuser.Email))
	if email == "" {
		return nil
	}

	_, err := s.UserRepo.FindByEmail(email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(s.Cfg.FirstSuperuser.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := &model.User{
		Email:    email,
		Password: string(hashed),
		FullName: "Administrator",
		Role:     model.RoleAdmin,
		IsActive: true,
	}
	if err := s.UserRepo.Create(user); err != nil {
		return err
	}
	logger.Log.Info("First superuser created", zap.String("email", email))
	return nil
}
