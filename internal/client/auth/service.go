// Package auth управляет сессией сотрудника на клиенте:
// регистрация и вход через сервер, хранение access токена в локальной
// БД и восстановление сессии между запусками.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/dentkeeper/internal/client/api"
	"github.com/iudanet/dentkeeper/internal/client/storage"
	"github.com/iudanet/dentkeeper/internal/validation"
	pkgapi "github.com/iudanet/dentkeeper/pkg/api"
)

// ErrNotAuthenticated возвращается, когда сохраненной сессии нет
// или ее токен истек
var ErrNotAuthenticated = errors.New("not authenticated")

// Service определяет интерфейс управления сессией
type Service interface {
	// Register регистрирует нового пользователя на сервере
	Register(ctx context.Context, username, password string) (*pkgapi.RegisterResponse, error)

	// Login аутентифицирует пользователя и сохраняет сессию локально
	Login(ctx context.Context, username, password string) (*storage.AuthData, error)

	// Logout удаляет локальную сессию
	Logout(ctx context.Context) error

	// Restore восстанавливает сохраненную сессию: проверяет срок жизни
	// токена и устанавливает его в API клиент.
	// Returns ErrNotAuthenticated если сессии нет или токен истек.
	Restore(ctx context.Context) (*storage.AuthData, error)

	// IsAuthenticated сообщает, есть ли живая сессия
	IsAuthenticated(ctx context.Context) (bool, error)
}

type service struct {
	apiClient   api.ClientAPI
	authStorage storage.AuthStorage
	now         func() time.Time
}

// NewService создает сервис управления сессией
func NewService(apiClient api.ClientAPI, authStorage storage.AuthStorage) Service {
	return &service{
		apiClient:   apiClient,
		authStorage: authStorage,
		now:         time.Now,
	}
}

// Register регистрирует нового пользователя
func (s *service) Register(ctx context.Context, username, password string) (*pkgapi.RegisterResponse, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}

	resp, err := s.apiClient.Register(ctx, pkgapi.RegisterRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}

	return resp, nil
}

// Login аутентифицирует пользователя и сохраняет сессию
func (s *service) Login(ctx context.Context, username, password string) (*storage.AuthData, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, err
	}

	resp, err := s.apiClient.Login(ctx, pkgapi.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	auth := &storage.AuthData{
		Username:    username,
		UserID:      resp.UserID,
		AccessToken: resp.AccessToken,
		ExpiresAt:   s.now().Unix() + resp.ExpiresIn,
	}

	if err := s.authStorage.SaveAuth(ctx, auth); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.apiClient.SetToken(resp.AccessToken)

	return auth, nil
}

// Logout удаляет локальную сессию
func (s *service) Logout(ctx context.Context) error {
	if err := s.authStorage.DeleteAuth(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.apiClient.SetToken("")
	return nil
}

// Restore восстанавливает сохраненную сессию
func (s *service) Restore(ctx context.Context) (*storage.AuthData, error) {
	auth, err := s.authStorage.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if auth.ExpiresAt <= s.now().Unix() {
		return nil, ErrNotAuthenticated
	}

	s.apiClient.SetToken(auth.AccessToken)
	return auth, nil
}

// IsAuthenticated сообщает, есть ли живая сессия
func (s *service) IsAuthenticated(ctx context.Context) (bool, error) {
	_, err := s.Restore(ctx)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
