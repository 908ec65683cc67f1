package api

import (
	"context"

	"github.com/iudanet/dentkeeper/internal/models"
	pkgapi "github.com/iudanet/dentkeeper/pkg/api"
)

//go:generate moq -out client_mock.go . ClientAPI

// ClientAPI определяет интерфейс удаленного CRUD сервиса, как его видит
// offline-слой: select/insert/update/delete по именованным коллекциям,
// плюс health probe и тонкая auth-обвязка.
type ClientAPI interface {
	// Register регистрирует нового пользователя
	Register(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.RegisterResponse, error)

	// Login выполняет аутентификацию пользователя
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error)

	// SetToken устанавливает access token для последующих запросов
	SetToken(token string)

	// Ping проверяет доступность сервера
	Ping(ctx context.Context) error

	// Select возвращает все записи коллекции с сервера
	Select(ctx context.Context, collection string) ([]*models.Record, error)

	// Insert создает запись в коллекции на сервере
	Insert(ctx context.Context, collection string, record *models.Record) (*models.Record, error)

	// Update применяет patch к записям коллекции, у которых column == value
	Update(ctx context.Context, collection string, patch map[string]any, column string, value any) (*models.Record, error)

	// Delete удаляет записи коллекции, у которых column == value
	Delete(ctx context.Context, collection, column string, value any) error
}

// Проверка, что Client реализует ClientAPI
var _ ClientAPI = (*Client)(nil)
