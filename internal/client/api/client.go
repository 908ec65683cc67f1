package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/iudanet/dentkeeper/internal/models"
	"github.com/iudanet/dentkeeper/pkg/api"
)

// ErrUnavailable маркирует transient ошибки удаленного сервиса:
// сеть недоступна, таймаут, 5xx. Data facade по этой ошибке переключается
// на offline-путь; любые другие ошибки сервера поднимаются наверх.
var ErrUnavailable = errors.New("remote service unavailable")

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.RWMutex
	token string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// SetToken устанавливает access token для последующих запросов
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/register", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Ping проверяет доступность сервера через health endpoint.
// Используется connectivity монитором.
func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, nil)
}

// Select возвращает все записи коллекции с сервера
func (c *Client) Select(ctx context.Context, collection string) ([]*models.Record, error) {
	var resp api.RowsResponse
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/data/"+collection, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("select %s failed: %w", collection, err)
	}
	return resp.Rows, nil
}

// Insert создает запись в коллекции на сервере
func (c *Client) Insert(ctx context.Context, collection string, record *models.Record) (*models.Record, error) {
	var resp api.RowResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/data/"+collection, record, &resp)
	if err != nil {
		return nil, fmt.Errorf("insert into %s failed: %w", collection, err)
	}
	return resp.Row, nil
}

// Update применяет patch к записям коллекции, у которых column == value
func (c *Client) Update(ctx context.Context, collection string, patch map[string]any, column string, value any) (*models.Record, error) {
	req := api.UpdateRequest{
		Patch:  patch,
		Column: column,
		Value:  value,
	}

	var resp api.RowResponse
	err := c.doRequest(ctx, http.MethodPatch, "/api/v1/data/"+collection, req, &resp)
	if err != nil {
		return nil, fmt.Errorf("update %s failed: %w", collection, err)
	}
	return resp.Row, nil
}

// Delete удаляет записи коллекции, у которых column == value
func (c *Client) Delete(ctx context.Context, collection, column string, value any) error {
	req := api.DeleteRequest{
		Column: column,
		Value:  value,
	}

	if err := c.doRequest(ctx, http.MethodDelete, "/api/v1/data/"+collection, req, nil); err != nil {
		return fmt.Errorf("delete from %s failed: %w", collection, err)
	}
	return nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	reqURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Сетевые ошибки и таймауты — transient, сервер недоступен
		return fmt.Errorf("%w: %s", ErrUnavailable, unwrapURLError(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %s", ErrUnavailable, err)
	}

	// 5xx считаем transient: сервер есть, но обработать запрос не может
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: server returned status %d", ErrUnavailable, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// unwrapURLError убирает обертку url.Error чтобы не дублировать method/url в тексте
func unwrapURLError(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
