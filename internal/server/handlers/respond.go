package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/dentkeeper/pkg/api"
)

// contextKey тип для ключей контекста
type contextKey string

const (
	// UserIDKey ключ для хранения user_id в контексте
	UserIDKey contextKey = "user_id"
	// UsernameKey ключ для хранения username в контексте
	UsernameKey contextKey = "username"
)

// GetUserID извлекает user_id из контекста запроса
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetUsername извлекает username из контекста запроса
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}

// sendJSON сериализует payload в response body
func sendJSON(w http.ResponseWriter, logger *slog.Logger, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// sendError отправляет ошибку в стандартном формате API
func sendError(w http.ResponseWriter, logger *slog.Logger, message string, status int) {
	sendJSON(w, logger, api.ErrorResponse{Error: message}, status)
}
