package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/iudanet/dentkeeper/internal/models"
	"github.com/iudanet/dentkeeper/internal/server/storage"
	"github.com/iudanet/dentkeeper/internal/validation"
	"github.com/iudanet/dentkeeper/pkg/api"
)

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger      *slog.Logger
	userStorage storage.UserStorage
	jwtConfig   JWTConfig
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, userStorage storage.UserStorage, jwtConfig JWTConfig) *AuthHandler {
	return &AuthHandler{
		logger:      logger,
		userStorage: userStorage,
		jwtConfig:   jwtConfig,
	}
}

// Register обрабатывает POST /api/v1/auth/register
// Регистрация новой учетной записи сотрудника
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode register request", slog.Any("error", err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		h.logger.WarnContext(ctx, "invalid username", slog.String("username", req.Username), slog.Any("error", err))
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	if err := validation.ValidatePassword(req.Password); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	// Пароль хешируется только на сервере, клиент передает plaintext по TLS
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	if err := h.userStorage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.logger.WarnContext(ctx, "user already exists", slog.String("username", req.Username))
			sendError(w, h.logger, "username already taken", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "user registered successfully",
		slog.String("username", req.Username),
		slog.String("user_id", user.ID))

	resp := api.RegisterResponse{
		UserID:  user.ID,
		Message: "User registered successfully",
	}

	sendJSON(w, h.logger, resp, http.StatusCreated)
}

// Login обрабатывает POST /api/v1/auth/login
// Аутентификация пользователя
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode login request", slog.Any("error", err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		h.logger.WarnContext(ctx, "invalid username", slog.String("username", req.Username), slog.Any("error", err))
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.userStorage.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.logger.WarnContext(ctx, "login failed: user not found", slog.String("username", req.Username))
			sendError(w, h.logger, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.logger.WarnContext(ctx, "login failed: invalid password", slog.String("username", req.Username))
		sendError(w, h.logger, "invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, expiresIn, err := GenerateAccessToken(h.jwtConfig, user.ID, user.Username)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.userStorage.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		// Не критичная ошибка, логируем но не прерываем
		h.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	h.logger.InfoContext(ctx, "user logged in successfully",
		slog.String("username", req.Username),
		slog.String("user_id", user.ID))

	resp := api.TokenResponse{
		AccessToken: accessToken,
		UserID:      user.ID,
		ExpiresIn:   expiresIn,
	}

	sendJSON(w, h.logger, resp, http.StatusOK)
}
