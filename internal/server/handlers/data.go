package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/dentkeeper/internal/models"
	"github.com/iudanet/dentkeeper/internal/server/storage"
	"github.com/iudanet/dentkeeper/internal/validation"
	"github.com/iudanet/dentkeeper/pkg/api"
)

// DataHandler обрабатывает CRUD запросы к коллекциям клиники
type DataHandler struct {
	logger  *slog.Logger
	storage storage.RecordStorage
}

// NewDataHandler создает новый handler для данных
func NewDataHandler(logger *slog.Logger, recordStorage storage.RecordStorage) *DataHandler {
	return &DataHandler{
		logger:  logger,
		storage: recordStorage,
	}
}

// HandleCollection обрабатывает запросы к /api/v1/data/{collection}
// GET - select, POST - insert, PATCH - update, DELETE - delete
func (h *DataHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if err := validation.ValidateCollection(collection); err != nil {
		h.logger.WarnContext(r.Context(), "unknown collection", slog.String("collection", collection))
		sendError(w, h.logger, err.Error(), http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleSelect(w, r, collection)
	case http.MethodPost:
		h.handleInsert(w, r, collection)
	case http.MethodPatch:
		h.handleUpdate(w, r, collection)
	case http.MethodDelete:
		h.handleDelete(w, r, collection)
	default:
		sendError(w, h.logger, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSelect обрабатывает GET /api/v1/data/{collection}
// Возвращает все записи коллекции
func (h *DataHandler) handleSelect(w http.ResponseWriter, r *http.Request, collection string) {
	ctx := r.Context()

	rows, err := h.storage.ListRecords(ctx, collection)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list records",
			slog.String("collection", collection), slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	if rows == nil {
		rows = []*models.Record{}
	}

	sendJSON(w, h.logger, api.RowsResponse{Rows: rows}, http.StatusOK)
}

// handleInsert обрабатывает POST /api/v1/data/{collection}
// Создает запись; id и timestamps проставляются, если клиент их не прислал
func (h *DataHandler) handleInsert(w http.ResponseWriter, r *http.Request, collection string) {
	ctx := r.Context()

	record := &models.Record{}
	if err := json.NewDecoder(r.Body).Decode(record); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode record", slog.Any("error", err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validateFields(record.Fields); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	// Служебные offline-поля клиента на сервере не хранятся
	record.ClearSyncFlags()

	if err := h.storage.InsertRecord(ctx, collection, record); err != nil {
		h.logger.ErrorContext(ctx, "failed to insert record",
			slog.String("collection", collection), slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "record inserted",
		slog.String("collection", collection), slog.String("id", record.ID))

	sendJSON(w, h.logger, api.RowResponse{Row: record}, http.StatusCreated)
}

// handleUpdate обрабатывает PATCH /api/v1/data/{collection}
// Применяет patch к записям, у которых column == value
func (h *DataHandler) handleUpdate(w http.ResponseWriter, r *http.Request, collection string) {
	ctx := r.Context()

	var req api.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode update request", slog.Any("error", err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Column == "" {
		sendError(w, h.logger, "column is required", http.StatusBadRequest)
		return
	}
	if len(req.Patch) == 0 {
		sendError(w, h.logger, "patch is required", http.StatusBadRequest)
		return
	}
	if err := validateFields(req.Patch); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	row, err := h.storage.UpdateWhere(ctx, collection, req.Patch, req.Column, req.Value)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			sendError(w, h.logger, "no matching records", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to update records",
			slog.String("collection", collection), slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "records updated",
		slog.String("collection", collection),
		slog.String("column", req.Column))

	sendJSON(w, h.logger, api.RowResponse{Row: row}, http.StatusOK)
}

// handleDelete обрабатывает DELETE /api/v1/data/{collection}
// Удаляет записи, у которых column == value. Идемпотентен.
func (h *DataHandler) handleDelete(w http.ResponseWriter, r *http.Request, collection string) {
	ctx := r.Context()

	var req api.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode delete request", slog.Any("error", err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Column == "" {
		sendError(w, h.logger, "column is required", http.StatusBadRequest)
		return
	}

	deleted, err := h.storage.DeleteWhere(ctx, collection, req.Column, req.Value)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to delete records",
			slog.String("collection", collection), slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "records deleted",
		slog.String("collection", collection),
		slog.String("column", req.Column),
		slog.Int("count", deleted))

	w.WriteHeader(http.StatusNoContent)
}

// validateFields отклоняет зарезервированные имена полей в пользовательском вводе
func validateFields(fields map[string]any) error {
	for name := range fields {
		if name == "updated_at" {
			// Клиент вправе присылать свой updated_at в patch
			continue
		}
		if err := validation.ValidateFieldName(name); err != nil {
			return err
		}
	}
	return nil
}
