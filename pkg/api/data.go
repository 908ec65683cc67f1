package api

import "github.com/iudanet/dentkeeper/internal/models"

// RowsResponse представляет ответ сервера на select по коллекции
type RowsResponse struct {
	Rows []*models.Record `json:"rows"`
}

// RowResponse представляет ответ сервера на insert/update одной записи
type RowResponse struct {
	Row *models.Record `json:"row"`
}

// UpdateRequest представляет запрос на частичное обновление записей коллекции.
// Patch применяется ко всем записям, у которых Column == Value.
type UpdateRequest struct {
	Patch  map[string]any `json:"patch"`
	Column string         `json:"column"`
	Value  any            `json:"value"`
}

// DeleteRequest представляет запрос на удаление записей коллекции
// по совпадению колонки
type DeleteRequest struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}
