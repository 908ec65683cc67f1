package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/dentkeeper/internal/server/storage/sqlite"
	"github.com/iudanet/dentkeeper/pkg/api"
)

// createDataMux собирает handler с роутингом по {collection}
func createDataMux(t *testing.T) (*http.ServeMux, *sqlite.Storage) {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	h := NewDataHandler(testLogger(), store)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/data/{collection}", h.HandleCollection)
	return mux, store
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestDataHandler_InsertAndSelect(t *testing.T) {
	mux, _ := createDataMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/data/patients",
		map[string]any{"full_name": "Анна Иванова", "phone": "+7-900-000-00-00"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created api.RowResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.NotNil(t, created.Row)
	assert.NotEmpty(t, created.Row.ID)
	assert.False(t, created.Row.CreatedAt.IsZero())
	assert.Equal(t, "Анна Иванова", created.Row.Fields["full_name"])

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/data/patients", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows api.RowsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows.Rows, 1)
	assert.Equal(t, created.Row.ID, rows.Rows[0].ID)
}

func TestDataHandler_SelectEmptyCollection(t *testing.T) {
	mux, _ := createDataMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/data/invoices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	// Пустая коллекция — это rows: [], а не null
	assert.JSONEq(t, `{"rows":[]}`, rec.Body.String())
}

func TestDataHandler_UnknownCollection(t *testing.T) {
	mux, _ := createDataMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/data/passwords", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDataHandler_InsertKeepsClientID(t *testing.T) {
	mux, _ := createDataMux(t)

	// Offline-созданные записи приходят с готовым id: сервер его сохраняет
	rec := doJSON(t, mux, http.MethodPost, "/api/v1/data/patients",
		map[string]any{"id": "client-generated-id", "full_name": "Offline Patient"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created api.RowResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "client-generated-id", created.Row.ID)
}

func TestDataHandler_InsertRejectsReservedFields(t *testing.T) {
	mux, _ := createDataMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/data/patients",
		map[string]any{"full_name": "X", "_custom": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataHandler_Update(t *testing.T) {
	mux, _ := createDataMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/data/patients",
		map[string]any{"id": "p-1", "full_name": "Анна Иванова"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodPatch, "/api/v1/data/patients", api.UpdateRequest{
		Patch:  map[string]any{"phone": "+7-900-000-00-00"},
		Column: "id",
		Value:  "p-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated api.RowResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, "+7-900-000-00-00", updated.Row.Fields["phone"])
	assert.Equal(t, "Анна Иванова", updated.Row.Fields["full_name"])
}

func TestDataHandler_UpdateNoMatch(t *testing.T) {
	mux, _ := createDataMux(t)

	rec := doJSON(t, mux, http.MethodPatch, "/api/v1/data/patients", api.UpdateRequest{
		Patch:  map[string]any{"phone": "x"},
		Column: "id",
		Value:  "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDataHandler_UpdateValidation(t *testing.T) {
	mux, _ := createDataMux(t)

	// Без column
	rec := doJSON(t, mux, http.MethodPatch, "/api/v1/data/patients", api.UpdateRequest{
		Patch: map[string]any{"phone": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Без patch
	rec = doJSON(t, mux, http.MethodPatch, "/api/v1/data/patients", api.UpdateRequest{
		Column: "id",
		Value:  "p-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataHandler_Delete(t *testing.T) {
	mux, store := createDataMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/data/patients",
		map[string]any{"id": "p-1", "full_name": "Patient"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodDelete, "/api/v1/data/patients", api.DeleteRequest{
		Column: "id",
		Value:  "p-1",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rows, err := store.ListRecords(context.Background(), "patients")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDataHandler_DeleteIdempotent(t *testing.T) {
	mux, _ := createDataMux(t)

	// Повторное удаление несуществующей записи — тоже 204
	rec := doJSON(t, mux, http.MethodDelete, "/api/v1/data/patients", api.DeleteRequest{
		Column: "id",
		Value:  "missing",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDataHandler_MethodNotAllowed(t *testing.T) {
	mux, _ := createDataMux(t)

	rec := doJSON(t, mux, http.MethodPut, "/api/v1/data/patients", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
