package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Имена коллекций, которыми управляет offline-слой.
// Порядок фиксирован: синхронизация обходит коллекции строго в этом порядке.
const (
	CollectionPatients     = "patients"
	CollectionAppointments = "appointments"
	CollectionTreatments   = "treatments"
	CollectionInvoices     = "invoices"
)

// Collections возвращает список управляемых коллекций в порядке синхронизации
func Collections() []string {
	return []string{
		CollectionPatients,
		CollectionAppointments,
		CollectionTreatments,
		CollectionInvoices,
	}
}

// Action описывает отложенную операцию записи, выполненную офлайн.
// Пустое значение означает "чистую" запись (уже согласована с сервером).
type Action string

const (
	ActionNone   Action = ""
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid проверяет, что Action является одним из известных тегов
// (не включая ActionNone)
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	case ActionNone:
		return false
	}
	return false
}

// Зарезервированные ключи в wire-представлении записи.
// Ключи с префиксом "_" принадлежат offline-слою и не могут быть доменными полями.
const (
	keyID            = "id"
	keyCreatedAt     = "created_at"
	keyUpdatedAt     = "updated_at"
	KeyOfflineAction = "_offline_action"
	KeyPendingSync   = "_pending_sync"
)

// Record представляет одну доменную запись (пациент, приём, лечение, счёт).
// Доменные поля хранятся в Fields; служебные поля синхронизации вынесены
// в Action/PendingSync и сериализуются как "_offline_action"/"_pending_sync".
// Запись без служебных полей считается чистой; запись с ними — грязной,
// её жизненным циклом владеет очередь мутаций.
type Record struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Fields      map[string]any
	ID          string
	Action      Action
	PendingSync bool
}

// NewRecord создает запись с доменными полями (без id и timestamps —
// их назначает data facade перед первой записью)
func NewRecord(fields map[string]any) *Record {
	f := make(map[string]any, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return &Record{Fields: f}
}

// Dirty сообщает, ожидает ли запись синхронизации с сервером
func (r *Record) Dirty() bool {
	return r.PendingSync || r.Action != ActionNone
}

// Clone создает глубокую копию записи (Fields копируется на один уровень)
func (r *Record) Clone() *Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return &Record{
		ID:          r.ID,
		Fields:      fields,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Action:      r.Action,
		PendingSync: r.PendingSync,
	}
}

// CleanCopy возвращает копию записи без служебных полей синхронизации.
// Используется перед отправкой на сервер.
func (r *Record) CleanCopy() *Record {
	c := r.Clone()
	c.Action = ActionNone
	c.PendingSync = false
	return c
}

// MarkDirty помечает запись отложенной операцией
func (r *Record) MarkDirty(action Action) {
	r.Action = action
	r.PendingSync = true
}

// ClearSyncFlags снимает служебные поля — запись становится чистой
func (r *Record) ClearSyncFlags() {
	r.Action = ActionNone
	r.PendingSync = false
}

// Merge применяет частичный patch к доменным полям записи.
// Зарезервированные ключи ("id", "_..." и timestamps) в Fields не попадают:
// "updated_at" обновляет UpdatedAt, остальные игнорируются.
func (r *Record) Merge(patch map[string]any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		switch k {
		case keyID, keyCreatedAt, KeyOfflineAction, KeyPendingSync:
			// id и служебные поля через patch не меняются
		case keyUpdatedAt:
			if t, ok := parseTime(v); ok {
				r.UpdatedAt = t
			}
		default:
			r.Fields[k] = v
		}
	}
}

// Matches проверяет, совпадает ли значение колонки записи с value.
// Сравнение через строковое представление: после прохода через JSON
// числовые типы теряют исходный Go-тип (int становится float64).
func (r *Record) Matches(column string, value any) bool {
	var current any
	switch column {
	case keyID:
		current = r.ID
	case keyCreatedAt:
		current = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	case keyUpdatedAt:
		current = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	default:
		v, ok := r.Fields[column]
		if !ok {
			return false
		}
		current = v
	}
	return stringify(current) == stringify(value)
}

// MarshalJSON сериализует запись в плоский JSON объект:
// доменные поля, id, timestamps и (для грязных записей) служебные ключи
func (r *Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+5)
	for k, v := range r.Fields {
		m[k] = v
	}
	m[keyID] = r.ID
	if !r.CreatedAt.IsZero() {
		m[keyCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !r.UpdatedAt.IsZero() {
		m[keyUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if r.Action != ActionNone {
		m[KeyOfflineAction] = string(r.Action)
	}
	if r.PendingSync {
		m[KeyPendingSync] = true
	}
	return json.Marshal(m)
}

// UnmarshalJSON разбирает плоский JSON объект обратно в Record
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}

	rec := Record{Fields: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case keyID:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("record id must be a string, got %T", v)
			}
			rec.ID = s
		case keyCreatedAt:
			if t, ok := parseTime(v); ok {
				rec.CreatedAt = t
			}
		case keyUpdatedAt:
			if t, ok := parseTime(v); ok {
				rec.UpdatedAt = t
			}
		case KeyOfflineAction:
			s, _ := v.(string)
			action := Action(s)
			if !action.Valid() {
				return fmt.Errorf("unknown offline action %q", s)
			}
			rec.Action = action
		case KeyPendingSync:
			b, _ := v.(bool)
			rec.PendingSync = b
		default:
			rec.Fields[k] = v
		}
	}

	*r = rec
	return nil
}

// parseTime разбирает значение timestamp из JSON (RFC3339 строка)
func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// stringify приводит значение к каноничной строке для сравнения колонок
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return x
	case float64:
		// %g даёт "42" и для 42.0 — целые из JSON совпадают с Go int
		return fmt.Sprintf("%g", x)
	case int:
		return fmt.Sprintf("%d", x)
	case int64:
		return fmt.Sprintf("%d", x)
	case bool:
		return fmt.Sprintf("%t", x)
	default:
		return fmt.Sprint(x)
	}
}
