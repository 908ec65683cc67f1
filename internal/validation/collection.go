package validation

import (
	"fmt"
	"strings"

	"github.com/iudanet/dentkeeper/internal/models"
)

// ValidateCollection проверяет, что имя коллекции входит в список управляемых.
// Offline-слой работает только с фиксированным набором коллекций клиники.
func ValidateCollection(name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}

	for _, c := range models.Collections() {
		if c == name {
			return nil
		}
	}

	return fmt.Errorf("unknown collection %q (expected one of: %s)",
		name, strings.Join(models.Collections(), ", "))
}

// ValidateFieldName проверяет имя доменного поля записи.
// Ключи с префиксом "_" зарезервированы под служебные поля синхронизации.
func ValidateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name cannot be empty")
	}

	if strings.HasPrefix(name, "_") {
		return fmt.Errorf("field name %q is reserved: names starting with underscore belong to the sync layer", name)
	}

	switch name {
	case "id", "created_at", "updated_at":
		return fmt.Errorf("field name %q is managed automatically and cannot be set directly", name)
	}

	return nil
}
