package validation

import (
	"fmt"
	"regexp"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 8
)

// usernamePattern — допустимый формат username учетной записи сотрудника:
// латинские буквы, цифры и нижнее подчеркивание
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// ValidateUsername проверяет username учетной записи сотрудника клиники
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if len(username) < minUsernameLen {
		return fmt.Errorf("username must be at least %d characters long", minUsernameLen)
	}

	if len(username) > maxUsernameLen {
		return fmt.Errorf("username must not exceed %d characters", maxUsernameLen)
	}

	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username can only contain letters (a-z, A-Z), numbers (0-9), and underscores (_)")
	}

	return nil
}

// ValidatePassword проверяет минимальные требования к паролю учетной записи
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", minPasswordLen)
	}

	return nil
}
