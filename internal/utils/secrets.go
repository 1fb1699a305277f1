package utils

import (
	"fmt"
	"os"
	"strings"
)

// ReadSecret читает секрет из файла в стандартном пути Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	// Путь по умолчанию для Docker Secrets
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// ReadOptionalSecret читает секрет из Docker Secrets, а при отсутствии или
// пустоте файла возвращает значение переменной окружения envVar.
// Пустая строка означает, что секрет не задан ни одним из способов.
func ReadOptionalSecret(secretName, envVar string) string {
	if secret, err := ReadSecret(secretName); err == nil {
		return secret
	}
	return strings.TrimSpace(os.Getenv(envVar))
}
