package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadSecret_MissingFile(t *testing.T) {
	_, err := ReadSecret("definitely_missing_secret")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "/run/secrets/definitely_missing_secret")
}

func TestReadOptionalSecret_EnvFallback(t *testing.T) {
	t.Setenv("TEST_SECRET_FALLBACK", "  env-value\n")

	// Файла в /run/secrets нет, значение приходит из переменной окружения
	got := ReadOptionalSecret("definitely_missing_secret", "TEST_SECRET_FALLBACK")
	assert.Equal(t, "env-value", got)
}

func TestReadOptionalSecret_Unset(t *testing.T) {
	got := ReadOptionalSecret("definitely_missing_secret", "TEST_SECRET_UNSET")
	assert.Empty(t, got)
}
