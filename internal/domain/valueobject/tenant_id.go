package valueobject

import (
	"errors"
	"regexp"
	"strings"
)

// DefaultTenant используется, когда тенант не указан
const DefaultTenant TenantID = "default"

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{1,128}$`)

// TenantID идентифицирует владельца истории снимков (Value Object)
type TenantID string

// NewTenantID нормализует и валидирует идентификатор; пустая строка даёт DefaultTenant
func NewTenantID(raw string) (TenantID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultTenant, nil
	}
	if !tenantIDPattern.MatchString(trimmed) || strings.Trim(trimmed, ".") == "" {
		return "", errors.New("invalid tenant id")
	}
	return TenantID(trimmed), nil
}

func (t TenantID) String() string {
	return string(t)
}
