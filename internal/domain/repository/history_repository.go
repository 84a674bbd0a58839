package repository

import (
	"context"
	"errors"

	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// ErrPolicyNotFound возвращается, когда у тенанта нет собственной SLA-политики
var ErrPolicyNotFound = errors.New("tenant policy not found")

// HistoryRepository определяет журнал снимков тенанта (Port)
// Журнал только дополняется; существующие записи никогда не переписываются
type HistoryRepository interface {
	// Append добавляет снимок в конец журнала тенанта
	Append(ctx context.Context, snapshot *entity.MetricsSnapshot) error

	// ReadRecent возвращает последние n снимков в хронологическом порядке (старые первыми)
	ReadRecent(ctx context.Context, tenantID valueobject.TenantID, n int) ([]*entity.MetricsSnapshot, error)

	// Count возвращает число снимков тенанта
	Count(ctx context.Context, tenantID valueobject.TenantID) (int64, error)

	// ListTenants возвращает всех тенантов, у которых есть история
	ListTenants(ctx context.Context) ([]valueobject.TenantID, error)
}

// TenantLockingHistory реализуется журналами, которые умеют сериализовать тенанта
// между процессами. fn получает журнал, привязанный к блокировке: чтение последних
// снимков и добавление нового выполняются атомарно. Ошибка fn отменяет добавление.
type TenantLockingHistory interface {
	WithTenantLock(
		ctx context.Context,
		tenantID valueobject.TenantID,
		fn func(ctx context.Context, history HistoryRepository) error,
	) error
}

// TenantPolicyRepository определяет хранилище SLA-политик (Port)
type TenantPolicyRepository interface {
	// FindByTenant возвращает политику или ErrPolicyNotFound
	FindByTenant(ctx context.Context, tenantID valueobject.TenantID) (*entity.TenantPolicy, error)

	// Save создает или заменяет политику тенанта
	Save(ctx context.Context, policy *entity.TenantPolicy) error
}
