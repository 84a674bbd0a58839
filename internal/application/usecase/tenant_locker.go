package usecase

import (
	"sync"

	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// TenantLocker сериализует прогоны одного тенанта внутри процесса.
// Между процессами порядок обеспечивает хранилище истории.
type TenantLocker struct {
	mu    sync.Mutex
	locks map[valueobject.TenantID]*sync.Mutex
}

func NewTenantLocker() *TenantLocker {
	return &TenantLocker{locks: make(map[valueobject.TenantID]*sync.Mutex)}
}

// Lock блокирует тенанта и возвращает функцию разблокировки
func (l *TenantLocker) Lock(tenantID valueobject.TenantID) func() {
	l.mu.Lock()
	m, ok := l.locks[tenantID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tenantID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
