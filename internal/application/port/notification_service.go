package port

import "github.com/dreschagin/process-detector/internal/application/dto"

// NotificationService определяет интерфейс для отправки уведомлений (Port)
// Реализация будет в Infrastructure слое (WebSocket Hub)
type NotificationService interface {
	// Broadcast отправляет отчёт о прогоне всем подписчикам тенанта
	Broadcast(report *dto.AnalysisReportDTO)

	// ClientCount возвращает количество подключенных клиентов
	ClientCount() int
}
