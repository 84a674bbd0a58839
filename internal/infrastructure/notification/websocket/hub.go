package websocket

import (
	"context"
	"sync"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/pkg/logger"
)

// Типы сообщений, отправляемых клиентам
const (
	MessageAnalysis   = "analysis"
	MessageSignal     = "signal"
	MessageSubscribed = "subscribed"
	MessageError      = "error"
)

// Hub управляет WebSocket клиентами и рассылает отчёты о прогонах.
// Реализует интерфейс port.NotificationService
type Hub struct {
	clients map[*Client]bool

	broadcast  chan *dto.AnalysisReportDTO
	register   chan *Client
	unregister chan *Client

	// Mutex для защиты clients map
	mu sync.RWMutex

	logger *logger.Logger
}

// NewHub создает новый WebSocket hub
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *dto.AnalysisReportDTO, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run запускает hub до отмены контекста (в отдельной goroutine)
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client registered", "tenant_id", client.Subscription().TenantID, "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", total)

		case report := <-h.broadcast:
			h.deliver(report)
		}
	}
}

// deliver рассылает отчёт и его сигналы по подпискам клиентов.
// Медленный клиент с заполненным каналом отключается.
func (h *Hub) deliver(report *dto.AnalysisReportDTO) {
	if report == nil || report.Snapshot == nil {
		return
	}
	messages := reportMessages(report)
	tenant := report.Snapshot.TenantID

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for client := range h.clients {
		sub := client.Subscription()
		sent, ok := offer(client, sub, messages)
		if !ok {
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("Client channel full, disconnected", "tenant_id", sub.TenantID)
			continue
		}
		if sent > 0 {
			delivered++
		}
	}
	h.logger.Debug("Analysis report broadcasted", "tenant_id", tenant, "clients", delivered)
}

// offer кладёт подходящие сообщения в канал клиента; false означает переполнение
func offer(client *Client, sub Subscription, messages []Message) (int, bool) {
	sent := 0
	for _, msg := range messages {
		if !sub.matches(msg) {
			continue
		}
		select {
		case client.send <- msg:
			sent++
		default:
			return sent, false
		}
	}
	return sent, true
}

func reportMessages(report *dto.AnalysisReportDTO) []Message {
	tenant := report.Snapshot.TenantID
	messages := []Message{{Type: MessageAnalysis, TenantID: tenant, SnapshotID: report.Snapshot.ID, Data: report}}
	for _, sig := range report.Snapshot.UpgradeSignals {
		messages = append(messages, Message{
			Type:       MessageSignal,
			TenantID:   tenant,
			SnapshotID: report.Snapshot.ID,
			Severity:   sig.Severity,
			Data:       sig,
		})
	}
	return messages
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Register регистрирует нового клиента
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет клиента
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast ставит отчёт в очередь рассылки (реализация port.NotificationService)
func (h *Hub) Broadcast(report *dto.AnalysisReportDTO) {
	select {
	case h.broadcast <- report:
	default:
		h.logger.Warn("Broadcast channel full, dropping analysis report")
	}
}

// ClientCount возвращает количество подключенных клиентов (реализация port.NotificationService)
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Message представляет сообщение для отправки клиенту
type Message struct {
	Type       string      `json:"type"`
	TenantID   string      `json:"tenant_id,omitempty"`
	SnapshotID string      `json:"snapshot_id,omitempty"`
	Severity   string      `json:"severity,omitempty"`
	Data       interface{} `json:"data"`
}
