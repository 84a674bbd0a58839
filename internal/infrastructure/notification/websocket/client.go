package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Клиент присылает только управляющие команды
	maxCommandSize = 1024

	actionSubscribe = "subscribe"
)

// Subscription определяет, какие события прогонов получает клиент
type Subscription struct {
	// Пустой тенант означает все тенанты
	TenantID string `json:"tenant_id,omitempty"`
	// Сигналы ниже этой важности не рассылаются
	MinSeverity valueobject.Severity `json:"min_severity"`
	// Только сигналы, без полного отчёта о прогоне
	SignalsOnly bool `json:"signals_only"`
}

// NewSubscription проверяет тенант и порог важности. По умолчанию
// рассылаются только сигналы высокой важности.
func NewSubscription(tenant, minSeverity string, signalsOnly bool) (Subscription, error) {
	sub := Subscription{MinSeverity: valueobject.SeverityHigh, SignalsOnly: signalsOnly}

	if raw := strings.TrimSpace(tenant); raw != "" {
		tenantID, err := valueobject.NewTenantID(raw)
		if err != nil {
			return Subscription{}, err
		}
		sub.TenantID = tenantID.String()
	}
	if raw := strings.TrimSpace(minSeverity); raw != "" {
		severity := valueobject.Severity(strings.ToLower(raw))
		if err := severity.Validate(); err != nil {
			return Subscription{}, fmt.Errorf("%w: %s", err, raw)
		}
		sub.MinSeverity = severity
	}
	return sub, nil
}

func (s Subscription) matches(msg Message) bool {
	if s.TenantID != "" && s.TenantID != msg.TenantID {
		return false
	}
	switch msg.Type {
	case MessageAnalysis:
		return !s.SignalsOnly
	case MessageSignal:
		return valueobject.Severity(msg.Severity).Rank() <= s.MinSeverity.Rank()
	default:
		return false
	}
}

// command управляющее сообщение клиента:
// {"action":"subscribe","tenant_id":"acme","min_severity":"medium","signals_only":true}
type command struct {
	Action      string `json:"action"`
	TenantID    string `json:"tenant_id"`
	MinSeverity string `json:"min_severity"`
	SignalsOnly bool   `json:"signals_only"`
}

// Client одно WebSocket-соединение. Подписку можно менять без переподключения.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	logger *logger.Logger

	// send закрывает hub, replies никто не закрывает
	send    chan Message
	replies chan Message

	mu  sync.RWMutex
	sub Subscription
}

// NewClient создаёт клиента с начальной подпиской
func NewClient(hub *Hub, conn *websocket.Conn, sub Subscription, logger *logger.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		logger:  logger,
		send:    make(chan Message, 256),
		replies: make(chan Message, 8),
		sub:     sub,
	}
}

// Subscription возвращает текущую подписку
func (c *Client) Subscription() Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub
}

// handleCommand применяет команду клиента и возвращает ответ на неё
func (c *Client) handleCommand(raw []byte) Message {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return errorMessage("malformed command")
	}
	if cmd.Action != actionSubscribe {
		return errorMessage(fmt.Sprintf("unknown action %q", cmd.Action))
	}

	sub, err := NewSubscription(cmd.TenantID, cmd.MinSeverity, cmd.SignalsOnly)
	if err != nil {
		return errorMessage(err.Error())
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	return Message{Type: MessageSubscribed, TenantID: sub.TenantID, Data: sub}
}

func (c *Client) reply(msg Message) {
	select {
	case c.replies <- msg:
	default:
		// Клиент не читает ответы, лишние отбрасываем
	}
}

// ReadPump читает команды клиента до закрытия соединения.
// Запускается в отдельной goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxCommandSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket connection lost", "tenant_id", c.Subscription().TenantID, "error", err.Error())
			}
			return
		}
		if kind != websocket.TextMessage {
			c.reply(errorMessage("commands must be JSON text frames"))
			continue
		}

		resp := c.handleCommand(raw)
		if resp.Type == MessageSubscribed {
			c.logger.Debug("WebSocket subscription changed", "tenant_id", resp.TenantID)
		}
		c.reply(resp)
	}
}

// WritePump отправляет события и ответы на команды, держит соединение ping'ами.
// Запускается в отдельной goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		var msg Message
		select {
		case m, ok := <-c.send:
			if !ok {
				_ = c.control(websocket.CloseMessage)
				return
			}
			msg = m
		case msg = <-c.replies:
		case <-ticker.C:
			if err := c.control(websocket.PingMessage); err != nil {
				return
			}
			continue
		}

		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteJSON(msg); err != nil {
			c.logger.Warn("WebSocket write failed", "tenant_id", msg.TenantID, "type", msg.Type, "error", err.Error())
			return
		}
	}
}

func (c *Client) control(kind int) error {
	return c.conn.WriteControl(kind, nil, time.Now().Add(writeWait))
}

func errorMessage(reason string) Message {
	return Message{Type: MessageError, Data: reason}
}
