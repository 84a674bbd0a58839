package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	wsInfra "github.com/dreschagin/process-detector/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/process-detector/internal/interfaces/http/middleware"
	"github.com/dreschagin/process-detector/pkg/logger"
	"github.com/gorilla/websocket"
)

// WebSocketHandler подключает клиентов к рассылке отчётов о прогонах
type WebSocketHandler struct {
	hub      *wsInfra.Hub
	auth     middleware.AuthConfig
	origins  originPolicy
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewWebSocketHandler создает новый handler
func NewWebSocketHandler(
	hub *wsInfra.Hub,
	allowedOrigins []string,
	authConfig middleware.AuthConfig,
	logger *logger.Logger,
) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:     hub,
		auth:    authConfig,
		origins: newOriginPolicy(allowedOrigins),
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.origins.allows,
	}
	return h
}

// originPolicy пропускает только перечисленные origin; "*" разрешает любой.
// Пустой список закрывает WebSocket для браузеров.
type originPolicy struct {
	any     bool
	allowed map[string]bool
}

func newOriginPolicy(origins []string) originPolicy {
	policy := originPolicy{allowed: make(map[string]bool, len(origins))}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			policy.any = true
		default:
			policy.allowed[strings.ToLower(strings.TrimRight(origin, "/"))] = true
		}
	}
	return policy
}

func (p originPolicy) allows(r *http.Request) bool {
	parsed, err := url.Parse(strings.TrimSpace(r.Header.Get("Origin")))
	if err != nil || parsed.Host == "" {
		return false
	}
	return p.any || p.allowed[strings.ToLower(parsed.Scheme+"://"+parsed.Host)]
}

// HandleConnection обрабатывает GET /ws.
// Начальная подписка задаётся параметрами tenant_id, min_severity и signals_only,
// дальше клиент меняет её командой subscribe.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := middleware.ValidateRequestAuth(r, h.auth); err != nil {
		h.logger.Warn("WebSocket unauthorized", "remote_addr", r.RemoteAddr)
		middleware.WriteUnauthorized(w)
		return
	}

	query := r.URL.Query()
	signalsOnly := false
	if raw := strings.TrimSpace(query.Get("signals_only")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "signals_only must be a boolean")
			return
		}
		signalsOnly = parsed
	}

	sub, err := wsInfra.NewSubscription(query.Get("tenant_id"), query.Get("min_severity"), signalsOnly)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.logger.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err.Error())
		return
	}

	client := wsInfra.NewClient(h.hub, conn, sub, h.logger)
	h.hub.Register(client)
	h.logger.Info("WebSocket client subscribed",
		"tenant_id", sub.TenantID,
		"min_severity", sub.MinSeverity.String(),
		"signals_only", sub.SignalsOnly,
	)

	go client.WritePump()
	go client.ReadPump()
}
