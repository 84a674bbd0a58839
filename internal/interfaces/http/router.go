package http

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	prommetrics "github.com/dreschagin/process-detector/internal/infrastructure/observability/prometheus"
	"github.com/dreschagin/process-detector/internal/interfaces/http/handler"
	"github.com/dreschagin/process-detector/internal/interfaces/http/middleware"
	"github.com/dreschagin/process-detector/pkg/config"
	"github.com/dreschagin/process-detector/pkg/logger"
)

// ReadinessCheck проверяет доступность зависимости для /readyz
type ReadinessCheck func(ctx context.Context) error

// Router настраивает маршруты приложения
type Router struct {
	mux               *http.ServeMux
	analysisHandler   *handler.AnalysisHandler
	tenantHandler     *handler.TenantHandler
	reportViewHandler *handler.ReportViewHandler
	websocketHandler  *handler.WebSocketHandler
	security          config.SecurityConfig
	upload            config.UploadConfig
	logger            *logger.Logger

	metrics        *prommetrics.Metrics
	metricsPath    string
	metricsHandler http.Handler
	checks         map[string]ReadinessCheck

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRouter создает новый router
func NewRouter(
	analysisHandler *handler.AnalysisHandler,
	tenantHandler *handler.TenantHandler,
	reportViewHandler *handler.ReportViewHandler,
	websocketHandler *handler.WebSocketHandler,
	security config.SecurityConfig,
	upload config.UploadConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:               http.NewServeMux(),
		analysisHandler:   analysisHandler,
		tenantHandler:     tenantHandler,
		reportViewHandler: reportViewHandler,
		websocketHandler:  websocketHandler,
		security:          security,
		upload:            upload,
		logger:            logger,
		checks:            make(map[string]ReadinessCheck),
		stop:              make(chan struct{}),
	}
}

// WithMetrics включает Prometheus: middleware для HTTP метрик и endpoint экспозиции
func (rt *Router) WithMetrics(metrics *prommetrics.Metrics, path string, exposition http.Handler) *Router {
	if path == "" {
		path = "/metrics"
	}
	rt.metrics = metrics
	rt.metricsPath = path
	rt.metricsHandler = exposition
	return rt
}

// WithReadinessCheck добавляет проверку зависимости в /readyz
func (rt *Router) WithReadinessCheck(name string, check ReadinessCheck) *Router {
	if check != nil {
		rt.checks[name] = check
	}
	return rt
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	// Пробы и метрики без авторизации
	rt.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rt.mux.HandleFunc("GET /readyz", rt.ready)
	if rt.metricsHandler != nil {
		rt.mux.Handle("GET "+rt.metricsPath, rt.metricsHandler)
	}

	authConfig := rt.authConfig()
	auth := middleware.Auth(authConfig, rt.logger)

	limiter := middleware.NewIPRateLimiter(rt.upload.RateLimitPerMinute, 0)
	limiter.StartCleanup(5*time.Minute, rt.stop)
	var onLimited func()
	if rt.metrics != nil {
		onLimited = rt.metrics.RateLimitDropped.Inc
	}
	rateLimit := middleware.RateLimit(limiter, onLimited)

	rt.mux.Handle("POST /api/v1/analyses", auth(rateLimit(http.HandlerFunc(rt.analysisHandler.Analyze))))

	rt.mux.Handle("GET /api/v1/tenants/{tenant}/history", auth(http.HandlerFunc(rt.tenantHandler.GetHistory)))
	rt.mux.Handle("GET /api/v1/tenants/{tenant}/trend", auth(http.HandlerFunc(rt.tenantHandler.GetTrend)))
	rt.mux.Handle("GET /api/v1/tenants/{tenant}/reports", auth(http.HandlerFunc(rt.tenantHandler.ListReports)))
	rt.mux.Handle("GET /api/v1/tenants/{tenant}/policy", auth(http.HandlerFunc(rt.tenantHandler.GetPolicy)))
	rt.mux.Handle("PUT /api/v1/tenants/{tenant}/policy", auth(http.HandlerFunc(rt.tenantHandler.PutPolicy)))

	rt.mux.Handle("GET /reports/{tenant}", auth(http.HandlerFunc(rt.reportViewHandler.ShowReport)))

	// WebSocket проверяет токен сам: браузер передаёт его в query
	rt.mux.HandleFunc("GET /ws", rt.websocketHandler.HandleConnection)

	// Применяем middleware
	var h http.Handler = rt.mux
	h = middleware.Compression(h)
	h = middleware.Logger(rt.logger)(h)
	if rt.metrics != nil {
		h = rt.metrics.Middleware(h)
	}
	h = middleware.Recovery(rt.logger)(h)

	return h
}

// Close останавливает фоновую очистку rate limiter
func (rt *Router) Close() {
	rt.stopOnce.Do(func() { close(rt.stop) })
}

func (rt *Router) authConfig() middleware.AuthConfig {
	cfg := middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}
	if rt.metrics != nil {
		cfg.OnFailure = rt.metrics.AuthFailures.Inc
	}
	return cfg
}

func (rt *Router) ready(w http.ResponseWriter, r *http.Request) {
	if len(rt.checks) == 0 {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(rt.checks))
	for name := range rt.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := rt.checks[name](ctx); err != nil {
			rt.logger.Warn("Readiness check failed", "check", name, "error", err.Error())
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	middleware.WriteJSON(w, status, results)
}
