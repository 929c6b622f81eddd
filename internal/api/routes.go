package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"riskhub/internal/api/handlers"
	"riskhub/internal/api/middleware"
	"riskhub/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Alerts   handlers.AlertService
	Executor handlers.ActionExecutor
	Risk     handlers.RiskProvider
	History  handlers.EventHistory
	Hub      *websocket.Hub
	Log      *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /alerts/
//	│   ├── GET / - активные алерты, новые первыми
//	│   ├── POST /{id}/dismiss - отклонить алерт (идемпотентно)
//	│   └── POST /{id}/execute - исполнить рекомендованное действие
//	├── /risk/
//	│   ├── GET /portfolio - агрегированный риск портфеля
//	│   └── GET /assessments - оценки по открытым позициям
//	└── /events/
//	    └── GET /history - недавние события шины
//
// /ws/
//
//	└── /stream - WebSocket для real-time алертов и риска портфеля
//
// /health - проверка живости
// /metrics - Prometheus метрики
// /debug/pprof - профилирование (за DebugAuth)
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. RateLimit (только /api/v1; execute ограничен жёстче чтения)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	log := zap.NewNop()
	if deps != nil && deps.Log != nil {
		log = deps.Log
	}

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var alertHandler *handlers.AlertHandler
	if deps != nil && deps.Alerts != nil && deps.Executor != nil {
		alertHandler = handlers.NewAlertHandler(deps.Alerts, deps.Executor)
	}

	var riskHandler *handlers.RiskHandler
	if deps != nil && deps.Risk != nil {
		riskHandler = handlers.NewRiskHandler(deps.Risk)
	}

	var historyHandler *handlers.HistoryHandler
	if deps != nil && deps.History != nil {
		historyHandler = handlers.NewHistoryHandler(deps.History)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RateLimit(middleware.NewAPILimiter()))

	// Alert routes
	if alertHandler != nil {
		api.HandleFunc("/alerts", alertHandler.GetAlerts).Methods("GET")
		api.HandleFunc("/alerts/{id}/dismiss", alertHandler.DismissAlert).Methods("POST")
		api.HandleFunc("/alerts/{id}/execute", alertHandler.ExecuteAlert).Methods("POST")
	}

	// Risk routes
	if riskHandler != nil {
		api.HandleFunc("/risk/portfolio", riskHandler.GetPortfolio).Methods("GET")
		api.HandleFunc("/risk/assessments", riskHandler.GetAssessments).Methods("GET")
	}

	// Event history routes
	if historyHandler != nil {
		api.HandleFunc("/events/history", historyHandler.GetHistory).Methods("GET")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Профилирование за basic auth
	debug := router.PathPrefix("/debug").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("/pprof/", pprof.Index)
	debug.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	debug.HandleFunc("/pprof/profile", pprof.Profile)
	debug.HandleFunc("/pprof/symbol", pprof.Symbol)
	debug.HandleFunc("/pprof/trace", pprof.Trace)
	debug.PathPrefix("/pprof/").Handler(http.HandlerFunc(pprof.Index))

	return router
}
